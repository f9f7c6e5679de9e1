package access

import "fmt"

// Visibility says how much authentication an endpoint needs. The zero value
// is Protected so an unset field fails closed.
type Visibility int

const (
	Protected Visibility = iota
	Optional
	Public
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Optional:
		return "optional"
	default:
		return "protected"
	}
}

// ParseVisibility is the inverse of String.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "public":
		return Public, nil
	case "optional":
		return Optional, nil
	case "protected":
		return Protected, nil
	}
	return Protected, fmt.Errorf("unknown visibility %q", s)
}

// stricter reports whether v demands more authentication than other.
func (v Visibility) stricter(other Visibility) bool {
	return v < other
}
