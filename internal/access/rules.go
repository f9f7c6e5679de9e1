package access

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule binds a method and path to a visibility. Paths containing {param}
// segments are patterns, all others are exact.
type Rule struct {
	Method     string
	Path       string
	Visibility Visibility
}

func (r Rule) String() string {
	return r.Method + " " + r.Path
}

// Table is the raw classification data handed to NewClassifier.
type Table struct {
	Rules      []Rule
	Exceptions []Rule
}

type ruleFile struct {
	Public     []string `yaml:"public"`
	Optional   []string `yaml:"optional"`
	Protected  []string `yaml:"protected"`
	Exceptions []string `yaml:"exceptions"`
}

// DefaultTable returns the built-in rule set.
func DefaultTable() (Table, error) {
	return ParseTable(bytes.NewReader(defaultRules))
}

// LoadTable reads a rules file from disk.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return ParseTable(f)
}

// ParseTable decodes the YAML rules format.
func ParseTable(r io.Reader) (Table, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Table{}, fmt.Errorf("failed to decode rules: %w", err)
	}

	var t Table
	sections := []struct {
		entries []string
		vis     Visibility
		dst     *[]Rule
	}{
		{file.Public, Public, &t.Rules},
		{file.Optional, Optional, &t.Rules},
		{file.Protected, Protected, &t.Rules},
		{file.Exceptions, Protected, &t.Exceptions},
	}
	for _, s := range sections {
		for _, entry := range s.entries {
			rule, err := parseEntry(entry, s.vis)
			if err != nil {
				return Table{}, err
			}
			*s.dst = append(*s.dst, rule)
		}
	}
	return t, nil
}

func parseEntry(entry string, vis Visibility) (Rule, error) {
	fields := strings.Fields(entry)
	if len(fields) != 2 {
		return Rule{}, fmt.Errorf("rule %q: want \"METHOD /path\"", entry)
	}
	return Rule{Method: fields[0], Path: fields[1], Visibility: vis}, nil
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// segments splits a normalised path. The root path has no segments.
func segments(path string) []string {
	if path == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

func isParam(seg string) bool {
	return len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func validateRule(r Rule) error {
	if !knownMethods[r.Method] {
		return fmt.Errorf("rule %s: unknown method", r)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("rule %s: path must start with /", r)
	}
	for _, seg := range segments(r.Path) {
		if seg == "" {
			return fmt.Errorf("rule %s: empty path segment", r)
		}
		if strings.ContainsAny(seg, "{}") && !isParam(seg) {
			return fmt.Errorf("rule %s: malformed parameter segment %q", r, seg)
		}
	}
	return nil
}
