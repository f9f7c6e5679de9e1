package access

import (
	"fmt"
	"strings"
)

type exactKey struct {
	method string
	path   string
}

type pattern struct {
	method     string
	segs       []string
	literals   int
	visibility Visibility
	source     string
}

func compile(r Rule) pattern {
	segs := segments(r.Path)
	p := pattern{method: r.Method, segs: segs, visibility: r.Visibility, source: r.String()}
	for _, s := range segs {
		if !isParam(s) {
			p.literals++
		}
	}
	return p
}

func (p pattern) match(method string, segs []string) bool {
	if p.method != method || len(p.segs) != len(segs) {
		return false
	}
	for i, s := range p.segs {
		if isParam(s) {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if s != segs[i] {
			return false
		}
	}
	return true
}

// Classifier maps (method, path) to a Visibility. It is immutable once
// built and safe for concurrent use.
//
// Resolution order: an exact rule wins; otherwise any matching exception
// makes the endpoint protected; otherwise the matching pattern with the
// most literal segments wins, ties going to the stricter visibility;
// otherwise the endpoint is protected.
type Classifier struct {
	exact      map[exactKey]Visibility
	exceptions []pattern
	patterns   []pattern
}

// NewClassifier validates t and builds a classifier from it. Conflicting
// duplicate rules are rejected.
func NewClassifier(t Table) (*Classifier, error) {
	c := &Classifier{exact: make(map[exactKey]Visibility)}
	seen := make(map[string]Visibility)

	for _, r := range t.Rules {
		r = normalizeRule(r)
		if err := validateRule(r); err != nil {
			return nil, err
		}

		shape := shapeOf(r)
		if prev, ok := seen[shape]; ok {
			if prev != r.Visibility {
				return nil, fmt.Errorf("rule %s: declared both %s and %s", r, prev, r.Visibility)
			}
			continue
		}
		seen[shape] = r.Visibility

		if strings.Contains(r.Path, "{") {
			c.patterns = append(c.patterns, compile(r))
		} else {
			c.exact[exactKey{r.Method, r.Path}] = r.Visibility
		}
	}

	for _, r := range t.Exceptions {
		r = normalizeRule(r)
		r.Visibility = Protected
		if err := validateRule(r); err != nil {
			return nil, err
		}
		c.exceptions = append(c.exceptions, compile(r))
	}

	return c, nil
}

// Classify returns the visibility of the endpoint. It never fails: unknown
// endpoints are Protected.
func (c *Classifier) Classify(method, path string) Visibility {
	method, path = normalize(method, path)

	if v, ok := c.exact[exactKey{method, path}]; ok {
		return v
	}

	segs := segments(path)
	for _, e := range c.exceptions {
		if e.match(method, segs) {
			return Protected
		}
	}

	best, found := pattern{}, false
	for _, p := range c.patterns {
		if !p.match(method, segs) {
			continue
		}
		if !found || p.literals > best.literals ||
			(p.literals == best.literals && p.visibility.stricter(best.visibility)) {
			best, found = p, true
		}
	}
	if found {
		return best.visibility
	}
	return Protected
}

func normalize(method, path string) (string, string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return method, "/"
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return method, path
}

func normalizeRule(r Rule) Rule {
	r.Method, r.Path = normalize(r.Method, r.Path)
	return r
}

// shapeOf identifies a rule independent of parameter names, so
// /users/{id} and /users/{userId} collide.
func shapeOf(r Rule) string {
	segs := segments(r.Path)
	out := make([]string, len(segs))
	for i, s := range segs {
		if isParam(s) {
			out[i] = "{}"
		} else {
			out[i] = s
		}
	}
	return r.Method + " /" + strings.Join(out, "/")
}
