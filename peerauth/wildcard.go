// Package peerauth implements RELP's post-handshake peer authentication:
// exact fingerprint matching and wildcard DN/SAN name matching (spec.md
// §4.6). The wildcard matcher is a bespoke, precompiled, component-by-
// component matcher rather than a general glob library — see DESIGN.md for
// why a shell-glob library would silently change matching semantics here.
package peerauth

import (
	"strings"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// componentKind classifies one dot-separated component of a compiled
// wildcard pattern.
type componentKind int

const (
	kindLiteral      componentKind = iota // exact match
	kindPrefixStar                        // "*suffix": candidate component must end with suffix
	kindSuffixStar                        // "prefix*": candidate component must start with prefix
	kindAnyComponent                      // "*": matches any single non-empty-or-empty component
	kindEmpty                             // "": candidate component must also be empty
)

type component struct {
	kind    componentKind
	literal string
}

// Pattern is a precompiled permitted-peer name pattern: a sequence of
// component matchers, one per dot-separated label, matched in lockstep
// against a candidate name split the same way. Patterns are immutable once
// compiled and may be shared across sessions.
type Pattern struct {
	raw        string
	components []component
}

func compileComponent(c string) (component, error) {
	switch {
	case c == "":
		return component{kind: kindEmpty}, nil
	case c == "*":
		return component{kind: kindAnyComponent}, nil
	case strings.HasPrefix(c, "*") && !strings.Contains(c[1:], "*"):
		return component{kind: kindPrefixStar, literal: c[1:]}, nil
	case strings.HasSuffix(c, "*") && !strings.Contains(c[:len(c)-1], "*"):
		return component{kind: kindSuffixStar, literal: c[:len(c)-1]}, nil
	case !strings.Contains(c, "*"):
		return component{kind: kindLiteral, literal: c}, nil
	default:
		return component{}, errcode.New(errcode.InvldWildcard, "invalid '*' placement in pattern component: "+c)
	}
}

// Compile precompiles a dotted permitted-peer pattern. Each component may be
// a literal, a literal prefixed or suffixed with a single '*', a bare '*',
// or empty; any other placement of '*' is rejected.
func Compile(pattern string) (*Pattern, error) {
	parts := strings.Split(pattern, ".")
	comps := make([]component, len(parts))
	for i, p := range parts {
		c, err := compileComponent(p)
		if err != nil {
			return nil, err
		}
		comps[i] = c
	}
	return &Pattern{raw: pattern, components: comps}, nil
}

func (c component) matches(candidate string) bool {
	switch c.kind {
	case kindEmpty:
		return candidate == ""
	case kindAnyComponent:
		return true
	case kindLiteral:
		return candidate == c.literal
	case kindPrefixStar:
		return strings.HasSuffix(candidate, c.literal)
	case kindSuffixStar:
		return strings.HasPrefix(candidate, c.literal)
	}
	return false
}

// Match walks candidate and the compiled pattern component-by-component,
// failing fast on a length mismatch (spec.md §4.6: "matching walks
// candidate and pattern in lockstep, component by component, failing fast
// on length mismatch" — so "*.example.com" (3 components) does NOT match
// "a.b.example.com" (4 components), even though the wildcard component
// alone would match any one of them).
func (p *Pattern) Match(candidate string) bool {
	parts := strings.Split(candidate, ".")
	if len(parts) != len(p.components) {
		return false
	}
	for i, c := range p.components {
		if !c.matches(parts[i]) {
			return false
		}
	}
	return true
}

func (p *Pattern) String() string { return p.raw }

// MatchAny reports whether candidate matches any of the given permitted
// patterns.
func MatchAny(patterns []*Pattern, candidate string) bool {
	for _, p := range patterns {
		if p.Match(candidate) {
			return true
		}
	}
	return false
}

// CompileAll compiles a list of raw dotted patterns, stopping at the first
// compile error.
func CompileAll(patterns []string) ([]*Pattern, error) {
	out := make([]*Pattern, len(patterns))
	for i, p := range patterns {
		c, err := Compile(p)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
