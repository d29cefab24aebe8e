// Package filter compiles the tag and type patterns used by resource options
// and append directives.
//
// Patterns use Go regexp syntax. A leading (?i) makes the pattern case
// insensitive; it is the only inline flag group accepted.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/boxrender/internal/errors"
)

const caseInsensitive = "(?i)"

var inlineFlags = regexp.MustCompile(`\(\?[a-zA-Z-]+[:)]`)

// Matcher is a compiled pattern
type Matcher struct {
	source string
	re     *regexp.Regexp
}

// Compile compiles a single pattern
func Compile(pattern string) (*Matcher, error) {
	body, ci := strings.CutPrefix(pattern, caseInsensitive)
	if inlineFlags.MatchString(body) {
		return nil, errors.ErrInvalidPattern(pattern, fmt.Errorf("only a leading (?i) flag is supported"))
	}
	if ci {
		body = caseInsensitive + body
	}

	re, err := regexp.Compile(body)
	if err != nil {
		return nil, errors.ErrInvalidPattern(pattern, err)
	}
	return &Matcher{source: pattern, re: re}, nil
}

// MatchString reports whether s contains a match of the pattern
func (m *Matcher) MatchString(s string) bool {
	return m.re.MatchString(s)
}

// String returns the pattern as written
func (m *Matcher) String() string {
	return m.source
}

// Set is an ordered list of matchers
type Set []*Matcher

// CompileAll compiles every pattern, stopping at the first invalid one.
// A nil input yields a nil Set.
func CompileAll(patterns []string) (Set, error) {
	if patterns == nil {
		return nil, nil
	}
	set := make(Set, 0, len(patterns))
	for _, p := range patterns {
		m, err := Compile(p)
		if err != nil {
			return nil, err
		}
		set = append(set, m)
	}
	return set, nil
}

// MatchesAll reports whether s matches every matcher. An empty set matches.
func (s Set) MatchesAll(v string) bool {
	for _, m := range s {
		if !m.MatchString(v) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether s matches at least one matcher
func (s Set) MatchesAny(v string) bool {
	for _, m := range s {
		if m.MatchString(v) {
			return true
		}
	}
	return false
}
