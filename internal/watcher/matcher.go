package watcher

import (
	"regexp"

	"github.com/dropwatch/dropwatch/internal/errors"
)

// Matcher decides whether a created file qualifies for dispatch.
//
// The pattern is anchored at the start of the base name only: "report"
// matches "report1.txt" and "report", but not "my-report.txt". Patterns that
// need a full match end in "$", like the default ".*$".
type Matcher struct {
	expr string
	re   *regexp.Regexp
}

// CompilePattern compiles a user pattern. An invalid expression is a
// CodeInvalidPattern error.
func CompilePattern(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, errors.InvalidPattern(pattern, err)
	}
	return &Matcher{expr: pattern, re: re}, nil
}

// Match reports whether name qualifies.
func (m *Matcher) Match(name string) bool {
	return m.re.MatchString(name)
}

// String returns the pattern as given by the user.
func (m *Matcher) String() string {
	return m.expr
}
