package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/errors"
)

func TestMatcher_PrefixAnchored(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{`^report.*\.txt$`, "report1.txt", true},
		{`^report.*\.txt$`, "notes.md", false},
		{`report`, "report1.txt", true},
		{`report`, "my-report.txt", false},
		{`.*$`, "anything.bin", true},
		{`.*$`, ".hidden", true},
		{`a|b`, "bravo", true},
		{`a|b`, "charlie", false},
		{`\d+`, "2024-log", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			m, err := CompilePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.name))
		})
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	_, err := CompilePattern(`report(`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPattern))
	assert.Contains(t, err.Error(), "report(")
}

func TestMatcher_String(t *testing.T) {
	m, err := CompilePattern(`^x`)
	require.NoError(t, err)
	assert.Equal(t, `^x`, m.String())
}
