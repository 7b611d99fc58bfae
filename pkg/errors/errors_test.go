package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelHelpers(t *testing.T) {
	wrapped := fmt.Errorf("loading log: %w", ErrFormat)
	assert.True(t, IsFormat(wrapped))
	assert.False(t, IsParse(wrapped))

	assert.True(t, IsValidation(fmt.Errorf("connection x: %w", ErrValidation)))
	assert.True(t, IsNoPatterns(fmt.Errorf("template: %w", ErrNoPatterns)))
	assert.False(t, IsNoPatterns(nil))
}

func TestParseErrorPosition(t *testing.T) {
	data := []byte("{\n  \"log\": oops\n}")
	perr := NewParseError(data, 12, fmt.Errorf("invalid character"))

	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, 11, perr.Column)
	assert.Contains(t, perr.Error(), "line 2")
	assert.True(t, IsParse(perr))
}

func TestParseErrorUnknownOffset(t *testing.T) {
	perr := NewParseError(nil, 0, fmt.Errorf("boom"))
	require.Equal(t, 0, perr.Line)
	assert.Contains(t, perr.Error(), "offset 0")
}
