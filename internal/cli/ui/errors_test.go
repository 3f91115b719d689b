package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/crudkit/internal/crud/response"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name:     "with context",
			opts:     ErrorOptions{Context: "failed_to_find", Problem: "no such user"},
			contains: []string{"✗ FAILED_TO_FIND: no such user"},
		},
		{
			name:     "warning without context",
			opts:     ErrorOptions{Level: ErrorLevelWarning, Problem: "request canceled"},
			contains: []string{"! request canceled"},
		},
		{
			name:     "suggestions",
			opts:     ErrorOptions{Problem: "unknown column", Suggestions: []string{"email", "name"}},
			contains: []string{"Did you mean: email, name?"},
		},
		{
			name:     "hints",
			opts:     ErrorOptions{Problem: "oops", Hints: []string{"Show every user: crudkit users list"}},
			contains: []string{"→ Show every user: crudkit users list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestFormatResponse(t *testing.T) {
	out := FormatResponse(response.Fail(
		response.Error{Code: "failed_to_find", Message: "failed to find entity users.User"},
		response.Error{Code: "hook_failed", Message: "email is required"},
	), true)
	assert.Contains(t, out, "FAILED_TO_FIND: failed to find entity users.User")
	assert.Contains(t, out, "crudkit users list")
	assert.Contains(t, out, "HOOK_FAILED: email is required")

	assert.Contains(t, FormatResponse(response.Canceled(), true), "request canceled")
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "created 2 users", true)
	assert.Equal(t, "✓ created 2 users\n", buf.String())
}
