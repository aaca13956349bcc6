package types

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

// codedError is a test error carrying an application code and stack.
type codedError struct {
	msg   string
	code  string
	stack string
}

func (e *codedError) Error() string      { return e.msg }
func (e *codedError) ErrorCode() string  { return e.code }
func (e *codedError) StackTrace() string { return e.stack }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected CapturedError
	}{
		{
			name:     "plain error",
			input:    errors.New("boom"),
			expected: CapturedError{Name: "errors.errorString", Message: "boom"},
		},
		{
			name:     "wrapped error keeps full message",
			input:    fmt.Errorf("outer: %w", errors.New("inner")),
			expected: CapturedError{Name: "fmt.wrapError", Message: "outer: inner"},
		},
		{
			name:  "error with code and stack",
			input: &codedError{msg: "db down", code: "E_CONN", stack: "main.go"},
			expected: CapturedError{
				Name:    "types.codedError",
				Message: "db down",
				Code:    "E_CONN",
				Stack:   "main.go",
			},
		},
		{
			name:     "string input",
			input:    "something failed",
			expected: CapturedError{Name: "error", Message: "something failed"},
		},
		{
			name:     "nil input",
			input:    nil,
			expected: CapturedError{Name: "unknown", Message: "<nil>"},
		},
		{
			name:     "nil CapturedError pointer",
			input:    (*CapturedError)(nil),
			expected: CapturedError{Name: "unknown", Message: "<nil>"},
		},
		{
			name:     "passthrough CapturedError",
			input:    CapturedError{Name: "TypeError", Message: "x is not a function"},
			expected: CapturedError{Name: "TypeError", Message: "x is not a function"},
		},
		{
			name:     "CapturedError without name gets default",
			input:    CapturedError{Message: "anonymous"},
			expected: CapturedError{Name: "error", Message: "anonymous"},
		},
		{
			name:     "arbitrary value",
			input:    42,
			expected: CapturedError{Name: "int", Message: "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

// TestNormalizePointerTypesCollide verifies pointer and value receivers of
// the same error type produce the same name, so they fingerprint together.
func TestNormalizePointerTypesCollide(t *testing.T) {
	perr := &fs.PathError{Op: "open", Path: "/etc/x", Err: errors.New("denied")}
	ce := Normalize(perr)
	assert.Equal(t, "fs.PathError", ce.Name)
}

func TestNewAnalysisRequest(t *testing.T) {
	req := NewAnalysisRequest("abcd1234abcd1234", "GET /orders")
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "abcd1234abcd1234", req.Fingerprint)
	assert.Equal(t, "GET /orders", req.Context)
	assert.False(t, req.SubmittedAt.IsZero())

	// IDs must be unique per request
	req2 := NewAnalysisRequest("abcd1234abcd1234", "GET /orders")
	assert.NotEqual(t, req.ID, req2.ID)
}

func TestAdviceIsZero(t *testing.T) {
	assert.True(t, Advice{}.IsZero())
	assert.False(t, Advice{Summary: "nil deref"}.IsZero())
	assert.False(t, Advice{Detail: "check the pointer"}.IsZero())
}
