package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CapturedError is the normalized form of an application error handed to the
// analysis pipeline. Middleware adapters capture errors in whatever shape
// their framework produces; Normalize converts them into this struct so the
// rest of the pipeline never deals with arbitrary values.
type CapturedError struct {
	// Name identifies the error kind (Go type name, or a caller-supplied
	// class name like "TypeError"). Required; Normalize fills it in when
	// the input carries none.
	Name string `json:"name"`

	// Message is the human-readable error text.
	Message string `json:"message"`

	// Code is an optional machine-readable code (HTTP status, errno,
	// application error code). Empty when unknown.
	Code string `json:"code,omitempty"`

	// Stack is the raw stack trace, if one was captured. May be empty.
	// The fingerprinter normalizes and bounds it; nothing else reads it.
	Stack string `json:"stack,omitempty"`
}

// coder is implemented by errors that carry an application error code.
type coder interface {
	ErrorCode() string
}

// stackTracer is implemented by errors that carry a captured stack trace.
type stackTracer interface {
	StackTrace() string
}

// Normalize converts an arbitrary captured value into a CapturedError.
// It accepts CapturedError (returned as-is), error values (including ones
// implementing ErrorCode()/StackTrace()), plain strings, and anything else
// via fmt. It never fails: the zero-information fallback is an error named
// "unknown" with the value's printed form as message.
func Normalize(v any) CapturedError {
	switch e := v.(type) {
	case CapturedError:
		return withDefaults(e)
	case *CapturedError:
		if e == nil {
			return CapturedError{Name: "unknown", Message: "<nil>"}
		}
		return withDefaults(*e)
	case error:
		ce := CapturedError{
			Name:    errorName(e),
			Message: e.Error(),
		}
		if c, ok := e.(coder); ok {
			ce.Code = c.ErrorCode()
		}
		if s, ok := e.(stackTracer); ok {
			ce.Stack = s.StackTrace()
		}
		return ce
	case string:
		return CapturedError{Name: "error", Message: e}
	case nil:
		return CapturedError{Name: "unknown", Message: "<nil>"}
	default:
		return CapturedError{
			Name:    strings.TrimLeft(fmt.Sprintf("%T", v), "*"),
			Message: fmt.Sprint(v),
		}
	}
}

func withDefaults(e CapturedError) CapturedError {
	if e.Name == "" {
		e.Name = "error"
	}
	return e
}

// errorName derives a stable name from an error's dynamic type, stripping
// the pointer marker so *fs.PathError and fs.PathError collide.
func errorName(err error) string {
	return strings.TrimLeft(fmt.Sprintf("%T", err), "*")
}

// Advice is the AI-generated debugging suggestion for one error fingerprint.
// The pipeline treats it as an opaque payload: it is produced by a provider
// adapter, stored in the advice cache, and handed back to the middleware on
// subsequent occurrences of the same fingerprint.
type Advice struct {
	// Summary is a one-line description of the probable cause.
	Summary string `json:"summary"`

	// Detail is the full suggestion text as returned by the provider.
	Detail string `json:"detail"`

	// Provider names the adapter that produced the advice ("anthropic",
	// "openai"), for attribution in logs.
	Provider string `json:"provider,omitempty"`

	// Model is the provider model that produced the advice.
	Model string `json:"model,omitempty"`

	// CreatedAt is when the advice was generated.
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether the advice carries no content.
func (a Advice) IsZero() bool {
	return a.Summary == "" && a.Detail == ""
}

// AnalysisRequest is one unit of work for the admission queue: a cache miss
// that should be sent to the analysis provider. Created by the scheduler,
// consumed exactly once by the queue, discarded after completion.
type AnalysisRequest struct {
	// ID uniquely identifies this request in logs.
	ID string `json:"id"`

	// Fingerprint is the dedup key the eventual advice will be cached under.
	Fingerprint string `json:"fingerprint"`

	// Context is the sanitized application context string. Sanitization
	// happens upstream; the pipeline assumes secrets are already scrubbed.
	Context string `json:"context,omitempty"`

	// SubmittedAt is when the scheduler created the request.
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewAnalysisRequest creates a request for the given fingerprint and
// sanitized context.
func NewAnalysisRequest(fingerprint, sanitizedContext string) AnalysisRequest {
	return AnalysisRequest{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Context:     sanitizedContext,
		SubmittedAt: time.Now(),
	}
}
