package llm

import "fmt"

// ErrorKind classifies a failed model invocation.
type ErrorKind string

const (
	// KindConnectionRefused means the endpoint could not be reached at all.
	KindConnectionRefused ErrorKind = "connection_refused"
	// KindModelUnavailable means the endpoint answered but has no usable model.
	KindModelUnavailable ErrorKind = "model_unavailable"
	// KindInvalidResponse means the endpoint returned a malformed or empty payload.
	KindInvalidResponse ErrorKind = "invalid_response"
	// KindTimeout means the per-call budget expired before a response arrived.
	KindTimeout ErrorKind = "timeout"
)

// InvokeError is the classified failure of a model call.
type InvokeError struct {
	Kind ErrorKind
	Err  error
}

func (e *InvokeError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying. Unavailable models
// and malformed payloads will not heal within a request's budget, so only
// connection failures and timeouts count.
func (e *InvokeError) Transient() bool {
	return e.Kind == KindConnectionRefused || e.Kind == KindTimeout
}

func newInvokeError(kind ErrorKind, err error) *InvokeError {
	return &InvokeError{Kind: kind, Err: err}
}
