package inspect

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
// Client kinds mean "fix your input". Server kinds mean "retry later".
type Kind int

const (
	KindInternal     Kind = iota // Unanticipated failure in any stage (including panics and timeouts)
	KindMissingInput             // No video was provided
	KindExtraction               // The video could not be opened, or has no readable frame
	KindDetection                // The detector could not be loaded or invoked
	KindEncoding                 // The annotated frame could not be serialized
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindExtraction:
		return "extraction_failure"
	case KindDetection:
		return "detection_failure"
	case KindEncoding:
		return "encoding_failure"
	default:
		return "internal"
	}
}

// IsClientError is true for failures caused by the request itself
func (k Kind) IsClientError() bool {
	return k == KindMissingInput || k == KindExtraction
}

func (k Kind) HTTPStatus() int {
	if k.IsClientError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is the only error type returned by Pipeline.Run
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ErrMissingInput is returned when there is no video to inspect
var ErrMissingInput = &Error{Kind: KindMissingInput, Err: errors.New("No video uploaded")}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
