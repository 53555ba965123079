// Package errors defines the structured error taxonomy for the enhancement
// pipeline.  Every terminal failure carries a Kind and a human-readable
// suggestion so callers can relay something actionable.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies failure modes for targeted handling and monitoring.
type Kind string

const (
	KindUnsupportedOrCorruptInput Kind = "unsupported_or_corrupt_input"
	KindTargetResolutionTooLarge  Kind = "target_resolution_too_large"
	KindOutOfMemoryDuringScale    Kind = "out_of_memory_during_scale"
	KindFilterFailure             Kind = "filter_failure"
	KindEncodeSizeExceeded        Kind = "encode_size_exceeded"
	KindQueueTimeout              Kind = "queue_timeout"
	KindInternal                  Kind = "internal"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Kind       Kind
	Op         string // operation name
	Err        error
	Degradable bool   // true when the orchestrator may retry with a degraded plan
	Suggestion string // relayed to the end user on terminal failure
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a terminal ProcessingError.
func New(kind Kind, op string, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, Op: op, Err: err, Suggestion: suggestionFor(kind)}
}

// Degradable creates a ProcessingError the orchestrator may recover from by
// substituting a degraded plan.
func Degradable(kind Kind, op string, err error) *ProcessingError {
	e := New(kind, op, err)
	e.Degradable = true
	return e
}

// Wrap wraps an existing error with kind and operation context.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, op, err)
}

// IsDegradable reports whether err permits a degraded-plan retry.
func IsDegradable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Degradable
	}
	return false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the kind from err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// SuggestionOf extracts the user-facing suggestion from err, if any.
func SuggestionOf(err error) string {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Suggestion
	}
	return ""
}

func suggestionFor(kind Kind) string {
	switch kind {
	case KindUnsupportedOrCorruptInput:
		return "send a valid JPEG, PNG, WebP, BMP or TIFF image"
	case KindTargetResolutionTooLarge:
		return "try a smaller scale factor"
	case KindOutOfMemoryDuringScale:
		return "try a smaller scale factor or a lower quality tier"
	case KindFilterFailure:
		return "retry with the Smart quality tier"
	case KindEncodeSizeExceeded:
		return "use Optimize mode or a lower target resolution"
	case KindQueueTimeout:
		return "the queue is busy, try again in a moment"
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrInputTooLarge     = errors.New("input exceeds maximum upload size")
	ErrAttemptsExhausted = errors.New("fallback attempts exhausted")
)
