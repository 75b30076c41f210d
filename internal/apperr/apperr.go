// Package apperr defines the error taxonomy shared by capture, transcription
// and document generation. Failures are converted to an *Error at the boundary
// where they occur so callers never see raw provider bodies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error class.
type Kind string

const (
	// KindPermissionDenied means device or stream access was refused.
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	// KindNoDeviceFound means no audio input device is available.
	KindNoDeviceFound Kind = "NO_DEVICE_FOUND"
	// KindAcquisitionFailed means the system-audio capture failed (telephone mode).
	KindAcquisitionFailed Kind = "ACQUISITION_FAILED"
	// KindPayloadTooLarge means the audio exceeds the transport ceiling.
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	// KindNoSpeechDetected means transcription returned no text.
	KindNoSpeechDetected Kind = "NO_SPEECH_DETECTED"
	// KindTranscriptionService is a remote speech-to-text failure.
	KindTranscriptionService Kind = "TRANSCRIPTION_SERVICE_ERROR"
	// KindGenerationService is a remote document generation failure.
	KindGenerationService Kind = "GENERATION_SERVICE_ERROR"
	// KindEmptyInput means document generation was asked to work on nothing.
	KindEmptyInput Kind = "EMPTY_INPUT"
	// KindUnauthorized means the provider rejected the credentials.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindInvalidInput means the request itself is malformed.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindConflict means the operation clashes with work in progress.
	KindConflict Kind = "CONFLICT"
	// KindNotFound means the requested record does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindInternal is anything unexpected.
	KindInternal Kind = "INTERNAL_ERROR"
)

var retryableKinds = map[Kind]bool{
	KindPermissionDenied:     true,
	KindRateLimited:          true,
	KindTranscriptionService: true,
	KindGenerationService:    true,
}

var statusByKind = map[Kind]int{
	KindPermissionDenied:     http.StatusForbidden,
	KindNoDeviceFound:        http.StatusNotFound,
	KindAcquisitionFailed:    http.StatusBadGateway,
	KindPayloadTooLarge:      http.StatusRequestEntityTooLarge,
	KindNoSpeechDetected:     http.StatusUnprocessableEntity,
	KindTranscriptionService: http.StatusBadGateway,
	KindGenerationService:    http.StatusBadGateway,
	KindEmptyInput:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindRateLimited:          http.StatusTooManyRequests,
	KindInvalidInput:         http.StatusBadRequest,
	KindConflict:             http.StatusConflict,
	KindNotFound:             http.StatusNotFound,
	KindInternal:             http.StatusInternalServerError,
}

// Error is the typed result every boundary converts failures into.
type Error struct {
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status the local API answers with for this error.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: retryableKinds[kind],
	}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return New(kind, message).WithCause(cause)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// Internalize converts any error into the taxonomy, keeping typed errors as they are.
func Internalize(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(KindInternal, "unexpected error", err)
}

// FromStatus maps a provider HTTP status to the taxonomy. serviceKind is the
// kind used for everything that is not a recognised status class.
func FromStatus(status int, serviceKind Kind, service string) *Error {
	var e *Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = Newf(KindUnauthorized, "%s rejected the API credentials", service)
	case status == http.StatusTooManyRequests:
		e = Newf(KindRateLimited, "%s is rate limiting requests, please wait a moment", service)
	case status == http.StatusRequestEntityTooLarge:
		e = Newf(KindPayloadTooLarge, "%s rejected the audio as too large", service)
	case status >= 500:
		e = Newf(serviceKind, "%s is temporarily unavailable (%d)", service, status)
	default:
		e = Newf(serviceKind, "%s request failed (%d)", service, status)
		e.Retryable = false
	}
	return e.WithDetail("status", status).WithDetail("service", service)
}

// Common constructors.

// PermissionDenied reports refused microphone or stream access.
func PermissionDenied(cause error) *Error {
	return Wrap(KindPermissionDenied, "microphone access was denied, grant permission and retry", cause)
}

// NoDeviceFound reports that no input device is present.
func NoDeviceFound() *Error {
	return New(KindNoDeviceFound, "no audio input device found")
}

// EmptyInput reports a generation request without source text.
func EmptyInput() *Error {
	return New(KindEmptyInput, "there is no text to generate a document from")
}

// NoSpeechDetected reports an empty transcription result.
func NoSpeechDetected() *Error {
	return New(KindNoSpeechDetected, "no speech detected, please check your microphone and retry")
}

// Conflict reports a clash with an operation already in progress.
func Conflict(reason string) *Error {
	return New(KindConflict, reason)
}

// NotFound reports a missing record.
func NotFound(what string) *Error {
	return Newf(KindNotFound, "%s not found", what)
}

// InvalidInput reports a malformed request field.
func InvalidInput(field, reason string) *Error {
	return Newf(KindInvalidInput, "invalid %s: %s", field, reason).WithDetail("field", field)
}
