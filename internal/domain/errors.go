package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrValidation           = errors.New("validation failed")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrInvalidTransition    = errors.New("invalid job transition")
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenAlreadyConsumed = errors.New("token already consumed")
	ErrProviderFailure      = errors.New("provider failure")
)

// Stable machine-readable codes surfaced to callers in error events and
// HTTP error bodies.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeAttachmentTooLarge    = "ATTACHMENT_TOO_LARGE"
	CodeAttachmentUnsupported = "ATTACHMENT_UNSUPPORTED"
	CodeAttachmentUnreadable  = "ATTACHMENT_UNREADABLE"
	CodeGenerationFailed      = "GENERATION_FAILED"
	CodeBackendUnavailable    = "BACKEND_UNAVAILABLE"
	CodeArtifactInvalid       = "ARTIFACT_INVALID"
	CodeGenerationCancelled   = "GENERATION_CANCELLED"
	CodeJobNotFound           = "JOB_NOT_FOUND"
	CodeTokenNotFound         = "TOKEN_NOT_FOUND"
	CodeTokenExpired          = "TOKEN_EXPIRED"
	CodeTokenAlreadyConsumed  = "TOKEN_ALREADY_CONSUMED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL"
)

// CodedError pairs a stable code and a display message with the
// underlying cause so errors.Is keeps working against the sentinels.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Code
	}
}

func (e *CodedError) Unwrap() error { return e.Err }

// NewCodedError wraps err with a code and message.
func NewCodedError(code, message string, err error) *CodedError {
	return &CodedError{Code: code, Message: message, Err: err}
}

// Invalid builds a validation error. Validation errors are reported before
// any job exists.
func Invalid(code, format string, args ...any) error {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// CodeOf extracts the stable code carried by err, falling back to a code
// derived from the well-known sentinels.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidationFailed
	case errors.Is(err, ErrTokenNotFound):
		return CodeTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrTokenAlreadyConsumed):
		return CodeTokenAlreadyConsumed
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeJobNotFound
	case errors.Is(err, ErrProviderFailure):
		return CodeBackendUnavailable
	case errors.Is(err, ErrGenerationFailed):
		return CodeGenerationFailed
	default:
		return CodeInternal
	}
}

// MessageOf returns the display message for err.
func MessageOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
