package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeResourceNotFound  = "ERR_RESOURCE_NOT_FOUND"
	ErrCodeTemplateNotFound  = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeGroupNotFound     = "ERR_GROUP_NOT_FOUND"
	ErrCodeEmptyLocalPath    = "ERR_EMPTY_LOCAL_PATH"
	ErrCodeEmptyRemoteURL    = "ERR_EMPTY_REMOTE_URL"
	ErrCodeLocalFileNotFound = "ERR_LOCAL_FILE_NOT_FOUND"
	ErrCodeInvalidPattern    = "ERR_INVALID_PATTERN"
	ErrCodeInvalidVersion    = "ERR_INVALID_VERSION"
	ErrCodeNoTemplates       = "ERR_NO_TEMPLATES"
	ErrCodeManifestInvalid   = "ERR_MANIFEST_INVALID"
	ErrCodeCancelled         = "ERR_CANCELLED"
	ErrCodeStoreFailed       = "ERR_STORE_FAILED"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// RenderError is a structured error type with context.
type RenderError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Tag is the resource, template or group tag the error is about.
	Tag string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Tag != "" {
		parts = append(parts, e.Tag+":")
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *RenderError) Is(target error) bool {
	var t *RenderError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *RenderError) WithContext(key string, value interface{}) *RenderError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithTag records the tag the error refers to.
func (e *RenderError) WithTag(tag string) *RenderError {
	e.Tag = tag

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *RenderError {
	return &RenderError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *RenderError {
	return &RenderError{Type: ErrorTypeConfig, Code: code, Message: message, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *RenderError {
	return &RenderError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// Helper functions for common errors

// ErrResourceNotFound reports an append directive naming an undeclared or
// unloaded resource.
func ErrResourceNotFound(tag string) *RenderError {
	return NewValidationError(ErrCodeResourceNotFound, fmt.Sprintf("resource tag [%s] is not found", tag)).WithTag(tag)
}

// ErrTemplateNotFound reports a template rule whose target is not declared.
func ErrTemplateNotFound(tag string) *RenderError {
	return NewValidationError(ErrCodeTemplateNotFound, fmt.Sprintf("matched template tag [%s] is not found", tag)).WithTag(tag)
}

// ErrGroupNotFound reports an append_groups key with no matching outbound.
func ErrGroupNotFound(tag string) *RenderError {
	return NewValidationError(ErrCodeGroupNotFound, fmt.Sprintf("routable group tag [%s] is not found", tag)).WithTag(tag)
}

// ErrEmptyLocalPath reports a local source without a path.
func ErrEmptyLocalPath(tag string) *RenderError {
	return NewConfigError(ErrCodeEmptyLocalPath, "empty local path", nil).WithTag(tag)
}

// ErrEmptyRemoteURL reports a remote source without a URL.
func ErrEmptyRemoteURL(tag string) *RenderError {
	return NewConfigError(ErrCodeEmptyRemoteURL, "empty remote URL", nil).WithTag(tag)
}

// ErrLocalFileNotFound reports a local path missing from the file listing.
func ErrLocalFileNotFound(tag, path string) *RenderError {
	return NewConfigError(ErrCodeLocalFileNotFound, fmt.Sprintf("can't find URL for local file [%s]", path), nil).
		WithTag(tag).
		WithContext("local_path", path)
}

// ErrInvalidPattern reports a filter pattern that does not compile.
func ErrInvalidPattern(pattern string, cause error) *RenderError {
	return NewConfigError(ErrCodeInvalidPattern, fmt.Sprintf("invalid pattern %q", pattern), cause).
		WithContext("pattern", pattern)
}

// ErrCancelled reports a render aborted by its caller.
func ErrCancelled(cause error) *RenderError {
	return &RenderError{Type: ErrorTypeCancelled, Code: ErrCodeCancelled, Message: "render cancelled", Cause: cause}
}

// Error inspection utilities

// CodeOf returns the code of the first RenderError in err's chain.
func CodeOf(err error) string {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Code
	}

	return ""
}

// IsNotFound reports whether err is one of the "tag not found" errors.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeResourceNotFound, ErrCodeTemplateNotFound, ErrCodeGroupNotFound, ErrCodeLocalFileNotFound:
		return true
	}

	return false
}

// IsCancelled reports whether err stems from caller cancellation.
func IsCancelled(err error) bool {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Type == ErrorTypeCancelled
	}

	return false
}
