package errors

import (
	"context"
	"errors"
)

// Wrap wraps an error with additional context, creating a RenderError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *RenderError {
	if err == nil {
		return nil
	}

	// Keep the tag and context of an inner RenderError so the outer one still names the culprit
	var re *RenderError
	if errors.As(err, &re) {
		return &RenderError{
			Type:    errType,
			Code:    code,
			Message: message,
			Cause:   re,
			Context: re.Context,
			Tag:     re.Tag,
		}
	}

	return &RenderError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapStore wraps a document store failure
func WrapStore(err error, message string) *RenderError {
	return Wrap(err, ErrorTypeNetwork, ErrCodeStoreFailed, message)
}

// FromContext converts a context error into a cancellation error and
// returns nil for any other error
func FromContext(err error) *RenderError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled(err)
	}

	return nil
}
