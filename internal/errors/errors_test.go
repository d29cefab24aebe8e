package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderErrorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      *RenderError
		expected string
	}{
		{
			name:     "code and message",
			err:      NewValidationError(ErrCodeNoTemplates, "no templates declared"),
			expected: "[ERR_NO_TEMPLATES] no templates declared",
		},
		{
			name:     "with tag",
			err:      ErrResourceNotFound("provider"),
			expected: "[ERR_RESOURCE_NOT_FOUND] provider: resource tag [provider] is not found",
		},
		{
			name:     "with cause",
			err:      WrapStore(fmt.Errorf("boom"), "list files"),
			expected: "[ERR_STORE_FAILED] list files: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestRenderErrorIs(t *testing.T) {
	err := fmt.Errorf("render: %w", ErrGroupNotFound("select"))

	assert.True(t, errors.Is(err, ErrGroupNotFound("other")))
	assert.False(t, errors.Is(err, ErrResourceNotFound("select")))
}

func TestRenderErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := WrapStore(cause, "download")

	assert.Same(t, cause, errors.Unwrap(err))
	assert.Equal(t, ErrorTypeNetwork, err.Type)
}

func TestWithContext(t *testing.T) {
	err := ErrLocalFileNotFound("local", "nodes.json")

	require.NotNil(t, err.Context)
	assert.Equal(t, "nodes.json", err.Context["local_path"])
	assert.Equal(t, "local", err.Tag)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, ErrCodeInternalError, "nothing"))

	inner := ErrEmptyRemoteURL("remote")
	wrapped := Wrap(inner, ErrorTypeConfig, ErrCodeManifestInvalid, "load resource")

	assert.Equal(t, "remote", wrapped.Tag)
	assert.Equal(t, ErrCodeManifestInvalid, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrEmptyRemoteURL("")))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, "", CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrCodeInvalidPattern, CodeOf(fmt.Errorf("x: %w", ErrInvalidPattern("(?s)a", nil))))
}

func TestIsNotFound(t *testing.T) {
	testCases := []struct {
		err      error
		expected bool
	}{
		{ErrResourceNotFound("a"), true},
		{ErrTemplateNotFound("a"), true},
		{ErrGroupNotFound("a"), true},
		{ErrLocalFileNotFound("a", "b"), true},
		{ErrEmptyLocalPath("a"), false},
		{fmt.Errorf("plain"), false},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.err), func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNotFound(tc.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.True(t, IsCancelled(FromContext(context.Canceled)))
	assert.True(t, IsCancelled(FromContext(fmt.Errorf("get: %w", context.DeadlineExceeded))))
	assert.Nil(t, FromContext(fmt.Errorf("other")))
	assert.False(t, IsCancelled(fmt.Errorf("other")))
}
