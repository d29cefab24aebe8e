// Package store lists and downloads the files of a document store: a
// GitHub gist, or a directory on disk laid out like one.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ManifestFile is the name of the manifest inside a store
const ManifestFile = "config.json"

// Kinds
const (
	KindGist = "gist"
	KindDir  = "dir"
)

// File is one file of a store
type File struct {
	Filename string `json:"filename"`
	RawURL   string `json:"raw_url"`
	Size     int64  `json:"size,omitempty"`
}

// Listing maps file names to files
type Listing map[string]File

// Store is a document store
type Store interface {
	// Files lists the files of the store entry id. token is optional.
	Files(ctx context.Context, id, token string) (Listing, error)
	// Download returns the body behind a raw URL from a listing
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// ErrorType classifies store errors
type ErrorType int

const (
	// ErrFetchFailed indicates the store could not be reached or answered badly
	ErrFetchFailed ErrorType = iota
	// ErrNotFound indicates the entry or file does not exist
	ErrNotFound
	// ErrAuthFailed indicates the token was rejected
	ErrAuthFailed
	// ErrInvalidID indicates an id the store cannot address
	ErrInvalidID
)

// String returns the string representation of the error type
func (t ErrorType) String() string {
	switch t {
	case ErrFetchFailed:
		return "FetchFailed"
	case ErrNotFound:
		return "NotFound"
	case ErrAuthFailed:
		return "AuthFailed"
	case ErrInvalidID:
		return "InvalidID"
	default:
		return "Unknown"
	}
}

// Error is a store specific error
type Error struct {
	Type    ErrorType
	Store   string
	Target  string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s store [%s] %s: %s: %v", e.Store, e.Type, e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s store [%s] %s: %s", e.Store, e.Type, e.Target, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(typ ErrorType, store, target, message string, cause error) *Error {
	return &Error{Type: typ, Store: store, Target: target, Message: message, Cause: cause}
}

// TypeOf returns the type of the first store Error in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Type, true
	}
	return 0, false
}
