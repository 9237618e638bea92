// Package apperr defines the error kinds shared by the service and transport layers.
package apperr

import "errors"

var (
	ErrInvalidPath        = errors.New("invalid path")
	ErrInvalidExtension   = errors.New("invalid extension")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
