package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidTarget  = errors.New("invalid link target")
	ErrSelfReference  = errors.New("object cannot link to itself")
	ErrLengthMismatch = errors.New("target list and path list differ in length")
	ErrDetached       = errors.New("link detached")
	ErrUnsavedOwner   = errors.New("owner document not saved")
)
