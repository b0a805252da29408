package collab

import "errors"

// Collaborator errors
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrValidation    = errors.New("validation failed")
	ErrUnavailable   = errors.New("collaborator unavailable")
)
