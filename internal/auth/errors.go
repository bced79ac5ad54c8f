package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrPermissionDenied   = errors.New("auth: permission denied")
	ErrAlreadyInitialized = errors.New("auth: system already initialized")
)
