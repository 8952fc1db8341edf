package transform

import "errors"

// Sentinel errors for the transform pipeline.
var (
	// ErrTransform wraps any failure raised while casting or mapping a row.
	ErrTransform = errors.New("transform failed")

	ErrInvalidSpec   = errors.New("invalid transform spec")
	ErrEmptyName     = errors.New("type name is empty")
	ErrAlreadyExists = errors.New("type already registered")
	ErrTypeNotFound  = errors.New("type not found")
)
