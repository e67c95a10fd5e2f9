package domain

import "errors"

// Shared error taxonomy. Synchronous entry points surface these to the caller;
// event handlers only ever log them.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrForbidden             = errors.New("forbidden")
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidUnitConversion = errors.New("invalid unit conversion")
)
