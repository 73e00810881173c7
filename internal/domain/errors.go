package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrTerminalState     = errors.New("job already in terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrBrainNotFound     = errors.New("brain not found")
)
