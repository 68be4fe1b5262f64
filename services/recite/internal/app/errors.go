package app

import "errors"

var (
	// ErrValidation marks malformed input. Wrapped errors carry the detail
	// that is safe to show to clients.
	ErrValidation = errors.New("invalid request")

	// ErrAuthRequired is returned when an operation needs a caller identity
	// and none was supplied.
	ErrAuthRequired = errors.New("user identity required")

	ErrUserNotFound    = errors.New("user not found")
	ErrChapterNotFound = errors.New("chapter not found")
)
