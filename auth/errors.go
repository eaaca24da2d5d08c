package auth

import "errors"

// Signup errors
var (
	ErrWeakPassword       = errors.New("weak-password")
	ErrPasswordTooLong    = errors.New("password-too-long")
	ErrInvalidEmailFormat = errors.New("invalid-email-format")
	ErrMissingName        = errors.New("missing-name")
)

// Login errors
var (
	ErrIncorrectPassword = errors.New("incorrect-password")
)
