package domain

import "errors"

var (
	UnexpectedDatabaseError = errors.New("unexpected-database-error")
	ErrUserNotFound         = errors.New("user-not-found")
	ErrDuplicateEmail       = errors.New("duplicate-email")
	ErrRoomNotFound         = errors.New("room-not-found")
	ErrPollNotFound         = errors.New("poll-not-found")
	ErrQuestionNotFound     = errors.New("question-not-found")
	ErrOptionNotFound       = errors.New("option-not-found")
)

var (
	UnexpectedPasswordHashComparisonError = errors.New("unexpected-password-hash-comparison-error")
	UnexpectedTokenGenerationError        = errors.New("unexpected-token-generation-error")
	UnexpectedTokenVerificationError      = errors.New("unexpected-token-verification-error")
	ErrInvalidSigningAlg                  = errors.New("invalid-signing-alg")
	ErrExpiredToken                       = errors.New("expired-token")
	ErrInvalidTokenSignature              = errors.New("invalid-token-signature")
	ErrCorruptedToken                     = errors.New("corrupted-token")
)
