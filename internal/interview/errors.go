package interview

import "errors"

var (
	// ErrSessionNotFound is returned when the session id is unknown to the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidState is returned when a session cannot accept the requested operation,
	// most commonly resuming an interview that already produced its feedback.
	ErrInvalidState = errors.New("invalid session state")
	// ErrInvalidInput is returned for blank subjects or answers.
	ErrInvalidInput = errors.New("invalid input")
)
