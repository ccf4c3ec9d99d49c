package domain

import "errors"

var (
	// ErrSessionUnavailable is returned when the server rejects starting an attempt.
	ErrSessionUnavailable = errors.New("quiz not found or cannot be loaded")
	// ErrTimestampUnparseable marks server timing that could not be turned into an expiry.
	ErrTimestampUnparseable = errors.New("timestamp unparseable")
	// ErrConfirmFailed marks a failed per-question acknowledgment; it is logged, never surfaced.
	ErrConfirmFailed = errors.New("answer confirmation failed")
	// ErrSubmitFailed is returned when the final submission did not reach the server.
	ErrSubmitFailed = errors.New("failed to submit quiz")
	// ErrStorageUnavailable marks a local persistence failure; the session continues in memory.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrNotActive is returned when an operation needs an active attempt.
	ErrNotActive = errors.New("quiz session is not active")
	// ErrSubmitInFlight is returned for a submit issued while another one is pending.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrDeclined is returned when the user answers no to a confirmation gate.
	ErrDeclined = errors.New("declined by user")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is invalid or not the displayed one.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an answer ID is not offered by the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAttemptClosed is returned by the reference API when the attempt was already submitted.
	ErrAttemptClosed = errors.New("quiz attempt already completed")
	// ErrAttemptNotFound is returned by the reference API for actions before start.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
)
