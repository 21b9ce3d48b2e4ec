package currency

import (
	"errors"
	"fmt"
)

// Error codes for per-request failures. None of them is fatal: the hub turns
// each into a single error reply to the originating connection.
const (
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeUnknownMeme       = "UNKNOWN_MEME"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeMalformedMessage  = "MALFORMED_MESSAGE"
	CodeDuplicateSession  = "DUPLICATE_SESSION"
	CodeRateLimited       = "RATE_LIMITED"
)

// Error represents a recoverable, client-visible failure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, currency.ErrInsufficientFunds) regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrSessionNotFound   = &Error{Code: CodeSessionNotFound, Message: "Player session not found. Please reconnect."}
	ErrUnknownMeme       = &Error{Code: CodeUnknownMeme, Message: "Unknown meme."}
	ErrInvalidAmount     = &Error{Code: CodeInvalidAmount, Message: "Amount must be a positive whole number."}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Message: "Not enough hype."}
	ErrMalformedMessage  = &Error{Code: CodeMalformedMessage, Message: "Invalid message format."}
	ErrDuplicateSession  = &Error{Code: CodeDuplicateSession, Message: "Session already registered."}
	ErrRateLimited       = &Error{Code: CodeRateLimited, Message: "Too many messages, slow down."}
)

// Message extracts the client-facing text for err. Anything that is not a
// *Error is reported generically so internal details do not leak.
func Message(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "Internal server error."
}
