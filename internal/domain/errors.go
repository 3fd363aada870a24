package domain

import (
	"fmt"
	"net/http"
)

// Kind classifies what went wrong, independent of where it surfaced.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimit    Kind = "rate_limit"
	KindOffline      Kind = "offline"
	KindInternal     Kind = "internal"
)

// Surface names the part of the system the error surfaced from.
type Surface string

const (
	SurfaceAPI      Surface = "api"
	SurfaceChat     Surface = "chat"
	SurfaceAuth     Surface = "auth"
	SurfaceVote     Surface = "vote"
	SurfaceHistory  Surface = "history"
	SurfaceDatabase Surface = "database"
)

// ChatError is the canonical caller-visible error: a (kind, surface) pair.
// Every failure crossing the system boundary must be one of these; raw
// internal errors never reach a client. The optional cause is for logs only.
type ChatError struct {
	Kind    Kind
	Surface Surface
	cause   error
}

// NewError creates a ChatError for the given (kind, surface) pair.
func NewError(kind Kind, surface Surface) *ChatError {
	return &ChatError{Kind: kind, Surface: surface}
}

// WrapError creates a ChatError that carries an internal cause.
// The cause is reachable via errors.Unwrap but never rendered to clients.
func WrapError(kind Kind, surface Surface, cause error) *ChatError {
	return &ChatError{Kind: kind, Surface: surface, cause: cause}
}

// Code renders the wire form of the pair, e.g. "forbidden:chat".
func (e *ChatError) Code() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.Surface)
}

// Error implements the error interface. Includes the cause for log output;
// use Message for the client-facing text.
func (e *ChatError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code(), e.cause)
	}
	return e.Code()
}

// Unwrap exposes the internal cause to errors.Is/errors.As chains.
func (e *ChatError) Unwrap() error {
	return e.cause
}

// Is matches two ChatErrors by (kind, surface), ignoring causes, so wrapped
// errors compare against registry sentinels with errors.Is.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Surface == t.Surface
}

// StatusCode maps the kind to an HTTP status. Unknown kinds fail closed
// to 500.
func (e *ChatError) StatusCode() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message template for this pair.
func (e *ChatError) Message() string {
	return MessageByCode(e.Code())
}

// fallbackMessage is returned for any pair not in the registry. Lookup must
// fail closed: an unregistered pair never leaks internal detail.
const fallbackMessage = "Something went wrong. Please try again later."

// messagesByCode is the closed registry of client-facing message templates.
var messagesByCode = map[string]string{
	"bad_request:api":     "The request couldn't be processed. Please check your input and try again.",
	"unauthorized:auth":   "You need to sign in before continuing.",
	"forbidden:auth":      "Your account does not have access to this feature.",
	"rate_limit:chat":     "You have exceeded your maximum number of messages for the day. Please try again later.",
	"not_found:chat":      "The requested chat was not found. Please check the chat ID and try again.",
	"forbidden:chat":      "This chat belongs to another user. Please check the chat ID and try again.",
	"unauthorized:chat":   "You need to sign in to view this chat. Please sign in and try again.",
	"offline:chat":        "We're having trouble sending your message. Please check your internet connection and try again.",
	"not_found:vote":      "The requested vote was not found. Please check the message ID and try again.",
	"forbidden:vote":      "Votes belong to the chat owner. You cannot vote on another user's chat.",
	"bad_request:history": "The history request is malformed. Please check the cursor and try again.",
	"internal:chat":       fallbackMessage,
	"internal:database":   fallbackMessage,
}

// MessageByCode looks up the message template for a "kind:surface" code.
func MessageByCode(code string) string {
	if msg, ok := messagesByCode[code]; ok {
		return msg
	}
	return fallbackMessage
}
