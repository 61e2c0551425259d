// Package search runs a business search: validate, gate on quota, consult the
// result cache, geocode, fetch nearby places, rank by distance, persist, respond.
package search

import (
	"fmt"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
)

// Denial reasons attached to quota gate errors.
const (
	ReasonBanned    = "banned"
	ReasonExhausted = "exhausted"
)

// Error is a classified search failure. Message is safe to show the caller;
// Err is the internal cause and is only ever logged.
type Error struct {
	Code    web.Code
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidArgument(msg string) *Error {
	return &Error{Code: web.CodeInvalidArgument, Message: msg}
}

func internal(err error) *Error {
	return &Error{
		Code:    web.CodeInternal,
		Message: "An error occurred while searching for businesses.",
		Err:     err,
	}
}
