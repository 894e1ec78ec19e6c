package core

// error_messages.go maps technical errors to messages safe to show users.
//
// Every message carries a code that users can quote when asking for help.
// Typed errors from this package are matched first; anything else falls
// back to case-insensitive substring patterns on the error text.
//
// # Codes
//
//	CFG001   - Invalid layout: title, validation or first line is wrong
//	NF001    - Table not found in the spreadsheet
//	HOOK001  - A validator or formatter hook failed
//	TR000    - The spreadsheet service returned an error
//	TR001    - Authorization failed or the token expired (401, invalid_grant)
//	TR002    - No access to the spreadsheet (403, permission)
//	TR003    - Spreadsheet service quota exhausted (429, quota)
//	FETCH001 - Too many fetches in progress
//	FETCH002 - Request was cancelled
//	FETCH003 - Request timed out
//	RATE001  - Too many requests to this service
//	ERR000   - Anything else; check the logs for the technical error
//
// Patterns are checked in order and the first match wins, so specific
// patterns must precede general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is user-facing error information.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var (
	msgConfiguration = UserMessage{
		Message: "The table layout is invalid",
		Action:  "Check title_line, validation_line and first_line; data must start after the titles",
		Code:    "CFG001",
	}
	msgNotFound = UserMessage{
		Message: "Table not found",
		Action:  "Verify the table name; names are case-sensitive",
		Code:    "NF001",
	}
	msgHook = UserMessage{
		Message: "A custom validation or formatting step failed",
		Action:  "Review the reported column and line in the source table",
		Code:    "HOOK001",
	}
	msgTransport = UserMessage{
		Message: "The spreadsheet service returned an error",
		Action:  "Please try again in a few moments",
		Code:    "TR000",
	}
	msgTooManyFetches = UserMessage{
		Message: "System is busy with other fetches",
		Action:  "Please wait a moment and try again",
		Code:    "FETCH001",
	}
	msgCanceled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "FETCH002",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Request a smaller range or try again later",
		Code:    "FETCH003",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Authorization
	{pattern: "invalid_grant", msg: UserMessage{
		Message: "Authorization expired or was revoked",
		Action:  "Run the authorization flow again to get a new token",
		Code:    "TR001",
	}},
	{pattern: "unauthenticated", msg: UserMessage{
		Message: "Authorization failed",
		Action:  "Check the credentials and token files",
		Code:    "TR001",
	}},
	{pattern: "401", msg: UserMessage{
		Message: "Authorization failed",
		Action:  "Check the credentials and token files",
		Code:    "TR001",
	}},

	// Access
	{pattern: "permission", msg: UserMessage{
		Message: "No access to this spreadsheet",
		Action:  "Share the spreadsheet with the authorized account",
		Code:    "TR002",
	}},
	{pattern: "403", msg: UserMessage{
		Message: "No access to this spreadsheet",
		Action:  "Share the spreadsheet with the authorized account",
		Code:    "TR002",
	}},

	// Quota
	{pattern: "quota", msg: UserMessage{
		Message: "Spreadsheet service quota exhausted",
		Action:  "Wait a minute before fetching again",
		Code:    "TR003",
	}},
	{pattern: "429", msg: UserMessage{
		Message: "Spreadsheet service quota exhausted",
		Action:  "Wait a minute before fetching again",
		Code:    "TR003",
	}},

	{pattern: "too many concurrent fetches", msg: msgTooManyFetches},
	{pattern: "context canceled", msg: msgCanceled},
	{pattern: "context deadline exceeded", msg: msgDeadline},
	{pattern: "timeout", msg: msgDeadline},

	{pattern: "rate limit", msg: UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
	{pattern: "table not found", msg: msgNotFound},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a user-facing message. A nil error yields the
// zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	switch {
	case IsConfiguration(err):
		return msgConfiguration
	case IsNotFound(err):
		return msgNotFound
	case errors.Is(err, ErrTooManyFetches):
		return msgTooManyFetches
	case errors.Is(err, context.Canceled):
		return msgCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return msgDeadline
	}

	var he *HookError
	if errors.As(err, &he) {
		return msgHook
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if IsTransport(err) {
		return msgTransport
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: X). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
