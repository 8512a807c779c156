package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// # Reconciliation Errors (REC001-REC099)
//
//	REC001 - Malformed input: the CSV could not be decoded
//	REC002 - Fetch failed: the authoritative records could not be read
//	REC003 - Fetch timeout: reading the authoritative records timed out
//	REC004 - Submission failed: the batch of edits was rejected as a whole
//	REC005 - Submission timeout: the batch of edits timed out
//	REC006 - Unknown dataset: the dataset key is not registered
//	REC007 - Record not found: an edited record no longer exists
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: too many runs in progress
//	RUN002 - Request cancelled
//	RUN003 - Request timeout
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Invalid value for column type     Patterns: "invalid input syntax"
//	DB002 - Value too long                    Patterns: "value too long"
//	DB003 - Constraint violation              Patterns: "violates check constraint", "violates not-null"
//	DB004 - Connection refused                Patterns: "connection refused"
//	DB005 - Connection reset                  Patterns: "connection reset"
//	DB006 - Timeout                           Patterns: "timeout"
//	DB007 - Deadlock                          Patterns: "deadlock"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large       Patterns: "file too large", "request body too large"
//	FILE002 - Invalid CSV          Patterns: "invalid csv"
//	FILE003 - Encoding error       Patterns: "encoding error"
//	FILE004 - No file              Patterns: "no file provided"
//	FILE005 - Empty file           Patterns: "empty file"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error when users report ERR000.
//
// Typed errors are checked first with errors.Is/As. Remaining errors are
// matched case-insensitively against the pattern table, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

var (
	msgMalformed = UserMessage{
		Message: "The CSV file could not be read",
		Action:  "Check that every row has the same number of columns as the header and that the identifier column is present",
		Code:    "REC001",
	}
	msgFetchFailed = UserMessage{
		Message: "Unable to read the current records",
		Action:  "Please try again in a few moments",
		Code:    "REC002",
	}
	msgFetchTimeout = UserMessage{
		Message: "Reading the current records timed out",
		Action:  "Please try again later",
		Code:    "REC003",
	}
	msgSubmitFailed = UserMessage{
		Message: "The updates could not be submitted",
		Action:  "No changes were applied. Please try again",
		Code:    "REC004",
	}
	msgSubmitTimeout = UserMessage{
		Message: "Submitting the updates timed out",
		Action:  "Some updates may have been applied. Run the reconciliation again to check",
		Code:    "REC005",
	}
	msgUnknownDataset = UserMessage{
		Message: "Unknown dataset",
		Action:  "This dataset is not configured",
		Code:    "REC006",
	}
	msgRecordNotFound = UserMessage{
		Message: "The record no longer exists",
		Action:  "Refresh and review the remaining records",
		Code:    "REC007",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other runs",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "RUN002",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "RUN003",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "invalid input syntax",
		msg: UserMessage{
			Message: "A value does not match the column type",
			Action:  "Check numbers and dates in the edited columns",
			Code:    "DB001",
		},
	},
	{
		pattern: "value too long",
		msg: UserMessage{
			Message: "A value is longer than the column allows",
			Action:  "Shorten the value and try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates check constraint",
		msg: UserMessage{
			Message: "A value is not allowed for this field",
			Action:  "Check the allowed values for this field",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates not-null",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fill in the required field and try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg:     msgMalformed,
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid form",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request body and try again",
			Code:    "FILE006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	_, err := svc.Reconcile(ctx, "change_requests", name, file, core.RunOptions{})
//	msg := core.MapError(err)
//	// for a bad file: msg.Code == "REC001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		malformed *MalformedInputError
		fetchErr  *FetchError
		submitErr *SubmissionError
	)
	switch {
	case errors.As(err, &malformed):
		if malformed.Reason == "empty file" {
			return matchPattern("empty file")
		}
		return msgMalformed
	case errors.As(err, &fetchErr):
		if fetchErr.Timeout {
			return msgFetchTimeout
		}
		return msgFetchFailed
	case errors.As(err, &submitErr):
		if submitErr.Timeout {
			return msgSubmitTimeout
		}
		return msgSubmitFailed
	case errors.Is(err, ErrUnknownDataset):
		return msgUnknownDataset
	case errors.Is(err, ErrRecordNotFound):
		return msgRecordNotFound
	case errors.Is(err, ErrTooManyRuns):
		return msgBusy
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}

	return matchPattern(err.Error())
}

func matchPattern(text string) UserMessage {
	errStr := strings.ToLower(text)
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
