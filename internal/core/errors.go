package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a fetch or submission that ran out of time.
	ErrTimeout = errors.New("timeout")

	// ErrUnknownDataset is returned for a dataset key that was never registered.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrMalformedInput matches every *MalformedInputError.
	ErrMalformedInput = errors.New("malformed input")

	// ErrRecordNotFound is the item error for an update or delete whose
	// identifier no longer exists in the store.
	ErrRecordNotFound = errors.New("record not found")
)

// MalformedInputError reports CSV that cannot be decoded. Line is 1-based
// and zero when the problem is not tied to a row.
type MalformedInputError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := "invalid csv"
	if e.Line > 0 {
		msg = fmt.Sprintf("%s: line %d", msg, e.Line)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// FetchError reports that the authoritative snapshot could not be read.
type FetchError struct {
	Dataset string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch %s: timeout: %v", e.Dataset, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTimeout && e.Timeout }

// SubmissionError reports that the batch request as a whole failed.
// No item outcomes are available when this is returned.
type SubmissionError struct {
	Dataset string
	Items   int
	Timeout bool
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("submit %d edits to %s: timeout: %v", e.Items, e.Dataset, e.Err)
	}
	return fmt.Sprintf("submit %d edits to %s: %v", e.Items, e.Dataset, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrTimeout && e.Timeout }

// ItemApplyError is the store's rejection of one item of a batch.
type ItemApplyError struct {
	Index int
	ID    Value
	Err   error
}

func (e *ItemApplyError) Error() string {
	return fmt.Sprintf("item %d (id %s): %v", e.Index, e.ID.String(), e.Err)
}

func (e *ItemApplyError) Unwrap() error { return e.Err }

// MarshalJSON renders the failure as {"index", "id", "error"}.
func (e ItemApplyError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Index int    `json:"index"`
		ID    Value  `json:"id"`
		Error string `json:"error"`
	}{e.Index, e.ID, msg})
}
