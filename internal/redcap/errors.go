package redcap

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when no record matches the identifier
	ErrRecordNotFound = errors.New("record not found")
	// ErrMultipleRecords is returned when the identifier is not unique
	ErrMultipleRecords = errors.New("multiple records found")
	// ErrInvalidIdentifier is returned for values that cannot be placed in filter logic
	ErrInvalidIdentifier = errors.New("invalid record identifier")
)

// APIError is an error reported by the REDCap API itself
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("REDCap API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("REDCap API error: %s", e.Message)
}
