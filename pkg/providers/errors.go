package providers

import (
	"errors"
	"fmt"
	"strings"
)

// Stage classifies where in the provider lifecycle an error occurred.
type Stage string

const (
	StageExchange Stage = "exchange"
	StageRefresh  Stage = "refresh"
	StagePull     Stage = "pull"
	StageRevoke   Stage = "revoke"
)

// Error is a typed provider failure carrying the lifecycle stage, the
// upstream HTTP status when applicable, and a sanitized upstream message.
type Error struct {
	Stage      Stage
	ProviderID string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{e.ProviderID, string(e.Stage)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether a later scheduled run may succeed.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError builds a typed provider error. Status codes 429 and >=500 are
// considered retryable on the next scheduled run.
func NewError(stage Stage, providerID string, statusCode int, message string, cause error) *Error {
	return &Error{
		Stage:      stage,
		ProviderID: providerID,
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == 429 || statusCode >= 500,
		Cause:      cause,
	}
}

// StageOf extracts the stage from a provider error, or "" for other errors.
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}
