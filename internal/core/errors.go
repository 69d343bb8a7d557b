// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Competition lifecycle errors
	ErrCompetitionStarted  = &Error{Code: "COMPETITION_STARTED", Message: "competition already started"}
	ErrNotStarted          = &Error{Code: "NOT_STARTED", Message: "competition not started"}
	ErrCompetitionFinished = &Error{Code: "COMPETITION_FINISHED", Message: "competition already finished"}
	ErrTooFewCompetitors   = &Error{Code: "TOO_FEW_COMPETITORS", Message: "at least two competitors required"}
	ErrCompetitorExists    = &Error{Code: "COMPETITOR_EXISTS", Message: "competitor already registered"}

	// Lookup errors
	ErrCompetitionNotFound = &Error{Code: "COMPETITION_NOT_FOUND", Message: "competition not found"}
	ErrCompetitorNotFound  = &Error{Code: "COMPETITOR_NOT_FOUND", Message: "competitor not found"}
	ErrStrategyNotFound    = &Error{Code: "STRATEGY_NOT_FOUND", Message: "strategy not found"}
	ErrJobNotFound         = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrNoData              = &Error{Code: "NO_DATA", Message: "no data available"}

	// Strategy errors
	ErrStrategyFailed   = &Error{Code: "STRATEGY_FAILED", Message: "strategy analysis failed"}
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for analysis"}

	// Trading errors
	ErrOrderRejected = &Error{Code: "ORDER_REJECTED", Message: "order rejected"}
	ErrFeedFailed    = &Error{Code: "FEED_FAILED", Message: "market data feed failed"}

	// Evolution errors
	ErrEmptyPopulation = &Error{Code: "EMPTY_POPULATION", Message: "population is empty"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// API errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
