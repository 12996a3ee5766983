/*
errors.go - Centralized error types for the pacing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages above generic wrap these with context via fmt.Errorf("...: %w").

ERROR CATEGORIES:
  1. Calendar errors - Malformed periods and rules
  2. Backend errors - Non-2xx responses from the goal/KPI API
  3. Validation errors - Missing fields on writes
  4. Load errors - Superseded dashboard loads

USAGE:
  Read paths never surface these to the caller (they degrade to cached or
  empty values). Write paths return them:

    if generic.IsNotFound(err) {
        // treat as "no data yet"
    }

SEE ALSO:
  - client/client.go: Produces APIError
  - goals/msdata.go: Produces FieldError on half-filled MS period settings
  - dashboard/controller.go: Returns ErrStaleLoad
*/
package generic

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start)
	// or cannot be resolved from its id.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidRule is returned when an evaluation rule cannot be parsed or
	// carries out-of-range options.
	ErrInvalidRule = errors.New("invalid evaluation rule")

	// ErrNotFound is returned when the backend has no data for a resource.
	// Read paths treat it as an empty result.
	ErrNotFound = errors.New("not found")

	// ErrAdvisorRequired is returned when a personal operation has no advisor.
	ErrAdvisorRequired = errors.New("advisor user id required")

	// ErrMissingField is returned when a write payload lacks a required field.
	ErrMissingField = errors.New("missing required field")

	// ErrStaleLoad is returned by a load superseded by a newer one.
	ErrStaleLoad = errors.New("load superseded by a newer request")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("api %s: %d %s", e.Path, e.Status, msg)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// FieldError names the fields a write rejected. Fields holds display labels.
type FieldError struct {
	Fields []string
	Reason string
}

func (e *FieldError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "開始日・終了日の両方を入力してください"
	}
	return fmt.Sprintf("%s：%s", reason, strings.Join(e.Fields, "、"))
}

func (e *FieldError) Unwrap() error {
	return ErrMissingField
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true for server-side failures. Nothing in this module
// retries; callers use it to word log messages.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return true
	}
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrAdvisorRequired)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
