package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the principal may not act on the resource
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the bearer token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the bearer token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrQuotaExceeded is matched by every *QuotaError
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrExternalAPI is matched by every *ExternalAPIError
	ErrExternalAPI = errors.New("external api error")

	// ErrDriveNotConnected indicates no Drive credentials are stored for the owner
	ErrDriveNotConnected = errors.New("missing google drive connection")

	// ErrEmbeddingMismatch indicates the embedding response does not line up
	// with the requested batch. Vectors are never stored in that case.
	ErrEmbeddingMismatch = errors.New("embedding response size mismatch")

	// ErrMalformedArtifact indicates an artifact payload failed validation
	ErrMalformedArtifact = errors.New("malformed artifact payload")

	// ErrFeatureDisabled indicates a required collaborator is not configured
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrRunInProgress indicates a pipeline run already holds the owner lock
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

// QuotaError reports a daily usage limit that would be exceeded.
type QuotaError struct {
	Kind      UsageKind
	Limit     int64
	Remaining int64
}

// NewQuotaError creates a QuotaError, flooring remaining at zero.
func NewQuotaError(kind UsageKind, limit, remaining int64) *QuotaError {
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaError{Kind: kind, Limit: limit, Remaining: remaining}
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: limit %d, remaining %d", e.Kind, e.Limit, e.Remaining)
}

// Is reports whether target is ErrQuotaExceeded.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// ExternalAPIError reports a failed call to a third-party API after any
// retries were exhausted.
type ExternalAPIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Service, e.Message)
}

// Is reports whether target is ErrExternalAPI.
func (e *ExternalAPIError) Is(target error) bool {
	return target == ErrExternalAPI
}

// ErrorCode is the stable error identifier returned to API consumers.
type ErrorCode string

const (
	CodeAuthRequired      ErrorCode = "auth_required"
	CodeForbidden         ErrorCode = "forbidden"
	CodeQuotaExceeded     ErrorCode = "quota_exceeded"
	CodeValidation        ErrorCode = "validation_error"
	CodeFeatureDisabled   ErrorCode = "feature_disabled"
	CodeExternalAPI       ErrorCode = "external_api_error"
	CodeDriveNotConnected ErrorCode = "drive_not_connected"
	CodeConflict          ErrorCode = "conflict"
	CodeNotFound          ErrorCode = "not_found"
	CodeInternal          ErrorCode = "internal_error"
)

// CodeOf maps an error to its stable code. Unknown errors are internal.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid):
		return CodeAuthRequired
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrInvalidInput):
		return CodeValidation
	case errors.Is(err, ErrFeatureDisabled):
		return CodeFeatureDisabled
	case errors.Is(err, ErrExternalAPI):
		return CodeExternalAPI
	case errors.Is(err, ErrDriveNotConnected):
		return CodeDriveNotConnected
	case errors.Is(err, ErrRunInProgress):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
