package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     domain.ErrorCode `json:"error"`
	Message   string           `json:"message,omitempty"`
	Limit     *int64           `json:"limit,omitempty"`
	Remaining *int64           `json:"remaining,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Feature   string           `json:"feature,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
type VersionResponse struct {
	Version string `json:"version"`
}

var codeStatus = map[domain.ErrorCode]int{
	domain.CodeAuthRequired:      http.StatusUnauthorized,
	domain.CodeForbidden:         http.StatusForbidden,
	domain.CodeQuotaExceeded:     http.StatusTooManyRequests,
	domain.CodeValidation:        http.StatusBadRequest,
	domain.CodeFeatureDisabled:   http.StatusServiceUnavailable,
	domain.CodeExternalAPI:       http.StatusBadGateway,
	domain.CodeDriveNotConnected: http.StatusConflict,
	domain.CodeConflict:          http.StatusConflict,
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeInternal:          http.StatusInternalServerError,
}

// StatusFor returns the HTTP status of an error code
func StatusFor(code domain.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to its stable code. Internal errors are logged and
// their message is withheld.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	body := ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		RequestID: RequestIDFrom(r.Context()),
	}

	switch code {
	case domain.CodeInternal:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", body.RequestID,
			"error", err)
		body.Message = "Internal server error."
	case domain.CodeQuotaExceeded:
		body.Message = "Quota exceeded."
		var qe *domain.QuotaError
		if errors.As(err, &qe) {
			body.Limit = &qe.Limit
			body.Remaining = &qe.Remaining
			body.Kind = string(qe.Kind)
		}
	case domain.CodeAuthRequired:
		body.Message = "Unauthorized."
	}

	writeJSON(w, StatusFor(code), body)
}

func writeCodeError(w http.ResponseWriter, r *http.Request, code domain.ErrorCode, message string) {
	writeJSON(w, StatusFor(code), ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: RequestIDFrom(r.Context()),
	})
}

func writeFeatureDisabled(w http.ResponseWriter, r *http.Request, feature string) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:     domain.CodeFeatureDisabled,
		Message:   `Feature "` + feature + `" is disabled.`,
		Feature:   feature,
		RequestID: RequestIDFrom(r.Context()),
	})
}
