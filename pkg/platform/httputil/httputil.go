// Package httputil writes JSON responses and maps domain error codes to HTTP statuses.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "idledger/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description,omitempty"`
	Fields           []string `json:"fields,omitempty"`
}

var statuses = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeValidation:         http.StatusBadRequest,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeProtocol:           http.StatusBadRequest,
	dErrors.CodeUnauthorized:       http.StatusForbidden,
	dErrors.CodeInvalidSignature:   http.StatusUnauthorized,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeClaimUnavailable:   http.StatusConflict,
	dErrors.CodeUnknownLink:        http.StatusNotFound,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeNotYetAvailable:    http.StatusNotFound,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeInternal:           http.StatusInternalServerError,
	dErrors.CodeInvariantViolation: http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statuses[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a coded error. Infrastructure failures carry no description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	if code.Category() != dErrors.CategoryInfrastructure {
		resp.ErrorDescription = dErrors.MessageOf(err)
		resp.Fields = dErrors.FieldsOf(err)
	}
	WriteJSON(w, StatusFor(code), resp)
}

// DecodeJSON decodes a bounded request body into v, writing a bad request on failure.
func DecodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		logger.InfoContext(ctx, "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		return false
	}
	return true
}
