package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"docchat/internal/rag"
	"docchat/internal/storage"
	"docchat/internal/util"
)

var errNotFound = errors.New("not found")

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, util.ErrUnsupportedFile),
		errors.Is(err, util.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DC-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{
			Code:    "DC-API-5020",
			Message: "Upstream provider unavailable. Retry shortly.",
		}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "DC-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"), strings.Contains(raw, "failed to connect"):
			return apiError{
				Code:    "DC-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "DC-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "DC-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DC-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "DC-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusConflict:
		code = "DC-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusRequestEntityTooLarge:
		code = "DC-API-4013"
		msg = "Upload is too large."
	case status == http.StatusTooManyRequests:
		code = "DC-API-4029"
		msg = "Too many requests. Slow down and retry."
	}

	// Validation messages are written by us and safe to echo.
	if status == http.StatusBadRequest && err != nil {
		switch {
		case errors.Is(err, rag.ErrInvalidInput):
			msg = strings.TrimPrefix(err.Error(), rag.ErrInvalidInput.Error()+": ")
		case errors.Is(err, util.ErrUnsupportedFile):
			msg = "Unsupported file type. Upload a PDF, TXT or MD file."
		case errors.Is(err, util.ErrEmptyFile):
			msg = "Uploaded file is empty."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "no file provided"):
			msg = "No file was provided."
		}
	}
	if status == http.StatusNotFound && errors.Is(err, rag.ErrSessionNotFound) {
		msg = "Session was not found."
	}

	return apiError{Code: code, Message: msg}
}
