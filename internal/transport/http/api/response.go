package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"paydesk/internal/domain/apperr"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

func Success(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Created(w http.ResponseWriter, data any, requestID string) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: requestID})
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message}, RequestID: requestID})
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &Error{Code: code, Message: message, Details: details}, RequestID: requestID})
}

// FailError maps a service error onto the envelope. Internal errors are
// logged with their cause and reported without it.
func FailError(w http.ResponseWriter, err error, requestID string) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("unclassified service error", "err", err, "requestId", requestID)
		Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
		return
	}

	var details any
	if appErr.Field != "" {
		details = map[string]any{"fields": []map[string]string{{"field": appErr.Field, "reason": appErr.Message}}}
	}
	switch appErr.Kind {
	case apperr.KindInvalidInput:
		FailWithDetails(w, http.StatusBadRequest, "validation_error", appErr.Error(), details, requestID)
	case apperr.KindNotFound:
		FailWithDetails(w, http.StatusNotFound, "not_found", appErr.Error(), details, requestID)
	case apperr.KindConflict:
		FailWithDetails(w, http.StatusConflict, "conflict", appErr.Error(), details, requestID)
	default:
		slog.Error("service failure", "err", err, "requestId", requestID)
		Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}
