package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"iot-forecast/internal/analytics"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", analytics.ErrInvalidInput, msg)
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", analytics.ErrUpstreamStore, err)
}

// classify HTTP статус и код ошибки
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, analytics.ErrInsufficientHistory):
		return http.StatusBadRequest, "insufficient_history"
	case errors.Is(err, analytics.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, analytics.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, analytics.ErrUpstreamStore):
		return http.StatusBadGateway, "upstream_store"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "code", code, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
