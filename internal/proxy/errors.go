package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

const (
	CategoryUpstreamTimeout     = "upstream_timeout"
	CategoryUpstreamUnavailable = "upstream_unavailable"
	CategoryClientCancelled     = "client_cancelled"
)

// StatusClientClosedRequest is written when the client went away before the
// upstream answered. Nobody reads it, but the interceptor sees it.
const StatusClientClosedRequest = 499

type ErrorBody struct {
	Status        int    `json:"status"`
	RequestID     string `json:"request_id,omitempty"`
	ErrorCategory string `json:"error_category"`
	Message       string `json:"message"`
}

func WriteError(w http.ResponseWriter, requestID string, status int, category string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Status:        status,
		RequestID:     requestID,
		ErrorCategory: category,
		Message:       message,
	})
}

func classify(r *http.Request, err error) (int, string) {
	switch {
	case r.Context().Err() != nil && errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, CategoryClientCancelled
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return http.StatusGatewayTimeout, CategoryUpstreamTimeout
	}
	return http.StatusBadGateway, CategoryUpstreamUnavailable
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
