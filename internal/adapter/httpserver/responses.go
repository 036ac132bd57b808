// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the match-explanation endpoint plus health and readiness probes,
// and maps the domain error taxonomy onto HTTP status codes in one place.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vettly/match-explainer/internal/domain"
)

const msgGenerationFailed = "Failed to generate explanation"

type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrMissingCredentials),
		errors.Is(err, domain.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {error, code, details?}. Client errors carry the
// user-facing message; server errors use a generic message and report
// {reason, body?} in details, body being the provider's truncated error text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	env := errorEnvelope{Error: err.Error(), Code: domain.Code(err)}
	var de *domain.Error
	if errors.As(err, &de) {
		env.Error = de.Message
		env.Details = de.Details
	}
	if status >= http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed",
			slog.String("code", env.Code),
			slog.Any("error", err),
			slog.Any("details", env.Details))
		env.Details = serverErrorDetails(err, env)
		env.Error = msgGenerationFailed
	}
	writeJSON(w, status, env)
}

func serverErrorDetails(err error, env errorEnvelope) map[string]any {
	text, _ := env.Details.(string)
	reason := env.Error
	if reason == msgGenerationFailed && text != "" {
		reason = text
	}
	out := map[string]any{"reason": reason}
	if errors.Is(err, domain.ErrUpstream) && text != "" {
		out["body"] = text
	}
	return out
}
