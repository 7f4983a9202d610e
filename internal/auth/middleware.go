package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// AuthError represents an error response body.
type AuthError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	CorrID    string `json:"corrId"`
	Retryable bool   `json:"retryable"`
}

type corrIDContextKey struct{}

// CorrelationHeader carries the request correlation id.
const CorrelationHeader = "X-Correlation-Id"

// Correlation ensures every request carries a correlation id, echoing it
// on the response and storing it in the request context.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get(CorrelationHeader)
		if corrID == "" {
			corrID = generateCorrID()
		}
		w.Header().Set(CorrelationHeader, corrID)
		ctx := context.WithValue(r.Context(), corrIDContextKey{}, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrIDFromContext returns the correlation id stored by Correlation.
func CorrIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(corrIDContextKey{}).(string)
	return v
}

// RequestCorrID returns the request's correlation id from its context or
// header.
func RequestCorrID(r *http.Request) string {
	if id := CorrIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(CorrelationHeader)
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, corrID string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set(CorrelationHeader, corrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, message, corrID string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set(CorrelationHeader, corrID)
	}
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(AuthError{
		Code:      code,
		Message:   message,
		CorrID:    corrID,
		Retryable: retryable,
	})
}

// ClientIP returns the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func generateCorrID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
