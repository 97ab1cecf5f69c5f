// Package middleware provides HTTP middleware shared by the service handlers.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/calebmur/docfind/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to each request. It honors an incoming
// X-Request-ID header so IDs propagate across services, generating one
// otherwise, and echoes the ID back in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored on the request context, or
// an empty string if none is set.
func GetRequestID(r *http.Request) string {
	return logger.RequestIDFromContext(r.Context())
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
