package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

type contextKey string

const callerIDKey contextKey = "callerID"

// CallerIDFromContext retrieves the calling service's identity (the
// X-Caller-ID header value) from the request context, set by InternalAuth.
func CallerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callerIDKey).(string)
	return id
}

// WithCallerID returns a new context with the given caller ID set. Useful
// for testing handlers that depend on InternalAuth having already run.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// InternalAuth returns middleware enforcing a shared-secret header on every
// request. §1 places authentication/authorization out of scope: every
// caller of this service is a trusted internal process (the ingestion CLIs,
// the orchestrator's own HTTP surface invoked by another internal service),
// not an end-user session, so a single constant-time secret comparison
// replaces the donor's Firebase ID token verification entirely.
func InternalAuth(secret string) func(http.Handler) http.Handler {
	secretBytes := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secretBytes) == 0 {
				respondError(w, http.StatusUnauthorized, "internal auth not configured")
				return
			}
			token := r.Header.Get("X-Internal-Auth")
			if subtle.ConstantTimeCompare([]byte(token), secretBytes) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid internal auth token")
				return
			}
			ctx := context.WithValue(r.Context(), callerIDKey, r.Header.Get("X-Caller-ID"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
