package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := CallerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"callerId": id})
	})
}

func TestInternalAuth_MissingToken(t *testing.T) {
	handler := InternalAuth("s3cr3t")(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false")
	}
}

func TestInternalAuth_WrongToken(t *testing.T) {
	handler := InternalAuth("s3cr3t")(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Internal-Auth", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestInternalAuth_ValidToken(t *testing.T) {
	handler := InternalAuth("s3cr3t")(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Internal-Auth", "s3cr3t")
	req.Header.Set("X-Caller-ID", "jobs-cli")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["callerId"] != "jobs-cli" {
		t.Errorf("callerId = %q, want %q", body["callerId"], "jobs-cli")
	}
}

func TestInternalAuth_NotConfigured(t *testing.T) {
	handler := InternalAuth("")(newTestHandler())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Internal-Auth", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCallerIDFromContext_Empty(t *testing.T) {
	id := CallerIDFromContext(context.Background())
	if id != "" {
		t.Errorf("callerId = %q, want empty", id)
	}
}
