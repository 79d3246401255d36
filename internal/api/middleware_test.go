package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_Generates(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	reqID := rec.Header().Get(RequestIDHeader)
	if reqID == "" {
		t.Fatal("X-Request-Id should be generated when not provided")
	}
	if !strings.HasPrefix(reqID, "req_") {
		t.Errorf("X-Request-Id = %q, should start with 'req_'", reqID)
	}
}

func TestRequestID_Echoes(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "custom-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "custom-id-123" {
		t.Errorf("X-Request-Id = %q, want %q", got, "custom-id-123")
	}
}

func TestRequestLogger_PassesStatus(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestLimitBody_RejectsOversized(t *testing.T) {
	var readErr error
	handler := LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	body := strings.NewReader(strings.Repeat("x", MaxBodySize+1))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", body))

	if readErr == nil {
		t.Fatal("reading an oversized body should fail")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name    string
		key     string
		headers map[string]string
		want    int
	}{
		{"disabled", "", nil, http.StatusNoContent},
		{"missing", "secret", nil, http.StatusUnauthorized},
		{"wrong", "secret", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", "secret", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"bearer", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
		{"basic scheme", "secret", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			APIKeyAuth(tt.key)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
