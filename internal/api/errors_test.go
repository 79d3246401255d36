package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON_200Struct(t *testing.T) {
	w := httptest.NewRecorder()
	data := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "test", Count: 42}

	WriteJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, ContentType)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["name"] != "test" {
		t.Errorf("name = %v, want %q", resp["name"], "test")
	}
	if resp["count"] != float64(42) {
		t.Errorf("count = %v, want %v", resp["count"], 42)
	}
}

func TestWriteError_400InvalidRequest(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "missing required field")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", resp.Error.Code, ErrCodeInvalidRequest)
	}
	if resp.Error.Message != "missing required field" {
		t.Errorf("message = %q, want %q", resp.Error.Message, "missing required field")
	}
	if resp.Error.Retryable {
		t.Error("client errors should not be retryable")
	}
}

func TestWriteError_503IsRetryable(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "store down")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Error.Retryable {
		t.Error("server errors should be retryable")
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req_test-123")

	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "bad input")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.RequestID != "req_test-123" {
		t.Errorf("request_id = %q, want %q", resp.Error.RequestID, "req_test-123")
	}
}
