package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Prism-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Prism-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.PrismReqID != "req_123" {
		t.Errorf("expected prism_request_id 'req_123', got %q", resp.Error.PrismReqID)
	}
}

func TestWriteValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteValidationError(w, "req_456", "audio.file", "parameter \"audio.file\" is required")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "invalid_audio.file" {
		t.Errorf("expected code 'invalid_audio.file', got %q", resp.Error.Code)
	}
}

func TestWritePolicyBlockedError(t *testing.T) {
	w := httptest.NewRecorder()
	WritePolicyBlockedError(w, "req_789", "denied by policy")

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "request_blocked" {
		t.Errorf("expected code 'request_blocked', got %q", resp.Error.Code)
	}
}

func TestWriteUpstreamError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUpstreamError(w, "req_abc", http.StatusBadGateway, "upstream returned 502")

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}
