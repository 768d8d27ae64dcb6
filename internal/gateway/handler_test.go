package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/af-corp/prism-gateway/internal/config"
	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/filter"
	"github.com/af-corp/prism-gateway/internal/router"
	"github.com/af-corp/prism-gateway/internal/router/adapters"
	"github.com/af-corp/prism-gateway/internal/store"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
)

func newTestHandler(t *testing.T, upstream string, chain *filter.Chain) *Handler {
	t.Helper()

	rt, err := router.New(router.Config{})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	client := transport.NewClient(transport.Config{
		BaseURL: upstream,
		APIKey:  "test-key",
	})

	cfg := config.DefaultConfig()
	return NewHandler(
		rt,
		adapters.NewFactory(adapters.Settings{}),
		client,
		transport.NewHealthTracker(3),
		nil, // no replay cache
		nil, // no operation store
		chain,
		nil, // no metrics
		func() *config.Config { return cfg },
	)
}

func postOperation(h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/operations", bytes.NewReader([]byte(body)))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.Operations(w, req)
	return w
}

func TestOperations_TextRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "resp_abc",
			"status":      "completed",
			"output_text": "hello back",
		})
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	w := postOperation(h, `{"message": "hello", "model": "gpt-4o"}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["id"] != "resp_abc" {
		t.Errorf("expected id resp_abc, got %v", out["id"])
	}
	if out["status"] != "completed" {
		t.Errorf("expected status completed, got %v", out["status"])
	}
	if out["text"] != "hello back" {
		t.Errorf("expected text 'hello back', got %v", out["text"])
	}
	if out["type"] != "response_api" {
		t.Errorf("expected type response_api, got %v", out["type"])
	}
}

func TestOperations_InvalidJSON(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	w := postOperation(h, `{not json`, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestOperations_ValidationError(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	w := postOperation(h, `{"audio": {"action": "transcribe", "file": "/nonexistent/audio.mp3"}}`, nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	errObj, _ := out["error"].(map[string]any)
	if errObj == nil {
		t.Fatal("expected error object in response")
	}
	if errObj["type"] != "invalid_request_error" {
		t.Errorf("expected invalid_request_error, got %v", errObj["type"])
	}
}

func TestOperations_UpstreamClientError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad model"}}`, http.StatusBadRequest)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	w := postOperation(h, `{"message": "hello"}`, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected upstream 400 forwarded, got %d", w.Code)
	}
}

func TestOperations_SpeechBinaryResponse(t *testing.T) {
	audio := []byte("mp3-bytes-here")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	w := postOperation(h, `{"audio": {"action": "speech", "text": "read this"}}`,
		map[string]string{"Accept": "audio/mpeg"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("expected audio/mpeg, got %s", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), audio) {
		t.Error("expected raw audio bytes in response body")
	}
}

func TestOperations_SpeechJSONEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3"))
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	// No Accept header: the canonical JSON shape with base64 audio.
	w := postOperation(h, `{"audio": {"action": "speech", "text": "read this"}}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["type"] != "audio_speech" {
		t.Errorf("expected type audio_speech, got %v", out["type"])
	}
	if out["audio_content"] == nil {
		t.Error("expected audio_content in JSON envelope")
	}
}

func TestOperations_TranscriptionMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.mp3")
	if err := os.WriteFile(path, []byte("fake mp3 content"), 0o644); err != nil {
		t.Fatal(err)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("expected multipart request: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"text": "transcribed words"})
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	w := postOperation(h, `{"audio": {"action": "transcribe", "file": "`+path+`"}}`, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	if out["text"] != "transcribed words" {
		t.Errorf("expected transcribed text, got %v", out["text"])
	}
	if out["type"] != "audio_transcription" {
		t.Errorf("expected type audio_transcription, got %v", out["type"])
	}
}

type blockAllFilter struct{}

func (blockAllFilter) Name() string  { return "block-all" }
func (blockAllFilter) Enabled() bool { return true }
func (blockAllFilter) ScanRequest(ctx context.Context, ep endpoint.Endpoint, req types.UniformRequest) filter.Result {
	return filter.Result{Action: filter.ActionBlock, FilterName: "block-all", Message: "nothing allowed"}
}

func TestOperations_FilterBlocked(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", filter.NewChain(blockAllFilter{}))
	w := postOperation(h, `{"message": "hello"}`, nil)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

// fakeStore records operations in memory for handler tests.
type fakeStore struct {
	records []store.OperationRecord
}

func (s *fakeStore) Record(ctx context.Context, rec store.OperationRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Lookup(ctx context.Context, id string) (*store.OperationRecord, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			return &s.records[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) RecentByEndpoint(ctx context.Context, ep string, limit int) ([]store.OperationRecord, error) {
	var out []store.OperationRecord
	for _, rec := range s.records {
		if rec.Endpoint == ep {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestOperationsByEndpoint(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	h.operations = &fakeStore{records: []store.OperationRecord{
		{ID: "resp_1", Endpoint: "response_api", Status: "completed"},
		{ID: "transcr_1", Endpoint: "audio_transcription", Status: "completed"},
		{ID: "resp_2", Endpoint: "response_api", Status: "failed"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/v1/operations?endpoint=response_api", nil)
	w := httptest.NewRecorder()
	h.OperationsByEndpoint(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	data, _ := out["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(data))
	}
	first, _ := data[0].(map[string]any)
	if first["id"] != "resp_1" {
		t.Errorf("first id = %v", first["id"])
	}
}

func TestOperationsByEndpoint_BadQuery(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	h.operations = &fakeStore{}

	tests := map[string]string{
		"unknown endpoint": "/v1/operations?endpoint=video_generation",
		"missing endpoint": "/v1/operations",
		"bad limit":        "/v1/operations?endpoint=response_api&limit=zero",
	}
	for name, target := range tests {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.OperationsByEndpoint(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	h.health.RecordSuccess("response_api")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	if out["status"] != "ok" {
		t.Errorf("expected status ok, got %v", out["status"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)
	for i := 0; i < 3; i++ {
		h.health.RecordFailure("image_generation")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
