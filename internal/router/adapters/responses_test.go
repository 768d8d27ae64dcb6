package adapters

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

func TestResponses_TransformRequest(t *testing.T) {
	a := &ResponsesAdapter{}

	tests := []struct {
		name      string
		req       types.UniformRequest
		wantInput any
	}{
		{"message key", types.UniformRequest{"message": "hi"}, "hi"},
		{"input key", types.UniformRequest{"input": "direct"}, "direct"},
		{
			"messages key",
			types.UniformRequest{"messages": []any{map[string]any{"role": "user", "content": "hi"}}},
			[]any{map[string]any{"role": "user", "content": "hi"}},
		},
		{
			"input preferred over message",
			types.UniformRequest{"input": "a", "message": "b"},
			"a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := a.TransformRequest(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(wire.Body["input"], tt.wantInput) {
				t.Errorf("input = %v, want %v", wire.Body["input"], tt.wantInput)
			}
			if wire.Body["model"] == nil {
				t.Error("model default missing")
			}
		})
	}
}

func TestResponses_TransformRequest_NoText(t *testing.T) {
	a := &ResponsesAdapter{}
	_, err := a.TransformRequest(types.UniformRequest{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestResponses_TransformResponse_TextPreference(t *testing.T) {
	a := &ResponsesAdapter{}
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{
			"output_text wins over everything",
			map[string]any{"output_text": "a", "content": "b", "text": "c"},
			"a",
		},
		{
			"content wins over text",
			map[string]any{"content": "b", "text": "c"},
			"b",
		},
		{
			"text wins over messages",
			map[string]any{"text": "c", "messages": []any{map[string]any{"content": "d"}}},
			"c",
		},
		{
			"messages as last resort",
			map[string]any{"messages": []any{map[string]any{"content": "d"}}},
			"d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := a.TransformResponse(&transport.WireResponse{JSON: tt.raw})
			if err != nil {
				t.Fatal(err)
			}
			if resp.Text != tt.want {
				t.Errorf("text = %q, want %q", resp.Text, tt.want)
			}
		})
	}
}

func TestResponses_TransformResponse_IDAndStatus(t *testing.T) {
	a := &ResponsesAdapter{}

	resp, err := a.TransformResponse(&transport.WireResponse{
		JSON: map[string]any{"id": "resp_upstream", "status": "in_progress", "output_text": "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "resp_upstream" || resp.Status != "in_progress" {
		t.Errorf("id/status = %q/%q", resp.ID, resp.Status)
	}

	// Upstream omitted both: id is generated with prefix, status defaults.
	resp, err = a.TransformResponse(&transport.WireResponse{JSON: map[string]any{"output_text": "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || resp.ID == "resp_" {
		t.Errorf("generated id = %q", resp.ID)
	}
	if resp.Status != types.StatusCompleted {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestResponses_ConversationID(t *testing.T) {
	a := &ResponsesAdapter{}
	resp, err := a.TransformResponse(&transport.WireResponse{
		JSON: map[string]any{"output_text": "x", "conversation": map[string]any{"id": "conv_9"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ConversationID != "conv_9" {
		t.Errorf("conversation id = %q", resp.ConversationID)
	}
}

func TestChat_TransformRequest_InlineData(t *testing.T) {
	a := &ChatAdapter{}
	wire, err := a.TransformRequest(types.UniformRequest{
		"message":     "what is said here?",
		"audio_input": map[string]any{"data": "aGVsbG8=", "format": "mp3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := wire.Body["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2 (text + audio)", len(content))
	}
	audioPart := content[1].(map[string]any)["input_audio"].(map[string]any)
	if audioPart["data"] != "aGVsbG8=" || audioPart["format"] != "mp3" {
		t.Errorf("audio part = %v", audioPart)
	}
}

func TestChat_TransformRequest_FileEmbedded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	payload := []byte("RIFFfake-wav")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	a := &ChatAdapter{}
	wire, err := a.TransformRequest(types.UniformRequest{
		"audio_input": map[string]any{"file": path},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs := wire.Body["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	audioPart := content[0].(map[string]any)["input_audio"].(map[string]any)
	if audioPart["format"] != "wav" {
		t.Errorf("format = %v, want wav (derived from extension)", audioPart["format"])
	}
	decoded, err := base64.StdEncoding.DecodeString(audioPart["data"].(string))
	if err != nil || string(decoded) != string(payload) {
		t.Errorf("embedded data does not round-trip: %v", err)
	}
}

func TestChat_TransformRequest_OversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(upload.MaxAudioFileBytes + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// Zero-value settings still enforce the default audio ceiling.
	a, err := NewFactory(Settings{}).Make(endpoint.ChatCompletion)
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.TransformRequest(types.UniformRequest{
		"audio_input": map[string]any{"file": path},
	})
	var tooLarge *upload.FileTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected *upload.FileTooLargeError, got %v", err)
	}
}

func TestChat_TransformRequest_MissingAudio(t *testing.T) {
	a := &ChatAdapter{}
	_, err := a.TransformRequest(types.UniformRequest{"message": "hi"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestChat_TransformResponse(t *testing.T) {
	a := &ChatAdapter{}
	resp, err := a.TransformResponse(&transport.WireResponse{
		JSON: map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4o-audio-preview",
			"choices": []any{
				map[string]any{
					"message":       map[string]any{"role": "assistant", "content": "it says hello"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"total_tokens": float64(42)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "it says hello" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Metadata["finish_reason"] != "stop" {
		t.Errorf("finish_reason = %v", resp.Metadata["finish_reason"])
	}
	if resp.Metadata["model"] != "gpt-4o-audio-preview" {
		t.Errorf("model = %v", resp.Metadata["model"])
	}
	if !resp.IsText() {
		t.Error("chat response should satisfy IsText")
	}
}

// Round-trip: every adapter's response survives ToMap/FromMap with text,
// type, and metadata intact.
func TestEveryAdapter_SerializationRoundTrip(t *testing.T) {
	fixtures := map[string]*transport.WireResponse{
		"response_api":        {JSON: map[string]any{"id": "resp_1", "output_text": "hello", "model": "gpt-4o"}},
		"chat_completion":     {JSON: map[string]any{"id": "chatcmpl_1", "choices": []any{map[string]any{"message": map[string]any{"content": "hi"}}}}},
		"audio_transcription": {JSON: map[string]any{"text": "spoken words", "language": "english"}},
		"audio_translation":   {JSON: map[string]any{"text": "translated words"}},
		"audio_speech":        {Body: []byte{1, 2, 3}, ContentType: "audio/mpeg"},
		"image_generation":    {JSON: map[string]any{"data": []any{map[string]any{"url": "https://x/a.png"}}}},
		"image_edit":          {JSON: map[string]any{"data": []any{map[string]any{"b64_json": "aW1n"}}}},
		"image_variation":     {JSON: map[string]any{"data": []any{map[string]any{"url": "https://x/b.png"}}}},
	}

	f := NewFactory(Settings{})
	for _, e := range endpoint.All() {
		adapter, err := f.Make(e)
		if err != nil {
			t.Fatal(err)
		}
		wire, ok := fixtures[e.String()]
		if !ok {
			t.Fatalf("no fixture for %s", e)
		}
		resp, err := adapter.TransformResponse(wire)
		if err != nil {
			t.Fatalf("%s: TransformResponse: %v", e, err)
		}

		back, err := types.FromMap(resp.ToMap())
		if err != nil {
			t.Fatalf("%s: FromMap: %v", e, err)
		}
		if back.Text != resp.Text || back.Type != resp.Type {
			t.Errorf("%s: text/type changed: %q/%q vs %q/%q", e, back.Text, back.Type, resp.Text, resp.Type)
		}
	}
}
