package adapters

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

const defaultChatAudioModel = "gpt-4o-audio-preview"

// ChatAdapter handles chat completions carrying embedded audio input.
type ChatAdapter struct {
	maxAudioBytes int64
}

func (a *ChatAdapter) Endpoint() endpoint.Endpoint { return endpoint.ChatCompletion }

func (a *ChatAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	ai, ok := req.AudioInput()
	if !ok {
		return nil, missingParam(endpoint.ChatCompletion, "audio_input")
	}

	data, format, err := a.resolveAudio(ai)
	if err != nil {
		return nil, err
	}

	content := []any{}
	if msg, ok := types.StringField(req, "message"); ok {
		content = append(content, map[string]any{"type": "text", "text": msg})
	}
	content = append(content, map[string]any{
		"type":        "input_audio",
		"input_audio": map[string]any{"data": data, "format": format},
	})

	body := map[string]any{
		"model":      defaultChatAudioModel,
		"modalities": []any{"text"},
		"messages": []any{
			map[string]any{"role": "user", "content": content},
		},
	}
	copyFields(body, req, "model", "temperature", "max_tokens")

	return &WireRequest{Endpoint: endpoint.ChatCompletion, Body: body}, nil
}

// resolveAudio returns base64 audio data and its format, either from inline
// data or by validating and reading the referenced file. The chat endpoint
// is JSON, so file audio must be embedded rather than uploaded.
func (a *ChatAdapter) resolveAudio(ai map[string]any) (string, string, error) {
	format, _ := types.StringField(ai, "format")

	if data, ok := types.StringField(ai, "data"); ok {
		if format == "" {
			format = "wav"
		}
		return data, format, nil
	}

	path, ok := types.StringField(ai, "file")
	if !ok {
		return "", "", missingParam(endpoint.ChatCompletion, "audio_input.file")
	}
	maxBytes := a.maxAudioBytes
	if maxBytes <= 0 {
		maxBytes = upload.MaxAudioFileBytes
	}
	ref, err := upload.Validate(path, maxBytes, upload.CategoryAudio)
	if err != nil {
		return "", "", fileParam(endpoint.ChatCompletion, "audio_input.file", err)
	}
	raw, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", "", fileParam(endpoint.ChatCompletion, "audio_input.file", err)
	}
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(ref.Path), ".")
	}
	return base64.StdEncoding.EncodeToString(raw), format, nil
}

func (a *ChatAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	raw := wire.JSON
	if raw == nil {
		raw = map[string]any{}
	}

	resp := &types.UniformResponse{
		ID:     responseID(raw, "chatcmpl_"),
		Status: responseStatus(raw),
		Type:   endpoint.ChatCompletion.String(),
		Raw:    raw,
	}

	meta := packMetadata(raw, "choices", "output_text", "content", "text", "messages")
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				resp.Text, _ = types.StringField(msg, "content")
			}
			if fr, ok := types.StringField(choice, "finish_reason"); ok {
				meta["finish_reason"] = fr
			}
		}
	}
	if resp.Text == "" {
		resp.Text = extractText(raw)
	}

	resp.Metadata = meta
	return resp, nil
}
