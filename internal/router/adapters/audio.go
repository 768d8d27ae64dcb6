package adapters

import (
	"fmt"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

const (
	defaultTranscriptionModel = "whisper-1"
	defaultSpeechModel        = "tts-1"
	defaultSpeechVoice        = "alloy"
)

// TranscriptionAdapter handles /v1/audio/transcriptions.
type TranscriptionAdapter struct {
	maxAudioBytes int64
}

func (a *TranscriptionAdapter) Endpoint() endpoint.Endpoint { return endpoint.AudioTranscription }

func (a *TranscriptionAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	parts, err := buildAudioUpload(endpoint.AudioTranscription, req, a.maxAudioBytes, true)
	if err != nil {
		return nil, err
	}
	return &WireRequest{Endpoint: endpoint.AudioTranscription, Parts: parts}, nil
}

func (a *TranscriptionAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	return audioTextResponse(wire, endpoint.AudioTranscription, "transcr_", nil)
}

// TranslationAdapter handles /v1/audio/translations. The backend always
// translates into English, so the reported target language is fixed.
type TranslationAdapter struct {
	maxAudioBytes int64
}

func (a *TranslationAdapter) Endpoint() endpoint.Endpoint { return endpoint.AudioTranslation }

func (a *TranslationAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	// The translations endpoint accepts no language parameter.
	parts, err := buildAudioUpload(endpoint.AudioTranslation, req, a.maxAudioBytes, false)
	if err != nil {
		return nil, err
	}
	return &WireRequest{Endpoint: endpoint.AudioTranslation, Parts: parts}, nil
}

func (a *TranslationAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	return audioTextResponse(wire, endpoint.AudioTranslation, "transl_", map[string]any{"language": "en"})
}

// buildAudioUpload assembles the multipart parts shared by transcription
// and translation: the validated audio file plus defaulted tuning fields.
func buildAudioUpload(e endpoint.Endpoint, req types.UniformRequest, maxBytes int64, withLanguage bool) ([]upload.Part, error) {
	audio, ok := req.Audio()
	if !ok {
		return nil, missingParam(e, "audio")
	}
	path, ok := types.StringField(audio, "file")
	if !ok {
		return nil, missingParam(e, "audio.file")
	}

	if maxBytes <= 0 {
		maxBytes = upload.MaxAudioFileBytes
	}
	b := upload.NewBuilder(maxBytes)
	if err := b.AddFile("file", path, "", "", upload.CategoryAudio); err != nil {
		return nil, fileParam(e, "audio.file", err)
	}

	model := defaultTranscriptionModel
	if m, ok := types.StringField(audio, "model"); ok {
		model = m
	}
	responseFormat := "json"
	if f, ok := types.StringField(audio, "response_format"); ok {
		responseFormat = f
	}
	temperature := 0.0
	if tmp, ok := types.NumberField(audio, "temperature"); ok {
		temperature = tmp
	}

	b.AddField("model", model)
	b.AddField("response_format", responseFormat)
	b.AddField("temperature", formatNumber(temperature))
	if prompt, ok := types.StringField(audio, "prompt"); ok {
		b.AddField("prompt", prompt)
	}
	if withLanguage {
		if lang, ok := types.StringField(audio, "language"); ok {
			b.AddField("language", lang)
		}
	}

	return b.Build(), nil
}

func audioTextResponse(wire *transport.WireResponse, e endpoint.Endpoint, prefix string, overrides map[string]any) (*types.UniformResponse, error) {
	raw := wire.JSON
	if raw == nil {
		raw = map[string]any{}
	}

	resp := &types.UniformResponse{
		ID:     responseID(raw, prefix),
		Status: responseStatus(raw),
		Text:   extractText(raw),
		Type:   e.String(),
		Raw:    raw,
	}

	meta := packMetadata(raw, "output_text", "content", "text", "messages")
	for k, v := range overrides {
		meta[k] = v
	}
	resp.Metadata = meta
	return resp, nil
}

// SpeechAdapter handles /v1/audio/speech, whose response is binary audio.
type SpeechAdapter struct{}

func (a *SpeechAdapter) Endpoint() endpoint.Endpoint { return endpoint.AudioSpeech }

func (a *SpeechAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	audio, ok := req.Audio()
	if !ok {
		return nil, missingParam(endpoint.AudioSpeech, "audio")
	}
	text, ok := types.StringField(audio, "text")
	if !ok {
		return nil, missingParam(endpoint.AudioSpeech, "audio.text")
	}

	body := map[string]any{
		"model":           defaultSpeechModel,
		"input":           text,
		"voice":           defaultSpeechVoice,
		"response_format": "mp3",
		"speed":           1.0,
	}
	copyFields(body, audio, "model", "voice", "speed")
	if f, ok := types.StringField(audio, "format"); ok {
		body["response_format"] = f
	}

	return &WireRequest{Endpoint: endpoint.AudioSpeech, Body: body}, nil
}

func (a *SpeechAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	if len(wire.Body) == 0 {
		return nil, fmt.Errorf("%s: upstream returned no audio content", endpoint.AudioSpeech)
	}

	meta := map[string]any{
		"size_bytes": len(wire.Body),
	}
	if wire.ContentType != "" {
		meta["content_type"] = wire.ContentType
	}

	return &types.UniformResponse{
		ID:           generateID("tts_"),
		Status:       types.StatusCompleted,
		AudioContent: wire.Body,
		Type:         endpoint.AudioSpeech.String(),
		Metadata:     meta,
	}, nil
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
