package types

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// StatusCompleted is the default status an adapter assigns when the
// upstream response carries none.
const StatusCompleted = "completed"

// UniformResponse is the canonical result of any operation. ID and Status
// are always set; the remaining fields depend on the operation family.
type UniformResponse struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Text           string           `json:"text,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	AudioContent   []byte           `json:"audio_content,omitempty"`
	Images         []map[string]any `json:"images,omitempty"`
	Type           string           `json:"type"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	Raw            map[string]any   `json:"raw,omitempty"`
}

// IsText reports whether the response came from a text operation.
func (r *UniformResponse) IsText() bool {
	return r.Type == "response_api" || r.Type == "chat_completion"
}

// IsAudio reports whether the response came from an audio operation.
func (r *UniformResponse) IsAudio() bool { return strings.HasPrefix(r.Type, "audio_") }

// IsImage reports whether the response came from an image operation.
func (r *UniformResponse) IsImage() bool { return strings.HasPrefix(r.Type, "image_") }

// ToMap serializes the response into a plain map. Binary audio content is
// base64-encoded so the map survives JSON transit.
func (r *UniformResponse) ToMap() map[string]any {
	m := map[string]any{
		"id":     r.ID,
		"status": r.Status,
		"type":   r.Type,
	}
	if r.Text != "" {
		m["text"] = r.Text
	}
	if r.ConversationID != "" {
		m["conversation_id"] = r.ConversationID
	}
	if len(r.AudioContent) > 0 {
		m["audio_content"] = base64.StdEncoding.EncodeToString(r.AudioContent)
	}
	if len(r.Images) > 0 {
		images := make([]any, 0, len(r.Images))
		for _, img := range r.Images {
			images = append(images, img)
		}
		m["images"] = images
	}
	if len(r.Metadata) > 0 {
		m["metadata"] = r.Metadata
	}
	if len(r.Raw) > 0 {
		m["raw"] = r.Raw
	}
	return m
}

// FromMap rebuilds a UniformResponse from its ToMap form.
func FromMap(m map[string]any) (*UniformResponse, error) {
	id, ok := StringField(m, "id")
	if !ok {
		return nil, fmt.Errorf("uniform response map: missing id")
	}
	status, ok := StringField(m, "status")
	if !ok {
		return nil, fmt.Errorf("uniform response map: missing status")
	}
	resp := &UniformResponse{ID: id, Status: status}
	resp.Type, _ = StringField(m, "type")
	resp.Text, _ = StringField(m, "text")
	resp.ConversationID, _ = StringField(m, "conversation_id")

	if enc, ok := StringField(m, "audio_content"); ok {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("uniform response map: decode audio_content: %w", err)
		}
		resp.AudioContent = data
	}
	if raw, ok := m["images"].([]any); ok {
		for _, item := range raw {
			if img, ok := item.(map[string]any); ok {
				resp.Images = append(resp.Images, img)
			}
		}
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		resp.Metadata = meta
	}
	if rawResp, ok := m["raw"].(map[string]any); ok {
		resp.Raw = rawResp
	}
	return resp, nil
}
