package adapters

import (
	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
)

const defaultResponsesModel = "gpt-4o"

// ResponsesAdapter handles the default text operation against /v1/responses.
type ResponsesAdapter struct{}

func (a *ResponsesAdapter) Endpoint() endpoint.Endpoint { return endpoint.ResponseAPI }

func (a *ResponsesAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	body := map[string]any{
		"model": defaultResponsesModel,
	}

	switch {
	case req["input"] != nil:
		body["input"] = req["input"]
	case req["message"] != nil:
		body["input"] = req["message"]
	case req["messages"] != nil:
		body["input"] = req["messages"]
	default:
		return nil, missingParam(endpoint.ResponseAPI, "message")
	}

	copyFields(body, req, "model", "instructions", "temperature", "max_output_tokens", "previous_response_id", "conversation")

	return &WireRequest{Endpoint: endpoint.ResponseAPI, Body: body}, nil
}

func (a *ResponsesAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	raw := wire.JSON
	if raw == nil {
		raw = map[string]any{}
	}

	resp := &types.UniformResponse{
		ID:     responseID(raw, "resp_"),
		Status: responseStatus(raw),
		Text:   extractText(raw),
		Type:   endpoint.ResponseAPI.String(),
		Raw:    raw,
	}

	if conv, ok := types.StringField(raw, "conversation_id"); ok {
		resp.ConversationID = conv
	} else if c, ok := raw["conversation"].(map[string]any); ok {
		resp.ConversationID, _ = types.StringField(c, "id")
	}

	resp.Metadata = packMetadata(raw, "output_text", "content", "text", "messages", "conversation_id", "conversation")
	return resp, nil
}
