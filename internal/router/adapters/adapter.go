package adapters

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

// WireRequest is the backend-ready form of a uniform request. JSON
// endpoints populate Body; multipart endpoints populate Parts.
type WireRequest struct {
	Endpoint endpoint.Endpoint
	Body     map[string]any
	Parts    []upload.Part
}

// EndpointAdapter transforms between the uniform request/response shape and
// one endpoint's wire format. Implementations are pure functions of their
// input plus construction-time defaults, and safe for concurrent use.
type EndpointAdapter interface {
	Endpoint() endpoint.Endpoint
	TransformRequest(req types.UniformRequest) (*WireRequest, error)
	TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error)
}

// ValidationError reports a missing or ill-formed parameter for a specific
// endpoint. The message always names the parameter and the violated
// constraint.
type ValidationError struct {
	Endpoint endpoint.Endpoint
	Param    string
	Message  string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: parameter %q: %s", e.Endpoint, e.Param, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missingParam(e endpoint.Endpoint, param string) *ValidationError {
	return &ValidationError{Endpoint: e, Param: param, Message: "required but missing"}
}

func fileParam(e endpoint.Endpoint, param string, err error) *ValidationError {
	return &ValidationError{Endpoint: e, Param: param, Message: err.Error(), Err: err}
}

// generateID creates an id with the operation-specific prefix used when the
// upstream response omits one.
func generateID(prefix string) string {
	b := make([]byte, 10)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

// extractText pulls the canonical text from a wire response, preferring the
// most specific upstream field.
func extractText(raw map[string]any) string {
	if s, ok := types.StringField(raw, "output_text"); ok {
		return s
	}
	if s, ok := types.StringField(raw, "content"); ok {
		return s
	}
	if s, ok := types.StringField(raw, "text"); ok {
		return s
	}
	if msgs, ok := raw["messages"].([]any); ok && len(msgs) > 0 {
		if m, ok := msgs[len(msgs)-1].(map[string]any); ok {
			if s, ok := types.StringField(m, "content"); ok {
				return s
			}
		}
	}
	return ""
}

// responseStatus returns the upstream status or the completed default.
func responseStatus(raw map[string]any) string {
	if s, ok := types.StringField(raw, "status"); ok {
		return s
	}
	return types.StatusCompleted
}

// responseID returns the upstream id or generates a prefixed one.
func responseID(raw map[string]any, prefix string) string {
	if s, ok := types.StringField(raw, "id"); ok {
		return s
	}
	return generateID(prefix)
}

// packMetadata collects every raw field not claimed by the canonical
// response shape into the metadata bag.
func packMetadata(raw map[string]any, claimed ...string) map[string]any {
	skip := make(map[string]bool, len(claimed)+2)
	skip["id"] = true
	skip["status"] = true
	for _, k := range claimed {
		skip[k] = true
	}
	meta := make(map[string]any)
	for k, v := range raw {
		if !skip[k] {
			meta[k] = v
		}
	}
	return meta
}

// copyFields copies the listed keys from src into dst when present.
func copyFields(dst map[string]any, src map[string]any, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			dst[k] = v
		}
	}
}
