package types

// UniformRequest is the operation-independent map the router consumes.
// No key is required; the recognized sub-shapes are:
//
//	message / messages / input  (text content)
//	audio{file|text, action, ...}
//	audio_input{file|data, format}
//	image{prompt, image, mask, ...}
//
// Absence of every recognized key routes to the default operation.
type UniformRequest map[string]any

// Section returns the named sub-map. A missing key, or a value that is not
// a string-keyed map, yields (nil, false); malformed sections must fail
// predicates, never panic.
func (r UniformRequest) Section(key string) (map[string]any, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return m, true
}

// Audio returns the audio sub-shape, if present and well-formed.
func (r UniformRequest) Audio() (map[string]any, bool) { return r.Section("audio") }

// AudioInput returns the embedded-audio sub-shape used by chat requests.
func (r UniformRequest) AudioInput() (map[string]any, bool) { return r.Section("audio_input") }

// Image returns the image sub-shape, if present and well-formed.
func (r UniformRequest) Image() (map[string]any, bool) { return r.Section("image") }

// HasText reports whether any plain text key is present.
func (r UniformRequest) HasText() bool {
	for _, k := range []string{"message", "messages", "input"} {
		if _, ok := r[k]; ok {
			return true
		}
	}
	return false
}

// StringField extracts a non-empty string value from a sub-map.
func StringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// HasField reports whether key is present with a non-nil value.
func HasField(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// NumberField extracts a numeric value from a sub-map. JSON decoding yields
// float64 for every number; int is accepted for values built in code.
func NumberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
