package endpoint

// Endpoint identifies one of the fixed backend wire operations the gateway
// can dispatch to. The set is closed: routing, adapters, and transport all
// switch over these values, and an exhaustiveness test keeps them in sync.
type Endpoint string

const (
	ResponseAPI        Endpoint = "response_api"
	ChatCompletion     Endpoint = "chat_completion"
	AudioTranscription Endpoint = "audio_transcription"
	AudioTranslation   Endpoint = "audio_translation"
	AudioSpeech        Endpoint = "audio_speech"
	ImageGeneration    Endpoint = "image_generation"
	ImageEdit          Endpoint = "image_edit"
	ImageVariation     Endpoint = "image_variation"
)

// Info describes the wire-level facts about an endpoint.
type Info struct {
	Path      string
	Audio     bool
	Image     bool
	Multipart bool
}

var registry = map[Endpoint]Info{
	ResponseAPI:        {Path: "/v1/responses"},
	ChatCompletion:     {Path: "/v1/chat/completions"},
	AudioTranscription: {Path: "/v1/audio/transcriptions", Audio: true, Multipart: true},
	AudioTranslation:   {Path: "/v1/audio/translations", Audio: true, Multipart: true},
	AudioSpeech:        {Path: "/v1/audio/speech", Audio: true},
	ImageGeneration:    {Path: "/v1/images/generations", Image: true},
	ImageEdit:          {Path: "/v1/images/edits", Image: true, Multipart: true},
	ImageVariation:     {Path: "/v1/images/variations", Image: true, Multipart: true},
}

// All returns every endpoint in default priority order: most specific
// operations first, the ResponseAPI fallback last.
func All() []Endpoint {
	return []Endpoint{
		AudioTranscription,
		AudioTranslation,
		AudioSpeech,
		ImageEdit,
		ImageVariation,
		ImageGeneration,
		ChatCompletion,
		ResponseAPI,
	}
}

func (e Endpoint) String() string { return string(e) }

// Path returns the fixed URL path for the endpoint.
func (e Endpoint) Path() string { return registry[e].Path }

// IsAudio reports whether the endpoint belongs to the audio family.
func (e Endpoint) IsAudio() bool { return registry[e].Audio }

// IsImage reports whether the endpoint belongs to the image family.
func (e Endpoint) IsImage() bool { return registry[e].Image }

// RequiresMultipart reports whether the endpoint takes a multipart body.
func (e Endpoint) RequiresMultipart() bool { return registry[e].Multipart }

// Parse maps a configuration token to an Endpoint.
func Parse(s string) (Endpoint, bool) {
	e := Endpoint(s)
	if _, ok := registry[e]; ok {
		return e, true
	}
	return "", false
}
