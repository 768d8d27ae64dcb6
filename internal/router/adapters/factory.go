package adapters

import (
	"fmt"
	"sync"

	"github.com/af-corp/prism-gateway/internal/endpoint"
)

// Settings are the construction-time defaults shared by adapters.
type Settings struct {
	MaxAudioFileBytes int64
	MaxImageFileBytes int64
}

// Factory resolves one adapter instance per endpoint, constructing lazily
// on first request and caching for the factory's lifetime. Concurrent first
// access is construct-once: repeat calls return the identical instance.
type Factory struct {
	mu       sync.Mutex
	cache    map[endpoint.Endpoint]EndpointAdapter
	settings Settings
}

func NewFactory(settings Settings) *Factory {
	return &Factory{
		cache:    make(map[endpoint.Endpoint]EndpointAdapter),
		settings: settings,
	}
}

// Make returns the adapter for the endpoint.
func (f *Factory) Make(e endpoint.Endpoint) (EndpointAdapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.cache[e]; ok {
		return a, nil
	}

	a, err := f.construct(e)
	if err != nil {
		return nil, err
	}
	f.cache[e] = a
	return a, nil
}

func (f *Factory) construct(e endpoint.Endpoint) (EndpointAdapter, error) {
	switch e {
	case endpoint.ResponseAPI:
		return &ResponsesAdapter{}, nil
	case endpoint.ChatCompletion:
		return &ChatAdapter{maxAudioBytes: f.settings.MaxAudioFileBytes}, nil
	case endpoint.AudioTranscription:
		return &TranscriptionAdapter{maxAudioBytes: f.settings.MaxAudioFileBytes}, nil
	case endpoint.AudioTranslation:
		return &TranslationAdapter{maxAudioBytes: f.settings.MaxAudioFileBytes}, nil
	case endpoint.AudioSpeech:
		return &SpeechAdapter{}, nil
	case endpoint.ImageGeneration:
		return &ImageGenerationAdapter{}, nil
	case endpoint.ImageEdit:
		return &ImageEditAdapter{maxImageBytes: f.settings.MaxImageFileBytes}, nil
	case endpoint.ImageVariation:
		return &ImageVariationAdapter{maxImageBytes: f.settings.MaxImageFileBytes}, nil
	default:
		return nil, fmt.Errorf("no adapter for endpoint %q", e)
	}
}
