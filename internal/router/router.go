package router

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/types"
)

// ConflictBehavior controls what happens when a request satisfies more than
// one endpoint's match predicate.
type ConflictBehavior string

const (
	BehaviorError  ConflictBehavior = "error"
	BehaviorWarn   ConflictBehavior = "warn"
	BehaviorSilent ConflictBehavior = "silent"
)

// Config holds the routing configuration. Priority lists endpoint tokens in
// match order; an empty list uses the built-in default order.
type Config struct {
	Priority         []string
	ValidatePriority bool
	DetectConflicts  bool
	ConflictBehavior ConflictBehavior

	// OnConflict, when set, is invoked with the earliest-priority candidate
	// every time conflict detection finds more than one match, regardless of
	// the configured behavior.
	OnConflict func(chosen endpoint.Endpoint)
}

// Router decides which backend operation a uniform request targets. It is a
// pure function of its configuration and safe for concurrent use.
type Router struct {
	priority   []endpoint.Endpoint
	detect     bool
	behavior   ConflictBehavior
	onConflict func(chosen endpoint.Endpoint)
}

// InvalidPriorityError reports unrecognized endpoint tokens in the
// configured priority list.
type InvalidPriorityError struct {
	Tokens []string
}

func (e *InvalidPriorityError) Error() string {
	return fmt.Sprintf("routing config: unrecognized endpoint tokens: %s", strings.Join(e.Tokens, ", "))
}

// Candidate records one endpoint that matched a request, and why.
type Candidate struct {
	Endpoint endpoint.Endpoint
	Reason   string
}

// ConflictError is raised under BehaviorError behavior when a request
// satisfies more than one predicate. It carries the full explanation so the
// caller can surface a diagnosable message.
type ConflictError struct {
	Candidates []Candidate
	Chosen     endpoint.Endpoint
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		parts = append(parts, fmt.Sprintf("%s (%s)", c.Endpoint, c.Reason))
	}
	return fmt.Sprintf("ambiguous request matches %d endpoints: %s; earliest by priority would be %s",
		len(e.Candidates), strings.Join(parts, "; "), e.Chosen)
}

// New builds a Router. Unknown priority tokens are rejected only when
// cfg.ValidatePriority is set; trusted static configuration can skip the
// check, in which case unknown tokens are ignored at match time.
func New(cfg Config) (*Router, error) {
	behavior := cfg.ConflictBehavior
	if behavior == "" {
		behavior = BehaviorWarn
	}
	switch behavior {
	case BehaviorError, BehaviorWarn, BehaviorSilent:
	default:
		return nil, fmt.Errorf("routing config: unknown conflict_behavior %q", behavior)
	}

	priority := make([]endpoint.Endpoint, 0, len(cfg.Priority))
	var invalid []string
	for _, token := range cfg.Priority {
		e, ok := endpoint.Parse(token)
		if !ok {
			invalid = append(invalid, token)
			continue
		}
		priority = append(priority, e)
	}
	if cfg.ValidatePriority && len(invalid) > 0 {
		return nil, &InvalidPriorityError{Tokens: invalid}
	}
	if len(priority) == 0 {
		priority = endpoint.All()
	}

	return &Router{
		priority:   priority,
		detect:     cfg.DetectConflicts,
		behavior:   behavior,
		onConflict: cfg.OnConflict,
	}, nil
}

// DetermineEndpoint returns the endpoint the request targets. When nothing
// matches, the ResponseAPI default is returned. It never panics on
// malformed sub-shapes; those simply fail the predicates.
func (r *Router) DetermineEndpoint(req types.UniformRequest) (endpoint.Endpoint, error) {
	if !r.detect {
		for _, e := range r.priority {
			if ok, _ := Matches(e, req); ok {
				return e, nil
			}
		}
		return endpoint.ResponseAPI, nil
	}

	var candidates []Candidate
	for _, e := range r.priority {
		if ok, reason := Matches(e, req); ok {
			candidates = append(candidates, Candidate{Endpoint: e, Reason: reason})
		}
	}

	switch len(candidates) {
	case 0:
		return endpoint.ResponseAPI, nil
	case 1:
		return candidates[0].Endpoint, nil
	}

	chosen := candidates[0].Endpoint
	if r.onConflict != nil {
		r.onConflict(chosen)
	}
	switch r.behavior {
	case BehaviorError:
		return "", &ConflictError{Candidates: candidates, Chosen: chosen}
	case BehaviorWarn:
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, c.Endpoint.String())
		}
		slog.Warn("request matches multiple endpoints, using earliest by priority",
			"candidates", strings.Join(names, ","),
			"chosen", chosen.String(),
		)
	}
	return chosen, nil
}

// Matches evaluates the fixed match predicate for one endpoint against a
// uniform request. The second return is a human-readable reason used in
// conflict explanations.
func Matches(e endpoint.Endpoint, req types.UniformRequest) (bool, string) {
	switch e {
	case endpoint.AudioTranscription:
		if audio, ok := req.Audio(); ok {
			if types.HasField(audio, "file") && fieldEquals(audio, "action", "transcribe") {
				return true, `audio.file present with action "transcribe"`
			}
		}
	case endpoint.AudioTranslation:
		if audio, ok := req.Audio(); ok {
			if types.HasField(audio, "file") && fieldEquals(audio, "action", "translate") {
				return true, `audio.file present with action "translate"`
			}
		}
	case endpoint.AudioSpeech:
		if audio, ok := req.Audio(); ok {
			if types.HasField(audio, "text") && fieldEquals(audio, "action", "speech") {
				return true, `audio.text present with action "speech"`
			}
		}
	case endpoint.ImageEdit:
		if image, ok := req.Image(); ok {
			if types.HasField(image, "image") && types.HasField(image, "prompt") {
				return true, "image.image and image.prompt both present"
			}
		}
	case endpoint.ImageVariation:
		if image, ok := req.Image(); ok {
			if types.HasField(image, "image") && !types.HasField(image, "prompt") {
				return true, "image.image present without image.prompt"
			}
		}
	case endpoint.ImageGeneration:
		if image, ok := req.Image(); ok {
			if types.HasField(image, "prompt") && !types.HasField(image, "image") {
				return true, "image.prompt present without image.image"
			}
		}
	case endpoint.ChatCompletion:
		if ai, ok := req.AudioInput(); ok {
			if types.HasField(ai, "file") || types.HasField(ai, "data") {
				return true, "audio_input with embedded audio present"
			}
		}
	case endpoint.ResponseAPI:
		if req.HasText() {
			return true, "plain message/messages/input present"
		}
	}
	return false, ""
}

func fieldEquals(m map[string]any, key, want string) bool {
	s, ok := types.StringField(m, key)
	return ok && s == want
}
