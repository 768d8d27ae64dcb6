package adapters

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

func writePNG(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImageGeneration_Defaults(t *testing.T) {
	a := &ImageGenerationAdapter{}
	wire, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"prompt": "a lighthouse at dusk"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"prompt":          "a lighthouse at dusk",
		"model":           "dall-e-2",
		"n":               1,
		"size":            "1024x1024",
		"response_format": "url",
	}
	for k, v := range want {
		if wire.Body[k] != v {
			t.Errorf("body[%s] = %v, want %v", k, wire.Body[k], v)
		}
	}
}

func TestImageGeneration_MissingPrompt(t *testing.T) {
	a := &ImageGenerationAdapter{}
	_, err := a.TransformRequest(types.UniformRequest{"image": map[string]any{}})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Param != "image.prompt" {
		t.Errorf("param = %q", ve.Param)
	}
}

func TestImageEdit_TransformRequest(t *testing.T) {
	path := writePNG(t, 256)
	a := &ImageEditAdapter{}

	wire, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": path, "prompt": "add sky", "size": "512x512"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if wire.Endpoint != endpoint.ImageEdit {
		t.Errorf("endpoint = %s", wire.Endpoint)
	}
	if ref := filePart(t, wire.Parts, "image"); ref == nil || ref.Path != path {
		t.Errorf("image part = %+v", ref)
	}
	if got, _ := partValue(t, wire.Parts, "prompt"); got != "add sky" {
		t.Errorf("prompt = %q", got)
	}
	if got, _ := partValue(t, wire.Parts, "size"); got != "512x512" {
		t.Errorf("size = %q", got)
	}
}

func TestImageEdit_WithMask(t *testing.T) {
	img := writePNG(t, 100)
	mask := writePNG(t, 50)
	a := &ImageEditAdapter{}

	wire, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": img, "mask": mask, "prompt": "p"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if filePart(t, wire.Parts, "mask") == nil {
		t.Error("mask part missing")
	}
}

func TestImageEdit_RequiresPrompt(t *testing.T) {
	path := writePNG(t, 100)
	a := &ImageEditAdapter{}
	_, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": path},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Param != "image.prompt" {
		t.Errorf("expected prompt validation error, got %v", err)
	}
}

func TestImageEdit_RejectsNonPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.jpg")
	os.WriteFile(path, []byte("x"), 0o644)

	a := &ImageEditAdapter{}
	_, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": path, "prompt": "p"},
	})
	var ufe *upload.UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestImageEdit_RejectsOversized(t *testing.T) {
	path := writePNG(t, 200)
	a := &ImageEditAdapter{maxImageBytes: 100}
	_, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": path, "prompt": "p"},
	})
	var ftl *upload.FileTooLargeError
	if !errors.As(err, &ftl) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestImageVariation_TransformRequest(t *testing.T) {
	path := writePNG(t, 100)
	a := &ImageVariationAdapter{}

	wire, err := a.TransformRequest(types.UniformRequest{
		"image": map[string]any{"image": path},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ref := filePart(t, wire.Parts, "image"); ref == nil {
		t.Fatal("image part missing")
	}
	if _, ok := partValue(t, wire.Parts, "prompt"); ok {
		t.Error("variation must not carry a prompt")
	}
	if got, _ := partValue(t, wire.Parts, "model"); got != "dall-e-2" {
		t.Errorf("model = %q", got)
	}
}

func TestImageResponses(t *testing.T) {
	wire := &transport.WireResponse{
		JSON: map[string]any{
			"created": float64(1700000000),
			"data": []any{
				map[string]any{"url": "https://example.com/a.png"},
				map[string]any{"b64_json": "aW1n"},
			},
		},
	}

	tests := []struct {
		adapter EndpointAdapter
		typ     string
	}{
		{&ImageGenerationAdapter{}, "image_generation"},
		{&ImageEditAdapter{}, "image_edit"},
		{&ImageVariationAdapter{}, "image_variation"},
	}
	for _, tt := range tests {
		resp, err := tt.adapter.TransformResponse(wire)
		if err != nil {
			t.Fatalf("%s: %v", tt.typ, err)
		}
		if len(resp.Images) != 2 {
			t.Errorf("%s: images = %d, want 2", tt.typ, len(resp.Images))
		}
		if resp.Type != tt.typ {
			t.Errorf("type = %q, want %q", resp.Type, tt.typ)
		}
		if !resp.IsImage() {
			t.Errorf("%s: IsImage false", tt.typ)
		}
		if resp.Metadata["created"] != float64(1700000000) {
			t.Errorf("%s: created not in metadata", tt.typ)
		}
	}
}
