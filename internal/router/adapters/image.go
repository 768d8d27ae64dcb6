package adapters

import (
	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/transport"
	"github.com/af-corp/prism-gateway/internal/types"
	"github.com/af-corp/prism-gateway/internal/upload"
)

const (
	defaultImageModel  = "dall-e-2"
	defaultImageSize   = "1024x1024"
	defaultImageFormat = "url"
)

// ImageGenerationAdapter handles /v1/images/generations.
type ImageGenerationAdapter struct{}

func (a *ImageGenerationAdapter) Endpoint() endpoint.Endpoint { return endpoint.ImageGeneration }

func (a *ImageGenerationAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	image, ok := req.Image()
	if !ok {
		return nil, missingParam(endpoint.ImageGeneration, "image")
	}
	prompt, ok := types.StringField(image, "prompt")
	if !ok {
		return nil, missingParam(endpoint.ImageGeneration, "image.prompt")
	}

	body := map[string]any{
		"prompt":          prompt,
		"model":           defaultImageModel,
		"n":               1,
		"size":            defaultImageSize,
		"response_format": defaultImageFormat,
	}
	copyFields(body, image, "model", "n", "size", "response_format", "quality", "style")

	return &WireRequest{Endpoint: endpoint.ImageGeneration, Body: body}, nil
}

func (a *ImageGenerationAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	return imageResponse(wire, endpoint.ImageGeneration, "img_")
}

// ImageEditAdapter handles /v1/images/edits (multipart: image, optional
// mask, prompt).
type ImageEditAdapter struct {
	maxImageBytes int64
}

func (a *ImageEditAdapter) Endpoint() endpoint.Endpoint { return endpoint.ImageEdit }

func (a *ImageEditAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	image, ok := req.Image()
	if !ok {
		return nil, missingParam(endpoint.ImageEdit, "image")
	}
	path, ok := types.StringField(image, "image")
	if !ok {
		return nil, missingParam(endpoint.ImageEdit, "image.image")
	}
	prompt, ok := types.StringField(image, "prompt")
	if !ok {
		return nil, missingParam(endpoint.ImageEdit, "image.prompt")
	}

	b := upload.NewBuilder(maxImage(a.maxImageBytes))
	if err := b.AddFile("image", path, "", "", upload.CategoryImage); err != nil {
		return nil, fileParam(endpoint.ImageEdit, "image.image", err)
	}
	if mask, ok := types.StringField(image, "mask"); ok {
		if err := b.AddFile("mask", mask, "", "", upload.CategoryImage); err != nil {
			return nil, fileParam(endpoint.ImageEdit, "image.mask", err)
		}
	}
	b.AddField("prompt", prompt)
	addImageTuning(b, image)

	return &WireRequest{Endpoint: endpoint.ImageEdit, Parts: b.Build()}, nil
}

func (a *ImageEditAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	return imageResponse(wire, endpoint.ImageEdit, "imgedit_")
}

// ImageVariationAdapter handles /v1/images/variations (multipart, no
// prompt).
type ImageVariationAdapter struct {
	maxImageBytes int64
}

func (a *ImageVariationAdapter) Endpoint() endpoint.Endpoint { return endpoint.ImageVariation }

func (a *ImageVariationAdapter) TransformRequest(req types.UniformRequest) (*WireRequest, error) {
	image, ok := req.Image()
	if !ok {
		return nil, missingParam(endpoint.ImageVariation, "image")
	}
	path, ok := types.StringField(image, "image")
	if !ok {
		return nil, missingParam(endpoint.ImageVariation, "image.image")
	}

	b := upload.NewBuilder(maxImage(a.maxImageBytes))
	if err := b.AddFile("image", path, "", "", upload.CategoryImage); err != nil {
		return nil, fileParam(endpoint.ImageVariation, "image.image", err)
	}
	addImageTuning(b, image)

	return &WireRequest{Endpoint: endpoint.ImageVariation, Parts: b.Build()}, nil
}

func (a *ImageVariationAdapter) TransformResponse(wire *transport.WireResponse) (*types.UniformResponse, error) {
	return imageResponse(wire, endpoint.ImageVariation, "imgvar_")
}

func maxImage(configured int64) int64 {
	if configured > 0 {
		return configured
	}
	return upload.MaxImageFileBytes
}

// addImageTuning appends the shared multipart tuning fields with their
// documented defaults.
func addImageTuning(b *upload.Builder, image map[string]any) {
	model := defaultImageModel
	if m, ok := types.StringField(image, "model"); ok {
		model = m
	}
	n := 1.0
	if v, ok := types.NumberField(image, "n"); ok {
		n = v
	}
	size := defaultImageSize
	if s, ok := types.StringField(image, "size"); ok {
		size = s
	}
	format := defaultImageFormat
	if f, ok := types.StringField(image, "response_format"); ok {
		format = f
	}

	b.AddField("model", model)
	b.AddField("n", formatNumber(n))
	b.AddField("size", size)
	b.AddField("response_format", format)
}

func imageResponse(wire *transport.WireResponse, e endpoint.Endpoint, prefix string) (*types.UniformResponse, error) {
	raw := wire.JSON
	if raw == nil {
		raw = map[string]any{}
	}

	resp := &types.UniformResponse{
		ID:     responseID(raw, prefix),
		Status: responseStatus(raw),
		Type:   e.String(),
		Raw:    raw,
	}

	if data, ok := raw["data"].([]any); ok {
		for _, item := range data {
			if img, ok := item.(map[string]any); ok {
				resp.Images = append(resp.Images, img)
			}
		}
	}

	resp.Metadata = packMetadata(raw, "data")
	return resp, nil
}
