package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClipEncoder is a SemanticEncoder backed by a local CLIP sidecar server.
// Both encode endpoints are served by the same loaded model, which keeps
// image and text vectors in one space.
type ClipEncoder struct {
	client *resty.Client
	model  string
}

// ClipConfig holds configuration for the CLIP sidecar client.
type ClipConfig struct {
	BaseURL string
	Model   string
}

// NewClipEncoder creates a CLIP sidecar client.
func NewClipEncoder(cfg *ClipConfig) *ClipEncoder {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(120 * time.Second)

	return &ClipEncoder{
		client: client,
		model:  cfg.Model,
	}
}

type clipImageRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64-encoded image bytes
}

type clipTextRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type clipResponse struct {
	Embedding []float32 `json:"embedding"`
	Detail    string    `json:"detail,omitempty"`
}

// EncodeImage computes the semantic embedding for an image.
func (e *ClipEncoder) EncodeImage(ctx context.Context, input ImageInput) ([]float32, error) {
	data, _, err := input.Bytes()
	if err != nil {
		return nil, err
	}

	req := clipImageRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(data),
	}

	var resp clipResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/encode_image")

	if err != nil {
		return nil, fmt.Errorf("%w: encoder request failed: %v", ErrUnavailable, err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("encoder error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("encoder error: status %d", httpResp.StatusCode())
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("encoder returned empty embedding")
	}

	return resp.Embedding, nil
}

// EncodeText computes the embedding for a text query in the image space.
func (e *ClipEncoder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	req := clipTextRequest{
		Model: e.model,
		Text:  text,
	}

	var resp clipResponse
	httpResp, err := e.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/encode_text")

	if err != nil {
		return nil, fmt.Errorf("%w: encoder request failed: %v", ErrUnavailable, err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("encoder error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("encoder error: status %d", httpResp.StatusCode())
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("encoder returned empty embedding")
	}

	return resp.Embedding, nil
}
