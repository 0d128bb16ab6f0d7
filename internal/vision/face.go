package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// FaceClient is a FaceEngine backed by a local face detection/embedding
// sidecar (detector plus identity embedder behind one endpoint).
type FaceClient struct {
	client *resty.Client
}

// FaceEngineConfig holds configuration for the face sidecar client.
type FaceEngineConfig struct {
	BaseURL string
}

// NewFaceClient creates a face sidecar client.
func NewFaceClient(cfg *FaceEngineConfig) *FaceClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(120 * time.Second)

	return &FaceClient{client: client}
}

type faceDetectRequest struct {
	Image  string `json:"image"` // base64-encoded image bytes
	Format string `json:"format"`
}

type faceDetectResponse struct {
	Faces []struct {
		Box       Box       `json:"box"`
		Embedding []float32 `json:"embedding"`
	} `json:"faces"`
	Detail string `json:"detail,omitempty"`
}

// Detect finds faces and returns one identity embedding per face. Faces
// whose embedding the sidecar could not compute are omitted.
func (c *FaceClient) Detect(ctx context.Context, input ImageInput) ([]Detection, error) {
	data, format, err := input.Bytes()
	if err != nil {
		return nil, err
	}

	req := faceDetectRequest{
		Image:  base64.StdEncoding.EncodeToString(data),
		Format: format,
	}

	var resp faceDetectResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/detect")

	if err != nil {
		return nil, fmt.Errorf("%w: face engine request failed: %v", ErrUnavailable, err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("face engine error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("face engine error: status %d", httpResp.StatusCode())
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		detections = append(detections, Detection{
			Box:       f.Box,
			Embedding: f.Embedding,
		})
	}
	return detections, nil
}
