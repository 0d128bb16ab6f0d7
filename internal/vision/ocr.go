package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OCRClient is a TextExtractor backed by a local OCR sidecar server.
type OCRClient struct {
	client *resty.Client
}

// OCRConfig holds configuration for the OCR sidecar client.
type OCRConfig struct {
	BaseURL string
}

// NewOCRClient creates an OCR sidecar client.
func NewOCRClient(cfg *OCRConfig) *OCRClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	return &OCRClient{client: client}
}

type ocrRequest struct {
	Image  string `json:"image"` // base64-encoded image bytes
	Format string `json:"format"`
}

type ocrResponse struct {
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

// Extract returns the text found in the image with whitespace collapsed.
// No text is an empty string, not an error.
func (c *OCRClient) Extract(ctx context.Context, input ImageInput) (string, error) {
	data, format, err := input.Bytes()
	if err != nil {
		return "", err
	}

	req := ocrRequest{
		Image:  base64.StdEncoding.EncodeToString(data),
		Format: format,
	}

	var resp ocrResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/ocr")

	if err != nil {
		return "", fmt.Errorf("%w: ocr request failed: %v", ErrUnavailable, err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return "", fmt.Errorf("ocr error: %s", resp.Detail)
		}
		return "", fmt.Errorf("ocr error: status %d", httpResp.StatusCode())
	}

	return strings.Join(strings.Fields(resp.Text), " "), nil
}
