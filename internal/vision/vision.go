// Package vision defines the capability contracts for the external model
// collaborators (OCR, face detection, captioning, semantic encoding) and
// provides HTTP client implementations for local sidecar servers.
package vision

import (
	"context"
	"errors"
	"image"
)

// ErrUnavailable reports that a model capability could not be reached or
// failed to load. Callers degrade to empty results rather than aborting.
var ErrUnavailable = errors.New("vision: capability unavailable")

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Detection is one detected face with its identity embedding.
type Detection struct {
	Box       Box
	Embedding []float32
}

// TextExtractor extracts visible text from an image. An image with no text
// yields an empty string, not an error; errors are reserved for hard
// failures (unreadable input, unreachable engine).
type TextExtractor interface {
	Extract(ctx context.Context, input ImageInput) (string, error)
}

// FaceEngine detects faces and computes one identity embedding per face.
type FaceEngine interface {
	Detect(ctx context.Context, input ImageInput) ([]Detection, error)
}

// CaptionEngine produces a natural-language description of an image,
// steered by a prompt.
type CaptionEngine interface {
	Describe(ctx context.Context, input ImageInput, prompt string) (string, error)
}

// SemanticEncoder embeds images and text into one shared vector space.
// The shared space is the contract that makes text-to-image retrieval
// meaningful; both methods must be served by the same encoder.
type SemanticEncoder interface {
	EncodeImage(ctx context.Context, input ImageInput) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
}

// ImageInput is a tagged union of a file path and an in-memory image.
// Components normalize it once at their boundary instead of sniffing types.
type ImageInput struct {
	path string
	img  image.Image
}

// FromPath wraps a filesystem path as an ImageInput.
func FromPath(path string) ImageInput {
	return ImageInput{path: path}
}

// FromImage wraps a decoded image as an ImageInput.
func FromImage(img image.Image) ImageInput {
	return ImageInput{img: img}
}

// Path returns the file path and true when the input is path-backed.
func (in ImageInput) Path() (string, bool) {
	return in.path, in.path != ""
}

// IsZero reports whether the input holds neither a path nor an image.
func (in ImageInput) IsZero() bool {
	return in.path == "" && in.img == nil
}
