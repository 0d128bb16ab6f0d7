package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// Load decodes the input into an in-memory image. In-memory inputs are
// returned as-is; the caller's image is never mutated.
func (in ImageInput) Load() (image.Image, error) {
	if in.img != nil {
		return in.img, nil
	}
	if in.path == "" {
		return nil, fmt.Errorf("empty image input")
	}

	f, err := os.Open(in.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", in.path, err)
	}
	return img, nil
}

// Bytes returns the input as encoded image bytes plus a format extension
// suitable for MIME typing. Path-backed inputs are read verbatim;
// in-memory images are encoded as JPEG.
func (in ImageInput) Bytes() ([]byte, string, error) {
	if in.path != "" {
		data, err := os.ReadFile(in.path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read image: %w", err)
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(in.path)), ".")
		if ext == "" {
			ext = "jpg"
		}
		return data, ext, nil
	}
	if in.img == nil {
		return nil, "", fmt.Errorf("empty image input")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, in.img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), "jpg", nil
}

// Downscale returns a copy scaled so the longest side is at most maxDim,
// preserving aspect ratio. Images already within bounds are returned
// unchanged. The source image is never mutated.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxDim <= 0 || longest <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longest)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// MIMEType maps a format extension to its image MIME type.
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
