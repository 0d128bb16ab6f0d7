// Package extract fuses the independent per-image signals (OCR text, face
// identities, semantic embedding, optional captions) into one record.
package extract

import (
	"context"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	"github.com/deepak/photofind/internal/faces"
	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/monitor"
	"github.com/deepak/photofind/internal/vision"
	"golang.org/x/image/draw"
)

// Stage names used in the perf summary.
const (
	StageOCR       = "ocr"
	StageFaces     = "face_detection"
	StageEmbedding = "clip_embedding"
	StageCaption   = "caption"
)

const (
	scenePrompt    = "Describe the setting and the people in this image."
	clothingPrompt = "Describe what this person is wearing. Focus on shirt, pants, and accessories."

	// ocrExcerptLimit bounds the OCR contribution to the composed document.
	ocrExcerptLimit = 300
)

// FaceNamer matches faces in an image against known people.
type FaceNamer interface {
	DetectAndName(ctx context.Context, input vision.ImageInput) []faces.DetectedFace
}

// Metadata is the non-vector part of an extracted record.
type Metadata struct {
	OCRText  string
	Faces    []string
	Caption  string // scene caption; empty when captioning is disabled
	Document string // flattened search document; empty when captioning is disabled
}

// Extractor orchestrates the extraction stages for one image. The OCR and
// face stages are isolated: their failures degrade to empty results. Only
// a failed embedding fails Process, since there is nothing to index
// without a vector.
type Extractor struct {
	ocr       vision.TextExtractor
	faceNamer FaceNamer
	encoder   vision.SemanticEncoder
	captioner vision.CaptionEngine // nil disables the caption stages
	log       *logger.Logger
}

// New creates an Extractor. captioner may be nil to run the basic
// three-stage pipeline.
func New(ocr vision.TextExtractor, faceNamer FaceNamer, encoder vision.SemanticEncoder, captioner vision.CaptionEngine, log *logger.Logger) *Extractor {
	return &Extractor{
		ocr:       ocr,
		faceNamer: faceNamer,
		encoder:   encoder,
		captioner: captioner,
		log:       log.WithField(logger.FieldComponent, "extract"),
	}
}

// Process extracts all signals for one image. Each stage is measured; the
// perf summary is returned even when a stage degraded to an empty result.
func (e *Extractor) Process(ctx context.Context, input vision.ImageInput) ([]float32, Metadata, map[string]monitor.StageStats, error) {
	mon := monitor.New()
	var meta Metadata

	meta.OCRText = e.runOCR(ctx, mon, input)

	detected := e.runFaces(ctx, mon, input)
	for _, face := range detected {
		if face.Name != "" {
			meta.Faces = append(meta.Faces, face.Name)
		}
	}

	vector, err := e.runEmbedding(ctx, mon, input)
	if err != nil {
		return nil, meta, mon.Summary(), fmt.Errorf("embedding failed: %w", err)
	}

	// Captioning depends on the face stage output (one follow-up prompt
	// per recognized person), so it runs after faces resolved.
	if e.captioner != nil {
		e.runCaptions(ctx, mon, input, detected, &meta)
	}

	return vector, meta, mon.Summary(), nil
}

func (e *Extractor) runOCR(ctx context.Context, mon *monitor.Monitor, input vision.ImageInput) string {
	task := mon.Start(StageOCR)
	defer task.Stop()

	text, err := e.ocr.Extract(ctx, input)
	if err != nil {
		e.log.WithError(err).Warn("OCR failed, continuing without text")
		return ""
	}
	return text
}

func (e *Extractor) runFaces(ctx context.Context, mon *monitor.Monitor, input vision.ImageInput) []faces.DetectedFace {
	task := mon.Start(StageFaces)
	defer task.Stop()

	return e.faceNamer.DetectAndName(ctx, input)
}

func (e *Extractor) runEmbedding(ctx context.Context, mon *monitor.Monitor, input vision.ImageInput) ([]float32, error) {
	task := mon.Start(StageEmbedding)
	defer task.Stop()

	return e.encoder.EncodeImage(ctx, input)
}

// runCaptions produces the scene caption, one clothing description per
// recognized person, and the flattened search document. Caption failures
// degrade to whatever was collected so far.
func (e *Extractor) runCaptions(ctx context.Context, mon *monitor.Monitor, input vision.ImageInput, detected []faces.DetectedFace, meta *Metadata) {
	task := mon.Start(StageCaption)
	defer task.Stop()

	scene, err := e.captioner.Describe(ctx, input, scenePrompt)
	if err != nil {
		e.log.WithError(err).Warn("Scene caption failed")
	}
	meta.Caption = scene

	var personSentences []string
	if len(detected) > 0 {
		img, err := input.Load()
		if err != nil {
			e.log.WithError(err).Warn("Failed to load image for person captions")
		} else {
			for _, face := range detected {
				crop := cropBody(img, face.Box)
				desc, err := e.captioner.Describe(ctx, vision.FromImage(crop), clothingPrompt)
				if err != nil {
					e.log.WithError(err).WithField(logger.FieldPerson, face.Name).Warn("Clothing caption failed")
					continue
				}
				personSentences = append(personSentences, fmt.Sprintf("%s is wearing %s", face.Name, desc))
			}
		}
	}

	meta.Document = ComposeDocument(scene, personSentences, meta.OCRText)
}

// cropBody applies the body-region heuristic to a face box already in
// original-image coordinates: widen by half a face on each side, extend
// down four head heights, clamp to the image bounds.
func cropBody(img image.Image, box vision.Box) image.Image {
	bounds := img.Bounds()

	x1 := box.X - box.Width/2
	x2 := box.X + box.Width + box.Width/2
	y1 := box.Y
	y2 := box.Y + box.Height*4

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return img
	}

	rect := image.Rect(x1, y1, x2, y2)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(dst, image.Point{}, img, rect, draw.Over, nil)
	return dst
}

// ComposeDocument flattens the caption signals and a truncated OCR excerpt
// into one searchable string.
func ComposeDocument(scene string, personSentences []string, ocrText string) string {
	var parts []string
	if scene != "" {
		parts = append(parts, "Summary: "+scene)
	}
	if len(personSentences) > 0 {
		parts = append(parts, "Details: "+strings.Join(personSentences, ". "))
	}
	if excerpt := ocrExcerpt(ocrText); excerpt != "" {
		parts = append(parts, "Text found: "+excerpt)
	}
	return strings.Join(parts, "\n")
}

// ocrExcerpt whitespace-normalizes the OCR text and caps it at
// ocrExcerptLimit bytes, backing off to a rune boundary so the cut never
// leaves a partial UTF-8 sequence.
func ocrExcerpt(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if len(normalized) <= ocrExcerptLimit {
		return normalized
	}
	cut := ocrExcerptLimit
	for cut > 0 && !utf8.RuneStart(normalized[cut]) {
		cut--
	}
	return normalized[:cut]
}

// EmbedQuery embeds query text into the image embedding space. The same
// encoder serves both sides, which is what makes retrieval meaningful.
func (e *Extractor) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.encoder.EncodeText(ctx, text)
}
