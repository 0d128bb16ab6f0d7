// Package faces maintains named reference face embeddings on disk and
// matches unknown faces against them by embedding distance.
package faces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/vision"
)

const (
	// DefaultMatchThreshold is the cosine-distance cutoff for accepting
	// an identity match. A face matches only when its best distance is
	// strictly below the threshold; lower is stricter.
	DefaultMatchThreshold = 0.6

	// DefaultDetectMaxDim bounds the longest image side before detection.
	DefaultDetectMaxDim = 1024

	cacheFileName = "known_faces_db.json"
)

var referenceExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DetectedFace is one named match in a target image. Confidence is
// 1 - cosine distance, in (0, 1]. The box is reported in the coordinate
// space of the original image, rescaled from the detection copy.
type DetectedFace struct {
	Name       string
	Confidence float64
	Box        vision.Box
}

// Config holds the tunables for a Store.
type Config struct {
	Dir            string  // reference tree: <Dir>/<person>/<photo>
	MatchThreshold float64 // zero selects DefaultMatchThreshold
	DetectMaxDim   int     // zero selects DefaultDetectMaxDim
}

// Store is an incremental, disk-persisted cache of reference embeddings.
// Reads are safe from multiple goroutines; scanning and person management
// follow the single-writer discipline of the rest of the pipeline.
type Store struct {
	dir       string
	cachePath string
	threshold float64
	maxDim    int
	engine    vision.FaceEngine
	log       *logger.Logger

	mu    sync.RWMutex
	known map[string]map[string][]float32 // person -> filename -> embedding
}

// NewStore loads the cache file (tolerating a missing or corrupt file) and
// returns a ready Store. Call ScanAndUpdate to pick up new reference
// photos; construction itself never touches the face engine.
func NewStore(cfg *Config, engine vision.FaceEngine, log *logger.Logger) *Store {
	threshold := cfg.MatchThreshold
	if threshold == 0 {
		threshold = DefaultMatchThreshold
	}
	maxDim := cfg.DetectMaxDim
	if maxDim == 0 {
		maxDim = DefaultDetectMaxDim
	}

	s := &Store{
		dir:       cfg.Dir,
		cachePath: filepath.Join(cfg.Dir, cacheFileName),
		threshold: threshold,
		maxDim:    maxDim,
		engine:    engine,
		log:       log.WithField(logger.FieldComponent, "faces"),
		known:     make(map[string]map[string][]float32),
	}
	s.loadFromDisk()
	return s
}

// loadFromDisk reads the cache file. A missing or unreadable file logs and
// leaves the store empty; construction never fails on cache problems.
func (s *Store) loadFromDisk() {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).Warn("Failed to read face cache, starting empty")
		}
		return
	}

	var known map[string]map[string][]float32
	if err := json.Unmarshal(data, &known); err != nil {
		s.log.WithError(err).Warn("Corrupt face cache, starting empty")
		return
	}

	s.known = known
	s.log.WithField(logger.FieldCount, len(known)).Info("Loaded known people from cache")
}

// saveToDisk persists the whole cache atomically: the JSON is written to a
// temp file in the cache directory and renamed over the old file, so a
// crash never leaves a partial cache.
func (s *Store) saveToDisk() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create faces dir: %w", err)
	}

	s.mu.RLock()
	data, err := json.Marshal(s.known)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode face cache: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, cacheFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write face cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.cachePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace face cache: %w", err)
	}
	return nil
}

// ScanAndUpdate walks the reference tree and embeds any photo not already
// cached as (person, filename). Reference photos with no detectable face
// are skipped with a log. The cache file is rewritten only when at least
// one embedding was inserted. Returns the number of embeddings computed.
func (s *Store) ScanAndUpdate(ctx context.Context) (int, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create faces dir: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read faces dir: %w", err)
	}

	computed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		person := entry.Name()

		photos, err := os.ReadDir(filepath.Join(s.dir, person))
		if err != nil {
			s.log.WithError(err).WithField(logger.FieldPerson, person).Warn("Failed to read person dir")
			continue
		}

		for _, photo := range photos {
			if photo.IsDir() {
				continue
			}
			name := photo.Name()
			if !referenceExtensions[strings.ToLower(filepath.Ext(name))] {
				continue
			}
			if s.hasReference(person, name) {
				continue
			}
			if err := ctx.Err(); err != nil {
				s.persistProgress(computed)
				return computed, err
			}

			s.log.WithFields(logger.Fields{
				logger.FieldPerson: person,
				logger.FieldPath:   name,
			}).Info("Learning face")

			path := filepath.Join(s.dir, person, name)
			detections, err := s.engine.Detect(ctx, vision.FromPath(path))
			if err != nil {
				if errors.Is(err, vision.ErrUnavailable) {
					s.log.WithError(err).Warn("Face engine unavailable, aborting scan")
					s.persistProgress(computed)
					return computed, nil
				}
				s.log.WithError(err).WithField(logger.FieldPath, path).Warn("Skipped reference photo")
				continue
			}
			if len(detections) == 0 {
				s.log.WithField(logger.FieldPath, path).Info("No face in reference photo, skipped")
				continue
			}

			// Reference photos are expected to contain one face; when the
			// detector returns several, the first is taken.
			s.insertReference(person, name, detections[0].Embedding)
			computed++
		}
	}

	if computed > 0 {
		if err := s.saveToDisk(); err != nil {
			return computed, err
		}
	}
	return computed, nil
}

// persistProgress writes the cache after an aborted scan so embeddings
// computed this run are not recomputed on the next one.
func (s *Store) persistProgress(computed int) {
	if computed == 0 {
		return
	}
	if err := s.saveToDisk(); err != nil {
		s.log.WithError(err).Warn("Failed to persist partial face cache")
	}
}

func (s *Store) hasReference(person, filename string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[person][filename]
	return ok
}

func (s *Store) insertReference(person, filename string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[person] == nil {
		s.known[person] = make(map[string][]float32)
	}
	s.known[person][filename] = embedding
}

// DetectAndName detects faces in the image and returns only the ones that
// matched a known person. An unavailable face engine yields an empty list,
// never an error to the caller.
func (s *Store) DetectAndName(ctx context.Context, input vision.ImageInput) []DetectedFace {
	img, err := input.Load()
	if err != nil {
		s.log.WithError(err).Warn("Failed to load image for detection")
		return nil
	}

	// Work on a downscaled copy for speed; the caller's image is untouched.
	detectImg := vision.Downscale(img, s.maxDim)
	scale := 1.0
	if detectImg.Bounds().Dx() != img.Bounds().Dx() {
		scale = float64(img.Bounds().Dx()) / float64(detectImg.Bounds().Dx())
	}

	detections, err := s.engine.Detect(ctx, vision.FromImage(detectImg))
	if err != nil {
		s.log.WithError(err).Warn("Face detection failed")
		return nil
	}

	var results []DetectedFace
	for _, det := range detections {
		if len(det.Embedding) == 0 {
			continue
		}

		bestName := ""
		bestDist := s.threshold

		s.mu.RLock()
		for person, refs := range s.known {
			for _, ref := range refs {
				dist := CosineDistance(ref, det.Embedding)
				if dist < bestDist {
					bestDist = dist
					bestName = person
				}
			}
		}
		s.mu.RUnlock()

		if bestName == "" {
			continue // below-threshold faces stay unreported
		}

		results = append(results, DetectedFace{
			Name:       bestName,
			Confidence: 1.0 - bestDist,
			Box:        rescaleBox(det.Box, scale),
		})
	}
	return results
}

// rescaleBox maps a box from detection-image coordinates back to the
// original image.
func rescaleBox(box vision.Box, scale float64) vision.Box {
	if scale == 1.0 {
		return box
	}
	return vision.Box{
		X:      int(float64(box.X) * scale),
		Y:      int(float64(box.Y) * scale),
		Width:  int(float64(box.Width) * scale),
		Height: int(float64(box.Height) * scale),
	}
}

// KnownNames returns the sorted list of registered people.
func (s *Store) KnownNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.known))
	for name := range s.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReferenceCounts returns the number of cached reference photos per person.
func (s *Store) ReferenceCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.known))
	for name, refs := range s.known {
		counts[name] = len(refs)
	}
	return counts
}

// Threshold returns the configured match threshold.
func (s *Store) Threshold() float64 {
	return s.threshold
}

// AddReferencePhotos copies photos into the person's reference folder and
// rescans. Returns the number of new embeddings computed.
func (s *Store) AddReferencePhotos(ctx context.Context, person string, photos []string) (int, error) {
	if person == "" {
		return 0, fmt.Errorf("person name is required")
	}

	personDir := filepath.Join(s.dir, person)
	if err := os.MkdirAll(personDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create person dir: %w", err)
	}

	for _, photo := range photos {
		if err := copyFile(photo, filepath.Join(personDir, filepath.Base(photo))); err != nil {
			return 0, fmt.Errorf("failed to copy %s: %w", photo, err)
		}
	}

	return s.ScanAndUpdate(ctx)
}

// RemovePerson deletes a person's reference folder and cache entries.
func (s *Store) RemovePerson(person string) error {
	if err := os.RemoveAll(filepath.Join(s.dir, person)); err != nil {
		return fmt.Errorf("failed to remove person dir: %w", err)
	}

	s.mu.Lock()
	_, existed := s.known[person]
	delete(s.known, person)
	s.mu.Unlock()

	if existed {
		return s.saveToDisk()
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
