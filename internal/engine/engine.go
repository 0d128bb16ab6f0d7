// Package engine orchestrates the indexing and retrieval pipeline: it
// canonicalizes paths, deduplicates against the catalog and vector index,
// runs extraction, and serves queries.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deepak/photofind/internal/catalog"
	"github.com/deepak/photofind/internal/extract"
	"github.com/deepak/photofind/internal/index"
	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/monitor"
	"github.com/deepak/photofind/internal/vision"
)

// ErrNotFound reports that the requested photo does not exist on disk.
var ErrNotFound = errors.New("engine: photo not found")

// VectorIndex is the vector store surface the engine depends on.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dim int) error
	Has(ctx context.Context, pointID string) (bool, error)
	Upsert(ctx context.Context, pointID string, vector []float32, payload *index.PhotoPayload) error
	Search(ctx context.Context, vector []float32, names []string, limit int) ([]index.SearchResult, error)
	Scroll(ctx context.Context, limit int) ([]index.SearchResult, error)
	Count(ctx context.Context) (uint64, error)
	Drop(ctx context.Context) error
}

// Extractor turns one image into a vector plus metadata.
type Extractor interface {
	Process(ctx context.Context, input vision.ImageInput) ([]float32, extract.Metadata, map[string]monitor.StageStats, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Catalog is the relational record surface the engine depends on.
type Catalog interface {
	Upsert(ctx context.Context, photo *catalog.Photo) error
	ExistsByID(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]catalog.Photo, error)
	Count(ctx context.Context) (int64, error)
	CountWithText(ctx context.Context) (int64, error)
	FaceCounts(ctx context.Context) (map[string]int64, error)
	Reset(ctx context.Context) error
}

// FaceRegistry exposes the set of people the query parser can match.
type FaceRegistry interface {
	KnownNames() []string
	ReferenceCounts() map[string]int
}

// Engine wires extraction, the catalog, and the vector index together.
type Engine struct {
	idx       VectorIndex
	extractor Extractor
	cat       Catalog
	faces     FaceRegistry
	logger    *logger.Logger

	mu      sync.Mutex
	ensured bool
}

// New creates an Engine.
func New(idx VectorIndex, extractor Extractor, cat Catalog, faces FaceRegistry, log *logger.Logger) *Engine {
	return &Engine{
		idx:       idx,
		extractor: extractor,
		cat:       cat,
		faces:     faces,
		logger:    log.WithField(logger.FieldComponent, "engine"),
	}
}

// log returns the request logger from context when one is attached (the
// API middleware does this), otherwise the engine's own; both carry the
// engine component field.
func (e *Engine) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.AttachedFromContext(ctx); ok {
		return l.WithField(logger.FieldComponent, "engine")
	}
	return e.logger
}

// AddResult describes the outcome of indexing one photo.
type AddResult int

const (
	ResultIndexed AddResult = iota
	ResultSkipped
)

// AddOptions holds options for indexing.
type AddOptions struct {
	Force bool // re-process even when the photo is already indexed
}

// AddImage indexes one photo. The path is canonicalized before anything
// else so the same file always maps to the same record, and already
// indexed photos are skipped without running extraction.
func (e *Engine) AddImage(ctx context.Context, path string, opts *AddOptions) (AddResult, error) {
	if opts == nil {
		opts = &AddOptions{}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ResultSkipped, fmt.Errorf("cannot resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ResultSkipped, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return ResultSkipped, fmt.Errorf("cannot stat %s: %w", abs, err)
	}

	id := index.PointID(abs)

	if !opts.Force {
		// The catalog check is local and cheap; the index check covers
		// records written before the catalog existed.
		if exists, err := e.cat.ExistsByID(ctx, id); err == nil && exists {
			return ResultSkipped, nil
		}
		if exists, err := e.idx.Has(ctx, id); err == nil && exists {
			return ResultSkipped, nil
		}
	}

	vector, meta, perf, err := e.extractor.Process(ctx, vision.FromPath(abs))
	if err != nil {
		return ResultSkipped, fmt.Errorf("extraction failed for %s: %w", abs, err)
	}

	if err := e.ensureCollection(ctx, len(vector)); err != nil {
		return ResultSkipped, err
	}

	payload := &index.PhotoPayload{
		Path:     abs,
		OCRText:  meta.OCRText,
		Faces:    meta.Faces,
		Document: meta.Document,
		Perf:     perf,
	}
	if err := e.idx.Upsert(ctx, id, vector, payload); err != nil {
		return ResultSkipped, fmt.Errorf("failed to store %s: %w", abs, err)
	}

	perfJSON, _ := json.Marshal(perf)
	record := &catalog.Photo{
		ID:      id,
		Path:    abs,
		OCRText: meta.OCRText,
		Faces:   catalog.StringArray(meta.Faces),
		Caption: meta.Caption,
		Perf:    string(perfJSON),
	}
	if err := e.cat.Upsert(ctx, record); err != nil {
		// The vector write already succeeded, so the photo is searchable;
		// only the stats view is stale.
		e.log(ctx).WithError(err).WithField(logger.FieldPath, abs).Warn("Catalog write failed")
	}

	e.log(ctx).WithFields(logger.Fields{
		logger.FieldPath:  abs,
		logger.FieldCount: len(meta.Faces),
	}).Info("Indexed photo")

	return ResultIndexed, nil
}

// ensureCollection lazily creates the collection on the first insert,
// sized to whatever the encoder produced.
func (e *Engine) ensureCollection(ctx context.Context, dim int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensured {
		return nil
	}
	if err := e.idx.EnsureCollection(ctx, dim); err != nil {
		return err
	}
	e.ensured = true
	return nil
}

// BatchStats holds statistics for an indexing run.
type BatchStats struct {
	Total     int
	Indexed   int
	Skipped   int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// ProgressFunc is called after each photo with the running counts.
type ProgressFunc func(done, total int)

// IndexBatch indexes a list of photos sequentially. Individual failures
// are counted and logged; only context cancellation and schema mismatch
// abort the run.
func (e *Engine) IndexBatch(ctx context.Context, paths []string, opts *AddOptions, progress ProgressFunc) (*BatchStats, error) {
	stats := &BatchStats{
		Total:     len(paths),
		StartTime: time.Now(),
	}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		result, err := e.AddImage(ctx, path, opts)
		switch {
		case errors.Is(err, index.ErrSchemaMismatch):
			stats.EndTime = time.Now()
			return stats, err
		case err != nil:
			stats.Failed++
			e.log(ctx).WithError(err).WithField(logger.FieldPath, path).Error("Failed to index photo")
		case result == ResultSkipped:
			stats.Skipped++
		default:
			stats.Indexed++
		}

		if progress != nil {
			progress(i+1, stats.Total)
		}
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// QueryResult is one search hit.
type QueryResult struct {
	Path    string   `json:"path"`
	Score   float32  `json:"score"`
	OCRText string   `json:"ocr_text,omitempty"`
	Faces   []string `json:"faces,omitempty"`
}

// Search embeds the query text and runs a similarity search. Known person
// names mentioned in the query become a payload filter, so "mom at the
// beach" only returns photos mom is actually in.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]QueryResult, error) {
	names := e.matchKnownNames(query)

	vector, err := e.extractor.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := e.idx.Search(ctx, vector, names, limit)
	if err != nil {
		return nil, err
	}

	e.log(ctx).WithFields(logger.Fields{
		logger.FieldQuery: query,
		logger.FieldCount: len(hits),
		"filtered_names":  names,
	}).Info("Search completed")

	return toQueryResults(hits), nil
}

// matchKnownNames finds known people mentioned in the query by
// case-insensitive substring match.
func (e *Engine) matchKnownNames(query string) []string {
	lowered := strings.ToLower(query)
	var names []string
	for _, name := range e.faces.KnownNames() {
		if strings.Contains(lowered, strings.ToLower(name)) {
			names = append(names, name)
		}
	}
	return names
}

// GetAllImages lists up to limit indexed photos without a query, dropping
// records whose file no longer exists on disk.
func (e *Engine) GetAllImages(ctx context.Context, limit int) ([]QueryResult, error) {
	hits, err := e.idx.Scroll(ctx, limit)
	if err != nil {
		return nil, err
	}

	results := make([]QueryResult, 0, len(hits))
	for _, hit := range toQueryResults(hits) {
		if _, err := os.Stat(hit.Path); err != nil {
			continue
		}
		results = append(results, hit)
	}
	return results, nil
}

func toQueryResults(hits []index.SearchResult) []QueryResult {
	results := make([]QueryResult, len(hits))
	for i, hit := range hits {
		results[i] = QueryResult{
			Path:    hit.Payload.Path,
			Score:   hit.Score,
			OCRText: hit.Payload.OCRText,
			Faces:   hit.Payload.Faces,
		}
	}
	return results
}

// IsIndexed reports whether the photo at path has an index record. Used
// by the API to decide which files it may serve back to the GUI.
func (e *Engine) IsIndexed(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	id := index.PointID(abs)
	if exists, err := e.cat.ExistsByID(ctx, id); err == nil && exists {
		return true, nil
	}
	return e.idx.Has(ctx, id)
}

// LibraryStats summarizes the indexed library.
type LibraryStats struct {
	IndexedPhotos  uint64           `json:"indexed_photos"`
	PhotosWithText int64            `json:"photos_with_text"`
	FaceCounts     map[string]int64 `json:"face_counts"`
	KnownPeople    map[string]int   `json:"known_people"`
}

// Stats gathers library statistics from the index, catalog, and face store.
func (e *Engine) Stats(ctx context.Context) (*LibraryStats, error) {
	stats := &LibraryStats{
		KnownPeople: e.faces.ReferenceCounts(),
	}

	count, err := e.idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.IndexedPhotos = count

	if withText, err := e.cat.CountWithText(ctx); err == nil {
		stats.PhotosWithText = withText
	}
	if faceCounts, err := e.cat.FaceCounts(ctx); err == nil {
		stats.FaceCounts = faceCounts
	}

	return stats, nil
}

// Clear drops the vector collection and empties the catalog.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.idx.Drop(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.ensured = false
	e.mu.Unlock()
	return e.cat.Reset(ctx)
}
