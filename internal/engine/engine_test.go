package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/deepak/photofind/internal/catalog"
	"github.com/deepak/photofind/internal/extract"
	"github.com/deepak/photofind/internal/index"
	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/monitor"
	"github.com/deepak/photofind/internal/vision"
)

type fakeIndex struct {
	points       map[string]*index.PhotoPayload
	ensuredDim   int
	ensureErr    error
	hasCalls     int
	searchNames  []string
	searchResult []index.SearchResult
	upsertErr    error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[string]*index.PhotoPayload)}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, dim int) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensuredDim = dim
	return nil
}

func (f *fakeIndex) Has(_ context.Context, id string) (bool, error) {
	f.hasCalls++
	_, ok := f.points[id]
	return ok, nil
}

func (f *fakeIndex) Upsert(_ context.Context, id string, _ []float32, payload *index.PhotoPayload) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[id] = payload
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, names []string, _ int) ([]index.SearchResult, error) {
	f.searchNames = names
	return f.searchResult, nil
}

func (f *fakeIndex) Scroll(context.Context, int) ([]index.SearchResult, error) {
	return f.searchResult, nil
}

func (f *fakeIndex) Count(context.Context) (uint64, error) {
	return uint64(len(f.points)), nil
}

func (f *fakeIndex) Drop(context.Context) error {
	f.points = make(map[string]*index.PhotoPayload)
	return nil
}

type fakeExtractor struct {
	vector    []float32
	meta      extract.Metadata
	err       error
	processed int
}

func (f *fakeExtractor) Process(context.Context, vision.ImageInput) ([]float32, extract.Metadata, map[string]monitor.StageStats, error) {
	f.processed++
	perf := map[string]monitor.StageStats{"ocr": {LatencySeconds: 0.01}}
	return f.vector, f.meta, perf, f.err
}

func (f *fakeExtractor) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fakeCatalog struct {
	records map[string]*catalog.Photo
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{records: make(map[string]*catalog.Photo)}
}

func (f *fakeCatalog) Upsert(_ context.Context, photo *catalog.Photo) error {
	f.records[photo.ID] = photo
	return nil
}

func (f *fakeCatalog) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := f.records[id]
	return ok, nil
}

func (f *fakeCatalog) List(context.Context, int, int) ([]catalog.Photo, error) {
	return nil, nil
}

func (f *fakeCatalog) Count(context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeCatalog) CountWithText(context.Context) (int64, error) {
	var n int64
	for _, rec := range f.records {
		if rec.OCRText != "" {
			n++
		}
	}
	return n, nil
}

func (f *fakeCatalog) FaceCounts(context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeCatalog) Reset(context.Context) error {
	f.records = make(map[string]*catalog.Photo)
	return nil
}

type fakeFaces struct {
	names []string
}

func (f *fakeFaces) KnownNames() []string { return f.names }

func (f *fakeFaces) ReferenceCounts() map[string]int {
	counts := make(map[string]int, len(f.names))
	for _, name := range f.names {
		counts[name] = 1
	}
	return counts
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: os.Stderr, ServiceName: "test"})
}

func writePhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(idx *fakeIndex, ext *fakeExtractor, cat *fakeCatalog, faces *fakeFaces) *Engine {
	if idx == nil {
		idx = newFakeIndex()
	}
	if ext == nil {
		ext = &fakeExtractor{vector: []float32{0.1, 0.2}}
	}
	if cat == nil {
		cat = newFakeCatalog()
	}
	if faces == nil {
		faces = &fakeFaces{}
	}
	return New(idx, ext, cat, faces, testLogger())
}

func TestAddImageIndexesNewPhoto(t *testing.T) {
	idx := newFakeIndex()
	ext := &fakeExtractor{
		vector: []float32{0.1, 0.2, 0.3},
		meta:   extract.Metadata{OCRText: "menu", Faces: []string{"alice"}},
	}
	cat := newFakeCatalog()
	e := newTestEngine(idx, ext, cat, nil)

	path := writePhoto(t)
	result, err := e.AddImage(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultIndexed {
		t.Errorf("expected ResultIndexed, got %v", result)
	}
	if idx.ensuredDim != 3 {
		t.Errorf("collection not sized to embedding: %d", idx.ensuredDim)
	}

	abs, _ := filepath.Abs(path)
	payload, ok := idx.points[index.PointID(abs)]
	if !ok {
		t.Fatal("point not written under deterministic ID")
	}
	if payload.Path != abs || payload.OCRText != "menu" {
		t.Errorf("wrong payload: %+v", payload)
	}
	if len(payload.Perf) == 0 {
		t.Error("perf summary missing from payload")
	}
	if _, ok := cat.records[index.PointID(abs)]; !ok {
		t.Error("catalog record not written")
	}
}

func TestAddImageSkipsAlreadyIndexed(t *testing.T) {
	idx := newFakeIndex()
	ext := &fakeExtractor{vector: []float32{1}}
	cat := newFakeCatalog()
	e := newTestEngine(idx, ext, cat, nil)

	path := writePhoto(t)
	if _, err := e.AddImage(context.Background(), path, nil); err != nil {
		t.Fatal(err)
	}

	result, err := e.AddImage(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultSkipped {
		t.Errorf("expected skip on re-index, got %v", result)
	}
	if ext.processed != 1 {
		t.Errorf("skip must not run extraction, processed %d times", ext.processed)
	}
}

func TestAddImageForceReprocesses(t *testing.T) {
	ext := &fakeExtractor{vector: []float32{1}}
	e := newTestEngine(nil, ext, nil, nil)

	path := writePhoto(t)
	if _, err := e.AddImage(context.Background(), path, nil); err != nil {
		t.Fatal(err)
	}

	result, err := e.AddImage(context.Background(), path, &AddOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultIndexed || ext.processed != 2 {
		t.Errorf("force did not re-process: result=%v processed=%d", result, ext.processed)
	}
}

func TestAddImageMissingFile(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)

	_, err := e.AddImage(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexBatchCountsOutcomes(t *testing.T) {
	ext := &fakeExtractor{vector: []float32{1}}
	e := newTestEngine(nil, ext, nil, nil)

	good := writePhoto(t)
	missing := filepath.Join(t.TempDir(), "gone.jpg")

	stats, err := e.IndexBatch(context.Background(), []string{good, good, missing}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 || stats.Skipped != 1 || stats.Failed != 1 {
		t.Errorf("wrong stats: %+v", stats)
	}
}

func TestAddImagePropagatesStatErrors(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)

	// A component longer than NAME_MAX makes Stat fail with something
	// other than "does not exist".
	long := filepath.Join(t.TempDir(), strings.Repeat("a", 300)+".jpg")
	_, err := e.AddImage(context.Background(), long, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("stat failure misreported as missing photo: %v", err)
	}
}

func TestIndexBatchAbortsOnSchemaMismatch(t *testing.T) {
	idx := newFakeIndex()
	idx.ensureErr = fmt.Errorf("collection photos has size 512, embedding has 768: %w", index.ErrSchemaMismatch)
	ext := &fakeExtractor{vector: []float32{1}}
	e := newTestEngine(idx, ext, nil, nil)

	paths := []string{writePhoto(t), writePhoto(t)}
	stats, err := e.IndexBatch(context.Background(), paths, nil, nil)
	if !errors.Is(err, index.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch to surface, got %v", err)
	}
	if stats.Indexed != 0 {
		t.Errorf("mismatched run still indexed %d", stats.Indexed)
	}
	if ext.processed != 1 {
		t.Errorf("run not aborted after first mismatch, processed %d", ext.processed)
	}
}

func TestIndexBatchStopsOnCancellation(t *testing.T) {
	e := newTestEngine(nil, &fakeExtractor{vector: []float32{1}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := e.IndexBatch(ctx, []string{writePhoto(t)}, nil, nil)
	if err == nil {
		t.Fatal("expected context error")
	}
	if stats.Indexed != 0 {
		t.Errorf("cancelled run still indexed %d", stats.Indexed)
	}
}

func TestSearchFiltersOnMentionedNames(t *testing.T) {
	idx := newFakeIndex()
	idx.searchResult = []index.SearchResult{
		{Score: 0.9, Payload: index.PhotoPayload{Path: "/photos/a.jpg", Faces: []string{"Alice"}}},
	}
	faces := &fakeFaces{names: []string{"Alice", "Bob"}}
	e := newTestEngine(idx, &fakeExtractor{vector: []float32{1}}, nil, faces)

	results, err := e.Search(context.Background(), "photos of alice at the beach", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(idx.searchNames, []string{"Alice"}) {
		t.Errorf("name filter not applied: %v", idx.searchNames)
	}
	if len(results) != 1 || results[0].Path != "/photos/a.jpg" {
		t.Errorf("wrong results: %+v", results)
	}
}

func TestSearchWithoutNamesIsUnfiltered(t *testing.T) {
	idx := newFakeIndex()
	faces := &fakeFaces{names: []string{"Alice"}}
	e := newTestEngine(idx, &fakeExtractor{vector: []float32{1}}, nil, faces)

	if _, err := e.Search(context.Background(), "sunset over mountains", 5); err != nil {
		t.Fatal(err)
	}
	if len(idx.searchNames) != 0 {
		t.Errorf("unexpected name filter: %v", idx.searchNames)
	}
}

func TestGetAllImagesSkipsMissingFiles(t *testing.T) {
	existing := writePhoto(t)
	idx := newFakeIndex()
	idx.searchResult = []index.SearchResult{
		{Payload: index.PhotoPayload{Path: existing}},
		{Payload: index.PhotoPayload{Path: "/photos/deleted.jpg"}},
	}
	e := newTestEngine(idx, nil, nil, nil)

	results, err := e.GetAllImages(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != existing {
		t.Errorf("deleted file leaked into results: %+v", results)
	}
}

func TestLogCarriesComponentField(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(&logger.Config{Level: "info", Format: "text", Output: &buf, ServiceName: "test"})
	e := newTestEngine(nil, nil, nil, nil)

	// Request-scoped logger attached to the context, as the API does.
	ctx := base.WithContext(context.Background())
	e.log(ctx).Info("ping")
	if !strings.Contains(buf.String(), "component=engine") {
		t.Errorf("context logger lost the component field: %s", buf.String())
	}

	// No logger in the context falls back to the engine's own.
	if got := e.log(context.Background()); got != e.logger {
		t.Error("plain context did not use the engine logger")
	}
}
