package faces

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepak/photofind/internal/logger"
	"github.com/deepak/photofind/internal/vision"
)

// fakeEngine is a scriptable FaceEngine test double.
type fakeEngine struct {
	detectFn func(ctx context.Context, input vision.ImageInput) ([]vision.Detection, error)
	calls    int
}

func (f *fakeEngine) Detect(ctx context.Context, input vision.ImageInput) ([]vision.Detection, error) {
	f.calls++
	if f.detectFn == nil {
		return nil, nil
	}
	return f.detectFn(ctx, input)
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: os.Stderr, ServiceName: "test"})
}

func writeReferencePhoto(t *testing.T, dir, person, name string) {
	t.Helper()
	personDir := filepath.Join(dir, person)
	if err := os.MkdirAll(personDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(personDir, name), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T, engine vision.FaceEngine, threshold float64) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(&Config{Dir: dir, MatchThreshold: threshold}, engine, testLogger())
	return store, dir
}

func constEngine(det []vision.Detection) *fakeEngine {
	return &fakeEngine{detectFn: func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		return det, nil
	}}
}

func TestScanAndUpdateIsIncremental(t *testing.T) {
	refVec := []float32{1, 0, 0}
	engine := constEngine([]vision.Detection{{Embedding: refVec}})
	store, dir := newTestStore(t, engine, 0)

	writeReferencePhoto(t, dir, "alice", "ref.jpg")

	computed, err := store.ScanAndUpdate(context.Background())
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if computed != 1 {
		t.Fatalf("expected 1 computed embedding, got %d", computed)
	}

	cachePath := filepath.Join(dir, cacheFileName)
	before, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	// Second scan over the same tree must do zero embedding work and
	// leave the cache file content untouched.
	engine.calls = 0
	computed, err = store.ScanAndUpdate(context.Background())
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if computed != 0 {
		t.Errorf("expected 0 computed embeddings on rescan, got %d", computed)
	}
	if engine.calls != 0 {
		t.Errorf("rescan invoked the engine %d times", engine.calls)
	}

	after, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("rescan with no new files changed the cache file")
	}
}

func TestScanSkipsPhotosWithoutFaces(t *testing.T) {
	engine := constEngine(nil)
	store, dir := newTestStore(t, engine, 0)

	writeReferencePhoto(t, dir, "alice", "blurry.jpg")

	computed, err := store.ScanAndUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if computed != 0 {
		t.Errorf("expected no embeddings from a faceless photo, got %d", computed)
	}
	if len(store.KnownNames()) != 0 {
		t.Errorf("faceless photo registered a person: %v", store.KnownNames())
	}
}

func TestScanIgnoresNonImageFiles(t *testing.T) {
	engine := constEngine([]vision.Detection{{Embedding: []float32{1}}})
	store, dir := newTestStore(t, engine, 0)

	writeReferencePhoto(t, dir, "alice", "notes.txt")

	computed, err := store.ScanAndUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if computed != 0 || engine.calls != 0 {
		t.Errorf("non-image file was processed: computed=%d calls=%d", computed, engine.calls)
	}
}

func TestAbortedScanPersistsProgress(t *testing.T) {
	// The engine embeds the first reference photo, then goes down.
	calls := 0
	engine := &fakeEngine{detectFn: func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		calls++
		if calls > 1 {
			return nil, vision.ErrUnavailable
		}
		return []vision.Detection{{Embedding: []float32{1, 0}}}, nil
	}}
	store, dir := newTestStore(t, engine, 0)

	writeReferencePhoto(t, dir, "alice", "ref.jpg")
	writeReferencePhoto(t, dir, "bob", "ref.jpg")

	computed, err := store.ScanAndUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if computed != 1 {
		t.Fatalf("expected 1 embedding before the outage, got %d", computed)
	}

	// A fresh store must see alice's embedding without recomputing it.
	reloaded := NewStore(&Config{Dir: dir}, constEngine(nil), testLogger())
	names := reloaded.KnownNames()
	if len(names) != 1 || names[0] != "alice" {
		t.Errorf("aborted scan lost its progress: %v", names)
	}
}

func TestCorruptCacheStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, cacheFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(&Config{Dir: dir}, constEngine(nil), testLogger())
	if len(store.KnownNames()) != 0 {
		t.Errorf("corrupt cache produced people: %v", store.KnownNames())
	}
}

func TestCacheSurvivesReload(t *testing.T) {
	refVec := []float32{0.5, 0.5}
	engine := constEngine([]vision.Detection{{Embedding: refVec}})
	store, dir := newTestStore(t, engine, 0)

	writeReferencePhoto(t, dir, "bob", "ref.jpg")
	if _, err := store.ScanAndUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloaded := NewStore(&Config{Dir: dir}, constEngine(nil), testLogger())
	names := reloaded.KnownNames()
	if len(names) != 1 || names[0] != "bob" {
		t.Errorf("reloaded store lost people: %v", names)
	}
	if reloaded.ReferenceCounts()["bob"] != 1 {
		t.Errorf("reloaded store lost references: %v", reloaded.ReferenceCounts())
	}
}

func seedStore(t *testing.T, threshold float64, person string, ref []float32) (*Store, *fakeEngine) {
	t.Helper()
	engine := constEngine([]vision.Detection{{Embedding: ref}})
	store, dir := newTestStore(t, engine, threshold)
	writeReferencePhoto(t, dir, person, "ref.jpg")
	if _, err := store.ScanAndUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store, engine
}

func TestDetectAndNameIdenticalEmbedding(t *testing.T) {
	ref := []float32{0.1, 0.9, 0.3}
	store, engine := seedStore(t, 0, "alice", ref)

	engine.detectFn = func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		return []vision.Detection{{Embedding: ref, Box: vision.Box{X: 1, Y: 2, Width: 3, Height: 4}}}, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	results := store.DetectAndName(context.Background(), vision.FromImage(img))

	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].Name != "alice" {
		t.Errorf("wrong name: %s", results[0].Name)
	}
	if results[0].Confidence != 1.0 {
		t.Errorf("identical embedding should have confidence 1.0, got %v", results[0].Confidence)
	}
}

func TestMatchThresholdIsStrict(t *testing.T) {
	ref := []float32{1, 0}
	probe := []float32{0.4, 0.9165151} // roughly unit length, similarity near 0.4
	dist := CosineDistance(ref, probe)

	// A threshold exactly equal to the probe's distance must not match;
	// nudging the threshold just above it must.
	store, engine := seedStore(t, dist, "alice", ref)
	engine.detectFn = func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		return []vision.Detection{{Embedding: probe}}, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	if got := store.DetectAndName(context.Background(), vision.FromImage(img)); len(got) != 0 {
		t.Errorf("distance equal to threshold must not match, got %v", got)
	}

	store2, engine2 := seedStore(t, dist+1e-9, "alice", ref)
	engine2.detectFn = engine.detectFn
	got := store2.DetectAndName(context.Background(), vision.FromImage(img))
	if len(got) != 1 {
		t.Fatalf("distance below threshold must match, got %d results", len(got))
	}
	if got[0].Confidence <= 0 || got[0].Confidence > 1 {
		t.Errorf("confidence out of range: %v", got[0].Confidence)
	}
}

func TestUnknownFacesAreFiltered(t *testing.T) {
	store, engine := seedStore(t, DefaultMatchThreshold, "alice", []float32{1, 0})

	// Orthogonal embedding: distance 1.0, far above the threshold.
	engine.detectFn = func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		return []vision.Detection{{Embedding: []float32{0, 1}}}, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if got := store.DetectAndName(context.Background(), vision.FromImage(img)); len(got) != 0 {
		t.Errorf("unknown face leaked into results: %v", got)
	}
}

func TestDetectAndNameEngineFailure(t *testing.T) {
	store, engine := seedStore(t, 0, "alice", []float32{1, 0})
	engine.detectFn = func(context.Context, vision.ImageInput) ([]vision.Detection, error) {
		return nil, vision.ErrUnavailable
	}

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if got := store.DetectAndName(context.Background(), vision.FromImage(img)); len(got) != 0 {
		t.Errorf("engine failure must yield empty results, got %v", got)
	}
}

func TestBoxesRescaledToOriginalCoordinates(t *testing.T) {
	ref := []float32{1, 0}
	store, engine := seedStore(t, 0.5, "alice", ref)

	engine.detectFn = func(ctx context.Context, input vision.ImageInput) ([]vision.Detection, error) {
		return []vision.Detection{{
			Embedding: ref,
			Box:       vision.Box{X: 10, Y: 20, Width: 30, Height: 40},
		}}, nil
	}

	// 2048px longest side downscales by exactly 2x for detection.
	img := image.NewRGBA(image.Rect(0, 0, 2048, 1024))
	results := store.DetectAndName(context.Background(), vision.FromImage(img))
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}

	want := vision.Box{X: 20, Y: 40, Width: 60, Height: 80}
	if results[0].Box != want {
		t.Errorf("box not rescaled: got %+v, want %+v", results[0].Box, want)
	}
}

func TestRemovePerson(t *testing.T) {
	store, _ := seedStore(t, 0, "alice", []float32{1, 0})

	if err := store.RemovePerson("alice"); err != nil {
		t.Fatal(err)
	}
	if len(store.KnownNames()) != 0 {
		t.Errorf("person not removed: %v", store.KnownNames())
	}
}
