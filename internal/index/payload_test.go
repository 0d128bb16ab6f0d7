package index

import (
	"reflect"
	"testing"

	"github.com/deepak/photofind/internal/monitor"
)

func TestPointIDDeterministic(t *testing.T) {
	path := "/photos/2024/beach.jpg"

	first := PointID(path)
	second := PointID(path)
	if first != second {
		t.Errorf("same path produced different IDs: %s vs %s", first, second)
	}

	other := PointID("/photos/2024/beach copy.jpg")
	if other == first {
		t.Error("distinct paths produced the same ID")
	}
}

func TestPointIDIsValidUUID(t *testing.T) {
	id := PointID("/photos/a.jpg")
	if len(id) != 36 {
		t.Errorf("unexpected ID format: %q", id)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := &PhotoPayload{
		Path:     "/photos/party.jpg",
		OCRText:  "HAPPY BIRTHDAY",
		Faces:    []string{"alice", "bob"},
		Document: "Summary: a birthday party",
		Perf: map[string]monitor.StageStats{
			"ocr": {LatencySeconds: 0.1234, RAMDeltaMB: 1.25},
		},
	}

	out := parsePayload(payloadToValues(in))

	if out.Path != in.Path || out.OCRText != in.OCRText || out.Document != in.Document {
		t.Errorf("scalar fields lost: %+v", out)
	}
	if !reflect.DeepEqual(out.Faces, in.Faces) {
		t.Errorf("faces lost: %v", out.Faces)
	}
	if !reflect.DeepEqual(out.Perf, in.Perf) {
		t.Errorf("perf lost: %+v", out.Perf)
	}
}

func TestParsePayloadMissingFields(t *testing.T) {
	out := parsePayload(nil)
	if out.Path != "" || len(out.Faces) != 0 || out.Perf != nil {
		t.Errorf("empty payload should parse to zero value, got %+v", out)
	}
}
