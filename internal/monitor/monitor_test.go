package monitor

import (
	"errors"
	"testing"
)

func TestMonitorRecordsStage(t *testing.T) {
	m := New()

	task := m.Start("ocr")
	task.Stop()

	summary := m.Summary()
	stats, ok := summary["ocr"]
	if !ok {
		t.Fatal("expected ocr stage in summary")
	}
	if stats.LatencySeconds < 0 {
		t.Errorf("negative latency: %f", stats.LatencySeconds)
	}
}

func TestMonitorRecordsOnFailurePath(t *testing.T) {
	m := New()

	// The deferred Stop must record the stage even when the measured
	// function returns an error.
	failing := func() (err error) {
		task := m.Start("embedding")
		defer task.Stop()
		return errors.New("model unavailable")
	}

	if err := failing(); err == nil {
		t.Fatal("expected error from measured function")
	}

	if _, ok := m.Summary()["embedding"]; !ok {
		t.Error("stage not recorded on error exit path")
	}
}

func TestTaskStopIsIdempotent(t *testing.T) {
	m := New()

	task := m.Start("faces")
	task.Stop()
	first := m.Summary()["faces"]

	task.Stop()
	second := m.Summary()["faces"]

	if first != second {
		t.Errorf("second Stop changed recorded stats: %+v != %+v", first, second)
	}
}

func TestSummaryIsACopy(t *testing.T) {
	m := New()
	m.Start("a").Stop()

	summary := m.Summary()
	summary["b"] = StageStats{}

	if _, ok := m.Summary()["b"]; ok {
		t.Error("mutating the returned summary leaked into the monitor")
	}
}
