// Package monitor provides scoped timing and resident-memory instrumentation
// for named pipeline stages. Measurements are advisory and never drive
// control flow.
package monitor

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StageStats holds one stage's measurement.
type StageStats struct {
	LatencySeconds float64 `json:"latency_sec"`
	RAMDeltaMB     float64 `json:"ram_change_mb"`
}

// Monitor records per-stage stats for a single pipeline invocation.
type Monitor struct {
	mu      sync.Mutex
	proc    *process.Process
	metrics map[string]StageStats
}

// New creates a Monitor bound to the current process. RSS sampling failures
// are tolerated: latency is still recorded with a zero memory delta.
func New() *Monitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Monitor{
		proc:    proc,
		metrics: make(map[string]StageStats),
	}
}

// Task is a started measurement. Stop must be called on every exit path,
// typically via defer.
type Task struct {
	monitor  *Monitor
	name     string
	start    time.Time
	startRSS float64
	stopped  bool
}

// Start begins measuring the named stage.
func (m *Monitor) Start(name string) *Task {
	return &Task{
		monitor:  m,
		name:     name,
		start:    time.Now(),
		startRSS: m.rssMB(),
	}
}

// Stop records latency and memory delta for the stage. Safe to call once;
// subsequent calls are no-ops so defer and explicit stops can coexist.
func (t *Task) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true

	duration := time.Since(t.start).Seconds()
	ramDelta := t.monitor.rssMB() - t.startRSS
	t.monitor.record(t.name, duration, ramDelta)
}

func (m *Monitor) record(name string, seconds, ramDeltaMB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[name] = StageStats{
		LatencySeconds: round(seconds, 4),
		RAMDeltaMB:     round(ramDeltaMB, 2),
	}
}

// Summary returns a copy of all recorded stage stats.
func (m *Monitor) Summary() map[string]StageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StageStats, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out
}

// rssMB samples the current resident set size in megabytes.
func (m *Monitor) rssMB() float64 {
	if m.proc == nil {
		return 0
	}
	info, err := m.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
