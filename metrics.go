package popstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordRestructure is called after each partition restructuring.
	// moved is the number of individuals physically relocated.
	RecordRestructure(duration time.Duration, moved int, err error)

	// RecordPush is called after each generation push.
	RecordPush(duration time.Duration, err error)

	// RecordEdit is called after each structural schema edit.
	// generations is the number of generations whose buffers were migrated.
	RecordEdit(duration time.Duration, generations int, err error)

	// RecordSort is called after each physical re-sort of the buffers.
	RecordSort(duration time.Duration, bytes int64)

	// RecordSnapshot is called after each snapshot write or read.
	RecordSnapshot(bytes int64, err error)
}

// DefaultMetricsCollector is a basic implementation that tracks counts using
// atomic operations. Safe for concurrent use.
type DefaultMetricsCollector struct {
	restructures     atomic.Int64
	restructureFails atomic.Int64
	pushes           atomic.Int64
	edits            atomic.Int64
	editFails        atomic.Int64
	sorts            atomic.Int64
	sortedBytes      atomic.Int64
	snapshots        atomic.Int64
}

// RecordRestructure increments restructure counters.
func (m *DefaultMetricsCollector) RecordRestructure(_ time.Duration, _ int, err error) {
	m.restructures.Add(1)
	if err != nil {
		m.restructureFails.Add(1)
	}
}

// RecordPush increments the push counter.
func (m *DefaultMetricsCollector) RecordPush(_ time.Duration, err error) {
	if err == nil {
		m.pushes.Add(1)
	}
}

// RecordEdit increments edit counters.
func (m *DefaultMetricsCollector) RecordEdit(_ time.Duration, _ int, err error) {
	m.edits.Add(1)
	if err != nil {
		m.editFails.Add(1)
	}
}

// RecordSort increments sort counters.
func (m *DefaultMetricsCollector) RecordSort(_ time.Duration, bytes int64) {
	m.sorts.Add(1)
	m.sortedBytes.Add(bytes)
}

// RecordSnapshot increments the snapshot counter.
func (m *DefaultMetricsCollector) RecordSnapshot(_ int64, err error) {
	if err == nil {
		m.snapshots.Add(1)
	}
}

// Stats returns a snapshot of the collected counters.
func (m *DefaultMetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"restructures":      m.restructures.Load(),
		"restructure_fails": m.restructureFails.Load(),
		"pushes":            m.pushes.Load(),
		"edits":             m.edits.Load(),
		"edit_fails":        m.editFails.Load(),
		"sorts":             m.sorts.Load(),
		"sorted_bytes":      m.sortedBytes.Load(),
		"snapshots":         m.snapshots.Load(),
	}
}

// noopMetrics discards all metrics.
type noopMetrics struct{}

func (noopMetrics) RecordRestructure(time.Duration, int, error) {}
func (noopMetrics) RecordPush(time.Duration, error)             {}
func (noopMetrics) RecordEdit(time.Duration, int, error)        {}
func (noopMetrics) RecordSort(time.Duration, int64)             {}
func (noopMetrics) RecordSnapshot(int64, error)                 {}
