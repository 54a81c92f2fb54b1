package segstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    readCounter  prometheus.Counter
//	    readDuration prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSegmentRead(cached bool, duration time.Duration, err error) {
//	    p.readCounter.Inc()
//	    // ... record cache state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordSegmentRead is called after each segment read.
	// cached reports whether the segment came from the segment cache.
	RecordSegmentRead(cached bool, duration time.Duration, err error)

	// RecordSegmentWrite is called after each segment write.
	RecordSegmentWrite(size int, duration time.Duration, err error)

	// RecordRecoveredEntry is called for every entry replayed during recovery.
	// quarantined reports whether the entry was skipped.
	RecordRecoveredEntry(bulk, quarantined bool)

	// RecordCollect is called after each blob reference collection run.
	RecordCollect(segments, references int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSegmentRead(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordSegmentWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRecoveredEntry(bool, bool)              {}
func (NoopMetricsCollector) RecordCollect(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount           atomic.Int64
	ReadCached          atomic.Int64
	ReadErrors          atomic.Int64
	ReadTotalNanos      atomic.Int64
	WriteCount          atomic.Int64
	WriteBytes          atomic.Int64
	WriteErrors         atomic.Int64
	WriteTotalNanos     atomic.Int64
	RecoveredEntries    atomic.Int64
	RecoveredBulk       atomic.Int64
	QuarantinedEntries  atomic.Int64
	CollectCount        atomic.Int64
	CollectErrors       atomic.Int64
	CollectedSegments   atomic.Int64
	CollectedReferences atomic.Int64
}

// RecordSegmentRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSegmentRead(cached bool, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if cached {
		b.ReadCached.Add(1)
	}
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordSegmentWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSegmentWrite(size int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteBytes.Add(int64(size))
}

// RecordRecoveredEntry implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecoveredEntry(bulk, quarantined bool) {
	if quarantined {
		b.QuarantinedEntries.Add(1)
		return
	}
	b.RecoveredEntries.Add(1)
	if bulk {
		b.RecoveredBulk.Add(1)
	}
}

// RecordCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollect(segments, references int, _ time.Duration, err error) {
	b.CollectCount.Add(1)
	b.CollectedSegments.Add(int64(segments))
	b.CollectedReferences.Add(int64(references))
	if err != nil {
		b.CollectErrors.Add(1)
	}
}

// BasicMetricsStats is a snapshot of the counters of a BasicMetricsCollector.
type BasicMetricsStats struct {
	ReadCount           int64
	ReadHitRate         float64
	ReadErrors          int64
	AvgReadLatency      time.Duration
	WriteCount          int64
	WriteBytes          int64
	WriteErrors         int64
	AvgWriteLatency     time.Duration
	RecoveredEntries    int64
	RecoveredBulk       int64
	QuarantinedEntries  int64
	CollectCount        int64
	CollectErrors       int64
	CollectedSegments   int64
	CollectedReferences int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		ReadCount:          b.ReadCount.Load(),
		ReadErrors:         b.ReadErrors.Load(),
		WriteCount:         b.WriteCount.Load(),
		WriteBytes:         b.WriteBytes.Load(),
		WriteErrors:        b.WriteErrors.Load(),
		RecoveredEntries:    b.RecoveredEntries.Load(),
		RecoveredBulk:       b.RecoveredBulk.Load(),
		QuarantinedEntries:  b.QuarantinedEntries.Load(),
		CollectCount:        b.CollectCount.Load(),
		CollectErrors:       b.CollectErrors.Load(),
		CollectedSegments:   b.CollectedSegments.Load(),
		CollectedReferences: b.CollectedReferences.Load(),
	}

	if stats.ReadCount > 0 {
		stats.ReadHitRate = float64(b.ReadCached.Load()) / float64(stats.ReadCount)
		stats.AvgReadLatency = time.Duration(b.ReadTotalNanos.Load() / stats.ReadCount)
	}
	if stats.WriteCount > 0 {
		stats.AvgWriteLatency = time.Duration(b.WriteTotalNanos.Load() / stats.WriteCount)
	}
	return stats
}
