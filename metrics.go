package raybridge

import (
	"sync/atomic"
	"time"
)

// QueryKind distinguishes closest-hit from any-hit queries in metrics.
type QueryKind uint8

const (
	// QueryIntersect is a closest-hit query.
	QueryIntersect QueryKind = iota
	// QueryOccluded is an any-hit query.
	QueryOccluded
)

// String returns the string representation of a QueryKind.
func (k QueryKind) String() string {
	if k == QueryOccluded {
		return "occluded"
	}
	return "intersect"
}

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// prommetrics package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordRegister is called after each buffer registration.
	// bytes is the size of the owned copy (0 for shared buffers).
	RecordRegister(mode Mode, bytes int, err error)

	// RecordUnregister is called after each unregister attempt.
	RecordUnregister(err error)

	// RecordCommit is called after each scene commit.
	RecordCommit(primitives int, duration time.Duration, err error)

	// RecordQuery is called once per single, batch or array query.
	// rays is the number of rays dispatched, hits the number that hit.
	RecordQuery(kind QueryKind, rays, hits int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRegister(Mode, int, error)                        {}
func (NoopMetricsCollector) RecordUnregister(error)                                 {}
func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)                 {}
func (NoopMetricsCollector) RecordQuery(QueryKind, int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RegisterCount    atomic.Int64
	RegisterErrors   atomic.Int64
	OwnedBytes       atomic.Int64
	UnregisterCount  atomic.Int64
	UnregisterErrors atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryRays        atomic.Int64
	QueryHits        atomic.Int64
	QueryTotalNanos  atomic.Int64
}

// RecordRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegister(_ Mode, bytes int, err error) {
	b.RegisterCount.Add(1)
	if err != nil {
		b.RegisterErrors.Add(1)
		return
	}
	b.OwnedBytes.Add(int64(bytes))
}

// RecordUnregister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnregister(err error) {
	b.UnregisterCount.Add(1)
	if err != nil {
		b.UnregisterErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ int, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ QueryKind, rays, hits int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	b.QueryRays.Add(int64(rays))
	b.QueryHits.Add(int64(hits))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RegisterCount:    b.RegisterCount.Load(),
		RegisterErrors:   b.RegisterErrors.Load(),
		OwnedBytes:       b.OwnedBytes.Load(),
		UnregisterCount:  b.UnregisterCount.Load(),
		UnregisterErrors: b.UnregisterErrors.Load(),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitAvgNanos:   avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		QueryCount:       b.QueryCount.Load(),
		QueryErrors:      b.QueryErrors.Load(),
		QueryRays:        b.QueryRays.Load(),
		QueryHits:        b.QueryHits.Load(),
		QueryAvgNanos:    avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RegisterCount    int64
	RegisterErrors   int64
	OwnedBytes       int64
	UnregisterCount  int64
	UnregisterErrors int64
	CommitCount      int64
	CommitErrors     int64
	CommitAvgNanos   int64
	QueryCount       int64
	QueryErrors      int64
	QueryRays        int64
	QueryHits        int64
	QueryAvgNanos    int64
}
