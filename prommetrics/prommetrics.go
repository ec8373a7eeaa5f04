// Package prommetrics exports raybridge metrics to Prometheus.
//
//	c := prommetrics.New(prometheus.DefaultRegisterer)
//	dev, err := raybridge.NewDevice(raybridge.WithMetricsCollector(c))
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/raybridge"
)

// Namespace prefixes every metric name.
const Namespace = "raybridge"

// Collector implements raybridge.MetricsCollector with Prometheus metrics.
type Collector struct {
	registers   *prometheus.CounterVec
	ownedBytes  prometheus.Counter
	unregisters *prometheus.CounterVec
	commits     *prometheus.CounterVec
	commitTime  prometheus.Histogram
	primitives  prometheus.Histogram
	queries     *prometheus.CounterVec
	queryTime   *prometheus.HistogramVec
	rays        *prometheus.CounterVec
	hits        *prometheus.CounterVec
}

var _ raybridge.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
// A nil reg leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "buffer_registrations_total",
			Help:      "Buffer registrations by mode and status",
		}, []string{"mode", "status"}),
		ownedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "buffer_owned_bytes_total",
			Help:      "Bytes copied into device-owned buffers",
		}),
		unregisters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "buffer_unregistrations_total",
			Help:      "Buffer unregister attempts by status",
		}, []string{"status"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scene_commits_total",
			Help:      "Scene commits by status",
		}, []string{"status"}),
		commitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scene_commit_duration_seconds",
			Help:      "Latency of scene commits",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		primitives: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scene_primitives",
			Help:      "Primitives per committed scene",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queries_total",
			Help:      "Queries by kind and status",
		}, []string{"kind", "status"}),
		queryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of single, batch and array queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		rays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rays_total",
			Help:      "Rays traced by kind",
		}, []string{"kind"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ray_hits_total",
			Help:      "Rays that hit, by kind",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.registers, c.ownedBytes, c.unregisters,
			c.commits, c.commitTime, c.primitives,
			c.queries, c.queryTime, c.rays, c.hits,
		)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordRegister implements raybridge.MetricsCollector.
func (c *Collector) RecordRegister(mode raybridge.Mode, bytes int, err error) {
	c.registers.WithLabelValues(mode.String(), status(err)).Inc()
	if err == nil {
		c.ownedBytes.Add(float64(bytes))
	}
}

// RecordUnregister implements raybridge.MetricsCollector.
func (c *Collector) RecordUnregister(err error) {
	c.unregisters.WithLabelValues(status(err)).Inc()
}

// RecordCommit implements raybridge.MetricsCollector.
func (c *Collector) RecordCommit(primitives int, d time.Duration, err error) {
	c.commits.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.commitTime.Observe(d.Seconds())
	c.primitives.Observe(float64(primitives))
}

// RecordQuery implements raybridge.MetricsCollector.
func (c *Collector) RecordQuery(kind raybridge.QueryKind, rays, hits int, d time.Duration, err error) {
	k := kind.String()
	c.queries.WithLabelValues(k, status(err)).Inc()
	c.queryTime.WithLabelValues(k).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.rays.WithLabelValues(k).Add(float64(rays))
	c.hits.WithLabelValues(k).Add(float64(hits))
}
