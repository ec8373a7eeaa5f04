package prommetrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raybridge"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := New(reg)

	dev, err := raybridge.NewDevice(raybridge.WithMetricsCollector(c))
	require.NoError(t, err)
	defer dev.Close()

	vb, err := raybridge.RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, raybridge.Copied())
	require.NoError(t, err)
	ib, err := raybridge.RegisterIndices(dev, []uint32{0, 1, 2})
	require.NoError(t, err)

	s, err := dev.NewScene()
	require.NoError(t, err)
	defer s.Release()
	_, err = s.AddTriangleMesh(vb, ib)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background()))

	rays := []raybridge.Ray{
		raybridge.NewRay(raybridge.Vec3{X: 0.25, Y: 0.25, Z: 1}, raybridge.Vec3{Z: -1}),
		raybridge.NewRay(raybridge.Vec3{X: 5, Y: 5, Z: 1}, raybridge.Vec3{Z: -1}),
	}
	_, err = s.IntersectBatch(context.Background(), rays)
	require.NoError(t, err)
	_, err = s.Occluded(rays[0])
	require.NoError(t, err)

	assert.InDelta(t, 1, promtest.ToFloat64(c.registers.WithLabelValues("copied", "success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.registers.WithLabelValues("shared", "success")), 0)
	assert.InDelta(t, 36, promtest.ToFloat64(c.ownedBytes), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.commits.WithLabelValues("success")), 0)
	assert.InDelta(t, 2, promtest.ToFloat64(c.rays.WithLabelValues("intersect")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.hits.WithLabelValues("intersect")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.hits.WithLabelValues("occluded")), 0)

	n, err := promtest.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestCollectorErrors(t *testing.T) {
	c := New(nil)
	c.RecordUnregister(raybridge.ErrInUse)
	c.RecordCommit(10, 0, raybridge.ErrBuild)
	c.RecordQuery(raybridge.QueryOccluded, 4, 0, 0, raybridge.ErrInvalidState)

	assert.InDelta(t, 1, promtest.ToFloat64(c.unregisters.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.commits.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(c.queries.WithLabelValues("occluded", "error")), 0)
	assert.InDelta(t, 0, promtest.ToFloat64(c.rays.WithLabelValues("occluded")), 0)
}
