package raybridge

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raybridge/internal/kernel"
)

// countingLibrary wraps the built-in kernel and counts calls crossing the
// boundary.
type countingLibrary struct {
	inner     kernel.Library
	devices   atomic.Int64
	buffers   atomic.Int64
	builds    atomic.Int64
	teardowns atomic.Int64
}

func newCountingLibrary() *countingLibrary {
	return &countingLibrary{inner: kernel.Default()}
}

func (l *countingLibrary) NewDevice(cfg kernel.Config) (kernel.Device, error) {
	l.devices.Add(1)
	d, err := l.inner.NewDevice(cfg)
	if err != nil {
		return nil, err
	}
	return &countingDevice{Device: d, lib: l}, nil
}

func (l *countingLibrary) calls() int64 {
	return l.buffers.Load() + l.builds.Load() + l.teardowns.Load()
}

type countingDevice struct {
	kernel.Device
	lib *countingLibrary
}

func (d *countingDevice) NewBuffer(v kernel.View) (kernel.Buffer, error) {
	d.lib.buffers.Add(1)
	return d.Device.NewBuffer(v)
}

func (d *countingDevice) Build(ctx context.Context, desc kernel.SceneDesc) (kernel.Accel, error) {
	d.lib.builds.Add(1)
	return d.Device.Build(ctx, desc)
}

func (d *countingDevice) Release() error {
	d.lib.teardowns.Add(1)
	return d.Device.Release()
}

func newTestDevice(t *testing.T, optFns ...Option) *Device {
	t.Helper()
	dev, err := NewDevice(optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func newCountingDevice(t *testing.T, optFns ...Option) (*Device, *countingLibrary) {
	t.Helper()
	lib := newCountingLibrary()
	return newTestDevice(t, append(optFns, withLibrary(lib))...), lib
}

// unitTriangle registers (0,0,0),(1,0,0),(0,1,0).
func unitTriangle(t *testing.T, dev *Device, optFns ...BufferOption) (*Buffer, *Buffer) {
	t.Helper()
	vb, err := RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, optFns...)
	require.NoError(t, err)
	ib, err := RegisterIndices(dev, []uint32{0, 1, 2}, optFns...)
	require.NoError(t, err)
	return vb, ib
}

func committedScene(t *testing.T, dev *Device, geoms ...Geometry) *Scene {
	t.Helper()
	s, err := dev.NewScene()
	require.NoError(t, err)
	for _, g := range geoms {
		_, err := s.AddGeometry(g)
		require.NoError(t, err)
	}
	require.NoError(t, s.Commit(context.Background()))
	t.Cleanup(s.Release)
	return s
}

func down(x, y, z float32) Ray {
	return NewRay(Vec3{x, y, z}, Vec3{0, 0, -1})
}
