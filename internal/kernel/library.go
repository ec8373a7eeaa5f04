package kernel

import (
	"context"
	"sync/atomic"
)

// Library creates devices.
type Library interface {
	NewDevice(cfg Config) (Device, error)
}

// Device is a kernel context. Buffers and accelerations must be released
// before the device.
type Device interface {
	Properties() Properties
	NewBuffer(v View) (Buffer, error)
	Build(ctx context.Context, desc SceneDesc) (Accel, error)
	Release() error
}

// Buffer is a view registered with a device.
type Buffer interface {
	View() *View
	Release()
}

// Accel is a compiled scene.
type Accel interface {
	// Intersect finds the closest hit in [TNear, TFar) and fills h.
	Intersect(r *Ray, h *Hit) bool
	// Occluded reports whether any hit exists in [TNear, TFar).
	Occluded(r *Ray) bool
	Stats() BuildStats
	Release()
}

// Default returns the built-in library.
func Default() Library {
	return goLibrary{}
}

type goLibrary struct{}

func (goLibrary) NewDevice(cfg Config) (Device, error) {
	if cfg.Threads < 0 {
		return nil, errorf(CodeInvalidArgument, "threads must be >= 0, got %d", cfg.Threads)
	}

	width := cfg.SIMDWidth
	switch width {
	case 0:
		width = MaxWidth()
	case 4, 8, 16:
		if width > MaxWidth() {
			return nil, errorf(CodeUnsupportedCPU, "simd width %d not supported by %s (max %d)", width, ActiveISA(), MaxWidth())
		}
	default:
		return nil, errorf(CodeInvalidArgument, "simd width must be 4, 8 or 16, got %d", width)
	}

	return &goDevice{
		props: Properties{
			Version:   Version,
			ISA:       ActiveISA(),
			SIMDWidth: width,
			Threads:   resolveThreads(cfg.Threads),
		},
	}, nil
}

type goDevice struct {
	props       Properties
	liveBuffers atomic.Int64
	liveAccels  atomic.Int64
	released    atomic.Bool
}

func (d *goDevice) Properties() Properties {
	return d.props
}

func (d *goDevice) NewBuffer(v View) (Buffer, error) {
	if d.released.Load() {
		return nil, errorf(CodeInvalidOperation, "device released")
	}
	size := v.Format.Size()
	if size == 0 {
		return nil, errorf(CodeInvalidArgument, "undefined buffer format")
	}
	if v.Count > 0 && v.Offset+(v.Count-1)*v.Stride+size > len(v.Data) {
		return nil, errorf(CodeInvalidArgument, "view exceeds data: offset=%d stride=%d count=%d len=%d", v.Offset, v.Stride, v.Count, len(v.Data))
	}
	d.liveBuffers.Add(1)
	return &goBuffer{dev: d, view: v}, nil
}

func (d *goDevice) Build(ctx context.Context, desc SceneDesc) (Accel, error) {
	if d.released.Load() {
		return nil, errorf(CodeInvalidOperation, "device released")
	}
	a, err := build(ctx, desc, d.props.Threads)
	if err != nil {
		return nil, err
	}
	a.dev = d
	d.liveAccels.Add(1)
	return a, nil
}

func (d *goDevice) Release() error {
	if n := d.liveBuffers.Load() + d.liveAccels.Load(); n > 0 {
		return errorf(CodeInvalidOperation, "device still has %d live objects", n)
	}
	if d.released.Swap(true) {
		return errorf(CodeInvalidOperation, "device already released")
	}
	return nil
}

type goBuffer struct {
	dev      *goDevice
	view     View
	released atomic.Bool
}

func (b *goBuffer) View() *View {
	return &b.view
}

func (b *goBuffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.liveBuffers.Add(-1)
}
