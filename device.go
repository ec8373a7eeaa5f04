package raybridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/raybridge/internal/container"
	"github.com/hupe1980/raybridge/internal/kernel"
	"github.com/hupe1980/raybridge/internal/resource"
)

const (
	opNewDevice = "new_device"
	opRegister  = "register"
	opCommit    = "commit"
)

// Device owns a kernel context. Buffers and scenes are created from a device
// and keep it alive: Close drops the caller's reference and the kernel
// context is torn down once the last buffer and scene are released.
//
// Mutating operations (RegisterBuffer, Unregister, AddGeometry, SetEnabled,
// Commit, Rebuild, Release, Close) must be serialized by the caller.
// Queries on committed scenes may run concurrently.
type Device struct {
	opts    options
	kdev    kernel.Device
	props   Properties
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller
	buffers *container.Table[*Buffer]

	// refs counts the caller's reference plus every live buffer and scene.
	refs       atomic.Int64
	closed     atomic.Bool
	released   atomic.Bool
	liveScenes atomic.Int64
	nextScene  atomic.Uint32
}

// NewDevice creates a device.
//
// It fails with an *InitializationError (matching ErrInitialization) when
// the kernel rejects the configuration, e.g. a SIMD width the CPU lacks.
func NewDevice(optFns ...Option) (*Device, error) {
	o := applyOptions(optFns)
	ctx := context.Background()

	if err := validateOptions(&o); err != nil {
		o.logger.LogDevice(ctx, Properties{}, err)
		return nil, err
	}

	kdev, err := o.library.NewDevice(kernel.Config{Threads: o.threads, SIMDWidth: o.simdWidth})
	if err != nil {
		err = translateKernelError(opNewDevice, err)
		o.logger.LogDevice(ctx, Properties{}, err)
		return nil, err
	}

	kp := kdev.Properties()
	d := &Device{
		opts: o,
		kdev: kdev,
		props: Properties{
			Version:       kp.Version,
			ISA:           kp.ISA.String(),
			ISAOverridden: kernel.IsOverridden(),
			SIMDWidth:     kp.SIMDWidth,
			Threads:       kp.Threads,
		},
		logger:  o.logger.WithSampling(o.logSampling),
		metrics: o.metricsCollector,
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes: o.memoryLimit,
			MaxWorkers:       int64(kp.Threads),
		}),
		buffers: container.NewTable[*Buffer](),
	}
	d.refs.Store(1)

	d.logger.LogDevice(ctx, d.props, nil)
	return d, nil
}

func validateOptions(o *options) error {
	switch {
	case o.memoryLimit < 0:
		return &InitializationError{Code: CodeInvalidArgument, Reason: fmt.Sprintf("memory limit must be >= 0, got %d", o.memoryLimit)}
	case o.quality > QualityHigh:
		return &InitializationError{Code: CodeInvalidArgument, Reason: fmt.Sprintf("unknown build quality %d", o.quality)}
	case o.logSampling < 0:
		return &InitializationError{Code: CodeInvalidArgument, Reason: fmt.Sprintf("log sampling must be >= 0, got %g", o.logSampling)}
	}
	return nil
}

// Properties describes the kernel context.
func (d *Device) Properties() Properties {
	return d.props
}

// Stats returns a snapshot of device bookkeeping.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		LiveBuffers: d.buffers.Len(),
		LiveScenes:  d.liveScenes.Load(),
		OwnedBytes:  d.rc.MemoryUsage(),
		BusyWorkers: d.rc.BusyWorkers(),
		MaxWorkers:  d.rc.MaxWorkers(),
		Closed:      d.closed.Load(),
		Released:    d.released.Load(),
	}
}

// Logger returns the device logger.
func (d *Device) Logger() *Logger {
	return d.logger
}

// Close drops the caller's reference to the device. Every later device
// operation fails with ErrUseAfterFree; buffers and scenes created earlier
// stay usable until released. Close is idempotent.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.release()
	return nil
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return fmt.Errorf("%w: device closed", ErrUseAfterFree)
	}
	return nil
}

// acquire takes a reference for a new dependent.
func (d *Device) acquire() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	d.refs.Add(1)
	return nil
}

// release drops a reference and tears the kernel context down on the last one.
func (d *Device) release() {
	if d.refs.Add(-1) != 0 {
		return
	}
	d.released.Store(true)
	err := d.kdev.Release()
	d.logger.LogRelease(context.Background(), "device", err)
}

// Buffer resolves a handle to a live buffer.
func (d *Device) Buffer(h Handle) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	b, ok := d.buffers.Get(h.internal())
	if !ok {
		return nil, invalidStatef("stale buffer handle %s", h)
	}
	return b, nil
}
