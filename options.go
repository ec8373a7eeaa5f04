package raybridge

import (
	"log/slog"

	"github.com/hupe1980/raybridge/internal/kernel"
)

type options struct {
	threads          int
	simdWidth        int
	quality          Quality
	memoryLimit      int64
	mutationCheck    bool
	logger           *Logger
	logSampling      float64
	metricsCollector MetricsCollector
	library          kernel.Library
}

// Option configures NewDevice.
type Option func(*options)

// WithThreads bounds build and batch query parallelism.
// 0 (the default) uses GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// WithSIMDWidth requests a ray packet width of 4, 8 or 16.
// 0 (the default) selects the widest width the CPU supports. Batch queries
// are dispatched in chunks of this width.
func WithSIMDWidth(w int) Option {
	return func(o *options) {
		o.simdWidth = w
	}
}

// WithBuildQuality sets the default quality for scenes created on the device.
func WithBuildQuality(q Quality) Option {
	return func(o *options) {
		o.quality = q
	}
}

// WithMemoryLimit caps the bytes held by copied and pinned buffers.
// 0 (the default) means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMutationCheck records a CRC32C of every shared buffer at registration
// and fails Commit when the bytes changed since.
//
// Shared buffers are borrowed: the device reads the caller's memory at
// commit and query time. The check catches accidental writes between
// registration and commit; it does not guard writes after commit.
func WithMutationCheck(enabled bool) Option {
	return func(o *options) {
		o.mutationCheck = enabled
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &raybridge.BasicMetricsCollector{}
//	dev, _ := raybridge.NewDevice(raybridge.WithMetricsCollector(metrics))
//	// ... use dev ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := raybridge.NewJSONLogger(slog.LevelInfo)
//	dev, _ := raybridge.NewDevice(raybridge.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithLogSampling limits rejected-query logs to perSecond entries.
// 0 disables sampling. The default is 10.
func WithLogSampling(perSecond float64) Option {
	return func(o *options) {
		o.logSampling = perSecond
	}
}

// withLibrary swaps the kernel implementation. Tests use it to observe
// kernel calls.
func withLibrary(lib kernel.Library) Option {
	return func(o *options) {
		o.library = lib
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		quality:          QualityMedium,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		logSampling:      10,
		library:          kernel.Default(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

type bufferOptions struct {
	mode Mode
}

// BufferOption configures RegisterBuffer.
type BufferOption func(*bufferOptions)

// Shared borrows the caller's slice (the default). The device keeps the
// slice reachable until the buffer is unregistered; the caller must not
// write to it while a committed scene uses it.
func Shared() BufferOption {
	return func(o *bufferOptions) {
		o.mode = ModeShared
	}
}

// Copied registers an aligned heap copy of the described elements.
func Copied() BufferOption {
	return func(o *bufferOptions) {
		o.mode = ModeCopied
	}
}

// Pinned registers an off-heap copy in an anonymous memory mapping, locked
// in RAM where the OS allows.
func Pinned() BufferOption {
	return func(o *bufferOptions) {
		o.mode = ModePinned
	}
}

type sceneOptions struct {
	quality Quality
	flags   Flags
}

// SceneOption configures NewScene.
type SceneOption func(*sceneOptions)

// SceneQuality overrides the device's default build quality.
func SceneQuality(q Quality) SceneOption {
	return func(o *sceneOptions) {
		o.quality = q
	}
}

// SceneFlags sets build and traversal flags.
func SceneFlags(f Flags) SceneOption {
	return func(o *sceneOptions) {
		o.flags = f
	}
}

type arrayOptions struct {
	tnear []float32
	tfar  []float32
}

// ArrayOption configures IntersectArrays and OccludedArrays.
type ArrayOption func(*arrayOptions)

// WithTNear sets per-ray near bounds. The default is 0.
func WithTNear(tnear []float32) ArrayOption {
	return func(o *arrayOptions) {
		o.tnear = tnear
	}
}

// WithTFar sets per-ray far bounds. The default is +Inf.
func WithTFar(tfar []float32) ArrayOption {
	return func(o *arrayOptions) {
		o.tfar = tfar
	}
}
