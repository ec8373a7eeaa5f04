// Package resource implements the per-device resource controller.
//
// The Controller governs two resources:
//
//   - Memory: bytes held by buffer copies the device owns (non-blocking, fail-fast)
//   - Workers: concurrent query workers shared by every batch on the device
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage. AcquireMemory never blocks; it returns
// ErrMemoryLimitExceeded and leaves the decision to the caller:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//
//	if err := rc.AcquireMemory(int64(len(copy))); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(int64(len(copy)))
//
// # Worker Slots
//
// Batch queries from different goroutines share one pool of slots, so the
// configured thread count bounds the whole device and not each call:
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
