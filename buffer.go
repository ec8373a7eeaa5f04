package raybridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/raybridge/internal/conv"
	"github.com/hupe1980/raybridge/internal/hash"
	"github.com/hupe1980/raybridge/internal/kernel"
	"github.com/hupe1980/raybridge/internal/mem"
	"github.com/hupe1980/raybridge/internal/mmap"
)

// Buffer is a strided array of elements registered with a device.
//
// A shared buffer aliases the caller's slice; the device keeps the slice
// reachable until Unregister. Copied and pinned buffers own their bytes.
type Buffer struct {
	dev     *Device
	handle  Handle
	role    Role
	format  Format
	layout  Layout
	mode    Mode
	data    []byte
	owned   int64
	mapping *mmap.Mapping
	kbuf    kernel.Buffer

	checksum    uint32
	hasChecksum bool

	mu sync.Mutex
	// scenes holds the ids of committed scenes that reference the buffer.
	scenes *roaring.Bitmap
	dead   atomic.Bool
}

// RegisterBuffer registers layout.Count elements of format stored in data.
//
// The layout is validated before the kernel sees it: offset and stride must
// be multiples of 4, the stride must cover one element and
// ByteOffset+Count*ByteStride must not exceed len(data). Violations fail
// with a *BufferBoundsError (matching ErrBufferBounds).
func (d *Device) RegisterBuffer(role Role, format Format, data []byte, layout Layout, optFns ...BufferOption) (*Buffer, error) {
	o := bufferOptions{mode: ModeShared}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	b, err := d.register(role, format, data, layout, o.mode)

	owned := 0
	logger := d.logger
	if b != nil {
		owned = int(b.owned)
		logger = logger.WithBuffer(b.handle)
	}
	d.metrics.RecordRegister(o.mode, owned, err)
	logger.LogRegister(context.Background(), role, format, o.mode, layout.Count, err)

	return b, err
}

func (d *Device) register(role Role, format Format, data []byte, layout Layout, mode Mode) (*Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	size := format.Size()
	if size == 0 {
		return nil, invalidArgf("unknown buffer format %d", format)
	}
	if !role.accepts(format) {
		return nil, invalidArgf("%s buffer cannot hold %s elements", role, format)
	}

	layout, err := validateLayout(format, len(data), layout)
	if err != nil {
		return nil, err
	}
	if !mem.IsAligned(data, 4) {
		return nil, invalidArgf("buffer base address is not 4-byte aligned")
	}

	b := &Buffer{
		dev:    d,
		role:   role,
		format: format,
		layout: layout,
		mode:   mode,
		scenes: roaring.New(),
	}

	view := kernel.View{
		Offset: layout.ByteOffset,
		Stride: layout.ByteStride,
		Count:  layout.Count,
		Format: format.kernel(),
	}

	switch mode {
	case ModeShared:
		b.data = data
		if d.opts.mutationCheck {
			b.checksum = b.crc()
			b.hasChecksum = true
		}
	case ModeCopied, ModePinned:
		n := layout.Count * layout.ByteStride
		if err := d.rc.AcquireMemory(int64(n)); err != nil {
			return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
				ErrMemoryLimit, n, d.rc.MemoryUsage(), d.rc.MemoryLimit())
		}
		// The last element's padding may lie past the end of data.
		src := data[layout.ByteOffset:min(layout.ByteOffset+n, len(data))]
		if err := b.own(src, n); err != nil {
			d.rc.ReleaseMemory(int64(n))
			return nil, err
		}
		b.owned = int64(n)
		view.Offset = 0
		b.layout.ByteOffset = 0
	default:
		return nil, invalidArgf("unknown buffer mode %d", mode)
	}

	view.Data = b.data
	if err := d.acquire(); err != nil {
		b.free()
		return nil, err
	}

	kbuf, err := d.kdev.NewBuffer(view)
	if err != nil {
		b.free()
		d.release()
		return nil, translateKernelError(opRegister, err)
	}
	b.kbuf = kbuf
	b.handle = handleOf(d.buffers.Insert(b))

	return b, nil
}

// own fills b.data with a private n-byte copy of src according to b.mode.
func (b *Buffer) own(src []byte, n int) error {
	if b.mode == ModeCopied || n == 0 {
		b.data = mem.CopyAligned(src, n)
		return nil
	}

	m, err := mmap.MapAnon(n)
	if err != nil {
		return fmt.Errorf("%w: pinned mapping of %d bytes: %w", ErrMemoryLimit, n, err)
	}
	copy(m.Bytes(), src)
	b.tunePages(m, n)

	b.mapping = m
	b.data = m.Bytes()
	return nil
}

func (b *Buffer) free() {
	if b.mapping != nil {
		if err := b.mapping.Close(); err != nil {
			b.dev.logger.Warn("unmap pinned buffer", "error", err)
		}
		b.mapping = nil
	}
	b.dev.rc.ReleaseMemory(b.owned)
	b.owned = 0
	b.data = nil
}

// pageTuner is the part of *mmap.Mapping that pinned buffers tune after
// copying.
type pageTuner interface {
	Lock() error
	Advise(pattern mmap.AccessPattern) error
}

// tunePages locks and advises a pinned mapping. Both are hints; failures are
// logged and the buffer stays usable.
func (b *Buffer) tunePages(m pageTuner, n int) {
	if err := m.Lock(); err != nil {
		// RLIMIT_MEMLOCK is often tiny; an unlocked mapping is still immobile.
		b.dev.logger.Debug("mlock unavailable for pinned buffer", "bytes", n, "error", err)
	}
	if err := m.Advise(mmap.AccessRandom); err != nil {
		b.dev.logger.Debug("madvise failed for pinned buffer", "bytes", n, "error", err)
	}
}

func validateLayout(f Format, extent int, l Layout) (Layout, error) {
	size := f.Size()
	if l.ByteStride == 0 {
		l.ByteStride = size
	}

	fail := func(reason string, cause error) (Layout, error) {
		return l, &BufferBoundsError{
			Offset: l.ByteOffset,
			Stride: l.ByteStride,
			Count:  l.Count,
			Extent: extent,
			Reason: reason,
			cause:  cause,
		}
	}

	switch {
	case l.ByteOffset < 0 || l.ByteStride < 0 || l.Count < 0:
		return fail("negative layout component", nil)
	case l.ByteStride < size:
		return fail(fmt.Sprintf("stride below %s element size %d", f, size), nil)
	case l.ByteStride%4 != 0:
		return fail("stride not a multiple of 4", nil)
	case l.ByteOffset%4 != 0:
		return fail("offset not a multiple of 4", nil)
	}

	if _, err := conv.IntToUint32(l.Count); err != nil {
		return fail("count exceeds primitive id range", err)
	}
	span, err := conv.Span(l.ByteOffset, l.ByteStride, l.Count)
	if err != nil {
		return fail("layout size overflows", err)
	}
	if span > uint64(extent) {
		return fail(fmt.Sprintf("layout needs %d bytes", span), nil)
	}
	return l, nil
}

func (b *Buffer) crc() uint32 {
	return hash.CRC32CStrided(b.data, b.layout.ByteOffset, b.layout.ByteStride, b.format.Size(), b.layout.Count)
}

// Handle returns the buffer's registry handle.
func (b *Buffer) Handle() Handle { return b.handle }

// Device returns the device the buffer is registered with.
func (b *Buffer) Device() *Device { return b.dev }

// Role returns the buffer role.
func (b *Buffer) Role() Role { return b.role }

// Format returns the element format.
func (b *Buffer) Format() Format { return b.format }

// Layout returns the normalized layout. Owned buffers report offset 0 and
// the stride of their copy.
func (b *Buffer) Layout() Layout { return b.layout }

// Count returns the number of elements.
func (b *Buffer) Count() int { return b.layout.Count }

// Mode returns how the buffer holds its bytes.
func (b *Buffer) Mode() Mode { return b.mode }

// OwnedBytes returns the size of the private copy, 0 for shared buffers.
func (b *Buffer) OwnedBytes() int64 { return b.owned }

// Locked reports whether a pinned buffer's pages are locked in RAM.
func (b *Buffer) Locked() bool { return b.mapping != nil && b.mapping.Locked() }

// Alive reports whether the buffer is still registered.
func (b *Buffer) Alive() bool { return !b.dead.Load() }

// Scenes returns the ids of committed scenes referencing the buffer.
func (b *Buffer) Scenes() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scenes.ToArray()
}

func (b *Buffer) addScene(id uint32) {
	b.mu.Lock()
	b.scenes.Add(id)
	b.mu.Unlock()
}

func (b *Buffer) removeScene(id uint32) {
	b.mu.Lock()
	b.scenes.Remove(id)
	b.mu.Unlock()
}

func (b *Buffer) float3(i int) kernel.Vec3 { return b.kbuf.View().Float3(i) }

func (b *Buffer) float4(i int) [4]float32 { return b.kbuf.View().Float4(i) }

func (b *Buffer) uint3(i int) [3]uint32 { return b.kbuf.View().UInt3(i) }

func (b *Buffer) uint4(i int) [4]uint32 { return b.kbuf.View().UInt4(i) }

// Unregister releases the buffer. It fails with an *InUseError (matching
// ErrInUse) while a committed scene references it. Afterwards every use of
// the buffer fails with ErrInvalidState.
func (b *Buffer) Unregister() error {
	err := b.unregister()
	b.dev.metrics.RecordUnregister(err)
	b.dev.logger.WithBuffer(b.handle).LogUnregister(context.Background(), err)
	return err
}

func (b *Buffer) unregister() error {
	if b.dead.Load() {
		return invalidStatef("buffer %s already unregistered", b.handle)
	}

	b.mu.Lock()
	if !b.scenes.IsEmpty() {
		ids := b.scenes.ToArray()
		b.mu.Unlock()
		return &InUseError{Buffer: b.handle, Scenes: ids}
	}
	b.dead.Store(true)
	b.mu.Unlock()

	b.dev.buffers.Remove(b.handle.internal())
	b.kbuf.Release()
	b.free()
	b.dev.release()
	return nil
}

func (b *Buffer) checkAlive() error {
	if b.dead.Load() {
		return invalidStatef("buffer %s is unregistered", b.handle)
	}
	return nil
}

// RegisterSlice registers typed data without copying it (unless Copied or
// Pinned is given). The layout is in bytes, like RegisterBuffer.
func RegisterSlice[E float32 | uint32](d *Device, role Role, format Format, data []E, layout Layout, optFns ...BufferOption) (*Buffer, error) {
	var raw []byte
	if len(data) > 0 {
		raw = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*4) //nolint:gosec // E is 4 bytes wide
	}
	return d.RegisterBuffer(role, format, raw, layout, optFns...)
}

// RegisterVertices registers tightly packed xyz positions.
func RegisterVertices(d *Device, xyz []float32, optFns ...BufferOption) (*Buffer, error) {
	if len(xyz)%3 != 0 {
		return nil, invalidArgf("vertex slice length %d is not a multiple of 3", len(xyz))
	}
	return RegisterSlice(d, RoleVertex, FormatFloat3, xyz, Packed(len(xyz)/3), optFns...)
}

// RegisterNormals registers tightly packed per-vertex normals.
func RegisterNormals(d *Device, xyz []float32, optFns ...BufferOption) (*Buffer, error) {
	if len(xyz)%3 != 0 {
		return nil, invalidArgf("normal slice length %d is not a multiple of 3", len(xyz))
	}
	return RegisterSlice(d, RoleNormal, FormatFloat3, xyz, Packed(len(xyz)/3), optFns...)
}

// RegisterIndices registers tightly packed triangle indices.
func RegisterIndices(d *Device, indices []uint32, optFns ...BufferOption) (*Buffer, error) {
	if len(indices)%3 != 0 {
		return nil, invalidArgf("index slice length %d is not a multiple of 3", len(indices))
	}
	return RegisterSlice(d, RoleIndex, FormatUInt3, indices, Packed(len(indices)/3), optFns...)
}

// RegisterQuadIndices registers tightly packed quad indices.
func RegisterQuadIndices(d *Device, indices []uint32, optFns ...BufferOption) (*Buffer, error) {
	if len(indices)%4 != 0 {
		return nil, invalidArgf("quad index slice length %d is not a multiple of 4", len(indices))
	}
	return RegisterSlice(d, RoleIndex, FormatUInt4, indices, Packed(len(indices)/4), optFns...)
}

// RegisterSpheres registers tightly packed (x, y, z, radius) spheres.
func RegisterSpheres(d *Device, xyzr []float32, optFns ...BufferOption) (*Buffer, error) {
	if len(xyzr)%4 != 0 {
		return nil, invalidArgf("sphere slice length %d is not a multiple of 4", len(xyzr))
	}
	return RegisterSlice(d, RoleVertex, FormatFloat4, xyzr, Packed(len(xyzr)/4), optFns...)
}
