package raybridge

import (
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/raybridge/internal/container"
	"github.com/hupe1980/raybridge/internal/kernel"
)

// GeometryID identifies a geometry within a scene. IDs are dense from 0 in
// insertion order.
type GeometryID uint32

// InvalidID marks a missing geometry or primitive in query results.
const InvalidID = math.MaxUint32

// Vec3 is a single-precision 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) kernel() kernel.Vec3 { return kernel.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

func fromKernel(v kernel.Vec3) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

func (v Vec3) finite() bool { return v.kernel().IsFinite() }

// Ray is a query ray. A hit at distance t is reported iff TNear <= t < TFar.
type Ray struct {
	Origin    Vec3
	Direction Vec3
	TNear     float32
	TFar      float32
}

// NewRay returns a ray over [0, +Inf).
func NewRay(origin, direction Vec3) Ray {
	return Ray{Origin: origin, Direction: direction, TFar: float32(math.Inf(1))}
}

func (r *Ray) validate() error {
	switch {
	case !r.Origin.finite():
		return invalidArgf("ray origin is not finite: %v", r.Origin)
	case !r.Direction.finite():
		return invalidArgf("ray direction is not finite: %v", r.Direction)
	case r.Direction == (Vec3{}):
		return invalidArgf("ray direction is zero")
	case math.IsNaN(float64(r.TNear)) || math.IsNaN(float64(r.TFar)):
		return invalidArgf("ray interval is NaN")
	case r.TNear < 0:
		return invalidArgf("ray tnear %g is negative", r.TNear)
	case r.TNear > r.TFar:
		return invalidArgf("ray tnear %g exceeds tfar %g", r.TNear, r.TFar)
	}
	return nil
}

func (r *Ray) kernel() kernel.Ray {
	return kernel.Ray{Org: r.Origin.kernel(), Dir: r.Direction.kernel(), TNear: r.TNear, TFar: r.TFar}
}

// RayHit is the closest hit along a ray.
type RayHit struct {
	// T is the hit distance in units of the ray direction.
	T float32
	// U and V are the barycentric weights of vertex 1 and vertex 2.
	U, V   float32
	PrimID uint32
	GeomID GeometryID
	// Ng is the unit geometric normal.
	Ng Vec3
	// N is the unit interpolated normal, equal to Ng without per-vertex normals.
	N Vec3
}

// Point returns the hit position along r.
func (h RayHit) Point(r Ray) Vec3 {
	return Vec3{
		X: r.Origin.X + h.T*r.Direction.X,
		Y: r.Origin.Y + h.T*r.Direction.Y,
		Z: r.Origin.Z + h.T*r.Direction.Z,
	}
}

func hitFromKernel(h *kernel.Hit) RayHit {
	return RayHit{
		T:      h.T,
		U:      h.U,
		V:      h.V,
		PrimID: h.PrimID,
		GeomID: GeometryID(h.GeomID),
		Ng:     fromKernel(h.Ng),
		N:      fromKernel(h.N),
	}
}

// Format is the element format of a buffer.
type Format uint8

const (
	// FormatFloat3 is three float32 values.
	FormatFloat3 Format = iota + 1
	// FormatFloat4 is four float32 values.
	FormatFloat4
	// FormatUInt3 is three uint32 values.
	FormatUInt3
	// FormatUInt4 is four uint32 values.
	FormatUInt4
)

func (f Format) kernel() kernel.Format {
	switch f {
	case FormatFloat3:
		return kernel.FormatFloat3
	case FormatFloat4:
		return kernel.FormatFloat4
	case FormatUInt3:
		return kernel.FormatUInt3
	case FormatUInt4:
		return kernel.FormatUInt4
	default:
		return kernel.FormatUndefined
	}
}

// Size returns the element size in bytes, or 0 for unknown formats.
func (f Format) Size() int { return f.kernel().Size() }

// String returns the string representation of a Format.
func (f Format) String() string { return f.kernel().String() }

// Role is the purpose of a buffer within a geometry.
type Role uint8

const (
	// RoleVertex holds positions (Float3) or spheres (Float4).
	RoleVertex Role = iota + 1
	// RoleIndex holds triangle (UInt3) or quad (UInt4) indices.
	RoleIndex
	// RoleNormal holds per-vertex normals (Float3).
	RoleNormal
)

// String returns the string representation of a Role.
func (r Role) String() string {
	switch r {
	case RoleVertex:
		return "vertex"
	case RoleIndex:
		return "index"
	case RoleNormal:
		return "normal"
	default:
		return "unknown"
	}
}

func (r Role) accepts(f Format) bool {
	switch r {
	case RoleVertex:
		return f == FormatFloat3 || f == FormatFloat4
	case RoleIndex:
		return f == FormatUInt3 || f == FormatUInt4
	case RoleNormal:
		return f == FormatFloat3
	default:
		return false
	}
}

// Layout places Count elements in a byte slice. A ByteStride of 0 means
// tightly packed.
type Layout struct {
	ByteOffset int
	ByteStride int
	Count      int
}

// Packed returns a tightly packed layout of count elements.
func Packed(count int) Layout {
	return Layout{Count: count}
}

// Mode is how a buffer's bytes are held while registered.
type Mode uint8

const (
	// ModeShared borrows the caller's slice without copying.
	ModeShared Mode = iota
	// ModeCopied holds an aligned heap copy.
	ModeCopied
	// ModePinned holds an off-heap copy in an anonymous mapping.
	ModePinned
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeCopied:
		return "copied"
	case ModePinned:
		return "pinned"
	default:
		return "unknown"
	}
}

// Handle is a generation-checked reference to a registered buffer. Handles
// of unregistered buffers never alias buffers registered later.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.Index, h.Generation)
}

func handleOf(h container.Handle) Handle {
	return Handle{Index: h.Index, Generation: h.Generation}
}

func (h Handle) internal() container.Handle {
	return container.Handle{Index: h.Index, Generation: h.Generation}
}

// Quality selects the acceleration structure builder.
type Quality uint8

const (
	// QualityMedium is a binned SAH build on the longest axis.
	QualityMedium Quality = iota
	// QualityLow is a fast median-split build.
	QualityLow
	// QualityHigh is a binned SAH build over all three axes.
	QualityHigh
)

func (q Quality) kernel() kernel.Quality {
	switch q {
	case QualityLow:
		return kernel.QualityLow
	case QualityHigh:
		return kernel.QualityHigh
	default:
		return kernel.QualityMedium
	}
}

// String returns the string representation of a Quality.
func (q Quality) String() string { return q.kernel().String() }

// ParseQuality parses "low", "medium" or "high".
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "low":
		return QualityLow, nil
	case "medium", "":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	default:
		return 0, invalidArgf("unknown build quality %q", s)
	}
}

// Flags tune scene build and traversal.
type Flags uint8

const (
	// FlagRobust pads box tests so rounding never culls a touching ray.
	FlagRobust Flags = 1 << iota
	// FlagCompact trades query speed for fewer BVH nodes.
	FlagCompact
)

func (f Flags) kernel() kernel.SceneFlags {
	var k kernel.SceneFlags
	if f&FlagRobust != 0 {
		k |= kernel.FlagRobust
	}
	if f&FlagCompact != 0 {
		k |= kernel.FlagCompact
	}
	return k
}

// Properties describes a device.
type Properties struct {
	// Version is the kernel version string.
	Version string
	// ISA is the active instruction set (e.g. "avx2", "neon", "generic").
	ISA string
	// ISAOverridden is true when RAYBRIDGE_ISA selected the ISA.
	ISAOverridden bool
	SIMDWidth     int
	Threads       int
}

// DeviceStats is a snapshot of device bookkeeping.
type DeviceStats struct {
	LiveBuffers int
	LiveScenes  int64
	// OwnedBytes counts bytes held by copied and pinned buffers.
	OwnedBytes int64
	// BusyWorkers is the number of batch query workers running now, out of
	// MaxWorkers.
	BusyWorkers int64
	MaxWorkers  int
	Closed      bool
	// Released is true once the kernel device has been torn down.
	Released bool
}

// SceneStats describes a scene and its compiled structure.
type SceneStats struct {
	Geometries int
	Enabled    int
	Primitives int
	Nodes      int
	Leaves     int
	MaxDepth   int
	BuildTime  time.Duration
	Committed  bool
}

func finite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
