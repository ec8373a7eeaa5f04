package kernel

import (
	"runtime"
	"time"
	"unsafe"
)

// Version identifies the kernel build.
const Version = "raybridge-kernel 1.0.0"

// InvalidID marks a missing primitive or geometry.
const InvalidID = ^uint32(0)

// Format is the element format of a buffer.
type Format uint8

const (
	// FormatUndefined is the zero Format.
	FormatUndefined Format = iota
	// FormatFloat3 is three float32 values (positions, normals).
	FormatFloat3
	// FormatFloat4 is four float32 values (sphere center + radius).
	FormatFloat4
	// FormatUInt3 is three uint32 values (triangle indices).
	FormatUInt3
	// FormatUInt4 is four uint32 values (quad indices).
	FormatUInt4
)

// Size returns the element size in bytes.
func (f Format) Size() int {
	switch f {
	case FormatFloat3, FormatUInt3:
		return 12
	case FormatFloat4, FormatUInt4:
		return 16
	default:
		return 0
	}
}

// String returns the string representation of a Format.
func (f Format) String() string {
	switch f {
	case FormatFloat3:
		return "float3"
	case FormatFloat4:
		return "float4"
	case FormatUInt3:
		return "uint3"
	case FormatUInt4:
		return "uint4"
	default:
		return "undefined"
	}
}

// View is a strided window onto caller memory.
type View struct {
	Data   []byte
	Offset int
	Stride int
	Count  int
	Format Format
}

func (v *View) at(i, lane int) unsafe.Pointer {
	return unsafe.Pointer(&v.Data[v.Offset+i*v.Stride+lane*4]) //nolint:gosec // layout validated at registration
}

// Float3 returns element i of a float3 or float4 view as a Vec3.
func (v *View) Float3(i int) Vec3 {
	p := (*[3]float32)(v.at(i, 0))
	return Vec3{p[0], p[1], p[2]}
}

// Float4 returns element i of a float4 view.
func (v *View) Float4(i int) [4]float32 {
	return *(*[4]float32)(v.at(i, 0))
}

// UInt3 returns element i of a uint3 view.
func (v *View) UInt3(i int) [3]uint32 {
	return *(*[3]uint32)(v.at(i, 0))
}

// UInt4 returns element i of a uint4 view.
func (v *View) UInt4(i int) [4]uint32 {
	return *(*[4]uint32)(v.at(i, 0))
}

// Quality selects the BVH builder.
type Quality uint8

const (
	// QualityMedium is the default binned SAH build.
	QualityMedium Quality = iota
	// QualityLow is a fast median-split build.
	QualityLow
	// QualityHigh is a full three-axis binned SAH build.
	QualityHigh
)

// String returns the string representation of a Quality.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// SceneFlags tune build and traversal.
type SceneFlags uint8

const (
	// FlagRobust pads box tests against rounding.
	FlagRobust SceneFlags = 1 << iota
	// FlagCompact doubles the leaf size to save nodes.
	FlagCompact
)

// GeometryKind is the closed set of supported primitives.
type GeometryKind uint8

const (
	// KindTriangleMesh is an indexed triangle mesh.
	KindTriangleMesh GeometryKind = iota
	// KindQuadMesh is an indexed quad mesh, split into (v0,v1,v3) and (v2,v3,v1).
	KindQuadMesh
	// KindSpheres is a set of spheres stored as float4 (x, y, z, r).
	KindSpheres
)

// String returns the string representation of a GeometryKind.
func (k GeometryKind) String() string {
	switch k {
	case KindTriangleMesh:
		return "triangle_mesh"
	case KindQuadMesh:
		return "quad_mesh"
	case KindSpheres:
		return "spheres"
	default:
		return "unknown"
	}
}

// GeometryDesc describes one geometry handed to Build.
type GeometryDesc struct {
	ID       uint32
	Kind     GeometryKind
	Vertices Buffer
	Indices  Buffer // nil for spheres
	Normals  Buffer // optional per-vertex normals
}

// SceneDesc is the input to Build.
type SceneDesc struct {
	Geometries []GeometryDesc
	Quality    Quality
	Flags      SceneFlags
}

// Config configures a device.
type Config struct {
	// Threads bounds build parallelism. 0 means GOMAXPROCS.
	Threads int
	// SIMDWidth requests a packet width (4, 8 or 16). 0 means the widest available.
	SIMDWidth int
}

// Properties describes a live device.
type Properties struct {
	Version   string
	ISA       ISA
	SIMDWidth int
	Threads   int
}

// BuildStats describes a compiled BVH.
type BuildStats struct {
	Primitives int
	Nodes      int
	Leaves     int
	MaxDepth   int
	Duration   time.Duration
}

// Ray is a query ray. Dir need not be normalized.
type Ray struct {
	Org   Vec3
	Dir   Vec3
	TNear float32
	TFar  float32
}

// Hit is a closest-hit result.
type Hit struct {
	T      float32
	U, V   float32
	PrimID uint32
	GeomID uint32
	Ng     Vec3
	N      Vec3
}

func resolveThreads(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
