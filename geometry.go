package raybridge

import (
	"github.com/hupe1980/raybridge/internal/kernel"
)

// GeometryKind is the closed set of supported primitive types.
type GeometryKind uint8

const (
	// KindTriangleMesh is an indexed triangle mesh.
	KindTriangleMesh GeometryKind = iota + 1
	// KindQuadMesh is an indexed quad mesh. Quad (v0,v1,v2,v3) is split
	// into triangles (v0,v1,v3) and (v2,v3,v1).
	KindQuadMesh
	// KindSpheres is a set of spheres stored as (x, y, z, radius).
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

func (k GeometryKind) kernel() kernel.GeometryKind {
	switch k {
	case KindQuadMesh:
		return kernel.KindQuadMesh
	case KindSpheres:
		return kernel.KindSpheres
	default:
		return kernel.KindTriangleMesh
	}
}

// Geometry is a primitive set built from registered buffers. Construct it
// with TriangleMesh, QuadMesh or Spheres.
type Geometry struct {
	Kind     GeometryKind
	Vertices *Buffer
	Indices  *Buffer
	// Normals are optional per-vertex normals for meshes.
	Normals *Buffer
}

// TriangleMesh returns a triangle mesh over Float3 vertices and UInt3 indices.
func TriangleMesh(vertices, indices *Buffer) Geometry {
	return Geometry{Kind: KindTriangleMesh, Vertices: vertices, Indices: indices}
}

// QuadMesh returns a quad mesh over Float3 vertices and UInt4 indices.
func QuadMesh(vertices, indices *Buffer) Geometry {
	return Geometry{Kind: KindQuadMesh, Vertices: vertices, Indices: indices}
}

// Spheres returns a sphere set over a Float4 buffer.
func Spheres(spheres *Buffer) Geometry {
	return Geometry{Kind: KindSpheres, Vertices: spheres}
}

// WithNormals attaches per-vertex normals to a mesh.
func (g Geometry) WithNormals(normals *Buffer) Geometry {
	g.Normals = normals
	return g
}

// PrimitiveCount returns the number of triangles, quads or spheres.
func (g Geometry) PrimitiveCount() int {
	if g.Kind == KindSpheres {
		if g.Vertices == nil {
			return 0
		}
		return g.Vertices.Count()
	}
	if g.Indices == nil {
		return 0
	}
	return g.Indices.Count()
}

func (g Geometry) buffers() []*Buffer {
	out := make([]*Buffer, 0, 3)
	for _, b := range []*Buffer{g.Vertices, g.Indices, g.Normals} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func expect(b *Buffer, what string, role Role, format Format) error {
	if b == nil {
		return invalidArgf("missing %s buffer", what)
	}
	if b.role != role || b.format != format {
		return invalidArgf("%s buffer must be %s/%s, got %s/%s", what, role, format, b.role, b.format)
	}
	return nil
}

// validate checks the variant shape and buffer ownership at AddGeometry.
func (g Geometry) validate(dev *Device) error {
	var err error
	switch g.Kind {
	case KindTriangleMesh:
		if err = expect(g.Vertices, "vertex", RoleVertex, FormatFloat3); err == nil {
			err = expect(g.Indices, "index", RoleIndex, FormatUInt3)
		}
	case KindQuadMesh:
		if err = expect(g.Vertices, "vertex", RoleVertex, FormatFloat3); err == nil {
			err = expect(g.Indices, "index", RoleIndex, FormatUInt4)
		}
	case KindSpheres:
		err = expect(g.Vertices, "sphere", RoleVertex, FormatFloat4)
		if err == nil && g.Indices != nil {
			err = invalidArgf("spheres take no index buffer")
		}
		if err == nil && g.Normals != nil {
			err = invalidArgf("spheres take no normal buffer")
		}
	default:
		return invalidArgf("unknown geometry kind %d", g.Kind)
	}
	if err != nil {
		return err
	}
	if g.Normals != nil {
		if err := expect(g.Normals, "normal", RoleNormal, FormatFloat3); err != nil {
			return err
		}
	}

	for _, b := range g.buffers() {
		if b.dev != dev {
			return invalidArgf("buffer %s belongs to another device", b.handle)
		}
		if err := b.checkAlive(); err != nil {
			return err
		}
	}
	return nil
}

// check validates every primitive before the kernel build.
func (g Geometry) check(id GeometryID, mutationCheck bool) error {
	for _, b := range g.buffers() {
		if err := b.checkAlive(); err != nil {
			return err
		}
		if mutationCheck && b.hasChecksum && b.crc() != b.checksum {
			return buildErrorf(id, InvalidID, "shared %s buffer %s changed since registration", b.role, b.handle)
		}
	}

	nv := g.Vertices.Count()
	if nv == 0 {
		return buildErrorf(id, InvalidID, "empty %s buffer", g.Vertices.role)
	}
	if g.Kind != KindSpheres && g.Indices.Count() == 0 {
		return buildErrorf(id, InvalidID, "empty index buffer")
	}
	if g.Normals != nil && g.Normals.Count() != nv {
		return buildErrorf(id, InvalidID, "%d normals for %d vertices", g.Normals.Count(), nv)
	}

	if g.Kind == KindSpheres {
		for p := 0; p < nv; p++ {
			s := g.Vertices.float4(p)
			c := kernel.Vec3{X: s[0], Y: s[1], Z: s[2]}
			if !c.IsFinite() {
				return buildErrorf(id, uint32(p), "sphere center is not finite") //nolint:gosec // count fits uint32
			}
			if !(s[3] >= 0) || !finite32(s[3]) {
				return buildErrorf(id, uint32(p), "invalid sphere radius %g", s[3]) //nolint:gosec
			}
		}
		return nil
	}

	for v := 0; v < nv; v++ {
		if !g.Vertices.float3(v).IsFinite() {
			return buildErrorf(id, InvalidID, "vertex %d is not finite", v)
		}
	}

	np := g.Indices.Count()
	for p := 0; p < np; p++ {
		var idx []uint32
		if g.Kind == KindQuadMesh {
			q := g.Indices.uint4(p)
			idx = q[:]
		} else {
			t := g.Indices.uint3(p)
			idx = t[:]
		}
		for _, i := range idx {
			if int64(i) >= int64(nv) {
				return buildErrorf(id, uint32(p), "index %d out of range for %d vertices", i, nv) //nolint:gosec
			}
		}
	}
	return nil
}

func (g Geometry) desc(id GeometryID) kernel.GeometryDesc {
	d := kernel.GeometryDesc{
		ID:       uint32(id),
		Kind:     g.Kind.kernel(),
		Vertices: g.Vertices.kbuf,
	}
	if g.Indices != nil {
		d.Indices = g.Indices.kbuf
	}
	if g.Normals != nil {
		d.Normals = g.Normals.kbuf
	}
	return d
}
