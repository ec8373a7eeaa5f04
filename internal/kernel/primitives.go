package kernel

import "math"

const detEpsilon = 1e-12

// candidate is the best hit seen so far during traversal.
type candidate struct {
	ref  primRef
	t    float32
	u, v float32
	// sub is 1 when the second triangle (v2,v3,v1) of a quad was hit.
	sub uint8
}

type geomData struct {
	id      uint32
	kind    GeometryKind
	verts   *View
	indices *View
	normals *View
}

func (g *geomData) primCount() int {
	if g.kind == KindSpheres {
		return g.verts.Count
	}
	return g.indices.Count
}

func (g *geomData) vertex(i uint32) (Vec3, error) {
	if int(i) >= g.verts.Count {
		return Vec3{}, errorf(CodeInvalidArgument, "geometry %d: vertex index %d out of range [0,%d)", g.id, i, g.verts.Count)
	}
	v := g.verts.Float3(int(i))
	if !v.IsFinite() {
		return Vec3{}, errorf(CodeInvalidArgument, "geometry %d: vertex %d is not finite", g.id, i)
	}
	return v, nil
}

// bounds validates primitive p and returns its box.
func (g *geomData) bounds(p int) (AABB, error) {
	box := emptyAABB
	switch g.kind {
	case KindTriangleMesh:
		idx := g.indices.UInt3(p)
		for _, i := range idx {
			v, err := g.vertex(i)
			if err != nil {
				return box, err
			}
			box = box.extend(v)
		}
	case KindQuadMesh:
		idx := g.indices.UInt4(p)
		for _, i := range idx {
			v, err := g.vertex(i)
			if err != nil {
				return box, err
			}
			box = box.extend(v)
		}
	case KindSpheres:
		s := g.verts.Float4(p)
		c := Vec3{s[0], s[1], s[2]}
		r := s[3]
		if !c.IsFinite() || !isFinite(r) || r < 0 {
			return box, errorf(CodeInvalidArgument, "geometry %d: sphere %d is malformed", g.id, p)
		}
		box = AABB{Min: c.Subtract(Vec3{r, r, r}), Max: c.Add(Vec3{r, r, r})}
	default:
		return box, errorf(CodeInvalidArgument, "geometry %d: unknown kind %d", g.id, g.kind)
	}
	return box, nil
}

// intersect tests primitive ref against [r.TNear, tMax) and updates c on a hit.
func (g *geomData) intersect(ref primRef, r *Ray, tMax float32, c *candidate) bool {
	switch g.kind {
	case KindTriangleMesh:
		idx := g.indices.UInt3(int(ref.prim))
		t, u, v, ok := intersectTriangle(r, g.verts.Float3(int(idx[0])), g.verts.Float3(int(idx[1])), g.verts.Float3(int(idx[2])), tMax)
		if !ok {
			return false
		}
		*c = candidate{ref: ref, t: t, u: u, v: v}
		return true

	case KindQuadMesh:
		idx := g.indices.UInt4(int(ref.prim))
		v0 := g.verts.Float3(int(idx[0]))
		v1 := g.verts.Float3(int(idx[1]))
		v2 := g.verts.Float3(int(idx[2]))
		v3 := g.verts.Float3(int(idx[3]))

		hit := false
		if t, u, v, ok := intersectTriangle(r, v0, v1, v3, tMax); ok {
			*c = candidate{ref: ref, t: t, u: u, v: v}
			tMax = t
			hit = true
		}
		if t, u, v, ok := intersectTriangle(r, v2, v3, v1, tMax); ok {
			*c = candidate{ref: ref, t: t, u: 1 - u, v: 1 - v, sub: 1}
			hit = true
		}
		return hit

	case KindSpheres:
		s := g.verts.Float4(int(ref.prim))
		t, ok := intersectSphere(r, Vec3{s[0], s[1], s[2]}, s[3], tMax)
		if !ok {
			return false
		}
		*c = candidate{ref: ref, t: t}
		return true
	}
	return false
}

// finish fills h from the winning candidate.
func (g *geomData) finish(r *Ray, c *candidate, h *Hit) {
	h.T = c.t
	h.U = c.u
	h.V = c.v
	h.PrimID = c.ref.prim
	h.GeomID = g.id

	switch g.kind {
	case KindTriangleMesh:
		idx := g.indices.UInt3(int(c.ref.prim))
		v0 := g.verts.Float3(int(idx[0]))
		v1 := g.verts.Float3(int(idx[1]))
		v2 := g.verts.Float3(int(idx[2]))
		h.Ng = v1.Subtract(v0).Cross(v2.Subtract(v0)).Normalize()
		h.N = h.Ng
		if g.normals != nil {
			w := 1 - c.u - c.v
			n := g.normals.Float3(int(idx[0])).Multiply(w).
				Add(g.normals.Float3(int(idx[1])).Multiply(c.u)).
				Add(g.normals.Float3(int(idx[2])).Multiply(c.v))
			h.N = n.Normalize()
		}

	case KindQuadMesh:
		idx := g.indices.UInt4(int(c.ref.prim))
		v0 := g.verts.Float3(int(idx[0]))
		v1 := g.verts.Float3(int(idx[1]))
		v2 := g.verts.Float3(int(idx[2]))
		v3 := g.verts.Float3(int(idx[3]))
		if c.sub == 0 {
			h.Ng = v1.Subtract(v0).Cross(v3.Subtract(v0)).Normalize()
		} else {
			h.Ng = v3.Subtract(v2).Cross(v1.Subtract(v2)).Normalize()
		}
		h.N = h.Ng
		if g.normals != nil {
			u, v := c.u, c.v
			n := g.normals.Float3(int(idx[0])).Multiply((1 - u) * (1 - v)).
				Add(g.normals.Float3(int(idx[1])).Multiply(u * (1 - v))).
				Add(g.normals.Float3(int(idx[2])).Multiply(u * v)).
				Add(g.normals.Float3(int(idx[3])).Multiply((1 - u) * v))
			h.N = n.Normalize()
		}

	case KindSpheres:
		s := g.verts.Float4(int(c.ref.prim))
		p := r.Org.Add(r.Dir.Multiply(c.t))
		h.Ng = p.Subtract(Vec3{s[0], s[1], s[2]}).Normalize()
		h.N = h.Ng
	}
}

// intersectTriangle is Möller-Trumbore. u and v weight v1 and v2.
func intersectTriangle(r *Ray, v0, v1, v2 Vec3, tMax float32) (t, u, v float32, ok bool) {
	e1 := v1.Subtract(v0)
	e2 := v2.Subtract(v0)

	h := r.Dir.Cross(e2)
	det := e1.Dot(h)
	if det > -detEpsilon && det < detEpsilon {
		return 0, 0, 0, false
	}

	f := 1 / det
	s := r.Org.Subtract(v0)
	u = f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = f * r.Dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = f * e2.Dot(q)
	// Written as a negation so NaN is rejected.
	if !(t >= r.TNear && t < tMax) {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// intersectSphere returns the nearest root in [r.TNear, tMax).
func intersectSphere(r *Ray, center Vec3, radius, tMax float32) (float32, bool) {
	ox := float64(r.Org.X - center.X)
	oy := float64(r.Org.Y - center.Y)
	oz := float64(r.Org.Z - center.Z)
	dx, dy, dz := float64(r.Dir.X), float64(r.Dir.Y), float64(r.Dir.Z)

	a := dx*dx + dy*dy + dz*dz
	b := 2 * (ox*dx + oy*dy + oz*dz)
	c := ox*ox + oy*oy + oz*oz - float64(radius)*float64(radius)

	disc := b*b - 4*a*c
	if disc < 0 || a == 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)

	for _, root := range [2]float64{(-b - sq) / (2 * a), (-b + sq) / (2 * a)} {
		t := float32(root)
		if t >= r.TNear && t < tMax {
			return t, true
		}
	}
	return 0, false
}
