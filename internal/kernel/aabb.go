package kernel

import "math"

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

var emptyAABB = AABB{
	Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
	Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
}

// robustPad is 2*gamma(3) for float32. Robust slab tests move both ends of
// each slab interval outward by that relative amount so rounding never culls
// a box the ray actually touches.
const robustPad = 2 * (3 * 0x1p-24) / (1 - 3*0x1p-24)

// widen moves t0 down and t1 up by robustPad relative to their magnitude.
// Scaling keeps infinite ends infinite.
func widen(t0, t1 float32) (float32, float32) {
	if t0 > 0 {
		t0 *= 1 - robustPad
	} else {
		t0 *= 1 + robustPad
	}
	if t1 > 0 {
		t1 *= 1 + robustPad
	} else {
		t1 *= 1 - robustPad
	}
	return t0, t1
}

func (b AABB) extend(p Vec3) AABB {
	return AABB{Min: minVec(b.Min, p), Max: maxVec(b.Max, p)}
}

func (b AABB) union(o AABB) AABB {
	return AABB{Min: minVec(b.Min, o.Min), Max: maxVec(b.Max, o.Max)}
}

func (b AABB) center() Vec3 {
	return b.Min.Add(b.Max).Multiply(0.5)
}

func (b AABB) valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// SurfaceArea returns the box surface area (0 for empty boxes).
func (b AABB) SurfaceArea() float32 {
	if !b.valid() {
		return 0
	}
	d := b.Max.Subtract(b.Min)
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

func (b AABB) longestAxis() int {
	d := b.Max.Subtract(b.Min)
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

// hit runs the slab test over [tMin, tMax].
// NaN from 0*Inf (origin on a slab plane) fails every comparison and leaves
// the running interval untouched.
func (b *AABB) hit(org, invDir Vec3, tMin, tMax float32, robust bool) bool {
	for axis := 0; axis < 3; axis++ {
		inv := invDir.Axis(axis)
		o := org.Axis(axis)
		t0 := (b.Min.Axis(axis) - o) * inv
		t1 := (b.Max.Axis(axis) - o) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if robust {
			t0, t1 = widen(t0, t1)
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return false
		}
	}
	return true
}
