package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// UnitVector3 returns a uniformly distributed direction on the unit sphere.
func (r *RNG) UnitVector3() [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitLocked()
}

func (r *RNG) unitLocked() [3]float32 {
	for {
		x, y, z := r.rand.NormFloat64(), r.rand.NormFloat64(), r.rand.NormFloat64()
		n := math.Sqrt(x*x + y*y + z*z)
		if n > 1e-9 {
			return [3]float32{float32(x / n), float32(y / n), float32(z / n)}
		}
	}
}

// RandomTriangles returns n small, independent triangles scattered in
// [0, extent)^3 as flat xyz vertices and indices.
func (r *RNG) RandomTriangles(n int, extent float32) ([]float32, []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	verts := make([]float32, 0, 9*n)
	idx := make([]uint32, 0, 3*n)
	size := extent / float32(math.Cbrt(float64(max(n, 1))))
	for i := range n {
		cx := r.rand.Float32() * extent
		cy := r.rand.Float32() * extent
		cz := r.rand.Float32() * extent
		for range 3 {
			verts = append(verts,
				cx+(r.rand.Float32()-0.5)*size,
				cy+(r.rand.Float32()-0.5)*size,
				cz+(r.rand.Float32()-0.5)*size,
			)
		}
		base := uint32(3 * i) //nolint:gosec // test sizes
		idx = append(idx, base, base+1, base+2)
	}
	return verts, idx
}

// RaysToward returns n rays as flat xyz arrays. Origins lie on a sphere of
// radius 2*extent around the center of [0, extent)^3 and directions point at
// random targets inside the cube.
func (r *RNG) RaysToward(n int, extent float32) (origins, directions []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	origins = make([]float32, 3*n)
	directions = make([]float32, 3*n)
	c := extent / 2
	for i := range n {
		u := r.unitLocked()
		o := [3]float32{c + 2*extent*u[0], c + 2*extent*u[1], c + 2*extent*u[2]}
		target := [3]float32{r.rand.Float32() * extent, r.rand.Float32() * extent, r.rand.Float32() * extent}
		d := normalize([3]float32{target[0] - o[0], target[1] - o[1], target[2] - o[2]})
		copy(origins[3*i:], o[:])
		copy(directions[3*i:], d[:])
	}
	return origins, directions
}

// GridMesh returns an n*n grid of unit squares at height z, each split into
// two triangles, as flat xyz vertices and indices. Primitive 2k and 2k+1
// cover cell k in row-major order.
func GridMesh(n int, z float32) ([]float32, []uint32) {
	verts := make([]float32, 0, 3*(n+1)*(n+1))
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			verts = append(verts, float32(x), float32(y), z)
		}
	}

	idx := make([]uint32, 0, 6*n*n)
	row := uint32(n + 1) //nolint:gosec
	for y := uint32(0); y < uint32(n); y++ { //nolint:gosec
		for x := uint32(0); x < uint32(n); x++ { //nolint:gosec
			a := y*row + x
			idx = append(idx, a, a+1, a+row, a+1, a+row+1, a+row)
		}
	}
	return verts, idx
}

// BruteForce intersects every triangle and returns the closest hit with
// tnear <= t < tfar. prim is -1 on a miss.
func BruteForce(verts []float32, idx []uint32, org, dir [3]float32, tnear, tfar float32) (t float32, prim int, ok bool) {
	prim = -1
	best := tfar
	for p := 0; p < len(idx)/3; p++ {
		v0 := vertex(verts, idx[3*p])
		v1 := vertex(verts, idx[3*p+1])
		v2 := vertex(verts, idx[3*p+2])
		if th, hit := triangle(org, dir, v0, v1, v2, tnear, best); hit {
			best, prim, ok = th, p, true
		}
	}
	if !ok {
		return 0, -1, false
	}
	return best, prim, true
}

func vertex(verts []float32, i uint32) [3]float32 {
	return [3]float32{verts[3*i], verts[3*i+1], verts[3*i+2]}
}

func sub(a, b [3]float32) [3]float32 { return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func dot(a, b [3]float32) float32 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func normalize(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(dot(v, v))))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

func triangle(org, dir, v0, v1, v2 [3]float32, tnear, tfar float32) (float32, bool) {
	e1, e2 := sub(v1, v0), sub(v2, v0)
	h := cross(dir, e2)
	det := dot(e1, h)
	if det > -1e-12 && det < 1e-12 {
		return 0, false
	}
	f := 1 / det
	s := sub(org, v0)
	u := f * dot(s, h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := cross(s, e1)
	v := f * dot(dir, q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := f * dot(e2, q)
	if !(t >= tnear && t < tfar) {
		return 0, false
	}
	return t, true
}
