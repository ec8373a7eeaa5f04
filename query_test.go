package raybridge

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raybridge/testutil"
)

var inf = float32(math.Inf(1))

func TestConcreteScenario(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s := committedScene(t, dev, TriangleMesh(vb, ib))

	hit, ok, err := s.Intersect(down(0.25, 0.25, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float32(1), hit.T)
	assert.InDelta(t, 0.25, hit.U, 1e-6)
	assert.InDelta(t, 0.25, hit.V, 1e-6)
	assert.Equal(t, uint32(0), hit.PrimID)
	assert.Equal(t, GeometryID(0), hit.GeomID)
	assert.Equal(t, Vec3{0, 0, 1}, hit.Ng)
	assert.Equal(t, hit.Ng, hit.N)
	assert.InDelta(t, 0, hit.Point(down(0.25, 0.25, 1)).Z, 1e-6)

	r := down(0.25, 0.25, 1)
	r.TFar = 1
	_, ok, err = s.Intersect(r)
	require.NoError(t, err)
	assert.False(t, ok, "a hit exactly at TFar is a miss")
}

func TestHalfOpenInterval(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s := committedScene(t, dev, TriangleMesh(vb, ib))
	ctx := context.Background()

	atFar := down(0.25, 0.25, 1)
	atFar.TFar = 1
	atNear := down(0.25, 0.25, 1)
	atNear.TNear = 1
	atNear.TFar = 2
	pastFar := down(0.25, 0.25, 1)
	pastFar.TFar = math.Nextafter32(1, 2)

	rays := []Ray{atFar, atNear, pastFar}
	want := []bool{false, true, true}

	t.Run("Single", func(t *testing.T) {
		for i, r := range rays {
			_, ok, err := s.Intersect(r)
			require.NoError(t, err)
			assert.Equal(t, want[i], ok, "ray %d", i)

			occ, err := s.Occluded(r)
			require.NoError(t, err)
			assert.Equal(t, want[i], occ, "ray %d", i)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		hits, err := s.IntersectBatch(ctx, rays)
		require.NoError(t, err)
		occ, err := s.OccludedBatch(ctx, rays)
		require.NoError(t, err)
		for i := range rays {
			assert.Equal(t, want[i], hits[i].Hit, "ray %d", i)
			assert.Equal(t, want[i], occ[i], "ray %d", i)
		}
	})

	t.Run("Arrays", func(t *testing.T) {
		origins := make([]float32, 0, 9)
		dirs := make([]float32, 0, 9)
		tnear := make([]float32, 0, 3)
		tfar := make([]float32, 0, 3)
		for _, r := range rays {
			origins = append(origins, r.Origin.X, r.Origin.Y, r.Origin.Z)
			dirs = append(dirs, r.Direction.X, r.Direction.Y, r.Direction.Z)
			tnear = append(tnear, r.TNear)
			tfar = append(tfar, r.TFar)
		}

		out, err := s.IntersectArrays(ctx, origins, dirs, WithTNear(tnear), WithTFar(tfar))
		require.NoError(t, err)
		occ, err := s.OccludedArrays(ctx, origins, dirs, WithTNear(tnear), WithTFar(tfar))
		require.NoError(t, err)
		for i := range rays {
			assert.Equal(t, want[i], out.Hit(i), "ray %d", i)
			assert.Equal(t, want[i], occ[i], "ray %d", i)
		}

		assert.Equal(t, inf, out.TFar[0])
		assert.Equal(t, uint32(InvalidID), out.PrimID[0])
		assert.Equal(t, uint32(InvalidID), out.GeomID[0])
		assert.Equal(t, float32(1), out.TFar[1])
	})
}

func TestAnalyticRoundTrip(t *testing.T) {
	dev := newTestDevice(t)
	v0 := Vec3{-1, 0.5, 2}
	v1 := Vec3{3, -1, 2.5}
	v2 := Vec3{0.5, 4, 1.5}
	vb, err := RegisterVertices(dev, []float32{v0.X, v0.Y, v0.Z, v1.X, v1.Y, v1.Z, v2.X, v2.Y, v2.Z})
	require.NoError(t, err)
	ib, err := RegisterIndices(dev, []uint32{0, 1, 2})
	require.NoError(t, err)
	s := committedScene(t, dev, TriangleMesh(vb, ib))

	rng := testutil.NewRNG(3)
	for range 200 {
		u, v := rng.Float32(), rng.Float32()
		if u+v > 1 {
			u, v = 1-u, 1-v
		}
		w := 1 - u - v
		p := Vec3{
			w*v0.X + u*v1.X + v*v2.X,
			w*v0.Y + u*v1.Y + v*v2.Y,
			w*v0.Z + u*v1.Z + v*v2.Z,
		}
		d := rng.UnitVector3()
		dist := float32(5)
		org := Vec3{p.X - dist*d[0], p.Y - dist*d[1], p.Z - dist*d[2]}
		r := NewRay(org, Vec3{d[0], d[1], d[2]})

		hit, ok, err := s.Intersect(r)
		require.NoError(t, err)
		if !ok {
			// Grazing rays nearly parallel to the plane may miss by rounding.
			continue
		}
		assert.InDelta(t, dist, hit.T, 1e-3)
		assert.InDelta(t, u, hit.U, 1e-3)
		assert.InDelta(t, v, hit.V, 1e-3)
	}
}

func TestQueriesRequireCommit(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s, err := dev.NewScene()
	require.NoError(t, err)
	_, err = s.AddTriangleMesh(vb, ib)
	require.NoError(t, err)
	ctx := context.Background()
	origins, dirs := []float32{0.25, 0.25, 1}, []float32{0, 0, -1}

	check := func(t *testing.T, s *Scene) {
		t.Helper()
		_, _, err := s.Intersect(down(0.25, 0.25, 1))
		require.ErrorIs(t, err, ErrInvalidState)
		_, err = s.Occluded(down(0.25, 0.25, 1))
		require.ErrorIs(t, err, ErrInvalidState)
		_, err = s.IntersectBatch(ctx, []Ray{down(0.25, 0.25, 1)})
		require.ErrorIs(t, err, ErrInvalidState)
		_, err = s.OccludedBatch(ctx, []Ray{down(0.25, 0.25, 1)})
		require.ErrorIs(t, err, ErrInvalidState)
		_, err = s.IntersectArrays(ctx, origins, dirs)
		require.ErrorIs(t, err, ErrInvalidState)
		_, err = s.OccludedArrays(ctx, origins, dirs)
		require.ErrorIs(t, err, ErrInvalidState)
	}

	t.Run("Uncommitted", func(t *testing.T) { check(t, s) })

	require.NoError(t, s.Commit(ctx))
	s.Release()

	t.Run("Released", func(t *testing.T) { check(t, s) })
}

func TestMalformedRays(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s := committedScene(t, dev, TriangleMesh(vb, ib))
	nan := float32(math.NaN())

	tests := []struct {
		name string
		ray  Ray
	}{
		{"NaNOrigin", NewRay(Vec3{nan, 0, 0}, Vec3{0, 0, -1})},
		{"InfOrigin", NewRay(Vec3{inf, 0, 0}, Vec3{0, 0, -1})},
		{"ZeroDirection", NewRay(Vec3{0, 0, 1}, Vec3{})},
		{"NaNDirection", NewRay(Vec3{0, 0, 1}, Vec3{0, nan, -1})},
		{"NegativeTNear", Ray{Origin: Vec3{0, 0, 1}, Direction: Vec3{0, 0, -1}, TNear: -1, TFar: 1}},
		{"TNearAboveTFar", Ray{Origin: Vec3{0, 0, 1}, Direction: Vec3{0, 0, -1}, TNear: 2, TFar: 1}},
		{"NaNTFar", Ray{Origin: Vec3{0, 0, 1}, Direction: Vec3{0, 0, -1}, TFar: nan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Intersect(tt.ray)
			require.ErrorIs(t, err, ErrInvalidArgument)
			_, err = s.Occluded(tt.ray)
			require.ErrorIs(t, err, ErrInvalidArgument)
			_, err = s.IntersectBatch(context.Background(), []Ray{down(0.25, 0.25, 1), tt.ray})
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.ErrorContains(t, err, "ray 1")
		})
	}

	t.Run("ArrayLengths", func(t *testing.T) {
		_, err := s.IntersectArrays(context.Background(), []float32{0, 0}, []float32{0, 0})
		require.ErrorIs(t, err, ErrInvalidArgument)
		_, err = s.IntersectArrays(context.Background(), []float32{0, 0, 1}, []float32{0, 0, -1, 0, 0, -1})
		require.ErrorIs(t, err, ErrInvalidArgument)
		_, err = s.OccludedArrays(context.Background(), []float32{0, 0, 1}, []float32{0, 0, -1}, WithTFar([]float32{1, 2}))
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestQuadSphereNormalQueries(t *testing.T) {
	dev := newTestDevice(t)

	qv, err := RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0})
	require.NoError(t, err)
	qi, err := RegisterQuadIndices(dev, []uint32{0, 1, 2, 3})
	require.NoError(t, err)
	sp, err := RegisterSpheres(dev, []float32{5, 5, 0, 1})
	require.NoError(t, err)
	tv, err := RegisterVertices(dev, []float32{10, 0, 0, 11, 0, 0, 10, 1, 0})
	require.NoError(t, err)
	ti, err := RegisterIndices(dev, []uint32{0, 1, 2})
	require.NoError(t, err)
	tn, err := RegisterNormals(dev, []float32{0, 0, 1, 1, 0, 0, 0, 1, 0})
	require.NoError(t, err)

	s := committedScene(t, dev, QuadMesh(qv, qi), Spheres(sp), TriangleMesh(tv, ti).WithNormals(tn))

	t.Run("Quad", func(t *testing.T) {
		hit, ok, err := s.Intersect(down(0.8, 0.7, 1))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, GeometryID(0), hit.GeomID)
		assert.InDelta(t, 0.8, hit.U, 1e-5)
		assert.InDelta(t, 0.7, hit.V, 1e-5)
	})

	t.Run("Sphere", func(t *testing.T) {
		hit, ok, err := s.Intersect(down(5, 5, 10))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, GeometryID(1), hit.GeomID)
		assert.InDelta(t, 9, hit.T, 1e-5)
		assert.InDelta(t, 1, hit.Ng.Z, 1e-5)
	})

	t.Run("InterpolatedNormal", func(t *testing.T) {
		hit, ok, err := s.Intersect(down(10.25, 0.25, 1))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, GeometryID(2), hit.GeomID)
		assert.Equal(t, Vec3{0, 0, 1}, hit.Ng)
		assert.InDelta(t, 0.40824829, hit.N.X, 1e-5)
		assert.InDelta(t, 0.81649658, hit.N.Z, 1e-5)
	})

	t.Run("ArraysAt", func(t *testing.T) {
		out, err := s.IntersectArrays(context.Background(),
			[]float32{5, 5, 10, 50, 50, 10},
			[]float32{0, 0, -1, 0, 0, -1},
		)
		require.NoError(t, err)
		require.Equal(t, 2, out.Len())
		hit, ok := out.At(0)
		require.True(t, ok)
		assert.Equal(t, GeometryID(1), hit.GeomID)
		assert.InDelta(t, 1, hit.N.Z, 1e-5)
		_, ok = out.At(1)
		assert.False(t, ok)
	})
}

func TestBatchPreservesOrder(t *testing.T) {
	dev := newTestDevice(t, WithThreads(4), WithSIMDWidth(4))
	verts, idx := testutil.GridMesh(32, 0)
	vb, err := RegisterVertices(dev, verts)
	require.NoError(t, err)
	ib, err := RegisterIndices(dev, idx)
	require.NoError(t, err)
	s := committedScene(t, dev, TriangleMesh(vb, ib))

	rays := make([]Ray, 0, 32*32)
	for y := range 32 {
		for x := range 32 {
			rays = append(rays, down(float32(x)+0.25, float32(y)+0.25, 1))
		}
	}

	hits, err := s.IntersectBatch(context.Background(), rays)
	require.NoError(t, err)
	require.Len(t, hits, len(rays))
	for i, h := range hits {
		require.True(t, h.Hit)
		// The lower-left triangle of cell i is primitive 2i.
		assert.Equal(t, uint32(2*i), h.PrimID)
	}
}

func TestBatchCancelled(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s := committedScene(t, dev, TriangleMesh(vb, ib))

	rays := make([]Ray, 1000)
	for i := range rays {
		rays[i] = down(0.25, 0.25, 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.IntersectBatch(ctx, rays)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)

	occ, err := s.OccludedBatch(ctx, rays[:1])
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, occ)
}

func TestConcurrentQueriesMatchSequential(t *testing.T) {
	dev := newTestDevice(t, WithThreads(4))
	rng := testutil.NewRNG(99)
	verts, idx := rng.RandomTriangles(2000, 20)
	vb, err := RegisterVertices(dev, verts)
	require.NoError(t, err)
	ib, err := RegisterIndices(dev, idx)
	require.NoError(t, err)
	s := committedScene(t, dev, TriangleMesh(vb, ib))

	origins, dirs := rng.RaysToward(500, 20)
	rays := make([]Ray, 500)
	for i := range rays {
		rays[i] = NewRay(
			Vec3{origins[3*i], origins[3*i+1], origins[3*i+2]},
			Vec3{dirs[3*i], dirs[3*i+1], dirs[3*i+2]},
		)
	}

	sequential := make([]Intersection, len(rays))
	for i, r := range rays {
		hit, ok, err := s.Intersect(r)
		require.NoError(t, err)
		sequential[i] = Intersection{RayHit: hit, Hit: ok}

		org := [3]float32{r.Origin.X, r.Origin.Y, r.Origin.Z}
		dir := [3]float32{r.Direction.X, r.Direction.Y, r.Direction.Z}
		bt, prim, bok := testutil.BruteForce(verts, idx, org, dir, 0, inf)
		require.Equal(t, bok, ok, "ray %d", i)
		if ok {
			assert.InDelta(t, bt, hit.T, 1e-4, "ray %d", i)
			assert.Equal(t, uint32(prim), hit.PrimID, "ray %d", i) //nolint:gosec
		}
	}

	var wg sync.WaitGroup
	results := make([][]Intersection, 8)
	errs := make([]error, 8)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[g], errs[g] = s.IntersectBatch(context.Background(), rays)
		}()
	}
	wg.Wait()

	for g := range results {
		require.NoError(t, errs[g])
		assert.Equal(t, sequential, results[g])
	}
}

func TestReleaseWaitsForQueries(t *testing.T) {
	dev := newTestDevice(t)
	vb, ib := unitTriangle(t, dev)
	s, err := dev.NewScene()
	require.NoError(t, err)
	_, err = s.AddTriangleMesh(vb, ib)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background()))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				_, _, err := s.Intersect(down(0.25, 0.25, 1))
				if err != nil {
					assert.ErrorIs(t, err, ErrInvalidState)
					return
				}
			}
		}()
	}
	s.Release()
	wg.Wait()

	require.NoError(t, vb.Unregister())
}
