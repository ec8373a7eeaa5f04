package kernel

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForce intersects every primitive without the BVH.
func bruteForce(a *accel, r *Ray) (Hit, bool) {
	var (
		best  candidate
		found bool
	)
	tMax := r.TFar
	for gi := range a.geoms {
		g := &a.geoms[gi]
		for p := 0; p < g.primCount(); p++ {
			if g.intersect(primRef{geom: uint32(gi), prim: uint32(p)}, r, tMax, &best) {
				found = true
				tMax = best.t
			}
		}
	}
	var h Hit
	if found {
		a.geoms[best.ref.geom].finish(r, &best, &h)
	}
	return h, found
}

func TestBuildMatchesBruteForce(t *testing.T) {
	dev := newTestDevice(t)
	rng := rand.New(rand.NewPCG(1, 2))

	var verts []float32
	var idx []uint32
	for i := 0; i < 500; i++ {
		base := uint32(len(verts) / 3)
		cx, cy, cz := rng.Float32()*20, rng.Float32()*20, rng.Float32()*20
		for k := 0; k < 3; k++ {
			verts = append(verts, cx+rng.Float32(), cy+rng.Float32(), cz+rng.Float32())
		}
		idx = append(idx, base, base+1, base+2)
	}
	mesh := GeometryDesc{
		ID:       7,
		Kind:     KindTriangleMesh,
		Vertices: newBuf(t, dev, f32bytes(verts...), FormatFloat3, len(verts)/3),
		Indices:  newBuf(t, dev, u32bytes(idx...), FormatUInt3, len(idx)/3),
	}

	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh} {
		for _, flags := range []SceneFlags{0, FlagRobust | FlagCompact} {
			t.Run(q.String(), func(t *testing.T) {
				acc := mustBuild(t, dev, SceneDesc{Geometries: []GeometryDesc{mesh}, Quality: q, Flags: flags})
				a := acc.(*accel)
				assert.Equal(t, 500, a.Stats().Primitives)
				assert.Greater(t, a.Stats().Leaves, 1)

				for i := 0; i < 300; i++ {
					r := &Ray{
						Org:  Vec3{rng.Float32()*30 - 5, rng.Float32()*30 - 5, -5},
						Dir:  Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, 1},
						TFar: 100,
					}
					want, wantOK := bruteForce(a, r)
					var got Hit
					gotOK := acc.Intersect(r, &got)
					require.Equal(t, wantOK, gotOK)
					require.Equal(t, wantOK, acc.Occluded(r))
					if wantOK {
						assert.Equal(t, want.T, got.T)
						assert.Equal(t, want.PrimID, got.PrimID)
						assert.Equal(t, uint32(7), got.GeomID)
					}
				}
			})
		}
	}
}

func TestBuildParallel(t *testing.T) {
	dev, err := Default().NewDevice(Config{Threads: 8})
	require.NoError(t, err)

	acc := mustBuild(t, dev, SceneDesc{Geometries: []GeometryDesc{gridMesh(t, dev, 0, 64, 0)}})
	assert.Equal(t, 64*64*2, acc.Stats().Primitives)

	var h Hit
	require.True(t, acc.Intersect(down(10.25, 20.25, 1), &h))
	assert.Equal(t, float32(1), h.T)
	assert.Equal(t, uint32(0), h.GeomID)
}

func TestBuildEmpty(t *testing.T) {
	dev := newTestDevice(t)
	acc := mustBuild(t, dev, SceneDesc{})

	var h Hit
	assert.False(t, acc.Intersect(down(0, 0, 1), &h))
	assert.False(t, acc.Occluded(down(0, 0, 1)))
	assert.Zero(t, acc.Stats().Nodes)
}

func TestBuildRejectsBadPrimitives(t *testing.T) {
	dev := newTestDevice(t)
	verts := newBuf(t, dev, f32bytes(0, 0, 0, 1, 0, 0, 0, 1, 0), FormatFloat3, 3)

	t.Run("IndexOutOfRange", func(t *testing.T) {
		g := GeometryDesc{Kind: KindTriangleMesh, Vertices: verts, Indices: newBuf(t, dev, u32bytes(0, 1, 3), FormatUInt3, 1)}
		_, err := dev.Build(context.Background(), SceneDesc{Geometries: []GeometryDesc{g}})
		var kerr *Error
		require.ErrorAs(t, err, &kerr)
		assert.Equal(t, CodeInvalidArgument, kerr.Code)
	})

	t.Run("NonFinite", func(t *testing.T) {
		bad := newBuf(t, dev, f32bytes(0, 0, 0, 1, 0, 0, 0, float32(nan()), 0), FormatFloat3, 3)
		g := GeometryDesc{Kind: KindTriangleMesh, Vertices: bad, Indices: newBuf(t, dev, u32bytes(0, 1, 2), FormatUInt3, 1)}
		_, err := dev.Build(context.Background(), SceneDesc{Geometries: []GeometryDesc{g}})
		var kerr *Error
		require.ErrorAs(t, err, &kerr)
		assert.Equal(t, CodeInvalidArgument, kerr.Code)
	})

	t.Run("NegativeRadius", func(t *testing.T) {
		g := GeometryDesc{Kind: KindSpheres, Vertices: newBuf(t, dev, f32bytes(0, 0, 0, -1), FormatFloat4, 1)}
		_, err := dev.Build(context.Background(), SceneDesc{Geometries: []GeometryDesc{g}})
		require.Error(t, err)
	})

	t.Run("MissingIndices", func(t *testing.T) {
		g := GeometryDesc{Kind: KindTriangleMesh, Vertices: verts}
		_, err := dev.Build(context.Background(), SceneDesc{Geometries: []GeometryDesc{g}})
		require.Error(t, err)
	})
}

func TestBuildCancelled(t *testing.T) {
	dev := newTestDevice(t)
	mesh := gridMesh(t, dev, 0, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dev.Build(ctx, SceneDesc{Geometries: []GeometryDesc{mesh}})
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, CodeCancelled, kerr.Code)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosestAcrossGeometries(t *testing.T) {
	dev := newTestDevice(t)
	near := gridMesh(t, dev, 1, 4, 2)
	far := gridMesh(t, dev, 2, 4, 0)
	acc := mustBuild(t, dev, SceneDesc{Geometries: []GeometryDesc{far, near}})

	var h Hit
	require.True(t, acc.Intersect(down(1.25, 1.5, 5), &h))
	assert.Equal(t, uint32(1), h.GeomID)
	assert.Equal(t, float32(3), h.T)
}

func TestDegenerateCentroids(t *testing.T) {
	dev := newTestDevice(t)
	verts := newBuf(t, dev, f32bytes(0, 0, 0, 1, 0, 0, 0, 1, 0), FormatFloat3, 3)
	idx := make([]uint32, 0, 300)
	for i := 0; i < 100; i++ {
		idx = append(idx, 0, 1, 2)
	}
	g := GeometryDesc{Kind: KindTriangleMesh, Vertices: verts, Indices: newBuf(t, dev, u32bytes(idx...), FormatUInt3, 100)}
	acc := mustBuild(t, dev, SceneDesc{Geometries: []GeometryDesc{g}})

	assert.LessOrEqual(t, acc.Stats().MaxDepth, maxBuildDepth)
	var h Hit
	require.True(t, acc.Intersect(down(0.25, 0.25, 1), &h))
	// Ties keep the first primitive reached.
	assert.Less(t, h.PrimID, uint32(100))
}
