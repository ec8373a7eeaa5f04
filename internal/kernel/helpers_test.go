package kernel

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func f32bytes(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func u32bytes(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func newTestDevice(t *testing.T) Device {
	t.Helper()
	dev, err := Default().NewDevice(Config{Threads: 2})
	require.NoError(t, err)
	return dev
}

func newBuf(t *testing.T, dev Device, data []byte, f Format, count int) Buffer {
	t.Helper()
	buf, err := dev.NewBuffer(View{Data: data, Stride: f.Size(), Count: count, Format: f})
	require.NoError(t, err)
	t.Cleanup(buf.Release)
	return buf
}

// unitTriangle is (0,0,0),(1,0,0),(0,1,0).
func unitTriangle(t *testing.T, dev Device, id uint32) GeometryDesc {
	t.Helper()
	return GeometryDesc{
		ID:       id,
		Kind:     KindTriangleMesh,
		Vertices: newBuf(t, dev, f32bytes(0, 0, 0, 1, 0, 0, 0, 1, 0), FormatFloat3, 3),
		Indices:  newBuf(t, dev, u32bytes(0, 1, 2), FormatUInt3, 1),
	}
}

// gridMesh is an n*n grid of unit quads split into triangles at height z.
func gridMesh(t *testing.T, dev Device, id uint32, n int, z float32) GeometryDesc {
	t.Helper()
	var verts []float32
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			verts = append(verts, float32(x), float32(y), z)
		}
	}
	var idx []uint32
	row := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			a := y*row + x
			idx = append(idx, a, a+1, a+row, a+1, a+row+1, a+row)
		}
	}
	return GeometryDesc{
		ID:       id,
		Kind:     KindTriangleMesh,
		Vertices: newBuf(t, dev, f32bytes(verts...), FormatFloat3, len(verts)/3),
		Indices:  newBuf(t, dev, u32bytes(idx...), FormatUInt3, len(idx)/3),
	}
}

func mustBuild(t *testing.T, dev Device, desc SceneDesc) Accel {
	t.Helper()
	acc, err := dev.Build(context.Background(), desc)
	require.NoError(t, err)
	t.Cleanup(acc.Release)
	return acc
}

func down(x, y, z float32) *Ray {
	return &Ray{Org: Vec3{x, y, z}, Dir: Vec3{0, 0, -1}, TNear: 0, TFar: float32(math.Inf(1))}
}

func nan() float64 { return math.NaN() }
