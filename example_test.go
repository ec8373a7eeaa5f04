package raybridge_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hupe1980/raybridge"
)

// Example demonstrates the register, commit and query cycle.
func Example() {
	dev, err := raybridge.NewDevice()
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	vb, _ := raybridge.RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	ib, _ := raybridge.RegisterIndices(dev, []uint32{0, 1, 2})

	scene, _ := dev.NewScene()
	defer scene.Release()

	if _, err := scene.AddTriangleMesh(vb, ib); err != nil {
		log.Fatal(err)
	}
	if err := scene.Commit(context.Background()); err != nil {
		log.Fatal(err)
	}

	ray := raybridge.NewRay(raybridge.Vec3{X: 0.25, Y: 0.25, Z: 1}, raybridge.Vec3{Z: -1})
	hit, ok, _ := scene.Intersect(ray)
	fmt.Printf("hit=%v t=%.2f u=%.2f v=%.2f prim=%d\n", ok, hit.T, hit.U, hit.V, hit.PrimID)
	// Output: hit=true t=1.00 u=0.25 v=0.25 prim=0
}

// Example_intervalBounds shows that hits exactly at TFar are excluded.
func Example_intervalBounds() {
	dev, _ := raybridge.NewDevice()
	defer dev.Close()

	vb, _ := raybridge.RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	ib, _ := raybridge.RegisterIndices(dev, []uint32{0, 1, 2})
	scene, _ := dev.NewScene()
	defer scene.Release()
	_, _ = scene.AddTriangleMesh(vb, ib)
	_ = scene.Commit(context.Background())

	ray := raybridge.Ray{
		Origin:    raybridge.Vec3{X: 0.25, Y: 0.25, Z: 1},
		Direction: raybridge.Vec3{Z: -1},
		TFar:      1,
	}
	occluded, _ := scene.Occluded(ray)
	fmt.Println("occluded:", occluded)
	// Output: occluded: false
}

// Example_arrays demonstrates vectorized queries over flat arrays.
func Example_arrays() {
	dev, _ := raybridge.NewDevice()
	defer dev.Close()

	spheres, _ := raybridge.RegisterSpheres(dev, []float32{0, 0, 0, 1}, raybridge.Copied())
	scene, _ := dev.NewScene()
	defer scene.Release()
	_, _ = scene.AddSpheres(spheres)
	_ = scene.Commit(context.Background())

	origins := []float32{0, 0, 5, 3, 0, 5}
	dirs := []float32{0, 0, -1, 0, 0, -1}
	out, _ := scene.IntersectArrays(context.Background(), origins, dirs)
	for i := range out.Len() {
		fmt.Printf("ray %d: hit=%v tfar=%v\n", i, out.Hit(i), out.TFar[i])
	}
	// Output:
	// ray 0: hit=true tfar=4
	// ray 1: hit=false tfar=+Inf
}

// Example_inUse shows that committed scenes pin their buffers.
func Example_inUse() {
	dev, _ := raybridge.NewDevice()
	defer dev.Close()

	vb, _ := raybridge.RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	ib, _ := raybridge.RegisterIndices(dev, []uint32{0, 1, 2})
	scene, _ := dev.NewScene()
	_, _ = scene.AddTriangleMesh(vb, ib)
	_ = scene.Commit(context.Background())

	err := vb.Unregister()
	fmt.Println("in use:", errors.Is(err, raybridge.ErrInUse))

	scene.Release()
	fmt.Println("after release:", vb.Unregister())
	// Output:
	// in use: true
	// after release: <nil>
}
