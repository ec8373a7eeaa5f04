// Package raybridge binds a ray-tracing kernel to Go.
//
// It owns the lifecycle of kernel devices and scenes, registers caller-owned
// geometry buffers with the kernel without copying them, and dispatches
// closest-hit and any-hit ray queries singly, in batches or over flat arrays.
//
// # Quick Start
//
//	dev, _ := raybridge.NewDevice()
//	defer dev.Close()
//
//	vb, _ := raybridge.RegisterVertices(dev, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
//	ib, _ := raybridge.RegisterIndices(dev, []uint32{0, 1, 2})
//
//	scene, _ := dev.NewScene()
//	defer scene.Release()
//	scene.AddTriangleMesh(vb, ib)
//	_ = scene.Commit(ctx)
//
//	hit, ok, _ := scene.Intersect(raybridge.NewRay(
//	    raybridge.Vec3{X: 0.25, Y: 0.25, Z: 1},
//	    raybridge.Vec3{Z: -1},
//	))
//
// # Ownership
//
// A Device is the root of ownership. Buffers and scenes hold a reference to
// it; Close drops the caller's reference and the kernel context is torn down
// when the last buffer is unregistered and the last scene released. Every
// device operation after Close fails with ErrUseAfterFree.
//
// Buffers are borrowed by default (Shared): the kernel reads the caller's
// slice directly and the registry keeps it reachable. Copied and Pinned
// buffers hold a private copy, on the aligned Go heap or in an off-heap
// mapping respectively. Buffers are addressed by generation-checked handles,
// so a stale handle never resolves to a newer buffer.
//
// # Scenes
//
// A scene is uncommitted until Commit validates its geometries and builds
// the acceleration structure. Committed scenes are immutable and answer
// queries concurrently; Rebuild and Clone derive new scenes from them. A
// buffer referenced by a committed scene cannot be unregistered.
//
// # Interval Convention
//
// A hit at distance t is reported iff TNear <= t < TFar. A hit exactly at
// TFar is a miss in single, batch and array queries alike.
//
// # Concurrency
//
// Mutating operations (RegisterBuffer, Unregister, AddGeometry, SetEnabled,
// Commit, Rebuild, Release, Close) must be serialized by the caller. Queries
// on committed scenes are safe for concurrent use. Batch queries run on a
// worker pool bounded by the device thread count.
package raybridge
