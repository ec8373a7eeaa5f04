// Package testutil provides testing utilities for raybridge.
//
// This package is intended for use in tests, benchmarks and the raycast
// tool only. It generates deterministic geometry and rays and offers a
// brute-force reference intersector for checking accelerated results.
//
// # Geometry
//
//	verts, idx := testutil.GridMesh(16, 0) // 16x16 quads split into triangles at z=0
//	rng := testutil.NewRNG(seed)
//	verts, idx = rng.RandomTriangles(1000, 10)
//
// # Rays
//
//	origins, dirs := rng.RaysToward(n, box)
//
// # Reference Results
//
//	t, prim, ok := testutil.BruteForce(verts, idx, org, dir, 0, inf)
package testutil
