// Package kernel is the ray-tracing kernel behind the public raybridge API.
//
// It plays the role a native library plays for a binding: it owns device
// contexts, accepts buffer views, builds bounding volume hierarchies over
// triangle meshes, quad meshes and spheres, and answers closest-hit and
// any-hit queries. Like a native library it trusts its inputs: layouts are
// assumed validated, handles are assumed live. Errors are reported as *Error
// values carrying a Code, never as panics.
//
// # Acceleration Structure
//
// Scenes are compiled into a flattened, depth-first BVH. The left child of an
// interior node immediately follows it; the node stores the index of its right
// child. Three build qualities are offered:
//
//   - QualityLow: median split on the longest centroid axis, leaves of up to 8 primitives
//   - QualityMedium: binned SAH (12 bins) on the longest axis, leaves of up to 4
//   - QualityHigh: binned SAH (32 bins) on all three axes, leaves of up to 2
//
// Large subtrees are built in parallel on up to Config.Threads goroutines.
//
// # Intersection Convention
//
// A primitive hit at distance t is reported iff TNear <= t < TFar. Bounding
// boxes are tested against the closed interval so no valid hit is culled.
//
// # Thread Safety
//
// Accel values are immutable after Build and safe for concurrent queries.
package kernel
