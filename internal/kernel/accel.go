package kernel

import "sync/atomic"

// linearNode is a flattened BVH node. Interior nodes keep their left child at
// index+1 and their right child at offset; leaves hold prims[offset:offset+count].
type linearNode struct {
	bounds AABB
	offset uint32
	count  uint32
	axis   uint8
}

type accel struct {
	dev      *goDevice
	geoms    []geomData
	nodes    []linearNode
	prims    []primRef
	stats    BuildStats
	robust   bool
	released atomic.Bool
}

func (a *accel) flatten(n *buildNode, depth int) uint32 {
	idx := uint32(len(a.nodes)) //nolint:gosec // node count bounded by primitive count
	a.nodes = append(a.nodes, linearNode{bounds: n.bounds})
	if depth > a.stats.MaxDepth {
		a.stats.MaxDepth = depth
	}

	if n.left == nil {
		a.nodes[idx].offset = uint32(n.first) //nolint:gosec
		a.nodes[idx].count = uint32(n.count)  //nolint:gosec
		a.stats.Leaves++
		return idx
	}

	a.nodes[idx].axis = uint8(n.axis) //nolint:gosec
	a.flatten(n.left, depth+1)
	a.nodes[idx].offset = a.flatten(n.right, depth+1)
	return idx
}

func (a *accel) Stats() BuildStats {
	return a.stats
}

func (a *accel) Release() {
	if a.released.Swap(true) {
		return
	}
	if a.dev != nil {
		a.dev.liveAccels.Add(-1)
	}
}

func inverse(d Vec3) Vec3 {
	return Vec3{1 / d.X, 1 / d.Y, 1 / d.Z}
}

// Intersect finds the closest hit in [TNear, TFar).
func (a *accel) Intersect(r *Ray, h *Hit) bool {
	if len(a.nodes) == 0 || !(r.TNear <= r.TFar) {
		return false
	}

	inv := inverse(r.Dir)
	negative := [3]bool{inv.X < 0, inv.Y < 0, inv.Z < 0}
	tMax := r.TFar

	var (
		best  candidate
		found bool
		stack [maxBuildDepth + 8]uint32
		sp    int
		cur   uint32
	)
	for {
		node := &a.nodes[cur]
		if node.bounds.hit(r.Org, inv, r.TNear, tMax, a.robust) {
			if node.count > 0 {
				for i := node.offset; i < node.offset+node.count; i++ {
					ref := a.prims[i]
					if a.geoms[ref.geom].intersect(ref, r, tMax, &best) {
						found = true
						tMax = best.t
					}
				}
			} else {
				// Visit the child nearer along the split axis first.
				if negative[node.axis] {
					stack[sp] = cur + 1
					cur = node.offset
				} else {
					stack[sp] = node.offset
					cur++
				}
				sp++
				continue
			}
		}
		if sp == 0 {
			break
		}
		sp--
		cur = stack[sp]
	}

	if found {
		a.geoms[best.ref.geom].finish(r, &best, h)
	}
	return found
}

// Occluded reports whether any hit exists in [TNear, TFar).
func (a *accel) Occluded(r *Ray) bool {
	if len(a.nodes) == 0 || !(r.TNear <= r.TFar) {
		return false
	}

	inv := inverse(r.Dir)
	var (
		scratch candidate
		stack   [maxBuildDepth + 8]uint32
		sp      int
		cur     uint32
	)
	for {
		node := &a.nodes[cur]
		if node.bounds.hit(r.Org, inv, r.TNear, r.TFar, a.robust) {
			if node.count > 0 {
				for i := node.offset; i < node.offset+node.count; i++ {
					ref := a.prims[i]
					if a.geoms[ref.geom].intersect(ref, r, r.TFar, &scratch) {
						return true
					}
				}
			} else {
				stack[sp] = node.offset
				sp++
				cur++
				continue
			}
		}
		if sp == 0 {
			return false
		}
		sp--
		cur = stack[sp]
	}
}
