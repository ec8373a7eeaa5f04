package kernel

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// maxBuildDepth keeps the traversal stack bounded.
	maxBuildDepth = 56

	// parallelThreshold is the smallest subtree built on its own goroutine.
	parallelThreshold = 4096

	costTraversal = 1.0
	costIntersect = 1.0

	maxBins = 32
)

type primRef struct {
	geom uint32 // index into accel.geoms
	prim uint32
}

type buildRef struct {
	ref      primRef
	bounds   AABB
	centroid Vec3
}

type buildNode struct {
	bounds      AABB
	left, right *buildNode
	first       int
	count       int
	axis        int
}

type builder struct {
	ctx           context.Context
	refs          []buildRef
	maxLeaf       int
	bins          int
	allAxes       bool
	median        bool
	parallelDepth int
	nodes         atomic.Int64
}

func newBuilder(ctx context.Context, refs []buildRef, q Quality, flags SceneFlags, threads int) *builder {
	b := &builder{ctx: ctx, refs: refs}
	switch q {
	case QualityLow:
		b.median = true
		b.maxLeaf = 8
	case QualityHigh:
		b.bins = 32
		b.allAxes = true
		b.maxLeaf = 2
	default:
		b.bins = 12
		b.maxLeaf = 4
	}
	if flags&FlagCompact != 0 {
		b.maxLeaf *= 2
	}
	// Enough fork levels to feed every worker.
	for n := 1; n < threads; n *= 2 {
		b.parallelDepth++
	}
	return b
}

// build validates every primitive and compiles the BVH.
func build(ctx context.Context, desc SceneDesc, threads int) (*accel, error) {
	start := time.Now()

	a := &accel{
		geoms:  make([]geomData, len(desc.Geometries)),
		robust: desc.Flags&FlagRobust != 0,
	}

	total := 0
	for i, g := range desc.Geometries {
		if g.Vertices == nil {
			return nil, errorf(CodeInvalidArgument, "geometry %d: missing vertex buffer", g.ID)
		}
		gd := geomData{id: g.ID, kind: g.Kind, verts: g.Vertices.View()}
		if g.Kind != KindSpheres {
			if g.Indices == nil {
				return nil, errorf(CodeInvalidArgument, "geometry %d: missing index buffer", g.ID)
			}
			gd.indices = g.Indices.View()
		}
		if g.Normals != nil {
			gd.normals = g.Normals.View()
			if gd.normals.Count < gd.verts.Count {
				return nil, errorf(CodeInvalidArgument, "geometry %d: %d normals for %d vertices", g.ID, gd.normals.Count, gd.verts.Count)
			}
		}
		a.geoms[i] = gd
		total += gd.primCount()
	}

	refs := make([]buildRef, 0, total)
	for gi := range a.geoms {
		g := &a.geoms[gi]
		for p := 0; p < g.primCount(); p++ {
			box, err := g.bounds(p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, buildRef{
				ref:      primRef{geom: uint32(gi), prim: uint32(p)}, //nolint:gosec // counts bounded by uint32 ids
				bounds:   box,
				centroid: box.center(),
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
	}

	if len(refs) > 0 {
		b := newBuilder(ctx, refs, desc.Quality, desc.Flags, threads)
		root, err := b.build(0, len(refs), 0)
		if err != nil {
			return nil, err
		}
		a.nodes = make([]linearNode, 0, b.nodes.Load())
		a.flatten(root, 0)

		a.prims = make([]primRef, len(refs))
		for i := range refs {
			a.prims[i] = refs[i].ref
		}
	}

	a.stats.Primitives = len(refs)
	a.stats.Nodes = len(a.nodes)
	a.stats.Duration = time.Since(start)
	return a, nil
}

func cancelled(err error) error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return err
	}
	return &Error{Code: CodeCancelled, Message: err.Error(), cause: err}
}

func (b *builder) leaf(bounds AABB, first, count int) *buildNode {
	b.nodes.Add(1)
	return &buildNode{bounds: bounds, first: first, count: count}
}

func (b *builder) build(first, count, depth int) (*buildNode, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	refs := b.refs[first : first+count]
	bounds, cbounds := emptyAABB, emptyAABB
	for i := range refs {
		bounds = bounds.union(refs[i].bounds)
		cbounds = cbounds.extend(refs[i].centroid)
	}

	if count <= 1 || depth >= maxBuildDepth {
		return b.leaf(bounds, first, count), nil
	}

	mid, axis, ok := b.split(refs, bounds, cbounds)
	if !ok {
		return b.leaf(bounds, first, count), nil
	}

	b.nodes.Add(1)
	node := &buildNode{bounds: bounds, axis: axis}

	if depth < b.parallelDepth && count >= parallelThreshold {
		var g errgroup.Group
		g.Go(func() error {
			var err error
			node.left, err = b.build(first, mid, depth+1)
			return err
		})
		g.Go(func() error {
			var err error
			node.right, err = b.build(first+mid, count-mid, depth+1)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return node, nil
	}

	var err error
	if node.left, err = b.build(first, mid, depth+1); err != nil {
		return nil, err
	}
	if node.right, err = b.build(first+mid, count-mid, depth+1); err != nil {
		return nil, err
	}
	return node, nil
}

// split partitions refs in place and returns the size of the left half.
// ok is false when a leaf is cheaper.
func (b *builder) split(refs []buildRef, bounds, cb AABB) (mid, axis int, ok bool) {
	n := len(refs)
	axis = cb.longestAxis()

	if cb.Max.Axis(axis)-cb.Min.Axis(axis) <= 0 {
		// All centroids coincide.
		if n <= b.maxLeaf {
			return 0, axis, false
		}
		return n / 2, axis, true
	}

	if b.median {
		if n <= b.maxLeaf {
			return 0, axis, false
		}
		return b.medianSplit(refs, axis), axis, true
	}

	axes := []int{axis}
	if b.allAxes {
		axes = []int{0, 1, 2}
	}

	bestCost := float32(math.MaxFloat32)
	bestAxis, bestBin := -1, 0
	for _, ax := range axes {
		lo := cb.Min.Axis(ax)
		ext := cb.Max.Axis(ax) - lo
		if ext <= 0 {
			continue
		}
		cost, bin := b.sah(refs, bounds, ax, lo, ext)
		if cost < bestCost {
			bestCost, bestAxis, bestBin = cost, ax, bin
		}
	}

	if bestAxis < 0 || bestCost >= float32(n)*costIntersect {
		if n <= b.maxLeaf {
			return 0, axis, false
		}
		if bestAxis < 0 {
			return b.medianSplit(refs, axis), axis, true
		}
	}

	lo := cb.Min.Axis(bestAxis)
	ext := cb.Max.Axis(bestAxis) - lo
	mid = partition(refs, func(r *buildRef) bool {
		return b.binOf(r.centroid.Axis(bestAxis), lo, ext) < bestBin
	})
	if mid == 0 || mid == n {
		return b.medianSplit(refs, bestAxis), bestAxis, true
	}
	return mid, bestAxis, true
}

func (b *builder) medianSplit(refs []buildRef, axis int) int {
	slices.SortFunc(refs, func(x, y buildRef) int {
		cx, cy := x.centroid.Axis(axis), y.centroid.Axis(axis)
		switch {
		case cx < cy:
			return -1
		case cx > cy:
			return 1
		default:
			return 0
		}
	})
	return len(refs) / 2
}

func (b *builder) binOf(c, lo, ext float32) int {
	i := int(float32(b.bins) * (c - lo) / ext)
	if i >= b.bins {
		i = b.bins - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// sah returns the cheapest split along axis and the first bin of its right half.
func (b *builder) sah(refs []buildRef, bounds AABB, axis int, lo, ext float32) (float32, int) {
	var (
		binBounds [maxBins]AABB
		binCount  [maxBins]int
	)
	for i := 0; i < b.bins; i++ {
		binBounds[i] = emptyAABB
	}
	for i := range refs {
		k := b.binOf(refs[i].centroid.Axis(axis), lo, ext)
		binBounds[k] = binBounds[k].union(refs[i].bounds)
		binCount[k]++
	}

	// Sweep from the right so the left pass can price every split in one go.
	var (
		rightArea  [maxBins]float32
		rightCount [maxBins]int
	)
	acc, cnt := emptyAABB, 0
	for i := b.bins - 1; i > 0; i-- {
		acc = acc.union(binBounds[i])
		cnt += binCount[i]
		rightArea[i] = acc.SurfaceArea()
		rightCount[i] = cnt
	}

	inv := float32(0)
	if area := bounds.SurfaceArea(); area > 0 {
		inv = 1 / area
	}

	best, bestBin := float32(math.MaxFloat32), 1
	acc, cnt = emptyAABB, 0
	for i := 1; i < b.bins; i++ {
		acc = acc.union(binBounds[i-1])
		cnt += binCount[i-1]
		if cnt == 0 || rightCount[i] == 0 {
			continue
		}
		cost := costTraversal + costIntersect*inv*(acc.SurfaceArea()*float32(cnt)+rightArea[i]*float32(rightCount[i]))
		if cost < best {
			best, bestBin = cost, i
		}
	}
	return best, bestBin
}

func partition(refs []buildRef, left func(*buildRef) bool) int {
	i := 0
	for j := range refs {
		if left(&refs[j]) {
			refs[i], refs[j] = refs[j], refs[i]
			i++
		}
	}
	return i
}
