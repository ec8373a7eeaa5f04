package raybridge

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/raybridge/internal/kernel"
)

// Intersection is one result of IntersectBatch.
type Intersection struct {
	RayHit
	// Hit is false on a miss, in which case RayHit is zero.
	Hit bool
}

// HitArrays holds vectorized closest-hit results. Misses have TFar = +Inf
// and PrimID = GeomID = InvalidID.
type HitArrays struct {
	TFar   []float32
	U      []float32
	V      []float32
	PrimID []uint32
	GeomID []uint32
	// Ng and N hold three components per ray.
	Ng []float32
	N  []float32
}

// Len returns the number of rays.
func (h *HitArrays) Len() int { return len(h.TFar) }

// Hit reports whether ray i hit.
func (h *HitArrays) Hit(i int) bool { return h.GeomID[i] != InvalidID }

// At returns the result for ray i.
func (h *HitArrays) At(i int) (RayHit, bool) {
	if !h.Hit(i) {
		return RayHit{}, false
	}
	return RayHit{
		T:      h.TFar[i],
		U:      h.U[i],
		V:      h.V[i],
		PrimID: h.PrimID[i],
		GeomID: GeometryID(h.GeomID[i]),
		Ng:     Vec3{h.Ng[3*i], h.Ng[3*i+1], h.Ng[3*i+2]},
		N:      Vec3{h.N[3*i], h.N[3*i+1], h.N[3*i+2]},
	}, true
}

func newHitArrays(n int) *HitArrays {
	return &HitArrays{
		TFar:   make([]float32, n),
		U:      make([]float32, n),
		V:      make([]float32, n),
		PrimID: make([]uint32, n),
		GeomID: make([]uint32, n),
		Ng:     make([]float32, 3*n),
		N:      make([]float32, 3*n),
	}
}

func (h *HitArrays) set(i int, hit *kernel.Hit, ok bool) {
	if !ok {
		h.TFar[i] = float32(math.Inf(1))
		h.PrimID[i] = InvalidID
		h.GeomID[i] = InvalidID
		return
	}
	h.TFar[i] = hit.T
	h.U[i] = hit.U
	h.V[i] = hit.V
	h.PrimID[i] = hit.PrimID
	h.GeomID[i] = hit.GeomID
	h.Ng[3*i], h.Ng[3*i+1], h.Ng[3*i+2] = hit.Ng.X, hit.Ng.Y, hit.Ng.Z
	h.N[3*i], h.N[3*i+1], h.N[3*i+2] = hit.N.X, hit.N.Y, hit.N.Z
}

// readLock takes the query lock and returns the acceleration structure of a
// committed, live scene. The caller must RUnlock on success.
func (s *Scene) readLock() (kernel.Accel, error) {
	s.mu.RLock()
	if s.accel == nil {
		s.mu.RUnlock()
		if s.released.Load() {
			return nil, invalidStatef("scene %d is released", s.id)
		}
		return nil, invalidStatef("scene %d is not committed", s.id)
	}
	return s.accel, nil
}

func (s *Scene) record(ctx context.Context, kind QueryKind, rays, hits int, start time.Time, err error) {
	s.dev.metrics.RecordQuery(kind, rays, hits, time.Since(start), err)
	if err != nil {
		s.logger.LogQueryError(ctx, kind.String(), err)
	}
}

// Intersect returns the closest hit with TNear <= t < TFar.
func (s *Scene) Intersect(r Ray) (RayHit, bool, error) {
	start := time.Now()
	hit, ok, err := s.intersect(&r)
	s.record(context.Background(), QueryIntersect, 1, b2i(ok), start, err)
	return hit, ok, err
}

func (s *Scene) intersect(r *Ray) (RayHit, bool, error) {
	acc, err := s.readLock()
	if err != nil {
		return RayHit{}, false, err
	}
	defer s.mu.RUnlock()

	if err := r.validate(); err != nil {
		return RayHit{}, false, err
	}
	kr := r.kernel()
	var h kernel.Hit
	if !acc.Intersect(&kr, &h) {
		return RayHit{}, false, nil
	}
	return hitFromKernel(&h), true, nil
}

// Occluded reports whether any hit exists with TNear <= t < TFar.
func (s *Scene) Occluded(r Ray) (bool, error) {
	start := time.Now()
	ok, err := s.occluded(&r)
	s.record(context.Background(), QueryOccluded, 1, b2i(ok), start, err)
	return ok, err
}

func (s *Scene) occluded(r *Ray) (bool, error) {
	acc, err := s.readLock()
	if err != nil {
		return false, err
	}
	defer s.mu.RUnlock()

	if err := r.validate(); err != nil {
		return false, err
	}
	kr := r.kernel()
	return acc.Occluded(&kr), nil
}

// IntersectBatch intersects rays in parallel and returns results in input
// order. Every ray is validated before dispatch. If ctx is cancelled the
// batch stops between rays and the context error is returned.
func (s *Scene) IntersectBatch(ctx context.Context, rays []Ray) ([]Intersection, error) {
	start := time.Now()
	out, hits, err := s.intersectBatch(ctx, rays)
	s.record(ctx, QueryIntersect, len(rays), hits, start, err)
	if err == nil {
		s.logger.LogBatch(ctx, "intersect", len(rays), hits)
	}
	return out, err
}

func (s *Scene) intersectBatch(ctx context.Context, rays []Ray) ([]Intersection, int, error) {
	acc, err := s.readLock()
	if err != nil {
		return nil, 0, err
	}
	defer s.mu.RUnlock()

	if err := validateRays(rays); err != nil {
		return nil, 0, err
	}

	out := make([]Intersection, len(rays))
	err = s.dispatch(ctx, len(rays), func(i int) {
		kr := rays[i].kernel()
		var h kernel.Hit
		if acc.Intersect(&kr, &h) {
			out[i] = Intersection{RayHit: hitFromKernel(&h), Hit: true}
		}
	})
	if err != nil {
		return nil, 0, err
	}

	hits := 0
	for i := range out {
		hits += b2i(out[i].Hit)
	}
	return out, hits, nil
}

// OccludedBatch is the any-hit counterpart of IntersectBatch.
func (s *Scene) OccludedBatch(ctx context.Context, rays []Ray) ([]bool, error) {
	start := time.Now()
	out, hits, err := s.occludedBatch(ctx, rays)
	s.record(ctx, QueryOccluded, len(rays), hits, start, err)
	if err == nil {
		s.logger.LogBatch(ctx, "occluded", len(rays), hits)
	}
	return out, err
}

func (s *Scene) occludedBatch(ctx context.Context, rays []Ray) ([]bool, int, error) {
	acc, err := s.readLock()
	if err != nil {
		return nil, 0, err
	}
	defer s.mu.RUnlock()

	if err := validateRays(rays); err != nil {
		return nil, 0, err
	}

	out := make([]bool, len(rays))
	err = s.dispatch(ctx, len(rays), func(i int) {
		kr := rays[i].kernel()
		out[i] = acc.Occluded(&kr)
	})
	if err != nil {
		return nil, 0, err
	}
	return out, countTrue(out), nil
}

// IntersectArrays intersects len(origins)/3 rays given as flat xyz arrays.
// WithTNear and WithTFar supply per-ray bounds.
func (s *Scene) IntersectArrays(ctx context.Context, origins, directions []float32, optFns ...ArrayOption) (*HitArrays, error) {
	start := time.Now()
	out, n, hits, err := s.intersectArrays(ctx, origins, directions, optFns)
	s.record(ctx, QueryIntersect, n, hits, start, err)
	if err == nil {
		s.logger.LogBatch(ctx, "intersect arrays", n, hits)
	}
	return out, err
}

func (s *Scene) intersectArrays(ctx context.Context, origins, directions []float32, optFns []ArrayOption) (*HitArrays, int, int, error) {
	acc, err := s.readLock()
	if err != nil {
		return nil, 0, 0, err
	}
	defer s.mu.RUnlock()

	rays, err := raysFromArrays(origins, directions, optFns)
	if err != nil {
		return nil, 0, 0, err
	}

	out := newHitArrays(len(rays))
	err = s.dispatch(ctx, len(rays), func(i int) {
		var h kernel.Hit
		ok := acc.Intersect(&rays[i], &h)
		out.set(i, &h, ok)
	})
	if err != nil {
		return nil, len(rays), 0, err
	}

	hits := 0
	for i := range rays {
		hits += b2i(out.Hit(i))
	}
	return out, len(rays), hits, nil
}

// OccludedArrays is the any-hit counterpart of IntersectArrays.
func (s *Scene) OccludedArrays(ctx context.Context, origins, directions []float32, optFns ...ArrayOption) ([]bool, error) {
	start := time.Now()
	out, n, err := s.occludedArrays(ctx, origins, directions, optFns)
	s.record(ctx, QueryOccluded, n, countTrue(out), start, err)
	if err == nil {
		s.logger.LogBatch(ctx, "occluded arrays", n, countTrue(out))
	}
	return out, err
}

func (s *Scene) occludedArrays(ctx context.Context, origins, directions []float32, optFns []ArrayOption) ([]bool, int, error) {
	acc, err := s.readLock()
	if err != nil {
		return nil, 0, err
	}
	defer s.mu.RUnlock()

	rays, err := raysFromArrays(origins, directions, optFns)
	if err != nil {
		return nil, 0, err
	}

	out := make([]bool, len(rays))
	err = s.dispatch(ctx, len(rays), func(i int) {
		out[i] = acc.Occluded(&rays[i])
	})
	if err != nil {
		return nil, len(rays), err
	}
	return out, len(rays), nil
}

// dispatch runs fn over [0, n) in chunks of the device SIMD width on at most
// Threads goroutines, each holding a device worker slot. ctx is checked
// before every element.
func (s *Scene) dispatch(ctx context.Context, n int, fn func(i int)) error {
	width := s.dev.props.SIMDWidth
	rc := s.dev.rc

	run := func(ctx context.Context, lo, hi int) error {
		if err := rc.AcquireWorker(ctx); err != nil {
			return err
		}
		defer rc.ReleaseWorker()
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	if n <= width {
		return run(ctx, 0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.dev.props.Threads)
	for lo := 0; lo < n; lo += width {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+width, n)
		g.Go(func() error {
			return run(gctx, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func validateRays(rays []Ray) error {
	for i := range rays {
		if err := rays[i].validate(); err != nil {
			return fmt.Errorf("ray %d: %w", i, err)
		}
	}
	return nil
}

func raysFromArrays(origins, directions []float32, optFns []ArrayOption) ([]kernel.Ray, error) {
	var o arrayOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if len(origins)%3 != 0 {
		return nil, invalidArgf("origins length %d is not a multiple of 3", len(origins))
	}
	if len(directions) != len(origins) {
		return nil, invalidArgf("directions length %d does not match origins length %d", len(directions), len(origins))
	}
	n := len(origins) / 3
	if o.tnear != nil && len(o.tnear) != n {
		return nil, invalidArgf("tnear length %d does not match %d rays", len(o.tnear), n)
	}
	if o.tfar != nil && len(o.tfar) != n {
		return nil, invalidArgf("tfar length %d does not match %d rays", len(o.tfar), n)
	}

	rays := make([]kernel.Ray, n)
	for i := range rays {
		r := NewRay(
			Vec3{origins[3*i], origins[3*i+1], origins[3*i+2]},
			Vec3{directions[3*i], directions[3*i+1], directions[3*i+2]},
		)
		if o.tnear != nil {
			r.TNear = o.tnear[i]
		}
		if o.tfar != nil {
			r.TFar = o.tfar[i]
		}
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("ray %d: %w", i, err)
		}
		rays[i] = r.kernel()
	}
	return rays, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		n += b2i(b)
	}
	return n
}
