package raybridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/raybridge/internal/kernel"
)

type sceneGeometry struct {
	Geometry
	enabled bool
}

// Scene is a set of geometries compiled into an acceleration structure.
//
// A scene starts uncommitted: geometries may be added and toggled. Commit
// builds the structure and freezes membership; only committed scenes answer
// queries. The transition is one way, use Rebuild or Clone to change a
// committed scene.
type Scene struct {
	dev    *Device
	id     uint32
	opts   sceneOptions
	logger *Logger

	geoms []sceneGeometry

	// mu orders queries (read) against Release (write).
	mu        sync.RWMutex
	accel     kernel.Accel
	stats     SceneStats
	committed atomic.Bool
	released  atomic.Bool
}

// NewScene creates an uncommitted scene. The scene holds a device reference
// until Release.
func (d *Device) NewScene(optFns ...SceneOption) (*Scene, error) {
	o := sceneOptions{quality: d.opts.quality}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.quality > QualityHigh {
		return nil, invalidArgf("unknown build quality %d", o.quality)
	}
	if o.flags&^(FlagRobust|FlagCompact) != 0 {
		return nil, invalidArgf("unknown scene flags %#x", uint8(o.flags))
	}

	if err := d.acquire(); err != nil {
		return nil, err
	}
	d.liveScenes.Add(1)

	id := d.nextScene.Add(1)
	return &Scene{
		dev:    d,
		id:     id,
		opts:   o,
		logger: d.logger.WithScene(id),
	}, nil
}

// ID returns the device-unique scene id.
func (s *Scene) ID() uint32 { return s.id }

// Device returns the owning device.
func (s *Scene) Device() *Device { return s.dev }

// Quality returns the build quality.
func (s *Scene) Quality() Quality { return s.opts.quality }

// Flags returns the build flags.
func (s *Scene) Flags() Flags { return s.opts.flags }

// Committed reports whether Commit succeeded.
func (s *Scene) Committed() bool { return s.committed.Load() }

func (s *Scene) checkMutable() error {
	switch {
	case s.released.Load():
		return invalidStatef("scene %d is released", s.id)
	case s.committed.Load():
		return invalidStatef("scene %d is committed", s.id)
	}
	return nil
}

// AddGeometry appends g and returns its id. Ids are dense from 0 in
// insertion order.
func (s *Scene) AddGeometry(g Geometry) (GeometryID, error) {
	if err := s.checkMutable(); err != nil {
		return 0, err
	}
	if err := g.validate(s.dev); err != nil {
		return 0, err
	}
	id := GeometryID(len(s.geoms)) //nolint:gosec // bounded by memory
	s.geoms = append(s.geoms, sceneGeometry{Geometry: g, enabled: true})
	return id, nil
}

// AddTriangleMesh is shorthand for AddGeometry(TriangleMesh(vertices, indices)).
func (s *Scene) AddTriangleMesh(vertices, indices *Buffer) (GeometryID, error) {
	return s.AddGeometry(TriangleMesh(vertices, indices))
}

// AddQuadMesh is shorthand for AddGeometry(QuadMesh(vertices, indices)).
func (s *Scene) AddQuadMesh(vertices, indices *Buffer) (GeometryID, error) {
	return s.AddGeometry(QuadMesh(vertices, indices))
}

// AddSpheres is shorthand for AddGeometry(Spheres(spheres)).
func (s *Scene) AddSpheres(spheres *Buffer) (GeometryID, error) {
	return s.AddGeometry(Spheres(spheres))
}

// SetEnabled toggles whether a geometry takes part in the next Commit.
func (s *Scene) SetEnabled(id GeometryID, enabled bool) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if int(id) >= len(s.geoms) {
		return invalidArgf("geometry %d does not exist", id)
	}
	s.geoms[id].enabled = enabled
	return nil
}

// Geometry returns the geometry with the given id.
func (s *Scene) Geometry(id GeometryID) (Geometry, bool) {
	if int(id) >= len(s.geoms) {
		return Geometry{}, false
	}
	return s.geoms[id].Geometry, true
}

// Enabled reports whether a geometry is enabled.
func (s *Scene) Enabled(id GeometryID) bool {
	return int(id) < len(s.geoms) && s.geoms[id].enabled
}

// NumGeometries returns the number of geometries added so far.
func (s *Scene) NumGeometries() int { return len(s.geoms) }

// Commit validates every enabled geometry and builds the acceleration
// structure.
//
// Malformed geometry fails with a *BuildError (matching ErrBuild). A
// cancelled ctx returns the context error and leaves the scene uncommitted.
func (s *Scene) Commit(ctx context.Context) error {
	start := time.Now()
	err := s.commit(ctx)
	s.dev.metrics.RecordCommit(s.stats.Primitives, time.Since(start), err)
	s.logger.LogCommit(ctx, s.Stats(), err)
	return err
}

func (s *Scene) commit(ctx context.Context) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	desc := kernel.SceneDesc{
		Quality: s.opts.quality.kernel(),
		Flags:   s.opts.flags.kernel(),
	}
	enabled := 0
	prims := 0
	for i := range s.geoms {
		g := &s.geoms[i]
		if !g.enabled {
			continue
		}
		id := GeometryID(i) //nolint:gosec
		if err := g.check(id, s.dev.opts.mutationCheck); err != nil {
			return err
		}
		desc.Geometries = append(desc.Geometries, g.desc(id))
		enabled++
		prims += g.PrimitiveCount()
	}

	acc, err := s.dev.kdev.Build(ctx, desc)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return translateKernelError(opCommit, err)
	}

	// Disabled geometries are neither checked nor pinned.
	for i := range s.geoms {
		if !s.geoms[i].enabled {
			continue
		}
		for _, b := range s.geoms[i].buffers() {
			b.addScene(s.id)
		}
	}

	ks := acc.Stats()
	s.mu.Lock()
	s.accel = acc
	s.stats = SceneStats{
		Enabled:    enabled,
		Primitives: prims,
		Nodes:      ks.Nodes,
		Leaves:     ks.Leaves,
		MaxDepth:   ks.MaxDepth,
		BuildTime:  ks.Duration,
		Committed:  true,
	}
	s.mu.Unlock()
	s.committed.Store(true)
	return nil
}

// Stats describes the scene and, once committed, its acceleration structure.
func (s *Scene) Stats() SceneStats {
	s.mu.RLock()
	st := s.stats
	s.mu.RUnlock()
	st.Geometries = len(s.geoms)
	if !st.Committed {
		for i := range s.geoms {
			if s.geoms[i].enabled {
				st.Enabled++
				st.Primitives += s.geoms[i].PrimitiveCount()
			}
		}
	}
	return st
}

// Clone returns an uncommitted scene with the same geometries, enabled
// flags, quality and flags. It fails with ErrUseAfterFree once the device
// is closed.
func (s *Scene) Clone() (*Scene, error) {
	if s.released.Load() {
		return nil, invalidStatef("scene %d is released", s.id)
	}
	c, err := s.dev.NewScene(SceneQuality(s.opts.quality), SceneFlags(s.opts.flags))
	if err != nil {
		return nil, err
	}
	c.geoms = append([]sceneGeometry(nil), s.geoms...)
	return c, nil
}

// Rebuild clones the scene, applies edit to the clone and commits it. The
// receiver is left untouched. On failure the clone is released.
func (s *Scene) Rebuild(ctx context.Context, edit func(*Scene) error) (*Scene, error) {
	c, err := s.Clone()
	if err != nil {
		return nil, err
	}
	if edit != nil {
		if err := edit(c); err != nil {
			c.Release()
			return nil, err
		}
	}
	if err := c.Commit(ctx); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

// Release frees the acceleration structure, lets the referenced buffers be
// unregistered and drops the scene's device reference. It waits for
// in-flight queries and is idempotent.
func (s *Scene) Release() {
	if s.released.Swap(true) {
		return
	}

	s.mu.Lock()
	acc := s.accel
	s.accel = nil
	s.mu.Unlock()

	if acc != nil {
		acc.Release()
		for i := range s.geoms {
			for _, b := range s.geoms[i].buffers() {
				b.removeScene(s.id)
			}
		}
	}
	s.geoms = nil

	s.dev.liveScenes.Add(-1)
	s.logger.LogRelease(context.Background(), "scene", nil)
	s.dev.release()
}
