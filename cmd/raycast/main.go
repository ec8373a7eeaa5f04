// Command raycast builds a procedural scene, traces a batch of random rays
// through it and prints a report.
//
//	raycast -grid 256 -spheres 64 -rays 1000000 -quality high -format go-json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/raybridge"
	"github.com/hupe1980/raybridge/codec"
	"github.com/hupe1980/raybridge/prommetrics"
	"github.com/hupe1980/raybridge/testutil"
)

type config struct {
	grid    int
	spheres int
	rays    int
	quality raybridge.Quality
	threads int
	seed    int64
	codec   codec.Codec
	verbose bool
}

// Report is the output of one run.
type Report struct {
	Codec      string  `json:"codec"`
	ISA        string  `json:"isa"`
	SIMDWidth  int     `json:"simd_width"`
	Threads    int     `json:"threads"`
	Quality    string  `json:"quality"`
	Geometries int     `json:"geometries"`
	Primitives int     `json:"primitives"`
	Nodes      int     `json:"nodes"`
	Leaves     int     `json:"leaves"`
	MaxDepth   int     `json:"max_depth"`
	BuildMS    float64 `json:"build_ms"`
	Rays       int     `json:"rays"`
	Hits       int     `json:"hits"`
	Occluded   int     `json:"occluded"`
	HitRatio   float64 `json:"hit_ratio"`
	TraceMS    float64 `json:"trace_ms"`
	MRaysPerS  float64 `json:"mrays_per_sec"`
}

func main() {
	err := realMain(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Print(err)
		os.Exit(1)
	}
}

// realMain returns instead of exiting so its deferred cleanup always runs.
func realMain(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("raycast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		grid        = fs.Int("grid", 128, "Grid mesh resolution (cells per side)")
		spheres     = fs.Int("spheres", 16, "Number of random spheres")
		rays        = fs.Int("rays", 100000, "Number of rays to trace")
		quality     = fs.String("quality", "medium", "Build quality: low, medium, high")
		threads     = fs.Int("threads", 0, "Worker threads (0 = GOMAXPROCS)")
		seed        = fs.Int64("seed", 42, "Random seed")
		format      = fs.String("format", "go-json", "Report codec: json, go-json")
		metricsAddr = fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")
		hold        = fs.Duration("hold", 0, "Keep serving metrics this long after the run")
		pretty      = fs.Bool("pretty", false, "Indent the report")
		verbose     = fs.Bool("v", false, "Enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, err := raybridge.ParseQuality(*quality)
	if err != nil {
		return err
	}
	indent := ""
	if *pretty {
		indent = "  "
	}
	c, ok := codec.Indented(*format, indent)
	if !ok {
		return fmt.Errorf("unknown format %q (want one of %v)", *format, codec.Names())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []raybridge.Option
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, raybridge.WithMetricsCollector(prommetrics.New(reg)))

		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()
		defer srv.Close()
		fmt.Fprintf(stderr, "Prometheus metrics available at http://%s/metrics\n", *metricsAddr)
	}

	cfg := config{
		grid:    *grid,
		spheres: *spheres,
		rays:    *rays,
		quality: q,
		threads: *threads,
		seed:    *seed,
		codec:   c,
		verbose: *verbose,
	}
	if err := run(ctx, cfg, stdout, opts...); err != nil {
		return err
	}

	if *metricsAddr != "" && *hold > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(*hold):
		}
	}
	return nil
}

func run(ctx context.Context, cfg config, w io.Writer, opts ...raybridge.Option) error {
	opts = append(opts,
		raybridge.WithThreads(cfg.threads),
		raybridge.WithBuildQuality(cfg.quality),
	)
	if cfg.verbose {
		opts = append(opts, raybridge.WithLogLevel(slog.LevelDebug))
	}

	dev, err := raybridge.NewDevice(opts...)
	if err != nil {
		return err
	}
	defer dev.Close()

	rng := testutil.NewRNG(cfg.seed)
	scene, err := buildScene(dev, cfg, rng)
	if err != nil {
		return err
	}
	defer scene.Release()

	if err := scene.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	extent := float32(max(cfg.grid, 1))
	origins, dirs := rng.RaysToward(cfg.rays, extent)

	start := time.Now()
	hits, err := scene.IntersectArrays(ctx, origins, dirs)
	if err != nil {
		return fmt.Errorf("intersect: %w", err)
	}
	trace := time.Since(start)

	occ, err := scene.OccludedArrays(ctx, origins, dirs)
	if err != nil {
		return fmt.Errorf("occluded: %w", err)
	}

	return codec.Write(w, cfg.codec, newReport(cfg, dev.Properties(), scene.Stats(), hits, occ, trace))
}

// buildScene adds a grid mesh at z=0 and spheres floating above it.
func buildScene(dev *raybridge.Device, cfg config, rng *testutil.RNG) (*raybridge.Scene, error) {
	scene, err := dev.NewScene(raybridge.SceneQuality(cfg.quality))
	if err != nil {
		return nil, err
	}

	if cfg.grid > 0 {
		verts, idx := testutil.GridMesh(cfg.grid, 0)
		vb, err := raybridge.RegisterVertices(dev, verts)
		if err != nil {
			scene.Release()
			return nil, err
		}
		ib, err := raybridge.RegisterIndices(dev, idx)
		if err != nil {
			scene.Release()
			return nil, err
		}
		if _, err := scene.AddTriangleMesh(vb, ib); err != nil {
			scene.Release()
			return nil, err
		}
	}

	if cfg.spheres > 0 {
		extent := float32(max(cfg.grid, 1))
		xyzr := make([]float32, 0, 4*cfg.spheres)
		for range cfg.spheres {
			xyzr = append(xyzr,
				rng.Float32()*extent,
				rng.Float32()*extent,
				1+rng.Float32()*extent/4,
				0.1+rng.Float32()*extent/32,
			)
		}
		sb, err := raybridge.RegisterSpheres(dev, xyzr, raybridge.Copied())
		if err != nil {
			scene.Release()
			return nil, err
		}
		if _, err := scene.AddSpheres(sb); err != nil {
			scene.Release()
			return nil, err
		}
	}
	return scene, nil
}

func newReport(cfg config, props raybridge.Properties, stats raybridge.SceneStats, hits *raybridge.HitArrays, occ []bool, trace time.Duration) Report {
	r := Report{
		Codec:      cfg.codec.Name(),
		ISA:        props.ISA,
		SIMDWidth:  props.SIMDWidth,
		Threads:    props.Threads,
		Quality:    cfg.quality.String(),
		Geometries: stats.Geometries,
		Primitives: stats.Primitives,
		Nodes:      stats.Nodes,
		Leaves:     stats.Leaves,
		MaxDepth:   stats.MaxDepth,
		BuildMS:    float64(stats.BuildTime.Microseconds()) / 1000,
		Rays:       hits.Len(),
		TraceMS:    float64(trace.Microseconds()) / 1000,
	}
	for i := range hits.Len() {
		if hits.Hit(i) {
			r.Hits++
		}
	}
	for _, o := range occ {
		if o {
			r.Occluded++
		}
	}
	if r.Rays > 0 {
		r.HitRatio = float64(r.Hits) / float64(r.Rays)
	}
	if s := trace.Seconds(); s > 0 {
		r.MRaysPerS = float64(r.Rays) / s / 1e6
	}
	return r
}
