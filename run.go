package main

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/field"
	"github.com/wildstyl3r/lpt/internal/geom"
	"github.com/wildstyl3r/lpt/internal/logging"
	"github.com/wildstyl3r/lpt/internal/model"
	"github.com/wildstyl3r/lpt/internal/output"
	"github.com/wildstyl3r/lpt/internal/parallel"
	"gonum.org/v1/gonum/spatial/r3"
)

func vector(v []float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func box(v []float64) r3.Box {
	return r3.Box{Min: vector(v[:3]), Max: vector(v[3:])}
}

// flatten replaces the unbounded z extent of planar domains by z = 0.
func flatten(b r3.Box) r3.Box {
	if math.IsInf(b.Min.Z, 0) || math.IsInf(b.Max.Z, 0) {
		b.Min.Z, b.Max.Z = 0, 0
	}
	return b
}

func buildBoundary(p *config.RunParameters) (*geom.Locator, error) {
	var faces []geom.Face
	switch {
	case p.Boundary != "":
		var err error
		if faces, err = geom.ReadBoundary(p.Boundary); err != nil {
			return nil, err
		}
	case p.Dimensions == 2:
		faces = geom.RectangleBoundary(box(p.BoundaryBox))
	default:
		faces = geom.BoxBoundary(box(p.BoundaryBox))
	}
	return geom.NewLocator(faces, p.OpenSurfaces...)
}

func buildStore(p *config.RunParameters, bounds r3.Box) (field.Store, error) {
	flow, err := field.NewFlow(p.Flow, field.FlowParams{
		Velocity:     vector(p.FlowVelocity),
		Amplitude:    p.FlowAmplitude,
		Center:       bounds.Center(),
		FluidDensity: p.FluidDensity,
	})
	if err != nil {
		return nil, err
	}
	if p.MeshResolution > 0 {
		mesh, err := field.NewBoxMesh(bounds, p.MeshResolution, p.Dimensions)
		if err != nil {
			return nil, err
		}
		return field.NewSampledStore(mesh, flow, p.SnapshotTimes), nil
	}
	return field.NewAnalyticStore(flow, p.SnapshotTimes, nil), nil
}

func seed(p *config.RunParameters, params *model.PhysicalParticle, bounds r3.Box) ([]*model.Particle, error) {
	if p.SeedFile != "" {
		return model.ReadSeeds(p.SeedFile, 0, params)
	}
	region := bounds
	if len(p.SeedBox) > 0 {
		region = box(p.SeedBox)
	}
	if p.Dimensions == 2 {
		region.Min.Z, region.Max.Z = 0, 0
	}
	rng := rand.New(rand.NewSource(p.RandomSeed))
	return model.SeedBox(rng, region, p.NParticles, 0, params), nil
}

// run simulates one configured run with p.Ranks ranks. Particles are seeded
// on rank 0 and handed out by the first redistribution.
func run(runName string, p *config.RunParameters, threads int, df output.DataFlags, logger *logging.StdLogger) error {
	boundary, err := buildBoundary(p)
	if err != nil {
		return err
	}
	bounds := flatten(boundary.Bounds())
	store, err := buildStore(p, bounds)
	if err != nil {
		return err
	}

	drag, err := model.ParseDrag(p.Drag)
	if err != nil {
		return err
	}
	wear, err := model.ParseWear(p.Wear)
	if err != nil {
		return err
	}
	params := &model.PhysicalParticle{Diameter: p.Diameter, Density: p.Density, Restitution: p.Restitution, Drag: drag}
	if err := params.Validate(); err != nil {
		return err
	}
	partition, err := parallel.NewPartition(p.Partition, boundary.Bounds())
	if err != nil {
		return err
	}
	seeds, err := seed(p, params, bounds)
	if err != nil {
		return err
	}
	logger.Infof("%s: %d particles, %d ranks, %d steps of %g s", runName, len(seeds), p.Ranks, p.Steps, p.Dt)
	logger.Infof("%s: %d faces, surfaces %v, open %v", runName, len(boundary.Faces()), boundary.SurfaceIDs(), boundary.OpenSurfaces())

	group, err := parallel.NewLocalGroup(p.Ranks)
	if err != nil {
		return err
	}
	extractor := output.NewDataExtractor(runName, p.MakeDir, model.Schema(p.Fields), df, logger)
	var mu sync.Mutex
	var collisions []model.CollisionInfo

	err = group.Run(func(comm parallel.Communicator) error {
		rank := comm.Rank()
		rankLogger := logger.WithPrefix(fmt.Sprintf("%s rank %d", runName, rank))
		cache, err := field.NewTemporalCache(store)
		if err != nil {
			return err
		}
		system := model.NewSystem(boundary, cache, rankLogger)
		system.Gravity = vector(p.Gravity)
		system.Omega = vector(p.Omega)
		system.FluidDensity = p.FluidDensity
		system.FluidViscosity = p.FluidViscosity
		system.MaxBounces = p.MaxBounces

		var particles []*model.Particle
		if rank == 0 {
			particles = seeds
			if p.InitialVelocity == "fluid" {
				if err := system.MatchFluid(particles, p.StartTime); err != nil {
					return err
				}
			}
		}
		bucket, err := model.NewBucket(system, particles, model.BucketParameters{
			Time:     p.StartTime,
			Fields:   p.Fields,
			Wear:     wear,
			Threads:  threads,
			Compress: p.Compress,
		})
		if err != nil {
			return err
		}
		if err := bucket.Redistribute(comm, partition); err != nil {
			return err
		}
		if err := extractor.Record(rank, 0, bucket.Snapshot()); err != nil {
			return err
		}

		for step := 1; step <= p.Steps; step++ {
			if err := bucket.Step(p.Dt); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if step%p.SaveEvery == 0 || step == p.Steps {
				if err := extractor.Record(rank, step, bucket.Snapshot()); err != nil {
					return err
				}
			}
			if err := bucket.Redistribute(comm, partition); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if rank == 0 && p.Verbose() {
				fmt.Printf("\rDone:[%d/%d]", step, p.Steps)
			}
		}
		if rank == 0 && p.Verbose() {
			fmt.Println()
		}

		rankLogger.Infof("%d active, %d retired, %d collisions", bucket.Active(), bucket.Retired(), len(bucket.Collisions()))
		mu.Lock()
		collisions = append(collisions, bucket.Collisions()...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	return extractor.Save(collisions)
}
