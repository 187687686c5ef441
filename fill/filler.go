// Package fill reconstructs the cloud, shadow and invalid pixels of a band
// from temporal neighbours and smooth-boundary spatial interpolation, and
// tags every output pixel with where its value comes from.
package fill

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nci/gapfill/blend"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/solver"
	"github.com/nci/gapfill/store"
)

// Source gives access to other dates of the series. It is usually the
// temporal approximation store joined with the raster reader.
type Source interface {
	Neighbors(ctx context.Context, date raster.Date, band raster.Band, maxGap int) ([]store.Neighbor, error)
	Load(ctx context.Context, date raster.Date, band raster.Band) (*raster.Buffer, *raster.Mask, error)
}

type Params struct {
	// A non valid pixel whose square neighbourhood of this radius holds more
	// than MaxInvalidFraction non valid pixels is looked up in time first.
	NeighborhoodRadius int     `yaml:"neighborhood_radius" json:"neighborhood_radius"`
	MaxInvalidFraction float64 `yaml:"max_invalid_fraction" json:"max_invalid_fraction"`
	// MaxTemporalGap in days, 0 disables the temporal fallback.
	MaxTemporalGap int `yaml:"max_temporal_gap" json:"max_temporal_gap"`
	MaxNeighbors   int `yaml:"max_neighbors" json:"max_neighbors"`

	Tolerance     float64       `yaml:"tolerance" json:"tolerance"`
	MaxIterations int           `yaml:"max_iterations" json:"max_iterations"`
	Deadline      time.Duration `yaml:"deadline" json:"deadline"`
	Workers       int           `yaml:"workers" json:"workers"`
}

func (p Params) Validate() error {
	if p.NeighborhoodRadius < 0 {
		return fmt.Errorf("neighborhood_radius must not be negative, got %d", p.NeighborhoodRadius)
	}
	if p.MaxInvalidFraction < 0 || p.MaxInvalidFraction > 1 {
		return fmt.Errorf("max_invalid_fraction must be in [0, 1], got %v", p.MaxInvalidFraction)
	}
	if p.MaxTemporalGap < 0 || p.MaxNeighbors < 0 {
		return fmt.Errorf("max_temporal_gap and max_neighbors must not be negative")
	}
	if p.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", p.Tolerance)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", p.MaxIterations)
	}
	if p.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", p.Workers)
	}
	return nil
}

type TemporalUse struct {
	Date   raster.Date
	Pixels int
}

type Result struct {
	Buffer     *raster.Buffer
	Provenance *Provenance
	Temporal   []TemporalUse
	// Degraded is set when a spatial solve stopped before converging.
	Degraded bool
	// BlendDegraded is set when a temporal patch was feathered in instead of
	// Poisson blended.
	BlendDegraded bool
}

type Filler struct {
	Source Source
	Params Params
	// Seams, when set, Poisson blends every temporal patch into the filled
	// image so the radiometric step between dates does not show.
	Seams *blend.Blender
}

// patch is the set of pixels copied from one neighbour.
type patch struct {
	date   raster.Date
	buf    *raster.Buffer
	pixels []int
}

// FillingMissingPortionsSmoothBoundaries fills buf and returns the filled
// copy with its provenance.
func FillingMissingPortionsSmoothBoundaries(ctx context.Context, buf *raster.Buffer, mask *raster.Mask, src Source, p Params) (*raster.Buffer, *Provenance, error) {
	res, err := (&Filler{Source: src, Params: p}).Fill(ctx, buf, mask)
	if err != nil {
		return nil, nil, err
	}
	return res.Buffer, res.Provenance, nil
}

// Fill never modifies buf or mask.
func (f *Filler) Fill(ctx context.Context, buf *raster.Buffer, mask *raster.Mask) (*Result, error) {
	if err := f.Params.Validate(); err != nil {
		return nil, fmt.Errorf("fill params: %w", err)
	}
	if err := mask.CheckDims(buf); err != nil {
		return nil, err
	}

	width, height := buf.Width, buf.Height
	prov := newProvenance(width, height)
	res := &Result{Buffer: buf.Clone(), Provenance: prov}
	if mask.AllValid() {
		return res, nil
	}

	known := make([]bool, len(buf.Data))
	values := make([]float64, len(buf.Data))
	nKnown := 0
	for i, c := range mask.Class {
		values[i] = float64(buf.Data[i])
		if c == raster.Valid && !buf.IsNoData(i) {
			known[i] = true
			nKnown++
		} else {
			prov.Tags[i] = Approximated
		}
	}

	var patches []patch
	candidates := f.temporalCandidates(known, width, height)
	if len(candidates) > 0 && f.Source != nil && f.Params.MaxTemporalGap > 0 {
		var err error
		if patches, err = f.fillTemporal(ctx, buf, candidates, values, known, prov); err != nil {
			return nil, err
		}
		for _, pt := range patches {
			res.Temporal = append(res.Temporal, TemporalUse{Date: pt.date, Pixels: len(pt.pixels)})
			nKnown += len(pt.pixels)
		}
	}

	if nKnown == 0 {
		return nil, &raster.DataError{Date: buf.Date, Band: buf.Band, Reason: "no valid pixel to reconstruct from"}
	}

	// Patches are blended before the spatial pass so the pixels interpolated
	// around them see the blended level, not the raw neighbour.
	if f.Seams != nil && len(patches) > 0 {
		degraded, err := f.blendPatches(ctx, buf, patches, values, prov)
		if err != nil {
			return nil, err
		}
		res.BlendDegraded = degraded
	}

	degraded, err := f.fillSpatial(ctx, values, known, width, height)
	if err != nil {
		return nil, err
	}
	res.Degraded = degraded

	for i, t := range prov.Tags {
		if t != Real {
			res.Buffer.Data[i] = float32(values[i])
		}
	}
	return res, nil
}

// temporalCandidates returns the unknown pixels sitting in a mostly unknown
// neighbourhood, using an integral image of the unknown indicator.
func (f *Filler) temporalCandidates(known []bool, width, height int) []int {
	r := f.Params.NeighborhoodRadius
	sat := make([]int, (width+1)*(height+1))
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v := 0
			if !known[row*width+col] {
				v = 1
			}
			sat[(row+1)*(width+1)+col+1] = v + sat[row*(width+1)+col+1] + sat[(row+1)*(width+1)+col] - sat[row*(width+1)+col]
		}
	}

	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v > hi {
			return hi
		}
		return v
	}

	var out []int
	for i, k := range known {
		if k {
			continue
		}
		row, col := i/width, i%width
		r0, r1 := clamp(row-r, height-1), clamp(row+r, height-1)+1
		c0, c1 := clamp(col-r, width-1), clamp(col+r, width-1)+1
		unknown := sat[r1*(width+1)+c1] - sat[r0*(width+1)+c1] - sat[r1*(width+1)+c0] + sat[r0*(width+1)+c0]
		area := (r1 - r0) * (c1 - c0)
		if float64(unknown)/float64(area) > f.Params.MaxInvalidFraction {
			out = append(out, i)
		}
	}
	return out
}

func (f *Filler) fillTemporal(ctx context.Context, buf *raster.Buffer, candidates []int, values []float64, known []bool, prov *Provenance) ([]patch, error) {
	logger := logging.With("fill")
	neighbors, err := f.Source.Neighbors(ctx, buf.Date, buf.Band, f.Params.MaxTemporalGap)
	if err != nil {
		return nil, err
	}
	if f.Params.MaxNeighbors > 0 && len(neighbors) > f.Params.MaxNeighbors {
		neighbors = neighbors[:f.Params.MaxNeighbors]
	}

	var used []patch
	for _, n := range neighbors {
		if len(candidates) == 0 {
			break
		}
		nbuf, nmask, err := f.Source.Load(ctx, n.Date, buf.Band)
		if err != nil {
			logger.Warn().Err(err).Str("date", buf.Date.String()).Str("neighbor", n.Date.String()).Msg("temporal neighbour not usable")
			continue
		}
		if !nbuf.SameDims(buf) || nmask.CheckDims(nbuf) != nil {
			logger.Warn().Str("date", buf.Date.String()).Str("neighbor", n.Date.String()).Msg("temporal neighbour dimensions differ")
			continue
		}

		var taken []int
		remaining := candidates[:0]
		for _, i := range candidates {
			if nmask.Class[i] == raster.Valid && !nbuf.IsNoData(i) {
				values[i] = float64(nbuf.Data[i])
				known[i] = true
				prov.Tags[i] = Temporal
				taken = append(taken, i)
				continue
			}
			remaining = append(remaining, i)
		}
		candidates = remaining
		if len(taken) > 0 {
			used = append(used, patch{date: n.Date, buf: nbuf, pixels: taken})
		}
	}
	return used, nil
}

// blendPatches Poisson blends each patch into the observed pixels and the
// patches blended before it. Pixels still unknown are nodata in the target
// and act as a natural boundary.
func (f *Filler) blendPatches(ctx context.Context, buf *raster.Buffer, patches []patch, values []float64, prov *Provenance) (bool, error) {
	target := buf.Clone()
	target.NoData = math.NaN()
	nan := float32(math.NaN())
	for i, t := range prov.Tags {
		if t != Real {
			target.Data[i] = nan
		}
	}

	degraded := false
	for _, pt := range patches {
		region := blend.RegionFromPixels(buf.Width, buf.Height, pt.pixels)
		br, err := f.Seams.Blend(ctx, pt.buf, target, region)
		if err != nil {
			return false, err
		}
		degraded = degraded || br.Degraded
		target = br.Composite
		for _, i := range pt.pixels {
			values[i] = float64(target.Data[i])
		}
	}
	return degraded, nil
}

// fillSpatial solves every unknown region independently.
func (f *Filler) fillSpatial(ctx context.Context, values []float64, known []bool, width, height int) (bool, error) {
	regions := unknownRegions(known, width, height)
	opts := solver.Options{Tolerance: f.Params.Tolerance, MaxIterations: f.Params.MaxIterations, Deadline: f.Params.Deadline}

	degraded := make([]bool, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.Params.Workers)
	for k := range regions {
		k := k
		g.Go(func() error {
			stats, err := solveLaplace(gctx, values, known, width, height, regions[k], opts)
			if err != nil {
				return err
			}
			degraded[k] = stats.Status != solver.Converged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, d := range degraded {
		if d {
			return true, nil
		}
	}
	return false, nil
}
