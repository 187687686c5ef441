// Package blend composites a source raster into a target with gradient
// domain (Poisson) blending, so the seams between the two disappear.
package blend

import (
	"context"
	"fmt"
	"time"

	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/solver"
)

type Params struct {
	Tolerance     float64       `yaml:"tolerance" json:"tolerance"`
	MaxIterations int           `yaml:"max_iterations" json:"max_iterations"`
	Deadline      time.Duration `yaml:"deadline" json:"deadline"`
	// FeatherRadius is the width in pixels of the alpha ramp of the fallback
	// copy. 0 copies the source as is.
	FeatherRadius int `yaml:"feather_radius" json:"feather_radius"`
}

// DefaultParams returns the values used when a config leaves the blend
// section out.
func DefaultParams() Params {
	return Params{
		Tolerance:     1e-6,
		MaxIterations: 5000,
		Deadline:      30 * time.Second,
		FeatherRadius: 8,
	}
}

func (p Params) Validate() error {
	if p.Tolerance <= 0 {
		return fmt.Errorf("blend tolerance must be positive, got %v", p.Tolerance)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("blend max_iterations must not be negative, got %d", p.MaxIterations)
	}
	if p.Deadline < 0 || p.FeatherRadius < 0 {
		return fmt.Errorf("blend deadline and feather_radius must not be negative")
	}
	return nil
}

type Result struct {
	Composite *raster.Buffer
	// Degraded is set when the solve did not converge and the composite is
	// the feathered copy.
	Degraded   bool
	Status     solver.Status
	Iterations int
	Residual   float64
}

type Blender struct {
	Params Params
}

// BlendImagesPoisson blends the interior of source into target, holding the
// image frame of target fixed.
func BlendImagesPoisson(ctx context.Context, source, target *raster.Buffer, p Params) (*Result, error) {
	return (&Blender{Params: p}).Blend(ctx, source, target, InteriorRegion(target.Width, target.Height))
}

// Blend solves, over the region, for the image whose gradients match source
// and whose values next to the region match target. Neither input is
// modified.
func (b *Blender) Blend(ctx context.Context, source, target *raster.Buffer, region Region) (*Result, error) {
	if err := b.Params.Validate(); err != nil {
		return nil, err
	}
	if !source.SameDims(target) {
		return nil, &raster.DataError{Date: target.Date, Band: target.Band,
			Reason: fmt.Sprintf("source is %dx%d, target is %dx%d", source.Width, source.Height, target.Width, target.Height)}
	}
	if region.Width != target.Width || region.Height != target.Height || len(region.In) != len(target.Data) {
		return nil, &raster.DataError{Date: target.Date, Band: target.Band, Reason: "blend region dimensions differ from the target"}
	}

	width, height := target.Width, target.Height
	res := &Result{Composite: target.Clone()}

	index := solvable(source, target, region)
	var pixels []int
	for i, in := range region.In {
		if !in || source.IsNoData(i) {
			continue
		}
		if index[i] < 0 {
			// no fixed value reachable: the source is taken as is
			res.Composite.Data[i] = source.Data[i]
			continue
		}
		index[i] = int32(len(pixels))
		pixels = append(pixels, i)
	}
	if len(pixels) == 0 {
		return res, nil
	}

	op := solver.NewGridLaplacian(len(pixels))
	rhs := make([]float64, len(pixels))
	x := make([]float64, len(pixels))
	for k, p := range pixels {
		row, col := p/width, p%width
		sp := float64(source.Data[p])
		x[k] = sp
		slot := 0
		for _, off := range offsets {
			rr, cc := row+off[0], col+off[1]
			if rr < 0 || rr >= height || cc < 0 || cc >= width {
				continue
			}
			q := rr*width + cc
			if j := index[q]; j >= 0 {
				op.Degree[k]++
				rhs[k] += sp - float64(source.Data[q])
				op.Neighbors[k][slot] = j
				slot++
				continue
			}
			if target.IsNoData(q) {
				continue
			}
			op.Degree[k]++
			if !source.IsNoData(q) {
				rhs[k] += sp - float64(source.Data[q])
			}
			rhs[k] += float64(target.Data[q])
		}
	}

	stats, err := solver.ConjugateGradient(ctx, op, rhs, x, solver.Options{
		Tolerance:     b.Params.Tolerance,
		MaxIterations: b.Params.MaxIterations,
		Deadline:      b.Params.Deadline,
		Diagonal:      op.Degree,
	})
	if err != nil {
		return nil, err
	}
	res.Status, res.Iterations, res.Residual = stats.Status, stats.Iterations, stats.Residual

	if stats.Status != solver.Converged {
		logger := logging.With("blend")
		logger.Warn().Str("date", target.Date.String()).Str("band", target.Band.String()).
			Str("status", stats.Status.String()).Int("iterations", stats.Iterations).
			Msg("poisson solve did not converge, using feathered copy")
		res.Degraded = true
		feather(res.Composite, source, target, region, b.Params.FeatherRadius)
		return res, nil
	}

	for k, p := range pixels {
		res.Composite.Data[p] = float32(x[k])
	}
	return res, nil
}

var offsets = [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}

// solvable marks with 0 the region pixels with source data that are
// 4-connected, through such pixels, to a target value outside the system,
// and with -1 every other pixel. Components without one would leave the
// Poisson system singular.
func solvable(source, target *raster.Buffer, region Region) []int32 {
	width, height := target.Width, target.Height
	member := func(i int) bool { return region.In[i] && !source.IsNoData(i) }

	index := make([]int32, len(region.In))
	queue := make([]int, 0, len(region.In))
	for i := range index {
		index[i] = -1
		if !member(i) {
			continue
		}
		row, col := i/width, i%width
		for _, off := range offsets {
			rr, cc := row+off[0], col+off[1]
			if rr < 0 || rr >= height || cc < 0 || cc >= width {
				continue
			}
			if q := rr*width + cc; !member(q) && !target.IsNoData(q) {
				index[i] = 0
				queue = append(queue, i)
				break
			}
		}
	}
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		row, col := p/width, p%width
		for _, off := range offsets {
			rr, cc := row+off[0], col+off[1]
			if rr < 0 || rr >= height || cc < 0 || cc >= width {
				continue
			}
			if q := rr*width + cc; member(q) && index[q] < 0 {
				index[q] = 0
				queue = append(queue, q)
			}
		}
	}
	return index
}

// BlendAt blends a source smaller than target with its top left corner at
// (row, col) of target. The frame of the source window is held to target.
func (b *Blender) BlendAt(ctx context.Context, source, target *raster.Buffer, row, col int) (*Result, error) {
	if row < 0 || col < 0 || row+source.Height > target.Height || col+source.Width > target.Width {
		return nil, &raster.DataError{Date: target.Date, Band: target.Band,
			Reason: fmt.Sprintf("%dx%d source at (%d, %d) does not fit a %dx%d target", source.Width, source.Height, row, col, target.Width, target.Height)}
	}

	window := raster.NewBuffer(target.Date, target.Band, source.Width, source.Height)
	window.NoData = target.NoData
	for r := 0; r < source.Height; r++ {
		copy(window.Data[r*source.Width:(r+1)*source.Width], target.Data[(row+r)*target.Width+col:])
	}

	res, err := b.Blend(ctx, source, window, InteriorRegion(source.Width, source.Height))
	if err != nil {
		return nil, err
	}

	out := target.Clone()
	for r := 0; r < source.Height; r++ {
		copy(out.Data[(row+r)*target.Width+col:(row+r)*target.Width+col+source.Width], res.Composite.Data[r*source.Width:(r+1)*source.Width])
	}
	res.Composite = out
	return res, nil
}
