package fill

import (
	"context"

	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/solver"
)

// region is one 4-connected set of unknown pixels.
type region struct {
	pixels []int
}

func unknownRegions(known []bool, width, height int) []region {
	cc := components.Label(width, height, components.Four, func(i int) bool { return !known[i] }, func(a, b int) bool { return true }, nil)
	out := make([]region, 0, cc.Len())
	for _, e := range cc.Entries {
		out = append(out, region{pixels: cc.Pixels(e.Label)})
	}
	return out
}

// solveLaplace replaces the region pixels of values by the harmonic
// interpolation of the known pixels around them. Neighbours outside the
// image are ignored, so the image edge is a natural boundary.
func solveLaplace(ctx context.Context, values []float64, known []bool, width, height int, r region, opts solver.Options) (solver.Stats, error) {
	index := make(map[int]int32, len(r.pixels))
	for k, p := range r.pixels {
		index[p] = int32(k)
	}

	op := solver.NewGridLaplacian(len(r.pixels))
	b := make([]float64, len(r.pixels))
	x := make([]float64, len(r.pixels))
	boundarySum, boundaryN := 0.0, 0
	for k, p := range r.pixels {
		row, col := p/width, p%width
		slot := 0
		for _, off := range [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}} {
			rr, cc := row+off[0], col+off[1]
			if rr < 0 || rr >= height || cc < 0 || cc >= width {
				continue
			}
			q := rr*width + cc
			op.Degree[k]++
			if known[q] {
				b[k] += values[q]
				boundarySum += values[q]
				boundaryN++
				continue
			}
			op.Neighbors[k][slot] = index[q]
			slot++
		}
	}

	guess := 0.0
	if boundaryN > 0 {
		guess = boundarySum / float64(boundaryN)
	}
	for k := range x {
		x[k] = guess
	}

	stats, err := solver.ConjugateGradient(ctx, op, b, x, opts)
	if err != nil {
		return stats, err
	}
	if stats.Status == solver.Diverged {
		for k := range x {
			x[k] = guess
		}
	}
	for k, p := range r.pixels {
		values[p] = x[k]
	}
	return stats, nil
}
