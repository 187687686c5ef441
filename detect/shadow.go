package detect

import (
	"math"
	"sort"

	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/morph"
	"github.com/nci/gapfill/raster"
)

// linearStep maps x from [x0, x1] onto [y0, y1], clamping outside.
func linearStep(x, x0, x1, y0, y1 float64) float64 {
	if x <= x0 {
		return y0
	}
	if x >= x1 {
		return y1
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// percentile of values with linear interpolation, q in [0, 1].
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

// clearSkyPercentile picks the NIR level outside the image when pit filling:
// cloudier scenes use a brighter level.
func clearSkyPercentile(cloudCover float64) float64 {
	return linearStep(cloudCover, 0.07, 0.2, 0.4, 0.7)
}

// potentialShadows marks pixels that may be shadowed: depressions of the NIR
// band and the shadow classes of the scene classification. It also returns
// the depth of every pixel below the pit filled NIR surface.
func potentialShadows(nir []float64, scl *raster.Buffer, cloud, invalid []bool, width, height int, cloudCover float64, p CloudParams) ([]bool, []float64, error) {
	var clear []float64
	for i, v := range nir {
		if !cloud[i] && !invalid[i] {
			clear = append(clear, v)
		}
	}
	outside := float32(percentile(clear, clearSkyPercentile(cloudCover)))

	surface := make([]float32, len(nir))
	for i, v := range nir {
		if invalid[i] {
			surface[i] = outside
		} else {
			surface[i] = float32(v)
		}
	}
	filled := PitFill(surface, width, height, outside)

	raw := make([]float32, len(nir))
	drop := make([]float64, len(nir))
	for i := range nir {
		drop[i] = float64(filled[i] - surface[i])
		if drop[i] >= p.ShadowNIRDifference || sclShadow.Has(scl.Data[i]) {
			raw[i] = 1
		}
	}

	if p.PotentialShadowBlurSigma > 0 {
		blurred, err := morph.GaussianBlur(raw, width, height, p.PotentialShadowBlurSigma)
		if err != nil {
			return nil, nil, err
		}
		raw = morph.Threshold(blurred, p.PotentialShadowThreshold)
	}

	out := make([]bool, len(nir))
	for i, v := range raw {
		out[i] = v > 0 && !cloud[i] && !invalid[i]
	}
	return out, drop, nil
}

// objectShadows projects every cloud object along the sun and view geometry
// for each candidate height and keeps the best matching projection.
//
// The second result is the beta map: every pixel a cloud may shadow gets the
// probability of the casting cloud pixel, weighted down linearly as the cast
// length departs from the one of the best height.
func objectShadows(nir []float64, prob []float32, cloud, potential []bool, width, height int, angles Angles, p CloudParams) ([]bool, []float64) {
	shadow := make([]bool, len(cloud))
	beta := make([]float64, len(cloud))
	cc := components.Label(width, height, components.Eight, func(i int) bool { return cloud[i] }, func(a, b int) bool { return true }, nil)

	for _, e := range cc.Entries {
		if e.Count < MinimumCloudSizeForRayCasting {
			continue
		}
		pixels := cc.Pixels(e.Label)

		bestScore, bestHeight := -1.0, 0.0
		for h := p.CloudHeightMin; h <= p.CloudHeightMax; h += p.CloudHeightStep {
			dCol, dRow := angles.ShadowOffset(h, p.PixelSize)
			hits, total := 0, 0
			for _, i := range pixels {
				q, ok := project(i, width, height, dCol, dRow)
				if !ok || cloud[q] {
					continue
				}
				total++
				if potential[q] {
					hits++
				}
			}
			if total == 0 {
				continue
			}
			if score := float64(hits) / float64(total); score > bestScore {
				bestScore, bestHeight = score, h
			}
		}
		if bestScore < p.ShadowProbabilityThreshold {
			continue
		}

		bestCol, bestRow := angles.ShadowOffset(bestHeight, p.PixelSize)
		bestLength := math.Hypot(bestCol, bestRow)
		for h := p.CloudHeightMin; h <= p.CloudHeightMax; h += p.CloudHeightStep {
			dCol, dRow := angles.ShadowOffset(h, p.PixelSize)
			weight := castWeight(math.Hypot(dCol, dRow), bestLength)
			if weight <= 0 {
				continue
			}
			for _, i := range pixels {
				q, ok := project(i, width, height, dCol, dRow)
				if !ok || cloud[q] {
					continue
				}
				if b := weight * clamp01(float64(prob[i])); b > beta[q] {
					beta[q] = b
				}
			}
		}

		for _, i := range pixels {
			q, ok := project(i, width, height, bestCol, bestRow)
			if ok && !cloud[q] && potential[q] && nir[q] <= p.ShadowReflectanceCeiling {
				shadow[q] = true
			}
		}
	}
	return shadow, beta
}

// castWeight is 1 for the best cast length and falls to 0 once the length is
// off by the best length itself.
func castWeight(length, best float64) float64 {
	if best == 0 {
		if length == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-math.Abs(length-best)/best)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// alphaMap scores how much darker than its surroundings every pixel is: 0 on
// the pit filled surface and 1 at twice the potential shadow depth.
func alphaMap(drop []float64, depth float64) []float64 {
	alpha := make([]float64, len(drop))
	for i, d := range drop {
		alpha[i] = linearStep(d, 0, 2*depth, 0, 1)
	}
	return alpha
}

// ProbabilitySurface is the empirical shadow probability over a uniform
// Bins x Bins grid of (alpha, beta): the share of the pixels of each cell that
// the object shadow mask marked.
type ProbabilitySurface struct {
	Bins        int
	Probability []float64
}

func cell(v float64, bins int) int {
	c := int(clamp01(v) * float64(bins))
	if c >= bins {
		c = bins - 1
	}
	return c
}

func NewProbabilitySurface(shadow, cloud, invalid []bool, alpha, beta []float64, bins int) *ProbabilitySurface {
	hits := make([]int, bins*bins)
	total := make([]int, bins*bins)
	for i := range shadow {
		if cloud[i] || invalid[i] {
			continue
		}
		c := cell(alpha[i], bins)*bins + cell(beta[i], bins)
		total[c]++
		if shadow[i] {
			hits[c]++
		}
	}
	s := &ProbabilitySurface{Bins: bins, Probability: make([]float64, bins*bins)}
	for c := range total {
		if total[c] > 0 {
			s.Probability[c] = float64(hits[c]) / float64(total[c])
		}
	}
	return s
}

func (s *ProbabilitySurface) At(alpha, beta float64) float64 {
	return s.Probability[cell(alpha, s.Bins)*s.Bins+cell(beta, s.Bins)]
}

// improvedShadows replaces the object shadow mask by the pixels whose
// (alpha, beta) probability reaches the refinement threshold. Cloud and
// invalid pixels are never shadow.
func improvedShadows(shadow, cloud, invalid []bool, alpha, beta []float64, r ShadowRefinement) []bool {
	surface := NewProbabilitySurface(shadow, cloud, invalid, alpha, beta, r.Bins)
	out := make([]bool, len(shadow))
	for i := range out {
		if cloud[i] || invalid[i] {
			continue
		}
		out[i] = surface.At(alpha[i], beta[i]) >= r.Threshold
	}
	return out
}

func project(i, width, height int, dCol, dRow float64) (int, bool) {
	col := i%width + int(math.Round(dCol))
	row := i/width + int(math.Round(dRow))
	if row < 0 || row >= height || col < 0 || col >= width {
		return 0, false
	}
	return row*width + col, true
}
