package fill

import (
	"fmt"
	"math"

	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

// Summary holds the fractions of an image in each non valid class.
type Summary struct {
	PercentCloudy  float64
	PercentShadows float64
	PercentInvalid float64
}

// SingleImageSummary counts every class over the total pixel count. It only
// reads the mask.
func SingleImageSummary(mask *raster.Mask) Summary {
	n := mask.Len()
	if n == 0 {
		return Summary{}
	}
	var clouds, shadows, invalid int
	for _, c := range mask.Class {
		switch c {
		case raster.Cloud:
			clouds++
		case raster.Shadow:
			shadows++
		case raster.Invalid:
			invalid++
		}
	}
	total := float64(n)
	return Summary{
		PercentCloudy:  float64(clouds) / total,
		PercentShadows: float64(shadows) / total,
		PercentInvalid: float64(invalid) / total,
	}
}

// PercentInvalidNoiseRemoved is the cloud and shadow share of the mask once
// regions smaller than minRegionSize, whatever their class, are dropped. The
// mask is not modified.
func PercentInvalidNoiseRemoved(mask *raster.Mask, minRegionSize int) float64 {
	if mask.Len() == 0 {
		return 0
	}
	m := mask.Clone()
	components.RemoveNoise(m, minRegionSize)
	return float64(m.Count(raster.Cloud)+m.Count(raster.Shadow)) / float64(m.Len())
}

// DataSelection picks the pixels an index summary reduces over. It is
// either UseRealData or UseApproximatedData.
type DataSelection interface {
	selection()
}

// UseRealData keeps the observed pixels. Cloud and shadow pixels can be
// excluded, and a whole image is skipped when its non valid fraction exceeds
// SkipThreshold.
type UseRealData struct {
	ExcludeCloudyPixels bool
	ExcludeShadowPixels bool
	SkipThreshold       *float64
}

// UseApproximatedData keeps every pixel of the filled image.
type UseApproximatedData struct{}

func (UseRealData) selection()         {}
func (UseApproximatedData) selection() {}

type IndexStats struct {
	Min, Max, Mean float64
	NumPixels      int
	Skipped        bool
}

// SummarizeIndex reduces an index image. With UseRealData the values are
// computed from the observed bands; with UseApproximatedData they come from
// the filled bands.
func SummarizeIndex(values *raster.Buffer, mask *raster.Mask, sel DataSelection) (IndexStats, error) {
	if err := mask.CheckDims(values); err != nil {
		return IndexStats{}, err
	}

	keep := func(i int) bool { return !values.IsNoData(i) }
	switch s := sel.(type) {
	case UseApproximatedData:
	case UseRealData:
		if s.SkipThreshold != nil {
			sum := SingleImageSummary(mask)
			if sum.PercentCloudy+sum.PercentShadows+sum.PercentInvalid > *s.SkipThreshold {
				return IndexStats{Skipped: true}, nil
			}
		}
		keep = func(i int) bool {
			switch mask.Class[i] {
			case raster.Invalid:
				return false
			case raster.Cloud:
				if s.ExcludeCloudyPixels {
					return false
				}
			case raster.Shadow:
				if s.ExcludeShadowPixels {
					return false
				}
			}
			return !values.IsNoData(i)
		}
	default:
		return IndexStats{}, fmt.Errorf("unsupported data selection %T", sel)
	}

	stats := IndexStats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for i, v := range values.Data {
		if !keep(i) {
			continue
		}
		f := float64(v)
		stats.Min = math.Min(stats.Min, f)
		stats.Max = math.Max(stats.Max, f)
		sum += f
		stats.NumPixels++
	}
	if stats.NumPixels == 0 {
		return IndexStats{Skipped: true}, nil
	}
	stats.Mean = sum / float64(stats.NumPixels)
	return stats, nil
}

// SummarizeDate computes idx over the observed and the filled bands of one
// date and reduces each image, the observed one with sel and the filled one
// over every pixel. Skipped images yield no row. A pixel computed from a
// nodata sample is left out of both.
func SummarizeDate(date raster.Date, name string, idx *raster.Index, observed, filled map[raster.Band]*raster.Buffer,
	mask *raster.Mask, sel UseRealData) ([]store.IndexSummary, error) {
	var out []store.IndexSummary
	for _, in := range []struct {
		bands map[raster.Band]*raster.Buffer
		sel   DataSelection
	}{
		{observed, sel},
		{filled, UseApproximatedData{}},
	} {
		values, err := idx.Compute(in.bands)
		if err != nil {
			return nil, err
		}
		markNoData(values, idx, in.bands)
		stats, err := SummarizeIndex(values, mask, in.sel)
		if err != nil {
			return nil, err
		}
		if stats.Skipped {
			continue
		}
		_, approximated := in.sel.(UseApproximatedData)
		sum := store.IndexSummary{
			Index:               name,
			Date:                date,
			UseApproximatedData: approximated,
			Min:                 stats.Min,
			Max:                 stats.Max,
			Mean:                stats.Mean,
			NumPixels:           stats.NumPixels,
		}
		if !approximated {
			sum.ExcludeCloudyPixels = sel.ExcludeCloudyPixels
			sum.ExcludeShadowPixels = sel.ExcludeShadowPixels
		}
		out = append(out, sum)
	}
	return out, nil
}

// markNoData sets to NaN the index pixels computed from a nodata sample.
func markNoData(values *raster.Buffer, idx *raster.Index, bands map[raster.Band]*raster.Buffer) {
	nan := float32(math.NaN())
	values.NoData = math.NaN()
	for i := range values.Data {
		for _, b := range idx.Bands {
			if bands[b].IsNoData(i) {
				values.Data[i] = nan
				break
			}
		}
	}
}
