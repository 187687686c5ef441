package fill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

func bandRow(band raster.Band, values ...float32) *raster.Buffer {
	buf := raster.NewBuffer(testDate, band, len(values), 1)
	copy(buf.Data, values)
	return buf
}

func TestSummarizeDateRecordsSummaries(t *testing.T) {
	ndvi, err := raster.LookupIndex(raster.NDVI)
	require.NoError(t, err)

	nodata := float32(raster.NewBuffer(testDate, raster.B04, 1, 1).NoData)
	observed := map[raster.Band]*raster.Buffer{
		raster.B08: bandRow(raster.B08, 3, 3, 3, 3),
		raster.B04: bandRow(raster.B04, 1, 1, 3, nodata),
	}
	filled := map[raster.Band]*raster.Buffer{
		raster.B08: observed[raster.B08],
		raster.B04: bandRow(raster.B04, 1, 2, 3, 1),
	}
	mask := raster.NewMask(4, 1)
	mask.Class[1] = raster.Cloud
	mask.Class[3] = raster.Cloud

	sel := UseRealData{ExcludeCloudyPixels: true}
	sums, err := SummarizeDate(testDate, raster.NDVI, ndvi, observed, filled, mask, sel)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	obs, approx := sums[0], sums[1]
	assert.False(t, obs.UseApproximatedData)
	assert.True(t, obs.ExcludeCloudyPixels)
	assert.Equal(t, 2, obs.NumPixels)
	assert.InDelta(t, 0, obs.Min, 1e-6)
	assert.InDelta(t, 0.5, obs.Max, 1e-6)
	assert.InDelta(t, 0.25, obs.Mean, 1e-6)

	assert.True(t, approx.UseApproximatedData)
	assert.False(t, approx.ExcludeCloudyPixels, "filler flags only apply to observed data")
	assert.Equal(t, 4, approx.NumPixels)
	assert.InDelta(t, 0.3, approx.Mean, 1e-6)

	st, err := store.Open(context.Background(), store.Options{BaseFolder: t.TempDir(), NeighborWeight: 0.5})
	require.NoError(t, err)
	defer st.Close()
	for _, sum := range sums {
		require.NoError(t, st.RecordIndexSummary(context.Background(), sum))
	}
	rows, err := st.IndexSummaries(context.Background(), raster.NDVI)
	require.NoError(t, err)
	assert.ElementsMatch(t, sums, rows)
}

func TestSummarizeDateSkipsCloudyObserved(t *testing.T) {
	ndvi, err := raster.LookupIndex(raster.NDVI)
	require.NoError(t, err)
	bands := map[raster.Band]*raster.Buffer{
		raster.B08: bandRow(raster.B08, 3, 3),
		raster.B04: bandRow(raster.B04, 1, 1),
	}
	mask := raster.NewMask(2, 1)
	mask.Class[0] = raster.Shadow

	threshold := 0.2
	sums, err := SummarizeDate(testDate, raster.NDVI, ndvi, bands, bands, mask, UseRealData{SkipThreshold: &threshold})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, sums[0].UseApproximatedData)

	delete(bands, raster.B04)
	_, err = SummarizeDate(testDate, raster.NDVI, ndvi, bands, bands, mask, UseRealData{})
	assert.Error(t, err)
}

func TestPercentInvalidNoiseRemoved(t *testing.T) {
	mask := raster.NewMask(5, 5)
	mask.Set(0, 0, raster.Cloud)
	for row := 3; row < 5; row++ {
		for col := 3; col < 5; col++ {
			mask.Set(row, col, raster.Cloud)
		}
	}
	mask.Set(3, 2, raster.Shadow)
	mask.Set(0, 4, raster.Invalid)

	assert.InDelta(t, 0.2, PercentInvalidNoiseRemoved(mask, 2), 1e-12)
	assert.InDelta(t, 0.24, PercentInvalidNoiseRemoved(mask, 1), 1e-12)
	assert.InDelta(t, 0, PercentInvalidNoiseRemoved(mask, 6), 1e-12)
	assert.Equal(t, raster.Cloud, mask.At(0, 0), "mask is left untouched")
	assert.Equal(t, 0.0, PercentInvalidNoiseRemoved(raster.NewMask(0, 0), 2))
}
