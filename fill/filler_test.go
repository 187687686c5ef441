package fill

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/gapfill/blend"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

var testDate = raster.Date{Year: 2021, Month: 5, Day: 20}

func testParams() Params {
	return Params{
		NeighborhoodRadius: 1,
		MaxInvalidFraction: 1,
		Tolerance:          1e-10,
		MaxIterations:      2000,
		Deadline:           10 * time.Second,
		Workers:            2,
	}
}

type fakeSource struct {
	neighbors []store.Neighbor
	buffers   map[raster.Date]*raster.Buffer
	masks     map[raster.Date]*raster.Mask
	calls     int
}

func (s *fakeSource) Neighbors(ctx context.Context, date raster.Date, band raster.Band, maxGap int) ([]store.Neighbor, error) {
	s.calls++
	return s.neighbors, nil
}

func (s *fakeSource) Load(ctx context.Context, date raster.Date, band raster.Band) (*raster.Buffer, *raster.Mask, error) {
	buf, ok := s.buffers[date]
	if !ok {
		return nil, nil, errors.New("not found")
	}
	return buf, s.masks[date], nil
}

func checkerboard(width, height int) *raster.Buffer {
	buf := raster.NewBuffer(testDate, raster.B04, width, height)
	buf.NoData = -9999
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v := float32(10)
			if (row+col)%2 == 1 {
				v = 20
			}
			buf.Set(row, col, v)
		}
	}
	return buf
}

func TestFillAllValidIsIdentity(t *testing.T) {
	buf := checkerboard(7, 5)
	mask := raster.NewMaskFor(buf)
	src := &fakeSource{}
	p := testParams()
	p.MaxTemporalGap = 10

	res, err := (&Filler{Source: src, Params: p}).Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	assert.Equal(t, buf.Data, res.Buffer.Data)
	assert.Equal(t, len(buf.Data), res.Provenance.Count(Real))
	assert.Equal(t, 0, src.calls)
	assert.False(t, res.Degraded)
}

func TestFillSpatialBlock(t *testing.T) {
	buf := checkerboard(11, 11)
	mask := raster.NewMaskFor(buf)
	for row := 3; row < 8; row++ {
		for col := 3; col < 8; col++ {
			mask.Set(row, col, raster.Invalid)
			buf.Set(row, col, float32(buf.NoData))
		}
	}
	orig := buf.Clone()

	out, prov, err := FillingMissingPortionsSmoothBoundaries(context.Background(), buf, mask, nil, testParams())
	require.NoError(t, err)
	assert.Equal(t, orig.Data, buf.Data, "input must not change")

	for row := 0; row < 11; row++ {
		for col := 0; col < 11; col++ {
			i := row*11 + col
			if mask.Class[i] == raster.Valid {
				assert.Equal(t, Real, prov.Tags[i])
				assert.Equal(t, buf.Data[i], out.Data[i])
				continue
			}
			assert.Equal(t, Approximated, prov.Tags[i])
			v := float64(out.Data[i])
			assert.GreaterOrEqual(t, v, 10-1e-6, "row %d col %d", row, col)
			assert.LessOrEqual(t, v, 20+1e-6, "row %d col %d", row, col)
		}
	}
	// the rim holds twelve 20s and eight 10s
	assert.InDelta(t, 16, float64(out.At(5, 5)), 2)
}

func TestFillSpatialLinear(t *testing.T) {
	// a linear ramp is harmonic, so it is reconstructed exactly
	buf := raster.NewBuffer(testDate, raster.B08, 8, 6)
	for row := 0; row < 6; row++ {
		for col := 0; col < 8; col++ {
			buf.Set(row, col, float32(3*col+row))
		}
	}
	mask := raster.NewMaskFor(buf)
	mask.Set(2, 3, raster.Cloud)
	mask.Set(2, 4, raster.Cloud)
	mask.Set(3, 3, raster.Shadow)

	res, err := (&Filler{Params: testParams()}).Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	assert.InDelta(t, 11, float64(res.Buffer.At(2, 3)), 1e-4)
	assert.InDelta(t, 14, float64(res.Buffer.At(2, 4)), 1e-4)
	assert.InDelta(t, 12, float64(res.Buffer.At(3, 3)), 1e-4)
	// the observed 0 at the origin is data, not a gap
	assert.Equal(t, Real, res.Provenance.Tags[0])
	assert.Equal(t, float32(0), res.Buffer.At(0, 0))
}

func TestFillKeepsObservedZero(t *testing.T) {
	buf := raster.NewBuffer(testDate, raster.B04, 5, 5)
	for i := range buf.Data {
		buf.Data[i] = float32(i % 3)
	}
	mask := raster.NewMaskFor(buf)
	mask.Set(2, 2, raster.Cloud)

	res, err := (&Filler{Params: testParams()}).Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	for i, c := range mask.Class {
		if c != raster.Valid {
			continue
		}
		assert.Equal(t, Real, res.Provenance.Tags[i], "pixel %d", i)
		assert.Equal(t, buf.Data[i], res.Buffer.Data[i], "pixel %d", i)
	}
	assert.Equal(t, 1, res.Provenance.Count(Approximated))
}

func TestFillTemporal(t *testing.T) {
	buf := checkerboard(9, 9)
	mask := raster.NewMaskFor(buf)
	for row := 1; row < 8; row++ {
		for col := 1; col < 8; col++ {
			mask.Set(row, col, raster.Cloud)
		}
	}

	good := raster.Date{Year: 2021, Month: 5, Day: 25}
	missing := raster.Date{Year: 2021, Month: 5, Day: 18}
	nbuf := raster.NewBuffer(good, raster.B04, 9, 9)
	for i := range nbuf.Data {
		nbuf.Data[i] = 42
	}
	nmask := raster.NewMaskFor(nbuf)
	nmask.Set(4, 5, raster.Cloud)

	src := &fakeSource{
		neighbors: []store.Neighbor{{Date: missing}, {Date: good}},
		buffers:   map[raster.Date]*raster.Buffer{good: nbuf},
		masks:     map[raster.Date]*raster.Mask{good: nmask},
	}
	p := testParams()
	p.MaxInvalidFraction = 0.5
	p.MaxTemporalGap = 10

	res, err := (&Filler{Source: src, Params: p}).Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	assert.Equal(t, Temporal, res.Provenance.Tags[4*9+4])
	assert.Equal(t, float32(42), res.Buffer.At(4, 4))
	assert.True(t, res.Provenance.Tags[4*9+4].IsReal())

	// cloudy in the neighbour too, reconstructed spatially
	assert.Equal(t, Approximated, res.Provenance.Tags[4*9+5])
	// block corners have a mostly valid neighbourhood
	assert.Equal(t, Approximated, res.Provenance.Tags[1*9+1])

	require.Len(t, res.Temporal, 1)
	assert.Equal(t, good, res.Temporal[0].Date)
	assert.Equal(t, res.Provenance.Count(Temporal), res.Temporal[0].Pixels)

	for i, c := range mask.Class {
		if c != raster.Valid {
			assert.NotEqual(t, Real, res.Provenance.Tags[i], "pixel %d", i)
		}
	}
}

func TestFillTemporalSeams(t *testing.T) {
	buf := checkerboard(12, 12)
	mask := raster.NewMaskFor(buf)
	for row := 2; row < 10; row++ {
		for col := 2; col < 10; col++ {
			mask.Set(row, col, raster.Cloud)
		}
	}
	good := raster.Date{Year: 2021, Month: 6, Day: 1}
	nbuf := raster.NewBuffer(good, raster.B04, 12, 12)
	for i := range nbuf.Data {
		nbuf.Data[i] = 400
	}
	src := &fakeSource{
		neighbors: []store.Neighbor{{Date: good}},
		buffers:   map[raster.Date]*raster.Buffer{good: nbuf},
		masks:     map[raster.Date]*raster.Mask{good: raster.NewMaskFor(nbuf)},
	}
	p := testParams()
	p.MaxInvalidFraction = 0.5
	p.MaxTemporalGap = 30

	f := &Filler{Source: src, Params: p, Seams: &blend.Blender{Params: blend.Params{Tolerance: 1e-9, MaxIterations: 2000}}}
	res, err := f.Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	assert.False(t, res.BlendDegraded)
	require.Equal(t, Temporal, res.Provenance.Tags[6*12+6])
	// the flat neighbour takes the level of the surrounding observations
	v := float64(res.Buffer.At(6, 6))
	assert.GreaterOrEqual(t, v, 10-1e-3)
	assert.LessOrEqual(t, v, 20+1e-3)
	assert.Equal(t, buf.At(0, 0), res.Buffer.At(0, 0))

	// the block corners are interpolated against the blended patch
	for _, p := range [][2]int{{2, 2}, {2, 9}, {9, 2}, {9, 9}} {
		i := p[0]*12 + p[1]
		require.Equal(t, Approximated, res.Provenance.Tags[i])
		c := float64(res.Buffer.Data[i])
		assert.GreaterOrEqual(t, c, 10-1e-3, "corner %v", p)
		assert.LessOrEqual(t, c, 20+1e-3, "corner %v", p)
	}
	for i, tag := range res.Provenance.Tags {
		if tag == Temporal {
			assert.InDelta(t, 15, float64(res.Buffer.Data[i]), 5+1e-3, "pixel %d", i)
		}
	}
}

func TestFillNoValidPixels(t *testing.T) {
	buf := checkerboard(3, 3)
	mask := raster.NewMaskFor(buf)
	for i := range mask.Class {
		mask.Class[i] = raster.Invalid
	}
	_, err := (&Filler{Params: testParams()}).Fill(context.Background(), buf, mask)
	var dataErr *raster.DataError
	assert.True(t, errors.As(err, &dataErr))

	_, err = (&Filler{Params: testParams()}).Fill(context.Background(), buf, raster.NewMask(2, 2))
	assert.True(t, errors.As(err, &dataErr))

	_, err = (&Filler{Params: Params{}}).Fill(context.Background(), buf, raster.NewMaskFor(buf))
	assert.Error(t, err)
}

func TestFillIterationCapDegrades(t *testing.T) {
	buf := checkerboard(30, 30)
	mask := raster.NewMaskFor(buf)
	for row := 2; row < 28; row++ {
		for col := 2; col < 28; col++ {
			mask.Set(row, col, raster.Cloud)
		}
	}
	p := testParams()
	p.MaxIterations = 1
	res, err := (&Filler{Params: p}).Fill(context.Background(), buf, mask)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	for _, v := range res.Buffer.Data {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestSingleImageSummaryBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 50; n++ {
		mask := raster.NewMask(1+rng.Intn(20), 1+rng.Intn(20))
		counts := make(map[raster.PixelClass]int)
		for i := range mask.Class {
			c := raster.PixelClass(rng.Intn(4))
			mask.Class[i] = c
			counts[c]++
		}
		sum := SingleImageSummary(mask)
		total := float64(mask.Len())
		for _, v := range []float64{sum.PercentCloudy, sum.PercentShadows, sum.PercentInvalid} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.Equal(t, float64(counts[raster.Cloud])/total, sum.PercentCloudy)
		assert.Equal(t, float64(counts[raster.Shadow])/total, sum.PercentShadows)
		assert.Equal(t, float64(counts[raster.Invalid])/total, sum.PercentInvalid)
	}
	assert.Equal(t, Summary{}, SingleImageSummary(raster.NewMask(0, 0)))
}

func TestSummarizeIndex(t *testing.T) {
	values := raster.NewBuffer(testDate, 0, 4, 1)
	values.NoData = -2
	copy(values.Data, []float32{0.1, 0.5, 0.9, -2})
	mask := raster.NewMask(4, 1)
	mask.Class[1] = raster.Cloud
	mask.Class[2] = raster.Shadow

	stats, err := SummarizeIndex(values, mask, UseApproximatedData{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NumPixels)
	assert.InDelta(t, 0.5, stats.Mean, 1e-6)

	stats, err = SummarizeIndex(values, mask, UseRealData{ExcludeCloudyPixels: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumPixels)
	assert.InDelta(t, 0.1, stats.Min, 1e-6)
	assert.InDelta(t, 0.9, stats.Max, 1e-6)

	stats, err = SummarizeIndex(values, mask, UseRealData{ExcludeCloudyPixels: true, ExcludeShadowPixels: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumPixels)

	threshold := 0.25
	stats, err = SummarizeIndex(values, mask, UseRealData{SkipThreshold: &threshold})
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
}

func TestProvenanceBuffer(t *testing.T) {
	p := newProvenance(2, 1)
	p.Tags[1] = Approximated
	buf := p.Buffer(testDate)
	assert.Equal(t, []float32{0, 2}, buf.Data)
	assert.Equal(t, 0.5, p.Fraction(Approximated))
	assert.Equal(t, "temporal", Temporal.String())
}

func TestFillCancelled(t *testing.T) {
	buf := checkerboard(11, 11)
	mask := raster.NewMaskFor(buf)
	for row := 3; row < 8; row++ {
		for col := 3; col < 8; col++ {
			mask.Set(row, col, raster.Cloud)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Filler{Params: testParams()}).Fill(ctx, buf, mask)
	assert.True(t, errors.Is(err, context.Canceled))
}
