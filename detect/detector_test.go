package detect

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/raster"
)

var testDate = raster.Date{Year: 2021, Month: 7, Day: 14}

func testParams() CloudParams {
	return CloudParams{
		CloudProbabilityThreshold:  0.5,
		CloudConfidenceThreshold:   0.2,
		MaskThreshold:              0.1,
		ShadowNIRDifference:        0.02,
		ShadowReflectanceCeiling:   0.1,
		ShadowProbabilityThreshold: 0.15,
		CloudHeightMin:             500,
		CloudHeightMax:             1500,
		CloudHeightStep:            500,
		PixelSize:                  100,
		Connectivity:               components.Eight,
		SaturationValue:            65535,
		ReflectanceScale:           10000,
	}
}

func constBuffer(band raster.Band, width, height int, v float32) *raster.Buffer {
	buf := raster.NewBuffer(testDate, band, width, height)
	buf.NoData = -1
	for i := range buf.Data {
		buf.Data[i] = v
	}
	return buf
}

// scene builds a clear vegetated scene, sun at 45 degrees in the south and a
// nadir view.
func scene(width, height int) *Bands {
	return NewBands(testDate,
		constBuffer(raster.SCL, width, height, SCLVegetation),
		constBuffer(raster.CLP, width, height, 0),
		constBuffer(raster.CLD, width, height, 100),
		constBuffer(raster.B03, width, height, 800),
		constBuffer(raster.B04, width, height, 600),
		constBuffer(raster.B08, width, height, 3000),
		constBuffer(raster.B11, width, height, 1500),
		constBuffer(raster.SunZenith, width, height, 45),
		constBuffer(raster.SunAzimuth, width, height, 180),
		constBuffer(raster.ViewZenith, width, height, 0),
		constBuffer(raster.ViewAzimuth, width, height, 100),
	)
}

func TestDetectCloudFraction(t *testing.T) {
	bands := scene(10, 10)
	for i := 0; i < 30; i++ {
		bands.Buffers[raster.CLP].Data[i] = 255
	}
	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true, Threshold: 0}

	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.True(t, res.ShadowsSkipped)
	assert.InDelta(t, 0.30, float64(res.Mask.Count(raster.Cloud))/100, 1e-9)
	assert.Equal(t, 0, res.Mask.Count(raster.Shadow))
	assert.NoError(t, res.Mask.CheckDims(bands.Buffers[raster.SCL]))
}

func TestDetectConfidenceAndSCL(t *testing.T) {
	bands := scene(4, 1)
	bands.Buffers[raster.CLP].Data[0] = 255
	bands.Buffers[raster.CLD].Data[0] = 10 // below confidence
	bands.Buffers[raster.CLP].Data[1] = 255
	bands.Buffers[raster.SCL].Data[2] = SCLCloudHigh
	bands.Buffers[raster.SCL].Data[3] = SCLCloudLow

	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true}
	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, []raster.PixelClass{raster.Valid, raster.Cloud, raster.Cloud, raster.Valid}, res.Mask.Class)

	p.IncludeLowProbability = true
	p.CloudConfidenceThreshold = -1
	res, err = Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, []raster.PixelClass{raster.Cloud, raster.Cloud, raster.Cloud, raster.Cloud}, res.Mask.Class)
}

func TestDetectInvalidPrecedence(t *testing.T) {
	bands := scene(5, 1)
	bands.Buffers[raster.CLP].Data[0] = 255
	bands.Buffers[raster.B08].Data[0] = -1 // nodata under a cloud
	bands.Buffers[raster.B04].Data[1] = 65535
	bands.Buffers[raster.SCL].Data[2] = SCLNoData
	bands.Buffers[raster.B11].Data[3] = float32(math.NaN())

	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true}
	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, []raster.PixelClass{raster.Invalid, raster.Invalid, raster.Invalid, raster.Invalid, raster.Valid}, res.Mask.Class)
}

func TestDetectMissingBand(t *testing.T) {
	bands := scene(3, 3)
	delete(bands.Buffers, raster.CLP)
	_, err := Detect(context.Background(), bands, testParams())
	var missing *MissingBandError
	require.True(t, errors.As(err, &missing), "expecting MissingBandError, actual %v", err)
	assert.Equal(t, raster.CLP, missing.Band)
	assert.Equal(t, testDate, missing.Date)

	bands = scene(3, 3)
	delete(bands.Buffers, raster.SunZenith)
	_, err = Detect(context.Background(), bands, testParams())
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, raster.SunZenith, missing.Band)

	// angles are not needed when shadows are always skipped
	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true}
	_, err = Detect(context.Background(), bands, p)
	assert.NoError(t, err)
}

func TestDetectDimensionMismatch(t *testing.T) {
	bands := scene(3, 3)
	bands.Buffers[raster.B03] = constBuffer(raster.B03, 2, 3, 800)
	_, err := Detect(context.Background(), bands, testParams())
	var dataErr *raster.DataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestDetectShadow(t *testing.T) {
	const size = 40
	bands := scene(size, size)
	clp := bands.Buffers[raster.CLP]
	nir := bands.Buffers[raster.B08]
	for row := 20; row < 24; row++ {
		for col := 10; col < 14; col++ {
			clp.Set(row, col, 255)
			nir.Set(row, col, 8000)
			// 1000 m clouds cast shadows ten pixels north
			nir.Set(row-10, col, 500)
		}
	}

	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true, Threshold: 0.5}
	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.False(t, res.ShadowsSkipped)
	assert.Equal(t, 16, res.Mask.Count(raster.Cloud))
	assert.Equal(t, 16, res.Mask.Count(raster.Shadow))
	for row := 10; row < 14; row++ {
		for col := 10; col < 14; col++ {
			assert.Equal(t, raster.Shadow, res.Mask.At(row, col), "row %d col %d", row, col)
		}
	}
	assert.Equal(t, 2, res.Components.Len())
}

// elongatedShadow casts a 4x4 cloud whose shadow runs two rows further north
// than the 1000 m projection covers.
func elongatedShadow() (*Bands, CloudParams) {
	const size = 40
	bands := scene(size, size)
	clp := bands.Buffers[raster.CLP]
	nir := bands.Buffers[raster.B08]
	for row := 20; row < 24; row++ {
		for col := 10; col < 14; col++ {
			clp.Set(row, col, 255)
			nir.Set(row, col, 8000)
		}
	}
	for row := 8; row < 14; row++ {
		for col := 10; col < 14; col++ {
			nir.Set(row, col, 500)
		}
	}
	p := testParams()
	p.CloudHeightStep = 100
	return bands, p
}

func TestDetectShadowRefinement(t *testing.T) {
	bands, p := elongatedShadow()
	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Mask.Count(raster.Shadow), "object mask only")
	assert.Nil(t, res.Alpha)
	assert.Equal(t, raster.Valid, res.Mask.At(9, 11))

	p.ShadowRefinement = ShadowRefinement{Threshold: 0.5, Bins: 4}
	res, err = Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Mask.Count(raster.Cloud))
	assert.Equal(t, 24, res.Mask.Count(raster.Shadow))
	for row := 8; row < 14; row++ {
		for col := 10; col < 14; col++ {
			assert.Equal(t, raster.Shadow, res.Mask.At(row, col), "row %d col %d", row, col)
		}
	}
	assert.Equal(t, raster.Valid, res.Mask.At(14, 11), "bright pixels under the cast stay clear")

	at := func(row, col int) int { return row*40 + col }
	assert.Equal(t, 1.0, res.Alpha[at(9, 11)])
	assert.Equal(t, 0.0, res.Alpha[at(30, 30)])
	assert.InDelta(t, 1, res.Beta[at(11, 11)], 1e-9)
	assert.InDelta(t, 0.9, res.Beta[at(9, 11)], 1e-9)
	assert.Equal(t, 0.0, res.Beta[at(30, 30)])

	// a threshold above the share of the mask in its cell keeps nothing
	p.ShadowRefinement.Threshold = 0.9
	res, err = Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mask.Count(raster.Shadow))
}

func TestProbabilitySurface(t *testing.T) {
	shadow := []bool{true, true, false, false, false}
	cloud := []bool{false, false, false, false, true}
	invalid := make([]bool, 5)
	alpha := []float64{1, 1, 1, 0, 1}
	beta := []float64{0.9, 0.8, 0.95, 0, 1}
	s := NewProbabilitySurface(shadow, cloud, invalid, alpha, beta, 2)
	assert.InDelta(t, 2.0/3, s.At(1, 1), 1e-12, "cloud pixels are not counted")
	assert.Equal(t, 0.0, s.At(0, 0))
	assert.Equal(t, 0.0, s.At(0, 1), "empty cell")

	got := improvedShadows(shadow, cloud, invalid, alpha, beta, ShadowRefinement{Threshold: 0.5, Bins: 2})
	assert.Equal(t, []bool{true, true, true, false, false}, got)
}

func TestDetectSmallRegionSuppression(t *testing.T) {
	bands := scene(6, 6)
	bands.Buffers[raster.CLP].Set(0, 0, 255)
	for row := 3; row < 6; row++ {
		for col := 3; col < 6; col++ {
			bands.Buffers[raster.CLP].Set(row, col, 255)
		}
	}
	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true}
	p.MinComponentArea = 4
	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, raster.Valid, res.Mask.At(0, 0))
	assert.Equal(t, 9, res.Mask.Count(raster.Cloud))
	assert.Equal(t, 1, res.Suppressed)
}

func TestDetectIndex(t *testing.T) {
	bands := scene(2, 1)
	bands.Buffers[raster.B03].Data[0] = 5000 // bright in green, mNDWI high
	p := testParams()
	p.SkipShadowDetection = SkipShadowDetection{Decision: true}
	p.CloudIndex = raster.MNDWI
	p.CloudIndexThreshold = 0.3
	delete(bands.Buffers, raster.CLP)

	res, err := Detect(context.Background(), bands, p)
	require.NoError(t, err)
	assert.Equal(t, []raster.PixelClass{raster.Cloud, raster.Valid}, res.Mask.Class)
}

func TestParamsValidate(t *testing.T) {
	p := testParams()
	assert.NoError(t, p.Validate())

	bad := p
	bad.CloudProbabilityThreshold = 2
	assert.Error(t, bad.Validate())
	bad = p
	bad.Connectivity = 3
	assert.Error(t, bad.Validate())
	bad = p
	bad.CloudHeightStep = 0
	assert.Error(t, bad.Validate())
	bad.SkipShadowDetection = SkipShadowDetection{Decision: true}
	assert.NoError(t, bad.Validate())
	bad.ShadowRefinement = ShadowRefinement{Threshold: 0.5}
	assert.Error(t, bad.Validate(), "refinement needs bins")
}

func TestDiagonalDistanceMonotonic(t *testing.T) {
	for _, h := range []float64{0, 100, 1000, 8000} {
		prev := -1.0
		for z := 0.0; z <= 90; z += 0.5 {
			d := DiagonalDistance(h, z)
			assert.GreaterOrEqual(t, d, prev, "height %v zenith %v", h, z)
			assert.False(t, math.IsInf(d, 0))
			prev = d
		}
	}
	assert.InDelta(t, 1000, DiagonalDistance(1000, 45), 1e-9)
	assert.Equal(t, 0.0, DiagonalDistance(1000, 0))
}

func TestPitFill(t *testing.T) {
	data := []float32{
		5, 5, 5, 5,
		5, 1, 2, 5,
		5, 5, 5, 5,
	}
	filled := PitFill(data, 4, 3, 0)
	assert.Equal(t, []float32{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, filled)

	// a border frame higher than the data floods everything to its level
	filled = PitFill(data, 4, 3, 7)
	for _, v := range filled {
		assert.Equal(t, float32(7), v)
	}
}

func TestPercentileHelpers(t *testing.T) {
	assert.Equal(t, 0.4, clearSkyPercentile(0))
	assert.Equal(t, 0.7, clearSkyPercentile(0.5))
	assert.InDelta(t, 0.55, clearSkyPercentile(0.135), 1e-9)
	assert.InDelta(t, 2.5, percentile([]float64{4, 1, 2, 3}, 0.5), 1e-12)
	assert.True(t, SCLMask(SCLCloudShadows).Has(3))
	assert.False(t, SCLMask(SCLCloudShadows).Has(12))
}
