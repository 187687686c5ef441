package raster

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d, err := ParseDate("2021-03-01")
	require.NoError(t, err)
	assert.Equal(t, Date{2021, 3, 1}, d)
	assert.Equal(t, "2021-03-01", d.String())

	_, err = NewDate(2021, 2, 29)
	assert.Error(t, err)
	_, err = ParseDate("2021-13-01")
	assert.Error(t, err)

	prev := d.AddDays(-1)
	assert.Equal(t, Date{2021, 2, 28}, prev)
	assert.True(t, prev.Before(d))
	assert.Equal(t, 1, d.Compare(prev))
	assert.Equal(t, 0, d.Compare(d))
	assert.Equal(t, -1, DaysBetween(d, prev))
	assert.Equal(t, 365, DaysBetween(Date{2021, 1, 1}, Date{2022, 1, 1}))
}

func TestBand(t *testing.T) {
	assert.Equal(t, "B08.tif", B08.FileName())
	assert.Equal(t, "sunZenithAngles.tif", SunZenith.FileName())
	assert.Equal(t, UInt16, B04.SampleType())
	assert.Equal(t, 8, SCL.BitDepth())
	assert.Equal(t, 32, ViewAzimuth.BitDepth())

	b, err := ParseBand("CLP")
	require.NoError(t, err)
	assert.Equal(t, CLP, b)
	_, err = ParseBand("B99")
	assert.Error(t, err)
}

func TestGeometryDims(t *testing.T) {
	w, h, err := Geometry{BBox: [4]float64{0, 0, 100, 50}, Resolution: 10}.Dims()
	require.NoError(t, err)
	assert.Equal(t, 10, w)
	assert.Equal(t, 5, h)

	_, _, err = Geometry{BBox: [4]float64{0, 0, 100, 50}}.Dims()
	assert.Error(t, err)
}

func TestMaskDims(t *testing.T) {
	buf := NewBuffer(Date{2020, 1, 1}, B04, 4, 3)
	assert.NoError(t, NewMaskFor(buf).CheckDims(buf))

	err := NewMask(3, 4).CheckDims(buf)
	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, B04, dataErr.Band)
}

func testIndexValue(t *testing.T, name string, b03, b04, b08, b11 float32, expected float64) {
	idx, err := LookupIndex(name)
	require.NoError(t, err)

	bands := make(map[Band]*Buffer)
	for band, v := range map[Band]float32{B03: b03, B04: b04, B08: b08, B11: b11} {
		buf := NewBuffer(Date{2020, 1, 1}, band, 1, 1)
		buf.Data[0] = v
		bands[band] = buf
	}
	out, err := idx.Compute(bands)
	require.NoError(t, err)
	assert.InDelta(t, expected, float64(out.Data[0]), 1e-6, "index %s", name)
}

func TestIndices(t *testing.T) {
	testIndexValue(t, NDVI, 0, 0.1, 0.5, 0, (0.5-0.1)/(0.5+0.1))
	testIndexValue(t, NDMI, 0, 0, 0.5, 0.2, (0.5-0.2)/(0.5+0.2))
	testIndexValue(t, MNDWI, 0.3, 0, 0, 0.1, (0.3-0.1)/(0.3+0.1))
	testIndexValue(t, SWI, 0.3, 0, 0.5, 0.2, 0.3*(0.5-0.2)/((0.3+0.5)*(0.5+0.2)))

	// 0/0 is not finite and becomes 0
	testIndexValue(t, NDVI, 0, 0, 0, 0, 0)
	assert.Equal(t, float32(0), NormalizedDifference(1, -1))
	assert.False(t, math.IsNaN(float64(NormalizedDifference(0, 0))))
}

func TestCustomIndex(t *testing.T) {
	idx, err := NewIndex("ratio", "B08 / B04")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Band{B08, B04}, idx.Bands)

	_, err = NewIndex("bad", "B08 / B77")
	assert.Error(t, err)
	_, err = NewIndex("const", "1 + 2")
	assert.Error(t, err)

	_, err = idx.Compute(map[Band]*Buffer{B08: NewBuffer(Date{}, B08, 1, 1)})
	assert.Error(t, err)
}

func TestNewBufferNoDataIsNaN(t *testing.T) {
	buf := NewBuffer(Date{2020, 1, 1}, B04, 2, 1)
	assert.True(t, math.IsNaN(buf.NoData))
	assert.False(t, buf.IsNoData(0), "a zero sample is data")
	buf.Data[1] = float32(math.NaN())
	assert.True(t, buf.IsNoData(1))
}

func TestIndexComputeOverImage(t *testing.T) {
	idx, err := LookupIndex(NDVI)
	require.NoError(t, err)

	b04 := NewBuffer(Date{2020, 1, 1}, B04, 3, 2)
	b08 := NewBuffer(Date{2020, 1, 1}, B08, 3, 2)
	for i := range b04.Data {
		b04.Data[i] = float32(100 * (i + 1))
		b08.Data[i] = 500
	}
	out, err := idx.Compute(map[Band]*Buffer{B04: b04, B08: b08})
	require.NoError(t, err)
	require.Len(t, out.Data, 6)
	for i := range out.Data {
		want := (500 - float64(b04.Data[i])) / (500 + float64(b04.Data[i]))
		assert.InDelta(t, want, float64(out.Data[i]), 1e-6, "pixel %d", i)
	}
	assert.InDelta(t, 2.0/3.0, float64(out.Data[0]), 1e-6)
	assert.Equal(t, float32(0), out.Data[4], "equal bands give 0")
}
