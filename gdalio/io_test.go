package gdalio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/gapfill/raster"
)

func TestLoadBandNotFound(t *testing.T) {
	g := New(t.TempDir(), "")
	_, err := g.LoadBand(raster.Date{Year: 2020, Month: 1, Day: 1}, raster.B04)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadBandUnreadablePath(t *testing.T) {
	dir := t.TempDir()
	date := raster.Date{Year: 2020, Month: 1, Day: 1}
	// the date folder is a plain file, so stat fails with ENOTDIR
	require.NoError(t, os.WriteFile(filepath.Join(dir, date.String()), nil, 0644))

	_, err := New(dir, "").LoadBand(date, raster.B04)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	var dataErr *raster.DataError
	require.True(t, errors.As(err, &dataErr), "expecting DataError, actual %v", err)
	assert.Equal(t, date, dataErr.Date)
	assert.Equal(t, raster.B04, dataErr.Band)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := New(dir, dir)
	date := raster.Date{Year: 2020, Month: 1, Day: 1}

	buf := raster.NewBuffer(date, raster.B04, 4, 3)
	buf.NoData = 0
	buf.Geometry = raster.Geometry{BBox: [4]float64{500000, 6000000, 500040, 6000030}, Resolution: 10}
	for i := range buf.Data {
		buf.Data[i] = float32(100 * i)
	}
	require.NoError(t, g.SaveResult(date, "B04", buf))
	assert.FileExists(t, filepath.Join(dir, "2020-01-01", "B04.tif"))

	got, err := g.LoadBand(date, raster.B04)
	require.NoError(t, err)
	assert.Equal(t, buf.Data, got.Data)
	assert.Equal(t, 0.0, got.NoData)
	assert.Equal(t, buf.Geometry.BBox, got.Geometry.BBox)
	assert.Equal(t, 10.0, got.Geometry.Resolution)

	mask := raster.NewMask(4, 3)
	mask.Set(1, 2, raster.Cloud)
	mask.Set(2, 0, raster.Shadow)
	mask.Set(0, 3, raster.Invalid)
	require.NoError(t, g.SaveMask(date, mask, buf.Geometry))
	loaded, err := g.LoadMask(date)
	require.NoError(t, err)
	assert.Equal(t, mask.Class, loaded.Class)
}
