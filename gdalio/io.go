package gdalio

// #include <stdlib.h>
// #include "gdal.h"
// #include "cpl_conv.h"
// #cgo pkg-config: gdal
import "C"

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/nci/gapfill/raster"
)

// ErrNotFound is returned when the file of a band does not exist.
var ErrNotFound = raster.ErrNotFound

// MaskFileName is the name of the saved validity mask in a date folder.
const MaskFileName = "mask.tif"

var gdalTypes = map[raster.SampleType]C.GDALDataType{
	raster.Byte:    C.GDT_Byte,
	raster.UInt16:  C.GDT_UInt16,
	raster.Int16:   C.GDT_Int16,
	raster.Float32: C.GDT_Float32,
}

// IO reads bands from BaseFolder/YYYY-MM-DD/<band>.tif and writes results
// into OutputFolder with the same layout. OutputFolder defaults to
// BaseFolder.
type IO struct {
	BaseFolder   string
	OutputFolder string
}

func New(baseFolder, outputFolder string) *IO {
	Init()
	if outputFolder == "" {
		outputFolder = baseFolder
	}
	return &IO{BaseFolder: baseFolder, OutputFolder: outputFolder}
}

func (g *IO) BandPath(date raster.Date, band raster.Band) string {
	return filepath.Join(g.BaseFolder, date.String(), band.FileName())
}

func (g *IO) outputPath(date raster.Date, name string) string {
	return filepath.Join(g.OutputFolder, date.String(), name+".tif")
}

// LoadBand reads the first raster band of the file of band at date.
func (g *IO) LoadBand(date raster.Date, band raster.Band) (*raster.Buffer, error) {
	path := g.BandPath(date, band)
	buf, err := readBuffer(path)
	if err != nil {
		var dataErr *raster.DataError
		if errors.As(err, &dataErr) {
			dataErr.Date, dataErr.Band = date, band
		}
		return nil, err
	}
	buf.Date, buf.Band = date, band
	return buf, nil
}

// LoadMask reads a mask written by SaveMask.
func (g *IO) LoadMask(date raster.Date) (*raster.Mask, error) {
	buf, err := readBuffer(filepath.Join(g.OutputFolder, date.String(), MaskFileName))
	if err != nil {
		return nil, err
	}
	mask := raster.NewMask(buf.Width, buf.Height)
	for i, v := range buf.Data {
		c := raster.PixelClass(v)
		if v < 0 || c > raster.Invalid {
			return nil, &raster.DataError{Date: date, Reason: fmt.Sprintf("mask pixel %d has unknown class %v", i, v)}
		}
		mask.Class[i] = c
	}
	return mask, nil
}

// SaveResult writes buf as a GeoTIFF of the band's sample type named
// name.tif in the date folder of the output.
func (g *IO) SaveResult(date raster.Date, name string, buf *raster.Buffer) error {
	return writeBuffer(g.outputPath(date, name), buf, buf.Band.SampleType())
}

// SaveAs writes buf converted to sampleType, for provenance grids, index
// images and anything not of a band's sample type.
func (g *IO) SaveAs(date raster.Date, name string, buf *raster.Buffer, sampleType raster.SampleType) error {
	return writeBuffer(g.outputPath(date, name), buf, sampleType)
}

// SaveMask writes the classes of mask as a Byte GeoTIFF over geom.
func (g *IO) SaveMask(date raster.Date, mask *raster.Mask, geom raster.Geometry) error {
	buf := raster.NewBuffer(date, raster.SCL, mask.Width, mask.Height)
	buf.Geometry = geom
	buf.NoData = math.NaN()
	for i, c := range mask.Class {
		buf.Data[i] = float32(c)
	}
	return writeBuffer(filepath.Join(g.OutputFolder, date.String(), MaskFileName), buf, raster.Byte)
}

func readBuffer(path string) (*raster.Buffer, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, &raster.DataError{Reason: fmt.Sprintf("stat %s: %v", path, err)}
	}

	pathC := C.CString(path)
	defer C.free(unsafe.Pointer(pathC))
	hDS := C.GDALOpen(pathC, C.GA_ReadOnly)
	if hDS == nil {
		return nil, &raster.DataError{Reason: fmt.Sprintf("GDALOpen(%s) failed", path)}
	}
	defer C.GDALClose(hDS)

	hBand := C.GDALGetRasterBand(hDS, 1)
	if hBand == nil {
		return nil, &raster.DataError{Reason: fmt.Sprintf("%s has no raster band", path)}
	}
	width := int(C.GDALGetRasterXSize(hDS))
	height := int(C.GDALGetRasterYSize(hDS))
	if width <= 0 || height <= 0 {
		return nil, &raster.DataError{Reason: fmt.Sprintf("%s is empty", path)}
	}

	buf := &raster.Buffer{Width: width, Height: height, Data: make([]float32, width*height)}
	var hasNoData C.int
	nodata := float64(C.GDALGetRasterNoDataValue(hBand, &hasNoData))
	if hasNoData != 0 {
		buf.NoData = nodata
	} else {
		buf.NoData = math.NaN()
	}

	cErr := C.GDALRasterIO(hBand, C.GF_Read, 0, 0, C.int(width), C.int(height),
		unsafe.Pointer(&buf.Data[0]), C.int(width), C.int(height), C.GDT_Float32, 0, 0)
	if cErr != C.CE_None {
		return nil, &raster.DataError{Reason: fmt.Sprintf("GDALRasterIO(%s) failed", path)}
	}

	var geot [6]C.double
	if C.GDALGetGeoTransform(hDS, &geot[0]) == C.CE_None {
		x0, dx, y0, dy := float64(geot[0]), float64(geot[1]), float64(geot[3]), float64(geot[5])
		buf.Geometry = raster.Geometry{
			BBox:       [4]float64{x0, y0 + dy*float64(height), x0 + dx*float64(width), y0},
			Resolution: dx,
		}
	}
	buf.Geometry.Projection = C.GoString(C.GDALGetProjectionRef(hDS))
	return buf, nil
}

func writeBuffer(path string, buf *raster.Buffer, sampleType raster.SampleType) error {
	dType, ok := gdalTypes[sampleType]
	if !ok {
		return fmt.Errorf("unsupported sample type %v", sampleType)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	driverC := C.CString("GTiff")
	defer C.free(unsafe.Pointer(driverC))
	hDriver := C.GDALGetDriverByName(driverC)
	if hDriver == nil {
		return fmt.Errorf("GDAL GTiff driver not available")
	}

	opts := []*C.char{C.CString("COMPRESS=DEFLATE"), C.CString("TILED=YES"), nil}
	defer func() {
		for _, o := range opts[:len(opts)-1] {
			C.free(unsafe.Pointer(o))
		}
	}()

	pathC := C.CString(path)
	defer C.free(unsafe.Pointer(pathC))
	hDS := C.GDALCreate(hDriver, pathC, C.int(buf.Width), C.int(buf.Height), 1, dType, &opts[0])
	if hDS == nil {
		return fmt.Errorf("GDALCreate(%s) failed", path)
	}
	defer C.GDALClose(hDS)

	if buf.Geometry.Resolution > 0 {
		geot := [6]C.double{
			C.double(buf.Geometry.BBox[0]), C.double(buf.Geometry.Resolution), 0,
			C.double(buf.Geometry.BBox[3]), 0, C.double(-buf.Geometry.Resolution),
		}
		C.GDALSetGeoTransform(hDS, &geot[0])
	}
	if buf.Geometry.Projection != "" {
		projC := C.CString(buf.Geometry.Projection)
		defer C.free(unsafe.Pointer(projC))
		C.GDALSetProjection(hDS, projC)
	}

	hBand := C.GDALGetRasterBand(hDS, 1)
	if !math.IsNaN(buf.NoData) {
		C.GDALSetRasterNoDataValue(hBand, C.double(buf.NoData))
	}

	cErr := C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(buf.Width), C.int(buf.Height),
		unsafe.Pointer(&buf.Data[0]), C.int(buf.Width), C.int(buf.Height), C.GDT_Float32, 0, 0)
	if cErr != C.CE_None {
		return fmt.Errorf("GDALRasterIO(%s) write failed", path)
	}
	return nil
}
