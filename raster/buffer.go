package raster

import (
	"fmt"
	"math"
)

// Geometry is the footprint of a buffer: BBox is min x, min y, max x, max y.
type Geometry struct {
	BBox       [4]float64
	Resolution float64
	// Projection is the WKT of the coordinate system, empty when unknown.
	Projection string
}

func (g Geometry) Dims() (width, height int, err error) {
	if g.Resolution <= 0 {
		return 0, 0, fmt.Errorf("resolution must be positive, got %v", g.Resolution)
	}
	width = int(math.Round((g.BBox[2] - g.BBox[0]) / g.Resolution))
	height = int(math.Round((g.BBox[3] - g.BBox[1]) / g.Resolution))
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("empty bounding box %v", g.BBox)
	}
	return width, height, nil
}

// Buffer holds one band of one date. Samples are stored row-major as float32
// whatever the band's sample type, which is exact for every supported type.
type Buffer struct {
	Date          Date
	Band          Band
	Geometry      Geometry
	Width, Height int
	NoData        float64
	Data          []float32
}

// NewBuffer allocates a zeroed buffer whose nodata is NaN, so every finite
// sample including 0 is data until NoData is set.
func NewBuffer(date Date, band Band, width, height int) *Buffer {
	return &Buffer{
		Date:   date,
		Band:   band,
		Width:  width,
		Height: height,
		NoData: math.NaN(),
		Data:   make([]float32, width*height),
	}
}

func NewBufferFromGeometry(date Date, band Band, geom Geometry) (*Buffer, error) {
	w, h, err := geom.Dims()
	if err != nil {
		return nil, err
	}
	buf := NewBuffer(date, band, w, h)
	buf.Geometry = geom
	return buf, nil
}

func (b *Buffer) GetNoData() float64 {
	return b.NoData
}

func (b *Buffer) At(row, col int) float32 {
	return b.Data[row*b.Width+col]
}

func (b *Buffer) Set(row, col int, v float32) {
	b.Data[row*b.Width+col] = v
}

// IsNoData reports whether sample i is the nodata sentinel or not a number.
func (b *Buffer) IsNoData(i int) bool {
	v := b.Data[i]
	return math.IsNaN(float64(v)) || float64(v) == b.NoData
}

func (b *Buffer) Clone() *Buffer {
	out := *b
	out.Data = make([]float32, len(b.Data))
	copy(out.Data, b.Data)
	return &out
}

func (b *Buffer) SameDims(o *Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Normalised returns the samples divided by scale, nodata included.
func (b *Buffer) Normalised(scale float64) []float64 {
	out := make([]float64, len(b.Data))
	for i, v := range b.Data {
		out[i] = float64(v) / scale
	}
	return out
}
