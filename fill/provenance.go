package fill

import "github.com/nci/gapfill/raster"

// Tag records where an output pixel value comes from.
type Tag uint8

const (
	// Real is the observation of the date itself.
	Real Tag = iota
	// Temporal is a real observation copied from a neighbouring date.
	Temporal
	// Approximated is a reconstructed value.
	Approximated
)

func (t Tag) IsReal() bool {
	return t == Real || t == Temporal
}

func (t Tag) String() string {
	switch t {
	case Real:
		return "real"
	case Temporal:
		return "temporal"
	case Approximated:
		return "approximated"
	}
	return "unknown"
}

// Provenance is a tag grid parallel to a filled buffer.
type Provenance struct {
	Width, Height int
	Tags          []Tag
}

func newProvenance(width, height int) *Provenance {
	return &Provenance{Width: width, Height: height, Tags: make([]Tag, width*height)}
}

func (p *Provenance) Count(t Tag) int {
	n := 0
	for _, v := range p.Tags {
		if v == t {
			n++
		}
	}
	return n
}

func (p *Provenance) Fraction(t Tag) float64 {
	if len(p.Tags) == 0 {
		return 0
	}
	return float64(p.Count(t)) / float64(len(p.Tags))
}

// Buffer encodes the tags as a Byte band for saving.
func (p *Provenance) Buffer(date raster.Date) *raster.Buffer {
	buf := raster.NewBuffer(date, 0, p.Width, p.Height)
	buf.NoData = 255
	for i, t := range p.Tags {
		buf.Data[i] = float32(t)
	}
	return buf
}
