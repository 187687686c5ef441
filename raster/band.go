package raster

import "fmt"

// SampleType follows the GDAL data type names.
type SampleType int

const (
	Byte SampleType = iota + 1
	UInt16
	Int16
	Float32
)

var sampleTypeNames = map[SampleType]string{Byte: "Byte", UInt16: "UInt16", Int16: "Int16", Float32: "Float32"}

func (s SampleType) String() string {
	if name, ok := sampleTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SampleType(%d)", int(s))
}

func (s SampleType) BitDepth() int {
	switch s {
	case Byte:
		return 8
	case UInt16, Int16:
		return 16
	case Float32:
		return 32
	}
	return 0
}

type Band int

const (
	B03 Band = iota + 1
	B04
	B08
	B11
	CLP
	CLD
	SCL
	RGB
	ViewZenith
	ViewAzimuth
	SunZenith
	SunAzimuth
	VV
	VH
	DEM
)

type bandInfo struct {
	name   string
	sample SampleType
}

// The file name of a band is its name with a .tif suffix.
var bands = map[Band]bandInfo{
	B03:         {"B03", UInt16},
	B04:         {"B04", UInt16},
	B08:         {"B08", UInt16},
	B11:         {"B11", UInt16},
	CLP:         {"CLP", Byte},
	CLD:         {"CLD", Byte},
	SCL:         {"SCL", Byte},
	RGB:         {"RGB", Byte},
	ViewZenith:  {"viewZenithMean", Float32},
	ViewAzimuth: {"viewAzimuthMean", Float32},
	SunZenith:   {"sunZenithAngles", Float32},
	SunAzimuth:  {"sunAzimuthAngles", Float32},
	VV:          {"VV", Float32},
	VH:          {"VH", Float32},
	DEM:         {"DEM", Float32},
}

// Reflectance lists the spectral bands whose nodata or saturation invalidates a pixel.
var Reflectance = []Band{B03, B04, B08, B11}

var Angles = []Band{SunZenith, SunAzimuth, ViewZenith, ViewAzimuth}

func (b Band) String() string {
	if info, ok := bands[b]; ok {
		return info.name
	}
	return fmt.Sprintf("Band(%d)", int(b))
}

func (b Band) SampleType() SampleType {
	return bands[b].sample
}

func (b Band) BitDepth() int {
	return b.SampleType().BitDepth()
}

func (b Band) FileName() string {
	return b.String() + ".tif"
}

func ParseBand(name string) (Band, error) {
	for b, info := range bands {
		if info.name == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown band %q", name)
}
