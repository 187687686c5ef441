package detect

import (
	"math"

	"github.com/nci/gapfill/raster"
)

// Fewer cloud pixels than this are not projected when searching shadows.
const MinimumCloudSizeForRayCasting = 3

const maxZenith = 89.0

// DiagonalDistance is the horizontal distance between a cloud at height (in
// metres) and its shadow for a sun at zenith degrees. It does not decrease as
// the zenith grows.
func DiagonalDistance(height, zenith float64) float64 {
	if height <= 0 || math.IsNaN(zenith) {
		return 0
	}
	zenith = math.Max(0, math.Min(zenith, maxZenith))
	return height * math.Tan(zenith*math.Pi/180)
}

// Angles are scene mean sun and view angles in degrees.
type Angles struct {
	SunZenith, SunAzimuth   float64
	ViewZenith, ViewAzimuth float64
}

// direction is the unit step (col, row) of a ground azimuth, north up.
func direction(azimuth float64) (float64, float64) {
	rad := azimuth * math.Pi / 180
	return math.Sin(rad), -math.Cos(rad)
}

// ShadowOffset is the displacement in pixels from a cloud as seen by the
// sensor to its shadow on the ground. The shadow falls away from the sun;
// the cloud itself appears displaced away from the sensor.
func (a Angles) ShadowOffset(height, pixelSize float64) (dCol, dRow float64) {
	sc, sr := direction(a.SunAzimuth + 180)
	vc, vr := direction(a.ViewAzimuth + 180)
	s := DiagonalDistance(height, a.SunZenith)
	v := DiagonalDistance(height, a.ViewZenith)
	return (s*sc - v*vc) / pixelSize, (s*sr - v*vr) / pixelSize
}

func meanAngle(buf *raster.Buffer) (float64, bool) {
	sum, n := 0.0, 0
	for i, v := range buf.Data {
		if buf.IsNoData(i) || math.IsInf(float64(v), 0) {
			continue
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
