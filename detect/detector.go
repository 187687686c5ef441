// Package detect classifies every pixel of a date as valid, cloud, shadow or
// invalid from the Sentinel-2 cloud products, the scene classification layer
// and the sun and view geometry.
package detect

import (
	"context"
	"fmt"
	"math"

	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/morph"
	"github.com/nci/gapfill/raster"
)

// Bands is the decoded band set of one date.
type Bands struct {
	Date    raster.Date
	Buffers map[raster.Band]*raster.Buffer
}

func NewBands(date raster.Date, bufs ...*raster.Buffer) *Bands {
	b := &Bands{Date: date, Buffers: make(map[raster.Band]*raster.Buffer, len(bufs))}
	for _, buf := range bufs {
		b.Buffers[buf.Band] = buf
	}
	return b
}

type Result struct {
	Mask       *raster.Mask
	Components *components.Components
	// Intermediate products, one entry per pixel.
	Clouds           []bool
	PotentialShadows []bool
	Shadows          []bool
	// Alpha and Beta are only set when the shadow mask was refined.
	Alpha          []float64
	Beta           []float64
	ShadowsSkipped bool
	Suppressed     int
}

// Detector holds the indices CloudParams.CloudIndex may refer to besides the
// built in ones.
type Detector struct {
	Indices map[string]*raster.Index
}

func (d *Detector) index(name string) (*raster.Index, error) {
	if idx, ok := d.Indices[name]; ok {
		return idx, nil
	}
	return raster.LookupIndex(name)
}

// RequiredBands lists the bands a detection with params cannot run without.
func (d *Detector) RequiredBands(p CloudParams) ([]raster.Band, error) {
	required := []raster.Band{raster.SCL, raster.B08}
	if p.CloudIndex != "" {
		idx, err := d.index(p.CloudIndex)
		if err != nil {
			return nil, err
		}
		for _, b := range idx.Bands {
			if b != raster.B08 {
				required = append(required, b)
			}
		}
	} else {
		required = append(required, raster.CLP)
	}
	if p.CloudConfidenceThreshold >= 0 {
		required = append(required, raster.CLD)
	}
	if p.shadowsPossible() {
		required = append(required, raster.Angles...)
	}
	return required, nil
}

// Detect is the package level entry point with no custom index.
func Detect(ctx context.Context, bands *Bands, p CloudParams) (*Result, error) {
	return (&Detector{}).Detect(ctx, bands, p)
}

// Detect builds the validity mask of one date. Either the whole mask is
// returned or an error, never a partial mask.
func (d *Detector) Detect(ctx context.Context, bands *Bands, p CloudParams) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("cloud params: %w", err)
	}
	required, err := d.RequiredBands(p)
	if err != nil {
		return nil, err
	}
	for _, b := range required {
		if _, ok := bands.Buffers[b]; !ok {
			return nil, &MissingBandError{Date: bands.Date, Band: b}
		}
	}
	ref := bands.Buffers[raster.SCL]
	for b, buf := range bands.Buffers {
		if !buf.SameDims(ref) {
			return nil, &raster.DataError{Date: bands.Date, Band: b,
				Reason: fmt.Sprintf("band is %dx%d, SCL is %dx%d", buf.Width, buf.Height, ref.Width, ref.Height)}
		}
	}
	width, height := ref.Width, ref.Height
	n := width * height

	invalid := d.invalidPixels(bands, p)

	cloud, prob, err := d.cloudPixels(bands, p, width, height)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cloudy := 0
	for i := range cloud {
		if cloud[i] && !invalid[i] {
			cloudy++
		}
	}
	cloudCover := float64(cloudy) / float64(n)

	res := &Result{Clouds: cloud}
	skip := p.SkipShadowDetection
	if skip.Decision && cloudCover >= skip.Threshold {
		res.ShadowsSkipped = true
		res.PotentialShadows = make([]bool, n)
		res.Shadows = make([]bool, n)
	} else {
		angles, err := sceneAngles(bands)
		if err != nil {
			return nil, err
		}
		nir := bands.Buffers[raster.B08].Normalised(p.ReflectanceScale)
		var drop []float64
		res.PotentialShadows, drop, err = potentialShadows(nir, bands.Buffers[raster.SCL], cloud, invalid, width, height, cloudCover, p)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var beta []float64
		res.Shadows, beta = objectShadows(nir, prob, cloud, res.PotentialShadows, width, height, angles, p)
		if p.ShadowRefinement.Threshold > 0 {
			res.Alpha = alphaMap(drop, p.ShadowNIRDifference)
			res.Beta = beta
			res.Shadows = improvedShadows(res.Shadows, cloud, invalid, res.Alpha, res.Beta, p.ShadowRefinement)
		}
	}

	mask := raster.NewMask(width, height)
	for i := 0; i < n; i++ {
		switch {
		case invalid[i]:
			mask.Class[i] = raster.Invalid
		case cloud[i]:
			mask.Class[i] = raster.Cloud
		case res.Shadows[i]:
			mask.Class[i] = raster.Shadow
		}
	}

	res.Components, res.Suppressed, err = components.Suppress(mask, p.MinComponentArea, components.Options{Connectivity: p.Connectivity})
	if err != nil {
		return nil, err
	}
	res.Mask = mask
	return res, nil
}

// invalidPixels flags nodata, saturation and the invalid scene classes.
func (d *Detector) invalidPixels(bands *Bands, p CloudParams) []bool {
	scl := bands.Buffers[raster.SCL]
	invalid := make([]bool, len(scl.Data))
	for i, v := range scl.Data {
		invalid[i] = scl.IsNoData(i) || sclInvalid.Has(v)
	}
	for _, b := range raster.Reflectance {
		buf, ok := bands.Buffers[b]
		if !ok {
			continue
		}
		for i, v := range buf.Data {
			if buf.IsNoData(i) || float64(v) >= p.SaturationValue {
				invalid[i] = true
			}
		}
	}
	return invalid
}

// cloudPixels returns the cloud mask and the blurred cloud probability it
// was thresholded from.
func (d *Detector) cloudPixels(bands *Bands, p CloudParams, width, height int) ([]bool, []float32, error) {
	n := width * height
	var prob []float32
	threshold := p.CloudProbabilityThreshold
	if p.CloudIndex != "" {
		idx, err := d.index(p.CloudIndex)
		if err != nil {
			return nil, nil, err
		}
		values, err := idx.Compute(bands.Buffers)
		if err != nil {
			return nil, nil, err
		}
		prob = values.Data
		threshold = p.CloudIndexThreshold
	} else {
		clp := bands.Buffers[raster.CLP]
		prob = make([]float32, n)
		for i, v := range clp.Data {
			prob[i] = v / 255
		}
	}

	var err error
	if prob, err = morph.GaussianBlur(prob, width, height, p.CloudProbabilityBlurSigma); err != nil {
		return nil, nil, err
	}

	cld := bands.Buffers[raster.CLD]
	scl := bands.Buffers[raster.SCL]
	classes := sclClouds(p.IncludeLowProbability)
	raw := make([]float32, n)
	for i := 0; i < n; i++ {
		confident := p.CloudConfidenceThreshold < 0 || float64(cld.Data[i])/100 >= p.CloudConfidenceThreshold
		if (float64(prob[i]) >= threshold && confident) || classes.Has(scl.Data[i]) {
			raw[i] = 1
		}
	}

	if raw, err = morph.Dilate(raw, width, height, p.DilationRadius); err != nil {
		return nil, nil, err
	}
	if raw, err = morph.Close(raw, width, height, p.ClosingRadius); err != nil {
		return nil, nil, err
	}
	if p.MaskBlurSigma > 0 {
		blurred, err := morph.GaussianBlur(raw, width, height, p.MaskBlurSigma)
		if err != nil {
			return nil, nil, err
		}
		raw = morph.Threshold(blurred, p.MaskThreshold)
	}
	return morph.ToBool(raw), prob, nil
}

func sceneAngles(bands *Bands) (Angles, error) {
	var values [4]float64
	for i, b := range raster.Angles {
		buf, ok := bands.Buffers[b]
		if !ok {
			return Angles{}, &MissingBandError{Date: bands.Date, Band: b}
		}
		v, ok := meanAngle(buf)
		if !ok || math.IsNaN(v) {
			return Angles{}, &raster.DataError{Date: bands.Date, Band: b, Reason: "no valid angle sample"}
		}
		values[i] = v
	}
	return Angles{SunZenith: values[0], SunAzimuth: values[1], ViewZenith: values[2], ViewAzimuth: values[3]}, nil
}
