package detect

import (
	"fmt"

	"github.com/nci/gapfill/components"
)

// SkipShadowDetection skips the shadow search when Decision is set and the
// cloud fraction of the image is at least Threshold.
type SkipShadowDetection struct {
	Decision  bool    `yaml:"decision" json:"decision"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// ShadowRefinement grows or prunes the object shadow mask from the alpha
// (NIR depth) and beta (cast cloud probability) maps. A zero Threshold keeps
// the object shadow mask as is.
type ShadowRefinement struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Bins      int     `yaml:"bins" json:"bins"`
}

// CloudParams configures one detection run. Every field is explicit: a zero
// radius or sigma disables the corresponding step, nothing is defaulted.
type CloudParams struct {
	// Cloud probability (CLP/255) cutoff and the blur applied before it.
	CloudProbabilityThreshold float64 `yaml:"cloud_probability_threshold" json:"cloud_probability_threshold"`
	CloudProbabilityBlurSigma float64 `yaml:"cloud_probability_blur_sigma" json:"cloud_probability_blur_sigma"`
	// Cloud confidence (CLD/100) cutoff, negative to ignore CLD.
	CloudConfidenceThreshold float64 `yaml:"cloud_confidence_threshold" json:"cloud_confidence_threshold"`
	// IncludeLowProbability adds the low probability SCL class to the cloud classes.
	IncludeLowProbability bool `yaml:"include_low_probability" json:"include_low_probability"`
	// CloudIndex replaces the probability band by a spectral index when set.
	CloudIndex          string  `yaml:"cloud_index" json:"cloud_index"`
	CloudIndexThreshold float64 `yaml:"cloud_index_threshold" json:"cloud_index_threshold"`

	DilationRadius int     `yaml:"dilation_radius" json:"dilation_radius"`
	ClosingRadius  int     `yaml:"closing_radius" json:"closing_radius"`
	MaskBlurSigma  float64 `yaml:"mask_blur_sigma" json:"mask_blur_sigma"`
	MaskThreshold  float64 `yaml:"mask_threshold" json:"mask_threshold"`

	ShadowNIRDifference        float64 `yaml:"shadow_nir_difference" json:"shadow_nir_difference"`
	ShadowReflectanceCeiling   float64 `yaml:"shadow_reflectance_ceiling" json:"shadow_reflectance_ceiling"`
	ShadowProbabilityThreshold float64 `yaml:"shadow_probability_threshold" json:"shadow_probability_threshold"`
	PotentialShadowBlurSigma   float64 `yaml:"potential_shadow_blur_sigma" json:"potential_shadow_blur_sigma"`
	PotentialShadowThreshold   float64 `yaml:"potential_shadow_threshold" json:"potential_shadow_threshold"`

	// Shadow search over cloud heights in metres.
	CloudHeightMin  float64 `yaml:"cloud_height_min" json:"cloud_height_min"`
	CloudHeightMax  float64 `yaml:"cloud_height_max" json:"cloud_height_max"`
	CloudHeightStep float64 `yaml:"cloud_height_step" json:"cloud_height_step"`
	PixelSize       float64 `yaml:"pixel_size" json:"pixel_size"`

	MinComponentArea int                     `yaml:"min_component_area" json:"min_component_area"`
	Connectivity     components.Connectivity `yaml:"connectivity" json:"connectivity"`

	// Raw reflectance at or above SaturationValue is invalid. Reflectance is
	// divided by ReflectanceScale before comparing with shadow thresholds.
	SaturationValue  float64 `yaml:"saturation_value" json:"saturation_value"`
	ReflectanceScale float64 `yaml:"reflectance_scale" json:"reflectance_scale"`

	SkipShadowDetection SkipShadowDetection `yaml:"skip_shadow_detection" json:"skip_shadow_detection"`
	ShadowRefinement    ShadowRefinement    `yaml:"shadow_refinement" json:"shadow_refinement"`
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

func (p CloudParams) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"cloud_probability_threshold", p.CloudProbabilityThreshold},
		{"mask_threshold", p.MaskThreshold},
		{"shadow_probability_threshold", p.ShadowProbabilityThreshold},
		{"potential_shadow_threshold", p.PotentialShadowThreshold},
		{"skip_shadow_detection.threshold", p.SkipShadowDetection.Threshold},
		{"shadow_refinement.threshold", p.ShadowRefinement.Threshold},
	}
	for _, c := range checks {
		if err := unit(c.name, c.v); err != nil {
			return err
		}
	}
	if p.CloudConfidenceThreshold > 1 {
		return fmt.Errorf("cloud_confidence_threshold must be at most 1, got %v", p.CloudConfidenceThreshold)
	}
	if p.CloudProbabilityBlurSigma < 0 || p.MaskBlurSigma < 0 || p.PotentialShadowBlurSigma < 0 {
		return fmt.Errorf("blur sigmas must not be negative")
	}
	if p.DilationRadius < 0 || p.ClosingRadius < 0 {
		return fmt.Errorf("morphology radii must not be negative")
	}
	if p.MinComponentArea < 0 {
		return fmt.Errorf("min_component_area must not be negative, got %d", p.MinComponentArea)
	}
	if err := (components.Options{Connectivity: p.Connectivity}).Validate(); err != nil {
		return err
	}
	if p.SaturationValue <= 0 {
		return fmt.Errorf("saturation_value must be positive, got %v", p.SaturationValue)
	}
	if p.ReflectanceScale <= 0 {
		return fmt.Errorf("reflectance_scale must be positive, got %v", p.ReflectanceScale)
	}
	if p.ShadowRefinement.Threshold > 0 && p.ShadowRefinement.Bins < 1 {
		return fmt.Errorf("shadow_refinement.bins must be positive, got %d", p.ShadowRefinement.Bins)
	}
	if p.shadowsPossible() {
		if p.PixelSize <= 0 {
			return fmt.Errorf("pixel_size must be positive, got %v", p.PixelSize)
		}
		if p.CloudHeightMin < 0 || p.CloudHeightMax < p.CloudHeightMin {
			return fmt.Errorf("invalid cloud height range [%v, %v]", p.CloudHeightMin, p.CloudHeightMax)
		}
		if p.CloudHeightStep <= 0 {
			return fmt.Errorf("cloud_height_step must be positive, got %v", p.CloudHeightStep)
		}
	}
	return nil
}

// shadowsPossible is false only when shadows are skipped whatever the cloud cover.
func (p CloudParams) shadowsPossible() bool {
	return !(p.SkipShadowDetection.Decision && p.SkipShadowDetection.Threshold == 0)
}
