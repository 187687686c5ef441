package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/nci/gapfill/blend"
	"github.com/nci/gapfill/components"
	"github.com/nci/gapfill/detect"
	"github.com/nci/gapfill/fill"
	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/raster"
	"github.com/nci/gapfill/store"
)

type BlendConfig struct {
	// Enabled Poisson blends temporal patches into the filled images.
	Enabled      bool `yaml:"enabled" json:"enabled"`
	blend.Params `yaml:",inline"`
}

type ProcessorConfig struct {
	// Workers bounds the dates processed at the same time.
	Workers int `yaml:"workers" json:"workers"`
	// Bands are filled for every date, reflectance bands by default.
	Bands []string `yaml:"bands" json:"bands"`
	// From and To restrict the processed dates, YYYY-MM-DD, empty is open.
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
	// SaveMasks writes mask.tif next to the filled bands.
	SaveMasks bool `yaml:"save_masks" json:"save_masks"`
	// Redetect reruns detection on dates whose clouds are already computed.
	Redetect bool `yaml:"redetect" json:"redetect"`
	// NoiseRegionSize is the smallest cloud or shadow region counted when
	// recording percent_invalid_noise_removed, 0 disables the record.
	NoiseRegionSize int `yaml:"noise_region_size" json:"noise_region_size"`
}

type IndexConfig struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
}

type IndicesConfig struct {
	// Custom are evaluated next to the built in indices.
	Custom []IndexConfig `yaml:"custom" json:"custom"`
	// Summaries names the indices summarised for every date.
	Summaries           []string `yaml:"summaries" json:"summaries"`
	ExcludeCloudyPixels bool     `yaml:"exclude_cloudy_pixels" json:"exclude_cloudy_pixels"`
	ExcludeShadowPixels bool     `yaml:"exclude_shadow_pixels" json:"exclude_shadow_pixels"`
	// SkipThreshold skips the real data summary of dates with a larger non
	// valid fraction, negative to never skip.
	SkipThreshold float64 `yaml:"skip_threshold" json:"skip_threshold"`
}

type ReportConfig struct {
	// Output is the report file, - for stdout and empty for none.
	Output       string `yaml:"output" json:"output"`
	TemplateDir  string `yaml:"template_dir" json:"template_dir"`
	TemplateName string `yaml:"template_name" json:"template_name"`
}

type MetricsConfig struct {
	// LogDir receives the JSON line records, stdout when empty.
	LogDir string `yaml:"log_dir" json:"log_dir"`
	// Textfile is written with the Prometheus counters at the end of a run.
	Textfile string `yaml:"textfile" json:"textfile"`
}

type Config struct {
	BaseFolder   string             `yaml:"base_folder" json:"base_folder"`
	OutputFolder string             `yaml:"output_folder" json:"output_folder"`
	Store        store.Options      `yaml:"store" json:"store"`
	Detection    detect.CloudParams `yaml:"detection" json:"detection"`
	Fill         fill.Params        `yaml:"fill" json:"fill"`
	Blend        BlendConfig        `yaml:"blend" json:"blend"`
	Processor    ProcessorConfig    `yaml:"processor" json:"processor"`
	Logging      logging.Config     `yaml:"logging" json:"logging"`
	Indices      IndicesConfig      `yaml:"indices" json:"indices"`
	Report       ReportConfig       `yaml:"report" json:"report"`
	Metrics      MetricsConfig      `yaml:"metrics" json:"metrics"`
}

// DefaultConfig holds the values used for everything a config file leaves
// out.
func DefaultConfig() *Config {
	return &Config{
		Store: store.Options{Driver: "sqlite3", NeighborWeight: 0.5, MaxOpenConns: 4},
		Detection: detect.CloudParams{
			CloudProbabilityThreshold:  0.4,
			CloudProbabilityBlurSigma:  1,
			CloudConfidenceThreshold:   0.3,
			DilationRadius:             2,
			ClosingRadius:              2,
			MaskBlurSigma:              1,
			MaskThreshold:              0.2,
			ShadowNIRDifference:        0.02,
			ShadowReflectanceCeiling:   0.16,
			ShadowProbabilityThreshold: 0.3,
			PotentialShadowBlurSigma:   1,
			PotentialShadowThreshold:   0.2,
			CloudHeightMin:             200,
			CloudHeightMax:             4000,
			CloudHeightStep:            100,
			PixelSize:                  10,
			MinComponentArea:           10,
			Connectivity:               components.Eight,
			SaturationValue:            65535,
			ReflectanceScale:           10000,
			SkipShadowDetection:        detect.SkipShadowDetection{Decision: true, Threshold: 0.9},
			ShadowRefinement:           detect.ShadowRefinement{Threshold: 0.5, Bins: 10},
		},
		Fill: fill.Params{
			NeighborhoodRadius: 5,
			MaxInvalidFraction: 0.5,
			MaxTemporalGap:     30,
			MaxNeighbors:       6,
			Tolerance:          1e-6,
			MaxIterations:      5000,
			Deadline:           time.Minute,
			Workers:            4,
		},
		Blend:     BlendConfig{Enabled: true, Params: blend.DefaultParams()},
		Processor: ProcessorConfig{Workers: 2, SaveMasks: true, NoiseRegionSize: 100},
		Logging:   logging.Config{Level: "info", Format: "json"},
		Indices:   IndicesConfig{SkipThreshold: -1},
	}
}

// LoadConfigFile decodes a YAML or, for a .json extension, JSON document
// over the defaults. YAML durations are written like "30s", JSON durations
// are nanoseconds.
func LoadConfigFile(configFile string) (*Config, error) {
	config := DefaultConfig()
	cfg, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error while reading config file %s: %w", configFile, err)
	}

	if strings.EqualFold(filepath.Ext(configFile), ".json") {
		err = json.Unmarshal(cfg, config)
	} else {
		err = yaml.UnmarshalStrict(cfg, config)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config document %s: %w", configFile, err)
	}
	return config, nil
}

// FillBands returns the bands filled for every date.
func (c *Config) FillBands() ([]raster.Band, error) {
	if len(c.Processor.Bands) == 0 {
		return append([]raster.Band(nil), raster.Reflectance...), nil
	}
	out := make([]raster.Band, 0, len(c.Processor.Bands))
	for _, name := range c.Processor.Bands {
		b, err := raster.ParseBand(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// IndexSet returns the built in indices plus the custom ones by name.
func (c *Config) IndexSet() (map[string]*raster.Index, error) {
	set := make(map[string]*raster.Index)
	for _, name := range raster.BuiltinIndices() {
		idx, err := raster.LookupIndex(name)
		if err != nil {
			return nil, err
		}
		set[name] = idx
	}
	for _, ic := range c.Indices.Custom {
		idx, err := raster.NewIndex(ic.Name, ic.Expression)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", ic.Name, err)
		}
		set[ic.Name] = idx
	}
	return set, nil
}

// DateRange parses Processor.From and Processor.To, zero dates are open.
func (c *Config) DateRange() (from, to raster.Date, err error) {
	if c.Processor.From != "" {
		if from, err = raster.ParseDate(c.Processor.From); err != nil {
			return
		}
	}
	if c.Processor.To != "" {
		if to, err = raster.ParseDate(c.Processor.To); err != nil {
			return
		}
	}
	if from.Valid() && to.Valid() && to.Before(from) {
		err = fmt.Errorf("processor.to %s is before processor.from %s", to, from)
	}
	return
}

func (c *Config) Validate() error {
	if c.BaseFolder == "" {
		return fmt.Errorf("base_folder is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); c.Logging.Level != "" && err != nil {
		return err
	}
	if f := c.Logging.Format; f != "" && f != "json" && f != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", f)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Fill.Validate(); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if c.Blend.Enabled {
		if err := c.Blend.Validate(); err != nil {
			return fmt.Errorf("blend: %w", err)
		}
	}
	if c.Processor.Workers <= 0 {
		return fmt.Errorf("processor.workers must be positive, got %d", c.Processor.Workers)
	}
	if c.Processor.NoiseRegionSize < 0 {
		return fmt.Errorf("processor.noise_region_size must not be negative, got %d", c.Processor.NoiseRegionSize)
	}
	if _, err := c.FillBands(); err != nil {
		return fmt.Errorf("processor.bands: %w", err)
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}

	indices, err := c.IndexSet()
	if err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	if c.Detection.CloudIndex != "" {
		if _, ok := indices[c.Detection.CloudIndex]; !ok {
			return fmt.Errorf("detection.cloud_index %q is not a known index", c.Detection.CloudIndex)
		}
	}
	for _, name := range c.Indices.Summaries {
		if _, ok := indices[name]; !ok {
			return fmt.Errorf("indices.summaries: unknown index %q", name)
		}
	}
	if c.Indices.SkipThreshold > 1 {
		return fmt.Errorf("indices.skip_threshold must be at most 1, got %v", c.Indices.SkipThreshold)
	}
	return nil
}
