// Package config provides configuration loading and management for volgeom.
// Configuration files are YAML, or TOML when the path ends in ".toml";
// missing files fall back to the defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"volgeom/pkg/interpolation"
	"volgeom/pkg/mask"
	"volgeom/pkg/mesh"
	"volgeom/pkg/palette"
	"volgeom/pkg/reconstruction"
	"volgeom/pkg/reformation"
	"volgeom/pkg/visualization"
)

// Sentinel names accepted by Reformation.Sentinel.
const (
	SentinelMin   = "min"
	SentinelNaN   = "nan"
	SentinelValue = "value"
)

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers bounds how many labels are meshed concurrently. Zero uses
		// every CPU.
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`
	} `yaml:"processing" toml:"processing"`

	// Mask cleaning applied to each label before smoothing
	Mask mask.Options `yaml:"mask" toml:"mask"`

	// Gaussian smoothing of the binary region
	Smoothing struct {
		// Sigma is the standard deviation in voxels
		Sigma float64 `yaml:"sigma" toml:"sigma"`

		// KernelRadius is the kernel half-width; zero derives it from Sigma
		KernelRadius int `yaml:"kernelRadius" toml:"kernelRadius"`
	} `yaml:"smoothing" toml:"smoothing"`

	// Surface extraction and mesh postprocessing
	Surface struct {
		IsoValue           float64 `yaml:"isoValue" toml:"isoValue"`
		MergeTolerance     float64 `yaml:"mergeTolerance" toml:"mergeTolerance"`
		MaxHoleArea        float64 `yaml:"maxHoleArea" toml:"maxHoleArea"`
		SmoothIterations   int     `yaml:"smoothIterations" toml:"smoothIterations"`
		Relaxation         float64 `yaml:"relaxation" toml:"relaxation"`
		DecimateTarget     float64 `yaml:"decimateTarget" toml:"decimateTarget"`
		MaxDecimateError   float64 `yaml:"maxDecimateError" toml:"maxDecimateError"`
		MinTriangleQuality float64 `yaml:"minTriangleQuality" toml:"minTriangleQuality"`
	} `yaml:"surface" toml:"surface"`

	// Curved reformation sampling and display
	Reformation struct {
		// Samples is the column count; zero adapts it to the path length
		Samples      int     `yaml:"samples" toml:"samples"`
		Rows         int     `yaml:"rows" toml:"rows"`
		Width        float64 `yaml:"width" toml:"width"`
		MarkerStride int     `yaml:"markerStride" toml:"markerStride"`

		// Sentinel is "min", "nan" or "value" (uses SentinelValue)
		Sentinel      string  `yaml:"sentinel" toml:"sentinel"`
		SentinelValue float64 `yaml:"sentinelValue" toml:"sentinelValue"`

		// Window and Level set the display mapping; a zero window uses the
		// image's own range
		Window       float64 `yaml:"window" toml:"window"`
		Level        float64 `yaml:"level" toml:"level"`
		DisplaySigma float64 `yaml:"displaySigma" toml:"displaySigma"`
		Scale        int     `yaml:"scale" toml:"scale"`
	} `yaml:"reformation" toml:"reformation"`

	// Part colours
	Palette struct {
		// Rules maps name keywords to "#rrggbb" colours, on top of the
		// built-in rules
		Rules map[string]string `yaml:"rules" toml:"rules"`
	} `yaml:"palette" toml:"palette"`

	// Output parameters
	Output struct {
		Dir       string `yaml:"dir" toml:"dir"`
		STLBinary bool   `yaml:"stlBinary" toml:"stlBinary"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" toml:"verbose"`

		// LogFile, when set, receives a copy of the log, rotated at
		// MaxLogSize megabytes and kept for MaxLogAge days
		LogFile    string `yaml:"logFile" toml:"logFile"`
		MaxLogSize int    `yaml:"maxLogSize" toml:"maxLogSize"`
		MaxLogAge  int    `yaml:"maxLogAge" toml:"maxLogAge"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()

	cfg.Mask = mask.DefaultOptions()

	cfg.Smoothing.Sigma = 1.0
	cfg.Smoothing.KernelRadius = 0

	defaults := reconstruction.DefaultParams()
	cfg.Surface.IsoValue = defaults.IsoValue
	cfg.Surface.MergeTolerance = defaults.MergeTolerance
	cfg.Surface.MaxHoleArea = defaults.MaxHoleArea
	cfg.Surface.SmoothIterations = defaults.SmoothIterations
	cfg.Surface.Relaxation = defaults.Relaxation
	cfg.Surface.DecimateTarget = defaults.Decimate.TargetRatio
	cfg.Surface.MaxDecimateError = defaults.Decimate.MaxError
	cfg.Surface.MinTriangleQuality = defaults.Decimate.MinQuality

	ref := reformation.DefaultParams()
	cfg.Reformation.Samples = ref.Samples
	cfg.Reformation.Rows = ref.Rows
	cfg.Reformation.Width = ref.Width
	cfg.Reformation.MarkerStride = ref.MarkerStride
	cfg.Reformation.Sentinel = SentinelMin
	cfg.Reformation.DisplaySigma = visualization.DefaultDisplaySigma
	cfg.Reformation.Scale = 1

	cfg.Palette.Rules = map[string]string{}

	cfg.Output.Dir = "output"
	cfg.Output.STLBinary = true
	cfg.Output.Verbose = false
	cfg.Output.MaxLogSize = 10
	cfg.Output.MaxLogAge = 7

	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Processing.NumWorkers >= 0, "processing.numWorkers must not be negative, got %d", c.Processing.NumWorkers)

	check(c.Mask.MinComponentVoxels >= 0, "mask.minComponentVoxels must not be negative, got %d", c.Mask.MinComponentVoxels)
	check(c.Mask.MinRawVoxels >= 0, "mask.minRawVoxels must not be negative, got %d", c.Mask.MinRawVoxels)

	check(c.Smoothing.Sigma >= 0, "smoothing.sigma must not be negative, got %g", c.Smoothing.Sigma)
	check(c.Smoothing.KernelRadius >= 0, "smoothing.kernelRadius must not be negative, got %d", c.Smoothing.KernelRadius)

	s := c.Surface
	check(s.IsoValue > 0 && s.IsoValue < 1, "surface.isoValue must be in (0, 1), got %g", s.IsoValue)
	check(s.MergeTolerance >= 0, "surface.mergeTolerance must not be negative, got %g", s.MergeTolerance)
	check(s.MaxHoleArea >= 0, "surface.maxHoleArea must not be negative, got %g", s.MaxHoleArea)
	check(s.SmoothIterations >= 0, "surface.smoothIterations must not be negative, got %d", s.SmoothIterations)
	check(s.Relaxation >= 0 && s.Relaxation <= 1, "surface.relaxation must be in [0, 1], got %g", s.Relaxation)
	check(s.DecimateTarget > 0 && s.DecimateTarget <= 1, "surface.decimateTarget must be in (0, 1], got %g", s.DecimateTarget)
	check(s.MaxDecimateError >= 0, "surface.maxDecimateError must not be negative, got %g", s.MaxDecimateError)
	check(s.MinTriangleQuality >= 0 && s.MinTriangleQuality <= 1, "surface.minTriangleQuality must be in [0, 1], got %g", s.MinTriangleQuality)

	r := c.Reformation
	check(r.Samples >= 0, "reformation.samples must not be negative, got %d", r.Samples)
	check(r.Rows >= 1, "reformation.rows must be positive, got %d", r.Rows)
	check(r.Width > 0, "reformation.width must be positive, got %g", r.Width)
	check(r.MarkerStride >= 1, "reformation.markerStride must be positive, got %d", r.MarkerStride)
	switch r.Sentinel {
	case SentinelMin, SentinelNaN, SentinelValue:
	default:
		errs = append(errs, fmt.Errorf("reformation.sentinel must be %q, %q or %q, got %q", SentinelMin, SentinelNaN, SentinelValue, r.Sentinel))
	}
	check(r.Window >= 0, "reformation.window must not be negative, got %g", r.Window)
	check(r.DisplaySigma >= 0, "reformation.displaySigma must not be negative, got %g", r.DisplaySigma)
	check(r.Scale >= 1, "reformation.scale must be at least 1, got %d", r.Scale)

	if _, err := palette.ParseRules(c.Palette.Rules); err != nil {
		errs = append(errs, err)
	}

	check(c.Output.Dir != "", "output.dir must not be empty")
	check(c.Output.MaxLogSize >= 0, "output.maxLogSize must not be negative, got %d", c.Output.MaxLogSize)
	check(c.Output.MaxLogAge >= 0, "output.maxLogAge must not be negative, got %d", c.Output.MaxLogAge)

	return errors.Join(errs...)
}

// PipelineParams converts the configuration into mesh pipeline parameters.
func (c *Config) PipelineParams(logger *slog.Logger) reconstruction.Params {
	return reconstruction.Params{
		Mask:             c.Mask,
		Sigma:            c.Smoothing.Sigma,
		KernelRadius:     c.Smoothing.KernelRadius,
		IsoValue:         c.Surface.IsoValue,
		MergeTolerance:   c.Surface.MergeTolerance,
		MaxHoleArea:      c.Surface.MaxHoleArea,
		SmoothIterations: c.Surface.SmoothIterations,
		Relaxation:       c.Surface.Relaxation,
		Decimate: mesh.DecimateOptions{
			TargetRatio: c.Surface.DecimateTarget,
			MaxError:    c.Surface.MaxDecimateError,
			MinQuality:  c.Surface.MinTriangleQuality,
		},
		NumWorkers: c.Processing.NumWorkers,
		Logger:     logger,
	}
}

// ReformationParams converts the configuration into reformation parameters.
// Unknown sentinel names fall back to the grid minimum.
func (c *Config) ReformationParams(logger *slog.Logger) reformation.Params {
	r := c.Reformation
	sentinel := interpolation.SentinelMin()
	switch r.Sentinel {
	case SentinelNaN:
		sentinel = interpolation.SentinelNaN()
	case SentinelValue:
		sentinel = interpolation.SentinelValue(r.SentinelValue)
	}
	return reformation.Params{
		Samples:      r.Samples,
		Rows:         r.Rows,
		Width:        r.Width,
		MarkerStride: r.MarkerStride,
		Sentinel:     sentinel,
		Logger:       logger,
	}
}

// DisplayOptions returns how reformation images are rendered.
func (c *Config) DisplayOptions() visualization.ReformationOptions {
	r := c.Reformation
	return visualization.ReformationOptions{
		Window:       visualization.Window{Center: r.Level, Width: r.Window},
		DisplaySigma: r.DisplaySigma,
		Scale:        r.Scale,
	}
}

// PaletteMapper returns the configured keyword rules followed by the
// built-in ones, falling back to the hue wheel. Configured rules win ties.
func (c *Config) PaletteMapper() (palette.Mapper, error) {
	extra, err := palette.ParseRules(c.Palette.Rules)
	if err != nil {
		return nil, err
	}
	rules := append(extra, palette.DefaultRules()...)
	return palette.NewKeywordMapper(rules, palette.Wheel), nil
}
