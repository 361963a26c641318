// Package config provides configuration loading and management for neutronct.
// It handles loading session configuration from YAML files, provides default
// values and validates the record before a run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"neutronct/internal/logger"
	"neutronct/internal/models"
)

// Validation errors returned by Validate
var (
	ErrMissingName        = errors.New("name is required")
	ErrMissingDataDir     = errors.New("paths.data_dir is required")
	ErrMissingOBDir       = errors.New("paths.ob_dirs needs at least one directory")
	ErrMissingOutputDir   = errors.New("paths.output_dir is required")
	ErrPathNotFound       = errors.New("path does not exist")
	ErrInvalidWorkers     = errors.New("processing.max_workers must be >= 0")
	ErrInvalidAverage     = errors.New("processing.normalize_average must be mean or median")
	ErrInvalidKernel      = errors.New("kernel must be odd and positive")
	ErrInvalidROI         = errors.New("invalid roi")
	ErrInvalidAngleRange  = errors.New("reconstruction.angle_range must be positive")
	ErrInvalidLogLevel    = errors.New("invalid logging level")
	ErrInvalidLogFormat   = errors.New("logging.format must be console or json")
	ErrInvalidGammaFilter = errors.New("processing.gamma_threshold must be >= 0")
)

// Paths is the directory layout of a session
type Paths struct {
	// DataDir holds the projections (ct)
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// OBDirs hold the open beam (flat field) images
	OBDirs []string `yaml:"ob_dirs" json:"ob_dirs"`

	// DCDirs hold the dark current (dark field) images, optional
	DCDirs []string `yaml:"dc_dirs" json:"dc_dirs"`

	// WorkingDir receives checkpoints and reconstruction scratch files
	WorkingDir string `yaml:"working_dir" json:"working_dir"`

	// OutputDir receives the reconstructed volume
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// Patterns are the fnmatch globs used to select files in each directory.
// An empty ob or dc pattern matches files to the projections by metadata.
type Patterns struct {
	CT string `yaml:"ct" json:"ct"`
	OB string `yaml:"ob" json:"ob"`
	DC string `yaml:"dc" json:"dc"`
}

// Processing holds the preprocessing parameters
type Processing struct {
	// MaxWorkers bounds the parallel workers, 0 uses all cores
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	GammaFilter    bool    `yaml:"gamma_filter" json:"gamma_filter"`
	GammaThreshold float64 `yaml:"gamma_threshold" json:"gamma_threshold"`

	// NormalizeAverage combines ob and dc frames, mean or median
	NormalizeAverage string  `yaml:"normalize_average" json:"normalize_average"`
	Cutoff           float64 `yaml:"cutoff" json:"cutoff"`

	IFCEnabled bool `yaml:"ifc_enabled" json:"ifc_enabled"`

	// AirPixels is the width of the air columns on each side, a negative
	// value detects the air region automatically
	AirPixels int     `yaml:"air_pixels" json:"air_pixels"`
	Sigma     float64 `yaml:"sigma" json:"sigma"`

	// BeamROI selects ROI normalization instead of air pixel correction
	BeamROI *models.ROI `yaml:"beam_roi,omitempty" json:"beam_roi,omitempty"`
	CropROI *models.ROI `yaml:"crop_roi,omitempty" json:"crop_roi,omitempty"`

	MinusLog bool `yaml:"minus_log" json:"minus_log"`

	RingRemoval bool `yaml:"ring_removal" json:"ring_removal"`
	RingKernel  int  `yaml:"ring_kernel" json:"ring_kernel"`

	Smoothing       bool `yaml:"smoothing" json:"smoothing"`
	SmoothingKernel int  `yaml:"smoothing_kernel" json:"smoothing_kernel"`

	// Checkpoints saves the data after each preprocessing stage
	Checkpoints bool `yaml:"checkpoints" json:"checkpoints"`
}

// Reconstruction configures the external reconstruction engine
type Reconstruction struct {
	// Command is the argument template run by the engine
	Command []string `yaml:"command" json:"command"`

	// Center of rotation in pixels, negative lets the engine decide
	Center float64 `yaml:"center" json:"center"`

	// AngleRange in degrees, used when no angles could be extracted
	AngleRange float64 `yaml:"angle_range" json:"angle_range"`
}

// Logging configures the logger
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config represents a CT session configuration loaded from YAML
type Config struct {
	Instrument string `yaml:"instrument" json:"instrument"`
	IPTS       string `yaml:"ipts" json:"ipts"`
	Name       string `yaml:"name" json:"name"`

	Paths          Paths          `yaml:"paths" json:"paths"`
	Patterns       Patterns       `yaml:"patterns" json:"patterns"`
	Processing     Processing     `yaml:"processing" json:"processing"`
	Reconstruction Reconstruction `yaml:"reconstruction" json:"reconstruction"`
	Logging        Logging        `yaml:"logging" json:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Instrument: "CG1D",
		Name:       "ct_scan",
	}

	cfg.Paths.WorkingDir = "working"
	cfg.Paths.OutputDir = "output"

	cfg.Patterns.CT = "*.tiff"

	cfg.Processing.MaxWorkers = 0 // all available cores
	cfg.Processing.NormalizeAverage = "mean"
	cfg.Processing.IFCEnabled = true
	cfg.Processing.AirPixels = 5
	cfg.Processing.Sigma = 3
	cfg.Processing.MinusLog = true
	cfg.Processing.RingKernel = 11
	cfg.Processing.SmoothingKernel = 3

	cfg.Reconstruction.Center = -1
	cfg.Reconstruction.AngleRange = 180

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// LoadConfig loads configuration from a YAML file
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

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
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

// Validate checks the configuration for consistency. With checkPaths the
// projection and open beam directories must also exist.
func (c *Config) Validate(checkPaths bool) error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.Paths.DataDir == "" {
		return ErrMissingDataDir
	}
	if len(c.Paths.OBDirs) == 0 {
		return ErrMissingOBDir
	}
	if c.Paths.OutputDir == "" {
		return ErrMissingOutputDir
	}

	p := c.Processing
	if p.MaxWorkers < 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidWorkers, p.MaxWorkers)
	}
	if p.GammaThreshold < 0 {
		return fmt.Errorf("%w, got %g", ErrInvalidGammaFilter, p.GammaThreshold)
	}
	if p.NormalizeAverage != "mean" && p.NormalizeAverage != "median" {
		return fmt.Errorf("%w, got %q", ErrInvalidAverage, p.NormalizeAverage)
	}
	if p.RingRemoval && (p.RingKernel < 3 || p.RingKernel%2 == 0) {
		return fmt.Errorf("processing.ring_kernel: %w and >= 3, got %d", ErrInvalidKernel, p.RingKernel)
	}
	if p.Smoothing && (p.SmoothingKernel < 1 || p.SmoothingKernel%2 == 0) {
		return fmt.Errorf("processing.smoothing_kernel: %w, got %d", ErrInvalidKernel, p.SmoothingKernel)
	}
	for label, roi := range map[string]*models.ROI{"beam_roi": p.BeamROI, "crop_roi": p.CropROI} {
		if roi == nil {
			continue
		}
		if roi.Top < 0 || roi.Left < 0 || roi.Width() <= 0 || roi.Height() <= 0 {
			return fmt.Errorf("processing.%s: %w %v", label, ErrInvalidROI, roi.Slice())
		}
	}

	if c.Reconstruction.AngleRange <= 0 {
		return fmt.Errorf("%w, got %g", ErrInvalidAngleRange, c.Reconstruction.AngleRange)
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w, got %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if checkPaths {
		dirs := append([]string{c.Paths.DataDir}, c.Paths.OBDirs...)
		for _, dir := range dirs {
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("%w: %s", ErrPathNotFound, dir)
			}
		}
	}

	return nil
}
