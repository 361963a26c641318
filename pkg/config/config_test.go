package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neutronct/internal/models"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Paths.DataDir = "ct"
	cfg.Paths.OBDirs = []string{"ob"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Processing.AirPixels != 5 {
		t.Errorf("Expected air_pixels 5, got %d", cfg.Processing.AirPixels)
	}
	if cfg.Processing.Sigma != 3 {
		t.Errorf("Expected sigma 3, got %f", cfg.Processing.Sigma)
	}
	if cfg.Processing.RingKernel != 11 {
		t.Errorf("Expected ring_kernel 11, got %d", cfg.Processing.RingKernel)
	}
	if cfg.Reconstruction.AngleRange != 180 {
		t.Errorf("Expected angle_range 180, got %f", cfg.Reconstruction.AngleRange)
	}
	// Defaults lack the data directories
	if err := cfg.Validate(false); !errors.Is(err, ErrMissingDataDir) {
		t.Errorf("Expected ErrMissingDataDir, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.Instrument != DefaultConfig().Instrument {
		t.Errorf("Expected default instrument, got %q", cfg.Instrument)
	}
}

func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	cfg := validConfig()
	cfg.IPTS = "IPTS-1234"
	cfg.Paths.DCDirs = []string{"dc1", "dc2"}
	cfg.Processing.CropROI = &models.ROI{Top: 1, Left: 2, Bottom: 30, Right: 40}
	cfg.Reconstruction.Command = []string{"recon", "{{.Input}}"}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded.IPTS != "IPTS-1234" {
		t.Errorf("Expected IPTS-1234, got %q", loaded.IPTS)
	}
	if len(loaded.Paths.DCDirs) != 2 || loaded.Paths.DCDirs[1] != "dc2" {
		t.Errorf("Unexpected dc dirs %v", loaded.Paths.DCDirs)
	}
	if loaded.Processing.CropROI == nil || *loaded.Processing.CropROI != *cfg.Processing.CropROI {
		t.Errorf("Expected crop roi %v, got %v", cfg.Processing.CropROI, loaded.Processing.CropROI)
	}
	if len(loaded.Reconstruction.Command) != 2 {
		t.Errorf("Unexpected command %v", loaded.Reconstruction.Command)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("paths: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"no name", func(c *Config) { c.Name = "" }, ErrMissingName},
		{"no ob", func(c *Config) { c.Paths.OBDirs = nil }, ErrMissingOBDir},
		{"no output", func(c *Config) { c.Paths.OutputDir = "" }, ErrMissingOutputDir},
		{"negative workers", func(c *Config) { c.Processing.MaxWorkers = -1 }, ErrInvalidWorkers},
		{"bad average", func(c *Config) { c.Processing.NormalizeAverage = "mode" }, ErrInvalidAverage},
		{"even ring kernel", func(c *Config) { c.Processing.RingRemoval = true; c.Processing.RingKernel = 4 }, ErrInvalidKernel},
		{"even smoothing kernel", func(c *Config) { c.Processing.Smoothing = true; c.Processing.SmoothingKernel = 2 }, ErrInvalidKernel},
		{"empty roi", func(c *Config) { c.Processing.BeamROI = &models.ROI{Top: 5, Bottom: 5, Right: 10} }, ErrInvalidROI},
		{"angle range", func(c *Config) { c.Reconstruction.AngleRange = 0 }, ErrInvalidAngleRange},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate(false)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateCheckPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := validConfig()
	cfg.Paths.DataDir = dir
	cfg.Paths.OBDirs = []string{filepath.Join(dir, "missing")}
	if err := cfg.Validate(true); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Expected ErrPathNotFound, got %v", err)
	}

	cfg.Paths.OBDirs = []string{dir}
	if err := cfg.Validate(true); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestPrompt(t *testing.T) {
	cfg := DefaultConfig()
	answers := strings.Join([]string{
		"",           // instrument kept
		"IPTS-42",    // ipts
		"sample",     // name
		"/data/ct",   // ct dir
		"/ob1, /ob2", // ob dirs
		"-",          // no dc
		"",           // working dir kept
		"",           // output dir kept
		"maybe",      // rejected
		"y",          // gamma filter
		"",           // ifc kept
		"-1",         // auto air
		"0,0,20,30",  // crop roi
	}, "\n") + "\n"

	var out strings.Builder
	if err := Prompt(strings.NewReader(answers), &out, cfg); err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}

	if cfg.Instrument != "CG1D" {
		t.Errorf("Expected instrument kept, got %q", cfg.Instrument)
	}
	if cfg.IPTS != "IPTS-42" || cfg.Name != "sample" || cfg.Paths.DataDir != "/data/ct" {
		t.Errorf("Unexpected identity %q %q %q", cfg.IPTS, cfg.Name, cfg.Paths.DataDir)
	}
	if len(cfg.Paths.OBDirs) != 2 || cfg.Paths.OBDirs[1] != "/ob2" {
		t.Errorf("Unexpected ob dirs %v", cfg.Paths.OBDirs)
	}
	if cfg.Paths.DCDirs != nil {
		t.Errorf("Expected no dc dirs, got %v", cfg.Paths.DCDirs)
	}
	if !cfg.Processing.GammaFilter {
		t.Error("Expected gamma filter enabled after re-prompt")
	}
	if !strings.Contains(out.String(), "Invalid answer") {
		t.Error("Expected the invalid answer to be reported")
	}
	if cfg.Processing.AirPixels != -1 {
		t.Errorf("Expected air pixels -1, got %d", cfg.Processing.AirPixels)
	}
	if cfg.Processing.CropROI == nil || cfg.Processing.CropROI.Right != 30 {
		t.Errorf("Unexpected crop roi %v", cfg.Processing.CropROI)
	}
	// Input ended before ring removal
	if cfg.Processing.RingRemoval {
		t.Error("Expected ring removal to keep its default")
	}
}
