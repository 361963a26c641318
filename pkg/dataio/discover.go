// Package dataio discovers, loads and saves the radiograph stacks of a CT
// scan: projections (ct), open beams (ob) and dark currents (dc).
package dataio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"neutronct/pkg/tiffio"
)

// Metadata keys an open beam must share with the projections
var openBeamKeys = []string{
	"ManufacturerStr",
	"ExposureTime",
	"MotSlitHR.RBV",
	"MotSlitHL.RBV",
	"MotSlitVT.RBV",
	"MotSlitVB.RBV",
}

// Metadata keys a dark current must share with the projections
var darkCurrentKeys = []string{
	"ManufacturerStr",
	"ExposureTime",
}

// ErrDirNotFound is returned when a required input directory is missing
var ErrDirNotFound = errors.New("directory does not exist")

// DiscoverOptions selects the files of a scan from the directory layout
type DiscoverOptions struct {
	// CTDir holds the projections
	CTDir string

	// OBDirs and DCDirs hold the open beams and dark currents.
	// DCDirs may be empty.
	OBDirs []string
	DCDirs []string

	// CTPattern, OBPattern and DCPattern are fnmatch style globs.
	// An empty OB or DC pattern selects files by matching their metadata
	// against the first projection.
	CTPattern string
	OBPattern string
	DCPattern string

	Logger zerolog.Logger
}

// ListFiles returns the regular files in dir whose name matches pattern, sorted
func ListFiles(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// DiscoverFiles resolves the ct, ob and dc file lists of a scan
func DiscoverFiles(opts DiscoverOptions) ([]string, []string, []string, error) {
	log := opts.Logger

	if !isDir(opts.CTDir) {
		return nil, nil, nil, fmt.Errorf("ct_dir %s: %w", opts.CTDir, ErrDirNotFound)
	}

	obDirs, err := existingDirs("ob_dir", opts.OBDirs, true, log)
	if err != nil {
		return nil, nil, nil, err
	}

	var dcDirs []string
	if len(opts.DCDirs) == 0 {
		log.Info().Msg("dc_dir is None, ignoring")
	} else {
		dcDirs, err = existingDirs("dc_dir", opts.DCDirs, false, log)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	ctFiles, err := ListFiles(opts.CTDir, opts.CTPattern)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(ctFiles) == 0 {
		log.Warn().Str("dir", opts.CTDir).Str("pattern", opts.CTPattern).Msg("no ct files found")
		return []string{}, []string{}, []string{}, nil
	}

	obFiles, err := collect(obDirs, opts.OBPattern, ctFiles[0], openBeamKeys)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to collect open beams: %w", err)
	}
	dcFiles, err := collect(dcDirs, opts.DCPattern, ctFiles[0], darkCurrentKeys)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to collect dark currents: %w", err)
	}

	log.Info().
		Int("ct", len(ctFiles)).
		Int("ob", len(obFiles)).
		Int("dc", len(dcFiles)).
		Msg("discovered scan files")

	return ctFiles, obFiles, dcFiles, nil
}

// existingDirs drops missing directories from a list. A single required
// directory that does not exist is an error.
func existingDirs(label string, dirs []string, required bool, log zerolog.Logger) ([]string, error) {
	if required && len(dirs) == 0 {
		return nil, fmt.Errorf("%s is required", label)
	}
	if required && len(dirs) == 1 {
		if !isDir(dirs[0]) {
			return nil, fmt.Errorf("%s %s: %w", label, dirs[0], ErrDirNotFound)
		}
		return dirs, nil
	}

	var out []string
	for _, d := range dirs {
		if !isDir(d) {
			log.Warn().Msgf("%s does not exist, ignoring", d)
			continue
		}
		out = append(out, d)
	}
	if required && len(out) == 0 {
		return nil, fmt.Errorf("none of the %s entries exist", label)
	}
	return out, nil
}

// collect lists the files of every dir, by pattern or by metadata match
func collect(dirs []string, pattern, reference string, keys []string) ([]string, error) {
	files := []string{}
	if len(dirs) == 0 {
		return files, nil
	}

	if pattern != "" {
		for _, d := range dirs {
			found, err := ListFiles(d, pattern)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		}
		return files, nil
	}

	ext := normalizedExt(reference)
	if ext != ".tiff" {
		return nil, fmt.Errorf("metadata matching requires TIFF projections, got %s", filepath.Ext(reference))
	}
	refMeta, err := tiffio.ReadMetadata(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", reference, err)
	}
	refProps := refMeta.Properties()

	for _, d := range dirs {
		candidates, err := ListFiles(d, "*")
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			if normalizedExt(c) != ext {
				continue
			}
			meta, err := tiffio.ReadMetadata(c)
			if err != nil {
				continue
			}
			if propertiesMatch(refProps, meta.Properties(), keys) {
				files = append(files, c)
			}
		}
	}
	return files, nil
}

// propertiesMatch compares the listed keys, numerically when both values parse
func propertiesMatch(a, b map[string]string, keys []string) bool {
	for _, k := range keys {
		va, okA := a[k]
		vb, okB := b[k]
		if okA != okB {
			return false
		}
		if !okA {
			continue
		}
		fa, errA := strconv.ParseFloat(va, 64)
		fb, errB := strconv.ParseFloat(vb, 64)
		if errA == nil && errB == nil {
			if math.Abs(fa-fb) > 1e-6*math.Max(1, math.Abs(fa)) {
				return false
			}
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

func normalizedExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".tif":
		return ".tiff"
	case ".fit":
		return ".fits"
	}
	return ext
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
