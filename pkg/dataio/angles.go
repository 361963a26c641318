package dataio

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"

	"neutronct/pkg/tiffio"
)

// Projection file names carry the angle as two 3-digit groups:
// 20191030_sample_0070_300_440_0520.tiff is at 300.440 degrees
var angleFilenamePattern = regexp.MustCompile(`^\d{8}_\S*_\d{4}_(\d{3})_(\d{3})_\d*\.(?:tiff?|fits)$`)

// AngleFromFilename extracts the rotation angle in degrees from a projection file name
func AngleFromFilename(path string) (float64, bool) {
	m := angleFilenamePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	angle, err := strconv.ParseFloat(m[1]+"."+m[2], 64)
	if err != nil {
		return 0, false
	}
	return angle, true
}

// AngleFromTIFFMetadata reads the RotationActual tag of a TIFF file
func AngleFromTIFFMetadata(path string) (float64, bool) {
	meta, err := tiffio.ReadMetadata(path)
	if err != nil {
		return 0, false
	}
	return meta.Float(tiffio.TagRotationActual)
}

// ExtractAngles returns the rotation angle in degrees of every file.
// The file name is tried first, then the TIFF metadata. Files without an
// angle get NaN. When no file has an angle the result is nil.
func ExtractAngles(files []string) ([]float64, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to extract rotation angles from")
	}

	angles := make([]float64, len(files))
	found := false
	for i, f := range files {
		if a, ok := AngleFromFilename(f); ok {
			angles[i] = a
			found = true
			continue
		}

		switch normalizedExt(f) {
		case ".tiff":
			if a, ok := AngleFromTIFFMetadata(f); ok {
				angles[i] = a
				found = true
			} else {
				angles[i] = math.NaN()
			}
		case ".fits":
			angles[i] = math.NaN()
		default:
			return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
		}
	}

	if !found {
		return nil, nil
	}
	return angles, nil
}
