package dataio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sbinet/npyio"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
	"neutronct/pkg/tiffio"
)

const (
	// DefaultSaveName prefixes output written without an explicit name
	DefaultSaveName = "save_data"

	// AnglesFilename is written next to a saved stack when angles are known
	AnglesFilename = "rot_angles.npy"

	timestampLayout = "20060102_150405"
)

// SaveData writes every frame of data as <name>_NNNNN.tiff into a new
// timestamped directory <outputBase>/<name>_<timestamp> and returns it.
// Angles, when given, are stored as a .npy array and as frame metadata.
func SaveData(data *models.Stack, outputBase, name string, angles []float64) (string, error) {
	if data.Empty() {
		return "", fmt.Errorf("no data to save")
	}
	if err := data.Validate(); err != nil {
		return "", err
	}
	if angles != nil && len(angles) != data.Depth {
		return "", fmt.Errorf("got %d angles for %d frames", len(angles), data.Depth)
	}
	if name == "" {
		name = DefaultSaveName
	}
	if outputBase == "" {
		outputBase = "."
	}

	dir, err := makeOutputDir(outputBase, name)
	if err != nil {
		return "", err
	}

	err = parallel.For(context.Background(), data.Depth, 0, func(_ context.Context, z int) error {
		var tags map[uint16]string
		if angles != nil {
			tags = map[uint16]string{
				tiffio.TagRotationActual: "RotationActual:" + strconv.FormatFloat(angles[z], 'f', -1, 64),
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%05d.tiff", name, z))
		return tiffio.WriteFile(path, data.Frame(z), data.Width, data.Height, tags)
	})
	if err != nil {
		return "", err
	}

	if angles != nil {
		if err := WriteAngles(filepath.Join(dir, AnglesFilename), angles); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// SaveCheckpoint saves an intermediate stack under the name <name>_chkpt
func SaveCheckpoint(data *models.Stack, outputBase, name string, angles []float64) (string, error) {
	if name == "" {
		name = DefaultSaveName
	}
	return SaveData(data, outputBase, name+"_chkpt", angles)
}

// makeOutputDir creates <base>/<name>_<timestamp>, adding a counter when
// the directory already exists
func makeOutputDir(base, name string) (string, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("failed to create output base: %w", err)
	}

	stem := filepath.Join(base, name+"_"+time.Now().Format(timestampLayout))
	dir := stem
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", stem, i)
	}
}

// WriteAngles stores angles as a 1-D .npy array
func WriteAngles(path string, angles []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create angles file: %w", err)
	}
	if err := npyio.Write(f, angles); err != nil {
		f.Close()
		return fmt.Errorf("failed to write angles: %w", err)
	}
	return f.Close()
}

// ReadAngles reads a .npy angles file written by SaveData
func ReadAngles(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var angles []float64
	if err := npyio.Read(f, &angles); err != nil {
		return nil, fmt.Errorf("failed to read angles: %w", err)
	}
	return angles, nil
}
