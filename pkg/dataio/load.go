package dataio

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
	"neutronct/pkg/tiffio"
)

// ErrUnsupportedFormat is returned for files that are neither TIFF nor FITS
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Dataset is a loaded scan
type Dataset struct {
	// CT holds the projections in acquisition order
	CT *models.Stack

	// OB holds the open beam (flat field) frames
	OB *models.Stack

	// DC holds the dark current frames. It is nil when none were given.
	DC *models.Stack

	// Angles holds the rotation angle of each projection in degrees.
	// It is nil when no angle could be extracted from the files.
	Angles []float64
}

// LoadOptions selects the scan to load either by explicit file lists or by
// directories plus patterns. The two modes cannot be mixed.
type LoadOptions struct {
	CTFiles []string
	OBFiles []string
	DCFiles []string

	CTDir     string
	OBDirs    []string
	DCDirs    []string
	CTPattern string
	OBPattern string
	DCPattern string

	// MaxWorkers is the number of parallel readers, 0 means all cores
	MaxWorkers int

	Logger zerolog.Logger
}

// LoadData loads ct, ob and dc stacks and extracts the rotation angles
func LoadData(ctx context.Context, opts LoadOptions) (*Dataset, error) {
	if opts.MaxWorkers < 0 {
		return nil, fmt.Errorf("max_workers must be >= 0, got %d", opts.MaxWorkers)
	}

	byFiles := len(opts.CTFiles) > 0 || len(opts.OBFiles) > 0 || len(opts.DCFiles) > 0
	byDir := opts.CTDir != ""

	var ctFiles, obFiles, dcFiles []string
	switch {
	case byFiles && byDir:
		return nil, fmt.Errorf("give either file lists or directories, not both")
	case byFiles:
		ctFiles, obFiles, dcFiles = opts.CTFiles, opts.OBFiles, opts.DCFiles
	case byDir:
		var err error
		ctFiles, obFiles, dcFiles, err = DiscoverFiles(DiscoverOptions{
			CTDir:     opts.CTDir,
			OBDirs:    opts.OBDirs,
			DCDirs:    opts.DCDirs,
			CTPattern: opts.CTPattern,
			OBPattern: opts.OBPattern,
			DCPattern: opts.DCPattern,
			Logger:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no ct files or ct directory given")
	}

	ds, loaded, err := loadByFileList(ctx, ctFiles, obFiles, dcFiles, opts.MaxWorkers, opts.Logger)
	if err != nil {
		return nil, err
	}

	// Angles follow the frames of CT, not the discovered file list
	ds.Angles, err = ExtractAngles(loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to extract rotation angles: %w", err)
	}
	return ds, nil
}

// loadByFileList loads the three stacks and returns the ct files that
// made it into the CT stack
func loadByFileList(ctx context.Context, ctFiles, obFiles, dcFiles []string, workers int, log zerolog.Logger) (*Dataset, []string, error) {
	if len(ctFiles) == 0 {
		return nil, nil, fmt.Errorf("ct file list is empty")
	}
	if len(obFiles) == 0 {
		return nil, nil, fmt.Errorf("ob file list is empty")
	}

	ds := &Dataset{}
	var (
		loaded []string
		err    error
	)
	if ds.CT, loaded, err = LoadFiles(ctx, ctFiles, workers, log.With().Str("kind", "ct").Logger()); err != nil {
		return nil, nil, err
	}
	if ds.OB, err = LoadImages(ctx, obFiles, workers, log.With().Str("kind", "ob").Logger()); err != nil {
		return nil, nil, err
	}
	if len(dcFiles) > 0 {
		if ds.DC, err = LoadImages(ctx, dcFiles, workers, log.With().Str("kind", "dc").Logger()); err != nil {
			return nil, nil, err
		}
	}
	return ds, loaded, nil
}

// LoadImages reads files into a stack using up to workers goroutines.
// Unreadable files are skipped with a warning. All frames must have the same shape.
func LoadImages(ctx context.Context, files []string, workers int, log zerolog.Logger) (*models.Stack, error) {
	stack, _, err := LoadFiles(ctx, files, workers, log)
	return stack, err
}

// LoadFiles is LoadImages that also returns the files whose frames were
// loaded, in stack order
func LoadFiles(ctx context.Context, files []string, workers int, log zerolog.Logger) (*models.Stack, []string, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no files to load")
	}
	for _, f := range files {
		switch normalizedExt(f) {
		case ".tiff", ".fits":
		default:
			return nil, nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
		}
	}

	type frame struct {
		pix           []float64
		width, height int
	}
	frames := make([]*frame, len(files))

	err := parallel.For(ctx, len(files), workers, func(_ context.Context, i int) error {
		pix, w, h, err := ReadImage(files[i])
		if err != nil {
			log.Warn().Err(err).Str("file", files[i]).Msg("skipping unreadable file")
			return nil
		}
		frames[i] = &frame{pix: pix, width: w, height: h}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var first *frame
	var (
		good   [][]float64
		loaded []string
	)
	for i, f := range frames {
		if f == nil {
			continue
		}
		if first == nil {
			first = f
		} else if f.width != first.width || f.height != first.height {
			return nil, nil, fmt.Errorf("%s is %dx%d, expected %dx%d", files[i], f.width, f.height, first.width, first.height)
		}
		good = append(good, f.pix)
		loaded = append(loaded, files[i])
	}
	if first == nil {
		return nil, nil, fmt.Errorf("none of the %d files could be read", len(files))
	}

	stack, err := models.StackFromFrames(good, first.width, first.height)
	if err != nil {
		return nil, nil, err
	}
	log.Info().
		Int("frames", stack.Depth).
		Str("shape", fmt.Sprintf("%dx%d", stack.Height, stack.Width)).
		Str("size", humanize.Bytes(uint64(stack.Len()*8))).
		Msg("loaded images")
	return stack, loaded, nil
}

// ReadImage decodes a single TIFF or FITS frame
func ReadImage(path string) ([]float64, int, int, error) {
	switch normalizedExt(path) {
	case ".tiff":
		img, err := tiffio.ReadFile(path)
		if err != nil {
			return nil, 0, 0, err
		}
		return img.Pix, img.Width, img.Height, nil
	case ".fits":
		return readFITS(path)
	default:
		return nil, 0, 0, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// readFITS reads the primary image HDU, applying BZERO and BSCALE
func readFITS(path string) ([]float64, int, int, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: primary HDU is not an image", path)
	}

	axes := img.Header().Axes()
	if len(axes) < 2 {
		return nil, 0, 0, fmt.Errorf("%s: expected a 2D image, got %d axes", path, len(axes))
	}
	for _, extra := range axes[2:] {
		if extra != 1 {
			return nil, 0, 0, fmt.Errorf("%s: expected a single frame, got axes %v", path, axes)
		}
	}
	width, height := axes[0], axes[1]

	pix := make([]float64, width*height)
	if err := img.Read(&pix); err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, err)
	}

	bzero := cardFloat(img.Header(), "BZERO", 0)
	bscale := cardFloat(img.Header(), "BSCALE", 1)
	if bzero != 0 || bscale != 1 {
		for i := range pix {
			pix[i] = pix[i]*bscale + bzero
		}
	}
	return pix, width, height, nil
}

func cardFloat(hdr *fitsio.Header, key string, def float64) float64 {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
