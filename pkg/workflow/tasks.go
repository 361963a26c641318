package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"neutronct/internal/models"
	"neutronct/pkg/corrections"
	"neutronct/pkg/dataio"
	"neutronct/pkg/filters"
	"neutronct/pkg/normalize"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/transform"
)

// Env is the shared context the built-in functions run in
type Env struct {
	Logger zerolog.Logger

	// MaxWorkers is the default worker count, overridable per task
	MaxWorkers int

	// Recon performs reconstruction.recon
	Recon reconstruction.Engine

	// Filled from the workflow document by Run
	Instrument string
	IPTS       string
	Name       string
	WorkingDir string
	OutputDir  string
}

var builtins = map[string]TaskFunc{
	"dataio.load_data":                             loadData,
	"dataio.save_data":                             saveData,
	"dataio.save_checkpoint":                       saveCheckpoint,
	"filters.gamma_filter":                         gammaFilter,
	"filters.median_smoothing":                     medianSmoothing,
	"normalize.normalization":                      normalization,
	"corrections.intensity_fluctuation_correction": intensityFluctuation,
	"corrections.normalize_roi":                    normalizeROI,
	"corrections.remove_ring":                      removeRing,
	"transform.crop":                               crop,
	"transform.minus_log":                          minusLog,
	"reconstruction.recon":                         recon,
}

func workers(env *Env, in Params) (int, error) {
	return in.Int("max_workers", env.MaxWorkers)
}

// loadData returns ct, ob, dc and the rotation angles in degrees
func loadData(ctx context.Context, env *Env, in Params) ([]any, error) {
	var (
		opts dataio.LoadOptions
		err  error
	)
	opts.Logger = env.Logger
	if opts.MaxWorkers, err = workers(env, in); err != nil {
		return nil, err
	}
	if opts.CTFiles, err = in.Strings("ct_files"); err != nil {
		return nil, err
	}
	if opts.OBFiles, err = in.Strings("ob_files"); err != nil {
		return nil, err
	}
	if opts.DCFiles, err = in.Strings("dc_files"); err != nil {
		return nil, err
	}
	if opts.CTDir, err = in.String("ct_dir", ""); err != nil {
		return nil, err
	}
	if opts.OBDirs, err = in.Strings("ob_dir"); err != nil {
		return nil, err
	}
	if opts.DCDirs, err = in.Strings("dc_dir"); err != nil {
		return nil, err
	}
	if opts.CTPattern, err = in.String("ct_fnmatch", "*"); err != nil {
		return nil, err
	}
	if opts.OBPattern, err = in.String("ob_fnmatch", "*"); err != nil {
		return nil, err
	}
	if opts.DCPattern, err = in.String("dc_fnmatch", "*"); err != nil {
		return nil, err
	}

	ds, err := dataio.LoadData(ctx, opts)
	if err != nil {
		return nil, err
	}
	return []any{ds.CT, ds.OB, ds.DC, ds.Angles}, nil
}

func saveInputs(env *Env, in Params, defaultBase string) (*models.Stack, string, string, []float64, error) {
	data, err := in.Stack("data")
	if err != nil {
		return nil, "", "", nil, err
	}
	base, err := in.String("outputbase", defaultBase)
	if err != nil {
		return nil, "", "", nil, err
	}
	name, err := in.String("name", env.Name)
	if err != nil {
		return nil, "", "", nil, err
	}
	angles, err := in.Floats("rot_angles")
	if err != nil {
		return nil, "", "", nil, err
	}
	return data, base, name, angles, nil
}

// saveData returns the directory it wrote to
func saveData(_ context.Context, env *Env, in Params) ([]any, error) {
	data, base, name, angles, err := saveInputs(env, in, env.OutputDir)
	if err != nil {
		return nil, err
	}
	dir, err := dataio.SaveData(data, base, name, angles)
	if err != nil {
		return nil, err
	}
	env.Logger.Info().Str("dir", dir).Msg("saved data")
	return []any{dir}, nil
}

func saveCheckpoint(_ context.Context, env *Env, in Params) ([]any, error) {
	data, base, name, angles, err := saveInputs(env, in, env.WorkingDir)
	if err != nil {
		return nil, err
	}
	dir, err := dataio.SaveCheckpoint(data, base, name, angles)
	if err != nil {
		return nil, err
	}
	env.Logger.Info().Str("dir", dir).Msg("saved checkpoint")
	return []any{dir}, nil
}

func gammaFilter(ctx context.Context, env *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	threshold, err := in.Float("threshold", 0)
	if err != nil {
		return nil, err
	}
	kernel, err := in.Int("median_kernel", 3)
	if err != nil {
		return nil, err
	}
	w, err := workers(env, in)
	if err != nil {
		return nil, err
	}
	out, err := filters.GammaFilter(ctx, arrays, threshold, kernel, w)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func medianSmoothing(ctx context.Context, env *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	kernel, err := in.Int("kernel", 3)
	if err != nil {
		return nil, err
	}
	w, err := workers(env, in)
	if err != nil {
		return nil, err
	}
	out, err := filters.MedianSmooth(ctx, arrays, kernel, w)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func normalization(ctx context.Context, env *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	flats, err := in.Stack("flats")
	if err != nil {
		return nil, err
	}
	darks, err := in.OptionalStack("darks")
	if err != nil {
		return nil, err
	}

	var opts normalize.Options
	if opts.Average, err = in.String("average", normalize.AverageMean); err != nil {
		return nil, err
	}
	if opts.Cutoff, err = in.Float("cutoff", 0); err != nil {
		return nil, err
	}
	if opts.MaxWorkers, err = workers(env, in); err != nil {
		return nil, err
	}
	out, err := normalize.Normalize(ctx, arrays, flats, darks, opts)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func intensityFluctuation(ctx context.Context, env *Env, in Params) ([]any, error) {
	ct, err := in.Stack("ct")
	if err != nil {
		return nil, err
	}
	air, err := in.Int("air_pixels", corrections.DefaultAirPixels)
	if err != nil {
		return nil, err
	}
	sigma, err := in.Float("sigma", corrections.DefaultSigma)
	if err != nil {
		return nil, err
	}
	w, err := workers(env, in)
	if err != nil {
		return nil, err
	}
	out, err := corrections.IntensityFluctuation(ctx, ct, air, sigma, w)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func normalizeROI(ctx context.Context, env *Env, in Params) ([]any, error) {
	ct, err := in.Stack("ct")
	if err != nil {
		return nil, err
	}
	roi, err := in.ROI("roi")
	if err != nil {
		return nil, err
	}
	if roi == nil {
		roi = &corrections.DefaultBeamROI
	}
	w, err := workers(env, in)
	if err != nil {
		return nil, err
	}
	out, err := corrections.NormalizeROI(ctx, ct, *roi, w)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func removeRing(ctx context.Context, env *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	kernel, err := in.Int("kernel", corrections.DefaultRingKernel)
	if err != nil {
		return nil, err
	}
	w, err := workers(env, in)
	if err != nil {
		return nil, err
	}
	out, err := corrections.RemoveRings(ctx, arrays, kernel, w)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func crop(_ context.Context, _ *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	roi, err := in.ROI("crop_limit")
	if err != nil {
		return nil, err
	}
	if roi == nil {
		return nil, fmt.Errorf("crop_limit is required")
	}
	out, err := transform.Crop(arrays, *roi)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

func minusLog(_ context.Context, _ *Env, in Params) ([]any, error) {
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	out, err := transform.MinusLog(arrays)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

// recon takes theta in degrees. Missing angles are spread evenly over
// angle_range.
func recon(ctx context.Context, env *Env, in Params) ([]any, error) {
	if env.Recon == nil {
		return nil, fmt.Errorf("no reconstruction engine configured")
	}
	arrays, err := in.Stack("arrays")
	if err != nil {
		return nil, err
	}
	theta, err := in.Floats("theta")
	if err != nil {
		return nil, err
	}
	angleRange, err := in.Float("angle_range", 180)
	if err != nil {
		return nil, err
	}
	if len(theta) == 0 || transform.HasNaN(theta) {
		env.Logger.Warn().Float64("range", angleRange).Msg("rotation angles unknown, using evenly spaced angles")
		theta = transform.EvenAngles(arrays.Depth, angleRange)
	}

	req := reconstruction.Request{
		Projections: arrays,
		Angles:      transform.Radians(theta),
		WorkingDir:  env.WorkingDir,
	}
	if req.Center, err = in.Float("center", -1); err != nil {
		return nil, err
	}
	if req.RingRemoval, err = in.Bool("ring_removal", false); err != nil {
		return nil, err
	}
	if req.Smoothing, err = in.Bool("smoothing", false); err != nil {
		return nil, err
	}
	if req.MaxWorkers, err = workers(env, in); err != nil {
		return nil, err
	}

	vol, err := env.Recon.Reconstruct(ctx, req)
	if err != nil {
		return nil, err
	}
	return []any{vol}, nil
}
