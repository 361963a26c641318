// Package pipeline turns a session configuration into the fixed
// preprocessing and reconstruction sequence and runs it.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"neutronct/internal/logger"
	"neutronct/pkg/config"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/workflow"
)

// Names bound in the workflow data context
const (
	keyCT     = "ct"
	keyOB     = "ob"
	keyDC     = "dc"
	keyAngles = "rot_angles"
	keyVolume = "volume"
	keySaved  = "saved_dir"
)

// FromConfig builds the workflow for cfg: load, optional gamma filter,
// normalization, beam correction by ROI or air pixels, optional crop,
// minus-log and ring removal, reconstruction, optional smoothing of the
// slices and save. Checkpoints, when enabled, follow normalization and the
// last preprocessing stage.
func FromConfig(cfg *config.Config) *workflow.Workflow {
	p := cfg.Processing
	wf := &workflow.Workflow{
		Instrument: cfg.Instrument,
		IPTS:       cfg.IPTS,
		Name:       cfg.Name,
		WorkingDir: cfg.Paths.WorkingDir,
		OutputDir:  cfg.Paths.OutputDir,
	}
	add := func(name, function string, inputs map[string]any, outputs ...string) {
		if _, ok := inputs["max_workers"]; !ok && needsWorkers(function) {
			inputs["max_workers"] = p.MaxWorkers
		}
		wf.Tasks = append(wf.Tasks, workflow.Task{Name: name, Function: function, Inputs: inputs, Outputs: outputs})
	}
	checkpoint := func(stage string) {
		if !p.Checkpoints {
			return
		}
		add("checkpoint_"+stage, "dataio.save_checkpoint", map[string]any{
			"data":       keyCT,
			"name":       cfg.Name + "_" + stage,
			"rot_angles": keyAngles,
		})
	}

	load := map[string]any{
		"ct_dir":     cfg.Paths.DataDir,
		"ob_dir":     cfg.Paths.OBDirs,
		"ct_fnmatch": cfg.Patterns.CT,
		"ob_fnmatch": cfg.Patterns.OB,
		"dc_fnmatch": cfg.Patterns.DC,
	}
	if len(cfg.Paths.DCDirs) > 0 {
		load["dc_dir"] = cfg.Paths.DCDirs
	}
	add("load", "dataio.load_data", load, keyCT, keyOB, keyDC, keyAngles)

	if p.GammaFilter {
		add("gamma_filter", "filters.gamma_filter", map[string]any{
			"arrays":    keyCT,
			"threshold": p.GammaThreshold,
		}, keyCT)
	}

	add("normalization", "normalize.normalization", map[string]any{
		"arrays":  keyCT,
		"flats":   keyOB,
		"darks":   keyDC,
		"average": p.NormalizeAverage,
		"cutoff":  p.Cutoff,
	}, keyCT)
	checkpoint("normalized")

	switch {
	case p.BeamROI != nil:
		add("normalize_roi", "corrections.normalize_roi", map[string]any{
			"ct":  keyCT,
			"roi": p.BeamROI.Slice(),
		}, keyCT)
	case p.IFCEnabled:
		add("intensity_fluctuation_correction", "corrections.intensity_fluctuation_correction", map[string]any{
			"ct":         keyCT,
			"air_pixels": p.AirPixels,
			"sigma":      p.Sigma,
		}, keyCT)
	}

	if p.CropROI != nil {
		add("crop", "transform.crop", map[string]any{
			"arrays":     keyCT,
			"crop_limit": p.CropROI.Slice(),
		}, keyCT)
	}
	if p.MinusLog {
		add("minus_log", "transform.minus_log", map[string]any{"arrays": keyCT}, keyCT)
	}
	if p.RingRemoval {
		add("remove_ring", "corrections.remove_ring", map[string]any{
			"arrays": keyCT,
			"kernel": p.RingKernel,
		}, keyCT)
	}
	checkpoint("preprocessed")

	add("recon", "reconstruction.recon", map[string]any{
		"arrays":      keyCT,
		"theta":       keyAngles,
		"center":      cfg.Reconstruction.Center,
		"angle_range": cfg.Reconstruction.AngleRange,
	}, keyVolume)

	if p.Smoothing {
		add("median_smoothing", "filters.median_smoothing", map[string]any{
			"arrays": keyVolume,
			"kernel": p.SmoothingKernel,
		}, keyVolume)
	}

	add("save", "dataio.save_data", map[string]any{"data": keyVolume}, keySaved)
	return wf
}

func needsWorkers(function string) bool {
	switch function {
	case "transform.crop", "transform.minus_log", "dataio.save_data", "dataio.save_checkpoint":
		return false
	}
	return true
}

// Run validates cfg, runs its workflow with the given reconstruction
// engine and returns the directory the volume was saved to
func Run(ctx context.Context, cfg *config.Config, engine reconstruction.Engine, log zerolog.Logger) (string, error) {
	if err := cfg.Validate(true); err != nil {
		return "", fmt.Errorf("invalid configuration: %w", err)
	}
	// Fail before preprocessing rather than at the recon task
	if ce, ok := engine.(*reconstruction.CommandEngine); ok && len(ce.Command) == 0 {
		return "", reconstruction.ErrNoCommand
	}

	wf := FromConfig(cfg)
	log.Info().
		Str("instrument", cfg.Instrument).
		Str("ipts", cfg.IPTS).
		Str("name", cfg.Name).
		Int("tasks", len(wf.Tasks)).
		Msg("starting CT session")

	runner := workflow.NewEngine(nil, workflow.Env{
		Logger:     logger.Component(log, "workflow"),
		MaxWorkers: cfg.Processing.MaxWorkers,
		Recon:      engine,
	})
	data, err := runner.Run(ctx, wf)
	if err != nil {
		return "", err
	}

	dir, ok := data[keySaved].(string)
	if !ok {
		return "", fmt.Errorf("workflow did not save the volume")
	}
	return dir, nil
}
