package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutronct/internal/models"
	"neutronct/pkg/config"
	"neutronct/pkg/reconstruction"
	"neutronct/pkg/tiffio"
	"neutronct/pkg/workflow"
)

func functions(wf *workflow.Workflow) []string {
	var out []string
	for _, task := range wf.Tasks {
		out = append(out, task.Function)
	}
	return out
}

func baseConfig(root string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Name = "sample"
	cfg.Paths.DataDir = filepath.Join(root, "ct")
	cfg.Paths.OBDirs = []string{filepath.Join(root, "ob")}
	cfg.Paths.WorkingDir = filepath.Join(root, "work")
	cfg.Paths.OutputDir = filepath.Join(root, "out")
	cfg.Patterns = config.Patterns{CT: "*.tiff", OB: "*.tiff", DC: "*.tiff"}
	return cfg
}

func TestFromConfigDefaults(t *testing.T) {
	wf := FromConfig(baseConfig("/data"))
	assert.Equal(t, []string{
		"dataio.load_data",
		"normalize.normalization",
		"corrections.intensity_fluctuation_correction",
		"transform.minus_log",
		"reconstruction.recon",
		"dataio.save_data",
	}, functions(wf))
	require.NoError(t, wf.Validate(workflow.DefaultRegistry()))

	_, hasDC := wf.Tasks[0].Inputs["dc_dir"]
	assert.False(t, hasDC)
	assert.Equal(t, "/data/work", wf.WorkingDir)
}

func TestFromConfigAllStages(t *testing.T) {
	cfg := baseConfig("/data")
	cfg.Paths.DCDirs = []string{"/data/dc"}
	cfg.Processing.GammaFilter = true
	cfg.Processing.BeamROI = &models.ROI{Top: 0, Left: 0, Bottom: 4, Right: 4}
	cfg.Processing.CropROI = &models.ROI{Top: 1, Left: 1, Bottom: 5, Right: 7}
	cfg.Processing.RingRemoval = true
	cfg.Processing.Smoothing = true
	cfg.Processing.Checkpoints = true

	wf := FromConfig(cfg)
	assert.Equal(t, []string{
		"dataio.load_data",
		"filters.gamma_filter",
		"normalize.normalization",
		"dataio.save_checkpoint",
		"corrections.normalize_roi",
		"transform.crop",
		"transform.minus_log",
		"corrections.remove_ring",
		"dataio.save_checkpoint",
		"reconstruction.recon",
		"filters.median_smoothing",
		"dataio.save_data",
	}, functions(wf))
	require.NoError(t, wf.Validate(workflow.DefaultRegistry()))
	assert.Equal(t, []string{"/data/dc"}, wf.Tasks[0].Inputs["dc_dir"])
	assert.Equal(t, "volume", wf.Tasks[10].Inputs["arrays"])
}

type fakeEngine struct {
	calls int
	req   reconstruction.Request
}

func (f *fakeEngine) Reconstruct(_ context.Context, req reconstruction.Request) (*models.Stack, error) {
	f.calls++
	f.req = req
	return req.Projections.Clone(), nil
}

func writeFrames(t *testing.T, dir, prefix string, n int, value float64) {
	t.Helper()
	frame := make([]float64, 8*6)
	for i := range frame {
		frame[i] = value
	}
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%04d.tiff", prefix, i))
		require.NoError(t, tiffio.WriteFile(path, frame, 8, 6, nil))
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root)
	cfg.Paths.DCDirs = []string{filepath.Join(root, "dc")}
	cfg.Processing.MaxWorkers = 2
	cfg.Processing.CropROI = &models.ROI{Top: 1, Left: 1, Bottom: 5, Right: 7}
	cfg.Processing.Checkpoints = true
	cfg.Processing.Smoothing = true
	writeFrames(t, cfg.Paths.DataDir, "ct", 4, 60)
	writeFrames(t, cfg.Paths.OBDirs[0], "ob", 2, 110)
	writeFrames(t, cfg.Paths.DCDirs[0], "dc", 2, 10)

	fake := &fakeEngine{}
	dir, err := Run(context.Background(), cfg, fake, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)

	// No angles in names or metadata, so they span angle_range
	require.Len(t, fake.req.Angles, 4)
	assert.InDelta(t, 3.14159265, fake.req.Angles[3], 1e-6)
	assert.Equal(t, 6, fake.req.Projections.Width)
	assert.Equal(t, 4, fake.req.Projections.Height)

	files, err := filepath.Glob(filepath.Join(dir, "sample_*.tiff"))
	require.NoError(t, err)
	assert.Len(t, files, 4)

	chkpts, err := filepath.Glob(filepath.Join(cfg.Paths.WorkingDir, "sample_*_chkpt_*"))
	require.NoError(t, err)
	assert.Len(t, chkpts, 2)
}

func TestRunInvalidConfig(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root)
	// Directories are never created
	_, err := Run(context.Background(), cfg, &fakeEngine{}, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrPathNotFound)

	require.NoError(t, os.MkdirAll(cfg.Paths.DataDir, 0755))
	require.NoError(t, os.MkdirAll(cfg.Paths.OBDirs[0], 0755))
	cfg.Processing.MaxWorkers = -2
	_, err = Run(context.Background(), cfg, &fakeEngine{}, zerolog.Nop())
	assert.ErrorIs(t, err, config.ErrInvalidWorkers)
}

func TestRunWithoutCommandFailsEarly(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root)
	cfg.Processing.Checkpoints = true
	writeFrames(t, cfg.Paths.DataDir, "ct", 2, 60)
	writeFrames(t, cfg.Paths.OBDirs[0], "ob", 1, 110)

	_, err := Run(context.Background(), cfg, reconstruction.NewCommandEngine(nil, zerolog.Nop()), zerolog.Nop())
	assert.ErrorIs(t, err, reconstruction.ErrNoCommand)

	chkpts, err := filepath.Glob(filepath.Join(cfg.Paths.WorkingDir, "*_chkpt_*"))
	require.NoError(t, err)
	assert.Empty(t, chkpts)
}
