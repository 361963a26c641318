package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutronct/internal/models"
	"neutronct/pkg/config"
)

func openTestStore(t *testing.T) *Bolt {
	t.Helper()

	b, err := Open(filepath.Join(t.TempDir(), "nested", "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestConfigs(t *testing.T) {
	b := openTestStore(t)

	cfg := config.DefaultConfig()
	cfg.Name = "sample"
	cfg.Paths.OBDirs = []string{"/ob"}
	cfg.Processing.CropROI = &models.ROI{Top: 1, Left: 2, Bottom: 3, Right: 4}
	require.NoError(t, b.SaveConfig("beamline", cfg))
	require.NoError(t, b.SaveConfig("alpha", config.DefaultConfig()))

	loaded, err := b.LoadConfig("beamline")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	names, err := b.ListConfigs()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beamline"}, names)

	require.NoError(t, b.DeleteConfig("alpha"))
	_, err = b.LoadConfig("alpha")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, b.DeleteConfig("alpha"), ErrNotFound)

	assert.Error(t, b.SaveConfig("", cfg))
}

func TestRuns(t *testing.T) {
	b := openTestStore(t)
	cfg := config.DefaultConfig()

	first := NewRun("beamline", cfg)
	first.StartedAt = time.Now().Add(-time.Hour)
	require.NoError(t, b.RecordRun(first))

	second := NewRun("", cfg)
	require.NoError(t, b.RecordRun(second))
	second.Finish("", errors.New("engine failed"))
	require.NoError(t, b.RecordRun(second))

	first.Finish("/out/sample", nil)
	require.NoError(t, b.RecordRun(first))

	runs, err := b.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "engine failed", runs[0].Error)
	assert.Equal(t, StatusSucceeded, runs[1].Status)
	assert.Equal(t, "/out/sample", runs[1].OutputDir)
	assert.Greater(t, runs[1].Duration(), time.Duration(0))

	got, err := b.GetRun(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "beamline", got.Profile)

	_, err = b.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, b.RecordRun(&Run{}))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bolt")

	b, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, b.SaveConfig("kept", config.DefaultConfig()))
	require.NoError(t, b.Close())

	b, err = Open(path)
	require.NoError(t, err)
	defer b.Close()

	names, err := b.ListConfigs()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, names)
}
