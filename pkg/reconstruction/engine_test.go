package reconstruction

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neutronct/internal/models"
	"neutronct/pkg/dataio"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	proj := models.NewStack(4, 3, 2)
	for i := range proj.Data {
		proj.Data[i] = float64(i) / 4
	}
	return Request{
		Projections: proj,
		Angles:      []float64{0, 3.14},
		Center:      -1,
		WorkingDir:  t.TempDir(),
		MaxWorkers:  2,
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRenderArgs(t *testing.T) {
	args, err := RenderArgs([]string{"recon", "--in={{.Input}}", "--center={{.Center}}", "{{if .RingRemoval}}--rings{{end}}"},
		TemplateData{Input: "/tmp/p", Center: 12.5, RingRemoval: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"recon", "--in=/tmp/p", "--center=12.5", "--rings"}, args)

	_, err = RenderArgs([]string{"{{.Missing}}"}, TemplateData{})
	assert.Error(t, err)

	_, err = RenderArgs([]string{"{{.Input"}, TemplateData{})
	assert.Error(t, err)
}

func TestReconstructNoCommand(t *testing.T) {
	e := NewCommandEngine(nil, zerolog.Nop())
	_, err := e.Reconstruct(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrNoCommand)
}

func TestReconstructAngleMismatch(t *testing.T) {
	req := testRequest(t)
	req.Angles = req.Angles[:1]
	e := NewCommandEngine([]string{"true"}, zerolog.Nop())
	_, err := e.Reconstruct(context.Background(), req)
	assert.Error(t, err)
}

func TestReconstructRunsCommand(t *testing.T) {
	requireShell(t)

	var logs bytes.Buffer
	e := NewCommandEngine([]string{"sh", "-c", "echo reconstructing {{.NumAngles}}; cp {{.Input}}/*.tiff {{.Output}}/"},
		zerolog.New(&logs))
	req := testRequest(t)

	vol, err := e.Reconstruct(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.Projections.Data, vol.Data)
	assert.Contains(t, logs.String(), "reconstructing 2")

	scratch, err := filepath.Glob(filepath.Join(req.WorkingDir, "recon_*", "angles.npy"))
	require.NoError(t, err)
	require.Len(t, scratch, 1)
	angles, err := dataio.ReadAngles(scratch[0])
	require.NoError(t, err)
	assert.Equal(t, req.Angles, angles)
}

func TestReconstructCommandFails(t *testing.T) {
	requireShell(t)

	e := NewCommandEngine([]string{"sh", "-c", "echo broken >&2; exit 3"}, zerolog.Nop())
	_, err := e.Reconstruct(context.Background(), testRequest(t))
	assert.Error(t, err)
}

func TestReconstructNoOutput(t *testing.T) {
	requireShell(t)

	e := NewCommandEngine([]string{"sh", "-c", "true"}, zerolog.Nop())
	_, err := e.Reconstruct(context.Background(), testRequest(t))
	assert.ErrorContains(t, err, "no slices")
}

func TestReconstructEnv(t *testing.T) {
	requireShell(t)

	marker := filepath.Join(t.TempDir(), "marker")
	e := NewCommandEngine([]string{"sh", "-c", `touch "$MARKER"; cp {{.Input}}/*.tiff {{.Output}}/`}, zerolog.Nop())
	e.Env = []string{"MARKER=" + marker}
	_, err := e.Reconstruct(context.Background(), testRequest(t))
	require.NoError(t, err)
	_, err = os.Stat(marker)
	assert.NoError(t, err)
}

func TestReconstructLongOutputLines(t *testing.T) {
	requireShell(t)

	var logs bytes.Buffer
	script := `head -c 70000 /dev/zero | tr '\0' a; echo; head -c 200000 /dev/zero | tr '\0' b; echo; cp {{.Input}}/*.tiff {{.Output}}/`
	e := NewCommandEngine([]string{"sh", "-c", script}, zerolog.New(&logs))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req := testRequest(t)
	vol, err := e.Reconstruct(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.Projections.Data, vol.Data)

	counts := map[rune]int{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var event struct {
			Stream  string `json:"stream"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		if event.Stream != "stdout" || event.Message == "" {
			continue
		}
		assert.LessOrEqual(t, len(event.Message), maxLogLine)
		counts[rune(event.Message[0])] += len(event.Message)
	}
	assert.Equal(t, 70000, counts['a'])
	assert.Equal(t, 200000, counts['b'])
}

func TestReconstructCancelWithOrphanedChild(t *testing.T) {
	requireShell(t)

	// The subshell keeps both pipes open after sh itself is killed
	e := NewCommandEngine([]string{"sh", "-c", "sleep 5; true"}, zerolog.Nop())
	e.WaitDelay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := e.Reconstruct(ctx, testRequest(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestLineWriterSplitsLines(t *testing.T) {
	var logs bytes.Buffer
	var mu sync.Mutex
	w := &lineWriter{log: zerolog.New(&logs), stream: "stdout", mu: &mu}

	_, err := w.Write([]byte("first\r\nsec"))
	require.NoError(t, err)
	_, err = w.Write([]byte("ond\ntail"))
	require.NoError(t, err)
	w.Flush()

	out := logs.String()
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.Contains(t, out, `"message":"first"`)
	assert.Contains(t, out, `"message":"second"`)
	assert.Contains(t, out, `"message":"tail"`)
}
