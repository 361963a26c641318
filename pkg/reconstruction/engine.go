// Package reconstruction hands preprocessed projections to a tomographic
// reconstruction engine and collects the reconstructed volume.
package reconstruction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
	"neutronct/pkg/dataio"
	"neutronct/pkg/tiffio"
)

// ErrNoCommand is returned when the engine has no command to run
var ErrNoCommand = errors.New("no reconstruction command configured")

const (
	// DefaultWaitDelay bounds how long Reconstruct waits for the output
	// pipes to close after the command exits or is killed
	DefaultWaitDelay = 5 * time.Second

	maxLogLine = 4096
)

// Request holds everything an engine needs to reconstruct one volume
type Request struct {
	// Projections is the preprocessed stack, one frame per angle
	Projections *models.Stack

	// Angles are the rotation angles in radians, one per projection
	Angles []float64

	// Center is the rotation axis in pixels, negative lets the engine decide
	Center float64

	// RingRemoval asks the engine to apply its own ring artifact filter
	RingRemoval bool

	// Smoothing asks the engine to smooth the reconstructed slices
	Smoothing bool

	// WorkingDir receives the scratch files of the run
	WorkingDir string

	// MaxWorkers bounds the parallel file writers and readers
	MaxWorkers int
}

// Engine reconstructs a volume from projections
type Engine interface {
	Reconstruct(ctx context.Context, req Request) (*models.Stack, error)
}

// TemplateData is the value each command argument template is executed with
type TemplateData struct {
	Input       string // directory of proj_NNNNN.tiff files
	AnglesFile  string // angles.npy, radians
	Output      string // directory the command writes slices to
	Center      float64
	RingRemoval bool
	Smoothing   bool
	Width       int
	Height      int
	NumAngles   int
}

// CommandEngine runs an external reconstruction program. Projections are
// written as TIFF files with an angles.npy next to them, every argument of
// Command is rendered as a text/template over TemplateData, and the TIFF
// files found in the output directory afterwards form the volume in name order.
type CommandEngine struct {
	Command []string
	Logger  zerolog.Logger

	// Env is appended to the current environment of the command
	Env []string

	// WaitDelay overrides DefaultWaitDelay when positive
	WaitDelay time.Duration
}

// NewCommandEngine creates a CommandEngine for the given argument template
func NewCommandEngine(command []string, log zerolog.Logger) *CommandEngine {
	return &CommandEngine{Command: command, Logger: log}
}

// Reconstruct implements Engine
func (e *CommandEngine) Reconstruct(ctx context.Context, req Request) (*models.Stack, error) {
	if len(e.Command) == 0 {
		return nil, ErrNoCommand
	}
	if req.Projections.Empty() {
		return nil, fmt.Errorf("no projections to reconstruct")
	}
	if len(req.Angles) != req.Projections.Depth {
		return nil, fmt.Errorf("got %d angles for %d projections", len(req.Angles), req.Projections.Depth)
	}

	data, err := e.stage(ctx, req)
	if err != nil {
		return nil, err
	}

	args, err := RenderArgs(e.Command, data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.Logger.Info().Str("command", strings.Join(args, " ")).Msg("starting reconstruction")
	if err := e.run(ctx, args); err != nil {
		return nil, err
	}
	e.Logger.Info().Dur("elapsed", time.Since(start)).Msg("reconstruction finished")

	files, err := dataio.ListFiles(data.Output, "*.tif*")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("reconstruction wrote no slices to %s", data.Output)
	}
	return dataio.LoadImages(ctx, files, req.MaxWorkers, e.Logger)
}

// stage writes the projections and angles into a fresh scratch directory
func (e *CommandEngine) stage(ctx context.Context, req Request) (TemplateData, error) {
	base := req.WorkingDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return TemplateData{}, fmt.Errorf("failed to create working dir: %w", err)
	}
	scratch, err := os.MkdirTemp(base, "recon_")
	if err != nil {
		return TemplateData{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	data := TemplateData{
		Input:       filepath.Join(scratch, "projections"),
		AnglesFile:  filepath.Join(scratch, "angles.npy"),
		Output:      filepath.Join(scratch, "slices"),
		Center:      req.Center,
		RingRemoval: req.RingRemoval,
		Smoothing:   req.Smoothing,
		Width:       req.Projections.Width,
		Height:      req.Projections.Height,
		NumAngles:   req.Projections.Depth,
	}
	for _, dir := range []string{data.Input, data.Output} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return TemplateData{}, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	proj := req.Projections
	err = parallel.For(ctx, proj.Depth, req.MaxWorkers, func(_ context.Context, z int) error {
		path := filepath.Join(data.Input, fmt.Sprintf("proj_%05d.tiff", z))
		return tiffio.WriteFile(path, proj.Frame(z), proj.Width, proj.Height, nil)
	})
	if err != nil {
		return TemplateData{}, fmt.Errorf("failed to write projections: %w", err)
	}
	if err := dataio.WriteAngles(data.AnglesFile, req.Angles); err != nil {
		return TemplateData{}, err
	}
	return data, nil
}

// run executes the command and streams its output to the log line by line
func (e *CommandEngine) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var mu sync.Mutex
	stdout := &lineWriter{log: e.Logger, stream: "stdout", mu: &mu}
	stderr := &lineWriter{log: e.Logger, stream: "stderr", mu: &mu}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", args[0], err)
	}

	err := cmd.Wait()
	stdout.Flush()
	stderr.Flush()
	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil {
		e.Logger.Warn().Msg("reconstruction command exited but left its output open")
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reconstruction command failed: %w", err)
	}
	return nil
}

// lineWriter logs every complete line written to it. Lines longer than
// maxLogLine are logged in pieces. Writers sharing mu never log concurrently.
type lineWriter struct {
	log    zerolog.Logger
	stream string
	mu     *sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLogLine {
		w.emit(w.buf[:maxLogLine])
		w.buf = w.buf[maxLogLine:]
	}
	w.buf = append(w.buf[:0:0], w.buf...)
	return len(p), nil
}

// Flush logs any trailing partial line
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log.Info().Str("stream", w.stream).Msg(string(bytes.TrimRight(line, "\r")))
}

// RenderArgs executes every argument as a template over data
func RenderArgs(command []string, data TemplateData) ([]string, error) {
	args := make([]string, len(command))
	for i, arg := range command {
		tmpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid command argument %q: %w", arg, err)
		}
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("failed to render argument %q: %w", arg, err)
		}
		args[i] = b.String()
	}
	return args, nil
}
