package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Engine executes workflows against a registry of functions
type Engine struct {
	Registry *Registry
	Env      Env
}

// NewEngine creates an engine. A nil registry uses DefaultRegistry.
func NewEngine(reg *Registry, env Env) *Engine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Engine{Registry: reg, Env: env}
}

// Run validates wf and executes its tasks in order. A string input equal to
// the name of an earlier output is replaced by that output's value. The
// data context holding every bound output is returned.
func (e *Engine) Run(ctx context.Context, wf *Workflow) (map[string]any, error) {
	if err := wf.Validate(e.Registry); err != nil {
		return nil, err
	}

	env := e.Env
	env.Instrument = wf.Instrument
	env.IPTS = wf.IPTS
	env.Name = wf.Name
	env.WorkingDir = wf.WorkingDir
	env.OutputDir = wf.OutputDir
	log := env.Logger.With().Str("workflow", wf.Name).Logger()

	data := make(map[string]any)
	total := time.Now()
	for step, task := range wf.Tasks {
		if err := ctx.Err(); err != nil {
			return data, err
		}

		fn, _ := e.Registry.Lookup(task.Function)
		params := resolve(task.Inputs, data)

		tlog := log.With().Int("step", step).Str("task", task.Name).Str("function", task.Function).Logger()
		env.Logger = tlog
		tlog.Info().Msg("running task")

		start := time.Now()
		results, err := fn(ctx, &env, params)
		if err != nil {
			return data, fmt.Errorf("task %q (%s): %w", task.Name, task.Function, err)
		}
		if len(task.Outputs) > len(results) {
			return data, fmt.Errorf("task %q lists %d outputs but %s returns %d", task.Name, len(task.Outputs), task.Function, len(results))
		}
		for i, name := range task.Outputs {
			data[name] = results[i]
		}
		logDone(tlog, start, task.Outputs)
	}
	log.Info().Dur("elapsed", time.Since(total)).Int("tasks", len(wf.Tasks)).Msg("workflow finished")
	return data, nil
}

func resolve(inputs map[string]any, data map[string]any) Params {
	params := make(Params, len(inputs))
	for key, v := range inputs {
		if s, ok := v.(string); ok {
			if bound, found := data[s]; found {
				params[key] = bound
				continue
			}
		}
		params[key] = v
	}
	return params
}

func logDone(log zerolog.Logger, start time.Time, outputs []string) {
	log.Info().Dur("elapsed", time.Since(start)).Strs("outputs", outputs).Msg("task finished")
}
