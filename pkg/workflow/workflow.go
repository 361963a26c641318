// Package workflow runs preprocessing sessions described as JSON documents:
// an ordered list of tasks, each naming a registered function, its inputs
// and the names its results are bound to.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Task is one step of a workflow
type Task struct {
	Name     string         `json:"name"`
	Function string         `json:"function"`
	Inputs   map[string]any `json:"inputs"`
	Outputs  []string       `json:"outputs,omitempty"`
}

// Workflow is a complete session description
type Workflow struct {
	Instrument string `json:"instrument"`
	IPTS       string `json:"ipts"`
	Name       string `json:"name"`
	WorkingDir string `json:"workingdir"`
	OutputDir  string `json:"outputdir"`
	Tasks      []Task `json:"tasks"`
}

// ValidationError reports a workflow document that is malformed or names
// functions that do not exist
type ValidationError struct {
	// Step is the index of the offending task, -1 for document level errors
	Step int
	Msg  string
	Err  error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Step >= 0 {
		fmt.Fprintf(&b, "step %d: ", e.Step)
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Parse decodes and schema-validates a workflow document. Function names
// are checked against a registry by Validate.
func Parse(data []byte) (*Workflow, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Step: -1, Msg: "invalid JSON", Err: err}
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var wf Workflow
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wf); err != nil {
		return nil, &ValidationError{Step: -1, Msg: "while decoding configuration file", Err: err}
	}
	return &wf, nil
}

// Load reads and parses a workflow file
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading workflow file: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the workflow as indented JSON
func (w *Workflow) Marshal() ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

// Validate checks the workflow against the schema and verifies that every
// task names a function registered in reg
func (w *Workflow) Validate(reg *Registry) error {
	data, err := json.Marshal(w)
	if err != nil {
		return &ValidationError{Step: -1, Msg: "workflow is not serializable", Err: err}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Step: -1, Msg: "workflow is not serializable", Err: err}
	}
	if err := validateSchema(doc); err != nil {
		return err
	}

	for step, task := range w.Tasks {
		fn := strings.TrimSpace(task.Function)
		switch {
		case fn == "":
			return &ValidationError{Step: step, Msg: `specified empty "function"`}
		case !strings.Contains(fn, "."):
			return &ValidationError{Step: step, Msg: fmt.Sprintf("function %q does not appear to be absolute specification", fn)}
		}
		if _, ok := reg.Lookup(fn); !ok {
			return &ValidationError{Step: step, Msg: fmt.Sprintf("specified nonexistent function %q", fn)}
		}
	}
	return nil
}
