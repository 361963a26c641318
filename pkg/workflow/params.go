package workflow

import (
	"encoding/json"
	"fmt"
	"math"

	"neutronct/internal/models"
)

// Params are the resolved inputs of a task. Values come either from the
// JSON document (strings, float64, bool, []any) or from earlier outputs.
type Params map[string]any

// Has reports whether key is present and not null
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns a string input or def when absent
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// Strings returns a list of strings. A single string is a list of one.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be either a string or a list of strings", key)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be either a string or a list of strings", key)
	}
}

// Float returns a numeric input or def when absent
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	return f, nil
}

// Int returns an integer input or def when absent
func (p Params) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %g", key, f)
	}
	return int(f), nil
}

// Bool returns a boolean input or def when absent
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

// Floats returns a list of numbers, nil when absent
func (p Params) Floats(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []float64:
		return t, nil
	case []any:
		out := make([]float64, len(t))
		for i, item := range t {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a number, got %T", key, i, item)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of numbers, got %T", key, v)
	}
}

// Stack returns a required stack input
func (p Params) Stack(key string) (*models.Stack, error) {
	s, err := p.OptionalStack(key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// OptionalStack returns a stack input or nil when absent
func (p Params) OptionalStack(key string) (*models.Stack, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(*models.Stack)
	if !ok {
		return nil, fmt.Errorf("%s must be an image stack, got %T", key, v)
	}
	return s, nil
}

// ROI returns an roi given as [top, left, bottom, right], nil when absent
func (p Params) ROI(key string) (*models.ROI, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case models.ROI:
		return &t, nil
	case *models.ROI:
		return t, nil
	case []int:
		roi, err := models.ROIFromSlice(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &roi, nil
	}

	vals, err := p.Floats(key)
	if err != nil {
		return nil, err
	}
	ints := make([]int, len(vals))
	for i, f := range vals {
		ints[i] = int(f)
	}
	roi, err := models.ROIFromSlice(ints)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &roi, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
