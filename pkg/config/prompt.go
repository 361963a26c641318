package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"neutronct/internal/models"
)

// question is one line of the configuration wizard. set parses the answer
// into the config and is not called for an empty answer.
type question struct {
	label   string
	current func(*Config) string
	set     func(*Config, string) error
}

var questions = []question{
	{"Instrument", func(c *Config) string { return c.Instrument }, func(c *Config, v string) error { c.Instrument = v; return nil }},
	{"IPTS", func(c *Config) string { return c.IPTS }, func(c *Config, v string) error { c.IPTS = v; return nil }},
	{"Sample name", func(c *Config) string { return c.Name }, func(c *Config, v string) error { c.Name = v; return nil }},
	{"Projection (ct) directory", func(c *Config) string { return c.Paths.DataDir }, func(c *Config, v string) error { c.Paths.DataDir = v; return nil }},
	{"Open beam directories (comma separated)", func(c *Config) string { return strings.Join(c.Paths.OBDirs, ",") }, func(c *Config, v string) error { c.Paths.OBDirs = splitList(v); return nil }},
	{"Dark current directories (comma separated, - for none)", func(c *Config) string { return strings.Join(c.Paths.DCDirs, ",") }, func(c *Config, v string) error {
		if v == "-" {
			c.Paths.DCDirs = nil
			return nil
		}
		c.Paths.DCDirs = splitList(v)
		return nil
	}},
	{"Working directory", func(c *Config) string { return c.Paths.WorkingDir }, func(c *Config, v string) error { c.Paths.WorkingDir = v; return nil }},
	{"Output directory", func(c *Config) string { return c.Paths.OutputDir }, func(c *Config, v string) error { c.Paths.OutputDir = v; return nil }},
	{"Gamma filter (y/n)", func(c *Config) string { return yesNo(c.Processing.GammaFilter) }, func(c *Config, v string) error { return parseYesNo(v, &c.Processing.GammaFilter) }},
	{"Intensity fluctuation correction (y/n)", func(c *Config) string { return yesNo(c.Processing.IFCEnabled) }, func(c *Config, v string) error { return parseYesNo(v, &c.Processing.IFCEnabled) }},
	{"Air pixels (negative for auto)", func(c *Config) string { return strconv.Itoa(c.Processing.AirPixels) }, func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("air pixels must be an integer: %w", err)
		}
		c.Processing.AirPixels = n
		return nil
	}},
	{"Crop ROI top,left,bottom,right (- for none)", func(c *Config) string { return roiString(c.Processing.CropROI) }, func(c *Config, v string) error { return parseROI(v, &c.Processing.CropROI) }},
	{"Ring removal (y/n)", func(c *Config) string { return yesNo(c.Processing.RingRemoval) }, func(c *Config, v string) error { return parseYesNo(v, &c.Processing.RingRemoval) }},
	{"Smoothing (y/n)", func(c *Config) string { return yesNo(c.Processing.Smoothing) }, func(c *Config, v string) error { return parseYesNo(v, &c.Processing.Smoothing) }},
}

// Prompt walks the user through the key fields of cfg, one line each.
// An empty answer keeps the current value and an invalid one is asked again.
func Prompt(in io.Reader, out io.Writer, cfg *Config) error {
	scanner := bufio.NewScanner(in)
	for _, q := range questions {
		for {
			fmt.Fprintf(out, "%s [%s]: ", q.label, q.current(cfg))
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read answer: %w", err)
				}
				// End of input keeps the remaining values
				fmt.Fprintln(out)
				return nil
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "" {
				break
			}
			if err := q.set(cfg, answer); err != nil {
				fmt.Fprintf(out, "Invalid answer: %v\n", err)
				continue
			}
			break
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

func parseYesNo(v string, dst *bool) error {
	switch strings.ToLower(v) {
	case "y", "yes", "true":
		*dst = true
	case "n", "no", "false":
		*dst = false
	default:
		return fmt.Errorf("expected y or n, got %q", v)
	}
	return nil
}

func roiString(r *models.ROI) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%d,%d,%d,%d", r.Top, r.Left, r.Bottom, r.Right)
}

func parseROI(v string, dst **models.ROI) error {
	if v == "-" {
		*dst = nil
		return nil
	}
	roi, err := models.ParseROI(v)
	if err != nil {
		return err
	}
	*dst = &roi
	return nil
}
