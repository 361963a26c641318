// Package normalize performs dark/flat-field normalization of projections.
package normalize

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
	"neutronct/pkg/filters"
)

// Average modes for combining open beam and dark current frames
const (
	AverageMean   = "mean"
	AverageMedian = "median"
)

// minDenominator keeps (flat - dark) away from zero
const minDenominator = 1e-6

// Options controls Normalize
type Options struct {
	// Average selects how ob and dc frames are combined: mean or median
	Average string

	// Cutoff clips normalized values above it when positive
	Cutoff float64

	// MaxWorkers is the number of frames processed in parallel, 0 means all cores
	MaxWorkers int
}

// Average combines all frames of a stack into one, pixel by pixel
func Average(s *models.Stack, mode string) ([]float64, error) {
	if s.Empty() {
		return nil, fmt.Errorf("cannot average an empty stack")
	}
	size := s.FrameSize()
	out := make([]float64, size)

	switch mode {
	case "", AverageMean:
		column := make([]float64, s.Depth)
		for i := 0; i < size; i++ {
			for z := 0; z < s.Depth; z++ {
				column[z] = s.Data[z*size+i]
			}
			out[i] = stat.Mean(column, nil)
		}
	case AverageMedian:
		column := make([]float64, s.Depth)
		for i := 0; i < size; i++ {
			for z := 0; z < s.Depth; z++ {
				column[z] = s.Data[z*size+i]
			}
			out[i] = filters.Median(column)
		}
	default:
		return nil, fmt.Errorf("unknown average mode %q (must be mean or median)", mode)
	}
	return out, nil
}

// Normalize returns (ct - dark) / (flat - dark) where flat and dark are the
// averaged open beam and dark current. A nil dc means a zero dark field.
func Normalize(ctx context.Context, ct, ob, dc *models.Stack, opts Options) (*models.Stack, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("no projections to normalize")
	}
	if ob.Empty() {
		return nil, fmt.Errorf("open beam is required for normalization")
	}
	if !ct.SameShape(ob) {
		return nil, fmt.Errorf("open beam frames are %dx%d, projections are %dx%d", ob.Height, ob.Width, ct.Height, ct.Width)
	}

	flat, err := Average(ob, opts.Average)
	if err != nil {
		return nil, err
	}

	dark := make([]float64, ct.FrameSize())
	if !dc.Empty() {
		if !ct.SameShape(dc) {
			return nil, fmt.Errorf("dark current frames are %dx%d, projections are %dx%d", dc.Height, dc.Width, ct.Height, ct.Width)
		}
		if dark, err = Average(dc, opts.Average); err != nil {
			return nil, err
		}
	}

	denom := make([]float64, len(flat))
	for i := range flat {
		d := flat[i] - dark[i]
		if d < minDenominator {
			d = minDenominator
		}
		denom[i] = d
	}

	out := models.NewStack(ct.Width, ct.Height, ct.Depth)
	err = parallel.For(ctx, ct.Depth, opts.MaxWorkers, func(_ context.Context, z int) error {
		src := ct.Frame(z)
		dst := out.Frame(z)
		for i, v := range src {
			n := (v - dark[i]) / denom[i]
			if opts.Cutoff > 0 && n > opts.Cutoff {
				n = opts.Cutoff
			}
			dst[i] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
