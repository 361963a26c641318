// Package corrections removes beam and detector artifacts from normalized
// projections: intensity fluctuation, ROI based beam normalization and
// ring artifacts.
package corrections

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
)

// Defaults for IntensityFluctuation
const (
	DefaultAirPixels = 5
	DefaultSigma     = 3
)

// IntensityFluctuation corrects the beam intensity fluctuation of every frame.
//
// With airPixels >= 0 each row is divided by the straight line joining the
// mean of its left and right airPixels columns. With airPixels < 0 the air
// region of each frame is found with Canny edge detection (sigma) and the
// frame is divided by the mean of that region.
func IntensityFluctuation(ctx context.Context, ct *models.Stack, airPixels int, sigma float64, workers int) (*models.Stack, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("no projections to correct")
	}

	out := models.NewStack(ct.Width, ct.Height, ct.Depth)
	err := parallel.For(ctx, ct.Depth, workers, func(_ context.Context, z int) error {
		var (
			corrected []float64
			err       error
		)
		if airPixels < 0 {
			corrected, err = correctAutoAir(ct.Frame(z), ct.Width, ct.Height, sigma)
		} else {
			corrected = correctBorderAir(ct.Frame(z), ct.Width, ct.Height, airPixels)
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", z, err)
		}
		copy(out.Frame(z), corrected)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// correctBorderAir divides each row by a linear background fitted between
// the row's left and right air columns
func correctBorderAir(frame []float64, width, height, air int) []float64 {
	if air < 1 {
		air = 1
	}
	if 2*air > width {
		air = max(1, width/2)
	}

	out := make([]float64, len(frame))
	for y := 0; y < height; y++ {
		row := frame[y*width : (y+1)*width]
		left := stat.Mean(row[:air], nil)
		right := stat.Mean(row[width-air:], nil)
		for x, v := range row {
			bg := left
			if width > 1 {
				bg = left + (right-left)*float64(x)/float64(width-1)
			}
			if math.Abs(bg) < 1e-12 {
				out[y*width+x] = v
				continue
			}
			out[y*width+x] = v / bg
		}
	}
	return out
}

// correctAutoAir assumes a uniform beam decay over the frame and divides it
// by the mean of the air pixels found outside the object contour
func correctAutoAir(frame []float64, width, height int, sigma float64) ([]float64, error) {
	edges := Canny(frame, width, height, sigma)

	// Rows without any edge keep the middle column as both bounds, which
	// makes the whole row air
	middle := (width - 1) / 2
	var air []float64
	for y := 0; y < height; y++ {
		start, stop := middle, middle
		first := true
		for x := 0; x < width; x++ {
			if edges[y*width+x] {
				if first {
					start = x
					first = false
				}
				stop = x
			}
		}

		// Move the object bounds halfway towards the frame edges
		start /= 2
		stop = (stop + width) / 2

		row := frame[y*width : (y+1)*width]
		air = append(air, row[:start]...)
		air = append(air, row[stop:]...)
	}

	if len(air) == 0 {
		return nil, fmt.Errorf("no air pixels found")
	}
	factor := stat.Mean(air, nil)
	if factor == 0 {
		return nil, fmt.Errorf("air region has zero mean intensity")
	}

	out := make([]float64, len(frame))
	for i, v := range frame {
		out[i] = v / factor
	}
	return out, nil
}
