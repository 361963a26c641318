// Package filters provides per-frame image filters used while preparing
// projections for reconstruction.
package filters

import (
	"context"
	"fmt"
	"sort"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
)

// Median returns the median of values without modifying them
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Median1D applies a running median of odd size kernel, clamping at the borders
func Median1D(values []float64, kernel int) ([]float64, error) {
	if err := checkKernel(kernel); err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	half := kernel / 2
	window := make([]float64, 0, kernel)
	for i := range values {
		window = window[:0]
		for k := -half; k <= half; k++ {
			window = append(window, values[clamp(i+k, len(values))])
		}
		sort.Float64s(window)
		out[i] = window[half]
	}
	return out, nil
}

// MedianFrame applies a kernel x kernel median filter to one frame
func MedianFrame(frame []float64, width, height, kernel int) ([]float64, error) {
	if err := checkKernel(kernel); err != nil {
		return nil, err
	}
	out := make([]float64, len(frame))
	half := kernel / 2
	window := make([]float64, 0, kernel*kernel)
	mid := kernel * kernel / 2

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			window = window[:0]
			for dy := -half; dy <= half; dy++ {
				row := clamp(y+dy, height) * width
				for dx := -half; dx <= half; dx++ {
					window = append(window, frame[row+clamp(x+dx, width)])
				}
			}
			sort.Float64s(window)
			out[y*width+x] = window[mid]
		}
	}
	return out, nil
}

// MedianSmooth applies MedianFrame to every frame of the stack
func MedianSmooth(ctx context.Context, s *models.Stack, kernel, workers int) (*models.Stack, error) {
	if s.Empty() {
		return nil, fmt.Errorf("no data to smooth")
	}
	if err := checkKernel(kernel); err != nil {
		return nil, err
	}

	out := models.NewStack(s.Width, s.Height, s.Depth)
	err := parallel.For(ctx, s.Depth, workers, func(_ context.Context, z int) error {
		filtered, err := MedianFrame(s.Frame(z), s.Width, s.Height, kernel)
		if err != nil {
			return err
		}
		copy(out.Frame(z), filtered)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkKernel(kernel int) error {
	if kernel < 1 || kernel%2 == 0 {
		return fmt.Errorf("kernel size must be odd and >= 1, got %d", kernel)
	}
	return nil
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
