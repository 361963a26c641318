package filters

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
)

// autoSigmas is the number of standard deviations above the frame mean used
// as the outlier threshold when none is configured
const autoSigmas = 5

// GammaFilter replaces bright outliers (gamma spots) with the median of
// their kernel x kernel neighborhood. A threshold <= 0 is computed per
// frame as mean + 5 standard deviations.
func GammaFilter(ctx context.Context, s *models.Stack, threshold float64, kernel, workers int) (*models.Stack, error) {
	if s.Empty() {
		return nil, fmt.Errorf("no data to filter")
	}
	if err := checkKernel(kernel); err != nil {
		return nil, err
	}

	out := s.Clone()
	err := parallel.For(ctx, s.Depth, workers, func(_ context.Context, z int) error {
		frame := s.Frame(z)
		limit := threshold
		if limit <= 0 {
			mean, std := stat.MeanStdDev(frame, nil)
			limit = mean + autoSigmas*std
		}

		var median []float64
		dst := out.Frame(z)
		for i, v := range frame {
			if v <= limit {
				continue
			}
			if median == nil {
				var err error
				if median, err = MedianFrame(frame, s.Width, s.Height, kernel); err != nil {
					return err
				}
			}
			dst[i] = median[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
