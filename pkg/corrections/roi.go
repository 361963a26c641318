package corrections

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
)

// DefaultBeamROI is the window used by NormalizeROI when none is configured
var DefaultBeamROI = models.ROI{Top: 0, Left: 0, Bottom: 10, Right: 10}

// NormalizeROI divides each frame by the mean intensity of the roi window,
// which should cover open beam only
func NormalizeROI(ctx context.Context, ct *models.Stack, roi models.ROI, workers int) (*models.Stack, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("no projections to normalize")
	}
	if err := roi.Validate(ct.Width, ct.Height); err != nil {
		return nil, err
	}

	out := models.NewStack(ct.Width, ct.Height, ct.Depth)
	err := parallel.For(ctx, ct.Depth, workers, func(_ context.Context, z int) error {
		frame := ct.Frame(z)
		window := make([]float64, 0, roi.Width()*roi.Height())
		for y := roi.Top; y < roi.Bottom; y++ {
			window = append(window, frame[y*ct.Width+roi.Left:y*ct.Width+roi.Right]...)
		}
		bg := stat.Mean(window, nil)
		if bg == 0 {
			return fmt.Errorf("frame %d: roi has zero mean intensity", z)
		}
		dst := out.Frame(z)
		for i, v := range frame {
			dst[i] = v / bg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
