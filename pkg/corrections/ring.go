package corrections

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"neutronct/internal/models"
	"neutronct/internal/parallel"
	"neutronct/pkg/filters"
)

// DefaultRingKernel is the median window applied to the column profile
const DefaultRingKernel = 11

// RemoveRings suppresses ring artifacts by flattening stripes in every
// sinogram. For each detector row the column means over all angles are
// compared with their running median, and the difference is added back to
// every angle. Apply it to attenuation (minus-log) data.
func RemoveRings(ctx context.Context, ct *models.Stack, kernel, workers int) (*models.Stack, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("no projections to correct")
	}
	if kernel < 3 || kernel%2 == 0 {
		return nil, fmt.Errorf("ring kernel must be odd and >= 3, got %d", kernel)
	}

	out := ct.Clone()
	err := parallel.For(ctx, ct.Height, workers, func(_ context.Context, y int) error {
		profile := make([]float64, ct.Width)
		column := make([]float64, ct.Depth)
		for x := 0; x < ct.Width; x++ {
			for z := 0; z < ct.Depth; z++ {
				column[z] = ct.At(x, y, z)
			}
			profile[x] = stat.Mean(column, nil)
		}

		smooth, err := filters.Median1D(profile, kernel)
		if err != nil {
			return err
		}
		for x := 0; x < ct.Width; x++ {
			delta := smooth[x] - profile[x]
			for z := 0; z < ct.Depth; z++ {
				out.Set(x, y, z, out.At(x, y, z)+delta)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
