// Package transform holds the geometric and pointwise stack transforms used
// between preprocessing and reconstruction.
package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"neutronct/internal/models"
)

// MinTransmission is the floor applied before taking the logarithm
const MinTransmission = 1e-6

// Crop returns the roi window of every frame as a new stack
func Crop(s *models.Stack, roi models.ROI) (*models.Stack, error) {
	if s.Empty() {
		return nil, fmt.Errorf("no data to crop")
	}
	if err := roi.Validate(s.Width, s.Height); err != nil {
		return nil, err
	}

	out := models.NewStack(roi.Width(), roi.Height(), s.Depth)
	for z := 0; z < s.Depth; z++ {
		src := s.Frame(z)
		dst := out.Frame(z)
		for y := roi.Top; y < roi.Bottom; y++ {
			row := (y - roi.Top) * out.Width
			copy(dst[row:row+out.Width], src[y*s.Width+roi.Left:y*s.Width+roi.Right])
		}
	}
	return out, nil
}

// MinusLog converts transmission to attenuation, -ln(max(v, MinTransmission))
func MinusLog(s *models.Stack) (*models.Stack, error) {
	if s.Empty() {
		return nil, fmt.Errorf("no data to transform")
	}
	out := models.NewStack(s.Width, s.Height, s.Depth)
	for i, v := range s.Data {
		if v < MinTransmission || math.IsNaN(v) {
			v = MinTransmission
		}
		out.Data[i] = -math.Log(v)
	}
	return out, nil
}

// Sinograms reorders a projection stack (angles x rows x cols) into
// sinograms (rows x angles x cols). Frame y of the result holds detector
// row y of every projection.
func Sinograms(s *models.Stack) (*models.Stack, error) {
	if s.Empty() {
		return nil, fmt.Errorf("no projections to reorder")
	}
	out := models.NewStack(s.Width, s.Depth, s.Height)
	for z := 0; z < s.Depth; z++ {
		for y := 0; y < s.Height; y++ {
			src := s.Data[z*s.FrameSize()+y*s.Width : z*s.FrameSize()+(y+1)*s.Width]
			dst := out.Data[y*out.FrameSize()+z*out.Width : y*out.FrameSize()+(z+1)*out.Width]
			copy(dst, src)
		}
	}
	return out, nil
}

// Radians converts angles in degrees to radians
func Radians(deg []float64) []float64 {
	out := make([]float64, len(deg))
	for i, d := range deg {
		out[i] = d * math.Pi / 180
	}
	return out
}

// EvenAngles returns n angles in degrees evenly spaced over [0, rangeDeg],
// both ends included
func EvenAngles(n int, rangeDeg float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, rangeDeg)
}

// HasNaN reports whether any angle is missing
func HasNaN(angles []float64) bool {
	for _, a := range angles {
		if math.IsNaN(a) {
			return true
		}
	}
	return false
}
