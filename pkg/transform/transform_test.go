package transform

import (
	"math"
	"testing"

	"neutronct/internal/models"
)

func rampStack(w, h, d int) *models.Stack {
	s := models.NewStack(w, h, d)
	for i := range s.Data {
		s.Data[i] = float64(i)
	}
	return s
}

func TestCrop(t *testing.T) {
	s := rampStack(4, 3, 2)
	out, err := Crop(s, models.ROI{Top: 1, Left: 1, Bottom: 3, Right: 3})
	if err != nil {
		t.Fatalf("Failed to crop: %v", err)
	}
	if out.Width != 2 || out.Height != 2 || out.Depth != 2 {
		t.Fatalf("Expected 2x2x2, got %s", out)
	}
	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				if got, want := out.At(x, y, z), s.At(x+1, y+1, z); got != want {
					t.Errorf("At(%d,%d,%d): expected %f, got %f", x, y, z, want, got)
				}
			}
		}
	}

	if _, err := Crop(s, models.ROI{Top: 0, Left: 0, Bottom: 4, Right: 4}); err == nil {
		t.Error("Expected error for roi larger than the frame")
	}
}

func TestMinusLog(t *testing.T) {
	s := models.NewStack(4, 1, 1)
	copy(s.Data, []float64{1, math.Exp(-2), 0, -3})
	out, err := MinusLog(s)
	if err != nil {
		t.Fatalf("Failed to transform: %v", err)
	}
	want := []float64{0, 2, -math.Log(MinTransmission), -math.Log(MinTransmission)}
	for i := range want {
		if math.Abs(out.Data[i]-want[i]) > 1e-12 {
			t.Errorf("Value %d: expected %f, got %f", i, want[i], out.Data[i])
		}
	}
}

func TestSinograms(t *testing.T) {
	s := rampStack(3, 2, 4)
	sino, err := Sinograms(s)
	if err != nil {
		t.Fatalf("Failed to reorder: %v", err)
	}
	if sino.Width != 3 || sino.Height != 4 || sino.Depth != 2 {
		t.Fatalf("Expected 2x4x3 sinograms, got %s", sino)
	}
	for z := 0; z < s.Depth; z++ {
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				if s.At(x, y, z) != sino.At(x, z, y) {
					t.Fatalf("Mismatch at projection %d row %d col %d", z, y, x)
				}
			}
		}
	}
}

func TestAngles(t *testing.T) {
	even := EvenAngles(5, 180)
	want := []float64{0, 45, 90, 135, 180}
	for i := range want {
		if math.Abs(even[i]-want[i]) > 1e-12 {
			t.Errorf("Angle %d: expected %f, got %f", i, want[i], even[i])
		}
	}
	if EvenAngles(0, 180) != nil {
		t.Error("Expected nil for zero angles")
	}

	rad := Radians([]float64{180, 90})
	if math.Abs(rad[0]-math.Pi) > 1e-12 || math.Abs(rad[1]-math.Pi/2) > 1e-12 {
		t.Errorf("Unexpected radians %v", rad)
	}

	if !HasNaN([]float64{1, math.NaN()}) || HasNaN(want) {
		t.Error("HasNaN gave the wrong answer")
	}
}
