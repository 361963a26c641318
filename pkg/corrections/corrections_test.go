package corrections

import (
	"context"
	"math"
	"testing"

	"neutronct/internal/models"
)

// diskFrame returns a size x size frame of background bg with a centered
// disk of value obj and radius r
func diskFrame(size int, r, bg, obj float64) []float64 {
	frame := make([]float64, size*size)
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if math.Sqrt(dx*dx+dy*dy) < r {
				frame[y*size+x] = obj
			} else {
				frame[y*size+x] = bg
			}
		}
	}
	return frame
}

func TestCannyFindsStepEdge(t *testing.T) {
	width, height := 16, 16
	frame := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 8; x < width; x++ {
			frame[y*width+x] = 1
		}
	}

	edges := Canny(frame, width, height, 1)
	found := false
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !edges[y*width+x] {
				continue
			}
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				t.Fatalf("Edge reported on the border at (%d,%d)", x, y)
			}
			if x < 6 || x > 9 {
				t.Errorf("Unexpected edge at column %d", x)
			}
			found = true
		}
	}
	if !found {
		t.Error("Expected edges along the step")
	}

	flat := make([]float64, width*height)
	for _, e := range Canny(flat, width, height, 1) {
		if e {
			t.Fatal("Expected no edges on a flat frame")
		}
	}
}

func TestIntensityFluctuationBorderAir(t *testing.T) {
	width, height := 6, 2
	s := models.NewStack(width, height, 2)
	for z := 0; z < 2; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				// Linear beam profile scaled per frame
				s.Set(x, y, z, float64(z+1)*float64(x+1))
			}
		}
	}

	out, err := IntensityFluctuation(context.Background(), s, 1, DefaultSigma, 2)
	if err != nil {
		t.Fatalf("Failed to correct: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-1) > 1e-12 {
			t.Fatalf("Voxel %d: expected 1, got %f", i, v)
		}
	}
}

func TestIntensityFluctuationAutoAir(t *testing.T) {
	size := 32
	s, err := models.StackFromFrames([][]float64{
		diskFrame(size, 6, 2.0, 0.5),
		diskFrame(size, 6, 4.0, 1.0),
	}, size, size)
	if err != nil {
		t.Fatalf("Failed to build stack: %v", err)
	}

	out, err := IntensityFluctuation(context.Background(), s, -1, DefaultSigma, 1)
	if err != nil {
		t.Fatalf("Failed to correct: %v", err)
	}
	for z := 0; z < 2; z++ {
		if got := out.At(0, 0, z); math.Abs(got-1) > 1e-9 {
			t.Errorf("Frame %d: expected air at 1, got %f", z, got)
		}
		if got := out.At(size/2, size/2, z); math.Abs(got-0.25) > 1e-9 {
			t.Errorf("Frame %d: expected object at 0.25, got %f", z, got)
		}
	}
}

func TestNormalizeROI(t *testing.T) {
	s := models.NewStack(4, 4, 2)
	for z := 0; z < 2; z++ {
		for i := range s.Frame(z) {
			s.Frame(z)[i] = float64(4 * (z + 1))
		}
	}

	out, err := NormalizeROI(context.Background(), s, models.ROI{Top: 0, Left: 0, Bottom: 2, Right: 2}, 1)
	if err != nil {
		t.Fatalf("Failed to normalize: %v", err)
	}
	for i, v := range out.Data {
		if v != 1 {
			t.Fatalf("Voxel %d: expected 1, got %f", i, v)
		}
	}

	if _, err := NormalizeROI(context.Background(), s, DefaultBeamROI, 1); err == nil {
		t.Error("Expected error for ROI outside a 4x4 frame")
	}
}

func TestRemoveRings(t *testing.T) {
	width, height, depth := 12, 3, 5
	s := models.NewStack(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := 0.1 * float64(z)
				if x == 5 {
					v += 1
				}
				s.Set(x, y, z, v)
			}
		}
	}

	out, err := RemoveRings(context.Background(), s, 3, 2)
	if err != nil {
		t.Fatalf("Failed to remove rings: %v", err)
	}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			if got, want := out.At(5, y, z), 0.1*float64(z); math.Abs(got-want) > 1e-12 {
				t.Errorf("Stripe not removed at angle %d row %d: got %f want %f", z, y, got, want)
			}
			if got, want := out.At(2, y, z), 0.1*float64(z); math.Abs(got-want) > 1e-12 {
				t.Errorf("Clean column changed at angle %d row %d: got %f want %f", z, y, got, want)
			}
		}
	}

	if _, err := RemoveRings(context.Background(), s, 4, 1); err == nil {
		t.Error("Expected error for even kernel")
	}
}
