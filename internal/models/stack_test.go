package models

import (
	"testing"
)

func TestStackIndexing(t *testing.T) {
	s := NewStack(4, 3, 2)
	if s.Len() != 24 {
		t.Fatalf("Expected 24 voxels, got %d", s.Len())
	}

	s.Set(3, 2, 1, 7)
	if got := s.Data[1*12+2*4+3]; got != 7 {
		t.Errorf("Expected value at flat index 23 to be 7, got %f", got)
	}

	frame := s.Frame(1)
	if frame[11] != 7 {
		t.Errorf("Frame view does not share data with stack")
	}
	frame[0] = 5
	if s.At(0, 0, 1) != 5 {
		t.Errorf("Expected write through frame view")
	}
}

func TestStackClone(t *testing.T) {
	s := NewStack(2, 2, 1)
	s.Data[0] = 1
	c := s.Clone()
	c.Data[0] = 2
	if s.Data[0] != 1 {
		t.Errorf("Clone must not share data")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestStackFromFrames(t *testing.T) {
	s, err := StackFromFrames([][]float64{{1, 2}, {3, 4}}, 2, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Depth != 2 || s.At(1, 0, 1) != 4 {
		t.Errorf("Unexpected stack %v %v", s, s.Data)
	}

	if _, err := StackFromFrames([][]float64{{1, 2}, {3}}, 2, 1); err == nil {
		t.Error("Expected error for short frame")
	}
}

func TestROI(t *testing.T) {
	r, err := ParseROI("1, 2, 5, 6")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.Width() != 4 || r.Height() != 4 {
		t.Errorf("Unexpected ROI size %dx%d", r.Width(), r.Height())
	}
	if err := r.Validate(6, 5); err != nil {
		t.Errorf("Expected ROI to fit: %v", err)
	}
	if err := r.Validate(5, 5); err == nil {
		t.Error("Expected ROI to exceed width 5")
	}
	if _, err := ROIFromSlice([]int{1, 2, 3}); err == nil {
		t.Error("Expected error for 3 values")
	}
	if err := (ROI{Top: 2, Bottom: 2, Right: 3}).Validate(10, 10); err == nil {
		t.Error("Expected error for empty ROI")
	}
}
