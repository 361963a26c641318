package models

import (
	"fmt"
)

// Stack represents a stack of 2D frames (radiographs, sinograms or
// reconstructed slices) stored as a single dense array
type Stack struct {
	// Data is the stack data as a 1D array, frame after frame,
	// each frame in row-major order
	Data []float64

	// Width is the number of columns of each frame
	Width int

	// Height is the number of rows of each frame
	Height int

	// Depth is the number of frames in the stack
	Depth int
}

// NewStack allocates a zero-filled stack with the given dimensions
func NewStack(width, height, depth int) *Stack {
	if width < 0 || height < 0 || depth < 0 {
		width, height, depth = 0, 0, 0
	}
	return &Stack{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// StackFromFrames builds a stack from equally sized frames
func StackFromFrames(frames [][]float64, width, height int) (*Stack, error) {
	s := NewStack(width, height, len(frames))
	size := width * height
	for z, frame := range frames {
		if len(frame) != size {
			return nil, fmt.Errorf("frame %d has %d pixels, expected %d", z, len(frame), size)
		}
		copy(s.Data[z*size:(z+1)*size], frame)
	}
	return s, nil
}

// FrameSize returns the number of pixels in one frame
func (s *Stack) FrameSize() int {
	return s.Width * s.Height
}

// Len returns the total number of voxels
func (s *Stack) Len() int {
	return len(s.Data)
}

// Empty reports whether the stack holds no data
func (s *Stack) Empty() bool {
	return s == nil || s.Width == 0 || s.Height == 0 || s.Depth == 0
}

// Shape returns the dimensions as (depth, height, width)
func (s *Stack) Shape() (int, int, int) {
	return s.Depth, s.Height, s.Width
}

// SameShape reports whether both stacks have identical frame dimensions
func (s *Stack) SameShape(o *Stack) bool {
	return s.Width == o.Width && s.Height == o.Height
}

// Frame returns the z-th frame. The returned slice shares memory with the stack.
func (s *Stack) Frame(z int) []float64 {
	size := s.FrameSize()
	return s.Data[z*size : (z+1)*size]
}

// At returns the value at column x, row y of frame z
func (s *Stack) At(x, y, z int) float64 {
	return s.Data[z*s.Width*s.Height+y*s.Width+x]
}

// Set stores v at column x, row y of frame z
func (s *Stack) Set(x, y, z int, v float64) {
	s.Data[z*s.Width*s.Height+y*s.Width+x] = v
}

// Clone returns a deep copy of the stack
func (s *Stack) Clone() *Stack {
	c := &Stack{
		Data:   make([]float64, len(s.Data)),
		Width:  s.Width,
		Height: s.Height,
		Depth:  s.Depth,
	}
	copy(c.Data, s.Data)
	return c
}

// Validate checks that the data length matches the dimensions
func (s *Stack) Validate() error {
	if s == nil {
		return fmt.Errorf("stack is nil")
	}
	if len(s.Data) != s.Width*s.Height*s.Depth {
		return fmt.Errorf("stack data has %d values, expected %dx%dx%d", len(s.Data), s.Depth, s.Height, s.Width)
	}
	return nil
}

// String implements fmt.Stringer
func (s *Stack) String() string {
	return fmt.Sprintf("Stack(%dx%dx%d)", s.Depth, s.Height, s.Width)
}
