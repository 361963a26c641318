// Package visualization exports grayscale previews of image stacks so an ROI
// can be picked by eye.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"neutronct/internal/models"
)

// roiColor outlines regions drawn by DrawROI
var roiColor = color.RGBA{R: 255, A: 255}

// Viewer renders slices of a stack with a linear intensity window
type Viewer struct {
	stack *models.Stack

	// low and high map to black and white
	low  float64
	high float64
}

// NewViewer creates a viewer windowed to the stack's finite min and max
func NewViewer(stack *models.Stack) (*Viewer, error) {
	if stack.Empty() {
		return nil, fmt.Errorf("cannot view an empty stack")
	}
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	v := &Viewer{stack: stack}
	v.low, v.high = finiteRange(stack.Data)
	return v, nil
}

// SetWindow sets the values mapped to black and white
func (v *Viewer) SetWindow(low, high float64) error {
	if !(high > low) {
		return fmt.Errorf("window high %g must exceed low %g", high, low)
	}
	v.low, v.high = low, high
	return nil
}

// Window returns the current intensity window
func (v *Viewer) Window() (float64, float64) {
	return v.low, v.high
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if math.IsNaN(value) || v.high <= v.low {
		return color.Gray16{}
	}
	scaled := (value - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

// ExtractSlice extracts a 2D slice from the stack along the specified axis:
// x gives a (depth x height) image, y a (width x depth) image and z a frame
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	s := v.stack

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= s.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, s.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, s.Depth, s.Height))
		for y := 0; y < s.Height; y++ {
			for z := 0; z < s.Depth; z++ {
				img.SetGray16(z, y, v.gray(s.At(position, y, z)))
			}
		}

	case "y", "Y":
		// A sinogram when the stack holds projections
		if position >= s.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, s.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, s.Width, s.Depth))
		for z := 0; z < s.Depth; z++ {
			for x := 0; x < s.Width; x++ {
				img.SetGray16(x, z, v.gray(s.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= s.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, s.Depth)
		}
		img = v.frameImage(s.Frame(position))

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func (v *Viewer) frameImage(frame []float64) *image.Gray16 {
	s := v.stack
	img := image.NewGray16(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetGray16(x, y, v.gray(frame[y*s.Width+x]))
		}
	}
	return img
}

// Projection renders the mean of all frames, which shows the full extent
// of the sample over the rotation
func (v *Viewer) Projection() *image.Gray16 {
	s := v.stack
	mean := make([]float64, s.FrameSize())
	for z := 0; z < s.Depth; z++ {
		floats.Add(mean, s.Frame(z))
	}
	floats.Scale(1/float64(s.Depth), mean)
	return v.frameImage(mean)
}

// ExtractRegion extracts the roi window of frames [startZ, startZ+sizeZ)
func (v *Viewer) ExtractRegion(roi models.ROI, startZ, sizeZ int) (*models.Stack, error) {
	s := v.stack
	if err := roi.Validate(s.Width, s.Height); err != nil {
		return nil, err
	}
	if startZ < 0 || sizeZ <= 0 || startZ+sizeZ > s.Depth {
		return nil, fmt.Errorf("frames [%d, %d) outside stack depth %d", startZ, startZ+sizeZ, s.Depth)
	}

	region := models.NewStack(roi.Width(), roi.Height(), sizeZ)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < roi.Height(); y++ {
			for x := 0; x < roi.Width(); x++ {
				region.Set(x, y, z, s.At(roi.Left+x, roi.Top+y, startZ+z))
			}
		}
	}
	return region, nil
}

// DrawROI returns a color copy of img with the roi outlined
func DrawROI(img image.Image, roi models.ROI) (*image.RGBA, error) {
	b := img.Bounds()
	if err := roi.Validate(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}

	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	for x := roi.Left; x < roi.Right; x++ {
		out.SetRGBA(b.Min.X+x, b.Min.Y+roi.Top, roiColor)
		out.SetRGBA(b.Min.X+x, b.Min.Y+roi.Bottom-1, roiColor)
	}
	for y := roi.Top; y < roi.Bottom; y++ {
		out.SetRGBA(b.Min.X+roi.Left, b.Min.Y+y, roiColor)
		out.SetRGBA(b.Min.X+roi.Right-1, b.Min.Y+y, roiColor)
	}
	return out, nil
}

// SavePreview saves an image as PNG, creating parent directories
func SavePreview(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.stack.Width
	case "y", "Y":
		maxPos = v.stack.Height
	case "z", "Z":
		maxPos = v.stack.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := SavePreview(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// finiteRange returns the min and max ignoring NaN and infinities
func finiteRange(data []float64) (float64, float64) {
	low, high := math.Inf(1), math.Inf(-1)
	for _, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		low = math.Min(low, x)
		high = math.Max(high, x)
	}
	if low > high {
		return 0, 1
	}
	if low == high {
		return low, low + 1
	}
	return low, high
}
