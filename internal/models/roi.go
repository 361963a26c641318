package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ROI is a rectangular region of interest in pixel coordinates.
// Bottom and Right are exclusive.
type ROI struct {
	Top    int `yaml:"top" json:"top"`
	Left   int `yaml:"left" json:"left"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Right  int `yaml:"right" json:"right"`
}

// ROIFromSlice builds an ROI from [top, left, bottom, right]
func ROIFromSlice(v []int) (ROI, error) {
	if len(v) != 4 {
		return ROI{}, fmt.Errorf("roi needs 4 values [top, left, bottom, right], got %d", len(v))
	}
	return ROI{Top: v[0], Left: v[1], Bottom: v[2], Right: v[3]}, nil
}

// ParseROI parses "top,left,bottom,right"
func ParseROI(s string) (ROI, error) {
	parts := strings.Split(s, ",")
	vals := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return ROI{}, fmt.Errorf("invalid roi %q: %w", s, err)
		}
		vals = append(vals, n)
	}
	return ROIFromSlice(vals)
}

// Width returns the number of columns covered
func (r ROI) Width() int { return r.Right - r.Left }

// Height returns the number of rows covered
func (r ROI) Height() int { return r.Bottom - r.Top }

// Slice returns the ROI as [top, left, bottom, right]
func (r ROI) Slice() []int {
	return []int{r.Top, r.Left, r.Bottom, r.Right}
}

// Validate checks the ROI is non-empty and fits in a width x height frame
func (r ROI) Validate(width, height int) error {
	if r.Top < 0 || r.Left < 0 {
		return fmt.Errorf("roi %v has negative coordinates", r.Slice())
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return fmt.Errorf("roi %v is empty", r.Slice())
	}
	if r.Right > width || r.Bottom > height {
		return fmt.Errorf("roi %v exceeds frame %dx%d", r.Slice(), width, height)
	}
	return nil
}
