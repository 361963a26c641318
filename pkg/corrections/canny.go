package corrections

import (
	"math"
)

// Hysteresis thresholds on the gradient magnitude for floating point images
const (
	cannyLow  = 0.1
	cannyHigh = 0.2
)

// Canny marks the edge pixels of a frame: Gaussian smoothing with sigma,
// Sobel gradients, non-maximum suppression and hysteresis thresholding.
// The outermost ring of pixels is never marked.
func Canny(frame []float64, width, height int, sigma float64) []bool {
	smoothed := gaussianBlur(frame, width, height, sigma)

	gx := make([]float64, len(frame))
	gy := make([]float64, len(frame))
	mag := make([]float64, len(frame))
	at := func(x, y int) float64 {
		return smoothed[clampIndex(y, height)*width+clampIndex(x, width)]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			sy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*width + x
			gx[i], gy[i] = sx, sy
			mag[i] = math.Hypot(sx, sy)
		}
	}

	// Non-maximum suppression along the quantized gradient direction
	thin := make([]float64, len(frame))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			m := mag[i]
			if m < cannyLow {
				continue
			}
			angle := math.Atan2(gy[i], gx[i]) * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			var a, b float64
			switch {
			case angle < 22.5 || angle >= 157.5:
				a, b = mag[i-1], mag[i+1]
			case angle < 67.5:
				a, b = mag[i-width-1], mag[i+width+1]
			case angle < 112.5:
				a, b = mag[i-width], mag[i+width]
			default:
				a, b = mag[i-width+1], mag[i+width-1]
			}
			if m >= a && m >= b {
				thin[i] = m
			}
		}
	}

	// Hysteresis: grow strong edges through connected weak ones
	edges := make([]bool, len(frame))
	var queue []int
	for i, m := range thin {
		if m >= cannyHigh {
			edges[i] = true
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 1 || ny < 1 || nx >= width-1 || ny >= height-1 {
					continue
				}
				j := ny*width + nx
				if !edges[j] && thin[j] >= cannyLow {
					edges[j] = true
					queue = append(queue, j)
				}
			}
		}
	}
	return edges
}

// gaussianBlur applies a separable Gaussian kernel truncated at 4 sigma
func gaussianBlur(frame []float64, width, height int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(frame))
		copy(out, frame)
		return out
	}

	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for k := -radius; k <= radius; k++ {
		v := math.Exp(-float64(k*k) / (2 * sigma * sigma))
		kernel[k+radius] = v
		sum += v
	}
	for k := range kernel {
		kernel[k] /= sum
	}

	tmp := make([]float64, len(frame))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * frame[y*width+reflectIndex(x+k, width)]
			}
			tmp[y*width+x] = acc
		}
	}

	out := make([]float64, len(frame))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * tmp[reflectIndex(y+k, height)*width+x]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

// reflectIndex mirrors out-of-range indices back into [0, n)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
