package procprim

import (
	"math"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/mathkernel"
)

// brightThreshold is the fixed 254/255 bright-pixel threshold from the
// original implementation (spec.md §4.D).
const brightThreshold = float32(254.0 / 255.0)

// Dering pre-blurs pixels that border saturated regions before L-R
// deconvolution, to suppress ringing around bright features (spec.md §4.D):
// identify pixels below brightThreshold that 4-neighbor a pixel at or
// above it, mark everything within ceil(2*sigma) of such a border, Gaussian
// blur the whole input with the L-R sigma, and replace only the marked
// pixels with the blurred value.
func Dering(input *image.Plane, sigma float64) *image.Plane {
	w, h := input.Width, input.Height
	border := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if input.Pix[idx] >= brightThreshold {
				continue
			}
			if neighborAtOrAbove(input, x, y, brightThreshold) {
				border[idx] = true
			}
		}
	}

	radius := int(math.Ceil(2 * sigma))
	mask := dilate(border, w, h, radius)

	blurred := mathkernel.GaussianBlur(input, sigma, mathkernel.AUTO)
	out := input.Clone()
	for i, m := range mask {
		if m {
			out.Pix[i] = blurred.Pix[i]
		}
	}
	return out
}

func neighborAtOrAbove(p *image.Plane, x, y int, threshold float32) bool {
	offsets := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	for _, o := range offsets {
		nx, ny := x+o[0], y+o[1]
		if nx < 0 || nx >= p.Width || ny < 0 || ny >= p.Height {
			continue
		}
		if p.Pix[ny*p.Width+nx] >= threshold {
			return true
		}
	}
	return false
}

// dilate expands a boolean mask so that every pixel within the given
// Chebyshev radius of a set pixel is also set (a simple separable box
// dilation, adequate for the radius of a few pixels used here).
func dilate(mask []bool, w, h, radius int) []bool {
	if radius <= 0 {
		out := make([]bool, len(mask))
		copy(out, mask)
		return out
	}
	horiz := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if rowHasSet(mask, w, y, x-radius, x+radius) {
				horiz[y*w+x] = true
			}
		}
	}
	out := make([]bool, w*h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if colHasSet(horiz, w, h, x, y-radius, y+radius) {
				out[y*w+x] = true
			}
		}
	}
	return out
}

func rowHasSet(mask []bool, w, y, xLo, xHi int) bool {
	if xLo < 0 {
		xLo = 0
	}
	if xHi >= w {
		xHi = w - 1
	}
	for x := xLo; x <= xHi; x++ {
		if mask[y*w+x] {
			return true
		}
	}
	return false
}

func colHasSet(mask []bool, w, h, x, yLo, yHi int) bool {
	if yLo < 0 {
		yLo = 0
	}
	if yHi >= h {
		yHi = h - 1
	}
	for y := yLo; y <= yHi; y++ {
		if mask[y*w+x] {
			return true
		}
	}
	return false
}
