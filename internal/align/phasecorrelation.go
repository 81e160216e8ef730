// Package align implements the alignment engine (spec.md §4.J):
// FFT-based phase correlation for consecutive-frame translation ("standard"
// mode), solar-limb circle fitting ("SOLAR_LIMB" mode), and RGB
// channel alignment (the three channels of one image treated as three
// consecutive standard-mode frames). Grounded on github.com/mjibson/go-dsp's
// FFT2Real/IFFT2 for the correlation surface and gonum.org/v1/gonum/mat for
// the circle fit's normal-equation solve — neither the teacher nor any
// other example repo performs frame registration, so this component's
// algorithmic grounding is spec.md §4.J plus original_source's stacking
// code, expressed with the pack's FFT/linear-algebra libraries.
package align

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
)

// Offset is a 2D translation, accumulated frame-to-frame (spec.md §4.J).
type Offset struct {
	DX, DY float64
}

// PhaseCorrelate finds the translation that best aligns b onto a using the
// normalized cross-power spectrum (spec.md §4.J: "FFT-based phase
// correlation on overlapping regions"). a and b must have equal dimensions.
func PhaseCorrelate(a, b *image.Plane) (Offset, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return Offset{}, imgerr.New(imgerr.InvalidArgument, "phase correlation requires equal-sized frames, got %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	w, h := a.Width, a.Height

	fa := fft.FFT2Real(planeToRows(a))
	fb := fft.FFT2Real(planeToRows(b))

	cross := make([][]complex128, h)
	for y := 0; y < h; y++ {
		cross[y] = make([]complex128, w)
		for x := 0; x < w; x++ {
			num := fb[y][x] * cmplx.Conj(fa[y][x])
			mag := cmplx.Abs(num)
			if mag == 0 {
				continue
			}
			cross[y][x] = num / complex(mag, 0)
		}
	}

	corr := fft.IFFT2(cross)
	peakX, peakY, peakVal := 0, 0, -1.0
	for y := range corr {
		for x := range corr[y] {
			v := cmplx.Abs(corr[y][x])
			if v > peakVal {
				peakVal, peakX, peakY = v, x, y
			}
		}
	}

	dx := peakX
	if dx > w/2 {
		dx -= w
	}
	dy := peakY
	if dy > h/2 {
		dy -= h
	}

	sx := parabolicOffset(corrMag(corr, peakX-1, peakY, w, h), peakVal, corrMag(corr, peakX+1, peakY, w, h))
	sy := parabolicOffset(corrMag(corr, peakX, peakY-1, w, h), peakVal, corrMag(corr, peakX, peakY+1, w, h))

	return Offset{DX: float64(dx) + sx, DY: float64(dy) + sy}, nil
}

func corrMag(corr [][]complex128, x, y, w, h int) float64 {
	x = ((x % w) + w) % w
	y = ((y % h) + h) % h
	return cmplx.Abs(corr[y][x])
}

// parabolicOffset fits a parabola through (left, center, right) samples
// straddling a discrete peak and returns the sub-pixel offset of the true
// maximum from the center sample (spec.md §4.J: "or sub-pixel").
func parabolicOffset(left, center, right float64) float64 {
	denom := left - 2*center + right
	if denom == 0 {
		return 0
	}
	return 0.5 * (left - right) / denom
}

func planeToRows(p *image.Plane) [][]float64 {
	rows := make([][]float64, p.Height)
	for y := 0; y < p.Height; y++ {
		row := make([]float64, p.Width)
		for x := 0; x < p.Width; x++ {
			row[x] = float64(p.At(x, y))
		}
		rows[y] = row
	}
	return rows
}

// AlignStandard phase-correlates each consecutive pair of frames and
// accumulates the offsets relative to frames[0] (spec.md §4.J: "accumulate
// integer (or sub-pixel) offsets"). progress, if non-nil, is called with a
// fraction in [0,1] after each pair; returning false cancels the run.
func AlignStandard(frames []*image.Plane, progress func(float64) bool) ([]Offset, error) {
	offsets := make([]Offset, len(frames))
	if len(frames) == 0 {
		return offsets, nil
	}
	var cum Offset
	offsets[0] = cum
	for i := 1; i < len(frames); i++ {
		d, err := PhaseCorrelate(frames[i-1], frames[i])
		if err != nil {
			return nil, err
		}
		cum.DX += d.DX
		cum.DY += d.DY
		offsets[i] = cum
		if progress != nil && len(frames) > 1 {
			if !progress(float64(i) / float64(len(frames)-1)) {
				return nil, imgerr.New(imgerr.Cancelled, "alignment cancelled at frame %d", i)
			}
		}
	}
	return offsets, nil
}

// AlignRGBChannels treats the three channels of plane as three consecutive
// standard-mode frames (spec.md §4.J: "treat the three mono channels of a
// single RGB image as three consecutive images for the 'standard'
// method"), aligns G and B onto R, and returns the realigned plane.
func AlignRGBChannels(plane *image.RGBPlane) (*image.RGBPlane, error) {
	offsets, err := AlignStandard([]*image.Plane{plane.R, plane.G, plane.B}, nil)
	if err != nil {
		return nil, err
	}
	return &image.RGBPlane{
		R: plane.R.Clone(),
		G: image.Translate(plane.G, -offsets[1].DX, -offsets[1].DY, true),
		B: image.Translate(plane.B, -offsets[2].DX, -offsets[2].DY, true),
	}, nil
}

// roundNearest rounds v to the nearest integer, ties away from zero.
func roundNearest(v float64) int {
	if v >= 0 {
		return int(math.Floor(v + 0.5))
	}
	return int(math.Ceil(v - 0.5))
}
