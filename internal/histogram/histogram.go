// Package histogram computes selection-bound histograms over image data
// (spec.md §4.K), grounded on the teacher's internal/cmdstats.go bucket-count
// idiom.
package histogram

import (
	"math"

	"github.com/GreatAttractor/imppg/internal/image"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the bin count used for 8-bit data (spec.md §4.K).
const DefaultBins = 256

// Histogram is a selection-bound value distribution (spec.md §4.K).
type Histogram struct {
	Min, Max  float64
	BinCounts []int
	MaxCount  int
}

// Selection is a rectangle clamped to the source image (spec.md §3).
type Selection struct {
	X, Y, Width, Height int
}

// Clamp constrains sel to the image rectangle (spec.md §3).
func (sel Selection) Clamp(imgW, imgH int) Selection {
	x0, y0 := sel.X, sel.Y
	x1, y1 := sel.X+sel.Width, sel.Y+sel.Height
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > imgW {
		x1 = imgW
	}
	if y1 > imgH {
		y1 = imgH
	}
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Selection{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ComputePlane builds a histogram over sel of plane, first finding the
// extrema and then bucketing into numBins equal-width bins (spec.md §4.K:
// "min/max extracted first then bucketed"). numBins <= 0 defaults to
// DefaultBins.
func ComputePlane(plane *image.Plane, sel Selection, numBins int) Histogram {
	if numBins <= 0 {
		numBins = DefaultBins
	}
	sel = sel.Clamp(plane.Width, plane.Height)

	values := make([]float64, 0, sel.Width*sel.Height)
	for y := sel.Y; y < sel.Y+sel.Height; y++ {
		for x := sel.X; x < sel.X+sel.Width; x++ {
			values = append(values, float64(plane.At(x, y)))
		}
	}
	if len(values) == 0 {
		return Histogram{BinCounts: make([]int, numBins)}
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	counts := make([]int, numBins)
	span := max - min
	for _, v := range values {
		var bin int
		if span == 0 {
			bin = 0
		} else {
			bin = int((v - min) / span * float64(numBins))
			if bin >= numBins {
				bin = numBins - 1
			}
		}
		counts[bin]++
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	return Histogram{Min: min, Max: max, BinCounts: counts, MaxCount: maxCount}
}

// Mean and StdDev report the moment statistics of the selection, used by
// the alignment and stacking diagnostics (gonum.org/v1/gonum/stat), not
// just the bucketed distribution.
func Mean(plane *image.Plane, sel Selection) float64 {
	sel = sel.Clamp(plane.Width, plane.Height)
	values := selectionValues(plane, sel)
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func StdDev(plane *image.Plane, sel Selection) float64 {
	sel = sel.Clamp(plane.Width, plane.Height)
	values := selectionValues(plane, sel)
	if len(values) < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		return 0
	}
	return std
}

func selectionValues(plane *image.Plane, sel Selection) []float64 {
	values := make([]float64, 0, sel.Width*sel.Height)
	for y := sel.Y; y < sel.Y+sel.Height; y++ {
		for x := sel.X; x < sel.X+sel.Width; x++ {
			values = append(values, float64(plane.At(x, y)))
		}
	}
	return values
}
