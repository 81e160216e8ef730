// Package procprim implements the processing primitives: Lucy-Richardson
// deconvolution with deringing, multi-stage unsharp masking, and tone
// curve application (spec.md §4.D), grounded on
// src/backend/src/cpu_bmp/lrdeconv.cpp and w_unshmask.cpp.
package procprim

import (
	"context"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/mathkernel"
)

const lrEpsilon = 1e-8

// ProgressFunc reports fractional completion in [0,1]; returning false
// requests cancellation of the remaining work.
type ProgressFunc func(frac float64) (keepGoing bool)

// LRDeconvolve runs Lucy-Richardson deconvolution on a single-channel
// working plane (spec.md §4.D):
//
//	E_0 = I
//	E_{k+1} = E_k * ( I / (E_k * PSF) * PSF )
//
// with PSF a Gaussian of the given sigma. iterations=0 returns a copy of
// the input. The result is clamped to [0,1]. ctx cancellation and
// progress are checked once per iteration.
func LRDeconvolve(ctx context.Context, input *image.Plane, sigma float64, iterations int, progress ProgressFunc) (*image.Plane, error) {
	if iterations == 0 {
		return input.Clone(), nil
	}
	estimate := input.Clone()
	for k := 0; k < iterations; k++ {
		select {
		case <-ctx.Done():
			return estimate, imgerr.Wrap(imgerr.Cancelled, ctx.Err(), "L-R deconvolution cancelled at iteration %d", k)
		default:
		}

		convolved := mathkernel.GaussianBlur(estimate, sigma, mathkernel.AUTO)
		ratio := image.NewPlane(input.Width, input.Height)
		for i := range ratio.Pix {
			ratio.Pix[i] = input.Pix[i] / (convolved.Pix[i] + lrEpsilon)
		}
		correction := mathkernel.GaussianBlur(ratio, sigma, mathkernel.AUTO)
		next := image.NewPlane(input.Width, input.Height)
		for i := range next.Pix {
			next.Pix[i] = estimate.Pix[i] * correction.Pix[i]
		}
		estimate = next

		if progress != nil {
			if !progress(float64(k+1) / float64(iterations)) {
				return clamp01Plane(estimate), imgerr.New(imgerr.Cancelled, "L-R deconvolution cancelled at iteration %d", k+1)
			}
		}
	}
	return clamp01Plane(estimate), nil
}

func clamp01Plane(p *image.Plane) *image.Plane {
	for i, v := range p.Pix {
		if v < 0 {
			p.Pix[i] = 0
		} else if v > 1 {
			p.Pix[i] = 1
		}
	}
	return p
}
