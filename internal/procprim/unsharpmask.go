package procprim

import (
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/mathkernel"
)

// UnsharpMaskParams mirrors one entry of ProcessingSettings.UnsharpMasks
// (spec.md §3, §4.D).
type UnsharpMaskParams struct {
	Sigma      float64
	Adaptive   bool
	AmountMin  float64
	AmountMax  float64 // used directly when !Adaptive
	Threshold  float64 // steering-signal L value at the transition midpoint
	Width      float64 // half-width of the transition region around Threshold
}

// amountCoeffs holds the piecewise-cubic amount(L) coefficients derived
// from an adaptive mask's threshold/width/amount_min/amount_max (spec.md §4.D):
//
//	a = (amount_min - amount_max) / (4*width^3)
//	b = 3*(amount_max - amount_min)*threshold / (4*width^3)
//	c = 3*(amount_max - amount_min)*(width - threshold)*(width + threshold) / (4*width^3)
//	d = (2*width^3*(amount_min+amount_max) + 3*threshold*width^2*(amount_min-amount_max)
//	     + threshold^3*(amount_max-amount_min)) / (4*width^3)
type amountCoeffs struct{ a, b, c, d float64 }

func deriveAmountCoeffs(p UnsharpMaskParams) amountCoeffs {
	w3 := p.Width * p.Width * p.Width
	denom := 4 * w3
	a := (p.AmountMin - p.AmountMax) / denom
	b := 3 * (p.AmountMax - p.AmountMin) * p.Threshold / denom
	c := 3 * (p.AmountMax - p.AmountMin) * (p.Width - p.Threshold) * (p.Width + p.Threshold) / denom
	d := (2*w3*(p.AmountMin+p.AmountMax) +
		3*p.Threshold*p.Width*p.Width*(p.AmountMin-p.AmountMax) +
		p.Threshold*p.Threshold*p.Threshold*(p.AmountMax-p.AmountMin)) / denom
	return amountCoeffs{a, b, c, d}
}

// amountAt evaluates amount(L) for the adaptive mask: clamped to
// [amount_min, amount_max] outside [threshold-width, threshold+width],
// and the cubic polynomial within it (spec.md §4.D).
func (p UnsharpMaskParams) amountAt(l float64, c amountCoeffs) float64 {
	lo, hi := p.Threshold-p.Width, p.Threshold+p.Width
	if l <= lo {
		return p.AmountMin
	}
	if l >= hi {
		return p.AmountMax
	}
	return ((c.a*l+c.b)*l+c.c)*l + c.d
}

// UnsharpMask applies one unsharp-masking stage to a single-channel plane
// (spec.md §4.D):
//
//	out = amount*in + (1-amount)*blur(in)
//
// where amount is a constant (non-adaptive) or amount(L) evaluated per
// pixel against a steering luminance signal (adaptive). When steering is
// nil for an adaptive mask, the input itself is used as the steering
// signal (spec.md §5: resolved Open Question on steering-signal reuse).
func UnsharpMask(input *image.Plane, p UnsharpMaskParams, steering *image.Plane) *image.Plane {
	blurred := mathkernel.GaussianBlur(input, p.Sigma, mathkernel.AUTO)
	out := image.NewPlane(input.Width, input.Height)

	if !p.Adaptive {
		amount := float32(p.AmountMax)
		for i := range out.Pix {
			out.Pix[i] = amount*input.Pix[i] + (1-amount)*blurred.Pix[i]
		}
		return out
	}

	if steering == nil {
		steering = input
	}
	coeffs := deriveAmountCoeffs(p)
	for i := range out.Pix {
		amount := float32(p.amountAt(float64(steering.Pix[i]), coeffs))
		out.Pix[i] = amount*input.Pix[i] + (1-amount)*blurred.Pix[i]
	}
	return out
}

// SteeringSignal computes the blurred-luminance steering signal for an
// adaptive mask: a Gaussian blur of the mono luminance at the given sigma.
// The scheduler calls it with sigma 1.0 for every adaptive mask stage of
// every run; the result is not cached between masks, runs or selections.
func SteeringSignal(luminance *image.Plane, sigma float64) *image.Plane {
	return mathkernel.GaussianBlur(luminance, sigma, mathkernel.AUTO)
}
