package procprim

import (
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

// ApplyToneCurve maps every sample of input through curve (spec.md §4.D).
// When precise is false the fast LUT-backed Evaluate is used, appropriate
// for interactive preview; precise evaluation is used exactly once, right
// before the final image is saved.
func ApplyToneCurve(input *image.Plane, curve *tonecurve.Curve, precise bool) *image.Plane {
	out := image.NewPlane(input.Width, input.Height)
	if precise {
		for i, v := range input.Pix {
			out.Pix[i] = curve.EvaluatePrecise(float64(v))
		}
		return out
	}
	for i, v := range input.Pix {
		out.Pix[i] = curve.Evaluate(float64(v))
	}
	return out
}
