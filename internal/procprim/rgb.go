package procprim

import (
	"context"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

// LRDeconvolveRGB runs LRDeconvolve independently on each of the three
// channels of plane (spec.md §4.D: RGB images are processed channel by
// channel, identically to mono).
func LRDeconvolveRGB(ctx context.Context, plane *image.RGBPlane, sigma float64, iterations int, progress ProgressFunc) (*image.RGBPlane, error) {
	out := &image.RGBPlane{}
	channels := [3]**image.Plane{&out.R, &out.G, &out.B}
	in := [3]*image.Plane{plane.R, plane.G, plane.B}
	for i, ch := range in {
		result, err := LRDeconvolve(ctx, ch, sigma, iterations, progress)
		if err != nil {
			return out, err
		}
		*channels[i] = result
	}
	return out, nil
}

// DeringRGB applies Dering independently to each channel.
func DeringRGB(plane *image.RGBPlane, sigma float64) *image.RGBPlane {
	return &image.RGBPlane{
		R: Dering(plane.R, sigma),
		G: Dering(plane.G, sigma),
		B: Dering(plane.B, sigma),
	}
}

// UnsharpMaskRGB applies one unsharp mask stage to each channel, sharing a
// single steering signal across all three channels when adaptive (spec.md
// §5): the steering signal is derived once from the RGB plane's luminance,
// not recomputed per channel.
func UnsharpMaskRGB(plane *image.RGBPlane, p UnsharpMaskParams, steering *image.Plane) *image.RGBPlane {
	return &image.RGBPlane{
		R: UnsharpMask(plane.R, p, steering),
		G: UnsharpMask(plane.G, p, steering),
		B: UnsharpMask(plane.B, p, steering),
	}
}

// Luminance computes the steering luminance plane for an RGB image as the
// per-pixel average of the three channels, matching the mono-equivalent
// conversion used elsewhere in the pipeline (spec.md §4.B).
func Luminance(plane *image.RGBPlane) *image.Plane {
	out := image.NewPlane(plane.R.Width, plane.R.Height)
	for i := range out.Pix {
		out.Pix[i] = (plane.R.Pix[i] + plane.G.Pix[i] + plane.B.Pix[i]) / 3
	}
	return out
}

// ApplyToneCurveRGB maps every channel of plane through curve.
func ApplyToneCurveRGB(plane *image.RGBPlane, curve *tonecurve.Curve, precise bool) *image.RGBPlane {
	return &image.RGBPlane{
		R: ApplyToneCurve(plane.R, curve, precise),
		G: ApplyToneCurve(plane.G, curve, precise),
		B: ApplyToneCurve(plane.B, curve, precise),
	}
}
