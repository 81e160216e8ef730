package mathkernel

import (
	"math"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/pool"
)

// BlurMode selects how GaussianBlur chooses its implementation.
type BlurMode int

const (
	// AUTO picks standard convolution for r < 8, recursive otherwise (spec.md §4.C).
	AUTO BlurMode = iota
	Standard
	Recursive
)

// GaussianBlur blurs src with an isotropic Gaussian of the given sigma,
// dispatching between ConvolveSeparable and the Young-van Vliet recursive
// approximation per mode (spec.md §4.C).
func GaussianBlur(src *image.Plane, sigma float64, mode BlurMode) *image.Plane {
	switch mode {
	case Standard:
		return ConvolveSeparable(src, Kernel1D(sigma, true))
	case Recursive:
		return recursiveGaussian(src, sigma)
	default: // AUTO
		if KernelRadius(sigma) < 8 || sigma < 0.5 {
			return ConvolveSeparable(src, Kernel1D(sigma, true))
		}
		return recursiveGaussian(src, sigma)
	}
}

// yvvCoeffs holds the Young-van Vliet recursive filter coefficients
// derived from sigma (spec.md §4.C: two-branch formula for
// sigma in [0.5, 2.5] vs otherwise).
type yvvCoeffs struct {
	b0, b1, b2, b3, B float64
}

func deriveYVVCoeffs(sigma float64) yvvCoeffs {
	var m0, m1, m2, m1sq, m2sq float64
	if sigma >= 0.5 && sigma <= 2.5 {
		m0 = 1.16680
		m1 = 1.10783
		m2 = 1.40586
	} else {
		m0 = 1.14348
		m1 = 1.43248
		m2 = 1.00000
	}
	q := sigma
	// Young-van Vliet pole parametrization, scaled by q (sigma).
	scale := 1.0 / q
	m1sq = m1 * scale
	m2sq = m2 * scale
	b1 := -2 * math.Exp(-m1sq) * math.Cos(m2sq)
	b2 := math.Exp(-2 * m1sq)
	b3 := math.Exp(-m0 / q)
	// Overall gain normalizes the causal+anticausal pair to unit DC gain.
	B := (1 + b1 + b2 - b3) * (1 + b3) / (1 - b1 - b2 - b3*b3 - b1*b3)
	if B == 0 || math.IsNaN(B) {
		B = 1
	}
	return yvvCoeffs{b0: 1, b1: b1, b2: b2, b3: b3, B: B}
}

// recursiveGaussian1D applies the 3rd-order causal+anti-causal recursion
// to a single row of samples, with border values extended by replication.
func recursiveGaussian1D(in []float32, c yvvCoeffs) []float32 {
	n := len(in)
	if n == 0 {
		return in
	}
	fwd := pool.Float64.Get(n)
	defer pool.Float64.Put(fwd)
	v0 := float64(in[0])
	fwd[0] = c.B * v0
	if n > 1 {
		fwd[1] = c.B*float64(in[1]) - c.b1*fwd[0] - c.b2*v0 - c.b3*v0
	}
	if n > 2 {
		fwd[2] = c.B*float64(in[2]) - c.b1*fwd[1] - c.b2*fwd[0] - c.b3*v0
	}
	for i := 3; i < n; i++ {
		fwd[i] = c.B*float64(in[i]) - c.b1*fwd[i-1] - c.b2*fwd[i-2] - c.b3*fwd[i-3]
	}

	out := pool.Float64.Get(n)
	defer pool.Float64.Put(out)
	vN := fwd[n-1]
	out[n-1] = c.B * vN
	if n > 1 {
		out[n-2] = c.B*fwd[n-2] - c.b1*out[n-1] - c.b2*vN - c.b3*vN
	}
	if n > 2 {
		out[n-3] = c.B*fwd[n-3] - c.b1*out[n-2] - c.b2*out[n-1] - c.b3*vN
	}
	for i := n - 4; i >= 0; i-- {
		out[i] = c.B*fwd[i] - c.b1*out[i+1] - c.b2*out[i+2] - c.b3*out[i+3]
	}

	result := make([]float32, n)
	for i, v := range out {
		result[i] = float32(v)
	}
	return result
}

func recursiveGaussian(src *image.Plane, sigma float64) *image.Plane {
	c := deriveYVVCoeffs(sigma)
	dst := image.NewPlane(src.Width, src.Height)
	row := make([]float32, src.Width)
	for y := 0; y < src.Height; y++ {
		copy(row, src.Pix[y*src.Width:(y+1)*src.Width])
		filtered := recursiveGaussian1D(row, c)
		copy(dst.Pix[y*src.Width:(y+1)*src.Width], filtered)
	}
	col := make([]float32, src.Height)
	for x := 0; x < src.Width; x++ {
		for y := 0; y < src.Height; y++ {
			col[y] = dst.Pix[y*src.Width+x]
		}
		filtered := recursiveGaussian1D(col, c)
		for y := 0; y < src.Height; y++ {
			dst.Pix[y*src.Width+x] = filtered[y]
		}
	}
	return dst
}
