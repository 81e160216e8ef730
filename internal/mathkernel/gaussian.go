// Package mathkernel implements the Gaussian kernel projection, separable
// standard convolution, and the Young–van Vliet recursive Gaussian
// approximation (spec.md §4.C), grounded on the original's gauss.cpp and
// src/math_utils/src/convolution.cpp.
package mathkernel

import "math"

// KernelRadius returns r = ceil(3*sigma), the standard radius used
// throughout this package.
func KernelRadius(sigma float64) int {
	return int(math.Ceil(3 * sigma))
}

// Kernel1D returns the symmetric 1D Gaussian kernel for radius
// r = ceil(3*sigma): size 2r-1, with values exp(-(r-1-i)^2/(2*sigma^2))
// for i in [0,2r-1), so the peak sits at the centre index r-1
// (spec.md §4.C), optionally normalized to sum to 1.
func Kernel1D(sigma float64, normalize bool) []float32 {
	r := KernelRadius(sigma)
	n := 2*r - 1
	if n < 0 {
		n = 0
	}
	k := make([]float32, n)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(r - 1 - i)
		v := math.Exp(-(d * d) / (2 * sigma * sigma))
		k[i] = float32(v)
		sum += v
	}
	if normalize && sum != 0 {
		for i := range k {
			k[i] = float32(float64(k[i]) / sum)
		}
	}
	return k
}
