package mathkernel

import "github.com/GreatAttractor/imppg/internal/image"

const transposeTile = 16

// ConvolveSeparable convolves src with the given symmetric 1D kernel along
// rows, transposes, convolves along what are now the original columns,
// then transposes back (spec.md §4.C). Border pixels are handled by
// clamp-to-edge replication. The internal transpose uses 16x16 tiles for
// cache friendliness, matching the original's tile-transposition strategy.
func ConvolveSeparable(src *image.Plane, kernel []float32) *image.Plane {
	rowPass := convolveRows(src, kernel)
	transposed := transpose(rowPass)
	colPass := convolveRows(transposed, kernel)
	return transpose(colPass)
}

// ConvolveHorizontal runs just the row pass of ConvolveSeparable, used by
// the GPU backend to model its gaussian_horz program as a standalone
// ping-pong step (spec.md §9).
func ConvolveHorizontal(src *image.Plane, kernel []float32) *image.Plane {
	return convolveRows(src, kernel)
}

// ConvolveVertical runs just the column pass of ConvolveSeparable, used by
// the GPU backend to model its gaussian_vert program as a standalone
// ping-pong step (spec.md §9).
func ConvolveVertical(src *image.Plane, kernel []float32) *image.Plane {
	return transpose(convolveRows(transpose(src), kernel))
}

func convolveRows(src *image.Plane, kernel []float32) *image.Plane {
	dst := image.NewPlane(src.Width, src.Height)
	r := len(kernel) / 2
	for y := 0; y < src.Height; y++ {
		rowOff := y * src.Width
		for x := 0; x < src.Width; x++ {
			var acc float32
			for k := 0; k < len(kernel); k++ {
				sx := x + (k - r)
				if sx < 0 {
					sx = 0
				} else if sx >= src.Width {
					sx = src.Width - 1
				}
				acc += kernel[k] * src.Pix[rowOff+sx]
			}
			dst.Pix[rowOff+x] = acc
		}
	}
	return dst
}

func transpose(src *image.Plane) *image.Plane {
	dst := image.NewPlane(src.Height, src.Width)
	for by := 0; by < src.Height; by += transposeTile {
		for bx := 0; bx < src.Width; bx += transposeTile {
			yMax := min(by+transposeTile, src.Height)
			xMax := min(bx+transposeTile, src.Width)
			for y := by; y < yMax; y++ {
				for x := bx; x < xMax; x++ {
					dst.Pix[x*dst.Width+y] = src.Pix[y*src.Width+x]
				}
			}
		}
	}
	return dst
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
