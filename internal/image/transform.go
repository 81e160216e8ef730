package image

import (
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// TranslateImage applies Translate (or an integer memcpy) to a whole
// Image, per-channel for color formats. Palettized buffers reject
// fractional offsets (spec.md §4.A).
func TranslateImage(im *Image, xOfs, yOfs float64, clear bool) (*Image, error) {
	hasFraction := xOfs != float64(int(xOfs)) || yOfs != float64(int(yOfs))
	if im.Format == pixfmt.PAL8 && hasFraction {
		return nil, imgerr.New(imgerr.InvalidArgument, "palettized images do not support fractional offsets")
	}
	if im.Format.IsMono() && im.Format != pixfmt.PAL8 {
		p, err := ToPlane(im)
		if err != nil {
			return nil, err
		}
		return PlaneToImage(Translate(p, xOfs, yOfs, clear), im.Format)
	}
	if im.Format == pixfmt.PAL8 {
		out := im.Clone()
		src := im.Buf
		dst := out.Buf
		ix, iy := int(xOfs), int(yOfs)
		for y := 0; y < im.Height; y++ {
			row := dst.RowMut(y)
			for x := range row {
				row[x] = 0
			}
		}
		for y := 0; y < im.Height; y++ {
			sy := y - iy
			if sy < 0 || sy >= im.Height {
				continue
			}
			srow := src.Row(sy)
			drow := dst.RowMut(y)
			for x := 0; x < im.Width; x++ {
				sx := x - ix
				if sx < 0 || sx >= im.Width {
					continue
				}
				drow[x] = srow[sx]
			}
		}
		return out, nil
	}
	rgb, err := ToRGBPlane(im)
	if err != nil {
		return nil, err
	}
	out := &RGBPlane{
		R: Translate(rgb.R, xOfs, yOfs, clear),
		G: Translate(rgb.G, xOfs, yOfs, clear),
		B: Translate(rgb.B, xOfs, yOfs, clear),
	}
	return RGBPlaneToImage(out, im.Format)
}

// Translate produces a plane of the same size as src, whose content equals
// src translated by (xOfs, yOfs) (spec.md §4.A). Integer offsets are a
// rectangular copy; fractional offsets use cubic Hermite interpolation
// over the 4x4 neighborhood, with a 2-pixel border on each edge filled by
// nearest-integer copy to avoid out-of-bounds reads. Uncovered regions are
// left at zero when clear is true, or left as whatever NewPlane zeroed.
func Translate(src *Plane, xOfs, yOfs float64, clear bool) *Plane {
	dst := NewPlane(src.Width, src.Height)
	_ = clear // NewPlane already zero-initializes; kept for call-site clarity.

	ix, fx := splitOffset(xOfs)
	iy, fy := splitOffset(yOfs)

	if fx == 0 && fy == 0 {
		translateInteger(src, dst, ix, iy)
		return dst
	}

	for dy := 0; dy < dst.Height; dy++ {
		sy := float64(dy) - yOfs
		for dx := 0; dx < dst.Width; dx++ {
			sx := float64(dx) - xOfs
			if inBorder(sx, sy, src.Width, src.Height) {
				nx, ny := int(roundHalfEven(sx)), int(roundHalfEven(sy))
				if nx >= 0 && nx < src.Width && ny >= 0 && ny < src.Height {
					dst.Set(dx, dy, src.At(nx, ny))
				}
				continue
			}
			dst.Set(dx, dy, cubicHermiteSample(src, sx, sy))
		}
	}
	return dst
}

func splitOffset(v float64) (int, float64) {
	i := int(v)
	if float64(i) > v {
		i--
	}
	return i, v - float64(i)
}

func translateInteger(src, dst *Plane, ix, iy int) {
	for dy := 0; dy < dst.Height; dy++ {
		sy := dy - iy
		if sy < 0 || sy >= src.Height {
			continue
		}
		for dx := 0; dx < dst.Width; dx++ {
			sx := dx - ix
			if sx < 0 || sx >= src.Width {
				continue
			}
			dst.Set(dx, dy, src.At(sx, sy))
		}
	}
}

// inBorder reports whether sampling the 4x4 Hermite neighborhood around
// (sx,sy) would read outside [0,w)x[0,h) — i.e. within 2px of the edge.
func inBorder(sx, sy float64, w, h int) bool {
	return sx < 1 || sy < 1 || sx > float64(w-2) || sy > float64(h-2)
}

func roundHalfEven(v float64) float64 {
	f := float64(int(v))
	if v-f >= 0.5 {
		return f + 1
	}
	return f
}

func cubicHermiteSample(src *Plane, sx, sy float64) float32 {
	x0 := int(sx)
	y0 := int(sy)
	fx := float32(sx - float64(x0))
	fy := float32(sy - float64(y0))

	var cols [4]float32
	for j := -1; j <= 2; j++ {
		var p [4]float32
		for i := -1; i <= 2; i++ {
			p[i+1] = src.At(clampIdx(x0+i, src.Width), clampIdx(y0+j, src.Height))
		}
		cols[j+1] = cubicHermite(p[0], p[1], p[2], p[3], fx)
	}
	return cubicHermite(cols[0], cols[1], cols[2], cols[3], fy)
}

func clampIdx(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// cubicHermite interpolates between p1 and p2 at parameter t in [0,1],
// using p0 and p3 as the tangent-defining neighbors (Catmull-Rom tangents).
func cubicHermite(p0, p1, p2, p3, t float32) float32 {
	a := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	b := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c := -0.5*p0 + 0.5*p2
	d := p1
	return ((a*t+b)*t+c)*t + d
}
