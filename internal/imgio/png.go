package imgio

import (
	stdimage "image"
	"image/color"
	"image/png"
	"io"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// LoadPNG decodes a PNG via the standard library and converts it into our
// MONO8/RGB8/RGBA8 Image model (spec.md §4.B: PNG support is optional,
// stdlib image/png is the natural fit since no third-party PNG codec
// appears anywhere in the retrieved pack).
func LoadPNG(r io.Reader) (*image.Image, error) {
	src, err := png.Decode(r)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.FormatError, err, "decoding PNG")
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if gray, ok := src.(*stdimage.Gray); ok {
		im := image.New(w, h, pixfmt.MONO8)
		for y := 0; y < h; y++ {
			row := im.RowMut(y)
			srcRow := gray.Pix[(y)*gray.Stride : y*gray.Stride+w]
			copy(row, srcRow)
		}
		return im, nil
	}

	hasAlpha := false
	switch src.(type) {
	case *stdimage.NRGBA, *stdimage.RGBA:
		hasAlpha = true
	}
	format := pixfmt.RGB8
	if hasAlpha {
		format = pixfmt.RGBA8
	}
	im := image.New(w, h, format)
	for y := 0; y < h; y++ {
		row := im.RowMut(y)
		for x := 0; x < w; x++ {
			r, g, b, a := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := x * format.BytesPerPixel()
			row[off+0] = byte(r >> 8)
			row[off+1] = byte(g >> 8)
			row[off+2] = byte(b >> 8)
			if hasAlpha {
				row[off+3] = byte(a >> 8)
			}
		}
	}
	return im, nil
}

// SavePNG encodes im as an 8-bit PNG via the standard library.
func SavePNG(w io.Writer, im *image.Image) error {
	bounds := stdimage.Rect(0, 0, im.Width, im.Height)
	var dst stdimage.Image

	switch im.Format {
	case pixfmt.MONO8:
		g := stdimage.NewGray(bounds)
		for y := 0; y < im.Height; y++ {
			copy(g.Pix[y*g.Stride:y*g.Stride+im.Width], im.Row(y))
		}
		dst = g
	case pixfmt.RGB8, pixfmt.BGR8:
		nrgba := stdimage.NewNRGBA(bounds)
		isBGR := im.Format == pixfmt.BGR8
		for y := 0; y < im.Height; y++ {
			row := im.Row(y)
			for x := 0; x < im.Width; x++ {
				c0, c1, c2 := row[x*3], row[x*3+1], row[x*3+2]
				if isBGR {
					c0, c2 = c2, c0
				}
				nrgba.SetNRGBA(x, y, color.NRGBA{R: c0, G: c1, B: c2, A: 0xFF})
			}
		}
		dst = nrgba
	case pixfmt.RGBA8, pixfmt.BGRA8:
		nrgba := stdimage.NewNRGBA(bounds)
		isBGR := im.Format == pixfmt.BGRA8
		for y := 0; y < im.Height; y++ {
			row := im.Row(y)
			for x := 0; x < im.Width; x++ {
				c0, c1, c2, c3 := row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]
				if isBGR {
					c0, c2 = c2, c0
				}
				nrgba.SetNRGBA(x, y, color.NRGBA{R: c0, G: c1, B: c2, A: c3})
			}
		}
		dst = nrgba
	default:
		return imgerr.New(imgerr.InvalidArgument, "PNG does not support format %s", im.Format)
	}

	if err := png.Encode(w, dst); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "encoding PNG")
	}
	return nil
}
