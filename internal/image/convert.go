package image

import "github.com/GreatAttractor/imppg/internal/pixfmt"

// Convert converts im to the destination format following spec.md §4.A:
// per-channel scaling between 8-bit/16-bit/float representations,
// mono<->RGB replication/averaging, BGR(A)<->RGB permutation, and PAL8
// lookup. Out-of-range float inputs are clamped to [0,1].
func Convert(im *Image, dst pixfmt.Format) (*Image, error) {
	if im.Format == dst {
		return im.Clone(), nil
	}
	if im.Format == pixfmt.PAL8 {
		return convertFromPalette(im, dst)
	}

	srcMono, dstMono := im.Format.IsMono(), dst.IsMono()
	switch {
	case srcMono && dstMono:
		p, err := ToPlane(im)
		if err != nil {
			return nil, err
		}
		return PlaneToImage(p, dst)
	case !srcMono && !dstMono:
		p, err := ToRGBPlane(im)
		if err != nil {
			return nil, err
		}
		return RGBPlaneToImage(p, dst)
	case srcMono && !dstMono:
		// Mono to RGB replicates the single channel (spec.md §4.A).
		p, err := ToPlane(im)
		if err != nil {
			return nil, err
		}
		rgb := &RGBPlane{R: p, G: p.Clone(), B: p.Clone()}
		return RGBPlaneToImage(rgb, dst)
	default:
		// RGB to mono averages the three channels (spec.md §4.A).
		rgb, err := ToRGBPlane(im)
		if err != nil {
			return nil, err
		}
		out := NewPlane(rgb.R.Width, rgb.R.Height)
		for i := range out.Pix {
			out.Pix[i] = (rgb.R.Pix[i] + rgb.G.Pix[i] + rgb.B.Pix[i]) / 3
		}
		return PlaneToImage(out, dst)
	}
}

func convertFromPalette(im *Image, dst pixfmt.Format) (*Image, error) {
	pal := im.Palette()
	rgb := NewRGBPlane(im.Width, im.Height)
	for y := 0; y < im.Height; y++ {
		row := im.Row(y)
		for x := 0; x < im.Width; x++ {
			idx := int(row[x])
			rgb.R.Set(x, y, float32(pal[idx*3])/0xFF)
			rgb.G.Set(x, y, float32(pal[idx*3+1])/0xFF)
			rgb.B.Set(x, y, float32(pal[idx*3+2])/0xFF)
		}
	}
	if dst.IsMono() {
		out := NewPlane(im.Width, im.Height)
		for i := range out.Pix {
			out.Pix[i] = (rgb.R.Pix[i] + rgb.G.Pix[i] + rgb.B.Pix[i]) / 3
		}
		return PlaneToImage(out, dst)
	}
	return RGBPlaneToImage(rgb, dst)
}

// IsIdentityGrayRamp reports whether a 256-entry RGB palette is the
// identity gray ramp (pal[i] == (i,i,i) for all i), used by the BMP loader
// to auto-detect a palettized image as effectively MONO8 (spec.md §4.B).
func IsIdentityGrayRamp(pal []byte) bool {
	if len(pal) < 768 {
		return false
	}
	for i := 0; i < 256; i++ {
		if pal[i*3] != byte(i) || pal[i*3+1] != byte(i) || pal[i*3+2] != byte(i) {
			return false
		}
	}
	return true
}
