package image

import (
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// SplitRGB yields three mono images of the same bit depth as im
// (spec.md §4.A).
func SplitRGB(im *Image) (r, g, b *Image, err error) {
	if im.Format.IsMono() {
		return nil, nil, nil, imgerr.New(imgerr.InvalidArgument, "SplitRGB requires a color image, got %s", im.Format)
	}
	rgb, err := ToRGBPlane(im)
	if err != nil {
		return nil, nil, nil, err
	}
	mono := im.Format.MonoEquivalent()
	ri, err := PlaneToImage(rgb.R, mono)
	if err != nil {
		return nil, nil, nil, err
	}
	gi, err := PlaneToImage(rgb.G, mono)
	if err != nil {
		return nil, nil, nil, err
	}
	bi, err := PlaneToImage(rgb.B, mono)
	if err != nil {
		return nil, nil, nil, err
	}
	return ri, gi, bi, nil
}

// CombineRGB requires three mono images with identical dimensions and
// format, and interleaves them into RGB of the matching bit depth
// (spec.md §4.A).
func CombineRGB(r, g, b *Image) (*Image, error) {
	if !r.Format.IsMono() || !g.Format.IsMono() || !b.Format.IsMono() {
		return nil, imgerr.New(imgerr.InvalidArgument, "CombineRGB requires mono inputs")
	}
	if r.Format != g.Format || r.Format != b.Format {
		return nil, imgerr.New(imgerr.InvalidArgument, "CombineRGB requires identical formats")
	}
	if r.Width != g.Width || r.Width != b.Width || r.Height != g.Height || r.Height != b.Height {
		return nil, imgerr.New(imgerr.InvalidArgument, "CombineRGB requires identical dimensions")
	}
	rp, err := ToPlane(r)
	if err != nil {
		return nil, err
	}
	gp, err := ToPlane(g)
	if err != nil {
		return nil, err
	}
	bp, err := ToPlane(b)
	if err != nil {
		return nil, err
	}
	return RGBPlaneToImage(&RGBPlane{R: rp, G: gp, B: bp}, r.Format.ColorEquivalent())
}

// Blend computes (wA*A + wB*B)/(wA+wB) per pixel on MONO32F or RGB32F
// images. A zero total weight yields a zero image (spec.md §4.A).
func Blend(a *Image, wa float32, b *Image, wb float32) (*Image, error) {
	if a.Format != pixfmt.MONO32F && a.Format != pixfmt.RGB32F {
		return nil, imgerr.New(imgerr.InvalidArgument, "Blend requires MONO32F or RGB32F, got %s", a.Format)
	}
	if a.Format != b.Format || a.Width != b.Width || a.Height != b.Height {
		return nil, imgerr.New(imgerr.InvalidArgument, "Blend requires matching format and dimensions")
	}
	total := wa + wb
	blendPix := func(av, bv float32) float32 {
		if total == 0 {
			return 0
		}
		return (wa*av + wb*bv) / total
	}
	if a.Format == pixfmt.MONO32F {
		ap, _ := ToPlane(a)
		bp, _ := ToPlane(b)
		out := NewPlane(ap.Width, ap.Height)
		for i := range out.Pix {
			out.Pix[i] = blendPix(ap.Pix[i], bp.Pix[i])
		}
		return PlaneToImage(out, pixfmt.MONO32F)
	}
	arp, _ := ToRGBPlane(a)
	brp, _ := ToRGBPlane(b)
	out := NewRGBPlane(a.Width, a.Height)
	for ch := 0; ch < 3; ch++ {
		as, bs, os := arp.Channels()[ch], brp.Channels()[ch], out.Channels()[ch]
		for i := range os.Pix {
			os.Pix[i] = blendPix(as.Pix[i], bs.Pix[i])
		}
	}
	return RGBPlaneToImage(out, pixfmt.RGB32F)
}

// Multiply computes an element-wise product of two MONO32F images of
// matching dimensions (spec.md §4.A).
func Multiply(a, b *Image) (*Image, error) {
	if a.Format != pixfmt.MONO32F || b.Format != pixfmt.MONO32F {
		return nil, imgerr.New(imgerr.InvalidArgument, "Multiply requires MONO32F inputs")
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, imgerr.New(imgerr.InvalidArgument, "Multiply requires matching dimensions")
	}
	ap, _ := ToPlane(a)
	bp, _ := ToPlane(b)
	out := NewPlane(ap.Width, ap.Height)
	for i := range out.Pix {
		out.Pix[i] = ap.Pix[i] * bp.Pix[i]
	}
	return PlaneToImage(out, pixfmt.MONO32F)
}

// MultiplyPlane is the Plane-level analogue of Multiply, used internally
// by the processing pipeline where images are already in working form.
func MultiplyPlane(a, b *Plane) *Plane {
	out := NewPlane(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = a.Pix[i] * b.Pix[i]
	}
	return out
}

// AutoWhiteBalance rescales each channel of a color image so its mean
// matches the overall gray-world mean (spec.md §6: image.awb()). This is
// the gray-world simplification of the teacher's star-median neutral-point
// balancing (AutoBalanceColors in rgb.go), which depends on a star
// detector outside this module's scope.
func AutoWhiteBalance(im *Image) (*Image, error) {
	rgb, err := ToRGBPlane(im)
	if err != nil {
		return nil, err
	}
	means := make([]float64, 3)
	for ch, p := range rgb.Channels() {
		var sum float64
		for _, v := range p.Pix {
			sum += float64(v)
		}
		means[ch] = sum / float64(len(p.Pix))
	}
	gray := (means[0] + means[1] + means[2]) / 3
	for ch, p := range rgb.Channels() {
		if means[ch] == 0 {
			continue
		}
		gain := float32(gray / means[ch])
		for i, v := range p.Pix {
			p.Pix[i] = clamp01(v * gain)
		}
	}
	return RGBPlaneToImage(rgb, im.Format)
}
