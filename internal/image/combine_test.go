package image

import (
	"math"
	"testing"

	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

func TestSplitCombineRGBRoundTrip(t *testing.T) {
	rgb := NewRGBPlane(2, 2)
	rgb.R.Set(0, 0, 1)
	rgb.G.Set(0, 0, 0.5)
	rgb.B.Set(0, 0, 0.25)
	im, err := RGBPlaneToImage(rgb, pixfmt.RGB8)
	if err != nil {
		t.Fatal(err)
	}

	r, g, b, err := SplitRGB(im)
	if err != nil {
		t.Fatal(err)
	}
	if r.Format != pixfmt.MONO8 || g.Format != pixfmt.MONO8 || b.Format != pixfmt.MONO8 {
		t.Fatalf("split channels must be MONO8, got %s/%s/%s", r.Format, g.Format, b.Format)
	}

	combined, err := CombineRGB(r, g, b)
	if err != nil {
		t.Fatal(err)
	}
	if combined.Format != pixfmt.RGB8 {
		t.Errorf("CombineRGB format = %s, want RGB8", combined.Format)
	}
	for i, v := range im.Row(0) {
		if combined.Row(0)[i] != v {
			t.Errorf("byte %d = %d, want %d", i, combined.Row(0)[i], v)
		}
	}
}

func TestSplitRGBRejectsMono(t *testing.T) {
	im := New(2, 2, pixfmt.MONO8)
	if _, _, _, err := SplitRGB(im); err == nil {
		t.Error("SplitRGB(mono) should have returned an error")
	}
}

func TestCombineRGBRejectsMismatchedDimensions(t *testing.T) {
	r := New(2, 2, pixfmt.MONO8)
	g := New(3, 3, pixfmt.MONO8)
	b := New(2, 2, pixfmt.MONO8)
	if _, err := CombineRGB(r, g, b); err == nil {
		t.Error("CombineRGB should reject mismatched dimensions")
	}
}

func TestBlendEqualWeightsAverages(t *testing.T) {
	a, err := PlaneToImage(flatPlane(2, 2, 0.2), pixfmt.MONO32F)
	if err != nil {
		t.Fatal(err)
	}
	b, err := PlaneToImage(flatPlane(2, 2, 0.8), pixfmt.MONO32F)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Blend(a, 1, b, 1)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ToPlane(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.At(0, 0); math.Abs(float64(got-0.5)) > 1e-6 {
		t.Errorf("Blend(0.2,0.8) equal weights = %v, want 0.5", got)
	}
}

func TestBlendZeroTotalWeightYieldsZero(t *testing.T) {
	a, _ := PlaneToImage(flatPlane(1, 1, 1.0), pixfmt.MONO32F)
	b, _ := PlaneToImage(flatPlane(1, 1, 1.0), pixfmt.MONO32F)
	out, err := Blend(a, 1, b, -1)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ToPlane(out)
	if got := p.At(0, 0); got != 0 {
		t.Errorf("Blend with zero total weight = %v, want 0", got)
	}
}

func TestMultiplyElementWise(t *testing.T) {
	a, _ := PlaneToImage(flatPlane(1, 1, 0.5), pixfmt.MONO32F)
	b, _ := PlaneToImage(flatPlane(1, 1, 0.4), pixfmt.MONO32F)
	out, err := Multiply(a, b)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ToPlane(out)
	if got := p.At(0, 0); math.Abs(float64(got-0.2)) > 1e-6 {
		t.Errorf("Multiply(0.5,0.4) = %v, want 0.2", got)
	}
}

func TestAutoWhiteBalanceEqualizesChannelMeans(t *testing.T) {
	rgb := NewRGBPlane(2, 2)
	for i := range rgb.R.Pix {
		rgb.R.Pix[i] = 0.2
		rgb.G.Pix[i] = 0.4
		rgb.B.Pix[i] = 0.6
	}
	im, err := RGBPlaneToImage(rgb, pixfmt.RGB32F)
	if err != nil {
		t.Fatal(err)
	}
	out, err := AutoWhiteBalance(im)
	if err != nil {
		t.Fatal(err)
	}
	balanced, err := ToRGBPlane(out)
	if err != nil {
		t.Fatal(err)
	}
	meanR, meanG, meanB := mean(balanced.R.Pix), mean(balanced.G.Pix), mean(balanced.B.Pix)
	if math.Abs(float64(meanR-meanG)) > 1e-4 || math.Abs(float64(meanG-meanB)) > 1e-4 {
		t.Errorf("channel means after AWB = %v, %v, %v, want all equal", meanR, meanG, meanB)
	}
}

func flatPlane(w, h int, v float32) *Plane {
	p := NewPlane(w, h)
	for i := range p.Pix {
		p.Pix[i] = v
	}
	return p
}

func mean(xs []float32) float32 {
	var sum float32
	for _, x := range xs {
		sum += x
	}
	return sum / float32(len(xs))
}
