package image

import (
	"math"
	"testing"

	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

func TestPlaneAtSetRoundTrip(t *testing.T) {
	p := NewPlane(3, 2)
	p.Set(2, 1, 0.5)
	if got := p.At(2, 1); got != 0.5 {
		t.Errorf("At(2,1) = %v, want 0.5", got)
	}
	if got := p.At(0, 0); got != 0 {
		t.Errorf("At(0,0) = %v, want 0 (zero-initialized)", got)
	}
}

func TestPlaneCloneIndependence(t *testing.T) {
	p := NewPlane(2, 2)
	p.Set(0, 0, 1)
	clone := p.Clone()
	clone.Set(0, 0, 2)
	if p.At(0, 0) != 1 {
		t.Errorf("clone mutation leaked into original")
	}
}

func TestToPlaneMono8RoundTrip(t *testing.T) {
	im := New(1, 1, pixfmt.MONO8)
	im.RowMut(0)[0] = 0xFF
	p, err := ToPlane(im)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.At(0, 0); got != 1.0 {
		t.Errorf("ToPlane(0xFF MONO8) = %v, want 1.0", got)
	}

	out, err := PlaneToImage(p, pixfmt.MONO8)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Row(0)[0]; got != 0xFF {
		t.Errorf("round trip MONO8 = %d, want 0xFF", got)
	}
}

func TestToPlaneMono16RoundTrip(t *testing.T) {
	im := New(1, 1, pixfmt.MONO16)
	row := im.RowMut(0)
	row[0], row[1] = 0xFF, 0xFF // little-endian 0xFFFF
	p, err := ToPlane(im)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.At(0, 0); got != 1.0 {
		t.Errorf("ToPlane(0xFFFF MONO16) = %v, want 1.0", got)
	}
	out, err := PlaneToImage(p, pixfmt.MONO16)
	if err != nil {
		t.Fatal(err)
	}
	gotRow := out.Row(0)
	if gotRow[0] != 0xFF || gotRow[1] != 0xFF {
		t.Errorf("round trip MONO16 = %v, want [0xFF 0xFF]", gotRow)
	}
}

func TestToPlaneRejectsColorFormat(t *testing.T) {
	im := New(1, 1, pixfmt.RGB8)
	if _, err := ToPlane(im); err == nil {
		t.Error("ToPlane(RGB8) should have returned an error")
	}
}

func TestToRGBPlaneBGRChannelOrder(t *testing.T) {
	im := New(1, 1, pixfmt.BGR8)
	row := im.RowMut(0)
	row[0], row[1], row[2] = 10, 20, 30 // stored as B,G,R
	rgb, err := ToRGBPlane(im)
	if err != nil {
		t.Fatal(err)
	}
	wantR, wantG, wantB := float32(30)/0xFF, float32(20)/0xFF, float32(10)/0xFF
	if got := rgb.R.At(0, 0); math.Abs(float64(got-wantR)) > 1e-6 {
		t.Errorf("R = %v, want %v", got, wantR)
	}
	if got := rgb.G.At(0, 0); math.Abs(float64(got-wantG)) > 1e-6 {
		t.Errorf("G = %v, want %v", got, wantG)
	}
	if got := rgb.B.At(0, 0); math.Abs(float64(got-wantB)) > 1e-6 {
		t.Errorf("B = %v, want %v", got, wantB)
	}
}

func TestToRGBPlaneDropsAlpha(t *testing.T) {
	im := New(1, 1, pixfmt.RGBA8)
	row := im.RowMut(0)
	row[0], row[1], row[2], row[3] = 1, 2, 3, 0
	rgb, err := ToRGBPlane(im)
	if err != nil {
		t.Fatal(err)
	}
	// alpha=0 must not zero the color channels; only R,G,B are consulted.
	if rgb.R.At(0, 0) == 0 && rgb.G.At(0, 0) == 0 && rgb.B.At(0, 0) == 0 {
		t.Errorf("expected nonzero color channels regardless of alpha=0")
	}
}

func TestRGBPlaneToImageRoundTrip(t *testing.T) {
	rgb := NewRGBPlane(1, 1)
	rgb.R.Set(0, 0, 1)
	rgb.G.Set(0, 0, 0.5)
	rgb.B.Set(0, 0, 0)
	im, err := RGBPlaneToImage(rgb, pixfmt.RGB8)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ToRGBPlane(im)
	if err != nil {
		t.Fatal(err)
	}
	const eps = 1.0 / 0xFF
	if math.Abs(float64(back.R.At(0, 0)-1)) > eps {
		t.Errorf("R round trip = %v, want ~1", back.R.At(0, 0))
	}
	if math.Abs(float64(back.G.At(0, 0)-0.5)) > eps {
		t.Errorf("G round trip = %v, want ~0.5", back.G.At(0, 0))
	}
}

func TestPlaneToImageClampsOutOfRange(t *testing.T) {
	p := NewPlane(1, 1)
	p.Set(0, 0, 1.5) // out of [0,1]
	im, err := PlaneToImage(p, pixfmt.MONO8)
	if err != nil {
		t.Fatal(err)
	}
	if got := im.Row(0)[0]; got != 0xFF {
		t.Errorf("clamped MONO8 = %d, want 0xFF", got)
	}
}
