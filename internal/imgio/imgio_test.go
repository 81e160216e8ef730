package imgio

import (
	"bytes"
	"testing"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

func mono8Fixture(w, h int) *image.Image {
	im := image.New(w, h, pixfmt.MONO8)
	v := byte(0)
	for y := 0; y < h; y++ {
		row := im.RowMut(y)
		for x := 0; x < w; x++ {
			row[x] = v
			v += 37
		}
	}
	return im
}

// TestBMPMono8RoundTrip covers spec.md §6's load/save round trip for an
// 8-bit grayscale image: pixel values and geometry survive a full
// encode/decode cycle.
func TestBMPMono8RoundTrip(t *testing.T) {
	orig := mono8Fixture(5, 3)
	var buf bytes.Buffer
	if err := SaveBMP(&buf, orig); err != nil {
		t.Fatalf("SaveBMP() error: %v", err)
	}
	got, err := LoadBMP(&buf)
	if err != nil {
		t.Fatalf("LoadBMP() error: %v", err)
	}
	if got.Width != orig.Width || got.Height != orig.Height || got.Format != orig.Format {
		t.Fatalf("geometry/format mismatch: got %dx%d/%s, want %dx%d/%s",
			got.Width, got.Height, got.Format, orig.Width, orig.Height, orig.Format)
	}
	for y := 0; y < orig.Height; y++ {
		origRow, gotRow := orig.Row(y), got.Row(y)
		for x := 0; x < orig.Width; x++ {
			if origRow[x] != gotRow[x] {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, gotRow[x], origRow[x])
			}
		}
	}
}

// TestBMPRGB8RoundTrip covers the RGB8 variant, exercising the BGR
// on-disk permutation.
func TestBMPRGB8RoundTrip(t *testing.T) {
	orig := image.New(2, 2, pixfmt.RGB8)
	row := orig.RowMut(0)
	row[0], row[1], row[2] = 10, 20, 30
	row[3], row[4], row[5] = 40, 50, 60

	var buf bytes.Buffer
	if err := SaveBMP(&buf, orig); err != nil {
		t.Fatalf("SaveBMP() error: %v", err)
	}
	got, err := LoadBMP(&buf)
	if err != nil {
		t.Fatalf("LoadBMP() error: %v", err)
	}
	if got.Format != pixfmt.BGR8 {
		t.Fatalf("reloaded format = %s, want BGR8 (BMP stores 24-bit as BGR)", got.Format)
	}
	gotRow := got.Row(0)
	// BGR8 on disk: channel order reversed relative to the RGB8 source.
	if gotRow[0] != 30 || gotRow[1] != 20 || gotRow[2] != 10 {
		t.Fatalf("pixel 0 = %v, want [30 20 10] (BGR order)", gotRow[:3])
	}
}

// TestTIFFMono16RoundTrip covers spec.md §6's concrete scenario: a MONO8
// source converted to TIFF MONO16 and reloaded. Full-scale values (0x00
// and 0xFF) survive the 8-to-16-bit scale-up exactly.
func TestTIFFMono16RoundTrip(t *testing.T) {
	src := image.New(3, 2, pixfmt.MONO8)
	vals := []byte{0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF}
	for y := 0; y < 2; y++ {
		row := src.RowMut(y)
		for x := 0; x < 3; x++ {
			row[x] = vals[y*3+x]
		}
	}

	plane, err := image.ToPlane(src)
	if err != nil {
		t.Fatalf("ToPlane() error: %v", err)
	}
	mono16, err := image.PlaneToImage(plane, pixfmt.MONO16)
	if err != nil {
		t.Fatalf("PlaneToImage(MONO16) error: %v", err)
	}

	var buf bytes.Buffer
	if err := SaveTIFF(&buf, mono16, CompressionNone); err != nil {
		t.Fatalf("SaveTIFF() error: %v", err)
	}
	reloaded, err := LoadTIFF(&buf)
	if err != nil {
		t.Fatalf("LoadTIFF() error: %v", err)
	}
	if reloaded.Width != 3 || reloaded.Height != 2 {
		t.Fatalf("reloaded geometry = %dx%d, want 3x2", reloaded.Width, reloaded.Height)
	}
	if reloaded.Format != pixfmt.MONO16 {
		t.Fatalf("reloaded format = %s, want MONO16", reloaded.Format)
	}
	for y := 0; y < 2; y++ {
		row := reloaded.Row(y)
		for x := 0; x < 3; x++ {
			v8 := vals[y*3+x]
			want := uint16(v8) << 8
			if v8 == 0xFF {
				want = 0xFFFF
			}
			got := uint16(row[x*2]) | uint16(row[x*2+1])<<8
			if got != want {
				t.Fatalf("pixel (%d,%d) = 0x%04X, want 0x%04X", x, y, got, want)
			}
		}
	}
}

func TestTIFFMono8LZWRoundTrip(t *testing.T) {
	orig := mono8Fixture(6, 4)
	var buf bytes.Buffer
	if err := SaveTIFF(&buf, orig, CompressionLZW); err != nil {
		t.Fatalf("SaveTIFF(LZW) error: %v", err)
	}
	got, err := LoadTIFF(&buf)
	if err != nil {
		t.Fatalf("LoadTIFF() error: %v", err)
	}
	for y := 0; y < orig.Height; y++ {
		origRow, gotRow := orig.Row(y), got.Row(y)
		for x := 0; x < orig.Width; x++ {
			if origRow[x] != gotRow[x] {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, gotRow[x], origRow[x])
			}
		}
	}
}

func TestPNGMono8RoundTrip(t *testing.T) {
	orig := mono8Fixture(4, 4)
	var buf bytes.Buffer
	if err := SavePNG(&buf, orig); err != nil {
		t.Fatalf("SavePNG() error: %v", err)
	}
	got, err := LoadPNG(&buf)
	if err != nil {
		t.Fatalf("LoadPNG() error: %v", err)
	}
	for y := 0; y < orig.Height; y++ {
		origRow, gotRow := orig.Row(y), got.Row(y)
		for x := 0; x < orig.Width; x++ {
			if origRow[x] != gotRow[x] {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, gotRow[x], origRow[x])
			}
		}
	}
}

func TestFITSMono16RoundTrip(t *testing.T) {
	src := image.New(4, 3, pixfmt.MONO8)
	for y := 0; y < 3; y++ {
		row := src.RowMut(y)
		for x := 0; x < 4; x++ {
			row[x] = byte((x + y*4) * 17)
		}
	}
	plane, err := image.ToPlane(src)
	if err != nil {
		t.Fatalf("ToPlane() error: %v", err)
	}
	mono16, err := image.PlaneToImage(plane, pixfmt.MONO16)
	if err != nil {
		t.Fatalf("PlaneToImage(MONO16) error: %v", err)
	}

	var buf bytes.Buffer
	if err := SaveFITS(&buf, mono16); err != nil {
		t.Fatalf("SaveFITS() error: %v", err)
	}
	got, err := LoadFITS(&buf, ClampFITSValues)
	if err != nil {
		t.Fatalf("LoadFITS() error: %v", err)
	}
	if got.Width != 4 || got.Height != 3 {
		t.Fatalf("reloaded geometry = %dx%d, want 4x3", got.Width, got.Height)
	}
}

func TestLoadImageRejectsUnknownExtension(t *testing.T) {
	if _, err := LoadImage("nonexistent.xyz"); err == nil {
		t.Fatal("LoadImage() with an unrecognized extension should error")
	}
}
