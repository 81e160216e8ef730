package align

import (
	"math"
	"testing"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// TestPhaseCorrelateUndoesKnownTranslation mirrors what reconcile() does
// with a PhaseCorrelate result (spec.md §4.J, §8: "two images differing by
// integer translation (tx,ty) produce offsets equal to (tx,ty) +-1 pixel"):
// translating b back by -offset should reproduce a on their shared overlap.
func TestPhaseCorrelateUndoesKnownTranslation(t *testing.T) {
	const w, h = 64, 64
	a := image.NewPlane(w, h)
	// An asymmetric pattern of point sources gives phase correlation a
	// well-defined, non-degenerate peak (a single point or flat field would
	// not).
	marks := [][2]int{{10, 12}, {40, 8}, {22, 50}, {55, 44}, {5, 33}}
	for _, m := range marks {
		a.Set(m[0], m[1], 1)
	}
	const tx, ty = 3, -2
	b := translateWrap(a, tx, ty)

	offset, err := PhaseCorrelate(a, b)
	if err != nil {
		t.Fatalf("PhaseCorrelate: %v", err)
	}

	// Undo the estimated offset and compare against a on the interior
	// (away from the wraparound border).
	undone := image.Translate(b, -offset.DX, -offset.DY, true)
	var maxDiff float32
	for y := 10; y < h-10; y++ {
		for x := 10; x < w-10; x++ {
			d := undone.At(x, y) - a.At(x, y)
			if d < 0 {
				d = -d
			}
			if d > maxDiff {
				maxDiff = d
			}
		}
	}
	if maxDiff > 0.05 {
		t.Fatalf("translating b back by -offset (%v) does not reproduce a: max interior diff %v", offset, maxDiff)
	}
}

func translateWrap(p *image.Plane, dx, dy int) *image.Plane {
	out := image.NewPlane(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		sy := ((y-dy)%p.Height + p.Height) % p.Height
		for x := 0; x < p.Width; x++ {
			sx := ((x-dx)%p.Width + p.Width) % p.Width
			out.Set(x, y, p.At(sx, sy))
		}
	}
	return out
}

func TestCentroidOfSymmetricDisc(t *testing.T) {
	const w, h = 64, 64
	const cx, cy, r = 32.0, 32.0, 10.0
	im := image.NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r*r {
				im.Set(x, y, 1)
			}
		}
	}
	mono8, err := image.PlaneToImage(im, pixfmt.MONO8)
	if err != nil {
		t.Fatalf("PlaneToImage: %v", err)
	}
	centroid, err := Centroid(mono8)
	if err != nil {
		t.Fatalf("Centroid: %v", err)
	}
	if math.Abs(centroid.X-cx) > 0.5 || math.Abs(centroid.Y-cy) > 0.5 {
		t.Fatalf("Centroid() = %+v, want close to (%v,%v)", centroid, cx, cy)
	}
}

func TestOtsuThresholdSeparatesBimodalHistogram(t *testing.T) {
	var counts [256]int
	for v := 0; v < 20; v++ {
		counts[v] = 100
	}
	for v := 200; v < 220; v++ {
		counts[v] = 100
	}
	th := OtsuThreshold(counts)
	if th < 20 || th > 200 {
		t.Fatalf("OtsuThreshold() = %d, want a split between the two clusters [0,20) and [200,220)", th)
	}
}

func TestConvexHullExcludesInteriorPoint(t *testing.T) {
	pts := []Point{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, // square corners
		{5, 5}, // interior point, must not survive the hull
	}
	hull := ConvexHull(pts)
	for _, p := range hull {
		if p == (Point{5, 5}) {
			t.Fatalf("ConvexHull(%v) kept the interior point: %v", pts, hull)
		}
	}
	if len(hull) != 4 {
		t.Fatalf("ConvexHull(%v) = %v, want the 4 square corners", pts, hull)
	}
}

// TestFitCircleFreeRecoversExactCircle covers spec.md §8: "for a synthetic
// binary disc image with known centre (cx,cy), the fitted centre is within
// 0.5 pixel of (cx,cy) after 8 iterations."
func TestFitCircleFreeRecoversExactCircle(t *testing.T) {
	const cx, cy, r = 37.3, 52.1, 40.0
	pts := make([]Point, 32)
	for i := range pts {
		angle := 2 * math.Pi * float64(i) / float64(len(pts))
		pts[i] = Point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
	}
	// Seed off-center and with the wrong radius.
	center, radius := FitCircleFree(pts, Point{X: cx + 5, Y: cy - 5}, r*0.8, DefaultCircleFitIterations)
	if math.Hypot(center.X-cx, center.Y-cy) > 0.5 {
		t.Fatalf("FitCircleFree center = %+v, want within 0.5px of (%v,%v)", center, cx, cy)
	}
	if math.Abs(radius-r) > 0.5 {
		t.Fatalf("FitCircleFree radius = %v, want within 0.5 of %v", radius, r)
	}
}

func TestFitCircleFixedRadiusRecoversExactCenter(t *testing.T) {
	const cx, cy, r = 20.0, 15.0, 25.0
	pts := make([]Point, 24)
	for i := range pts {
		angle := 2 * math.Pi * float64(i) / float64(len(pts))
		pts[i] = Point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
	}
	center := FitCircleFixedRadius(pts, Point{X: cx + 3, Y: cy + 3}, r, DefaultCircleFitIterations)
	if math.Hypot(center.X-cx, center.Y-cy) > 0.5 {
		t.Fatalf("FitCircleFixedRadius center = %+v, want within 0.5px of (%v,%v)", center, cx, cy)
	}
}
