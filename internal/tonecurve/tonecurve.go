// Package tonecurve implements the ToneCurve model: ordered control
// points, piecewise-linear or Catmull-Rom spline interpolation, gamma
// mode, and a LUT for fast approximated evaluation (spec.md §3, §4.E),
// grounded on src/common/src/tcrv.cpp.
package tonecurve

import (
	"math"
	"sort"

	"github.com/GreatAttractor/imppg/internal/imgerr"
)

// Point is a single (x,y) control point, both in [0,1].
type Point struct{ X, Y float64 }

const lutSize = 65536

// segment holds the cubic spline coefficients for one interval:
// f(t) = a*t^3 + b*t^2 + c*t + d, where t = x - points[i].X.
type segment struct{ a, b, c, d float64 }

// Curve is the ToneCurve model.
type Curve struct {
	points    []Point
	smooth    bool
	gammaMode bool
	gamma     float64

	segments []segment // len(points)-1, valid when smooth
	lut      []float32
}

// NewIdentity returns the identity curve: two points (0,0) and (1,1),
// linear, not in gamma mode (spec.md §3 invariant for n=2).
func NewIdentity() *Curve {
	c := &Curve{points: []Point{{0, 0}, {1, 1}}, gamma: 1}
	c.refresh()
	return c
}

// Points returns a copy of the current control points.
func (c *Curve) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

func (c *Curve) Smooth() bool    { return c.smooth }
func (c *Curve) GammaMode() bool { return c.gammaMode }
func (c *Curve) Gamma() float64  { return c.gamma }

// AddPoint inserts (x,y), keeping points sorted by x, and returns the
// inserted index (spec.md §4.E).
func (c *Curve) AddPoint(x, y float64) (int, error) {
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return 0, imgerr.New(imgerr.InvalidArgument, "tone curve point out of [0,1]: (%g,%g)", x, y)
	}
	idx := sort.Search(len(c.points), func(i int) bool { return c.points[i].X >= x })
	c.points = append(c.points, Point{})
	copy(c.points[idx+1:], c.points[idx:])
	c.points[idx] = Point{x, y}
	c.refresh()
	return idx, nil
}

// RemovePoint removes point i; a no-op if only two points remain (spec.md §4.E).
func (c *Curve) RemovePoint(i int) {
	if len(c.points) <= 2 {
		return
	}
	c.points = append(c.points[:i], c.points[i+1:]...)
	c.refresh()
}

// UpdatePoint moves point i to (x,y); the new x must stay strictly between
// its neighbors (spec.md §4.E).
func (c *Curve) UpdatePoint(i int, x, y float64) error {
	if i > 0 && x <= c.points[i-1].X {
		return imgerr.New(imgerr.InvalidArgument, "x must exceed the previous point's x")
	}
	if i < len(c.points)-1 && x >= c.points[i+1].X {
		return imgerr.New(imgerr.InvalidArgument, "x must be less than the next point's x")
	}
	c.points[i] = Point{x, y}
	c.refresh()
	return nil
}

// Clear resets to the identity curve (same effect as Reset).
func (c *Curve) Clear() { c.Reset() }

// Reset returns the curve to identity (spec.md §4.E).
func (c *Curve) Reset() {
	c.points = []Point{{0, 0}, {1, 1}}
	c.gamma = 1
	c.refresh()
}

// Invert reflects x around the midpoint of the curve's x range (spec.md §4.E).
func (c *Curve) Invert() {
	lo, hi := c.points[0].X, c.points[len(c.points)-1].X
	for i := range c.points {
		c.points[i].X = lo + hi - c.points[i].X
	}
	sort.Slice(c.points, func(i, j int) bool { return c.points[i].X < c.points[j].X })
	c.refresh()
}

// Stretch maps every point's y-value linearly from [0,1] onto [min,max]
// (spec.md §4.E).
func (c *Curve) Stretch(min, max float64) {
	for i := range c.points {
		c.points[i].Y = min + c.points[i].Y*(max-min)
	}
	c.refresh()
}

// SetSmooth toggles Catmull-Rom spline vs. piecewise-linear evaluation.
func (c *Curve) SetSmooth(smooth bool) {
	c.smooth = smooth
	c.refresh()
}

// SetGammaMode toggles gamma mode. Per spec.md §4.E, toggling gamma mode
// on reduces the point set to just the endpoints.
func (c *Curve) SetGammaMode(on bool) {
	c.gammaMode = on
	if on && len(c.points) > 2 {
		c.points = []Point{c.points[0], c.points[len(c.points)-1]}
	}
	c.refresh()
}

// SetGamma sets the gamma exponent, used only in gamma mode.
func (c *Curve) SetGamma(g float64) {
	c.gamma = g
	c.refresh()
}

// IsIdentity reports the invariant from spec.md §3: n=2, endpoints
// (0,0)/(1,1), and either not gamma mode or gamma == 1.
func (c *Curve) IsIdentity() bool {
	if len(c.points) != 2 {
		return false
	}
	if c.points[0] != (Point{0, 0}) || c.points[1] != (Point{1, 1}) {
		return false
	}
	return !c.gammaMode || c.gamma == 1
}

// refresh recomputes spline coefficients (if smooth) and the LUT;
// called whenever points, smooth, gamma mode, or gamma change (spec.md §4.E).
func (c *Curve) refresh() {
	if c.smooth {
		c.segments = deriveCatmullRom(c.points)
	} else {
		c.segments = nil
	}
	c.RefreshLUT()
}

// RefreshLUT recomputes the approximation LUT used during interactive edits.
func (c *Curve) RefreshLUT() {
	c.lut = make([]float32, lutSize)
	for i := 0; i < lutSize; i++ {
		x := float64(i) / float64(lutSize-1)
		c.lut[i] = float32(c.evaluatePrecise(x))
	}
}

// deriveCatmullRom computes per-segment cubic coefficients using
// Catmull-Rom tangents, with quadratic fits (zero cubic coefficient) on
// the first and last segments to avoid inflection (spec.md §4.E).
func deriveCatmullRom(pts []Point) []segment {
	n := len(pts)
	segs := make([]segment, n-1)
	for i := 0; i < n-1; i++ {
		x0, y0 := pts[i].X, pts[i].Y
		x1, y1 := pts[i+1].X, pts[i+1].Y
		dx := x1 - x0

		var mLeft, mRight float64
		if i == 0 {
			mLeft = (y1 - y0) / dx
		} else {
			mLeft = (pts[i+1].Y - pts[i-1].Y) / (pts[i+1].X - pts[i-1].X)
		}
		if i == n-2 {
			mRight = (y1 - y0) / dx
		} else {
			mRight = (pts[i+2].Y - pts[i].Y) / (pts[i+2].X - pts[i].X)
		}

		if i == 0 || i == n-2 {
			// Quadratic fit through (x0,y0),(x1,y1) with slope mLeft at x0.
			b := (y1 - y0 - mLeft*dx) / (dx * dx)
			segs[i] = segment{a: 0, b: b, c: mLeft, d: y0}
		} else {
			// Cubic Hermite in normalized t=(x-x0)/dx, rescaled to raw x.
			m0 := mLeft * dx
			m1 := mRight * dx
			a := (2*y0 - 2*y1 + m0 + m1) / (dx * dx * dx)
			b := (-3*y0 + 3*y1 - 2*m0 - m1) / (dx * dx)
			c := m0 / dx
			d := y0
			segs[i] = segment{a: a, b: b, c: c, d: d}
		}
	}
	return segs
}

// Evaluate returns the LUT-approximated value, used during interactive edits.
func (c *Curve) Evaluate(x float64) float32 {
	if x < 0 {
		x = 0
	} else if x > 1 {
		x = 1
	}
	idx := int(x * float64(lutSize-1))
	return c.lut[idx]
}

// EvaluatePrecise returns the precise (non-LUT) value, used exactly once
// before saving output per spec.md §4.D.
func (c *Curve) EvaluatePrecise(x float64) float32 {
	return float32(c.evaluatePrecise(x))
}

func (c *Curve) evaluatePrecise(x float64) float64 {
	first, last := c.points[0], c.points[len(c.points)-1]
	if x <= first.X {
		return first.Y
	}
	if x >= last.X {
		return last.Y
	}
	if c.gammaMode {
		t := (x - first.X) / (last.X - first.X)
		return first.Y + math.Pow(t, 1/c.gamma)*(last.Y-first.Y)
	}
	i := c.segmentIndex(x)
	if c.smooth {
		s := c.segments[i]
		t := x - c.points[i].X
		return ((s.a*t+s.b)*t+s.c)*t + s.d
	}
	p0, p1 := c.points[i], c.points[i+1]
	t := (x - p0.X) / (p1.X - p0.X)
	return p0.Y + t*(p1.Y-p0.Y)
}

// segmentIndex finds the segment containing x by binary search (spec.md §4.D).
func (c *Curve) segmentIndex(x float64) int {
	lo, hi := 0, len(c.points)-2
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.points[mid].X <= x {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
