package align

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// diffSize is the sliding-window half-width used to locate a limb crossing
// along a ray (spec.md §4.J: "largest absolute difference between two
// sliding DIFF_SIZE-pixel sums").
const diffSize = 8

// raySkipEnd is the number of trailing pixels of every ray excluded from
// the search, per spec.md §4.J ("Skip the last 6 pixels of every ray").
const raySkipEnd = 6

// Point is a 2D coordinate, used for both ray-detected limb points and
// convex-hull vertices.
type Point struct {
	X, Y float64
}

// Centroid computes the intensity-weighted centroid of a MONO8 image by
// first moments (spec.md §4.J step 1).
func Centroid(im *image.Image) (Point, error) {
	if im.Format != pixfmt.MONO8 {
		return Point{}, errMono8Required
	}
	var sum, sumX, sumY float64
	for y := 0; y < im.Height; y++ {
		row := im.Row(y)
		for x := 0; x < im.Width; x++ {
			v := float64(row[x])
			sum += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if sum == 0 {
		return Point{X: float64(im.Width) / 2, Y: float64(im.Height) / 2}, nil
	}
	return Point{X: sumX / sum, Y: sumY / sum}, nil
}

// ByteHistogram counts raw MONO8 sample values into 256 bins, the input
// OtsuThreshold expects.
func ByteHistogram(im *image.Image) [256]int {
	var counts [256]int
	for y := 0; y < im.Height; y++ {
		row := im.Row(y)
		for x := 0; x < im.Width; x++ {
			counts[row[x]]++
		}
	}
	return counts
}

// OtsuThreshold finds the disc/background threshold minimizing the sum of
// within-class squared deviations over the 256-bin histogram (spec.md
// §4.J step 2: "Otsu-like"), via an exhaustive scan over the 255
// candidate split points, each evaluated in O(1) using prefix sums. The
// result is the first value of the upper (disc) class, matching the
// ">= threshold" test in straddlesThreshold.
func OtsuThreshold(counts [256]int) int {
	var total, totalSum float64
	for v, c := range counts {
		total += float64(c)
		totalSum += float64(v) * float64(c)
	}
	if total == 0 {
		return 128
	}

	var bestT int
	var bestVariance = -1.0
	var sumBelow, countBelow float64
	for t := 0; t < 255; t++ {
		countBelow += float64(counts[t])
		sumBelow += float64(t) * float64(counts[t])
		countAbove := total - countBelow
		if countBelow == 0 || countAbove == 0 {
			continue
		}
		meanBelow := sumBelow / countBelow
		meanAbove := (totalSum - sumBelow) / countAbove
		// Between-class variance; maximizing it is equivalent to
		// minimizing the within-class variance (Otsu's identity).
		variance := countBelow * countAbove * (meanBelow - meanAbove) * (meanBelow - meanAbove)
		if variance > bestVariance {
			bestVariance = variance
			bestT = t + 1
		}
	}
	return bestT
}

// castRay samples MONO8 intensities along a ray from (cx,cy) at the given
// angle, stopping at the image border, using nearest-neighbor sampling.
func castRay(im *image.Image, cx, cy, angle float64) []float64 {
	dx, dy := math.Cos(angle), math.Sin(angle)
	var profile []float64
	for r := 0; ; r++ {
		x := int(math.Round(cx + dx*float64(r)))
		y := int(math.Round(cy + dy*float64(r)))
		if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
			break
		}
		profile = append(profile, float64(im.Row(y)[x]))
	}
	return profile
}

// findLimbCrossing locates the limb crossing along profile as the position
// of the largest absolute difference between two sliding diffSize-pixel
// sums, after flattening the two terminal border regions to their average
// to counter halo artifacts, skipping the last raySkipEnd samples (spec.md
// §4.J step 3).
func findLimbCrossing(profile []float64) (int, bool) {
	n := len(profile)
	if n < 2*diffSize+raySkipEnd+1 {
		return 0, false
	}

	flattened := make([]float64, n)
	copy(flattened, profile)
	var headAvg, tailAvg float64
	for i := 0; i < diffSize; i++ {
		headAvg += profile[i]
		tailAvg += profile[n-1-i]
	}
	headAvg /= diffSize
	tailAvg /= diffSize
	for i := 0; i < diffSize; i++ {
		flattened[i] = headAvg
		flattened[n-1-i] = tailAvg
	}

	limit := n - raySkipEnd
	bestPos, bestDiff := -1, -1.0
	for p := diffSize; p < limit-diffSize; p++ {
		var lead, trail float64
		for k := 0; k < diffSize; k++ {
			lead += flattened[p-diffSize+k]
			trail += flattened[p+k]
		}
		diff := math.Abs(trail - lead)
		if diff > bestDiff {
			bestDiff, bestPos = diff, p
		}
	}
	return bestPos, bestPos >= 0
}

// FindLimbPoints fires numRays evenly distributed rays from center and
// returns every ray's detected limb crossing as a 2D point (spec.md §4.J
// step 3). discThreshold (from OtsuThreshold) is used to reject spurious
// crossings whose two sides don't actually straddle the disc/background
// split — a profile with a strong DIFF_SIZE-sum discontinuity that never
// crosses the threshold is noise, not a limb.
func FindLimbPoints(im *image.Image, center Point, numRays, discThreshold int) []Point {
	points := make([]Point, 0, numRays)
	for i := 0; i < numRays; i++ {
		angle := 2 * math.Pi * float64(i) / float64(numRays)
		profile := castRay(im, center.X, center.Y, angle)
		pos, ok := findLimbCrossing(profile)
		if !ok || !straddlesThreshold(profile, pos, discThreshold) {
			continue
		}
		points = append(points, Point{
			X: center.X + math.Cos(angle)*float64(pos),
			Y: center.Y + math.Sin(angle)*float64(pos),
		})
	}
	return points
}

// straddlesThreshold reports whether the diffSize-pixel neighborhoods on
// either side of pos average above and below discThreshold respectively,
// confirming the crossing is a genuine disc/background edge.
func straddlesThreshold(profile []float64, pos, discThreshold int) bool {
	n := len(profile)
	lo, hi := pos-diffSize, pos+diffSize
	if lo < 0 || hi > n {
		return true
	}
	var before, after float64
	for k := 0; k < diffSize; k++ {
		before += profile[pos-diffSize+k]
		after += profile[pos+k]
	}
	before /= diffSize
	after /= diffSize
	t := float64(discThreshold)
	return (before >= t) != (after >= t)
}

// ConvexHull culls points to their 2D convex hull via gift wrapping
// (Jarvis march), per spec.md §4.J step 4.
func ConvexHull(points []Point) []Point {
	if len(points) < 3 {
		return points
	}
	start := 0
	for i, p := range points {
		if p.X < points[start].X || (p.X == points[start].X && p.Y < points[start].Y) {
			start = i
		}
	}

	hull := []Point{}
	current := start
	for {
		hull = append(hull, points[current])
		next := (current + 1) % len(points)
		for i := range points {
			if i == current {
				continue
			}
			cross := crossProduct(points[current], points[next], points[i])
			if cross < 0 {
				next = i
			}
		}
		current = next
		if current == start {
			break
		}
	}
	return hull
}

func crossProduct(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// FitCircleFixedRadius fits only the center (cx, cy) by Gauss-Newton,
// holding the radius fixed (spec.md §4.J step 4: "2D fit"), seeded from
// initCenter ("the previous centre seeds the iteration").
func FitCircleFixedRadius(points []Point, initCenter Point, radius float64, iterations int) Point {
	cx, cy := initCenter.X, initCenter.Y
	n := len(points)
	if n == 0 {
		return initCenter
	}
	for iter := 0; iter < iterations; iter++ {
		J := mat.NewDense(n, 2, nil)
		r := mat.NewVecDense(n, nil)
		for i, p := range points {
			ddx, ddy := p.X-cx, p.Y-cy
			d := math.Hypot(ddx, ddy)
			if d == 0 {
				d = 1e-9
			}
			J.Set(i, 0, -ddx/d)
			J.Set(i, 1, -ddy/d)
			r.SetVec(i, d-radius)
		}
		delta := gaussNewtonStep(J, r)
		cx -= delta.AtVec(0)
		cy -= delta.AtVec(1)
	}
	return Point{X: cx, Y: cy}
}

// FitCircleFree fits center and radius jointly by Gauss-Newton (spec.md
// §4.J step 4: "3D fit"), 8 iterations by default per the spec's literal
// iteration count.
func FitCircleFree(points []Point, initCenter Point, initRadius float64, iterations int) (center Point, radius float64) {
	cx, cy, r := initCenter.X, initCenter.Y, initRadius
	n := len(points)
	if n == 0 {
		return initCenter, initRadius
	}
	for iter := 0; iter < iterations; iter++ {
		J := mat.NewDense(n, 3, nil)
		res := mat.NewVecDense(n, nil)
		for i, p := range points {
			ddx, ddy := p.X-cx, p.Y-cy
			d := math.Hypot(ddx, ddy)
			if d == 0 {
				d = 1e-9
			}
			J.Set(i, 0, -ddx/d)
			J.Set(i, 1, -ddy/d)
			J.Set(i, 2, -1)
			res.SetVec(i, d-r)
		}
		delta := gaussNewtonStep(J, res)
		cx -= delta.AtVec(0)
		cy -= delta.AtVec(1)
		r -= delta.AtVec(2)
	}
	return Point{X: cx, Y: cy}, r
}

// gaussNewtonStep solves the normal equations (JᵀJ) delta = Jᵀr for the
// Gauss-Newton update, per the residual rᵢ = dist(pᵢ, center) - radius
// described in spec.md §4.J step 4.
func gaussNewtonStep(J mat.Matrix, r *mat.VecDense) *mat.VecDense {
	_, cols := J.Dims()

	var jtj mat.Dense
	jtj.Mul(J.T(), J)
	var jtr mat.VecDense
	jtr.MulVec(J.T(), r)

	delta := mat.NewVecDense(cols, nil)
	if err := delta.SolveVec(&jtj, &jtr); err != nil {
		return mat.NewVecDense(cols, nil)
	}
	return delta
}

var errMono8Required = &mono8RequiredError{}

type mono8RequiredError struct{}

func (e *mono8RequiredError) Error() string { return "align: MONO8 image required" }
