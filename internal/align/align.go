package align

import (
	"math"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/imgio"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// Mode names the two alignment algorithms (spec.md §4.J).
type Mode int

const (
	ModeStandard Mode = iota
	ModeSolarLimb
)

// CropMode names how aligned frames are reconciled to a common rectangle
// (spec.md §4.J).
type CropMode int

const (
	// CropIntersection cuts each frame to the intersection rectangle.
	CropIntersection CropMode = iota
	// CropPad extends each frame to the bounding box with zeros.
	CropPad
)

// DefaultLimbRays is the ray count used for solar-limb point detection
// when the caller does not override it; 360 gives one ray per degree,
// comfortably above the minimum needed for a stable circle fit.
const DefaultLimbRays = 360

// DefaultCircleFitIterations is the Gauss-Newton iteration count named
// explicitly in spec.md §4.J step 4 ("8 iterations").
const DefaultCircleFitIterations = 8

// AlignImages loads paths as mono images, computes per-frame offsets using
// the requested mode, and returns the frames translated and reconciled to
// a common rectangle per cropMode (spec.md §6: align_images(paths, mode,
// crop_mode, subpixel, out_dir, suffix?, progress_cb)). subpixel selects
// between integer-rounded and fractional (cubic Hermite) translation.
// progress, if non-nil, receives a fraction in [0,1]; returning false
// cancels the run.
func AlignImages(paths []string, mode Mode, cropMode CropMode, subpixel bool, progress func(float64) bool) ([]*image.Image, error) {
	frames := make([]*image.Plane, len(paths))
	raw := make([]*image.Image, len(paths))
	var prevCenter Point
	var prevRadius float64
	haveCenter := false

	for i, path := range paths {
		im, err := imgio.LoadImage(path)
		if err != nil {
			return nil, err
		}
		raw[i] = im
		mono, err := toMono(im)
		if err != nil {
			return nil, err
		}
		frames[i] = mono
	}

	var offsets []Offset
	switch mode {
	case ModeStandard:
		var err error
		offsets, err = AlignStandard(frames, progress)
		if err != nil {
			return nil, err
		}
	case ModeSolarLimb:
		offsets = make([]Offset, len(frames))
		for i, im := range raw {
			mono8, err := toMono8(im)
			if err != nil {
				return nil, err
			}
			centroid, err := Centroid(mono8)
			if err != nil {
				return nil, err
			}
			seed := centroid
			if haveCenter {
				seed = prevCenter
			}
			hist := ByteHistogram(mono8)
			threshold := OtsuThreshold(hist)
			points := FindLimbPoints(mono8, seed, DefaultLimbRays, threshold)
			hull := ConvexHull(points)

			var center Point
			var radius float64
			if haveCenter {
				// Subsequent frames hold the radius fixed at the first
				// frame's fit and seed from the previous centre (spec.md
				// §4.J step 4: "the radius may be fixed (2D fit)").
				center = FitCircleFixedRadius(hull, prevCenter, prevRadius, DefaultCircleFitIterations)
				radius = prevRadius
			} else {
				center, radius = fitInitialCircle(hull, seed)
			}
			if i == 0 {
				center = seed
			}
			offsets[i] = Offset{DX: center.X, DY: center.Y}
			prevCenter, prevRadius, haveCenter = center, radius, true
			if progress != nil && len(frames) > 1 {
				if !progress(float64(i) / float64(len(frames)-1)) {
					return nil, imgerr.New(imgerr.Cancelled, "alignment cancelled at frame %d", i)
				}
			}
		}
		offsets = relativeTo(offsets, 0)
	}

	if !subpixel {
		for i := range offsets {
			offsets[i].DX = float64(roundNearest(offsets[i].DX))
			offsets[i].DY = float64(roundNearest(offsets[i].DY))
		}
	}

	return reconcile(raw, offsets, cropMode)
}

// fitInitialCircle fits a free circle seeded from the centroid with an
// initial radius guess taken from the hull's mean distance to the seed.
func fitInitialCircle(hull []Point, seed Point) (Point, float64) {
	if len(hull) == 0 {
		return seed, 0
	}
	var sum float64
	for _, p := range hull {
		sum += math.Hypot(p.X-seed.X, p.Y-seed.Y)
	}
	initRadius := sum / float64(len(hull))
	return FitCircleFree(hull, seed, initRadius, DefaultCircleFitIterations)
}

func relativeTo(offsets []Offset, idx int) []Offset {
	base := offsets[idx]
	out := make([]Offset, len(offsets))
	for i, o := range offsets {
		out[i] = Offset{DX: o.DX - base.DX, DY: o.DY - base.DY}
	}
	return out
}

func toMono(im *image.Image) (*image.Plane, error) {
	if im.Format.IsMono() {
		return image.ToPlane(im)
	}
	rgb, err := image.ToRGBPlane(im)
	if err != nil {
		return nil, err
	}
	return rgbLuminance(rgb), nil
}

func rgbLuminance(p *image.RGBPlane) *image.Plane {
	out := image.NewPlane(p.R.Width, p.R.Height)
	for i := range out.Pix {
		out.Pix[i] = (p.R.Pix[i] + p.G.Pix[i] + p.B.Pix[i]) / 3
	}
	return out
}

func toMono8(im *image.Image) (*image.Image, error) {
	if im.Format == pixfmt.MONO8 {
		return im, nil
	}
	plane, err := toMono(im)
	if err != nil {
		return nil, err
	}
	return image.PlaneToImage(plane, pixfmt.MONO8)
}

// reconcile translates each frame by -offsets[i] and crops or pads the
// result to a common rectangle (spec.md §4.J).
func reconcile(frames []*image.Image, offsets []Offset, mode CropMode) ([]*image.Image, error) {
	marginLeft, marginRight, marginTop, marginBottom := 0, 0, 0, 0
	for _, o := range offsets {
		if l := roundNearest(o.DX); l > marginLeft {
			marginLeft = l
		}
		if r := roundNearest(-o.DX); r > marginRight {
			marginRight = r
		}
		if t := roundNearest(o.DY); t > marginTop {
			marginTop = t
		}
		if b := roundNearest(-o.DY); b > marginBottom {
			marginBottom = b
		}
	}

	out := make([]*image.Image, len(frames))
	for i, im := range frames {
		translated, err := image.TranslateImage(im, -offsets[i].DX, -offsets[i].DY, true)
		if err != nil {
			return nil, err
		}
		switch mode {
		case CropIntersection:
			out[i] = cropImage(translated, marginLeft, marginTop, im.Width-marginLeft-marginRight, im.Height-marginTop-marginBottom)
		case CropPad:
			out[i] = padImage(translated, marginLeft, marginTop, marginRight, marginBottom)
		}
	}
	return out, nil
}

func cropImage(im *image.Image, x, y, w, h int) *image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.New(w, h, im.Format)
	bpp := im.Format.BytesPerPixel()
	for row := 0; row < h; row++ {
		src := im.Row(y + row)
		dst := out.RowMut(row)
		copy(dst, src[x*bpp:(x+w)*bpp])
	}
	return out
}

func padImage(im *image.Image, left, top, right, bottom int) *image.Image {
	out := image.New(im.Width+left+right, im.Height+top+bottom, im.Format)
	bpp := im.Format.BytesPerPixel()
	for row := 0; row < im.Height; row++ {
		src := im.Row(row)
		dst := out.RowMut(row + top)
		copy(dst[left*bpp:], src)
	}
	return out
}
