// Package testutil builds the synthetic images and planes exercised by the
// Testable Properties scenarios (spec.md §8): flat fields, single bright
// points, binary discs for limb fitting, and translated copies for
// alignment tests. Noise/jitter uses github.com/valyala/fastrand, the
// pack's declared fast PRNG, instead of math/rand.
package testutil

import (
	"github.com/valyala/fastrand"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// FlatPlane returns a width x height MONO32F plane with every pixel set to
// value (spec.md §8 scenario 2: "constant-0.4 image", "constant-0.7 image").
func FlatPlane(width, height int, value float32) *image.Plane {
	p := image.NewPlane(width, height)
	for i := range p.Pix {
		p.Pix[i] = value
	}
	return p
}

// Point returns a width x height MONO32F plane that is zero everywhere
// except a single pixel at (x, y) set to value (spec.md §8 scenario 3:
// "a white pixel at (50,50) of a 100x100 zero image").
func Point(width, height, x, y int, value float32) *image.Plane {
	p := image.NewPlane(width, height)
	p.Set(x, y, value)
	return p
}

// Jitter adds uniform noise in [-amount, amount] to every pixel of p,
// using a fastrand.RNG seeded by seed so tests are reproducible.
func Jitter(p *image.Plane, amount float32, seed uint32) *image.Plane {
	out := p.Clone()
	rng := fastrand.RNG{Seed: seed}
	for i := range out.Pix {
		n := (rng.Float32()*2 - 1) * amount
		out.Pix[i] += n
	}
	return out
}

// Disc returns a width x height MONO32F plane holding a binary disc of the
// given radius centered at (cx, cy): 1 inside, 0 outside, used by the
// solar-limb fitting scenario (spec.md §8: "synthetic binary disc image
// with known centre").
func Disc(width, height int, cx, cy, radius float64) *image.Plane {
	p := image.NewPlane(width, height)
	r2 := radius * radius
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r2 {
				p.Set(x, y, 1)
			}
		}
	}
	return p
}

// Translate returns a copy of p shifted by the integer offset (dx, dy),
// wrapping at the border, for building a known-offset pair used by
// alignment tests (spec.md §8: "image B = image A shifted by (+3, -2)").
func Translate(p *image.Plane, dx, dy int) *image.Plane {
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

// ToMono8Image converts p to a MONO8 image via image.PlaneToImage, for
// tests that need a byte-buffered Image instead of a working Plane (e.g.
// the round-trip and limb-detection scenarios).
func ToMono8Image(p *image.Plane) (*image.Image, error) {
	return image.PlaneToImage(p, pixfmt.MONO8)
}

// RGBFromPlanes assembles an RGBPlane from three independently built
// channels, used by the RGB-alignment scenario (spec.md §8 scenario 6:
// "three channels shifted by (0,0), (+2,-1), (-1,+3) respectively").
func RGBFromPlanes(r, g, b *image.Plane) *image.RGBPlane {
	return &image.RGBPlane{R: r, G: g, B: b}
}
