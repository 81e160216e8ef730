package image

import (
	"math"

	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// Plane is a flat, contiguous single-channel float32 image: the working
// representation every processing-primitive stage (mathkernel, procprim,
// align) mutates in place. It mirrors the teacher's FITSImage.Data layout
// (row-major, no padding) rather than the padded byte Buffer used for I/O,
// since the pipeline's canonical processing format is MONO32F (spec.md §3).
type Plane struct {
	Width, Height int
	Pix           []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) *Plane {
	return &Plane{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// Clone returns an independent copy.
func (p *Plane) Clone() *Plane {
	out := &Plane{Width: p.Width, Height: p.Height, Pix: make([]float32, len(p.Pix))}
	copy(out.Pix, p.Pix)
	return out
}

// At returns the pixel at (x,y).
func (p *Plane) At(x, y int) float32 { return p.Pix[y*p.Width+x] }

// Set writes the pixel at (x,y).
func (p *Plane) Set(x, y int, v float32) { p.Pix[y*p.Width+x] = v }

// RGBPlane is an RGB32F working image represented as three co-sized planes.
type RGBPlane struct {
	R, G, B *Plane
}

// NewRGBPlane allocates three zeroed planes of the given geometry.
func NewRGBPlane(width, height int) *RGBPlane {
	return &RGBPlane{R: NewPlane(width, height), G: NewPlane(width, height), B: NewPlane(width, height)}
}

// Channels returns the three planes in R,G,B order, convenient for
// per-channel loops (spec.md §2: "For RGB, the same pipeline runs per channel").
func (p *RGBPlane) Channels() [3]*Plane { return [3]*Plane{p.R, p.G, p.B} }

func (p *RGBPlane) Clone() *RGBPlane {
	return &RGBPlane{R: p.R.Clone(), G: p.G.Clone(), B: p.B.Clone()}
}

// ToPlane converts a MONO8/MONO16/MONO32F Image into a MONO32F working
// Plane, normalizing 8/16-bit samples to [0,1] (spec.md §4.A conversion rules).
func ToPlane(im *Image) (*Plane, error) {
	if !im.Format.IsMono() {
		return nil, imgerr.New(imgerr.InvalidArgument, "ToPlane requires a mono format, got %s", im.Format)
	}
	p := NewPlane(im.Width, im.Height)
	switch im.Format {
	case pixfmt.MONO8:
		for y := 0; y < im.Height; y++ {
			row := im.Row(y)
			for x := 0; x < im.Width; x++ {
				p.Set(x, y, float32(row[x])/0xFF)
			}
		}
	case pixfmt.MONO16:
		for y := 0; y < im.Height; y++ {
			row := im.Row(y)
			for x := 0; x < im.Width; x++ {
				v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
				p.Set(x, y, float32(v)/0xFFFF)
			}
		}
	case pixfmt.MONO32F:
		for y := 0; y < im.Height; y++ {
			row := im.Row(y)
			for x := 0; x < im.Width; x++ {
				p.Set(x, y, clamp01(float32frombytes(row[x*4:x*4+4])))
			}
		}
	default:
		return nil, imgerr.New(imgerr.FormatError, "unsupported mono format %s", im.Format)
	}
	return p, nil
}

// PlaneToImage converts a MONO32F working Plane back into an Image of the
// requested mono format, scaling [0,1] back to the destination's range.
func PlaneToImage(p *Plane, format pixfmt.Format) (*Image, error) {
	if !format.IsMono() {
		return nil, imgerr.New(imgerr.InvalidArgument, "PlaneToImage requires a mono format, got %s", format)
	}
	im := New(p.Width, p.Height, format)
	switch format {
	case pixfmt.MONO8:
		for y := 0; y < p.Height; y++ {
			row := im.RowMut(y)
			for x := 0; x < p.Width; x++ {
				row[x] = byte(clamp01(p.At(x, y))*0xFF + 0.5)
			}
		}
	case pixfmt.MONO16:
		for y := 0; y < p.Height; y++ {
			row := im.RowMut(y)
			for x := 0; x < p.Width; x++ {
				v := uint16(clamp01(p.At(x, y))*0xFFFF + 0.5)
				row[x*2] = byte(v)
				row[x*2+1] = byte(v >> 8)
			}
		}
	case pixfmt.MONO32F:
		for y := 0; y < p.Height; y++ {
			row := im.RowMut(y)
			for x := 0; x < p.Width; x++ {
				float32tobytes(clamp01(p.At(x, y)), row[x*4:x*4+4])
			}
		}
	}
	return im, nil
}

// ToRGBPlane converts an RGB8/RGB16/RGB32F or BGR8/BGRA8/RGBA8 Image into
// an RGB32F working plane, permuting BGR(A) to RGB and dropping alpha.
func ToRGBPlane(im *Image) (*RGBPlane, error) {
	if im.Format.IsMono() {
		return nil, imgerr.New(imgerr.InvalidArgument, "ToRGBPlane requires a color format, got %s", im.Format)
	}
	out := NewRGBPlane(im.Width, im.Height)
	bpp := im.Format.BytesPerPixel()
	nch := im.Format.NumChannels()
	isBGR := im.Format == pixfmt.BGR8 || im.Format == pixfmt.BGRA8
	sample := im.Format.SampleClass()

	for y := 0; y < im.Height; y++ {
		row := im.Row(y)
		for x := 0; x < im.Width; x++ {
			off := x * bpp
			var r, g, b float32
			switch sample {
			case pixfmt.Sample8:
				c0, c1, c2 := row[off], row[off+1], row[off+2]
				if isBGR {
					r, g, b = float32(c2)/0xFF, float32(c1)/0xFF, float32(c0)/0xFF
				} else {
					r, g, b = float32(c0)/0xFF, float32(c1)/0xFF, float32(c2)/0xFF
				}
			case pixfmt.Sample16:
				read16 := func(i int) float32 {
					v := uint16(row[off+i*2]) | uint16(row[off+i*2+1])<<8
					return float32(v) / 0xFFFF
				}
				r, g, b = read16(0), read16(1), read16(2)
			case pixfmt.SampleFloat32:
				r = clamp01(float32frombytes(row[off : off+4]))
				g = clamp01(float32frombytes(row[off+4 : off+8]))
				b = clamp01(float32frombytes(row[off+8 : off+12]))
			}
			out.R.Set(x, y, r)
			out.G.Set(x, y, g)
			out.B.Set(x, y, b)
		}
	}
	_ = nch
	return out, nil
}

// RGBPlaneToImage converts an RGB32F working plane back into an Image of
// the requested color format.
func RGBPlaneToImage(p *RGBPlane, format pixfmt.Format) (*Image, error) {
	if format.IsMono() {
		return nil, imgerr.New(imgerr.InvalidArgument, "RGBPlaneToImage requires a color format, got %s", format)
	}
	im := New(p.R.Width, p.R.Height, format)
	bpp := format.BytesPerPixel()
	isBGR := format == pixfmt.BGR8 || format == pixfmt.BGRA8
	hasAlpha := format.HasAlpha()
	sample := format.SampleClass()

	for y := 0; y < p.R.Height; y++ {
		row := im.RowMut(y)
		for x := 0; x < p.R.Width; x++ {
			off := x * bpp
			r, g, b := clamp01(p.R.At(x, y)), clamp01(p.G.At(x, y)), clamp01(p.B.At(x, y))
			c0, c1, c2 := r, g, b
			if isBGR {
				c0, c2 = b, r
			}
			switch sample {
			case pixfmt.Sample8:
				row[off] = byte(c0*0xFF + 0.5)
				row[off+1] = byte(c1*0xFF + 0.5)
				row[off+2] = byte(c2*0xFF + 0.5)
				if hasAlpha {
					row[off+3] = 0xFF
				}
			case pixfmt.Sample16:
				write16 := func(i int, v float32) {
					u := uint16(v*0xFFFF + 0.5)
					row[off+i*2] = byte(u)
					row[off+i*2+1] = byte(u >> 8)
				}
				write16(0, c0)
				write16(1, c1)
				write16(2, c2)
				if hasAlpha {
					write16(3, 1)
				}
			case pixfmt.SampleFloat32:
				float32tobytes(c0, row[off:off+4])
				float32tobytes(c1, row[off+4:off+8])
				float32tobytes(c2, row[off+8:off+12])
				if hasAlpha {
					float32tobytes(1, row[off+12:off+16])
				}
			}
		}
	}
	return im, nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func float32frombytes(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func float32tobytes(v float32, out []byte) {
	bits := math.Float32bits(v)
	out[0] = byte(bits)
	out[1] = byte(bits >> 8)
	out[2] = byte(bits >> 16)
	out[3] = byte(bits >> 24)
}
