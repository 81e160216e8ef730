// Package image implements the core image model: Image (the I/O-facing,
// byte-buffered pixel store covering every pixfmt.Format), Plane (the flat
// float32 working representation the processing pipeline mutates in
// place, mirroring the teacher's FITSImage.Data layout), ImageView,
// format conversion, subpixel resize/translate, and RGB
// split/combine/blend/multiply (spec.md §3, §4.A).
package image

import (
	"github.com/GreatAttractor/imppg/internal/buffer"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// Image owns its pixel buffer exclusively (spec.md §3).
type Image struct {
	Width, Height int
	Format        pixfmt.Format
	Buf           buffer.Buffer
}

// New allocates a zeroed image of the given geometry.
func New(width, height int, format pixfmt.Format) *Image {
	return &Image{Width: width, Height: height, Format: format, Buf: buffer.NewSimple(width, height, format)}
}

// FromBuffer wraps an existing buffer as an Image.
func FromBuffer(buf buffer.Buffer) *Image {
	return &Image{Width: buf.Width(), Height: buf.Height(), Format: buf.Format(), Buf: buf}
}

// Clone returns a deep copy that owns independent storage.
func (im *Image) Clone() *Image {
	return &Image{Width: im.Width, Height: im.Height, Format: im.Format, Buf: im.Buf.Clone()}
}

// Palette returns the 768-byte RGB palette, valid only for pixfmt.PAL8.
func (im *Image) Palette() []byte { return im.Buf.Palette() }

// Row returns a read-only view of row y.
func (im *Image) Row(y int) []byte { return im.Buf.Row(y) }

// RowMut returns a mutable view of row y.
func (im *Image) RowMut(y int) []byte { return im.Buf.RowMut(y) }
