// Package buffer implements the Buffer capability (spec.md §4.A) that
// backs an Image: a row-addressable byte store, owning or foreign, with an
// optional palette. Replaces the original's inheritance hierarchy of
// buffer base classes with a small interface plus two concrete variants,
// per DESIGN.md's "inheritance for worker threads and buffers" redesign note.
package buffer

import "github.com/GreatAttractor/imppg/internal/pixfmt"

// Buffer is the capability set every pixel store must provide: its own
// geometry, row access for reading and writing, a deep copy, and palette
// access (meaningful only for pixfmt.PAL8).
type Buffer interface {
	Width() int
	Height() int
	Format() pixfmt.Format
	BytesPerRow() int
	BytesPerPixel() int
	Row(y int) []byte
	RowMut(y int) []byte
	Clone() Buffer
	Palette() []byte // 768 bytes (256 * RGB) or nil
}

// SimpleBuffer is a contiguous, unpadded row-major buffer: the common case
// for buffers created or transformed in-process.
type SimpleBuffer struct {
	width, height int
	format        pixfmt.Format
	data          []byte
	palette       []byte
}

// NewSimple allocates a zeroed contiguous buffer of the given geometry.
func NewSimple(width, height int, format pixfmt.Format) *SimpleBuffer {
	bpp := format.BytesPerPixel()
	return &SimpleBuffer{
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, width*height*bpp),
	}
}

// NewSimpleFromData wraps an existing contiguous slice without copying.
func NewSimpleFromData(width, height int, format pixfmt.Format, data []byte) *SimpleBuffer {
	return &SimpleBuffer{width: width, height: height, format: format, data: data}
}

func (b *SimpleBuffer) Width() int                { return b.width }
func (b *SimpleBuffer) Height() int                { return b.height }
func (b *SimpleBuffer) Format() pixfmt.Format       { return b.format }
func (b *SimpleBuffer) BytesPerPixel() int          { return b.format.BytesPerPixel() }
func (b *SimpleBuffer) BytesPerRow() int            { return b.width * b.format.BytesPerPixel() }
func (b *SimpleBuffer) Data() []byte                { return b.data }
func (b *SimpleBuffer) Palette() []byte              { return b.palette }
func (b *SimpleBuffer) SetPalette(p []byte)          { b.palette = p }

func (b *SimpleBuffer) Row(y int) []byte {
	stride := b.BytesPerRow()
	return b.data[y*stride : y*stride+stride]
}

func (b *SimpleBuffer) RowMut(y int) []byte { return b.Row(y) }

func (b *SimpleBuffer) Clone() Buffer {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	var pal []byte
	if b.palette != nil {
		pal = make([]byte, len(b.palette))
		copy(pal, b.palette)
	}
	return &SimpleBuffer{width: b.width, height: b.height, format: b.format, data: data, palette: pal}
}

// FreeImageBuffer wraps a foreign-owned, row-padded bitmap whose rows are
// stored bottom-up physically even though logical row 0 is the top row —
// the historical FreeImage convention the original codebase built on
// (spec.md §4.A). Row(r) hides the flip from callers.
type FreeImageBuffer struct {
	width, height int
	format        pixfmt.Format
	stride        int // bytes per physical row, may exceed width*bpp (row padding)
	data          []byte
	palette       []byte
}

// NewFreeImage wraps data of the given stride, where physical row 0 is the
// bottom-most logical row.
func NewFreeImage(width, height int, format pixfmt.Format, stride int, data []byte) *FreeImageBuffer {
	return &FreeImageBuffer{width: width, height: height, format: format, stride: stride, data: data}
}

func (b *FreeImageBuffer) Width() int          { return b.width }
func (b *FreeImageBuffer) Height() int          { return b.height }
func (b *FreeImageBuffer) Format() pixfmt.Format { return b.format }
func (b *FreeImageBuffer) BytesPerPixel() int   { return b.format.BytesPerPixel() }
func (b *FreeImageBuffer) BytesPerRow() int     { return b.stride }
func (b *FreeImageBuffer) Palette() []byte       { return b.palette }
func (b *FreeImageBuffer) SetPalette(p []byte)   { b.palette = p }

// physicalRow maps a logical (top-down) row index to the bottom-up physical offset.
func (b *FreeImageBuffer) physicalRow(y int) int { return b.height - 1 - y }

func (b *FreeImageBuffer) Row(y int) []byte {
	p := b.physicalRow(y)
	return b.data[p*b.stride : p*b.stride+b.width*b.BytesPerPixel()]
}

func (b *FreeImageBuffer) RowMut(y int) []byte { return b.Row(y) }

func (b *FreeImageBuffer) Clone() Buffer {
	sb := NewSimple(b.width, b.height, b.format)
	for y := 0; y < b.height; y++ {
		copy(sb.RowMut(y), b.Row(y))
	}
	if b.palette != nil {
		sb.palette = append([]byte(nil), b.palette...)
	}
	return sb
}
