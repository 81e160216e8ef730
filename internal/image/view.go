package image

import "github.com/GreatAttractor/imppg/internal/buffer"

// View is a non-owning rectangular sub-region of a Buffer's pixels
// (spec.md §3, ImageView). It inherits the backing buffer's stride; Row
// returns a slice offset by y0*stride + x0*bpp. A View is valid only as
// long as its backing buffer is alive — this module never retains a View
// past the lifetime of the call that produced it.
type View struct {
	buf            buffer.Buffer
	x0, y0         int
	width, height  int
}

// NewView constructs a read/write sub-region view. The caller is
// responsible for respecting read-only intent where the source buffer is
// shared.
func NewView(buf buffer.Buffer, x0, y0, width, height int) *View {
	return &View{buf: buf, x0: x0, y0: y0, width: width, height: height}
}

func (v *View) Width() int  { return v.width }
func (v *View) Height() int { return v.height }

// Row returns row r (0-based within the view) as a read-only byte slice
// covering exactly this view's columns.
func (v *View) Row(r int) []byte {
	bpp := v.buf.BytesPerPixel()
	full := v.buf.Row(v.y0 + r)
	return full[v.x0*bpp : (v.x0+v.width)*bpp]
}

// RowMut returns row r as a mutable byte slice.
func (v *View) RowMut(r int) []byte {
	bpp := v.buf.BytesPerPixel()
	full := v.buf.RowMut(v.y0 + r)
	return full[v.x0*bpp : (v.x0+v.width)*bpp]
}

// PlaneView is the float32-plane analogue of View, used to hand each
// processing stage's worker its input/output sub-region without copying
// (spec.md §4.H, WorkerParameters.input_views/output_views).
type PlaneView struct {
	p              *Plane
	x0, y0         int
	width, height  int
}

// NewPlaneView constructs a sub-region view over a Plane.
func NewPlaneView(p *Plane, x0, y0, width, height int) *PlaneView {
	return &PlaneView{p: p, x0: x0, y0: y0, width: width, height: height}
}

func (v *PlaneView) Width() int  { return v.width }
func (v *PlaneView) Height() int { return v.height }

// At returns the pixel at view-local coordinates (x,y).
func (v *PlaneView) At(x, y int) float32 { return v.p.At(v.x0+x, v.y0+y) }

// Set writes the pixel at view-local coordinates (x,y).
func (v *PlaneView) Set(x, y int, val float32) { v.p.Set(v.x0+x, v.y0+y, val) }

// Extract copies the view's content into a new, tightly packed Plane —
// the usual first step of a pipeline run operating on a Selection.
func (v *PlaneView) Extract() *Plane {
	out := NewPlane(v.width, v.height)
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			out.Set(x, y, v.At(x, y))
		}
	}
	return out
}

// WriteBack copies src (which must match the view's dimensions) into the
// view's backing plane.
func (v *PlaneView) WriteBack(src *Plane) {
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			v.Set(x, y, src.At(x, y))
		}
	}
}
