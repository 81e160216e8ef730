// Package imgio implements the BMP, TIFF, FITS, and PNG codecs (spec.md
// §4.B), grounded on the BMP decoder idiom in
// other_examples/sergeymakinen-go-bmp (row padding, BGR order, bottom-up
// storage) adapted onto internal/buffer.FreeImageBuffer instead of the
// standard image.Image, and on the original's src/image/src/bmp.cpp for
// which variants (8/24/32-bit, BI_RGB/BI_BITFIELDS only) to support.
package imgio

import (
	"encoding/binary"
	"io"

	"github.com/GreatAttractor/imppg/internal/buffer"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

const (
	bmpFileHeaderLen = 14
	bmpInfoHeaderLen = 40
	biRGB            = 0
	biBitFields      = 3
)

// align4 rounds n up to the next multiple of 4 (BMP row padding).
func align4(n int) int { return (n + 3) &^ 3 }

// LoadBMP reads a BMP image into our own Image/FreeImageBuffer model: BMP
// rows are stored bottom-up in the file, which is exactly
// FreeImageBuffer's physical layout, so no row flip is needed on load.
func LoadBMP(r io.Reader) (*image.Image, error) {
	var fh [bmpFileHeaderLen]byte
	if _, err := io.ReadFull(r, fh[:]); err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading BMP file header")
	}
	if fh[0] != 'B' || fh[1] != 'M' {
		return nil, imgerr.New(imgerr.FormatError, "not a BMP file")
	}
	dataOffset := binary.LittleEndian.Uint32(fh[10:14])

	var ih [bmpInfoHeaderLen]byte
	if _, err := io.ReadFull(r, ih[:]); err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading BMP info header")
	}
	headerSize := binary.LittleEndian.Uint32(ih[0:4])
	if headerSize != bmpInfoHeaderLen {
		return nil, imgerr.New(imgerr.FormatError, "unsupported BMP DIB header size %d", headerSize)
	}
	width := int(int32(binary.LittleEndian.Uint32(ih[4:8])))
	heightRaw := int(int32(binary.LittleEndian.Uint32(ih[8:12])))
	topDown := heightRaw < 0
	height := heightRaw
	if topDown {
		height = -height
	}
	planes := binary.LittleEndian.Uint16(ih[12:14])
	if planes != 1 {
		return nil, imgerr.New(imgerr.FormatError, "unsupported BMP plane count %d", planes)
	}
	bpp := binary.LittleEndian.Uint16(ih[14:16])
	compression := binary.LittleEndian.Uint32(ih[16:20])
	colorsUsed := binary.LittleEndian.Uint32(ih[32:36])

	if compression != biRGB && compression != biBitFields {
		return nil, imgerr.New(imgerr.FormatError, "unsupported BMP compression %d", compression)
	}

	var palette []byte
	var format pixfmt.Format
	switch bpp {
	case 8:
		format = pixfmt.MONO8
		n := colorsUsed
		if n == 0 {
			n = 256
		}
		raw := make([]byte, n*4)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, imgerr.Wrap(imgerr.IoError, err, "reading BMP palette")
		}
		palette = make([]byte, 768)
		for i := 0; i < int(n) && i < 256; i++ {
			// BMP palette entries are stored BGRX.
			palette[i*3+0] = raw[i*4+2]
			palette[i*3+1] = raw[i*4+1]
			palette[i*3+2] = raw[i*4+0]
		}
	case 24:
		format = pixfmt.BGR8
		if compression == biBitFields {
			return nil, imgerr.New(imgerr.FormatError, "BI_BITFIELDS unsupported for 24-bit BMP")
		}
	case 32:
		format = pixfmt.BGRA8
	default:
		return nil, imgerr.New(imgerr.FormatError, "unsupported BMP bit depth %d", bpp)
	}

	rowBytes := (width*int(bpp) + 7) / 8
	stride := align4(rowBytes)

	data := make([]byte, stride*height)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading BMP pixel data")
	}

	var buf *buffer.FreeImageBuffer
	if topDown {
		// Flip into bottom-up physical storage so FreeImageBuffer's
		// row(r) convention still applies.
		flipped := make([]byte, len(data))
		for y := 0; y < height; y++ {
			src := data[y*stride : (y+1)*stride]
			dst := flipped[(height-1-y)*stride : (height-y)*stride]
			copy(dst, src)
		}
		data = flipped
	}
	buf = buffer.NewFreeImage(width, height, format, stride, data)
	if palette != nil {
		buf.SetPalette(palette)
	}
	_ = dataOffset
	return image.FromBuffer(buf), nil
}

// SaveBMP writes im as an uncompressed, bottom-up BMP. MONO8 images are
// saved with an identity gray-ramp palette even if the in-memory image
// came from a non-gray PAL8 source (spec.md §4.B): the palette bytes
// written are always 0,0,0 / 1,1,1 / ... / 255,255,255.
func SaveBMP(w io.Writer, im *image.Image) error {
	var bpp int
	switch im.Format {
	case pixfmt.MONO8:
		bpp = 8
	case pixfmt.BGR8, pixfmt.RGB8:
		bpp = 24
	case pixfmt.BGRA8, pixfmt.RGBA8:
		bpp = 32
	default:
		return imgerr.New(imgerr.InvalidArgument, "BMP does not support format %s", im.Format)
	}

	rowBytes := (im.Width*bpp + 7) / 8
	stride := align4(rowBytes)
	paletteBytes := 0
	if bpp == 8 {
		paletteBytes = 256 * 4
	}
	pixelOffset := bmpFileHeaderLen + bmpInfoHeaderLen + paletteBytes
	fileSize := pixelOffset + stride*im.Height

	var fh [bmpFileHeaderLen]byte
	fh[0], fh[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(fh[2:6], uint32(fileSize))
	binary.LittleEndian.PutUint32(fh[10:14], uint32(pixelOffset))
	if _, err := w.Write(fh[:]); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "writing BMP file header")
	}

	var ih [bmpInfoHeaderLen]byte
	binary.LittleEndian.PutUint32(ih[0:4], bmpInfoHeaderLen)
	binary.LittleEndian.PutUint32(ih[4:8], uint32(im.Width))
	binary.LittleEndian.PutUint32(ih[8:12], uint32(im.Height)) // positive: bottom-up
	binary.LittleEndian.PutUint16(ih[12:14], 1)
	binary.LittleEndian.PutUint16(ih[14:16], uint16(bpp))
	binary.LittleEndian.PutUint32(ih[16:20], biRGB)
	binary.LittleEndian.PutUint32(ih[20:24], uint32(stride*im.Height))
	if _, err := w.Write(ih[:]); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "writing BMP info header")
	}

	if bpp == 8 {
		var pal [1024]byte
		for i := 0; i < 256; i++ {
			pal[i*4+0] = byte(i)
			pal[i*4+1] = byte(i)
			pal[i*4+2] = byte(i)
		}
		if _, err := w.Write(pal[:]); err != nil {
			return imgerr.Wrap(imgerr.IoError, err, "writing BMP palette")
		}
	}

	row := make([]byte, stride)
	// BMP stores rows bottom-up; logical row 0 is the top row.
	for y := im.Height - 1; y >= 0; y-- {
		src := im.Row(y)
		switch im.Format {
		case pixfmt.MONO8, pixfmt.BGR8, pixfmt.BGRA8:
			copy(row, src)
		case pixfmt.RGB8:
			for x := 0; x < im.Width; x++ {
				row[x*3+0] = src[x*3+2]
				row[x*3+1] = src[x*3+1]
				row[x*3+2] = src[x*3+0]
			}
		case pixfmt.RGBA8:
			for x := 0; x < im.Width; x++ {
				row[x*4+0] = src[x*4+2]
				row[x*4+1] = src[x*4+1]
				row[x*4+2] = src[x*4+0]
				row[x*4+3] = src[x*4+3]
			}
		}
		for i := rowBytes; i < stride; i++ {
			row[i] = 0
		}
		if _, err := w.Write(row); err != nil {
			return imgerr.Wrap(imgerr.IoError, err, "writing BMP row")
		}
	}
	return nil
}
