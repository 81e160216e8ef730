package imgio

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/binary"
	"io"
	"sort"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

// TIFF tag IDs used by this reader/writer (baseline TIFF 6.0).
const (
	tagImageWidth                = 256
	tagImageLength                = 257
	tagBitsPerSample              = 258
	tagCompression                = 259
	tagPhotometricInterpretation  = 262
	tagStripOffsets               = 273
	tagSamplesPerPixel            = 277
	tagRowsPerStrip               = 278
	tagStripByteCounts            = 279
	tagPlanarConfiguration        = 284
	tagSampleFormat               = 339
)

const (
	compressionNone    = 1
	compressionLZW     = 5
	compressionDeflate = 8

	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1
	photometricRGB         = 2

	planarChunky = 1

	sampleFormatUint  = 1
	sampleFormatFloat = 3
)

// Compression selects the TIFF save variant (spec.md §4.B supplement: LZW
// and Deflate compressed save, alongside the default uncompressed form).
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZW
	CompressionDeflate
)

type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	value  uint32 // value or offset, raw 4 bytes interpreted per typ/count
}

// LoadTIFF reads a single-image, single or multi-strip TIFF file. Only
// Compression == none is accepted on read (spec.md §4.B: "uncompressed-only
// read rejecting other compression"); compressed files must be
// re-saved/produced by another tool first.
func LoadTIFF(r io.Reader) (*image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading TIFF")
	}
	if len(data) < 8 {
		return nil, imgerr.New(imgerr.FormatError, "TIFF file too short")
	}

	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, imgerr.New(imgerr.FormatError, "not a TIFF file")
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, imgerr.New(imgerr.FormatError, "bad TIFF magic number")
	}
	ifdOffset := bo.Uint32(data[4:8])

	entries, err := readIFD(data, bo, ifdOffset)
	if err != nil {
		return nil, err
	}
	tags := make(map[uint16]ifdEntry, len(entries))
	for _, e := range entries {
		tags[e.tag] = e
	}

	width := int(tagValue(tags, bo, data, tagImageWidth, 0))
	height := int(tagValue(tags, bo, data, tagImageLength, 0))
	samplesPerPixel := int(tagValue(tags, bo, data, tagSamplesPerPixel, 1))
	compression := int(tagValue(tags, bo, data, tagCompression, compressionNone))
	photometric := int(tagValue(tags, bo, data, tagPhotometricInterpretation, photometricBlackIsZero))
	planar := int(tagValue(tags, bo, data, tagPlanarConfiguration, planarChunky))
	bitsPerSample := int(firstBitsPerSample(tags, bo, data))
	sampleFormat := int(tagValue(tags, bo, data, tagSampleFormat, sampleFormatUint))

	if compression != compressionNone {
		return nil, imgerr.New(imgerr.FormatError, "unsupported TIFF compression %d (read supports uncompressed only)", compression)
	}
	if planar != planarChunky {
		return nil, imgerr.New(imgerr.FormatError, "unsupported TIFF planar configuration %d", planar)
	}

	var format pixfmt.Format
	switch {
	case samplesPerPixel == 1 && bitsPerSample == 8:
		format = pixfmt.MONO8
	case samplesPerPixel == 1 && bitsPerSample == 16:
		format = pixfmt.MONO16
	case samplesPerPixel == 1 && bitsPerSample == 32 && sampleFormat == sampleFormatFloat:
		format = pixfmt.MONO32F
	case samplesPerPixel == 3 && bitsPerSample == 8:
		format = pixfmt.RGB8
	case samplesPerPixel == 3 && bitsPerSample == 16:
		format = pixfmt.RGB16
	case samplesPerPixel == 3 && bitsPerSample == 32 && sampleFormat == sampleFormatFloat:
		format = pixfmt.RGB32F
	default:
		return nil, imgerr.New(imgerr.FormatError, "unsupported TIFF sample layout (%d samples, %d bits)", samplesPerPixel, bitsPerSample)
	}

	stripOffsets, err := tagValues(tags, bo, data, tagStripOffsets)
	if err != nil {
		return nil, err
	}
	stripByteCounts, err := tagValues(tags, bo, data, tagStripByteCounts)
	if err != nil {
		return nil, err
	}
	rowsPerStrip := int(tagValue(tags, bo, data, tagRowsPerStrip, uint32(height)))

	im := image.New(width, height, format)
	bpp := format.BytesPerPixel()
	row := 0
	for i := range stripOffsets {
		off := stripOffsets[i]
		n := stripByteCounts[i]
		strip := data[off : off+n]
		rows := rowsPerStrip
		if row+rows > height {
			rows = height - row
		}
		for r := 0; r < rows; r++ {
			dst := im.RowMut(row + r)
			src := strip[r*width*bpp : (r+1)*width*bpp]
			copy(dst, src)
		}
		row += rows
	}

	if photometric == photometricWhiteIsZero {
		invertInPlace(im)
	}

	return im, nil
}

func invertInPlace(im *image.Image) {
	switch im.Format {
	case pixfmt.MONO8:
		for y := 0; y < im.Height; y++ {
			row := im.RowMut(y)
			for i := range row {
				row[i] = 0xFF - row[i]
			}
		}
	case pixfmt.MONO16:
		for y := 0; y < im.Height; y++ {
			row := im.RowMut(y)
			for x := 0; x < im.Width; x++ {
				v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
				v = 0xFFFF - v
				row[x*2] = byte(v)
				row[x*2+1] = byte(v >> 8)
			}
		}
	}
}

func readIFD(data []byte, bo binary.ByteOrder, offset uint32) ([]ifdEntry, error) {
	if int(offset)+2 > len(data) {
		return nil, imgerr.New(imgerr.FormatError, "TIFF IFD offset out of range")
	}
	count := int(bo.Uint16(data[offset : offset+2]))
	entries := make([]ifdEntry, count)
	base := int(offset) + 2
	for i := 0; i < count; i++ {
		e := data[base+i*12 : base+(i+1)*12]
		entries[i] = ifdEntry{
			tag:   bo.Uint16(e[0:2]),
			typ:   bo.Uint16(e[2:4]),
			count: bo.Uint32(e[4:8]),
			value: bo.Uint32(e[8:12]),
		}
	}
	return entries, nil
}

func tagValue(tags map[uint16]ifdEntry, bo binary.ByteOrder, data []byte, tag uint16, def uint32) uint32 {
	e, ok := tags[tag]
	if !ok {
		return def
	}
	if e.typ == 3 && e.count == 1 {
		// SHORT is stored left-justified within the 4-byte value field.
		if bo == binary.LittleEndian {
			return e.value & 0xFFFF
		}
		return e.value >> 16
	}
	return e.value
}

func firstBitsPerSample(tags map[uint16]ifdEntry, bo binary.ByteOrder, data []byte) uint32 {
	e, ok := tags[tagBitsPerSample]
	if !ok {
		return 8
	}
	if e.count == 1 {
		return tagValue(tags, bo, data, tagBitsPerSample, 8)
	}
	off := e.value
	return uint32(bo.Uint16(data[off : off+2]))
}

func tagValues(tags map[uint16]ifdEntry, bo binary.ByteOrder, data []byte, tag uint16) ([]uint32, error) {
	e, ok := tags[tag]
	if !ok {
		return nil, imgerr.New(imgerr.FormatError, "TIFF missing required tag %d", tag)
	}
	out := make([]uint32, e.count)
	if e.count == 1 {
		out[0] = e.value
		return out, nil
	}
	off := e.value
	for i := uint32(0); i < e.count; i++ {
		out[i] = bo.Uint32(data[off+i*4 : off+i*4+4])
	}
	return out, nil
}

// SaveTIFF writes im as a single-strip, chunky-planar TIFF, optionally
// compressing the strip with LZW or Deflate (spec.md §4.B supplement).
func SaveTIFF(w io.Writer, im *image.Image, compression Compression) error {
	var bitsPerSample, samplesPerPixel int
	var photometric uint32 = photometricBlackIsZero
	sampleFormat := uint32(sampleFormatUint)
	switch im.Format {
	case pixfmt.MONO8:
		bitsPerSample, samplesPerPixel = 8, 1
	case pixfmt.MONO16:
		bitsPerSample, samplesPerPixel = 16, 1
	case pixfmt.MONO32F:
		bitsPerSample, samplesPerPixel = 32, 1
		sampleFormat = sampleFormatFloat
	case pixfmt.RGB8:
		bitsPerSample, samplesPerPixel = 8, 3
		photometric = photometricRGB
	case pixfmt.RGB16:
		bitsPerSample, samplesPerPixel = 16, 3
		photometric = photometricRGB
	case pixfmt.RGB32F:
		bitsPerSample, samplesPerPixel = 32, 3
		photometric = photometricRGB
		sampleFormat = sampleFormatFloat
	default:
		return imgerr.New(imgerr.InvalidArgument, "TIFF does not support format %s", im.Format)
	}

	raw := make([]byte, 0, im.Height*im.Width*im.Format.BytesPerPixel())
	for y := 0; y < im.Height; y++ {
		raw = append(raw, im.Row(y)...)
	}

	var tiffCompression uint32
	var stripData []byte
	switch compression {
	case CompressionNone:
		tiffCompression = compressionNone
		stripData = raw
	case CompressionLZW:
		tiffCompression = compressionLZW
		var buf bytes.Buffer
		wr := lzw.NewWriter(&buf, lzw.MSB, 8)
		if _, err := wr.Write(raw); err != nil {
			return imgerr.Wrap(imgerr.IoError, err, "LZW-compressing TIFF strip")
		}
		wr.Close()
		stripData = buf.Bytes()
	case CompressionDeflate:
		tiffCompression = compressionDeflate
		var buf bytes.Buffer
		wr, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
		if err != nil {
			return imgerr.Wrap(imgerr.Internal, err, "creating deflate writer")
		}
		if _, err := wr.Write(raw); err != nil {
			return imgerr.Wrap(imgerr.IoError, err, "deflate-compressing TIFF strip")
		}
		wr.Close()
		stripData = buf.Bytes()
	}

	bo := binary.LittleEndian
	var header [8]byte
	header[0], header[1] = 'I', 'I'
	bo.PutUint16(header[2:4], 42)
	bo.PutUint32(header[4:8], 8)

	type rawEntry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	stripOffset := uint32(0) // patched below once the IFD size is known
	entries := []rawEntry{
		{tagImageWidth, 4, 1, uint32(im.Width)},
		{tagImageLength, 4, 1, uint32(im.Height)},
		{tagBitsPerSample, 3, 1, uint32(bitsPerSample)},
		{tagCompression, 3, 1, tiffCompression},
		{tagPhotometricInterpretation, 3, 1, photometric},
		{tagStripOffsets, 4, 1, stripOffset},
		{tagSamplesPerPixel, 3, 1, uint32(samplesPerPixel)},
		{tagRowsPerStrip, 4, 1, uint32(im.Height)},
		{tagStripByteCounts, 4, 1, uint32(len(stripData))},
		{tagPlanarConfiguration, 3, 1, planarChunky},
		{tagSampleFormat, 3, 1, sampleFormat},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + len(entries)*12 + 4
	dataStart := 8 + ifdSize
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].value = uint32(dataStart)
		}
	}

	var out bytes.Buffer
	out.Write(header[:])
	var countBuf [2]byte
	bo.PutUint16(countBuf[:], uint16(len(entries)))
	out.Write(countBuf[:])
	for _, e := range entries {
		var eb [12]byte
		bo.PutUint16(eb[0:2], e.tag)
		bo.PutUint16(eb[2:4], e.typ)
		bo.PutUint32(eb[4:8], e.count)
		bo.PutUint32(eb[8:12], e.value)
		out.Write(eb[:])
	}
	var nextIFD [4]byte
	out.Write(nextIFD[:])
	out.Write(stripData)

	if _, err := w.Write(out.Bytes()); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "writing TIFF")
	}
	return nil
}
