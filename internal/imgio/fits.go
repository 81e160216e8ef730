package imgio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/pixfmt"
)

const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

// NormalizeFITSValues selects how LoadFITS handles a FLOAT_IMG whose max
// exceeds 1.0 (spec.md §4.B: caller-selectable "normalize FITS values").
type NormalizeFITSValues int

const (
	// ClampFITSValues clamps values above 1.0 down to 1.0.
	ClampFITSValues NormalizeFITSValues = iota
	// RescaleFITSValues divides every sample by the observed maximum so
	// the new maximum is exactly 1.0.
	RescaleFITSValues
)

// LoadFITS reads a single-HDU, single-image FITS file as MONO8/MONO16/
// MONO32F, matching BITPIX 8/16/-32 respectively (spec.md §4.B). A
// negative value encountered while reading an integer BITPIX falls back
// to treating the whole image as FLOAT_IMG, per spec.
func LoadFITS(r io.Reader, normalize NormalizeFITSValues) (*image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading FITS")
	}

	cards, headerBlocks, err := parseFITSHeader(data)
	if err != nil {
		return nil, err
	}

	bitpix, ok := cards["BITPIX"]
	if !ok {
		return nil, imgerr.New(imgerr.FormatError, "FITS header missing BITPIX")
	}
	bp, err := strconv.Atoi(strings.TrimSpace(bitpix))
	if err != nil {
		return nil, imgerr.Wrap(imgerr.FormatError, err, "parsing BITPIX")
	}
	naxis, err := strconv.Atoi(strings.TrimSpace(cards["NAXIS"]))
	if err != nil || naxis != 2 {
		return nil, imgerr.New(imgerr.FormatError, "only 2D FITS images are supported (NAXIS=%s)", cards["NAXIS"])
	}
	width, err := strconv.Atoi(strings.TrimSpace(cards["NAXIS1"]))
	if err != nil {
		return nil, imgerr.Wrap(imgerr.FormatError, err, "parsing NAXIS1")
	}
	height, err := strconv.Atoi(strings.TrimSpace(cards["NAXIS2"]))
	if err != nil {
		return nil, imgerr.Wrap(imgerr.FormatError, err, "parsing NAXIS2")
	}

	body := data[headerBlocks*fitsBlockSize:]

	switch bp {
	case 8:
		vals := make([]int32, width*height)
		for i := range vals {
			vals[i] = int32(body[i])
		}
		return buildMono(width, height, vals, 8)
	case 16:
		hasNegative := false
		vals := make([]int32, width*height)
		for i := range vals {
			v := int16(uint16(body[i*2])<<8 | uint16(body[i*2+1]))
			vals[i] = int32(v)
			if v < 0 {
				hasNegative = true
			}
		}
		if hasNegative {
			floats := make([]float32, len(vals))
			for i, v := range vals {
				floats[i] = float32(v)
			}
			return buildMonoFloat(width, height, floats, normalize)
		}
		return buildMono(width, height, vals, 16)
	case -32:
		floats := make([]float32, width*height)
		for i := range floats {
			bits := uint32(body[i*4])<<24 | uint32(body[i*4+1])<<16 | uint32(body[i*4+2])<<8 | uint32(body[i*4+3])
			floats[i] = math.Float32frombits(bits)
		}
		return buildMonoFloat(width, height, floats, normalize)
	default:
		return nil, imgerr.New(imgerr.FormatError, "unsupported FITS BITPIX %d", bp)
	}
}

func buildMono(width, height int, vals []int32, bits int) (*image.Image, error) {
	var format pixfmt.Format
	if bits == 8 {
		format = pixfmt.MONO8
	} else {
		format = pixfmt.MONO16
	}
	im := image.New(width, height, format)
	for y := 0; y < height; y++ {
		row := im.RowMut(y)
		for x := 0; x < width; x++ {
			v := vals[y*width+x]
			if bits == 8 {
				row[x] = byte(v)
			} else {
				u := uint16(v)
				row[x*2] = byte(u)
				row[x*2+1] = byte(u >> 8)
			}
		}
	}
	return im, nil
}

func buildMonoFloat(width, height int, vals []float32, normalize NormalizeFITSValues) (*image.Image, error) {
	max := float32(0)
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
			continue
		}
		if v > max {
			max = v
		}
	}
	if max > 1.0 {
		if normalize == RescaleFITSValues {
			for i := range vals {
				vals[i] /= max
			}
		} else {
			for i, v := range vals {
				if v > 1.0 {
					vals[i] = 1.0
				}
			}
		}
	}
	im := image.New(width, height, pixfmt.MONO32F)
	for y := 0; y < height; y++ {
		row := im.RowMut(y)
		for x := 0; x < width; x++ {
			bits := math.Float32bits(vals[y*width+x])
			off := x * 4
			row[off] = byte(bits)
			row[off+1] = byte(bits >> 8)
			row[off+2] = byte(bits >> 16)
			row[off+3] = byte(bits >> 24)
		}
	}
	return im, nil
}

func parseFITSHeader(data []byte) (map[string]string, int, error) {
	cards := make(map[string]string)
	for block := 0; ; block++ {
		start := block * fitsBlockSize
		if start+fitsBlockSize > len(data) {
			return nil, 0, imgerr.New(imgerr.FormatError, "truncated FITS header")
		}
		chunk := data[start : start+fitsBlockSize]
		done := false
		for i := 0; i < fitsBlockSize; i += fitsCardSize {
			card := string(chunk[i : i+fitsCardSize])
			key := strings.TrimSpace(card[:8])
			if key == "END" {
				done = true
				break
			}
			if key == "" || !strings.Contains(card, "=") {
				continue
			}
			parts := strings.SplitN(card[8:], "=", 2)
			if len(parts) != 2 {
				continue
			}
			value := parts[1]
			if idx := strings.Index(value, "/"); idx >= 0 {
				value = value[:idx]
			}
			cards[key] = strings.TrimSpace(value)
		}
		if done {
			return cards, block + 1, nil
		}
	}
}

// SaveFITS writes im as a single-HDU, single-image FITS file with BITPIX
// matching the image's bit depth (MONO8->8, MONO16->16, MONO32F->-32),
// padding both the header and the data to 2880-byte blocks (spec.md §4.B).
func SaveFITS(w io.Writer, im *image.Image) error {
	var bitpix int
	switch im.Format {
	case pixfmt.MONO8:
		bitpix = 8
	case pixfmt.MONO16:
		bitpix = 16
	case pixfmt.MONO32F:
		bitpix = -32
	default:
		return imgerr.New(imgerr.InvalidArgument, "FITS save requires a mono format, got %s", im.Format)
	}

	var header bytes.Buffer
	writeCard(&header, "SIMPLE", "T", "")
	writeCard(&header, "BITPIX", fmt.Sprintf("%d", bitpix), "")
	writeCard(&header, "NAXIS", "2", "")
	writeCard(&header, "NAXIS1", fmt.Sprintf("%d", im.Width), "")
	writeCard(&header, "NAXIS2", fmt.Sprintf("%d", im.Height), "")
	header.WriteString(fmt.Sprintf("%-80s", "END"))
	padToBlock(&header, fitsBlockSize)
	if _, err := w.Write(header.Bytes()); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "writing FITS header")
	}

	var body bytes.Buffer
	for y := 0; y < im.Height; y++ {
		row := im.Row(y)
		switch im.Format {
		case pixfmt.MONO8:
			body.Write(row)
		case pixfmt.MONO16:
			for x := 0; x < im.Width; x++ {
				v := uint16(row[x*2]) | uint16(row[x*2+1])<<8
				body.WriteByte(byte(v >> 8))
				body.WriteByte(byte(v))
			}
		case pixfmt.MONO32F:
			for x := 0; x < im.Width; x++ {
				off := x * 4
				bits := uint32(row[off]) | uint32(row[off+1])<<8 | uint32(row[off+2])<<16 | uint32(row[off+3])<<24
				body.WriteByte(byte(bits >> 24))
				body.WriteByte(byte(bits >> 16))
				body.WriteByte(byte(bits >> 8))
				body.WriteByte(byte(bits))
			}
		}
	}
	padToBlock(&body, fitsBlockSize)
	if _, err := w.Write(body.Bytes()); err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "writing FITS data")
	}
	return nil
}

func writeCard(buf *bytes.Buffer, key, value, comment string) {
	card := fmt.Sprintf("%-8s= %20s", key, value)
	if comment != "" {
		card += " / " + comment
	}
	if len(card) > fitsCardSize {
		card = card[:fitsCardSize]
	}
	buf.WriteString(fmt.Sprintf("%-80s", card))
}

func padToBlock(buf *bytes.Buffer, block int) {
	if rem := buf.Len() % block; rem != 0 {
		buf.Write(bytes.Repeat([]byte{0}, block-rem))
	}
}
