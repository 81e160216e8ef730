package imgio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
)

// SaveFormat names the output variants of save(image, path, format)
// (spec.md §6).
type SaveFormat int

const (
	FormatBMP8 SaveFormat = iota
	FormatTIFF16
	FormatPNG8
	FormatTIFF8LZW
	FormatTIFF16Zip
	FormatTIFF32F
	FormatTIFF32FZip
	FormatFITS8
	FormatFITS16
	FormatFITS32F
)

// LoadImage loads path, dispatching on its extension. BMP, TIFF (uncompressed
// only), PNG, and FITS are accepted on input (spec.md §6).
func LoadImage(path string) (*image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "opening %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return LoadBMP(f)
	case ".tif", ".tiff":
		return LoadTIFF(f)
	case ".png":
		return LoadPNG(f)
	case ".fit", ".fits":
		return LoadFITS(f, ClampFITSValues)
	default:
		return nil, imgerr.New(imgerr.FormatError, "unrecognized image file extension: %s", path)
	}
}

// SaveImage writes im to path in the given format (spec.md §6:
// save(image, path, format)). 32-bit float formats preserve MONO32F/RGB32F
// samples without re-quantization; the caller is responsible for having
// already converted im to a format the target variant accepts.
func SaveImage(im *image.Image, path string, format SaveFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return imgerr.Wrap(imgerr.IoError, err, "creating %s", path)
	}
	defer f.Close()

	switch format {
	case FormatBMP8:
		return SaveBMP(f, im)
	case FormatTIFF16, FormatTIFF32F:
		return SaveTIFF(f, im, CompressionNone)
	case FormatTIFF8LZW:
		return SaveTIFF(f, im, CompressionLZW)
	case FormatTIFF16Zip, FormatTIFF32FZip:
		return SaveTIFF(f, im, CompressionDeflate)
	case FormatPNG8:
		return SavePNG(f, im)
	case FormatFITS8, FormatFITS16, FormatFITS32F:
		return SaveFITS(f, im)
	default:
		return imgerr.New(imgerr.InvalidArgument, "unknown save format %d", format)
	}
}
