// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// imppg is the CLI entry point (spec.md §6): a thin flag-parsing and
// switch-dispatch shell over the library entry points in internal/,
// following the teacher's cmd/nightlight/main.go structure (package-level
// flag.* vars, a single switch on the first positional argument).
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GreatAttractor/imppg/internal/align"
	"github.com/GreatAttractor/imppg/internal/backend/cpu"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/imgio"
	"github.com/GreatAttractor/imppg/internal/log"
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/scheduler"
	"github.com/GreatAttractor/imppg/internal/settings"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

const version = "1.0.0"

var (
	out        = flag.String("out", "", "save result to `file`")
	format     = flag.String("format", "tiff16", "output format: bmp8, tiff16, tiff16zip, tiff8lzw, tiff32f, tiff32fzip, png8, fits8, fits16, fits32f")
	settingsIn = flag.String("settings", "", "load ProcessingSettings from `file`")

	alignMode     = flag.String("alignMode", "standard", "alignment mode: standard or solar_limb")
	alignCrop     = flag.String("alignCrop", "intersection", "crop reconciliation: intersection or pad")
	alignSubpixel = flag.Bool("alignSubpixel", true, "use sub-pixel translation when aligning")
	alignSuffix   = flag.String("alignSuffix", "_aligned", "suffix appended to aligned output filenames")
	alignOutDir   = flag.String("alignOutDir", "", "directory for aligned output files, default: alongside input")

	blendWeightA = flag.Float64("weightA", 1, "weight of the first image for the blend command")
	blendWeightB = flag.Float64("weightB", 1, "weight of the second image for the blend command")

	multiplyFactor = flag.Float64("factor", 1, "scalar factor for the multiply command")
)

func main() {
	start := time.Now()
	flag.Usage = func() {
		log.Printf(`imppg Copyright (c) 2026
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (process|align|combine-rgb|blend|multiply|awb|align-rgb|settings|version) (args...)

Commands:
  process   in.img           Process a single image with -settings and write -out
  align     img0 ... imgn    Align a sequence of images with -alignMode/-alignCrop
  combine-rgb r.img g.img b.img   Combine three mono images into one RGB image
  blend     a.img b.img      Blend two images with -weightA/-weightB
  multiply  a.img            Scale a mono image by -factor
  awb       in.img           Auto white balance a color image
  align-rgb in.img           Align the R/G/B channels of one color image
  settings  default          Write an identity-settings file to -out
  version                    Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	switch args[0] {
	case "process":
		cmdProcess(args[1:])
	case "align":
		cmdAlign(args[1:])
	case "combine-rgb":
		cmdCombineRGB(args[1:])
	case "blend":
		cmdBlend(args[1:])
	case "multiply":
		cmdMultiply(args[1:])
	case "awb":
		cmdAWB(args[1:])
	case "align-rgb":
		cmdAlignRGB(args[1:])
	case "settings":
		cmdSettings(args[1:])
	case "version":
		log.Printf("Version %s\n", version)
	case "help", "?":
		flag.Usage()
	default:
		log.Printf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
	}

	log.Printf("\nDone after %v\n", time.Since(start))
	log.Sync()
}

// loadImage wraps imgio.LoadImage with CLI-level fatal error handling
// (spec.md §6: load_image(path) -> Image).
func loadImage(path string) *image.Image {
	im, err := imgio.LoadImage(path)
	if err != nil {
		log.Fatalf("Error loading %s: %v\n", path, err)
	}
	return im
}

func saveImage(im *image.Image, path string) {
	f, err := parseSaveFormat(*format)
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	if err := imgio.SaveImage(im, path, f); err != nil {
		log.Fatalf("Error saving %s: %v\n", path, err)
	}
}

func parseSaveFormat(name string) (imgio.SaveFormat, error) {
	switch strings.ToLower(name) {
	case "bmp8":
		return imgio.FormatBMP8, nil
	case "tiff16":
		return imgio.FormatTIFF16, nil
	case "tiff16zip":
		return imgio.FormatTIFF16Zip, nil
	case "tiff8lzw":
		return imgio.FormatTIFF8LZW, nil
	case "tiff32f":
		return imgio.FormatTIFF32F, nil
	case "tiff32fzip":
		return imgio.FormatTIFF32FZip, nil
	case "png8":
		return imgio.FormatPNG8, nil
	case "fits8":
		return imgio.FormatFITS8, nil
	case "fits16":
		return imgio.FormatFITS16, nil
	case "fits32f":
		return imgio.FormatFITS32F, nil
	default:
		return 0, imgerr.New(imgerr.InvalidArgument, "unknown -format %q", name)
	}
}

// loadSettings reads *settingsIn, fatally exiting if it isn't set or
// doesn't parse (spec.md §6: load_settings(path) -> ProcessingSettings).
func loadSettings() *procsettings.ProcessingSettings {
	if *settingsIn == "" {
		log.Fatalf("process requires -settings file\n")
	}
	f, err := os.Open(*settingsIn)
	if err != nil {
		log.Fatalf("Error opening %s: %v\n", *settingsIn, err)
	}
	defer f.Close()
	s, err := settings.Load(f)
	if err != nil {
		log.Fatalf("Error parsing %s: %v\n", *settingsIn, err)
	}
	return s
}

// cmdProcess implements process_image_file(in_path, settings_path, out_path,
// format): load, run the CPU backend's pipeline to completion by polling
// Step() per the idle-pump model (spec.md §9), save.
func cmdProcess(args []string) {
	if len(args) != 1 {
		log.Fatalf("process requires exactly one input file\n")
	}
	if *out == "" {
		log.Fatalf("process requires -out\n")
	}
	im := loadImage(args[0])
	s := loadSettings()
	result := runToCompletion(im, s)
	saveImage(result, *out)
}

// runToCompletion drives a CPU backend through one full run by polling
// Step() until Busy is false, modeling the "runtime loop feeds it between
// UI events" idle pump described in spec.md §9 synchronously for CLI use.
func runToCompletion(im *image.Image, s *procsettings.ProcessingSettings) *image.Image {
	isRGB := !im.Format.IsMono()

	var b *cpu.Backend
	if isRGB {
		rgb, err := image.ToRGBPlane(im)
		if err != nil {
			log.Fatalf("%v\n", err)
		}
		b = cpu.NewRGB(rgb, s)
	} else {
		mono, err := image.ToPlane(im)
		if err != nil {
			log.Fatalf("%v\n", err)
		}
		b = cpu.NewMono(mono, s)
	}

	ctx := context.Background()
	b.Start(ctx, procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	runBackendToCompletion(b)

	// Switch to the precise (non-LUT) tone curve evaluator exactly once
	// before saving, per spec.md §4.D/§4.G.
	b.StartPrecise(ctx)
	runBackendToCompletion(b)

	raw, ok := b.Output()
	if !ok {
		log.Fatalf("processing produced no output\n")
	}

	var result *image.Image
	var err error
	if isRGB {
		result, err = image.RGBPlaneToImage(raw.(*image.RGBPlane), im.Format)
	} else {
		result, err = image.PlaneToImage(raw.(*image.Plane), im.Format)
	}
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	return result
}

// runBackendToCompletion polls Step() until the backend is no longer busy,
// the idle-pump drive loop spec.md §9 describes, synchronous for CLI use.
func runBackendToCompletion(b *cpu.Backend) {
	for {
		res := b.Step()
		if !res.Busy {
			if res.Status == scheduler.Aborted {
				log.Fatalf("processing aborted\n")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func cmdAlign(args []string) {
	if len(args) < 2 {
		log.Fatalf("align requires at least two input files\n")
	}
	mode := align.ModeStandard
	if strings.EqualFold(*alignMode, "solar_limb") {
		mode = align.ModeSolarLimb
	}
	cropMode := align.CropIntersection
	if strings.EqualFold(*alignCrop, "pad") {
		cropMode = align.CropPad
	}

	aligned, err := align.AlignImages(args, mode, cropMode, *alignSubpixel, func(frac float64) bool {
		log.Printf("Aligning... %.0f%%\n", frac*100)
		return true
	})
	if err != nil {
		log.Fatalf("Error aligning: %v\n", err)
	}

	for i, im := range aligned {
		dir := *alignOutDir
		if dir == "" {
			dir = filepath.Dir(args[i])
		}
		base := strings.TrimSuffix(filepath.Base(args[i]), filepath.Ext(args[i]))
		dst := filepath.Join(dir, base+*alignSuffix+filepath.Ext(args[i]))
		saveImage(im, dst)
		log.Printf("Wrote %s\n", dst)
	}
}

func cmdCombineRGB(args []string) {
	if len(args) != 3 {
		log.Fatalf("combine-rgb requires r, g, b input files\n")
	}
	r, g, b := loadImage(args[0]), loadImage(args[1]), loadImage(args[2])
	combined, err := image.CombineRGB(r, g, b)
	if err != nil {
		log.Fatalf("Error combining: %v\n", err)
	}
	requireOut()
	saveImage(combined, *out)
}

func cmdBlend(args []string) {
	if len(args) != 2 {
		log.Fatalf("blend requires exactly two input files\n")
	}
	a, b := loadImage(args[0]), loadImage(args[1])
	result, err := image.Blend(a, float32(*blendWeightA), b, float32(*blendWeightB))
	if err != nil {
		log.Fatalf("Error blending: %v\n", err)
	}
	requireOut()
	saveImage(result, *out)
}

func cmdMultiply(args []string) {
	if len(args) != 1 {
		log.Fatalf("multiply requires exactly one input file\n")
	}
	im := loadImage(args[0])
	plane, err := image.ToPlane(im)
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	factorPlane := image.NewPlane(plane.Width, plane.Height)
	for i := range factorPlane.Pix {
		factorPlane.Pix[i] = float32(*multiplyFactor)
	}
	scaled := image.MultiplyPlane(plane, factorPlane)
	result, err := image.PlaneToImage(scaled, im.Format)
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	requireOut()
	saveImage(result, *out)
}

func cmdAWB(args []string) {
	if len(args) != 1 {
		log.Fatalf("awb requires exactly one input file\n")
	}
	im := loadImage(args[0])
	result, err := image.AutoWhiteBalance(im)
	if err != nil {
		log.Fatalf("Error balancing: %v\n", err)
	}
	requireOut()
	saveImage(result, *out)
}

func cmdAlignRGB(args []string) {
	if len(args) != 1 {
		log.Fatalf("align-rgb requires exactly one input file\n")
	}
	im := loadImage(args[0])
	rgb, err := image.ToRGBPlane(im)
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	aligned, err := align.AlignRGBChannels(rgb)
	if err != nil {
		log.Fatalf("Error aligning channels: %v\n", err)
	}
	result, err := image.RGBPlaneToImage(aligned, im.Format)
	if err != nil {
		log.Fatalf("%v\n", err)
	}
	requireOut()
	saveImage(result, *out)
}

// cmdSettings writes an identity ProcessingSettings file: an identity tone
// curve and a single non-adaptive amount_max=1.0 unsharp mask, the no-op
// baseline named by spec.md §8 scenario 2 (spec.md §6: save_settings).
func cmdSettings(args []string) {
	if len(args) != 1 || args[0] != "default" {
		log.Fatalf("settings requires exactly one argument: default\n")
	}
	requireOut()
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Error creating %s: %v\n", *out, err)
	}
	defer f.Close()

	s := &procsettings.ProcessingSettings{
		LR: procsettings.LRSettings{Sigma: 1.0, Iterations: 0},
		UnsharpMasks: []procprim.UnsharpMaskParams{
			{Sigma: 1.0, Adaptive: false, AmountMin: 1.0, AmountMax: 1.0, Threshold: 0.5, Width: 0.1},
		},
		ToneCurve: tonecurve.NewIdentity(),
	}
	if err := settings.Save(f, s); err != nil {
		log.Fatalf("Error writing settings: %v\n", err)
	}
}

func requireOut() {
	if *out == "" {
		log.Fatalf("this command requires -out\n")
	}
}
