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

// imppg-serve is a thin HTTP surface over the library's process_image and
// align_images entry points (spec.md §6), mirroring the teacher's
// CmdServe (internal/cmdserve.go): gin.New plus gin.Logger/gin.Recovery
// middleware and JSON routes. The GUI itself is out of scope (spec.md
// §1 Non-goals), so unlike the teacher this serves no static web bundle
// and gin-gonic/contrib/static has nothing to wire here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GreatAttractor/imppg/internal/align"
	"github.com/GreatAttractor/imppg/internal/backend/cpu"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgio"
	"github.com/GreatAttractor/imppg/internal/log"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/scheduler"
	"github.com/GreatAttractor/imppg/internal/settings"
)

var port = flag.Int("port", 8080, "listen port")

func main() {
	flag.Parse()

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/api/v1/process_image", handleProcessImage)
	r.POST("/api/v1/align_images", handleAlignImages)

	log.Printf("Listening on :%d\n", *port)
	if err := r.Run(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatalf("server error: %v\n", err)
	}
}

// processImageRequest mirrors process_image_file(in_path, settings_path,
// out_path, format) (spec.md §6) without the format argument: the handler
// always saves 16-bit TIFF.
type processImageRequest struct {
	InPath       string `json:"in_path" binding:"required"`
	SettingsPath string `json:"settings_path" binding:"required"`
	OutPath      string `json:"out_path" binding:"required"`
}

func handleProcessImage(c *gin.Context) {
	var req processImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	im, err := imgio.LoadImage(req.InPath)
	if err != nil {
		c.JSON(422, gin.H{"error": err.Error()})
		return
	}
	sf, err := os.Open(req.SettingsPath)
	if err != nil {
		c.JSON(422, gin.H{"error": err.Error()})
		return
	}
	defer sf.Close()
	s, err := settings.Load(sf)
	if err != nil {
		c.JSON(422, gin.H{"error": err.Error()})
		return
	}

	result, status, err := processImage(im, s)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if status == scheduler.Aborted {
		c.JSON(499, gin.H{"error": "processing aborted"})
		return
	}
	if err := imgio.SaveImage(result, req.OutPath, imgio.FormatTIFF16); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"out_path": req.OutPath})
}

// processImage drives a CPU backend to completion, polling Step() per the
// idle-pump model (spec.md §9), and converts the tone-curve output back
// into an Image in the source's own pixel format.
func processImage(im *image.Image, s *procsettings.ProcessingSettings) (*image.Image, scheduler.Status, error) {
	isRGB := !im.Format.IsMono()

	var b *cpu.Backend
	if isRGB {
		rgb, err := image.ToRGBPlane(im)
		if err != nil {
			return nil, 0, err
		}
		b = cpu.NewRGB(rgb, s)
	} else {
		mono, err := image.ToPlane(im)
		if err != nil {
			return nil, 0, err
		}
		b = cpu.NewMono(mono, s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	b.Start(ctx, procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	status := runToCompletion(b)
	if status == scheduler.Aborted {
		return nil, status, nil
	}

	// Switch to the precise (non-LUT) tone curve evaluator exactly once
	// before saving, per spec.md §4.D/§4.G.
	b.StartPrecise(ctx)
	status = runToCompletion(b)
	if status == scheduler.Aborted {
		return nil, status, nil
	}

	raw, ok := b.Output()
	if !ok {
		return nil, status, fmt.Errorf("processing produced no output")
	}
	var result *image.Image
	var err error
	if isRGB {
		result, err = image.RGBPlaneToImage(raw.(*image.RGBPlane), im.Format)
	} else {
		result, err = image.PlaneToImage(raw.(*image.Plane), im.Format)
	}
	return result, status, err
}

// runToCompletion polls Step() until the backend is no longer busy, the
// idle-pump drive loop spec.md §9 describes, synchronous for HTTP use.
func runToCompletion(b *cpu.Backend) scheduler.Status {
	for {
		step := b.Step()
		if !step.Busy {
			return step.Status
		}
		time.Sleep(time.Millisecond)
	}
}

// alignImagesRequest mirrors align_images(paths, mode, crop_mode, subpixel,
// out_dir, suffix?, progress_cb) (spec.md §6); progress_cb has no meaning
// over a synchronous HTTP request and is omitted.
type alignImagesRequest struct {
	Paths    []string `json:"paths" binding:"required"`
	Mode     string   `json:"mode"`
	CropMode string   `json:"crop_mode"`
	Subpixel bool     `json:"subpixel"`
	OutDir   string   `json:"out_dir"`
	Suffix   string   `json:"suffix"`
}

func handleAlignImages(c *gin.Context) {
	var req alignImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if len(req.Paths) < 2 {
		c.JSON(400, gin.H{"error": "at least two paths required"})
		return
	}
	if req.Suffix == "" {
		req.Suffix = "_aligned"
	}

	mode := align.ModeStandard
	if strings.EqualFold(req.Mode, "solar_limb") {
		mode = align.ModeSolarLimb
	}
	cropMode := align.CropIntersection
	if strings.EqualFold(req.CropMode, "pad") {
		cropMode = align.CropPad
	}

	aligned, err := align.AlignImages(req.Paths, mode, cropMode, req.Subpixel, nil)
	if err != nil {
		c.JSON(422, gin.H{"error": err.Error()})
		return
	}

	outPaths := make([]string, len(aligned))
	for i, im := range aligned {
		dir := req.OutDir
		if dir == "" {
			dir = filepath.Dir(req.Paths[i])
		}
		base := strings.TrimSuffix(filepath.Base(req.Paths[i]), filepath.Ext(req.Paths[i]))
		dst := filepath.Join(dir, base+req.Suffix+filepath.Ext(req.Paths[i]))
		if err := imgio.SaveImage(im, dst, imgio.FormatTIFF16); err != nil {
			c.JSON(500, gin.H{"error": err.Error()})
			return
		}
		outPaths[i] = dst
	}
	c.JSON(200, gin.H{"out_paths": outPaths})
}
