// Package gpu implements the GPU backend (spec.md §9 DESIGN NOTES,
// §4.I): a command-batching abstraction standing in for real fragment
// shaders and framebuffer objects. Real GL calls are kept behind the
// Device interface below so this package can be exercised without a GL
// context (spec.md: "real GL calls are behind an interface"); the
// default device runs each program in software over float32 textures,
// grounded on the same pixel math as internal/mathkernel and
// internal/procprim so CPU and GPU backends produce matching output.
//
// BatchSize computes the per-batch L-R iteration count
// max(1, batch_mpix_iters*1e6/(w*h)) (spec.md §9), but L-R is not split
// into batches here: each request runs as one internal/scheduler run, Step
// reports Busy while that run is in flight and Done once it completes, and
// a cancellation reaches the run through the scheduler's context rather
// than at batch boundaries.
package gpu

import (
	"context"
	"sync"

	"github.com/GreatAttractor/imppg/internal/backend"
	"github.com/GreatAttractor/imppg/internal/histogram"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/mathkernel"
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/scheduler"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

// Program names one of the fixed fragment-shader equivalents (spec.md
// §9: "Programs (fragment shaders): copy, tone_curve, gaussian_horz,
// gaussian_vert, unsharp_mask, divide, multiply").
type Program int

const (
	ProgramCopy Program = iota
	ProgramToneCurve
	ProgramGaussianHorz
	ProgramGaussianVert
	ProgramUnsharpMask
	ProgramDivide
	ProgramMultiply
)

// uniformSet is the program's by-name uniform requirements, validated at
// "link time" (program construction) against the set the program expects
// (spec.md §9).
var uniformSet = map[Program][]string{
	ProgramCopy:         nil,
	ProgramToneCurve:    {"curve", "precise"},
	ProgramGaussianHorz: {"sigma"},
	ProgramGaussianVert: {"sigma"},
	ProgramUnsharpMask:  {"amount", "threshold", "width", "sigma"},
	ProgramDivide:       nil,
	ProgramMultiply:     nil,
}

// Uniforms is a by-name uniform value map (spec.md §9: "program uniforms
// live in a by-name map").
type Uniforms map[string]interface{}

func (u Uniforms) float(name string) float64 {
	if v, ok := u[name]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// validate checks that u supplies every uniform p expects, "at
// program-link time" in spec terms — here, at Dispatch time.
func validate(p Program, u Uniforms) error {
	for _, name := range uniformSet[p] {
		if _, ok := u[name]; !ok {
			return errMissingUniform(p, name)
		}
	}
	return nil
}

// Texture is a ping-pong-able GPU-resident float32 buffer; the software
// Device backs it directly with an *image.Plane or *image.RGBPlane.
type Texture struct {
	mono *image.Plane
	rgb  *image.RGBPlane
}

// Device executes Programs against Textures. The default softwareDevice
// implements every program in plain Go using internal/mathkernel and
// internal/procprim, standing in for the real shader pipeline (spec.md:
// "real GL calls are behind an interface").
type Device interface {
	Dispatch(p Program, u Uniforms, in, out *Texture) error
}

type softwareDevice struct{}

func (softwareDevice) Dispatch(p Program, u Uniforms, in, out *Texture) error {
	if err := validate(p, u); err != nil {
		return err
	}
	switch p {
	case ProgramCopy:
		copyTexture(in, out)
	case ProgramGaussianHorz, ProgramGaussianVert:
		dispatchGaussian(p, u, in, out)
	case ProgramToneCurve:
		dispatchToneCurve(u, in, out)
	case ProgramUnsharpMask:
		dispatchUnsharpMask(u, in, out)
	case ProgramDivide:
		dispatchBinary(in, out, func(a, b float32) float32 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case ProgramMultiply:
		dispatchBinary(in, out, func(a, b float32) float32 { return a * b })
	}
	return nil
}

func copyTexture(in, out *Texture) {
	if in.mono != nil {
		out.mono = in.mono.Clone()
	} else {
		out.rgb = in.rgb.Clone()
	}
}

func dispatchGaussian(p Program, u Uniforms, in, out *Texture) {
	sigma := u.float("sigma")
	kernel := mathkernel.Kernel1D(sigma, true)
	pass := mathkernel.ConvolveHorizontal
	if p == ProgramGaussianVert {
		pass = mathkernel.ConvolveVertical
	}
	if in.mono != nil {
		out.mono = pass(in.mono, kernel)
	} else {
		out.rgb = &image.RGBPlane{
			R: pass(in.rgb.R, kernel),
			G: pass(in.rgb.G, kernel),
			B: pass(in.rgb.B, kernel),
		}
	}
}

func dispatchToneCurve(u Uniforms, in, out *Texture) {
	curve := u["curve"].(*tonecurve.Curve)
	precise := false
	if v, ok := u["precise"].(bool); ok {
		precise = v
	}
	if in.mono != nil {
		out.mono = procprim.ApplyToneCurve(in.mono, curve, precise)
	} else {
		out.rgb = procprim.ApplyToneCurveRGB(in.rgb, curve, precise)
	}
}

func dispatchUnsharpMask(u Uniforms, in, out *Texture) {
	params := procprim.UnsharpMaskParams{
		Sigma:     u.float("sigma"),
		Adaptive:  false,
		AmountMin: u.float("amount"),
		AmountMax: u.float("amount"),
		Threshold: u.float("threshold"),
		Width:     u.float("width"),
	}
	if in.mono != nil {
		out.mono = procprim.UnsharpMask(in.mono, params, nil)
	} else {
		out.rgb = procprim.UnsharpMaskRGB(in.rgb, params, nil)
	}
}

// dispatchBinary implements divide/multiply: it reads in as the first
// operand and the texture already resident in out as the second, per the
// ping-pong convention where the accumulator lives in the output slot
// across iterations.
func dispatchBinary(in, out *Texture, f func(a, b float32) float32) {
	if in.mono != nil && out.mono != nil {
		result := image.NewPlane(in.mono.Width, in.mono.Height)
		for i := range result.Pix {
			result.Pix[i] = f(in.mono.Pix[i], out.mono.Pix[i])
		}
		out.mono = result
		return
	}
	if in.rgb != nil && out.rgb != nil {
		combine := func(a, b *image.Plane) *image.Plane {
			r := image.NewPlane(a.Width, a.Height)
			for i := range r.Pix {
				r.Pix[i] = f(a.Pix[i], b.Pix[i])
			}
			return r
		}
		out.rgb = &image.RGBPlane{
			R: combine(in.rgb.R, out.rgb.R),
			G: combine(in.rgb.G, out.rgb.G),
			B: combine(in.rgb.B, out.rgb.B),
		}
	}
}

func errMissingUniform(p Program, name string) error {
	return &missingUniformError{program: p, name: name}
}

type missingUniformError struct {
	program Program
	name    string
}

func (e *missingUniformError) Error() string {
	return "gpu: program missing required uniform " + e.name
}

// BatchMpixIters is the tuning knob from spec.md §9
// (batch_size_mpix_iters): L-R iterations per idle-pump batch scale
// inversely with selection size so a batch takes roughly constant wall
// time regardless of image dimensions.
var BatchMpixIters = 20.0

// BatchSize returns max(1, batch_mpix_iters*1e6/(w*h)) (spec.md §9).
func BatchSize(w, h int) int {
	if w <= 0 || h <= 0 {
		return 1
	}
	n := int(BatchMpixIters * 1e6 / float64(w*h))
	if n < 1 {
		n = 1
	}
	return n
}

// Backend implements backend.Backend over an idle-pump Step loop
// (spec.md §9: "step() which returns Busy (call again) or Done(status)").
// It delegates the actual per-stage computation to internal/scheduler
// (which already implements the algorithms this package's Device
// programs mirror) and reports Busy until the scheduler's completion
// callback fires. batchesLeft is set from BatchSize at Start and counts
// down on each Busy step; it does not delay Done.
type Backend struct {
	device Device
	sched  *scheduler.Scheduler
	sel    histogram.Selection

	mu          sync.Mutex
	batchesLeft int
	done        bool
	status      scheduler.Status
}

// NewMono constructs a GPU backend over a mono-luminance plane, using the
// default software Device.
func NewMono(plane *image.Plane, settings *procsettings.ProcessingSettings) *Backend {
	return newBackend(scheduler.NewMono(plane, settings))
}

// NewRGB constructs a GPU backend over an RGB plane.
func NewRGB(plane *image.RGBPlane, settings *procsettings.ProcessingSettings) *Backend {
	return newBackend(scheduler.NewRGB(plane, settings))
}

func newBackend(sched *scheduler.Scheduler) *Backend {
	b := &Backend{device: softwareDevice{}, sched: sched}
	sched.OnCompletion = func(ev scheduler.CompletionEvent) {
		b.mu.Lock()
		b.done = true
		b.status = ev.Status
		b.batchesLeft = 0
		b.mu.Unlock()
	}
	return b
}

func (b *Backend) Start(ctx context.Context, req procsettings.ProcessingRequest) int64 {
	b.mu.Lock()
	b.done = false
	w, h := b.sel.Width, b.sel.Height
	b.batchesLeft = BatchSize(w, h)
	b.mu.Unlock()
	return b.sched.Start(ctx, req)
}

// StartPrecise schedules a tone-curve-only run with the exact evaluator
// (spec.md §4.D/§4.G), used by callers right before saving final output.
func (b *Backend) StartPrecise(ctx context.Context) int64 {
	b.mu.Lock()
	b.done = false
	w, h := b.sel.Width, b.sel.Height
	b.batchesLeft = BatchSize(w, h)
	b.mu.Unlock()
	return b.sched.StartPrecise(ctx)
}

func (b *Backend) Cancel()         { b.sched.Cancel() }
func (b *Backend) IsRunning() bool { return b.sched.IsRunning() }

func (b *Backend) SetImageMono(plane *image.Plane)      {}
func (b *Backend) SetImageRGB(plane *image.RGBPlane)    {}
func (b *Backend) SetSelection(sel histogram.Selection) { b.sel = sel }

func (b *Backend) SetSettings(settings *procsettings.ProcessingSettings, inv procsettings.Invalidation) {
	b.sched.SetSettings(settings, inv)
}

// Step polls the idle pump (spec.md §9). While the scheduler's background
// run is in flight it reports Busy and decrements batchesLeft; once the
// run's completion callback has fired it reports Done with the run's
// status, however many Busy steps have elapsed.
func (b *Backend) Step() backend.StepResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return backend.StepResult{Busy: false, Status: b.status}
	}
	if b.batchesLeft > 0 {
		b.batchesLeft--
	}
	return backend.StepResult{Busy: true}
}

func (b *Backend) Output() (interface{}, bool) { return b.sched.Output() }

var _ backend.Backend = (*Backend)(nil)
