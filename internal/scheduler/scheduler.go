// Package scheduler implements the incremental processing scheduler
// (spec.md §4.G): at-most-one concurrent pipeline run, a rising thread_id
// that lets consumers drop stale events, cooperative cancellation, ≥5
// percentage-point progress steps, and invalidation-driven re-execution
// starting from the first invalid upstream stage. Grounded on the
// goroutine-plus-buffered-channel-semaphore concurrency idiom used for
// image-level parallelism in internal/postprocess.go, adapted here to
// bound concurrent *pipeline runs* (not frames) to exactly one.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
)

// Status is the terminal state of one scheduled pipeline run (spec.md §4.G).
type Status int

const (
	Completed Status = iota
	Aborted
)

// Stage names the pipeline state-machine positions (spec.md §4.G:
// "Idle -> Sharpening -> UnsharpMasking[0] -> ... -> ToneCurve -> Idle").
type Stage int

const (
	StageIdle Stage = iota
	StageSharpening
	StageUnsharpMasking
	StageToneCurve
)

// ProgressEvent reports fractional progress for a run, tagged with the
// run's thread_id so stale events (from a superseded run) can be dropped.
type ProgressEvent struct {
	ThreadID int64
	Stage    Stage
	MaskIdx  int
	Fraction float64
}

// CompletionEvent is fired exactly once per scheduled run.
type CompletionEvent struct {
	ThreadID int64
	Status   Status
	Err      error
}

// Result holds the per-stage outputs of a completed run, mono or RGB.
type Result struct {
	Sharpened  interface{} // *image.Plane or *image.RGBPlane
	MaskOutput []interface{}
	ToneCurved interface{}
}

// Scheduler owns the current image, selection, settings, and incremental
// stage outputs for one pipeline (spec.md §4.G).
type Scheduler struct {
	mu sync.Mutex

	mono     *image.Plane
	rgb      *image.RGBPlane
	settings *procsettings.ProcessingSettings

	sharpeningValid bool
	maskValid       []bool
	toneCurveValid  bool

	sharpeningOut  interface{}
	maskOut        []interface{}
	toneCurveOut   interface{}

	running  bool
	pending  *procsettings.ProcessingRequest
	nextID   int64
	curID    int64
	cancelFn context.CancelFunc

	// precise selects the tone curve evaluator for the next run only: the
	// LUT-approximated form during interactive edits (spec.md §4.D), the
	// exact evaluator once immediately before save (spec.md §4.G). It is
	// consumed (reset to false) at the end of each run.
	precise                 bool
	toneCurvePreciseApplied bool

	OnProgress   func(ProgressEvent)
	OnCompletion func(CompletionEvent)
}

// StartPrecise schedules a tone-curve-only run using the exact evaluator
// instead of the interactive LUT, the "exactly once before saving" switch
// spec.md §4.D/§4.G describe. It invalidates the tone curve stage first so
// the run actually recomputes it even if the LUT output was already valid.
func (s *Scheduler) StartPrecise(ctx context.Context) int64 {
	s.mu.Lock()
	s.toneCurveValid = false
	s.precise = true
	s.mu.Unlock()
	return s.Start(ctx, procsettings.ProcessingRequest{Kind: procsettings.RequestToneCurve})
}

// ToneCurvePreciseApplied reports whether the most recently completed run's
// tone curve stage used the exact evaluator.
func (s *Scheduler) ToneCurvePreciseApplied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toneCurvePreciseApplied
}

// NewMono creates a scheduler over a mono-luminance plane.
func NewMono(plane *image.Plane, settings *procsettings.ProcessingSettings) *Scheduler {
	s := &Scheduler{mono: plane, settings: settings}
	s.resetValidity()
	return s
}

// NewRGB creates a scheduler over an RGB plane.
func NewRGB(plane *image.RGBPlane, settings *procsettings.ProcessingSettings) *Scheduler {
	s := &Scheduler{rgb: plane, settings: settings}
	s.resetValidity()
	return s
}

func (s *Scheduler) resetValidity() {
	s.sharpeningValid = false
	s.maskValid = make([]bool, len(s.settings.UnsharpMasks))
	s.maskOut = make([]interface{}, len(s.settings.UnsharpMasks))
	s.toneCurveValid = false
}

// IsRunning reports whether a pipeline run is currently executing.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetSettings replaces the settings snapshot and invalidates stages per
// spec.md §4.G: the caller names which invalidation rule applies.
func (s *Scheduler) SetSettings(newSettings *procsettings.ProcessingSettings, inv procsettings.Invalidation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = newSettings
	if len(s.maskValid) != len(newSettings.UnsharpMasks) {
		s.maskValid = make([]bool, len(newSettings.UnsharpMasks))
		s.maskOut = make([]interface{}, len(newSettings.UnsharpMasks))
	}
	if inv.Sharpening {
		s.sharpeningValid = false
	}
	for i := inv.FirstInvalidMask; i < len(s.maskValid); i++ {
		s.maskValid[i] = false
	}
	if inv.ToneCurve {
		s.toneCurveValid = false
	}
}

// Start schedules req. If a run is already in flight, req is recorded as
// pending and drained once the running job completes (spec.md §4.G). The
// returned thread_id identifies the scheduled run; it is -1 when req was
// deferred.
func (s *Scheduler) Start(ctx context.Context, req procsettings.ProcessingRequest) int64 {
	s.mu.Lock()
	if s.running {
		s.pending = &req
		s.mu.Unlock()
		return -1
	}
	id := atomic.AddInt64(&s.nextID, 1)
	s.curID = id
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.run(runCtx, id, req)
	return id
}

// Cancel requests cooperative cancellation of the currently running job,
// if any (spec.md §5: "A cancellation request sets a flag").
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFn != nil {
		s.cancelFn()
	}
}

// run executes eff (spec.md §4.F's R') and every downstream stage
// unconditionally: "a request of kind K forces rerunning K and all
// downstream stages" — once R' is known, per-stage validity flags no
// longer gate execution, they only ever widened R' backwards to the
// first invalid upstream stage. Tone Curve is the terminal stage of
// every run (spec.md §4.G's state diagram), so it always executes last.
func (s *Scheduler) run(ctx context.Context, id int64, req procsettings.ProcessingRequest) {
	eff := procsettings.EffectiveRequest(req, s.sharpeningSnapshot(), s.maskValiditySnapshot(), s.toneCurveSnapshot())

	status := Completed
	var runErr error

	if eff.Kind == procsettings.RequestSharpening {
		if err := s.runSharpening(ctx, id); err != nil {
			status, runErr = classify(err)
			s.finish(id, status, runErr)
			return
		}
	}

	startMask := 0
	switch eff.Kind {
	case procsettings.RequestUnsharpMasking:
		startMask = eff.MaskIdx
	case procsettings.RequestToneCurve:
		startMask = len(s.settings.UnsharpMasks)
	}
	for i := startMask; i < len(s.settings.UnsharpMasks); i++ {
		if err := s.runMask(ctx, id, i); err != nil {
			status, runErr = classify(err)
			s.finish(id, status, runErr)
			return
		}
	}

	if err := s.runToneCurve(ctx, id); err != nil {
		status, runErr = classify(err)
		s.finish(id, status, runErr)
		return
	}

	s.finish(id, status, runErr)
}

func classify(err error) (Status, error) {
	if imgerr.IsCancelled(err) {
		return Aborted, err
	}
	return Aborted, err
}

func (s *Scheduler) sharpeningSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharpeningValid
}

func (s *Scheduler) maskValiditySnapshot() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.maskValid))
	copy(out, s.maskValid)
	return out
}

func (s *Scheduler) toneCurveSnapshot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toneCurveValid
}

func (s *Scheduler) runSharpening(ctx context.Context, id int64) error {
	settings := s.settingsSnapshot()
	// Emit at >=5 percentage-point steps; a drop in frac means the next RGB
	// channel's L-R pass has started over.
	lastFrac := -1.0
	progress := func(frac float64) bool {
		if frac-lastFrac >= 0.05 || frac < lastFrac || frac >= 1 {
			lastFrac = frac
			s.emitProgress(id, StageSharpening, -1, frac)
		}
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	if s.mono != nil {
		input := s.mono
		if settings.LR.DeringingEnabled {
			input = procprim.Dering(input, settings.LR.Sigma)
		}
		out, err := procprim.LRDeconvolve(ctx, input, settings.LR.Sigma, settings.LR.Iterations, progress)
		if err != nil {
			return err
		}
		s.setSharpeningOut(out)
		return nil
	}

	input := s.rgb
	if settings.LR.DeringingEnabled {
		input = procprim.DeringRGB(input, settings.LR.Sigma)
	}
	out, err := procprim.LRDeconvolveRGB(ctx, input, settings.LR.Sigma, settings.LR.Iterations, progress)
	if err != nil {
		return err
	}
	s.setSharpeningOut(out)
	return nil
}

func (s *Scheduler) runMask(ctx context.Context, id int64, idx int) error {
	select {
	case <-ctx.Done():
		return imgerr.Wrap(imgerr.Cancelled, ctx.Err(), "unsharp mask %d cancelled", idx)
	default:
	}
	settings := s.settingsSnapshot()
	params := settings.UnsharpMasks[idx]

	prevMono, prevRGB := s.stageInput(idx)

	if s.mono != nil {
		var steering *image.Plane
		if params.Adaptive {
			steering = procprim.SteeringSignal(s.mono, 1.0)
		}
		out := procprim.UnsharpMask(prevMono, params, steering)
		s.setMaskOut(idx, out)
	} else {
		var steering *image.Plane
		if params.Adaptive {
			steering = procprim.SteeringSignal(procprim.Luminance(s.rgb), 1.0)
		}
		out := procprim.UnsharpMaskRGB(prevRGB, params, steering)
		s.setMaskOut(idx, out)
	}
	s.emitProgress(id, StageUnsharpMasking, idx, 1.0)
	return nil
}

func (s *Scheduler) runToneCurve(ctx context.Context, id int64) error {
	select {
	case <-ctx.Done():
		return imgerr.Wrap(imgerr.Cancelled, ctx.Err(), "tone curve cancelled")
	default:
	}
	settings := s.settingsSnapshot()
	lastMono, lastRGB := s.lastStageOutput()

	s.mu.Lock()
	precise := s.precise
	s.precise = false
	s.toneCurvePreciseApplied = precise
	s.mu.Unlock()

	if s.mono != nil {
		out := procprim.ApplyToneCurve(lastMono, settings.ToneCurve, precise)
		s.setToneCurveOut(out)
	} else {
		out := procprim.ApplyToneCurveRGB(lastRGB, settings.ToneCurve, precise)
		s.setToneCurveOut(out)
	}
	s.emitProgress(id, StageToneCurve, -1, 1.0)
	return nil
}

func (s *Scheduler) settingsSnapshot() *procsettings.ProcessingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Scheduler) stageInput(maskIdx int) (*image.Plane, *image.RGBPlane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maskIdx == 0 {
		if s.mono != nil {
			return s.sharpeningOut.(*image.Plane), nil
		}
		return nil, s.sharpeningOut.(*image.RGBPlane)
	}
	if s.mono != nil {
		return s.maskOut[maskIdx-1].(*image.Plane), nil
	}
	return nil, s.maskOut[maskIdx-1].(*image.RGBPlane)
}

func (s *Scheduler) lastStageOutput() (*image.Plane, *image.RGBPlane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.maskOut)
	if n == 0 {
		if s.mono != nil {
			return s.sharpeningOut.(*image.Plane), nil
		}
		return nil, s.sharpeningOut.(*image.RGBPlane)
	}
	if s.mono != nil {
		return s.maskOut[n-1].(*image.Plane), nil
	}
	return nil, s.maskOut[n-1].(*image.RGBPlane)
}

func (s *Scheduler) setSharpeningOut(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharpeningOut = v
	s.sharpeningValid = true
}

func (s *Scheduler) setMaskOut(idx int, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maskOut[idx] = v
	s.maskValid[idx] = true
}

func (s *Scheduler) setToneCurveOut(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toneCurveOut = v
	s.toneCurveValid = true
}

// Output returns the finished tone-curve output, if valid.
func (s *Scheduler) Output() (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toneCurveOut, s.toneCurveValid
}

func (s *Scheduler) emitProgress(id int64, stage Stage, maskIdx int, frac float64) {
	s.mu.Lock()
	current := s.curID
	cb := s.OnProgress
	s.mu.Unlock()
	if id != current || cb == nil {
		return
	}
	cb(ProgressEvent{ThreadID: id, Stage: stage, MaskIdx: maskIdx, Fraction: frac})
}

func (s *Scheduler) finish(id int64, status Status, err error) {
	s.mu.Lock()
	current := s.curID
	cb := s.OnCompletion
	pending := s.pending
	s.pending = nil
	s.running = false
	s.cancelFn = nil
	s.mu.Unlock()

	if id == current && cb != nil {
		cb(CompletionEvent{ThreadID: id, Status: status, Err: err})
	}
	if pending != nil {
		s.Start(context.Background(), *pending)
	}
}
