// Package cpu implements the CPU backend (spec.md §4.H): a worker runtime
// that runs the processing primitives over row-major mono/RGB planes,
// parallelized by row tiles. Grounded on the goroutine-plus-buffered-
// channel-semaphore concurrency idiom in internal/postprocess.go
// (PostProcessLights), here bounding row-tile workers instead of
// image-level workers, and on internal/batch.go's memory-budgeting logic
// for sizing the tile count against available RAM via github.com/pbnjay/memory.
// Worker count is tuned from github.com/klauspost/cpuid/v2's logical core
// count, mirroring the teacher's reliance on cpuid for backend selection.
package cpu

import (
	"context"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/pbnjay/memory"

	"github.com/GreatAttractor/imppg/internal/backend"
	"github.com/GreatAttractor/imppg/internal/histogram"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/scheduler"
)

// WorkerParameters bundles one stage invocation's inputs, outputs, and the
// run's thread_id (spec.md §4.H).
type WorkerParameters struct {
	InputViews  []*image.PlaneView
	OutputViews []*image.PlaneView
	TaskID      int64
}

// NumWorkers returns the row-tile worker count: the logical core count
// reported by cpuid, capped so a single huge selection doesn't spawn more
// goroutines than available memory comfortably supports (spec.md §4.H
// "parallelism within a stage uses work-stealing loops over rows").
func NumWorkers() int {
	n := cpuid.CPU.LogicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	// Guard against pathologically memory-starved hosts: never plan for
	// more workers than the available RAM can hold a few MB of scratch
	// buffers per worker.
	const perWorkerScratch = 16 << 20 // 16 MiB
	if avail := memory.FreeMemory(); avail > 0 {
		if maxByMem := int(avail / perWorkerScratch); maxByMem < n && maxByMem > 0 {
			n = maxByMem
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelRows runs fn(y0, y1) over [0, height) split into NumWorkers()
// row tiles, using the buffered-channel-as-semaphore idiom from
// internal/postprocess.go's PostProcessLights to bound concurrency.
func ParallelRows(height int, fn func(y0, y1 int)) {
	workers := NumWorkers()
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		fn(0, height)
		return
	}
	rowsPerWorker := (height + workers - 1) / workers
	sem := make(chan bool, workers)
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += rowsPerWorker {
		y1 := y0 + rowsPerWorker
		if y1 > height {
			y1 = height
		}
		sem <- true
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

// ExtractParallel runs the selection-reallocation step described by
// wp (spec.md §4.H: "Executes the stage's primitive over each channel")
// for the extraction primitive specifically: it copies wp.InputViews[0]
// into a freshly allocated, tightly packed Plane using row-tile
// parallelism, the row-tiled equivalent of PlaneView.Extract used when
// the selection is large enough that per-row parallelism pays for its
// own overhead.
func ExtractParallel(wp WorkerParameters) *image.Plane {
	v := wp.InputViews[0]
	out := image.NewPlane(v.Width(), v.Height())
	ParallelRows(v.Height(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < v.Width(); x++ {
				out.Set(x, y, v.At(x, y))
			}
		}
	})
	return out
}

// Backend wraps scheduler.Scheduler to satisfy the backend.Backend
// capability (spec.md §9) for CPU execution. It owns the full source
// image and re-extracts the current Selection into a tightly packed
// working plane each time the image or selection changes (spec.md §3:
// "All pipeline stages operate on a selection"; "The backend retains
// textures/buffers sized to the current selection; they are reallocated
// when the selection size changes"), using row-tile parallel extraction
// once the selection is large enough to amortize goroutine overhead.
// Step always reports Done immediately after the scheduler's
// goroutine-based run finishes, since the CPU scheduler has no
// idle-pump batching (unlike the GPU backend).
type Backend struct {
	settings *procsettings.ProcessingSettings

	srcMono *image.Plane
	srcRGB  *image.RGBPlane
	sel     histogram.Selection

	sched *scheduler.Scheduler

	reallocID int64

	mu       sync.Mutex
	lastDone bool
	lastStat scheduler.Status
}

// parallelExtractThreshold is the pixel count above which SetSelection
// uses the row-tile parallel extraction path instead of the plain
// sequential PlaneView.Extract, avoiding goroutine overhead on small
// selections (e.g. histogram previews).
const parallelExtractThreshold = 512 * 512

// NewMono constructs a CPU backend over a mono-luminance plane, initially
// selecting the whole image.
func NewMono(plane *image.Plane, settings *procsettings.ProcessingSettings) *Backend {
	b := &Backend{settings: settings}
	b.SetImageMono(plane)
	return b
}

// NewRGB constructs a CPU backend over an RGB plane, initially selecting
// the whole image.
func NewRGB(plane *image.RGBPlane, settings *procsettings.ProcessingSettings) *Backend {
	b := &Backend{settings: settings}
	b.SetImageRGB(plane)
	return b
}

func (b *Backend) wireCompletion() {
	b.sched.OnCompletion = func(ev scheduler.CompletionEvent) {
		b.mu.Lock()
		b.lastDone = true
		b.lastStat = ev.Status
		b.mu.Unlock()
	}
}

func (b *Backend) Start(ctx context.Context, req procsettings.ProcessingRequest) int64 {
	b.mu.Lock()
	b.lastDone = false
	b.mu.Unlock()
	return b.sched.Start(ctx, req)
}

// StartPrecise schedules a tone-curve-only run with the exact evaluator
// (spec.md §4.D/§4.G), used by callers right before saving final output.
func (b *Backend) StartPrecise(ctx context.Context) int64 {
	b.mu.Lock()
	b.lastDone = false
	b.mu.Unlock()
	return b.sched.StartPrecise(ctx)
}

func (b *Backend) Cancel()         { b.sched.Cancel() }
func (b *Backend) IsRunning() bool { return b.sched.IsRunning() }

// SetImageMono replaces the source image and resets the selection to the
// whole frame.
func (b *Backend) SetImageMono(plane *image.Plane) {
	b.srcMono, b.srcRGB = plane, nil
	b.sel = histogram.Selection{X: 0, Y: 0, Width: plane.Width, Height: plane.Height}
	b.rebuildScheduler()
}

// SetImageRGB replaces the source image and resets the selection to the
// whole frame.
func (b *Backend) SetImageRGB(plane *image.RGBPlane) {
	b.srcMono, b.srcRGB = nil, plane
	b.sel = histogram.Selection{X: 0, Y: 0, Width: plane.R.Width, Height: plane.R.Height}
	b.rebuildScheduler()
}

// SetSelection re-extracts the named rectangle from the source image and
// rebuilds the scheduler over it, per spec.md §3's texture-reallocation
// rule (here: working-plane reallocation).
func (b *Backend) SetSelection(sel histogram.Selection) {
	if b.srcMono != nil {
		b.sel = sel.Clamp(b.srcMono.Width, b.srcMono.Height)
	} else if b.srcRGB != nil {
		b.sel = sel.Clamp(b.srcRGB.R.Width, b.srcRGB.R.Height)
	} else {
		b.sel = sel
	}
	b.rebuildScheduler()
}

func (b *Backend) rebuildScheduler() {
	b.reallocID++
	if b.srcMono != nil {
		view := image.NewPlaneView(b.srcMono, b.sel.X, b.sel.Y, b.sel.Width, b.sel.Height)
		b.sched = scheduler.NewMono(b.extractView(view), b.settings)
	} else if b.srcRGB != nil {
		rView := image.NewPlaneView(b.srcRGB.R, b.sel.X, b.sel.Y, b.sel.Width, b.sel.Height)
		gView := image.NewPlaneView(b.srcRGB.G, b.sel.X, b.sel.Y, b.sel.Width, b.sel.Height)
		bView := image.NewPlaneView(b.srcRGB.B, b.sel.X, b.sel.Y, b.sel.Width, b.sel.Height)
		plane := &image.RGBPlane{R: b.extractView(rView), G: b.extractView(gView), B: b.extractView(bView)}
		b.sched = scheduler.NewRGB(plane, b.settings)
	}
	b.wireCompletion()
}

// extractView builds the WorkerParameters spec.md §4.H describes for a
// selection-reallocation step and runs it, falling back to the plain
// sequential PlaneView.Extract below parallelExtractThreshold.
func (b *Backend) extractView(v *image.PlaneView) *image.Plane {
	if v.Width()*v.Height() < parallelExtractThreshold {
		return v.Extract()
	}
	wp := WorkerParameters{InputViews: []*image.PlaneView{v}, TaskID: b.reallocID}
	return ExtractParallel(wp)
}

func (b *Backend) SetSettings(settings *procsettings.ProcessingSettings, inv procsettings.Invalidation) {
	b.settings = settings
	b.sched.SetSettings(settings, inv)
}

// Step reports Done as soon as the background run completes, since the
// CPU scheduler runs a stage to completion on its own goroutine rather
// than yielding mid-stage to an idle pump.
func (b *Backend) Step() backend.StepResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.lastDone {
		return backend.StepResult{Busy: true}
	}
	return backend.StepResult{Busy: false, Status: b.lastStat}
}

func (b *Backend) Output() (interface{}, bool) { return b.sched.Output() }

var _ backend.Backend = (*Backend)(nil)
