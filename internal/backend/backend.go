// Package backend defines the Backend capability (spec.md §9 DESIGN
// NOTES: "Backend capability {start(request), cancel, is_running,
// set_image, set_selection, set_settings}"), the trait-based replacement
// for the original's backend class hierarchy. internal/backend/cpu and
// internal/backend/gpu each provide a concrete implementation that the
// scheduler drives identically.
package backend

import (
	"context"

	"github.com/GreatAttractor/imppg/internal/histogram"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/scheduler"
)

// StepResult is returned by Step, modeling the coroutine-like idle pump
// (spec.md §9): Busy means call Step again; Done carries the terminal
// status of the run that just finished.
type StepResult struct {
	Busy   bool
	Status scheduler.Status
}

// Backend is the compute substrate the scheduler drives (spec.md §9).
type Backend interface {
	Start(ctx context.Context, req procsettings.ProcessingRequest) int64
	// StartPrecise schedules a tone-curve-only run using the exact
	// (non-LUT) evaluator, the switch spec.md §4.D/§4.G require "exactly
	// once" right before output is saved.
	StartPrecise(ctx context.Context) int64
	Cancel()
	IsRunning() bool
	SetImageMono(plane *image.Plane)
	SetImageRGB(plane *image.RGBPlane)
	SetSelection(sel histogram.Selection)
	SetSettings(settings *procsettings.ProcessingSettings, inv procsettings.Invalidation)
	// Step advances the idle-time pump by one increment; CPU backends map
	// this to "await worker", GPU backends to one command batch.
	Step() StepResult
	Output() (interface{}, bool)
}
