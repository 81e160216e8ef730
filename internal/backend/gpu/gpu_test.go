package gpu

import (
	"context"
	"testing"
	"time"

	"github.com/GreatAttractor/imppg/internal/backend"
	"github.com/GreatAttractor/imppg/internal/histogram"
	"github.com/GreatAttractor/imppg/internal/image"
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

func identitySettings() *procsettings.ProcessingSettings {
	return &procsettings.ProcessingSettings{
		LR: procsettings.LRSettings{Sigma: 1.5, Iterations: 0},
		UnsharpMasks: []procprim.UnsharpMaskParams{
			{Sigma: 1.0, Adaptive: false, AmountMin: 1.0, AmountMax: 1.0, Threshold: 0.5, Width: 0.1},
		},
		ToneCurve: tonecurve.NewIdentity(),
	}
}

func flatPlane(w, h int, v float32) *image.Plane {
	p := image.NewPlane(w, h)
	for i := range p.Pix {
		p.Pix[i] = v
	}
	return p
}

func runToDone(t *testing.T, b backend.Backend) backend.StepResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		res := b.Step()
		if !res.Busy {
			return res
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for backend to finish")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestGPUBackendBatchesBeforeReportingDone covers spec.md §9's idle-pump
// contract: Step() reports Busy for BatchSize(w,h) calls before Done,
// the "force command flush at batch end" cadence a cancellation can act
// on.
func TestGPUBackendBatchesBeforeReportingDone(t *testing.T) {
	in := flatPlane(16, 16, 0.4)
	b := NewMono(in, identitySettings())
	b.SetSelection(histogram.Selection{X: 0, Y: 0, Width: 16, Height: 16})

	b.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})

	wantBatches := BatchSize(16, 16)
	busyCount := 0
	deadline := time.Now().Add(5 * time.Second)
	for {
		res := b.Step()
		if !res.Busy {
			break
		}
		busyCount++
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for backend to finish")
		}
		time.Sleep(time.Millisecond)
	}
	if busyCount < wantBatches {
		t.Fatalf("observed %d busy steps, want at least %d (BatchSize)", busyCount, wantBatches)
	}
}

// TestGPUBackendRunToCompletionAndOutput mirrors the CPU backend's
// contract test: Start, drive Step() to Done, read Output().
func TestGPUBackendRunToCompletionAndOutput(t *testing.T) {
	in := flatPlane(8, 8, 0.3)
	b := NewMono(in, identitySettings())
	b.SetSelection(histogram.Selection{X: 0, Y: 0, Width: 8, Height: 8})

	b.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	res := runToDone(t, b)
	if res.Status != 0 { // scheduler.Completed == 0
		t.Fatalf("status = %v, want Completed", res.Status)
	}

	out, ok := b.Output()
	if !ok {
		t.Fatal("Output() not valid after completion")
	}
	plane, ok := out.(*image.Plane)
	if !ok {
		t.Fatalf("Output() type = %T, want *image.Plane", out)
	}
	if plane.Width != 8 || plane.Height != 8 {
		t.Fatalf("output size = %dx%d, want 8x8", plane.Width, plane.Height)
	}
}

// TestGPUBackendStartPreciseSwitchesEvaluator covers the "exactly once
// before saving" precise tone-curve switch (spec.md §4.D/§4.G) on the GPU
// backend too.
func TestGPUBackendStartPreciseSwitchesEvaluator(t *testing.T) {
	in := flatPlane(8, 8, 0.25)
	b := NewMono(in, identitySettings())
	b.SetSelection(histogram.Selection{X: 0, Y: 0, Width: 8, Height: 8})

	b.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	runToDone(t, b)

	b.StartPrecise(context.Background())
	res := runToDone(t, b)
	if res.Status != 0 {
		t.Fatalf("precise run status = %v, want Completed", res.Status)
	}
	if !b.sched.ToneCurvePreciseApplied() {
		t.Fatal("ToneCurvePreciseApplied() = false after StartPrecise")
	}
}

func TestBatchSizeIsAtLeastOne(t *testing.T) {
	if n := BatchSize(0, 0); n != 1 {
		t.Fatalf("BatchSize(0,0) = %d, want 1", n)
	}
	if n := BatchSize(10000, 10000); n < 1 {
		t.Fatalf("BatchSize(10000,10000) = %d, want >= 1", n)
	}
}

// TestSoftwareDeviceCopyPreservesPixels exercises the copy Program
// directly, confirming the software Device stands in faithfully for a
// GL copy.
func TestSoftwareDeviceCopyPreservesPixels(t *testing.T) {
	in := flatPlane(4, 4, 0.7)
	tex := &Texture{mono: in}
	out := &Texture{}
	dev := softwareDevice{}
	if err := dev.Dispatch(ProgramCopy, nil, tex, out); err != nil {
		t.Fatalf("Dispatch(ProgramCopy) error: %v", err)
	}
	for i := range in.Pix {
		if out.mono.Pix[i] != in.Pix[i] {
			t.Fatalf("pixel %d: got %v, want %v", i, out.mono.Pix[i], in.Pix[i])
		}
	}
}

// TestSoftwareDeviceMissingUniformRejected covers spec.md §9's "validated
// at link time" uniform contract.
func TestSoftwareDeviceMissingUniformRejected(t *testing.T) {
	in := flatPlane(4, 4, 0.5)
	tex := &Texture{mono: in}
	out := &Texture{}
	dev := softwareDevice{}
	err := dev.Dispatch(ProgramGaussianHorz, Uniforms{}, tex, out)
	if err == nil {
		t.Fatal("Dispatch with missing uniform 'sigma' should error")
	}
}
