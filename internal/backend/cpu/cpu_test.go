package cpu

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

// runToDone polls Step() until it reports Busy=false, the synchronous
// drive loop cmd/imppg uses around any backend.Backend (spec.md §9).
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

// TestCPUBackendRunToCompletionAndOutput covers spec.md §9's capability
// contract end to end: Start, drive Step() to Done, read Output().
func TestCPUBackendRunToCompletionAndOutput(t *testing.T) {
	in := flatPlane(16, 16, 0.4)
	b := NewMono(in, identitySettings())

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
	if plane.Width != 16 || plane.Height != 16 {
		t.Fatalf("output size = %dx%d, want 16x16", plane.Width, plane.Height)
	}
}

// TestCPUBackendStartPreciseSwitchesEvaluator covers the "exactly once
// before saving" precise tone-curve switch (spec.md §4.D/§4.G).
func TestCPUBackendStartPreciseSwitchesEvaluator(t *testing.T) {
	in := flatPlane(8, 8, 0.25)
	b := NewMono(in, identitySettings())

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

// TestCPUBackendSetSelectionReextractsWorkingPlane covers spec.md §3's
// texture-reallocation rule: SetSelection re-extracts a smaller working
// plane sized to the new selection.
func TestCPUBackendSetSelectionReextractsWorkingPlane(t *testing.T) {
	in := image.NewPlane(20, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			in.Set(x, y, float32(x+y)/40)
		}
	}
	b := NewMono(in, identitySettings())

	b.SetSelection(histogram.Selection{X: 2, Y: 3, Width: 5, Height: 4})
	b.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	runToDone(t, b)

	out, ok := b.Output()
	if !ok {
		t.Fatal("Output() not valid after completion")
	}
	plane := out.(*image.Plane)
	if plane.Width != 5 || plane.Height != 4 {
		t.Fatalf("selected output size = %dx%d, want 5x4", plane.Width, plane.Height)
	}
}

// TestCPUBackendSelectionClampedToSource ensures an out-of-bounds
// selection request is clamped rather than producing an invalid plane.
func TestCPUBackendSelectionClampedToSource(t *testing.T) {
	in := flatPlane(10, 10, 0.1)
	b := NewMono(in, identitySettings())

	b.SetSelection(histogram.Selection{X: 8, Y: 8, Width: 10, Height: 10})
	b.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	runToDone(t, b)

	out, ok := b.Output()
	if !ok {
		t.Fatal("Output() not valid after completion")
	}
	plane := out.(*image.Plane)
	if plane.Width > 2 || plane.Height > 2 {
		t.Fatalf("clamped selection output size = %dx%d, want <= 2x2", plane.Width, plane.Height)
	}
}

func TestNumWorkersAtLeastOne(t *testing.T) {
	if n := NumWorkers(); n < 1 {
		t.Fatalf("NumWorkers() = %d, want >= 1", n)
	}
}

// TestParallelRowsCoversEveryRow checks ParallelRows' row-tile split
// visits every row from 0 to height exactly once regardless of worker
// count.
func TestParallelRowsCoversEveryRow(t *testing.T) {
	const height = 37
	visited := make([]int, height)
	ParallelRows(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			visited[y]++
		}
	})
	for y, n := range visited {
		if n != 1 {
			t.Fatalf("row %d visited %d times, want exactly 1", y, n)
		}
	}
}
