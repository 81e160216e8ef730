package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

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

// waitForCompletion blocks until a completion event fires or the deadline
// passes, returning the event (zero value on timeout).
func waitForCompletion(t *testing.T, run func(onDone func(CompletionEvent))) CompletionEvent {
	t.Helper()
	var mu sync.Mutex
	var got CompletionEvent
	done := make(chan struct{})
	run(func(ev CompletionEvent) {
		mu.Lock()
		got = ev
		mu.Unlock()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
	mu.Lock()
	defer mu.Unlock()
	return got
}

// TestIdentitySettingsReproduceInput covers spec.md §8 scenario 2: with
// iterations=0, a single amount_max=1.0 non-adaptive mask, and an identity
// tone curve, processing equals the input pixelwise. The tone curve stage
// uses the precise (non-LUT) evaluator, the "exactly once before saving"
// switch spec.md §4.D/§4.G describe, since the LUT form only approximates
// identity to the LUT's resolution.
func TestIdentitySettingsReproduceInput(t *testing.T) {
	in := flatPlane(20, 20, 0)
	for i := range in.Pix {
		in.Pix[i] = float32(i%11) / 11
	}
	s := NewMono(in.Clone(), identitySettings())

	ev := waitForCompletion(t, func(onDone func(CompletionEvent)) {
		s.OnCompletion = onDone
		s.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	})
	if ev.Status != Completed {
		t.Fatalf("run status = %v, want Completed", ev.Status)
	}

	precise := waitForCompletion(t, func(onDone func(CompletionEvent)) {
		s.OnCompletion = onDone
		s.StartPrecise(context.Background())
	})
	if precise.Status != Completed {
		t.Fatalf("precise run status = %v, want Completed", precise.Status)
	}
	if !s.ToneCurvePreciseApplied() {
		t.Fatal("ToneCurvePreciseApplied() = false after StartPrecise")
	}

	out, ok := s.Output()
	if !ok {
		t.Fatal("Output() not valid after a completed run")
	}
	plane := out.(*image.Plane)
	for i := range in.Pix {
		if plane.Pix[i] != in.Pix[i] {
			t.Fatalf("pixel %d: got %v, want %v (identity settings)", i, plane.Pix[i], in.Pix[i])
		}
	}
}

// TestToneCurveOnlyRequestSkipsUpstreamWhenValid runs a full pipeline once,
// then issues a ToneCurve-only request and checks it still completes
// (stages upstream of ToneCurve remain valid, so only ToneCurve reruns).
func TestToneCurveOnlyRequestSkipsUpstreamWhenValid(t *testing.T) {
	in := flatPlane(10, 10, 0.5)
	s := NewMono(in, identitySettings())

	first := waitForCompletion(t, func(onDone func(CompletionEvent)) {
		s.OnCompletion = onDone
		s.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	})
	if first.Status != Completed {
		t.Fatalf("first run status = %v, want Completed", first.Status)
	}

	second := waitForCompletion(t, func(onDone func(CompletionEvent)) {
		s.OnCompletion = onDone
		s.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestToneCurve})
	})
	if second.Status != Completed {
		t.Fatalf("tone-curve-only run status = %v, want Completed", second.Status)
	}
}

// TestCancelProducesExactlyOneAbortedEvent covers spec.md §8: "issuing
// cancel() at any time produces exactly one completion event with status
// ABORTED".
func TestCancelProducesExactlyOneAbortedEvent(t *testing.T) {
	in := flatPlane(40, 40, 0.3)
	settings := identitySettings()
	settings.LR.Iterations = 2000 // give Cancel() time to land mid-run

	s := NewMono(in, settings)

	var mu sync.Mutex
	var events []CompletionEvent
	done := make(chan struct{})
	s.OnCompletion = func(ev CompletionEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		close(done)
	}

	s.Start(context.Background(), procsettings.ProcessingRequest{Kind: procsettings.RequestSharpening})
	s.Cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion after Cancel()")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d completion events, want exactly 1", len(events))
	}
	if events[0].Status != Aborted {
		t.Fatalf("completion status = %v, want Aborted", events[0].Status)
	}
}
