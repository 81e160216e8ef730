package settings

import (
	"bytes"
	"strings"
	"testing"

	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

func sampleSettings() *procsettings.ProcessingSettings {
	s := &procsettings.ProcessingSettings{
		LR: procsettings.LRSettings{Sigma: 1.8, Iterations: 30, DeringingEnabled: true},
		UnsharpMasks: []procprim.UnsharpMaskParams{
			{Sigma: 1.0, Adaptive: false, AmountMin: 1.0, AmountMax: 2.5, Threshold: 0.1, Width: 0.2},
			{Sigma: 3.0, Adaptive: true, AmountMin: 1.2, AmountMax: 3.5, Threshold: 0.05, Width: 0.3},
		},
		ToneCurve: tonecurve.NewIdentity(),
	}
	s.Normalization.Enabled = true
	s.Normalization.Min = 0.1
	s.Normalization.Max = 0.9
	s.ToneCurve.AddPoint(0.5, 0.6)
	s.ToneCurve.SetSmooth(true)
	return s
}

// TestSaveLoadRoundTrip covers spec.md §6: settings persist as key=value
// text and reload to equivalent values.
func TestSaveLoadRoundTrip(t *testing.T) {
	orig := sampleSettings()
	var buf bytes.Buffer
	if err := Save(&buf, orig); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got.LR.Sigma != orig.LR.Sigma || got.LR.Iterations != orig.LR.Iterations ||
		got.LR.DeringingEnabled != orig.LR.DeringingEnabled {
		t.Fatalf("LR settings mismatch: got %+v, want %+v", got.LR, orig.LR)
	}
	if got.Normalization != orig.Normalization {
		t.Fatalf("Normalization mismatch: got %+v, want %+v", got.Normalization, orig.Normalization)
	}
	if len(got.UnsharpMasks) != len(orig.UnsharpMasks) {
		t.Fatalf("len(UnsharpMasks) = %d, want %d", len(got.UnsharpMasks), len(orig.UnsharpMasks))
	}
	for i := range orig.UnsharpMasks {
		if got.UnsharpMasks[i] != orig.UnsharpMasks[i] {
			t.Fatalf("UnsharpMasks[%d] = %+v, want %+v", i, got.UnsharpMasks[i], orig.UnsharpMasks[i])
		}
	}

	origPts := orig.ToneCurve.Points()
	gotPts := got.ToneCurve.Points()
	if len(gotPts) != len(origPts) {
		t.Fatalf("len(tone curve points) = %d, want %d", len(gotPts), len(origPts))
	}
	for i := range origPts {
		if gotPts[i] != origPts[i] {
			t.Fatalf("point %d = %+v, want %+v", i, gotPts[i], origPts[i])
		}
	}
	if got.ToneCurve.Smooth() != orig.ToneCurve.Smooth() {
		t.Fatalf("Smooth() = %v, want %v", got.ToneCurve.Smooth(), orig.ToneCurve.Smooth())
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	r := strings.NewReader("not_a_key_value_line\n")
	if _, err := Load(r); err == nil {
		t.Fatal("Load() of a malformed line should error")
	}
}

func TestLoadRejectsMissingKey(t *testing.T) {
	r := strings.NewReader("normalization.enabled=true\n")
	if _, err := Load(r); err == nil {
		t.Fatal("Load() with missing required keys should error")
	}
}

func TestLoadRejectsZeroUnsharpMasks(t *testing.T) {
	var buf bytes.Buffer
	s := sampleSettings()
	s.UnsharpMasks = nil
	if err := Save(&buf, s); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := Load(&buf); err == nil {
		t.Fatal("Load() of settings with zero unsharp masks should error")
	}
}

func TestLoadSkipsBlankLinesAndComments(t *testing.T) {
	var buf bytes.Buffer
	if err := Save(&buf, sampleSettings()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	withComments := "# a comment\n\n" + buf.String() + "\n# trailing\n"
	if _, err := Load(strings.NewReader(withComments)); err != nil {
		t.Fatalf("Load() with comments/blank lines error: %v", err)
	}
}
