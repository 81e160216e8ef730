// Package procsettings holds ProcessingSettings, ProcessingRequest, and
// StageOutput (spec.md §3, §4.F), grounded on the teacher's
// PostProcessParams (internal/postprocess.go) deep-copy-by-value style.
package procsettings

import (
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

// Normalization is the optional input-level rescale applied before L-R.
type Normalization struct {
	Enabled  bool
	Min, Max float64
}

// LRSettings configures the Lucy-Richardson deconvolution stage.
type LRSettings struct {
	Sigma            float64
	Iterations       int
	DeringingEnabled bool
}

// ProcessingSettings is a deep-copyable snapshot of everything a pipeline
// run needs (spec.md §3).
type ProcessingSettings struct {
	Normalization Normalization
	LR            LRSettings
	UnsharpMasks  []procprim.UnsharpMaskParams
	ToneCurve     *tonecurve.Curve
}

// Clone returns an independent deep copy, including the tone curve's own
// point slice (tonecurve.Curve.Points already returns a copy, so the clone
// is built from scratch rather than aliasing internal state).
func (s *ProcessingSettings) Clone() *ProcessingSettings {
	out := &ProcessingSettings{
		Normalization: s.Normalization,
		LR:            s.LR,
		UnsharpMasks:  append([]procprim.UnsharpMaskParams(nil), s.UnsharpMasks...),
	}
	out.ToneCurve = cloneCurve(s.ToneCurve)
	return out
}

func cloneCurve(c *tonecurve.Curve) *tonecurve.Curve {
	return rebuildCurve(c.Points(), c.Smooth(), c.GammaMode(), c.Gamma())
}

// rebuildCurve constructs a curve with exactly the given point set, since
// Curve exposes no bulk constructor other than NewIdentity plus edits.
func rebuildCurve(pts []tonecurve.Point, smooth, gammaMode bool, gamma float64) *tonecurve.Curve {
	c := tonecurve.NewIdentity()
	c.SetSmooth(smooth)
	c.SetGamma(gamma)
	if len(pts) >= 2 {
		c.UpdatePoint(0, pts[0].X, pts[0].Y)
		c.UpdatePoint(1, pts[len(pts)-1].X, pts[len(pts)-1].Y)
		for _, p := range pts[1 : len(pts)-1] {
			c.AddPoint(p.X, p.Y)
		}
	}
	c.SetGammaMode(gammaMode)
	return c
}

// RequestKind distinguishes the three pipeline entry points a caller can
// target (spec.md §3).
type RequestKind int

const (
	RequestSharpening RequestKind = iota
	RequestUnsharpMasking
	RequestToneCurve
)

// ProcessingRequest names the stage a caller wants re-run; MaskIdx is only
// meaningful when Kind is RequestUnsharpMasking.
type ProcessingRequest struct {
	Kind    RequestKind
	MaskIdx int
}

// StageOutput is the result of one pipeline stage: the produced image (nil
// until computed) and whether it is still valid against current settings.
type StageOutput struct {
	Plane interface{} // *image.Plane or *image.RGBPlane, set by the scheduler
	Valid bool
}

// ToneCurveStageOutput additionally tracks whether the precise (non-LUT)
// evaluator has been applied, per spec.md §4.D/§4.G.
type ToneCurveStageOutput struct {
	StageOutput
	PreciseValuesApplied bool
}

// EffectiveRequest computes R' = max(R, first invalid upstream stage)
// (spec.md §4.F): if an earlier stage than the one named by req is
// invalid, the effective request starts there instead; req's own stage is
// never pushed later than req itself, since an explicit request to rerun
// K always forces K regardless of K's own validity.
//
// Stages are ranked Sharpening=0, UnsharpMasking[i]=1+i,
// ToneCurve=1+len(maskValid), and the effective request is whichever of
// req and "the first invalid upstream stage" ranks earliest.
func EffectiveRequest(req ProcessingRequest, sharpeningValid bool, maskValid []bool, toneCurveValid bool) ProcessingRequest {
	numMasks := len(maskValid)

	firstInvalid := numMasks + 1 // nothing invalid: rank past ToneCurve
	switch {
	case !sharpeningValid:
		firstInvalid = 0
	default:
		found := false
		for i, valid := range maskValid {
			if !valid {
				firstInvalid = 1 + i
				found = true
				break
			}
		}
		if !found && !toneCurveValid {
			firstInvalid = 1 + numMasks
		}
	}

	reqRank := stageRank(req, numMasks)
	if firstInvalid < reqRank {
		return stageFromRank(firstInvalid, numMasks)
	}
	return req
}

// stageRank maps a request to its position in the fixed pipeline order
// (spec.md §4.G: "Idle -> Sharpening -> UnsharpMasking[0] -> ... ->
// UnsharpMasking[N-1] -> ToneCurve -> Idle").
func stageRank(req ProcessingRequest, numMasks int) int {
	switch req.Kind {
	case RequestSharpening:
		return 0
	case RequestUnsharpMasking:
		return 1 + req.MaskIdx
	default: // RequestToneCurve
		return 1 + numMasks
	}
}

// stageFromRank is the inverse of stageRank.
func stageFromRank(rank, numMasks int) ProcessingRequest {
	switch {
	case rank <= 0:
		return ProcessingRequest{Kind: RequestSharpening}
	case rank <= numMasks:
		return ProcessingRequest{Kind: RequestUnsharpMasking, MaskIdx: rank - 1}
	default:
		return ProcessingRequest{Kind: RequestToneCurve}
	}
}

// Invalidation describes which stages a settings edit invalidates, per
// spec.md §4.G: `lr` invalidates sharpening and downstream; unsharp_masks[i]
// invalidates masks[i..] and tone curve; tone_curve invalidates only itself.
type Invalidation struct {
	Sharpening bool
	// FirstInvalidMask is the lowest invalidated mask index, or
	// len(masks) if none are invalidated.
	FirstInvalidMask int
	ToneCurve        bool
}

// InvalidateLR returns the invalidation set for an `lr` settings change.
func InvalidateLR(numMasks int) Invalidation {
	return Invalidation{Sharpening: true, FirstInvalidMask: 0, ToneCurve: true}
}

// InvalidateMask returns the invalidation set for a change to
// unsharp_masks[i].
func InvalidateMask(i int) Invalidation {
	return Invalidation{Sharpening: false, FirstInvalidMask: i, ToneCurve: true}
}

// InvalidateToneCurve returns the invalidation set for a tone_curve change.
// numMasks is the current mask count, used so FirstInvalidMask lands past
// the end of the mask slice (no mask is invalidated by a tone-curve edit).
func InvalidateToneCurve(numMasks int) Invalidation {
	return Invalidation{Sharpening: false, FirstInvalidMask: numMasks, ToneCurve: true}
}
