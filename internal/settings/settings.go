// Package settings persists ProcessingSettings as key=value text records
// (spec.md §6), grounded on the teacher's String()-method register
// (PostProcessParams.String(), ColorParams.String() in internal/postprocess.go)
// — no ecosystem config-file library appears anywhere in the retrieved
// pack, so this line-oriented codec is hand-rolled by design.
package settings

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/GreatAttractor/imppg/internal/imgerr"
	"github.com/GreatAttractor/imppg/internal/procprim"
	"github.com/GreatAttractor/imppg/internal/procsettings"
	"github.com/GreatAttractor/imppg/internal/tonecurve"
)

// Save writes s to w as key=value lines (spec.md §6): normalization,
// LR, one block per unsharp mask, then the tone curve's point list,
// smooth/gamma-mode/gamma flags.
func Save(w io.Writer, s *procsettings.ProcessingSettings) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "normalization.enabled=%t\n", s.Normalization.Enabled)
	fmt.Fprintf(bw, "normalization.min=%g\n", s.Normalization.Min)
	fmt.Fprintf(bw, "normalization.max=%g\n", s.Normalization.Max)

	fmt.Fprintf(bw, "lr.sigma=%g\n", s.LR.Sigma)
	fmt.Fprintf(bw, "lr.iterations=%d\n", s.LR.Iterations)
	fmt.Fprintf(bw, "lr.deringing_enabled=%t\n", s.LR.DeringingEnabled)

	fmt.Fprintf(bw, "unsharp_masks.count=%d\n", len(s.UnsharpMasks))
	for i, m := range s.UnsharpMasks {
		p := fmt.Sprintf("unsharp_masks.%d.", i)
		fmt.Fprintf(bw, "%sadaptive=%t\n", p, m.Adaptive)
		fmt.Fprintf(bw, "%ssigma=%g\n", p, m.Sigma)
		fmt.Fprintf(bw, "%samount_min=%g\n", p, m.AmountMin)
		fmt.Fprintf(bw, "%samount_max=%g\n", p, m.AmountMax)
		fmt.Fprintf(bw, "%sthreshold=%g\n", p, m.Threshold)
		fmt.Fprintf(bw, "%swidth=%g\n", p, m.Width)
	}

	pts := s.ToneCurve.Points()
	fmt.Fprintf(bw, "tone_curve.points.count=%d\n", len(pts))
	for i, pt := range pts {
		fmt.Fprintf(bw, "tone_curve.points.%d=%g,%g\n", i, pt.X, pt.Y)
	}
	fmt.Fprintf(bw, "tone_curve.smooth=%t\n", s.ToneCurve.Smooth())
	fmt.Fprintf(bw, "tone_curve.gamma_mode=%t\n", s.ToneCurve.GammaMode())
	fmt.Fprintf(bw, "tone_curve.gamma=%g\n", s.ToneCurve.Gamma())

	return bw.Flush()
}

// Load parses the key=value format produced by Save.
func Load(r io.Reader) (*procsettings.ProcessingSettings, error) {
	kv := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, imgerr.New(imgerr.FormatError, "malformed settings line: %q", line)
		}
		kv[line[:idx]] = line[idx+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, imgerr.Wrap(imgerr.IoError, err, "reading settings")
	}

	s := &procsettings.ProcessingSettings{}
	var err error
	if s.Normalization.Enabled, err = parseBool(kv, "normalization.enabled"); err != nil {
		return nil, err
	}
	if s.Normalization.Min, err = parseFloat(kv, "normalization.min"); err != nil {
		return nil, err
	}
	if s.Normalization.Max, err = parseFloat(kv, "normalization.max"); err != nil {
		return nil, err
	}

	if s.LR.Sigma, err = parseFloat(kv, "lr.sigma"); err != nil {
		return nil, err
	}
	iters, err := parseInt(kv, "lr.iterations")
	if err != nil {
		return nil, err
	}
	s.LR.Iterations = iters
	if s.LR.DeringingEnabled, err = parseBool(kv, "lr.deringing_enabled"); err != nil {
		return nil, err
	}

	count, err := parseInt(kv, "unsharp_masks.count")
	if err != nil {
		return nil, err
	}
	s.UnsharpMasks = make([]procprim.UnsharpMaskParams, count)
	for i := 0; i < count; i++ {
		p := fmt.Sprintf("unsharp_masks.%d.", i)
		var m procprim.UnsharpMaskParams
		if m.Adaptive, err = parseBool(kv, p+"adaptive"); err != nil {
			return nil, err
		}
		if m.Sigma, err = parseFloat(kv, p+"sigma"); err != nil {
			return nil, err
		}
		if m.AmountMin, err = parseFloat(kv, p+"amount_min"); err != nil {
			return nil, err
		}
		if m.AmountMax, err = parseFloat(kv, p+"amount_max"); err != nil {
			return nil, err
		}
		if m.Threshold, err = parseFloat(kv, p+"threshold"); err != nil {
			return nil, err
		}
		if m.Width, err = parseFloat(kv, p+"width"); err != nil {
			return nil, err
		}
		s.UnsharpMasks[i] = m
	}
	if len(s.UnsharpMasks) == 0 {
		return nil, imgerr.New(imgerr.FormatError, "settings must contain at least one unsharp mask")
	}

	ptCount, err := parseInt(kv, "tone_curve.points.count")
	if err != nil {
		return nil, err
	}
	curve := tonecurve.NewIdentity()
	if ptCount >= 2 {
		first, err := parsePoint(kv, "tone_curve.points.0")
		if err != nil {
			return nil, err
		}
		last, err := parsePoint(kv, fmt.Sprintf("tone_curve.points.%d", ptCount-1))
		if err != nil {
			return nil, err
		}
		curve.UpdatePoint(0, first.X, first.Y)
		curve.UpdatePoint(1, last.X, last.Y)
		for i := 1; i < ptCount-1; i++ {
			pt, err := parsePoint(kv, fmt.Sprintf("tone_curve.points.%d", i))
			if err != nil {
				return nil, err
			}
			curve.AddPoint(pt.X, pt.Y)
		}
	}
	smooth, err := parseBool(kv, "tone_curve.smooth")
	if err != nil {
		return nil, err
	}
	curve.SetSmooth(smooth)
	gamma, err := parseFloat(kv, "tone_curve.gamma")
	if err != nil {
		return nil, err
	}
	curve.SetGamma(gamma)
	gammaMode, err := parseBool(kv, "tone_curve.gamma_mode")
	if err != nil {
		return nil, err
	}
	curve.SetGammaMode(gammaMode)
	s.ToneCurve = curve

	return s, nil
}

func parseBool(kv map[string]string, key string) (bool, error) {
	v, ok := kv[key]
	if !ok {
		return false, imgerr.New(imgerr.FormatError, "missing settings key %q", key)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, imgerr.Wrap(imgerr.FormatError, err, "parsing %q", key)
	}
	return b, nil
}

func parseFloat(kv map[string]string, key string) (float64, error) {
	v, ok := kv[key]
	if !ok {
		return 0, imgerr.New(imgerr.FormatError, "missing settings key %q", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, imgerr.Wrap(imgerr.FormatError, err, "parsing %q", key)
	}
	return f, nil
}

func parseInt(kv map[string]string, key string) (int, error) {
	v, ok := kv[key]
	if !ok {
		return 0, imgerr.New(imgerr.FormatError, "missing settings key %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, imgerr.Wrap(imgerr.FormatError, err, "parsing %q", key)
	}
	return n, nil
}

func parsePoint(kv map[string]string, key string) (tonecurve.Point, error) {
	v, ok := kv[key]
	if !ok {
		return tonecurve.Point{}, imgerr.New(imgerr.FormatError, "missing settings key %q", key)
	}
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return tonecurve.Point{}, imgerr.New(imgerr.FormatError, "malformed point %q", key)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return tonecurve.Point{}, imgerr.Wrap(imgerr.FormatError, err, "parsing %q", key)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return tonecurve.Point{}, imgerr.Wrap(imgerr.FormatError, err, "parsing %q", key)
	}
	return tonecurve.Point{X: x, Y: y}, nil
}
