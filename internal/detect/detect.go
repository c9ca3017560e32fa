// Package detect classifies audio frames as silent, noisy or speech.
//
// A [Detector] combines a cheap peak-amplitude gate with a VAD [vad.Scorer].
// The acoustic front end uses the gate alone while idle and the VAD once
// noise has been seen; the endpointer requires both. The two stages never run
// at the same time, so they can share one Detector.
package detect

import (
	"errors"
	"fmt"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
)

// Default thresholds.
const (
	DefaultAmplitudeThreshold = 1200
	DefaultSpeechThreshold    = 0.5
)

// Config holds the classification thresholds.
type Config struct {
	// AmplitudeThreshold is the absolute sample value at or above which a
	// frame counts as non-silent. A frame is silent when every sample is
	// below it.
	AmplitudeThreshold int

	// SpeechThreshold is the minimum VAD probability for a speech frame.
	SpeechThreshold float32
}

// Validate reports whether c is within range.
func (c Config) Validate() error {
	var errs []error
	if c.AmplitudeThreshold < 0 || c.AmplitudeThreshold > 32768 {
		errs = append(errs, fmt.Errorf("amplitude threshold %d out of range [0, 32768]", c.AmplitudeThreshold))
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("speech threshold %g out of range [0, 1]", c.SpeechThreshold))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	return nil
}

// Detector classifies frames. It is not safe for concurrent use.
type Detector struct {
	scorer vad.Scorer
	cfg    Config
}

// New returns a Detector over scorer. Zero thresholds in cfg are replaced by
// the defaults.
func New(scorer vad.Scorer, cfg Config) *Detector {
	if cfg.AmplitudeThreshold == 0 {
		cfg.AmplitudeThreshold = DefaultAmplitudeThreshold
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	return &Detector{scorer: scorer, cfg: cfg}
}

// Config returns the effective thresholds.
func (d *Detector) Config() Config { return d.cfg }

// Loud reports whether any sample of f reaches the amplitude threshold.
func (d *Detector) Loud(f audio.Frame) bool {
	return f.Peak() >= d.cfg.AmplitudeThreshold
}

// Speech scores f with the VAD and reports whether the probability reaches
// the speech threshold.
func (d *Detector) Speech(f audio.Frame) (bool, float32, error) {
	p, err := d.scorer.Score(f)
	if err != nil {
		return false, 0, fmt.Errorf("detect: vad: %w", err)
	}
	return p >= d.cfg.SpeechThreshold, p, nil
}

// Voiced reports whether f is both loud and speech. The VAD scores every
// frame, loud or not, so recurrent scorers see a continuous stream.
func (d *Detector) Voiced(f audio.Frame) (bool, float32, error) {
	speech, p, err := d.Speech(f)
	if err != nil {
		return false, p, err
	}
	return speech && d.Loud(f), p, nil
}

// Reset clears the VAD state.
func (d *Detector) Reset() { d.scorer.Reset() }
