// Package endpoint captures one spoken utterance from an audio source.
//
// Capture runs in two phases. During pre-roll the last P frames are kept and
// N1 consecutive voiced frames start the recording with that history
// prepended, so the onset of speech is not clipped. During recording every
// frame is kept until a run of more than S unvoiced frames ends the
// utterance or the recording grows past the maximum duration.
//
// All time limits are measured in captured audio time, never wall time.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// MinUtterance is the shortest capture worth transcribing. Shorter buffers
// are treated as no utterance.
const MinUtterance = 100 * time.Millisecond

// Status is the outcome of a capture.
type Status int

const (
	// StatusOK means speech was recorded and ended with silence.
	StatusOK Status = iota

	// StatusTimedOutWaitingForSpeech means no speech started in time.
	StatusTimedOutWaitingForSpeech

	// StatusMaxDurationExceeded means the recording hit its length limit.
	StatusMaxDurationExceeded

	// StatusCancelled means the context ended the capture.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOutWaitingForSpeech:
		return "timed_out_waiting_for_speech"
	case StatusMaxDurationExceeded:
		return "max_duration_exceeded"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Phase is the capture phase.
type Phase int

const (
	PhasePreRoll Phase = iota
	PhaseRecording
)

// Result is a finished capture.
type Result struct {
	Status Status

	// Frames holds the captured audio in arrival order. For
	// StatusTimedOutWaitingForSpeech it is the pre-roll history only.
	Frames []audio.Frame

	// Duration is the audio length of Frames.
	Duration time.Duration
}

// Usable reports whether the capture ended normally and is long enough to
// transcribe.
func (r Result) Usable() bool {
	return r.Status == StatusOK && r.Duration >= MinUtterance
}

// WAV encodes Frames as a mono 16-bit RIFF/WAVE file. sampleRate is used
// when Frames is empty.
func (r Result) WAV(sampleRate int) ([]byte, error) {
	return audio.EncodeFramesWAV(r.Frames, sampleRate)
}

// Params tune the endpointer.
type Params struct {
	PreBuffer   int           // P: pre-roll history length in frames
	SpeechStart int           // N1: consecutive voiced frames to start recording
	EndSilence  int           // S: unvoiced frames that end the recording
	WaitTimeout time.Duration // T_wait: pre-roll limit
	MaxDuration time.Duration // T_max: recording limit
}

// DefaultParams returns the standard tuning for 32 ms frames.
func DefaultParams() Params {
	return Params{
		PreBuffer:   10,
		SpeechStart: 3,
		EndSilence:  50,
		WaitTimeout: 5 * time.Second,
		MaxDuration: 30 * time.Second,
	}
}

// Validate reports whether p is usable.
func (p Params) Validate() error {
	var errs []error
	if p.PreBuffer < 1 {
		errs = append(errs, fmt.Errorf("pre_buffer must be at least 1, got %d", p.PreBuffer))
	}
	if p.SpeechStart < 1 {
		errs = append(errs, fmt.Errorf("speech_start must be at least 1, got %d", p.SpeechStart))
	}
	if p.EndSilence < 1 {
		errs = append(errs, fmt.Errorf("end_silence must be at least 1, got %d", p.EndSilence))
	}
	if p.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wait_timeout must be positive, got %s", p.WaitTimeout))
	}
	if p.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max_duration must be positive, got %s", p.MaxDuration))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	return nil
}

// Option configures an Endpointer.
type Option func(*Endpointer)

// WithParams overrides [DefaultParams]. Invalid values are ignored with a
// warning.
func WithParams(p Params) Option {
	return func(e *Endpointer) {
		if err := p.Validate(); err != nil {
			slog.Warn("endpoint: ignoring invalid params", "err", err)
			return
		}
		e.params = p
	}
}

// Endpointer captures utterances. It is not safe for concurrent use.
type Endpointer struct {
	det    *detect.Detector
	params Params
}

// New returns an Endpointer classifying frames with det.
func New(det *detect.Detector, opts ...Option) *Endpointer {
	e := &Endpointer{det: det, params: DefaultParams()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Params returns the effective tuning.
func (e *Endpointer) Params() Params { return e.params }

// Capture reads frames from src until one utterance has been captured.
//
// Expected outcomes (timeout, length limit, cancellation) are reported
// through Result.Status with a nil error. A non-nil error means the source
// or the VAD failed; the partial capture is still returned.
func (e *Endpointer) Capture(ctx context.Context, src audio.Source) (Result, error) {
	e.det.Reset()

	var (
		phase     = PhasePreRoll
		pre       = audio.NewRing(e.params.PreBuffer)
		rec       []audio.Frame
		voicedRun int
		silence   int
		waited    time.Duration
		recorded  time.Duration
	)
	captured := func() []audio.Frame {
		if phase == PhasePreRoll {
			return pre.Frames()
		}
		return rec
	}
	finish := func(s Status, err error) (Result, error) {
		frames := captured()
		return Result{Status: s, Frames: frames, Duration: audio.TotalDuration(frames)}, err
	}

	for {
		if ctx.Err() != nil {
			return finish(StatusCancelled, nil)
		}
		f, err := src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StatusCancelled, nil)
			}
			return finish(StatusCancelled, fmt.Errorf("endpoint: capture: %w", err))
		}
		voiced, p, err := e.det.Voiced(f)
		if err != nil {
			return finish(StatusCancelled, fmt.Errorf("endpoint: %w", err))
		}

		if phase == PhasePreRoll {
			pre.Push(f)
			if voiced {
				voicedRun++
			} else {
				voicedRun = 0
			}
			if voicedRun >= e.params.SpeechStart {
				rec = pre.Frames()
				for _, rf := range rec {
					recorded += rf.Duration()
				}
				phase = PhaseRecording
				slog.Debug("endpoint: voice detected, recording", "seq", f.Seq, "prob", p, "prepended", len(rec))
				continue
			}
			waited += f.Duration()
			if waited > e.params.WaitTimeout {
				slog.Debug("endpoint: no voice detected", "waited", waited)
				return finish(StatusTimedOutWaitingForSpeech, nil)
			}
			continue
		}

		rec = append(rec, f)
		recorded += f.Duration()
		if voiced {
			silence = 0
		} else {
			silence++
		}
		if recorded > e.params.MaxDuration {
			slog.Debug("endpoint: recording exceeded maximum duration", "max", e.params.MaxDuration)
			return finish(StatusMaxDurationExceeded, nil)
		}
		if silence > e.params.EndSilence {
			slog.Debug("endpoint: recording ended by silence", "seq", f.Seq, "prob", p, "frames", len(rec))
			return finish(StatusOK, nil)
		}
	}
}
