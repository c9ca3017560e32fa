// Package frontend implements the acoustic front end: a frame-synchronous
// state machine that watches the microphone for a wake phrase while keeping
// the expensive models idle for as long as possible.
//
// Each frame moves the machine through three states:
//
//   - [StateIdle]: only the peak-amplitude gate runs. The last P frames are
//     kept in a pre-buffer. K1 consecutive loud frames move the pre-buffer
//     (activating frame included) into the speech buffer and start the VAD.
//   - [StateVADPending]: every frame is scored by the VAD and buffered. K2
//     consecutive speech frames confirm speech and replay the whole speech
//     buffer through the wake-word spotter in arrival order. More than A
//     non-speech frames abort back to idle.
//   - [StateSpeechActive]: every frame goes straight to the spotter. More
//     than S consecutive non-speech frames end the cycle.
//
// A wake detection always returns the machine to idle, so at most one wake
// is reported per detection cycle. The front end knows nothing about phrases
// beyond the index the spotter reports.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/internal/events"
	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// State is the detection state of the front end.
type State int

const (
	StateIdle State = iota
	StateVADPending
	StateSpeechActive
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVADPending:
		return "vad_pending"
	case StateSpeechActive:
		return "speech_active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Detection describes one wake-phrase match.
type Detection struct {
	// Index is the matching entry of the spotter's profiles.
	Index int

	// Phrase is the matched profile's phrase.
	Phrase string

	// MatchedSeq is the Seq of the frame the spotter matched on. For a
	// buffered replay this is an earlier frame than FrameSeq.
	MatchedSeq uint64

	// FrameSeq is the Seq of the live frame whose processing produced the
	// detection.
	FrameSeq uint64

	// Replayed is true when the match came from the buffered replay at
	// speech confirmation rather than from real-time spotting.
	Replayed bool
}

// Params are the frame-count tuning constants.
type Params struct {
	PreBuffer          int // P: idle history length
	NoiseActivation    int // K1: consecutive loud frames to start the VAD
	SpeechConfirmation int // K2: consecutive speech frames to confirm speech
	AbortSilence       int // A: non-speech frames tolerated while pending
	EndSilence         int // S: consecutive non-speech frames ending speech
	MaxSpeechBuffer    int // M: speech buffer cap while speech is active
}

// DefaultParams returns the standard tuning for 32 ms frames.
func DefaultParams() Params {
	return Params{
		PreBuffer:          10,
		NoiseActivation:    5,
		SpeechConfirmation: 3,
		AbortSilence:       40,
		EndSilence:         50,
		MaxSpeechBuffer:    100,
	}
}

// Validate reports whether every parameter is positive.
func (p Params) Validate() error {
	var errs []error
	check := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, v))
		}
	}
	check("pre_buffer", p.PreBuffer)
	check("noise_activation", p.NoiseActivation)
	check("speech_confirmation", p.SpeechConfirmation)
	check("abort_silence", p.AbortSilence)
	check("end_silence", p.EndSilence)
	check("max_speech_buffer", p.MaxSpeechBuffer)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("frontend: %w", err)
	}
	return nil
}

// Option configures a FrontEnd.
type Option func(*FrontEnd)

// WithParams overrides [DefaultParams]. Invalid values are ignored with a
// warning.
func WithParams(p Params) Option {
	return func(fe *FrontEnd) {
		if err := p.Validate(); err != nil {
			slog.Warn("frontend: ignoring invalid params", "err", err)
			return
		}
		fe.params = p
	}
}

// WithEvents sets the sink for NoiseDetected and SilenceDetected events.
func WithEvents(sink events.Sink) Option {
	return func(fe *FrontEnd) {
		if sink != nil {
			fe.events = sink
		}
	}
}

// FrontEnd is the acoustic front end. It is driven by a single goroutine and
// is not safe for concurrent use.
type FrontEnd struct {
	det     *detect.Detector
	spotter wakeword.Spotter
	events  events.Sink
	params  Params

	state  State
	active bool
	pre    *audio.Ring
	speech []audio.Frame

	loudRun    int
	speechRun  int
	silenceRun int
}

// New returns a FrontEnd in [StateIdle]. det supplies the amplitude gate and
// the VAD; spotter matches wake phrases.
func New(det *detect.Detector, spotter wakeword.Spotter, opts ...Option) *FrontEnd {
	fe := &FrontEnd{
		det:     det,
		spotter: spotter,
		events:  events.Discard,
		params:  DefaultParams(),
	}
	for _, o := range opts {
		o(fe)
	}
	fe.pre = audio.NewRing(fe.params.PreBuffer)
	return fe
}

// State returns the current detection state.
func (fe *FrontEnd) State() State { return fe.state }

// PreBufferLen returns the number of frames in the idle pre-buffer.
func (fe *FrontEnd) PreBufferLen() int { return fe.pre.Len() }

// PreBuffer returns a copy of the idle pre-buffer, oldest first.
func (fe *FrontEnd) PreBuffer() []audio.Frame { return fe.pre.Frames() }

// SpeechBufferLen returns the number of frames in the speech buffer.
func (fe *FrontEnd) SpeechBufferLen() int { return len(fe.speech) }

// Spotter returns the current wake-word spotter.
func (fe *FrontEnd) Spotter() wakeword.Spotter { return fe.spotter }

// SetSpotter replaces the wake-word spotter, resets the front end and
// returns the previous spotter so the caller can close it. It must be called
// from the goroutine driving the front end, between WaitWake calls.
func (fe *FrontEnd) SetSpotter(s wakeword.Spotter) wakeword.Spotter {
	old := fe.spotter
	fe.spotter = s
	fe.Reset()
	return old
}

// Reset returns to [StateIdle], clears both buffers and resets the VAD and
// the spotter.
func (fe *FrontEnd) Reset() {
	fe.toIdle()
	fe.publishEdge()
}

func (fe *FrontEnd) toIdle() {
	fe.state = StateIdle
	fe.pre.Clear()
	clear(fe.speech)
	fe.speech = fe.speech[:0]
	fe.loudRun = 0
	fe.speechRun = 0
	fe.silenceRun = 0
	fe.det.Reset()
	fe.spotter.Reset()
}

// Process runs one frame through the state machine. It returns a detection
// with ok set when a wake phrase matched. On error the front end is reset to
// idle.
func (fe *FrontEnd) Process(f audio.Frame) (d Detection, ok bool, err error) {
	switch fe.state {
	case StateIdle:
		fe.idle(f)
	case StateVADPending:
		d, ok, err = fe.pending(f)
	case StateSpeechActive:
		d, ok, err = fe.speaking(f)
	}
	if err != nil {
		fe.toIdle()
	}
	fe.publishEdge()
	return d, ok, err
}

func (fe *FrontEnd) idle(f audio.Frame) {
	if fe.det.Loud(f) {
		fe.loudRun++
	} else {
		fe.loudRun = 0
	}
	fe.pre.Push(f)
	if fe.loudRun < fe.params.NoiseActivation {
		return
	}
	fe.speech = append(fe.speech[:0], fe.pre.Frames()...)
	fe.pre.Clear()
	fe.loudRun = 0
	fe.speechRun = 0
	fe.silenceRun = 0
	fe.state = StateVADPending
	slog.Debug("frontend: noise detected, starting vad", "seq", f.Seq, "buffered", len(fe.speech))
}

func (fe *FrontEnd) pending(f audio.Frame) (Detection, bool, error) {
	speech, p, err := fe.det.Speech(f)
	if err != nil {
		return Detection{}, false, fmt.Errorf("frontend: %w", err)
	}
	fe.speech = append(fe.speech, f)

	if !speech {
		fe.speechRun = 0
		fe.silenceRun++
		if fe.silenceRun > fe.params.AbortSilence {
			slog.Debug("frontend: no speech confirmed, aborting", "seq", f.Seq)
			fe.toIdle()
		}
		return Detection{}, false, nil
	}

	fe.speechRun++
	if fe.speechRun < fe.params.SpeechConfirmation {
		return Detection{}, false, nil
	}

	slog.Debug("frontend: speech confirmed, replaying buffer", "seq", f.Seq, "prob", p, "frames", len(fe.speech))
	for _, bf := range fe.speech {
		idx, ok, err := fe.spotter.Process(bf)
		if err != nil {
			return Detection{}, false, fmt.Errorf("frontend: spotter: %w", err)
		}
		if ok {
			return fe.wake(idx, bf.Seq, f.Seq, true)
		}
	}
	fe.state = StateSpeechActive
	fe.silenceRun = 0
	fe.trimSpeech()
	return Detection{}, false, nil
}

func (fe *FrontEnd) speaking(f audio.Frame) (Detection, bool, error) {
	speech, _, err := fe.det.Speech(f)
	if err != nil {
		return Detection{}, false, fmt.Errorf("frontend: %w", err)
	}
	fe.speech = append(fe.speech, f)
	fe.trimSpeech()

	idx, ok, err := fe.spotter.Process(f)
	if err != nil {
		return Detection{}, false, fmt.Errorf("frontend: spotter: %w", err)
	}
	if ok {
		return fe.wake(idx, f.Seq, f.Seq, false)
	}

	if speech {
		fe.silenceRun = 0
	} else {
		fe.silenceRun++
	}
	if fe.silenceRun > fe.params.EndSilence {
		slog.Debug("frontend: speech ended without wake phrase", "seq", f.Seq)
		fe.toIdle()
	}
	return Detection{}, false, nil
}

func (fe *FrontEnd) trimSpeech() {
	if n := len(fe.speech) - fe.params.MaxSpeechBuffer; n > 0 {
		clear(fe.speech[:n])
		fe.speech = append(fe.speech[:0], fe.speech[n:]...)
	}
}

func (fe *FrontEnd) wake(idx int, matched, current uint64, replayed bool) (Detection, bool, error) {
	profiles := fe.spotter.Profiles()
	if idx < 0 || idx >= len(profiles) {
		return Detection{}, false, fmt.Errorf("frontend: spotter reported index %d of %d profiles", idx, len(profiles))
	}
	d := Detection{
		Index:      idx,
		Phrase:     profiles[idx].Phrase,
		MatchedSeq: matched,
		FrameSeq:   current,
		Replayed:   replayed,
	}
	slog.Debug("frontend: wake phrase detected", "phrase", d.Phrase, "matched_seq", matched, "seq", current, "replayed", replayed)
	fe.toIdle()
	return d, true, nil
}

// publishEdge emits NoiseDetected or SilenceDetected when the aggregate
// active condition changed since the last call.
func (fe *FrontEnd) publishEdge() {
	active := fe.state != StateIdle
	if active == fe.active {
		return
	}
	fe.active = active
	if active {
		fe.events.Publish(events.New(events.KindNoiseDetected))
	} else {
		fe.events.Publish(events.New(events.KindSilenceDetected))
	}
}

// WaitWake reads frames from src until a wake phrase is detected. It returns
// promptly with a non-nil error when ctx is done, when src stalls
// ([audio.ErrStalled]) or closes, or when a model fails. On error the front
// end is reset to idle.
func (fe *FrontEnd) WaitWake(ctx context.Context, src audio.Source) (Detection, error) {
	for {
		if err := ctx.Err(); err != nil {
			fe.Reset()
			return Detection{}, fmt.Errorf("frontend: wait wake: %w", err)
		}
		f, err := src.NextFrame(ctx)
		if err != nil {
			fe.Reset()
			return Detection{}, fmt.Errorf("frontend: wait wake: %w", err)
		}
		d, ok, err := fe.Process(f)
		if err != nil {
			return Detection{}, err
		}
		if ok {
			return d, nil
		}
	}
}
