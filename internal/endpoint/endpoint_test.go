package endpoint_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/internal/endpoint"
	"github.com/nanobot-edge/nanobot/pkg/audio"
	audiomock "github.com/nanobot-edge/nanobot/pkg/audio/mock"
	vadmock "github.com/nanobot-edge/nanobot/pkg/provider/vad/mock"
)

const (
	quiet  = 0
	speech = 8000
)

func frames(levels ...int16) []audio.Frame {
	out := make([]audio.Frame, len(levels))
	for i, lvl := range levels {
		s := make([]int16, audio.DefaultFrameSamples)
		for j := range s {
			s[j] = lvl
		}
		out[i] = audio.Frame{Samples: s, SampleRate: audio.DefaultSampleRate}
	}
	return out
}

func script(parts ...[]int16) []audio.Frame {
	var all []int16
	for _, p := range parts {
		all = append(all, p...)
	}
	return frames(all...)
}

func repeat(level int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func newEndpointer(t *testing.T, opts ...endpoint.Option) (*endpoint.Endpointer, *vadmock.Scorer) {
	t.Helper()
	vad := &vadmock.Scorer{Func: func(f audio.Frame) float32 {
		if f.Peak() >= speech {
			return 0.9
		}
		return 0.05
	}}
	return endpoint.New(detect.New(vad, detect.Config{SpeechThreshold: 0.5}), opts...), vad
}

func TestCapture_TimedOutWaitingForSpeech(t *testing.T) {
	ep, _ := newEndpointer(t)
	src := &audiomock.Source{Frames: script(repeat(quiet, 400))}

	res, err := ep.Capture(context.Background(), src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Status != endpoint.StatusTimedOutWaitingForSpeech {
		t.Fatalf("Status = %v, want timed out", res.Status)
	}
	// 156 frames is 4.992 s; the 157th crosses 5 s.
	if src.Delivered != 157 {
		t.Errorf("consumed %d frames, want 157", src.Delivered)
	}
	if len(res.Frames) != 10 {
		t.Fatalf("buffer holds %d frames, want only the 10 pre-roll frames", len(res.Frames))
	}
	for i, f := range res.Frames {
		if want := uint64(148 + i); f.Seq != want {
			t.Errorf("frame %d Seq = %d, want %d", i, f.Seq, want)
		}
	}
	if res.Usable() {
		t.Error("timed-out capture reported usable")
	}
}

func TestCapture_EndsOnSilence(t *testing.T) {
	ep, _ := newEndpointer(t)
	src := &audiomock.Source{Frames: script(repeat(quiet, 5), repeat(speech, 23), repeat(quiet, 60))}

	res, err := ep.Capture(context.Background(), src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Status != endpoint.StatusOK {
		t.Fatalf("Status = %v, want ok", res.Status)
	}
	// Recording starts on frame 8 with pre-roll frames 1..8 (P=10 holds them
	// all), then runs until the 51st quiet frame.
	if want := 8 + 20 + 51; len(res.Frames) != want {
		t.Errorf("captured %d frames, want %d", len(res.Frames), want)
	}
	if res.Frames[0].Seq != 1 {
		t.Errorf("first frame Seq = %d, want 1", res.Frames[0].Seq)
	}
	for i := 1; i < len(res.Frames); i++ {
		if res.Frames[i].Seq != res.Frames[i-1].Seq+1 {
			t.Fatalf("gap at %d: %d then %d", i, res.Frames[i-1].Seq, res.Frames[i].Seq)
		}
	}
	if want := time.Duration(len(res.Frames)) * 32 * time.Millisecond; res.Duration != want {
		t.Errorf("Duration = %s, want %s", res.Duration, want)
	}
	if !res.Usable() {
		t.Error("normal capture not usable")
	}
}

func TestCapture_SilenceBoundary(t *testing.T) {
	ep, _ := newEndpointer(t)
	// Exactly S unvoiced frames do not end the recording.
	src := &audiomock.Source{Frames: script(repeat(speech, 3), repeat(quiet, 50)), EndErr: audio.ErrClosed}

	res, err := ep.Capture(context.Background(), src)
	if !errors.Is(err, audio.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed once the source ran dry", err)
	}
	if len(res.Frames) != 53 {
		t.Errorf("partial capture has %d frames, want 53", len(res.Frames))
	}
}

func TestCapture_LoudNonSpeechDoesNotStart(t *testing.T) {
	ep, _ := newEndpointer(t)
	// Loud by amplitude but scored as non-speech.
	src := &audiomock.Source{Frames: script(repeat(5000, 200))}

	res, err := ep.Capture(context.Background(), src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Status != endpoint.StatusTimedOutWaitingForSpeech {
		t.Errorf("Status = %v, want timed out", res.Status)
	}
}

func TestCapture_MaxDuration(t *testing.T) {
	p := endpoint.DefaultParams()
	p.MaxDuration = time.Second
	ep, _ := newEndpointer(t, endpoint.WithParams(p))
	src := &audiomock.Source{Frames: script(repeat(speech, 200))}

	res, err := ep.Capture(context.Background(), src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Status != endpoint.StatusMaxDurationExceeded {
		t.Fatalf("Status = %v, want max duration exceeded", res.Status)
	}
	if res.Duration <= time.Second || res.Duration > time.Second+32*time.Millisecond {
		t.Errorf("Duration = %s, want just over 1s", res.Duration)
	}
}

func TestCapture_Cancelled(t *testing.T) {
	ep, _ := newEndpointer(t)
	src := &audiomock.Source{Frames: script(repeat(speech, 6)), BlockAtEnd: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := ep.Capture(ctx, src)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Status != endpoint.StatusCancelled {
		t.Fatalf("Status = %v, want cancelled", res.Status)
	}
	if len(res.Frames) != 6 {
		t.Errorf("partial buffer has %d frames, want 6", len(res.Frames))
	}
}

func TestCapture_ResetsVAD(t *testing.T) {
	ep, vad := newEndpointer(t)
	src := &audiomock.Source{Frames: script(repeat(quiet, 200))}
	if _, err := ep.Capture(context.Background(), src); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if vad.Resets() != 1 {
		t.Errorf("VAD reset %d times, want 1", vad.Resets())
	}
}

func TestCapture_DeviceError(t *testing.T) {
	ep, _ := newEndpointer(t)
	src := &audiomock.Source{EndErr: audio.ErrDevice}
	if _, err := ep.Capture(context.Background(), src); !errors.Is(err, audio.ErrDevice) {
		t.Errorf("err = %v, want ErrDevice", err)
	}
}

func TestResult_WAVRoundTrip(t *testing.T) {
	res := endpoint.Result{Status: endpoint.StatusOK, Frames: script(repeat(speech, 4), repeat(-300, 3))}
	data, err := res.WAV(audio.DefaultSampleRate)
	if err != nil {
		t.Fatalf("WAV: %v", err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad container magic %q %q", data[0:4], data[8:12])
	}
	dataBytes := 7 * audio.DefaultFrameSamples * 2
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+dataBytes) {
		t.Errorf("RIFF size = %d, want %d", got, 36+dataBytes)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != audio.DefaultSampleRate {
		t.Errorf("rate = %d, want %d", rate, audio.DefaultSampleRate)
	}
	if len(samples) != 7*audio.DefaultFrameSamples {
		t.Fatalf("decoded %d samples, want %d", len(samples), 7*audio.DefaultFrameSamples)
	}
	if samples[0] != speech || samples[len(samples)-1] != -300 {
		t.Errorf("samples not preserved: first %d last %d", samples[0], samples[len(samples)-1])
	}
}

func TestParams_Validate(t *testing.T) {
	if err := endpoint.DefaultParams().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	p := endpoint.DefaultParams()
	p.WaitTimeout = 0
	p.SpeechStart = 0
	if err := p.Validate(); err == nil {
		t.Error("Validate accepted zero values")
	}
}
