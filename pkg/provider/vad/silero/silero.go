// Package silero implements [vad.Scorer] with the Silero VAD v5 ONNX model
// running on ONNX Runtime.
//
// The model consumes 512-sample chunks at 16 kHz, prefixed with the last 64
// samples of the previous chunk, and carries a (2, 1, 128) recurrent state
// between calls. Reset zeroes both.
package silero

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/onnxrt"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
)

const (
	sampleRate     = 16000
	chunkSamples   = 512
	contextSamples = 64
	inputSamples   = contextSamples + chunkSamples
	stateSize      = 2 * 1 * 128
)

// Scorer is a stateful Silero VAD session. Not safe for concurrent use.
type Scorer struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32] // (1, 576)
	state    *ort.Tensor[float32] // (2, 1, 128)
	sr       *ort.Tensor[int64]   // (1,)
	output   *ort.Tensor[float32] // (1, 1)
	stateOut *ort.Tensor[float32] // (2, 1, 128)

	context [contextSamples]float32
	closed  bool
}

// Option configures a Scorer.
type Option func(*options)

type options struct {
	libPath string
}

// WithLibraryPath sets the ONNX Runtime shared library location.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.libPath = path }
}

// New loads the Silero model at modelPath.
func New(modelPath string, opts ...Option) (*Scorer, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := onnxrt.Acquire(o.libPath); err != nil {
		return nil, fmt.Errorf("silero: %w", err)
	}

	s := &Scorer{}
	if err := s.init(modelPath); err != nil {
		s.destroyTensors()
		_ = onnxrt.Release()
		return nil, err
	}
	return s, nil
}

func (s *Scorer) init(modelPath string) error {
	var err error
	if s.input, err = ort.NewTensor(ort.NewShape(1, inputSamples), make([]float32, inputSamples)); err != nil {
		return fmt.Errorf("silero: input tensor: %w", err)
	}
	if s.state, err = ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, stateSize)); err != nil {
		return fmt.Errorf("silero: state tensor: %w", err)
	}
	if s.sr, err = ort.NewTensor(ort.NewShape(1), []int64{sampleRate}); err != nil {
		return fmt.Errorf("silero: sr tensor: %w", err)
	}
	if s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fmt.Errorf("silero: output tensor: %w", err)
	}
	if s.stateOut, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		return fmt.Errorf("silero: state output tensor: %w", err)
	}
	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{s.input, s.state, s.sr},
		[]ort.Value{s.output, s.stateOut},
		nil)
	if err != nil {
		return fmt.Errorf("silero: load model %q: %w", modelPath, err)
	}
	return nil
}

// Score implements [vad.Scorer]. The frame must hold 512 samples at 16 kHz.
func (s *Scorer) Score(frame audio.Frame) (float32, error) {
	if s.closed {
		return 0, errors.New("silero: scorer is closed")
	}
	if len(frame.Samples) != chunkSamples || (frame.SampleRate != 0 && frame.SampleRate != sampleRate) {
		return 0, fmt.Errorf("silero: %d samples at %d Hz: %w", len(frame.Samples), frame.SampleRate, vad.ErrFrameSize)
	}

	in := s.input.GetData()
	copy(in[:contextSamples], s.context[:])
	for i, v := range frame.Samples {
		in[contextSamples+i] = float32(v) / 32768
	}
	copy(s.context[:], in[inputSamples-contextSamples:])

	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: run: %w", err)
	}
	copy(s.state.GetData(), s.stateOut.GetData())
	return s.output.GetData()[0], nil
}

// Reset implements [vad.Scorer].
func (s *Scorer) Reset() {
	if s.closed {
		return
	}
	clear(s.context[:])
	s.state.ZeroContents()
}

// Close implements [vad.Scorer].
func (s *Scorer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	s.destroyTensors()
	errs = append(errs, onnxrt.Release())
	return errors.Join(errs...)
}

func (s *Scorer) destroyTensors() {
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.state != nil {
		_ = s.state.Destroy()
	}
	if s.sr != nil {
		_ = s.sr.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
	if s.stateOut != nil {
		_ = s.stateOut.Destroy()
	}
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)
