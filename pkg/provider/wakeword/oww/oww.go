// Package oww implements [wakeword.Spotter] with openWakeWord ONNX models on
// ONNX Runtime.
//
// The pipeline has three stages:
//
//  1. melspectrogram.onnx turns 80 ms of 16 kHz audio (plus 30 ms of overlap)
//     into 32-bin mel frames.
//  2. embedding_model.onnx turns the latest 76 mel frames into one 96-value
//     embedding.
//  3. One classifier per phrase (<phrase>.onnx) scores the latest 16
//     embeddings.
//
// All models live in one directory. Input and output tensor names are read
// from the model files.
package oww

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/onnxrt"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

const (
	sampleRate      = 16000
	chunkSamples    = 1280
	overlapSamples  = 480
	melBins         = 32
	melWindow       = 76
	embeddingDim    = 96
	embeddingWindow = 16

	melModelFile       = "melspectrogram.onnx"
	embeddingModelFile = "embedding_model.onnx"
)

// Spotter runs the openWakeWord pipeline. Not safe for concurrent use.
type Spotter struct {
	profiles []wakeword.Profile
	counter  *wakeword.Counter

	mel         *model
	embedding   *model
	classifiers []*model

	pending    []float32 // samples not yet forming a chunk
	tail       []float32 // last overlapSamples of the previous chunk
	mels       [][melBins]float32
	embeddings [][embeddingDim]float32
	closed     bool
}

// Option configures a Spotter.
type Option func(*options)

type options struct {
	libPath string
}

// WithLibraryPath sets the ONNX Runtime shared library location.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.libPath = path }
}

// New loads the shared feature models and one classifier per profile from
// modelDir. A profile whose <phrase>.onnx is missing yields
// [wakeword.ErrUnknownPhrase].
func New(modelDir string, profiles []wakeword.Profile, opts ...Option) (*Spotter, error) {
	if len(profiles) == 0 {
		return nil, errors.New("oww: at least one profile is required")
	}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("oww: %w", err)
		}
		if _, err := os.Stat(phrasePath(modelDir, p.Phrase)); err != nil {
			return nil, fmt.Errorf("oww: %q in %s: %w", p.Phrase, modelDir, wakeword.ErrUnknownPhrase)
		}
	}

	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := onnxrt.Acquire(o.libPath); err != nil {
		return nil, fmt.Errorf("oww: %w", err)
	}

	s := &Spotter{
		profiles: append([]wakeword.Profile(nil), profiles...),
		counter:  wakeword.NewCounter(profiles),
	}
	if err := s.load(modelDir); err != nil {
		s.destroyModels()
		_ = onnxrt.Release()
		return nil, err
	}
	s.Reset()
	slog.Info("wake word models loaded", "dir", modelDir, "phrases", len(profiles))
	return s, nil
}

func phrasePath(dir, phrase string) string {
	return filepath.Join(dir, phrase+".onnx")
}

func (s *Spotter) load(dir string) error {
	var err error
	if s.mel, err = loadModel(filepath.Join(dir, melModelFile)); err != nil {
		return err
	}
	if s.embedding, err = loadModel(filepath.Join(dir, embeddingModelFile)); err != nil {
		return err
	}
	for _, p := range s.profiles {
		m, err := loadModel(phrasePath(dir, p.Phrase))
		if err != nil {
			return err
		}
		s.classifiers = append(s.classifiers, m)
	}
	return nil
}

// Profiles implements [wakeword.Spotter].
func (s *Spotter) Profiles() []wakeword.Profile {
	return append([]wakeword.Profile(nil), s.profiles...)
}

// Process implements [wakeword.Spotter]. A prediction is made for every
// complete 80 ms chunk; frames that do not complete a chunk return no match.
func (s *Spotter) Process(frame audio.Frame) (int, bool, error) {
	if s.closed {
		return 0, false, errors.New("oww: spotter is closed")
	}
	if frame.SampleRate != 0 && frame.SampleRate != sampleRate {
		return 0, false, fmt.Errorf("oww: frame at %d Hz, want %d", frame.SampleRate, sampleRate)
	}
	for _, v := range frame.Samples {
		s.pending = append(s.pending, float32(v))
	}

	for len(s.pending) >= chunkSamples {
		chunk := s.pending[:chunkSamples]
		scores, err := s.step(chunk)
		s.pending = append(s.pending[:0], s.pending[chunkSamples:]...)
		if err != nil {
			return 0, false, err
		}
		if idx, ok := s.counter.Observe(scores); ok {
			s.pending = s.pending[:0]
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// step runs one chunk through all three stages and returns per-phrase scores.
func (s *Spotter) step(chunk []float32) ([]float32, error) {
	in := make([]float32, 0, overlapSamples+chunkSamples)
	in = append(in, s.tail...)
	in = append(in, chunk...)
	s.tail = append(s.tail[:0], chunk[chunkSamples-overlapSamples:]...)

	frames, err := s.melFrames(in)
	if err != nil {
		return nil, err
	}
	s.mels = append(s.mels, frames...)
	if n := len(s.mels); n > melWindow {
		s.mels = append(s.mels[:0], s.mels[n-melWindow:]...)
	}

	emb, err := s.embed()
	if err != nil {
		return nil, err
	}
	s.embeddings = append(s.embeddings, emb)
	if n := len(s.embeddings); n > embeddingWindow {
		s.embeddings = append(s.embeddings[:0], s.embeddings[n-embeddingWindow:]...)
	}

	scores := make([]float32, len(s.classifiers))
	for i, c := range s.classifiers {
		if scores[i], err = s.classify(c); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func (s *Spotter) melFrames(samples []float32) ([][melBins]float32, error) {
	data, shape, err := s.mel.run(ort.NewShape(1, int64(len(samples))), samples)
	if err != nil {
		return nil, fmt.Errorf("oww: melspectrogram: %w", err)
	}
	if len(shape) < 2 || shape[len(shape)-1] != melBins {
		return nil, fmt.Errorf("oww: melspectrogram: unexpected output shape %v", shape)
	}
	n := len(data) / melBins
	out := make([][melBins]float32, n)
	for i := range n {
		for j := range melBins {
			// Scaling expected by the embedding model.
			out[i][j] = data[i*melBins+j]/10 + 2
		}
	}
	return out, nil
}

func (s *Spotter) embed() ([embeddingDim]float32, error) {
	var emb [embeddingDim]float32
	in := make([]float32, 0, melWindow*melBins)
	for _, f := range s.mels {
		in = append(in, f[:]...)
	}
	data, _, err := s.embedding.run(ort.NewShape(1, melWindow, melBins, 1), in)
	if err != nil {
		return emb, fmt.Errorf("oww: embedding: %w", err)
	}
	if len(data) < embeddingDim {
		return emb, fmt.Errorf("oww: embedding: got %d values, want %d", len(data), embeddingDim)
	}
	copy(emb[:], data)
	return emb, nil
}

func (s *Spotter) classify(c *model) (float32, error) {
	in := make([]float32, 0, embeddingWindow*embeddingDim)
	for _, e := range s.embeddings {
		in = append(in, e[:]...)
	}
	data, _, err := c.run(ort.NewShape(1, embeddingWindow, embeddingDim), in)
	if err != nil {
		return 0, fmt.Errorf("oww: classify %s: %w", c.path, err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("oww: classify %s: empty output", c.path)
	}
	return data[0], nil
}

// Reset implements [wakeword.Spotter]. Feature buffers are re-primed with
// silence so the classifiers see a full window immediately.
func (s *Spotter) Reset() {
	if s.closed {
		return
	}
	s.counter.Reset()
	s.pending = s.pending[:0]
	s.tail = make([]float32, overlapSamples)
	s.mels = make([][melBins]float32, melWindow)
	for i := range s.mels {
		for j := range melBins {
			s.mels[i][j] = 1
		}
	}
	s.embeddings = s.embeddings[:0]

	silence := make([]float32, chunkSamples)
	for range embeddingWindow {
		if _, err := s.step(silence); err != nil {
			slog.Warn("oww: priming feature buffers failed", "err", err)
			return
		}
	}
}

// Close implements [wakeword.Spotter].
func (s *Spotter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.destroyModels()
	return onnxrt.Release()
}

func (s *Spotter) destroyModels() {
	for _, m := range append([]*model{s.mel, s.embedding}, s.classifiers...) {
		if m != nil {
			m.destroy()
		}
	}
}

// Ensure Spotter implements wakeword.Spotter at compile time.
var _ wakeword.Spotter = (*Spotter)(nil)
