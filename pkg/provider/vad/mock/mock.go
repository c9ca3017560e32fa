// Package mock provides a scripted test double for [vad.Scorer].
//
// Probabilities are produced, in priority order, by Func (derived from the
// frame itself), then by Script (consumed in call order), then by Default.
//
// Example:
//
//	s := &mock.Scorer{Func: func(f audio.Frame) float32 {
//	    if f.Peak() > 5000 {
//	        return 0.9
//	    }
//	    return 0.1
//	}}
package mock

import (
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
)

// Scorer is a mock implementation of vad.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Func, if set, computes the probability from the frame.
	Func func(audio.Frame) float32

	// Script is consumed one value per Score call when Func is nil.
	Script []float32

	// Default is returned once Script is exhausted.
	Default float32

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// --- Call records ---

	// Scored holds the Seq of every frame passed to Score, in order.
	Scored []uint64

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Score records the call and returns the next probability.
func (s *Scorer) Score(frame audio.Frame) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scored = append(s.Scored, frame.Seq)
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if s.Func != nil {
		return s.Func(frame), nil
	}
	i := len(s.Scored) - 1
	if i < len(s.Script) {
		return s.Script[i], nil
	}
	return s.Default, nil
}

// Reset records the call.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Resets returns ResetCallCount. Thread-safe.
func (s *Scorer) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResetCallCount
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)
