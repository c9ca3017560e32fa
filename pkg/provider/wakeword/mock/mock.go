// Package mock provides a scripted test double for [wakeword.Spotter].
//
// MatchOn maps a 1-based Process call number to the profile index to report,
// so a test can say "match phrase 0 on the 3rd frame fed since the last
// Reset". MatchFunc, if set, takes precedence and inspects the frame itself.
package mock

import (
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// Spotter is a mock implementation of wakeword.Spotter.
type Spotter struct {
	mu sync.Mutex

	// ProfileList is returned by Profiles.
	ProfileList []wakeword.Profile

	// MatchOn maps the 1-based call count since the last Reset to a profile
	// index.
	MatchOn map[int]int

	// MatchFunc, if set, decides matches from the frame.
	MatchFunc func(audio.Frame) (int, bool)

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// --- Call records ---

	// Processed holds the Seq of every frame passed to Process, in order,
	// across resets.
	Processed []uint64

	// SinceReset counts Process calls since the last Reset.
	SinceReset int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Process records the call and reports a scripted match.
func (s *Spotter) Process(frame audio.Frame) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed = append(s.Processed, frame.Seq)
	s.SinceReset++
	if s.ProcessErr != nil {
		return 0, false, s.ProcessErr
	}
	if s.MatchFunc != nil {
		idx, ok := s.MatchFunc(frame)
		return idx, ok, nil
	}
	if idx, ok := s.MatchOn[s.SinceReset]; ok {
		return idx, true, nil
	}
	return 0, false, nil
}

// Reset records the call.
func (s *Spotter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
	s.SinceReset = 0
}

// Profiles returns ProfileList.
func (s *Spotter) Profiles() []wakeword.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ProfileList
}

// Close records the call.
func (s *Spotter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// ProcessedSeqs returns a copy of Processed. Thread-safe.
func (s *Spotter) ProcessedSeqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.Processed...)
}

// Ensure Spotter implements wakeword.Spotter at compile time.
var _ wakeword.Spotter = (*Spotter)(nil)
