// Package wakeword defines the Spotter interface for wake-phrase detection
// backends and the per-phrase tuning profile they consume.
//
// A Spotter is stateful: it accumulates audio context across frames and
// reports a match when a phrase's score stays above its threshold for
// TriggerLevel consecutive predictions. Frames must be fed strictly in arrival
// order. A Spotter is owned by one goroutine and need not be safe for
// concurrent use.
package wakeword

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// ErrUnknownPhrase is returned when a profile names a phrase for which the
// backend has no model.
var ErrUnknownPhrase = errors.New("wakeword: unknown phrase")

// Profile tunes detection of one wake phrase.
type Profile struct {
	// Phrase identifies the wake phrase model, e.g. "alexa_v0.1".
	Phrase string

	// Threshold is the minimum per-prediction score in [0, 1].
	Threshold float32

	// TriggerLevel is the number of consecutive predictions at or above
	// Threshold required for a match, in [1, 10].
	TriggerLevel int
}

// Validate reports whether p is within range.
func (p Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Phrase) == "" {
		errs = append(errs, errors.New("phrase must not be empty"))
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold %g out of range [0, 1]", p.Threshold))
	}
	if p.TriggerLevel < 1 || p.TriggerLevel > 10 {
		errs = append(errs, fmt.Errorf("trigger level %d out of range [1, 10]", p.TriggerLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("wakeword: profile %q: %w", p.Phrase, err)
	}
	return nil
}

// Spotter detects configured wake phrases in a frame stream.
type Spotter interface {
	// Process feeds one frame. When a phrase matches, ok is true and index
	// identifies the matching entry of Profiles.
	Process(frame audio.Frame) (index int, ok bool, err error)

	// Reset discards accumulated audio context and trigger counters.
	Reset()

	// Profiles returns the phrase profiles this spotter was built with.
	Profiles() []Profile

	// Close releases the backend. Calling Close more than once is safe.
	Close() error
}

// Equal reports whether two profile sets are identical, in order.
func Equal(a, b []Profile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Counter tracks consecutive above-threshold predictions per profile. It is
// shared by backends that produce a score per phrase per prediction step.
type Counter struct {
	profiles []Profile
	hits     []int
}

// NewCounter returns a Counter for profiles.
func NewCounter(profiles []Profile) *Counter {
	return &Counter{profiles: profiles, hits: make([]int, len(profiles))}
}

// Observe records one prediction step. scores[i] belongs to profiles[i].
// It returns the first profile whose trigger level is reached; all counters
// are cleared on a match.
func (c *Counter) Observe(scores []float32) (int, bool) {
	match := -1
	for i, p := range c.profiles {
		if i >= len(scores) {
			break
		}
		if scores[i] >= p.Threshold {
			c.hits[i]++
		} else {
			c.hits[i] = 0
		}
		if match < 0 && c.hits[i] >= p.TriggerLevel {
			match = i
		}
	}
	if match < 0 {
		return 0, false
	}
	c.Reset()
	return match, true
}

// Reset clears every counter.
func (c *Counter) Reset() { clear(c.hits) }
