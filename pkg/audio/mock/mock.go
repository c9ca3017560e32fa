// Package mock provides in-memory implementations of [audio.Source],
// [audio.Capturer] and [audio.Sink] for unit tests.
//
// All mocks are safe for concurrent use and record their calls so tests can
// assert on them afterwards.
//
// Typical usage:
//
//	src := &mock.Source{Frames: mock.Silence(10, 512)}
//	cap := &mock.Capturer{Sources: []*mock.Source{src}}
//	s, _ := cap.Open(ctx)
//	f, err := s.NextFrame(ctx)
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source replays a fixed list of frames. Sequence numbers are assigned on
// delivery when a frame has none.
type Source struct {
	mu sync.Mutex

	// Frames are returned in order by NextFrame.
	Frames []audio.Frame

	// EndErr is returned once Frames is exhausted. Defaults to
	// [audio.ErrClosed]. Ignored when BlockAtEnd is set.
	EndErr error

	// BlockAtEnd makes NextFrame block until ctx is cancelled or Close is
	// called once Frames is exhausted, like a live microphone.
	BlockAtEnd bool

	// Delay is slept before every delivered frame.
	Delay time.Duration

	// Delivered counts frames returned so far.
	Delivered int

	// CloseCount records how many times Close was called.
	CloseCount int

	done     chan struct{}
	doneOnce sync.Once
}

func (s *Source) doneCh() chan struct{} {
	s.doneOnce.Do(func() { s.done = make(chan struct{}) })
	return s.done
}

// NextFrame implements [audio.Source].
func (s *Source) NextFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	done := s.doneCh()

	s.mu.Lock()
	closed := s.CloseCount > 0
	exhausted := s.Delivered >= len(s.Frames)
	delay := s.Delay
	s.mu.Unlock()

	if closed {
		return audio.Frame{}, audio.ErrClosed
	}
	if exhausted {
		if s.BlockAtEnd {
			select {
			case <-ctx.Done():
				return audio.Frame{}, ctx.Err()
			case <-done:
				return audio.Frame{}, audio.ErrClosed
			}
		}
		if s.EndErr != nil {
			return audio.Frame{}, s.EndErr
		}
		return audio.Frame{}, audio.ErrClosed
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return audio.Frame{}, ctx.Err()
		case <-done:
			t.Stop()
			return audio.Frame{}, audio.ErrClosed
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.Frames[s.Delivered]
	s.Delivered++
	if f.Seq == 0 {
		f.Seq = uint64(s.Delivered)
	}
	return f, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	done := s.doneCh()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseCount == 0 {
		close(done)
	}
	s.CloseCount++
	return nil
}

// ─── Capturer ─────────────────────────────────────────────────────────────────

// ErrAlreadyOpen is returned by [Capturer.Open] while a previously opened
// source is still open.
var ErrAlreadyOpen = errors.New("mock: capture device already open")

// Capturer hands out Sources in order. When Sources is exhausted it returns
// a fresh Source that blocks until closed. It enforces exclusive access.
type Capturer struct {
	mu sync.Mutex

	// Sources are returned by successive Open calls.
	Sources []*Source

	// OpenErr, when non-nil, is returned by every Open.
	OpenErr error

	// OpenCount records successful Open calls.
	OpenCount int

	current *Source
}

// Open implements [audio.Capturer].
func (c *Capturer) Open(ctx context.Context) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if c.current != nil {
		c.current.mu.Lock()
		open := c.current.CloseCount == 0
		c.current.mu.Unlock()
		if open {
			return nil, ErrAlreadyOpen
		}
	}
	var s *Source
	if c.OpenCount < len(c.Sources) {
		s = c.Sources[c.OpenCount]
	} else {
		s = &Source{BlockAtEnd: true}
	}
	c.OpenCount++
	c.current = s
	return s, nil
}

// Opens returns the number of successful Open calls. Thread-safe.
func (c *Capturer) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.OpenCount
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink records written PCM. When Gate is non-nil, Drain blocks until Gate is
// closed, Flush is called, or ctx is cancelled, which lets tests hold
// playback "in progress".
type Sink struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// WriteErr, when non-nil, is returned by every Write.
	WriteErr error

	// Gate holds Drain open until closed.
	Gate chan struct{}

	// Written holds every chunk passed to Write, in order.
	Written [][]byte

	// FlushCount records how many times Flush was called.
	FlushCount int

	// DrainCount records how many times Drain was called.
	DrainCount int

	flushed     chan struct{}
	flushedOnce sync.Once
}

func (s *Sink) flushCh() chan struct{} {
	s.flushedOnce.Do(func() { s.flushed = make(chan struct{}) })
	return s.flushed
}

// Write implements [audio.Sink].
func (s *Sink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.Written = append(s.Written, append([]byte(nil), pcm...))
	return nil
}

// Drain implements [audio.Sink].
func (s *Sink) Drain(ctx context.Context) error {
	flushed := s.flushCh()
	s.mu.Lock()
	s.DrainCount++
	gate := s.Gate
	s.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return nil
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush implements [audio.Sink].
func (s *Sink) Flush() {
	flushed := s.flushCh()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FlushCount == 0 {
		close(flushed)
	}
	s.FlushCount++
}

// SampleRate implements [audio.Sink].
func (s *Sink) SampleRate() int {
	if s.Rate == 0 {
		return audio.DefaultSampleRate
	}
	return s.Rate
}

// Bytes returns every written chunk concatenated.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, b := range s.Written {
		out = append(out, b...)
	}
	return out
}

// Flushes returns the Flush call count.
func (s *Sink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FlushCount
}

// ─── Frame helpers ────────────────────────────────────────────────────────────

// Silence returns n all-zero frames of size samples at 16 kHz.
func Silence(n, size int) []audio.Frame {
	return Constant(n, size, 0)
}

// Constant returns n frames of size samples, each sample set to amp.
func Constant(n, size int, amp int16) []audio.Frame {
	out := make([]audio.Frame, n)
	for i := range out {
		s := make([]int16, size)
		for j := range s {
			s[j] = amp
		}
		out[i] = audio.Frame{Samples: s, SampleRate: audio.DefaultSampleRate}
	}
	return out
}

// Compile-time interface assertions.
var (
	_ audio.Source   = (*Source)(nil)
	_ audio.Capturer = (*Capturer)(nil)
	_ audio.Sink     = (*Sink)(nil)
)
