package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStalled is returned by [Source.NextFrame] when no frame arrived
	// within the source's stall timeout.
	ErrStalled = errors.New("audio: source stalled")

	// ErrClosed is returned by [Source.NextFrame] after Close.
	ErrClosed = errors.New("audio: source closed")

	// ErrDevice marks capture or playback hardware that cannot be opened or
	// failed mid-stream.
	ErrDevice = errors.New("audio: device unavailable")
)

// Source is a pull-based stream of fixed-size frames.
//
// NextFrame blocks until the next frame is available, ctx is cancelled, the
// source is closed, or the source's stall timeout elapses. Frames are
// returned strictly in arrival order.
type Source interface {
	NextFrame(ctx context.Context) (Frame, error)

	// Close releases the source and unblocks a pending NextFrame. It is safe
	// to call more than once.
	Close() error
}

// Capturer opens the capture device. Only one [Source] obtained from a
// Capturer may be open at a time; the previous one must be closed first.
type Capturer interface {
	Open(ctx context.Context) (Source, error)
}

// Sink plays little-endian PCM at a fixed sample rate.
//
// Implementations must be safe for concurrent use: Flush is called from a
// different goroutine than Write when playback is interrupted.
type Sink interface {
	// Write queues pcm for playback. It may block while the device buffer is
	// full and returns early when ctx is cancelled.
	Write(ctx context.Context, pcm []byte) error

	// Drain blocks until every queued sample has been played.
	Drain(ctx context.Context) error

	// Flush drops all queued audio immediately.
	Flush()

	// SampleRate returns the rate Write expects.
	SampleRate() int
}

// StreamSource turns an arbitrary-length PCM byte stream (typically a device
// callback) into fixed-size frames. The producer calls Write; a single
// consumer calls NextFrame.
type StreamSource struct {
	sampleRate   int
	frameSamples int
	stall        time.Duration

	frames chan Frame
	done   chan struct{}

	mu      sync.Mutex
	pending []int16
	seq     uint64
	closed  bool

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// StreamOption configures a [StreamSource].
type StreamOption func(*StreamSource)

// WithStallTimeout sets how long NextFrame waits for a frame before returning
// [ErrStalled]. Zero disables the stall check.
func WithStallTimeout(d time.Duration) StreamOption {
	return func(s *StreamSource) { s.stall = d }
}

// WithQueueDepth sets how many complete frames may wait for the consumer
// before new frames are dropped. Defaults to 64 (about two seconds at 16 kHz).
func WithQueueDepth(n int) StreamOption {
	return func(s *StreamSource) {
		if n > 0 {
			s.frames = make(chan Frame, n)
		}
	}
}

// NewStreamSource returns a StreamSource producing frames of frameSamples
// samples at sampleRate. Non-positive arguments fall back to
// [DefaultSampleRate] and [DefaultFrameSamples].
func NewStreamSource(sampleRate, frameSamples int, opts ...StreamOption) *StreamSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	s := &StreamSource{
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		stall:        2 * time.Second,
		frames:       make(chan Frame, 64),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Write appends little-endian PCM to the stream and publishes every complete
// frame. It never blocks: when the consumer falls behind, whole frames are
// dropped and counted by [StreamSource.Dropped].
func (s *StreamSource) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, BytesToSamples(pcm)...)
	for len(s.pending) >= s.frameSamples {
		samples := make([]int16, s.frameSamples)
		copy(samples, s.pending[:s.frameSamples])
		s.pending = s.pending[s.frameSamples:]
		s.seq++
		f := Frame{Samples: samples, SampleRate: s.sampleRate, Seq: s.seq}
		select {
		case s.frames <- f:
		default:
			s.dropped.Add(1)
		}
	}
}

// NextFrame implements [Source].
func (s *StreamSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	var stall <-chan time.Time
	if s.stall > 0 {
		t := time.NewTimer(s.stall)
		defer t.Stop()
		stall = t.C
	}
	select {
	case f := <-s.frames:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.done:
		return Frame{}, ErrClosed
	case <-stall:
		return Frame{}, ErrStalled
	}
}

// Close implements [Source].
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Dropped returns the number of frames discarded because the consumer fell
// behind.
func (s *StreamSource) Dropped() uint64 { return s.dropped.Load() }

// Compile-time interface assertion.
var _ Source = (*StreamSource)(nil)
