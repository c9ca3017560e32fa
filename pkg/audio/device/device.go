// Package device implements [audio.Capturer] and [audio.Sink] on top of the
// miniaudio bindings in github.com/gen2brain/malgo.
//
// A single [Context] owns the miniaudio backend. The capture side opens the
// default microphone on demand and releases it on Close, so only one stage
// holds the device at a time. The playback side keeps the default output
// device running and feeds it from an internal buffer.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// Context wraps the miniaudio context shared by capture and playback.
type Context struct {
	mctx *malgo.AllocatedContext
}

// NewContext initialises the miniaudio backend.
func NewContext() (*Context, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("malgo", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w: %w", audio.ErrDevice, err)
	}
	return &Context{mctx: mctx}, nil
}

// Close releases the miniaudio backend. Devices must be closed first.
func (c *Context) Close() error {
	if c.mctx == nil {
		return nil
	}
	err := c.mctx.Uninit()
	c.mctx.Free()
	c.mctx = nil
	if err != nil {
		return fmt.Errorf("device: uninit context: %w", err)
	}
	return nil
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture opens the default microphone as an [audio.Source].
type Capture struct {
	ctx          *Context
	sampleRate   int
	frameSamples int
	stall        time.Duration

	mu   sync.Mutex
	open *captureSource
}

// CaptureOption configures a [Capture].
type CaptureOption func(*Capture)

// WithSampleRate sets the capture rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) CaptureOption {
	return func(c *Capture) { c.sampleRate = rate }
}

// WithFrameSamples sets the number of samples per frame. Defaults to 512.
func WithFrameSamples(n int) CaptureOption {
	return func(c *Capture) { c.frameSamples = n }
}

// WithStallTimeout sets how long NextFrame waits before reporting
// [audio.ErrStalled]. Defaults to 2 s.
func WithStallTimeout(d time.Duration) CaptureOption {
	return func(c *Capture) { c.stall = d }
}

// NewCapture returns a Capture bound to ctx.
func NewCapture(ctx *Context, opts ...CaptureOption) *Capture {
	c := &Capture{
		ctx:          ctx,
		sampleRate:   audio.DefaultSampleRate,
		frameSamples: audio.DefaultFrameSamples,
		stall:        2 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open implements [audio.Capturer]. It fails when a previously opened source
// has not been closed.
func (c *Capture) Open(ctx context.Context) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open != nil {
		return nil, fmt.Errorf("device: capture already open: %w", audio.ErrDevice)
	}

	stream := audio.NewStreamSource(c.sampleRate, c.frameSamples, audio.WithStallTimeout(c.stall))

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.sampleRate)
	cfg.Alsa.NoMMap = 1

	onData := func(_, in []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		stream.Write(in[:int(framecount)*2])
	}

	dev, err := malgo.InitDevice(c.ctx.mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, fmt.Errorf("device: init capture: %w: %w", audio.ErrDevice, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("device: start capture: %w: %w", audio.ErrDevice, err)
	}

	src := &captureSource{StreamSource: stream, dev: dev}
	src.release = func() {
		c.mu.Lock()
		if c.open == src {
			c.open = nil
		}
		c.mu.Unlock()
	}
	c.open = src
	slog.Debug("capture device opened", "sample_rate", c.sampleRate, "frame_samples", c.frameSamples)
	return src, nil
}

type captureSource struct {
	*audio.StreamSource
	dev       *malgo.Device
	release   func()
	closeOnce sync.Once
}

// Close stops and releases the capture device.
func (s *captureSource) Close() error {
	s.closeOnce.Do(func() {
		_ = s.dev.Stop()
		s.dev.Uninit()
		_ = s.StreamSource.Close()
		if dropped := s.Dropped(); dropped > 0 {
			slog.Warn("capture frames dropped", "count", dropped)
		}
		s.release()
	})
	return nil
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// maxQueuedSeconds bounds the playback buffer.
const maxQueuedSeconds = 2

// Playback plays PCM through the default output device.
type Playback struct {
	dev        *malgo.Device
	sampleRate int

	mu      sync.Mutex
	buf     []byte
	changed chan struct{}
}

// NewPlayback opens and starts the default output device at sampleRate.
func NewPlayback(ctx *Context, sampleRate int) (*Playback, error) {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	p := &Playback{sampleRate: sampleRate, changed: make(chan struct{}, 1)}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.mctx.Context, cfg, malgo.DeviceCallbacks{Data: p.onData})
	if err != nil {
		return nil, fmt.Errorf("device: init playback: %w: %w", audio.ErrDevice, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("device: start playback: %w: %w", audio.ErrDevice, err)
	}
	p.dev = dev
	return p, nil
}

func (p *Playback) onData(out, _ []byte, _ uint32) {
	p.mu.Lock()
	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	p.mu.Unlock()
	clear(out[n:])
	if n > 0 {
		p.notify()
	}
}

func (p *Playback) notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// Write implements [audio.Sink].
func (p *Playback) Write(ctx context.Context, pcm []byte) error {
	limit := p.sampleRate * 2 * maxQueuedSeconds
	for {
		p.mu.Lock()
		if len(p.buf) < limit {
			p.buf = append(p.buf, pcm...)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.changed:
		}
	}
}

// Drain implements [audio.Sink].
func (p *Playback) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		empty := len(p.buf) == 0
		p.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.changed:
		}
	}
}

// Flush implements [audio.Sink].
func (p *Playback) Flush() {
	p.mu.Lock()
	p.buf = nil
	p.mu.Unlock()
	p.notify()
}

// SampleRate implements [audio.Sink].
func (p *Playback) SampleRate() int { return p.sampleRate }

// Close stops the output device.
func (p *Playback) Close() error {
	if p.dev == nil {
		return nil
	}
	_ = p.dev.Stop()
	p.dev.Uninit()
	p.dev = nil
	return nil
}

// Compile-time interface assertions.
var (
	_ audio.Capturer = (*Capture)(nil)
	_ audio.Sink     = (*Playback)(nil)
)
