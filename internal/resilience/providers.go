package resilience

import (
	"context"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt"
	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
)

// STT presents a chain of transcription backends as one [stt.Provider].
type STT struct {
	chain *Chain[stt.Provider]
}

// NewSTT wraps chain. The chain must hold at least one backend.
func NewSTT(chain *Chain[stt.Provider]) *STT { return &STT{chain: chain} }

// Transcribe implements [stt.Provider].
func (s *STT) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	return Call(ctx, s.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, wav, language)
	})
}

// TTS presents a chain of synthesis backends as one [tts.Provider]. Audio
// from a backend whose rate differs from the primary's is resampled, so
// SampleRate is stable whichever backend answers. Only starting a stream is
// covered by failover.
type TTS struct {
	chain *Chain[tts.Provider]
	rate  int
}

// NewTTS wraps chain. The chain must hold at least one backend.
func NewTTS(chain *Chain[tts.Provider]) *TTS {
	return &TTS{chain: chain, rate: chain.Primary().SampleRate()}
}

// SampleRate implements [tts.Provider].
func (t *TTS) SampleRate() int { return t.rate }

// Synthesize implements [tts.Provider].
func (t *TTS) Synthesize(ctx context.Context, text, voice string) (<-chan []byte, error) {
	type started struct {
		ch   <-chan []byte
		rate int
	}
	s, err := Call(ctx, t.chain, func(p tts.Provider) (started, error) {
		ch, err := p.Synthesize(ctx, text, voice)
		return started{ch: ch, rate: p.SampleRate()}, err
	})
	if err != nil {
		return nil, err
	}
	if s.rate == t.rate {
		return s.ch, nil
	}
	out := make(chan []byte, cap(s.ch))
	go func() {
		defer close(out)
		for pcm := range s.ch {
			select {
			case out <- audio.Resample(pcm, s.rate, t.rate):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// LLM presents a chain of language-model backends as one [llm.Provider].
// Only starting a stream is covered by failover.
type LLM struct {
	chain *Chain[llm.Provider]
}

// NewLLM wraps chain.
func NewLLM(chain *Chain[llm.Provider]) *LLM { return &LLM{chain: chain} }

// StreamCompletion implements [llm.Provider].
func (l *LLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Call(ctx, l.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

var (
	_ stt.Provider = (*STT)(nil)
	_ tts.Provider = (*TTS)(nil)
	_ llm.Provider = (*LLM)(nil)
)
