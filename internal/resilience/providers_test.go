package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nanobot-edge/nanobot/internal/resilience"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
	llmmock "github.com/nanobot-edge/nanobot/pkg/provider/llm/mock"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt"
	sttmock "github.com/nanobot-edge/nanobot/pkg/provider/stt/mock"
	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
	ttsmock "github.com/nanobot-edge/nanobot/pkg/provider/tts/mock"
)

var errDown = errors.New("backend down")

func TestSTT_FailsOver(t *testing.T) {
	primary := &sttmock.Provider{Err: errDown}
	secondary := &sttmock.Provider{Text: "hello"}
	chain := resilience.NewChain[stt.Provider](resilience.BreakerConfig{})
	chain.Add("whisper", primary)
	chain.Add("openai", secondary)

	got, err := resilience.NewSTT(chain).Transcribe(context.Background(), []byte("wav"), "en")
	if err != nil || got != "hello" {
		t.Fatalf("Transcribe = %q, %v", got, err)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d", primary.CallCount(), secondary.CallCount())
	}
	if secondary.Calls[0].Language != "en" {
		t.Errorf("language = %q", secondary.Calls[0].Language)
	}
}

func TestTTS_ResamplesFallbackAudio(t *testing.T) {
	primary := &ttsmock.Provider{Err: errDown, Rate: 16000}
	secondary := &ttsmock.Provider{Rate: 32000, Chunks: [][]byte{make([]byte, 64)}}
	chain := resilience.NewChain[tts.Provider](resilience.BreakerConfig{})
	chain.Add("elevenlabs", primary)
	chain.Add("openai", secondary)

	p := resilience.NewTTS(chain)
	if p.SampleRate() != 16000 {
		t.Fatalf("SampleRate = %d, want primary rate", p.SampleRate())
	}
	ch, err := p.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var n int
	for c := range ch {
		n += len(c)
	}
	// 32 samples at 32 kHz become 16 samples at 16 kHz.
	if n != 32 {
		t.Errorf("got %d bytes, want 32", n)
	}
}

func TestTTS_SameRatePassesThrough(t *testing.T) {
	primary := &ttsmock.Provider{Chunks: [][]byte{{1, 2, 3, 4}}}
	chain := resilience.NewChain[tts.Provider](resilience.BreakerConfig{})
	chain.Add("primary", primary)

	ch, err := resilience.NewTTS(chain).Synthesize(context.Background(), "hi", "v")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var got []byte
	for c := range ch {
		got = append(got, c...)
	}
	if string(got) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("audio = %v", got)
	}
}

func TestLLM_FailsOver(t *testing.T) {
	primary := &llmmock.Provider{StreamErr: errDown}
	secondary := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "hi"}}}
	chain := resilience.NewChain[llm.Provider](resilience.BreakerConfig{})
	chain.Add("openai", primary)
	chain.Add("ollama", secondary)
	p := resilience.NewLLM(chain)

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "hi" {
		t.Errorf("text = %q", text)
	}
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary calls = %d, want 1", n)
	}
}
