package app

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nanobot-edge/nanobot/internal/config"
	"github.com/nanobot-edge/nanobot/internal/resilience"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm/anyllm"
	oallm "github.com/nanobot-edge/nanobot/pkg/provider/llm/openai"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt/deepgram"
	oastt "github.com/nanobot-edge/nanobot/pkg/provider/stt/openai"
	"github.com/nanobot-edge/nanobot/pkg/provider/stt/whisper"
	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
	"github.com/nanobot-edge/nanobot/pkg/provider/tts/elevenlabs"
	oatts "github.com/nanobot-edge/nanobot/pkg/provider/tts/openai"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad/energy"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad/silero"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad/webrtc"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword/oww"
)

// Providers holds the constructed providers. STT, TTS and LLM are fallback
// chains when more than one entry is configured.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
	VAD vad.Scorer

	// Spotter is the initial wake-word spotter. When nil, the app builds one
	// with its spotter factory.
	Spotter wakeword.Spotter

	// Breakers holds the circuit breakers of each chain keyed by kind
	// ("llm", "stt", "tts") for readiness checks.
	Breakers map[string][]*resilience.Breaker
}

// RegisterBuiltins wires every provider implementation shipped with nanobot
// into reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	// Everything else goes through any-llm. Local servers (ollama, llamacpp,
	// llamafile) take a base URL and no key.
	for _, name := range anyllm.Backends() {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oastt.WithModel(e.Model))
		}
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if prompt := e.String("prompt", ""); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, oastt.WithTimeout(d))
		}
		return oastt.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.String("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if kw := e.Strings("keywords"); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, deepgram.WithTimeout(d))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if e.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, oatts.WithModel(e.Model))
		}
		if voice := e.String("voice", ""); voice != "" {
			opts = append(opts, oatts.WithVoice(voice))
		}
		if speed := e.Float("speed", 0); speed > 0 {
			opts = append(opts, oatts.WithSpeed(speed))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, oatts.WithTimeout(d))
		}
		return oatts.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.String("output_format", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if voice := e.String("voice", ""); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("silero", func(e config.ProviderEntry) (vad.Scorer, error) {
		var opts []silero.Option
		if lib := e.String("library_path", ""); lib != "" {
			opts = append(opts, silero.WithLibraryPath(lib))
		}
		return silero.New(e.Model, opts...)
	})

	reg.RegisterVAD("webrtc", func(e config.ProviderEntry) (vad.Scorer, error) {
		return webrtc.New(
			webrtc.WithMode(e.Int("mode", 2)),
			webrtc.WithSampleRate(e.Int("sample_rate", 16000)),
		)
	})

	reg.RegisterVAD("energy", func(e config.ProviderEntry) (vad.Scorer, error) {
		var opts []energy.Option
		if floor, ceiling := e.Float("floor", 0), e.Float("ceiling", 0); ceiling > floor {
			opts = append(opts, energy.WithRange(floor, ceiling))
		}
		if w := e.Int("window", 0); w > 0 {
			opts = append(opts, energy.WithWindow(w))
		}
		return energy.New(opts...)
	})

	// ── Wake word ─────────────────────────────────────────────────────────────
	reg.RegisterWakeWord("oww", func(e config.ProviderEntry, profiles []wakeword.Profile) (wakeword.Spotter, error) {
		var opts []oww.Option
		if lib := e.String("library_path", ""); lib != "" {
			opts = append(opts, oww.WithLibraryPath(lib))
		}
		return oww.New(e.String("model_dir", e.Model), profiles, opts...)
	})
}

// BuildProviders instantiates the providers named in cfg. STT and TTS are
// skipped in console mode.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{Breakers: make(map[string][]*resilience.Breaker)}
	breaker := resilience.BreakerConfig{OnStateChange: logBreaker}

	llmChain, err := buildChain(cfg.Providers.LLM, breaker, "llm", reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLM = resilience.NewLLM(llmChain)
	ps.Breakers["llm"] = llmChain.Breakers()

	if cfg.Conversation.ConsoleDebugMode {
		return ps, nil
	}

	sttChain, err := buildChain(cfg.Providers.STT, breaker, "stt", reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	ps.STT = resilience.NewSTT(sttChain)
	ps.Breakers["stt"] = sttChain.Breakers()

	ttsChain, err := buildChain(cfg.Providers.TTS, breaker, "tts", reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	ps.TTS = resilience.NewTTS(ttsChain)
	ps.Breakers["tts"] = ttsChain.Breakers()

	ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)
	return ps, nil
}

// buildChain creates every entry of one kind and links them in order.
func buildChain[T any](entries []config.ProviderEntry, cfg resilience.BreakerConfig, kind string, create func(config.ProviderEntry) (T, error)) (*resilience.Chain[T], error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("app: no %s provider configured", kind)
	}
	chain := resilience.NewChain[T](cfg)
	for i, e := range entries {
		p, err := create(e)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				return nil, fmt.Errorf("app: %s provider %q: %w", kind, e.Name, err)
			}
			return nil, fmt.Errorf("app: create %s provider %q: %w", kind, e.Name, err)
		}
		name := e.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", e.Name, i)
		}
		chain.Add(name, p)
		slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model, "position", i)
	}
	return chain, nil
}

func logBreaker(name string, from, to resilience.State) {
	if to == resilience.StateOpen {
		slog.Warn("provider circuit opened", "provider", name, "from", from)
		return
	}
	slog.Info("provider circuit state changed", "provider", name, "from", from, "to", to)
}
