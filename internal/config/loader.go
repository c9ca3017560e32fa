package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/internal/endpoint"
	"github.com/nanobot-edge/nanobot/internal/frontend"
	"github.com/nanobot-edge/nanobot/internal/indicator"
	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/internal/tools/mcp"
	"github.com/nanobot-edge/nanobot/internal/tools/youtube"
	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":      {"openai", "whisper", "whisper-native", "deepgram"},
	"tts":      {"openai", "elevenlabs"},
	"vad":      {"silero", "webrtc", "energy"},
	"wakeword": {"oww"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":9090"
	DefaultHistoryTTLMinutes = 60
	DefaultErrorBackoff      = 5 * time.Second
	DefaultMaxSentence       = 400
	DefaultVolume            = 5
	DefaultMaxMemories       = 100
	DefaultVAD               = "energy"
	DefaultWakeWordBackend   = "oww"
	DefaultYouTubeTriggerMB  = 1024
	DefaultYouTubeTargetMB   = 512
)

// EnvFile is the name of the optional dotenv file loaded from the config
// file's directory.
const EnvFile = ".env"

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// A .env file in the same directory is loaded into the environment first;
// variables already set are not overridden.
func Load(path string) (*Config, error) {
	LoadEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads the dotenv file next to the config file at path. A missing
// file is not an error.
func LoadEnv(path string) {
	envPath := filepath.Join(filepath.Dir(path), EnvFile)
	err := godotenv.Load(envPath)
	switch {
	case err == nil:
		slog.Debug("config: loaded environment file", "path", envPath)
	case errors.Is(err, fs.ErrNotExist):
	default:
		slog.Warn("config: cannot load environment file", "path", envPath, "err", err)
	}
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references,
// applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} in data with the value of the environment
// variable VAR. Unset variables expand to the empty string. A bare $ is left
// alone.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// ApplyDefaults fills zero values of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = DefaultVAD
	}
	if cfg.Providers.WakeWord.Name == "" {
		cfg.Providers.WakeWord.Name = DefaultWakeWordBackend
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Audio.FrameSamples == 0 {
		cfg.Audio.FrameSamples = audio.DefaultFrameSamples
	}
	if cfg.Audio.StallTimeout == 0 {
		cfg.Audio.StallTimeout = 2 * time.Second
	}
	if cfg.Audio.Volume == nil {
		v := DefaultVolume
		cfg.Audio.Volume = &v
	}

	if cfg.Detector.AmplitudeThreshold == 0 {
		cfg.Detector.AmplitudeThreshold = detect.DefaultAmplitudeThreshold
	}
	if cfg.Detector.SpeechThreshold == 0 {
		cfg.Detector.SpeechThreshold = detect.DefaultSpeechThreshold
	}

	fe := frontend.DefaultParams()
	fill(&cfg.FrontEnd.PreBuffer, fe.PreBuffer)
	fill(&cfg.FrontEnd.NoiseActivation, fe.NoiseActivation)
	fill(&cfg.FrontEnd.SpeechConfirmation, fe.SpeechConfirmation)
	fill(&cfg.FrontEnd.AbortSilence, fe.AbortSilence)
	fill(&cfg.FrontEnd.EndSilence, fe.EndSilence)
	fill(&cfg.FrontEnd.MaxSpeechBuffer, fe.MaxSpeechBuffer)

	ep := endpoint.DefaultParams()
	fill(&cfg.Endpoint.PreBuffer, ep.PreBuffer)
	fill(&cfg.Endpoint.SpeechStart, ep.SpeechStart)
	fill(&cfg.Endpoint.EndSilence, ep.EndSilence)
	fill(&cfg.Endpoint.WaitTimeout, ep.WaitTimeout)
	fill(&cfg.Endpoint.MaxDuration, ep.MaxDuration)

	fill(&cfg.Conversation.HistoryTTLMinutes, DefaultHistoryTTLMinutes)
	fill(&cfg.Conversation.ErrorBackoff, DefaultErrorBackoff)
	fill(&cfg.Conversation.MaxSentence, DefaultMaxSentence)

	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = MemoryInProcess
	}
	fill(&cfg.Memory.MaxMemories, DefaultMaxMemories)

	if cfg.Indicator.Driver == "" {
		cfg.Indicator.Driver = IndicatorLog
	}
	if cfg.Indicator.DefaultColour == "" {
		cfg.Indicator.DefaultColour = indicator.White.String()
	}

	fill(&cfg.YouTube.TriggerSizeMB, DefaultYouTubeTriggerMB)
	fill(&cfg.YouTube.TargetSizeMB, DefaultYouTubeTargetMB)
	fill(&cfg.YouTube.CleanupInterval, youtube.DefaultCleanupInterval)
}

func fill[T int | time.Duration](v *T, def T) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	console := cfg.Conversation.ConsoleDebugMode
	errs = append(errs, validateChain("llm", cfg.Providers.LLM, true)...)
	errs = append(errs, validateChain("stt", cfg.Providers.STT, !console)...)
	errs = append(errs, validateChain("tts", cfg.Providers.TTS, !console)...)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wakeword", cfg.Providers.WakeWord.Name)

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must be positive", cfg.Audio.FrameSamples))
	}
	if v := cfg.Audio.Volume; v != nil && (*v < 0 || *v > audio.MaxVolume) {
		errs = append(errs, fmt.Errorf("audio.volume %d is out of range [0, %d]", *v, audio.MaxVolume))
	}

	// Detection
	if err := cfg.Detector.Detect().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	if err := cfg.FrontEnd.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("frontend: %w", err))
	}
	if err := cfg.Endpoint.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	}

	// MCP servers; their names double as tool groups.
	groups := []string{tools.GroupSystem, tools.GroupEyes, tools.GroupDateTime, tools.GroupMemory, tools.GroupWordMaths, tools.GroupYouTube}
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if slices.Contains(groups, srv.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q clashes with a tool group", prefix, srv.Name))
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && strings.TrimSpace(srv.Command) == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
		groups = append(groups, srv.Name)
	}

	// Agents
	enabled := 0
	seen := make(map[string]int, len(cfg.Agents))
	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		key := strings.ToLower(strings.TrimSpace(a.Name))
		if prev, ok := seen[key]; ok && key != "" {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, a.Name, prev))
		}
		seen[key] = i
		if err := a.Profile().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		for _, g := range a.Tools {
			if !slices.Contains(groups, g) {
				errs = append(errs, fmt.Errorf("%s.tools: unknown tool group %q", prefix, g))
			}
			if g == tools.GroupWordMaths && cfg.WordMaths.ProblemsPath == "" {
				slog.Warn("agent enables wordmaths but word_maths.problems_path is empty", "agent", a.Name)
			}
			if g == tools.GroupYouTube && cfg.YouTube.DataDir == "" {
				slog.Warn("agent enables youtube but youtube.data_dir is empty", "agent", a.Name)
			}
		}
		if !a.Disabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("agents: at least one enabled agent is required"))
	}

	// Memory
	switch cfg.Memory.Backend {
	case "", MemoryInProcess:
	case MemoryPostgres:
		if cfg.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: memory, postgres", cfg.Memory.Backend))
	}
	if cfg.Memory.MaxMemories < 0 {
		errs = append(errs, fmt.Errorf("memory.max_memories %d must not be negative", cfg.Memory.MaxMemories))
	}

	// Indicator
	switch cfg.Indicator.Driver {
	case "", IndicatorLog, IndicatorConsole:
	default:
		errs = append(errs, fmt.Errorf("indicator.driver %q is invalid; valid values: log, console", cfg.Indicator.Driver))
	}
	if cfg.Indicator.DefaultColour != "" {
		if _, err := indicator.ParseColour(cfg.Indicator.DefaultColour); err != nil {
			errs = append(errs, fmt.Errorf("indicator.default_colour: %w", err))
		}
	}

	// YouTube
	yt := cfg.YouTube
	if yt.TriggerSizeMB < 0 || yt.TargetSizeMB < 0 {
		errs = append(errs, errors.New("youtube: cache sizes must not be negative"))
	} else if yt.TargetSizeMB > yt.TriggerSizeMB {
		errs = append(errs, fmt.Errorf("youtube.target_size_mb %d exceeds trigger_size_mb %d", yt.TargetSizeMB, yt.TriggerSizeMB))
	}
	if yt.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("youtube.cleanup_interval %s must not be negative", yt.CleanupInterval))
	}

	return errors.Join(errs...)
}

// validateChain checks an ordered provider list.
func validateChain(kind string, entries []ProviderEntry, required bool) []error {
	var errs []error
	if required && len(entries) == 0 {
		errs = append(errs, fmt.Errorf("providers.%s: at least one provider is required", kind))
	}
	for i, e := range entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
