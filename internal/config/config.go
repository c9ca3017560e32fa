// Package config provides the configuration schema, loader, watcher and
// provider registry for the nanobot voice assistant.
package config

import (
	"log/slog"
	"time"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/internal/endpoint"
	"github.com/nanobot-edge/nanobot/internal/frontend"
	"github.com/nanobot-edge/nanobot/internal/tools/mcp"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// MemoryBackend selects where remembered facts are stored.
type MemoryBackend string

const (
	MemoryInProcess MemoryBackend = "memory"
	MemoryPostgres  MemoryBackend = "postgres"
)

// IndicatorDriver selects how the status colour is shown.
type IndicatorDriver string

const (
	IndicatorLog     IndicatorDriver = "log"
	IndicatorConsole IndicatorDriver = "console"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Audio        AudioConfig        `yaml:"audio"`
	Detector     DetectorConfig     `yaml:"detector"`
	FrontEnd     FrontEndConfig     `yaml:"frontend"`
	Endpoint     EndpointConfig     `yaml:"endpoint"`
	Conversation ConversationConfig `yaml:"conversation"`
	Agents       []AgentConfig      `yaml:"agents"`
	Memory       MemoryConfig       `yaml:"memory"`
	MCP          MCPConfig          `yaml:"mcp"`
	Indicator    IndicatorConfig    `yaml:"indicator"`
	System       SystemConfig       `yaml:"system"`
	WordMaths    WordMathsConfig    `yaml:"word_maths"`
	YouTube      YouTubeConfig      `yaml:"youtube"`
}

// ServerConfig holds the health and metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares the provider implementations per pipeline stage.
// STT, TTS and LLM take an ordered list: the first entry is primary and the
// rest are fallbacks tried when it fails.
type ProvidersConfig struct {
	LLM      []ProviderEntry `yaml:"llm"`
	STT      []ProviderEntry `yaml:"stt"`
	TTS      []ProviderEntry `yaml:"tts"`
	VAD      ProviderEntry   `yaml:"vad"`
	WakeWord ProviderEntry   `yaml:"wakeword"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider, or a model file path for
	// local backends.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// String returns the option key as a string, or def when missing.
func (e ProviderEntry) String(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the option key as an int, or def when missing.
func (e ProviderEntry) Int(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Float returns the option key as a float64, or def when missing.
func (e ProviderEntry) Float(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// Duration returns the option key parsed as a duration, or def when missing
// or malformed.
func (e ProviderEntry) Duration(key string, def time.Duration) time.Duration {
	if s, ok := e.Options[key].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return def
}

// Strings returns the option key as a string list.
func (e ProviderEntry) Strings(key string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AudioConfig describes the capture and playback devices.
type AudioConfig struct {
	// SampleRate of captured audio in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSamples is the number of samples per frame. Default 512.
	FrameSamples int `yaml:"frame_samples"`

	// StallTimeout fails a capture that delivers no frame for this long.
	StallTimeout time.Duration `yaml:"stall_timeout"`

	// PlaybackRate is the speaker sample rate. Zero uses the TTS rate.
	PlaybackRate int `yaml:"playback_rate"`

	// Volume is the playback level in [0, 10]. Nil uses 5.
	Volume *int `yaml:"volume"`
}

// DetectorConfig tunes the shared amplitude and VAD detector.
type DetectorConfig struct {
	AmplitudeThreshold int     `yaml:"amplitude_threshold"`
	SpeechThreshold    float32 `yaml:"speech_threshold"`
}

// Detect converts c to a detector configuration.
func (c DetectorConfig) Detect() detect.Config {
	return detect.Config{AmplitudeThreshold: c.AmplitudeThreshold, SpeechThreshold: c.SpeechThreshold}
}

// FrontEndConfig holds the wake front end frame counts.
type FrontEndConfig struct {
	PreBuffer          int `yaml:"pre_buffer"`
	NoiseActivation    int `yaml:"noise_activation"`
	SpeechConfirmation int `yaml:"speech_confirmation"`
	AbortSilence       int `yaml:"abort_silence"`
	EndSilence         int `yaml:"end_silence"`
	MaxSpeechBuffer    int `yaml:"max_speech_buffer"`
}

// Params converts c to front end parameters.
func (c FrontEndConfig) Params() frontend.Params {
	return frontend.Params{
		PreBuffer:          c.PreBuffer,
		NoiseActivation:    c.NoiseActivation,
		SpeechConfirmation: c.SpeechConfirmation,
		AbortSilence:       c.AbortSilence,
		EndSilence:         c.EndSilence,
		MaxSpeechBuffer:    c.MaxSpeechBuffer,
	}
}

// EndpointConfig holds the utterance capture limits.
type EndpointConfig struct {
	PreBuffer   int           `yaml:"pre_buffer"`
	SpeechStart int           `yaml:"speech_start"`
	EndSilence  int           `yaml:"end_silence"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// Params converts c to endpointer parameters.
func (c EndpointConfig) Params() endpoint.Params {
	return endpoint.Params{
		PreBuffer:   c.PreBuffer,
		SpeechStart: c.SpeechStart,
		EndSilence:  c.EndSilence,
		WaitTimeout: c.WaitTimeout,
		MaxDuration: c.MaxDuration,
	}
}

// ConversationConfig controls the orchestrator.
type ConversationConfig struct {
	// HistoryTTLMinutes clears the chat history when a wake arrives this
	// long after the last turn. Default 60; negative disables expiry.
	HistoryTTLMinutes int `yaml:"history_ttl_minutes"`

	// ErrorBackoff is the pause after a failed cycle. Default 5s.
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// Language is an ISO-639-1 hint for transcription.
	Language string `yaml:"language"`

	// GlobalInstructions are prepended to every agent's instructions.
	GlobalInstructions string `yaml:"global_instructions"`

	// MaxSentence caps the characters per synthesized chunk. Default 400.
	MaxSentence int `yaml:"max_sentence"`

	// ConsoleDebugMode replaces audio with stdin and stdout text.
	ConsoleDebugMode bool `yaml:"console_debug_mode"`
}

// HistoryTTL returns the history expiry as a duration. Zero disables expiry.
func (c ConversationConfig) HistoryTTL() time.Duration {
	if c.HistoryTTLMinutes < 0 {
		return 0
	}
	return time.Duration(c.HistoryTTLMinutes) * time.Minute
}

// AgentConfig describes one assistant persona.
type AgentConfig struct {
	Name         string  `yaml:"name"`
	Disabled     bool    `yaml:"disabled"`
	Instructions string  `yaml:"instructions"`
	Temperature  float64 `yaml:"temperature"`
	TopP         float64 `yaml:"top_p"`
	MaxTokens    int     `yaml:"max_tokens"`
	MaxHistory   int     `yaml:"max_history"`

	WakeWord             string  `yaml:"wake_word"`
	WakeWordThreshold    float32 `yaml:"wake_word_threshold"`
	WakeWordTriggerLevel int     `yaml:"wake_word_trigger_level"`
	StopWord             string  `yaml:"stop_word"`

	// Voice is passed to the speech synthesiser.
	Voice string `yaml:"voice"`

	// Tools lists the enabled tool groups: system, eyes, datetime, memory,
	// wordmaths, or the name of an MCP server.
	Tools []string `yaml:"tools"`
}

// Profile converts a to an agent profile with defaults applied.
func (a AgentConfig) Profile() agent.Profile {
	p := agent.Profile{
		Name:                 a.Name,
		Disabled:             a.Disabled,
		Instructions:         a.Instructions,
		Temperature:          a.Temperature,
		TopP:                 a.TopP,
		MaxTokens:            a.MaxTokens,
		MaxHistory:           a.MaxHistory,
		WakeWord:             a.WakeWord,
		WakeWordThreshold:    a.WakeWordThreshold,
		WakeWordTriggerLevel: a.WakeWordTriggerLevel,
		StopWord:             a.StopWord,
		Voice:                a.Voice,
		Tools:                append([]string(nil), a.Tools...),
	}
	p.ApplyDefaults()
	return p
}

// MemoryConfig selects the store behind the memory tools.
type MemoryConfig struct {
	// Backend is "memory" (default) or "postgres".
	Backend MemoryBackend `yaml:"backend"`

	// PostgresDSN is required for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MaxMemories caps stored facts; the least used is evicted. Default 100.
	MaxMemories int `yaml:"max_memories"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name identifies the server and becomes its tool group and prefix.
	Name string `yaml:"name"`

	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable with arguments for stdio servers.
	Command string `yaml:"command"`

	// URL is the endpoint of streamable-http servers.
	URL string `yaml:"url"`

	// Env adds variables to a stdio subprocess.
	Env map[string]string `yaml:"env"`

	// Timeout caps one tool call.
	Timeout time.Duration `yaml:"timeout"`
}

// Server converts c to an MCP client server configuration.
func (c MCPServerConfig) Server() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		Command:   c.Command,
		Env:       c.Env,
		URL:       c.URL,
		Timeout:   c.Timeout,
	}
}

// IndicatorConfig controls the status colour.
type IndicatorConfig struct {
	Driver IndicatorDriver `yaml:"driver"`

	// DefaultColour is shown when no other state applies. Default white.
	DefaultColour string `yaml:"default_colour"`
}

// SystemConfig holds the host commands run by the turn_off and restart tools.
type SystemConfig struct {
	ShutdownCommand []string `yaml:"shutdown_command"`
	RestartCommand  []string `yaml:"restart_command"`
}

// WordMathsConfig points at the word problem set.
type WordMathsConfig struct {
	// ProblemsPath is a JSON file of problems. Empty disables the tool group.
	ProblemsPath string `yaml:"problems_path"`
}

// YouTubeConfig controls the youtube tool group and its audio cache.
type YouTubeConfig struct {
	// DataDir caches downloaded audio. Empty disables the tool group.
	DataDir string `yaml:"data_dir"`

	// Downloader is the yt-dlp command line. Default ["yt-dlp"].
	Downloader []string `yaml:"downloader"`

	// Player is the command the cached file is appended to. Default ["mplayer"].
	Player []string `yaml:"player"`

	// The cache is pruned, oldest first, down to TargetSizeMB once it grows
	// past TriggerSizeMB. Defaults 1024 and 512.
	TriggerSizeMB int `yaml:"trigger_size_mb"`
	TargetSizeMB  int `yaml:"target_size_mb"`

	// CleanupInterval is how often the cache size is checked. Default 15m.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}
