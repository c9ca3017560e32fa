package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/nanobot-edge/nanobot/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name:    "invalid log level",
			yaml:    minimalYAML + "server:\n  log_level: verbose\n",
			wantSub: "server.log_level",
		},
		{
			name:    "no agents",
			yaml:    "providers:\n  llm: [{name: openai}]\n  stt: [{name: whisper}]\n  tts: [{name: openai}]\n",
			wantSub: "at least one enabled agent",
		},
		{
			name:    "all agents disabled",
			yaml:    strings.Replace(minimalYAML, "- name: Nano", "- name: Nano\n    disabled: true", 1),
			wantSub: "at least one enabled agent",
		},
		{
			name:    "duplicate agent names",
			yaml:    minimalYAML + "  - name: nano\n",
			wantSub: "duplicate of agents[0]",
		},
		{
			name:    "agent wake threshold",
			yaml:    minimalYAML + "    wake_word_threshold: 1.5\n",
			wantSub: "threshold",
		},
		{
			name:    "unknown tool group",
			yaml:    minimalYAML + "    tools: [weather]\n",
			wantSub: `unknown tool group "weather"`,
		},
		{
			name:    "missing llm",
			yaml:    "providers:\n  stt: [{name: whisper}]\n  tts: [{name: openai}]\nagents: [{name: Nano}]\n",
			wantSub: "providers.llm",
		},
		{
			name:    "missing stt",
			yaml:    "providers:\n  llm: [{name: openai}]\n  tts: [{name: openai}]\nagents: [{name: Nano}]\n",
			wantSub: "providers.stt",
		},
		{
			name:    "unnamed chain entry",
			yaml:    strings.Replace(minimalYAML, "tts: [{name: openai}]", "tts: [{name: openai}, {model: x}]", 1),
			wantSub: "providers.tts[1].name",
		},
		{
			name:    "volume out of range",
			yaml:    minimalYAML + "audio:\n  volume: 11\n",
			wantSub: "audio.volume",
		},
		{
			name:    "detector threshold",
			yaml:    minimalYAML + "detector:\n  speech_threshold: 2\n",
			wantSub: "detector",
		},
		{
			name:    "endpoint negative",
			yaml:    minimalYAML + "endpoint:\n  speech_start: -1\n",
			wantSub: "endpoint",
		},
		{
			name:    "postgres without dsn",
			yaml:    minimalYAML + "memory:\n  backend: postgres\n",
			wantSub: "memory.postgres_dsn",
		},
		{
			name:    "unknown memory backend",
			yaml:    minimalYAML + "memory:\n  backend: redis\n",
			wantSub: "memory.backend",
		},
		{
			name:    "mcp stdio without command",
			yaml:    minimalYAML + "mcp:\n  servers:\n    - name: home\n      transport: stdio\n",
			wantSub: "command is required",
		},
		{
			name:    "mcp http without url",
			yaml:    minimalYAML + "mcp:\n  servers:\n    - name: web\n      transport: streamable-http\n",
			wantSub: "url is required",
		},
		{
			name:    "mcp invalid transport",
			yaml:    minimalYAML + "mcp:\n  servers:\n    - name: web\n      transport: carrier-pigeon\n",
			wantSub: "transport",
		},
		{
			name:    "mcp name clashes with group",
			yaml:    minimalYAML + "mcp:\n  servers:\n    - name: eyes\n      transport: stdio\n      command: x\n",
			wantSub: "clashes",
		},
		{
			name:    "indicator colour",
			yaml:    minimalYAML + "indicator:\n  default_colour: ultraviolet\n",
			wantSub: "indicator.default_colour",
		},
		{
			name:    "indicator driver",
			yaml:    minimalYAML + "indicator:\n  driver: gpio\n",
			wantSub: "indicator.driver",
		},
		{
			name:    "youtube target above trigger",
			yaml:    minimalYAML + "youtube:\n  trigger_size_mb: 100\n  target_size_mb: 200\n",
			wantSub: "youtube.target_size_mb",
		},
		{
			name:    "youtube negative size",
			yaml:    minimalYAML + "youtube:\n  trigger_size_mb: -1\n",
			wantSub: "must not be negative",
		},
		{
			name:    "mcp name clashes with youtube",
			yaml:    minimalYAML + "mcp:\n  servers:\n    - name: youtube\n      transport: stdio\n      command: x\n",
			wantSub: "clashes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantSub)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_ConsoleModeSkipsSpeechProviders(t *testing.T) {
	yaml := `
providers:
  llm: [{name: openai}]
conversation:
  console_debug_mode: true
agents:
  - name: Nano
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MCPServerIsToolGroup(t *testing.T) {
	yaml := minimalYAML + "    tools: [home]\nmcp:\n  servers:\n    - name: home\n      transport: stdio\n      command: mcp-home\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_YouTubeGroup(t *testing.T) {
	yaml := minimalYAML + "    tools: [youtube]\nyoutube:\n  data_dir: /var/lib/nanobot/youtube\n  player: [mpv, --no-video]\n"
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(cfg.YouTube.Player, []string{"mpv", "--no-video"}) {
		t.Errorf("player = %v", cfg.YouTube.Player)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	yaml := minimalYAML + "server:\n  log_level: loud\nmemory:\n  backend: redis\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, sub := range []string{"server.log_level", "memory.backend"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error %q is missing %q", err, sub)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	for _, kind := range []string{"llm", "stt", "tts", "vad", "wakeword"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %q", kind)
		}
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "whisper-native") {
		t.Error("whisper-native missing from stt names")
	}
}
