package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  llm.Message
		want func(t *testing.T, got anyllmlib.Message)
	}{
		{
			name: "user",
			msg:  llm.Message{Role: llm.RoleUser, Content: "turn your eyes blue"},
			want: func(t *testing.T, got anyllmlib.Message) {
				if got.Role != "user" || got.ContentString() != "turn your eyes blue" || len(got.ToolCalls) != 0 {
					t.Errorf("got %+v", got)
				}
			},
		},
		{
			name: "assistant tool calls",
			msg: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "set_eye_colour", Arguments: `{"colour":"blue"}`},
			}},
			want: func(t *testing.T, got anyllmlib.Message) {
				if len(got.ToolCalls) != 1 {
					t.Fatalf("tool calls = %d, want 1", len(got.ToolCalls))
				}
				tc := got.ToolCalls[0]
				if tc.ID != "call_1" || tc.Type != "function" || tc.Function.Name != "set_eye_colour" || tc.Function.Arguments != `{"colour":"blue"}` {
					t.Errorf("tool call = %+v", tc)
				}
			},
		},
		{
			name: "tool result keeps id and name",
			msg:  llm.Message{Role: llm.RoleTool, Content: "ok", ToolCallID: "call_1", Name: "set_eye_colour"},
			want: func(t *testing.T, got anyllmlib.Message) {
				if got.Role != "tool" || got.ToolCallID != "call_1" || got.Name != "set_eye_colour" || got.ContentString() != "ok" {
					t.Errorf("got %+v", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, convertMessage(tt.msg))
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr string
	}{
		{"anthropic", "anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, ""},
		{"ollama without key", "ollama", "llama3", nil, ""},
		{"llamacpp without key", "llamacpp", "llama3", nil, ""},
		{"case insensitive", "LlamaFile", "llama3", nil, ""},
		{"empty model", "ollama", "", nil, "model"},
		{"openai has its own package", "openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}, "unsupported backend"},
		{"unknown", "fakecloud", "m", nil, "unsupported backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want one containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestBackends(t *testing.T) {
	got := Backends()
	if !slices.IsSorted(got) {
		t.Errorf("Backends() = %v, want sorted", got)
	}
	for _, want := range []string{"anthropic", "gemini", "ollama", "llamafile"} {
		if !slices.Contains(got, want) {
			t.Errorf("Backends() = %v, missing %q", got, want)
		}
	}
	if slices.Contains(got, "openai") {
		t.Error("openai is served by the openai package")
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.5,
		MaxTokens:    128,
		Tools:        []llm.ToolDefinition{{Name: "get_current_time", Description: "time"}},
	})
	if params.Model != "llama3" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v, want system first", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.5 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "get_current_time" {
		t.Errorf("tools = %+v", params.Tools)
	}

	if bare := p.buildParams(llm.CompletionRequest{}); bare.Temperature != nil || bare.MaxTokens != nil {
		t.Errorf("zero sampling fields set: %+v", bare)
	}
}
