package openai

import (
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// TestConvertMessage covers the roles the agent puts into a history.
func TestConvertMessage(t *testing.T) {
	tests := []struct {
		name  string
		msg   llm.Message
		check func(t *testing.T, p oai.ChatCompletionMessageParamUnion)
	}{
		{
			name: "system",
			msg:  llm.Message{Role: llm.RoleSystem, Content: "You are Nano."},
			check: func(t *testing.T, p oai.ChatCompletionMessageParamUnion) {
				if p.OfSystem == nil {
					t.Fatal("OfSystem not set")
				}
			},
		},
		{
			name: "user",
			msg:  llm.Message{Role: llm.RoleUser, Content: "what time is it"},
			check: func(t *testing.T, p oai.ChatCompletionMessageParamUnion) {
				if p.OfUser == nil {
					t.Fatal("OfUser not set")
				}
			},
		},
		{
			name: "assistant text",
			msg:  llm.Message{Role: llm.RoleAssistant, Content: "Let me check."},
			check: func(t *testing.T, p oai.ChatCompletionMessageParamUnion) {
				if p.OfAssistant == nil || p.OfAssistant.Content.OfString.Value != "Let me check." {
					t.Fatalf("assistant = %+v", p.OfAssistant)
				}
			},
		},
		{
			name: "assistant tool calls",
			msg: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "set_eye_colour", Arguments: `{"colour":"blue"}`},
			}},
			check: func(t *testing.T, p oai.ChatCompletionMessageParamUnion) {
				if p.OfAssistant == nil || len(p.OfAssistant.ToolCalls) != 1 {
					t.Fatalf("assistant = %+v", p.OfAssistant)
				}
				tc := p.OfAssistant.ToolCalls[0]
				if tc.ID != "call_1" || tc.Function.Name != "set_eye_colour" || tc.Function.Arguments != `{"colour":"blue"}` {
					t.Errorf("tool call = %+v", tc)
				}
			},
		},
		{
			name: "tool result",
			msg:  llm.Message{Role: llm.RoleTool, Content: "ok", ToolCallID: "call_1", Name: "set_eye_colour"},
			check: func(t *testing.T, p oai.ChatCompletionMessageParamUnion) {
				if p.OfTool == nil || p.OfTool.ToolCallID != "call_1" {
					t.Fatalf("tool = %+v", p.OfTool)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := convertMessage(tt.msg)
			if err != nil {
				t.Fatalf("convertMessage: %v", err)
			}
			tt.check(t, p)
		})
	}

	if _, err := convertMessage(llm.Message{Role: "narrator", Content: "x"}); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		model   string
		wantErr bool
	}{
		{"ok", "sk-test", "gpt-4o-mini", false},
		{"missing key", "", "gpt-4o-mini", true},
		{"missing model", "sk-test", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key, tt.model, WithBaseURL("http://127.0.0.1:8080/v1"), WithTimeout(0))
			if (err != nil) != tt.wantErr {
				t.Errorf("New err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
