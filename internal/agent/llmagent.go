package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// DefaultMaxToolRounds bounds the model calls per Respond.
const DefaultMaxToolRounds = 5

// ErrModel is wrapped by errors reported inside the model stream.
var ErrModel = errors.New("agent: model error")

// LLMAgent is an Agent backed by an [llm.Provider]. Safe for concurrent use.
type LLMAgent struct {
	profile      Profile
	provider     llm.Provider
	registry     *tools.Registry
	instructions string
	maxRounds    int
	maxSentence  int
}

// Option configures an LLMAgent.
type Option func(*LLMAgent)

// WithTools lets the agent call the tools of its profile's groups from r.
func WithTools(r *tools.Registry) Option {
	return func(a *LLMAgent) { a.registry = r }
}

// WithGlobalInstructions sets instructions placed before the profile's own.
func WithGlobalInstructions(s string) Option {
	return func(a *LLMAgent) { a.instructions = s }
}

// WithMaxToolRounds overrides [DefaultMaxToolRounds].
func WithMaxToolRounds(n int) Option {
	return func(a *LLMAgent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithMaxSentence overrides [DefaultMaxSentence].
func WithMaxSentence(n int) Option {
	return func(a *LLMAgent) {
		if n > 0 {
			a.maxSentence = n
		}
	}
}

// New returns an LLMAgent for p. p is validated after defaults are applied.
func New(p Profile, provider llm.Provider, opts ...Option) (*LLMAgent, error) {
	if provider == nil {
		return nil, errors.New("agent: provider must not be nil")
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a := &LLMAgent{
		profile:     p,
		provider:    provider,
		maxRounds:   DefaultMaxToolRounds,
		maxSentence: DefaultMaxSentence,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Profile implements Agent.
func (a *LLMAgent) Profile() Profile { return a.profile }

// SystemPrompt returns the global and profile instructions joined.
func (a *LLMAgent) SystemPrompt() string {
	var parts []string
	for _, s := range []string{a.instructions, a.profile.Instructions} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (a *LLMAgent) toolDefinitions() []llm.ToolDefinition {
	if a.registry == nil || len(a.profile.Tools) == 0 {
		return nil
	}
	return a.registry.Definitions(a.profile.Tools...)
}

// Respond implements Agent. Tool calls requested by the model are executed
// and their results fed back until the model answers in text. A failing
// tool is reported to the model as "error: ..." rather than aborting the
// turn. The last round offers no tools so the model has to answer.
func (a *LLMAgent) Respond(ctx context.Context, history []llm.Message, message string, onText func(string)) (string, error) {
	if onText == nil {
		onText = func(string) {}
	}
	ctx = tools.WithCaller(ctx, a.profile.Name)

	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	defs := a.toolDefinitions()
	sentences := &sentenceBuffer{max: a.maxSentence}
	var reply strings.Builder

	for round := 1; ; round++ {
		req := llm.CompletionRequest{
			Messages:     msgs,
			SystemPrompt: a.SystemPrompt(),
			Temperature:  a.profile.Temperature,
			TopP:         a.profile.TopP,
			MaxTokens:    a.profile.MaxTokens,
		}
		if round < a.maxRounds {
			req.Tools = defs
		}

		text, calls, err := a.stream(ctx, req, sentences, onText)
		if t := strings.TrimSpace(text); t != "" {
			if reply.Len() > 0 {
				reply.WriteByte(' ')
			}
			reply.WriteString(t)
		}
		if err != nil {
			return reply.String(), err
		}
		if len(calls) == 0 || round >= a.maxRounds {
			if len(calls) > 0 {
				slog.Warn("agent: tool rounds exhausted, ignoring calls", "agent", a.profile.Name, "calls", len(calls))
			}
			break
		}

		// Rounds are separate utterances; the next one starts a new sentence.
		for _, sentence := range sentences.add(" ") {
			onText(sentence)
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: text, ToolCalls: calls})
		for _, call := range calls {
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    a.runTool(ctx, call),
			})
		}
	}

	if rest := sentences.flush(); rest != "" {
		onText(rest)
	}
	return strings.TrimSpace(reply.String()), nil
}

// stream runs one model call, forwarding completed sentences to onText.
func (a *LLMAgent) stream(ctx context.Context, req llm.CompletionRequest, sentences *sentenceBuffer, onText func(string)) (string, []llm.ToolCall, error) {
	ch, err := a.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("agent: %w", err)
	}
	var (
		text  strings.Builder
		calls []llm.ToolCall
	)
	for chunk := range ch {
		if chunk.FinishReason == llm.FinishError {
			for range ch {
			}
			return text.String(), nil, fmt.Errorf("%w: %s", ErrModel, chunk.Text)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			for _, s := range sentences.add(chunk.Text) {
				onText(s)
			}
		}
		calls = append(calls, chunk.ToolCalls...)
	}
	if err := ctx.Err(); err != nil {
		return text.String(), nil, err
	}
	return text.String(), calls, nil
}

func (a *LLMAgent) runTool(ctx context.Context, call llm.ToolCall) string {
	if a.registry == nil {
		return "error: no tools available"
	}
	out, err := a.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return "error: " + err.Error()
	}
	return out
}

var _ Agent = (*LLMAgent)(nil)
