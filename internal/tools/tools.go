// Package tools holds the functions an agent may call while answering.
//
// A [Tool] pairs its LLM-facing schema with a handler. Tools belong to a
// group ("system", "eyes", "datetime", "memory", "wordmaths", or the name of
// an MCP server), and each agent enables the groups it wants. Sub-packages
// export constructors returning ready-to-register tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nanobot-edge/nanobot/internal/events"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Built-in group names.
const (
	GroupSystem    = "system"
	GroupEyes      = "eyes"
	GroupDateTime  = "datetime"
	GroupMemory    = "memory"
	GroupWordMaths = "wordmaths"
	GroupYouTube   = "youtube"
)

// DefaultTimeout bounds a tool call whose Timeout is zero.
const DefaultTimeout = 10 * time.Second

var (
	// ErrUnknownTool is returned by [Registry.Execute] for a name that is
	// not registered.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrDuplicateTool is returned by [Registry.Register] when a name is
	// already taken.
	ErrDuplicateTool = errors.New("tools: duplicate tool name")
)

// Tool is a callable function offered to the language model.
type Tool struct {
	// Definition is the schema the model sees.
	Definition llm.ToolDefinition

	// Group is the enablement group the tool belongs to.
	Group string

	// Handler runs the tool with JSON-encoded args and returns the result
	// text. It must respect ctx.
	Handler func(ctx context.Context, args string) (string, error)

	// Timeout caps one call. Zero means [DefaultTimeout].
	Timeout time.Duration
}

type callerKey struct{}

// WithCaller returns a context naming the agent on whose behalf tools run.
func WithCaller(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, callerKey{}, agent)
}

// Caller returns the agent name set by [WithCaller], or "".
func Caller(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

// CallObserver is notified around every tool call.
type CallObserver func(name string, d time.Duration, err error)

// Registry is the set of tools known to the application. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	sink     events.Sink
	observer CallObserver
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEvents publishes FunctionInvoking and FunctionInvoked around calls.
func WithEvents(sink events.Sink) RegistryOption {
	return func(r *Registry) { r.sink = sink }
}

// WithObserver sets a callback run after every call, typically for metrics.
func WithObserver(fn CallObserver) RegistryOption {
	return func(r *Registry) { r.observer = fn }
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]Tool), sink: events.Discard}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds tools. Either all are added or none: a nameless tool, a tool
// without handler or a taken name rejects the whole batch.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		name := t.Definition.Name
		switch {
		case name == "":
			return errors.New("tools: tool name must not be empty")
		case t.Handler == nil:
			return fmt.Errorf("tools: %q has no handler", name)
		case seen[name]:
			return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
		}
		if _, ok := r.tools[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
		}
		seen[name] = true
	}
	for _, t := range tools {
		r.tools[t.Definition.Name] = t
		r.order = append(r.order, t.Definition.Name)
	}
	return nil
}

// RemoveGroup unregisters every tool of group and returns how many were
// removed.
func (r *Registry) RemoveGroup(group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	r.order = slices.DeleteFunc(r.order, func(name string) bool {
		if r.tools[name].Group != group {
			return false
		}
		delete(r.tools, name)
		n++
		return true
	})
	return n
}

// Definitions returns the schemas of tools in the given groups, in
// registration order. With no groups, every tool is returned.
func (r *Registry) Definitions(groups ...string) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []llm.ToolDefinition
	for _, name := range r.order {
		t := r.tools[name]
		if len(groups) > 0 && !slices.Contains(groups, t.Group) {
			continue
		}
		out = append(out, t.Definition)
	}
	return out
}

// Groups returns the distinct group names in registration order.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if g := r.tools[name].Group; !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// Execute runs the named tool. The handler's error is returned wrapped; the
// caller decides whether to show it to the model.
func (r *Registry) Execute(ctx context.Context, name, args string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if args == "" {
		args = "{}"
	}

	r.sink.Publish(events.Function(events.KindFunctionInvoking, name))
	start := time.Now()
	out, err := t.Handler(ctx, args)
	d := time.Since(start)
	r.sink.Publish(events.Function(events.KindFunctionInvoked, name))

	if r.observer != nil {
		r.observer(name, d, err)
	}
	if err != nil {
		slog.Warn("tool call failed", "tool", name, "duration", d, "err", err)
		return "", fmt.Errorf("tools: %s: %w", name, err)
	}
	slog.Debug("tool call", "tool", name, "duration", d)
	return out, nil
}
