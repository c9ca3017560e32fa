// Package memory provides the "memory" tool group over a [memory.Store].
//
// Tools act on the memories of the agent named by [tools.Caller]. After
// every remember call the agent's memories are trimmed to the configured
// maximum, least frequently used first; the memory just written is kept.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/memory"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// DefaultMaxMemories is used when Tools gets a limit <= 0.
const DefaultMaxMemories = 100

type nameArgs struct {
	Name string `json:"name"`
}

type rememberArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Tools returns remember, recall, forget and list_memories bound to store.
func Tools(store memory.Store, limit int) []tools.Tool {
	if limit <= 0 {
		limit = DefaultMaxMemories
	}
	nameSchema := tools.Object(map[string]any{
		"name": tools.String("Short name of the memory, e.g. \"favourite colour\"."),
	}, "name")

	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "remember",
				Description: "Stores a fact under a short name so it can be recalled in later conversations. Overwrites an existing memory with the same name.",
				Parameters: tools.Object(map[string]any{
					"name":    tools.String("Short name of the memory."),
					"content": tools.String("The fact to remember."),
				}, "name", "content"),
			},
			Group: tools.GroupMemory,
			Handler: func(ctx context.Context, args string) (string, error) {
				a, err := tools.Decode[rememberArgs](args)
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Content) == "" {
					return "", errors.New("name and content must not be empty")
				}
				agent := tools.Caller(ctx)
				if err := store.Put(ctx, agent, a.Name, a.Content); err != nil {
					return "", err
				}
				evicted, err := memory.Evict(ctx, store, agent, limit, a.Name)
				if err != nil {
					return "", err
				}
				if len(evicted) > 0 {
					slog.Info("memories evicted", "agent", agent, "names", evicted)
				}
				return fmt.Sprintf("Remembered %q.", memory.Key(a.Name)), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "recall",
				Description: "Returns the content of a memory by name.",
				Parameters:  nameSchema,
			},
			Group: tools.GroupMemory,
			Handler: func(ctx context.Context, args string) (string, error) {
				a, err := tools.Decode[nameArgs](args)
				if err != nil {
					return "", err
				}
				e, err := store.Get(ctx, tools.Caller(ctx), a.Name)
				if errors.Is(err, memory.ErrNotFound) {
					return fmt.Sprintf("No memory named %q.", memory.Key(a.Name)), nil
				}
				if err != nil {
					return "", err
				}
				return e.Content, nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "forget",
				Description: "Deletes a memory by name.",
				Parameters:  nameSchema,
			},
			Group: tools.GroupMemory,
			Handler: func(ctx context.Context, args string) (string, error) {
				a, err := tools.Decode[nameArgs](args)
				if err != nil {
					return "", err
				}
				err = store.Delete(ctx, tools.Caller(ctx), a.Name)
				if errors.Is(err, memory.ErrNotFound) {
					return fmt.Sprintf("No memory named %q.", memory.Key(a.Name)), nil
				}
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Forgot %q.", memory.Key(a.Name)), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "list_memories",
				Description: "Lists the names of all stored memories.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupMemory,
			Handler: func(ctx context.Context, _ string) (string, error) {
				entries, err := store.List(ctx, tools.Caller(ctx))
				if err != nil {
					return "", err
				}
				if len(entries) == 0 {
					return "No memories stored.", nil
				}
				names := make([]string, len(entries))
				for i, e := range entries {
					names[i] = e.Name
				}
				return strings.Join(names, ", "), nil
			},
		},
	}
}
