// Package system provides the "system" tool group: clearing the chat
// history and stopping or restarting the device.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// commandTimeout bounds a host command.
const commandTimeout = 30 * time.Second

// Runner executes a host command.
type Runner func(ctx context.Context, argv []string) error

// Config wires the tools to the application.
type Config struct {
	// ClearHistory empties the conversation history. Required.
	ClearHistory func()

	// Stop asks the application to stop. restart is true for the restart
	// tool. Required.
	Stop func(restart bool)

	// ShutdownCommand runs after Stop for turn_off, e.g.
	// ["sudo", "shutdown", "now"]. Empty runs nothing.
	ShutdownCommand []string

	// RestartCommand runs after Stop for restart, e.g. ["sudo", "reboot"].
	RestartCommand []string

	// Runner overrides command execution. Defaults to os/exec.
	Runner Runner
}

// Tools returns the system tools.
func Tools(cfg Config) ([]tools.Tool, error) {
	if cfg.ClearHistory == nil || cfg.Stop == nil {
		return nil, errors.New("system: ClearHistory and Stop are required")
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner
	}
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "clear_chat_history",
				Description: "Clears the chat history so the conversation starts over.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupSystem,
			Handler: func(context.Context, string) (string, error) {
				cfg.ClearHistory()
				return "Chat history cleared.", nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "turn_off",
				Description: "Turns the assistant off. Only use when the user explicitly asks to shut down.",
				Parameters:  tools.Object(nil),
			},
			Group:   tools.GroupSystem,
			Handler: stopHandler(cfg, false),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "restart",
				Description: "Restarts the assistant. Only use when the user explicitly asks to restart.",
				Parameters:  tools.Object(nil),
			},
			Group:   tools.GroupSystem,
			Handler: stopHandler(cfg, true),
		},
	}, nil
}

func stopHandler(cfg Config, restart bool) func(context.Context, string) (string, error) {
	argv, verb := cfg.ShutdownCommand, "Shutting down."
	if restart {
		argv, verb = cfg.RestartCommand, "Restarting."
	}
	return func(ctx context.Context, _ string) (string, error) {
		cfg.Stop(restart)
		if len(argv) == 0 {
			return verb, nil
		}
		// The app is stopping, so the command must outlive the turn.
		cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
		defer cancel()
		slog.Info("running host command", "argv", strings.Join(argv, " "))
		if err := cfg.Runner(cmdCtx, argv); err != nil {
			return "", fmt.Errorf("system: %s: %w", argv[0], err)
		}
		return verb, nil
	}
}

func execRunner(ctx context.Context, argv []string) error {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
