// Package mcp connects to external MCP servers and registers their tools in
// a [tools.Registry].
//
// Each server's tools are registered under the group named after the server
// and prefixed with "<server>_" so two servers can expose tools with the
// same name. Transports are stdio (a spawned subprocess) or streamable HTTP,
// both from the official MCP Go SDK.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and talks over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP uses the MCP streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one MCP server.
type ServerConfig struct {
	Name      string
	Transport Transport

	// Command is the executable and arguments for stdio servers, split on
	// whitespace.
	Command string

	// Env adds variables to the subprocess environment.
	Env map[string]string

	// URL is the endpoint of streamable-http servers.
	URL string

	// Timeout caps one tool call. Zero uses [tools.DefaultTimeout].
	Timeout time.Duration
}

var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Client manages MCP server sessions. The zero value is not usable; call
// [New].
type Client struct {
	registry *tools.Registry
	client   *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
}

// New returns a Client that registers discovered tools in registry.
func New(registry *tools.Registry) *Client {
	return &Client{
		registry: registry,
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "nanobot", Version: "1.0.0"}, nil),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Connect opens the transport described by cfg and registers the server's
// tools. It returns the registered tool names. Connecting a name that is
// already connected replaces the old session and its tools.
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) ([]string, error) {
	if cfg.Name == "" {
		return nil, errors.New("mcp: server name must not be empty")
	}
	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		argv := strings.Fields(cfg.Command)
		if len(argv) == 0 {
			return nil, fmt.Errorf("mcp: stdio server %q requires a command", cfg.Name)
		}
		// The subprocess lives as long as the session, not the connect call.
		cmd := exec.Command(argv[0], argv[1:]...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
				cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp: streamable-http server %q requires a url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("mcp: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
	return c.ConnectTransport(ctx, cfg, transport)
}

// ConnectTransport is Connect over an already constructed transport.
func (c *Client) ConnectTransport(ctx context.Context, cfg ServerConfig, transport mcpsdk.Transport) ([]string, error) {
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect %q: %w", cfg.Name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcp: list tools of %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	prefix := invalidName.ReplaceAllString(cfg.Name, "_")
	batch := make([]tools.Tool, 0, len(discovered))
	names := make([]string, 0, len(discovered))
	for _, t := range discovered {
		name := prefix + "_" + invalidName.ReplaceAllString(t.Name, "_")
		batch = append(batch, tools.Tool{
			Definition: llm.ToolDefinition{
				Name:        name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			Group:   cfg.Name,
			Timeout: cfg.Timeout,
			Handler: callHandler(session, t.Name),
		})
		names = append(names, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sessions[cfg.Name]; ok {
		_ = old.Close()
		c.registry.RemoveGroup(cfg.Name)
	}
	if err := c.registry.Register(batch...); err != nil {
		_ = session.Close()
		delete(c.sessions, cfg.Name)
		return nil, fmt.Errorf("mcp: register tools of %q: %w", cfg.Name, err)
	}
	c.sessions[cfg.Name] = session
	slog.Info("mcp server connected", "server", cfg.Name, "tools", len(names))
	return names, nil
}

func callHandler(session *mcpsdk.ClientSession, tool string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var argMap map[string]any
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: argMap})
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, content := range res.Content {
			if tc, ok := content.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if res.IsError {
			return "", errors.New(sb.String())
		}
		return sb.String(), nil
	}
}

// Disconnect closes a server session and unregisters its tools.
func (c *Client) Disconnect(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[name]
	if !ok {
		return fmt.Errorf("mcp: server %q not connected", name)
	}
	delete(c.sessions, name)
	c.registry.RemoveGroup(name)
	return s.Close()
}

// Servers returns the connected server names, sorted.
func (c *Client) Servers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.sessions))
}

// Close disconnects every server.
func (c *Client) Close() error {
	var errs []error
	for _, name := range c.Servers() {
		if err := c.Disconnect(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// schemaToMap converts an SDK schema value to a JSON object map.
func schemaToMap(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	fallback := map[string]any{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return fallback
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return fallback
	}
	return m
}
