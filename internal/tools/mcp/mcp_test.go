package mcp_test

import (
	"context"
	"slices"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/internal/tools/mcp"
)

type echoArgs struct {
	Text string `json:"text"`
}

// startServer runs an in-process MCP server exposing "echo" and "fail" and
// returns the client side of its transport.
func startServer(t *testing.T) mcpsdk.Transport {
	t.Helper()
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "echo", Description: "echoes text"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in echoArgs) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: strings.ToUpper(in.Text)}},
			}, nil, nil
		})
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "fail", Description: "always fails"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, _ echoArgs) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "broken"}},
			}, nil, nil
		})

	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	return clientT
}

func TestConnectTransport_RegistersPrefixedTools(t *testing.T) {
	reg := tools.NewRegistry()
	c := mcp.New(reg)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	names, err := c.ConnectTransport(ctx, mcp.ServerConfig{Name: "home assistant"}, startServer(t))
	if err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"home_assistant_echo", "home_assistant_fail"}) {
		t.Fatalf("names = %v", names)
	}
	if defs := reg.Definitions("home assistant"); len(defs) != 2 {
		t.Errorf("group definitions = %d, want 2", len(defs))
	}

	out, err := reg.Execute(ctx, "home_assistant_echo", `{"text":"hi"}`)
	if err != nil || out != "HI" {
		t.Fatalf("echo = %q, %v", out, err)
	}
	if _, err := reg.Execute(ctx, "home_assistant_fail", `{}`); err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("fail err = %v", err)
	}

	if got := c.Servers(); !slices.Equal(got, []string{"home assistant"}) {
		t.Errorf("Servers = %v", got)
	}
	if err := c.Disconnect("home assistant"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if defs := reg.Definitions("home assistant"); len(defs) != 0 {
		t.Errorf("tools left after disconnect: %v", defs)
	}
	if err := c.Disconnect("home assistant"); err == nil {
		t.Error("second Disconnect: expected error")
	}
}

func TestConnectTransport_Reconnect(t *testing.T) {
	reg := tools.NewRegistry()
	c := mcp.New(reg)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	cfg := mcp.ServerConfig{Name: "srv"}
	if _, err := c.ConnectTransport(ctx, cfg, startServer(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ConnectTransport(ctx, cfg, startServer(t)); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if defs := reg.Definitions("srv"); len(defs) != 2 {
		t.Errorf("definitions after reconnect = %d, want 2", len(defs))
	}
}

func TestConnect_Validation(t *testing.T) {
	c := mcp.New(tools.NewRegistry())
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  mcp.ServerConfig
	}{
		{"no name", mcp.ServerConfig{Transport: mcp.TransportStdio, Command: "x"}},
		{"stdio without command", mcp.ServerConfig{Name: "a", Transport: mcp.TransportStdio}},
		{"http without url", mcp.ServerConfig{Name: "a", Transport: mcp.TransportStreamableHTTP}},
		{"unknown transport", mcp.ServerConfig{Name: "a", Transport: "carrier-pigeon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Connect(ctx, tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTransport_IsValid(t *testing.T) {
	if !mcp.TransportStdio.IsValid() || !mcp.TransportStreamableHTTP.IsValid() {
		t.Error("known transports reported invalid")
	}
	if mcp.Transport("sse").IsValid() {
		t.Error("unknown transport reported valid")
	}
}
