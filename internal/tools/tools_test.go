package tools_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nanobot-edge/nanobot/internal/events"
	eventsmock "github.com/nanobot-edge/nanobot/internal/events/mock"
	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

func echo(name, group string) tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{Name: name, Parameters: tools.Object(nil)},
		Group:      group,
		Handler:    func(_ context.Context, args string) (string, error) { return name + ":" + args, nil },
	}
}

func names(defs []llm.ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func TestRegistry_RegisterAndFilter(t *testing.T) {
	r := tools.NewRegistry()
	if err := r.Register(echo("a", "system"), echo("b", "eyes"), echo("c", "system")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := names(r.Definitions()); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("all = %v", got)
	}
	if got := names(r.Definitions("system")); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("system = %v", got)
	}
	if got := r.Groups(); !slices.Equal(got, []string{"system", "eyes"}) {
		t.Errorf("groups = %v", got)
	}
}

func TestRegistry_RegisterIsAtomic(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(echo("a", "g"))

	err := r.Register(echo("b", "g"), echo("a", "g"))
	if !errors.Is(err, tools.ErrDuplicateTool) {
		t.Fatalf("err = %v, want ErrDuplicateTool", err)
	}
	if got := names(r.Definitions()); !slices.Equal(got, []string{"a"}) {
		t.Errorf("definitions = %v, want only a", got)
	}

	bad := tools.Tool{Definition: llm.ToolDefinition{Name: "x"}}
	if err := r.Register(bad); err == nil {
		t.Error("expected error for missing handler")
	}
	if err := r.Register(echo("", "g")); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestRegistry_RemoveGroup(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(echo("a", "mcp"), echo("b", "eyes"), echo("c", "mcp"))
	if n := r.RemoveGroup("mcp"); n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if got := names(r.Definitions()); !slices.Equal(got, []string{"b"}) {
		t.Errorf("definitions = %v", got)
	}
	if err := r.Register(echo("a", "mcp")); err != nil {
		t.Errorf("re-register after removal: %v", err)
	}
}

func TestRegistry_Execute(t *testing.T) {
	sink := &eventsmock.Sink{}
	var observed []string
	r := tools.NewRegistry(
		tools.WithEvents(sink),
		tools.WithObserver(func(name string, _ time.Duration, err error) {
			observed = append(observed, name)
		}),
	)
	_ = r.Register(echo("a", "g"))

	out, err := r.Execute(context.Background(), "a", "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "a:{}" {
		t.Errorf("out = %q, want empty args normalised to {}", out)
	}
	want := []events.Kind{events.KindFunctionInvoking, events.KindFunctionInvoked}
	if got := sink.Kinds(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if sink.Published[0].Tool != "a" {
		t.Errorf("event tool = %q", sink.Published[0].Tool)
	}
	if !slices.Equal(observed, []string{"a"}) {
		t.Errorf("observed = %v", observed)
	}
}

func TestRegistry_ExecuteErrors(t *testing.T) {
	r := tools.NewRegistry()
	boom := errors.New("boom")
	_ = r.Register(tools.Tool{
		Definition: llm.ToolDefinition{Name: "fail"},
		Handler:    func(context.Context, string) (string, error) { return "", boom },
	})

	if _, err := r.Execute(context.Background(), "missing", "{}"); !errors.Is(err, tools.ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
	if _, err := r.Execute(context.Background(), "fail", "{}"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	r := tools.NewRegistry()
	_ = r.Register(tools.Tool{
		Definition: llm.ToolDefinition{Name: "slow"},
		Timeout:    10 * time.Millisecond,
		Handler: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	if _, err := r.Execute(context.Background(), "slow", "{}"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestDecode(t *testing.T) {
	type args struct {
		Colour string `json:"colour"`
	}
	got, err := tools.Decode[args](`{"colour":"red"}`)
	if err != nil || got.Colour != "red" {
		t.Fatalf("Decode = %+v, %v", got, err)
	}
	if _, err := tools.Decode[args](`{`); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := tools.Decode[args](""); err != nil {
		t.Errorf("empty args: %v", err)
	}
}

func TestCaller(t *testing.T) {
	ctx := context.Background()
	if got := tools.Caller(ctx); got != "" {
		t.Errorf("Caller(background) = %q", got)
	}
	ctx = tools.WithCaller(ctx, "nanobot")
	if got := tools.Caller(ctx); got != "nanobot" {
		t.Errorf("Caller = %q, want nanobot", got)
	}
}
