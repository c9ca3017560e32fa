package health_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nanobot-edge/nanobot/internal/health"
	"github.com/nanobot-edge/nanobot/internal/resilience"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	want := errors.New("connection refused")
	if err := health.Ping("memory", pinger{}).Check(context.Background()); err != nil {
		t.Errorf("healthy store: %v", err)
	}
	if err := health.Ping("memory", pinger{err: want}).Check(context.Background()); !errors.Is(err, want) {
		t.Errorf("failing store: got %v, want %v", err, want)
	}
}

func openBreaker(t *testing.T, name string) *resilience.Breaker {
	t.Helper()
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: name, MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(context.Background(), func() error { return errors.New("boom") })
	if b.State() != resilience.StateOpen {
		t.Fatalf("breaker %s state = %v, want open", name, b.State())
	}
	return b
}

func TestBreakers(t *testing.T) {
	closed := resilience.NewBreaker(resilience.BreakerConfig{Name: "whisper"})
	tests := []struct {
		name     string
		breakers []*resilience.Breaker
		wantErr  string
	}{
		{"one usable", []*resilience.Breaker{openBreaker(t, "openai"), closed}, ""},
		{"all open", []*resilience.Breaker{openBreaker(t, "openai"), openBreaker(t, "deepgram")}, "openai, deepgram"},
		{"empty", nil, "no backends"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := health.Breakers("stt", tt.breakers).Check(context.Background())
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFlag(t *testing.T) {
	var f health.Flag
	c := f.Checker("conversation")
	if c.Check(context.Background()) == nil {
		t.Error("zero flag reported ready")
	}
	f.Set(true)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("set flag: %v", err)
	}
	f.Set(false)
	if c.Check(context.Background()) == nil {
		t.Error("cleared flag reported ready")
	}
}
