package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *clock) {
	clk := &clock{t: time.Unix(0, 0)}
	b := NewBreaker(cfg)
	b.now = clk.now
	return b, clk
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "stt"})
	if b.maxFailures != 3 || b.cooldown != 30*time.Second || b.trials != 1 {
		t.Errorf("defaults = %d/%v/%d", b.maxFailures, b.cooldown, b.trials)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v", b.State())
	}
	if b.Name() != "stt" {
		t.Errorf("Name = %q", b.Name())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3})

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, succeed) // resets the run
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v after interrupted run, want closed", b.State())
	}
	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("Do while open = %v (called %v)", err, called)
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})

	_ = b.Do(ctx, fail)
	clk.advance(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state = %v before cool-down, want open", b.State())
	}
	clk.advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v after cool-down, want half-open", b.State())
	}
	if err := b.Do(ctx, succeed); err != nil {
		t.Fatalf("trial: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v after successful trial, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Minute})

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	clk.advance(time.Minute)
	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestBreaker_HalfOpenLimitsTrials(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second, TrialCalls: 1})
	_ = b.Do(ctx, fail)
	clk.advance(time.Second)

	inTrial := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(ctx, func() error {
			close(inTrial)
			<-release
			return nil
		})
	}()
	<-inTrial
	if err := b.Do(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationIsNeutral(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func() error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v after cancelled call, want closed", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	ctx := context.Background()
	type change struct{ from, to State }
	var got []change
	b, clk := newTestBreaker(BreakerConfig{
		Name:        "tts",
		MaxFailures: 1,
		Cooldown:    time.Second,
		OnStateChange: func(name string, from, to State) {
			if name != "tts" {
				t.Errorf("name = %q", name)
			}
			got = append(got, change{from, to})
		},
	})

	_ = b.Do(ctx, fail)
	clk.advance(time.Second)
	_ = b.Do(ctx, succeed)
	_ = b.Do(ctx, fail)
	b.Reset()

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
		{StateClosed, StateOpen},
		{StateOpen, StateClosed},
	}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
