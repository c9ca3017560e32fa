package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Loader creates agents that share one provider, tool registry and set of
// global instructions. Its fields are immutable after construction.
type Loader struct {
	provider llm.Provider
	opts     []Option
}

// NewLoader returns a Loader. opts are applied to every agent.
func NewLoader(provider llm.Provider, opts ...Option) *Loader {
	return &Loader{provider: provider, opts: opts}
}

// Load creates an agent for p.
func (l *Loader) Load(p Profile) (*LLMAgent, error) {
	return New(p, l.provider, l.opts...)
}

// LoadAll creates agents for every profile, in order. Disabled profiles are
// loaded too so selection can skip them. Duplicate names and a set without
// any enabled profile are errors.
func (l *Loader) LoadAll(profiles []Profile) ([]Agent, error) {
	var (
		out     []Agent
		errs    []error
		names   = make(map[string]bool)
		enabled int
	)
	for _, p := range profiles {
		key := strings.ToLower(p.Name)
		if names[key] {
			errs = append(errs, fmt.Errorf("agent %q: duplicate name", p.Name))
			continue
		}
		names[key] = true
		a, err := l.Load(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !p.Disabled {
			enabled++
		}
		out = append(out, a)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if enabled == 0 {
		return nil, errors.New("agent: no enabled agent")
	}
	slog.Info("agents loaded", "total", len(out), "enabled", enabled)
	return out, nil
}
