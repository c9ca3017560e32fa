// Package agent turns a user message into a spoken reply with a language
// model.
//
// An [Agent] is configured by a [Profile]: the persona instructions, the
// wake phrase that selects it, its stop word and voice, and the tool groups
// it may call. [LLMAgent] runs the model with the tool-call loop and streams
// the reply sentence by sentence so speech synthesis can start before the
// model finishes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// Profile defaults.
const (
	DefaultMaxHistory           = 20
	DefaultWakeWord             = "alexa_v0.1"
	DefaultWakeWordThreshold    = 0.5
	DefaultWakeWordTriggerLevel = 4
	DefaultStopWord             = "stop"
)

// Profile is the static configuration of one agent.
type Profile struct {
	Name         string
	Disabled     bool
	Instructions string

	// Sampling. Zero values use the provider default.
	Temperature float64
	TopP        float64
	MaxTokens   int

	// MaxHistory is the number of messages kept between turns.
	MaxHistory int

	WakeWord             string
	WakeWordThreshold    float32
	WakeWordTriggerLevel int

	// StopWord ends a conversation when the user says it.
	StopWord string

	// Voice is passed to the speech synthesiser. Empty uses its default.
	Voice string

	// Tools lists the tool groups this agent may call.
	Tools []string
}

// ApplyDefaults fills zero fields with the package defaults.
func (p *Profile) ApplyDefaults() {
	if p.MaxHistory == 0 {
		p.MaxHistory = DefaultMaxHistory
	}
	if p.WakeWord == "" {
		p.WakeWord = DefaultWakeWord
	}
	if p.WakeWordThreshold == 0 {
		p.WakeWordThreshold = DefaultWakeWordThreshold
	}
	if p.WakeWordTriggerLevel == 0 {
		p.WakeWordTriggerLevel = DefaultWakeWordTriggerLevel
	}
	if p.StopWord == "" {
		p.StopWord = DefaultStopWord
	}
}

// Validate reports every problem with p.
func (p Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %g out of range [0, 2]", p.Temperature))
	}
	if p.TopP < 0 || p.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p %g out of range [0, 1]", p.TopP))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens %d must not be negative", p.MaxTokens))
	}
	if p.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("max_history %d must not be negative", p.MaxHistory))
	}
	if err := p.WakeProfile().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("agent %q: %w", p.Name, err)
	}
	return nil
}

// WakeProfile returns the wake phrase tuning of p.
func (p Profile) WakeProfile() wakeword.Profile {
	return wakeword.Profile{
		Phrase:       p.WakeWord,
		Threshold:    p.WakeWordThreshold,
		TriggerLevel: p.WakeWordTriggerLevel,
	}
}

// Agent answers user messages.
type Agent interface {
	// Profile returns the agent's configuration.
	Profile() Profile

	// Respond answers message given the prior history. onText, if non-nil,
	// receives the reply in sentence-sized pieces as it is generated. The
	// full reply is returned. history is not modified.
	Respond(ctx context.Context, history []llm.Message, message string, onText func(string)) (string, error)
}

// WakeProfiles returns the distinct wake profiles of the enabled agents, in
// order. The first agent using a phrase decides its tuning.
func WakeProfiles(agents []Agent) []wakeword.Profile {
	var out []wakeword.Profile
	seen := make(map[string]bool)
	for _, a := range agents {
		p := a.Profile()
		if p.Disabled {
			continue
		}
		key := strings.ToLower(p.WakeWord)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.WakeProfile())
	}
	return out
}

// Select returns the enabled agent whose wake word matches phrase
// case-insensitively, else the first enabled agent. It returns nil when no
// agent is enabled.
func Select(agents []Agent, phrase string) Agent {
	var first Agent
	for _, a := range agents {
		p := a.Profile()
		if p.Disabled {
			continue
		}
		if strings.EqualFold(p.WakeWord, phrase) {
			return a
		}
		if first == nil {
			first = a
		}
	}
	return first
}
