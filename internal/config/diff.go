package config

import (
	"reflect"
	"slices"
	"strings"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked in detail; other
// changed sections are listed in Restart.
type ConfigDiff struct {
	AgentsChanged bool        // true if any agent was added, removed or modified
	AgentChanges  []AgentDiff // per-agent diffs, sorted by name

	// WakeProfilesChanged is true when the set of wake phrases or their
	// tuning changed, so the spotter must be rebuilt.
	WakeProfilesChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultColourChanged bool
	NewDefaultColour     string

	// Restart names top-level sections that changed but only take effect
	// after a restart.
	Restart []string
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	Name    string
	Added   bool
	Removed bool

	InstructionsChanged bool
	WakeChanged         bool
	ToolsChanged        bool
	OtherChanged        bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Indicator.DefaultColour != new.Indicator.DefaultColour {
		d.DefaultColourChanged = true
		d.NewDefaultColour = new.Indicator.DefaultColour
	}

	oldAgents := profilesByName(old.Agents)
	newAgents := profilesByName(new.Agents)

	for name, op := range oldAgents {
		np, ok := newAgents[name]
		if !ok {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: name, Removed: true})
			continue
		}
		if ad := diffAgent(name, op, np); ad.changed() {
			d.AgentChanges = append(d.AgentChanges, ad)
		}
	}
	for name := range newAgents {
		if _, ok := oldAgents[name]; !ok {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: name, Added: true})
		}
	}
	slices.SortFunc(d.AgentChanges, func(a, b AgentDiff) int {
		return strings.Compare(a.Name, b.Name)
	})
	d.AgentsChanged = len(d.AgentChanges) > 0
	d.WakeProfilesChanged = !wakeword.Equal(wakeProfiles(old.Agents), wakeProfiles(new.Agents))

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"providers", old.Providers, new.Providers},
		{"audio", old.Audio, new.Audio},
		{"detector", old.Detector, new.Detector},
		{"frontend", old.FrontEnd, new.FrontEnd},
		{"endpoint", old.Endpoint, new.Endpoint},
		{"conversation", old.Conversation, new.Conversation},
		{"memory", old.Memory, new.Memory},
		{"mcp", old.MCP, new.MCP},
		{"indicator.driver", old.Indicator.Driver, new.Indicator.Driver},
		{"system", old.System, new.System},
		{"word_maths", old.WordMaths, new.WordMaths},
		{"youtube", old.YouTube, new.YouTube},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.Restart = append(d.Restart, s.name)
		}
	}
	return d
}

func (ad AgentDiff) changed() bool {
	return ad.InstructionsChanged || ad.WakeChanged || ad.ToolsChanged || ad.OtherChanged
}

// diffAgent compares two profiles with the same name.
func diffAgent(name string, old, new agent.Profile) AgentDiff {
	ad := AgentDiff{Name: name}
	if old.Instructions != new.Instructions {
		ad.InstructionsChanged = true
	}
	if old.WakeProfile() != new.WakeProfile() || old.Disabled != new.Disabled {
		ad.WakeChanged = true
	}
	if !slices.Equal(old.Tools, new.Tools) {
		ad.ToolsChanged = true
	}

	// Compare the remainder with the tracked fields masked out.
	old.Instructions, new.Instructions = "", ""
	old.WakeWord, new.WakeWord = "", ""
	old.WakeWordThreshold, new.WakeWordThreshold = 0, 0
	old.WakeWordTriggerLevel, new.WakeWordTriggerLevel = 0, 0
	old.Disabled, new.Disabled = false, false
	old.Tools, new.Tools = nil, nil
	if !reflect.DeepEqual(old, new) {
		ad.OtherChanged = true
	}
	return ad
}

func profilesByName(agents []AgentConfig) map[string]agent.Profile {
	out := make(map[string]agent.Profile, len(agents))
	for _, a := range agents {
		out[a.Name] = a.Profile()
	}
	return out
}

// wakeProfiles returns the distinct wake profiles of the enabled agents in
// order, the same set the spotter is built from.
func wakeProfiles(agents []AgentConfig) []wakeword.Profile {
	var out []wakeword.Profile
	seen := make(map[string]bool)
	for _, a := range agents {
		p := a.Profile()
		key := strings.ToLower(p.WakeWord)
		if p.Disabled || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.WakeProfile())
	}
	return out
}
