package llm

import "context"

// PendingCalls assembles tool calls that a model streams as fragments keyed
// by index. The zero value is ready to use.
type PendingCalls struct {
	calls []ToolCall
}

// Add merges one fragment into the call at index. Empty id and name leave
// the assembled values alone; args are appended.
func (p *PendingCalls) Add(index int, id, name, args string) {
	if index < 0 {
		return
	}
	for len(p.calls) <= index {
		p.calls = append(p.calls, ToolCall{})
	}
	c := &p.calls[index]
	if id != "" {
		c.ID = id
	}
	if name != "" {
		c.Name = name
	}
	c.Arguments += args
}

// Calls returns the assembled calls in index order. Slots that never
// received a name are dropped.
func (p *PendingCalls) Calls() []ToolCall {
	var out []ToolCall
	for _, c := range p.calls {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out
}

// Send delivers c on ch unless ctx ends first. It reports whether c was
// delivered.
func Send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
