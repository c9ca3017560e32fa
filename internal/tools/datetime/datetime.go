// Package datetime provides the "datetime" tool group.
package datetime

import (
	"context"
	"time"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Tools returns get_current_time and get_current_date. now defaults to
// time.Now.
func Tools(now func() time.Time) []tools.Tool {
	if now == nil {
		now = time.Now
	}
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get_current_time",
				Description: "Returns the current local time.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupDateTime,
			Handler: func(context.Context, string) (string, error) {
				return now().Format("15:04 MST"), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_current_date",
				Description: "Returns the current local date including the weekday.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupDateTime,
			Handler: func(context.Context, string) (string, error) {
				return now().Format("Monday, 2 January 2006"), nil
			},
		},
	}
}
