// Package eyes provides the "eyes" tool group, which lets the user change
// the idle colour of the status indicator.
package eyes

import (
	"context"
	"fmt"
	"strings"

	"github.com/nanobot-edge/nanobot/internal/indicator"
	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Display is the part of the indicator the tools control.
type Display interface {
	DefaultColour() indicator.Colour
	SetDefaultColour(c indicator.Colour)
}

type setArgs struct {
	Colour string `json:"colour"`
}

// Tools returns the eyes tools bound to d.
func Tools(d Display) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "set_eye_colour",
				Description: "Sets the default colour of the assistant's eyes.",
				Parameters: tools.Object(map[string]any{
					"colour": tools.Enum("The new eye colour.", indicator.Colours()...),
				}, "colour"),
			},
			Group: tools.GroupEyes,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[setArgs](args)
				if err != nil {
					return "", err
				}
				c, err := indicator.ParseColour(a.Colour)
				if err != nil {
					return "", err
				}
				d.SetDefaultColour(c)
				return fmt.Sprintf("Eye colour set to %s.", c), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_eye_colour",
				Description: "Returns the current default colour of the assistant's eyes.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupEyes,
			Handler: func(context.Context, string) (string, error) {
				return d.DefaultColour().String(), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_available_eye_colours",
				Description: "Lists the colours the assistant's eyes can show.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupEyes,
			Handler: func(context.Context, string) (string, error) {
				return strings.Join(indicator.Colours(), ", "), nil
			},
		},
	}
}
