package tools

import (
	"encoding/json"
	"fmt"
)

// Object builds a JSON Schema object with the given properties.
func Object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// String is a string property schema.
func String(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// Enum is a string property schema restricted to values.
func Enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

// Integer is an integer property schema.
func Integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

// Decode unmarshals JSON tool arguments into T.
func Decode[T any](args string) (T, error) {
	var v T
	if args == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

// Encode marshals a tool result to JSON.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
