package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// EncodeResult renders a handler result as the output string of a
// function_call_output item.
func EncodeResult(v any) (string, error) {
	switch raw := v.(type) {
	case []byte:
		return string(raw), nil
	case json.RawMessage:
		return string(raw), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// decodeArgs copies call arguments into a struct tagged with `arg`. JSON
// numbers arrive as float64, so weak typing is enabled.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "arg",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create args decoder: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

// bind adapts a typed handler body to a Handler. Arguments that cannot be
// decoded are reported to the model, not treated as fatal.
func bind[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args T
		if err := decodeArgs(call.Args, &args); err != nil {
			return errorResult("%v", err), nil
		}
		return fn(ctx, args)
	}
}
