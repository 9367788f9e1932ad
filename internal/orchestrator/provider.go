package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/clawinfra/aido/internal/tools"
)

// ModelProvider sends one request to the model endpoint. Implementations
// report every failure as a *ProtocolError.
type ModelProvider interface {
	Respond(ctx context.Context, req *ResponseRequest) (*ModelResponse, error)
}

// ResponseRequest is the body of a model request.
type ResponseRequest struct {
	Model      string             `json:"model"`
	Input      []json.RawMessage  `json:"input"`
	Tools      []tools.Descriptor `json:"tools,omitempty"`
	ToolChoice string             `json:"tool_choice,omitempty"`
	Text       TextConfig         `json:"text"`
}

// TextConfig constrains the format of the model's text output.
type TextConfig struct {
	Format TextFormat `json:"format"`
}

// TextFormat is a json_schema output format.
type TextFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// ResponseTextFormat requires the answer to be an object with exactly one
// string field, response_text.
func ResponseTextFormat() TextFormat {
	return TextFormat{
		Type:   "json_schema",
		Name:   "response",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"response_text": map[string]any{"type": "string"},
			},
			"required":             []string{"response_text"},
			"additionalProperties": false,
		},
	}
}

// ModelResponse holds the undecoded output items of a response.
type ModelResponse struct {
	ID     string
	Output []json.RawMessage
}
