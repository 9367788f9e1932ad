package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Output item types produced by the model endpoint.
const (
	ItemMessage      = "message"
	ItemFunctionCall = "function_call"
	ItemReasoning    = "reasoning"
)

// OutputItem is one element of a response's output array. The set of
// implementations is closed: *MessageItem, *FunctionCallItem and
// *ReasoningItem.
type OutputItem interface {
	// Raw returns the bytes the item was decoded from.
	Raw() json.RawMessage
	outputItem()
}

type rawItem struct {
	raw json.RawMessage
}

func (r rawItem) Raw() json.RawMessage { return r.raw }
func (rawItem) outputItem()            {}

// MessageContent is one content block of a message.
type MessageContent struct {
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	Refusal     string            `json:"refusal,omitempty"`
	Annotations []json.RawMessage `json:"annotations"`
	Logprobs    []json.RawMessage `json:"logprobs,omitempty"`
}

// MessageItem is an assistant message. A well-formed one ends the session.
type MessageItem struct {
	rawItem `json:"-"`
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Role    string           `json:"role"`
	Status  string           `json:"status"`
	Content []MessageContent `json:"content"`
}

// FunctionCallItem asks for a tool to be run.
type FunctionCallItem struct {
	rawItem   `json:"-"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Status    string `json:"status,omitempty"`
}

// ReasoningItem records model reasoning. It needs no handling beyond being
// logged.
type ReasoningItem struct {
	rawItem          `json:"-"`
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	Summary          []json.RawMessage `json:"summary"`
	Content          []json.RawMessage `json:"content,omitempty"`
	EncryptedContent *string           `json:"encrypted_content,omitempty"`
	Status           string            `json:"status,omitempty"`
}

// DecodeOutputItem parses one output item. Unknown item types and unknown
// fields are rejected with a *ProtocolError.
func DecodeOutputItem(raw json.RawMessage) (OutputItem, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &ProtocolError{Message: "malformed output item", Err: err}
	}

	var item OutputItem
	var target any
	switch head.Type {
	case ItemMessage:
		m := &MessageItem{rawItem: rawItem{raw: raw}}
		item, target = m, m
	case ItemFunctionCall:
		f := &FunctionCallItem{rawItem: rawItem{raw: raw}}
		item, target = f, f
	case ItemReasoning:
		r := &ReasoningItem{rawItem: rawItem{raw: raw}}
		item, target = r, r
	default:
		return nil, &ProtocolError{Message: fmt.Sprintf("unknown output item type %q", head.Type)}
	}

	if err := decodeStrict(raw, target); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed %s item", head.Type), Err: err}
	}
	return item, nil
}

// decodeStrict decodes exactly one JSON value with no unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// ResponseText validates the message shape and returns the answer it
// carries.
func (m *MessageItem) ResponseText() (string, error) {
	if m.Status != "completed" {
		return "", fmt.Errorf("%w: message status %q", ErrContentShape, m.Status)
	}
	if len(m.Content) != 1 {
		return "", fmt.Errorf("%w: %d content blocks", ErrContentShape, len(m.Content))
	}
	block := m.Content[0]
	if block.Type != "output_text" {
		return "", fmt.Errorf("%w: content block type %q", ErrContentShape, block.Type)
	}
	if len(block.Annotations) != 0 {
		return "", fmt.Errorf("%w: %d annotations", ErrContentShape, len(block.Annotations))
	}

	var answer struct {
		ResponseText *string `json:"response_text"`
	}
	if err := decodeStrict([]byte(block.Text), &answer); err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentShape, err)
	}
	if answer.ResponseText == nil {
		return "", fmt.Errorf("%w: missing response_text", ErrContentShape)
	}
	return *answer.ResponseText, nil
}
