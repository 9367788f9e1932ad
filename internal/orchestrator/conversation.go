package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InputMessage is a system or user message in the conversation.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FunctionCallOutput carries a tool result back to the model, keyed by the
// call id of the function_call it answers.
type FunctionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// NewFunctionCallOutput builds the result item for callID.
func NewFunctionCallOutput(callID, output string) FunctionCallOutput {
	return FunctionCallOutput{Type: "function_call_output", CallID: callID, Output: output}
}

// ConversationLog is the append-only record of a session. Its items, in
// order, are the input of the next model request.
type ConversationLog struct {
	items []json.RawMessage
}

// NewConversationLog returns an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{}
}

// Append encodes item and adds it to the end of the log. A json.RawMessage
// is stored byte for byte.
func (l *ConversationLog) Append(item any) error {
	if raw, ok := item.(json.RawMessage); ok {
		l.AppendRaw(raw)
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode log item: %w", err)
	}
	l.items = append(l.items, data)
	return nil
}

// AppendRaw adds a copy of raw to the end of the log.
func (l *ConversationLog) AppendRaw(raw json.RawMessage) {
	l.items = append(l.items, append(json.RawMessage(nil), raw...))
}

// Items returns a snapshot of the log. Later appends do not show up in it.
func (l *ConversationLog) Items() []json.RawMessage {
	return append([]json.RawMessage(nil), l.items...)
}

// Len returns the number of items.
func (l *ConversationLog) Len() int { return len(l.items) }

// MarshalJSON renders the log as a JSON array.
func (l *ConversationLog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range l.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
