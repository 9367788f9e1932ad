package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/clawinfra/aido/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProvider replays canned outputs, one per round, and records requests.
type stubProvider struct {
	rounds   [][]string
	next     func(call int) ([]string, error)
	requests []*ResponseRequest
}

func (s *stubProvider) Respond(_ context.Context, req *ResponseRequest) (*ModelResponse, error) {
	snapshot := *req
	snapshot.Input = append([]json.RawMessage(nil), req.Input...)
	s.requests = append(s.requests, &snapshot)

	var items []string
	if s.next != nil {
		var err error
		if items, err = s.next(len(s.requests)); err != nil {
			return nil, err
		}
	} else {
		if len(s.requests) > len(s.rounds) {
			return nil, fmt.Errorf("unexpected round %d", len(s.requests))
		}
		items = s.rounds[len(s.requests)-1]
	}
	resp := &ModelResponse{}
	for _, it := range items {
		resp.Output = append(resp.Output, json.RawMessage(it))
	}
	return resp, nil
}

func messageItem(text string) string {
	content, _ := json.Marshal(text)
	return `{"id":"msg_1","type":"message","role":"assistant","status":"completed","content":[{"type":"output_text","text":` +
		string(content) + `,"annotations":[]}]}`
}

func answerItem(answer string) string {
	body, _ := json.Marshal(map[string]string{"response_text": answer})
	return messageItem(string(body))
}

func callItem(callID, name, args string) string {
	a, _ := json.Marshal(args)
	return fmt.Sprintf(`{"id":"fc_%s","type":"function_call","call_id":%q,"name":%q,"arguments":%s,"status":"completed"}`, callID, callID, name, a)
}

const reasoningItem = `{"id":"rs_1","type":"reasoning","summary":[]}`

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(testLogger())
	err := reg.Register(tools.ToolSpec{
		Name:        "lookup",
		Description: "Looks something up",
		Params: []tools.Param{
			{Name: "key", Type: "string", Description: "Key to look up", Example: "colour", Required: true},
		},
	}, func(_ context.Context, c tools.Call) (any, error) {
		return map[string]any{"key": c.Args["key"], "value": "<blue & green>"}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRunReturnsResponseText(t *testing.T) {
	msg := answerItem("X")
	p := &stubProvider{rounds: [][]string{{msg}}}
	log := NewConversationLog()
	o := New(p, newRegistry(t), log, "o4-mini", testLogger())

	got, err := o.Run(context.Background(), "say X")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "X" {
		t.Errorf("expected X, got %q", got)
	}
	if o.State() != StateDone {
		t.Errorf("expected done state, got %s", o.State())
	}

	items := log.Items()
	if len(items) != 2 {
		t.Fatalf("expected user message and answer in log, got %d items", len(items))
	}
	if string(items[0]) != `{"role":"user","content":"say X"}` {
		t.Errorf("unexpected first item %s", items[0])
	}
	if string(items[1]) != msg {
		t.Errorf("answer not logged verbatim:\n got %s\nwant %s", items[1], msg)
	}
}

func TestRunRequestShape(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{answerItem("ok")}}}
	o := New(p, newRegistry(t), nil, "gpt-4o", testLogger(), WithSystemPrompt("be brief"))
	if _, err := o.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("run: %v", err)
	}

	req := p.requests[0]
	if req.Model != "gpt-4o" || req.ToolChoice != "auto" || len(req.Tools) != 1 || req.Tools[0].Name != "lookup" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Input) != 2 || string(req.Input[0]) != `{"role":"system","content":"be brief"}` {
		t.Errorf("system prompt should come first: %s", req.Input)
	}
	if req.Text.Format.Type != "json_schema" {
		t.Errorf("missing structured output constraint: %+v", req.Text)
	}

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	schema := decoded["text"].(map[string]any)["format"].(map[string]any)["schema"].(map[string]any)
	if req := schema["required"].([]any); len(req) != 1 || req[0] != "response_text" {
		t.Errorf("schema must require exactly response_text: %v", schema)
	}
}

func TestRunWithoutToolsOmitsToolChoice(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{answerItem("ok")}}}
	o := New(p, tools.NewRegistry(testLogger()), nil, "m", testLogger())
	if _, err := o.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("run: %v", err)
	}
	body, _ := json.Marshal(p.requests[0])
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	if _, ok := decoded["tool_choice"]; ok {
		t.Error("tool_choice must be omitted without tools")
	}
	if _, ok := decoded["tools"]; ok {
		t.Error("tools must be omitted when empty")
	}
}

func TestFunctionCallResultKeyedByCallID(t *testing.T) {
	call := callItem("c1", "lookup", `{"key":"colour"}`)
	p := &stubProvider{rounds: [][]string{
		{reasoningItem, call},
		{answerItem("done")},
	}}
	log := NewConversationLog()
	o := New(p, newRegistry(t), log, "m", testLogger())

	got, err := o.Run(context.Background(), "what colour?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "done" {
		t.Errorf("unexpected answer %q", got)
	}

	want, _ := tools.EncodeResult(map[string]any{"key": "colour", "value": "<blue & green>"})
	items := log.Items()
	if len(items) != 5 {
		t.Fatalf("expected 5 log items, got %d: %s", len(items), items)
	}
	if string(items[1]) != reasoningItem || string(items[2]) != call {
		t.Errorf("model items not logged verbatim in order: %s", items[1:3])
	}
	var out FunctionCallOutput
	if err := json.Unmarshal(items[3], &out); err != nil {
		t.Fatal(err)
	}
	if out.Type != "function_call_output" || out.CallID != "c1" || out.Output != want {
		t.Errorf("unexpected tool result item %+v, want output %s", out, want)
	}

	if len(p.requests) != 2 || len(p.requests[1].Input) != 4 {
		t.Errorf("second request should carry the whole log so far")
	}
	m := o.Metrics()
	if m.Rounds != 2 || m.ToolCalls != 1 || m.ReasoningItems != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestLivenessErrorOnRound101(t *testing.T) {
	p := &stubProvider{next: func(call int) ([]string, error) {
		return []string{callItem(fmt.Sprintf("c%d", call), "lookup", `{"key":"k"}`)}, nil
	}}
	o := New(p, newRegistry(t), nil, "m", testLogger())

	_, err := o.Run(context.Background(), "loop forever")
	if !errors.Is(err, ErrLiveness) {
		t.Fatalf("expected ErrLiveness, got %v", err)
	}
	if len(p.requests) != 100 {
		t.Errorf("expected exactly 100 model calls, got %d", len(p.requests))
	}
	if o.State() != StateFailed {
		t.Errorf("expected failed state, got %s", o.State())
	}
}

func TestMaxRoundsOption(t *testing.T) {
	p := &stubProvider{next: func(int) ([]string, error) { return []string{reasoningItem}, nil }}
	o := New(p, nil, nil, "m", testLogger(), WithMaxRounds(3))
	if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrLiveness) {
		t.Fatalf("expected ErrLiveness, got %v", err)
	}
	if len(p.requests) != 3 {
		t.Errorf("expected 3 calls, got %d", len(p.requests))
	}
}

func TestContentShapeErrors(t *testing.T) {
	tests := map[string]string{
		"incomplete status": `{"id":"m","type":"message","role":"assistant","status":"incomplete","content":[{"type":"output_text","text":"{\"response_text\":\"x\"}","annotations":[]}]}`,
		"two blocks":        `{"id":"m","type":"message","role":"assistant","status":"completed","content":[{"type":"output_text","text":"{\"response_text\":\"x\"}","annotations":[]},{"type":"output_text","text":"{}","annotations":[]}]}`,
		"no blocks":         `{"id":"m","type":"message","role":"assistant","status":"completed","content":[]}`,
		"annotated":         `{"id":"m","type":"message","role":"assistant","status":"completed","content":[{"type":"output_text","text":"{\"response_text\":\"x\"}","annotations":[{"type":"url_citation"}]}]}`,
		"refusal block":     `{"id":"m","type":"message","role":"assistant","status":"completed","content":[{"type":"refusal","text":"no","annotations":[]}]}`,
		"extra field":       messageItem(`{"response_text":"x","mood":"happy"}`),
		"missing field":     messageItem(`{"answer":"x"}`),
		"plain text":        messageItem(`just text`),
		"null answer":       messageItem(`{"response_text":null}`),
	}
	for name, item := range tests {
		t.Run(name, func(t *testing.T) {
			p := &stubProvider{rounds: [][]string{{item}}}
			o := New(p, nil, nil, "m", testLogger())
			if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrContentShape) {
				t.Errorf("expected ErrContentShape, got %v", err)
			}
		})
	}
}

func TestProtocolErrors(t *testing.T) {
	tests := map[string]*stubProvider{
		"endpoint error": {next: func(int) ([]string, error) {
			return nil, &ProtocolError{StatusCode: 500, Message: "overloaded"}
		}},
		"transport error": {next: func(int) ([]string, error) { return nil, errors.New("connection reset") }},
		"empty output":    {rounds: [][]string{{}}},
		"unknown type":    {rounds: [][]string{{`{"type":"web_search_call","id":"ws_1"}`}}},
		"unknown field":   {rounds: [][]string{{`{"id":"rs","type":"reasoning","summary":[],"surprise":1}`}}},
		"not an object":   {rounds: [][]string{{`[1,2]`}}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			log := NewConversationLog()
			o := New(p, nil, log, "m", testLogger())
			_, err := o.Run(context.Background(), "x")
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected protocol error, got %v", err)
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ProtocolError, got %T", err)
			}
			if log.Len() != 1 {
				t.Errorf("rejected items must not be logged, log has %d items", log.Len())
			}
		})
	}
}

func TestArgumentDecodeError(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{callItem("c1", "lookup", `{"key":`)}}}
	o := New(p, newRegistry(t), nil, "m", testLogger())
	if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrArgumentDecode) {
		t.Fatalf("expected ErrArgumentDecode, got %v", err)
	}
}

func TestUnknownToolIsFatal(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{callItem("c1", "rm_rf", `{}`)}}}
	o := New(p, newRegistry(t), nil, "m", testLogger())
	_, err := o.Run(context.Background(), "x")
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	var de *tools.ToolDispatchError
	if !errors.As(err, &de) || de.Tool != "rm_rf" {
		t.Errorf("expected dispatch error for rm_rf, got %v", err)
	}
}

func TestDuplicateTerminalMessage(t *testing.T) {
	t.Run("same round", func(t *testing.T) {
		p := &stubProvider{rounds: [][]string{{answerItem("a"), answerItem("b")}}}
		o := New(p, nil, nil, "m", testLogger())
		if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrDuplicateTerminalMessage) {
			t.Fatalf("expected ErrDuplicateTerminalMessage, got %v", err)
		}
	})
	t.Run("later round", func(t *testing.T) {
		p := &stubProvider{rounds: [][]string{
			{answerItem("a"), callItem("c1", "lookup", `{"key":"k"}`)},
			{answerItem("b")},
		}}
		o := New(p, newRegistry(t), nil, "m", testLogger())
		if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrDuplicateTerminalMessage) {
			t.Fatalf("expected ErrDuplicateTerminalMessage, got %v", err)
		}
	})
}

func TestReasoningThenAnswerEndsSession(t *testing.T) {
	p := &stubProvider{rounds: [][]string{
		{reasoningItem, answerItem("X")},
		{answerItem("X again")},
	}}
	log := NewConversationLog()
	o := New(p, nil, log, "m", testLogger())

	got, err := o.Run(context.Background(), "say X")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "X" {
		t.Errorf("expected X, got %q", got)
	}
	if len(p.requests) != 1 {
		t.Errorf("expected one model call, got %d", len(p.requests))
	}
	if log.Len() != 3 {
		t.Errorf("expected user, reasoning and answer in log, got %d items", log.Len())
	}
	if m := o.Metrics(); m.ReasoningItems != 1 || m.Rounds != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestAnswerBeforeReasoningEndsSession(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{answerItem("X"), reasoningItem}}}
	o := New(p, nil, nil, "m", testLogger())
	got, err := o.Run(context.Background(), "say X")
	if err != nil || got != "X" {
		t.Fatalf("got %q, %v; want X", got, err)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	p := &stubProvider{rounds: [][]string{{answerItem("a")}}}
	o := New(p, nil, nil, "m", testLogger())
	if _, err := o.Run(context.Background(), "x"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := o.Run(context.Background(), "x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if len(p.requests) != 1 {
		t.Errorf("second run must not reach the endpoint")
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &stubProvider{next: func(int) ([]string, error) {
		cancel()
		return nil, context.Canceled
	}}
	o := New(p, nil, nil, "m", testLogger())
	if _, err := o.Run(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateAwaitingModel.String() != "awaiting_model" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
