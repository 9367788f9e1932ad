// Package orchestrator drives a tool-calling session against the model
// endpoint: it sends the conversation, runs the function calls the model
// asks for and stops at the model's final answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/aido/internal/tools"
)

// DefaultMaxRounds caps the number of model requests per session.
const DefaultMaxRounds = 100

// State is the position of a session in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateProcessingOutput
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateProcessingOutput:
		return "processing_output"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Metrics summarises a session.
type Metrics struct {
	Rounds         int
	ToolCalls      int
	ReasoningItems int
	Duration       time.Duration
}

// Option configures a ResponseOrchestrator.
type Option func(*ResponseOrchestrator)

// WithSystemPrompt seeds the session with a system message.
func WithSystemPrompt(prompt string) Option {
	return func(o *ResponseOrchestrator) { o.systemPrompt = prompt }
}

// WithMaxRounds overrides DefaultMaxRounds. Values < 1 are ignored.
func WithMaxRounds(n int) Option {
	return func(o *ResponseOrchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// ResponseOrchestrator runs a single session. It owns its ConversationLog
// for the duration of Run.
type ResponseOrchestrator struct {
	provider     ModelProvider
	registry     *tools.Registry
	log          *ConversationLog
	model        string
	systemPrompt string
	maxRounds    int
	sessionID    string
	logger       *slog.Logger

	mu      sync.Mutex
	state   State
	metrics Metrics
	used    bool
}

// New creates an orchestrator. log may already hold items; they are sent
// ahead of the session's own messages.
func New(provider ModelProvider, registry *tools.Registry, log *ConversationLog, model string, logger *slog.Logger, opts ...Option) *ResponseOrchestrator {
	if log == nil {
		log = NewConversationLog()
	}
	sessionID := uuid.NewString()
	o := &ResponseOrchestrator{
		provider:  provider,
		registry:  registry,
		log:       log,
		model:     model,
		maxRounds: DefaultMaxRounds,
		sessionID: sessionID,
		logger:    logger.With("component", "orchestrator", "session", sessionID),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionID returns the id used to tag this session's log records.
func (o *ResponseOrchestrator) SessionID() string { return o.sessionID }

// State returns the current state.
func (o *ResponseOrchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Metrics returns a copy of the session metrics.
func (o *ResponseOrchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

func (o *ResponseOrchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *ResponseOrchestrator) update(fn func(m *Metrics)) {
	o.mu.Lock()
	fn(&o.metrics)
	o.mu.Unlock()
}

// Run executes the session for instructions and returns the model's final
// answer. An orchestrator runs at most once; later calls fail with
// ErrSessionClosed.
func (o *ResponseOrchestrator) Run(ctx context.Context, instructions string) (answer string, err error) {
	o.mu.Lock()
	if o.used {
		o.mu.Unlock()
		return "", ErrSessionClosed
	}
	o.used = true
	o.mu.Unlock()

	start := time.Now()
	defer func() {
		o.update(func(m *Metrics) { m.Duration = time.Since(start) })
		if err != nil {
			o.setState(StateFailed)
			o.logger.Debug("session failed", "error", err)
		} else {
			o.setState(StateDone)
		}
		m := o.Metrics()
		o.logger.Info("session finished",
			"rounds", m.Rounds,
			"tool_calls", m.ToolCalls,
			"reasoning_items", m.ReasoningItems,
			"duration", m.Duration,
			"log_items", o.log.Len(),
		)
	}()

	if o.systemPrompt != "" {
		if err := o.log.Append(InputMessage{Role: "system", Content: o.systemPrompt}); err != nil {
			return "", err
		}
	}
	if err := o.log.Append(InputMessage{Role: "user", Content: instructions}); err != nil {
		return "", err
	}

	req := &ResponseRequest{
		Model: o.model,
		Text:  TextConfig{Format: ResponseTextFormat()},
	}
	if o.registry != nil && o.registry.Len() > 0 {
		req.Tools = o.registry.Descriptors()
		req.ToolChoice = "auto"
	}

	var final *string
	for round := 1; ; round++ {
		if round > o.maxRounds {
			return "", fmt.Errorf("%w: no final answer after %d rounds", ErrLiveness, o.maxRounds)
		}
		o.update(func(m *Metrics) { m.Rounds = round })

		o.setState(StateAwaitingModel)
		req.Input = o.log.Items()
		o.logger.Debug("requesting model response", "round", round, "input_items", len(req.Input))

		resp, err := o.provider.Respond(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("round %d: %w", round, ctx.Err())
			}
			if !errors.Is(err, ErrProtocol) {
				err = &ProtocolError{Message: "request failed", Err: err}
			}
			return "", fmt.Errorf("round %d: %w", round, err)
		}
		if len(resp.Output) == 0 {
			return "", fmt.Errorf("round %d: %w", round, &ProtocolError{Message: "response has no output items"})
		}

		o.setState(StateProcessingOutput)
		more, err := o.processOutput(ctx, resp.Output, &final)
		if err != nil {
			return "", fmt.Errorf("round %d: %w", round, err)
		}
		if !more {
			return *final, nil
		}
	}
}

// processOutput handles one round of output items in order and reports
// whether another round is needed: only when a tool was called or no
// final message has arrived yet.
func (o *ResponseOrchestrator) processOutput(ctx context.Context, output []json.RawMessage, final **string) (bool, error) {
	called := false
	for _, raw := range output {
		item, err := DecodeOutputItem(raw)
		if err != nil {
			return false, err
		}
		o.log.AppendRaw(item.Raw())

		switch it := item.(type) {
		case *ReasoningItem:
			o.update(func(m *Metrics) { m.ReasoningItems++ })

		case *FunctionCallItem:
			if err := o.handleFunctionCall(ctx, it); err != nil {
				return false, err
			}
			called = true

		case *MessageItem:
			text, err := it.ResponseText()
			if err != nil {
				return false, err
			}
			if *final != nil {
				return false, fmt.Errorf("%w: message %s", ErrDuplicateTerminalMessage, it.ID)
			}
			*final = &text
			o.logger.Debug("received final answer", "message", it.ID)
		}
	}
	return called || *final == nil, nil
}

func (o *ResponseOrchestrator) handleFunctionCall(ctx context.Context, call *FunctionCallItem) error {
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return fmt.Errorf("%w: call %s (%s): %v", ErrArgumentDecode, call.CallID, call.Name, err)
		}
	}

	o.update(func(m *Metrics) { m.ToolCalls++ })
	started := time.Now()
	if o.registry == nil {
		return &tools.ToolDispatchError{Tool: call.Name, Args: args, Err: tools.ErrUnknownTool}
	}
	result, err := o.registry.Dispatch(ctx, call.Name, args)
	if err != nil {
		return err
	}

	output, err := tools.EncodeResult(result)
	if err != nil {
		return &tools.ToolDispatchError{Tool: call.Name, Args: args, Err: err}
	}
	o.logger.Debug("tool call finished",
		"tool", call.Name,
		"call_id", call.CallID,
		"elapsed", time.Since(started),
		"output_bytes", len(output),
	)
	return o.log.Append(NewFunctionCallOutput(call.CallID, output))
}
