// Package models holds the model endpoint transports.
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clawinfra/aido/internal/config"
	"github.com/clawinfra/aido/internal/orchestrator"
)

// OpenAIProvider implements orchestrator.ModelProvider on the OpenAI
// Responses API (POST {base_url}/responses).
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type openAIResponse struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Output []json.RawMessage `json:"output"`
	Error  *openAIError      `json:"error"`
}

// NewOpenAIProvider creates a provider from the endpoint settings in cfg.
func NewOpenAIProvider(cfg *config.Config, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "openai"),
	}
}

// Respond sends req and returns the raw output items. Every failure is a
// *orchestrator.ProtocolError.
func (p *OpenAIProvider) Respond(ctx context.Context, req *orchestrator.ResponseRequest) (*orchestrator.ModelResponse, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, &orchestrator.ProtocolError{Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", &body)
	if err != nil {
		return nil, &orchestrator.ProtocolError{Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &orchestrator.ProtocolError{Message: "http request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &orchestrator.ProtocolError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}
	p.logger.Debug("model responded",
		"model", req.Model,
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"elapsed", time.Since(start),
	)

	var apiResp openAIResponse
	decodeErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && apiResp.Error != nil {
			msg = describeError(apiResp.Error)
		}
		return nil, &orchestrator.ProtocolError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &orchestrator.ProtocolError{StatusCode: resp.StatusCode, Message: "unmarshal response", Err: decodeErr}
	}
	if apiResp.Error != nil {
		return nil, &orchestrator.ProtocolError{StatusCode: resp.StatusCode, Message: describeError(apiResp.Error)}
	}

	return &orchestrator.ModelResponse{ID: apiResp.ID, Output: apiResp.Output}, nil
}

func describeError(e *openAIError) string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Type)
}
