// Package assist runs the generative text flows behind line-item
// suggestions, categorisation, description rewriting and the support chat.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
)

// ErrUnavailable is returned when no model endpoint is configured.
var ErrUnavailable = errors.New("assist: generative text unavailable")

// Flow is a named prompt. System is sent as the system message and Prompt
// is executed against the flow input to build the user message.
type Flow struct {
	Name   string
	System string
	Prompt *template.Template
}

// Render executes the flow's prompt template with input.
func (f Flow) Render(input any) (string, error) {
	var buf bytes.Buffer
	if err := f.Prompt.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("assist/%s: rendering prompt: %w", f.Name, err)
	}
	return buf.String(), nil
}

// Runner executes a flow and decodes the model's JSON answer into output.
type Runner interface {
	Run(ctx context.Context, flow Flow, input, output any) error
}

// NewRunner returns an HTTPRunner when an endpoint is configured and an
// UnavailableRunner otherwise.
func NewRunner(cfg Config) Runner {
	if !cfg.Enabled() {
		return UnavailableRunner{}
	}
	return NewHTTPRunner(cfg, nil)
}

// UnavailableRunner fails every flow with ErrUnavailable.
type UnavailableRunner struct{}

func (UnavailableRunner) Run(context.Context, Flow, any, any) error { return ErrUnavailable }

// ProviderError is a non-200 answer from the model endpoint.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("assist: provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("assist: provider returned %d: %s", e.StatusCode, e.Message)
}

// HTTPRunner talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, vLLM, Ollama, ...).
type HTTPRunner struct {
	cfg    Config
	client *http.Client
}

// NewHTTPRunner creates a runner. A nil client gets one with cfg.Timeout.
func NewHTTPRunner(cfg Config, client *http.Client) *HTTPRunner {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPRunner{cfg: cfg, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	ResponseFormat chatResponseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r *HTTPRunner) Run(ctx context.Context, flow Flow, input, output any) error {
	if r.cfg.Endpoint == "" {
		return ErrUnavailable
	}
	prompt, err := flow.Render(input)
	if err != nil {
		return err
	}
	prefix := "assist/" + flow.Name

	wire := chatRequest{
		Model:          r.cfg.Model,
		ResponseFormat: chatResponseFormat{Type: "json_object"},
	}
	if flow.System != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: flow.System})
	}
	wire.Messages = append(wire.Messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readProviderError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: decoding response: %w", prefix, err)
	}
	if len(decoded.Choices) == 0 {
		return fmt.Errorf("%s: response has no choices", prefix)
	}
	content := stripFence(decoded.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), output); err != nil {
		return fmt.Errorf("%s: decoding output: %w", prefix, err)
	}
	return nil
}

func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
}

// stripFence removes a ```json fence some local models wrap around
// their JSON answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
