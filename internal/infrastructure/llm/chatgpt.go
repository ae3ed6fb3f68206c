package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"EthnoCards/internal/config"
	"EthnoCards/internal/ports"
)

const (
	defaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.2
	defaultTimeout     = 45 * time.Second
)

// ChatGPTClient generates narratives through an OpenAI-compatible chat API.
type ChatGPTClient struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	prompt      Prompt
	httpClient  *http.Client
}

var _ ports.NarrativeGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.LLMConfig, prompt Prompt) *ChatGPTClient {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatGPTClient{
		endpoint:    endpoint,
		model:       model,
		apiKey:      cfg.APIKey,
		temperature: temperature,
		prompt:      prompt,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Generate returns the raw message content; shape checks happen upstream.
func (c *ChatGPTClient) Generate(ctx context.Context, req ports.NarrativeRequest) (ports.NarrativeResult, error) {
	if c == nil {
		return ports.NarrativeResult{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return ports.NarrativeResult{}, fmt.Errorf("chatgpt client misconfigured")
	}

	prompt, err := c.prompt.Render(req)
	if err != nil {
		return ports.NarrativeResult{}, err
	}

	body, err := json.Marshal(map[string]any{
		"model":           c.model,
		"temperature":     c.temperature,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return ports.NarrativeResult{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.NarrativeResult{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.NarrativeResult{}, fmt.Errorf("generate narrative: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ports.NarrativeResult{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.NarrativeResult{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return ports.NarrativeResult{}, fmt.Errorf("chatgpt returned no choices")
	}
	return ports.NarrativeResult{Raw: decoded.Choices[0].Message.Content}, nil
}
