package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"EthnoCards/internal/config"
	"EthnoCards/internal/ports"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates narratives through the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	prompt      Prompt
	timeout     time.Duration
}

var _ ports.NarrativeGenerator = (*GeminiClient)(nil)

// NewGeminiClient connects with an API key.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, prompt Prompt) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	// the shared endpoint defaults to the chat completions URL; anything else
	// is taken as a Gemini base URL
	if cfg.Endpoint != "" && cfg.Endpoint != defaultEndpoint {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" || model == defaultModel {
		model = defaultGeminiModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(temperature),
		prompt:      prompt,
		timeout:     timeout,
	}, nil
}

// Generate asks for a JSON response and returns its text.
func (g *GeminiClient) Generate(ctx context.Context, req ports.NarrativeRequest) (ports.NarrativeResult, error) {
	prompt, err := g.prompt.Render(req)
	if err != nil {
		return ports.NarrativeResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	})
	if err != nil {
		return ports.NarrativeResult{}, fmt.Errorf("gemini generate: %w", err)
	}
	return ports.NarrativeResult{Raw: resp.Text()}, nil
}
