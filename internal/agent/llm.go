// Package agent holds the thin HTTP clients for the external capabilities
// the pipeline consumes: structured text generation and speech-to-text.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"clinical-scribe/internal/clinicerr"
)

// LLMClient talks to a chat-completions compatible endpoint. It implements
// both the cascade's generation capability and the transcript refiner.
type LLMClient struct {
	http  *resty.Client
	model string
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewLLMClient(cfg LLMConfig) *LLMClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &LLMClient{http: client, model: cfg.Model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a system+user prompt pair and returns the raw model output.
// The JSON response format is requested so stage outputs stay parseable.
func (c *LLMClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, true, 0.3)
}

// Chat is Generate without the JSON response constraint, used for the
// free-form consultation chat.
func (c *LLMClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, false, 0.7)
}

// Refine asks the model to clean up a raw transcription chunk. Callers fall
// back to the original text on error.
func (c *LLMClient) Refine(ctx context.Context, text string) (string, error) {
	system := "You are a medical scribe. Faithfully transcribe what was said during " +
		"the consultation. Do not add interpretations, only fix obvious " +
		"transcription artifacts. Reply with the corrected text and nothing else."
	user := fmt.Sprintf("Refine the following consultation transcript fragment, staying faithful to what was said:\n%s", text)
	return c.complete(ctx, system, user, false, 0.3)
}

func (c *LLMClient) complete(ctx context.Context, systemPrompt, userPrompt string, jsonFormat bool, temperature float64) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	if jsonFormat {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("generation API error (%s): %s", resp.Status(), out.Error.Message)
		}
		return "", fmt.Errorf("generation API error: %s", resp.Status())
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", &clinicerr.MalformedResponseError{
			Stage: "generation",
			Raw:   string(resp.Body()),
			Err:   fmt.Errorf("empty completion"),
		}
	}
	return out.Choices[0].Message.Content, nil
}
