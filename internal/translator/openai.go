package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, llama.cpp server, vLLM).
type OpenAIBackend struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func NewOpenAIBackend(cfg config.OpenAIConfig, timeout time.Duration) *OpenAIBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAIBackend{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

func (s *OpenAIBackend) Name() string {
	return "openai"
}

func (s *OpenAIBackend) Model() string {
	return s.model
}

func (s *OpenAIBackend) Summarize(ctx context.Context, req Request) (string, error) {
	if s.apiKey == "" {
		return "", errs.Configf("openai", "API key required")
	}

	openaiReq := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are an assistant that summarizes medical physics papers for Korean readers."},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": s.temperature,
	}
	if s.maxTokens > 0 {
		openaiReq["max_tokens"] = s.maxTokens
	}

	jsonData, err := json.Marshal(openaiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", errs.Configf("openai", "failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	httpReq.Header.Set("X-Title", "paperdigest")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", errs.Transient("openai", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", errs.Transient("openai", fmt.Errorf("API returned status %d: %v", resp.StatusCode, errResp["error"]))
	}

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", errs.Transient("openai", fmt.Errorf("failed to decode response: %w", err))
	}

	if len(openaiResp.Choices) == 0 {
		return "", nil
	}
	return openaiResp.Choices[0].Message.Content, nil
}
