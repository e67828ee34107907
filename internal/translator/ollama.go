package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
)

const DefaultOllamaURL = "http://localhost:11434"

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx"`
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
	Reset       bool    `json:"reset"`
}

type OllamaBackend struct {
	baseURL string
	model   string
	options ollamaOptions
	client  *http.Client
}

func NewOllamaBackend(cfg config.OllamaConfig, timeout time.Duration) *OllamaBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/api/generate")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaBackend{
		baseURL: baseURL,
		model:   cfg.Model,
		options: ollamaOptions{
			NumCtx:      cfg.NumCtx,
			NumPredict:  cfg.NumPredict,
			Temperature: cfg.Temperature,
			Reset:       true,
		},
		client: &http.Client{Timeout: timeout},
	}
}

func (s *OllamaBackend) Name() string {
	return "ollama"
}

func (s *OllamaBackend) Model() string {
	return s.model
}

func (s *OllamaBackend) Summarize(ctx context.Context, req Request) (string, error) {
	ollamaReq := map[string]interface{}{
		"model":   s.model,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": s.options,
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := s.post(ctx, ollamaReq, &ollamaResp); err != nil {
		return "", err
	}
	return ollamaResp.Response, nil
}

// Warmup loads the model so the first paper does not pay the load time.
func (s *OllamaBackend) Warmup(ctx context.Context) error {
	return s.post(ctx, map[string]interface{}{
		"model":  s.model,
		"prompt": "",
		"stream": false,
	}, nil)
}

// Release asks the server to unload the model now.
func (s *OllamaBackend) Release(ctx context.Context) error {
	return s.post(ctx, map[string]interface{}{
		"model":      s.model,
		"keep_alive": 0,
	}, nil)
}

func (s *OllamaBackend) post(ctx context.Context, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", s.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return errs.Configf("ollama", "failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return errs.Transient("ollama", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return errs.Transient("ollama", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Transient("ollama", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// IsAvailable asks the server for its model list.
func (s *OllamaBackend) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", s.baseURL), nil)
	if err != nil {
		return errs.Configf("ollama", "failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errs.Transient("ollama", fmt.Errorf("server not available: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.Transient("ollama", fmt.Errorf("server returned status %d", resp.StatusCode))
	}
	return nil
}
