package translator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
	"github.com/valpere/paperdigest/internal/retry"
	"github.com/valpere/paperdigest/internal/validator"
)

// New builds the Service for the configured provider. Missing provider
// settings are reported as Configuration errors before any call is made.
func New(ctx context.Context, cfg config.TranslatorConfig, logger *slog.Logger) (*Service, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine := retry.New(retry.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryDelay,
	}, logger)

	svc := NewService(backend, engine, logger)
	if cfg.ValidateLanguage {
		svc.WithValidator(validator.New(cfg.TargetLanguage))
	}
	return svc, nil
}

func newBackend(ctx context.Context, cfg config.TranslatorConfig) (Backend, error) {
	if cfg.Timeout <= 0 {
		return nil, errs.Configf("translator", "timeout must be positive, got %v", cfg.Timeout)
	}

	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		if cfg.Ollama.BaseURL == "" || cfg.Ollama.Model == "" {
			return nil, errs.Configf("translator", "Ollama base_url and model required")
		}
		return NewOllamaBackend(cfg.Ollama, cfg.Timeout), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" || cfg.OpenAI.Model == "" {
			return nil, errs.Configf("translator", "OpenAI api_key and model required")
		}
		return NewOpenAIBackend(cfg.OpenAI, cfg.Timeout), nil
	case "google":
		if cfg.TargetLanguage == "" {
			return nil, errs.Configf("translator", "target_language required")
		}
		b, err := NewGoogleBackend(ctx, cfg.Google, cfg.TargetLanguage)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errs.Configf("translator", "provider not implemented: %q", cfg.Provider)
	}
}
