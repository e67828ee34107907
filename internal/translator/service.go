// Package translator turns paper abstracts into Korean summaries.
//
// A Service wraps one Backend with the retry engine and guarantees a usable
// summary for every paper: the model output when a call succeeds, a fixed
// placeholder when the model answers with nothing, and the truncated
// abstract when the retry budget runs out.
package translator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/valpere/paperdigest/internal/errs"
	"github.com/valpere/paperdigest/internal/postprocess"
	"github.com/valpere/paperdigest/internal/retry"
	"github.com/valpere/paperdigest/internal/validator"
)

const (
	// Placeholder is the summary used when the backend replies with no text.
	Placeholder = "요약 실패"

	fallbackRunes = 300
)

const promptTemplate = "다음 논문의 제목과 초록을 한국어로 요약해줘. " +
	"논문의 핵심 내용과 중요한 발견을 모두 포함하도록 자연스럽게 요약할 것:\n\n" +
	"제목: %s\n\n초록: %s"

// BuildPrompt embeds title and abstract verbatim in the summarization prompt.
func BuildPrompt(title, abstract string) string {
	return fmt.Sprintf(promptTemplate, title, abstract)
}

// FallbackSummary returns abstract cut to its first 300 characters with an
// ellipsis, or abstract unchanged when it is not longer than that.
func FallbackSummary(abstract string) string {
	runes := []rune(abstract)
	if len(runes) <= fallbackRunes {
		return abstract
	}
	return string(runes[:fallbackRunes]) + "..."
}

type Service struct {
	backend Backend
	retry   *retry.Engine
	logger  *slog.Logger

	validator *validator.Validator
}

func NewService(backend Backend, engine *retry.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if engine == nil {
		engine = retry.New(retry.Config{}, logger)
	}
	return &Service{
		backend: backend,
		retry:   engine,
		logger:  logger.With("component", "translator", "backend", backend.Name()),
	}
}

// WithValidator makes replies the validator rejects count as failed attempts.
func (s *Service) WithValidator(v *validator.Validator) *Service {
	s.validator = v
	return s
}

func (s *Service) Backend() Backend {
	return s.backend
}

// Translate summarizes one paper. It never fails: when every attempt fails
// the result carries the fallback summary and StatusFallback.
func (s *Service) Translate(ctx context.Context, title, abstract string) Result {
	result := Result{
		EnglishAbstract: abstract,
		Backend:         s.backend.Name(),
		Model:           s.backend.Model(),
	}
	start := time.Now()

	req := Request{Title: title, Abstract: abstract, Prompt: BuildPrompt(title, abstract)}

	text, err := retry.Do(ctx, s.retry, "summarize", func(ctx context.Context) (string, error) {
		result.Attempts++
		raw, err := s.summarize(ctx, req)
		if err != nil {
			return "", err
		}
		text := postprocess.Clean(raw)
		if text != "" && s.validator != nil {
			if verr := s.validator.Validate(text, abstract); verr != nil {
				return "", errs.Transient("validate summary", verr)
			}
		}
		return text, nil
	})

	switch {
	case err != nil:
		s.logger.Error("translation failed, using fallback", "title", truncateTitle(title), "attempts", result.Attempts, "error", err)
		result.KoreanSummary = FallbackSummary(abstract)
		result.Status = StatusFallback
	case text == "":
		s.logger.Warn("backend returned no summary", "title", truncateTitle(title))
		result.KoreanSummary = Placeholder
		result.Status = StatusEmpty
	default:
		result.KoreanSummary = text
		result.Status = StatusOK
	}
	result.Latency = time.Since(start)
	return result
}

// summarize shields the service from a panicking backend.
func (s *Service) summarize(ctx context.Context, req Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Transient("summarize", fmt.Errorf("backend panic: %v", r))
		}
	}()
	return s.backend.Summarize(ctx, req)
}

// Check reports whether the backend's server answers. Backends that cannot
// tell are assumed available.
func (s *Service) Check(ctx context.Context) error {
	c, ok := s.backend.(Checker)
	if !ok {
		return nil
	}
	if err := c.IsAvailable(ctx); err != nil {
		s.logger.Warn("backend not available, papers will fall back if it stays down", "error", err)
		return err
	}
	s.logger.Debug("backend available")
	return nil
}

// Warmup preloads the model when the backend supports it.
func (s *Service) Warmup(ctx context.Context) {
	p, ok := s.backend.(Preloader)
	if !ok {
		return
	}
	if err := p.Warmup(ctx); err != nil {
		s.logger.Warn("model warmup failed", "model", s.backend.Model(), "error", err)
		return
	}
	s.logger.Info("model loaded", "model", s.backend.Model())
}

// Release unloads the model when the backend supports it.
func (s *Service) Release(ctx context.Context) {
	p, ok := s.backend.(Preloader)
	if !ok {
		return
	}
	if err := p.Release(ctx); err != nil {
		s.logger.Warn("model release failed", "model", s.backend.Model(), "error", err)
		return
	}
	s.logger.Info("model released", "model", s.backend.Model())
}

// Close releases backend clients that hold connections.
func (s *Service) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= 50 {
		return title
	}
	return string(runes[:50]) + "..."
}
