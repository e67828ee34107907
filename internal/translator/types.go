package translator

import (
	"context"
	"time"
)

// Status tells genuine model output apart from the two degraded outcomes.
type Status string

const (
	StatusOK       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusFallback Status = "fallback"
)

// Request is one paper to summarize.
type Request struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	// Prompt is the full instruction sent to LLM backends.
	Prompt string `json:"prompt"`
}

// Result is the outcome of Service.Translate. It always carries a summary.
type Result struct {
	EnglishAbstract string        `json:"english_abstract"`
	KoreanSummary   string        `json:"korean_summary"`
	Status          Status        `json:"status"`
	Backend         string        `json:"backend"`
	Model           string        `json:"model"`
	Attempts        int           `json:"attempts"`
	Latency         time.Duration `json:"latency"`
}

// Fallback reports whether the summary is the truncated abstract.
func (r Result) Fallback() bool {
	return r.Status == StatusFallback
}

// Backend produces a summary for one request. Errors are retried by the
// Service unless they are Configuration errors.
type Backend interface {
	Name() string
	Model() string
	Summarize(ctx context.Context, req Request) (string, error)
}

// Preloader is implemented by backends that can load their model ahead of a
// run and free it afterwards.
type Preloader interface {
	Warmup(ctx context.Context) error
	Release(ctx context.Context) error
}

// Checker is implemented by backends that can tell whether their server is
// reachable before the first request.
type Checker interface {
	IsAvailable(ctx context.Context) error
}
