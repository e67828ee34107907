package translator

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
)

const googleModel = "nmt"

// GoogleBackend machine-translates the abstract with Cloud Translation. It
// does not summarize; the report carries the full translated abstract.
type GoogleBackend struct {
	client *translate.Client
	target language.Tag
}

func NewGoogleBackend(ctx context.Context, cfg config.GoogleConfig, targetLang string) (*GoogleBackend, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return nil, errs.Configf("google", "invalid target language %q: %w", targetLang, err)
	}

	opts := []option.ClientOption{}
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.Configf("google", "failed to create client: %w", err)
	}
	return &GoogleBackend{client: client, target: target}, nil
}

func (s *GoogleBackend) Name() string {
	return "google"
}

func (s *GoogleBackend) Model() string {
	return googleModel
}

func (s *GoogleBackend) Summarize(ctx context.Context, req Request) (string, error) {
	translations, err := s.client.Translate(ctx, []string{req.Abstract}, s.target, &translate.Options{
		Source: language.English,
		Format: translate.Text,
		Model:  googleModel,
	})
	if err != nil {
		return "", errs.Transient("google", fmt.Errorf("translation failed: %w", err))
	}
	if len(translations) == 0 {
		return "", nil
	}
	return translations[0].Text, nil
}

func (s *GoogleBackend) Close() error {
	return s.client.Close()
}
