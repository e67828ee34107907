package feed

import (
	"strings"

	"github.com/valpere/paperdigest/internal/config"
)

// DefaultKeywords are the medical physics terms looked for in every paper.
var DefaultKeywords = []string{
	"radiation therapy", "radiotherapy", "dose", "dosimetry", "treatment planning",
	"IMRT", "VMAT", "stereotactic", "brachytherapy", "Monte Carlo", "CT", "MRI",
	"linear accelerator", "beam", "phantom", "QA", "quality assurance", "IGRT",
	"patient safety", "machine learning", "AI", "deep learning", "proton therapy",
	"imaging", "segmentation", "contouring", "organ at risk", "OAR", "PTV", "GTV",
}

type KeywordMatcher struct {
	enabled bool
	max     int
	terms   []string
}

func NewKeywordMatcher(cfg config.KeywordsConfig) *KeywordMatcher {
	terms := append(append([]string(nil), DefaultKeywords...), cfg.CustomTerms...)
	return &KeywordMatcher{enabled: cfg.Enabled, max: cfg.MaxCount, terms: terms}
}

// Match returns the terms found in title or abstract, case-insensitively
// and as plain substrings, in term-list order and capped at the configured
// count.
func (k *KeywordMatcher) Match(title, abstract string) []string {
	if !k.enabled || k.max <= 0 {
		return nil
	}
	combined := strings.ToLower(title + " " + abstract)

	var found []string
	for _, term := range k.terms {
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			found = append(found, term)
			if len(found) == k.max {
				break
			}
		}
	}
	return found
}
