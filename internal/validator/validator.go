// Package validator decides whether a model reply can stand as the summary of
// an abstract.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/valpere/paperdigest/internal/detector"
	"github.com/valpere/paperdigest/internal/markdown"
)

const (
	// minValidationLength is the plain-text rune count below which the
	// language is not checked.
	minValidationLength = 20

	// minScriptShare is the share of letters in the target script that
	// passes without language detection. Summaries keep English terms
	// (VMAT, Monte Carlo, p-values), so the bar is low.
	minScriptShare = 0.3

	// minEchoLength is the rune count from which a reply found verbatim in
	// the abstract counts as a copy.
	minEchoLength = 40
)

var ErrEmpty = errors.New("summary is empty")

// scripts lists the letters that make up each target language. Languages
// written in Latin script have no entry and go through detection only.
var scripts = map[string][]*unicode.RangeTable{
	"ko": {unicode.Hangul},
	"ja": {unicode.Hiragana, unicode.Katakana, unicode.Han},
	"zh": {unicode.Han},
	"uk": {unicode.Cyrillic},
	"ru": {unicode.Cyrillic},
}

// Validator checks replies against one target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	target string
	det    *detector.Detector
}

// New creates a Validator for targetLang. An empty targetLang only rejects
// empty replies and copies of the abstract.
func New(targetLang string) *Validator {
	target := strings.ToLower(strings.TrimSpace(targetLang))
	v := &Validator{target: target}
	if target != "" {
		v.det = detector.New(target, "en", "ja", "zh")
	}
	return v
}

// Validate returns nil when summary reads as a summary of abstract.
//
// The markdown is rendered to plain text first. A reply that repeats the
// abstract fails, as does one whose language is not the target. Short
// replies and replies whose language cannot be determined pass.
func (v *Validator) Validate(summary, abstract string) error {
	text := markdown.ToPlainText([]byte(summary))
	if text == "" {
		return ErrEmpty
	}

	if isEcho(text, abstract) {
		return fmt.Errorf("summary repeats the abstract")
	}

	if v.target == "" || len([]rune(text)) < minValidationLength {
		return nil
	}

	if tables, ok := scripts[v.target]; ok {
		share, letters := scriptShare(text, tables)
		switch {
		case letters == 0:
			return nil
		case share >= minScriptShare:
			return nil
		case share == 0:
			return fmt.Errorf("expected %s but found no %s letters", v.target, v.target)
		}
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}
	if !strings.EqualFold(detected, v.target) {
		return fmt.Errorf("expected %s but detected %s", v.target, detected)
	}
	return nil
}

func isEcho(text, abstract string) bool {
	a := strings.Join(strings.Fields(abstract), " ")
	if a == "" || len([]rune(text)) < minEchoLength {
		return text == a
	}
	return strings.Contains(strings.ToLower(a), strings.ToLower(text))
}

// scriptShare returns the share of letters in text that belong to tables,
// and the number of letters.
func scriptShare(text string, tables []*unicode.RangeTable) (float64, int) {
	var letters, inScript int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.In(r, tables...) {
			inScript++
		}
	}
	if letters == 0 {
		return 0, 0
	}
	return float64(inScript) / float64(letters), letters
}
