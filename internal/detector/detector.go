package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// languages are the candidates summaries are checked against.
var languages = map[string]lingua.Language{
	"en": lingua.English,
	"ko": lingua.Korean,
	"ja": lingua.Japanese,
	"zh": lingua.Chinese,
	"de": lingua.German,
	"fr": lingua.French,
	"es": lingua.Spanish,
	"uk": lingua.Ukrainian,
	"ru": lingua.Russian,
}

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over the given ISO 639-1 codes, or over every
// supported language when none are given. Unknown codes are ignored.
func New(codes ...string) *Detector {
	var langs []lingua.Language
	for _, code := range codes {
		if lang, ok := languages[strings.ToLower(code)]; ok {
			langs = append(langs, lang)
		}
	}
	if len(langs) < 2 {
		langs = langs[:0]
		for _, lang := range languages {
			langs = append(langs, lang)
		}
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()

	return &Detector{detector: detector}
}

// Supported reports whether code can be detected.
func Supported(code string) bool {
	_, ok := languages[strings.ToLower(code)]
	return ok
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}
