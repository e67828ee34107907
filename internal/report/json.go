package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/translator"
)

// Document is the JSON report layout.
type Document struct {
	Title       string           `json:"title"`
	GeneratedAt time.Time        `json:"generated_at"`
	Journals    []JournalSection `json:"journals"`
}

type JournalSection struct {
	Name   string       `json:"name"`
	Papers []PaperEntry `json:"papers"`
}

type PaperEntry struct {
	internal.Paper
	EnglishAbstract string            `json:"english_abstract"`
	KoreanSummary   string            `json:"korean_summary"`
	Status          translator.Status `json:"status"`
	Backend         string            `json:"backend,omitempty"`
	Model           string            `json:"model,omitempty"`
}

type jsonWriter struct {
	base
	doc     Document
	current *JournalSection
}

func (w *jsonWriter) Start() error {
	w.doc = Document{Title: Title, GeneratedAt: w.now, Journals: []JournalSection{}}
	// create the file now so Path points at something during the run
	return w.create(func(out io.Writer) error { return nil })
}

func (w *jsonWriter) StartJournal(name string) error {
	w.doc.Journals = append(w.doc.Journals, JournalSection{Name: name, Papers: []PaperEntry{}})
	w.current = &w.doc.Journals[len(w.doc.Journals)-1]
	return nil
}

func (w *jsonWriter) AddPaper(p internal.Paper, r translator.Result) error {
	if w.current == nil {
		return fmt.Errorf("AddPaper called outside a journal section")
	}
	p.Abstract = ""
	w.current.Papers = append(w.current.Papers, PaperEntry{
		Paper:           p,
		EnglishAbstract: r.EnglishAbstract,
		KoreanSummary:   r.KoreanSummary,
		Status:          r.Status,
		Backend:         r.Backend,
		Model:           r.Model,
	})
	return nil
}

func (w *jsonWriter) EndJournal() error {
	w.current = nil
	return nil
}

func (w *jsonWriter) End() error {
	return w.create(func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(w.doc)
	})
}
