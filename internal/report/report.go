// Package report writes the run's papers and summaries to an HTML, Markdown
// or JSON file named after the run date. A later run on the same day gets the
// run time appended to the name instead of overwriting the earlier report.
//
// The HTML and Markdown writers append to the file on every call, so a run
// that dies midway leaves the journals it finished on disk. The JSON writer
// produces a single document and writes it at End.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/translator"
)

const (
	Title = "논문 요약 보고서"

	timestampLayout = "2006-01-02 15:04:05"
)

// Writer receives the run in order: Start, then for each journal
// StartJournal, AddPaper calls and EndJournal, then End.
type Writer interface {
	Start() error
	StartJournal(name string) error
	AddPaper(p internal.Paper, r translator.Result) error
	EndJournal() error
	End() error
	// Path is the report file. It is final after Start.
	Path() string
}

// New returns the writer for format ("html", "md" or "json") writing into dir.
func New(format, dir string, now time.Time) (Writer, error) {
	base := base{dir: dir, ext: format, now: now, path: fileName(dir, now, format, 0)}
	switch format {
	case "html":
		return &htmlWriter{base: base}, nil
	case "md":
		return &markdownWriter{base: base}, nil
	case "json":
		return &jsonWriter{base: base}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// maxNameAttempts bounds the search for a free report name.
const maxNameAttempts = 100

// fileName returns the n-th candidate name: the day name first, then the
// day and run time, then the run time with a counter.
func fileName(dir string, now time.Time, ext string, n int) string {
	name := "papers_summary_" + now.Format("20060102")
	switch {
	case n == 1:
		name += "_" + now.Format("150405")
	case n > 1:
		name += fmt.Sprintf("_%s_%d", now.Format("150405"), n)
	}
	return filepath.Join(dir, name+"."+ext)
}

type base struct {
	dir     string
	ext     string
	path    string
	now     time.Time
	claimed bool
}

func (b *base) Path() string {
	return b.path
}

// claim creates the report file under the first name no earlier report uses.
func (b *base) claim() error {
	if b.claimed {
		return nil
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for n := 0; n < maxNameAttempts; n++ {
		path := fileName(b.dir, b.now, b.ext, n)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		b.path = path
		b.claimed = true
		return nil
	}
	return fmt.Errorf("create report: no free file name in %s", b.dir)
}

// create truncates this run's report file and writes the header through fn.
func (b *base) create(fn func(w io.Writer) error) error {
	if err := b.claim(); err != nil {
		return err
	}
	return b.write(os.O_TRUNC|os.O_WRONLY, fn)
}

func (b *base) appendTo(fn func(w io.Writer) error) error {
	return b.write(os.O_APPEND|os.O_WRONLY, fn)
}

func (b *base) write(flag int, fn func(w io.Writer) error) error {
	f, err := os.OpenFile(b.path, flag, 0644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// statusNote is the notice shown next to degraded summaries.
func statusNote(s translator.Status) string {
	switch s {
	case translator.StatusFallback:
		return "자동 요약 실패: 초록 앞부분을 표시합니다"
	case translator.StatusEmpty:
		return "모델이 빈 응답을 반환했습니다"
	default:
		return ""
	}
}
