package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/translator"
)

type markdownWriter struct {
	base
}

func (w *markdownWriter) Start() error {
	return w.create(func(out io.Writer) error {
		_, err := fmt.Fprintf(out, "# %s\n\n**생성 일시:** %s\n\n---\n\n", Title, w.now.Format(timestampLayout))
		return err
	})
}

func (w *markdownWriter) StartJournal(name string) error {
	return w.appendTo(func(out io.Writer) error {
		_, err := fmt.Fprintf(out, "\n## %s\n\n<details>\n<summary>논문 목록 보기</summary>\n\n", name)
		return err
	})
}

func (w *markdownWriter) AddPaper(p internal.Paper, r translator.Result) error {
	keywords := "없음"
	if len(p.Keywords) > 0 {
		quoted := make([]string, len(p.Keywords))
		for i, k := range p.Keywords {
			quoted[i] = "`" + k + "`"
		}
		keywords = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n- [ ] **%s**\n**출판일:** %s\n\n", p.Title, p.Title, p.Published)
	b.WriteString("<details>\n<summary>-내용보기-</summary>\n\n")
	fmt.Fprintf(&b, "**링크:** [%s](%s)\n**키워드:** %s\n\n", p.Link, p.Link, keywords)
	fmt.Fprintf(&b, "**영문 초록**\n%s\n\n", r.EnglishAbstract)
	b.WriteString("**한글 요약**\n")
	if note := statusNote(r.Status); note != "" {
		fmt.Fprintf(&b, "> ⚠️ %s\n\n", note)
	}
	fmt.Fprintf(&b, "%s\n\n</details>\n\n", r.KoreanSummary)

	return w.appendTo(func(out io.Writer) error {
		_, err := io.WriteString(out, b.String())
		return err
	})
}

func (w *markdownWriter) EndJournal() error {
	return w.appendTo(func(out io.Writer) error {
		_, err := io.WriteString(out, "\n</details>\n\n---\n\n")
		return err
	})
}

func (w *markdownWriter) End() error {
	return w.appendTo(func(out io.Writer) error {
		_, err := io.WriteString(out, "\n---\n\n**요약 작업 완료**\n")
		return err
	})
}
