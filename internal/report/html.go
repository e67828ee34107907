package report

import (
	"html/template"
	"io"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/markdown"
	"github.com/valpere/paperdigest/internal/translator"
)

var htmlTemplates = template.Must(template.New("report").Parse(`
{{define "header"}}<!DOCTYPE html>
<html lang="ko"><head><meta charset="UTF-8"><title>{{.Title}}</title><style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 20px; color: #333; }
h1 { color: #2c3e50; text-align: center; margin-bottom: 30px; }
h2 { color: #3498db; border-bottom: 2px solid #3498db; padding-bottom: 5px; margin-top: 30px; cursor: pointer; }
h2:after { content: " ▼"; font-size: 0.8em; }
h2.collapsed:after { content: " ▶"; font-size: 0.8em; }
h3 { color: #2c3e50; margin-top: 20px; }
.paper { background-color: #f9f9f9; border-left: 5px solid #3498db; padding: 15px; margin-bottom: 25px; border-radius: 0 5px 5px 0; }
.paper.degraded { border-left-color: #e67e22; }
.meta { color: #7f8c8d; margin: 10px 0; font-size: 0.9em; }
.abstract { margin: 15px 0; text-align: justify; }
.summary { background-color: #eef9fd; padding: 15px; border-radius: 5px; margin-top: 15px; }
.notice { color: #d35400; font-size: 0.9em; }
.keyword { display: inline-block; background: #ecf0f1; border-radius: 3px; padding: 0 6px; margin-right: 4px; font-size: 0.85em; }
a { color: #3498db; text-decoration: none; }
a:hover { text-decoration: underline; }
.collapsed + .journal-content { display: none; }
</style><script>
document.addEventListener('DOMContentLoaded', function () {
  document.querySelectorAll('h2').forEach(function (h) {
    h.addEventListener('click', function () { this.classList.toggle('collapsed'); });
  });
});
</script></head><body>
<h1>{{.Title}}</h1>
<p>생성 일시: {{.Generated}}</p>
{{end}}

{{define "journal"}}
<h2>{{.}}</h2>
<div class="journal-content">
{{end}}

{{define "paper"}}<div class="paper{{if .Note}} degraded{{end}}">
<h3>{{.Paper.Title}}</h3>
<div class="meta"><span>출판일: {{.Paper.Published}}</span> <span>링크: <a href="{{.Paper.Link}}" target="_blank">원문 보기</a></span></div>
<div class="abstract"><h4>영문 초록</h4><p>{{.Result.EnglishAbstract}}</p></div>
<div class="summary"><h4>한글 요약</h4>{{if .Note}}<p class="notice">{{.Note}}</p>{{end}}{{.Summary}}</div>
{{with .Paper.Keywords}}<p>키워드: {{range .}}<span class="keyword">{{.}}</span>{{end}}</p>{{end}}
</div>
{{end}}

{{define "journal_end"}}</div>
{{end}}

{{define "footer"}}<p class="meta">총 {{.}}편 처리</p>
</body></html>
{{end}}
`))

type htmlWriter struct {
	base
	papers int
}

func (w *htmlWriter) Start() error {
	return w.create(func(out io.Writer) error {
		return htmlTemplates.ExecuteTemplate(out, "header", map[string]string{
			"Title":     Title,
			"Generated": w.now.Format(timestampLayout),
		})
	})
}

func (w *htmlWriter) StartJournal(name string) error {
	return w.appendTo(func(out io.Writer) error {
		return htmlTemplates.ExecuteTemplate(out, "journal", name)
	})
}

func (w *htmlWriter) AddPaper(p internal.Paper, r translator.Result) error {
	w.papers++
	return w.appendTo(func(out io.Writer) error {
		return htmlTemplates.ExecuteTemplate(out, "paper", map[string]any{
			"Paper":   p,
			"Result":  r,
			"Note":    statusNote(r.Status),
			"Summary": template.HTML(markdown.ToHTML([]byte(r.KoreanSummary))),
		})
	})
}

func (w *htmlWriter) EndJournal() error {
	return w.appendTo(func(out io.Writer) error {
		return htmlTemplates.ExecuteTemplate(out, "journal_end", nil)
	})
}

func (w *htmlWriter) End() error {
	return w.appendTo(func(out io.Writer) error {
		return htmlTemplates.ExecuteTemplate(out, "footer", w.papers)
	})
}
