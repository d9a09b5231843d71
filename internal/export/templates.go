package export

import (
	"bytes"
	"embed"
	"text/template"
	"time"

	"poppy/api/internal/store"
)

//go:embed templates/*.md
var templateFS embed.FS

var ideaTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefFloat": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
	}

	templateContent, err := templateFS.ReadFile("templates/idea.md")
	if err != nil {
		// Fallback to built-in template if file not found
		ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for idea template rendering
type TemplateData struct {
	Idea         store.Idea
	History      []store.HistoryEntry
	Contributors []store.Contributor
}

// RenderIdeaMarkdown renders an idea into markdown.
func RenderIdeaMarkdown(data TemplateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := ideaTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const fallbackTemplate = `# {{.Idea.Title}}

{{.Idea.Content}}
`
