package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var diagramTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("02/01/2006 15:04")
		},
	}

	templateContent, err := templateFS.ReadFile("templates/diagram.html")
	if err != nil {
		// Fallback to built-in template if file not found
		diagramTemplate = template.Must(template.New("diagram").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	diagramTemplate = template.Must(template.New("diagram").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for diagram template rendering.
type TemplateData struct {
	Name          string
	Version       int
	UpdatedAt     time.Time
	Code          string
	ImageDataURL  template.URL
	Pending       []TemplateComment
	VersionGroups []TemplateVersionGroup
}

type TemplateVersionGroup struct {
	Label    string
	Comments []TemplateComment
}

type TemplateComment struct {
	Text         string
	Author       string
	Lines        string
	CodeSnapshot string
	CreatedAt    time.Time
}

// RenderDiagramHTML renders the diagram template with provided data.
func RenderDiagramHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := diagramTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div>Version {{.Version}} | {{formatDate .UpdatedAt}}</div>
  {{if .ImageDataURL}}<img src="{{.ImageDataURL}}" alt="{{.Name}}">{{end}}
  <pre>{{.Code}}</pre>
  {{range .Pending}}<div class="comment">{{.Text}}</div>{{end}}
</body>
</html>`
