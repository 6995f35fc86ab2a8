// Package render turns chat state into terminal markdown.
package render

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/docs"
)

const answerTemplate = `{{ .Content }}
{{ if .Elapsed }}
⏱️ Response time: {{ printf "%.2f" (deref .Elapsed) }} s
{{ end -}}
{{ if .Sources }}
**Sources**
{{ range $idx, $src := .Sources }}
{{ add $idx 1 }}. [{{ $src.Source }}]({{ call $.Link $src.Source }}) (pages {{ $src.StartPage }}-{{ $src.EndPage }})
{{- end }}
{{ end -}}
`

const historyTemplate = `{{ range .Messages -}}
**{{ .Role | toString | title }}**: {{ .Content }}

{{ end -}}
`

const docsTemplate = `{{ if not .Available -}}
_File list unavailable._
{{ else if and (not .Records) (not .Uploading) -}}
_No files uploaded._
{{ else -}}
{{ range .Records -}}
- [{{ .Filename }}]({{ call $.Link .Filename }}){{ if ne (toString .State) "listed" }} _({{ .State }}...)_{{ end }}
{{ end -}}
{{ range .Uploading -}}
- {{ . }} _(uploading...)_
{{ end -}}
{{ end -}}
`

// LinkFunc builds the URL of a document name.
type LinkFunc func(name string) string

type Renderer struct {
	// Style is a glamour style name. Plain output skips glamour entirely.
	Style string
	Plain bool

	templates *template.Template
}

func NewRenderer(style string, plain bool) *Renderer {
	funcs := sprig.TxtFuncMap()
	funcs["deref"] = func(f *float64) float64 {
		if f == nil {
			return 0
		}
		return *f
	}
	t := template.Must(template.New("answer").Funcs(funcs).Parse(answerTemplate))
	template.Must(t.New("history").Parse(historyTemplate))
	template.Must(t.New("docs").Parse(docsTemplate))

	if style == "" {
		style = "dark"
	}
	return &Renderer{Style: style, Plain: plain, templates: t}
}

// Answer renders an assistant reply followed by its response time and sources.
func (r *Renderer) Answer(content string, sources []chat.Source, elapsed *float64, link LinkFunc) (string, error) {
	return r.render("answer", map[string]interface{}{
		"Content": content,
		"Sources": sources,
		"Elapsed": elapsed,
		"Link":    link,
	})
}

// History renders the visible conversation.
func (r *Renderer) History(msgs []chat.Message) (string, error) {
	return r.render("history", map[string]interface{}{
		"Messages": msgs,
	})
}

// Documents renders the corpus listing, distinguishing an unavailable listing from an
// empty one.
func (r *Renderer) Documents(available bool, records []docs.Record, uploading []string, link LinkFunc) (string, error) {
	return r.render("docs", map[string]interface{}{
		"Available": available,
		"Records":   records,
		"Uploading": uploading,
		"Link":      link,
	})
}

func (r *Renderer) render(name string, data interface{}) (string, error) {
	var buffer bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buffer, name, data); err != nil {
		return "", err
	}
	md := strings.TrimSpace(buffer.String()) + "\n"
	if r.Plain {
		return md, nil
	}
	styled, err := glamour.Render(md, r.Style)
	if err != nil {
		return md, err
	}
	return styled, nil
}
