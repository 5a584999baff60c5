// Package html is the optional HTML rendering adapter for DISP _'s tracker
// graph. It is not imported by internal/exec; callers that want an HTML
// artifact call Render explicitly, keeping the core executor testable
// without a template/browser dependency (see DESIGN.md's Open Question
// decision on DISP _ rendering).
package html

import (
	"bytes"
	"encoding/json"
	"html/template"

	"github.com/raymundl/kestrel-lang/internal/display"
)

const trackerTemplate = `<!DOCTYPE html>
<html>
<head><title>Kestrel execution tracker</title></head>
<body>
<div id="tracker"></div>
<script>
const paths = {{.Paths}};
const stepTimestamps = {{.StepTimestamps}};
const variableTimestamps = {{.VariableTimestamps}};
const variableSummaries = {{.VariableSummaries}};
</script>
</body>
</html>
`

// Renderer renders a display.TrackerGraph to an HTML string.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer compiles the default tracker template. Session configuration
// may override it via session.execution_tracking['html_template'] at the
// call site by constructing a Renderer with a different template string
// using NewRendererFromString.
func NewRenderer() (*Renderer, error) {
	return NewRendererFromString(trackerTemplate)
}

// NewRendererFromString compiles a user-supplied template, enabling the
// session.execution_tracking['html_template'] override spec.md §9 mentions.
func NewRendererFromString(tmplText string) (*Renderer, error) {
	tmpl, err := template.New("tracker").Parse(tmplText)
	if err != nil {
		return nil, err
	}

	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the HTML artifact for a TrackerGraph, JSON-encoding its
// fields for interpolation into inline JavaScript.
func (r *Renderer) Render(g display.TrackerGraph) (string, error) {
	data := struct {
		Paths              template.JS
		StepTimestamps     template.JS
		VariableTimestamps template.JS
		VariableSummaries  template.JS
	}{}

	var err error

	if data.Paths, err = toJS(g.Paths); err != nil {
		return "", err
	}

	if data.StepTimestamps, err = toJS(g.StepTimestamps); err != nil {
		return "", err
	}

	if data.VariableTimestamps, err = toJS(g.VariableTimestamps); err != nil {
		return "", err
	}

	if data.VariableSummaries, err = toJS(g.VariableSummaries); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func toJS(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return template.JS(b), nil
}
