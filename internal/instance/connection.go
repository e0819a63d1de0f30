package instance

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const DefaultConnectionURL = "/ws?instance={{ .Instance.ID | urlquery }}"

// Connection tells a client where to open its socket for an instance.
type Connection struct {
	URL       string `json:"url"`
	Namespace string `json:"namespace"`
}

// ConnectionRenderer expands a connection URL template for each instance.
// Templates see .Instance and .Template.
type ConnectionRenderer struct {
	tmpl *template.Template
}

func NewConnectionRenderer(tmplStr string) (*ConnectionRenderer, error) {
	if tmplStr == "" {
		tmplStr = DefaultConnectionURL
	}

	tmpl, err := template.New("connection").Funcs(sprig.TxtFuncMap()).Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection template: %w", err)
	}

	return &ConnectionRenderer{tmpl: tmpl}, nil
}

func (r *ConnectionRenderer) Render(inst Instance, tmpl *Template) (Connection, error) {
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, struct {
		Instance Instance
		Template *Template
	}{inst, tmpl})
	if err != nil {
		return Connection{}, fmt.Errorf("executing connection template: %w", err)
	}

	return Connection{
		URL:       buf.String(),
		Namespace: "/" + inst.ID,
	}, nil
}
