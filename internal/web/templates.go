package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*
var templateFS embed.FS

// Presentation owns the parsed page and fragment templates.
type Presentation struct {
	tmpl *template.Template
}

func NewPresentation() (*Presentation, error) {
	tmpl, err := template.New("studydesk").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Presentation{tmpl: tmpl}, nil
}

// render executes the named template into a buffer first, so a failing
// template never leaves a half-written page behind and callers can still
// answer with an error status.
func (p *Presentation) render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
