package web

import (
	"embed"
	"html/template"
)

//go:embed templates
var TemplatesFS embed.FS

// LoadTemplates parses the public tracking pages from the embedded
// filesystem.
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(TemplatesFS, "templates/*.html")
}
