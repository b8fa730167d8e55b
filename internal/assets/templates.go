package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"maps"
)

// NewTemplates parses the templates in fsys matching pattern. The pipeline adds a
// script function resolving compiled script URLs.
func (p *Pipeline) NewTemplates(fsys fs.FS, pattern string, customFuncs template.FuncMap) (*template.Template, error) {
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
		"script": p.ScriptURL,
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)

	return template.New(pattern).Funcs(funcs).ParseFS(fsys, pattern)
}

// Render executes name into a buffer first so a failing template doesn't leave
// a half written page behind.
func Render(w io.Writer, tmpl *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
