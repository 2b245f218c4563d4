package dashboard

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Options selects what the rendered dashboards query.
type Options struct {
	Table   string
	Metrics int
	Start   time.Time
	Hours   int
}

type templateData struct {
	Title    string
	Table    string
	Metrics  []int
	From, To string
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Templates read the datasource uid from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, opts Options) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"add": func(a, b int) int { return a + b },
		"mul": func(a, b int) int { return a * b },
		"div": func(a, b int) int { return a / b },
		"mod": func(a, b int) int { return a % b },
	}

	data := templateData{
		Title: "hotcloud " + opts.Table,
		Table: opts.Table,
		From:  opts.Start.UTC().Format(time.RFC3339),
		To:    opts.Start.Add(time.Duration(opts.Hours) * time.Hour).UTC().Format(time.RFC3339),
	}
	for m := range opts.Metrics {
		data.Metrics = append(data.Metrics, m)
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, entry := range names {
		tplName := entry.Name()
		t, err := template.New(tplName).Funcs(funcMap).ParseFS(templates, "templates/"+tplName)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tplName, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
