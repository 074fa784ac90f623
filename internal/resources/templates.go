// Package resources serves the HTML pages of the grant flow and keeps the
// client registry in step with a directory of client definitions. Both can
// be hot-reloaded from disk.
package resources

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"sync"
)

//go:embed templates/*.html
var embedded embed.FS

const (
	TemplateLogin   = "login.html"
	TemplateConsent = "consent.html"
	TemplateError   = "error.html"
)

// Templates renders the built-in pages. When an override directory is set,
// any *.html file in it replaces the built-in template of the same name.
type Templates struct {
	mu     sync.RWMutex
	tmpl   *template.Template
	dir    string
	logger *slog.Logger
}

func NewTemplates(
	dir string,
	logger *slog.Logger,
) (
	*Templates,
	error,
) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Templates{dir: dir, logger: logger}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the named template into a buffer so a failed render never
// writes a partial page.
func (t *Templates) Render(name string, data any) ([]byte, error) {
	t.mu.RLock()
	tmpl := t.tmpl
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render '%s': %w", name, err)
	}
	return buf.Bytes(), nil
}

// Reload reparses the templates. On failure the previous set stays active.
func (t *Templates) Reload() error {
	tmpl, err := template.ParseFS(embedded, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse embedded templates: %w", err)
	}

	if t.dir != "" {
		matches, err := filepath.Glob(filepath.Join(t.dir, "*.html"))
		if err != nil {
			return fmt.Errorf("failed to list templates in '%s': %w", t.dir, err)
		}
		if len(matches) > 0 {
			if tmpl, err = tmpl.ParseFiles(matches...); err != nil {
				return fmt.Errorf("failed to parse templates from '%s': %w", t.dir, err)
			}
		}
	}

	t.mu.Lock()
	t.tmpl = tmpl
	t.mu.Unlock()

	t.logger.Info("templates loaded", "dir", t.dir)
	return nil
}

// Watch reloads the override directory whenever it changes, until ctx is
// done. It is a no-op without an override directory.
func (t *Templates) Watch(ctx context.Context) error {
	if t.dir == "" {
		return nil
	}
	err := watchDir(ctx, t.dir, t.logger, func() {
		if err := t.Reload(); err != nil {
			t.logger.Error("failed to reload templates", "dir", t.dir, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start template watcher: %w", err)
	}
	return nil
}
