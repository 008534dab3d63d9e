package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

//go:embed templates
var embedded embed.FS

const (
	layoutFile = "layout.html"
	pagesGlob  = "pages/*.html"
	watchGlob  = "**/*.html"
)

// templateSet holds one parsed template per page, each a clone of the
// layout. It can be re-parsed while requests are served.
type templateSet struct {
	fsys fs.FS

	mu      sync.RWMutex
	pages   map[string]*template.Template
	loaded  time.Time
	reloads int
}

// newTemplateSet parses the embedded pages, or the ones under dir when it
// is not empty.
func newTemplateSet(dir string) (*templateSet, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	t := &templateSet{fsys: fsys}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// load re-parses every page. On error the previous set stays in place.
func (t *templateSet) load() error {
	pages, err := parsePages(t.fsys)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.pages != nil {
		t.reloads++
	}
	t.pages = pages
	t.loaded = time.Now()
	t.mu.Unlock()
	return nil
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	layout, err := template.New(layoutFile).ParseFS(fsys, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := doublestar.Glob(fsys, pagesGlob)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no pages match %s", pagesGlob)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		page, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := page.ParseFS(fsys, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), path.Ext(file))] = page
	}
	return pages, nil
}

func (t *templateSet) render(w io.Writer, name string, data any) error {
	t.mu.RLock()
	page, ok := t.pages[name]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return page.ExecuteTemplate(w, "layout", data)
}
