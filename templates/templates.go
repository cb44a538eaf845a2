package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"emoji-stories/controllers/websession"
	"emoji-stories/models/users"
)

//go:embed *.html
var files embed.FS

// Page is the data every page template receives.
type Page struct {
	Title   string
	User    *users.User
	Flashes []websession.Flash
	Data    interface{}
}

type Renderer struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("Jan 2, 15:04") },
	"inc":  func(i int) int { return i + 1 },
}

func New() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(files, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render executes the named page into a buffer first so a template error
// never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, page); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Pages renders full pages, attaching the session's pending flashes.
type Pages struct {
	Renderer *Renderer
	Sessions *websession.Manager
	Log      *zap.Logger
}

func (p *Pages) Show(w http.ResponseWriter, r *http.Request, status int, name, title string, user *users.User, data interface{}) {
	page := Page{
		Title:   title,
		User:    user,
		Flashes: p.Sessions.Flashes(w, r),
		Data:    data,
	}
	if err := p.Renderer.Render(w, status, name, page); err != nil && p.Log != nil {
		p.Log.Error("failed to render page", zap.String("page", name), zap.Error(err))
	}
}
