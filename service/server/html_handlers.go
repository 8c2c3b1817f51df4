package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/tokensmith/service/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type indexPage struct {
	Network         string
	Connected       bool
	Wallet          string
	DefaultReceiver string
	DefaultAmount   uint64
	StreamEnabled   bool
}

// handleIndexPage serves the page with the connect, create, mint and transfer buttons.
func handleIndexPage(renderer *TemplateRenderer, s *session.Session, streamEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		receiver, amount := s.TransferDefaults()
		data := indexPage{
			Network:         s.Network(),
			DefaultReceiver: receiver.String(),
			DefaultAmount:   amount,
			StreamEnabled:   streamEnabled,
		}
		if wallet, ok := s.Wallet(); ok {
			data.Connected = true
			data.Wallet = wallet.String()
		}

		if err := renderer.Render(w, "index.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
