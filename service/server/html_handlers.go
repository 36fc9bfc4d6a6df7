package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/fundlift/fundlift/service/config"
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

// handleDashboardPage serves the project dashboard page
func handleDashboardPage(renderer *TemplateRenderer, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		explorer := ""
		if len(cfg.TargetNetwork.ExplorerURLs) > 0 {
			explorer = cfg.TargetNetwork.ExplorerURLs[0]
		}
		data := map[string]interface{}{
			"NetworkName":    cfg.TargetNetwork.Name,
			"CurrencySymbol": cfg.TargetNetwork.Currency.Symbol,
			"ContractAddr":   cfg.ContractAddress.Hex(),
			"ExplorerURL":    explorer,
		}
		if err := renderer.Render(w, "dashboard.html", data); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
