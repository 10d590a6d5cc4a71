package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

//go:embed templates/*
var templateFS embed.FS

// templateFuncs returns the helpers shared by the HTML and Markdown templates.
func templateFuncs() map[string]any {
	return map[string]any{
		"statusClass": func(status models.FindingStatus) string {
			return "status-" + string(status)
		},
		"statusIcon": func(status models.FindingStatus) string {
			switch status {
			case models.StatusPass:
				return "✅"
			case models.StatusPartial:
				return "🟡"
			case models.StatusFail:
				return "🔴"
			default:
				return "⚪"
			}
		},
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05 MST")
		},
		"count": func(summary *models.FindingsSummary, status string) int {
			return summary.ByStatus[models.FindingStatus(status)]
		},
		"title":    cases.Title(language.English).String,
		"location": location,
		"cell": func(s string) string {
			s = strings.ReplaceAll(s, "|", `\|`)
			return strings.Join(strings.Fields(s), " ")
		},
	}
}

func location(e models.Evidence) string {
	if len(e.LineNumbers) == 0 {
		return e.Path
	}
	lines := make([]string, 0, len(e.LineNumbers))
	for _, n := range e.LineNumbers {
		lines = append(lines, strconv.Itoa(n))
	}
	return e.Path + ":" + strings.Join(lines, ",")
}

type htmlFormat struct {
	logger logger.Logger
	tmpl   *template.Template
}

func newHTMLFormat(log logger.Logger) (*htmlFormat, error) {
	tmpl, err := template.New("report").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &htmlFormat{logger: log, tmpl: tmpl}, nil
}

func (f *htmlFormat) Generate(w io.Writer, data *Data) error {
	if err := f.tmpl.ExecuteTemplate(w, "report.html", data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	f.logger.Info("Generated HTML report", "snapshot_id", data.Snapshot.ID, "frameworks", len(data.Frameworks))
	return nil
}

func (f *htmlFormat) Name() string { return "html" }

func (f *htmlFormat) Description() string { return "Standalone HTML compliance report" }

type markdownFormat struct {
	logger logger.Logger
	tmpl   *texttemplate.Template
}

func newMarkdownFormat(log logger.Logger) (*markdownFormat, error) {
	tmpl, err := texttemplate.New("report").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.md")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &markdownFormat{logger: log, tmpl: tmpl}, nil
}

func (f *markdownFormat) Generate(w io.Writer, data *Data) error {
	if err := f.tmpl.ExecuteTemplate(w, "report.md", data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	f.logger.Info("Generated Markdown report", "snapshot_id", data.Snapshot.ID, "frameworks", len(data.Frameworks))
	return nil
}

func (f *markdownFormat) Name() string { return "markdown" }

func (f *markdownFormat) Description() string { return "Markdown report with a remediation checklist" }
