package findings

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/internal/remediation"
)

var (
	titleCase = cases.Title(language.English)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(12)
	controlCol  = lipgloss.NewStyle().Width(12)
	statusCol   = lipgloss.NewStyle().Width(10)

	statusStyles = map[models.FindingStatus]lipgloss.Style{
		models.StatusPass:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusPartial: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusFail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	priorityStyles = map[models.TaskPriority]lipgloss.Style{
		models.PriorityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.PriorityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	}
)

func status(s models.FindingStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(titleCase.String(string(s)))
}

// RenderPage writes one page of findings.
func RenderPage(w io.Writer, page *findings.Page) {
	if len(page.Findings) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No findings."))
		return
	}

	for _, f := range page.Findings {
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			controlCol.Render(f.ControlID),
			statusCol.Render(status(f.Status)),
			f.ControlTitle,
		)
		fmt.Fprintln(w, line)
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  %s %s · %s confidence · %s",
			f.Framework, f.ID, f.ConfidenceLevel, f.Summary)))
		if f.HumanOverride != nil {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  overridden %s → %s: %s",
				f.HumanOverride.OriginalStatus, f.HumanOverride.NewStatus, f.HumanOverride.Reason)))
		}
	}

	pages := (page.Total + page.Limit - 1) / max(page.Limit, 1)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("\nPage %d of %d (%d findings)", page.Page, max(pages, 1), page.Total)))
}

// RenderSummary writes the status, framework and confidence breakdowns.
func RenderSummary(w io.Writer, summary *models.FindingsSummary) {
	fmt.Fprintln(w, headerStyle.Render("Findings summary"))
	fmt.Fprintln(w, labelStyle.Render("Total")+fmt.Sprint(summary.Total))
	fmt.Fprintln(w, labelStyle.Render("Critical")+fmt.Sprint(summary.CriticalCount))

	for _, s := range []models.FindingStatus{models.StatusFail, models.StatusPartial, models.StatusPass} {
		fmt.Fprintln(w, labelStyle.Render(titleCase.String(string(s)))+status(s)+" "+fmt.Sprint(summary.ByStatus[s]))
	}

	frameworks := make([]string, 0, len(summary.ByFramework))
	for f, n := range summary.ByFramework {
		frameworks = append(frameworks, fmt.Sprintf("%s %d", f, n))
	}
	slices.Sort(frameworks)
	if len(frameworks) > 0 {
		fmt.Fprintln(w, labelStyle.Render("Frameworks")+strings.Join(frameworks, ", "))
	}
}

// RenderTasks writes remediation tasks grouped by priority.
func RenderTasks(w io.Writer, tasks []models.RepositoryTask) {
	groups := remediation.GroupByPriority(tasks)
	if len(groups) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No remediation tasks."))
		return
	}

	for _, g := range groups {
		style := priorityStyles[g.Priority]
		fmt.Fprintln(w, style.Render(fmt.Sprintf("%s (%d)", titleCase.String(string(g.Priority)), len(g.Tasks))))
		for _, t := range g.Tasks {
			fmt.Fprintf(w, "  • %s\n", t.Title)
		}
	}
}
