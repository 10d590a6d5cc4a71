// Package report renders compliance reports for a snapshot: findings grouped
// by framework, the summary counts and the open remediation tasks.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/internal/remediation"
)

var statusOrder = map[models.FindingStatus]int{
	models.StatusFail:    0,
	models.StatusPartial: 1,
	models.StatusPass:    2,
}

// Data is everything a report format renders.
type Data struct {
	GeneratedAt time.Time               `json:"generatedAt"`
	Run         *models.AnalysisRun     `json:"run,omitempty"`
	Summary     *models.FindingsSummary `json:"summary"`
	Snapshot    models.Snapshot         `json:"snapshot"`
	Frameworks  []FrameworkSection      `json:"frameworks"`
	Tasks       []remediation.Group     `json:"tasks"`
}

// FrameworkSection holds one framework's findings, worst status first.
type FrameworkSection struct {
	Framework models.Framework           `json:"framework"`
	Findings  []models.RepositoryFinding `json:"findings"`
	Pass      int                        `json:"pass"`
	Partial   int                        `json:"partial"`
	Fail      int                        `json:"fail"`
}

// Score is the share of passing controls in percent.
func (s FrameworkSection) Score() int {
	if len(s.Findings) == 0 {
		return 0
	}
	return s.Pass * 100 / len(s.Findings)
}

// NewData assembles report data. run may be nil when no run is known.
func NewData(snapshot models.Snapshot, run *models.AnalysisRun, findings []models.RepositoryFinding,
	tasks []models.RepositoryTask, summary *models.FindingsSummary,
) *Data {
	byFramework := make(map[models.Framework]*FrameworkSection)
	for _, f := range findings {
		section, ok := byFramework[f.Framework]
		if !ok {
			section = &FrameworkSection{Framework: f.Framework}
			byFramework[f.Framework] = section
		}
		section.Findings = append(section.Findings, f)
		switch f.Status {
		case models.StatusPass:
			section.Pass++
		case models.StatusPartial:
			section.Partial++
		case models.StatusFail:
			section.Fail++
		}
	}

	sections := make([]FrameworkSection, 0, len(byFramework))
	for _, section := range byFramework {
		slices.SortStableFunc(section.Findings, func(a, b models.RepositoryFinding) int {
			return cmp.Or(
				cmp.Compare(statusOrder[a.Status], statusOrder[b.Status]),
				cmp.Compare(a.ControlID, b.ControlID),
			)
		})
		sections = append(sections, *section)
	}
	slices.SortFunc(sections, func(a, b FrameworkSection) int {
		return cmp.Compare(a.Framework, b.Framework)
	})

	if summary == nil {
		summary = models.NewFindingsSummary()
	}

	return &Data{
		GeneratedAt: time.Now().UTC(),
		Snapshot:    snapshot,
		Run:         run,
		Summary:     summary,
		Frameworks:  sections,
		Tasks:       remediation.GroupByPriority(tasks),
	}
}
