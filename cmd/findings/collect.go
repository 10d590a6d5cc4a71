package findings

import (
	"context"
	"fmt"

	"github.com/joshsymonds/certify/internal/app"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/internal/report"
)

// Collect loads everything a report needs for one snapshot.
func Collect(ctx context.Context, a *app.App, snapshotID, organizationID string) (*report.Data, error) {
	snap, err := a.DB.GetSnapshot(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, err
	}

	runs, err := a.DB.ListRuns(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var latest *models.AnalysisRun
	if len(runs) > 0 {
		latest = &runs[0]
	}

	var all []models.RepositoryFinding
	for page := 1; ; page++ {
		p, err := a.Findings.GetFindings(ctx, snapshotID, organizationID, findings.Query{
			Page:  page,
			Limit: a.Config.Findings.MaxPageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Findings...)
		if len(p.Findings) == 0 || len(all) >= p.Total {
			break
		}
	}

	tasks, err := a.Findings.ListTasks(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, err
	}

	summary, err := a.Findings.GetFindingsSummary(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, err
	}

	return report.NewData(*snap, latest, all, tasks, summary), nil
}
