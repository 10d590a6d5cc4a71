// Package remediation derives remediation tasks from failing or partial findings.
package remediation

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

// TaskBuilder turns findings into remediation tasks.
type TaskBuilder struct {
	logger logger.Logger
	title  cases.Caser
}

// NewTaskBuilder creates a new task builder.
func NewTaskBuilder(log logger.Logger) *TaskBuilder {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &TaskBuilder{
		logger: log,
		title:  cases.Title(language.English),
	}
}

// Priority ranks a finding for remediation. Passing and not-applicable
// findings have no priority.
func Priority(f models.ControlFinding) (models.TaskPriority, bool) {
	switch f.Status {
	case models.StatusFail:
		if f.ConfidenceLevel == models.ConfidenceHigh {
			return models.PriorityCritical, true
		}
		return models.PriorityHigh, true
	case models.StatusPartial:
		return models.PriorityMedium, true
	default:
		return "", false
	}
}

// Build returns the task for a persisted finding, or false when the finding
// needs no remediation.
func (b *TaskBuilder) Build(f *models.RepositoryFinding, createdBy string) (*models.RepositoryTask, bool) {
	priority, ok := Priority(f.ControlFinding)
	if !ok {
		return nil, false
	}

	task := &models.RepositoryTask{
		OrganizationID: f.OrganizationID,
		SnapshotID:     f.SnapshotID,
		FindingID:      f.ID,
		Title:          b.taskTitle(f),
		Description:    description(f),
		Priority:       priority,
		Status:         models.TaskStatusOpen,
		CreatedBy:      createdBy,
	}

	b.logger.Debug("Built remediation task",
		"finding_id", f.ID,
		"control_id", f.ControlID,
		"priority", priority)

	return task, true
}

func (b *TaskBuilder) taskTitle(f *models.RepositoryFinding) string {
	verb := "Address"
	if f.Status == models.StatusPartial {
		verb = "Strengthen"
	}
	return fmt.Sprintf("%s %s %s: %s", verb, f.Framework, f.ControlID, b.title.String(f.ControlTitle))
}

func description(f *models.RepositoryFinding) string {
	var sb strings.Builder
	sb.WriteString(f.Summary)
	if f.Recommendation != "" {
		sb.WriteString("\n\nRecommendation: ")
		sb.WriteString(f.Recommendation)
	}
	if len(f.Evidence) > 0 {
		sb.WriteString("\n\nEvidence:")
		for _, e := range f.Evidence {
			sb.WriteString("\n- ")
			sb.WriteString(e.Path)
			if len(e.LineNumbers) > 0 {
				fmt.Fprintf(&sb, ":%d", e.LineNumbers[0])
			}
		}
	}
	if f.IsAIAssisted() {
		fmt.Fprintf(&sb, "\n\nSummary generated with AI assistance (%s).", f.AIModel)
	}
	return sb.String()
}

// Group is a set of tasks sharing a priority.
type Group struct {
	Priority models.TaskPriority     `json:"priority"`
	Tasks    []models.RepositoryTask `json:"tasks"`
}

// GroupByPriority groups tasks from critical to low, dropping empty groups.
func GroupByPriority(tasks []models.RepositoryTask) []Group {
	order := []models.TaskPriority{
		models.PriorityCritical,
		models.PriorityHigh,
		models.PriorityMedium,
		models.PriorityLow,
	}

	byPriority := make(map[models.TaskPriority][]models.RepositoryTask)
	for _, t := range tasks {
		byPriority[t.Priority] = append(byPriority[t.Priority], t)
	}

	groups := make([]Group, 0, len(byPriority))
	for _, p := range order {
		if ts := byPriority[p]; len(ts) > 0 {
			slices.SortStableFunc(ts, func(a, b models.RepositoryTask) int {
				return strings.Compare(a.Title, b.Title)
			})
			groups = append(groups, Group{Priority: p, Tasks: ts})
		}
	}
	return groups
}
