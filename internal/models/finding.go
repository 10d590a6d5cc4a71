package models

import "time"

// ControlFinding is the mapped verdict for one control.
type ControlFinding struct {
	ControlID       string        `json:"controlId"`
	ControlTitle    string        `json:"controlTitle"`
	Framework       Framework     `json:"framework"`
	Status          FindingStatus `json:"status"`
	ConfidenceLevel Confidence    `json:"confidenceLevel"`
	SignalType      string        `json:"signalType"`
	Summary         string        `json:"summary"`
	Recommendation  string        `json:"recommendation"`
	AIModel         string        `json:"aiModel,omitempty"`
	Evidence        []Evidence    `json:"evidence"`
}

// IsAIAssisted reports whether an AI model contributed to the finding.
func (f ControlFinding) IsAIAssisted() bool {
	return f.AIModel != ""
}

// HumanOverride records a reviewer's correction of a machine verdict.
type HumanOverride struct {
	OriginalStatus FindingStatus `json:"originalStatus"`
	NewStatus      FindingStatus `json:"newStatus"`
	Reason         string        `json:"reason"`
}

// RepositoryFinding is a persisted control finding.
type RepositoryFinding struct {
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ReviewedAt     *time.Time     `json:"reviewedAt,omitempty"`
	HumanOverride  *HumanOverride `json:"humanOverride,omitempty"`
	ID             string         `json:"id"`
	SnapshotID     string         `json:"snapshotId"`
	OrganizationID string         `json:"organizationId"`
	RunID          string         `json:"runId,omitempty"`
	ReviewedBy     string         `json:"reviewedBy,omitempty"`
	ControlFinding
}

// FindingsSummary aggregates the findings of a snapshot.
type FindingsSummary struct {
	ByStatus      map[FindingStatus]int `json:"byStatus"`
	ByFramework   map[Framework]int     `json:"byFramework"`
	ByConfidence  map[Confidence]int    `json:"byConfidence"`
	Total         int                   `json:"total"`
	CriticalCount int                   `json:"criticalCount"`
}

// NewFindingsSummary returns an empty summary with initialized maps.
func NewFindingsSummary() *FindingsSummary {
	return &FindingsSummary{
		ByStatus:     make(map[FindingStatus]int),
		ByFramework:  make(map[Framework]int),
		ByConfidence: make(map[Confidence]int),
	}
}

// Add counts n findings with the given attributes. Failing findings with high
// confidence are critical.
func (s *FindingsSummary) Add(status FindingStatus, framework Framework, confidence Confidence, n int) {
	s.ByStatus[status] += n
	s.ByFramework[framework] += n
	s.ByConfidence[confidence] += n
	s.Total += n
	if status == StatusFail && confidence == ConfidenceHigh {
		s.CriticalCount += n
	}
}

// TaskPriority orders remediation tasks.
type TaskPriority string

// Task priorities.
const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// TaskStatus is the state of a remediation task.
type TaskStatus string

// TaskStatusOpen is the initial state of every generated task.
const TaskStatusOpen TaskStatus = "open"

// RepositoryTask is a remediation task generated for a failing or partial finding.
type RepositoryTask struct {
	CreatedAt      time.Time    `json:"createdAt"`
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	SnapshotID     string       `json:"snapshotId"`
	FindingID      string       `json:"findingId"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Priority       TaskPriority `json:"priority"`
	Status         TaskStatus   `json:"status"`
	CreatedBy      string       `json:"createdBy"`
}

// AuditEvent is one structured audit record.
type AuditEvent struct {
	CreatedAt      time.Time      `json:"createdAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	EntityType     string         `json:"entityType"`
	EntityID       string         `json:"entityId"`
	OrganizationID string         `json:"organizationId"`
	UserID         string         `json:"userId"`
}
