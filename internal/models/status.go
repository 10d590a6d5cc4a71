package models

// SnapshotStatus is the lifecycle state of an ingested snapshot.
type SnapshotStatus string

// Snapshot statuses.
const (
	SnapshotUploaded   SnapshotStatus = "uploaded"
	SnapshotExtracting SnapshotStatus = "extracting"
	SnapshotIndexed    SnapshotStatus = "indexed"
	SnapshotAnalyzing  SnapshotStatus = "analyzing"
	SnapshotAnalyzed   SnapshotStatus = "analyzed"
	SnapshotFailed     SnapshotStatus = "failed"
)

// Valid reports whether s is a known snapshot status.
func (s SnapshotStatus) Valid() bool {
	switch s {
	case SnapshotUploaded, SnapshotExtracting, SnapshotIndexed, SnapshotAnalyzing, SnapshotAnalyzed, SnapshotFailed:
		return true
	default:
		return false
	}
}

// PhaseStatus is the lifecycle state of an analysis run.
type PhaseStatus string

// Run statuses.
const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// IsTerminal reports whether the run can no longer change.
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseCompleted || s == PhaseFailed
}

// CanTransitionTo reports whether moving from s to next is legal.
// A pending run may fail before a worker picks it up.
func (s PhaseStatus) CanTransitionTo(next PhaseStatus) bool {
	switch s {
	case PhasePending:
		return next == PhaseRunning || next == PhaseFailed
	case PhaseRunning:
		return next == PhaseCompleted || next == PhaseFailed
	default:
		return false
	}
}

// Phase names an analysis step.
type Phase string

// Analysis phases in execution order.
const (
	PhaseOverview   Phase = "overview"
	PhaseBuild      Phase = "build"
	PhaseConfig     Phase = "config"
	PhaseAuth       Phase = "auth"
	PhaseData       Phase = "data"
	PhaseOperations Phase = "operations"
	PhaseGap        Phase = "gap"
)

// Phases returns every phase in execution order.
func Phases() []Phase {
	return []Phase{
		PhaseOverview,
		PhaseBuild,
		PhaseConfig,
		PhaseAuth,
		PhaseData,
		PhaseOperations,
		PhaseGap,
	}
}

// FindingStatus is the verdict for a single control.
type FindingStatus string

// Finding statuses.
const (
	StatusPass          FindingStatus = "pass"
	StatusPartial       FindingStatus = "partial"
	StatusFail          FindingStatus = "fail"
	StatusNotApplicable FindingStatus = "not_applicable"
)

// Valid reports whether s is a known finding status.
func (s FindingStatus) Valid() bool {
	switch s {
	case StatusPass, StatusPartial, StatusFail, StatusNotApplicable:
		return true
	default:
		return false
	}
}

// NeedsRemediation reports whether a finding with this status gets a task.
func (s FindingStatus) NeedsRemediation() bool {
	return s == StatusFail || s == StatusPartial
}

// Depth controls how much of a snapshot is scanned.
type Depth string

// Analysis depths.
const (
	DepthSecurityRelevant Depth = "security_relevant"
	DepthFull             Depth = "full"
)

// Valid reports whether d is a known depth.
func (d Depth) Valid() bool {
	return d == DepthSecurityRelevant || d == DepthFull
}

// Framework identifies a compliance framework.
type Framework string

// Supported frameworks.
const (
	FrameworkSOC2      Framework = "SOC2"
	FrameworkISO27001  Framework = "ISO27001"
	FrameworkNIST80053 Framework = "NIST_800_53"
)

// SupportedFrameworks returns the frameworks that have rule tables.
func SupportedFrameworks() []Framework {
	return []Framework{FrameworkSOC2, FrameworkISO27001, FrameworkNIST80053}
}

// IsSupported reports whether f has a rule table.
func (f Framework) IsSupported() bool {
	for _, s := range SupportedFrameworks() {
		if f == s {
			return true
		}
	}
	return false
}
