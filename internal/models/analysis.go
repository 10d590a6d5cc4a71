// Package models contains the data structures shared by the certify pipeline.
package models

import "time"

// Snapshot is an extracted copy of a repository owned by the ingestion subsystem.
type Snapshot struct {
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Status         SnapshotStatus `json:"status"`
	ExtractedPath  string         `json:"extractedPath"`
}

// AnalysisRun is one execution of the pipeline against a snapshot.
type AnalysisRun struct {
	CreatedAt         time.Time   `json:"createdAt"`
	StartedAt         *time.Time  `json:"startedAt,omitempty"`
	CompletedAt       *time.Time  `json:"completedAt,omitempty"`
	ID                string      `json:"id"`
	SnapshotID        string      `json:"snapshotId"`
	OrganizationID    string      `json:"organizationId"`
	UserID            string      `json:"userId"`
	Depth             Depth       `json:"depth"`
	PhaseStatus       PhaseStatus `json:"phaseStatus"`
	CurrentPhase      Phase       `json:"currentPhase,omitempty"`
	ErrorMessage      string      `json:"errorMessage,omitempty"`
	Frameworks        []Framework `json:"frameworks"`
	Progress          int         `json:"progress"`
	FilesAnalyzed     int         `json:"filesAnalyzed"`
	FindingsGenerated int         `json:"findingsGenerated"`
	LLMCallsMade      int         `json:"llmCallsMade"`
	TokensUsed        int         `json:"tokensUsed"`
	CostEstimate      float64     `json:"costEstimate"`
}

// Metrics accumulates counters during a run.
type Metrics struct {
	FilesAnalyzed     int     `json:"filesAnalyzed"`
	FindingsGenerated int     `json:"findingsGenerated"`
	LLMCallsMade      int     `json:"llmCallsMade"`
	TokensUsed        int     `json:"tokensUsed"`
	CostEstimate      float64 `json:"costEstimate"`
}

// AnalysisContext is the run-local accumulator passed through phases. It is never persisted.
type AnalysisContext struct {
	SnapshotID     string
	RunID          string
	ExtractedPath  string
	OrganizationID string
	UserID         string
	Depth          Depth
	Frameworks     []Framework
	Files          []string
	Signals        Signals
	Metrics        Metrics
}

// Actor is the immutable identity of a caller.
type Actor struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	MFAVerified    bool   `json:"mfaVerified"`
}
