package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseStatusTransitions(t *testing.T) {
	tests := []struct {
		from PhaseStatus
		to   PhaseStatus
		want bool
	}{
		{PhasePending, PhaseRunning, true},
		{PhasePending, PhaseFailed, true},
		{PhasePending, PhaseCompleted, false},
		{PhaseRunning, PhaseCompleted, true},
		{PhaseRunning, PhaseFailed, true},
		{PhaseRunning, PhasePending, false},
		{PhaseCompleted, PhaseFailed, false},
		{PhaseCompleted, PhaseRunning, false},
		{PhaseFailed, PhaseRunning, false},
		{PhaseFailed, PhaseCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, PhaseCompleted.IsTerminal())
	assert.True(t, PhaseFailed.IsTerminal())
	assert.False(t, PhaseRunning.IsTerminal())
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, MaxConfidence(ConfidenceLow, ConfidenceHigh))
	assert.Equal(t, ConfidenceMedium, MaxConfidence(ConfidenceMedium, ConfidenceLow))
	assert.Equal(t, ConfidenceLow, MaxConfidence(Confidence(""), ConfidenceLow))
	assert.False(t, Confidence("certain").Valid())
	assert.True(t, ConfidenceMedium.Valid())
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.False(t, IsValidSeverity("info"))
	assert.Len(t, ValidSeverities(), 4)
}

func TestSignalsAppendAndByCategory(t *testing.T) {
	var s Signals
	s.Append(
		Signal{Category: CategoryAuth, Type: "mfa"},
		Signal{Category: CategoryAccessControl, Type: "rbac"},
		Signal{Category: CategorySecrets, Type: "api_key"},
		Signal{Category: CategoryAuth, Type: "jwt"},
	)

	assert.Len(t, s.ByCategory(CategoryAuth), 2)
	assert.Len(t, s.ByCategory(CategoryAccessControl), 1)
	assert.Len(t, s.SecretsWarnings, 1)
	assert.Empty(t, s.ByCategory(SignalCategory("unknown")))
	assert.Equal(t, 4, s.Total())
}

func TestEnumValidation(t *testing.T) {
	assert.True(t, DepthFull.Valid())
	assert.False(t, Depth("deep").Valid())
	assert.True(t, FrameworkNIST80053.IsSupported())
	assert.False(t, Framework("UNSUPPORTED").IsSupported())
	assert.True(t, StatusPartial.NeedsRemediation())
	assert.False(t, StatusPass.NeedsRemediation())
	assert.False(t, FindingStatus("maybe").Valid())
	assert.True(t, SnapshotIndexed.Valid())
	assert.Equal(t, PhaseOverview, Phases()[0])
	assert.Equal(t, PhaseGap, Phases()[len(Phases())-1])
}
