package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/certify/internal/detector"
	"github.com/joshsymonds/certify/internal/models"
)

func sig(category models.SignalCategory, typ string, confidence models.Confidence) models.Signal {
	return models.Signal{
		Category:   category,
		Type:       typ,
		Confidence: confidence,
		Evidence:   []models.Evidence{{Path: "src/" + typ + ".ts", Snippet: typ, LineNumbers: []int{1}}},
	}
}

func secret(typ, severity string) models.Signal {
	s := sig(models.CategorySecrets, typ, models.ConfidenceHigh)
	s.Severity = severity
	s.Recommendation = "Rotate the " + typ
	return s
}

func findingFor(t *testing.T, findings []models.ControlFinding, id string) models.ControlFinding {
	t.Helper()
	for _, f := range findings {
		if f.ControlID == id {
			return f
		}
	}
	require.Failf(t, "finding not found", "control %s", id)
	return models.ControlFinding{}
}

func TestMapSignalsToControls_MFAOnly(t *testing.T) {
	signals := models.Signals{}
	signals.Append(sig(models.CategoryAuth, detector.SignalMFA, models.ConfidenceHigh))

	findings, err := New().MapSignalsToControls(signals, models.FrameworkSOC2)
	require.NoError(t, err)

	for _, id := range []string{"CC6.1", "CC6.2"} {
		f := findingFor(t, findings, id)
		assert.Equal(t, models.StatusPass, f.Status, id)
		assert.Equal(t, models.ConfidenceHigh, f.ConfidenceLevel, id)
		assert.Equal(t, detector.SignalMFA, f.SignalType, id)
		assert.Empty(t, f.Recommendation, id)
		require.Len(t, f.Evidence, 1, id)
		assert.Equal(t, "src/mfa.ts", f.Evidence[0].Path)
		assert.Contains(t, f.Summary, "Pass:")
		assert.Contains(t, f.Summary, "Mfa (high)")
	}

	logging := findingFor(t, findings, "CC7.2")
	assert.Equal(t, models.StatusFail, logging.Status)
}

func TestMapSignalsToControls_NoEvidence(t *testing.T) {
	findings, err := New().MapSignalsToControls(models.Signals{}, models.FrameworkSOC2)
	require.NoError(t, err)
	require.Len(t, findings, 7)

	for _, f := range findings {
		assert.Equal(t, models.StatusFail, f.Status, f.ControlID)
		assert.Equal(t, models.ConfidenceMedium, f.ConfidenceLevel, f.ControlID)
		assert.True(t, len(f.Recommendation) > len("Implement"), f.ControlID)
		assert.Regexp(t, `^Implement `, f.Recommendation)
		assert.NotNil(t, f.Evidence)
		assert.Empty(t, f.Evidence)
		assert.Equal(t, models.FrameworkSOC2, f.Framework)
	}
}

func TestMapSignalsToControls_Grading(t *testing.T) {
	tests := []struct {
		name       string
		signals    []models.Signal
		wantStatus models.FindingStatus
		wantConf   models.Confidence
	}{
		{
			name:       "high evidence passes",
			signals:    []models.Signal{sig(models.CategoryAuth, detector.SignalJWT, models.ConfidenceHigh)},
			wantStatus: models.StatusPass,
			wantConf:   models.ConfidenceHigh,
		},
		{
			name:       "medium evidence is partial",
			signals:    []models.Signal{sig(models.CategoryAuth, detector.SignalJWT, models.ConfidenceMedium)},
			wantStatus: models.StatusPartial,
			wantConf:   models.ConfidenceMedium,
		},
		{
			name:       "low evidence fails",
			signals:    []models.Signal{sig(models.CategoryAuth, detector.SignalJWT, models.ConfidenceLow)},
			wantStatus: models.StatusFail,
			wantConf:   models.ConfidenceLow,
		},
		{
			name: "strongest evidence wins",
			signals: []models.Signal{
				sig(models.CategoryAuth, detector.SignalJWT, models.ConfidenceLow),
				sig(models.CategoryAuth, detector.SignalSession, models.ConfidenceHigh),
			},
			wantStatus: models.StatusPass,
			wantConf:   models.ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := models.Signals{}
			signals.Append(tt.signals...)

			findings, err := New().MapSignalsToControls(signals, models.FrameworkSOC2)
			require.NoError(t, err)

			f := findingFor(t, findings, "CC6.1")
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Equal(t, tt.wantConf, f.ConfidenceLevel)
			if tt.wantStatus != models.StatusPass {
				assert.NotEmpty(t, f.Recommendation)
			}
		})
	}
}

func TestMapSignalsToControls_SecretsCapPass(t *testing.T) {
	signals := models.Signals{}
	signals.Append(
		sig(models.CategoryAuth, detector.SignalJWT, models.ConfidenceHigh),
		secret(detector.SignalAPIKey, models.SeverityHigh),
	)

	findings, err := New().MapSignalsToControls(signals, models.FrameworkSOC2)
	require.NoError(t, err)

	f := findingFor(t, findings, "CC6.1")
	assert.Equal(t, models.StatusPartial, f.Status)
	assert.Equal(t, "Rotate the api_key", f.Recommendation)
	assert.Len(t, f.Evidence, 2)
	assert.Contains(t, f.Summary, "committed secret")

	// Controls without the secrets cap are unaffected.
	assert.Equal(t, models.StatusFail, findingFor(t, findings, "CC6.2").Status)
}

func TestMapSignalsToControls_HygieneControl(t *testing.T) {
	tests := []struct {
		name       string
		warnings   []models.Signal
		wantStatus models.FindingStatus
	}{
		{name: "no secrets passes", wantStatus: models.StatusPass},
		{
			name:       "low severity is partial",
			warnings:   []models.Signal{secret(detector.SignalCredentialURL, models.SeverityLow)},
			wantStatus: models.StatusPartial,
		},
		{
			name:       "medium severity is partial",
			warnings:   []models.Signal{secret(detector.SignalGenericToken, models.SeverityMedium)},
			wantStatus: models.StatusPartial,
		},
		{
			name: "critical severity fails",
			warnings: []models.Signal{
				secret(detector.SignalCredentialURL, models.SeverityLow),
				secret(detector.SignalPrivateKey, models.SeverityCritical),
			},
			wantStatus: models.StatusFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := models.Signals{}
			signals.Append(tt.warnings...)

			findings, err := New().MapSignalsToControls(signals, models.FrameworkISO27001)
			require.NoError(t, err)

			f := findingFor(t, findings, "A.9.2.4")
			assert.Equal(t, tt.wantStatus, f.Status)
			if len(tt.warnings) == 0 {
				assert.Equal(t, models.ConfidenceMedium, f.ConfidenceLevel)
				assert.Empty(t, f.Recommendation)
				return
			}
			assert.Equal(t, tt.warnings[0].Recommendation, f.Recommendation)
			assert.Len(t, f.Evidence, len(tt.warnings))
		})
	}
}

func TestMapSignalsToControls_UnsupportedFramework(t *testing.T) {
	signals := models.Signals{}
	signals.Append(sig(models.CategoryAuth, detector.SignalMFA, models.ConfidenceHigh))

	findings, err := New().MapSignalsToControls(signals, models.Framework("HIPAA"))
	require.NoError(t, err)
	assert.NotNil(t, findings)
	assert.Empty(t, findings)
}

func TestMapSignalsToControls_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		signal models.Signal
		errMsg string
	}{
		{
			name:   "missing type",
			signal: models.Signal{Category: models.CategoryAuth, Confidence: models.ConfidenceHigh, Evidence: []models.Evidence{{Path: "a"}}},
			errMsg: "has no type",
		},
		{
			name:   "invalid confidence",
			signal: models.Signal{Category: models.CategoryLogging, Type: "audit_log", Confidence: "certain", Evidence: []models.Evidence{{Path: "a"}}},
			errMsg: "invalid confidence",
		},
		{
			name:   "no evidence",
			signal: models.Signal{Category: models.CategoryCICD, Type: "code_review", Confidence: models.ConfidenceLow},
			errMsg: "has no evidence",
		},
		{
			name:   "unknown secret severity",
			signal: secret(detector.SignalGenericToken, "info"),
			errMsg: `invalid severity "info"`,
		},
		{
			name:   "secret without severity",
			signal: secret(detector.SignalAPIKey, ""),
			errMsg: "invalid severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := models.Signals{}
			signals.Append(tt.signal)

			findings, err := New().MapSignalsToControls(signals, models.FrameworkNIST80053)
			require.Error(t, err)
			assert.Nil(t, findings)

			var mappingErr *MappingError
			require.ErrorAs(t, err, &mappingErr)
			assert.Equal(t, models.FrameworkNIST80053, mappingErr.Framework)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMapSignalsToControls_Order(t *testing.T) {
	m := New()
	for _, framework := range models.SupportedFrameworks() {
		table, ok := m.Table(framework)
		require.True(t, ok, framework)

		findings, err := m.MapSignalsToControls(models.Signals{}, framework)
		require.NoError(t, err)
		require.Len(t, findings, len(table.Controls))
		for i, control := range table.Controls {
			assert.Equal(t, control.ID, findings[i].ControlID)
			assert.Equal(t, control.Title, findings[i].ControlTitle)
		}
	}
}

func TestMapSignalsToControls_Deterministic(t *testing.T) {
	signals := models.Signals{}
	signals.Append(
		sig(models.CategoryAuth, detector.SignalOAuth, models.ConfidenceMedium),
		sig(models.CategoryEncryption, detector.SignalInTransit, models.ConfidenceHigh),
		sig(models.CategoryAccessControl, detector.SignalRBAC, models.ConfidenceLow),
		sig(models.CategoryCICD, detector.SignalGitHubActions, models.ConfidenceHigh),
		secret(detector.SignalGenericToken, models.SeverityMedium),
	)

	m := New()
	first, err := m.MapSignalsToControls(signals, models.FrameworkNIST80053)
	require.NoError(t, err)
	second, err := m.MapSignalsToControls(signals, models.FrameworkNIST80053)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ac2 := findingFor(t, first, "AC-2")
	assert.Equal(t, models.StatusPartial, ac2.Status)
	assert.Equal(t, "rbac,oauth", ac2.SignalType)
}

func TestMapSignalsToControls_EvidenceCap(t *testing.T) {
	signals := models.Signals{}
	s := sig(models.CategoryLogging, detector.SignalAuditLog, models.ConfidenceHigh)
	s.Evidence = nil
	for i := range 40 {
		s.Evidence = append(s.Evidence, models.Evidence{Path: "f", LineNumbers: []int{i + 1}})
	}
	signals.Append(s)

	findings, err := New().MapSignalsToControls(signals, models.FrameworkSOC2)
	require.NoError(t, err)
	assert.Len(t, findingFor(t, findings, "CC7.2").Evidence, maxFindingEvidence)
}

func TestFrameworks(t *testing.T) {
	assert.Equal(t,
		[]models.Framework{models.FrameworkISO27001, models.FrameworkNIST80053, models.FrameworkSOC2},
		New().Frameworks())

	custom := NewWithTables(RuleTable{Framework: "CUSTOM", Controls: []Control{{ID: "C-1", Title: "Custom", Recommendation: "Implement it"}}})
	findings, err := custom.MapSignalsToControls(models.Signals{}, "CUSTOM")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.StatusPass, findings[0].Status)
}
