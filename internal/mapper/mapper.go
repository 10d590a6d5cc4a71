// Package mapper maps detected signals to compliance framework controls.
package mapper

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joshsymonds/certify/internal/models"
)

const maxFindingEvidence = 25

// Requirement matches signals of a category, optionally narrowed to types.
type Requirement struct {
	Category models.SignalCategory
	Types    []string
}

func (r Requirement) matches(sig models.Signal) bool {
	return len(r.Types) == 0 || slices.Contains(r.Types, sig.Type)
}

// Control is one framework control and how evidence is graded against it.
// A control without requirements is a hygiene control that passes unless
// secrets warnings exist. Violations caps a pass at partial when secrets
// warnings exist.
type Control struct {
	ID             string
	Title          string
	Recommendation string
	Requires       []Requirement
	Violations     bool
}

func (c Control) hygiene() bool {
	return len(c.Requires) == 0
}

// RuleTable is the ordered set of controls for one framework.
type RuleTable struct {
	Framework models.Framework
	Controls  []Control
}

// MappingError reports a failure while mapping signals for a framework.
type MappingError struct {
	Err       error
	Framework models.Framework
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping signals to %s controls: %v", e.Framework, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// Mapper holds the rule tables of every supported framework.
type Mapper struct {
	tables map[models.Framework]RuleTable
	title  cases.Caser
}

// New creates a mapper with the built-in SOC2, ISO27001 and NIST 800-53 tables.
func New() *Mapper {
	return NewWithTables(soc2Table(), iso27001Table(), nist80053Table())
}

// NewWithTables creates a mapper over custom rule tables.
func NewWithTables(tables ...RuleTable) *Mapper {
	m := &Mapper{
		tables: make(map[models.Framework]RuleTable, len(tables)),
		title:  cases.Title(language.English),
	}
	for _, t := range tables {
		m.tables[t.Framework] = t
	}
	return m
}

// Frameworks returns the frameworks with a rule table, in a stable order.
func (m *Mapper) Frameworks() []models.Framework {
	out := make([]models.Framework, 0, len(m.tables))
	for f := range m.tables {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Table returns the rule table for framework.
func (m *Mapper) Table(framework models.Framework) (RuleTable, bool) {
	t, ok := m.tables[framework]
	return t, ok
}

// MapSignalsToControls grades every control of framework against signals.
// A framework without a rule table yields an empty result and no error.
func (m *Mapper) MapSignalsToControls(signals models.Signals, framework models.Framework) (findings []models.ControlFinding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = &MappingError{Framework: framework, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	table, ok := m.tables[framework]
	if !ok {
		return []models.ControlFinding{}, nil
	}

	if err := validate(signals); err != nil {
		return nil, &MappingError{Framework: framework, Err: err}
	}

	findings = make([]models.ControlFinding, 0, len(table.Controls))
	for _, control := range table.Controls {
		findings = append(findings, m.evaluate(control, framework, signals))
	}
	return findings, nil
}

func validate(signals models.Signals) error {
	categories := []models.SignalCategory{
		models.CategoryAuth, models.CategoryEncryption, models.CategoryLogging,
		models.CategoryAccessControl, models.CategoryCICD, models.CategorySecrets,
	}
	for _, category := range categories {
		for i, sig := range signals.ByCategory(category) {
			switch {
			case sig.Type == "":
				return fmt.Errorf("%s signal %d has no type", category, i)
			case !sig.Confidence.Valid():
				return fmt.Errorf("%s signal %q has invalid confidence %q", category, sig.Type, sig.Confidence)
			case len(sig.Evidence) == 0:
				return fmt.Errorf("%s signal %q has no evidence", category, sig.Type)
			case category == models.CategorySecrets && !models.IsValidSeverity(sig.Severity):
				return fmt.Errorf("%s signal %q has invalid severity %q (want one of %s)",
					category, sig.Type, sig.Severity, strings.Join(models.ValidSeverities(), ", "))
			}
		}
	}
	return nil
}

func (m *Mapper) evaluate(control Control, framework models.Framework, signals models.Signals) models.ControlFinding {
	finding := models.ControlFinding{
		ControlID:    control.ID,
		ControlTitle: control.Title,
		Framework:    framework,
	}

	if control.hygiene() {
		return m.evaluateHygiene(finding, control, signals.SecretsWarnings)
	}

	var contributing []models.Signal
	for _, req := range control.Requires {
		for _, sig := range signals.ByCategory(req.Category) {
			if req.matches(sig) {
				contributing = append(contributing, sig)
			}
		}
	}

	if len(contributing) == 0 {
		finding.Status = models.StatusFail
		finding.ConfidenceLevel = models.ConfidenceMedium
		finding.Recommendation = control.Recommendation
		finding.Summary = fmt.Sprintf("Fail: no evidence of %s was detected.", strings.ToLower(control.Title))
		finding.Evidence = []models.Evidence{}
		return finding
	}

	confidence := models.ConfidenceLow
	for _, sig := range contributing {
		confidence = models.MaxConfidence(confidence, sig.Confidence)
	}

	switch confidence {
	case models.ConfidenceHigh:
		finding.Status = models.StatusPass
	case models.ConfidenceMedium:
		finding.Status = models.StatusPartial
	default:
		finding.Status = models.StatusFail
	}
	finding.ConfidenceLevel = confidence
	finding.SignalType = signalTypes(contributing)
	finding.Evidence = collectEvidence(contributing)

	summary := fmt.Sprintf("%s evidence: %s.", m.title.String(string(confidence)), m.humanize(contributing))

	if control.Violations && len(signals.SecretsWarnings) > 0 {
		if finding.Status == models.StatusPass {
			finding.Status = models.StatusPartial
		}
		finding.Evidence = append(finding.Evidence, collectEvidence(signals.SecretsWarnings)...)
		finding.Evidence = capEvidence(finding.Evidence)
		summary += fmt.Sprintf(" %d committed secret type(s) undermine this control.", len(signals.SecretsWarnings))
		finding.Recommendation = signals.SecretsWarnings[0].Recommendation
	}

	if finding.Status != models.StatusPass && finding.Recommendation == "" {
		finding.Recommendation = control.Recommendation
	}
	finding.Summary = m.title.String(string(finding.Status)) + ": " + summary
	return finding
}

func (m *Mapper) evaluateHygiene(finding models.ControlFinding, control Control, violations []models.Signal) models.ControlFinding {
	if len(violations) == 0 {
		finding.Status = models.StatusPass
		finding.ConfidenceLevel = models.ConfidenceMedium
		finding.Summary = "Pass: no committed secrets were detected."
		finding.Evidence = []models.Evidence{}
		return finding
	}

	worst := 0
	confidence := models.ConfidenceLow
	for _, v := range violations {
		worst = max(worst, models.SeverityRank(v.Severity))
		confidence = models.MaxConfidence(confidence, v.Confidence)
	}

	finding.Status = models.StatusPartial
	if worst >= models.SeverityRank(models.SeverityHigh) {
		finding.Status = models.StatusFail
	}
	finding.ConfidenceLevel = confidence
	finding.SignalType = signalTypes(violations)
	finding.Evidence = collectEvidence(violations)
	finding.Recommendation = violations[0].Recommendation
	if finding.Recommendation == "" {
		finding.Recommendation = control.Recommendation
	}
	finding.Summary = fmt.Sprintf("%s: committed secrets detected (%s).",
		m.title.String(string(finding.Status)), m.humanize(violations))
	return finding
}

func signalTypes(signals []models.Signal) string {
	var types []string
	for _, s := range signals {
		if !slices.Contains(types, s.Type) {
			types = append(types, s.Type)
		}
	}
	return strings.Join(types, ",")
}

func (m *Mapper) humanize(signals []models.Signal) string {
	var parts []string
	for _, s := range signals {
		name := m.title.String(strings.ReplaceAll(s.Type, "_", " "))
		part := fmt.Sprintf("%s (%s)", name, s.Confidence)
		if !slices.Contains(parts, part) {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func collectEvidence(signals []models.Signal) []models.Evidence {
	var out []models.Evidence
	for _, s := range signals {
		out = append(out, s.Evidence...)
	}
	return capEvidence(out)
}

func capEvidence(evidence []models.Evidence) []models.Evidence {
	if len(evidence) > maxFindingEvidence {
		evidence = evidence[:maxFindingEvidence]
	}
	if evidence == nil {
		return []models.Evidence{}
	}
	return slices.Clone(evidence)
}
