package enrichment

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/certify/internal/models"
)

const maxPromptEvidence = 5

const systemPrompt = "You are a compliance engineer reviewing static evidence gathered from a source repository. " +
	"Write a concise summary (at most three sentences) of why the control is not fully met " +
	"and what the engineering team should change. Do not invent evidence and do not repeat secret values."

// buildPrompt renders the user message for a finding.
func buildPrompt(f models.ControlFinding) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Control\n%s %s: %s\n\n", f.Framework, f.ControlID, f.ControlTitle)
	fmt.Fprintf(&sb, "## Verdict\nStatus: %s\nConfidence: %s\n", f.Status, f.ConfidenceLevel)
	if f.SignalType != "" {
		fmt.Fprintf(&sb, "Signals: %s\n", f.SignalType)
	}
	fmt.Fprintf(&sb, "Generated summary: %s\n", f.Summary)
	if f.Recommendation != "" {
		fmt.Fprintf(&sb, "Recommendation: %s\n", f.Recommendation)
	}

	if len(f.Evidence) == 0 {
		sb.WriteString("\n## Evidence\nNo supporting code was found.\n")
		return sb.String()
	}

	sb.WriteString("\n## Evidence\n")
	for i, e := range f.Evidence {
		if i == maxPromptEvidence {
			fmt.Fprintf(&sb, "... and %d more locations\n", len(f.Evidence)-maxPromptEvidence)
			break
		}
		sb.WriteString("- ")
		sb.WriteString(e.Path)
		if len(e.LineNumbers) > 0 {
			fmt.Fprintf(&sb, ":%d", e.LineNumbers[0])
		}
		if e.Snippet != "" {
			fmt.Fprintf(&sb, " `%s`", e.Snippet)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
