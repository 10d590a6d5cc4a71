// Package enrichment adds AI-generated summaries to failing and partial findings.
package enrichment

import (
	"context"
	"errors"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Summary is one AI-generated finding summary.
type Summary struct {
	Text       string
	Model      string
	TokensUsed int
	Cost       float64
}

// Summarizer produces a plain-language summary of a control finding.
type Summarizer interface {
	Summarize(ctx context.Context, finding models.ControlFinding) (*Summary, error)
}

// Usage accumulates the cost of summarizing a batch of findings.
type Usage struct {
	Calls  int
	Tokens int
	Cost   float64
}

// Add folds s into u.
func (u *Usage) Add(s *Summary) {
	u.Calls++
	u.Tokens += s.TokensUsed
	u.Cost += s.Cost
}

// EnrichFindings summarizes every finding that needs remediation, replacing its
// summary and labeling it with the model. Findings whose summary fails keep the
// deterministic text. Only context cancellation is returned as an error.
func EnrichFindings(ctx context.Context, s Summarizer, findings []models.ControlFinding, log logger.Logger) (Usage, error) {
	var usage Usage
	if s == nil {
		return usage, nil
	}

	for i := range findings {
		f := &findings[i]
		if !f.Status.NeedsRemediation() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return usage, err
		}

		summary, err := s.Summarize(ctx, *f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return usage, ctxErr
			}
			log.Warn("AI summary failed, keeping generated summary",
				"framework", f.Framework,
				"control_id", f.ControlID,
				"error", err)
			continue
		}

		usage.Add(summary)
		f.Summary = summary.Text
		f.AIModel = summary.Model
	}

	return usage, nil
}
