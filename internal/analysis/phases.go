package analysis

import (
	"context"
	"fmt"

	"github.com/joshsymonds/certify/internal/detector"
	"github.com/joshsymonds/certify/internal/enrichment"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

// runState is the run-local state threaded through phases.
type runState struct {
	ac             *models.AnalysisContext
	files          *detector.FileSet
	listingSkipped int
}

type phase struct {
	run  func(ctx context.Context, st *runState) error
	name models.Phase
}

type scanFunc func(ctx context.Context, set *detector.FileSet) ([]models.Signal, error)

func (o *Orchestrator) phases() []phase {
	return []phase{
		{name: models.PhaseOverview, run: o.overview},
		{name: models.PhaseBuild, run: scanPhase(detector.ScanForCICD)},
		{name: models.PhaseConfig, run: scanPhase(detector.ScanForSecrets)},
		{name: models.PhaseAuth, run: scanPhase(detector.ScanForAuth, detector.ScanForAccessControl)},
		{name: models.PhaseData, run: scanPhase(detector.ScanForEncryption)},
		{name: models.PhaseOperations, run: scanPhase(detector.ScanForLogging)},
		{name: models.PhaseGap, run: o.gap},
	}
}

// overview lists the candidate files once for every later phase.
func (o *Orchestrator) overview(ctx context.Context, st *runState) error {
	listing, err := detector.ListFiles(ctx, st.ac.ExtractedPath, st.ac.Depth, o.detectorOpts)
	if err != nil {
		return err
	}

	files, err := detector.NewFileSet(st.ac.ExtractedPath, listing.Files)
	if err != nil {
		return err
	}

	st.files = files
	st.listingSkipped = listing.Skipped
	st.ac.Files = listing.Files
	st.ac.Metrics.FilesAnalyzed = len(listing.Files)
	st.ac.Signals.SkippedFiles = listing.Skipped

	log := logger.FromContext(ctx)
	if listing.Truncated {
		log.Warn("File listing truncated", "max_files", o.detectorOpts.MaxFiles)
	}
	log.Info("Listed files", "files", len(listing.Files), "skipped", listing.Skipped, "depth", st.ac.Depth)
	return nil
}

func scanPhase(scans ...scanFunc) func(context.Context, *runState) error {
	return func(ctx context.Context, st *runState) error {
		for _, scan := range scans {
			signals, err := scan(ctx, st.files)
			if err != nil {
				return err
			}
			st.ac.Signals.Append(signals...)
		}
		st.ac.Signals.ScannedFiles = st.files.ScannedFiles()
		st.ac.Signals.SkippedFiles = st.listingSkipped + st.files.SkippedFiles()
		return nil
	}
}

// gap maps the accumulated signals for every framework and persists the findings.
func (o *Orchestrator) gap(ctx context.Context, st *runState) error {
	log := logger.FromContext(ctx)
	ac := st.ac

	for _, framework := range ac.Frameworks {
		mapped, err := o.mapper.MapSignalsToControls(ac.Signals, framework)
		if err != nil {
			return err
		}
		if len(mapped) == 0 {
			log.Warn("No controls mapped for framework", "framework", framework)
			continue
		}

		usage, err := enrichment.EnrichFindings(ctx, o.summarizer, mapped, log)
		if err != nil {
			return fmt.Errorf("summarizing %s findings: %w", framework, err)
		}
		ac.Metrics.LLMCallsMade += usage.Calls
		ac.Metrics.TokensUsed += usage.Tokens
		ac.Metrics.CostEstimate += usage.Cost

		created, err := o.findings.CreateFindings(ctx, ac.SnapshotID, ac.OrganizationID, ac.RunID, mapped, ac.UserID)
		if err != nil {
			return err
		}
		ac.Metrics.FindingsGenerated += len(created)

		log.Info("Mapped framework controls", "framework", framework, "findings", len(created))
	}
	return nil
}
