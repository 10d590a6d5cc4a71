// Package analyze implements the analyze command, which registers a local tree,
// runs the pipeline against it and prints the results.
package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	findingscmd "github.com/joshsymonds/certify/cmd/findings"
	"github.com/joshsymonds/certify/cmd/snapshot"
	"github.com/joshsymonds/certify/internal/models"
)

var (
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Options represents analyze command options.
type Options struct {
	Actor      cmdutil.ActorFlags
	Frameworks []string
	Depth      string
	Timeout    time.Duration
}

// NewCommand creates the analyze command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze a local source tree",
		Long: `Register a local source tree as a snapshot, run the compliance pipeline
against it and print the findings summary and remediation tasks.`,
		Args: cobra.ExactArgs(1),
		Example: `  certify analyze .
  certify analyze ./service --framework SOC2 --framework NIST_800_53 --depth full`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, globals, opts, args[0])
		},
	}

	opts.Actor.Bind(cmd)
	cmd.Flags().StringSliceVar(&opts.Frameworks, "framework", []string{string(models.FrameworkSOC2)},
		"Framework to map (repeatable): SOC2, ISO27001, NIST_800_53")
	cmd.Flags().StringVar(&opts.Depth, "depth", "", "Analysis depth (security_relevant or full), config default when empty")
	cmd.Flags().DurationVar(&opts.Timeout, "wait", 15*time.Minute, "How long to wait for the run")
	return cmd
}

func run(cmd *cobra.Command, globals *cmdutil.Globals, opts *Options, root string) error {
	a, err := globals.OpenApp()
	if err != nil {
		return err
	}
	defer cmdutil.CloseApp(a)

	a.Orchestrator.Start()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	actor := opts.Actor.Actor()
	snap, err := snapshot.Register(ctx, a, root, "", actor)
	if err != nil {
		return err
	}

	depth := models.Depth(opts.Depth)
	if depth == "" {
		depth = models.Depth(a.Config.Analysis.DefaultDepth)
	}
	frameworks := make([]models.Framework, 0, len(opts.Frameworks))
	for _, f := range opts.Frameworks {
		frameworks = append(frameworks, models.Framework(f))
	}

	runID, err := a.Orchestrator.StartAnalysis(ctx, snap.ID, frameworks, depth, actor)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzing %s (snapshot %s, run %s)\n", snap.ExtractedPath, snap.ID, runID)

	result, err := watch(ctx, out, func(ctx context.Context) (*models.AnalysisRun, error) {
		return a.Orchestrator.GetAnalysisStatus(ctx, runID, actor.OrganizationID)
	})
	if err != nil {
		return fmt.Errorf("waiting for run %s: %w", runID, err)
	}
	if result.PhaseStatus == models.PhaseFailed {
		fmt.Fprintln(out, failedStyle.Render("Analysis failed: "+result.ErrorMessage))
		return fmt.Errorf("run %s failed", runID)
	}

	fmt.Fprintln(out, doneStyle.Render(fmt.Sprintf("Analysis completed: %d files, %d findings",
		result.FilesAnalyzed, result.FindingsGenerated)))
	if result.LLMCallsMade > 0 {
		fmt.Fprintf(out, "AI summaries: %d calls, %d tokens, ~$%.4f\n",
			result.LLMCallsMade, result.TokensUsed, result.CostEstimate)
	}
	fmt.Fprintln(out)

	summary, err := a.Findings.GetFindingsSummary(ctx, snap.ID, actor.OrganizationID)
	if err != nil {
		return err
	}
	findingscmd.RenderSummary(out, summary)
	fmt.Fprintln(out)

	tasks, err := a.Findings.ListTasks(ctx, snap.ID, actor.OrganizationID)
	if err != nil {
		return err
	}
	findingscmd.RenderTasks(out, tasks)
	return nil
}
