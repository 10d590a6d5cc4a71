// Package findings implements the findings command for inspecting a
// snapshot's findings, tasks and reports.
package findings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/report"
	"github.com/joshsymonds/certify/pkg/logger"
)

// NewCommand creates the findings command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Inspect compliance findings of a snapshot",
	}
	cmd.AddCommand(
		newListCommand(globals),
		newSummaryCommand(globals),
		newTasksCommand(globals),
		newReportCommand(globals),
	)
	return cmd
}

func newListCommand(globals *cmdutil.Globals) *cobra.Command {
	var (
		actor  cmdutil.ActorFlags
		q      findings.Query
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list <snapshot-id>",
		Short: "List findings",
		Args:  cobra.ExactArgs(1),
		Example: `  certify findings list abc123 --status fail
  certify findings list abc123 --framework NIST_800_53 --page 2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			page, err := a.Findings.GetFindings(cmd.Context(), args[0], actor.OrganizationID, q)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			RenderPage(cmd.OutOrStdout(), page)
			return nil
		},
	}

	actor.Bind(cmd)
	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status (pass, partial, fail)")
	cmd.Flags().StringVar(&q.ConfidenceLevel, "confidence", "", "Filter by confidence (low, medium, high)")
	cmd.Flags().StringVar(&q.Framework, "framework", "", "Filter by framework")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Page size (config default when 0)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newSummaryCommand(globals *cmdutil.Globals) *cobra.Command {
	var actor cmdutil.ActorFlags

	cmd := &cobra.Command{
		Use:   "summary <snapshot-id>",
		Short: "Summarize findings by status, framework and confidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			summary, err := a.Findings.GetFindingsSummary(cmd.Context(), args[0], actor.OrganizationID)
			if err != nil {
				return err
			}
			RenderSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	actor.Bind(cmd)
	return cmd
}

func newTasksCommand(globals *cmdutil.Globals) *cobra.Command {
	var actor cmdutil.ActorFlags

	cmd := &cobra.Command{
		Use:   "tasks <snapshot-id>",
		Short: "List remediation tasks by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			tasks, err := a.Findings.ListTasks(cmd.Context(), args[0], actor.OrganizationID)
			if err != nil {
				return err
			}
			RenderTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	actor.Bind(cmd)
	return cmd
}

func newReportCommand(globals *cmdutil.Globals) *cobra.Command {
	var (
		actor  cmdutil.ActorFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "report <snapshot-id>",
		Short: "Generate a compliance report",
		Args:  cobra.ExactArgs(1),
		Example: `  certify findings report abc123 --format html --output report.html
  certify findings report abc123 --format markdown`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			f, err := report.GetFormat(format, logger.GetGlobalLogger())
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, strings.Join(report.ListFormats(), ", "))
			}

			data, err := Collect(cmd.Context(), a, args[0], actor.OrganizationID)
			if err != nil {
				return err
			}

			if output == "" {
				return f.Generate(cmd.OutOrStdout(), data)
			}
			if err := report.WriteFile(f, data, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", output)
			return nil
		},
	}

	actor.Bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format (html, markdown, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}
