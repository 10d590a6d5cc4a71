// Package review implements the review command for recording a human verdict
// on a finding.
package review

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
)

// NewCommand creates the review command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	var (
		actor  cmdutil.ActorFlags
		status string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "review <finding-id>",
		Short: "Review a finding, optionally overriding its status",
		Long: `Review a finding.

Without --reason the finding is marked reviewed with --status. With --reason
the change is recorded as a human override from the current status.`,
		Args: cobra.ExactArgs(1),
		Example: `  certify review 5f0c... --status pass
  certify review 5f0c... --status partial --reason "MFA enforced by the identity provider"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			ctx := cmd.Context()
			current, err := a.Findings.GetFindingByID(ctx, args[0], actor.OrganizationID)
			if err != nil {
				return err
			}

			next := models.FindingStatus(status)
			if next == "" {
				next = current.Status
			}

			r := findings.Review{Status: next}
			if reason != "" {
				r.HumanOverride = &models.HumanOverride{
					OriginalStatus: current.Status,
					NewStatus:      next,
					Reason:         reason,
				}
			}

			updated, err := a.Findings.ReviewFinding(ctx, args[0], actor.OrganizationID, actor.UserID, r)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s → %s (reviewed by %s)\n",
				updated.Framework, updated.ControlID, current.Status, updated.Status, updated.ReviewedBy)
			return nil
		},
	}

	actor.Bind(cmd)
	cmd.Flags().StringVar(&status, "status", "", "New status (pass, partial, fail); keeps the current status when empty")
	cmd.Flags().StringVar(&reason, "reason", "", "Override reason")
	return cmd
}
