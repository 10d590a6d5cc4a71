// Package snapshot implements the snapshot command for registering local trees
// as indexed snapshots.
package snapshot

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	"github.com/joshsymonds/certify/internal/app"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/pathutil"
)

// NewCommand creates the snapshot command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage repository snapshots",
	}
	cmd.AddCommand(newRegisterCommand(globals), newListCommand(globals))
	return cmd
}

func newRegisterCommand(globals *cmdutil.Globals) *cobra.Command {
	var (
		actor cmdutil.ActorFlags
		id    string
	)

	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Register an extracted source tree as an indexed snapshot",
		Args:  cobra.ExactArgs(1),
		Example: `  certify snapshot register ./my-service --org acme
  certify snapshot register /srv/extracted/abc123 --id abc123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			snap, err := Register(cmd.Context(), a, args[0], id, actor.Actor())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
			return nil
		},
	}

	actor.Bind(cmd)
	cmd.Flags().StringVar(&id, "id", "", "Snapshot id (generated when empty)")
	return cmd
}

// Register records root as an indexed snapshot owned by the actor's organization.
func Register(ctx context.Context, a *app.App, root, id string, actor models.Actor) (*models.Snapshot, error) {
	absRoot, err := pathutil.ValidateRoot(root)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	snap := &models.Snapshot{
		ID:             id,
		OrganizationID: actor.OrganizationID,
		Status:         models.SnapshotIndexed,
		ExtractedPath:  absRoot,
	}
	if err := a.DB.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	a.Recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionCreate,
		EntityType:     audit.EntitySnapshot,
		EntityID:       snap.ID,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Metadata:       map[string]any{"extracted_path": absRoot},
	})
	return snap, nil
}

func newListCommand(globals *cmdutil.Globals) *cobra.Command {
	var actor cmdutil.ActorFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			snaps, err := a.DB.ListSnapshots(cmd.Context(), actor.OrganizationID)
			if err != nil {
				return fmt.Errorf("listing snapshots: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tPATH")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.CreatedAt.Format("2006-01-02 15:04"), s.ExtractedPath)
			}
			return w.Flush()
		},
	}

	actor.Bind(cmd)
	return cmd
}
