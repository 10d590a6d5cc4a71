// Package serve implements the serve command, which runs the HTTP API and the
// analysis workers.
package serve

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	"github.com/joshsymonds/certify/internal/httpapi"
)

// NewCommand creates the serve command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the analysis and findings API.

Every /api/v1 route requires an HS256 bearer token carrying org_id and sub
claims, signed with server.jwt_secret (or CERTIFY_JWT_SECRET). Use
"certify token" to mint one for local testing.`,
		Example: `  CERTIFY_JWT_SECRET=dev certify serve
  certify serve --config certify.yaml --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := globals.OpenApp()
			if err != nil {
				return err
			}
			defer cmdutil.CloseApp(a)

			if addr != "" {
				a.Config.Server.Addr = addr
			}

			server, err := httpapi.NewServer(a.Orchestrator, a.Findings, a.Config, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.Orchestrator.Start()
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}
