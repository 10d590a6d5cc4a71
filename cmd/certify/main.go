// Package main is the entry point for the certify CLI. certify scans
// repository snapshots for compliance-relevant code patterns, maps them to
// SOC2, ISO 27001 and NIST 800-53 controls, and serves the results over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/analyze"
	"github.com/joshsymonds/certify/cmd/cmdutil"
	configcmd "github.com/joshsymonds/certify/cmd/config"
	"github.com/joshsymonds/certify/cmd/findings"
	"github.com/joshsymonds/certify/cmd/review"
	"github.com/joshsymonds/certify/cmd/serve"
	"github.com/joshsymonds/certify/cmd/snapshot"
	"github.com/joshsymonds/certify/cmd/token"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func newRootCommand() *cobra.Command {
	globals := &cmdutil.Globals{}

	root := &cobra.Command{
		Use:           "certify",
		Short:         "Repository compliance scanning",
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  certify analyze ./my-service --framework SOC2 --framework ISO27001
  certify snapshot register ./my-service --org acme
  certify findings list <snapshot-id> --org acme --status fail
  certify serve --config certify.yaml`,
	}
	globals.Bind(root)

	root.AddCommand(
		analyze.NewCommand(globals),
		snapshot.NewCommand(globals),
		findings.NewCommand(globals),
		review.NewCommand(globals),
		serve.NewCommand(globals),
		token.NewCommand(globals),
		configcmd.NewCommand(globals),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
