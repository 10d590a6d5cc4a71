// Package config implements the config command.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/cmd/cmdutil"
	"github.com/joshsymonds/certify/internal/config"
)

// NewCommand creates the config command.
func NewCommand(globals *cmdutil.Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newValidateCommand(globals))
	return cmd
}

func newValidateCommand(globals *cmdutil.Globals) *cobra.Command {
	return &cobra.Command{
		Use:     "validate",
		Short:   "Validate a certify configuration file",
		Example: `  certify config validate --config certify.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if globals.ConfigFile == "" {
				return fmt.Errorf("--config flag is required")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔍 Validating configuration: %s\n\n", globals.ConfigFile)

			cfg, err := globals.Config()
			if err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}

			printValidationResults(out, cfg)

			fmt.Fprintln(out, "\n✅ Configuration is valid!")
			return nil
		},
	}
}

func printValidationResults(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "🌐 Server:")
	fmt.Fprintf(w, "   Address: %s\n", cfg.Server.Addr)
	if cfg.Server.JWTSecret != "" {
		fmt.Fprintln(w, "   JWT secret: set")
	} else {
		fmt.Fprintln(w, "   JWT secret: not set (serve will refuse to start)")
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		fmt.Fprintf(w, "   CORS origins: %s\n", strings.Join(cfg.Server.CORSOrigins, ", "))
	}

	fmt.Fprintln(w, "\n🗄  Database:")
	fmt.Fprintf(w, "   Path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "   Max connections: %d\n", cfg.Database.MaxConnections)

	fmt.Fprintln(w, "\n🔎 Analysis:")
	fmt.Fprintf(w, "   Workers: %d (queue %d)\n", cfg.Analysis.Workers, cfg.Analysis.QueueSize)
	fmt.Fprintf(w, "   Run timeout: %s\n", cfg.Analysis.RunTimeout)
	fmt.Fprintf(w, "   Default depth: %s\n", cfg.Analysis.DefaultDepth)
	if len(cfg.Analysis.IgnoreDirs) > 0 {
		fmt.Fprintf(w, "   Ignored directories: %s\n", strings.Join(cfg.Analysis.IgnoreDirs, ", "))
	}

	fmt.Fprintln(w, "\n📄 Findings:")
	fmt.Fprintf(w, "   Page size: %d (max %d)\n", cfg.Findings.DefaultPageSize, cfg.Findings.MaxPageSize)

	fmt.Fprintln(w, "\n🤖 AI summaries:")
	if !cfg.AI.Enabled {
		fmt.Fprintln(w, "   Disabled")
		return
	}
	fmt.Fprintf(w, "   Model: %s\n", cfg.AI.Model)
	if cfg.AI.APIKey == "" {
		fmt.Fprintf(w, "   API key: missing (%s is not set)\n", cfg.AI.APIKeyEnv)
	} else {
		fmt.Fprintf(w, "   API key: from %s\n", cfg.AI.APIKeyEnv)
	}
}
