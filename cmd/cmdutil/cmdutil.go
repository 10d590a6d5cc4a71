// Package cmdutil holds the flags and helpers shared by certify subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/certify/internal/app"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
	"github.com/joshsymonds/certify/pkg/pathutil"
)

const closeTimeout = 30 * time.Second

// Globals are the persistent flags of the root command.
type Globals struct {
	ConfigFile string
	LogFormat  string
	Debug      bool
}

// Bind registers the global flags on cmd.
func (g *Globals) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&g.ConfigFile, "config", "c", "", "Path to config file (defaults are used when empty)")
	cmd.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.LogFormat, "log-format", "", "Log format (text or json), overrides the config")
}

// Config loads the configuration file, or the defaults plus environment
// overrides when no file was given.
func (g *Globals) Config() (*config.Config, error) {
	if g.ConfigFile == "" {
		cfg := config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	path, err := pathutil.ValidateConfigPath(g.ConfigFile)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// SetupLogger configures the global logger from the flags and cfg.
func (g *Globals) SetupLogger(cfg *config.Config) logger.Logger {
	format := cfg.Logging.Format
	if g.LogFormat != "" {
		format = g.LogFormat
	}
	logger.SetupLogger(g.Debug || cfg.Logging.Debug, format)
	return logger.GetGlobalLogger()
}

// OpenApp loads the configuration, configures logging and builds the app.
func (g *Globals) OpenApp() (*app.App, error) {
	cfg, err := g.Config()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, g.SetupLogger(cfg))
}

// CloseApp shuts the app down with a bounded timeout.
func CloseApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
}

// ActorFlags identify the caller of a local command.
type ActorFlags struct {
	OrganizationID string
	UserID         string
}

// Bind registers --org and --user on cmd.
func (f *ActorFlags) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.OrganizationID, "org", "local", "Organization id")
	cmd.Flags().StringVar(&f.UserID, "user", "cli", "User id recorded in audit events")
}

// Actor returns the caller identity.
func (f *ActorFlags) Actor() models.Actor {
	return models.Actor{OrganizationID: f.OrganizationID, UserID: f.UserID}
}
