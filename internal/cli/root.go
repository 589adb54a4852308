// Package cli implements the lip-index command line.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/lippkg/lip-index/config"
	"github.com/lippkg/lip-index/internal/jobs"
	"github.com/lippkg/lip-index/internal/logging"
	"github.com/lippkg/lip-index/internal/syncer"
	"github.com/lippkg/lip-index/services"
	"github.com/lippkg/lip-index/store"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lip-index",
	Short: "Discovery service for the lip tooth registry",
	Long: `lip-index mirrors tooth releases from GitHub into a catalog and serves
search over it. Settings come from an optional TOML file given with --config and
from environment variables, which take precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadSettings resolves and validates the settings and sets up logging.
func loadSettings() (*config.Settings, hclog.Logger, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if problems := settings.Validate(); len(problems) > 0 {
		return nil, nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return settings, logging.Init(settings.LogLevel), nil
}

// newSyncer wires the GitHub client and refresh state into a Syncer.
// The returned client must be closed by the caller.
func newSyncer(settings *config.Settings, catalog services.CatalogWriter, manager *jobs.Manager, logger hclog.Logger) (*syncer.Syncer, *syncer.GitHubClient, error) {
	client, err := syncer.NewGitHubClient(syncer.GitHubOptions{
		Token:             settings.GitHubBot.Token,
		BaseURL:           settings.GitHubBot.BaseURL,
		RequestsPerSecond: settings.GitHubBot.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, err
	}

	state, err := syncer.LoadState(settings.StatePath())
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	opts := syncer.DefaultOptions()
	opts.Host = settings.RepoHost
	opts.Topic = settings.GitHubBot.Topic
	opts.Interval = settings.SyncInterval()
	opts.Expire = settings.SyncExpire()
	opts.Workers = settings.GitHubBot.Workers

	s, err := syncer.New(client, catalog, manager, state, opts, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return s, client, nil
}

func openCatalog(ctx context.Context, settings *config.Settings, logger hclog.Logger) (*store.SQLiteStore, error) {
	catalog, err := store.OpenSQLite(ctx, settings.DatabasePath, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	return catalog, nil
}
