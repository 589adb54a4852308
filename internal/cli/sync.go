package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [owner/repo]",
	Short: "Run one synchronization round and exit",
	Long: `Searches GitHub for repositories carrying the configured topic and stores
every valid release that is due for a refresh. If owner/repo is given, only that
repository is refreshed, whether or not it is due.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	var owner, name string
	if len(args) > 0 {
		var ok bool
		owner, name, ok = strings.Cut(args[0], "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("expected owner/repo, got %q", args[0])
		}
	}

	settings, logger, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	catalog, err := openCatalog(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer catalog.Close()

	bot, client, err := newSyncer(settings, catalog, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if owner != "" {
		result, err := bot.SyncNamed(ctx, owner, name)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		cmd.Printf("%s/%s: %d stored, %d rejected, latest %s\n",
			owner, name, result.Upserted, result.Rejected, latestOrNone(result.Latest))
		return nil
	}

	report, err := bot.SyncOnce(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	cmd.Printf("repositories: %d seen, %d skipped, %d synced, %d failed\n",
		report.ReposSeen, report.ReposSkipped, report.ReposSynced, report.ReposFailed)
	cmd.Printf("versions: %d stored, %d rejected\n", report.VersionsUpserted, report.ManifestsRejected)
	return nil
}

func latestOrNone(version string) string {
	if version == "" {
		return "none"
	}
	return version
}
