package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/lippkg/lip-index/api"
	"github.com/lippkg/lip-index/internal/jobs"
	"github.com/lippkg/lip-index/internal/search"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API and run the release synchronizer",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	catalog, err := openCatalog(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer catalog.Close()

	// One worker: sync rounds never overlap.
	manager := jobs.NewManager(1, logger)
	manager.Start()
	defer manager.Stop()

	bot, client, err := newSyncer(settings, catalog, manager, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	searchService, err := search.NewService(catalog, settings.RepoHost, logger)
	if err != nil {
		return err
	}
	apiHandler, err := api.NewAPI(searchService, manager, bot, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              settings.ListenAddr(),
		Handler:           api.NewRouter(apiHandler, settings.CORSAllowOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if err := bot.Run(ctx); err != nil {
			logger.Error("synchronizer stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serverErr:
		err = fmt.Errorf("http server: %w", err)
	}

	cancel()
	<-syncDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("http server shutdown", "error", shutdownErr)
	}
	return err
}
