package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regal/pkg/config"
	"regal/pkg/handlers"
	"regal/pkg/services"
)

// newServeCmd creates a new command for serving the web application
func newServeCmd() *cobra.Command {
	var (
		skipScan   bool
		skipThumbs bool
		viewsDir   string
		publicDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Scan the configured directories, bring the thumbnails up to date and start the web
server to serve the gallery content via HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !skipScan {
				if err := refreshCatalog(ctx, a); err != nil {
					return err
				}
			}
			if !skipThumbs {
				processed, failed, err := a.service.GenerateAllThumbnails(ctx, 0, nil)
				if err != nil {
					return err
				}
				a.logger.Info("Thumbnails up to date", zap.Int("generated", processed), zap.Int("errors", failed))
			}

			h := handlers.New(a.service, a.logger, viewsDir)
			return serveWebsite(ctx, a.cfg, a.logger, h.Routes(publicDir))
		},
	}

	cmd.Flags().BoolVar(&skipScan, "skip-scan", false, "Do not scan the configured directories before serving")
	cmd.Flags().BoolVar(&skipThumbs, "skip-thumbs", false, "Do not generate thumbnails before serving")
	cmd.Flags().StringVar(&viewsDir, "views", "./views", "Directory holding the pug templates")
	cmd.Flags().StringVar(&publicDir, "public", "./public", "Directory served under /static/")
	return cmd
}

// refreshCatalog scans the configured directories and imports the bucket when one is set
func refreshCatalog(ctx context.Context, a *app) error {
	if err := a.service.ScanConfigured(ctx); err != nil {
		return err
	}
	if a.cfg.BucketName == "" {
		return nil
	}
	imported, err := a.service.ImportBucket(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNoBucket) {
			return nil
		}
		return err
	}
	a.logger.Info("Imported bucket", zap.String("bucket", a.cfg.BucketName), zap.Int("pictures", imported))
	return nil
}

// serveWebsite runs the web server until ctx ends
func serveWebsite(ctx context.Context, cfg *config.Config, logger *zap.Logger, handler http.Handler) error {
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		cfg.PrintServerStartMessage()
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logger.Error("Server error", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
