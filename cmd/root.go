package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regal/pkg/config"
	"regal/pkg/logging"
	"regal/pkg/services"
	"regal/pkg/store"
)

// Configuration flags
var (
	configFile string
	cacheDir   string
	bucketName string
	portNumber string
	verbose    bool
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "regal",
		Short: "Regal is a tool for cataloguing and displaying picture galleries",
		Long: `Regal scans picture directories (and optionally a Google Cloud Storage bucket)
into a sqlite catalog, generates thumbnails and serves the galleries via a web interface.`,
		SilenceUsage: true,
	}

	// Define persistent flags that will be available for all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.regal/scanner.json, then /etc/regal/scanner.json)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache", "", "Set the cache directory (overrides REGAL_CACHE_DIR)")
	rootCmd.PersistentFlags().StringVarP(&bucketName, "bucket", "b", "", "Set the BUCKET_NAME (overrides environment variable)")
	rootCmd.PersistentFlags().StringVarP(&portNumber, "port", "p", "", "Set the PORT (overrides environment variable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add commands to root
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newGenerateThumbnailsCmd())
	rootCmd.AddCommand(newListGalleriesCmd())
	rootCmd.AddCommand(newShowGalleryCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newRenderCmd())

	return rootCmd
}

// LoadConfig loads configuration with respect to command line flags
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if bucketName != "" {
		cfg.BucketName = bucketName
	}
	if portNumber != "" {
		cfg.Port = portNumber
	}
	cfg.Verbose = cfg.Verbose || verbose
	return cfg, nil
}

// app bundles what a command needs to work on the catalog
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *store.Database
	service *services.Service
}

// setup loads the configuration, opens the catalog and initializes the service
func setup() (*app, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureCacheDirs(); err != nil {
		return nil, err
	}
	db, err := store.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", cfg.DatabaseFile, err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		service: services.InitService(cfg, db, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Error closing catalog", zap.Error(err))
	}
	_ = a.logger.Sync()
}
