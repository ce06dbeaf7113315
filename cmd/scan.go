package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScanCmd creates a new command for cataloguing picture directories
func newScanCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "scan [directory...]",
		Short: "Catalogue picture directories",
		Long: `Catalogue the given directories, or the scan_dirs of the configuration when none are
given. Galleries whose directory vanished and pictures whose file vanished are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 0 {
				return refreshCatalog(cmd.Context(), a)
			}

			if err := a.service.CheckAll(); err != nil {
				return err
			}
			for _, dir := range args {
				if recursive {
					err = a.service.ScanRecursively(dir)
				} else {
					_, err = a.service.Scan(dir, nil)
				}
				if err != nil {
					return err
				}
				a.logger.Info("Scanned directory", zap.String("dir", dir), zap.Bool("recursive", recursive))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Scan the directories recursively")
	return cmd
}
