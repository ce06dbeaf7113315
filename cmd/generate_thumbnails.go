package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newGenerateThumbnailsCmd creates a new command for generating picture thumbnails
func newGenerateThumbnailsCmd() *cobra.Command {
	var (
		forceRegenerate bool
		workers         int
	)

	cmd := &cobra.Command{
		Use:   "generate-thumbnails",
		Short: "Generate thumbnails for pictures without an up to date thumbnail",
		Long:  `Generate thumbnails for catalogued pictures whose thumbnail is missing or was made from older content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if forceRegenerate {
				thumbs, err := a.db.AllThumbs()
				if err != nil {
					return err
				}
				for _, thumb := range thumbs {
					if err := a.db.DeleteThumb(thumb.PictureID); err != nil {
						return err
					}
				}
				a.logger.Info("Cleared thumbnail records", zap.Int("count", len(thumbs)))
			}

			processed, failed, err := a.service.GenerateAllThumbnails(cmd.Context(), workers, func(step string, progress int) {
				a.logger.Debug("Thumbnail progress", zap.String("step", step), zap.Int("progress", progress))
			})
			if err != nil {
				return err
			}

			fmt.Printf("Generated %d thumbnails, %d errors\n", processed, failed)
			return nil
		},
	}

	// Add command-specific flags
	cmd.Flags().BoolVarP(&forceRegenerate, "force", "f", false, "Force regeneration of all thumbnails, even if they are up to date")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of thumbnails generated at the same time")
	return cmd
}
