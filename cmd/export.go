package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"regal/pkg/models"
	"regal/pkg/services"
)

// galleryExport is one gallery with its pictures
type galleryExport struct {
	models.Gallery
	Pictures []models.Picture `json:"pictures"`
}

// newExportCmd creates a new command for exporting gallery data
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [format]",
		Short: "Export gallery data",
		Long:  `Export all gallery data in the specified format. Currently supported formats: json.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := "json"
			if len(args) > 0 {
				format = args[0]
			}
			if format != "json" {
				return fmt.Errorf("unsupported export format: %s (supported formats: json)", format)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			return exportData(os.Stdout, a.service)
		},
	}
}

// exportData writes every gallery with its pictures as JSON
func exportData(w io.Writer, svc *services.Service) error {
	galleries, err := svc.AllGalleries()
	if err != nil {
		return err
	}

	export := make([]galleryExport, 0, len(galleries))
	for _, gallery := range galleries {
		pictures, err := svc.PicturesInGallery(gallery.GalleryID)
		if err != nil {
			return err
		}
		export = append(export, galleryExport{Gallery: gallery, Pictures: pictures})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
