package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"regal/pkg/models"
	"regal/pkg/services"
)

// newListGalleriesCmd creates a new command for listing galleries
func newListGalleriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-galleries",
		Short: "List all galleries",
		Long:  `List all galleries as a tree with the number of pictures in each.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			return listGalleries(os.Stdout, a.service)
		},
	}
}

// listGalleries prints the gallery tree and its picture counts
func listGalleries(w io.Writer, svc *services.Service) error {
	top, err := svc.TopGalleries()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Galleries:")
	fmt.Fprintln(w, "==========")

	total, err := printGalleries(w, svc, top, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %d galleries\n", total)
	return nil
}

func printGalleries(w io.Writer, svc *services.Service, galleries []models.Gallery, depth int) (int, error) {
	count := 0
	for _, gallery := range galleries {
		pictures, err := svc.PicturesInGallery(gallery.GalleryID)
		if err != nil {
			return count, err
		}
		fmt.Fprintf(w, "%s- %s (id: %d, pictures: %d)\n", strings.Repeat("  ", depth), gallery.GalleryName, gallery.GalleryID, len(pictures))
		count++

		children, err := svc.GalleriesByParent(gallery.GalleryID)
		if err != nil {
			return count, err
		}
		n, err := printGalleries(w, svc, children, depth+1)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}
