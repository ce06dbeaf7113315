package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"regal/pkg/services"
)

// newShowGalleryCmd creates a new command for showing gallery details
func newShowGalleryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-gallery [id]",
		Short: "Show pictures in a specific gallery",
		Long:  `Show detailed information about the pictures in a specific gallery identified by its id.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid gallery id %q", args[0])
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			return showGallery(os.Stdout, a.service, id)
		},
	}
}

// showGallery displays details about a specific gallery
func showGallery(w io.Writer, svc *services.Service, id int) error {
	gallery, err := svc.Gallery(id)
	if err != nil {
		return err
	}
	pictures, err := svc.PicturesInGallery(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Gallery: %s\n", gallery.GalleryName)
	fmt.Fprintf(w, "Thumb: %s\n", gallery.Thumb)
	fmt.Fprintf(w, "Pictures: %d\n", len(pictures))
	fmt.Fprintln(w, "================")

	for i, picture := range pictures {
		fmt.Fprintf(w, "%d. %s\n", i+1, picture.PictureName)
		fmt.Fprintf(w, "   Raw: %s\n", picture.Raw)
		fmt.Fprintf(w, "   Thumb: %s\n", picture.Thumb)
		fmt.Fprintln(w)
	}
	return nil
}
