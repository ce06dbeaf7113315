package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/eknkc/pug"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"regal/pkg/client"
	"regal/pkg/logging"
	"regal/pkg/page"
	"regal/pkg/thumbs"
)

type renderOptions struct {
	baseURL      string
	templateFile string
	title        string
	galleryID    int
	httpClient   *http.Client
}

// newRenderCmd creates a command that renders a static gallery page from a running server
func newRenderCmd() *cobra.Command {
	var (
		opts   renderOptions
		output string
	)

	cmd := &cobra.Command{
		Use:   "render [base-url]",
		Short: "Render a static gallery page from a running server",
		Long: `Load a page template, fill its #galleries and #pictures containers with thumbnails
fetched from the JSON endpoints of a running server, and write the resulting HTML.
Without --gallery the top level galleries are rendered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			opts.baseURL = args[0]
			w := io.Writer(os.Stdout)
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return renderPage(cmd.Context(), w, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.templateFile, "template", "t", "./views/render.pug", "Page template")
	cmd.Flags().StringVar(&opts.title, "title", "Regal", "Page title")
	cmd.Flags().IntVarP(&opts.galleryID, "gallery", "g", 0, "Render the child galleries and pictures of this gallery")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the page to this file instead of stdout")
	return cmd
}

// renderPage builds the page document and, once it is ready, renders the
// gallery and picture lists into it before writing it to w
func renderPage(ctx context.Context, w io.Writer, opts renderOptions, logger *zap.Logger) error {
	template, err := pug.CompileFile(opts.templateFile, pug.Options{})
	if err != nil {
		return fmt.Errorf("failed to compile template %s: %w", opts.templateFile, err)
	}
	var markup bytes.Buffer
	if err := template.Execute(&markup, map[string]any{"Title": opts.title}); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", opts.templateFile, err)
	}

	loop := page.NewLoop()
	defer loop.Close()
	doc := page.NewDocument(loop)

	fetchOpts := []client.Option{client.WithLogger(logger), client.WithScheduler(loop)}
	if opts.httpClient != nil {
		fetchOpts = append(fetchOpts, client.WithHTTPClient(opts.httpClient))
	}
	fetcher := client.NewFetcher(fetchOpts...)

	base := strings.TrimSuffix(opts.baseURL, "/")
	galleriesURL := base + "/gallery/top"
	picturesURL := ""
	if opts.galleryID != 0 {
		id := strconv.Itoa(opts.galleryID)
		galleriesURL = base + "/gallery/by_parent/" + id
		picturesURL = base + "/picture/in_gallery/" + id
	}

	g, ctx := errgroup.WithContext(ctx)
	wait := func(req *client.Request) {
		g.Go(func() error {
			err := req.Wait(ctx)
			// Failed fetches are logged by the fetcher and leave the container empty
			if errors.Is(err, client.ErrNilNode) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	started := make(chan struct{})
	doc.OnReady(func() {
		defer close(started)
		if target := doc.GetElementByID("galleries"); target != nil {
			wait(client.RenderList(ctx, fetcher, galleriesURL, target, thumbs.Gallery, nil))
		}
		if target := doc.GetElementByID("pictures"); target != nil && picturesURL != "" {
			wait(client.RenderList(ctx, fetcher, picturesURL, target, thumbs.Picture, nil))
		}
	})

	if err := doc.Load(&markup); err != nil {
		return err
	}
	select {
	case <-started:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The tree belongs to the loop; serialise it there
	errc := make(chan error, 1)
	if err := loop.Post(func() { errc <- doc.Render(w) }); err != nil {
		return err
	}
	return <-errc
}
