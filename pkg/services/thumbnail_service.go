package services

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"regal/pkg/store"
)

const (
	// ThumbSize bounds both sides of a generated thumbnail
	ThumbSize = 100

	defaultThumbWorkers = 4
)

// ProgressCallback is a function that receives progress updates
type ProgressCallback func(step string, progress int)

// ThumbPath is where the thumbnail of a picture is written
func (s *Service) ThumbPath(pictureID int) string {
	return filepath.Join(s.config.ThumbsDir(), fmt.Sprintf("%d.png", pictureID))
}

// ThumbnailNeeded reports whether the thumbnail of a picture is missing or was
// made from different content
func (s *Service) ThumbnailNeeded(p store.Picture) (bool, error) {
	thumb, err := s.db.ThumbByPicture(p.ID)
	if err != nil {
		return false, err
	}
	if thumb == nil || thumb.PictureHash != p.SHA1 {
		return true, nil
	}
	if _, err := os.Stat(s.ThumbPath(p.ID)); err != nil {
		return true, nil
	}
	return false, nil
}

// GenerateIfNeeded generates the thumbnail of a picture unless an up to date
// one exists. It reports whether a thumbnail was generated. Concurrent calls
// for the same picture share one generation.
func (s *Service) GenerateIfNeeded(p store.Picture) (bool, error) {
	made, err, _ := s.thumbGroup.Do(strconv.Itoa(p.ID), func() (any, error) {
		needed, err := s.ThumbnailNeeded(p)
		if err != nil || !needed {
			return false, err
		}
		if err := s.GenerateThumbnail(p); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return made.(bool), nil
}

// GenerateThumbnail scales a picture to fit ThumbSize and writes it as PNG
func (s *Service) GenerateThumbnail(p store.Picture) error {
	src, err := decodePicture(p.Path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.config.ThumbsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	dst := s.ThumbPath(p.ID)
	f, err := os.CreateTemp(s.config.ThumbsDir(), fmt.Sprintf("%d-*.tmp", p.ID))
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	tmp := f.Name()
	if err := png.Encode(f, fitInto(src, ThumbSize)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move thumbnail into place: %w", err)
	}

	s.logger.Debug("Generated thumbnail", zap.Int("picture", p.ID), zap.String("path", dst))
	return s.db.UpsertThumb(store.Thumb{PictureID: p.ID, PictureHash: p.SHA1})
}

// LoadOrGenerate returns the thumbnail file of a picture, generating it first when needed
func (s *Service) LoadOrGenerate(pictureID int) (string, error) {
	p, err := s.db.PictureByID(pictureID)
	if err != nil {
		return "", err
	}
	if _, err := s.GenerateIfNeeded(p); err != nil {
		return "", err
	}
	return s.ThumbPath(p.ID), nil
}

// GenerateAllThumbnails brings the thumbnails of every catalogued picture up to
// date, a few pictures at a time. Failures for single pictures are logged and
// counted; it returns the number generated and the number failed.
func (s *Service) GenerateAllThumbnails(ctx context.Context, workers int, progressCb ProgressCallback) (int, int, error) {
	sendProgress := func(step string, progress int) {
		if progressCb != nil {
			progressCb(step, progress)
		}
	}
	if workers <= 0 {
		workers = defaultThumbWorkers
	}

	sendProgress("Loading pictures", 0)
	galleries, err := s.db.AllGalleries()
	if err != nil {
		return 0, 0, err
	}
	var pictures []store.Picture
	for _, g := range galleries {
		ps, err := s.db.PicturesByGallery(g.ID)
		if err != nil {
			return 0, 0, err
		}
		for _, p := range ps {
			if thumbnailable(p) {
				pictures = append(pictures, p)
			}
		}
	}

	var generated, failed, done atomic.Int64
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pictures {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			made, err := s.GenerateIfNeeded(p)
			switch {
			case err != nil:
				s.logger.Warn("Failed to generate thumbnail", zap.Int("picture", p.ID), zap.String("path", p.Path), zap.Error(err))
				failed.Add(1)
			case made:
				generated.Add(1)
			}
			n := done.Add(1)
			sendProgress(p.Name, int(n*100/int64(len(pictures))))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(generated.Load()), int(failed.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(generated.Load()), int(failed.Load()), err
	}

	sendProgress("Complete", 100)
	return int(generated.Load()), int(failed.Load()), nil
}

// thumbnailable reports whether a picture can be decoded into a thumbnail
func thumbnailable(p store.Picture) bool {
	return decodableFormats.Contains(p.Format)
}

// removeThumbs deletes the thumbnail files of the pictures in a gallery and
// in all of its child galleries
func (s *Service) removeThumbs(galleryID int) error {
	pictures, err := s.db.PicturesByGallery(galleryID)
	if err != nil {
		return err
	}
	for _, p := range pictures {
		os.Remove(s.ThumbPath(p.ID))
	}
	children, err := s.db.GalleriesByParent(galleryID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.removeThumbs(child.ID); err != nil {
			return err
		}
	}
	return nil
}

func decodePicture(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// fitInto scales src so that its longer side is size, keeping the aspect ratio
func fitInto(src image.Image, size int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	tw, th := size, size
	if w > h {
		th = max(1, h*size/w)
	} else {
		tw = max(1, w*size/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
