package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

const bucketScheme = "gs://"

var (
	// ErrNoBucket is returned when a bucket import is requested without a bucket name
	ErrNoBucket = errors.New("BUCKET_NAME is not configured")
	// ErrUnsafeObjectName is returned for object names that would resolve
	// outside the bucket cache directory
	ErrUnsafeObjectName = errors.New("object name escapes the bucket directory")
)

// BucketObject is a picture stored in the bucket
type BucketObject struct {
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// ImportBucket downloads the pictures of the configured bucket into the cache
// directory and catalogues them. Object prefixes become nested galleries.
func (s *Service) ImportBucket(ctx context.Context) (int, error) {
	if s.config.BucketName == "" {
		return 0, ErrNoBucket
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	bucket := client.Bucket(s.config.BucketName)
	imported := 0
	it := bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("error iterating objects: %w", err)
		}
		if strings.HasSuffix(attrs.Name, "/") || pictureFormat(attrs.Name) == "" {
			continue
		}

		obj := BucketObject{
			Name: attrs.Name,
			Size: attrs.Size,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return bucket.Object(attrs.Name).NewReader(ctx)
			},
		}
		if err := s.ImportObject(ctx, obj); err != nil {
			s.logger.Warn("Failed to import object", zap.String("object", attrs.Name), zap.Error(err))
			continue
		}
		imported++
	}

	s.FlushCache()
	return imported, nil
}

// ImportObject downloads one bucket object unless an equally sized copy is
// already cached, and catalogues it into the gallery of its prefix
func (s *Service) ImportObject(ctx context.Context, obj BucketObject) error {
	if !filepath.IsLocal(filepath.FromSlash(obj.Name)) {
		return fmt.Errorf("%w: %q", ErrUnsafeObjectName, obj.Name)
	}
	name := path.Clean(obj.Name)
	local := filepath.Join(s.config.BucketDir(), filepath.FromSlash(name))
	if info, err := os.Stat(local); err != nil || info.Size() != obj.Size {
		s.logger.Debug("Downloading object", zap.String("object", obj.Name), zap.String("path", local))
		if err := downloadObject(ctx, obj, local); err != nil {
			return err
		}
	}

	galleryID, err := s.bucketGallery(path.Dir(name))
	if err != nil {
		return err
	}
	return s.AddPicture(local, galleryID)
}

// bucketGallery returns the gallery for an object prefix, creating the galleries
// of the prefix and all of its ancestors as needed. Objects without a prefix
// belong to a gallery named after the bucket.
func (s *Service) bucketGallery(prefix string) (int, error) {
	root := bucketScheme + s.config.BucketName
	g, err := s.galleryForDirectory(root, s.config.BucketName, nil)
	if err != nil {
		return 0, err
	}
	if prefix == "." || prefix == "" {
		return g.ID, nil
	}

	parent := g.ID
	directory := root
	for _, part := range strings.Split(prefix, "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		directory += "/" + part
		child, err := s.galleryForDirectory(directory, part, &parent)
		if err != nil {
			return 0, err
		}
		parent = child.ID
	}
	return parent, nil
}

func downloadObject(ctx context.Context, obj BucketObject, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	r, err := obj.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open object %s: %w", obj.Name, err)
	}
	defer r.Close()

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to download %s: %w", obj.Name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, dst)
}
