package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"regal/pkg/store"
)

// pictureFormats are the lower case file extensions the scanner catalogues
var pictureFormats = mapset.NewSet("png", "jpg", "jpeg", "gif", "bmp", "ico", "tiff", "webp")

// decodableFormats are the picture formats with a registered image decoder
var decodableFormats = pictureFormats.Difference(mapset.NewSet("ico"))

// ErrNotDirectory is returned when a scan target is not a directory
var ErrNotDirectory = errors.New("not a directory")

// pictureFormat returns the format of a picture file, or "" for other files
func pictureFormat(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if pictureFormats.Contains(ext) {
		return ext
	}
	return ""
}

// ScanConfigured checks every gallery, then scans each configured directory
func (s *Service) ScanConfigured(ctx context.Context) error {
	if err := s.CheckAll(); err != nil {
		return err
	}
	for _, dir := range s.config.ScanDirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if dir.Recursive {
			err = s.ScanRecursively(dir.Path)
		} else {
			_, err = s.Scan(dir.Path, nil)
		}
		if err != nil {
			s.logger.Error("Failed to scan directory", zap.String("dir", dir.Path), zap.Error(err))
		}
	}
	return nil
}

// Scan catalogues the pictures directly inside dir into the gallery for dir,
// creating that gallery under parent when it does not exist yet.
func (s *Service) Scan(dir string, parent *int) (store.Gallery, error) {
	dir, err := scanTarget(dir)
	if err != nil {
		return store.Gallery{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return store.Gallery{}, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	gallery, err := s.galleryForDirectory(dir, filepath.Base(dir), parent)
	if err != nil {
		return store.Gallery{}, err
	}
	s.addPictures(dir, entries, gallery.ID)
	s.FlushCache()
	return gallery, nil
}

// ScanRecursively catalogues every directory below root that holds pictures.
// Galleries for the directories in between are created so that each gallery
// hangs off the gallery of its parent directory.
func (s *Service) ScanRecursively(root string) error {
	root, err := scanTarget(root)
	if err != nil {
		return err
	}

	galleries := make(map[string]int)
	var ensure func(dir string) (int, error)
	ensure = func(dir string) (int, error) {
		if id, ok := galleries[dir]; ok {
			return id, nil
		}
		var parent *int
		if dir != root {
			id, err := ensure(filepath.Dir(dir))
			if err != nil {
				return 0, err
			}
			parent = &id
		}
		g, err := s.galleryForDirectory(dir, filepath.Base(dir), parent)
		if err != nil {
			return 0, err
		}
		galleries[dir] = g.ID
		return g.ID, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable directory", zap.String("dir", path), zap.Error(err))
			return nil
		}
		if !holdsPictures(entries) {
			return nil
		}
		id, err := ensure(path)
		if err != nil {
			return err
		}
		s.addPictures(path, entries, id)
		return nil
	})
	s.FlushCache()
	return err
}

// CheckAll runs CheckGallery on every gallery
func (s *Service) CheckAll() error {
	galleries, err := s.db.AllGalleries()
	if err != nil {
		return err
	}
	for _, g := range galleries {
		if err := s.CheckGallery(g.ID); err != nil && !IsNotFound(err) {
			return err
		}
	}
	return nil
}

// CheckGallery removes a gallery whose directory vanished, and the pictures of
// the gallery whose files vanished
func (s *Service) CheckGallery(id int) error {
	g, err := s.db.GalleryByID(id)
	if err != nil {
		return err
	}
	defer s.FlushCache()

	if isLocalDirectory(g.Directory) {
		if _, err := os.Stat(g.Directory); errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("Gallery directory is gone, removing gallery",
				zap.Int("gallery", g.ID), zap.String("directory", g.Directory))
			if err := s.removeThumbs(g.ID); err != nil {
				return err
			}
			return s.db.DeleteGallery(g.ID)
		}
	}

	pictures, err := s.db.PicturesByGallery(g.ID)
	if err != nil {
		return err
	}
	for _, p := range pictures {
		if _, err := os.Stat(p.Path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		s.logger.Info("Picture file is gone, removing picture", zap.Int("picture", p.ID), zap.String("path", p.Path))
		if err := s.db.DeletePicture(p.ID); err != nil {
			return err
		}
		os.Remove(s.ThumbPath(p.ID))
	}
	return nil
}

// AddPicture catalogues one picture file into a gallery. Files whose size is
// unchanged are skipped, changed files are re-hashed and updated.
func (s *Service) AddPicture(path string, galleryID int) error {
	format := pictureFormat(path)
	if format == "" {
		return fmt.Errorf("unsupported picture format: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	existing, err := s.db.PictureByPath(path)
	if err != nil {
		return err
	}
	if existing != nil && existing.Filesize == info.Size() {
		return nil
	}

	picture, err := readPicture(path)
	if err != nil {
		return err
	}
	picture.GalleryID = galleryID
	picture.Format = format
	picture.Filesize = info.Size()

	if existing != nil {
		if existing.SHA1 == picture.SHA1 {
			return nil
		}
		s.logger.Debug("Picture changed, updating", zap.String("path", path))
		return s.db.UpdatePicture(existing.ID, picture)
	}

	picture.ExternalID = uuid.NewString() + "." + format
	s.logger.Debug("Adding picture", zap.String("path", path), zap.Int("gallery", galleryID))
	_, err = s.db.InsertPicture(picture)
	return err
}

func (s *Service) addPictures(dir string, entries []fs.DirEntry, galleryID int) {
	for _, entry := range entries {
		if entry.IsDir() || pictureFormat(entry.Name()) == "" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.AddPicture(path, galleryID); err != nil {
			s.logger.Warn("Failed to add picture", zap.String("path", path), zap.Error(err))
		}
	}
}

// galleryForDirectory returns the gallery catalogued for directory, creating it if needed
func (s *Service) galleryForDirectory(directory, name string, parent *int) (store.Gallery, error) {
	existing, err := s.db.GalleryByDirectory(directory)
	if err != nil {
		return store.Gallery{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	s.logger.Info("Creating gallery", zap.String("name", name), zap.String("directory", directory))
	if _, err := s.db.InsertGallery(store.NewGallery{Name: name, Directory: directory, Parent: parent}); err != nil {
		return store.Gallery{}, err
	}
	created, err := s.db.GalleryByDirectory(directory)
	if err != nil {
		return store.Gallery{}, err
	}
	if created == nil {
		return store.Gallery{}, fmt.Errorf("gallery for %s: %w", directory, ErrNotFound)
	}
	return *created, nil
}

// readPicture hashes a picture file and reads its dimensions
func readPicture(path string) (store.NewPicture, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.NewPicture{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, f); err != nil {
		return store.NewPicture{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	name := filepath.Base(path)
	picture := store.NewPicture{
		Name: strings.TrimSuffix(name, filepath.Ext(name)),
		Path: path,
		SHA1: hex.EncodeToString(hash.Sum(nil)),
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return store.NewPicture{}, fmt.Errorf("failed to rewind %s: %w", path, err)
	}
	// Formats without a registered decoder (ico) are catalogued without dimensions
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		picture.Width, picture.Height = cfg.Width, cfg.Height
	}
	return picture, nil
}

func scanTarget(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}
	return abs, nil
}

func holdsPictures(entries []fs.DirEntry) bool {
	for _, entry := range entries {
		if !entry.IsDir() && pictureFormat(entry.Name()) != "" {
			return true
		}
	}
	return false
}

func isLocalDirectory(directory string) bool {
	return directory != "" && !strings.HasPrefix(directory, bucketScheme)
}
