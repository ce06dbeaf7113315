package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"regal/pkg/config"
	"regal/pkg/models"
	"regal/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.NewDatabase(filepath.Join(t.TempDir(), "regal.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := &config.Config{CacheDir: t.TempDir(), BucketName: "holiday"}
	return NewService(cfg, db, zaptest.NewLogger(t))
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pngBytes(t, w, h, color.RGBA{R: 200, A: 255}), 0o644))
}

func galleryNamed(t *testing.T, s *Service, name string) store.Gallery {
	t.Helper()
	found, err := s.db.GalleriesByName(name)
	require.NoError(t, err)
	require.Len(t, found, 1)
	return found[0]
}

func TestNaturalLess(t *testing.T) {
	assert.True(t, naturalLess("file2", "file10"))
	assert.False(t, naturalLess("file10", "file2"))
	assert.True(t, naturalLess("a", "b"))
	assert.True(t, naturalLess("img", "img1"))
	assert.False(t, naturalLess("same", "same"))
}

func TestPictureFormat(t *testing.T) {
	assert.Equal(t, "jpg", pictureFormat("/a/B.JPG"))
	assert.Equal(t, "webp", pictureFormat("x.webp"))
	assert.Equal(t, "", pictureFormat("notes.txt"))
	assert.Equal(t, "", pictureFormat("README"))
}

func TestScan(t *testing.T) {
	s := newTestService(t)
	dir := filepath.Join(t.TempDir(), "holiday")
	writePNG(t, filepath.Join(dir, "beach.png"), 40, 20)
	writePNG(t, filepath.Join(dir, "dunes.PNG"), 10, 30)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a picture"), 0o644))
	writePNG(t, filepath.Join(dir, "nested", "skipped.png"), 5, 5)

	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "holiday", gallery.Name)
	assert.Equal(t, dir, gallery.Directory)
	assert.Nil(t, gallery.Parent)

	pictures, err := s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 2)

	beach := pictures[0]
	if beach.Name != "beach" {
		beach = pictures[1]
	}
	assert.Equal(t, "beach", beach.Name)
	assert.Equal(t, 40, beach.Width)
	assert.Equal(t, 20, beach.Height)
	assert.Equal(t, "png", beach.Format)
	assert.Len(t, beach.SHA1, 40)
	assert.True(t, strings.HasSuffix(beach.ExternalID, ".png"))

	again, err := s.Scan(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, gallery.ID, again.ID)
	pictures, err = s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)
	assert.Len(t, pictures, 2)
}

func TestScanUpdatesChangedPicture(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	writePNG(t, path, 10, 10)

	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)
	before, err := s.db.PictureByPath(path)
	require.NoError(t, err)
	require.NotNil(t, before)

	writePNG(t, path, 64, 48)
	_, err = s.Scan(dir, nil)
	require.NoError(t, err)

	after, err := s.db.PictureByPath(path)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, gallery.ID, after.GalleryID)
	assert.NotEqual(t, before.SHA1, after.SHA1)
	assert.Equal(t, 64, after.Width)
	assert.Equal(t, before.ExternalID, after.ExternalID)
}

func TestScanErrors(t *testing.T) {
	s := newTestService(t)
	file := filepath.Join(t.TempDir(), "pic.png")
	writePNG(t, file, 1, 1)

	_, err := s.Scan(file, nil)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = s.Scan(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestScanRecursively(t *testing.T) {
	s := newTestService(t)
	root := filepath.Join(t.TempDir(), "photos")
	writePNG(t, filepath.Join(root, "2023", "summer", "sea.png"), 8, 8)
	writePNG(t, filepath.Join(root, "2023", "winter", "snow.png"), 8, 8)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	require.NoError(t, s.ScanRecursively(root))

	all, err := s.db.AllGalleries()
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, g := range all {
		names = append(names, g.Name)
	}
	assert.ElementsMatch(t, []string{"photos", "2023", "summer", "winter"}, names)

	photos := galleryNamed(t, s, "photos")
	year := galleryNamed(t, s, "2023")
	summer := galleryNamed(t, s, "summer")
	assert.Nil(t, photos.Parent)
	require.NotNil(t, year.Parent)
	assert.Equal(t, photos.ID, *year.Parent)
	require.NotNil(t, summer.Parent)
	assert.Equal(t, year.ID, *summer.Parent)

	pictures, err := s.db.PicturesByGallery(summer.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 1)
	assert.Equal(t, "sea", pictures[0].Name)

	thumb, err := s.db.FindThumbPicture(photos.ID)
	require.NoError(t, err)
	assert.NotNil(t, thumb)
}

func TestCheckGallery(t *testing.T) {
	s := newTestService(t)
	dir := filepath.Join(t.TempDir(), "album")
	writePNG(t, filepath.Join(dir, "keep.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "gone.png"), 4, 4)

	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.png")))
	require.NoError(t, s.CheckGallery(gallery.ID))
	pictures, err := s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 1)
	assert.Equal(t, "keep", pictures[0].Name)

	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, s.CheckAll())
	_, err = s.db.GalleryByID(gallery.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestThumbnails(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "wide.png"), 200, 100)
	writePNG(t, filepath.Join(dir, "tall.png"), 30, 60)

	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)
	pictures, err := s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 2)

	for _, p := range pictures {
		made, err := s.GenerateIfNeeded(p)
		require.NoError(t, err)
		assert.True(t, made)

		made, err = s.GenerateIfNeeded(p)
		require.NoError(t, err)
		assert.False(t, made)

		f, err := os.Open(s.ThumbPath(p.ID))
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)

		switch p.Name {
		case "wide":
			assert.Equal(t, [2]int{100, 50}, [2]int{cfg.Width, cfg.Height})
		case "tall":
			assert.Equal(t, [2]int{50, 100}, [2]int{cfg.Width, cfg.Height})
		}
	}

	changed := pictures[0]
	changed.SHA1 = "different"
	needed, err := s.ThumbnailNeeded(changed)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestLoadOrGenerate(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "pic.png"), 12, 12)
	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)
	pictures, err := s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)

	path, err := s.LoadOrGenerate(pictures[0].ID)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = s.LoadOrGenerate(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentThumbnailGeneration(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "big.png"), 800, 600)
	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)
	pictures, err := s.db.PicturesByGallery(gallery.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 1)
	p := pictures[0]

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for round := 0; round < 5; round++ {
				if err := s.GenerateThumbnail(p); err != nil {
					return err
				}
				if _, err := s.LoadOrGenerate(p.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	entries, err := os.ReadDir(s.config.ThumbsDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(s.ThumbPath(p.ID)), entries[0].Name())

	f, err := os.Open(s.ThumbPath(p.ID))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, [2]int{100, 75}, [2]int{cfg.Width, cfg.Height})
}

func TestUndecodableFormats(t *testing.T) {
	s := newTestService(t)
	dir := filepath.Join(t.TempDir(), "icons")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "favicon.ico"), []byte{0, 0, 1, 0}, 0o644))

	gallery, err := s.Scan(dir, nil)
	require.NoError(t, err)

	pictures, err := s.PicturesInGallery(gallery.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 1)
	assert.Equal(t, pictures[0].Raw, pictures[0].Thumb)

	data, err := s.Gallery(gallery.ID)
	require.NoError(t, err)
	assert.Equal(t, pictures[0].Raw, data.Thumb)

	generated, failed, err := s.GenerateAllThumbnails(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, generated)
	assert.Zero(t, failed)
}

func TestRemovedGalleriesDropThumbnails(t *testing.T) {
	s := newTestService(t)
	vanished := filepath.Join(t.TempDir(), "vanished")
	writePNG(t, filepath.Join(vanished, "a.png"), 8, 8)
	writePNG(t, filepath.Join(vanished, "child", "b.png"), 8, 8)
	deleted := filepath.Join(t.TempDir(), "deleted")
	writePNG(t, filepath.Join(deleted, "c.png"), 8, 8)
	require.NoError(t, s.ScanRecursively(vanished))
	require.NoError(t, s.ScanRecursively(deleted))

	generated, _, err := s.GenerateAllThumbnails(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Equal(t, 3, generated)

	thumbsOf := func(names ...string) []string {
		var paths []string
		for _, name := range names {
			pictures, err := s.db.PicturesByGallery(galleryNamed(t, s, name).ID)
			require.NoError(t, err)
			for _, p := range pictures {
				require.FileExists(t, s.ThumbPath(p.ID))
				paths = append(paths, s.ThumbPath(p.ID))
			}
		}
		return paths
	}
	vanishedThumbs := thumbsOf("vanished", "child")
	deletedThumbs := thumbsOf("deleted")
	require.Len(t, vanishedThumbs, 2)

	require.NoError(t, os.RemoveAll(vanished))
	require.NoError(t, s.CheckAll())
	for _, path := range vanishedThumbs {
		assert.NoFileExists(t, path)
	}

	require.NoError(t, s.DeleteGallery(galleryNamed(t, s, "deleted").ID))
	for _, path := range deletedThumbs {
		assert.NoFileExists(t, path)
	}
}

func TestGenerateAllThumbnails(t *testing.T) {
	s := newTestService(t)
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 16, 16)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not png"), 0o644))
	_, err := s.Scan(dir, nil)
	require.NoError(t, err)

	var steps []int
	generated, failed, err := s.GenerateAllThumbnails(context.Background(), 1, func(_ string, progress int) {
		steps = append(steps, progress)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, generated)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 100, steps[len(steps)-1])

	generated, _, err = s.GenerateAllThumbnails(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Zero(t, generated)
}

func TestImportObject(t *testing.T) {
	s := newTestService(t)
	content := pngBytes(t, 20, 10, color.White)
	obj := BucketObject{
		Name: "trips/alps/peak.png",
		Size: int64(len(content)),
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
	require.NoError(t, s.ImportObject(context.Background(), obj))

	local := filepath.Join(s.config.BucketDir(), "trips", "alps", "peak.png")
	assert.FileExists(t, local)

	bucket := galleryNamed(t, s, "holiday")
	trips := galleryNamed(t, s, "trips")
	alps := galleryNamed(t, s, "alps")
	assert.Equal(t, "gs://holiday", bucket.Directory)
	assert.Equal(t, "gs://holiday/trips", trips.Directory)
	assert.Equal(t, "gs://holiday/trips/alps", alps.Directory)
	require.NotNil(t, alps.Parent)
	assert.Equal(t, trips.ID, *alps.Parent)

	picture, err := s.db.PictureByPath(local)
	require.NoError(t, err)
	require.NotNil(t, picture)
	assert.Equal(t, alps.ID, picture.GalleryID)
	assert.Equal(t, 20, picture.Width)

	opened := false
	obj.Open = func(context.Context) (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(bytes.NewReader(content)), nil
	}
	require.NoError(t, s.ImportObject(context.Background(), obj))
	assert.False(t, opened, "cached object must not be downloaded again")

	require.NoError(t, s.CheckAll())
	_, err = s.db.GalleryByID(alps.ID)
	assert.NoError(t, err)
}

func TestImportObjectRejectsEscapingNames(t *testing.T) {
	s := newTestService(t)
	content := pngBytes(t, 4, 4, color.White)
	object := func(name string) BucketObject {
		return BucketObject{
			Name: name,
			Size: int64(len(content)),
			Open: func(context.Context) (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(content)), nil
			},
		}
	}

	for _, name := range []string{"../../escaped.png", "trips/../../escaped.png", "/absolute.png"} {
		err := s.ImportObject(context.Background(), object(name))
		assert.ErrorIs(t, err, ErrUnsafeObjectName, name)
	}
	outside := filepath.Dir(filepath.Dir(s.config.BucketDir()))
	assert.NoFileExists(t, filepath.Join(outside, "escaped.png"))
	all, err := s.db.AllGalleries()
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.ImportObject(context.Background(), object("trips/../beach.png")))
	local := filepath.Join(s.config.BucketDir(), "beach.png")
	assert.FileExists(t, local)
	picture, err := s.db.PictureByPath(local)
	require.NoError(t, err)
	require.NotNil(t, picture)
	assert.Equal(t, galleryNamed(t, s, "holiday").ID, picture.GalleryID)

	all, err = s.db.AllGalleries()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportBucketWithoutName(t *testing.T) {
	s := newTestService(t)
	s.config.BucketName = ""
	_, err := s.ImportBucket(context.Background())
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestCatalogData(t *testing.T) {
	s := newTestService(t)
	root := filepath.Join(t.TempDir(), "root")
	writePNG(t, filepath.Join(root, "child", "pic10.png"), 4, 4)
	writePNG(t, filepath.Join(root, "child", "pic2.png"), 4, 4)
	require.NoError(t, s.ScanRecursively(root))

	_, err := s.CreateGallery(store.NewGallery{Name: "empty"})
	require.NoError(t, err)

	top, err := s.TopGalleries()
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "empty", top[0].GalleryName)
	assert.Equal(t, models.NoThumb, top[0].Thumb)
	assert.False(t, top[0].HasThumb())
	assert.Equal(t, "root", top[1].GalleryName)
	assert.True(t, strings.HasPrefix(top[1].Thumb, "/picture/thumb/"))
	assert.Equal(t, GalleryURL(top[1].GalleryID), top[1].Display)

	child := galleryNamed(t, s, "child")
	pictures, err := s.PicturesInGallery(child.ID)
	require.NoError(t, err)
	require.Len(t, pictures, 2)
	assert.Equal(t, "pic2", pictures[0].PictureName)
	assert.Equal(t, "pic10", pictures[1].PictureName)
	assert.Equal(t, PictureURL(pictures[0].PictureID), pictures[0].Display)

	_, err = s.PicturesInGallery(9999)
	assert.True(t, IsNotFound(err))
}

func TestCreateAndDeleteGallery(t *testing.T) {
	s := newTestService(t)

	all, err := s.AllGalleries()
	require.NoError(t, err)
	assert.Empty(t, all)

	status, err := s.CreateGallery(store.NewGallery{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, status)
	status, err = s.CreateGallery(store.NewGallery{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyExists, status)

	missing := 9999
	_, err = s.CreateGallery(store.NewGallery{Name: "orphan", Parent: &missing})
	assert.ErrorIs(t, err, ErrNotFound)

	all, err = s.AllGalleries()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteGallery(all[0].GalleryID))
	all, err = s.AllGalleries()
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.ErrorIs(t, s.DeleteGallery(missing), ErrNotFound)
}

func TestPages(t *testing.T) {
	s := newTestService(t)
	root := filepath.Join(t.TempDir(), "root")
	writePNG(t, filepath.Join(root, "child", "pic.png"), 4, 4)
	require.NoError(t, s.ScanRecursively(root))

	index, err := s.IndexPage()
	require.NoError(t, err)
	assert.Equal(t, "/gallery/top", index.GalleriesURL)
	assert.Contains(t, index.Galleries, `<div class="thumb-box">`)
	assert.Contains(t, index.Galleries, "<p>root</p>")

	rootGallery := galleryNamed(t, s, "root")
	child := galleryNamed(t, s, "child")
	page, err := s.GalleryPage(child.ID)
	require.NoError(t, err)
	assert.Equal(t, "child", page.GalleryName)
	assert.Equal(t, GalleryURL(rootGallery.ID), page.Parent)
	assert.Contains(t, page.Pictures, `class="thumb"`)
	assert.Empty(t, page.SubGalleries)

	pictures, err := s.PicturesInGallery(child.ID)
	require.NoError(t, err)
	picture, err := s.PicturePage(pictures[0].PictureID)
	require.NoError(t, err)
	assert.Equal(t, "pic.png", picture.Filename)
	assert.Equal(t, GalleryURL(child.ID), picture.Gallery)

	_, err = s.GalleryPage(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
