package services

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"regal/pkg/config"
	"regal/pkg/logging"
	"regal/pkg/models"
	"regal/pkg/store"
	"regal/pkg/thumbs"
)

// ErrNotFound is returned when a gallery or picture does not exist
var ErrNotFound = store.ErrNotFound

// Service handles operations related to galleries and pictures
type Service struct {
	config    *config.Config
	db        *store.Database
	logger    *zap.Logger
	listCache *cache.Cache
	mu        sync.Mutex

	thumbGroup singleflight.Group
}

// naturalLess compares strings in a way that treats numbers as numbers rather than characters
// For example: "file2" < "file10" when using naturalLess
func naturalLess(s1, s2 string) bool {
	i, j := 0, 0
	for i < len(s1) && j < len(s2) {
		// Skip leading spaces
		for i < len(s1) && unicode.IsSpace(rune(s1[i])) {
			i++
		}
		for j < len(s2) && unicode.IsSpace(rune(s2[j])) {
			j++
		}

		if i >= len(s1) || j >= len(s2) {
			break
		}

		if unicode.IsDigit(rune(s1[i])) && unicode.IsDigit(rune(s2[j])) {
			start := i
			for i < len(s1) && unicode.IsDigit(rune(s1[i])) {
				i++
			}
			n1, _ := strconv.Atoi(s1[start:i])
			start = j
			for j < len(s2) && unicode.IsDigit(rune(s2[j])) {
				j++
			}
			n2, _ := strconv.Atoi(s2[start:j])
			if n1 != n2 {
				return n1 < n2
			}
		} else {
			if s1[i] != s2[j] {
				return s1[i] < s2[j]
			}
			i++
			j++
		}
	}

	return len(s1)-i < len(s2)-j
}

var (
	// defaultService is the singleton instance of Service
	defaultService *Service
	once           sync.Once
)

// InitService initializes the shared service with the given configuration and catalog
func InitService(cfg *config.Config, db *store.Database, logger *zap.Logger) *Service {
	once.Do(func() {
		defaultService = NewService(cfg, db, logger)
	})
	return defaultService
}

// Default returns the service set up by InitService
func Default() *Service {
	return defaultService
}

// NewService creates a service over the given catalog
func NewService(cfg *config.Config, db *store.Database, logger *zap.Logger) *Service {
	return &Service{
		config:    cfg,
		db:        db,
		logger:    logging.OrNop(logger),
		listCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Config returns the configuration the service was created with
func (s *Service) Config() *config.Config {
	return s.config
}

// Database returns the catalog
func (s *Service) Database() *store.Database {
	return s.db
}

// FlushCache drops cached listings after the catalog changed
func (s *Service) FlushCache() {
	s.listCache.Flush()
}

// cached returns the listing stored under key, loading and caching it on a miss
func cached[T any](s *Service, key string, load func() ([]T, error)) ([]T, error) {
	if v, found := s.listCache.Get(key); found {
		s.logger.Debug("Using cached listing", zap.String("key", key))
		return v.([]T), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, found := s.listCache.Get(key); found {
		return v.([]T), nil
	}
	items, err := load()
	if err != nil {
		return nil, err
	}
	s.listCache.Set(key, items, cache.DefaultExpiration)
	return items, nil
}

// GalleryURL is the page of a gallery
func GalleryURL(id int) string { return fmt.Sprintf("/web/gallery/%d", id) }

// PictureURL is the page of a picture
func PictureURL(id int) string { return fmt.Sprintf("/web/picture/%d", id) }

// GalleryData converts a catalog gallery into its JSON descriptor
func (s *Service) GalleryData(g store.Gallery) (models.Gallery, error) {
	thumb := models.NoThumb
	pic, err := s.db.FindThumbPicture(g.ID)
	if err != nil {
		return models.Gallery{}, err
	}
	if pic != nil {
		thumb = thumbURL(*pic)
	}
	return models.Gallery{
		GalleryID:   g.ID,
		GalleryName: g.Name,
		PictureList: fmt.Sprintf("/picture/in_gallery/%d", g.ID),
		Display:     GalleryURL(g.ID),
		Thumb:       thumb,
	}, nil
}

// PictureData converts a catalog picture into its JSON descriptor
func PictureData(p store.Picture) models.Picture {
	return models.Picture{
		PictureID:   p.ID,
		PictureName: p.Name,
		Raw:         fmt.Sprintf("/picture/raw/%d", p.ID),
		Thumb:       thumbURL(p),
		Display:     PictureURL(p.ID),
	}
}

// thumbURL points at the generated thumbnail, or at the picture itself for
// formats that cannot be scaled
func thumbURL(p store.Picture) string {
	if !thumbnailable(p) {
		return fmt.Sprintf("/picture/raw/%d", p.ID)
	}
	return fmt.Sprintf("/picture/thumb/%d", p.ID)
}

func (s *Service) galleryList(galleries []store.Gallery, err error) ([]models.Gallery, error) {
	if err != nil {
		return nil, err
	}
	sort.SliceStable(galleries, func(i, j int) bool {
		return naturalLess(galleries[i].Name, galleries[j].Name)
	})
	out := make([]models.Gallery, 0, len(galleries))
	for _, g := range galleries {
		data, err := s.GalleryData(g)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// AllGalleries returns every gallery
func (s *Service) AllGalleries() ([]models.Gallery, error) {
	return cached(s, "galleries:all", func() ([]models.Gallery, error) {
		return s.galleryList(s.db.AllGalleries())
	})
}

// TopGalleries returns the galleries without a parent
func (s *Service) TopGalleries() ([]models.Gallery, error) {
	return cached(s, "galleries:top", func() ([]models.Gallery, error) {
		return s.galleryList(s.db.TopLevelGalleries())
	})
}

// GalleriesByParent returns the child galleries of a gallery
func (s *Service) GalleriesByParent(parent int) ([]models.Gallery, error) {
	return cached(s, fmt.Sprintf("galleries:parent:%d", parent), func() ([]models.Gallery, error) {
		return s.galleryList(s.db.GalleriesByParent(parent))
	})
}

// Gallery returns the descriptor of one gallery
func (s *Service) Gallery(id int) (models.Gallery, error) {
	g, err := s.db.GalleryByID(id)
	if err != nil {
		return models.Gallery{}, err
	}
	return s.GalleryData(g)
}

// PicturesInGallery returns the pictures of an existing gallery
func (s *Service) PicturesInGallery(galleryID int) ([]models.Picture, error) {
	if _, err := s.db.GalleryByID(galleryID); err != nil {
		return nil, err
	}
	return cached(s, fmt.Sprintf("pictures:gallery:%d", galleryID), func() ([]models.Picture, error) {
		pictures, err := s.db.PicturesByGallery(galleryID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(pictures, func(i, j int) bool {
			return naturalLess(pictures[i].Name, pictures[j].Name)
		})
		out := make([]models.Picture, 0, len(pictures))
		for _, p := range pictures {
			out = append(out, PictureData(p))
		}
		return out, nil
	})
}

// Picture returns the catalog entry of one picture
func (s *Service) Picture(id int) (store.Picture, error) {
	return s.db.PictureByID(id)
}

// CreateGallery adds a gallery. The parent, when set, must exist.
func (s *Service) CreateGallery(g store.NewGallery) (store.InsertStatus, error) {
	if g.Parent != nil {
		if _, err := s.db.GalleryByID(*g.Parent); err != nil {
			return store.Inserted, err
		}
	}
	status, err := s.db.InsertGallery(g)
	if err != nil {
		return status, err
	}
	if status == store.AlreadyExists {
		s.logger.Warn("Gallery already exists, not creating", zap.String("name", g.Name))
	} else {
		s.logger.Info("Creating gallery", zap.String("name", g.Name), zap.String("directory", g.Directory))
	}
	s.FlushCache()
	return status, nil
}

// DeleteGallery removes a gallery with its pictures and child galleries
func (s *Service) DeleteGallery(id int) error {
	if _, err := s.db.GalleryByID(id); err != nil {
		return err
	}
	if err := s.removeThumbs(id); err != nil {
		return err
	}
	if err := s.db.DeleteGallery(id); err != nil {
		return err
	}
	s.FlushCache()
	return nil
}

// IndexPage renders the top level galleries for the index page
func (s *Service) IndexPage() (models.IndexPage, error) {
	galleries, err := s.TopGalleries()
	if err != nil {
		return models.IndexPage{}, err
	}
	markup, err := renderGalleries(galleries)
	if err != nil {
		return models.IndexPage{}, err
	}
	return models.IndexPage{GalleriesURL: "/gallery/top", Galleries: markup}, nil
}

// GalleryPage renders the pictures and child galleries of a gallery
func (s *Service) GalleryPage(id int) (models.GalleryPage, error) {
	g, err := s.db.GalleryByID(id)
	if err != nil {
		return models.GalleryPage{}, err
	}
	pictures, err := s.PicturesInGallery(id)
	if err != nil {
		return models.GalleryPage{}, err
	}
	children, err := s.GalleriesByParent(id)
	if err != nil {
		return models.GalleryPage{}, err
	}

	page := models.GalleryPage{
		GalleryName:     g.Name,
		PicturesURL:     fmt.Sprintf("/picture/in_gallery/%d", id),
		SubGalleriesURL: fmt.Sprintf("/gallery/by_parent/%d", id),
	}
	if g.Parent != nil {
		page.Parent = GalleryURL(*g.Parent)
	}
	if page.SubGalleries, err = renderGalleries(children); err != nil {
		return models.GalleryPage{}, err
	}
	nodes := make([]*html.Node, 0, len(pictures))
	for _, p := range pictures {
		nodes = append(nodes, thumbs.Picture(p))
	}
	if page.Pictures, err = thumbs.RenderHTML(nodes...); err != nil {
		return models.GalleryPage{}, err
	}
	return page, nil
}

// PicturePage returns the data of a single picture page
func (s *Service) PicturePage(id int) (models.PicturePage, error) {
	p, err := s.db.PictureByID(id)
	if err != nil {
		return models.PicturePage{}, err
	}
	return models.PicturePage{
		PictureID:   p.ID,
		PictureName: p.Name,
		Raw:         fmt.Sprintf("/picture/raw/%d", p.ID),
		Gallery:     GalleryURL(p.GalleryID),
		Filename:    fmt.Sprintf("%s.%s", p.Name, p.Format),
	}, nil
}

func renderGalleries(galleries []models.Gallery) (string, error) {
	nodes := make([]*html.Node, 0, len(galleries))
	for _, g := range galleries {
		nodes = append(nodes, thumbs.Gallery(g))
	}
	return thumbs.RenderHTML(nodes...)
}

// IsNotFound reports whether err means a missing gallery or picture
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
