package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/eknkc/pug"
	"go.uber.org/zap"

	"regal/pkg/logging"
	"regal/pkg/services"
)

// Handler serves the catalog as JSON and as pug pages
type Handler struct {
	service  *services.Service
	logger   *zap.Logger
	viewsDir string
}

// New creates a handler. Templates are read from viewsDir.
func New(service *services.Service, logger *zap.Logger, viewsDir string) *Handler {
	return &Handler{service: service, logger: logging.OrNop(logger), viewsDir: viewsDir}
}

// Routes registers every endpoint. Static files are served from publicDir.
func (h *Handler) Routes(publicDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gallery/all", h.AllGalleriesHandler)
	mux.HandleFunc("GET /gallery/top", h.TopGalleriesHandler)
	mux.HandleFunc("GET /gallery/by_parent/{id}", h.GalleriesByParentHandler)
	mux.HandleFunc("GET /gallery/{id}", h.GalleryHandler)
	mux.HandleFunc("POST /gallery/new", h.CreateGalleryHandler)
	mux.HandleFunc("DELETE /gallery/{id}", h.DeleteGalleryHandler)

	mux.HandleFunc("GET /picture/data/{id}", h.PictureDataHandler)
	mux.HandleFunc("GET /picture/raw/{id}", h.RawPictureHandler)
	mux.HandleFunc("GET /picture/thumb/{id}", h.ThumbHandler)
	mux.HandleFunc("GET /picture/in_gallery/{id}", h.PicturesInGalleryHandler)

	mux.HandleFunc("GET /{$}", h.IndexHandler)
	mux.HandleFunc("GET /web/{$}", h.IndexHandler)
	mux.HandleFunc("GET /web/gallery/new", h.NewGalleryPageHandler)
	mux.HandleFunc("GET /web/gallery/{id}", h.GalleryPageHandler)
	mux.HandleFunc("GET /web/picture/{id}", h.PicturePageHandler)

	mux.HandleFunc("POST /admin/scan", h.ScanHandler)
	mux.HandleFunc("POST /admin/thumbnails", h.GenerateThumbnailsHandler)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(publicDir))))
	return mux
}

// AllGalleriesHandler lists every gallery
func (h *Handler) AllGalleriesHandler(w http.ResponseWriter, r *http.Request) {
	galleries, err := h.service.AllGalleries()
	h.respond(w, r, galleries, err)
}

// TopGalleriesHandler lists the galleries without a parent
func (h *Handler) TopGalleriesHandler(w http.ResponseWriter, r *http.Request) {
	galleries, err := h.service.TopGalleries()
	h.respond(w, r, galleries, err)
}

// GalleriesByParentHandler lists the child galleries of a gallery
func (h *Handler) GalleriesByParentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	galleries, err := h.service.GalleriesByParent(id)
	h.respond(w, r, galleries, err)
}

// GalleryHandler returns one gallery descriptor
func (h *Handler) GalleryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	gallery, err := h.service.Gallery(id)
	h.respond(w, r, gallery, err)
}

// PictureDataHandler returns one picture descriptor
func (h *Handler) PictureDataHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	picture, err := h.service.Picture(id)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	h.respond(w, r, services.PictureData(picture), nil)
}

// PicturesInGalleryHandler lists the pictures of a gallery
func (h *Handler) PicturesInGalleryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	pictures, err := h.service.PicturesInGallery(id)
	h.respond(w, r, pictures, err)
}

// RawPictureHandler serves the original picture file
func (h *Handler) RawPictureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	picture, err := h.service.Picture(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(filepath.Base(picture.Path)))
	http.ServeFile(w, r, picture.Path)
}

// ThumbHandler serves the thumbnail of a picture, generating it on first use
func (h *Handler) ThumbHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	path, err := h.service.LoadOrGenerate(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// IndexHandler handles requests for the gallery index page
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Generating Index")
	page, err := h.service.IndexPage()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "index.pug", page)
}

// GalleryPageHandler handles requests for individual gallery pages
func (h *Handler) GalleryPageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.service.GalleryPage(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Debug("Generating Gallery Page", zap.Int("gallery", id))
	h.render(w, r, "gallery.pug", page)
}

// PicturePageHandler handles requests for individual picture pages
func (h *Handler) PicturePageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, err := h.service.PicturePage(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "picture.pug", page)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, view string, data any) {
	template, err := pug.CompileFile(filepath.Join(h.viewsDir, view), pug.Options{})
	if err != nil {
		h.logger.Error("Template error", zap.String("view", view), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := template.Execute(w, data); err != nil {
		h.logger.Error("Template execution error", zap.String("view", view), zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// respond writes v as JSON, or the error status matching err
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonBytes); err != nil {
		h.logger.Debug("Failed to write response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if services.IsNotFound(err) {
		h.logger.Info("Not found", zap.String("path", r.URL.Path))
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// pathID parses the {id} wildcard; an id that is not a number cannot exist
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}
