package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"regal/pkg/store"
)

// NewGalleryPageHandler serves the form for creating a gallery
func (h *Handler) NewGalleryPageHandler(w http.ResponseWriter, r *http.Request) {
	galleries, err := h.service.AllGalleries()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "gallery_new.pug", map[string]any{"Galleries": galleries})
}

// CreateGalleryHandler creates a gallery from the form fields name, directory and parent
func (h *Handler) CreateGalleryHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	gallery := store.NewGallery{
		Name:      strings.TrimSpace(r.PostForm.Get("name")),
		Directory: strings.TrimSpace(r.PostForm.Get("directory")),
	}
	if gallery.Name == "" {
		http.Error(w, "Missing gallery name", http.StatusBadRequest)
		return
	}
	if parent := strings.TrimSpace(r.PostForm.Get("parent")); parent != "" {
		id, err := strconv.Atoi(parent)
		if err != nil {
			http.Error(w, "Invalid parent gallery", http.StatusBadRequest)
			return
		}
		gallery.Parent = &id
	}

	status, err := h.service.CreateGallery(gallery)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	code := http.StatusCreated
	if status == store.AlreadyExists {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status.String(),
	})
}

// DeleteGalleryHandler removes a gallery with its pictures and child galleries
func (h *Handler) DeleteGalleryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGallery(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Deleted gallery", zap.Int("gallery", id))
	w.WriteHeader(http.StatusNoContent)
}

// ScanHandler rescans the configured directories
func (h *Handler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Scanning configured directories")
	if err := h.service.ScanConfigured(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Scan complete",
	})
}

// GenerateThumbnailsHandler brings every thumbnail up to date
func (h *Handler) GenerateThumbnailsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Workers int `json:"workers"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	processed, errors, err := h.service.GenerateAllThumbnails(r.Context(), req.Workers, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"processed": processed,
		"errors":    errors,
	})
}
