package models

// NoThumb is the thumb value of a gallery that has no picture to show
const NoThumb = "none"

// Picture describes one picture as served by the catalog
type Picture struct {
	PictureID   int    `json:"picture_id,omitempty"`
	PictureName string `json:"picture_name,omitempty"`
	Raw         string `json:"raw,omitempty"`
	Thumb       string `json:"thumb"`
	Display     string `json:"display"`
}

// Gallery describes one gallery as served by the catalog.
// Thumb is either a URL or NoThumb.
type Gallery struct {
	GalleryID   int    `json:"gallery_id,omitempty"`
	GalleryName string `json:"gallery_name"`
	PictureList string `json:"picture_list,omitempty"`
	Display     string `json:"display"`
	Thumb       string `json:"thumb"`
}

// HasThumb reports whether the gallery has a thumbnail image
func (g Gallery) HasThumb() bool {
	return g.Thumb != NoThumb
}

// IndexPage represents the main index page data.
// Galleries holds pre-rendered thumbnail markup.
type IndexPage struct {
	GalleriesURL string
	Galleries    string
}

// GalleryPage represents the data of a single gallery page.
// Pictures and SubGalleries hold pre-rendered thumbnail markup; the URL fields
// point at the JSON lists they were rendered from.
type GalleryPage struct {
	GalleryName     string
	Parent          string
	PicturesURL     string
	SubGalleriesURL string
	Pictures        string
	SubGalleries    string
}

// PicturePage represents the data of a single picture page
type PicturePage struct {
	PictureID   int
	PictureName string
	Raw         string
	Gallery     string
	Filename    string
}
