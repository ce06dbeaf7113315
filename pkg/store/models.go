package store

// Gallery is a catalog gallery. Directory is empty for galleries not backed by
// a directory; Parent is nil for top level galleries.
type Gallery struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Directory string `json:"directory,omitempty"`
	Parent    *int   `json:"parent,omitempty"`
}

// NewGallery holds the fields of a gallery to insert
type NewGallery struct {
	Name      string
	Directory string
	Parent    *int
}

// Picture is a catalogued picture file. Width and Height are 0 when the
// format could not be decoded.
type Picture struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	GalleryID  int    `json:"gallery_id"`
	Format     string `json:"format"`
	Path       string `json:"path"`
	SHA1       string `json:"sha1"`
	Filesize   int64  `json:"filesize"`
	ExternalID string `json:"external_id"`
}

// NewPicture holds the fields of a picture to insert
type NewPicture struct {
	Name       string
	Width      int
	Height     int
	GalleryID  int
	Format     string
	Path       string
	SHA1       string
	Filesize   int64
	ExternalID string
}

// Thumb records which picture content a generated thumbnail was made from
type Thumb struct {
	PictureID   int
	PictureHash string
}
