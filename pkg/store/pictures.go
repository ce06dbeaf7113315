package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const pictureColumns = `id, name, width, height, gallery_id, format, path, sha1, filesize, external_id`

func scanPicture(row scanner) (Picture, error) {
	var p Picture
	err := row.Scan(&p.ID, &p.Name, &p.Width, &p.Height, &p.GalleryID, &p.Format, &p.Path, &p.SHA1, &p.Filesize, &p.ExternalID)
	return p, err
}

func (d *Database) queryPictures(query string, args ...any) ([]Picture, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pictures: %w", err)
	}
	defer rows.Close()

	var pictures []Picture
	for rows.Next() {
		p, err := scanPicture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan picture: %w", err)
		}
		pictures = append(pictures, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pictures, nil
}

// PictureByID returns the picture with the given id or ErrNotFound
func (d *Database) PictureByID(id int) (Picture, error) {
	row := d.db.QueryRow(`SELECT `+pictureColumns+` FROM pictures WHERE id = ?`, id)
	p, err := scanPicture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Picture{}, fmt.Errorf("picture %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Picture{}, fmt.Errorf("failed to query picture: %w", err)
	}
	return p, nil
}

// PictureByPath returns the picture stored at path, or nil
func (d *Database) PictureByPath(path string) (*Picture, error) {
	pictures, err := d.queryPictures(`SELECT `+pictureColumns+` FROM pictures WHERE path = ? LIMIT 1`, path)
	if err != nil || len(pictures) == 0 {
		return nil, err
	}
	return &pictures[0], nil
}

// PicturesByGallery returns the pictures of a gallery
func (d *Database) PicturesByGallery(galleryID int) ([]Picture, error) {
	return d.queryPictures(`SELECT `+pictureColumns+` FROM pictures WHERE gallery_id = ? ORDER BY id`, galleryID)
}

// FindThumbPicture returns the picture that represents a gallery: its first
// picture, else the first one found depth-first through its child galleries.
func (d *Database) FindThumbPicture(galleryID int) (*Picture, error) {
	pictures, err := d.queryPictures(`SELECT `+pictureColumns+` FROM pictures WHERE gallery_id = ? ORDER BY id LIMIT 1`, galleryID)
	if err != nil {
		return nil, err
	}
	if len(pictures) > 0 {
		return &pictures[0], nil
	}

	children, err := d.GalleriesByParent(galleryID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		p, err := d.FindThumbPicture(child.ID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// InsertPicture adds a picture to an existing gallery. A picture whose path is
// already catalogued is left alone.
func (d *Database) InsertPicture(p NewPicture) (InsertStatus, error) {
	if _, err := d.GalleryByID(p.GalleryID); err != nil {
		return Inserted, err
	}
	existing, err := d.PictureByPath(p.Path)
	if err != nil {
		return Inserted, err
	}
	if existing != nil {
		return AlreadyExists, nil
	}

	_, err = d.db.Exec(
		`INSERT INTO pictures (name, width, height, gallery_id, format, path, sha1, filesize, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Width, p.Height, p.GalleryID, p.Format, p.Path, p.SHA1, p.Filesize, p.ExternalID,
	)
	if err != nil {
		return Inserted, fmt.Errorf("failed to insert picture: %w", err)
	}
	return Inserted, nil
}

// UpdatePicture refreshes the content fields of a picture after it changed on disk
func (d *Database) UpdatePicture(id int, p NewPicture) error {
	_, err := d.db.Exec(
		`UPDATE pictures SET name = ?, width = ?, height = ?, sha1 = ?, filesize = ? WHERE id = ?`,
		p.Name, p.Width, p.Height, p.SHA1, p.Filesize, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update picture: %w", err)
	}
	return nil
}

// DeletePicture removes a picture and its thumbnail record
func (d *Database) DeletePicture(id int) error {
	if _, err := d.db.Exec(`DELETE FROM pictures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete picture: %w", err)
	}
	return nil
}
