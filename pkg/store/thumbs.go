package store

import (
	"fmt"
)

// ThumbByPicture returns the thumbnail record of a picture, or nil
func (d *Database) ThumbByPicture(pictureID int) (*Thumb, error) {
	rows, err := d.db.Query(`SELECT picture_id, picture_hash FROM thumbs WHERE picture_id = ?`, pictureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thumb: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var t Thumb
	if err := rows.Scan(&t.PictureID, &t.PictureHash); err != nil {
		return nil, fmt.Errorf("failed to scan thumb: %w", err)
	}
	return &t, nil
}

// AllThumbs returns every thumbnail record
func (d *Database) AllThumbs() ([]Thumb, error) {
	rows, err := d.db.Query(`SELECT picture_id, picture_hash FROM thumbs ORDER BY picture_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query thumbs: %w", err)
	}
	defer rows.Close()

	var thumbs []Thumb
	for rows.Next() {
		var t Thumb
		if err := rows.Scan(&t.PictureID, &t.PictureHash); err != nil {
			return nil, fmt.Errorf("failed to scan thumb: %w", err)
		}
		thumbs = append(thumbs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return thumbs, nil
}

// UpsertThumb records that a thumbnail was generated from the given picture hash
func (d *Database) UpsertThumb(t Thumb) error {
	_, err := d.db.Exec(
		`INSERT INTO thumbs (picture_id, picture_hash) VALUES (?, ?)
		ON CONFLICT(picture_id) DO UPDATE SET picture_hash = excluded.picture_hash`,
		t.PictureID, t.PictureHash,
	)
	if err != nil {
		return fmt.Errorf("failed to save thumb: %w", err)
	}
	return nil
}

// DeleteThumb removes the thumbnail record of a picture
func (d *Database) DeleteThumb(pictureID int) error {
	if _, err := d.db.Exec(`DELETE FROM thumbs WHERE picture_id = ?`, pictureID); err != nil {
		return fmt.Errorf("failed to delete thumb: %w", err)
	}
	return nil
}
