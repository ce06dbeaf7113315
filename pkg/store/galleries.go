package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const galleryColumns = `id, name, directory, parent`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGallery(row scanner) (Gallery, error) {
	var g Gallery
	var directory sql.NullString
	var parent sql.NullInt64
	if err := row.Scan(&g.ID, &g.Name, &directory, &parent); err != nil {
		return Gallery{}, err
	}
	g.Directory = directory.String
	if parent.Valid {
		p := int(parent.Int64)
		g.Parent = &p
	}
	return g, nil
}

func (d *Database) queryGalleries(query string, args ...any) ([]Gallery, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query galleries: %w", err)
	}
	defer rows.Close()

	var galleries []Gallery
	for rows.Next() {
		g, err := scanGallery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gallery: %w", err)
		}
		galleries = append(galleries, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return galleries, nil
}

// AllGalleries returns every gallery
func (d *Database) AllGalleries() ([]Gallery, error) {
	return d.queryGalleries(`SELECT ` + galleryColumns + ` FROM galleries ORDER BY id`)
}

// GalleryByID returns the gallery with the given id or ErrNotFound
func (d *Database) GalleryByID(id int) (Gallery, error) {
	row := d.db.QueryRow(`SELECT `+galleryColumns+` FROM galleries WHERE id = ?`, id)
	g, err := scanGallery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Gallery{}, fmt.Errorf("gallery %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Gallery{}, fmt.Errorf("failed to query gallery: %w", err)
	}
	return g, nil
}

// GalleriesByName returns all galleries with the given name
func (d *Database) GalleriesByName(name string) ([]Gallery, error) {
	return d.queryGalleries(`SELECT `+galleryColumns+` FROM galleries WHERE name = ? ORDER BY id`, name)
}

// GalleryByDirectory returns the gallery backed by dir, or nil
func (d *Database) GalleryByDirectory(dir string) (*Gallery, error) {
	galleries, err := d.queryGalleries(`SELECT `+galleryColumns+` FROM galleries WHERE directory = ? ORDER BY id LIMIT 1`, dir)
	if err != nil || len(galleries) == 0 {
		return nil, err
	}
	return &galleries[0], nil
}

// TopLevelGalleries returns the galleries without a parent
func (d *Database) TopLevelGalleries() ([]Gallery, error) {
	return d.queryGalleries(`SELECT ` + galleryColumns + ` FROM galleries WHERE parent IS NULL ORDER BY id`)
}

// GalleriesByParent returns the direct children of a gallery
func (d *Database) GalleriesByParent(parent int) ([]Gallery, error) {
	return d.queryGalleries(`SELECT `+galleryColumns+` FROM galleries WHERE parent = ? ORDER BY id`, parent)
}

// InsertGallery creates a gallery unless one with the same name and directory
// exists. A gallery without a directory clashes with any same-named gallery that
// also has no directory.
func (d *Database) InsertGallery(g NewGallery) (InsertStatus, error) {
	var count int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM galleries WHERE name = ? AND COALESCE(directory, '') = ?`,
		g.Name, g.Directory,
	).Scan(&count)
	if err != nil {
		return Inserted, fmt.Errorf("failed to check gallery: %w", err)
	}
	if count > 0 {
		return AlreadyExists, nil
	}

	_, err = d.db.Exec(
		`INSERT INTO galleries (name, directory, parent) VALUES (?, ?, ?)`,
		g.Name, nullString(g.Directory), nullInt(g.Parent),
	)
	if err != nil {
		return Inserted, fmt.Errorf("failed to insert gallery: %w", err)
	}
	return Inserted, nil
}

// DeleteGallery removes a gallery together with its pictures and child galleries
func (d *Database) DeleteGallery(id int) error {
	res, err := d.db.Exec(`DELETE FROM galleries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete gallery: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("gallery %d: %w", id, ErrNotFound)
	}
	return nil
}
