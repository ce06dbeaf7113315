// Package store is the sqlite catalog of galleries, pictures and thumbnails
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked up row does not exist
var ErrNotFound = errors.New("not found")

// InsertStatus reports whether an insert created a row
type InsertStatus int

const (
	Inserted InsertStatus = iota
	AlreadyExists
)

func (s InsertStatus) String() string {
	if s == AlreadyExists {
		return "already exists"
	}
	return "inserted"
}

// Database is the catalog, backed by a single sqlite connection
type Database struct {
	db *sql.DB
}

// NewDatabase opens (creating if needed) the catalog at dbPath.
// ":memory:" opens a private in-memory catalog.
func NewDatabase(dbPath string) (*Database, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" catalogs shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db}
	if err := database.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return database, nil
}

func (d *Database) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS galleries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		name      TEXT NOT NULL,
		directory TEXT,
		parent    INTEGER REFERENCES galleries(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_galleries_parent ON galleries(parent);
	CREATE INDEX IF NOT EXISTS idx_galleries_directory ON galleries(directory);
	CREATE TABLE IF NOT EXISTS pictures (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		width       INTEGER NOT NULL,
		height      INTEGER NOT NULL,
		gallery_id  INTEGER NOT NULL REFERENCES galleries(id) ON DELETE CASCADE,
		format      TEXT NOT NULL,
		path        TEXT NOT NULL UNIQUE,
		sha1        TEXT NOT NULL,
		filesize    INTEGER NOT NULL,
		external_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pictures_gallery ON pictures(gallery_id);
	CREATE TABLE IF NOT EXISTS thumbs (
		picture_id   INTEGER PRIMARY KEY REFERENCES pictures(id) ON DELETE CASCADE,
		picture_hash TEXT NOT NULL
	);
	`
	_, err := d.db.Exec(query)
	return err
}

// Close closes the database
func (d *Database) Close() error {
	return d.db.Close()
}
