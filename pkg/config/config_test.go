package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, key := range []string{"EXTERNAL_URL", "DATABASE_FILE", "DATABASE_URL", "PORT", "BUCKET_NAME", "REGAL_CACHE_DIR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultExternalURL, cfg.ExternalURL)
	assert.Equal(t, DefaultDatabaseFile, cfg.DatabaseFile)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Empty(t, cfg.ScanDirs)
	assert.Equal(t, ":8000", cfg.ServerAddress())
	assert.Equal(t, filepath.Join(cfg.CacheDir, "thumbs"), cfg.ThumbsDir())
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	file := filepath.Join(t.TempDir(), "scanner.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"external_url": "photos.example.com",
		"database_file": "/tmp/regal.sqlite3",
		"scan_dirs": [
			{"path": "/srv/pictures", "recursive": true},
			{"path": "/srv/inbox", "recursive": false}
		]
	}`), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "photos.example.com", cfg.ExternalURL)
	assert.Equal(t, "/tmp/regal.sqlite3", cfg.DatabaseFile)
	assert.Equal(t, []ScanDir{
		{Path: "/srv/pictures", Recursive: true},
		{Path: "/srv/inbox"},
	}, cfg.ScanDirs)
}

func TestLoadHomeConfig(t *testing.T) {
	isolate(t)

	dir := filepath.Join(os.Getenv("HOME"), ".regal")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scanner.json"), []byte(`{"port": "9000"}`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)

	file := filepath.Join(t.TempDir(), "scanner.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"external_url": "file.example.com", "port": "9000"}`), 0o644))
	t.Setenv("EXTERNAL_URL", "env.example.com")
	t.Setenv("BUCKET_NAME", "pictures")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.ExternalURL)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "pictures", cfg.BucketName)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrPortInvalid)
	os.Unsetenv("PORT")

	file := filepath.Join(t.TempDir(), "scanner.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"scan_dirs": [{"recursive": true}]}`), 0o644))
	_, err = Load(file)
	assert.ErrorIs(t, err, ErrScanDirEmpty)
}

func TestEnsureCacheDirs(t *testing.T) {
	cfg := &Config{CacheDir: filepath.Join(t.TempDir(), ".regal")}
	require.NoError(t, cfg.EnsureCacheDirs())
	assert.DirExists(t, cfg.ThumbsDir())
	assert.DirExists(t, cfg.BucketDir())
}
