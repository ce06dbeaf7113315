package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ScanDir is a directory of pictures the scanner catalogues
type ScanDir struct {
	Path      string `mapstructure:"path"`
	Recursive bool   `mapstructure:"recursive"`
}

// Config holds all configuration for the application
type Config struct {
	ExternalURL  string    `mapstructure:"external_url"`
	DatabaseFile string    `mapstructure:"database_file"`
	ScanDirs     []ScanDir `mapstructure:"scan_dirs"`
	CacheDir     string    `mapstructure:"cache_dir"`
	Port         string    `mapstructure:"port"`
	BucketName   string    `mapstructure:"bucket_name"`
	Verbose      bool      `mapstructure:"verbose"`
}

// ErrPortInvalid is returned when the configured port is not a number
var ErrPortInvalid = errors.New("PORT must be a number")

// ErrScanDirEmpty is returned when a scan directory has no path
var ErrScanDirEmpty = errors.New("scan_dirs entry without path")

const (
	DefaultExternalURL  = "localhost:8000"
	DefaultDatabaseFile = "/var/regal/regal.sqlite3"
	DefaultPort         = "8000"
	systemConfigFile    = "/etc/regal/scanner.json"
)

// Load reads configuration from the given file (or the default locations when
// file is empty) and the environment. Environment variables win over the file.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetDefault("external_url", DefaultExternalURL)
	v.SetDefault("database_file", DefaultDatabaseFile)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("scan_dirs", []map[string]any{})

	bindEnv(v, "external_url", "EXTERNAL_URL")
	bindEnv(v, "database_file", "DATABASE_FILE", "DATABASE_URL")
	bindEnv(v, "port", "PORT")
	bindEnv(v, "bucket_name", "BUCKET_NAME")
	bindEnv(v, "cache_dir", "REGAL_CACHE_DIR")

	if file == "" {
		file = findConfigFile()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper, key string, envs ...string) {
	// BindEnv only fails without a key
	_ = v.BindEnv(append([]string{key}, envs...)...)
}

func (c *Config) validate() error {
	for _, r := range c.Port {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrPortInvalid, c.Port)
		}
	}
	for _, dir := range c.ScanDirs {
		if strings.TrimSpace(dir.Path) == "" {
			return ErrScanDirEmpty
		}
	}
	return nil
}

// findConfigFile returns ~/.regal/scanner.json if present, else the system file
// if present, else an empty string
func findConfigFile() string {
	if home, err := os.UserHomeDir(); err == nil {
		homeConf := filepath.Join(home, ".regal", "scanner.json")
		if isFile(homeConf) {
			return homeConf
		}
	}
	if isFile(systemConfigFile) {
		return systemConfigFile
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, ".regal")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".regal")
	}
	return filepath.Join(os.TempDir(), ".regal")
}

// ThumbsDir is where generated thumbnails are written
func (c *Config) ThumbsDir() string {
	return filepath.Join(c.CacheDir, "thumbs")
}

// BucketDir is where pictures imported from the bucket are kept
func (c *Config) BucketDir() string {
	return filepath.Join(c.CacheDir, "bucket")
}

// EnsureCacheDirs creates the cache directory tree
func (c *Config) EnsureCacheDirs() error {
	for _, dir := range []string{c.CacheDir, c.ThumbsDir(), c.BucketDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	return nil
}

// ServerAddress returns the server address with port
func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// PrintServerStartMessage prints a message when the server starts
func (c *Config) PrintServerStartMessage() {
	fmt.Printf("Starting server at port %s\n", c.Port)
	fmt.Printf("Gallery URL: http://%s/\n", c.ExternalURL)
}
