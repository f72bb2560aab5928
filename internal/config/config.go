// Package config provides configuration for the indexadmin binary.
// Loads from: CLI flags > env vars > .indexadmin/config.toml > built-in defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultIndexName is the name of the per-directory metadata file.
const DefaultIndexName = "Index"

// Config holds all indexadmin configuration, loaded from TOML + env + flags.
type Config struct {
	Archive ArchiveConfig `toml:"archive"`
	Trash   TrashConfig   `toml:"trash"`
	Store   StoreConfig   `toml:"store"`
	Web     WebConfig     `toml:"web"`
}

// ArchiveConfig locates the archive tree.
type ArchiveConfig struct {
	Root      string   `toml:"root" validate:"required"`
	IndexName string   `toml:"index_name" validate:"required,excludesall=/"`
	SkipDirs  []string `toml:"skip_dirs"`
}

// TrashConfig controls where replaced Index files are kept and for how long.
type TrashConfig struct {
	Dir        string `toml:"dir" validate:"required"`
	MaxAgeDays int    `toml:"max_age_days" validate:"gte=0"` // 0 = keep forever
}

// StoreConfig holds the catalog database location.
type StoreConfig struct {
	DBPath string `toml:"db_path" validate:"required"`
}

// WebConfig holds admin API settings.
type WebConfig struct {
	Listen string `toml:"listen" validate:"required,hostname_port"`
}

// DefaultConfig returns a Config with all built-in defaults. Paths that
// depend on the archive root are filled in by LoadConfig.
func DefaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			IndexName: DefaultIndexName,
		},
		Trash: TrashConfig{
			MaxAgeDays: 14,
		},
		Web: WebConfig{
			Listen: "127.0.0.1:8077",
		},
	}
}

// ConfigOverride is set by the --config global flag.
var ConfigOverride string

// LoadConfig merges all configuration sources: defaults < TOML file < env vars.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(FindConfigFile())
}

// LoadConfigFrom loads configuration from a specific file path, merging with
// defaults and env vars. A missing file is not an error.
func LoadConfigFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			meta, err := toml.DecodeFile(configPath, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			warnUnknownKeys(meta, configPath)
		}
	}

	applyEnv(cfg)
	applyDerived(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Archive.Root = v
	}
	if v := os.Getenv("INDEXADMIN_TRASH_DIR"); v != "" {
		cfg.Trash.Dir = v
	}
	if v := os.Getenv("INDEXADMIN_DB"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("INDEXADMIN_LISTEN"); v != "" {
		cfg.Web.Listen = v
	}
	if v := os.Getenv("INDEXADMIN_SKIP_DIRS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				cfg.Archive.SkipDirs = append(cfg.Archive.SkipDirs, d)
			}
		}
	}
}

// applyDerived fills paths that default to locations under the archive root.
func applyDerived(cfg *Config) {
	if cfg.Archive.Root == "" {
		return
	}
	dataDir := filepath.Join(cfg.Archive.Root, DataDirName)
	if cfg.Trash.Dir == "" {
		cfg.Trash.Dir = filepath.Join(dataDir, "trash")
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(dataDir, "catalog.db")
	}
}

// DataDirName is the per-archive directory holding config, trash, and catalog.
const DataDirName = ".indexadmin"

// FindConfigFile returns the config file to load: the --config flag, then
// INDEXADMIN_CONFIG, then .indexadmin/config.toml under ARCHIVE_DIR or the
// working directory. Returns "" if none is found.
func FindConfigFile() string {
	if ConfigOverride != "" {
		return ConfigOverride
	}
	if v := os.Getenv("INDEXADMIN_CONFIG"); v != "" {
		return v
	}
	if root := os.Getenv("ARCHIVE_DIR"); root != "" {
		p := ConfigFilePath(root)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		p := ConfigFilePath(cwd)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ConfigFilePath returns where the config file lives for an archive root.
func ConfigFilePath(root string) string {
	return filepath.Join(root, DataDirName, "config.toml")
}

// GenerateConfig writes a commented default config for the archive at root.
func GenerateConfig(root string) (string, error) {
	configPath := ConfigFilePath(root)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(generateTOMLContent(root)), 0o644); err != nil {
		return "", err
	}
	return configPath, nil
}

func generateTOMLContent(root string) string {
	var b strings.Builder
	b.WriteString("# indexadmin configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Priority: CLI flags > environment variables > this file > built-in defaults\n")
	b.WriteString("# Environment variables: ARCHIVE_DIR, INDEXADMIN_TRASH_DIR, INDEXADMIN_DB,\n")
	b.WriteString("#   INDEXADMIN_LISTEN, INDEXADMIN_SKIP_DIRS, INDEXADMIN_CONFIG\n\n")

	b.WriteString("[archive]\n")
	b.WriteString(fmt.Sprintf("root = %q\n", root))
	b.WriteString(fmt.Sprintf("index_name = %q\n", DefaultIndexName))
	b.WriteString("# skip_dirs = [\"incoming\", \"unprocessed\"]  # added to built-in exclusions\n\n")

	b.WriteString("[trash]\n")
	b.WriteString("# dir = \"/var/ifarchive/trash\"  # default: <root>/.indexadmin/trash\n")
	b.WriteString("max_age_days = 14                # 0 keeps replaced Index files forever\n\n")

	b.WriteString("[store]\n")
	b.WriteString("# db_path = \"/var/ifarchive/catalog.db\"  # default: <root>/.indexadmin/catalog.db\n\n")

	b.WriteString("[web]\n")
	b.WriteString("listen = \"127.0.0.1:8077\"\n")
	return b.String()
}

// ShowConfig returns the effective configuration as TOML.
func ShowConfig(cfg *Config) string {
	var buf bytes.Buffer
	buf.WriteString("# Effective indexadmin configuration (merged from all sources)\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Sprintf("# Error encoding config: %v\n", err)
	}
	return buf.String()
}

// configSuggestions maps common wrong keys to the correct TOML key name.
var configSuggestions = map[string]string{
	"path":         "root",
	"archive_dir":  "root",
	"archivedir":   "root",
	"indexname":    "index_name",
	"exclude_dirs": "skip_dirs",
	"ignore_dirs":  "skip_dirs",
	"trash_dir":    "dir",
	"trashdir":     "dir",
	"max_age":      "max_age_days",
	"db":           "db_path",
	"dbfile":       "db_path",
	"addr":         "listen",
	"address":      "listen",
}

// warnUnknownKeys prints warnings for unrecognized config keys.
func warnUnknownKeys(meta toml.MetaData, configPath string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}

	fname := filepath.Base(configPath)
	for _, key := range undecoded {
		keyStr := key.String()
		lastPart := key[len(key)-1]
		if suggestion, ok := configSuggestions[lastPart]; ok {
			fmt.Fprintf(os.Stderr, "indexadmin: WARNING: unknown key %q in %s (did you mean %q?)\n",
				keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "indexadmin: WARNING: unknown key %q in %s (will be ignored)\n",
				keyStr, fname)
		}
	}
}

// defaultSkipDirs are directories never searched for Index files.
var defaultSkipDirs = []string{".git", DataDirName, "lost+found"}

// SkipDirSet returns the directory names to skip during archive walks.
func (c *Config) SkipDirSet() map[string]bool {
	dirs := make(map[string]bool)
	for _, d := range defaultSkipDirs {
		dirs[d] = true
	}
	for _, d := range c.Archive.SkipDirs {
		d = strings.TrimSpace(d)
		if d != "" {
			dirs[d] = true
		}
	}
	return dirs
}

// Sentinel errors for consistent messaging across CLI and server.
var (
	// ErrNoArchive is returned when no archive root is configured.
	ErrNoArchive = fmt.Errorf("no archive configured; set ARCHIVE_DIR or [archive] root")
)
