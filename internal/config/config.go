// Package config handles repository discovery and configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents repository configuration stored in .lore/config.yaml.
//
// The similarity thresholds and the recency window are tunable because the
// defaults are calibrated guesses, not hard requirements.
type Config struct {
	// FuzzyThreshold is the minimum trigram Jaccard similarity for a fuzzy
	// token match. Range (0, 1].
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// DedupThreshold is the minimum title+body similarity at which
	// extraction treats a candidate as a duplicate of an existing entry.
	DedupThreshold float64 `yaml:"dedup_threshold"`

	// RecencyWindowDays is the window over which query scores receive a
	// recency boost.
	RecencyWindowDays int `yaml:"recency_window_days"`

	// Remote is the sync remote: either a directory path or a git URL.
	Remote string `yaml:"remote,omitempty"`

	// ClockSkewLimit bounds how far ahead of the local counter an incoming
	// op counter may jump before sync refuses to apply it.
	ClockSkewLimit uint64 `yaml:"clock_skew_limit"`

	// CompactThreshold is the log tail length (ops since last snapshot)
	// above which open suggests compaction.
	CompactThreshold int `yaml:"compact_threshold"`
}

// File and directory names under the repository root.
const (
	LoreDir       = ".lore"
	ConfigFile    = "config.yaml"
	OpLogFile     = "oplog.jsonl"
	LockFile      = "lock"
	SyncStateFile = "sync-state.json"
	CacheDir      = "cache"
	SnapshotDB    = "entries.db"
	IndexFile     = "index.gob"
)

// Default threshold values.
const (
	DefaultFuzzyThreshold    = 0.5
	DefaultDedupThreshold    = 0.85
	DefaultRecencyWindowDays = 90
	DefaultClockSkewLimit    = 100000
	DefaultCompactThreshold  = 1000
)

// DefaultConfig returns a config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		FuzzyThreshold:    DefaultFuzzyThreshold,
		DedupThreshold:    DefaultDedupThreshold,
		RecencyWindowDays: DefaultRecencyWindowDays,
		ClockSkewLimit:    DefaultClockSkewLimit,
		CompactThreshold:  DefaultCompactThreshold,
	}
}

// LorePath returns the path to the .lore directory from a root path.
func LorePath(root string) string {
	return filepath.Join(root, LoreDir)
}

// ConfigPath returns the path to config.yaml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, LoreDir, ConfigFile)
}

// OpLogPath returns the path to the operation log from a root path.
func OpLogPath(root string) string {
	return filepath.Join(root, LoreDir, OpLogFile)
}

// LockPath returns the path to the writer lock file from a root path.
func LockPath(root string) string {
	return filepath.Join(root, LoreDir, LockFile)
}

// SyncStatePath returns the path to the sync high-water-mark file.
func SyncStatePath(root string) string {
	return filepath.Join(root, LoreDir, SyncStateFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, LoreDir, CacheDir)
}

// SnapshotPath returns the path to the SQLite snapshot database.
func SnapshotPath(root string) string {
	return filepath.Join(root, LoreDir, CacheDir, SnapshotDB)
}

// IndexPath returns the path to the gob index cache.
func IndexPath(root string) string {
	return filepath.Join(root, LoreDir, CacheDir, IndexFile)
}

// IsRepository checks if the given path contains a lore repository.
func IsRepository(root string) bool {
	info, err := os.Stat(LorePath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a lore repository.
// Returns the repository root path or an error if not found.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a lore repository (no .lore directory found)")
		}
		abs = parent
	}
}

// Load reads configuration from the repository at the given root. Missing
// fields fall back to defaults so old config files keep working.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		cfg.DedupThreshold = DefaultDedupThreshold
	}
	if cfg.RecencyWindowDays <= 0 {
		cfg.RecencyWindowDays = DefaultRecencyWindowDays
	}
	if cfg.ClockSkewLimit == 0 {
		cfg.ClockSkewLimit = DefaultClockSkewLimit
	}
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = DefaultCompactThreshold
	}

	return cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
