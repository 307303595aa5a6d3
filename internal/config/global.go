package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// GlobalConfig represents per-machine configuration stored in
// ~/.config/lore/config.yml.
type GlobalConfig struct {
	// WorkstationID is the stable identifier stamped onto every logical
	// clock produced on this machine. Generated on first use.
	WorkstationID string `yaml:"workstation_id,omitempty"`

	// DefaultRemote is used when a repository config has no remote.
	DefaultRemote string `yaml:"default_remote,omitempty"`

	// GitUserName and GitUserEmail are used for sync commits.
	GitUserName  string `yaml:"git_user_name,omitempty"`
	GitUserEmail string `yaml:"git_user_email,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "lore"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/lore/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	return &cfg, nil
}

// SaveGlobalConfig writes the global configuration file, creating the
// directory if needed.
func SaveGlobalConfig(cfg *GlobalConfig) error {
	path := GlobalConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine global config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding global config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing global config: %w", err)
	}

	return nil
}

// WorkstationID returns the stable workstation identifier for this machine,
// generating and persisting one on first call. The LORE_WORKSTATION
// environment variable overrides the stored value (used by tests and by
// multi-store setups on one host).
func WorkstationID() (string, error) {
	if id := os.Getenv("LORE_WORKSTATION"); id != "" {
		return id, nil
	}

	cfg, err := LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	if cfg.WorkstationID != "" {
		return cfg.WorkstationID, nil
	}

	host, _ := os.Hostname()
	host = sanitizeHostname(host)
	id := host + "-" + uuid.New().String()[:8]

	cfg.WorkstationID = id
	if err := SaveGlobalConfig(cfg); err != nil {
		return "", fmt.Errorf("persisting workstation id: %w", err)
	}
	return id, nil
}

// sanitizeHostname strips characters that would be awkward in file names,
// since the workstation id names the per-workstation log file on remotes.
func sanitizeHostname(host string) string {
	if host == "" {
		return "ws"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(host) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
