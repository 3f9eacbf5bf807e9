// Package config loads engine configuration: a JSONC config file
// merged over environment variables, with defaults in code.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/core/internal/logging"
	"github.com/opencode-ai/core/pkg/types"
)

// Config is the engine configuration.
type Config struct {
	// Model is the default "provider/model".
	Model string `json:"model,omitempty"`

	// DataDir holds the database, spill files and legacy storage.
	DataDir string `json:"dataDir,omitempty"`

	// LogLevel is DEBUG, INFO, WARN, ERROR or FATAL.
	LogLevel string `json:"logLevel,omitempty"`

	// Server configures the HTTP listener.
	Server ServerConfig `json:"server,omitempty"`

	// Providers configures provider credentials and endpoints.
	Providers map[string]ProviderConfig `json:"providers,omitempty"`

	// Agents overrides or extends the built-in agent set.
	Agents map[string]types.Agent `json:"agents,omitempty"`

	// Permissions is the project-independent base ruleset.
	Permissions []types.PermissionRule `json:"permissions,omitempty"`

	// DisableCompaction turns automatic context compaction off.
	DisableCompaction bool `json:"disableCompaction,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// ProviderConfig configures one provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ConfigFileNames are read from the user config directory and then
// from the worktree; every file found is applied in that order, so
// worktree values override user-level ones.
var ConfigFileNames = []string{"opencode.jsonc", "opencode.json"}

// Load reads configuration for a worktree. A missing config file is
// not an error; .env files in the worktree are loaded first so config
// values may reference fresh environment state.
func Load(worktree string) (*Config, error) {
	// Best effort: a worktree .env supplies provider keys.
	_ = godotenv.Load(filepath.Join(worktree, ".env"))

	cfg := defaults()

	for _, dir := range configDirs(worktree) {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			logging.Debug().Str("path", path).Msg("loaded config")
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".local", "share")
		}
	}

	return &Config{
		DataDir:  filepath.Join(dataDir, "opencode"),
		LogLevel: "INFO",
		Server:   ServerConfig{Hostname: "127.0.0.1", Port: 4096},
	}
}

func configDirs(worktree string) []string {
	var dirs []string
	if userDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(userDir, "opencode"))
	}
	dirs = append(dirs, worktree)
	return dirs
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENCODE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("OPENCODE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OPENCODE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
