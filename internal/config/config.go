package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP listener configuration.
type Server struct {
	Bind string `toml:"bind"`
}

// Storage contains configuration for the receipt blob bucket.
type Storage struct {
	Bucket string `toml:"bucket"`
	Folder string `toml:"folder"`
}

// Extractor contains configuration for the inference model.
type Extractor struct {
	Model  string `toml:"model"`
	APIKey string `toml:"api_key"`
}

// Pipeline contains extraction pipeline tuning.
type Pipeline struct {
	// DispatchTimeoutSeconds bounds the concurrent upload/inference phase.
	DispatchTimeoutSeconds int `toml:"dispatch_timeout_seconds"`
	Workers                int `toml:"workers"`
	QueueSize              int `toml:"queue_size"`
}

// Store contains persistence configuration. Backend is "sqlite" or "bigquery".
type Store struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	Project string `toml:"project"`
	Dataset string `toml:"dataset"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level string `toml:"level"`
}

// Config encapsulates all configuration values for the service.
type Config struct {
	Server    Server    `toml:"server"`
	Storage   Storage   `toml:"storage"`
	Extractor Extractor `toml:"extractor"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Store     Store     `toml:"store"`
	Logging   Logging   `toml:"logging"`
}

const (
	defaultBind            = "127.0.0.1:8080"
	defaultStorageFolder   = "receipts"
	defaultModel           = "gemini-2.5-flash"
	defaultDispatchTimeout = 60
	defaultWorkers         = 4
	defaultQueueSize       = 64
	defaultStoreBackend    = "sqlite"
	defaultStorePath       = "~/.local/share/expenso/expenso.db"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind: defaultBind,
		},
		Storage: Storage{
			Folder: defaultStorageFolder,
		},
		Extractor: Extractor{
			Model: defaultModel,
		},
		Pipeline: Pipeline{
			DispatchTimeoutSeconds: defaultDispatchTimeout,
			Workers:                defaultWorkers,
			QueueSize:              defaultQueueSize,
		},
		Store: Store{
			Backend: defaultStoreBackend,
			Path:    defaultStorePath,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/expenso/config.toml")
}

// Load locates, parses, and validates a configuration file. Credentials may
// also come from the environment: GEMINI_API_KEY overrides [extractor]
// api_key, and EXPENSO_BUCKET overrides [storage] bucket.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		c.Extractor.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EXPENSO_BUCKET")); v != "" {
		c.Storage.Bucket = v
	}
}

func (c *Config) normalize() error {
	if c.Store.Backend == "sqlite" && c.Store.Path != "" && c.Store.Path != ":memory:" {
		expanded, err := expandPath(c.Store.Path)
		if err != nil {
			return err
		}
		c.Store.Path = expanded
	}
	return nil
}

// Validate checks cross-field constraints that TOML decoding cannot express.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	case "bigquery":
		if strings.TrimSpace(c.Store.Project) == "" || strings.TrimSpace(c.Store.Dataset) == "" {
			return fmt.Errorf("store project and dataset are required for the bigquery backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Pipeline.DispatchTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline dispatch_timeout_seconds must be positive")
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline queue_size must be positive")
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("expenso.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
