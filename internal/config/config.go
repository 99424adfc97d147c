package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "COMMENT_INBOX_CONFIG"
	geminiAPIKeyEnv    = "GEMINI_API_KEY"
	geminiModelEnv     = "GEMINI_MODEL"
	databaseDSNEnv     = "COMMENT_INBOX_DB_DSN"
	databaseDriverEnv  = "COMMENT_INBOX_DB_DRIVER"
	logLevelEnv        = "COMMENT_INBOX_LOG_LEVEL"
	serverAddrEnv      = "COMMENT_INBOX_ADDR"
	defaultTimeout     = 30 * time.Second
	defaultPageSize    = 20
	defaultBatchSize   = 10
	defaultGraphURL    = "https://graph.facebook.com/v18.0"
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Graph      GraphConfig      `yaml:"graph"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Inbox      InboxConfig      `yaml:"inbox"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GraphConfig describes the social graph API.
type GraphConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// ClassifierConfig defines how to contact the generative-text endpoint.
type ClassifierConfig struct {
	Backend   string        `yaml:"backend"`
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batchSize"`
}

// InboxConfig tunes the classification pipeline.
type InboxConfig struct {
	PageSize        int           `yaml:"pageSize"`
	CancelAbandoned bool          `yaml:"cancelAbandoned"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// StorageConfig points at the credential database.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures the operator console.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit config file path; an empty path skips the file.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		cfg = LoadFile(cfg, path)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// LoadFile merges the YAML file at path over base. Unreadable files keep base.
func LoadFile(base Config, path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		return base
	}

	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		return base
	}
	return mergeConfig(base, fileCfg)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(geminiModelEnv); v != "" {
		c.Classifier.Model = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Graph.BaseURL != "" {
		base.Graph.BaseURL = override.Graph.BaseURL
	}
	if override.Graph.Timeout > 0 {
		base.Graph.Timeout = override.Graph.Timeout
	}

	if override.Classifier.Backend != "" {
		base.Classifier.Backend = override.Classifier.Backend
	}
	if override.Classifier.Endpoint != "" {
		base.Classifier.Endpoint = override.Classifier.Endpoint
	}
	if override.Classifier.Model != "" {
		base.Classifier.Model = override.Classifier.Model
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.Timeout > 0 {
		base.Classifier.Timeout = override.Classifier.Timeout
	}
	if override.Classifier.BatchSize > 0 {
		base.Classifier.BatchSize = override.Classifier.BatchSize
	}

	if override.Inbox.PageSize > 0 {
		base.Inbox.PageSize = override.Inbox.PageSize
	}
	if override.Inbox.CancelAbandoned {
		base.Inbox.CancelAbandoned = true
	}
	if override.Inbox.RefreshInterval > 0 {
		base.Inbox.RefreshInterval = override.Inbox.RefreshInterval
	}

	if override.Storage.DSN != "" {
		base.Storage = override.Storage
		if base.Storage.Driver == "" {
			base.Storage.Driver = "sqlite3"
		}
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Graph:   GraphConfig{BaseURL: defaultGraphURL, Timeout: defaultTimeout},
		Classifier: ClassifierConfig{
			Backend:   "rest",
			Endpoint:  defaultGeminiURL,
			Model:     defaultGeminiModel,
			APIKey:    "",
			Timeout:   defaultTimeout,
			BatchSize: defaultBatchSize,
		},
		Inbox:   InboxConfig{PageSize: defaultPageSize},
		Storage: StorageConfig{Driver: "sqlite3", DSN: defaultDatabasePath()},
		Server:  ServerConfig{Addr: ":8790"},
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "commentinbox", "credentials.db")
}
