// Package config loads searchgate configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (searchgate.yaml, searchgate.yml or searchgate.toml)
//  3. Environment variables
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchgate/internal/errors"
)

// FileNames are the config files searched for, in order.
var FileNames = []string{"searchgate.yaml", "searchgate.yml", "searchgate.toml"}

// Config represents the complete searchgate configuration.
type Config struct {
	Version   int             `yaml:"version" toml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" toml:"paths" json:"paths"`
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Access    AccessConfig    `yaml:"access" toml:"access" json:"access"`
	Locking   LockingConfig   `yaml:"locking" toml:"locking" json:"locking"`
	Query     QueryConfig     `yaml:"query" toml:"query" json:"query"`
	Documents DocumentsConfig `yaml:"documents" toml:"documents" json:"documents"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine" json:"engine"`
	Queue     QueueConfig     `yaml:"queue" toml:"queue" json:"queue"`
	Journal   JournalConfig   `yaml:"journal" toml:"journal" json:"journal"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" json:"logging"`
}

// PathsConfig configures the on-disk layout.
type PathsConfig struct {
	// IndexRoot holds one directory per index.
	IndexRoot string `yaml:"index_root" toml:"index_root" json:"index_root"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string `yaml:"listen" toml:"listen" json:"listen"`
	ReadTimeout     string `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// AccessConfig configures origin checks on the query endpoint.
type AccessConfig struct {
	// AllowedOrigins is a comma separated allow-list. Empty allows every origin.
	AllowedOrigins string `yaml:"allowed_origins" toml:"allowed_origins" json:"allowed_origins"`
}

// LockingConfig bounds writer acquisition.
type LockingConfig struct {
	MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	RetryDelay  string `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	StaleAfter  string `yaml:"stale_after" toml:"stale_after" json:"stale_after"`
}

// QueryConfig tunes query execution.
type QueryConfig struct {
	DefaultField string `yaml:"default_field" toml:"default_field" json:"default_field"`
	MaxResults   int    `yaml:"max_results" toml:"max_results" json:"max_results"`
}

// DocumentsConfig names the special document fields.
type DocumentsConfig struct {
	IdentityField string `yaml:"identity_field" toml:"identity_field" json:"identity_field"`
	DeletedField  string `yaml:"deleted_field" toml:"deleted_field" json:"deleted_field"`
}

// EngineConfig tunes the full-text engine.
type EngineConfig struct {
	// OpenIndexCache is the number of indexes shared by live handles.
	OpenIndexCache int `yaml:"open_index_cache" toml:"open_index_cache" json:"open_index_cache"`
	// OpenTimeout bounds the wait on an index another process has open.
	OpenTimeout string `yaml:"open_timeout" toml:"open_timeout" json:"open_timeout"`
}

// QueueConfig configures the Redis Streams write consumer.
type QueueConfig struct {
	Enabled   *bool    `yaml:"enabled" toml:"enabled" json:"enabled"`
	Addrs     []string `yaml:"addrs" toml:"addrs" json:"addrs"`
	Stream    string   `yaml:"stream" toml:"stream" json:"stream"`
	Group     string   `yaml:"group" toml:"group" json:"group"`
	Consumer  string   `yaml:"consumer" toml:"consumer" json:"consumer"`
	BatchSize int      `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	Block     string   `yaml:"block" toml:"block" json:"block"`
}

// JournalConfig configures the batch outcome journal.
type JournalConfig struct {
	// Path of the SQLite database. Empty disables the journal.
	Path string `yaml:"path" toml:"path" json:"path"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level" json:"level"`
	File      string `yaml:"file" toml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files" json:"max_files"`
	Stderr    *bool  `yaml:"stderr" toml:"stderr" json:"stderr"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			IndexRoot: filepath.Join("data", "indexes"),
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     "30s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Locking: LockingConfig{
			MaxAttempts: 5,
			RetryDelay:  "1s",
			StaleAfter:  "5m",
		},
		Query: QueryConfig{
			DefaultField: "content",
			MaxResults:   10,
		},
		Documents: DocumentsConfig{
			IdentityField: "uuid",
			DeletedField:  "deleted",
		},
		Engine: EngineConfig{
			OpenIndexCache: 64,
			OpenTimeout:    "1s",
		},
		Queue: QueueConfig{
			Enabled:   boolPtr(false),
			Addrs:     []string{"localhost:6379"},
			Stream:    "searchgate:writes",
			Group:     "searchgate",
			Consumer:  defaultConsumerName(),
			BatchSize: 10,
			Block:     "5s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    boolPtr(true),
		},
	}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "searchgate"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

// Load reads the config file at path, or discovers one in the working
// directory when path is empty, then applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = Discover(".")
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "config file not found", err).
			WithDetail("path", path)
	}

	if path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.mergeWith(fileCfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

// Discover returns the first config file found in dir, or "".
func Discover(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// ReadFile parses a YAML or TOML config file without applying defaults.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "failed to read config file", err).
			WithDetail("path", path)
	}

	var parsed Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&parsed)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&parsed)
		if err != nil && len(bytes.TrimSpace(data)) == 0 {
			err = nil
		}
	default:
		err = fmt.Errorf("config file must be .toml, .yaml, or .yml, got %q", ext)
	}
	if err != nil {
		return nil, errors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}
	return &parsed, nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.IndexRoot != "" {
		c.Paths.IndexRoot = other.Paths.IndexRoot
	}

	if other.Server.Listen != "" {
		c.Server.Listen = other.Server.Listen
	}
	if other.Server.ReadTimeout != "" {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != "" {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}
	if other.Server.ShutdownTimeout != "" {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	if other.Access.AllowedOrigins != "" {
		c.Access.AllowedOrigins = other.Access.AllowedOrigins
	}

	if other.Locking.MaxAttempts != 0 {
		c.Locking.MaxAttempts = other.Locking.MaxAttempts
	}
	if other.Locking.RetryDelay != "" {
		c.Locking.RetryDelay = other.Locking.RetryDelay
	}
	if other.Locking.StaleAfter != "" {
		c.Locking.StaleAfter = other.Locking.StaleAfter
	}

	if other.Query.DefaultField != "" {
		c.Query.DefaultField = other.Query.DefaultField
	}
	if other.Query.MaxResults != 0 {
		c.Query.MaxResults = other.Query.MaxResults
	}

	if other.Documents.IdentityField != "" {
		c.Documents.IdentityField = other.Documents.IdentityField
	}
	if other.Documents.DeletedField != "" {
		c.Documents.DeletedField = other.Documents.DeletedField
	}

	if other.Engine.OpenIndexCache != 0 {
		c.Engine.OpenIndexCache = other.Engine.OpenIndexCache
	}
	if other.Engine.OpenTimeout != "" {
		c.Engine.OpenTimeout = other.Engine.OpenTimeout
	}

	if other.Queue.Enabled != nil {
		c.Queue.Enabled = other.Queue.Enabled
	}
	if len(other.Queue.Addrs) > 0 {
		c.Queue.Addrs = other.Queue.Addrs
	}
	if other.Queue.Stream != "" {
		c.Queue.Stream = other.Queue.Stream
	}
	if other.Queue.Group != "" {
		c.Queue.Group = other.Queue.Group
	}
	if other.Queue.Consumer != "" {
		c.Queue.Consumer = other.Queue.Consumer
	}
	if other.Queue.BatchSize != 0 {
		c.Queue.BatchSize = other.Queue.BatchSize
	}
	if other.Queue.Block != "" {
		c.Queue.Block = other.Queue.Block
	}

	if other.Journal.Path != "" {
		c.Journal.Path = other.Journal.Path
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	if other.Logging.Stderr != nil {
		c.Logging.Stderr = other.Logging.Stderr
	}
}

// applyEnvOverrides applies environment variables (highest precedence).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHGATE_INDEX_ROOT"); v != "" {
		c.Paths.IndexRoot = v
	}
	if v := os.Getenv("SEARCHGATE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	// ALLOWED_ORIGINS may be set to empty to clear a file value.
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		c.Access.AllowedOrigins = v
	}
	if v := os.Getenv("SEARCHGATE_REDIS_ADDRS"); v != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		if len(addrs) > 0 {
			c.Queue.Addrs = addrs
			c.Queue.Enabled = boolPtr(true)
		}
	}
	if v := os.Getenv("SEARCHGATE_JOURNAL"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("SEARCHGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Paths.IndexRoot == "" {
		return fmt.Errorf("paths.index_root is required")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	durations := []struct{ name, value string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"locking.retry_delay", c.Locking.RetryDelay},
		{"locking.stale_after", c.Locking.StaleAfter},
		{"queue.block", c.Queue.Block},
		{"engine.open_timeout", c.Engine.OpenTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s must be a duration: %w", d.name, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, v)
		}
	}

	if c.Locking.MaxAttempts < 1 {
		return fmt.Errorf("locking.max_attempts must be at least 1, got %d", c.Locking.MaxAttempts)
	}
	if c.Query.MaxResults < 1 {
		return fmt.Errorf("query.max_results must be at least 1, got %d", c.Query.MaxResults)
	}
	if c.Query.DefaultField == "" {
		return fmt.Errorf("query.default_field is required")
	}
	if c.Documents.IdentityField == "" || c.Documents.DeletedField == "" {
		return fmt.Errorf("documents.identity_field and documents.deleted_field are required")
	}
	if c.Documents.IdentityField == c.Documents.DeletedField {
		return fmt.Errorf("documents.identity_field and documents.deleted_field must differ")
	}
	if c.Engine.OpenIndexCache < 1 {
		return fmt.Errorf("engine.open_index_cache must be at least 1, got %d", c.Engine.OpenIndexCache)
	}

	if c.QueueEnabled() {
		if len(c.Queue.Addrs) == 0 {
			return fmt.Errorf("queue.addrs is required when the queue is enabled")
		}
		if c.Queue.Stream == "" || c.Queue.Group == "" || c.Queue.Consumer == "" {
			return fmt.Errorf("queue.stream, queue.group and queue.consumer are required")
		}
		if c.Queue.BatchSize < 1 {
			return fmt.Errorf("queue.batch_size must be at least 1, got %d", c.Queue.BatchSize)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// QueueEnabled reports whether the Redis consumer should run.
func (c *Config) QueueEnabled() bool {
	return c.Queue.Enabled != nil && *c.Queue.Enabled
}

// LogToStderr reports whether logs are mirrored to stderr.
func (c *Config) LogToStderr() bool {
	return c.Logging.Stderr == nil || *c.Logging.Stderr
}

// RetryDelay returns locking.retry_delay. Validate guarantees it parses.
func (c *Config) RetryDelay() time.Duration { return mustDuration(c.Locking.RetryDelay) }

// StaleAfter returns locking.stale_after.
func (c *Config) StaleAfter() time.Duration { return mustDuration(c.Locking.StaleAfter) }

// QueueBlock returns queue.block.
func (c *Config) QueueBlock() time.Duration { return mustDuration(c.Queue.Block) }

// OpenTimeout returns engine.open_timeout.
func (c *Config) OpenTimeout() time.Duration { return mustDuration(c.Engine.OpenTimeout) }

// ReadTimeout returns server.read_timeout.
func (c *Config) ReadTimeout() time.Duration { return mustDuration(c.Server.ReadTimeout) }

// WriteTimeout returns server.write_timeout.
func (c *Config) WriteTimeout() time.Duration { return mustDuration(c.Server.WriteTimeout) }

// ShutdownTimeout returns server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ToYAML renders the configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
