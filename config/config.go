package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/melkeydev/mcp-tables/types"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog" toml:"catalog"`
	Limits   LimitsConfig   `yaml:"limits" toml:"limits"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig describes how the MCP server identifies itself and which
// transport it serves on.
type ServerConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Version   string `yaml:"version" toml:"version"`
	Transport string `yaml:"transport" toml:"transport"` // stdio or sse
	Addr      string `yaml:"addr" toml:"addr"`           // listen address for sse
	BaseURL   string `yaml:"base_url" toml:"base_url"`
}

type DatabaseConfig struct {
	DBType           string `yaml:"type" toml:"type"`
	ConnectionString string `yaml:"connection_string,omitempty" toml:"connection_string"`
	File             string `yaml:"file,omitempty" toml:"file"`
	// URL and APIKey address a PostgREST endpoint (e.g. a Supabase project).
	URL    string `yaml:"url,omitempty" toml:"url"`
	APIKey string `yaml:"api_key,omitempty" toml:"api_key"`
	// PrimaryKey names the auto-increment column reported back after a
	// MySQL insert.
	PrimaryKey string `yaml:"primary_key,omitempty" toml:"primary_key"`
}

// CatalogConfig is the operator-maintained allow-list of tables.
type CatalogConfig struct {
	Tables []TableConfig `yaml:"tables" toml:"tables"`
}

type TableConfig struct {
	Name          string   `yaml:"name" toml:"name"`
	Description   string   `yaml:"description,omitempty" toml:"description"`
	PrimaryKey    string   `yaml:"primary_key,omitempty" toml:"primary_key"`
	CommonColumns []string `yaml:"common_columns,omitempty" toml:"common_columns"`
}

func (t TableConfig) Metadata() types.TableMetadata {
	return types.TableMetadata{
		Description:   t.Description,
		PrimaryKey:    t.PrimaryKey,
		CommonColumns: t.CommonColumns,
	}
}

// LimitsConfig bounds every operation issued against the store.
type LimitsConfig struct {
	DefaultLimit  int `yaml:"default_limit" toml:"default_limit"`
	MaxLimit      int `yaml:"max_limit" toml:"max_limit"`
	ResourceLimit int `yaml:"resource_limit" toml:"resource_limit"`
	SampleSize    int `yaml:"sample_size" toml:"sample_size"`

	QueryTimeout    time.Duration `yaml:"-" toml:"-"`
	QueryTimeoutRaw string        `yaml:"query_timeout" toml:"query_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "mcp-tables",
			Version:   "0.1.0",
			Transport: "stdio",
			Addr:      ":8080",
		},
		Limits: LimitsConfig{
			DefaultLimit:    20,
			MaxLimit:        1000,
			ResourceLimit:   50,
			SampleSize:      10,
			QueryTimeout:    30 * time.Second,
			QueryTimeoutRaw: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the configuration file at configPath. Files ending in
// .toml are decoded as TOML, everything else as YAML. ${VAR} references are
// expanded from the environment before decoding.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %w", err)
	}

	config, err := Parse(expandEnvVars(string(data)), strings.EqualFold(filepath.Ext(configPath), ".toml"))
	if err != nil {
		return nil, err
	}

	return config, nil
}

// Parse decodes raw configuration text on top of DefaultConfig and validates
// the result.
func Parse(data string, isTOML bool) (*Config, error) {
	config := DefaultConfig()
	if isTOML {
		if _, err := toml.Decode(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := parseDurations(config); err != nil {
		return nil, fmt.Errorf("failed to parse durations: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR, or the empty string
// when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(c *Config) error {
	if c.Limits.QueryTimeoutRaw == "" {
		c.Limits.QueryTimeout = 0
		return nil
	}

	d, err := time.ParseDuration(c.Limits.QueryTimeoutRaw)
	if err != nil {
		return fmt.Errorf("parsing query_timeout %q: %w", c.Limits.QueryTimeoutRaw, err)
	}
	c.Limits.QueryTimeout = d
	return nil
}

// Validate reports the first problem that would prevent the server from
// starting.
func (c *Config) Validate() error {
	if _, err := c.Database.GetConnectionString(); err != nil {
		return err
	}

	if len(c.Catalog.Tables) == 0 {
		return fmt.Errorf("catalog.tables must list at least one table")
	}
	for i, t := range c.Catalog.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("catalog.tables[%d].name is required", i)
		}
	}

	switch {
	case c.Limits.DefaultLimit <= 0:
		return fmt.Errorf("limits.default_limit must be positive")
	case c.Limits.MaxLimit < c.Limits.DefaultLimit:
		return fmt.Errorf("limits.max_limit must be at least limits.default_limit")
	case c.Limits.ResourceLimit <= 0:
		return fmt.Errorf("limits.resource_limit must be positive")
	case c.Limits.SampleSize <= 0:
		return fmt.Errorf("limits.sample_size must be positive")
	case c.Limits.QueryTimeout < 0:
		return fmt.Errorf("limits.query_timeout must not be negative")
	}

	switch c.Server.Transport {
	case "stdio":
	case "sse":
		if c.Server.Addr == "" {
			return fmt.Errorf("server.addr is required for the sse transport")
		}
	default:
		return fmt.Errorf("unsupported server.transport: %s", c.Server.Transport)
	}

	return nil
}

// GetConnectionString returns the DSN (or file path, or base URL) the
// configured database type connects with.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	switch d.DBType {
	case "postgres", "mysql":
		if d.ConnectionString == "" {
			return "", fmt.Errorf("connection string is required for %s connection", d.DBType)
		}

		return d.ConnectionString, nil

	case "sqlite":
		if d.File == "" {
			d.File = "database.db"
		}
		return d.File, nil

	case "postgrest":
		if d.URL == "" {
			return "", fmt.Errorf("url is required for postgrest connection")
		}
		return d.URL, nil

	default:
		return "", fmt.Errorf("unsupported database type: %s", d.DBType)
	}
}
