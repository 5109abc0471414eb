package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zzenonn/zpreserve/internal/domain"
)

// Index drivers.
const (
	IndexDriverNone     = "none"
	IndexDriverSQLite   = "sqlite"
	IndexDriverDynamoDB = "dynamodb"
)

// LocationConfig describes one storage location and the metadata directory paired with it.
// Path is a filesystem directory or an object storage URI.
type LocationConfig struct {
	Path            string   `mapstructure:"path"`
	MetadataPath    string   `mapstructure:"metadata_path"`
	Type            string   `mapstructure:"type"`
	MetadataDigests []string `mapstructure:"metadata_digests"`
	Region          string   `mapstructure:"region"`
	Endpoint        string   `mapstructure:"endpoint"`
}

// ServiceConfig describes one preservation service. Delay and Frequency are periods such as
// "6 months".
type ServiceConfig struct {
	WorkScript string         `mapstructure:"work_script"`
	Delay      string         `mapstructure:"delay"`
	Frequency  string         `mapstructure:"frequency"`
	Events     []string       `mapstructure:"events"`
	Properties map[string]any `mapstructure:"properties"`
}

// MappingConfig applies a set of services to a set of locations.
type MappingConfig struct {
	Locations []string `mapstructure:"locations"`
	Services  []string `mapstructure:"services"`
}

// IndexConfig selects and configures the secondary index.
type IndexConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Table    string `mapstructure:"table"`
	Endpoint string `mapstructure:"endpoint"`
	PageSize int    `mapstructure:"page_size"`
}

// Config holds the application configuration
type Config struct {
	LogLevel        string                    `mapstructure:"log_level"`
	Locations       map[string]LocationConfig `mapstructure:"locations"`
	Services        map[string]ServiceConfig  `mapstructure:"services"`
	ServiceMappings []MappingConfig           `mapstructure:"service_mappings"`
	Index           IndexConfig               `mapstructure:"index"`
	LockFile        string                    `mapstructure:"lock_file"`

	// ServiceDefinitions holds Services parsed and validated, sorted by name.
	ServiceDefinitions []domain.ServiceDefinition `mapstructure:"-"`
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if rootCmd != nil {
		if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("index.driver", IndexDriverNone)
	viper.SetDefault("index.path", "/var/lib/zpreserve/index.db")
	viper.SetDefault("index.table", "zpreserve_index")
	viper.SetDefault("index.page_size", 1000)
	viper.SetDefault("lock_file", "/tmp/zpreserve.lock")
}

// SetConfigValue sets a configuration value (used for CLI flags)
func SetConfigValue(key string, value interface{}) {
	viper.Set(key, value)
}

// LocationNames returns the configured location names in sorted order.
func (c *Config) LocationNames() []string {
	names := make([]string, 0, len(c.Locations))
	for name := range c.Locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NeedsAWS reports whether any location or the index is backed by AWS.
func (c *Config) NeedsAWS() bool {
	if c.Index.Driver == IndexDriverDynamoDB {
		return true
	}
	for _, loc := range c.Locations {
		if loc.Type == "s3" {
			return true
		}
	}
	return false
}
