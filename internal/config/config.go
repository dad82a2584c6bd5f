package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"image-optimizer-go/internal/compressor"
	"image-optimizer-go/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. IMAGE_OPTIMIZER_PRESET.
const EnvPrefix = "IMAGE_OPTIMIZER"

// Config represents the main configuration structure
type Config struct {
	SourceDirectory string            `mapstructure:"source_directory"`
	OutputDirectory string            `mapstructure:"output_directory"`
	OutputPrefix    string            `mapstructure:"output_prefix"`
	Extensions      []string          `mapstructure:"extensions"`
	Preset          string            `mapstructure:"preset"`
	Compression     CompressionConfig `mapstructure:"compression"`
	Performance     PerformanceConfig `mapstructure:"performance"`
	Logging         LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig overrides individual preset values. Zero values keep the preset's.
type CompressionConfig struct {
	Quality          int   `mapstructure:"quality"`
	MaxWidth         int   `mapstructure:"max_width"`
	MaxHeight        int   `mapstructure:"max_height"`
	Progressive      *bool `mapstructure:"progressive"`
	AutoOrient       bool  `mapstructure:"auto_orient"`
	PreserveMetadata bool  `mapstructure:"preserve_metadata"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	Workers int `mapstructure:"workers"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	logCfg := logger.DefaultConfig()
	return &Config{
		SourceDirectory: ".",
		OutputDirectory: "optimized",
		OutputPrefix:    "optimized_",
		Extensions:      []string{".png", ".jpg", ".jpeg"},
		Preset:          compressor.PresetFast,
		Performance: PerformanceConfig{
			Workers: 1,
		},
		Logging: LoggingConfig{
			Level:      logCfg.Level,
			FilePath:   logCfg.FilePath,
			MaxSize:    logCfg.MaxSize,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAge,
			Compress:   logCfg.Compress,
		},
	}
}

// LoadConfig loads configuration from file, .env and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-optimizer")
		v.AddConfigPath("/etc/image-optimizer")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerKeys(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// registerKeys makes every key visible to AutomaticEnv, which only resolves
// keys viper already knows about.
func registerKeys(v *viper.Viper, c *Config) {
	v.SetDefault("source_directory", c.SourceDirectory)
	v.SetDefault("output_directory", c.OutputDirectory)
	v.SetDefault("output_prefix", c.OutputPrefix)
	v.SetDefault("extensions", c.Extensions)
	v.SetDefault("preset", c.Preset)
	v.SetDefault("compression.quality", c.Compression.Quality)
	v.SetDefault("compression.max_width", c.Compression.MaxWidth)
	v.SetDefault("compression.max_height", c.Compression.MaxHeight)
	v.SetDefault("compression.auto_orient", c.Compression.AutoOrient)
	v.SetDefault("compression.preserve_metadata", c.Compression.PreserveMetadata)
	_ = v.BindEnv("compression.progressive")
	v.SetDefault("performance.workers", c.Performance.Workers)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		c.SourceDirectory = "."
	}
	if !isValidPath(c.SourceDirectory) {
		return fmt.Errorf("source_directory does not exist or is not accessible: %s", c.SourceDirectory)
	}
	c.SourceDirectory = expandPath(c.SourceDirectory)

	if p := expandPath(c.OutputDirectory); p != "" {
		c.OutputDirectory = p
	}
	if c.Logging.FilePath != "" {
		c.Logging.FilePath = expandPath(c.Logging.FilePath)
	}

	if strings.TrimSpace(c.OutputDirectory) == "" {
		return fmt.Errorf("output_directory is required")
	}

	// An empty prefix would make every input look like previous output.
	if c.OutputPrefix == "" {
		return fmt.Errorf("output_prefix is required")
	}

	c.Extensions = normalizeExtensions(c.Extensions)
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}

	if _, err := compressor.PresetByName(c.Preset); err != nil {
		return err
	}

	if c.Performance.Workers <= 0 {
		c.Performance.Workers = 1
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Settings resolves the preset and applies the per-field overrides.
func (c *Config) Settings() (compressor.Settings, error) {
	s, err := compressor.PresetByName(c.Preset)
	if err != nil {
		return compressor.Settings{}, err
	}
	if c.Compression.Quality != 0 {
		s.Quality = c.Compression.Quality
	}
	if c.Compression.MaxWidth > 0 {
		s.MaxWidth = c.Compression.MaxWidth
	}
	if c.Compression.MaxHeight > 0 {
		s.MaxHeight = c.Compression.MaxHeight
	}
	if c.Compression.Progressive != nil {
		s.Progressive = *c.Compression.Progressive
	}
	s.AutoOrient = c.Compression.AutoOrient
	s.PreserveMetadata = c.Compression.PreserveMetadata
	return s, nil
}

// GetOutputDirectory returns the output directory, resolved against the
// source directory when relative.
func (c *Config) GetOutputDirectory() string {
	if filepath.IsAbs(c.OutputDirectory) {
		return c.OutputDirectory
	}
	return filepath.Join(c.SourceDirectory, c.OutputDirectory)
}

// Helper functions

// expandPath resolves environment variables and a leading "~". The path is
// returned unchanged when the home directory is unknown.
func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded
}

func isValidPath(path string) bool {
	if path == "" {
		return false
	}

	stat, err := os.Stat(expandPath(path))
	return err == nil && stat.IsDir()
}

// normalizeExtensions adds the leading dot. Case is kept: matching is case-sensitive.
func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return normalized
}
