// Package config provides configuration loading and management for modalityset.
// It handles loading configuration from YAML (or TOML) files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// CropSize is the edge length of the square center crop applied to every slice
		CropSize int `yaml:"cropSize" toml:"cropSize"`

		// NumWorkers specifies how many acquisitions are processed concurrently
		NumWorkers int `yaml:"numWorkers" toml:"numWorkers"`
	} `yaml:"processing" toml:"processing"`

	// Corpus layout parameters
	Corpus struct {
		// Centers lists the center root directories to traverse
		Centers []string `yaml:"centers" toml:"centers"`

		// SubjectToken must appear in a subject directory name
		SubjectToken string `yaml:"subjectToken" toml:"subjectToken"`

		// AnatDir is the subdirectory of each subject holding the acquisitions
		AnatDir string `yaml:"anatDir" toml:"anatDir"`

		// Extensions are the volumetric file tokens that mark a candidate file
		Extensions []string `yaml:"extensions" toml:"extensions"`

		// ExcludeTokens mark unsupported acquisitions skipped before processing
		ExcludeTokens []string `yaml:"excludeTokens" toml:"excludeTokens"`
	} `yaml:"corpus" toml:"corpus"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether per-stage slice snapshots are written
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`

		// IntermediaryDir is the directory snapshots are written to
		IntermediaryDir string `yaml:"intermediaryDir" toml:"intermediaryDir"`

		// Verbose enables per-acquisition progress messages
		Verbose bool `yaml:"verbose" toml:"verbose"`

		// LogFile, when set, receives log output with rotation
		LogFile string `yaml:"logFile" toml:"logFile"`

		// MaxLogSize is the size in megabytes before the log file is rotated
		MaxLogSize int `yaml:"maxLogSize" toml:"maxLogSize"`

		// MaxLogAge is the number of days rotated log files are kept
		MaxLogAge int `yaml:"maxLogAge" toml:"maxLogAge"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.CropSize = 128
	cfg.Processing.NumWorkers = runtime.NumCPU()

	cfg.Corpus.SubjectToken = "sub"
	cfg.Corpus.AnatDir = "anat"
	cfg.Corpus.Extensions = []string{".nii.gz", ".nii"}
	cfg.Corpus.ExcludeTokens = []string{"MTS"}

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true
	cfg.Output.MaxLogSize = 100
	cfg.Output.MaxLogAge = 28

	return cfg
}

// Validate checks that the configuration can drive a corpus pass
func (c *Config) Validate() error {
	if c.Processing.CropSize <= 0 {
		return errors.Errorf("cropSize must be positive, got %d", c.Processing.CropSize)
	}
	if c.Processing.NumWorkers < 1 {
		return errors.Errorf("numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if len(c.Corpus.Extensions) == 0 {
		return errors.New("at least one volumetric extension is required")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file, or a TOML file when the
// path ends in ".toml".
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing config file")
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML (or TOML) file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	f, err := os.Create(configPath)
	if err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	defer f.Close()

	if isTOML(configPath) {
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
		return nil
	}

	enc := yaml.NewEncoder(f)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
