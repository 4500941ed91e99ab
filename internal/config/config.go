package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvSuiteID      = "TE_SUITEID"
	EnvSuiteRunID   = "TE_SUITERUNID"
	EnvTestRunID    = "TE_TESTRUNID"
	EnvCommitID     = "TE_COMMITID"
	EnvCallTreeFile = "TE_CALLTREEYAMLFILE"
	EnvSource       = "TE_SOURCE"
)

var (
	// ErrMissingRunID is returned when artifacts are enabled without the
	// suite id, suite run id and test run id.
	ErrMissingRunID = errors.New("suiteId, suiteRunId and testRunId are required")

	// ErrInvalidLogLevel is returned for an unknown logging level.
	ErrInvalidLogLevel = errors.New("invalid logging level")
)

// Config represents the top-level configuration.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	CallTree  CallTreeConfig  `yaml:"callTree"`
	Logging   LoggingConfig   `yaml:"logging"`
	Masking   MaskingConfig   `yaml:"masking"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// RunConfig identifies the test run being reported.
type RunConfig struct {
	SuiteID    string `yaml:"suiteId"`
	SuiteRunID string `yaml:"suiteRunId"`
	TestRunID  string `yaml:"testRunId"`
	CommitID   string `yaml:"commitId"`
	Source     string `yaml:"source"`
}

// CallTreeConfig represents the call tree document output.
type CallTreeConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MaskingConfig lists patterns of confidential values. Each pattern must
// match a whole message and contain one capture group marking the value.
type MaskingConfig struct {
	Patterns []string `yaml:"patterns"`
}

// ArtifactsConfig represents the artifact registry.
type ArtifactsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseDir string `yaml:"baseDir"`
}

// MetricsConfig represents metrics output. Metrics are written in the
// Prometheus text format to Textfile when the session closes.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogLevels are the accepted values of logging.level.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		CallTree: CallTreeConfig{
			Enabled: true,
			File:    ".testexecution/calltree.yaml",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Artifacts: ArtifactsConfig{
			BaseDir: ".testexecution/artifacts",
		},
	}
}

// Load reads and parses a configuration file using the real filesystem.
func Load(path string) (*Config, error) {
	return LoadWithFs(path, afero.NewOsFs())
}

// LoadWithFs reads and parses a configuration file using the provided filesystem.
// Values missing from the file keep their defaults.
func LoadWithFs(path string, afs afero.Fs) (*Config, error) {
	data, err := afero.ReadFile(afs, ExpandTilde(path))
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	config.expandPaths()
	return config, nil
}

// FromEnv returns the default configuration overlaid with the environment.
func FromEnv(lookup func(string) (string, bool)) *Config {
	config := Default()
	config.ApplyEnv(lookup)
	return config
}

// ApplyEnv overrides run identity and call tree file with the environment
// variables that are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, target *string) {
		if v, ok := lookup(key); ok {
			*target = v
		}
	}
	set(EnvSuiteID, &c.Run.SuiteID)
	set(EnvSuiteRunID, &c.Run.SuiteRunID)
	set(EnvTestRunID, &c.Run.TestRunID)
	set(EnvCommitID, &c.Run.CommitID)
	set(EnvSource, &c.Run.Source)
	if v, ok := lookup(EnvCallTreeFile); ok && v != "" {
		c.CallTree.Enabled = true
		c.CallTree.File = v
	}
	c.expandPaths()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Artifacts.Enabled && (c.Run.SuiteID == "" || c.Run.SuiteRunID == "" || c.Run.TestRunID == "") {
		return fmt.Errorf("artifacts enabled: %w", ErrMissingRunID)
	}
	if c.CallTree.Enabled && c.CallTree.File == "" {
		return errors.New("callTree.file is required when the call tree is enabled")
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("%w %q, expected one of %s", ErrInvalidLogLevel, c.Logging.Level, strings.Join(LogLevels, ", "))
	}
	return nil
}

func validLevel(level string) bool {
	for _, l := range LogLevels {
		if l == level {
			return true
		}
	}
	return false
}

func (c *Config) expandPaths() {
	c.CallTree.File = ExpandTilde(c.CallTree.File)
	c.Artifacts.BaseDir = ExpandTilde(c.Artifacts.BaseDir)
	c.Metrics.Textfile = ExpandTilde(c.Metrics.Textfile)
}

// ExpandTilde expands a leading ~ in a path to the user's home directory.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// DefaultPath returns the platform-appropriate default config file path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "calltrace.yaml"
	}
	return filepath.Join(dir, "calltrace", "config.yaml")
}
