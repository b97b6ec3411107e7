package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Config represents the assetpipe configuration file.
type Config struct {
	// ModeEnv names the environment variable that selects the build mode.
	ModeEnv string        `yaml:"mode_env,omitempty"`
	Paths   PathsConfig   `yaml:"paths"`
	Styles  StylesConfig  `yaml:"styles"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Static  StaticConfig  `yaml:"static"`
	Assets  AssetsConfig  `yaml:"assets"`
	Serve   ServeConfig   `yaml:"serve"`
	Watch   WatchConfig   `yaml:"watch"`
	Notify  NotifyConfig  `yaml:"notify"`
	History HistoryConfig `yaml:"history"`
}

// PathsConfig holds the directories shared by every task.
type PathsConfig struct {
	Source   string `yaml:"source"`
	Output   string `yaml:"output"`
	Manifest string `yaml:"manifest"`
}

// StylesConfig configures the stylesheet compiler task.
type StylesConfig struct {
	Entry     string   `yaml:"entry"`
	OutputDir string   `yaml:"output_dir"` // relative to paths.output
	LoadPaths []string `yaml:"load_paths,omitempty"`
	Manifest  string   `yaml:"manifest"`
	Watch     string   `yaml:"watch"`
	SassBin   string   `yaml:"sass_binary,omitempty"`
}

// ScriptsConfig configures the bundler task.
type ScriptsConfig struct {
	Entries    map[string]string `yaml:"entries"`
	OutputDir  string            `yaml:"output_dir"` // relative to paths.output
	PublicPath string            `yaml:"public_path"`
	Manifest   string            `yaml:"manifest"`
	Target     string            `yaml:"target"`
}

// StaticConfig configures the incremental image copier.
type StaticConfig struct {
	Pattern   string `yaml:"pattern"`
	OutputDir string `yaml:"output_dir"` // relative to paths.output
}

// AssetsConfig configures the HTML reference rewriter.
type AssetsConfig struct {
	Pattern string `yaml:"pattern"`
}

// ServeConfig configures the development server.
type ServeConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port"`
	LiveReload bool   `yaml:"live_reload"`
	Metrics    bool   `yaml:"metrics"`
}

// WatchConfig configures source watching in development mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// NotifyConfig configures the notification fan-out. Desktop notifications
// and NATS are optional.
type NotifyConfig struct {
	Desktop bool   `yaml:"desktop"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// HistoryConfig configures the SQLite task run history store.
type HistoryConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// StylesOutputDir returns the directory compiled CSS is written to.
func (c *Config) StylesOutputDir() string {
	return filepath.Join(c.Paths.Output, c.Styles.OutputDir)
}

// ScriptsOutputDir returns the directory bundles are written to.
func (c *Config) ScriptsOutputDir() string {
	return filepath.Join(c.Paths.Output, c.Scripts.OutputDir)
}

// StaticOutputDir returns the directory copied images are written to.
func (c *Config) StaticOutputDir() string {
	return filepath.Join(c.Paths.Output, c.Static.OutputDir)
}

// StylesManifestPath returns the on-disk path of the styles manifest.
func (c *Config) StylesManifestPath() string {
	return filepath.Join(c.Paths.Manifest, c.Styles.Manifest)
}

// ScriptsManifestPath returns the on-disk path of the scripts manifest.
func (c *Config) ScriptsManifestPath() string {
	return filepath.Join(c.Paths.Manifest, c.Scripts.Manifest)
}

// Load loads configuration from the specified file. A missing file is not an
// error: the conventional src/ → dist/ layout is used instead.
func Load(configPath string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		slog.Debug("Configuration file not found, using defaults", "path", configPath)
	case err != nil:
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			Fatal().WithContext("path", configPath).Build()
	default:
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config file").
				Fatal().WithContext("path", configPath).Build()
		}
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).
			WithContext("path", configPath).Build()
	}

	example := Default()
	example.Styles.LoadPaths = []string{"src/css", "node_modules"}
	example.Notify.Subject = "assetpipe.notifications"
	example.Notify.Desktop = true
	example.Serve.Metrics = true

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to create config directory").
				WithContext("path", dir).Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}
