package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/pagerender/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "pagerender.json"

	// YAMLConfigFileName is the name of the YAML configuration file.
	YAMLConfigFileName = "pagerender.yaml"

	// DefaultAddr is the default server address.
	DefaultAddr = ":3000"

	// DefaultOutDir is the default prerender output directory.
	DefaultOutDir = "dist/client"

	// DefaultParallel is the default number of pages prerendered at once.
	DefaultParallel = 4
)

// Config represents a pagerender.json or pagerender.yaml file.
type Config struct {
	// BaseURL is the URL prefix the app is served under.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// BaseAssets is the prefix of asset URLs. It defaults to BaseURL.
	BaseAssets string `json:"baseAssets,omitempty" yaml:"baseAssets,omitempty"`

	// Production selects manifest-based asset resolution.
	Production bool `json:"production,omitempty" yaml:"production,omitempty"`

	// TrailingSlash, when set, redirects URLs to the form with (true) or
	// without (false) a trailing slash.
	TrailingSlash *bool `json:"trailingSlash,omitempty" yaml:"trailingSlash,omitempty"`

	// Redirects maps route strings to redirect targets. Targets may use the
	// parameters and the catch-all of their source.
	Redirects map[string]string `json:"redirects,omitempty" yaml:"redirects,omitempty"`

	Manifest  ManifestConfig  `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Server    ServerConfig    `json:"server,omitempty" yaml:"server,omitempty"`
	Dev       DevConfig       `json:"dev,omitempty" yaml:"dev,omitempty"`
	Prerender PrerenderConfig `json:"prerender,omitempty" yaml:"prerender,omitempty"`
	Log       LogConfig       `json:"log,omitempty" yaml:"log,omitempty"`

	// configPath is where this config was loaded from
	configPath string
}

// ManifestConfig locates the bundler output.
type ManifestConfig struct {
	// Client is the path of the client manifest, relative to the project.
	Client string `json:"client,omitempty" yaml:"client,omitempty"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// DevConfig configures development mode.
type DevConfig struct {
	// LiveReload injects the reload client into every page.
	LiveReload bool `json:"liveReload,omitempty" yaml:"liveReload,omitempty"`

	// Watch lists extra files and directories whose changes reload the
	// browser, relative to the config file.
	Watch []string `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// PrerenderConfig configures static generation.
type PrerenderConfig struct {
	OutDir   string `json:"outDir,omitempty" yaml:"outDir,omitempty"`
	Parallel int    `json:"parallel,omitempty" yaml:"parallel,omitempty"`

	// Partial tolerates parameterized pages without prerender hooks.
	Partial bool `json:"partial,omitempty" yaml:"partial,omitempty"`

	// NoExtraDir writes /about.html instead of /about/index.html.
	NoExtraDir bool `json:"noExtraDir,omitempty" yaml:"noExtraDir,omitempty"`

	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config selects an S3 bucket as prerender output.
type S3Config struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint targets S3-compatible stores such as MinIO.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		BaseURL: "/",
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Prerender: PrerenderConfig{
			OutDir:   DefaultOutDir,
			Parallel: DefaultParallel,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// pagerender.yaml, then pagerender.json.
func Load(dir string) (*Config, error) {
	yamlPath := filepath.Join(dir, YAMLConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return LoadFile(yamlPath)
	}
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. The format
// follows the file extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or " + YAMLConfigFileName + " at the project root")
		}
		return nil, errors.New(errors.CodeConfigNotFound).Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.New(errors.CodeConfigParse).
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid YAML").
				Wrap(err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path, as YAML or JSON depending on
// the extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "/"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Prerender.OutDir == "" {
		c.Prerender.OutDir = DefaultOutDir
	}
	if c.Prerender.Parallel == 0 {
		c.Prerender.Parallel = DefaultParallel
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "/") && !strings.Contains(c.BaseURL, "://") {
		return errors.New(errors.CodeConfigInvalid).
			WithDetailf("baseUrl %q must start with / or be a full URL", c.BaseURL)
	}
	if c.Prerender.Parallel < 0 {
		return errors.New(errors.CodeConfigInvalid).
			WithDetail("prerender.parallel must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New(errors.CodeConfigInvalid).
			WithDetailf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New(errors.CodeConfigInvalid).
			WithDetailf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// ManifestPath returns the absolute path of the client manifest, or "".
func (c *Config) ManifestPath() string {
	if c.Manifest.Client == "" {
		return ""
	}
	if filepath.IsAbs(c.Manifest.Client) {
		return c.Manifest.Client
	}
	return filepath.Join(c.Dir(), c.Manifest.Client)
}

// OutDir returns the absolute path of the prerender output directory.
func (c *Config) OutDir() string {
	if filepath.IsAbs(c.Prerender.OutDir) {
		return c.Prerender.OutDir
	}
	return filepath.Join(c.Dir(), c.Prerender.OutDir)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{YAMLConfigFileName, ConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing the config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigNotFound).
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
