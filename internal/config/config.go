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

	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/detector"
	"github.com/ayusman/posebake/internal/logging"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	StorePath string `toml:"store_path"`
}

// Server contains the HTTP API settings.
type Server struct {
	Bind      string `toml:"bind"`
	StaticDir string `toml:"static_dir"`
}

// Detector contains the pose model settings.
type Detector struct {
	ModelComplexity       int     `toml:"model_complexity"`
	MinConfidence         float64 `toml:"min_confidence"`
	MinTrackingConfidence float64 `toml:"min_tracking_confidence"`
	Python                string  `toml:"python"`
	Script                string  `toml:"script"`
}

// Conversion contains the defaults for turning videos into clips.
type Conversion struct {
	SampleFPS        float64 `toml:"sample_fps"`
	Smooth           bool    `toml:"smooth"`
	Translate        bool    `toml:"translate"`
	Loop             bool    `toml:"loop"`
	GapPolicy        string  `toml:"gap_policy"`
	DegeneratePolicy string  `toml:"degenerate_policy"`
	Seek             string  `toml:"seek"`
	Workers          int     `toml:"workers"`
	ReferenceHeight  float64 `toml:"reference_height"`
	// Cache stores detected landmarks so repeated conversions skip the detector.
	Cache bool `toml:"cache"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for posebake.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Server     Server     `toml:"server"`
	Detector   Detector   `toml:"detector"`
	Conversion Conversion `toml:"conversion"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. The returned config has all path fields expanded.
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
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// ConversionOptions returns the pipeline options described by the config.
func (c *Config) ConversionOptions() app.Options {
	return app.Options{
		SampleFPS:        c.Conversion.SampleFPS,
		Smooth:           c.Conversion.Smooth,
		AllowTranslate:   c.Conversion.Translate,
		Loop:             c.Conversion.Loop,
		GapPolicy:        app.GapPolicy(c.Conversion.GapPolicy),
		DegeneratePolicy: app.DegeneratePolicy(c.Conversion.DegeneratePolicy),
		Seek:             app.SeekMode(c.Conversion.Seek),
		Workers:          c.Conversion.Workers,
		ReferenceHeight:  c.Conversion.ReferenceHeight,
		ModelComplexity:  c.Detector.ModelComplexity,
	}
}

// DetectorConfig returns the pose detector settings.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		ModelComplexity: c.Detector.ModelComplexity,
		MinConfidence:   c.Detector.MinConfidence,
		MinTrackingConf: c.Detector.MinTrackingConfidence,
		Python:          c.Detector.Python,
		Script:          c.Detector.Script,
	}
}

// LoggingOptions returns the logger construction parameters.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
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

// EnsureDirectories creates the data directory and the store's parent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, filepath.Dir(c.Paths.StorePath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is left alone unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}

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
