package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeLogging()
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StorePath) == "" {
		c.Paths.StorePath = filepath.Join(c.Paths.DataDir, defaultStoreFile)
	}
	if c.Paths.StorePath, err = expandPath(c.Paths.StorePath); err != nil {
		return fmt.Errorf("paths.store_path: %w", err)
	}
	if c.Server.StaticDir, err = expandPath(c.Server.StaticDir); err != nil {
		return fmt.Errorf("server.static_dir: %w", err)
	}
	if c.Detector.Script, err = expandPath(c.Detector.Script); err != nil {
		return fmt.Errorf("detector.script: %w", err)
	}
	return nil
}

func (c *Config) normalizeConversion() {
	c.Conversion.GapPolicy = strings.ToLower(strings.TrimSpace(c.Conversion.GapPolicy))
	if c.Conversion.GapPolicy == "" {
		c.Conversion.GapPolicy = "truncate"
	}
	c.Conversion.DegeneratePolicy = strings.ToLower(strings.TrimSpace(c.Conversion.DegeneratePolicy))
	if c.Conversion.DegeneratePolicy == "" {
		c.Conversion.DegeneratePolicy = "emit"
	}
	c.Conversion.Seek = strings.ToLower(strings.TrimSpace(c.Conversion.Seek))
	if c.Conversion.Seek == "" {
		c.Conversion.Seek = "time"
	}
	if c.Conversion.ReferenceHeight == 0 {
		c.Conversion.ReferenceHeight = 12
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
