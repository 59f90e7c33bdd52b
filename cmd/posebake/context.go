package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ayusman/posebake/internal/capture"
	"github.com/ayusman/posebake/internal/config"
	"github.com/ayusman/posebake/internal/detector"
	"github.com/ayusman/posebake/internal/logging"
	"github.com/ayusman/posebake/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// Replaced in tests.
	newDetector func(detector.Config) (detector.Detector, error)
	newSource   func() capture.Source
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		newDetector: func(cfg detector.Config) (detector.Detector, error) {
			return detector.NewMediaPipeDetector(cfg)
		},
		newSource: capture.NewVideoSource,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := cfg.LoggingOptions()
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		if !logging.ValidLevel(*c.logLevelFlag) {
			return nil, fmt.Errorf("log level: unsupported value %q", *c.logLevelFlag)
		}
		opts.Level = *c.logLevelFlag
	}
	opts.OutputPaths = []string{"stderr"}
	return logging.New(opts)
}

func (c *commandContext) openStore() (*store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Paths.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Paths.StorePath, err)
	}
	return st, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
