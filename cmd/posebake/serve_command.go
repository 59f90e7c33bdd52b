package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if bind == "" {
				bind = cfg.Server.Bind
			}

			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			staticDir := cfg.Server.StaticDir
			if staticDir == "" {
				staticDir = findWebDir()
			}
			if staticDir != "" {
				logger.Info("serving static files", slog.String("dir", staticDir))
			}

			det, err := ctx.newDetector(cfg.DetectorConfig())
			if err != nil {
				return fmt.Errorf("start pose detector: %w", err)
			}
			defer det.Close()

			opts := cfg.ConversionOptions()
			srv := server.New(server.Config{
				StaticDir: staticDir,
				Store:     st,
				NewSource: ctx.newSource,
				SampleFPS: opts.SampleFPS,
				Logger:    logger,
				NewConverter: func(observer app.Observer) *app.Converter {
					return app.New(app.Config{
						Options:   opts,
						Detector:  det,
						NewSource: ctx.newSource,
						Store:     st,
						Logger:    logger,
						Observer:  observer,
					})
				},
			})

			return srv.ListenAndServe(cmd.Context(), bind)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to server.bind)")
	return cmd
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web" and ~/.posebake/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".posebake", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
