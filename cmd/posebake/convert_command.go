package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ayusman/posebake/internal/animation"
	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/logging"
	"github.com/ayusman/posebake/internal/store"
)

type convertFlags struct {
	output           string
	appendOutput     bool
	fps              float64
	noSmooth         bool
	translate        bool
	loop             bool
	gapPolicy        string
	degeneratePolicy string
	seek             string
	workers          int
	referenceHeight  float64
	noCache          bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert VIDEO...",
		Short: "Convert videos into one animation document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			opts, err := flags.apply(cmd, cfg.ConversionOptions())
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			det, err := ctx.newDetector(cfg.DetectorConfig())
			if err != nil {
				return fmt.Errorf("start pose detector: %w", err)
			}
			defer det.Close()

			var st *store.Store
			if cfg.Conversion.Cache && !flags.noCache {
				st, err = ctx.openStore()
				if err != nil {
					logger.Warn("landmark cache disabled", logging.Error(err))
				} else {
					defer st.Close()
				}
			}

			progress := newProgressObserver(cmd.ErrOrStderr())
			defer progress.finish()

			conv := app.New(app.Config{
				Options:   opts,
				Detector:  det,
				NewSource: ctx.newSource,
				Store:     st,
				Logger:    logger,
				Observer:  progress.observe,
			})

			doc, reports, err := conv.ConvertAll(cmd.Context(), args)
			progress.finish()
			if len(reports) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderReports(reports))
			}
			if err != nil {
				return err
			}

			if err := animation.UpdateFile(flags.output, flags.appendOutput, func(existing *animation.Document) error {
				existing.Merge(doc)
				return nil
			}); err != nil {
				return fmt.Errorf("write %s: %w", flags.output, err)
			}

			logger.Info("animation written",
				slog.String("output", flags.output),
				slog.Int("clips", len(doc.Clips())),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d clip(s) to %s\n", len(doc.Clips()), flags.output)
			return failedVideos(reports)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", "", "Output animation file")
	f.BoolVar(&flags.appendOutput, "append", false, "Merge clips into an existing output file")
	f.Float64Var(&flags.fps, "fps", 0, "Sampling rate in frames per second")
	f.BoolVar(&flags.noSmooth, "no-smooth", false, "Disable angle smoothing")
	f.BoolVar(&flags.translate, "translate", false, "Emit root translation keyframes for Body")
	f.BoolVar(&flags.loop, "loop", false, "Mark clips as looping")
	f.StringVar(&flags.gapPolicy, "gap-policy", "", "Missing detections: truncate, skip or interpolate")
	f.StringVar(&flags.degeneratePolicy, "degenerate-policy", "", "Degenerate bones: emit, hold or drop")
	f.StringVar(&flags.seek, "seek", "", "Frame lookup: time or frame")
	f.IntVar(&flags.workers, "workers", 0, "Conversion workers (0 uses every CPU)")
	f.Float64Var(&flags.referenceHeight, "reference-height", 0, "Body height of the target model")
	f.BoolVar(&flags.noCache, "no-cache", false, "Do not read or write the landmark cache")
	cmd.MarkFlagRequired("output")

	return cmd
}

// apply overrides the configured options with the flags the user set.
func (f convertFlags) apply(cmd *cobra.Command, opts app.Options) (app.Options, error) {
	changed := cmd.Flags().Changed
	if changed("fps") {
		opts.SampleFPS = f.fps
	}
	if changed("no-smooth") {
		opts.Smooth = !f.noSmooth
	}
	if changed("translate") {
		opts.AllowTranslate = f.translate
	}
	if changed("loop") {
		opts.Loop = f.loop
	}
	if changed("gap-policy") {
		p, err := app.ParseGapPolicy(f.gapPolicy)
		if err != nil {
			return opts, err
		}
		opts.GapPolicy = p
	}
	if changed("degenerate-policy") {
		p, err := app.ParseDegeneratePolicy(f.degeneratePolicy)
		if err != nil {
			return opts, err
		}
		opts.DegeneratePolicy = p
	}
	if changed("seek") {
		m, err := app.ParseSeekMode(f.seek)
		if err != nil {
			return opts, err
		}
		opts.Seek = m
	}
	if changed("workers") {
		opts.Workers = f.workers
	}
	if changed("reference-height") {
		opts.ReferenceHeight = f.referenceHeight
	}
	return opts, nil
}

func renderReports(reports []app.Report) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Video,
			r.Clip,
			strconv.Itoa(r.Frames),
			strconv.Itoa(r.Requested),
			strconv.Itoa(r.Degenerate),
			status,
		})
	}
	return renderTable(
		[]string{"Video", "Clip", "Frames", "Requested", "Degenerate", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func failedVideos(reports []app.Report) error {
	var errs []error
	for _, r := range reports {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Video, r.Err))
		}
	}
	return errors.Join(errs...)
}
