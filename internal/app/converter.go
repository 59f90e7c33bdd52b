package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/posebake/internal/animation"
	"github.com/ayusman/posebake/internal/capture"
	"github.com/ayusman/posebake/internal/detector"
	"github.com/ayusman/posebake/internal/logging"
	"github.com/ayusman/posebake/internal/skeleton"
	"github.com/ayusman/posebake/internal/store"
)

// ErrNoClips is returned by ConvertAll when no video could be converted.
var ErrNoClips = errors.New("no video could be converted")

// Config holds the dependencies of a Converter.
type Config struct {
	Options  Options
	Detector detector.Detector
	// NewSource creates a fresh video source per conversion.
	// Defaults to capture.NewVideoSource.
	NewSource func() capture.Source
	// Store, when set, caches landmarks and records converted clips.
	Store    *store.Store
	Logger   *slog.Logger
	Observer Observer
}

// Report summarizes the conversion of one video.
type Report struct {
	Video        string        `json:"video"`
	Clip         string        `json:"clip"`
	ClipID       string        `json:"clip_id,omitempty"`
	Requested    int           `json:"requested"`
	Detected     int           `json:"detected"`
	Rejected     int           `json:"rejected"`
	Frames       int           `json:"frames"`
	Interpolated int           `json:"interpolated"`
	Degenerate   int           `json:"degenerate"`
	Elapsed      time.Duration `json:"elapsed"`
	Err          error         `json:"-"`
}

// Converter turns videos into animation clips.
type Converter struct {
	opts      Options
	detector  detector.Detector
	newSource func() capture.Source
	store     *store.Store
	logger    *slog.Logger
	observer  Observer
}

// New creates a Converter.
func New(cfg Config) *Converter {
	c := &Converter{
		opts:      cfg.Options,
		detector:  cfg.Detector,
		newSource: cfg.NewSource,
		store:     cfg.Store,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
	}
	if c.newSource == nil {
		c.newSource = capture.NewVideoSource
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	return c
}

// Options returns the conversion options.
func (c *Converter) Options() Options {
	return c.opts
}

// ClipName derives the clip name from a video path: the base name up to
// its first dot.
func ClipName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// ConvertAll converts every video into one document. A video that fails is
// logged and reported, and the remaining videos are still converted.
func (c *Converter) ConvertAll(ctx context.Context, paths []string) (*animation.Document, []Report, error) {
	doc := animation.NewDocument()
	reports := make([]Report, 0, len(paths))

	for _, path := range paths {
		clip, report, err := c.ConvertVideo(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, reports, ctxErr
			}
			c.logger.Error("video conversion failed", slog.String("video", path), logging.Error(err))
			report.Err = err
			reports = append(reports, report)
			continue
		}
		doc.Add(clip)
		reports = append(reports, report)
	}

	if len(paths) > 0 && len(doc.Clips()) == 0 {
		return nil, reports, ErrNoClips
	}
	return doc, reports, nil
}

// ConvertVideo samples, detects and converts a single video.
func (c *Converter) ConvertVideo(ctx context.Context, path string) (*animation.Clip, Report, error) {
	started := time.Now()
	name := ClipName(path)
	report := Report{Video: path, Clip: name}

	fail := func(err error) (*animation.Clip, Report, error) {
		report.Elapsed = time.Since(started)
		c.observer.emit(Event{Video: path, Clip: name, Stage: StageFailed, Error: err.Error()})
		return nil, report, err
	}

	if err := c.opts.Validate(); err != nil {
		return fail(err)
	}
	if c.detector == nil {
		return fail(errors.New("no pose detector configured"))
	}

	src := c.newSource()
	if err := src.Open(path); err != nil {
		return fail(err)
	}
	defer src.Close()

	length := capture.Length(src.FrameCount(), src.FPS())
	times := capture.SampleTimes(src.FrameCount(), src.FPS(), c.opts.SampleFPS)
	report.Requested = len(times)

	var sourceID string
	if c.store != nil {
		id, err := cachedSource(c.store, path, src, c.opts)
		if err != nil {
			c.logger.Warn("landmark cache unavailable", slog.String("video", path), logging.Error(err))
		}
		sourceID = id
	}

	c.logger.Info("estimating poses",
		slog.String("video", path),
		slog.Float64("length", length),
		slog.Int("samples", len(times)),
		slog.String("seek", string(c.opts.Seek)),
	)

	provider := NewVideoProvider(src, c.detector, c.store, sourceID, c.opts, c.logger)
	samples, err := Estimate(ctx, provider, times, func(done int) {
		c.observer.emit(Event{Video: path, Clip: name, Stage: StageEstimate, Done: done, Total: len(times)})
	})
	if err != nil {
		return fail(err)
	}
	for _, s := range samples {
		switch {
		case s.Detection != nil:
			report.Detected++
		case s.Rejected:
			report.Rejected++
		}
	}
	if report.Rejected > 0 {
		c.logger.Warn("rejected detections with non-finite landmarks",
			slog.String("video", path),
			slog.Int("rejected", report.Rejected),
		)
	}

	frames := ApplyGapPolicy(samples, c.opts.GapPolicy)
	c.observer.emit(Event{Video: path, Clip: name, Stage: StageConvert, Done: 0, Total: len(frames)})

	clip, stats, err := Assemble(ctx, name, length, frames, c.opts)
	if err != nil {
		return fail(err)
	}
	report.Frames = len(frames)
	report.Interpolated = stats.Interpolated
	report.Degenerate = stats.Degenerate
	if len(frames) < len(times) {
		c.logger.Warn("landmark sequence shorter than requested",
			slog.String("video", path),
			slog.Int("requested", len(times)),
			slog.Int("frames", len(frames)),
			slog.String("gap_policy", string(c.opts.GapPolicy)),
		)
	}

	if c.store != nil {
		id, err := c.record(path, clip, len(frames))
		if err != nil {
			c.logger.Warn("clip history write failed", slog.String("clip", name), logging.Error(err))
		}
		report.ClipID = id
	}

	report.Elapsed = time.Since(started)
	c.logger.Info("converted video",
		slog.String("video", path),
		slog.String("clip", name),
		slog.Int("frames", report.Frames),
		slog.Int("degenerate", report.Degenerate),
		slog.Duration("elapsed", report.Elapsed),
	)
	c.observer.emit(Event{Video: path, Clip: name, Stage: StageDone, Done: len(frames), Total: len(frames)})
	return clip, report, nil
}

func (c *Converter) record(path string, clip *animation.Clip, frames int) (string, error) {
	doc := animation.NewDocument()
	doc.Add(clip)
	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return "", err
	}
	rec := &store.Clip{
		Name:       clip.Name,
		SourcePath: path,
		Frames:     frames,
		Length:     clip.Length,
		Document:   buf.Bytes(),
	}
	if err := c.store.Clips().Create(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// AssembleStats counts what happened while assembling a clip.
type AssembleStats struct {
	Interpolated int
	Degenerate   int
}

// Assemble converts a landmark sequence into a clip: per-frame bone
// rotations, the degenerate policy, smoothing, and the optional root
// translation. Keyframe times are Index / SampleFPS seconds.
func Assemble(ctx context.Context, name string, length float64, frames []Frame, opts Options) (*animation.Clip, AssembleStats, error) {
	var stats AssembleStats
	clip := animation.NewClip(name, length, opts.Loop)
	if len(frames) == 0 {
		return clip, stats, nil
	}

	world := make([]detector.PoseLandmarks, len(frames))
	image := make([]detector.PoseLandmarks, len(frames))
	for i, f := range frames {
		world[i] = f.Detection.World
		image[i] = f.Detection.Image
		if f.Interpolated {
			stats.Interpolated++
		}
	}

	poses, err := skeleton.ConvertSequence(ctx, world, opts.Workers)
	if err != nil {
		return nil, stats, err
	}
	stats.Degenerate = applyDegeneratePolicy(poses, opts.DegeneratePolicy)
	if opts.Smooth {
		skeleton.Smooth(poses)
	}

	for i, pose := range poses {
		t := float64(frames[i].Index) / opts.SampleFPS
		for _, b := range skeleton.Bones {
			angles := pose[b].Angles
			if !angles.IsFinite() {
				continue
			}
			clip.AddKeyframe(b, animation.ChannelRotation, t, angles)
		}
	}

	if opts.AllowTranslate {
		summary, err := skeleton.Aggregate(image)
		if err != nil {
			return nil, stats, fmt.Errorf("translation statistics: %w", err)
		}
		tr, err := skeleton.NewTranslator(summary, opts.ReferenceHeight)
		if err != nil {
			return nil, stats, fmt.Errorf("translation: %w", err)
		}
		for i := range image {
			t := float64(frames[i].Index) / opts.SampleFPS
			pos := tr.Translate(&image[i])
			if !skeleton.Rotation(pos).IsFinite() {
				continue
			}
			clip.AddKeyframe(skeleton.Body, animation.ChannelPosition, t, pos)
		}
	}

	return clip, stats, nil
}

// applyDegeneratePolicy rewrites rotations of degenerate bones and returns
// how many bone rotations were degenerate. Dropped rotations become NaN so
// smoothing skips them and assembly leaves them out.
func applyDegeneratePolicy(poses []skeleton.Pose, policy DegeneratePolicy) int {
	count := 0
	var last [skeleton.NumBones]*skeleton.Rotation

	for i := range poses {
		for _, b := range skeleton.Bones {
			r := &poses[i][b]
			if r.Valid {
				last[b] = &r.Angles
				continue
			}
			count++

			switch policy {
			case DegenerateHold:
				if last[b] != nil {
					r.Angles = *last[b]
				}
			case DegenerateDrop:
				r.Angles = skeleton.Rotation{math.NaN(), math.NaN(), math.NaN()}
			}
		}
	}
	return count
}
