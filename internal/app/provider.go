package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/posebake/internal/capture"
	"github.com/ayusman/posebake/internal/detector"
	"github.com/ayusman/posebake/internal/logging"
	"github.com/ayusman/posebake/internal/store"
)

// ErrEndOfStream is returned by a Provider when no frame exists at the
// requested time. The sequence ends there.
var ErrEndOfStream = errors.New("end of stream")

// Provider yields pose landmarks for a point in time. A nil detection with
// a nil error means the frame was read but nobody was found in it.
type Provider interface {
	Landmarks(ctx context.Context, t time.Duration) (*detector.Detection, error)
}

// VideoProvider reads frames from a video source and runs them through a
// detector, optionally caching results in the store.
type VideoProvider struct {
	source    capture.Source
	detector  detector.Detector
	cache     *store.LandmarkRepository
	sourceID  string
	sampleFPS float64
	seek      SeekMode
	logger    *slog.Logger
}

// NewVideoProvider creates a provider over an opened source. cache may be nil.
// opts supplies the sampling rate and seek mode.
func NewVideoProvider(source capture.Source, det detector.Detector, cache *store.Store, sourceID string, opts Options, logger *slog.Logger) *VideoProvider {
	p := &VideoProvider{
		source:    source,
		detector:  det,
		sourceID:  sourceID,
		sampleFPS: opts.SampleFPS,
		seek:      opts.Seek,
		logger:    logger,
	}
	if cache != nil && sourceID != "" {
		p.cache = cache.Landmarks()
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	return p
}

// Landmarks implements Provider.
func (p *VideoProvider) Landmarks(ctx context.Context, t time.Duration) (*detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index := int(math.Round(t.Seconds() * p.sampleFPS))
	if p.cache != nil {
		f, err := p.cache.Get(p.sourceID, index)
		switch {
		case err == nil:
			return f.Detection, nil
		case !errors.Is(err, store.ErrNotFound):
			p.logger.Warn("landmark cache read failed", slog.Int("frame", index), logging.Error(err))
		}
	}

	frame, err := p.read(t)
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read frame at %v: %w", t, err)
	}
	defer frame.Close()

	det, err := p.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect pose at %v: %w", t, err)
	}

	if p.cache != nil {
		if err := p.cache.Put(p.sourceID, &store.LandmarkFrame{Index: index, Timestamp: t, Detection: det}); err != nil {
			p.logger.Warn("landmark cache write failed", slog.Int("frame", index), logging.Error(err))
		}
	}
	return det, nil
}

// read decodes the frame for t, by position or by the nearest frame index.
func (p *VideoProvider) read(t time.Duration) (*gocv.Mat, error) {
	if p.seek == SeekFrame {
		return p.source.ReadFrame(int(math.Round(t.Seconds() * p.source.FPS())))
	}
	return p.source.ReadAt(t)
}

// cachedSource looks up or registers the store entry for the video at path.
func cachedSource(s *store.Store, path string, src capture.Source, opts Options) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	key := store.SourceKey{
		Path:            path,
		Size:            info.Size(),
		ModTime:         info.ModTime(),
		SampleFPS:       opts.SampleFPS,
		ModelComplexity: opts.ModelComplexity,
		Seek:            string(opts.Seek),
	}
	existing, err := s.Sources().GetByKey(key)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	rec := &store.Source{
		Path:            key.Path,
		Size:            key.Size,
		ModTime:         key.ModTime,
		FPS:             src.FPS(),
		FrameCount:      src.FrameCount(),
		SampleFPS:       key.SampleFPS,
		ModelComplexity: key.ModelComplexity,
		Seek:            key.Seek,
	}
	if err := s.Sources().Create(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}
