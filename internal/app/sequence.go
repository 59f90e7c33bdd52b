package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/posebake/internal/detector"
)

// Sample is the provider result for one requested timestamp.
type Sample struct {
	Index     int
	Time      time.Duration
	Detection *detector.Detection
	// Rejected is set when the provider returned landmarks with non-finite
	// coordinates. Detection is nil then and the sample counts as a gap.
	Rejected bool
}

// Frame is one entry of the landmark sequence handed to conversion.
type Frame struct {
	Index        int
	Detection    detector.Detection
	Interpolated bool
}

// Estimate queries the provider for each timestamp in order and stops at the
// end of the stream. progress, when set, is called after every timestamp.
// Detections with non-finite landmarks are rejected and become gaps.
func Estimate(ctx context.Context, p Provider, times []time.Duration, progress func(done int)) ([]Sample, error) {
	samples := make([]Sample, 0, len(times))
	for i, t := range times {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		det, err := p.Landmarks(ctx, t)
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, err
		}

		sample := Sample{Index: i, Time: t, Detection: det}
		if det != nil && det.Validate() != nil {
			sample.Detection = nil
			sample.Rejected = true
		}
		samples = append(samples, sample)
		if progress != nil {
			progress(i + 1)
		}
	}
	return samples, nil
}

// ApplyGapPolicy turns provider samples into a gap-free landmark sequence.
func ApplyGapPolicy(samples []Sample, policy GapPolicy) []Frame {
	switch policy {
	case GapSkip:
		return skipGaps(samples)
	case GapInterpolate:
		return interpolateGaps(samples)
	default:
		return truncateAtGap(samples)
	}
}

func truncateAtGap(samples []Sample) []Frame {
	frames := make([]Frame, 0, len(samples))
	for _, s := range samples {
		if s.Detection == nil {
			break
		}
		frames = append(frames, Frame{Index: s.Index, Detection: *s.Detection})
	}
	return frames
}

func skipGaps(samples []Sample) []Frame {
	frames := make([]Frame, 0, len(samples))
	for _, s := range samples {
		if s.Detection != nil {
			frames = append(frames, Frame{Index: s.Index, Detection: *s.Detection})
		}
	}
	return frames
}

// interpolateGaps fills each missing sample between two detections by
// linear interpolation over the sample index. Leading and trailing gaps have
// only one neighbour and are dropped.
func interpolateGaps(samples []Sample) []Frame {
	frames := make([]Frame, 0, len(samples))
	prev := -1
	for i, s := range samples {
		if s.Detection == nil {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			a, b := samples[prev], s
			span := float64(b.Index - a.Index)
			for j := prev + 1; j < i; j++ {
				frac := float64(samples[j].Index-a.Index) / span
				frames = append(frames, Frame{
					Index:        samples[j].Index,
					Detection:    a.Detection.Interpolate(*b.Detection, frac),
					Interpolated: true,
				})
			}
		}
		frames = append(frames, Frame{Index: s.Index, Detection: *s.Detection})
		prev = i
	}
	return frames
}
