// Package app runs the video to animation conversion pipeline.
package app

import (
	"fmt"
	"strings"

	"github.com/ayusman/posebake/internal/skeleton"
)

// GapPolicy decides what happens to sampled timestamps without a detection.
type GapPolicy string

const (
	// GapTruncate ends the clip at the first missing detection.
	GapTruncate GapPolicy = "truncate"
	// GapSkip drops missing samples and keeps the others at their timestamps.
	GapSkip GapPolicy = "skip"
	// GapInterpolate fills interior gaps from the surrounding detections.
	GapInterpolate GapPolicy = "interpolate"
)

// ParseGapPolicy parses a policy name; the empty string means GapTruncate.
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch p := GapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return GapTruncate, nil
	case GapTruncate, GapSkip, GapInterpolate:
		return p, nil
	}
	return "", fmt.Errorf("unknown gap policy %q (want truncate, skip or interpolate)", s)
}

// DegeneratePolicy decides what happens to rotations of bones whose frame
// could not be built.
type DegeneratePolicy string

const (
	// DegenerateEmit writes the rotation derived from the zero axes.
	DegenerateEmit DegeneratePolicy = "emit"
	// DegenerateHold repeats the bone's last valid rotation.
	DegenerateHold DegeneratePolicy = "hold"
	// DegenerateDrop omits the keyframe.
	DegenerateDrop DegeneratePolicy = "drop"
)

// ParseDegeneratePolicy parses a policy name; the empty string means DegenerateEmit.
func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch p := DegeneratePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DegenerateEmit, nil
	case DegenerateEmit, DegenerateHold, DegenerateDrop:
		return p, nil
	}
	return "", fmt.Errorf("unknown degenerate policy %q (want emit, hold or drop)", s)
}

// SeekMode decides how a sample timestamp is located in the video.
type SeekMode string

const (
	// SeekTime seeks by position in milliseconds.
	SeekTime SeekMode = "time"
	// SeekFrame seeks to the frame index nearest the timestamp, which is
	// frame-accurate on containers whose millisecond seeking is not.
	SeekFrame SeekMode = "frame"
)

// ParseSeekMode parses a seek mode; the empty string means SeekTime.
func ParseSeekMode(s string) (SeekMode, error) {
	switch m := SeekMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SeekTime, nil
	case SeekTime, SeekFrame:
		return m, nil
	}
	return "", fmt.Errorf("unknown seek mode %q (want time or frame)", s)
}

// Options controls a conversion.
type Options struct {
	SampleFPS        float64
	Smooth           bool
	AllowTranslate   bool
	Loop             bool
	GapPolicy        GapPolicy
	DegeneratePolicy DegeneratePolicy
	Seek             SeekMode
	// Workers bounds the per-frame rotation goroutines; 0 means GOMAXPROCS.
	Workers         int
	ReferenceHeight float64
	// ModelComplexity is part of the landmark cache key.
	ModelComplexity int
}

// DefaultOptions returns the default conversion options.
func DefaultOptions() Options {
	return Options{
		SampleFPS:        20,
		Smooth:           true,
		GapPolicy:        GapTruncate,
		DegeneratePolicy: DegenerateEmit,
		Seek:             SeekTime,
		ReferenceHeight:  skeleton.DefaultReferenceHeight,
		ModelComplexity:  1,
	}
}

// Validate reports option values the pipeline cannot work with.
func (o Options) Validate() error {
	if o.SampleFPS <= 0 {
		return fmt.Errorf("sample fps must be positive, got %v", o.SampleFPS)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	if o.ReferenceHeight < 0 {
		return fmt.Errorf("reference height must not be negative, got %v", o.ReferenceHeight)
	}
	if _, err := ParseGapPolicy(string(o.GapPolicy)); err != nil {
		return err
	}
	if _, err := ParseDegeneratePolicy(string(o.DegeneratePolicy)); err != nil {
		return err
	}
	if _, err := ParseSeekMode(string(o.Seek)); err != nil {
		return err
	}
	return nil
}
