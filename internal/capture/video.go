// Package capture provides video frame sampling using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrSourceNotOpen is returned when trying to read from a source that is not open.
var ErrSourceNotOpen = errors.New("video source is not open")

// ErrNoFrame is returned when no frame can be decoded at the requested
// position, typically because the position lies past the end of the video.
var ErrNoFrame = errors.New("no frame at requested position")

// Source defines the interface for video frame sources.
type Source interface {
	Open(path string) error
	Close() error
	// ReadAt decodes the frame shown at timestamp t.
	// The caller is responsible for closing the returned Mat.
	ReadAt(t time.Duration) (*gocv.Mat, error)
	// ReadFrame decodes the frame with the given zero-based index.
	ReadFrame(index int) (*gocv.Mat, error)
	FPS() float64
	FrameCount() int
	Duration() time.Duration
	IsOpen() bool
}

// videoSource reads frames from a video file using GoCV.
type videoSource struct {
	path       string
	capture    *gocv.VideoCapture
	mu         sync.Mutex
	fps        float64
	frameCount int
}

// NewVideoSource creates a Source backed by a video file.
func NewVideoSource() Source {
	return &videoSource{}
}

// Open opens the video file and reads its frame rate and frame count.
func (v *videoSource) Open(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture != nil {
		v.capture.Close()
		v.capture = nil
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open video %s: not readable", path)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || math.IsNaN(fps) {
		capture.Close()
		return fmt.Errorf("open video %s: invalid frame rate %v", path, fps)
	}

	v.path = path
	v.capture = capture
	v.fps = fps
	v.frameCount = int(capture.Get(gocv.VideoCaptureFrameCount))

	return nil
}

// Close closes the video and releases resources.
func (v *videoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return nil
	}

	err := v.capture.Close()
	v.capture = nil
	return err
}

// ReadAt seeks to timestamp t and decodes one frame.
func (v *videoSource) ReadAt(t time.Duration) (*gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return nil, ErrSourceNotOpen
	}

	v.capture.Set(gocv.VideoCapturePosMsec, float64(t)/float64(time.Millisecond))
	return v.read()
}

// ReadFrame seeks to the given frame index and decodes one frame.
func (v *videoSource) ReadFrame(index int) (*gocv.Mat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.capture == nil {
		return nil, ErrSourceNotOpen
	}
	if index < 0 {
		return nil, fmt.Errorf("frame index %d: %w", index, ErrNoFrame)
	}

	v.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	return v.read()
}

func (v *videoSource) read() (*gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := v.capture.Read(&mat); !ok {
		mat.Close()
		return nil, ErrNoFrame
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	return &mat, nil
}

// FPS returns the native frame rate of the opened video.
func (v *videoSource) FPS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fps
}

// FrameCount returns the number of frames reported by the container.
func (v *videoSource) FrameCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frameCount
}

// Duration returns frameCount / fps.
func (v *videoSource) Duration() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return durationOf(v.frameCount, v.fps)
}

// IsOpen returns true if a video is currently open.
func (v *videoSource) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.capture != nil
}

func durationOf(frames int, fps float64) time.Duration {
	if fps <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(frames) / fps * float64(time.Second)))
}

// Length returns the video length in seconds as frameCount / fps.
func Length(frameCount int, fps float64) float64 {
	if fps <= 0 || frameCount <= 0 {
		return 0
	}
	return float64(frameCount) / fps
}

// SampleTimes returns the timestamps i/sampleFPS for every i with
// i < floor(frameCount / fps * sampleFPS). The count is taken from the
// frame count, not from a rounded Duration, so an exact product such as
// 100 frames at 30fps sampled at 15fps keeps its last sample.
func SampleTimes(frameCount int, fps, sampleFPS float64) []time.Duration {
	if sampleFPS <= 0 {
		return nil
	}
	n := int(Length(frameCount, fps) * sampleFPS)
	times := make([]time.Duration, n)
	for i := range times {
		times[i] = time.Duration(math.Round(float64(i) / sampleFPS * float64(time.Second)))
	}
	return times
}
