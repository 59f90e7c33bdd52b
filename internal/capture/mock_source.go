package capture

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource serves blank frames for a video of a given length, for testing.
type MockSource struct {
	fps        float64
	frameCount int
	mu         sync.Mutex
	running    bool
	reads      []int
	seeks      int
	openErr    error
}

// NewMockSource creates a MockSource with the given frame rate and frame count.
func NewMockSource(fps float64, frameCount int) *MockSource {
	return &MockSource{
		fps:        fps,
		frameCount: frameCount,
	}
}

// SetOpenError makes the next Open calls fail with err.
func (s *MockSource) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

func (s *MockSource) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.running = true
	s.reads = nil
	s.seeks = 0
	return nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MockSource) ReadAt(t time.Duration) (*gocv.Mat, error) {
	return s.read(int(math.Round(t.Seconds() * s.fps)))
}

func (s *MockSource) ReadFrame(index int) (*gocv.Mat, error) {
	s.mu.Lock()
	s.seeks++
	s.mu.Unlock()
	return s.read(index)
}

func (s *MockSource) read(index int) (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrSourceNotOpen
	}
	if index < 0 || index >= s.frameCount {
		return nil, fmt.Errorf("frame %d of %d: %w", index, s.frameCount, ErrNoFrame)
	}

	s.reads = append(s.reads, index)
	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	return &mat, nil
}

func (s *MockSource) FPS() float64 { return s.fps }

func (s *MockSource) FrameCount() int { return s.frameCount }

func (s *MockSource) Duration() time.Duration { return durationOf(s.frameCount, s.fps) }

func (s *MockSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reads returns the frame indices served so far.
func (s *MockSource) Reads() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.reads))
	copy(out, s.reads)
	return out
}

// FrameSeeks returns how many reads since Open went through ReadFrame.
func (s *MockSource) FrameSeeks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}
