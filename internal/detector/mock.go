package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu       sync.Mutex
	fixed    *Detection
	sequence []*Detection
	calls    int
	err      error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetection sets the detection returned by every call to Detect.
func (m *MockDetector) SetDetection(d *Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = d
	m.sequence = nil
}

// SetSequence sets detections returned by successive calls to Detect.
// A nil entry simulates a frame without a person. Once the sequence is
// exhausted Detect reports no detection.
func (m *MockDetector) SetSequence(seq []*Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
	m.fixed = nil
	m.calls = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured detection or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	idx := m.calls
	m.calls++

	if m.sequence != nil {
		if idx >= len(m.sequence) {
			return nil, nil
		}
		return m.sequence[idx], nil
	}
	return m.fixed, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// TPoseWorldLandmarks returns world-space landmarks of a person facing the
// camera, standing upright with both arms held out horizontally.
// Coordinates follow MediaPipe: metres, hip-centred, Y pointing down,
// the subject's left side towards +X and the camera towards -Z.
// Elbows stay in the shoulder plane; wrists and hands sit slightly forward
// so the forearm frames stay well defined.
func TPoseWorldLandmarks() PoseLandmarks {
	var lm PoseLandmarks

	// Face
	lm.Points[Nose] = Point3D{X: 0.0, Y: -0.63, Z: -0.12}
	lm.Points[LeftEyeInner] = Point3D{X: 0.015, Y: -0.65, Z: -0.1}
	lm.Points[LeftEye] = Point3D{X: 0.03, Y: -0.65, Z: -0.1}
	lm.Points[LeftEyeOuter] = Point3D{X: 0.04, Y: -0.65, Z: -0.1}
	lm.Points[RightEyeInner] = Point3D{X: -0.015, Y: -0.65, Z: -0.1}
	lm.Points[RightEye] = Point3D{X: -0.03, Y: -0.65, Z: -0.1}
	lm.Points[RightEyeOuter] = Point3D{X: -0.04, Y: -0.65, Z: -0.1}
	lm.Points[LeftEar] = Point3D{X: 0.07, Y: -0.62, Z: 0.0}
	lm.Points[RightEar] = Point3D{X: -0.07, Y: -0.62, Z: 0.0}
	lm.Points[MouthLeft] = Point3D{X: 0.03, Y: -0.6, Z: -0.1}
	lm.Points[MouthRight] = Point3D{X: -0.03, Y: -0.6, Z: -0.1}

	// Torso
	lm.Points[LeftShoulder] = Point3D{X: 0.2, Y: -0.5, Z: 0.0}
	lm.Points[RightShoulder] = Point3D{X: -0.2, Y: -0.5, Z: 0.0}
	lm.Points[LeftHip] = Point3D{X: 0.1, Y: 0.0, Z: 0.0}
	lm.Points[RightHip] = Point3D{X: -0.1, Y: 0.0, Z: 0.0}

	// Left arm out to the side, palm down
	lm.Points[LeftElbow] = Point3D{X: 0.45, Y: -0.5, Z: 0.0}
	lm.Points[LeftWrist] = Point3D{X: 0.7, Y: -0.5, Z: -0.05}
	lm.Points[LeftPinky] = Point3D{X: 0.76, Y: -0.5, Z: -0.02}
	lm.Points[LeftIndex] = Point3D{X: 0.8, Y: -0.5, Z: -0.07}
	lm.Points[LeftThumb] = Point3D{X: 0.74, Y: -0.5, Z: -0.1}

	// Right arm mirrored
	lm.Points[RightElbow] = Point3D{X: -0.45, Y: -0.5, Z: 0.0}
	lm.Points[RightWrist] = Point3D{X: -0.7, Y: -0.5, Z: -0.05}
	lm.Points[RightPinky] = Point3D{X: -0.76, Y: -0.5, Z: -0.02}
	lm.Points[RightIndex] = Point3D{X: -0.8, Y: -0.5, Z: -0.07}
	lm.Points[RightThumb] = Point3D{X: -0.74, Y: -0.5, Z: -0.1}

	// Legs straight down
	lm.Points[LeftKnee] = Point3D{X: 0.1, Y: 0.45, Z: 0.0}
	lm.Points[LeftAnkle] = Point3D{X: 0.1, Y: 0.9, Z: 0.0}
	lm.Points[LeftHeel] = Point3D{X: 0.1, Y: 0.95, Z: 0.05}
	lm.Points[LeftFootIndex] = Point3D{X: 0.1, Y: 0.97, Z: -0.1}
	lm.Points[RightKnee] = Point3D{X: -0.1, Y: 0.45, Z: 0.0}
	lm.Points[RightAnkle] = Point3D{X: -0.1, Y: 0.9, Z: 0.0}
	lm.Points[RightHeel] = Point3D{X: -0.1, Y: 0.95, Z: 0.05}
	lm.Points[RightFootIndex] = Point3D{X: -0.1, Y: 0.97, Z: -0.1}

	return lm
}

// ToImageSpace maps world landmarks into a normalized image frame with the
// subject centred at (cx, cy) and the given pixels-per-metre style scale.
// Only intended for building synthetic fixtures.
func ToImageSpace(world PoseLandmarks, cx, cy, scale float64) PoseLandmarks {
	var img PoseLandmarks
	for i, p := range world.Points {
		img.Points[i] = Point3D{
			X: cx + p.X*scale,
			Y: cy + p.Y*scale,
			Z: p.Z * scale,
		}
	}
	return img
}

// TPoseDetection returns a full detection for the T-pose fixture.
func TPoseDetection() *Detection {
	world := TPoseWorldLandmarks()
	return &Detection{
		World: world,
		Image: ToImageSpace(world, 0.5, 0.55, 0.4),
		Score: 0.95,
	}
}
