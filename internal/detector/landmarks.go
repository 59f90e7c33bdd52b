// Package detector provides pose detection interfaces and types for landmark extraction.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Pose landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// ErrLandmarkCount is returned when a landmark set does not hold exactly NumLandmarks points.
var ErrLandmarkCount = errors.New("landmark count mismatch")

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether all three coordinates are finite numbers.
func (p Point3D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// PoseLandmarks represents the 33 body landmarks detected by MediaPipe Pose.
// The same type carries world-space (metres, hip-centred) and normalized
// image-space coordinates; which one is meant depends on where it came from.
type PoseLandmarks struct {
	Points [NumLandmarks]Point3D `json:"points"`
}

// NewPoseLandmarks builds a landmark set from a slice that must hold exactly
// NumLandmarks points.
func NewPoseLandmarks(points []Point3D) (PoseLandmarks, error) {
	var lm PoseLandmarks
	if len(points) != NumLandmarks {
		return lm, fmt.Errorf("%w: got %d, want %d", ErrLandmarkCount, len(points), NumLandmarks)
	}
	copy(lm.Points[:], points)
	return lm, nil
}

// HipMidpoint returns the midpoint between both hips.
func (l *PoseLandmarks) HipMidpoint() Point3D {
	return Lerp(l.Points[LeftHip], l.Points[RightHip], 0.5)
}

// Lerp linearly interpolates between a and b; t=0 yields a, t=1 yields b.
func Lerp(a, b Point3D, t float64) Point3D {
	return Point3D{
		X: a.X + t*(b.X-a.X),
		Y: a.Y + t*(b.Y-a.Y),
		Z: a.Z + t*(b.Z-a.Z),
	}
}

// Interpolate returns a landmark set where every point is interpolated
// between the corresponding points of a and b.
func Interpolate(a, b PoseLandmarks, t float64) PoseLandmarks {
	var out PoseLandmarks
	for i := 0; i < NumLandmarks; i++ {
		out.Points[i] = Lerp(a.Points[i], b.Points[i], t)
	}
	return out
}

// ErrNonFinite is returned when a landmark holds a NaN or infinite coordinate.
var ErrNonFinite = errors.New("non-finite landmark")

// Validate reports an error when any landmark holds a non-finite coordinate.
func (l *PoseLandmarks) Validate() error {
	for i, p := range l.Points {
		if !p.IsFinite() {
			return fmt.Errorf("%w: landmark %d", ErrNonFinite, i)
		}
	}
	return nil
}

// Detection holds one detected pose: world-space landmarks used for bone
// rotations and normalized image-space landmarks used for root translation.
type Detection struct {
	World PoseLandmarks `json:"world"`
	Image PoseLandmarks `json:"image"`
	Score float64       `json:"score"`
}

// Interpolate blends two detections; the score is blended too.
func (d Detection) Interpolate(next Detection, t float64) Detection {
	return Detection{
		World: Interpolate(d.World, next.World, t),
		Image: Interpolate(d.Image, next.Image, t),
		Score: d.Score + t*(next.Score-d.Score),
	}
}

// Validate checks both landmark sets for non-finite coordinates.
func (d *Detection) Validate() error {
	if err := d.World.Validate(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if err := d.Image.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	return nil
}
