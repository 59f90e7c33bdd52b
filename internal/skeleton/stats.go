package skeleton

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/posebake/internal/detector"
)

// ErrEmptySequence is returned when statistics are requested for no frames.
var ErrEmptySequence = errors.New("empty landmark sequence")

// Statistics summarizes a whole landmark sequence: the mean length of every
// bone and the mean hip midpoint, both in engine space.
type Statistics struct {
	Lengths [NumBones]float64
	MeanHip r3.Vec
	Frames  int
}

// Length returns the mean length of bone b.
func (s Statistics) Length(b Bone) float64 {
	return s.Lengths[b]
}

// boneLength measures one bone of a landmark set.
func boneLength(lm *detector.PoseLandmarks, b Bone) float64 {
	switch b {
	case Body:
		return (dist(lm, detector.LeftShoulder, detector.LeftHip) + dist(lm, detector.RightShoulder, detector.RightHip)) / 2
	case Head:
		return dist(lm, detector.LeftEar, detector.RightEar)
	case LeftUpperArm:
		return dist(lm, detector.LeftShoulder, detector.LeftElbow)
	case LeftForearm:
		return dist(lm, detector.LeftElbow, detector.LeftIndex)
	case LeftThigh:
		return dist(lm, detector.LeftKnee, detector.LeftHip)
	case LeftCalf:
		return dist(lm, detector.LeftHeel, detector.LeftKnee)
	case RightUpperArm:
		return dist(lm, detector.RightShoulder, detector.RightElbow)
	case RightForearm:
		return dist(lm, detector.RightElbow, detector.RightIndex)
	case RightThigh:
		return dist(lm, detector.RightKnee, detector.RightHip)
	case RightCalf:
		return dist(lm, detector.RightHeel, detector.RightKnee)
	}
	return 0
}

func dist(lm *detector.PoseLandmarks, a, b int) float64 {
	return r3.Norm(vec(lm, a, b))
}

// hip returns the hip midpoint in engine space.
func hip(lm *detector.PoseLandmarks) r3.Vec {
	return target(lm.HipMidpoint())
}

// Aggregate computes sequence statistics over every frame whose landmarks
// are all finite. It returns ErrEmptySequence when no such frame exists.
func Aggregate(frames []detector.PoseLandmarks) (Statistics, error) {
	usable := make([]int, 0, len(frames))
	for i := range frames {
		if frames[i].Validate() == nil {
			usable = append(usable, i)
		}
	}
	if len(usable) == 0 {
		return Statistics{}, ErrEmptySequence
	}

	n := len(usable)
	lengths := make([][]float64, NumBones)
	for b := range lengths {
		lengths[b] = make([]float64, n)
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)

	for j, i := range usable {
		lm := &frames[i]
		for _, b := range Bones {
			lengths[b][j] = boneLength(lm, b)
		}
		h := hip(lm)
		xs[j], ys[j], zs[j] = h.X, h.Y, h.Z
	}

	s := Statistics{Frames: n}
	for _, b := range Bones {
		s.Lengths[b] = stat.Mean(lengths[b], nil)
	}
	s.MeanHip = r3.Vec{
		X: stat.Mean(xs, nil),
		Y: stat.Mean(ys, nil),
		Z: stat.Mean(zs, nil),
	}
	return s, nil
}
