package skeleton

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/posebake/internal/detector"
)

// Frame is an orthonormal basis attached to a bone. X points right, Y up
// along the bone and Z forward. Valid is false when any axis collapsed to
// the zero vector.
type Frame struct {
	X, Y, Z r3.Vec
	Valid   bool
}

// Identity is the world frame Body rotations are measured against.
var Identity = Frame{
	X:     r3.Vec{X: 1},
	Y:     r3.Vec{Y: 1},
	Z:     r3.Vec{Z: 1},
	Valid: true,
}

// Frames holds one frame per bone, indexed by Bone.
type Frames [NumBones]Frame

// target maps a landmark into engine space, which is the landmark space
// with all three axes negated.
func target(p detector.Point3D) r3.Vec {
	return r3.Vec{X: -p.X, Y: -p.Y, Z: -p.Z}
}

// vec returns the vector from landmark a to landmark b in engine space.
func vec(lm *detector.PoseLandmarks, a, b int) r3.Vec {
	return r3.Sub(target(lm.Points[b]), target(lm.Points[a]))
}

// unit normalizes v, leaving zero and non-finite vectors as the zero vector.
func unit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

func newFrame(x, y, z r3.Vec) Frame {
	ux, okx := unit(x)
	uy, oky := unit(y)
	uz, okz := unit(z)
	return Frame{X: ux, Y: uy, Z: uz, Valid: okx && oky && okz}
}

// BuildFrames constructs the bone frames for one landmark set.
func BuildFrames(lm *detector.PoseLandmarks) Frames {
	var f Frames

	// Body: up from the hips to the shoulders, forward from the hip/shoulder
	// diagonals.
	{
		y := r3.Add(vec(lm, detector.RightHip, detector.RightShoulder), vec(lm, detector.LeftHip, detector.LeftShoulder))
		zp := r3.Cross(vec(lm, detector.LeftHip, detector.RightShoulder), vec(lm, detector.RightHip, detector.LeftShoulder))
		x := r3.Cross(y, zp)
		z := r3.Cross(x, y)
		f[Body] = newFrame(x, y, z)
	}

	// Head: right from the mouth and eye corners.
	{
		x := r3.Add(vec(lm, detector.MouthLeft, detector.MouthRight), vec(lm, detector.LeftEyeOuter, detector.RightEyeOuter))
		zp := r3.Cross(vec(lm, detector.MouthLeft, detector.RightEyeOuter), vec(lm, detector.MouthRight, detector.LeftEyeOuter))
		y := r3.Cross(zp, x)
		z := r3.Cross(x, y)
		f[Head] = newFrame(x, y, z)
	}

	f[LeftUpperArm] = limbFrame(vec(lm, detector.LeftElbow, detector.LeftShoulder), vec(lm, detector.LeftWrist, detector.LeftElbow))
	f[LeftForearm] = limbFrame(vec(lm, detector.LeftIndex, detector.LeftElbow), vec(lm, detector.LeftThumb, detector.LeftPinky))
	f[RightUpperArm] = limbFrame(vec(lm, detector.RightElbow, detector.RightShoulder), vec(lm, detector.RightWrist, detector.RightElbow))
	f[RightForearm] = limbFrame(vec(lm, detector.RightIndex, detector.RightElbow), vec(lm, detector.RightThumb, detector.RightPinky))

	hips := vec(lm, detector.RightHip, detector.LeftHip)
	f[LeftThigh] = legFrame(vec(lm, detector.LeftKnee, detector.LeftHip), hips)
	f[LeftCalf] = legFrame(vec(lm, detector.LeftAnkle, detector.LeftKnee), hips)
	f[RightThigh] = legFrame(vec(lm, detector.RightKnee, detector.RightHip), hips)
	f[RightCalf] = legFrame(vec(lm, detector.RightAnkle, detector.RightKnee), hips)

	return f
}

// limbFrame builds an arm frame: y along the bone, x perpendicular to the
// bone and its bend reference.
func limbFrame(y, ref r3.Vec) Frame {
	x := r3.Cross(y, ref)
	z := r3.Cross(x, y)
	return newFrame(x, y, z)
}

// legFrame builds a leg frame: y along the bone, z perpendicular to the bone
// and the hip line.
func legFrame(y, hips r3.Vec) Frame {
	z := r3.Cross(y, hips)
	x := r3.Cross(y, z)
	return newFrame(x, y, z)
}

// Col returns column i of the frame as a basis vector.
func (f Frame) Col(i int) r3.Vec {
	switch i {
	case 0:
		return f.X
	case 1:
		return f.Y
	default:
		return f.Z
	}
}
