package skeleton

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// gimbalEpsilon is the |cos(yaw)| below which the decomposition is treated
// as gimbal-locked.
const gimbalEpsilon = 1e-6

// Rotation is an Euler triple [pitch, yaw, roll] in degrees: pitch about X,
// yaw about Y, roll about Z, composed intrinsically Z then Y then X.
type Rotation [3]float64

// Pitch returns the X-axis angle.
func (r Rotation) Pitch() float64 { return r[0] }

// Yaw returns the Y-axis angle.
func (r Rotation) Yaw() float64 { return r[1] }

// Roll returns the Z-axis angle.
func (r Rotation) Roll() float64 { return r[2] }

// IsFinite reports whether every component is a finite number.
func (r Rotation) IsFinite() bool {
	for _, a := range r {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return false
		}
	}
	return true
}

// Matrix is a 3x3 rotation matrix in row-major order.
type Matrix [3][3]float64

// RelativeMatrix returns Pᵀ·C, the child's orientation expressed in the
// parent's frame.
func RelativeMatrix(parent, child Frame) Matrix {
	var m Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = r3.Dot(parent.Col(i), child.Col(j))
		}
	}
	return m
}

// Relative returns the Euler angles of child relative to parent.
func Relative(parent, child Frame) Rotation {
	return Decompose(RelativeMatrix(parent, child))
}

// Decompose extracts [pitch, yaw, roll] in degrees from m assuming
// m = Rz(roll)·Ry(yaw)·Rx(pitch).
func Decompose(m Matrix) Rotation {
	yaw := math.Asin(clamp(-m[2][0], -1, 1))

	var pitch, roll float64
	if math.Abs(math.Cos(yaw)) < gimbalEpsilon {
		pitch = 0
		roll = math.Atan2(-m[0][1], m[1][1])
	} else {
		pitch = math.Atan2(m[2][1], m[2][2])
		roll = math.Atan2(m[1][0], m[0][0])
	}

	return Rotation{degrees(pitch), degrees(yaw), degrees(roll)}
}

// ComposeZYX builds the rotation matrix Rz(roll)·Ry(yaw)·Rx(pitch).
func ComposeZYX(r Rotation) Matrix {
	sx, cx := math.Sincos(radians(r[0]))
	sy, cy := math.Sincos(radians(r[1]))
	sz, cz := math.Sincos(radians(r[2]))

	return Matrix{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx},
		{-sy, cy * sx, cy * cx},
	}
}

// Apply returns a frame rotated by m, so that RelativeMatrix(f, f.Apply(m)) == m
// for an orthonormal f.
func (f Frame) Apply(m Matrix) Frame {
	out := Frame{Valid: f.Valid}
	cols := [3]*r3.Vec{&out.X, &out.Y, &out.Z}
	for j := 0; j < 3; j++ {
		var v r3.Vec
		for i := 0; i < 3; i++ {
			v = r3.Add(v, r3.Scale(m[i][j], f.Col(i)))
		}
		*cols[j] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }
