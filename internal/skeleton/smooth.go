package skeleton

import (
	"math"
	"sync"
)

// Unwrap returns the angle equivalent to candidate modulo 360 that lies
// within (-180, 180] of base. Non-finite inputs are returned unchanged.
func Unwrap(base, candidate float64) float64 {
	if !finite(base) || !finite(candidate) {
		return candidate
	}
	d := candidate - base
	return base + d - 360*math.Ceil((d-180)/360)
}

// Smooth removes ±360° jumps between consecutive frames for every bone and
// axis, in place. Each of the bone/axis streams is independent and is
// processed in its own goroutine; within a stream frames are handled in
// time order. A non-finite value is left untouched and is skipped as a base.
func Smooth(poses []Pose) {
	if len(poses) < 2 {
		return
	}

	var wg sync.WaitGroup
	for b := 0; b < NumBones; b++ {
		for axis := 0; axis < 3; axis++ {
			wg.Add(1)
			go func(b, axis int) {
				defer wg.Done()
				smoothStream(poses, b, axis)
			}(b, axis)
		}
	}
	wg.Wait()
}

func smoothStream(poses []Pose, b, axis int) {
	var base float64
	haveBase := false
	for i := range poses {
		v := poses[i][b].Angles[axis]
		if !finite(v) {
			continue
		}
		if haveBase {
			v = Unwrap(base, v)
			poses[i][b].Angles[axis] = v
		}
		base = v
		haveBase = true
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
