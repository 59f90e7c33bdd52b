package skeleton

import (
	"context"
	"runtime"
	"sync"

	"github.com/ayusman/posebake/internal/detector"
)

// BoneRotation is the rotation of one bone in one frame. Valid is false when
// the bone's frame or its parent's frame was degenerate.
type BoneRotation struct {
	Angles Rotation
	Valid  bool
}

// Pose holds the rotation of every bone for one frame, indexed by Bone.
type Pose [NumBones]BoneRotation

// ConvertFrame computes every bone's rotation relative to its parent.
// Body is measured against the world frame and Head pitch is inverted.
func ConvertFrame(lm *detector.PoseLandmarks) Pose {
	frames := BuildFrames(lm)

	var pose Pose
	for _, b := range Bones {
		parent := Identity
		if p := b.Parent(); p != NoParent {
			parent = frames[p]
		}
		child := frames[b]

		angles := Relative(parent, child)
		if b == Head {
			angles[0] = -angles[0]
		}
		pose[b] = BoneRotation{
			Angles: angles,
			Valid:  parent.Valid && child.Valid,
		}
	}
	return pose
}

// ConvertSequence converts frames in parallel with at most workers
// goroutines; workers <= 0 means GOMAXPROCS. The result keeps input order.
func ConvertSequence(ctx context.Context, frames []detector.PoseLandmarks, workers int) ([]Pose, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(frames) {
		workers = len(frames)
	}

	poses := make([]Pose, len(frames))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				poses[i] = ConvertFrame(&frames[i])
			}
		}()
	}

	var err error
dispatch:
	for i := range frames {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return poses, nil
}
