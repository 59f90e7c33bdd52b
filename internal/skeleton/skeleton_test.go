package skeleton

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/posebake/internal/detector"
)

const epsilon = 1e-9

// angleDiff returns a-b wrapped into (-180, 180].
func angleDiff(a, b float64) float64 {
	return Unwrap(0, a-b)
}

func shifted(lm detector.PoseLandmarks, dx, dy, dz float64) detector.PoseLandmarks {
	for i := range lm.Points {
		lm.Points[i].X += dx
		lm.Points[i].Y += dy
		lm.Points[i].Z += dz
	}
	return lm
}

func jittered(lm detector.PoseLandmarks, rng *rand.Rand, amount float64) detector.PoseLandmarks {
	for i := range lm.Points {
		lm.Points[i].X += (rng.Float64()*2 - 1) * amount
		lm.Points[i].Y += (rng.Float64()*2 - 1) * amount
		lm.Points[i].Z += (rng.Float64()*2 - 1) * amount
	}
	return lm
}

func TestBone(t *testing.T) {
	t.Run("canonical order and names", func(t *testing.T) {
		want := []string{
			"Body", "Head", "LeftUpperArm", "LeftForearm", "LeftThigh", "LeftCalf",
			"RightUpperArm", "RightForearm", "RightThigh", "RightCalf",
		}
		for i, b := range Bones {
			if b.String() != want[i] {
				t.Errorf("bone %d: expected %s, got %s", i, want[i], b.String())
			}
		}
	})

	t.Run("parents", func(t *testing.T) {
		tests := []struct {
			bone   Bone
			parent Bone
		}{
			{Body, NoParent},
			{Head, Body},
			{LeftUpperArm, Body},
			{LeftForearm, LeftUpperArm},
			{LeftThigh, Body},
			{LeftCalf, LeftThigh},
			{RightUpperArm, Body},
			{RightForearm, RightUpperArm},
			{RightThigh, Body},
			{RightCalf, RightThigh},
		}
		for _, tt := range tests {
			if got := tt.bone.Parent(); got != tt.parent {
				t.Errorf("%s: expected parent %s, got %s", tt.bone, tt.parent, got)
			}
		}
	})

	t.Run("parse", func(t *testing.T) {
		for _, b := range Bones {
			got, err := ParseBone(b.String())
			if err != nil {
				t.Fatalf("ParseBone(%s) error = %v", b, err)
			}
			if got != b {
				t.Errorf("expected %s, got %s", b, got)
			}
		}
		if _, err := ParseBone("Tail"); err == nil {
			t.Error("expected error for unknown bone")
		}
	})
}

func checkOrthonormal(t *testing.T, name string, f Frame) {
	t.Helper()
	axes := []r3.Vec{f.X, f.Y, f.Z}
	for i, a := range axes {
		if math.Abs(r3.Norm(a)-1) > 1e-9 {
			t.Errorf("%s: axis %d has length %f", name, i, r3.Norm(a))
		}
	}
	if d := r3.Dot(f.X, f.Y); math.Abs(d) > 1e-9 {
		t.Errorf("%s: X·Y = %g", name, d)
	}
	if d := r3.Dot(f.Y, f.Z); math.Abs(d) > 1e-9 {
		t.Errorf("%s: Y·Z = %g", name, d)
	}
	if d := r3.Dot(f.X, f.Z); math.Abs(d) > 1e-9 {
		t.Errorf("%s: X·Z = %g", name, d)
	}
	// Right-handed: X × Y == Z
	if d := r3.Norm(r3.Sub(r3.Cross(f.X, f.Y), f.Z)); d > 1e-9 {
		t.Errorf("%s: basis is not right-handed (|X×Y-Z| = %g)", name, d)
	}
}

func TestBuildFrames(t *testing.T) {
	t.Run("T-pose frames are orthonormal", func(t *testing.T) {
		lm := detector.TPoseWorldLandmarks()
		frames := BuildFrames(&lm)
		for _, b := range Bones {
			if !frames[b].Valid {
				t.Fatalf("%s: expected valid frame", b)
			}
			checkOrthonormal(t, b.String(), frames[b])
		}
	})

	t.Run("noisy poses stay orthonormal", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for n := 0; n < 50; n++ {
			lm := jittered(detector.TPoseWorldLandmarks(), rng, 0.08)
			frames := BuildFrames(&lm)
			for _, b := range Bones {
				if frames[b].Valid {
					checkOrthonormal(t, b.String(), frames[b])
				}
			}
		}
	})

	t.Run("body frame points up", func(t *testing.T) {
		lm := detector.TPoseWorldLandmarks()
		frames := BuildFrames(&lm)
		if math.Abs(frames[Body].Y.Y-1) > epsilon {
			t.Errorf("expected body Y axis (0,1,0), got %+v", frames[Body].Y)
		}
	})

	t.Run("coincident landmarks are degenerate", func(t *testing.T) {
		var lm detector.PoseLandmarks
		frames := BuildFrames(&lm)
		for _, b := range Bones {
			if frames[b].Valid {
				t.Errorf("%s: expected invalid frame", b)
			}
			for i := 0; i < 3; i++ {
				c := frames[b].Col(i)
				if c != (r3.Vec{}) {
					t.Errorf("%s: expected zero axis %d, got %+v", b, i, c)
				}
			}
		}
	})
}

func TestDecompose_RoundTrip(t *testing.T) {
	tests := []Rotation{
		{0, 0, 0},
		{30, 0, 0},
		{0, 45, 0},
		{0, 0, -60},
		{10, 20, 30},
		{-170, 80, 170},
		{179, -89, -179},
		{-45.5, 12.25, 99.75},
	}

	for _, want := range tests {
		got := Decompose(ComposeZYX(want))
		for axis := 0; axis < 3; axis++ {
			if math.Abs(angleDiff(got[axis], want[axis])) > 1e-4 {
				t.Errorf("round trip %v: expected %v, got %v", want, want, got)
				break
			}
		}
	}
}

func TestDecompose_GimbalLock(t *testing.T) {
	for _, yaw := range []float64{90, -90} {
		m := ComposeZYX(Rotation{25, yaw, 40})
		got := Decompose(m)

		if got.Pitch() != 0 {
			t.Errorf("yaw %v: expected pitch 0 at gimbal lock, got %v", yaw, got.Pitch())
		}
		if math.Abs(got.Yaw()-yaw) > 1e-4 {
			t.Errorf("expected yaw %v, got %v", yaw, got.Yaw())
		}
		back := ComposeZYX(got)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if math.Abs(back[i][j]-m[i][j]) > 1e-6 {
					t.Fatalf("yaw %v: recomposed matrix differs at [%d][%d]: %v vs %v", yaw, i, j, back[i][j], m[i][j])
				}
			}
		}
	}
}

func TestRelative(t *testing.T) {
	t.Run("identical frames give zero rotation", func(t *testing.T) {
		got := Relative(Identity, Identity)
		for axis, a := range got {
			if math.Abs(a) > epsilon {
				t.Errorf("axis %d: expected 0, got %v", axis, a)
			}
		}
	})

	t.Run("recovers a known rotation from a rotated parent", func(t *testing.T) {
		parent := Identity.Apply(ComposeZYX(Rotation{15, -30, 50}))
		want := Rotation{-20, 35, 110}
		child := parent.Apply(ComposeZYX(want))

		got := Relative(parent, child)
		for axis := 0; axis < 3; axis++ {
			if math.Abs(angleDiff(got[axis], want[axis])) > 1e-4 {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})
}

func TestConvertFrame_TPose(t *testing.T) {
	lm := detector.TPoseWorldLandmarks()
	pose := ConvertFrame(&lm)

	tests := []struct {
		bone Bone
		want Rotation
	}{
		{Body, Rotation{0, 0, 0}},
		{Head, Rotation{0, 0, 0}},
		{LeftUpperArm, Rotation{180, 0, 90}},
		{RightUpperArm, Rotation{180, 0, -90}},
		{LeftThigh, Rotation{0, 0, 0}},
		{LeftCalf, Rotation{0, 0, 0}},
		{RightThigh, Rotation{0, 0, 0}},
		{RightCalf, Rotation{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.bone.String(), func(t *testing.T) {
			got := pose[tt.bone]
			if !got.Valid {
				t.Fatal("expected valid rotation")
			}
			for axis := 0; axis < 3; axis++ {
				if math.Abs(angleDiff(got.Angles[axis], tt.want[axis])) > 1e-6 {
					t.Fatalf("expected %v, got %v", tt.want, got.Angles)
				}
			}
		})
	}

	for _, b := range Bones {
		if !pose[b].Angles.IsFinite() {
			t.Errorf("%s: expected finite angles, got %v", b, pose[b].Angles)
		}
	}
}

func TestConvertFrame_HeadPitchInverted(t *testing.T) {
	lm := detector.TPoseWorldLandmarks()

	// Tilt the face: move the eyes and mouth forward/back so the head frame
	// pitches relative to the body.
	for _, idx := range []int{detector.LeftEyeOuter, detector.RightEyeOuter} {
		lm.Points[idx].Z -= 0.03
	}
	for _, idx := range []int{detector.MouthLeft, detector.MouthRight} {
		lm.Points[idx].Z += 0.03
	}

	frames := BuildFrames(&lm)
	raw := Relative(frames[Body], frames[Head])
	pose := ConvertFrame(&lm)

	if math.Abs(raw.Pitch()) < 1 {
		t.Fatalf("expected a visible head pitch, got %v", raw.Pitch())
	}
	if math.Abs(pose[Head].Angles.Pitch()+raw.Pitch()) > epsilon {
		t.Errorf("expected head pitch %v, got %v", -raw.Pitch(), pose[Head].Angles.Pitch())
	}
	if math.Abs(pose[Head].Angles.Yaw()-raw.Yaw()) > epsilon || math.Abs(pose[Head].Angles.Roll()-raw.Roll()) > epsilon {
		t.Errorf("expected yaw and roll unchanged, got %v vs %v", pose[Head].Angles, raw)
	}
}

func TestConvertFrame_Degenerate(t *testing.T) {
	lm := detector.TPoseWorldLandmarks()
	// Collapse the left arm onto the shoulder.
	for _, idx := range []int{detector.LeftElbow, detector.LeftWrist, detector.LeftPinky, detector.LeftIndex, detector.LeftThumb} {
		lm.Points[idx] = lm.Points[detector.LeftShoulder]
	}

	pose := ConvertFrame(&lm)
	if pose[LeftUpperArm].Valid {
		t.Error("expected LeftUpperArm to be invalid")
	}
	if pose[LeftForearm].Valid {
		t.Error("expected LeftForearm to be invalid")
	}
	if !pose[RightUpperArm].Valid || !pose[Body].Valid {
		t.Error("expected unaffected bones to stay valid")
	}
	for _, b := range Bones {
		if !pose[b].Angles.IsFinite() {
			t.Errorf("%s: expected finite angles, got %v", b, pose[b].Angles)
		}
	}
}

func TestConvertSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	frames := make([]detector.PoseLandmarks, 40)
	for i := range frames {
		frames[i] = jittered(detector.TPoseWorldLandmarks(), rng, 0.05)
	}

	t.Run("keeps input order", func(t *testing.T) {
		poses, err := ConvertSequence(context.Background(), frames, 4)
		if err != nil {
			t.Fatalf("ConvertSequence() error = %v", err)
		}
		if len(poses) != len(frames) {
			t.Fatalf("expected %d poses, got %d", len(frames), len(poses))
		}
		for i := range frames {
			want := ConvertFrame(&frames[i])
			if poses[i] != want {
				t.Fatalf("frame %d: parallel result differs from sequential", i)
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		poses, err := ConvertSequence(context.Background(), nil, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(poses) != 0 {
			t.Errorf("expected no poses, got %d", len(poses))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ConvertSequence(ctx, frames, 2)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name      string
		base      float64
		candidate float64
		want      float64
	}{
		{name: "no change needed", base: 10, candidate: 20, want: 20},
		{name: "crossing +180", base: 170, candidate: -170, want: 190},
		{name: "crossing -180", base: -170, candidate: 170, want: -190},
		{name: "full turn", base: 0, candidate: 360, want: 0},
		{name: "exactly half turn stays", base: 0, candidate: 180, want: 180},
		{name: "negative half turn flips", base: 0, candidate: -180, want: 180},
		{name: "several turns", base: 10, candidate: 725, want: 5},
		{name: "large base", base: 1000, candidate: 0, want: 1080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unwrap(tt.base, tt.candidate)
			if math.Abs(got-tt.want) > epsilon {
				t.Errorf("Unwrap(%v, %v) = %v, expected %v", tt.base, tt.candidate, got, tt.want)
			}
		})
	}

	t.Run("non-finite values pass through", func(t *testing.T) {
		if got := Unwrap(0, math.NaN()); !math.IsNaN(got) {
			t.Errorf("expected NaN, got %v", got)
		}
		if got := Unwrap(math.Inf(1), 30); got != 30 {
			t.Errorf("expected 30, got %v", got)
		}
	})
}

func posesFromStream(values []float64) []Pose {
	poses := make([]Pose, len(values))
	for i, v := range values {
		for _, b := range Bones {
			poses[i][b] = BoneRotation{Angles: Rotation{v, -v, v / 2}, Valid: true}
		}
	}
	return poses
}

func TestSmooth(t *testing.T) {
	t.Run("consecutive differences are within half a turn", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		values := make([]float64, 200)
		for i := range values {
			values[i] = rng.Float64()*360 - 180
		}
		poses := posesFromStream(values)
		Smooth(poses)

		for i := 1; i < len(poses); i++ {
			for _, b := range Bones {
				for axis := 0; axis < 3; axis++ {
					d := poses[i][b].Angles[axis] - poses[i-1][b].Angles[axis]
					if d <= -180-epsilon || d > 180+epsilon {
						t.Fatalf("frame %d %s axis %d: jump of %v", i, b, axis, d)
					}
				}
			}
		}
	})

	t.Run("values stay equivalent modulo 360", func(t *testing.T) {
		values := []float64{170, -175, 178, -179, 0}
		poses := posesFromStream(values)
		Smooth(poses)
		for i, v := range values {
			got := poses[i][Body].Angles[0]
			if math.Abs(angleDiff(got, v)) > epsilon {
				t.Errorf("frame %d: %v is not equivalent to %v", i, got, v)
			}
		}
		if got := poses[1][Body].Angles[0]; math.Abs(got-185) > epsilon {
			t.Errorf("expected 185, got %v", got)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		poses := posesFromStream([]float64{170, -175, 178, -179, 0, 350, -350})
		Smooth(poses)
		once := make([]Pose, len(poses))
		copy(once, poses)
		Smooth(poses)
		for i := range poses {
			if poses[i] != once[i] {
				t.Fatalf("frame %d changed on second pass: %v vs %v", i, poses[i], once[i])
			}
		}
	})

	t.Run("non-finite values are skipped as base", func(t *testing.T) {
		poses := posesFromStream([]float64{170, 0, -170})
		poses[1][Body].Angles[0] = math.NaN()
		Smooth(poses)

		if !math.IsNaN(poses[1][Body].Angles[0]) {
			t.Errorf("expected NaN to stay untouched, got %v", poses[1][Body].Angles[0])
		}
		if got := poses[2][Body].Angles[0]; math.Abs(got-190) > epsilon {
			t.Errorf("expected 190, got %v", got)
		}
	})

	t.Run("short sequences are unchanged", func(t *testing.T) {
		poses := posesFromStream([]float64{270})
		Smooth(poses)
		if poses[0][Body].Angles[0] != 270 {
			t.Errorf("expected 270, got %v", poses[0][Body].Angles[0])
		}
		Smooth(nil)
	})
}

func TestAggregate(t *testing.T) {
	t.Run("empty sequence", func(t *testing.T) {
		_, err := Aggregate(nil)
		if !errors.Is(err, ErrEmptySequence) {
			t.Errorf("expected ErrEmptySequence, got %v", err)
		}
	})

	t.Run("T-pose lengths", func(t *testing.T) {
		lm := detector.TPoseWorldLandmarks()
		stats, err := Aggregate([]detector.PoseLandmarks{lm, lm})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}

		tests := []struct {
			bone Bone
			want float64
		}{
			{Body, math.Sqrt(0.26)},
			{Head, 0.14},
			{LeftUpperArm, 0.25},
			{RightUpperArm, 0.25},
			{LeftThigh, 0.45},
			{RightThigh, 0.45},
		}
		for _, tt := range tests {
			if got := stats.Length(tt.bone); math.Abs(got-tt.want) > epsilon {
				t.Errorf("%s: expected length %f, got %f", tt.bone, tt.want, got)
			}
		}
		if stats.Frames != 2 {
			t.Errorf("expected 2 frames, got %d", stats.Frames)
		}
	})

	t.Run("mean hip in engine space", func(t *testing.T) {
		a := detector.TPoseWorldLandmarks()
		b := shifted(a, 0.2, -0.4, 0.6)
		stats, err := Aggregate([]detector.PoseLandmarks{a, b})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		want := r3.Vec{X: -0.1, Y: 0.2, Z: -0.3}
		if r3.Norm(r3.Sub(stats.MeanHip, want)) > epsilon {
			t.Errorf("expected mean hip %+v, got %+v", want, stats.MeanHip)
		}
	})

	t.Run("non-finite frames are left out", func(t *testing.T) {
		a := detector.TPoseWorldLandmarks()
		b := shifted(a, 0.2, -0.4, 0.6)
		broken := shifted(a, 5, 5, 5)
		broken.Points[detector.RightHip].Y = math.NaN()

		stats, err := Aggregate([]detector.PoseLandmarks{a, broken, b})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if stats.Frames != 2 {
			t.Errorf("expected 2 usable frames, got %d", stats.Frames)
		}
		want := r3.Vec{X: -0.1, Y: 0.2, Z: -0.3}
		if r3.Norm(r3.Sub(stats.MeanHip, want)) > epsilon {
			t.Errorf("expected mean hip %+v, got %+v", want, stats.MeanHip)
		}
		if _, err := NewTranslator(stats, DefaultReferenceHeight); err != nil {
			t.Errorf("NewTranslator() error = %v", err)
		}

		if _, err := Aggregate([]detector.PoseLandmarks{broken}); !errors.Is(err, ErrEmptySequence) {
			t.Errorf("expected ErrEmptySequence for only non-finite frames, got %v", err)
		}
	})

	t.Run("lengths are averaged", func(t *testing.T) {
		a := detector.TPoseWorldLandmarks()
		b := detector.TPoseWorldLandmarks()
		b.Points[detector.LeftEar].X = 0.17 // head width 0.24
		stats, err := Aggregate([]detector.PoseLandmarks{a, b})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if got := stats.Length(Head); math.Abs(got-0.19) > epsilon {
			t.Errorf("expected mean head length 0.19, got %f", got)
		}
	})
}

func TestTranslator(t *testing.T) {
	t.Run("requires a usable body length", func(t *testing.T) {
		var stats Statistics
		_, err := NewTranslator(stats, DefaultReferenceHeight)
		if !errors.Is(err, ErrDegenerateScale) {
			t.Errorf("expected ErrDegenerateScale, got %v", err)
		}
	})

	t.Run("scale matches reference height", func(t *testing.T) {
		lm := detector.TPoseWorldLandmarks()
		stats, err := Aggregate([]detector.PoseLandmarks{lm})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		tr, err := NewTranslator(stats, 0)
		if err != nil {
			t.Fatalf("NewTranslator() error = %v", err)
		}
		want := 12 / math.Sqrt(0.26)
		if math.Abs(tr.Scale()-want) > epsilon {
			t.Errorf("expected scale %f, got %f", want, tr.Scale())
		}
	})

	t.Run("displacement scales with body height", func(t *testing.T) {
		a := detector.TPoseWorldLandmarks()
		b := shifted(a, 0.2, 0.1, -0.3)
		stats, err := Aggregate([]detector.PoseLandmarks{a, b})
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		tr, err := NewTranslator(stats, DefaultReferenceHeight)
		if err != nil {
			t.Fatalf("NewTranslator() error = %v", err)
		}

		ta := tr.Translate(&a)
		tb := tr.Translate(&b)
		s := tr.Scale()

		// Engine space negates every axis and the translation negates X
		// once more, so X follows the landmark shift and Y/Z oppose it.
		want := [3]float64{0.2 * s, -0.1 * s, 0.3 * s}
		for axis := 0; axis < 3; axis++ {
			if got := tb[axis] - ta[axis]; math.Abs(got-want[axis]) > 1e-9 {
				t.Errorf("axis %d: expected displacement %f, got %f", axis, want[axis], got)
			}
		}

		// Translations are centred on the mean hip.
		for axis := 0; axis < 3; axis++ {
			if math.Abs(ta[axis]+tb[axis]) > 1e-9 {
				t.Errorf("axis %d: expected translations centred on zero, got %f and %f", axis, ta[axis], tb[axis])
			}
		}
	})
}
