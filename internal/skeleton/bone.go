// Package skeleton converts pose landmarks into per-bone rotations and root
// translation for a fixed ten-bone humanoid rig.
package skeleton

import "fmt"

// Bone identifies one bone of the target rig.
type Bone int

const (
	Body Bone = iota
	Head
	LeftUpperArm
	LeftForearm
	LeftThigh
	LeftCalf
	RightUpperArm
	RightForearm
	RightThigh
	RightCalf
)

// NumBones is the number of bones in the rig.
const NumBones = 10

// NoParent is returned by Parent for the root bone.
const NoParent Bone = -1

// Bones lists every bone in canonical order.
var Bones = [NumBones]Bone{
	Body, Head,
	LeftUpperArm, LeftForearm, LeftThigh, LeftCalf,
	RightUpperArm, RightForearm, RightThigh, RightCalf,
}

var boneNames = [NumBones]string{
	"Body", "Head",
	"LeftUpperArm", "LeftForearm", "LeftThigh", "LeftCalf",
	"RightUpperArm", "RightForearm", "RightThigh", "RightCalf",
}

var boneParents = [NumBones]Bone{
	Body:          NoParent,
	Head:          Body,
	LeftUpperArm:  Body,
	LeftForearm:   LeftUpperArm,
	LeftThigh:     Body,
	LeftCalf:      LeftThigh,
	RightUpperArm: Body,
	RightForearm:  RightUpperArm,
	RightThigh:    Body,
	RightCalf:     RightThigh,
}

// String returns the bone name used in animation documents.
func (b Bone) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Bone(%d)", int(b))
	}
	return boneNames[b]
}

// Valid reports whether b is one of the rig's bones.
func (b Bone) Valid() bool {
	return b >= 0 && b < NumBones
}

// Parent returns the parent bone, or NoParent for Body.
func (b Bone) Parent() Bone {
	return boneParents[b]
}

// ParseBone returns the bone with the given document name.
func ParseBone(name string) (Bone, error) {
	for i, n := range boneNames {
		if n == name {
			return Bone(i), nil
		}
	}
	return NoParent, fmt.Errorf("unknown bone %q", name)
}
