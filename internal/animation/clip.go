// Package animation builds GeckoLib/Blockbench animation documents.
package animation

import (
	"encoding/json"
	"sort"

	"github.com/ayusman/posebake/internal/skeleton"
)

// Channel is the property a keyframe animates.
type Channel string

const (
	ChannelRotation Channel = "rotation"
	ChannelPosition Channel = "position"
	ChannelScale    Channel = "scale"
)

// Channels lists the known channels in serialization order.
var Channels = []Channel{ChannelRotation, ChannelPosition, ChannelScale}

func (c Channel) order() int {
	for i, known := range Channels {
		if c == known {
			return i
		}
	}
	return len(Channels)
}

// Known reports whether c is one of the channels GeckoLib understands.
func (c Channel) Known() bool {
	return c.order() < len(Channels)
}

// Field is a JSON member this package does not interpret. Fields read from
// a document are written back unchanged and in their original order.
type Field struct {
	Name  string
	Value json.RawMessage
}

// Keyframe is one value of a channel at a point in time.
type Keyframe struct {
	Time       float64
	Vector     [3]float64
	Easing     string
	EasingArgs []float64

	// Expression holds a vector with non-numeric components, such as Molang
	// strings. When set it is written instead of Vector.
	Expression json.RawMessage
	// Vectorless marks keyframes without a "vector" member, like Blockbench's
	// "pre"/"post" pairs, which live in Extra.
	Vectorless bool
	Extra      []Field
}

// Numeric reports whether Vector holds the keyframe's value.
func (k Keyframe) Numeric() bool {
	return k.Expression == nil && !k.Vectorless
}

// KeyframeOption customizes a keyframe when it is added.
type KeyframeOption func(*Keyframe)

// WithEasing sets the keyframe's easing function and its optional arguments.
func WithEasing(name string, args ...float64) KeyframeOption {
	return func(k *Keyframe) {
		k.Easing = name
		k.EasingArgs = append([]float64(nil), args...)
	}
}

// Clip is one named animation.
type Clip struct {
	Name   string
	Length float64
	Loop   bool
	// LoopMode, when set, is written as the "loop" value instead of Loop,
	// e.g. "hold_on_last_frame".
	LoopMode string
	Extra    []Field

	bones     map[string]map[Channel]map[float64]Keyframe
	boneExtra map[string][]Field
}

// NewClip creates an empty clip. length is in seconds.
func NewClip(name string, length float64, loop bool) *Clip {
	return &Clip{
		Name:      name,
		Length:    length,
		Loop:      loop,
		bones:     make(map[string]map[Channel]map[float64]Keyframe),
		boneExtra: make(map[string][]Field),
	}
}

// AddKeyframe sets the value of bone's channel at time t, replacing any
// keyframe already at that time.
func (c *Clip) AddKeyframe(bone skeleton.Bone, ch Channel, t float64, v [3]float64, opts ...KeyframeOption) {
	k := Keyframe{Time: t, Vector: v}
	for _, opt := range opts {
		opt(&k)
	}
	c.put(bone.String(), ch, k)
}

func (c *Clip) put(bone string, ch Channel, k Keyframe) {
	channels := c.bone(bone)
	keys, ok := channels[ch]
	if !ok {
		keys = make(map[float64]Keyframe)
		channels[ch] = keys
	}
	keys[k.Time] = k
}

func (c *Clip) bone(name string) map[Channel]map[float64]Keyframe {
	channels, ok := c.bones[name]
	if !ok {
		channels = make(map[Channel]map[float64]Keyframe)
		c.bones[name] = channels
	}
	return channels
}

// putBoneField keeps a bone member that is not a keyframed channel.
func (c *Clip) putBoneField(bone string, f Field) {
	c.bone(bone)
	c.boneExtra[bone] = append(c.boneExtra[bone], f)
}

// BoneFields returns the bone members that are not keyframed channels.
func (c *Clip) BoneFields(bone string) []Field {
	return c.boneExtra[bone]
}

// BoneNames returns the animated bones, rig bones first in canonical order,
// then any other names alphabetically.
func (c *Clip) BoneNames() []string {
	names := make([]string, 0, len(c.bones))
	for name := range c.bones {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		bi, erri := skeleton.ParseBone(names[i])
		bj, errj := skeleton.ParseBone(names[j])
		switch {
		case erri == nil && errj == nil:
			return bi < bj
		case erri == nil:
			return true
		case errj == nil:
			return false
		}
		return names[i] < names[j]
	})
	return names
}

// ChannelsOf returns the channels animated for bone in serialization order.
func (c *Clip) ChannelsOf(bone string) []Channel {
	channels := make([]Channel, 0, len(c.bones[bone]))
	for ch := range c.bones[bone] {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		oi, oj := channels[i].order(), channels[j].order()
		if oi != oj {
			return oi < oj
		}
		return channels[i] < channels[j]
	})
	return channels
}

// Keyframes returns the keyframes of a bone's channel sorted by time.
func (c *Clip) Keyframes(bone string, ch Channel) []Keyframe {
	keys := c.bones[bone][ch]
	out := make([]Keyframe, 0, len(keys))
	for _, k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Track returns the keyframes of a rig bone's channel sorted by time.
func (c *Clip) Track(bone skeleton.Bone, ch Channel) []Keyframe {
	return c.Keyframes(bone.String(), ch)
}

// KeyframeCount returns how many keyframes a rig bone's channel holds.
func (c *Clip) KeyframeCount(bone skeleton.Bone, ch Channel) int {
	return len(c.bones[bone.String()][ch])
}

// TotalKeyframes returns the number of keyframes across all bones and channels.
func (c *Clip) TotalKeyframes() int {
	n := 0
	for _, channels := range c.bones {
		for _, keys := range channels {
			n += len(keys)
		}
	}
	return n
}
