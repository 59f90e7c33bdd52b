package animation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/ayusman/posebake/internal/skeleton"
)

// FormatVersion is the document version GeckoLib expects.
const FormatVersion = "1.8.0"

// ErrInvalidDocument is returned when a document does not follow the
// animation document schema.
var ErrInvalidDocument = errors.New("invalid animation document")

// Document is a set of clips exported together. Clips keep insertion order.
type Document struct {
	FormatVersion string
	// Extra holds top-level members other than format_version and animations.
	Extra []Field

	clips []*Clip
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{FormatVersion: FormatVersion}
}

// Add appends a clip. A clip with the same name is replaced in place.
func (d *Document) Add(c *Clip) {
	for i, existing := range d.clips {
		if existing.Name == c.Name {
			d.clips[i] = c
			return
		}
	}
	d.clips = append(d.clips, c)
}

// Merge adds every clip of other to d.
func (d *Document) Merge(other *Document) {
	for _, c := range other.clips {
		d.Add(c)
	}
}

// Remove deletes the named clip and reports whether it existed.
func (d *Document) Remove(name string) bool {
	for i, c := range d.clips {
		if c.Name == name {
			d.clips = append(d.clips[:i], d.clips[i+1:]...)
			return true
		}
	}
	return false
}

// Clips returns the clips in insertion order.
func (d *Document) Clips() []*Clip {
	out := make([]*Clip, len(d.clips))
	copy(out, d.clips)
	return out
}

// Clip returns the named clip.
func (d *Document) Clip(name string) (*Clip, bool) {
	for _, c := range d.clips {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// FormatTime renders a keyframe time the way Python's repr renders floats:
// shortest round-trip digits with at least one decimal place, switching to
// exponent notation below 1e-4 and from 1e16 on.
func FormatTime(t float64) string {
	return formatFloat(t)
}

func formatFloat(v float64) string {
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}

func writeNumber(buf *bytes.Buffer, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite value %v", v)
	}
	buf.WriteString(formatFloat(v))
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// members writes the comma-separated members of one JSON object.
type members struct {
	buf *bytes.Buffer
	n   int
}

func (m *members) key(name string) {
	if m.n > 0 {
		m.buf.WriteByte(',')
	}
	m.n++
	writeString(m.buf, name)
	m.buf.WriteByte(':')
}

func (m *members) fields(fields []Field) {
	for _, f := range fields {
		m.key(f.Name)
		m.buf.Write(f.Value)
	}
}

// MarshalJSON encodes the document with clips in insertion order, bones in
// rig order, channels as rotation, position, scale and keyframes by time.
// Members kept from a decoded document follow the ones this package writes.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	version := d.FormatVersion
	if version == "" {
		version = FormatVersion
	}

	buf.WriteByte('{')
	m := members{buf: &buf}
	m.key("format_version")
	writeString(&buf, version)
	m.key("animations")
	buf.WriteByte('{')
	for i, c := range d.clips {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, c.Name)
		buf.WriteByte(':')
		if err := c.writeJSON(&buf); err != nil {
			return nil, fmt.Errorf("clip %s: %w", c.Name, err)
		}
	}
	buf.WriteByte('}')
	m.fields(d.Extra)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Clip) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	m := members{buf: buf}
	m.key("loop")
	if c.LoopMode != "" {
		writeString(buf, c.LoopMode)
	} else {
		buf.WriteString(strconv.FormatBool(c.Loop))
	}
	m.key("animation_length")
	if err := writeNumber(buf, c.Length); err != nil {
		return fmt.Errorf("animation_length: %w", err)
	}
	m.key("bones")
	buf.WriteByte('{')
	for i, bone := range c.BoneNames() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, bone)
		buf.WriteString(`:{`)
		bm := members{buf: buf}
		for _, ch := range c.ChannelsOf(bone) {
			bm.key(string(ch))
			buf.WriteByte('{')
			for n, k := range c.Keyframes(bone, ch) {
				if n > 0 {
					buf.WriteByte(',')
				}
				if err := k.writeJSON(buf); err != nil {
					return fmt.Errorf("%s %s: %w", bone, ch, err)
				}
			}
			buf.WriteByte('}')
		}
		bm.fields(c.boneExtra[bone])
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	m.fields(c.Extra)
	buf.WriteByte('}')
	return nil
}

func (k Keyframe) writeJSON(buf *bytes.Buffer) error {
	if math.IsNaN(k.Time) || math.IsInf(k.Time, 0) {
		return fmt.Errorf("non-finite keyframe time %v", k.Time)
	}
	writeString(buf, FormatTime(k.Time))
	buf.WriteString(`:{`)
	m := members{buf: buf}
	if !k.Vectorless {
		m.key("vector")
		if k.Expression != nil {
			buf.Write(k.Expression)
		} else {
			buf.WriteByte('[')
			for i, v := range k.Vector {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := writeNumber(buf, v); err != nil {
					return fmt.Errorf("time %s: %w", FormatTime(k.Time), err)
				}
			}
			buf.WriteByte(']')
		}
	}
	if k.Easing != "" {
		m.key("easing")
		writeString(buf, k.Easing)
	}
	if len(k.EasingArgs) > 0 {
		m.key("easingArgs")
		buf.WriteByte('[')
		for i, a := range k.EasingArgs {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNumber(buf, a); err != nil {
				return fmt.Errorf("easingArgs: %w", err)
			}
		}
		buf.WriteByte(']')
	}
	m.fields(k.Extra)
	buf.WriteByte('}')
	return nil
}

// Encode writes the document indented with four spaces.
func (d *Document) Encode(w io.Writer) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "    "); err != nil {
		return fmt.Errorf("indent document: %w", err)
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

// Validate checks the document against the animation schema and returns
// every problem found.
func (d *Document) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...)))
	}

	if d.FormatVersion != FormatVersion {
		fail("format_version %q, expected %q", d.FormatVersion, FormatVersion)
	}

	for _, c := range d.clips {
		if c.Name == "" {
			fail("clip with empty name")
		}
		if c.Length < 0 || math.IsNaN(c.Length) || math.IsInf(c.Length, 0) {
			fail("clip %s: animation_length %v", c.Name, c.Length)
		}
		for _, bone := range c.BoneNames() {
			if _, err := skeleton.ParseBone(bone); err != nil {
				fail("clip %s: %v", c.Name, err)
			}
			for _, ch := range c.ChannelsOf(bone) {
				if !ch.Known() {
					fail("clip %s bone %s: unknown channel %q", c.Name, bone, ch)
				}
				for _, k := range c.Keyframes(bone, ch) {
					if k.Time < 0 || math.IsNaN(k.Time) || math.IsInf(k.Time, 0) {
						fail("clip %s bone %s %s: keyframe time %v", c.Name, bone, ch, k.Time)
					}
					for _, v := range k.Vector {
						if math.IsNaN(v) || math.IsInf(v, 0) {
							fail("clip %s bone %s %s at %s: non-finite vector %v", c.Name, bone, ch, FormatTime(k.Time), k.Vector)
							break
						}
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

func isNull(data json.RawMessage) bool {
	t := bytes.TrimSpace(data)
	return len(t) == 0 || string(t) == "null"
}

func compact(data json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return append(json.RawMessage(nil), data...)
	}
	return buf.Bytes()
}

// Decode reads a document, keeping the order of its clips. Members the
// package does not model, like Blockbench's "lerp_mode" or object easings,
// are kept and written back by MarshalJSON.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	keys, values, err := orderedObject(data)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	doc := &Document{}
	for _, key := range keys {
		value := values[key]
		switch key {
		case "format_version":
			if err := json.Unmarshal(value, &doc.FormatVersion); err != nil {
				return nil, invalidf("format_version: %v", err)
			}
		case "animations":
			if err := doc.decodeAnimations(value); err != nil {
				return nil, err
			}
		default:
			doc.Extra = append(doc.Extra, Field{Name: key, Value: compact(value)})
		}
	}
	return doc, nil
}

func (d *Document) decodeAnimations(data json.RawMessage) error {
	if isNull(data) {
		return nil
	}
	names, clips, err := orderedObject(data)
	if err != nil {
		return invalidf("animations: %v", err)
	}
	for _, name := range names {
		clip, err := decodeClip(name, clips[name])
		if err != nil {
			return invalidf("clip %s: %v", name, err)
		}
		d.Add(clip)
	}
	return nil
}

func decodeClip(name string, data json.RawMessage) (*Clip, error) {
	keys, values, err := orderedObject(data)
	if err != nil {
		return nil, err
	}

	clip := NewClip(name, 0, false)
	for _, key := range keys {
		value := values[key]
		switch key {
		case "loop":
			if err := json.Unmarshal(value, &clip.Loop); err != nil {
				if err := json.Unmarshal(value, &clip.LoopMode); err != nil {
					return nil, fmt.Errorf("loop: %v", err)
				}
			}
		case "animation_length":
			if err := json.Unmarshal(value, &clip.Length); err != nil {
				return nil, fmt.Errorf("animation_length: %v", err)
			}
		case "bones":
			if err := clip.decodeBones(value); err != nil {
				return nil, err
			}
		default:
			clip.Extra = append(clip.Extra, Field{Name: key, Value: compact(value)})
		}
	}
	return clip, nil
}

// decodeBones reads the bones object. Object members of a bone are keyframed
// channels; anything else, such as a constant vector, is kept as a field.
func (c *Clip) decodeBones(data json.RawMessage) error {
	if isNull(data) {
		return nil
	}
	bones, values, err := orderedObject(data)
	if err != nil {
		return fmt.Errorf("bones: %v", err)
	}

	for _, bone := range bones {
		names, fields, err := orderedObject(values[bone])
		if err != nil {
			return fmt.Errorf("bone %s: %v", bone, err)
		}
		channels := c.bone(bone)
		for _, ch := range names {
			value := fields[ch]
			if t := bytes.TrimSpace(value); len(t) == 0 || t[0] != '{' {
				c.putBoneField(bone, Field{Name: ch, Value: compact(value)})
				continue
			}

			times, frames, err := orderedObject(value)
			if err != nil {
				return fmt.Errorf("bone %s %s: %v", bone, ch, err)
			}
			if _, ok := channels[Channel(ch)]; !ok {
				channels[Channel(ch)] = make(map[float64]Keyframe)
			}
			for _, key := range times {
				t, err := strconv.ParseFloat(key, 64)
				if err != nil {
					return fmt.Errorf("bone %s %s: time key %q", bone, ch, key)
				}
				k, err := decodeKeyframe(frames[key])
				if err != nil {
					return fmt.Errorf("bone %s %s at %s: %v", bone, ch, key, err)
				}
				k.Time = t
				c.put(bone, Channel(ch), k)
			}
		}
	}
	return nil
}

// decodeKeyframe accepts both the object form {"vector": [...]} and the bare
// array shorthand Blockbench writes for linear keyframes.
func decodeKeyframe(data json.RawMessage) (Keyframe, error) {
	var k Keyframe
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return k, k.decodeVector(trimmed)
	}

	keys, values, err := orderedObject(trimmed)
	if err != nil {
		return k, err
	}
	k.Vectorless = true
	for _, key := range keys {
		value := values[key]
		switch key {
		case "vector":
			if err := k.decodeVector(value); err != nil {
				return k, err
			}
			k.Vectorless = false
		case "easing":
			if json.Unmarshal(value, &k.Easing) != nil {
				k.Extra = append(k.Extra, Field{Name: key, Value: compact(value)})
			}
		case "easingArgs":
			if json.Unmarshal(value, &k.EasingArgs) != nil {
				k.Extra = append(k.Extra, Field{Name: key, Value: compact(value)})
			}
		default:
			k.Extra = append(k.Extra, Field{Name: key, Value: compact(value)})
		}
	}
	return k, nil
}

// decodeVector reads a three-component vector. Components that are not all
// numbers are kept verbatim in Expression.
func (k *Keyframe) decodeVector(data json.RawMessage) error {
	var nums []float64
	if err := json.Unmarshal(data, &nums); err == nil {
		if len(nums) != 3 {
			return fmt.Errorf("vector has %d components", len(nums))
		}
		copy(k.Vector[:], nums)
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("vector: %v", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("vector has %d components", len(parts))
	}
	k.Expression = compact(data)
	return nil
}

// orderedObject splits a JSON object into its keys, in document order, and
// their raw values.
func orderedObject(data json.RawMessage) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = value
	}
	return keys, values, nil
}

// ReadFile decodes the document stored at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile atomically replaces the document at path while holding an
// exclusive lock on path + ".lock".
func (d *Document) WriteFile(path string) error {
	return UpdateFile(path, false, func(doc *Document) error {
		doc.FormatVersion = d.FormatVersion
		doc.Extra = d.Extra
		doc.clips = d.Clips()
		return nil
	})
}

// UpdateFile applies fn to the document at path and writes the result back.
// With merge set the existing document is loaded first, otherwise fn starts
// from an empty document. Writers of the same path are serialized.
func UpdateFile(path string, merge bool, fn func(*Document) error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	doc := NewDocument()
	if merge {
		existing, err := ReadFile(path)
		switch {
		case err == nil:
			doc = existing
		case errors.Is(err, os.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := fn(doc); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, buf.Bytes(), 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
