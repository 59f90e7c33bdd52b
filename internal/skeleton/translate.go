package skeleton

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/posebake/internal/detector"
)

// DefaultReferenceHeight is the body height of the target model in engine units.
const DefaultReferenceHeight = 12.0

// ErrDegenerateScale is returned when the mean body length cannot be used
// to derive a translation scale.
var ErrDegenerateScale = errors.New("degenerate translation scale")

// Translator turns hip positions into root translations relative to the
// sequence's mean hip position.
type Translator struct {
	scale  float64
	center r3.Vec
}

// NewTranslator derives the translation scale from stats. A Translator can
// only be built once the statistics pass has completed.
func NewTranslator(stats Statistics, referenceHeight float64) (*Translator, error) {
	if referenceHeight <= 0 {
		referenceHeight = DefaultReferenceHeight
	}
	body := stats.Lengths[Body]
	scale := referenceHeight / body
	if body == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: mean body length %v", ErrDegenerateScale, body)
	}
	return &Translator{scale: scale, center: stats.MeanHip}, nil
}

// Scale returns the engine units per landmark unit.
func (t *Translator) Scale() float64 {
	return t.scale
}

// Translate returns the root translation for one frame.
func (t *Translator) Translate(lm *detector.PoseLandmarks) [3]float64 {
	d := r3.Scale(t.scale, r3.Sub(hip(lm), t.center))
	return [3]float64{-d.X, d.Y, d.Z}
}
