// Package chart renders animation tracks as line plots.
package chart

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ayusman/posebake/internal/animation"
)

// ErrEmptyTrack is returned when the requested track has no keyframes.
var ErrEmptyTrack = errors.New("track has no keyframes")

// Size is the default image size.
const Size = 8 * vg.Inch

// axisLabels names the vector components per channel.
var axisLabels = map[animation.Channel][3]string{
	animation.ChannelRotation: {"pitch", "yaw", "roll"},
	animation.ChannelPosition: {"x", "y", "z"},
	animation.ChannelScale:    {"x", "y", "z"},
}

// Plot builds a line chart of one bone channel over time. Keyframes without
// a numeric vector, like Molang expressions, are not plotted.
func Plot(clip *animation.Clip, bone string, ch animation.Channel) (*plot.Plot, error) {
	var series [3]plotter.XYs
	for _, k := range clip.Keyframes(bone, ch) {
		if !k.Numeric() {
			continue
		}
		for axis := range series {
			series[axis] = append(series[axis], plotter.XY{X: k.Time, Y: k.Vector[axis]})
		}
	}
	if len(series[0]) == 0 {
		return nil, fmt.Errorf("%s %s/%s: %w", clip.Name, bone, ch, ErrEmptyTrack)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %s %s", clip.Name, bone, ch)
	p.X.Label.Text = "time (s)"
	if ch == animation.ChannelRotation {
		p.Y.Label.Text = "degrees"
	}
	p.Add(plotter.NewGrid())

	labels := axisLabels[ch]
	if err := plotutil.AddLinePoints(p,
		labels[0], series[0],
		labels[1], series[1],
		labels[2], series[2],
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Track plots one bone channel and saves it to path. The image format
// follows the file extension.
func Track(clip *animation.Clip, bone string, ch animation.Channel, path string) error {
	p, err := Plot(clip, bone, ch)
	if err != nil {
		return err
	}
	if err := p.Save(Size, Size/2, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
