package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ayusman/posebake/internal/animation"
	"github.com/ayusman/posebake/internal/chart"
	"github.com/ayusman/posebake/internal/skeleton"
)

func newPlotCommand() *cobra.Command {
	var clipName, boneName, channel, output string

	cmd := &cobra.Command{
		Use:         "plot DOCUMENT",
		Short:       "Plot one bone track of a clip as an image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := animation.ReadFile(args[0])
			if err != nil {
				return err
			}

			clip, ok := doc.Clip(clipName)
			if !ok {
				if clipName != "" || len(doc.Clips()) != 1 {
					return fmt.Errorf("clip %q not found in %s", clipName, args[0])
				}
				clip = doc.Clips()[0]
			}

			bone, err := skeleton.ParseBone(boneName)
			if err != nil {
				return err
			}
			ch := animation.Channel(strings.ToLower(strings.TrimSpace(channel)))
			if !ch.Known() {
				return fmt.Errorf("unknown channel %q", channel)
			}

			if output == "" {
				output = fmt.Sprintf("%s_%s_%s.png", clip.Name, bone, ch)
			}
			if err := chart.Track(clip, bone.String(), ch, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&clipName, "clip", "", "Clip name (optional when the document has one clip)")
	cmd.Flags().StringVar(&boneName, "bone", skeleton.Body.String(), "Bone to plot")
	cmd.Flags().StringVar(&channel, "channel", string(animation.ChannelRotation), "Channel to plot")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Image path (.png, .svg or .pdf)")
	return cmd
}
