package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ayusman/posebake/internal/animation"
)

func newInspectCommand() *cobra.Command {
	var clipName string

	cmd := &cobra.Command{
		Use:         "inspect DOCUMENT",
		Short:       "Summarize and validate an animation document",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := animation.ReadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if clipName != "" {
				clip, ok := doc.Clip(clipName)
				if !ok {
					return fmt.Errorf("clip %q not found in %s", clipName, args[0])
				}
				fmt.Fprintln(out, renderClipTracks(clip))
			} else {
				fmt.Fprintln(out, renderClips(doc))
			}

			if err := doc.Validate(); err != nil {
				fmt.Fprintln(out, "Document is invalid:")
				fmt.Fprintln(out, err)
				return fmt.Errorf("validate %s: %w", args[0], err)
			}
			fmt.Fprintln(out, "Document is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&clipName, "clip", "", "Show per-bone tracks of one clip")
	return cmd
}

func renderClips(doc *animation.Document) string {
	var rows [][]string
	for _, c := range doc.Clips() {
		rows = append(rows, []string{
			c.Name,
			formatSeconds(c.Length),
			loopLabel(c),
			strconv.Itoa(len(c.BoneNames())),
			strconv.Itoa(c.TotalKeyframes()),
		})
	}
	return renderTable(
		[]string{"Clip", "Length", "Loop", "Bones", "Keyframes"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight},
	)
}

func renderClipTracks(clip *animation.Clip) string {
	var rows [][]string
	for _, bone := range clip.BoneNames() {
		for _, ch := range clip.ChannelsOf(bone) {
			keys := clip.Keyframes(bone, ch)
			first, last := "-", "-"
			if len(keys) > 0 {
				first = formatSeconds(keys[0].Time)
				last = formatSeconds(keys[len(keys)-1].Time)
			}
			rows = append(rows, []string{bone, string(ch), strconv.Itoa(len(keys)), first, last})
		}
	}
	return renderTable(
		[]string{"Bone", "Channel", "Keyframes", "First", "Last"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64) + "s"
}

func loopLabel(c *animation.Clip) string {
	if c.LoopMode != "" {
		return c.LoopMode
	}
	return yesNo(c.Loop)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
