package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/movie"
)

func newShotsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shots",
		Short: "Inspect, edit, and generate shots and keyframes",
	}
	cmd.AddCommand(newShotsListCommand(ctx))
	cmd.AddCommand(newShotsExtractCommand(ctx))
	cmd.AddCommand(newShotUpdateCommand(ctx))
	cmd.AddCommand(newKeyframesCommand(ctx))
	cmd.AddCommand(newKeyframeCommand(ctx))
	return cmd
}

func newShotsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every shot of the script in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(_ context.Context, s *session) error {
				shots := s.manager.Shots().All()
				if ctx.jsonFlag {
					return writeJSON(cmd, shots)
				}
				if len(shots) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No shots; run 'storyreel shots extract'")
					return nil
				}
				rows := make([][]string, 0, len(shots))
				for _, shot := range shots {
					rows = append(rows, []string{
						strconv.Itoa(shot.OrderIndex),
						shot.SceneID,
						shot.ID,
						yesNo(shot.HasKeyframe()),
						dash(truncate(shot.Dialogue, 40)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "#", align: alignRight},
					{title: "Scene"},
					{title: "ID"},
					{title: "Keyframe"},
					{title: "Dialogue", maxWidth: 40},
				}, rows))
				return nil
			})
		},
	}
}

func newShotsExtractCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	var sceneID string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract shots for the script or a single scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := requireGate(s, "extract_shots", gen.force); err != nil {
					return err
				}
				if scene := strings.TrimSpace(sceneID); scene != "" {
					out, err := s.manager.Shots().ExtractForScene(runCtx, scene, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "extract shots", scene, out, false)
				}
				return withChapterLock(s, func() error {
					out, err := s.manager.Shots().Extract(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "extract shots", "", out, false)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	addForceFlag(cmd, &gen)
	cmd.Flags().StringVar(&sceneID, "scene", "", "Only extract shots for this scene")
	return cmd
}

func newShotUpdateCommand(ctx *commandContext) *cobra.Command {
	var description, dialogue string
	var characters []string
	cmd := &cobra.Command{
		Use:   "update <shot-id>",
		Short: "Edit the description, dialogue, or characters of a shot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update movie.ShotUpdate
			if cmd.Flags().Changed("shot") {
				update.Shot = &description
			}
			if cmd.Flags().Changed("dialogue") {
				update.Dialogue = &dialogue
			}
			if cmd.Flags().Changed("characters") {
				update.Characters = characters
			}
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := s.manager.Shots().Update(runCtx, args[0], update); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated shot %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "shot", "", "Shot description")
	cmd.Flags().StringVar(&dialogue, "dialogue", "", "Shot dialogue")
	cmd.Flags().StringSliceVar(&characters, "characters", nil, "Character names in the shot")
	return cmd
}

func newKeyframesCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "keyframes",
		Short: "Generate keyframes for every shot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := requireGate(s, "generate_keyframes", gen.force); err != nil {
					return err
				}
				return withChapterLock(s, func() error {
					out, err := s.manager.Shots().GenerateKeyframes(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "keyframes", "", out, true)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	addForceFlag(cmd, &gen)
	return cmd
}

func newKeyframeCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "keyframe <shot-id>",
		Short: "Generate the keyframe of one shot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				out, err := s.manager.Shots().GenerateKeyframe(runCtx, args[0], gen.params)
				if err != nil {
					return err
				}
				return reportOutcome(cmd, ctx, s, "keyframe", args[0], out, false)
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	return cmd
}
