package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newScenesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "Inspect and generate the chapter script scenes",
	}
	cmd.AddCommand(newScenesListCommand(ctx))
	cmd.AddCommand(newScenesExtractCommand(ctx))
	cmd.AddCommand(newSceneImagesCommand(ctx))
	cmd.AddCommand(newSceneImageCommand(ctx))
	return cmd
}

func newScenesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List script scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(_ context.Context, s *session) error {
				scenes := s.manager.Scenes().List()
				if ctx.jsonFlag {
					return writeJSON(cmd, scenes)
				}
				if s.manager.Scenes().Script() == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No script yet; run 'storyreel scenes extract'")
					return nil
				}
				rows := make([][]string, 0, len(scenes))
				for _, sc := range scenes {
					rows = append(rows, []string{
						strconv.Itoa(sc.OrderIndex),
						sc.ID,
						truncate(sc.Scene, 48),
						yesNo(sc.SceneImageURL != ""),
						strconv.Itoa(len(sc.Shots)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "#", align: alignRight},
					{title: "ID"},
					{title: "Scene", maxWidth: 48},
					{title: "Image"},
					{title: "Shots", align: alignRight},
				}, rows))
				return nil
			})
		},
	}
}

func newScenesExtractCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Break the chapter into a script of scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := requireGate(s, "extract_scenes", gen.force); err != nil {
					return err
				}
				return withChapterLock(s, func() error {
					out, err := s.manager.Scenes().Extract(runCtx, s.chapterID, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "extract scenes", "", out, false)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	addForceFlag(cmd, &gen)
	return cmd
}

func newSceneImagesCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Generate images for every scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				return withChapterLock(s, func() error {
					out, err := s.manager.Scenes().GenerateImages(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "scene images", "", out, true)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	return cmd
}

func newSceneImageCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	var regenerate bool
	cmd := &cobra.Command{
		Use:   "image <scene-id>",
		Short: "Generate the image of one scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				generate := s.manager.Scenes().GenerateImage
				if regenerate {
					generate = s.manager.Scenes().RegenerateImage
				}
				out, err := generate(runCtx, args[0], gen.params)
				if err != nil {
					return err
				}
				return reportOutcome(cmd, ctx, s, "scene image", args[0], out, false)
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Replace an existing image")
	return cmd
}
