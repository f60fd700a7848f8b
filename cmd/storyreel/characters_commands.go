package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"storyreel/internal/movie"
)

func newCharactersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "characters",
		Aliases: []string{"chars"},
		Short:   "Inspect and generate chapter characters",
	}
	cmd.AddCommand(newCharactersListCommand(ctx))
	cmd.AddCommand(newCharactersExtractCommand(ctx))
	cmd.AddCommand(newCharacterAvatarCommand(ctx))
	cmd.AddCommand(newCharacterAvatarsCommand(ctx))
	cmd.AddCommand(newCharacterDeleteCommand(ctx))
	cmd.AddCommand(newCharacterReferenceCommand(ctx))
	return cmd
}

func newCharactersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(_ context.Context, s *session) error {
				chars := s.manager.Characters().List()
				if ctx.jsonFlag {
					return writeJSON(cmd, chars)
				}
				if len(chars) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No characters; run 'storyreel characters extract'")
					return nil
				}
				rows := make([][]string, 0, len(chars))
				for _, c := range chars {
					rows = append(rows, []string{
						c.ID,
						c.Name,
						dash(c.Role),
						yesNo(c.HasAvatar()),
						strconv.Itoa(len(c.ReferenceImages)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "ID"},
					{title: "Name"},
					{title: "Role", maxWidth: 24},
					{title: "Avatar"},
					{title: "Refs", align: alignRight},
				}, rows))
				return nil
			})
		},
	}
}

func newCharactersExtractCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract characters from the chapter text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				return withChapterLock(s, func() error {
					out, err := s.manager.Characters().Extract(runCtx, s.chapterID, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "extract characters", "", out, false)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	return cmd
}

func newCharacterAvatarCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	var params movie.AvatarParams
	cmd := &cobra.Command{
		Use:   "avatar <character-id>",
		Short: "Generate the avatar of one character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				params.GenerationParams = gen.params
				out, err := s.manager.Characters().GenerateAvatar(runCtx, args[0], params)
				if err != nil {
					return err
				}
				return reportOutcome(cmd, ctx, s, "avatar", args[0], out, false)
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	cmd.Flags().StringVar(&params.Prompt, "prompt", "", "Extra prompt text for the avatar")
	cmd.Flags().StringVar(&params.Style, "style", "", "Avatar style (defaults to generation.avatar_style)")
	cmd.Flags().IntSliceVar(&params.ReferenceIndices, "ref", nil, "Reference image indices to condition on")
	return cmd
}

func newCharacterAvatarsCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:     "batch-avatars",
		Aliases: []string{"avatars"},
		Short:   "Generate avatars for every character of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				return withChapterLock(s, func() error {
					out, err := s.manager.Characters().BatchGenerateAvatars(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "avatars", "", out, true)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	return cmd
}

func newCharacterDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <character-id>",
		Short: "Delete a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := s.manager.Characters().Delete(runCtx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted character %s\n", args[0])
				return nil
			})
		},
	}
}

func newCharacterReferenceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ref",
		Short: "Manage character reference images",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <character-id> <image>",
		Short: "Upload a reference image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				file, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open reference image: %w", err)
				}
				defer file.Close()
				if err := s.manager.Characters().UploadReferenceImage(runCtx, args[0], filepath.Base(args[1]), file); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s for character %s\n", filepath.Base(args[1]), args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <character-id> <index>",
		Short: "Remove a reference image by index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid reference index %q", args[1])
			}
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := s.manager.Characters().DeleteReferenceImage(runCtx, args[0], index); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed reference image %d from character %s\n", index, args[0])
				return nil
			})
		},
	})
	return cmd
}
