package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newTransitionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Create and render transitions between shots",
	}
	cmd.AddCommand(newTransitionsListCommand(ctx))
	cmd.AddCommand(newTransitionsCreateCommand(ctx))
	cmd.AddCommand(newTransitionVideosCommand(ctx))
	cmd.AddCommand(newTransitionVideoCommand(ctx))
	cmd.AddCommand(newTransitionPromptCommand(ctx))
	cmd.AddCommand(newTransitionDeleteCommand(ctx))
	return cmd
}

func newTransitionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transitions of the script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(_ context.Context, s *session) error {
				transitions := s.manager.Transitions().List()
				if ctx.jsonFlag {
					return writeJSON(cmd, transitions)
				}
				if len(transitions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No transitions; run 'storyreel transitions create'")
					return nil
				}
				rows := make([][]string, 0, len(transitions))
				for _, tr := range transitions {
					rows = append(rows, []string{
						strconv.Itoa(tr.OrderIndex),
						tr.ID,
						tr.FromShotID + " → " + tr.ToShotID,
						yesNo(tr.VideoURL != ""),
						dash(tr.Status),
						dash(truncate(tr.VideoPrompt, 40)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "#", align: alignRight},
					{title: "ID"},
					{title: "Shots"},
					{title: "Video"},
					{title: "Status"},
					{title: "Prompt", maxWidth: 40},
				}, rows))
				return nil
			})
		},
	}
}

func newTransitionsCreateCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create transitions between consecutive shots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := requireGate(s, "create_transitions", gen.force); err != nil {
					return err
				}
				return withChapterLock(s, func() error {
					out, err := s.manager.Transitions().Create(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "create transitions", "", out, true)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, false)
	addForceFlag(cmd, &gen)
	return cmd
}

func newTransitionVideosCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "Render videos for every transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := requireGate(s, "generate_transition_videos", gen.force); err != nil {
					return err
				}
				return withChapterLock(s, func() error {
					out, err := s.manager.Transitions().GenerateVideos(runCtx, gen.params)
					if err != nil {
						return err
					}
					return reportOutcome(cmd, ctx, s, "transition videos", "", out, true)
				})
			})
		},
	}
	addGenerationFlags(cmd, &gen, true)
	addForceFlag(cmd, &gen)
	return cmd
}

func newTransitionVideoCommand(ctx *commandContext) *cobra.Command {
	var gen generationFlags
	cmd := &cobra.Command{
		Use:   "video <transition-id>",
		Short: "Render the video of one transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				out, err := s.manager.Transitions().GenerateVideo(runCtx, args[0], gen.params)
				if err != nil {
					return err
				}
				return reportOutcome(cmd, ctx, s, "transition video", args[0], out, false)
			})
		},
	}
	addGenerationFlags(cmd, &gen, true)
	return cmd
}

func newTransitionPromptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <transition-id> <prompt>...",
		Short: "Replace the video prompt of a transition",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args[1:], " ")
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := s.manager.Transitions().UpdatePrompt(runCtx, args[0], prompt); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated prompt of transition %s\n", args[0])
				return nil
			})
		},
	}
}

func newTransitionDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <transition-id>",
		Short: "Delete a transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(runCtx context.Context, s *session) error {
				if err := s.manager.Transitions().Delete(runCtx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted transition %s\n", args[0])
				return nil
			})
		},
	}
}
