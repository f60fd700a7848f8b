package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/stage"
)

type gateView struct {
	Name   string `json:"name"`
	Open   bool   `json:"open"`
	Detail string `json:"detail,omitempty"`
}

type statusView struct {
	ProjectID       string     `json:"project_id"`
	ChapterID       string     `json:"chapter_id"`
	Stage           string     `json:"stage"`
	StageIndex      int        `json:"stage_index"`
	Characters      int        `json:"characters"`
	AllHaveAvatars  bool       `json:"all_have_avatars"`
	HasScript       bool       `json:"has_script"`
	Scenes          int        `json:"scenes"`
	Shots           int        `json:"shots"`
	AllKeyframed    bool       `json:"all_keyframed"`
	Transitions     int        `json:"transitions"`
	Gates           []gateView `json:"gates"`
	InFlightActions []string   `json:"in_flight,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline stage and gates of a chapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withChapter(cmd, func(_ context.Context, s *session) error {
				summary := s.manager.Status()
				view := statusView{
					ProjectID:      summary.ProjectID,
					ChapterID:      summary.ChapterID,
					Stage:          summary.Stage.String(),
					StageIndex:     int(summary.Stage),
					Characters:     summary.Snapshot.CharacterCount,
					AllHaveAvatars: summary.Snapshot.AllHaveAvatars,
					HasScript:      summary.Snapshot.HasScript,
					Scenes:         summary.Snapshot.SceneCount,
					Shots:          summary.Snapshot.ShotCount,
					AllKeyframed:   summary.Snapshot.AllKeyframed,
					Transitions:    summary.Snapshot.TransitionCount,
				}
				for _, g := range summary.Gates {
					view.Gates = append(view.Gates, gateView{Name: g.Name, Open: g.Open, Detail: g.Detail})
				}
				for _, key := range summary.InFlight {
					view.InFlightActions = append(view.InFlightActions, key.String())
				}
				if ctx.jsonFlag {
					return writeJSON(cmd, view)
				}
				renderStatus(cmd, view, summary.Stage)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, view statusView, current stage.Stage) {
	out := cmd.OutOrStdout()
	p := paletteFor(out)

	fmt.Fprintln(out, p.bold(fmt.Sprintf("Chapter %s (project %s)", view.ChapterID, view.ProjectID)))
	labels := make([]string, 0, len(stage.All()))
	for _, st := range stage.All() {
		label := st.Label()
		if st == current {
			label = "[" + label + "]"
		}
		labels = append(labels, label)
	}
	fmt.Fprintf(out, "%sStage: %s\n", indent, strings.Join(labels, " > "))
	fmt.Fprintf(out, "%sCharacters: %d (avatars complete: %s)\n", indent, view.Characters, yesNo(view.AllHaveAvatars))
	fmt.Fprintf(out, "%sScenes: %d  Shots: %d (keyframes complete: %s)\n", indent, view.Scenes, view.Shots, yesNo(view.AllKeyframed))
	fmt.Fprintf(out, "%sTransitions: %d\n", indent, view.Transitions)
	if len(view.InFlightActions) > 0 {
		fmt.Fprintf(out, "%sIn flight: %s\n", indent, strings.Join(view.InFlightActions, ", "))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, p.bold("Gates"))
	for _, g := range view.Gates {
		fmt.Fprintln(out, gateLine(p, g.Name, g.Open, g.Detail))
	}
}
