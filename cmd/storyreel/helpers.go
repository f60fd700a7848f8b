package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/movie"
	"storyreel/internal/services"
	"storyreel/internal/workflow"
)

// generationFlags holds per-invocation overrides of the configured
// generation selectors.
type generationFlags struct {
	params movie.GenerationParams
	force  bool
}

func addGenerationFlags(cmd *cobra.Command, g *generationFlags, video bool) {
	cmd.Flags().StringVar(&g.params.APIKeyID, "api-key-id", "", "Override generation.api_key_id")
	cmd.Flags().StringVar(&g.params.Model, "model", "", "Override generation.model")
	if video {
		cmd.Flags().StringVar(&g.params.VideoModel, "video-model", "", "Override generation.video_model")
	}
}

func addForceFlag(cmd *cobra.Command, g *generationFlags) {
	cmd.Flags().BoolVar(&g.force, "force", false, "Submit even when the pipeline gate is closed")
}

// requireGate refuses a submission whose pipeline gate is closed unless
// forced.
func requireGate(s *session, name string, force bool) error {
	for _, gate := range s.manager.Status().Gates {
		if gate.Name != name {
			continue
		}
		if gate.Open || force {
			return nil
		}
		return services.Wrap(services.ErrValidation, "cli", name,
			gate.Detail+" (use --force to submit anyway)", nil)
	}
	return nil
}

type outcomeView struct {
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
	RequestID string `json:"request_id"`
	TaskID    string `json:"task_id,omitempty"`
	Sync      bool   `json:"sync"`
	Succeeded *int   `json:"succeeded,omitempty"`
	Failed    *int   `json:"failed,omitempty"`
	Stage     string `json:"stage"`
}

func reportOutcome(cmd *cobra.Command, c *commandContext, s *session, operation, target string, out workflow.Outcome, batch bool) error {
	view := outcomeView{
		Operation: operation,
		Target:    target,
		RequestID: out.RequestID,
		TaskID:    out.TaskID,
		Sync:      out.Sync,
		Stage:     s.manager.CurrentStage().String(),
	}
	if batch {
		view.Succeeded = &out.Batch.Success
		view.Failed = &out.Batch.Failed
	}
	if c.jsonFlag {
		return writeJSON(cmd, view)
	}

	w := cmd.OutOrStdout()
	subject := operation
	if target != "" {
		subject = fmt.Sprintf("%s %s", operation, target)
	}
	switch {
	case out.Sync:
		fmt.Fprintf(w, "%s applied\n", subject)
	default:
		fmt.Fprintf(w, "%s completed (task %s)\n", subject, out.TaskID)
	}
	if batch {
		fmt.Fprintf(w, "  %d succeeded, %d failed\n", out.Batch.Success, out.Batch.Failed)
	}
	fmt.Fprintf(w, "Current stage: %s\n", s.manager.CurrentStage().Label())
	return nil
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 || len([]rune(value)) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
