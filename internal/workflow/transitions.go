package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"storyreel/internal/inflight"
	"storyreel/internal/logging"
	"storyreel/internal/movie"
	"storyreel/internal/services"
)

const stageTransitions = "transitions"

// Transitions owns the transition list of the current script.
type Transitions struct {
	rt     *runner
	scenes *Scenes

	mu          sync.RWMutex
	scriptID    string
	transitions []movie.Transition
}

func newTransitions(rt *runner, scenes *Scenes) *Transitions {
	return &Transitions{rt: rt, scenes: scenes}
}

// List returns a copy of the cached transitions.
func (t *Transitions) List() []movie.Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]movie.Transition(nil), t.transitions...)
}

// GeneratingVideos returns the transition ids with a video task in flight.
func (t *Transitions) GeneratingVideos() []string {
	return t.rt.registry.Active(KindTransitionVideo)
}

// BatchGenerating reports whether the batch video task is in flight.
func (t *Transitions) BatchGenerating() bool {
	return t.rt.registry.Has(inflight.Batch(KindTransitionVideos))
}

// Creating reports whether transition creation is in flight.
func (t *Transitions) Creating() bool {
	return t.rt.registry.Busy(KindCreateTransitions)
}

// Load fetches the transitions of scriptID. A script without transitions
// yields an empty list.
func (t *Transitions) Load(ctx context.Context, scriptID string) ([]movie.Transition, error) {
	scriptID = strings.TrimSpace(scriptID)
	if scriptID == "" {
		return nil, services.Wrap(services.ErrValidation, stageTransitions, "load", "script id is required", nil)
	}
	list, err := t.rt.backend.ListTransitions(ctx, scriptID)
	if err != nil {
		list = nil
	}
	t.mu.Lock()
	t.scriptID = scriptID
	t.transitions = append([]movie.Transition(nil), list...)
	t.mu.Unlock()
	if err != nil && !movie.IsNotFound(err) {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	logging.WithContext(ctx, t.rt.logger).Debug("transitions loaded",
		logging.String("script_id", scriptID),
		logging.Int("count", len(list)),
	)
	return list, nil
}

// clear drops cached transitions, used when the chapter has no script or the
// script could not be loaded.
func (t *Transitions) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scriptID = ""
	t.transitions = nil
}

func (t *Transitions) currentScriptID() string {
	if id := t.scenes.ScriptID(); id != "" {
		return id
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scriptID
}

func (t *Transitions) reload(ctx context.Context, _ json.RawMessage) error {
	scriptID := t.currentScriptID()
	if scriptID == "" {
		return nil
	}
	_, err := t.Load(ctx, scriptID)
	return err
}

func (t *Transitions) requireScript(op string) (string, error) {
	if id := t.currentScriptID(); id != "" {
		return id, nil
	}
	return "", services.Wrap(services.ErrValidation, stageTransitions, op, "chapter has no script; extract scenes first", nil)
}

// Get fetches one transition and refreshes its cached copy.
func (t *Transitions) Get(ctx context.Context, transitionID string) (movie.Transition, error) {
	transitionID = strings.TrimSpace(transitionID)
	if transitionID == "" {
		return movie.Transition{}, services.Wrap(services.ErrValidation, stageTransitions, "get", "transition id is required", nil)
	}
	tr, err := t.rt.backend.GetTransition(ctx, transitionID)
	if err != nil {
		return movie.Transition{}, fmt.Errorf("get transition %s: %w", transitionID, err)
	}
	t.mu.Lock()
	for i := range t.transitions {
		if t.transitions[i].ID == tr.ID {
			t.transitions[i] = tr
			break
		}
	}
	t.mu.Unlock()
	return tr, nil
}

// Create submits transition creation between consecutive shots.
func (t *Transitions) Create(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	scriptID, err := t.requireScript("create_transitions")
	if err != nil {
		return Outcome{}, err
	}
	params, err = t.rt.params(stageTransitions, params)
	if err != nil {
		return Outcome{}, err
	}
	return t.rt.submitAndAwait(services.WithStage(ctx, stageTransitions), operation{
		key:     inflight.Batch(KindCreateTransitions),
		subject: scriptID,
		batch:   true,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return t.rt.backend.CreateTransitions(ctx, scriptID, params.ForImage())
		},
		refresh: t.reload,
	})
}

// GenerateVideos generates videos for every transition of the script. Video
// tasks use the longer video attempt budget.
func (t *Transitions) GenerateVideos(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	scriptID, err := t.requireScript("transition_videos")
	if err != nil {
		return Outcome{}, err
	}
	params, err = t.rt.params(stageTransitions, params)
	if err != nil {
		return Outcome{}, err
	}
	return t.rt.submitAndAwait(services.WithStage(ctx, stageTransitions), operation{
		key:         inflight.Batch(KindTransitionVideos),
		subject:     scriptID,
		batch:       true,
		maxAttempts: t.rt.videoAttempts,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return t.rt.backend.GenerateTransitionVideos(ctx, scriptID, params.ForVideo())
		},
		refresh: t.reload,
	})
}

// GenerateVideo generates the video of one transition.
func (t *Transitions) GenerateVideo(ctx context.Context, transitionID string, params movie.GenerationParams) (Outcome, error) {
	transitionID = strings.TrimSpace(transitionID)
	if transitionID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageTransitions, "transition_video", "transition id is required", nil)
	}
	params, err := t.rt.params(stageTransitions, params)
	if err != nil {
		return Outcome{}, err
	}
	return t.rt.submitAndAwait(services.WithStage(ctx, stageTransitions), operation{
		key:         inflight.Item(KindTransitionVideo, transitionID),
		maxAttempts: t.rt.videoAttempts,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return t.rt.backend.GenerateTransitionVideo(ctx, transitionID, params.ForVideo())
		},
		refresh: t.reload,
	})
}

// UpdatePrompt replaces the video prompt of a transition.
func (t *Transitions) UpdatePrompt(ctx context.Context, transitionID, prompt string) error {
	transitionID = strings.TrimSpace(transitionID)
	if transitionID == "" {
		return services.Wrap(services.ErrValidation, stageTransitions, "update_prompt", "transition id is required", nil)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return services.Wrap(services.ErrValidation, stageTransitions, "update_prompt", "prompt must not be empty", nil)
	}
	if err := t.rt.backend.UpdateTransitionPrompt(ctx, transitionID, prompt); err != nil {
		return fmt.Errorf("update transition %s prompt: %w", transitionID, err)
	}
	t.mu.Lock()
	for i := range t.transitions {
		if t.transitions[i].ID == transitionID {
			t.transitions[i].VideoPrompt = prompt
			break
		}
	}
	t.mu.Unlock()
	return nil
}

// Delete removes a transition and reloads the list.
func (t *Transitions) Delete(ctx context.Context, transitionID string) error {
	transitionID = strings.TrimSpace(transitionID)
	if transitionID == "" {
		return services.Wrap(services.ErrValidation, stageTransitions, "delete", "transition id is required", nil)
	}
	if err := t.rt.backend.DeleteTransition(ctx, transitionID); err != nil {
		return fmt.Errorf("delete transition %s: %w", transitionID, err)
	}
	if err := t.reload(ctx, nil); err != nil {
		return err
	}
	t.rt.changed()
	return nil
}
