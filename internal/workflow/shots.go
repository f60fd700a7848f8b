package workflow

import (
	"context"
	"fmt"
	"strings"

	"storyreel/internal/inflight"
	"storyreel/internal/movie"
	"storyreel/internal/services"
)

const stageShots = "shots"

// Shots operates on the shots held in the Scenes script. Every task-backed
// shot operation reloads the owning script on success.
type Shots struct {
	rt     *runner
	scenes *Scenes
}

func newShots(rt *runner, scenes *Scenes) *Shots {
	return &Shots{rt: rt, scenes: scenes}
}

// All returns every shot of the script annotated with its scene id, ordered
// by OrderIndex. The view is derived on each call.
func (s *Shots) All() []movie.FlatShot {
	return movie.FlattenShots(s.scenes.Script())
}

// Find returns the shot with id from the derived view.
func (s *Shots) Find(id string) (movie.FlatShot, bool) {
	for _, shot := range s.All() {
		if shot.ID == id {
			return shot, true
		}
	}
	return movie.FlatShot{}, false
}

// GeneratingKeyframes returns the shot ids with a keyframe task in flight.
func (s *Shots) GeneratingKeyframes() []string {
	return s.rt.registry.Active(KindKeyframe)
}

// BatchGenerating reports whether the batch keyframe task is in flight.
func (s *Shots) BatchGenerating() bool {
	return s.rt.registry.Has(inflight.Batch(KindKeyframes))
}

// Extracting reports whether a shot extraction is in flight for the whole
// script or any scene.
func (s *Shots) Extracting() bool {
	return s.rt.registry.Busy(KindExtractShots) || s.rt.registry.Busy(KindSceneShots)
}

// Extract submits shot extraction for the whole script.
func (s *Shots) Extract(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	scriptID, err := s.scenes.requireScript("extract_shots")
	if err != nil {
		return Outcome{}, err
	}
	params, err = s.rt.params(stageShots, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageShots), operation{
		key:     inflight.Batch(KindExtractShots),
		subject: scriptID,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.ExtractShots(ctx, scriptID, params.ForImage())
		},
		refresh: s.scenes.reload,
	})
}

// ExtractForScene submits shot extraction for a single scene.
func (s *Shots) ExtractForScene(ctx context.Context, sceneID string, params movie.GenerationParams) (Outcome, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageShots, "extract_scene_shots", "scene id is required", nil)
	}
	params, err := s.rt.params(stageShots, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageShots), operation{
		key: inflight.Item(KindSceneShots, sceneID),
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.ExtractSceneShots(ctx, sceneID, params.ForImage())
		},
		refresh: s.scenes.reload,
	})
}

// GenerateKeyframes generates keyframes for every shot of the script.
func (s *Shots) GenerateKeyframes(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	scriptID, err := s.scenes.requireScript("keyframes")
	if err != nil {
		return Outcome{}, err
	}
	params, err = s.rt.params(stageShots, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageShots), operation{
		key:     inflight.Batch(KindKeyframes),
		subject: scriptID,
		batch:   true,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.GenerateKeyframes(ctx, scriptID, params.ForImage())
		},
		refresh: s.scenes.reload,
	})
}

// GenerateKeyframe generates the keyframe of one shot.
func (s *Shots) GenerateKeyframe(ctx context.Context, shotID string, params movie.GenerationParams) (Outcome, error) {
	shotID = strings.TrimSpace(shotID)
	if shotID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageShots, "keyframe", "shot id is required", nil)
	}
	params, err := s.rt.params(stageShots, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageShots), operation{
		key: inflight.Item(KindKeyframe, shotID),
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.GenerateKeyframe(ctx, shotID, params.ForImage())
		},
		refresh: s.scenes.reload,
	})
}

// Update edits a shot's description, dialogue, or characters and reloads the
// script.
func (s *Shots) Update(ctx context.Context, shotID string, update movie.ShotUpdate) error {
	shotID = strings.TrimSpace(shotID)
	if shotID == "" {
		return services.Wrap(services.ErrValidation, stageShots, "update", "shot id is required", nil)
	}
	if update.Shot == nil && update.Dialogue == nil && update.Characters == nil {
		return services.Wrap(services.ErrValidation, stageShots, "update", "nothing to update", nil)
	}
	if err := s.rt.backend.UpdateShot(ctx, shotID, update); err != nil {
		return fmt.Errorf("update shot %s: %w", shotID, err)
	}
	if err := s.scenes.reload(ctx, nil); err != nil {
		return err
	}
	s.rt.changed()
	return nil
}
