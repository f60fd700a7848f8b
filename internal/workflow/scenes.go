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

const stageScenes = "scenes"

// Scenes owns the chapter's script. Shots share this cache.
type Scenes struct {
	rt *runner

	mu        sync.RWMutex
	chapterID string
	script    *movie.Script
}

func newScenes(rt *runner) *Scenes {
	return &Scenes{rt: rt}
}

// Script returns the cached script, or nil when the chapter has none.
func (s *Scenes) Script() *movie.Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

// ScriptID returns the cached script id, or "".
func (s *Scenes) ScriptID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.script == nil {
		return ""
	}
	return s.script.ID
}

// List returns the cached scenes in script order.
func (s *Scenes) List() []movie.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.script == nil {
		return nil
	}
	return append([]movie.Scene(nil), s.script.Scenes...)
}

// ChapterID returns the chapter the script was loaded for.
func (s *Scenes) ChapterID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chapterID
}

// GeneratingImages returns the scene ids with a single image task in flight.
func (s *Scenes) GeneratingImages() []string {
	return s.rt.registry.Active(KindSceneImage)
}

// IsGeneratingImage reports whether sceneID has an image task in flight.
func (s *Scenes) IsGeneratingImage(sceneID string) bool {
	return s.rt.registry.Has(inflight.Item(KindSceneImage, sceneID))
}

// BatchGenerating reports whether the batch scene image task is in flight.
func (s *Scenes) BatchGenerating() bool {
	return s.rt.registry.Has(inflight.Batch(KindSceneImages))
}

// Extracting reports whether scene extraction is in flight.
func (s *Scenes) Extracting() bool {
	return s.rt.registry.Busy(KindExtractScenes)
}

// LoadScript fetches the script of chapterID. A chapter without a script
// yields a nil script and no error. On any other failure the cache is left
// empty for chapterID so nothing keeps acting on a stale script.
func (s *Scenes) LoadScript(ctx context.Context, chapterID string) (*movie.Script, error) {
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return nil, services.Wrap(services.ErrValidation, stageScenes, "load", "chapter id is required", nil)
	}
	script, err := s.rt.backend.GetScript(ctx, chapterID)
	if err != nil {
		script = nil
	}
	s.mu.Lock()
	s.chapterID = chapterID
	s.script = script
	s.mu.Unlock()
	if err != nil && !movie.IsNotFound(err) {
		return nil, fmt.Errorf("load script: %w", err)
	}

	logger := logging.WithContext(ctx, s.rt.logger)
	if script == nil {
		logger.Debug("chapter has no script yet", logging.String(logging.FieldChapterID, chapterID))
	} else {
		logger.Debug("script loaded",
			logging.String(logging.FieldChapterID, chapterID),
			logging.Int("scenes", len(script.Scenes)),
		)
	}
	return script, nil
}

// reset drops the cached script and chapter.
func (s *Scenes) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapterID = ""
	s.script = nil
}

func (s *Scenes) reload(ctx context.Context, _ json.RawMessage) error {
	chapterID := s.ChapterID()
	if chapterID == "" {
		_, chapterID = s.rt.scope()
	}
	if chapterID == "" {
		return nil
	}
	_, err := s.LoadScript(ctx, chapterID)
	return err
}

func (s *Scenes) requireScript(op string) (string, error) {
	if id := s.ScriptID(); id != "" {
		return id, nil
	}
	return "", services.Wrap(services.ErrValidation, stageScenes, op, "chapter has no script; extract scenes first", nil)
}

// Extract submits scene extraction for chapterID and reloads the script
// when the task succeeds.
func (s *Scenes) Extract(ctx context.Context, chapterID string, params movie.GenerationParams) (Outcome, error) {
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageScenes, "extract", "chapter id is required", nil)
	}
	params, err := s.rt.params(stageScenes, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageScenes), operation{
		key:     inflight.Batch(KindExtractScenes),
		subject: chapterID,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.ExtractScenes(ctx, chapterID, params.ForImage())
		},
		refresh: func(ctx context.Context, _ json.RawMessage) error {
			_, err := s.LoadScript(ctx, chapterID)
			return err
		},
	})
}

// GenerateImages generates images for every scene of the script.
func (s *Scenes) GenerateImages(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	scriptID, err := s.requireScript("scene_images")
	if err != nil {
		return Outcome{}, err
	}
	params, err = s.rt.params(stageScenes, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageScenes), operation{
		key:     inflight.Batch(KindSceneImages),
		subject: scriptID,
		batch:   true,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return s.rt.backend.GenerateSceneImages(ctx, scriptID, params.ForImage())
		},
		refresh: s.reload,
	})
}

// GenerateImage generates the image of one scene. Different scenes may
// generate concurrently.
func (s *Scenes) GenerateImage(ctx context.Context, sceneID string, params movie.GenerationParams) (Outcome, error) {
	return s.sceneImage(ctx, sceneID, params, false)
}

// RegenerateImage replaces the existing image of one scene.
func (s *Scenes) RegenerateImage(ctx context.Context, sceneID string, params movie.GenerationParams) (Outcome, error) {
	return s.sceneImage(ctx, sceneID, params, true)
}

func (s *Scenes) sceneImage(ctx context.Context, sceneID string, params movie.GenerationParams, regenerate bool) (Outcome, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageScenes, "scene_image", "scene id is required", nil)
	}
	params, err := s.rt.params(stageScenes, params)
	if err != nil {
		return Outcome{}, err
	}
	return s.rt.submitAndAwait(services.WithStage(ctx, stageScenes), operation{
		key: inflight.Item(KindSceneImage, sceneID),
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			if regenerate {
				return s.rt.backend.RegenerateSceneImage(ctx, sceneID, params.ForImage())
			}
			return s.rt.backend.GenerateSceneImage(ctx, sceneID, params.ForImage())
		},
		refresh: s.reload,
	})
}
