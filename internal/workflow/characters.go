package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"storyreel/internal/inflight"
	"storyreel/internal/logging"
	"storyreel/internal/movie"
	"storyreel/internal/services"
)

const stageCharacters = "characters"

// Characters owns the project's character list.
type Characters struct {
	rt *runner

	mu         sync.RWMutex
	projectID  string
	characters []movie.Character
}

func newCharacters(rt *runner) *Characters {
	return &Characters{rt: rt}
}

// List returns a copy of the cached characters.
func (c *Characters) List() []movie.Character {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]movie.Character(nil), c.characters...)
}

// Find returns the cached character with id.
func (c *Characters) Find(id string) (movie.Character, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.characters {
		if ch.ID == id {
			return ch, true
		}
	}
	return movie.Character{}, false
}

// ProjectID returns the project the list was loaded for.
func (c *Characters) ProjectID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectID
}

// GeneratingAvatars returns the character ids with an avatar task in flight.
func (c *Characters) GeneratingAvatars() []string {
	return c.rt.registry.Active(KindAvatar)
}

// BatchGenerating reports whether a batch avatar task is in flight.
func (c *Characters) BatchGenerating() bool {
	return c.rt.registry.Has(inflight.Batch(KindBatchAvatars))
}

// Extracting reports whether a character extraction is in flight.
func (c *Characters) Extracting() bool {
	return c.rt.registry.Busy(KindExtractCharacters)
}

// Load fetches the characters of projectID and replaces the cache.
func (c *Characters) Load(ctx context.Context, projectID string) ([]movie.Character, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, services.Wrap(services.ErrValidation, stageCharacters, "load", "project id is required", nil)
	}
	list, err := c.rt.backend.ListCharacters(ctx, projectID)
	c.mu.Lock()
	c.projectID = projectID
	c.characters = append([]movie.Character(nil), list...)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	logging.WithContext(ctx, c.rt.logger).Debug("characters loaded",
		logging.String(logging.FieldProjectID, projectID),
		logging.Int("count", len(list)),
	)
	return list, nil
}

// reset drops the cached characters and project.
func (c *Characters) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectID = ""
	c.characters = nil
}

func (c *Characters) reload(ctx context.Context, _ json.RawMessage) error {
	projectID := c.ProjectID()
	if projectID == "" {
		projectID, _ = c.rt.scope()
	}
	if projectID == "" {
		return nil
	}
	_, err := c.Load(ctx, projectID)
	return err
}

func (c *Characters) requireProject(op string) (string, error) {
	projectID := c.ProjectID()
	if projectID == "" {
		projectID, _ = c.rt.scope()
	}
	if projectID == "" {
		return "", services.Wrap(services.ErrValidation, stageCharacters, op, "no project loaded", nil)
	}
	return projectID, nil
}

// Extract submits character extraction for chapterID and reloads the
// project's characters when the task succeeds.
func (c *Characters) Extract(ctx context.Context, chapterID string, params movie.GenerationParams) (Outcome, error) {
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageCharacters, "extract", "chapter id is required", nil)
	}
	if _, err := c.requireProject("extract"); err != nil {
		return Outcome{}, err
	}
	params, err := c.rt.params(stageCharacters, params)
	if err != nil {
		return Outcome{}, err
	}
	return c.rt.submitAndAwait(services.WithStage(ctx, stageCharacters), operation{
		key:     inflight.Batch(KindExtractCharacters),
		subject: chapterID,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return c.rt.backend.ExtractCharacters(ctx, chapterID, params.ForImage())
		},
		refresh: c.reload,
	})
}

// GenerateAvatar generates the avatar of one character. Avatars of different
// characters may generate concurrently.
func (c *Characters) GenerateAvatar(ctx context.Context, characterID string, params movie.AvatarParams) (Outcome, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, stageCharacters, "avatar", "character id is required", nil)
	}
	base, err := c.rt.params(stageCharacters, params.GenerationParams)
	if err != nil {
		return Outcome{}, err
	}
	params.GenerationParams = base.ForImage()
	if strings.TrimSpace(params.Style) == "" {
		params.Style = c.rt.avatarStyle
	}
	return c.rt.submitAndAwait(services.WithStage(ctx, stageCharacters), operation{
		key: inflight.Item(KindAvatar, characterID),
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return c.rt.backend.GenerateAvatar(ctx, characterID, params)
		},
		refresh: c.reload,
	})
}

// BatchGenerateAvatars generates avatars for every character of the loaded
// project.
func (c *Characters) BatchGenerateAvatars(ctx context.Context, params movie.GenerationParams) (Outcome, error) {
	projectID, err := c.requireProject("batch_avatars")
	if err != nil {
		return Outcome{}, err
	}
	params, err = c.rt.params(stageCharacters, params)
	if err != nil {
		return Outcome{}, err
	}
	return c.rt.submitAndAwait(services.WithStage(ctx, stageCharacters), operation{
		key:     inflight.Batch(KindBatchAvatars),
		subject: projectID,
		batch:   true,
		submit: func(ctx context.Context) (movie.TaskHandle, error) {
			return c.rt.backend.BatchGenerateAvatars(ctx, projectID, params.ForImage())
		},
		refresh: c.reload,
	})
}

// Delete removes a character and reloads the list.
func (c *Characters) Delete(ctx context.Context, characterID string) error {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return services.Wrap(services.ErrValidation, stageCharacters, "delete", "character id is required", nil)
	}
	if err := c.rt.backend.DeleteCharacter(ctx, characterID); err != nil {
		return fmt.Errorf("delete character %s: %w", characterID, err)
	}
	return c.mutated(ctx)
}

// UploadReferenceImage attaches a reference image to a character.
func (c *Characters) UploadReferenceImage(ctx context.Context, characterID, filename string, content io.Reader) error {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return services.Wrap(services.ErrValidation, stageCharacters, "upload_reference", "character id is required", nil)
	}
	if strings.TrimSpace(filename) == "" {
		return services.Wrap(services.ErrValidation, stageCharacters, "upload_reference", "file name is required", nil)
	}
	if err := c.rt.backend.UploadReferenceImage(ctx, characterID, filename, content); err != nil {
		return fmt.Errorf("upload reference image for %s: %w", characterID, err)
	}
	return c.mutated(ctx)
}

// DeleteReferenceImage removes the reference image at index.
func (c *Characters) DeleteReferenceImage(ctx context.Context, characterID string, index int) error {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return services.Wrap(services.ErrValidation, stageCharacters, "delete_reference", "character id is required", nil)
	}
	if index < 0 {
		return services.Wrap(services.ErrValidation, stageCharacters, "delete_reference", "index must not be negative", nil)
	}
	if err := c.rt.backend.DeleteReferenceImage(ctx, characterID, index); err != nil {
		return fmt.Errorf("delete reference image %d for %s: %w", index, characterID, err)
	}
	return c.mutated(ctx)
}

func (c *Characters) mutated(ctx context.Context) error {
	if err := c.reload(ctx, nil); err != nil {
		return err
	}
	c.rt.changed()
	return nil
}
