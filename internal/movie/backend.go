package movie

import (
	"context"
	"io"
)

// TaskSource exposes the task status primitive the poller depends on.
type TaskSource interface {
	GetTask(ctx context.Context, taskID string) (TaskRecord, error)
}

// CharacterBackend covers the character stage endpoints.
type CharacterBackend interface {
	ListCharacters(ctx context.Context, projectID string) ([]Character, error)
	ExtractCharacters(ctx context.Context, chapterID string, params GenerationParams) (TaskHandle, error)
	GenerateAvatar(ctx context.Context, characterID string, params AvatarParams) (TaskHandle, error)
	BatchGenerateAvatars(ctx context.Context, projectID string, params GenerationParams) (TaskHandle, error)
	DeleteCharacter(ctx context.Context, characterID string) error
	UploadReferenceImage(ctx context.Context, characterID, filename string, content io.Reader) error
	DeleteReferenceImage(ctx context.Context, characterID string, index int) error
}

// SceneBackend covers the script and scene image endpoints.
type SceneBackend interface {
	// GetScript returns nil without error when the chapter has no script yet.
	GetScript(ctx context.Context, chapterID string) (*Script, error)
	ExtractScenes(ctx context.Context, chapterID string, params GenerationParams) (TaskHandle, error)
	GenerateSceneImages(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error)
	GenerateSceneImage(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error)
	RegenerateSceneImage(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error)
}

// ShotBackend covers shot extraction, edits, and keyframe endpoints.
type ShotBackend interface {
	ExtractShots(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error)
	ExtractSceneShots(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error)
	UpdateShot(ctx context.Context, shotID string, update ShotUpdate) error
	GenerateKeyframe(ctx context.Context, shotID string, params GenerationParams) (TaskHandle, error)
	GenerateKeyframes(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error)
}

// TransitionBackend covers transition creation, edits, and video endpoints.
type TransitionBackend interface {
	ListTransitions(ctx context.Context, scriptID string) ([]Transition, error)
	GetTransition(ctx context.Context, transitionID string) (Transition, error)
	CreateTransitions(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error)
	GenerateTransitionVideos(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error)
	GenerateTransitionVideo(ctx context.Context, transitionID string, params GenerationParams) (TaskHandle, error)
	UpdateTransitionPrompt(ctx context.Context, transitionID, prompt string) error
	DeleteTransition(ctx context.Context, transitionID string) error
}

// Backend is the full collaborator surface the stage workflows depend on.
type Backend interface {
	TaskSource
	CharacterBackend
	SceneBackend
	ShotBackend
	TransitionBackend
}

var _ Backend = (*Client)(nil)
