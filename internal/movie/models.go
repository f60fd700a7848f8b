package movie

import (
	"encoding/json"
	"strings"
)

// TaskStatus is the backend worker state of a submitted task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "PENDING"
	TaskStarted  TaskStatus = "STARTED"
	TaskProgress TaskStatus = "PROGRESS"
	TaskSuccess  TaskStatus = "SUCCESS"
	TaskFailure  TaskStatus = "FAILURE"
)

// IsTerminal reports whether the status ends a poll.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// IsKnown reports whether the status is one the backend documents.
func (s TaskStatus) IsKnown() bool {
	switch s {
	case TaskPending, TaskStarted, TaskProgress, TaskSuccess, TaskFailure:
		return true
	default:
		return false
	}
}

// TaskRecord is the response of the task status endpoint.
type TaskRecord struct {
	Status TaskStatus      `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// FailureMessage extracts the user-facing failure reason from a FAILURE
// result, preferring result.message over result.error. Plain string results
// are returned as-is.
func (r TaskRecord) FailureMessage() string {
	if len(r.Result) == 0 {
		return ""
	}
	var fields struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(r.Result, &fields); err == nil {
		if msg := strings.TrimSpace(fields.Message); msg != "" {
			return msg
		}
		return strings.TrimSpace(fields.Error)
	}
	var text string
	if err := json.Unmarshal(r.Result, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}

// TaskHandle is returned by every submission. An empty TaskID means the
// backend handled the request synchronously.
type TaskHandle struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// Async reports whether the handle refers to a backend task.
func (h TaskHandle) Async() bool {
	return strings.TrimSpace(h.TaskID) != ""
}

// BatchResult is the summary a batch task reports on success.
type BatchResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// DecodeBatchResult reads a batch summary from a task result. Results that are
// not batch summaries decode to the zero value.
func DecodeBatchResult(raw json.RawMessage) BatchResult {
	var out BatchResult
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// GenerationParams are the opaque credential and model selectors forwarded to
// the backend on every submission.
type GenerationParams struct {
	APIKeyID   string `json:"api_key_id"`
	Model      string `json:"model,omitempty"`
	VideoModel string `json:"video_model,omitempty"`
}

// AvatarParams describe a single character avatar generation.
type AvatarParams struct {
	GenerationParams
	Prompt string
	Style  string
	// ReferenceIndices selects a subset of the character's reference images.
	ReferenceIndices []int
}

// Character is a named persona extracted from a project's chapters.
type Character struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id,omitempty"`
	Name            string   `json:"name"`
	Role            string   `json:"role,omitempty"`
	Description     string   `json:"description,omitempty"`
	AvatarURL       string   `json:"avatar_url,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	EraBackground   string   `json:"era_background,omitempty"`
	Occupation      string   `json:"occupation,omitempty"`
	KeyVisualTraits []string `json:"key_visual_traits,omitempty"`
	GeneratedPrompt string   `json:"generated_prompt,omitempty"`
}

// HasAvatar reports whether the character has a generated avatar.
func (c Character) HasAvatar() bool {
	return strings.TrimSpace(c.AvatarURL) != ""
}

// Script is the scene breakdown derived from a chapter.
type Script struct {
	ID        string  `json:"id"`
	ChapterID string  `json:"chapter_id,omitempty"`
	Title     string  `json:"title,omitempty"`
	Scenes    []Scene `json:"scenes"`
}

// Scene is one ordered unit of a script.
type Scene struct {
	ID               string   `json:"id"`
	ScriptID         string   `json:"script_id,omitempty"`
	OrderIndex       int      `json:"order_index"`
	Scene            string   `json:"scene,omitempty"`
	Characters       []string `json:"characters,omitempty"`
	SceneImageURL    string   `json:"scene_image_url,omitempty"`
	SceneImagePrompt string   `json:"scene_image_prompt,omitempty"`
	Shots            []Shot   `json:"shots"`
}

// Shot is one camera shot of a scene. OrderIndex is relative to the scene.
type Shot struct {
	ID             string   `json:"id"`
	SceneID        string   `json:"scene_id,omitempty"`
	OrderIndex     int      `json:"order_index"`
	Shot           string   `json:"shot,omitempty"`
	Dialogue       string   `json:"dialogue,omitempty"`
	Characters     []string `json:"characters,omitempty"`
	KeyframeURL    string   `json:"keyframe_url,omitempty"`
	KeyframePrompt string   `json:"keyframe_prompt,omitempty"`
}

// HasKeyframe reports whether the shot has a generated keyframe image.
func (s Shot) HasKeyframe() bool {
	return strings.TrimSpace(s.KeyframeURL) != ""
}

// ShotUpdate carries editable shot fields. Nil fields are left unchanged.
type ShotUpdate struct {
	Shot       *string  `json:"shot,omitempty"`
	Dialogue   *string  `json:"dialogue,omitempty"`
	Characters []string `json:"characters,omitempty"`
}

// Transition is a generated video bridging two consecutive shots.
type Transition struct {
	ID          string `json:"id"`
	ScriptID    string `json:"script_id,omitempty"`
	FromShotID  string `json:"from_shot_id"`
	ToShotID    string `json:"to_shot_id"`
	OrderIndex  int    `json:"order_index"`
	VideoPrompt string `json:"video_prompt,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	VideoTaskID string `json:"video_task_id,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ForImage returns the selectors sent to text and image submissions.
func (p GenerationParams) ForImage() GenerationParams {
	return GenerationParams{APIKeyID: p.APIKeyID, Model: p.Model}
}

// ForVideo returns the selectors sent to video submissions.
func (p GenerationParams) ForVideo() GenerationParams {
	return GenerationParams{APIKeyID: p.APIKeyID, VideoModel: p.VideoModel}
}
