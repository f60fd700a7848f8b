package movie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// GetTask fetches the current record of a backend task.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	var record TaskRecord
	if err := c.getJSON(ctx, "/tasks/"+segment(taskID), &record); err != nil {
		return TaskRecord{}, err
	}
	record.Status = TaskStatus(strings.ToUpper(strings.TrimSpace(string(record.Status))))
	return record, nil
}

// ListCharacters returns the characters of a project.
func (c *Client) ListCharacters(ctx context.Context, projectID string) ([]Character, error) {
	var resp struct {
		Characters []Character `json:"characters"`
	}
	if err := c.getJSON(ctx, "/movie/projects/"+segment(projectID)+"/characters", &resp); err != nil {
		return nil, err
	}
	return resp.Characters, nil
}

// ExtractCharacters submits character extraction for a chapter.
func (c *Client) ExtractCharacters(ctx context.Context, chapterID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/chapters/"+segment(chapterID)+"/extract-characters", params.ForImage())
}

// GenerateAvatar submits a single avatar generation as a multipart form.
func (c *Client) GenerateAvatar(ctx context.Context, characterID string, params AvatarParams) (TaskHandle, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"api_key_id", params.APIKeyID},
		{"model", params.Model},
		{"prompt", params.Prompt},
		{"style", params.Style},
	}
	if len(params.ReferenceIndices) > 0 {
		indices := make([]string, 0, len(params.ReferenceIndices))
		for _, idx := range params.ReferenceIndices {
			indices = append(indices, strconv.Itoa(idx))
		}
		fields = append(fields, [2]string{"selected_reference_indices", strings.Join(indices, ",")})
	}
	for _, field := range fields {
		if field[0] != "api_key_id" && strings.TrimSpace(field[1]) == "" {
			continue
		}
		if err := form.WriteField(field[0], field[1]); err != nil {
			return TaskHandle{}, fmt.Errorf("write form field %s: %w", field[0], err)
		}
	}
	if err := form.Close(); err != nil {
		return TaskHandle{}, fmt.Errorf("close avatar form: %w", err)
	}

	var raw json.RawMessage
	path := "/movie/characters/" + segment(characterID) + "/generate"
	if err := c.do(ctx, http.MethodPost, path, &buf, form.FormDataContentType(), &raw); err != nil {
		return TaskHandle{}, err
	}
	return decodeHandle(raw), nil
}

// BatchGenerateAvatars submits avatar generation for every character of a project.
func (c *Client) BatchGenerateAvatars(ctx context.Context, projectID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/projects/"+segment(projectID)+"/characters/batch-generate", params.ForImage())
}

// DeleteCharacter removes a character.
func (c *Client) DeleteCharacter(ctx context.Context, characterID string) error {
	return c.delete(ctx, "/movie/characters/"+segment(characterID))
}

// UploadReferenceImage attaches a reference image to a character.
func (c *Client) UploadReferenceImage(ctx context.Context, characterID, filename string, content io.Reader) error {
	if content == nil {
		return errors.New("reference image content is required")
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy reference image: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close reference form: %w", err)
	}
	path := "/movie/characters/" + segment(characterID) + "/reference-images"
	return c.do(ctx, http.MethodPost, path, &buf, form.FormDataContentType(), nil)
}

// DeleteReferenceImage removes the reference image at index.
func (c *Client) DeleteReferenceImage(ctx context.Context, characterID string, index int) error {
	return c.delete(ctx, "/movie/characters/"+segment(characterID)+"/reference-images/"+strconv.Itoa(index))
}

// GetScript returns the chapter's script, or nil when none exists yet. Both a
// 404 and a null body mean "no script".
func (c *Client) GetScript(ctx context.Context, chapterID string) (*Script, error) {
	var script *Script
	if err := c.getJSON(ctx, "/movie/chapters/"+segment(chapterID)+"/script", &script); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if script != nil && strings.TrimSpace(script.ID) == "" {
		return nil, nil
	}
	return script, nil
}

// ExtractScenes submits scene extraction for a chapter.
func (c *Client) ExtractScenes(ctx context.Context, chapterID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/chapters/"+segment(chapterID)+"/scenes", params.ForImage())
}

// GenerateSceneImages submits scene image generation for a whole script.
func (c *Client) GenerateSceneImages(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scripts/"+segment(scriptID)+"/scene-images", params.ForImage())
}

// GenerateSceneImage submits image generation for one scene.
func (c *Client) GenerateSceneImage(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scenes/"+segment(sceneID)+"/scene-image", params.ForImage())
}

// RegenerateSceneImage discards and regenerates one scene image.
func (c *Client) RegenerateSceneImage(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scenes/"+segment(sceneID)+"/regenerate-scene-image", params.ForImage())
}

// ExtractShots submits shot extraction for every scene of a script.
func (c *Client) ExtractShots(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scripts/"+segment(scriptID)+"/extract-shots", params.ForImage())
}

// ExtractSceneShots submits shot extraction for one scene.
func (c *Client) ExtractSceneShots(ctx context.Context, sceneID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scenes/"+segment(sceneID)+"/extract-shots", params.ForImage())
}

// UpdateShot edits a shot in place.
func (c *Client) UpdateShot(ctx context.Context, shotID string, update ShotUpdate) error {
	return c.sendJSON(ctx, http.MethodPut, "/movie/shots/"+segment(shotID), update, nil)
}

// GenerateKeyframe submits keyframe generation for one shot.
func (c *Client) GenerateKeyframe(ctx context.Context, shotID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/shots/"+segment(shotID)+"/generate-keyframe", params.ForImage())
}

// GenerateKeyframes submits keyframe generation for every shot of a script.
func (c *Client) GenerateKeyframes(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scripts/"+segment(scriptID)+"/generate-keyframes", params.ForImage())
}

// ListTransitions returns the transitions of a script.
func (c *Client) ListTransitions(ctx context.Context, scriptID string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.getJSON(ctx, "/movie/scripts/"+segment(scriptID)+"/transitions", &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

// GetTransition fetches one transition.
func (c *Client) GetTransition(ctx context.Context, transitionID string) (Transition, error) {
	var transition Transition
	if err := c.getJSON(ctx, "/movie/transitions/"+segment(transitionID), &transition); err != nil {
		return Transition{}, err
	}
	return transition, nil
}

// CreateTransitions submits transition creation between consecutive shots.
func (c *Client) CreateTransitions(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scripts/"+segment(scriptID)+"/create-transitions", params.ForImage())
}

// GenerateTransitionVideos submits video generation for every transition of a script.
func (c *Client) GenerateTransitionVideos(ctx context.Context, scriptID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/scripts/"+segment(scriptID)+"/generate-transition-videos", params.ForVideo())
}

// GenerateTransitionVideo submits video generation for one transition.
func (c *Client) GenerateTransitionVideo(ctx context.Context, transitionID string, params GenerationParams) (TaskHandle, error) {
	return c.submit(ctx, "/movie/transitions/"+segment(transitionID)+"/generate-video", params.ForVideo())
}

// UpdateTransitionPrompt replaces a transition's video prompt.
func (c *Client) UpdateTransitionPrompt(ctx context.Context, transitionID, prompt string) error {
	payload := map[string]string{"video_prompt": prompt}
	return c.sendJSON(ctx, http.MethodPut, "/movie/transitions/"+segment(transitionID), payload, nil)
}

// DeleteTransition removes a transition.
func (c *Client) DeleteTransition(ctx context.Context, transitionID string) error {
	return c.delete(ctx, "/movie/transitions/"+segment(transitionID))
}
