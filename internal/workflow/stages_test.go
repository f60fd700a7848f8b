package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyreel/internal/movie"
	"storyreel/internal/services"
	"storyreel/internal/stage"
	"storyreel/internal/testsupport"
)

func TestCharacterMutationsReloadList(t *testing.T) {
	state := pipelineState()
	state.Characters[0].ReferenceImages = []string{"/uploads/a.png"}
	h := newHarness(t, state)
	h.load(t)
	ctx := context.Background()
	chars := h.manager.Characters()

	if err := chars.UploadReferenceImage(ctx, "c1", "b.png", strings.NewReader("png")); err != nil {
		t.Fatalf("UploadReferenceImage: %v", err)
	}
	c1, _ := chars.Find("c1")
	if len(c1.ReferenceImages) != 2 || c1.ReferenceImages[1] != "/uploads/b.png" {
		t.Fatalf("unexpected references %v", c1.ReferenceImages)
	}

	if err := chars.DeleteReferenceImage(ctx, "c1", 0); err != nil {
		t.Fatalf("DeleteReferenceImage: %v", err)
	}
	c1, _ = chars.Find("c1")
	if len(c1.ReferenceImages) != 1 || c1.ReferenceImages[0] != "/uploads/b.png" {
		t.Fatalf("unexpected references after delete %v", c1.ReferenceImages)
	}
	if err := chars.DeleteReferenceImage(ctx, "c1", -1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative index, got %v", err)
	}

	if err := chars.Delete(ctx, "c2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := len(chars.List()); got != 1 {
		t.Fatalf("expected 1 character, got %d", got)
	}
	if err := chars.Delete(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchAvatarsUnlockKeyframes(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Respond("BatchGenerateAvatars", pending(), success(`{"success":2,"failed":0}`))
	h.backend.OnSuccess("BatchGenerateAvatars", func(state *testsupport.State, _ string) {
		setAvatar(state, "c1")
		setAvatar(state, "c2")
	})
	h.load(t)

	if h.manager.CanGenerateKeyframes() {
		t.Fatal("keyframes should be locked before avatars")
	}
	out, err := h.manager.Characters().BatchGenerateAvatars(context.Background(), movie.GenerationParams{})
	if err != nil {
		t.Fatalf("BatchGenerateAvatars: %v", err)
	}
	if out.Batch.Success != 2 {
		t.Fatalf("unexpected batch result %#v", out.Batch)
	}
	if !h.manager.CanGenerateKeyframes() {
		t.Fatal("keyframes should unlock once every character has an avatar")
	}
	for _, c := range h.backend.Calls() {
		if c.Method == "BatchGenerateAvatars" && c.Target != "p1" {
			t.Fatalf("batch avatars should target the project, got %q", c.Target)
		}
	}
}

func TestKeyframesThenTransitions(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.OnSuccess("GenerateKeyframes", func(state *testsupport.State, _ string) { keyframeAll(state) })
	h.backend.Respond("CreateTransitions", success(`{"success":2}`))
	h.backend.OnSuccess("CreateTransitions", func(state *testsupport.State, scriptID string) {
		state.Transitions = []movie.Transition{
			{ID: "t1", ScriptID: scriptID, FromShotID: "sh1", ToShotID: "sh2", OrderIndex: 0},
			{ID: "t2", ScriptID: scriptID, FromShotID: "sh2", ToShotID: "sh3", OrderIndex: 1},
		}
	})
	h.load(t)
	ctx := context.Background()

	if _, err := h.manager.Shots().GenerateKeyframes(ctx, movie.GenerationParams{}); err != nil {
		t.Fatalf("GenerateKeyframes: %v", err)
	}
	if h.manager.CurrentStage() != stage.Transitions {
		t.Fatalf("expected transitions stage, got %s", h.manager.CurrentStage())
	}
	if _, err := h.manager.Transitions().Create(ctx, movie.GenerationParams{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := len(h.manager.Transitions().List()); got != 2 {
		t.Fatalf("expected 2 transitions, got %d", got)
	}
	if h.manager.CurrentStage() != stage.Final {
		t.Fatalf("expected final stage, got %s", h.manager.CurrentStage())
	}
	if !h.manager.CanGenerateTransitionVideos() {
		t.Fatal("videos should unlock with transitions")
	}
}

func TestShotUpdateReloadsScript(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.load(t)
	ctx := context.Background()

	dialogue := "We ride at dawn."
	if err := h.manager.Shots().Update(ctx, "sh1", movie.ShotUpdate{Dialogue: &dialogue}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	shot, ok := h.manager.Shots().Find("sh1")
	if !ok || shot.Dialogue != dialogue {
		t.Fatalf("expected updated dialogue, got %#v", shot)
	}
	if err := h.manager.Shots().Update(ctx, "sh1", movie.ShotUpdate{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty update, got %v", err)
	}
}

func TestExtractShotsForScene(t *testing.T) {
	state := pipelineState()
	state.Script.Scenes[1].Shots = nil
	h := newHarness(t, state)
	h.backend.OnSuccess("ExtractSceneShots", func(state *testsupport.State, sceneID string) {
		for i := range state.Script.Scenes {
			if state.Script.Scenes[i].ID == sceneID {
				state.Script.Scenes[i].Shots = []movie.Shot{{ID: "sh9", SceneID: sceneID, OrderIndex: 9}}
			}
		}
	})
	h.load(t)

	if _, err := h.manager.Shots().ExtractForScene(context.Background(), "sc2", movie.GenerationParams{}); err != nil {
		t.Fatalf("ExtractForScene: %v", err)
	}
	all := h.manager.Shots().All()
	if len(all) != 3 || all[2].ID != "sh9" || all[2].SceneID != "sc2" {
		t.Fatalf("unexpected shots after extraction: %#v", all)
	}
}

func TestTransitionEdits(t *testing.T) {
	state := pipelineState()
	state.Transitions = []movie.Transition{
		{ID: "t1", ScriptID: "s1", FromShotID: "sh1", ToShotID: "sh2"},
		{ID: "t2", ScriptID: "s1", FromShotID: "sh2", ToShotID: "sh3"},
	}
	h := newHarness(t, state)
	h.load(t)
	ctx := context.Background()
	transitions := h.manager.Transitions()

	if err := transitions.UpdatePrompt(ctx, "t1", "  slow dolly in  "); err != nil {
		t.Fatalf("UpdatePrompt: %v", err)
	}
	if got := transitions.List()[0].VideoPrompt; got != "slow dolly in" {
		t.Fatalf("expected cached prompt update, got %q", got)
	}
	if err := transitions.UpdatePrompt(ctx, "t1", " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for blank prompt, got %v", err)
	}

	h.backend.Mutate(func(state *testsupport.State) {
		state.Transitions[1].VideoURL = "/videos/t2.mp4"
	})
	got, err := transitions.Get(ctx, "t2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.VideoURL == "" || transitions.List()[1].VideoURL == "" {
		t.Fatal("expected Get to refresh the cached transition")
	}

	if err := transitions.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if list := transitions.List(); len(list) != 1 || list[0].ID != "t2" {
		t.Fatalf("unexpected transitions after delete: %#v", list)
	}
}
