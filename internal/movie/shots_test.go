package movie

import (
	"encoding/json"
	"testing"
)

func TestFlattenShotsOrdersAcrossScenes(t *testing.T) {
	script := &Script{
		ID: "s",
		Scenes: []Scene{
			{ID: "a", Shots: []Shot{{ID: "a2", OrderIndex: 2}, {ID: "a1", OrderIndex: 1}}},
			{ID: "b", Shots: []Shot{{ID: "b1", OrderIndex: 1}}},
		},
	}
	flat := FlattenShots(script)
	want := []struct{ id, scene string }{{"a1", "a"}, {"b1", "b"}, {"a2", "a"}}
	if len(flat) != len(want) {
		t.Fatalf("len = %d, want %d", len(flat), len(want))
	}
	for i, w := range want {
		if flat[i].ID != w.id || flat[i].SceneID != w.scene {
			t.Fatalf("flat[%d] = %s/%s, want %s/%s", i, flat[i].ID, flat[i].SceneID, w.id, w.scene)
		}
	}
}

func TestFlattenShotsNilScript(t *testing.T) {
	if got := FlattenShots(nil); len(got) != 0 {
		t.Fatalf("expected no shots, got %d", len(got))
	}
}

func TestAllKeyframedVacuous(t *testing.T) {
	if !AllKeyframed(nil) {
		t.Fatal("empty slice should be all keyframed")
	}
	shots := []FlatShot{{Shot: Shot{KeyframeURL: "x"}}, {Shot: Shot{}}}
	if AllKeyframed(shots) {
		t.Fatal("expected false with a missing keyframe")
	}
}

func TestAllHaveAvatars(t *testing.T) {
	if !AllHaveAvatars(nil) {
		t.Fatal("empty slice should pass")
	}
	if AllHaveAvatars([]Character{{AvatarURL: "u"}, {AvatarURL: "  "}}) {
		t.Fatal("blank avatar url should not count")
	}
}

func TestFailureMessagePrecedence(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"message":"m","error":"e"}`, "m"},
		{`{"error":"e"}`, "e"},
		{`"plain"`, "plain"},
		{`{}`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		record := TaskRecord{Status: TaskFailure, Result: json.RawMessage(tt.raw)}
		if got := record.FailureMessage(); got != tt.want {
			t.Fatalf("FailureMessage(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFindScene(t *testing.T) {
	script := &Script{Scenes: []Scene{{ID: "a"}, {ID: "b", OrderIndex: 2}}}
	scene, ok := script.FindScene("b")
	if !ok || scene.OrderIndex != 2 {
		t.Fatalf("FindScene = %+v, %v", scene, ok)
	}
	if _, ok := (*Script)(nil).FindScene("a"); ok {
		t.Fatal("nil script should not find scenes")
	}
}
