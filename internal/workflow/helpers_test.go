package workflow_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/ledger"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/testsupport"
	"storyreel/internal/workflow"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) has(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recordingNotifier) last(event notifications.Event) notifications.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i] == event {
			return r.payloads[i]
		}
	}
	return nil
}

type harness struct {
	cfg      *config.Config
	backend  *testsupport.FakeBackend
	manager  *workflow.Manager
	notifier *recordingNotifier
	ledger   *ledger.Store
	metrics  *metrics.Recorder
}

func newHarness(t *testing.T, state testsupport.State, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	backend := testsupport.NewFakeBackend(state)
	notifier := &recordingNotifier{}
	store := testsupport.MustOpenLedger(t, cfg)
	rec := metrics.New()

	manager, err := workflow.NewManager(cfg, backend, logging.NewNop(),
		workflow.WithLedger(store),
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(rec),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &harness{
		cfg:      cfg,
		backend:  backend,
		manager:  manager,
		notifier: notifier,
		ledger:   store,
		metrics:  rec,
	}
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	if err := h.manager.LoadAll(context.Background(), "ch1", "p1"); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
}

func (h *harness) entryFor(t *testing.T, taskID string) *ledger.Entry {
	t.Helper()
	entry, err := h.ledger.FindByTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("FindByTask(%s): %v", taskID, err)
	}
	return entry
}

func (h *harness) onlyEntry(t *testing.T) ledger.Entry {
	t.Helper()
	entries, err := h.ledger.List(context.Background(), ledger.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	return entries[0]
}

func pipelineState() testsupport.State {
	return testsupport.State{
		Characters: []movie.Character{
			{ID: "c1", ProjectID: "p1", Name: "Ada"},
			{ID: "c2", ProjectID: "p1", Name: "Ben"},
		},
		Script: &movie.Script{
			ID:        "s1",
			ChapterID: "ch1",
			Scenes: []movie.Scene{
				{ID: "sc1", OrderIndex: 0, Shots: []movie.Shot{
					{ID: "sh2", SceneID: "sc1", OrderIndex: 2},
					{ID: "sh1", SceneID: "sc1", OrderIndex: 1},
				}},
				{ID: "sc2", OrderIndex: 1, Shots: []movie.Shot{
					{ID: "sh3", SceneID: "sc2", OrderIndex: 3},
				}},
			},
		},
	}
}

func charactersOnly() testsupport.State {
	state := pipelineState()
	state.Script = nil
	return state
}

func setSceneImage(state *testsupport.State, sceneID string) {
	if state.Script == nil {
		return
	}
	for i := range state.Script.Scenes {
		if state.Script.Scenes[i].ID == sceneID {
			state.Script.Scenes[i].SceneImageURL = "/images/" + sceneID + ".png"
		}
	}
}

func setAvatar(state *testsupport.State, characterID string) {
	for i := range state.Characters {
		if state.Characters[i].ID == characterID {
			state.Characters[i].AvatarURL = "/avatars/" + characterID + ".png"
		}
	}
}

func keyframeAll(state *testsupport.State) {
	if state.Script == nil {
		return
	}
	for si := range state.Script.Scenes {
		for i := range state.Script.Scenes[si].Shots {
			shot := &state.Script.Scenes[si].Shots[i]
			shot.KeyframeURL = "/keyframes/" + shot.ID + ".png"
		}
	}
}

func pending() movie.TaskRecord {
	return movie.TaskRecord{Status: movie.TaskPending}
}

func success(result string) movie.TaskRecord {
	return movie.TaskRecord{Status: movie.TaskSuccess, Result: json.RawMessage(result)}
}

func failure(result string) movie.TaskRecord {
	return movie.TaskRecord{Status: movie.TaskFailure, Result: json.RawMessage(result)}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type result struct {
	outcome workflow.Outcome
	err     error
}

func async(fn func() (workflow.Outcome, error)) <-chan result {
	ch := make(chan result, 1)
	go func() {
		out, err := fn()
		ch <- result{outcome: out, err: err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not finish")
		return result{}
	}
}
