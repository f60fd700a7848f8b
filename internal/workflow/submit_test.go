package workflow_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"storyreel/internal/inflight"
	"storyreel/internal/ledger"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/services"
	"storyreel/internal/testsupport"
	"storyreel/internal/workflow"
)

func TestGenerateImageReloadsOnlyTheScript(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Respond("GenerateSceneImage", pending(), success(`{"image_url":"/images/sc1.png"}`))
	h.backend.OnSuccess("GenerateSceneImage", setSceneImage)
	h.load(t)

	out, err := h.manager.Scenes().GenerateImage(context.Background(), "sc1", movie.GenerationParams{})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if out.TaskID != "task-1" || out.RequestID == "" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if got := h.manager.Scenes().List()[0].SceneImageURL; got != "/images/sc1.png" {
		t.Fatalf("expected refreshed image url, got %q", got)
	}
	if n := h.backend.CallCount("GetScript"); n != 2 {
		t.Fatalf("expected one script reload after load, got %d GetScript calls", n)
	}
	if n := h.backend.CallCount("ListTransitions"); n != 1 {
		t.Fatalf("transitions must not reload, got %d calls", n)
	}
	if h.manager.Registry().Len() != 0 {
		t.Fatalf("marker leaked: %v", h.manager.Registry().Snapshot())
	}

	entry := h.entryFor(t, "task-1")
	if entry.Status != ledger.StatusSucceeded || entry.Operation != "scene_image" || entry.TargetID != "sc1" {
		t.Fatalf("unexpected ledger entry %#v", entry)
	}
	if entry.RequestID != out.RequestID || entry.ChapterID != "ch1" || entry.ProjectID != "p1" {
		t.Fatalf("ledger entry missing session scope: %#v", entry)
	}
	if entry.Attempts != 1 {
		t.Fatalf("expected one recorded pending attempt, got %d", entry.Attempts)
	}
	if !h.notifier.has(notifications.EventTaskCompleted) {
		t.Fatal("expected completion notification")
	}
}

func TestTaskFailureClearsMarker(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Respond("GenerateKeyframe", failure(`{"message":"content policy","error":"ignored"}`))
	h.load(t)

	_, err := h.manager.Shots().GenerateKeyframe(context.Background(), "sh1", movie.GenerationParams{})
	if !errors.Is(err, services.ErrTaskFailed) {
		t.Fatalf("expected ErrTaskFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "content policy") {
		t.Fatalf("expected backend message, got %v", err)
	}
	if h.manager.Registry().Len() != 0 {
		t.Fatal("marker leaked after task failure")
	}
	if h.onlyEntry(t).Status != ledger.StatusFailed {
		t.Fatal("expected failed ledger entry")
	}
	payload := h.notifier.last(notifications.EventTaskFailed)
	if payload == nil || payload["target"] != "sh1" {
		t.Fatalf("expected failure notification for sh1, got %#v", payload)
	}
	if n := h.backend.CallCount("GetTask"); n != 1 {
		t.Fatalf("failure must not be retried, got %d queries", n)
	}
}

func TestTimeoutClearsMarker(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Respond("GenerateKeyframes", pending())
	h.load(t)

	_, err := h.manager.Shots().GenerateKeyframes(context.Background(), movie.GenerationParams{})
	var timeout *services.TaskTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TaskTimeoutError, got %v", err)
	}
	if timeout.Attempts != h.cfg.Poller.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", h.cfg.Poller.MaxAttempts, timeout.Attempts)
	}
	if n := h.backend.Queries("task-1"); n != h.cfg.Poller.MaxAttempts {
		t.Fatalf("expected %d queries, got %d", h.cfg.Poller.MaxAttempts, n)
	}
	if h.manager.Shots().BatchGenerating() {
		t.Fatal("batch marker leaked after timeout")
	}
	if h.onlyEntry(t).Status != ledger.StatusTimedOut {
		t.Fatal("expected timed_out ledger entry")
	}
	if !h.notifier.has(notifications.EventTaskTimedOut) {
		t.Fatal("expected timeout notification")
	}
}

func TestSubmissionErrorClearsMarker(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.FailNext("GenerateKeyframe", &movie.APIError{Method: http.MethodPost, Status: http.StatusUnprocessableEntity, Message: "shot has no description"})
	h.load(t)

	_, err := h.manager.Shots().GenerateKeyframe(context.Background(), "sh2", movie.GenerationParams{})
	if !errors.Is(err, services.ErrSubmission) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected submission+validation error, got %v", err)
	}
	if n := h.backend.CallCount("GetTask"); n != 0 {
		t.Fatalf("no polling expected after a submission error, got %d", n)
	}
	if len(h.manager.Shots().GeneratingKeyframes()) != 0 {
		t.Fatal("marker leaked after submission error")
	}
	if !h.notifier.has(notifications.EventTaskFailed) {
		t.Fatal("expected failure notification")
	}

	if _, err := h.manager.Shots().GenerateKeyframe(context.Background(), "sh2", movie.GenerationParams{}); err != nil {
		t.Fatalf("retry after submission error: %v", err)
	}
}

func TestSyncResponseSkipsPolling(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Synchronous("GenerateAvatar")
	h.backend.OnSuccess("GenerateAvatar", setAvatar)
	h.load(t)

	out, err := h.manager.Characters().GenerateAvatar(context.Background(), "c1", movie.AvatarParams{})
	if err != nil {
		t.Fatalf("GenerateAvatar: %v", err)
	}
	if !out.Sync || out.TaskID != "" {
		t.Fatalf("expected sync outcome, got %#v", out)
	}
	if n := h.backend.CallCount("GetTask"); n != 0 {
		t.Fatalf("sync path must not poll, got %d", n)
	}
	c1, _ := h.manager.Characters().Find("c1")
	if !c1.HasAvatar() {
		t.Fatal("expected cache to reflect the applied avatar")
	}
	if len(h.manager.Characters().GeneratingAvatars()) != 0 {
		t.Fatal("marker leaked on sync path")
	}
	if h.onlyEntry(t).Status != ledger.StatusSucceeded {
		t.Fatal("expected succeeded ledger entry")
	}
}

func TestAvatarForwardsImageSelectors(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.load(t)

	if _, err := h.manager.Characters().GenerateAvatar(context.Background(), "c2", movie.AvatarParams{Prompt: "in armor"}); err != nil {
		t.Fatalf("GenerateAvatar: %v", err)
	}
	calls := h.backend.Calls()
	for _, c := range calls {
		if c.Method == "GenerateAvatar" && (c.Target != "c2" || c.Params.APIKeyID != "test-key" || c.Params.VideoModel != "") {
			t.Fatalf("unexpected avatar call %#v", c)
		}
	}
}

func TestCancellationClearsMarker(t *testing.T) {
	h := newHarness(t, pipelineState(), testsupport.WithPoller(1, 100000))
	release := h.backend.Hold("sc1")
	defer release()
	h.load(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := async(func() (workflow.Outcome, error) {
		return h.manager.Scenes().GenerateImage(ctx, "sc1", movie.GenerationParams{})
	})
	waitFor(t, "first poll", func() bool { return h.backend.Queries("task-1") > 0 })
	if !h.manager.Scenes().IsGeneratingImage("sc1") {
		t.Fatal("expected marker while polling")
	}
	cancel()

	r := await(t, done)
	if !errors.Is(r.err, services.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", r.err)
	}
	if h.manager.Scenes().IsGeneratingImage("sc1") {
		t.Fatal("marker leaked after cancellation")
	}
	if h.onlyEntry(t).Status != ledger.StatusCanceled {
		t.Fatal("expected canceled ledger entry")
	}
	if h.notifier.has(notifications.EventTaskFailed) {
		t.Fatal("cancellation must not notify a failure")
	}
}

func TestPanicDuringOperationClearsMarker(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.OnSuccess("GenerateTransitionVideo", func(*testsupport.State, string) {
		panic("boom")
	})
	h.load(t)

	_, err := h.manager.Transitions().GenerateVideo(context.Background(), "t1", movie.GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected recovered panic error, got %v", err)
	}
	if len(h.manager.Transitions().GeneratingVideos()) != 0 {
		t.Fatal("marker leaked after panic")
	}
	if h.onlyEntry(t).Status != ledger.StatusFailed {
		t.Fatal("expected failed ledger entry")
	}
}

func TestDuplicateRejectedAndTargetsIsolated(t *testing.T) {
	h := newHarness(t, pipelineState(), testsupport.WithPoller(1, 100000))
	release := h.backend.Hold("sc1")
	h.backend.OnSuccess("GenerateSceneImage", setSceneImage)
	h.load(t)
	ctx := context.Background()

	first := async(func() (workflow.Outcome, error) {
		return h.manager.Scenes().GenerateImage(ctx, "sc1", movie.GenerationParams{})
	})
	waitFor(t, "sc1 marker", func() bool { return h.manager.Scenes().IsGeneratingImage("sc1") })

	_, err := h.manager.Scenes().GenerateImage(ctx, "sc1", movie.GenerationParams{})
	if !errors.Is(err, services.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if services.OutcomeOf(err) != services.OutcomeRejected {
		t.Fatalf("expected rejected outcome, got %s", services.OutcomeOf(err))
	}
	if n := h.backend.CallCount("GenerateSceneImage"); n != 1 {
		t.Fatalf("duplicate must not reach the backend, got %d submissions", n)
	}

	if _, err := h.manager.Scenes().GenerateImage(ctx, "sc2", movie.GenerationParams{}); err != nil {
		t.Fatalf("other scene should not be blocked: %v", err)
	}
	if got := h.manager.Scenes().GeneratingImages(); len(got) != 1 || got[0] != "sc1" {
		t.Fatalf("expected only sc1 in flight, got %v", got)
	}

	release()
	if r := await(t, first); r.err != nil {
		t.Fatalf("first GenerateImage: %v", r.err)
	}
	if h.manager.Registry().Len() != 0 {
		t.Fatalf("markers leaked: %v", h.manager.Registry().Snapshot())
	}
	for _, scene := range h.manager.Scenes().List() {
		if scene.SceneImageURL == "" {
			t.Fatalf("scene %s missing image after reload", scene.ID)
		}
	}
}

func TestPerSceneMarkersClearInCompletionOrder(t *testing.T) {
	h := newHarness(t, pipelineState(), testsupport.WithPoller(1, 100000))
	releaseSc1 := h.backend.Hold("sc1")
	releaseSc2 := h.backend.Hold("sc2")
	h.backend.OnSuccess("GenerateSceneImage", setSceneImage)
	h.load(t)
	ctx := context.Background()
	scenes := h.manager.Scenes()

	first := async(func() (workflow.Outcome, error) {
		return scenes.GenerateImage(ctx, "sc1", movie.GenerationParams{})
	})
	second := async(func() (workflow.Outcome, error) {
		return scenes.GenerateImage(ctx, "sc2", movie.GenerationParams{})
	})
	waitFor(t, "both scene markers", func() bool { return len(scenes.GeneratingImages()) == 2 })
	if got := scenes.GeneratingImages(); got[0] != "sc1" || got[1] != "sc2" {
		t.Fatalf("expected [sc1 sc2] in flight, got %v", got)
	}

	releaseSc2()
	if r := await(t, second); r.err != nil {
		t.Fatalf("sc2 GenerateImage: %v", r.err)
	}
	if got := scenes.GeneratingImages(); len(got) != 1 || got[0] != "sc1" {
		t.Fatalf("expected only sc1 in flight after sc2 resolved, got %v", got)
	}
	if !scenes.IsGeneratingImage("sc1") || scenes.IsGeneratingImage("sc2") {
		t.Fatal("sc2 completion must not touch the sc1 marker")
	}

	releaseSc1()
	if r := await(t, first); r.err != nil {
		t.Fatalf("sc1 GenerateImage: %v", r.err)
	}
	if got := scenes.GeneratingImages(); len(got) != 0 {
		t.Fatalf("expected nothing in flight, got %v", got)
	}
}

func TestAllowPolicyKeepsMarkerUntilLastHolder(t *testing.T) {
	h := newHarness(t, pipelineState(),
		testsupport.WithPoller(1, 100000),
		testsupport.WithDuplicatePolicy("allow"),
	)
	release := h.backend.Hold("sc1")
	h.load(t)
	ctx := context.Background()

	a := async(func() (workflow.Outcome, error) {
		return h.manager.Scenes().GenerateImage(ctx, "sc1", movie.GenerationParams{})
	})
	b := async(func() (workflow.Outcome, error) {
		return h.manager.Scenes().GenerateImage(ctx, "sc1", movie.GenerationParams{})
	})
	waitFor(t, "both submissions", func() bool { return h.backend.CallCount("GenerateSceneImage") == 2 })
	if !h.manager.Registry().Has(inflight.Item(workflow.KindSceneImage, "sc1")) {
		t.Fatal("expected sc1 marker")
	}

	release()
	for _, ch := range []<-chan result{a, b} {
		if r := await(t, ch); r.err != nil {
			t.Fatalf("GenerateImage: %v", r.err)
		}
	}
	if h.manager.Scenes().IsGeneratingImage("sc1") {
		t.Fatal("marker should clear after the last holder")
	}
}

func TestBatchAndSingleTrackedSeparately(t *testing.T) {
	h := newHarness(t, pipelineState(), testsupport.WithPoller(1, 100000))
	release := h.backend.Hold("s1")
	h.backend.Respond("GenerateSceneImages", success(`{"success":2,"failed":0}`))
	h.backend.OnSuccess("GenerateSceneImages", func(state *testsupport.State, _ string) {
		setSceneImage(state, "sc1")
		setSceneImage(state, "sc2")
	})
	h.load(t)
	ctx := context.Background()

	batch := async(func() (workflow.Outcome, error) {
		return h.manager.Scenes().GenerateImages(ctx, movie.GenerationParams{})
	})
	waitFor(t, "batch marker", h.manager.Scenes().BatchGenerating)

	if _, err := h.manager.Scenes().GenerateImage(ctx, "sc2", movie.GenerationParams{}); err != nil {
		t.Fatalf("single image during batch: %v", err)
	}
	if !h.manager.Scenes().BatchGenerating() {
		t.Fatal("single completion must not clear the batch marker")
	}
	if _, err := h.manager.Scenes().GenerateImages(ctx, movie.GenerationParams{}); !errors.Is(err, services.ErrDuplicate) {
		t.Fatalf("expected second batch to be rejected, got %v", err)
	}

	release()
	r := await(t, batch)
	if r.err != nil {
		t.Fatalf("GenerateImages: %v", r.err)
	}
	if r.outcome.Batch.Success != 2 || r.outcome.Batch.Failed != 0 {
		t.Fatalf("unexpected batch result %#v", r.outcome.Batch)
	}
	if h.manager.Scenes().BatchGenerating() {
		t.Fatal("batch marker leaked")
	}
	payload := h.notifier.last(notifications.EventBatchCompleted)
	if payload == nil || payload["success"] != 2 {
		t.Fatalf("expected batch notification, got %#v", payload)
	}
}

func TestVideoTasksUseVideoBudget(t *testing.T) {
	h := newHarness(t, pipelineState())
	h.backend.Respond("GenerateTransitionVideos", pending())
	h.load(t)

	_, err := h.manager.Transitions().GenerateVideos(context.Background(), movie.GenerationParams{})
	if !errors.Is(err, services.ErrTaskTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if n := h.backend.Queries("task-1"); n != h.cfg.Poller.VideoMaxAttempts {
		t.Fatalf("expected %d queries, got %d", h.cfg.Poller.VideoMaxAttempts, n)
	}
	for _, c := range h.backend.Calls() {
		if c.Method == "GenerateTransitionVideos" && (c.Params.VideoModel != "test-video-model" || c.Params.Model != "") {
			t.Fatalf("expected video selectors only, got %#v", c.Params)
		}
	}
}

func TestMissingAPIKeyFailsBeforeSubmission(t *testing.T) {
	h := newHarness(t, pipelineState(), testsupport.WithGeneration("", "", ""))
	h.load(t)

	_, err := h.manager.Shots().Extract(context.Background(), movie.GenerationParams{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if n := h.backend.CallCount("ExtractShots"); n != 0 {
		t.Fatalf("expected no submission, got %d", n)
	}

	if _, err := h.manager.Shots().Extract(context.Background(), movie.GenerationParams{APIKeyID: "explicit"}); err != nil {
		t.Fatalf("explicit key should be accepted: %v", err)
	}
}

func TestOperationsWithoutScriptAreRejected(t *testing.T) {
	h := newHarness(t, charactersOnly())
	h.load(t)
	ctx := context.Background()

	checks := []struct {
		name string
		run  func() (workflow.Outcome, error)
	}{
		{"scene images", func() (workflow.Outcome, error) { return h.manager.Scenes().GenerateImages(ctx, movie.GenerationParams{}) }},
		{"extract shots", func() (workflow.Outcome, error) { return h.manager.Shots().Extract(ctx, movie.GenerationParams{}) }},
		{"keyframes", func() (workflow.Outcome, error) { return h.manager.Shots().GenerateKeyframes(ctx, movie.GenerationParams{}) }},
		{"transitions", func() (workflow.Outcome, error) { return h.manager.Transitions().Create(ctx, movie.GenerationParams{}) }},
		{"videos", func() (workflow.Outcome, error) { return h.manager.Transitions().GenerateVideos(ctx, movie.GenerationParams{}) }},
	}
	for _, check := range checks {
		if _, err := check.run(); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", check.name, err)
		}
	}
}
