package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"storyreel/internal/ledger"
	"storyreel/internal/testsupport"
)

func TestEntryLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	entry, err := store.Begin(ctx, ledger.Entry{
		RequestID: "req-1",
		Operation: "scene_image",
		TargetID:  "scene-1",
		ProjectID: "proj-1",
		ChapterID: "chap-1",
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if entry.ID == 0 || entry.Status != ledger.StatusSubmitting {
		t.Fatalf("unexpected new entry: %#v", entry)
	}
	if entry.Duration() != 0 {
		t.Fatalf("open entry should have zero duration, got %s", entry.Duration())
	}

	if err := store.AttachTask(ctx, entry.ID, "task-9"); err != nil {
		t.Fatalf("AttachTask failed: %v", err)
	}
	if err := store.RecordAttempt(ctx, entry.ID, 3); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	found, err := store.FindByTask(ctx, "task-9")
	if err != nil {
		t.Fatalf("FindByTask failed: %v", err)
	}
	if found.ID != entry.ID || found.Status != ledger.StatusPolling || found.Attempts != 3 {
		t.Fatalf("unexpected polling entry: %#v", found)
	}

	if err := store.Finish(ctx, entry.ID, ledger.StatusFailed, "  content policy  "); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	done, err := store.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if done.Status != ledger.StatusFailed || done.Message != "content policy" {
		t.Fatalf("unexpected finished entry: %#v", done)
	}
	if done.FinishedAt.IsZero() {
		t.Fatal("expected finished_at to be set")
	}
}

func TestBeginRequiresIdentifiers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if _, err := store.Begin(ctx, ledger.Entry{Operation: "characters"}); err == nil {
		t.Fatal("expected error without request id")
	}
	if _, err := store.Begin(ctx, ledger.Entry{RequestID: "req"}); err == nil {
		t.Fatal("expected error without operation")
	}
}

func TestFinishRejectsOpenStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	entry, err := store.Begin(ctx, ledger.Entry{RequestID: "req", Operation: "characters"})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := store.Finish(ctx, entry.ID, ledger.StatusPolling, ""); err == nil {
		t.Fatal("expected Finish to reject a non-terminal status")
	}
}

func TestUpdateMissingEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	err := store.AttachTask(context.Background(), 404, "task")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindByTask(context.Background(), "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from FindByTask, got %v", err)
	}
}

func TestListFiltersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	seed := []struct {
		request string
		chapter string
		status  ledger.Status
	}{
		{"r1", "chap-a", ledger.StatusSucceeded},
		{"r2", "chap-b", ledger.StatusFailed},
		{"r3", "chap-a", ledger.StatusFailed},
		{"r4", "chap-a", ledger.StatusPolling},
	}
	for _, s := range seed {
		entry, err := store.Begin(ctx, ledger.Entry{RequestID: s.request, Operation: "keyframe", ChapterID: s.chapter})
		if err != nil {
			t.Fatalf("Begin %s: %v", s.request, err)
		}
		switch s.status {
		case ledger.StatusPolling:
			err = store.AttachTask(ctx, entry.ID, "task-"+s.request)
		default:
			err = store.Finish(ctx, entry.ID, s.status, "")
		}
		if err != nil {
			t.Fatalf("transition %s: %v", s.request, err)
		}
	}

	all, err := store.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 || all[0].RequestID != "r4" || all[3].RequestID != "r1" {
		t.Fatalf("expected newest first, got %#v", all)
	}

	chapterA, err := store.List(ctx, ledger.Filter{ChapterID: "chap-a", Status: ledger.StatusFailed})
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(chapterA) != 1 || chapterA[0].RequestID != "r3" {
		t.Fatalf("unexpected filtered entries: %#v", chapterA)
	}

	limited, err := store.List(ctx, ledger.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List limited failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(limited))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[ledger.StatusFailed] != 2 || stats[ledger.StatusSucceeded] != 1 || stats[ledger.StatusPolling] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestReclaimStaleMarksOpenEntriesAbandoned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger.SetClock(store, func() time.Time { return base })

	stale, err := store.Begin(ctx, ledger.Entry{RequestID: "stale", Operation: "avatar"})
	if err != nil {
		t.Fatalf("Begin stale: %v", err)
	}
	finished, err := store.Begin(ctx, ledger.Entry{RequestID: "done", Operation: "avatar"})
	if err != nil {
		t.Fatalf("Begin done: %v", err)
	}
	if err := store.Finish(ctx, finished.ID, ledger.StatusSucceeded, ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	ledger.SetClock(store, func() time.Time { return base.Add(10 * time.Minute) })
	fresh, err := store.Begin(ctx, ledger.Entry{RequestID: "fresh", Operation: "avatar"})
	if err != nil {
		t.Fatalf("Begin fresh: %v", err)
	}

	n, err := store.ReclaimStale(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed entry, got %d", n)
	}

	for id, want := range map[int64]ledger.Status{
		stale.ID:    ledger.StatusAbandoned,
		finished.ID: ledger.StatusSucceeded,
		fresh.ID:    ledger.StatusSubmitting,
	} {
		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %d: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("entry %d: expected %s, got %s", id, want, got.Status)
		}
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	store, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.OpenPath(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := first.Begin(ctx, ledger.Entry{RequestID: "keep", Operation: "characters"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	_ = first.Close()

	second := testsupport.MustOpenLedger(t, cfg)
	if second.Path() != cfg.LedgerPath() {
		t.Fatalf("unexpected path %q", second.Path())
	}
	entries, err := second.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "keep" {
		t.Fatalf("expected persisted entry, got %#v", entries)
	}
}
