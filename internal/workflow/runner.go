package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storyreel/internal/inflight"
	"storyreel/internal/ledger"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/services"
	"storyreel/internal/taskpoll"
)

const tracerName = "storyreel/internal/workflow"

// Operation kinds used as in-flight marker and ledger operation names.
const (
	KindExtractCharacters inflight.Kind = "extract_characters"
	KindAvatar            inflight.Kind = "avatar"
	KindBatchAvatars      inflight.Kind = "avatars"
	KindExtractScenes     inflight.Kind = "extract_scenes"
	KindSceneImages       inflight.Kind = "scene_images"
	KindSceneImage        inflight.Kind = "scene_image"
	KindExtractShots      inflight.Kind = "extract_shots"
	KindSceneShots        inflight.Kind = "scene_shots"
	KindKeyframes         inflight.Kind = "keyframes"
	KindKeyframe          inflight.Kind = "keyframe"
	KindCreateTransitions inflight.Kind = "create_transitions"
	KindTransitionVideos  inflight.Kind = "transition_videos"
	KindTransitionVideo   inflight.Kind = "transition_video"
)

// Outcome reports how a task-backed operation resolved.
type Outcome struct {
	RequestID string
	TaskID    string
	// Sync is set when the backend applied the change without a task.
	Sync   bool
	Result json.RawMessage
	// Batch holds the success/failed counts reported by batch operations.
	Batch movie.BatchResult
}

// ProgressFunc observes non-terminal poll results for an operation.
type ProgressFunc func(key inflight.Key, progress taskpoll.Progress)

type operation struct {
	key inflight.Key
	// subject is the entity recorded in the ledger and notifications. It
	// defaults to key.Target.
	subject     string
	batch       bool
	maxAttempts int
	submit      func(ctx context.Context) (movie.TaskHandle, error)
	// refresh re-fetches the data the task invalidated.
	refresh func(ctx context.Context, result json.RawMessage) error
}

func (op operation) name() string { return string(op.key.Kind) }

func (op operation) target() string {
	if op.subject != "" {
		return op.subject
	}
	return op.key.Target
}

// runner holds the collaborators shared by every stage workflow.
type runner struct {
	backend  movie.Backend
	poller   *taskpoll.Poller
	registry *inflight.Registry
	ledger   *ledger.Store
	notifier notifications.Service
	metrics  *metrics.Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	defaults      movie.GenerationParams
	avatarStyle   string
	interval      time.Duration
	maxAttempts   int
	videoAttempts int
	progress      ProgressFunc

	mu        sync.RWMutex
	projectID string
	chapterID string
	onChange  func()
}

func (r *runner) setScope(projectID, chapterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectID = projectID
	r.chapterID = chapterID
}

func (r *runner) scope() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projectID, r.chapterID
}

func (r *runner) scoped(ctx context.Context) context.Context {
	project, chapter := r.scope()
	if _, ok := services.ProjectFromContext(ctx); ok {
		project = ""
	}
	if _, ok := services.ChapterFromContext(ctx); ok {
		chapter = ""
	}
	return services.WithProject(ctx, project, chapter)
}

func (r *runner) changed() {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// params fills empty selectors from the configured generation defaults.
func (r *runner) params(stageName string, p movie.GenerationParams) (movie.GenerationParams, error) {
	if strings.TrimSpace(p.APIKeyID) == "" {
		p.APIKeyID = r.defaults.APIKeyID
	}
	if strings.TrimSpace(p.Model) == "" {
		p.Model = r.defaults.Model
	}
	if strings.TrimSpace(p.VideoModel) == "" {
		p.VideoModel = r.defaults.VideoModel
	}
	if strings.TrimSpace(p.APIKeyID) == "" {
		return p, services.Wrap(services.ErrConfiguration, stageName, "params", "generation.api_key_id is required", nil)
	}
	return p, nil
}

// submitAndAwait runs one task-backed operation end to end. The in-flight
// marker for op.key is held until the function returns.
func (r *runner) submitAndAwait(ctx context.Context, op operation) (out Outcome, err error) {
	name := op.name()
	release, err := r.registry.Acquire(op.key)
	if err != nil {
		r.metrics.Finished(name, string(services.OutcomeRejected), false, 0)
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "operation already in flight", "operation_rejected",
			logging.String(logging.FieldOperation, name),
			logging.String(logging.FieldTarget, op.target()),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "duplicate submission was not sent"),
		)
		return Outcome{}, err
	}
	defer release()

	requestID := uuid.NewString()
	ctx = r.scoped(ctx)
	ctx = services.WithOperation(ctx, name)
	ctx = services.WithRequestID(ctx, requestID)
	ctx, span := r.tracer.Start(ctx, "workflow."+name, trace.WithAttributes(
		attribute.String("operation", name),
		attribute.String("target", op.target()),
		attribute.String("request.id", requestID),
	))
	defer span.End()

	logger := logging.WithContext(ctx, r.logger)
	if target := op.target(); target != "" {
		logger = logger.With(logging.String(logging.FieldTarget, target))
	}

	started := r.now()
	entryID := r.beginEntry(ctx, logger, requestID, op)
	submitted := false
	out.RequestID = requestID

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic: %v", name, recovered)
			logging.ErrorWithContext(logger, "operation panicked", "operation_panic", logging.Error(err))
		}
		outcome := services.OutcomeOf(err)
		r.metrics.Finished(name, string(outcome), submitted, r.now().Sub(started))
		r.finishEntry(ctx, logger, entryID, outcome, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}()

	r.metrics.Submitted(name)
	submitted = true
	handle, err := op.submit(ctx)
	if err != nil {
		err = services.Wrap(services.ErrSubmission, "workflow", name, "submit", err)
		r.reportFailure(ctx, logger, op, err)
		return out, err
	}

	if !handle.Async() {
		out.Sync = true
		logger.Info("operation applied synchronously",
			logging.String(logging.FieldEventType, "operation_sync"),
		)
		if op.refresh != nil {
			if err = op.refresh(ctx, nil); err != nil {
				err = services.Wrap(services.ErrTransient, "workflow", name, "refresh after sync response", err)
				r.reportFailure(ctx, logger, op, err)
				return out, err
			}
		}
		r.changed()
		return out, nil
	}

	out.TaskID = strings.TrimSpace(handle.TaskID)
	span.SetAttributes(attribute.String("task.id", out.TaskID))
	logger = logger.With(logging.String(logging.FieldTaskID, out.TaskID))
	r.attachEntry(ctx, logger, entryID, out.TaskID)
	r.publish(ctx, logger, notifications.EventTaskSubmitted, notifications.Payload{
		"operation": name,
		"target":    op.target(),
		"taskID":    out.TaskID,
	})
	logger.Info("task submitted", logging.String(logging.FieldEventType, "task_submitted"))

	maxAttempts := r.maxAttempts
	if op.maxAttempts > 0 {
		maxAttempts = op.maxAttempts
	}
	result, err := r.poller.Poll(ctx, out.TaskID, taskpoll.Options{
		Interval:    r.interval,
		MaxAttempts: maxAttempts,
		OnProgress: func(p taskpoll.Progress) {
			r.recordAttempt(ctx, logger, entryID, p.Attempt)
			if r.progress != nil {
				r.progress(op.key, p)
			}
		},
	})
	if err != nil {
		r.reportFailure(ctx, logger, op, err)
		return out, err
	}
	out.Result = result

	if op.batch {
		out.Batch = movie.DecodeBatchResult(result)
	}
	if op.refresh != nil {
		if err = op.refresh(ctx, result); err != nil {
			err = services.Wrap(services.ErrTransient, "workflow", name, "refresh after task success", err)
			r.reportFailure(ctx, logger, op, err)
			return out, err
		}
	}
	r.changed()

	if op.batch {
		logger.Info("batch task completed",
			logging.String(logging.FieldEventType, "batch_completed"),
			logging.Int("success", out.Batch.Success),
			logging.Int("failed", out.Batch.Failed),
		)
		r.publish(ctx, logger, notifications.EventBatchCompleted, notifications.Payload{
			"operation": name,
			"target":    op.target(),
			"taskID":    out.TaskID,
			"success":   out.Batch.Success,
			"failed":    out.Batch.Failed,
		})
	} else {
		logger.Info("task completed", logging.String(logging.FieldEventType, "task_completed"))
		r.publish(ctx, logger, notifications.EventTaskCompleted, notifications.Payload{
			"operation": name,
			"target":    op.target(),
			"taskID":    out.TaskID,
		})
	}
	return out, nil
}

// reportFailure logs a failed operation and publishes the matching
// notification. Cancellation is logged only.
func (r *runner) reportFailure(ctx context.Context, logger *slog.Logger, op operation, err error) {
	outcome := services.OutcomeOf(err)
	if outcome == services.OutcomeCanceled {
		logger.Info("operation canceled",
			logging.String(logging.FieldEventType, "operation_canceled"),
			logging.Error(err),
		)
		return
	}
	logging.ErrorWithContext(logger, "operation failed", "operation_failed",
		logging.String("outcome", string(outcome)),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.Error(err),
	)
	event := notifications.EventTaskFailed
	if outcome == services.OutcomeTimedOut {
		event = notifications.EventTaskTimedOut
	}
	// Notifications outlive a deadline on the operation itself.
	r.publish(context.WithoutCancel(ctx), logger, event, notifications.Payload{
		"operation": op.name(),
		"target":    op.target(),
		"error":     err,
	})
}

func (r *runner) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("notification skipped, context canceled", logging.String(logging.FieldEventType, string(event)))
			return
		}
		logger.Debug("notification failed", logging.String(logging.FieldEventType, string(event)), logging.Error(err))
	}
}

func (r *runner) beginEntry(ctx context.Context, logger *slog.Logger, requestID string, op operation) int64 {
	if r.ledger == nil {
		return 0
	}
	project, _ := services.ProjectFromContext(ctx)
	chapter, _ := services.ChapterFromContext(ctx)
	entry, err := r.ledger.Begin(ctx, ledger.Entry{
		RequestID: requestID,
		Operation: op.name(),
		TargetID:  op.target(),
		ProjectID: project,
		ChapterID: chapter,
	})
	if err != nil {
		logging.WarnWithContext(logger, "ledger entry not recorded", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state_dir permissions and tasks.db"),
			logging.String(logging.FieldImpact, "operation runs but will not appear in 'tasks list'"),
		)
		return 0
	}
	return entry.ID
}

func (r *runner) attachEntry(ctx context.Context, logger *slog.Logger, id int64, taskID string) {
	if r.ledger == nil || id == 0 {
		return
	}
	if err := r.ledger.AttachTask(ctx, id, taskID); err != nil {
		logger.Debug("ledger task id not recorded", logging.Error(err))
	}
}

func (r *runner) recordAttempt(ctx context.Context, logger *slog.Logger, id int64, attempt int) {
	if r.ledger == nil || id == 0 {
		return
	}
	if err := r.ledger.RecordAttempt(ctx, id, attempt); err != nil {
		logger.Debug("ledger attempt not recorded", logging.Error(err))
	}
}

func (r *runner) finishEntry(ctx context.Context, logger *slog.Logger, id int64, outcome services.Outcome, cause error) {
	if r.ledger == nil || id == 0 {
		return
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := r.ledger.Finish(context.WithoutCancel(ctx), id, ledger.Status(outcome), message); err != nil {
		logger.Debug("ledger outcome not recorded", logging.Error(err))
	}
}

func newTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
