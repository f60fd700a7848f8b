package taskpoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/movie"
	"storyreel/internal/services"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 60

	progressLogEvery = 10
	tracerName       = "storyreel/internal/taskpoll"
)

// Progress describes one non-terminal status observation.
type Progress struct {
	TaskID      string
	Status      movie.TaskStatus
	Attempt     int
	MaxAttempts int
	Result      json.RawMessage
}

// Options tunes a single poll. Zero values fall back to the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// OnProgress is called for every PENDING, STARTED, or PROGRESS observation.
	OnProgress func(Progress)
}

func (o Options) normalized() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Poller waits for backend tasks to reach a terminal status.
type Poller struct {
	source  movie.TaskSource
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock injects the clock used between attempts.
func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logging.NewComponentLogger(logger, "taskpoll")
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(p *Poller) {
		p.metrics = rec
	}
}

// New constructs a Poller reading task status from source.
func New(source movie.TaskSource, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		clock:  RealClock(),
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll waits Interval, queries the task, and repeats until the task succeeds,
// fails, or MaxAttempts queries have been spent. It returns the SUCCESS result
// verbatim. FAILURE yields *services.TaskFailedError without retrying; an
// exhausted budget yields *services.TaskTimeoutError. Cancelling ctx stops the
// poll before the next wait or query.
func (p *Poller) Poll(ctx context.Context, taskID string, opts Options) (json.RawMessage, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, services.Wrap(services.ErrValidation, "taskpoll", "poll", "task id is required", nil)
	}
	opts = opts.normalized()

	ctx, span := p.tracer.Start(ctx, "taskpoll.Poll",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("task.max_attempts", opts.MaxAttempts),
			attribute.Int64("task.interval_ms", opts.Interval.Milliseconds()),
		),
	)
	defer span.End()

	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldTaskID, taskID))
	sampler := logging.NewProgressSampler(progressLogEvery)

	result, err := p.loop(ctx, logger, sampler, span, taskID, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (p *Poller) loop(ctx context.Context, logger *slog.Logger, sampler *logging.ProgressSampler, span trace.Span, taskID string, opts Options) (json.RawMessage, error) {
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(taskID, attempt, err)
		}
		if err := p.clock.Wait(ctx, opts.Interval); err != nil {
			return nil, canceled(taskID, attempt, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, canceled(taskID, attempt, err)
		}

		record, err := p.source.GetTask(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, canceled(taskID, attempt, ctxErr)
			}
			p.metrics.PollAttempt("")
			span.AddEvent("query_failed", trace.WithAttributes(attribute.Int("attempt", attempt)))
			if attempt == opts.MaxAttempts {
				return nil, &services.TaskTimeoutError{
					TaskID:   taskID,
					Attempts: opts.MaxAttempts,
					Interval: opts.Interval,
					Last:     err,
				}
			}
			logger.Warn("task status query failed; retrying",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Int("max_attempts", opts.MaxAttempts),
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_query_failed"),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "poll continues until the attempt budget is spent"),
			)
			continue
		}

		status := record.Status
		p.metrics.PollAttempt(string(status))
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("status", string(status)),
		))

		switch status {
		case movie.TaskSuccess:
			logger.Debug("task succeeded", logging.Int(logging.FieldAttempt, attempt))
			return record.Result, nil
		case movie.TaskFailure:
			failure := &services.TaskFailedError{TaskID: taskID, Message: record.FailureMessage()}
			logger.Debug("task failed", logging.Int(logging.FieldAttempt, attempt), logging.Error(failure))
			return nil, failure
		case movie.TaskPending, movie.TaskStarted, movie.TaskProgress:
			if sampler.ShouldLog(string(status), attempt) {
				logger.Debug("task progress",
					logging.String(logging.FieldTaskStatus, string(status)),
					logging.Int(logging.FieldAttempt, attempt),
					logging.Int("max_attempts", opts.MaxAttempts),
				)
			}
			if opts.OnProgress != nil {
				opts.OnProgress(Progress{
					TaskID:      taskID,
					Status:      status,
					Attempt:     attempt,
					MaxAttempts: opts.MaxAttempts,
					Result:      record.Result,
				})
			}
		default:
			logging.WarnWithContext(logger, "unknown task status; continuing", "task_status_unknown",
				logging.String(logging.FieldTaskStatus, string(status)),
				logging.Int(logging.FieldAttempt, attempt),
				logging.String(logging.FieldErrorHint, "check the backend task worker version"),
				logging.String(logging.FieldImpact, "poll continues until a known terminal status"),
			)
		}
	}
	return nil, &services.TaskTimeoutError{
		TaskID:   taskID,
		Attempts: opts.MaxAttempts,
		Interval: opts.Interval,
	}
}

func canceled(taskID string, attempt int, cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	msg := fmt.Sprintf("task %s poll stopped before attempt %d", taskID, attempt)
	if errors.Is(cause, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTaskTimeout, "taskpoll", "poll", msg, cause)
	}
	return services.Wrap(services.ErrCanceled, "taskpoll", "poll", msg, cause)
}
