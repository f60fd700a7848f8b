package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/inflight"
	"storyreel/internal/ledger"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/services"
	"storyreel/internal/stage"
	"storyreel/internal/taskpoll"
)

// Manager owns one pipeline session: the project and chapter identity, the
// four stage workflows, and the derived current stage.
type Manager struct {
	rt *runner

	characters  *Characters
	scenes      *Scenes
	shots       *Shots
	transitions *Transitions

	mu    sync.RWMutex
	stage stage.Stage
}

// Option configures optional Manager collaborators.
type Option func(*managerOptions)

type managerOptions struct {
	ledger   *ledger.Store
	notifier notifications.Service
	metrics  *metrics.Recorder
	clock    taskpoll.Clock
	progress ProgressFunc
	now      func() time.Time
}

// WithLedger records every submission in store.
func WithLedger(store *ledger.Store) Option {
	return func(o *managerOptions) { o.ledger = store }
}

// WithNotifier replaces the config-derived notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *managerOptions) { o.notifier = notifier }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *managerOptions) { o.metrics = rec }
}

// WithClock injects the clock used between poll attempts.
func WithClock(clock taskpoll.Clock) Option {
	return func(o *managerOptions) { o.clock = clock }
}

// WithProgress observes poll progress of every operation.
func WithProgress(fn ProgressFunc) Option {
	return func(o *managerOptions) { o.progress = fn }
}

// NewManager constructs a Manager for backend using cfg for poll cadence,
// generation defaults, and the duplicate submission policy.
func NewManager(cfg *config.Config, backend movie.Backend, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "config is required", nil)
	}
	if backend == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "backend is required", nil)
	}
	policy, err := inflight.ParsePolicy(cfg.Workflow.DuplicatePolicy)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "workflow.duplicate_policy", err)
	}

	options := &managerOptions{now: time.Now}
	for _, opt := range opts {
		opt(options)
	}
	if options.notifier == nil {
		options.notifier = notifications.NewService(cfg)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	pollerOpts := []taskpoll.Option{
		taskpoll.WithLogger(logger),
		taskpoll.WithMetrics(options.metrics),
	}
	if options.clock != nil {
		pollerOpts = append(pollerOpts, taskpoll.WithClock(options.clock))
	}

	rt := &runner{
		backend:  backend,
		poller:   taskpoll.New(backend, pollerOpts...),
		registry: inflight.NewRegistry(policy),
		ledger:   options.ledger,
		notifier: options.notifier,
		metrics:  options.metrics,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		tracer:   newTracer(),
		now:      options.now,
		defaults: movie.GenerationParams{
			APIKeyID:   strings.TrimSpace(cfg.Generation.APIKeyID),
			Model:      strings.TrimSpace(cfg.Generation.Model),
			VideoModel: strings.TrimSpace(cfg.Generation.VideoModel),
		},
		avatarStyle:   strings.TrimSpace(cfg.Generation.AvatarStyle),
		interval:      cfg.PollInterval(),
		maxAttempts:   cfg.Poller.MaxAttempts,
		videoAttempts: cfg.Poller.VideoMaxAttempts,
		progress:      options.progress,
	}

	scenes := newScenes(rt)
	m := &Manager{
		rt:          rt,
		characters:  newCharacters(rt),
		scenes:      scenes,
		shots:       newShots(rt, scenes),
		transitions: newTransitions(rt, scenes),
		stage:       stage.Characters,
	}
	rt.onChange = func() { m.Recompute() }
	return m, nil
}

// Characters returns the character stage workflow.
func (m *Manager) Characters() *Characters { return m.characters }

// Scenes returns the scene stage workflow.
func (m *Manager) Scenes() *Scenes { return m.scenes }

// Shots returns the shot stage workflow.
func (m *Manager) Shots() *Shots { return m.shots }

// Transitions returns the transition stage workflow.
func (m *Manager) Transitions() *Transitions { return m.transitions }

// Registry exposes the in-flight operation registry.
func (m *Manager) Registry() *inflight.Registry { return m.rt.registry }

// Session returns the loaded project and chapter ids.
func (m *Manager) Session() (projectID, chapterID string) {
	return m.rt.scope()
}

// LoadAll sets the session identity and loads characters, the script, and,
// when a script exists, its transitions. A chapter without a script is not an
// error. Switching to another project or chapter drops the previous session's
// cache first. A failure part way through keeps what this call already loaded
// and leaves the failed part and everything after it empty; the stage is
// recomputed either way and the error is logged, notified, and returned.
func (m *Manager) LoadAll(ctx context.Context, chapterID, projectID string) (err error) {
	chapterID = strings.TrimSpace(chapterID)
	projectID = strings.TrimSpace(projectID)
	if chapterID == "" || projectID == "" {
		return services.Wrap(services.ErrValidation, "workflow", "load_all", "chapter id and project id are required", nil)
	}
	if prevProject, prevChapter := m.rt.scope(); prevProject != projectID || prevChapter != chapterID {
		m.characters.reset()
		m.scenes.reset()
		m.transitions.clear()
	}
	m.rt.setScope(projectID, chapterID)
	ctx = services.WithStage(services.WithProject(ctx, projectID, chapterID), "load")
	logger := logging.WithContext(ctx, m.rt.logger)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("load chapter %s: panic: %v", chapterID, recovered)
		}
		current := m.Recompute()
		if err != nil {
			m.rt.metrics.Loaded("error")
			logging.ErrorWithContext(logger, "chapter load failed", "load_failed",
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String("stage_reached", current.String()),
				logging.Error(err),
			)
			m.rt.publish(context.WithoutCancel(ctx), logger, notifications.EventLoadFailed, notifications.Payload{
				"chapter": chapterID,
				"error":   err,
			})
			return
		}
		m.rt.metrics.Loaded("ok")
		logger.Info("chapter loaded",
			logging.String(logging.FieldEventType, "load_completed"),
			logging.String("current_stage", current.String()),
		)
	}()

	return m.loadAll(ctx, chapterID, projectID)
}

func (m *Manager) loadAll(ctx context.Context, chapterID, projectID string) error {
	if _, err := m.characters.Load(ctx, projectID); err != nil {
		m.scenes.reset()
		m.transitions.clear()
		return err
	}
	script, err := m.scenes.LoadScript(ctx, chapterID)
	if err != nil {
		m.transitions.clear()
		return err
	}
	if script == nil {
		m.transitions.clear()
		return nil
	}
	if _, err := m.transitions.Load(ctx, script.ID); err != nil {
		return err
	}
	return nil
}

// Refresh reloads the current session.
func (m *Manager) Refresh(ctx context.Context) error {
	projectID, chapterID := m.rt.scope()
	if projectID == "" || chapterID == "" {
		return services.Wrap(services.ErrValidation, "workflow", "refresh", "no chapter loaded", nil)
	}
	return m.LoadAll(ctx, chapterID, projectID)
}

// Snapshot summarizes the cached entity state. It is computed on every call.
func (m *Manager) Snapshot() stage.Snapshot {
	return stage.SnapshotOf(m.characters.List(), m.scenes.Script(), m.transitions.List())
}

// Recompute derives the stage from the cached state and stores it.
func (m *Manager) Recompute() stage.Stage {
	current := stage.Determine(m.Snapshot())
	m.mu.Lock()
	m.stage = current
	m.mu.Unlock()
	return current
}

// CurrentStage returns the stage derived at the last load or refresh.
func (m *Manager) CurrentStage() stage.Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stage
}

// CanExtractScenes reports whether at least one character exists.
func (m *Manager) CanExtractScenes() bool { return stage.CanExtractScenes(m.Snapshot()) }

// CanExtractShots reports whether the script has scenes.
func (m *Manager) CanExtractShots() bool { return stage.CanExtractShots(m.Snapshot()) }

// CanGenerateKeyframes reports whether shots exist and every character has
// an avatar.
func (m *Manager) CanGenerateKeyframes() bool { return stage.CanGenerateKeyframes(m.Snapshot()) }

// CanCreateTransitions reports whether every shot has a keyframe.
func (m *Manager) CanCreateTransitions() bool { return stage.CanCreateTransitions(m.Snapshot()) }

// CanGenerateTransitionVideos reports whether transitions exist.
func (m *Manager) CanGenerateTransitionVideos() bool {
	return stage.CanGenerateTransitionVideos(m.Snapshot())
}

// StatusSummary is a point-in-time view of the session used by the CLI.
type StatusSummary struct {
	ProjectID string
	ChapterID string
	Stage     stage.Stage
	Snapshot  stage.Snapshot
	Gates     []stage.Gate
	InFlight  []inflight.Key
}

// Status returns the current session summary.
func (m *Manager) Status() StatusSummary {
	projectID, chapterID := m.rt.scope()
	snap := m.Snapshot()
	return StatusSummary{
		ProjectID: projectID,
		ChapterID: chapterID,
		Stage:     m.CurrentStage(),
		Snapshot:  snap,
		Gates:     stage.Gates(snap),
		InFlight:  m.rt.registry.Snapshot(),
	}
}
