package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/ledger"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/services"
	"storyreel/internal/tracing"
	"storyreel/internal/workflow"
)

const (
	envProject = "STORYREEL_PROJECT"
	envChapter = "STORYREEL_CHAPTER"
)

type backendFactory func(cfg *config.Config, logger *slog.Logger) (movie.Backend, error)

type commandContext struct {
	configFlag  string
	projectFlag string
	chapterFlag string
	jsonFlag    bool

	newBackend  backendFactory
	newNotifier func(cfg *config.Config) notifications.Service

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{
		newBackend: func(cfg *config.Config, logger *slog.Logger) (movie.Backend, error) {
			client, err := movie.NewClientFromConfig(cfg, logger)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		newNotifier: notifications.NewService,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// scope resolves the project and chapter from flags, falling back to the
// environment.
func (c *commandContext) scope() (projectID, chapterID string, err error) {
	projectID = firstNonEmpty(c.projectFlag, os.Getenv(envProject))
	chapterID = firstNonEmpty(c.chapterFlag, os.Getenv(envChapter))
	if projectID == "" || chapterID == "" {
		return "", "", services.Wrap(services.ErrValidation, "cli", "scope",
			"--project and --chapter are required (or set "+envProject+" and "+envChapter+")", nil)
	}
	return projectID, chapterID, nil
}

// session bundles the collaborators one command invocation needs.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	backend   movie.Backend
	ledger    *ledger.Store
	metrics   *metrics.Recorder
	manager   *workflow.Manager
	projectID string
	chapterID string

	shutdownTracing tracing.ShutdownFunc
}

func (c *commandContext) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	shutdown, err := tracing.Setup(ctx, cfg, version, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	backend, err := c.newBackend(cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open task ledger: %w", err)
	}
	if reclaimed, err := store.ReclaimStale(ctx, staleAfter(cfg)); err != nil {
		logging.WarnWithContext(logger, "reclaim stale ledger entries failed", "ledger_reclaim_failed",
			logging.String(logging.FieldImpact, "abandoned entries stay listed as in progress"),
			logging.Error(err),
		)
	} else if reclaimed > 0 {
		logger.Info("reclaimed abandoned ledger entries", logging.Int64("count", reclaimed))
	}

	rec := metrics.New()
	manager, err := workflow.NewManager(cfg, backend, logger,
		workflow.WithLedger(store),
		workflow.WithMetrics(rec),
		workflow.WithNotifier(c.newNotifier(cfg)),
		workflow.WithProgress(newProgressPrinter(cmd.ErrOrStderr()).observe),
	)
	if err != nil {
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	return &session{
		cfg:             cfg,
		logger:          logger,
		backend:         backend,
		ledger:          store,
		metrics:         rec,
		manager:         manager,
		shutdownTracing: shutdown,
	}, nil
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.cfg.Metrics.Enabled {
		errs = append(errs, s.metrics.WriteTextfile(s.cfg.Metrics.Path))
	}
	errs = append(errs, s.shutdownTracing(context.WithoutCancel(ctx)))
	errs = append(errs, s.ledger.Close())
	return errors.Join(errs...)
}

// withChapter opens a session, loads the scoped chapter, and runs fn.
func (c *commandContext) withChapter(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	projectID, chapterID, err := c.scope()
	if err != nil {
		return err
	}
	s, err := c.openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.close(cmd.Context()))
	}()
	s.projectID, s.chapterID = projectID, chapterID

	ctx := cmd.Context()
	if err := s.manager.LoadAll(ctx, chapterID, projectID); err != nil {
		return err
	}
	return fn(ctx, s)
}

// withChapterLock serializes batch submissions for a chapter across
// processes.
func withChapterLock(s *session, fn func() error) error {
	path := s.cfg.LockPath(s.chapterID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire chapter lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrDuplicate, "cli", "lock",
			fmt.Sprintf("another storyreel process is submitting for chapter %s", s.chapterID), nil)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}

// staleAfter is how long a ledger entry may stay open before it is treated as
// abandoned by a dead process.
func staleAfter(cfg *config.Config) time.Duration {
	longest := cfg.PollInterval() * time.Duration(max(cfg.Poller.MaxAttempts, cfg.Poller.VideoMaxAttempts))
	return 2*longest + time.Minute
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
