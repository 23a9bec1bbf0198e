// Package scheduler keeps the recurring creation and publish jobs of every project in
// line with the project's schedule settings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
	"github.com/ubuygold/contentmill/internal/publisher"
)

// Job kinds. A project has at most one job of each kind.
const (
	KindCreation = "creation"
	KindPublish  = "publish"
)

// Intervals used when a job is enabled without an interval.
const (
	DefaultCreationInterval = 60 * time.Minute
	DefaultPublishInterval  = 20 * time.Minute
)

// ProjectSource loads the current state of projects.
type ProjectSource interface {
	GetProject(id uint) (*model.Project, error)
	ListProjects() ([]model.Project, error)
}

// ArticleGenerator is what a creation job runs.
type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, project *model.Project) (*uint, error)
}

// ArticlePublisher is what a publish job runs.
type ArticlePublisher interface {
	Publish(ctx context.Context, project *model.Project, articleID *uint) (*publisher.Result, error)
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	ID              string        `json:"id"`
	ProjectID       uint          `json:"project_id"`
	Kind            string        `json:"kind"`
	Trigger         string        `json:"trigger"`
	Interval        time.Duration `json:"-"`
	IntervalMinutes int           `json:"interval_minutes"`
	NextFire        time.Time     `json:"next_fire"`
}

type job struct {
	entryID   cron.EntryID
	projectID uint
	kind      string
	interval  time.Duration
}

// Scheduler runs per-project jobs on a cron instance. A firing is skipped while a
// previous firing of the same job id is still running, including one started by an
// entry that has since been rescheduled or removed.
// It holds no durable state; SyncAll rebuilds the job set from the store.
type Scheduler struct {
	mu        sync.Mutex
	c         *cron.Cron
	jobs      map[string]job
	running   map[string]*atomic.Bool // keyed by job id, never pruned
	projects  ProjectSource
	generator ArticleGenerator
	publisher ArticlePublisher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs do not fire until Start is called.
func NewScheduler(projects ProjectSource, generator ArticleGenerator, pub ArticlePublisher, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		jobs:      make(map[string]job),
		running:   make(map[string]*atomic.Bool),
		projects:  projects,
		generator: generator,
		publisher: pub,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// JobID returns the id of a project's job of the given kind.
func JobID(kind string, projectID uint) string {
	return fmt.Sprintf("%s_%d", kind, projectID)
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.Status()))
}

// Stop stops scheduling new firings and cancels running ones. The returned context is
// done once every running job has returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.c.Stop()
}

// Sync reconciles the two jobs of a project with its schedule settings. Calling it again
// with unchanged settings changes nothing.
func (s *Scheduler) Sync(project *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectID := project.ID
	sched := project.Schedule
	s.reconcile(KindCreation, projectID, sched.CreationEnabled,
		interval(sched.CreationIntervalMinutes, DefaultCreationInterval),
		func() { s.runCreation(projectID) })
	s.reconcile(KindPublish, projectID, sched.PublishEnabled,
		interval(sched.PublishIntervalMinutes, DefaultPublishInterval),
		func() { s.runPublish(projectID) })
}

// Remove deletes both jobs of a project.
func (s *Scheduler) Remove(projectID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range []string{KindCreation, KindPublish} {
		s.removeLocked(JobID(kind, projectID))
	}
}

// SyncAll syncs every stored project.
func (s *Scheduler) SyncAll() error {
	projects, err := s.projects.ListProjects()
	if err != nil {
		return fmt.Errorf("failed to load projects: %w", err)
	}
	for i := range projects {
		s.Sync(&projects[i])
	}
	s.logger.Info("Synced project jobs", "projects", len(projects), "jobs", len(s.Status()))
	return nil
}

// AddMaintenance registers a job on a cron spec, such as key revival.
func (s *Scheduler) AddMaintenance(spec, name string, fn func(ctx context.Context)) error {
	_, err := s.c.AddFunc(spec, func() {
		s.logger.Info("Running maintenance job", "job", name)
		fn(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Status lists the project jobs ordered by id.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]JobStatus, 0, len(s.jobs))
	for id, j := range s.jobs {
		statuses = append(statuses, JobStatus{
			ID:              id,
			ProjectID:       j.projectID,
			Kind:            j.kind,
			Trigger:         "every " + j.interval.String(),
			Interval:        j.interval,
			IntervalMinutes: int(j.interval / time.Minute),
			NextFire:        s.c.Entry(j.entryID).Next,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func interval(minutes int, fallback time.Duration) time.Duration {
	if minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}

// reconcile must be called with s.mu held.
func (s *Scheduler) reconcile(kind string, projectID uint, enabled bool, every time.Duration, run func()) {
	id := JobID(kind, projectID)
	existing, ok := s.jobs[id]

	if !enabled {
		if ok {
			s.removeLocked(id)
		}
		return
	}
	if ok && existing.interval == every {
		return
	}
	if ok {
		// Re-adding recomputes the next firing from now.
		s.c.Remove(existing.entryID)
	}
	entryID := s.c.Schedule(cron.Every(every), s.exclusive(kind, id, run))
	s.jobs[id] = job{entryID: entryID, projectID: projectID, kind: kind, interval: every}
	s.logger.Info("Scheduled job", "job_id", id, "interval", every.String())
}

// exclusive wraps run so that it never overlaps another firing of the same job id.
// Must be called with s.mu held.
func (s *Scheduler) exclusive(kind, id string, run func()) cron.Job {
	busy, ok := s.running[id]
	if !ok {
		busy = new(atomic.Bool)
		s.running[id] = busy
	}
	return cron.FuncJob(func() {
		if !busy.CompareAndSwap(false, true) {
			s.logger.Info("Skipping job, previous firing still running", "job_id", id)
			metrics.JobRuns.WithLabelValues(kind, "skipped").Inc()
			return
		}
		defer busy.Store(false)
		run()
	})
}

func (s *Scheduler) removeLocked(id string) {
	existing, ok := s.jobs[id]
	if !ok {
		return
	}
	s.c.Remove(existing.entryID)
	delete(s.jobs, id)
	s.logger.Info("Removed job", "job_id", id)
}

func (s *Scheduler) loadProject(kind string, projectID uint) (*model.Project, bool) {
	project, err := s.projects.GetProject(projectID)
	if err != nil {
		metrics.JobRuns.WithLabelValues(kind, "error").Inc()
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("Job fired for a missing project", "kind", kind, "project_id", projectID)
		} else {
			s.logger.Error("Failed to load project for job", "kind", kind, "project_id", projectID, "error", err)
		}
		return nil, false
	}
	return project, true
}

func (s *Scheduler) runCreation(projectID uint) {
	project, ok := s.loadProject(KindCreation, projectID)
	if !ok {
		return
	}
	id, err := s.generator.GenerateArticle(s.ctx, project)
	metrics.JobRuns.WithLabelValues(KindCreation, metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.Error("Creation job failed", "project_id", projectID, "error", err)
		return
	}
	if id != nil {
		s.logger.Info("Creation job generated article", "project_id", projectID, "article_id", *id)
	}
}

func (s *Scheduler) runPublish(projectID uint) {
	project, ok := s.loadProject(KindPublish, projectID)
	if !ok {
		return
	}
	result, err := s.publisher.Publish(s.ctx, project, nil)
	metrics.JobRuns.WithLabelValues(KindPublish, metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.Error("Publish job failed", "project_id", projectID, "error", err)
		return
	}
	if result != nil {
		s.logger.Info("Publish job published article", "project_id", projectID, "article_id", result.ArticleID, "wp_post_url", result.WPPostURL)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
