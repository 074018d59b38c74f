// Package scheduler runs releasarr's recurring maintenance tasks on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/robfig/cron/v3"
)

// ErrTaskRunning is returned by RunNow while the task is still running.
var ErrTaskRunning = errors.New("task already running")

// ErrUnknownTask is returned by RunNow for a name that was never added.
var ErrUnknownTask = errors.New("unknown task")

// Task is one named recurring job.
type Task struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type entry struct {
	task     Task
	schedule cron.Schedule
	next     time.Time
	running  bool
	lastRun  time.Time
	lastErr  error
}

// TaskStatus is a point-in-time view of a task.
type TaskStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

// Config holds configuration for the scheduler.
type Config struct {
	// CheckInterval is how often due tasks are looked for.
	// Default: 15 seconds
	CheckInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: 15 * time.Second}
}

// Scheduler dispatches tasks when their schedule comes due. A task never
// overlaps itself: a due tick while it still runs is skipped.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry

	parser        cron.Parser
	checkInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Scheduler{
		parser:        cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		checkInterval: cfg.CheckInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = observability.WithComponent(logger, "scheduler")
	return s
}

// WithClock replaces the time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Add registers a task. An empty schedule disables the task.
func (s *Scheduler) Add(task Task) error {
	if task.Schedule == "" {
		s.logger.Info("task disabled, no schedule", slog.String("task", task.Name))
		return nil
	}
	schedule, err := s.parser.Parse(task.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression for %s: %w", task.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.task.Name == task.Name {
			return fmt.Errorf("task %s already registered", task.Name)
		}
	}
	s.entries = append(s.entries, &entry{
		task:     task,
		schedule: schedule,
		next:     schedule.Next(s.now()),
	})
	return nil
}

// Start begins the background check loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		slog.Int("tasks", len(s.entries)),
		slog.Duration("check_interval", s.checkInterval))
	return nil
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.ctx)
		}
	}
}

// tick dispatches every task whose next run time has passed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		e.next = e.schedule.Next(now)
		if e.running {
			s.logger.Warn("skipping due task, previous run still active",
				slog.String("task", e.task.Name),
				slog.Time("next_run", e.next))
			continue
		}
		s.dispatch(ctx, e)
	}
}

// dispatch runs e in a goroutine. Callers hold s.mu.
func (s *Scheduler) dispatch(ctx context.Context, e *entry) {
	e.running = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		start := s.now()
		err := e.task.Run(ctx)

		s.mu.Lock()
		e.running = false
		e.lastRun = start
		e.lastErr = err
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("scheduled task failed",
				slog.String("task", e.task.Name),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Info("scheduled task completed",
			slog.String("task", e.task.Name),
			slog.Duration("duration", time.Since(start)))
	}()
}

// RunNow starts a task immediately, outside its schedule. Once started,
// the scheduler's own context governs the run so it outlives ctx.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		ctx = s.ctx
	}

	for _, e := range s.entries {
		if e.task.Name != name {
			continue
		}
		if e.running {
			return fmt.Errorf("%w: %s", ErrTaskRunning, name)
		}
		s.dispatch(ctx, e)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownTask, name)
}

// Status returns every registered task.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := TaskStatus{
			Name:     e.task.Name,
			Schedule: e.task.Schedule,
			NextRun:  e.next,
			LastRun:  e.lastRun,
			Running:  e.running,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}
