package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"DCASentinel/internal/config"
	"DCASentinel/internal/logging"
	"DCASentinel/internal/model"
	"DCASentinel/internal/notifier"
)

// ErrCycleInProgress is returned when a trigger arrives while a cycle runs.
// Such triggers are dropped, not queued.
var ErrCycleInProgress = errors.New("a DCA cycle is already in progress")

// Cycle runs one DCA cycle.
type Cycle interface {
	Run(ctx context.Context) (*model.CycleReport, error)
}

// Reporter receives the result of every finished cycle. err is non-nil when
// the cycle aborted before producing a report.
type Reporter interface {
	Report(ctx context.Context, report *model.CycleReport, err error) error
}

// Scheduler fires cycles on a cron schedule and guarantees that at most one
// cycle runs at a time, whatever triggered it.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context

	cycle     Cycle
	reporters []Reporter
	log       *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	entry   cron.EntryID

	mu      sync.RWMutex
	last    *model.CycleReport
	lastErr error
}

// NewScheduler creates a Scheduler whose cron entries fire in loc.
func NewScheduler(ctx context.Context, cycle Cycle, loc *time.Location, logger *zap.Logger, reporters ...Reporter) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := logging.NewCronLogger(logger)
	return &Scheduler{
		Cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Ctx:       ctx,
		cycle:     cycle,
		reporters: reporters,
		log:       logger.Named("scheduler"),
	}
}

// Register adds the weekly DCA task.
func (s *Scheduler) Register(spec string) error {
	id, err := s.Cron.AddFunc(spec, s.scheduledTask)
	if err != nil {
		return fmt.Errorf("register weekly task: %w", err)
	}
	s.entry = id
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Time("next_run", s.NextRun()))
}

// Stop stops the cron scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// NextRun returns the next scheduled fire time, or the zero time when the
// task is not registered or the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(s.entry).Next
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Last returns the most recent cycle report and error.
func (s *Scheduler) Last() (*model.CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// RunNow executes one cycle synchronously.
func (s *Scheduler) RunNow() (*model.CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)
	return s.runCycle()
}

// Trigger starts one cycle in the background.
func (s *Scheduler) Trigger() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.runCycle()
	}()
	return nil
}

func (s *Scheduler) scheduledTask() {
	s.log.Info("running weekly task")
	if _, err := s.RunNow(); errors.Is(err, ErrCycleInProgress) {
		s.log.Warn("weekly task skipped", zap.Error(err))
	}
}

func (s *Scheduler) runCycle() (*model.CycleReport, error) {
	report, err := s.cycle.Run(s.Ctx)
	if err != nil {
		s.log.Error("cycle failed", zap.Error(err))
	}

	s.mu.Lock()
	if report != nil {
		s.last = report
	}
	s.lastErr = err
	s.mu.Unlock()

	for _, r := range s.reporters {
		if rerr := r.Report(s.Ctx, report, err); rerr != nil {
			s.log.Error("report cycle", zap.Error(rerr))
		}
	}
	return report, err
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/run":
		if err := s.Trigger(); err != nil {
			return "⏳ " + err.Error()
		}
		return "▶️ DCA cycle started"
	case "/last":
		report, err := s.Last()
		if err != nil {
			return notifier.FormatCycleError(err)
		}
		if report == nil {
			return "No cycle has run yet."
		}
		return notifier.FormatCycleReport(report)
	case "/next":
		return notifier.FormatNextRun(s.NextRun(), s.Running())
	default:
		return "Available commands:\n• /run\n• /last\n• /next"
	}
}
