// Package scheduler triggers crawl runs periodically.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/pipeline"
)

// DefaultInterval is the time between scheduled runs.
const DefaultInterval = 24 * time.Hour

var (
	ErrAlreadyRunning = errors.New("a crawl run is already in progress")
	// ErrPanicked wraps a panic recovered from a run.
	ErrPanicked = errors.New("crawl run panicked")
)

// Runner performs one crawl run.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// Scheduler runs a Runner every interval. At most one run is in progress at
// a time; a trigger that fires while a run is active is skipped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	cron     *cron.Cron
	running  atomic.Bool
	log      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. A non-positive interval means DefaultInterval.
func New(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.NewNop()
	}

	clog := cronLogger{log: log}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cron:     cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog))),
		log:      log,
	}
}

// Start schedules runs every interval until ctx is cancelled or Stop is
// called. It does not run immediately; use RunNow for that.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	schedule := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(schedule, s.scheduled); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule crawl: %w", err)
	}

	s.cron.Start()
	s.log.Info("Scheduler started", logger.Duration("interval", s.interval))
	return nil
}

// Stop stops scheduling, cancels an in-progress run and waits for it to
// return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// RunNow runs once in the calling goroutine, or returns ErrAlreadyRunning.
// A panicking run is recovered and reported as ErrPanicked.
func (s *Scheduler) RunNow(ctx context.Context) (*pipeline.RunResult, error) {
	return s.runOnce(ctx)
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) scheduled() {
	if _, err := s.runOnce(s.ctx); errors.Is(err, ErrAlreadyRunning) {
		s.log.Warn("Skipping scheduled crawl, previous run still in progress")
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (result *pipeline.RunResult, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			s.log.Error("Crawl run panicked", logger.Err(err))
		}
	}()

	start := time.Now()
	result, err = s.runner.Run(ctx)
	if err != nil {
		s.log.Error("Crawl run failed", logger.Err(err), logger.Duration("elapsed", time.Since(start)))
		return result, err
	}

	s.log.Info("Crawl run finished",
		logger.String("run_id", result.RunID),
		logger.Int("sources_failed", result.SourcesFailed),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Err(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
