// Package cron runs periodic maintenance on a cron schedule.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/astrobot/internal/persistence"
)

// DefaultRetentionExpr runs the audit purge daily at 03:00.
const DefaultRetentionExpr = "0 3 * * *"

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Retainer is satisfied by *persistence.Store.
type Retainer interface {
	RunRetention(ctx context.Context, days int) (persistence.RetentionResult, error)
}

type Config struct {
	Store         Retainer
	Logger        *slog.Logger
	Expr          string        // defaults to DefaultRetentionExpr
	RetentionDays int           // <= 0 disables purging
	Interval      time.Duration // tick interval; defaults to 1 minute if zero
	Clock         func() time.Time
}

// Scheduler purges generation audit rows older than the retention window
// whenever its cron expression comes due.
type Scheduler struct {
	store    Retainer
	logger   *slog.Logger
	schedule cronlib.Schedule
	expr     string
	days     int
	interval time.Duration
	clock    func() time.Time

	mu   sync.Mutex
	next time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	expr := cfg.Expr
	if expr == "" {
		expr = DefaultRetentionExpr
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", expr, err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		store:    cfg.Store,
		logger:   logger.With("component", "cron"),
		schedule: sched,
		expr:     expr,
		days:     cfg.RetentionDays,
		interval: interval,
		clock:    clock,
	}, nil
}

// Start begins the scheduler loop in a background goroutine. The first run
// happens at the next scheduled time, not at startup.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.setNext(s.schedule.Next(s.clock()))
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("maintenance scheduler started", "expr", s.expr, "retention_days", s.days, "next_run_at", s.Next())
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("maintenance scheduler stopped")
}

// Next returns the time of the next scheduled run.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock()
	if now.Before(s.Next()) {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("retention run failed", "error", err)
	}
	s.setNext(s.schedule.Next(now))
}

// RunOnce purges immediately, independent of the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) (persistence.RetentionResult, error) {
	res, err := s.store.RunRetention(ctx, s.days)
	if err != nil {
		return res, err
	}
	s.logger.Info("retention run finished",
		"retention_days", s.days,
		"purged_llm_messages", res.PurgedLLMMessages,
	)
	return res, nil
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
