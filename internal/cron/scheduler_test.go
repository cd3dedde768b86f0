package cron_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/astrobot/internal/cron"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/telemetry"
)

// waitFor polls check at short intervals until it returns true or the deadline
// elapses. This avoids fixed time.Sleep calls that cause flaky tests.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

type countingRetainer struct {
	calls atomic.Int32
	days  atomic.Int32
}

func (c *countingRetainer) RunRetention(_ context.Context, days int) (persistence.RetentionResult, error) {
	c.calls.Add(1)
	c.days.Store(int32(days))
	return persistence.RetentionResult{PurgedLLMMessages: 2}, nil
}

func TestScheduler_FiresWhenDue(t *testing.T) {
	base := time.Date(2026, 3, 1, 2, 59, 0, 0, time.UTC)
	var now atomic.Int64
	now.Store(base.UnixNano())

	store := &countingRetainer{}
	s, err := cron.NewScheduler(cron.Config{
		Store:         store,
		Logger:        telemetry.Discard(),
		RetentionDays: 30,
		Interval:      10 * time.Millisecond,
		Clock:         func() time.Time { return time.Unix(0, now.Load()).UTC() },
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	if want := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC); !s.Next().Equal(want) {
		t.Fatalf("next = %v, want %v", s.Next(), want)
	}
	time.Sleep(50 * time.Millisecond)
	if store.calls.Load() != 0 {
		t.Fatal("fired before the scheduled time")
	}

	now.Store(base.Add(2 * time.Minute).UnixNano())
	waitFor(t, 2*time.Second, func() bool { return store.calls.Load() == 1 })
	if store.days.Load() != 30 {
		t.Fatalf("retention days = %d, want 30", store.days.Load())
	}
	waitFor(t, time.Second, func() bool {
		return s.Next().Equal(time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC))
	})
}

func TestNewScheduler_RejectsBadExpr(t *testing.T) {
	if _, err := cron.NewScheduler(cron.Config{Store: &countingRetainer{}, Expr: "every day"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunOnce_AgainstStore(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "astrobot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.AppendLLMMessage(ctx, persistence.LLMMessage{SessionID: 1, Role: "user", Content: "fresh"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s, err := cron.NewScheduler(cron.Config{Store: store, RetentionDays: 7})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if res.PurgedLLMMessages != 0 {
		t.Fatalf("purged %d fresh rows", res.PurgedLLMMessages)
	}
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 1, 1, 10, 7, 0, 0, time.UTC)
	got, err := cron.NextRunTime("*/15 * * * *", after)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}
