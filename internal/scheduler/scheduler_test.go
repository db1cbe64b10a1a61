package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeVault struct {
	mu   sync.Mutex
	now  time.Time
	days []string
	err  error
}

func (v *fakeVault) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *fakeVault) set(t time.Time) {
	v.mu.Lock()
	v.now = t
	v.mu.Unlock()
}

func (v *fakeVault) Rollover(day string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	v.days = append(v.days, day)
	return nil
}

type fakePortal struct {
	calls int
	ids   []string
}

func (p *fakePortal) RemindLowCredit() ([]string, error) {
	p.calls++
	ids := p.ids
	p.ids = nil
	return ids, nil
}

type fakeCleaner struct{ calls int }

func (c *fakeCleaner) Cleanup() int {
	c.calls++
	return 1
}

func newTestScheduler(v *fakeVault, p *fakePortal, c *fakeCleaner) *Scheduler {
	return New(Config{
		Rollover:  "@every 1h",
		LowCredit: "@every 1h",
		Cleanup:   "@every 1h",
		Location:  time.UTC,
	}, v, p, c, slog.Default())
}

func TestRolloverTick(t *testing.T) {
	v := &fakeVault{now: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)}
	s := newTestScheduler(v, &fakePortal{}, &fakeCleaner{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if s.RolloverTick() {
		t.Error("rollover fired without a day change")
	}

	v.set(time.Date(2026, 3, 11, 0, 0, 30, 0, time.UTC))
	if !s.RolloverTick() {
		t.Error("rollover did not fire after midnight")
	}
	if s.RolloverTick() {
		t.Error("rollover fired twice for the same day")
	}

	if len(v.days) != 1 || v.days[0] != "2026-03-11" {
		t.Errorf("rollover days = %v, want [2026-03-11]", v.days)
	}
}

func TestRolloverTickRetriesAfterError(t *testing.T) {
	v := &fakeVault{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	s := newTestScheduler(v, &fakePortal{}, &fakeCleaner{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	v.set(v.Now().AddDate(0, 0, 1))
	v.err = errors.New("disk full")
	if s.RolloverTick() {
		t.Error("rollover reported success on error")
	}
	v.err = nil
	if !s.RolloverTick() {
		t.Error("rollover not retried after error")
	}
}

func TestLowCreditTick(t *testing.T) {
	p := &fakePortal{ids: []string{"a@x.com"}}
	s := newTestScheduler(&fakeVault{}, p, &fakeCleaner{})

	if got := s.LowCreditTick(); got != 1 {
		t.Errorf("reminded = %d, want 1", got)
	}
	if got := s.LowCreditTick(); got != 0 {
		t.Errorf("reminded = %d, want 0", got)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

func TestCleanupTick(t *testing.T) {
	c := &fakeCleaner{}
	s := newTestScheduler(&fakeVault{}, &fakePortal{}, c)
	s.CleanupTick()
	if c.calls != 1 {
		t.Errorf("cleanup calls = %d, want 1", c.calls)
	}

	New(Config{}, &fakeVault{}, &fakePortal{}, nil, slog.Default()).CleanupTick()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Rollover: "every now and then"}, &fakeVault{}, &fakePortal{}, nil, slog.Default())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for bad schedule")
	}
	s.Stop()
}

func TestStopOnContextCancel(t *testing.T) {
	s := newTestScheduler(&fakeVault{}, &fakePortal{}, &fakeCleaner{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
