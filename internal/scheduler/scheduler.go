// Package scheduler runs the periodic jobs: day rollover messages, low
// credit reminders and rate limiter cleanup. It polls the wall clock, so a
// rollover that happens while the process is down is reported once on the
// next tick at most.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/trustvault/internal/ledger"
)

// Vault is the part of the vault service the rollover job needs.
type Vault interface {
	Now() time.Time
	Rollover(day string) error
}

// Portal is the part of the portal service the low credit job needs.
type Portal interface {
	RemindLowCredit() ([]string, error)
}

type Cleaner interface {
	Cleanup() int
}

type Config struct {
	Rollover  string
	LowCredit string
	Cleanup   string
	Location  *time.Location
}

type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	vault   Vault
	portal  Portal
	limiter Cleaner
	logger  *slog.Logger
	lastDay string
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config, vault Vault, portal Portal, limiter Cleaner, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		cfg:     cfg,
		vault:   vault,
		portal:  portal,
		limiter: limiter,
		logger:  logger,
	}
}

// Start registers the jobs and runs them until ctx is cancelled or Stop is
// called. The current day is recorded so the first rollover fires only on
// an actual change.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastDay = ledger.DayKey(s.vault.Now())

	c := cron.New(cron.WithLocation(s.cfg.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	jobs := []struct {
		name, spec string
		fn         func()
	}{
		{"rollover", s.cfg.Rollover, func() { s.RolloverTick() }},
		{"low_credit", s.cfg.LowCredit, func() { s.LowCreditTick() }},
		{"cleanup", s.cfg.Cleanup, s.CleanupTick},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.cron = c
	c.Start()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	s.logger.Info("scheduler started", "rollover", s.cfg.Rollover, "low_credit", s.cfg.LowCredit, "cleanup", s.cfg.Cleanup)
	return nil
}

// Stop cancels the jobs and waits for any running one to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RolloverTick appends a rollover message when the calendar day changed
// since the last tick and reports whether it did.
func (s *Scheduler) RolloverTick() bool {
	day := ledger.DayKey(s.vault.Now())

	s.mu.Lock()
	if day == s.lastDay {
		s.mu.Unlock()
		return false
	}
	prev := s.lastDay
	s.lastDay = day
	s.mu.Unlock()

	if err := s.vault.Rollover(day); err != nil {
		s.logger.Error("rollover", "day", day, "error", err)
		s.mu.Lock()
		s.lastDay = prev
		s.mu.Unlock()
		return false
	}
	s.logger.Info("day rollover", "from", prev, "to", day)
	return true
}

// LowCreditTick reminds subscribers that ran out of credit.
func (s *Scheduler) LowCreditTick() int {
	ids, err := s.portal.RemindLowCredit()
	if err != nil {
		s.logger.Error("low credit reminders", "error", err)
		return 0
	}
	if len(ids) > 0 {
		s.logger.Info("low credit reminders", "subscribers", ids)
	}
	return len(ids)
}

func (s *Scheduler) CleanupTick() {
	if s.limiter == nil {
		return
	}
	if n := s.limiter.Cleanup(); n > 0 {
		s.logger.Debug("rate limiter cleanup", "removed", n)
	}
}
