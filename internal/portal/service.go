// Package portal runs the captive-portal prototype: subscribers log in,
// redeem single-use vouchers for credit, and deposit funds. Mutations follow
// the clone, save, swap discipline of the vault service.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/notify"
	"github.com/dukerupert/trustvault/internal/websocket"
)

// Store persists the document. *store.PortalStore satisfies it.
type Store interface {
	Load() (*model.PortalDocument, error)
	Save(doc *model.PortalDocument) error
	Reset() (*model.PortalDocument, error)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Options struct {
	Hub        Broadcaster
	Dispatcher notify.Dispatcher
	Logger     *slog.Logger
	Currency   string
	Now        func() time.Time
}

type Service struct {
	mu         sync.Mutex
	doc        *model.PortalDocument
	store      Store
	hub        Broadcaster
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	currency   string
	now        func() time.Time
}

func NewService(st Store, opts Options) (*Service, error) {
	s := &Service{
		store:      st,
		hub:        opts.Hub,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		currency:   opts.Currency,
		now:        opts.Now,
	}
	if s.dispatcher == nil {
		s.dispatcher = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.currency == "" {
		s.currency = "KES"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Currency() string {
	return s.currency
}

func (s *Service) Snapshot() model.PortalDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *Service) Reload() error {
	return s.Restore(func() error { return nil })
}

// Restore runs swap with the document lock held and then reloads from the
// store, so no mutation can save over what swap wrote. A failed swap or load
// leaves the in-memory document as it was.
func (s *Service) Restore(swap func() error) error {
	s.mu.Lock()
	if err := swap(); err != nil {
		s.mu.Unlock()
		return err
	}
	doc, err := s.store.Load()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load portal: %w", err)
	}
	s.doc = doc
	s.mu.Unlock()
	s.broadcast("document", "reloaded", "")
	return nil
}

func (s *Service) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(s.doc); err != nil {
		return fmt.Errorf("save portal: %w", err)
	}
	return nil
}

func (s *Service) Reset() error {
	s.mu.Lock()
	doc, err := s.store.Reset()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reset portal: %w", err)
	}
	s.doc = doc
	s.mu.Unlock()
	s.logger.Warn("portal reset")
	s.broadcast("document", "reset", "")
	return nil
}

func (s *Service) broadcast(entity, action, id string) {
	if s.hub != nil {
		s.hub.Broadcast(websocket.NewMessage(websocket.DocPortal, entity, action, id))
	}
}

// change describes a handler's effect. A nil change from the handler means
// nothing to commit.
type change struct {
	entity, action, id string
	// failed is returned to the caller after the document is committed.
	failed error
}

func (s *Service) apply(fn func(doc *model.PortalDocument, now time.Time) (*change, error)) error {
	s.mu.Lock()
	next := s.doc.Clone()
	c, err := fn(&next, s.now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if c == nil {
		s.mu.Unlock()
		return nil
	}
	if err := s.store.Save(&next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save portal: %w", err)
	}
	s.doc = &next
	s.mu.Unlock()

	s.logger.Info("portal change", "entity", c.entity, "action", c.action, "id", c.id)
	s.broadcast(c.entity, c.action, c.id)
	return c.failed
}

func (s *Service) dispatch(ctx context.Context, n notify.Notice) {
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Error("dispatch notice", "type", n.Type, "to", n.To, "error", err)
	}
}

// Login connects a subscriber, creating it with zero credit on first sight.
func (s *Service) Login(in LoginInput) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		var (
			created bool
			err     error
		)
		sub, created, err = login(doc, in, now)
		if err != nil {
			return nil, err
		}
		action := "login"
		if created {
			action = "created"
		}
		return &change{entity: "subscriber", action: action, id: sub.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) Disconnect(id string) error {
	return s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		if err := disconnect(doc, id, now); err != nil {
			return nil, err
		}
		return &change{entity: "subscriber", action: "disconnected", id: NormalizeIdentity(id)}, nil
	})
}

func (s *Service) CreateVoucher(in VoucherInput) (*model.Voucher, error) {
	var v model.Voucher
	err := s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		var err error
		v, err = createVoucher(doc, in, s.currency, now)
		if err != nil {
			return nil, err
		}
		return &change{entity: "voucher", action: "created", id: v.Code}, nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Redeem credits a voucher to a subscriber. An unknown or used code is
// recorded as a failure notification and returns ErrVoucherUnavailable.
func (s *Service) Redeem(in RedeemInput) (*Redemption, error) {
	var r Redemption
	err := s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		var failed, err error
		r, failed, err = redeem(doc, in, s.currency, now)
		if err != nil {
			return nil, err
		}
		if failed != nil {
			return &change{entity: "voucher", action: "failed", id: NormalizeCode(in.Code), failed: failed}, nil
		}
		return &change{entity: "voucher", action: "redeemed", id: r.Voucher.Code}, nil
	})
	if err != nil {
		return nil, err
	}
	if r.Implicit {
		s.logger.Warn("voucher redeemed without explicit subscriber", "code", r.Voucher.Code, "subscriber", r.Subscriber.ID)
	}
	return &r, nil
}

// Deposit records a ledger entry for the attempt and notifies the
// subscriber of the outcome. Non-positive amounts are recorded as failed
// entries and return ErrDepositRejected alongside the entry.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (*model.LedgerEntry, error) {
	var (
		entry model.LedgerEntry
		sub   model.Subscriber
	)
	err := s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		var failed, err error
		entry, sub, failed, err = deposit(doc, in, s.currency, now)
		if err != nil {
			return nil, err
		}
		return &change{entity: "ledger", action: "created", id: entry.ID, failed: failed}, nil
	})
	if err != nil && !errors.Is(err, ErrDepositRejected) {
		return nil, err
	}

	typ := notify.TypeDeposit
	if !entry.Success {
		typ = notify.TypeFailure
	}
	s.dispatch(ctx, notify.Notice{
		To:     sub.ID,
		Name:   sub.ID,
		Amount: ledger.FormatMoney(entry.Amount, s.currency),
		Date:   entry.Timestamp,
		Type:   typ,
	})
	return &entry, err
}

// RemindLowCredit notifies once for every subscriber whose credit has run
// out, returning the ids reminded on this pass.
func (s *Service) RemindLowCredit() ([]string, error) {
	var reminded []string
	err := s.apply(func(doc *model.PortalDocument, now time.Time) (*change, error) {
		reminded = remindLowCredit(doc, now)
		if len(reminded) == 0 {
			return nil, nil
		}
		return &change{entity: "subscriber", action: "reminded", id: reminded[0]}, nil
	})
	if err != nil {
		return nil, err
	}
	return reminded, nil
}
