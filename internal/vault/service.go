// Package vault runs the savings-group mutations. Each mutation works on a
// clone of the current document; the clone is saved and swapped in only
// when the handler succeeds, so a rejected action leaves no trace.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/notify"
	"github.com/dukerupert/trustvault/internal/websocket"
)

// Store persists the document. *store.VaultStore satisfies it.
type Store interface {
	Load() (*model.Document, error)
	Save(doc *model.Document) error
	Reset() (*model.Document, error)
}

// Broadcaster receives a change event after every commit. *websocket.Hub satisfies it.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type Options struct {
	Hub        Broadcaster
	Dispatcher notify.Dispatcher
	Logger     *slog.Logger
	Location   *time.Location
	Now        func() time.Time
}

type Service struct {
	mu         sync.Mutex
	doc        *model.Document
	store      Store
	hub        Broadcaster
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewService loads the document from st and returns a ready service.
func NewService(st Store, opts Options) (*Service, error) {
	s := &Service{
		store:      st,
		hub:        opts.Hub,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		loc:        opts.Location,
		now:        opts.Now,
	}
	if s.dispatcher == nil {
		s.dispatcher = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Now returns the current time in the service's location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Snapshot returns a deep copy of the current document.
func (s *Service) Snapshot() model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Reload replaces the in-memory document with the stored one.
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
		return fmt.Errorf("load vault: %w", err)
	}
	s.doc = doc
	s.mu.Unlock()
	s.broadcast("document", "reloaded", "")
	return nil
}

// Save writes the in-memory document back to the store.
func (s *Service) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(s.doc); err != nil {
		return fmt.Errorf("save vault: %w", err)
	}
	return nil
}

// Reset wipes every stored key of the vault and reseeds the document.
func (s *Service) Reset() error {
	s.mu.Lock()
	doc, err := s.store.Reset()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reset vault: %w", err)
	}
	s.doc = doc
	s.mu.Unlock()
	s.logger.Warn("vault reset")
	s.broadcast("document", "reset", "")
	return nil
}

func (s *Service) broadcast(entity, action, id string) {
	if s.hub != nil {
		s.hub.Broadcast(websocket.NewMessage(websocket.DocVault, entity, action, id))
	}
}

// apply runs fn against a clone, then saves and swaps the clone in. The
// returned id names the affected entity in the change event.
func (s *Service) apply(entity, action string, fn func(doc *model.Document, now time.Time) (string, error)) error {
	s.mu.Lock()
	next := s.doc.Clone()
	id, err := fn(&next, s.Now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(&next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save vault: %w", err)
	}
	s.doc = &next
	s.mu.Unlock()

	s.logger.Info("vault change", "entity", entity, "action", action, "id", id)
	s.broadcast(entity, action, id)
	return nil
}

func (s *Service) dispatch(ctx context.Context, n notify.Notice) {
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Error("dispatch notice", "type", n.Type, "to", n.To, "error", err)
	}
}

func (s *Service) AddMember(in MemberInput) (*model.Member, error) {
	var m model.Member
	err := s.apply("member", "created", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		m, err = addMember(doc, in, now)
		return m.ID, err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) EditMember(id string, in MemberInput) (*model.Member, error) {
	var m model.Member
	err := s.apply("member", "updated", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		m, err = editMember(doc, id, in, now)
		return id, err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMember removes the member and its transactions, returning how many
// transactions went with it.
func (s *Service) DeleteMember(id string) (int, error) {
	var removed int
	err := s.apply("member", "deleted", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		removed, err = deleteMember(doc, id, now)
		return id, err
	})
	return removed, err
}

func (s *Service) Deposit(in DepositInput) (*model.Transaction, error) {
	var tx model.Transaction
	err := s.apply("transaction", "created", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		tx, err = deposit(doc, in, now)
		return tx.ID, err
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Service) Withdraw(in WithdrawInput) (*model.Transaction, error) {
	var tx model.Transaction
	err := s.apply("transaction", "created", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		tx, err = withdraw(doc, in, now)
		return tx.ID, err
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Service) DeleteTransaction(id string) error {
	return s.apply("transaction", "deleted", func(doc *model.Document, now time.Time) (string, error) {
		return id, deleteTransaction(doc, id, now)
	})
}

// Remind records a reminder message and, when the member has an email
// address, sends the daily minimum reminder through the dispatcher.
func (s *Service) Remind(ctx context.Context, id string) error {
	var (
		m        model.Member
		settings model.Settings
		at       time.Time
	)
	err := s.apply("message", "created", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		m, err = remind(doc, id, now)
		settings, at = doc.Settings, now
		return id, err
	})
	if err != nil {
		return err
	}
	if m.Email != "" {
		s.dispatch(ctx, notify.Notice{
			To:     m.Email,
			Name:   m.Name,
			Amount: ledger.FormatMoney(settings.DailyMin, settings.Currency),
			Date:   at,
			Type:   notify.TypeReminder,
		})
	}
	return nil
}

func (s *Service) AddTodo(in TodoInput) (*model.Todo, error) {
	var todo model.Todo
	err := s.apply("todo", "created", func(doc *model.Document, now time.Time) (string, error) {
		var err error
		todo, err = addTodo(doc, in, now)
		return todo.ID, err
	})
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

func (s *Service) DeleteTodo(id string) error {
	return s.apply("todo", "deleted", func(doc *model.Document, now time.Time) (string, error) {
		return id, deleteTodo(doc, id, now)
	})
}

func (s *Service) UpdateAdmin(in AdminInput) error {
	return s.apply("settings", "updated", func(doc *model.Document, now time.Time) (string, error) {
		return "admin", updateAdmin(doc, in, now)
	})
}

func (s *Service) UpdateTarget(in TargetInput) error {
	return s.apply("settings", "updated", func(doc *model.Document, now time.Time) (string, error) {
		return "target", updateTarget(doc, in, now)
	})
}

func (s *Service) UpdateRules(in RulesInput) error {
	return s.apply("settings", "updated", func(doc *model.Document, now time.Time) (string, error) {
		return "rules", updateRules(doc, in, now)
	})
}

func (s *Service) UpdatePaymentMethods(in MethodsInput) error {
	return s.apply("settings", "updated", func(doc *model.Document, now time.Time) (string, error) {
		return "methods", updatePaymentMethods(doc, in, now)
	})
}

func (s *Service) UpdateAppearance(in AppearanceInput) error {
	return s.apply("settings", "updated", func(doc *model.Document, now time.Time) (string, error) {
		return "appearance", updateAppearance(doc, in, now)
	})
}

func (s *Service) ClearMessages() error {
	return s.apply("message", "cleared", func(doc *model.Document, now time.Time) (string, error) {
		clearMessages(doc, now)
		return "", nil
	})
}

// Rollover appends the new-day message for day (YYYY-MM-DD).
func (s *Service) Rollover(day string) error {
	return s.apply("message", "created", func(doc *model.Document, now time.Time) (string, error) {
		rollover(doc, day, now)
		return day, nil
	})
}
