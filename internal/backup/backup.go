// Package backup exports the whole key-value store as one passphrase
// encrypted archive and restores it again.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/store"
)

const (
	archiveVersion   = 1
	minPassphraseLen = 8
)

var (
	ErrWeakPassphrase     = fmt.Errorf("passphrase must be at least %d characters", minPassphraseLen)
	ErrUnsupportedArchive = errors.New("unsupported archive version")
)

// archive is the plaintext inside a sealed backup.
type archive struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Entries   map[string]string `json:"entries"`
}

// Restorer owns one stored document. Restore holds the document lock while
// swap replaces the store contents and the document is reloaded from it.
// The vault and portal services satisfy it.
type Restorer interface {
	Restore(swap func() error) error
	Reload() error
}

// Manager runs exports and imports one at a time.
type Manager struct {
	mu        sync.Mutex
	kv        *store.KVStore
	records   *store.BackupStore
	restorers []Restorer
	logger    *slog.Logger
	now       func() time.Time
}

func NewManager(kv *store.KVStore, records *store.BackupStore, logger *slog.Logger, restorers ...Restorer) *Manager {
	return &Manager{
		kv:        kv,
		records:   records,
		restorers: restorers,
		logger:    logger,
		now:       time.Now,
	}
}

// Export seals every kv entry and records the export.
func (m *Manager) Export(passphrase string) ([]byte, *model.Backup, error) {
	if len(passphrase) < minPassphraseLen {
		return nil, nil, ErrWeakPassphrase
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.kv.All()
	if err != nil {
		return nil, nil, fmt.Errorf("read store: %w", err)
	}
	plain, err := json.Marshal(archive{Version: archiveVersion, CreatedAt: m.now().UTC(), Entries: entries})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal archive: %w", err)
	}
	sealed, err := Seal(plain, passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("seal archive: %w", err)
	}

	rec, err := m.records.Record(model.BackupExport, len(entries), int64(len(sealed)))
	if err != nil {
		return nil, nil, err
	}
	m.logger.Info("backup exported", "keys", len(entries), "bytes", len(sealed))
	return sealed, rec, nil
}

// Import replaces the kv contents with the archive and reloads every
// registered document. The documents in the archive are decoded before
// anything is written; a bad passphrase or document leaves the store
// untouched. Mutations wait until the import is done.
func (m *Manager) Import(data []byte, passphrase string) (*model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plain, err := Open(data, passphrase)
	if err != nil {
		return nil, err
	}
	var a archive
	if err := json.Unmarshal(plain, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	if a.Version != archiveVersion {
		return nil, fmt.Errorf("%w: v%d", ErrUnsupportedArchive, a.Version)
	}
	if err := checkDocuments(a.Entries); err != nil {
		return nil, err
	}

	var prev map[string]string
	swapped := false
	err = m.restore(0, func() error {
		var err error
		if prev, err = m.kv.All(); err != nil {
			return fmt.Errorf("read store: %w", err)
		}
		if err := m.kv.ReplaceAll(a.Entries); err != nil {
			return fmt.Errorf("restore store: %w", err)
		}
		swapped = true
		return nil
	})
	if err != nil {
		if swapped {
			m.rollback(prev)
		}
		return nil, fmt.Errorf("import: %w", err)
	}

	rec, err := m.records.Record(model.BackupImport, len(a.Entries), int64(len(data)))
	if err != nil {
		return nil, err
	}
	m.logger.Info("backup imported", "keys", len(a.Entries), "archive_created", a.CreatedAt)
	return rec, nil
}

// restore nests the restorers so every document lock is held while swap
// runs and each document reloads.
func (m *Manager) restore(i int, swap func() error) error {
	if i == len(m.restorers) {
		return swap()
	}
	return m.restorers[i].Restore(func() error { return m.restore(i+1, swap) })
}

// rollback puts the pre-import entries back after a failed reload.
func (m *Manager) rollback(prev map[string]string) {
	if err := m.kv.ReplaceAll(prev); err != nil {
		m.logger.Error("roll back import", "error", err)
		return
	}
	for _, r := range m.restorers {
		if err := r.Reload(); err != nil {
			m.logger.Error("reload after rollback", "error", err)
		}
	}
	m.logger.Warn("import rolled back")
}

// checkDocuments decodes the documents an archive carries.
func checkDocuments(entries map[string]string) error {
	if raw, ok := entries[store.VaultKey]; ok {
		if _, _, err := store.DecodeVault(raw); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotArchive, store.VaultKey, err)
		}
	}
	if raw, ok := entries[store.PortalKey]; ok {
		if _, err := store.DecodePortal(raw); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotArchive, store.PortalKey, err)
		}
	}
	return nil
}

// History lists recent exports and imports, newest first.
func (m *Manager) History(limit int) ([]model.Backup, error) {
	return m.records.List(limit)
}
