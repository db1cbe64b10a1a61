package store

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/trustvault/internal/model"
)

const (
	VaultKey    = "trustvault_store_v1"
	VaultPrefix = "trustvault_"
)

// VaultStore loads and saves the savings-group document.
type VaultStore struct {
	kv *KVStore
}

func NewVaultStore(kv *KVStore) *VaultStore {
	return &VaultStore{kv: kv}
}

// Load returns the saved document, seeding and saving a default one on first run.
func (s *VaultStore) Load() (*model.Document, error) {
	raw, found, err := s.kv.Get(VaultKey)
	if err != nil {
		return nil, err
	}
	if !found {
		doc := model.NewDocument()
		if err := s.Save(&doc); err != nil {
			return nil, fmt.Errorf("seed vault: %w", err)
		}
		return &doc, nil
	}

	doc, migrated, err := DecodeVault(raw)
	if err != nil {
		return nil, err
	}
	if migrated {
		if err := s.Save(doc); err != nil {
			return nil, fmt.Errorf("save migrated vault: %w", err)
		}
	}
	return doc, nil
}

// DecodeVault parses a stored vault document, migrating legacy documents.
// migrated reports whether the result differs in layout from raw.
func DecodeVault(raw string) (doc *model.Document, migrated bool, err error) {
	version, err := probeVersion(raw)
	if err != nil {
		return nil, false, err
	}

	switch {
	case version == 0:
		doc, err := migrateLegacyVault(raw)
		if err != nil {
			return nil, false, err
		}
		return doc, true, nil
	case version > model.VaultSchemaVersion:
		return nil, false, fmt.Errorf("%w: vault v%d", ErrUnsupportedVersion, version)
	}

	doc = &model.Document{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	normalizeVault(doc)
	return doc, false, nil
}

func (s *VaultStore) Save(doc *model.Document) error {
	doc.SchemaVersion = model.VaultSchemaVersion
	return saveJSON(s.kv, VaultKey, doc)
}

// Reset clears every trustvault key and returns a freshly seeded document.
func (s *VaultStore) Reset() (*model.Document, error) {
	if _, err := s.kv.DeletePrefix(VaultPrefix); err != nil {
		return nil, fmt.Errorf("reset vault: %w", err)
	}
	return s.Load()
}

// normalizeVault replaces null arrays so callers never see nil slices.
func normalizeVault(doc *model.Document) {
	if doc.Members == nil {
		doc.Members = []model.Member{}
	}
	if doc.Transactions == nil {
		doc.Transactions = []model.Transaction{}
	}
	if doc.Messages == nil {
		doc.Messages = []model.Message{}
	}
	if doc.Todos == nil {
		doc.Todos = []model.Todo{}
	}
	if doc.Settings.Methods == nil {
		doc.Settings.Methods = []string{}
	}
}
