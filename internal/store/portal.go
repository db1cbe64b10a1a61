package store

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/trustvault/internal/model"
)

const (
	PortalKey    = "portal_store_v1"
	PortalPrefix = "portal_"
)

// PortalStore loads and saves the captive-portal document.
type PortalStore struct {
	kv *KVStore
}

func NewPortalStore(kv *KVStore) *PortalStore {
	return &PortalStore{kv: kv}
}

func (s *PortalStore) Load() (*model.PortalDocument, error) {
	raw, found, err := s.kv.Get(PortalKey)
	if err != nil {
		return nil, err
	}
	if !found {
		doc := model.NewPortalDocument()
		if err := s.Save(&doc); err != nil {
			return nil, fmt.Errorf("seed portal: %w", err)
		}
		return &doc, nil
	}

	return DecodePortal(raw)
}

// DecodePortal parses a stored portal document.
func DecodePortal(raw string) (*model.PortalDocument, error) {
	version, err := probeVersion(raw)
	if err != nil {
		return nil, err
	}
	if version > model.PortalSchemaVersion {
		return nil, fmt.Errorf("%w: portal v%d", ErrUnsupportedVersion, version)
	}

	// Version 0 documents share the current field layout.
	var doc model.PortalDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if doc.Subscribers == nil {
		doc.Subscribers = []model.Subscriber{}
	}
	if doc.Vouchers == nil {
		doc.Vouchers = []model.Voucher{}
	}
	if doc.Ledger == nil {
		doc.Ledger = []model.LedgerEntry{}
	}
	if doc.Notifications == nil {
		doc.Notifications = []model.Notification{}
	}
	doc.SchemaVersion = model.PortalSchemaVersion
	return &doc, nil
}

func (s *PortalStore) Save(doc *model.PortalDocument) error {
	doc.SchemaVersion = model.PortalSchemaVersion
	return saveJSON(s.kv, PortalKey, doc)
}

func (s *PortalStore) Reset() (*model.PortalDocument, error) {
	if _, err := s.kv.DeletePrefix(PortalPrefix); err != nil {
		return nil, fmt.Errorf("reset portal: %w", err)
	}
	return s.Load()
}
