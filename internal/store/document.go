package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCorruptDocument is returned when a stored document cannot be parsed.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrUnsupportedVersion is returned for documents written by a newer build.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

type versionProbe struct {
	SchemaVersion int `json:"schema_version"`
}

func probeVersion(raw string) (int, error) {
	var p versionProbe
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return p.SchemaVersion, nil
}

func saveJSON(kv *KVStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return kv.Set(key, string(data))
}
