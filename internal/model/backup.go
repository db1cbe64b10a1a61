package model

import "time"

type BackupDirection string

const (
	BackupExport BackupDirection = "export"
	BackupImport BackupDirection = "import"
)

// Backup is one export or import of the key-value store.
type Backup struct {
	ID        int64           `json:"id"`
	KeysCount int             `json:"keys_count"`
	SizeBytes int64           `json:"size_bytes"`
	Direction BackupDirection `json:"direction"`
	CreatedAt time.Time       `json:"created_at"`
}
