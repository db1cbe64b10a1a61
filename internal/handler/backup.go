package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/trustvault/internal/backup"
)

// maxArchiveBytes bounds uploaded archives.
const maxArchiveBytes = 64 << 20

type BackupHandler struct {
	mgr    *backup.Manager
	logger *slog.Logger
}

func NewBackupHandler(mgr *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{mgr: mgr, logger: logger}
}

func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	data, rec, err := h.mgr.Export(req.Passphrase)
	if err != nil {
		writeError(w, h.logger, "export backup", err)
		return
	}

	name := fmt.Sprintf("trustvault-%s.tvb", rec.CreatedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Import reads the raw archive from the body and the passphrase from the
// query string.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArchiveBytes))
	if err != nil {
		writeMessage(w, http.StatusRequestEntityTooLarge, "archive too large")
		return
	}
	rec, err := h.mgr.Import(data, r.URL.Query().Get("passphrase"))
	if err != nil {
		writeError(w, h.logger, "import backup", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *BackupHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := h.mgr.History(limit)
	if err != nil {
		writeError(w, h.logger, "list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
