package handler

import (
	"log/slog"
	"net/http"
)

// Document is what the debug handle needs from a service.
type Document interface {
	Save() error
	Reset() error
}

// DebugHandler inspects, force-saves and resets the stored documents.
type DebugHandler struct {
	docs      map[string]Document
	snapshots map[string]func() any
	logger    *slog.Logger
}

func NewDebugHandler(logger *slog.Logger) *DebugHandler {
	return &DebugHandler{
		docs:      make(map[string]Document),
		snapshots: make(map[string]func() any),
		logger:    logger,
	}
}

// Register exposes a document under name, "vault" or "portal".
func (h *DebugHandler) Register(name string, doc Document, snapshot func() any) {
	h.docs[name] = doc
	h.snapshots[name] = snapshot
}

func (h *DebugHandler) lookup(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("doc")
	if _, ok := h.docs[name]; !ok {
		writeMessage(w, http.StatusNotFound, "unknown document")
		return "", false
	}
	return name, true
}

func (h *DebugHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.snapshots[name]())
}

func (h *DebugHandler) Save(w http.ResponseWriter, r *http.Request) {
	name, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.docs[name].Save(); err != nil {
		writeError(w, h.logger, "save "+name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *DebugHandler) Reset(w http.ResponseWriter, r *http.Request) {
	name, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := h.docs[name].Reset(); err != nil {
		writeError(w, h.logger, "reset "+name, err)
		return
	}
	h.logger.Warn("document reset", "document", name)
	writeJSON(w, http.StatusOK, h.snapshots[name]())
}
