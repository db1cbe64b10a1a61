package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/vault"
	"github.com/dukerupert/trustvault/internal/view"
)

type VaultHandler struct {
	svc    *vault.Service
	logger *slog.Logger
}

func NewVaultHandler(svc *vault.Service, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{svc: svc, logger: logger}
}

func (h *VaultHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildDashboard(h.svc.Snapshot(), h.svc.Now()))
}

func (h *VaultHandler) Members(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildMembers(h.svc.Snapshot()))
}

func (h *VaultHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildInvoices(h.svc.Snapshot(), h.svc.Now()))
}

func (h *VaultHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildStats(h.svc.Snapshot()))
}

func (h *VaultHandler) Finances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildFinances(h.svc.Snapshot(), h.svc.Now()))
}

func (h *VaultHandler) Messages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildMessages(h.svc.Snapshot()))
}

func (h *VaultHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildTransactions(h.svc.Snapshot()))
}

func (h *VaultHandler) Todos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildTodos(h.svc.Snapshot()))
}

func (h *VaultHandler) Settings(w http.ResponseWriter, r *http.Request) {
	doc := h.svc.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		Admin    model.Admin    `json:"admin"`
		Settings model.Settings `json:"settings"`
	}{doc.Admin, doc.Settings})
}

func (h *VaultHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var in vault.MemberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, err := h.svc.AddMember(in)
	if err != nil {
		writeError(w, h.logger, "add member", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *VaultHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var in vault.MemberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, err := h.svc.EditMember(r.PathValue("id"), in)
	if err != nil {
		writeError(w, h.logger, "edit member", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *VaultHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.DeleteMember(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "delete member", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"transactions_removed": removed})
}

func (h *VaultHandler) Remind(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remind(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, "remind member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var in vault.DepositInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tx, err := h.svc.Deposit(in)
	if err != nil {
		writeError(w, h.logger, "record deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in vault.WithdrawInput
	if !decodeJSON(w, r, &in) {
		return
	}
	tx, err := h.svc.Withdraw(in)
	if err != nil {
		writeError(w, h.logger, "record withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *VaultHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTransaction(r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var in vault.TodoInput
	if !decodeJSON(w, r, &in) {
		return
	}
	todo, err := h.svc.AddTodo(in)
	if err != nil {
		writeError(w, h.logger, "add todo", err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

func (h *VaultHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTodo(r.PathValue("id")); err != nil {
		writeError(w, h.logger, "delete todo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearMessages(); err != nil {
		writeError(w, h.logger, "clear messages", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// settingsUpdate decodes T and applies it with fn, answering with the
// updated settings.
func settingsUpdate[T any](h *VaultHandler, op string, fn func(T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in T
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := fn(in); err != nil {
			writeError(w, h.logger, op, err)
			return
		}
		h.Settings(w, r)
	}
}

func (h *VaultHandler) UpdateAdmin() http.HandlerFunc {
	return settingsUpdate(h, "update admin", h.svc.UpdateAdmin)
}

func (h *VaultHandler) UpdateTarget() http.HandlerFunc {
	return settingsUpdate(h, "update target", h.svc.UpdateTarget)
}

func (h *VaultHandler) UpdateRules() http.HandlerFunc {
	return settingsUpdate(h, "update rules", h.svc.UpdateRules)
}

func (h *VaultHandler) UpdatePaymentMethods() http.HandlerFunc {
	return settingsUpdate(h, "update payment methods", h.svc.UpdatePaymentMethods)
}

func (h *VaultHandler) UpdateAppearance() http.HandlerFunc {
	return settingsUpdate(h, "update appearance", h.svc.UpdateAppearance)
}
