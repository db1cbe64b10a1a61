package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/trustvault/internal/portal"
	"github.com/dukerupert/trustvault/internal/view"
)

type PortalHandler struct {
	svc    *portal.Service
	logger *slog.Logger
}

func NewPortalHandler(svc *portal.Service, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{svc: svc, logger: logger}
}

func (h *PortalHandler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.BuildPortal(h.svc.Snapshot(), h.svc.Currency()))
}

func (h *PortalHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in portal.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := h.svc.Login(in)
	if err != nil {
		writeError(w, h.logger, "log in", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *PortalHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Disconnect(r.PathValue("id")); err != nil {
		writeError(w, h.logger, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PortalHandler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var in portal.VoucherInput
	if !decodeJSON(w, r, &in) {
		return
	}
	v, err := h.svc.CreateVoucher(in)
	if err != nil {
		writeError(w, h.logger, "create voucher", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *PortalHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var in portal.RedeemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.Redeem(in)
	if err != nil {
		writeError(w, h.logger, "redeem voucher", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Deposit answers 201 with the ledger entry, or 422 with the recorded
// failure entry when the amount was rejected.
func (h *PortalHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var in portal.DepositInput
	if !decodeJSON(w, r, &in) {
		return
	}
	entry, err := h.svc.Deposit(r.Context(), in)
	if errors.Is(err, portal.ErrDepositRejected) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "entry": entry})
		return
	}
	if err != nil {
		writeError(w, h.logger, "record deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
