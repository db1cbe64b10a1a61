package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/trustvault/internal/backup"
	"github.com/dukerupert/trustvault/internal/portal"
	"github.com/dukerupert/trustvault/internal/vault"
)

// maxBodyBytes bounds request bodies; avatars arrive as data URLs.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalid), errors.Is(err, portal.ErrInvalid),
		errors.Is(err, backup.ErrWeakPassphrase), errors.Is(err, backup.ErrBadPassphrase),
		errors.Is(err, backup.ErrNotArchive), errors.Is(err, backup.ErrUnsupportedArchive):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, portal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portal.ErrVoucherUnavailable), errors.Is(err, portal.ErrDuplicateVoucher):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInsufficientFunds), errors.Is(err, vault.ErrNoPaymentMethod),
		errors.Is(err, vault.ErrMethodDisabled), errors.Is(err, portal.ErrNoSubscriber),
		errors.Is(err, portal.ErrDepositRejected):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with the error text for domain errors and a generic
// message for everything else.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeMessage(w, status, "failed to "+op)
		return
	}
	writeMessage(w, status, err.Error())
}
