package vault

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid           = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoPaymentMethod   = errors.New("no payment methods enabled")
	ErrMethodDisabled    = errors.New("payment method not enabled")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
