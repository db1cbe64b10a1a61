package portal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid            = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrVoucherUnavailable = errors.New("voucher invalid or used")
	ErrNoSubscriber       = errors.New("no subscriber to credit")
	ErrDuplicateVoucher   = errors.New("voucher code already exists")
	ErrDepositRejected    = errors.New("deposit rejected")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
