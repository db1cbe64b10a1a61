package portal

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/validate"
)

type LoginInput struct {
	Identity string `json:"identity" validate:"required,max=254"`
}

type VoucherInput struct {
	Code  string          `json:"code" validate:"omitempty,alphanum,max=32"`
	Value decimal.Decimal `json:"value"`
}

type RedeemInput struct {
	Code         string `json:"code" validate:"required,max=32"`
	SubscriberID string `json:"subscriber_id"`
}

type DepositInput struct {
	SubscriberID string          `json:"subscriber_id" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
}

// Redemption is the outcome of a successful voucher redemption.
type Redemption struct {
	Voucher    model.Voucher    `json:"voucher"`
	Subscriber model.Subscriber `json:"subscriber"`
	// Implicit is set when the subscriber was picked by the fallback rule.
	Implicit bool `json:"implicit"`
}

func check(in any) error {
	if msg := validate.Struct(in); msg != "" {
		return invalid("%s", msg)
	}
	return nil
}

// NormalizeIdentity trims and lowercases a subscriber identity.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCode trims and uppercases a voucher code.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func generateCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func addNotification(doc *model.PortalDocument, typ, text string, now time.Time) {
	doc.Notifications = append(doc.Notifications, model.Notification{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      typ,
		Timestamp: now,
	})
}

func login(doc *model.PortalDocument, in LoginInput, now time.Time) (model.Subscriber, bool, error) {
	in.Identity = NormalizeIdentity(in.Identity)
	if err := check(in); err != nil {
		return model.Subscriber{}, false, err
	}
	at := now
	created := false
	i := doc.FindSubscriber(in.Identity)
	if i < 0 {
		doc.Subscribers = append(doc.Subscribers, model.Subscriber{
			ID:        in.Identity,
			Credit:    decimal.Zero,
			CreatedAt: now,
		})
		i = len(doc.Subscribers) - 1
		created = true
	}
	sub := &doc.Subscribers[i]
	sub.Connected = true
	sub.ConnectedAt = &at

	text := sub.ID + " logged in"
	if created {
		text = "New subscriber " + sub.ID + " logged in"
	}
	addNotification(doc, model.NotifLogin, text, now)
	return *sub, created, nil
}

func disconnect(doc *model.PortalDocument, id string, now time.Time) error {
	id = NormalizeIdentity(id)
	i := doc.FindSubscriber(id)
	if i < 0 {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	doc.Subscribers[i].Connected = false
	addNotification(doc, model.NotifLogin, id+" disconnected", now)
	return nil
}

func createVoucher(doc *model.PortalDocument, in VoucherInput, currency string, now time.Time) (model.Voucher, error) {
	in.Code = NormalizeCode(in.Code)
	if err := check(in); err != nil {
		return model.Voucher{}, err
	}
	if !in.Value.IsPositive() {
		return model.Voucher{}, invalid("value must be greater than zero")
	}
	code := in.Code
	if code == "" {
		code = generateCode()
		for findVoucher(doc, code) >= 0 {
			code = generateCode()
		}
	} else if findVoucher(doc, code) >= 0 {
		return model.Voucher{}, fmt.Errorf("%s: %w", code, ErrDuplicateVoucher)
	}

	v := model.Voucher{Code: code, Value: in.Value, CreatedAt: now}
	doc.Vouchers = append(doc.Vouchers, v)
	addNotification(doc, model.NotifVoucher, fmt.Sprintf("Voucher %s created (%s)", code, ledger.FormatMoney(in.Value, currency)), now)
	return v, nil
}

func findVoucher(doc *model.PortalDocument, code string) int {
	return slices.IndexFunc(doc.Vouchers, func(v model.Voucher) bool { return v.Code == code })
}

// resolveSubscriber picks the redemption target: the explicit id when given,
// otherwise the most recently connected subscriber, otherwise the first one.
func resolveSubscriber(doc *model.PortalDocument, id string) (int, bool, error) {
	if id = NormalizeIdentity(id); id != "" {
		i := doc.FindSubscriber(id)
		if i < 0 {
			return -1, false, fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
		}
		return i, false, nil
	}
	if len(doc.Subscribers) == 0 {
		return -1, false, ErrNoSubscriber
	}
	best := -1
	for i, s := range doc.Subscribers {
		if !s.Connected || s.ConnectedAt == nil {
			continue
		}
		if best < 0 || s.ConnectedAt.After(*doc.Subscribers[best].ConnectedAt) {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return best, true, nil
}

// redeem applies a voucher. A missing or used code records a failure
// notification and reports ErrVoucherUnavailable through failed; the caller
// still commits that notification.
func redeem(doc *model.PortalDocument, in RedeemInput, currency string, now time.Time) (r Redemption, failed error, err error) {
	in.Code = NormalizeCode(in.Code)
	if err := check(in); err != nil {
		return Redemption{}, nil, err
	}
	si, implicit, err := resolveSubscriber(doc, in.SubscriberID)
	if err != nil {
		return Redemption{}, nil, err
	}

	vi := findVoucher(doc, in.Code)
	if vi < 0 || doc.Vouchers[vi].Redeemed {
		addNotification(doc, model.NotifFailure, fmt.Sprintf("Redemption of %s failed: invalid or used", in.Code), now)
		return Redemption{}, fmt.Errorf("%s: %w", in.Code, ErrVoucherUnavailable), nil
	}

	at := now
	v := &doc.Vouchers[vi]
	sub := &doc.Subscribers[si]
	v.Redeemed = true
	v.RedeemedBy = sub.ID
	v.RedeemedAt = &at
	sub.Credit = sub.Credit.Add(v.Value)
	if sub.Credit.IsPositive() {
		sub.Reminded = false
	}
	addNotification(doc, model.NotifRedeem, fmt.Sprintf("%s redeemed %s for %s", sub.ID, v.Code, ledger.FormatMoney(v.Value, currency)), now)
	return Redemption{Voucher: *v, Subscriber: *sub, Implicit: implicit}, nil, nil
}

// deposit records a ledger entry for every attempt. Non-positive amounts are
// recorded as failures and reported through failed.
func deposit(doc *model.PortalDocument, in DepositInput, currency string, now time.Time) (entry model.LedgerEntry, sub model.Subscriber, failed error, err error) {
	in.SubscriberID = NormalizeIdentity(in.SubscriberID)
	if err := check(in); err != nil {
		return entry, sub, nil, err
	}
	si := doc.FindSubscriber(in.SubscriberID)
	if si < 0 {
		return entry, sub, nil, invalid("unknown subscriber %q", in.SubscriberID)
	}

	entry = model.LedgerEntry{
		ID:           uuid.NewString(),
		SubscriberID: in.SubscriberID,
		Amount:       in.Amount,
		Timestamp:    now,
		Success:      in.Amount.IsPositive(),
	}
	doc.Ledger = append(doc.Ledger, entry)

	s := &doc.Subscribers[si]
	amount := ledger.FormatMoney(in.Amount, currency)
	if !entry.Success {
		addNotification(doc, model.NotifFailure, fmt.Sprintf("Deposit of %s by %s failed", amount, s.ID), now)
		return entry, *s, fmt.Errorf("amount %s: %w", in.Amount, ErrDepositRejected), nil
	}
	s.Credit = s.Credit.Add(in.Amount)
	if s.Credit.IsPositive() {
		s.Reminded = false
	}
	addNotification(doc, model.NotifDeposit, fmt.Sprintf("%s deposited %s", s.ID, amount), now)
	return entry, *s, nil, nil
}

// remindLowCredit flags every subscriber without credit that has not been
// reminded yet and returns their ids.
func remindLowCredit(doc *model.PortalDocument, now time.Time) []string {
	var reminded []string
	for i := range doc.Subscribers {
		s := &doc.Subscribers[i]
		if s.Credit.IsPositive() || s.Reminded {
			continue
		}
		s.Reminded = true
		addNotification(doc, model.NotifLowCredit, s.ID+" is out of credit", now)
		reminded = append(reminded, s.ID)
	}
	return reminded
}
