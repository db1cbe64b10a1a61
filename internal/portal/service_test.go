package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/database"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/notify"
	"github.com/dukerupert/trustvault/internal/store"
)

type testEnv struct {
	svc   *Service
	store *store.PortalStore
	rec   *notify.Recorder
	now   time.Time
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		store: store.NewPortalStore(store.NewKVStore(db)),
		rec:   &notify.Recorder{},
		now:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	env.svc, err = NewService(env.store, Options{
		Dispatcher: env.rec,
		Now:        func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return env
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func lastNotification(doc model.PortalDocument) model.Notification {
	return doc.Notifications[len(doc.Notifications)-1]
}

func TestVoucherScenario(t *testing.T) {
	env := setupService(t)

	sub, err := env.svc.Login(LoginInput{Identity: " A@X.com "})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sub.ID != "a@x.com" {
		t.Errorf("id = %q, want %q", sub.ID, "a@x.com")
	}
	if !sub.Credit.IsZero() || !sub.Connected {
		t.Errorf("subscriber = %+v, want zero credit and connected", sub)
	}

	v, err := env.svc.CreateVoucher(VoucherInput{Code: "abc123", Value: dec(60)})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	if v.Code != "ABC123" {
		t.Errorf("code = %q, want ABC123", v.Code)
	}

	r, err := env.svc.Redeem(RedeemInput{Code: "ABC123", SubscriberID: "a@x.com"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !r.Subscriber.Credit.Equal(dec(60)) {
		t.Errorf("credit = %s, want 60", r.Subscriber.Credit)
	}
	if !r.Voucher.Redeemed || r.Voucher.RedeemedBy != "a@x.com" || r.Voucher.RedeemedAt == nil {
		t.Errorf("voucher = %+v", r.Voucher)
	}

	before := len(env.svc.Snapshot().Notifications)
	if _, err := env.svc.Redeem(RedeemInput{Code: "ABC123", SubscriberID: "a@x.com"}); !errors.Is(err, ErrVoucherUnavailable) {
		t.Fatalf("second redeem err = %v, want ErrVoucherUnavailable", err)
	}

	doc := env.svc.Snapshot()
	if got := doc.Subscribers[0].Credit; !got.Equal(dec(60)) {
		t.Errorf("credit after second redeem = %s, want 60", got)
	}
	if len(doc.Notifications) != before+1 || lastNotification(doc).Type != model.NotifFailure {
		t.Errorf("expected one failure notification, got %+v", lastNotification(doc))
	}

	stored, err := env.store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lastNotification(*stored).Type != model.NotifFailure {
		t.Error("failure notification was not persisted")
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.Login(LoginInput{Identity: "a@x.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.svc.Redeem(RedeemInput{Code: "NOPE"}); !errors.Is(err, ErrVoucherUnavailable) {
		t.Fatalf("err = %v, want ErrVoucherUnavailable", err)
	}
	if got := env.svc.Snapshot().Subscribers[0].Credit; !got.IsZero() {
		t.Errorf("credit = %s, want 0", got)
	}
}

func TestRedeemEmptyCodeDoesNotMutate(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.Login(LoginInput{Identity: "a@x.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	before := len(env.svc.Snapshot().Notifications)

	if _, err := env.svc.Redeem(RedeemInput{Code: "  "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	if got := len(env.svc.Snapshot().Notifications); got != before {
		t.Errorf("notifications = %d, want %d", got, before)
	}
}

func TestRedeemFallbackSelection(t *testing.T) {
	env := setupService(t)
	for _, id := range []string{"first@x.com", "second@x.com", "third@x.com"} {
		if _, err := env.svc.Login(LoginInput{Identity: id}); err != nil {
			t.Fatalf("login: %v", err)
		}
		env.now = env.now.Add(time.Minute)
	}
	if err := env.svc.Disconnect("third@x.com"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	for _, code := range []string{"ONE", "TWO"} {
		if _, err := env.svc.CreateVoucher(VoucherInput{Code: code, Value: dec(10)}); err != nil {
			t.Fatalf("create voucher: %v", err)
		}
	}

	r, err := env.svc.Redeem(RedeemInput{Code: "ONE"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if r.Subscriber.ID != "second@x.com" || !r.Implicit {
		t.Errorf("redeemed by %q (implicit %v), want most recently connected second@x.com", r.Subscriber.ID, r.Implicit)
	}

	for _, id := range []string{"first@x.com", "second@x.com"} {
		if err := env.svc.Disconnect(id); err != nil {
			t.Fatalf("disconnect: %v", err)
		}
	}
	r, err = env.svc.Redeem(RedeemInput{Code: "TWO"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if r.Subscriber.ID != "first@x.com" {
		t.Errorf("redeemed by %q, want first subscriber", r.Subscriber.ID)
	}
}

func TestRedeemWithoutSubscribers(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.CreateVoucher(VoucherInput{Code: "ABC", Value: dec(10)}); err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	if _, err := env.svc.Redeem(RedeemInput{Code: "ABC"}); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("err = %v, want ErrNoSubscriber", err)
	}
	if env.svc.Snapshot().Vouchers[0].Redeemed {
		t.Error("voucher redeemed without a subscriber")
	}
}

func TestRedeemUnknownExplicitSubscriber(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.CreateVoucher(VoucherInput{Code: "ABC", Value: dec(10)}); err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	if _, err := env.svc.Redeem(RedeemInput{Code: "ABC", SubscriberID: "ghost@x.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateVoucher(t *testing.T) {
	env := setupService(t)

	v, err := env.svc.CreateVoucher(VoucherInput{Value: dec(25)})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	if len(v.Code) != 8 {
		t.Errorf("generated code = %q, want 8 characters", v.Code)
	}
	if _, err := env.svc.CreateVoucher(VoucherInput{Code: v.Code, Value: dec(5)}); !errors.Is(err, ErrDuplicateVoucher) {
		t.Errorf("duplicate err = %v, want ErrDuplicateVoucher", err)
	}
	if _, err := env.svc.CreateVoucher(VoucherInput{Code: "FREE", Value: dec(0)}); !errors.Is(err, ErrInvalid) {
		t.Errorf("zero value err = %v, want ErrInvalid", err)
	}
	if _, err := env.svc.CreateVoucher(VoucherInput{Code: "NO-DASH", Value: dec(5)}); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad code err = %v, want ErrInvalid", err)
	}
}

func TestDeposit(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.Login(LoginInput{Identity: "a@x.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	entry, err := env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "a@x.com", Amount: dec(50)})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !entry.Success {
		t.Error("expected successful ledger entry")
	}

	entry, err = env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "a@x.com", Amount: dec(0)})
	if !errors.Is(err, ErrDepositRejected) {
		t.Fatalf("err = %v, want ErrDepositRejected", err)
	}
	if entry == nil || entry.Success {
		t.Errorf("expected failed ledger entry, got %+v", entry)
	}

	doc := env.svc.Snapshot()
	if len(doc.Ledger) != 2 {
		t.Fatalf("ledger = %d entries, want 2", len(doc.Ledger))
	}
	if got := doc.Subscribers[0].Credit; !got.Equal(dec(50)) {
		t.Errorf("credit = %s, want 50", got)
	}
	if lastNotification(doc).Type != model.NotifFailure {
		t.Errorf("last notification = %q, want failure", lastNotification(doc).Type)
	}

	notices := env.rec.Notices()
	if len(notices) != 2 {
		t.Fatalf("notices = %d, want 2", len(notices))
	}
	if notices[0].Type != notify.TypeDeposit || notices[0].Amount != "KES 50" || notices[0].To != "a@x.com" {
		t.Errorf("first notice = %+v", notices[0])
	}
	if notices[1].Type != notify.TypeFailure {
		t.Errorf("second notice type = %q, want failure", notices[1].Type)
	}
}

func TestDepositUnknownSubscriber(t *testing.T) {
	env := setupService(t)
	_, err := env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "ghost@x.com", Amount: dec(10)})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	doc := env.svc.Snapshot()
	if len(doc.Ledger) != 0 || len(doc.Notifications) != 0 {
		t.Error("unknown subscriber deposit mutated the document")
	}
	if len(env.rec.Notices()) != 0 {
		t.Error("unknown subscriber deposit dispatched a notice")
	}
}

func TestDepositDispatchFailureKeepsLedger(t *testing.T) {
	env := setupService(t)
	env.rec.Err = errors.New("provider down")
	if _, err := env.svc.Login(LoginInput{Identity: "a@x.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "a@x.com", Amount: dec(10)}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := len(env.svc.Snapshot().Ledger); got != 1 {
		t.Errorf("ledger = %d, want 1", got)
	}
}

func TestRemindLowCreditOnce(t *testing.T) {
	env := setupService(t)
	for _, id := range []string{"a@x.com", "b@x.com"} {
		if _, err := env.svc.Login(LoginInput{Identity: id}); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	if _, err := env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "b@x.com", Amount: dec(10)}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	reminded, err := env.svc.RemindLowCredit()
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if len(reminded) != 1 || reminded[0] != "a@x.com" {
		t.Errorf("reminded = %v, want [a@x.com]", reminded)
	}

	reminded, err = env.svc.RemindLowCredit()
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if len(reminded) != 0 {
		t.Errorf("second pass reminded = %v, want none", reminded)
	}

	// Topping up clears the flag so the next shortfall is reported again.
	if _, err := env.svc.Deposit(context.Background(), DepositInput{SubscriberID: "a@x.com", Amount: dec(5)}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if env.svc.Snapshot().Subscribers[0].Reminded {
		t.Error("reminded flag not cleared after top-up")
	}

	stored, err := env.store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Subscribers[1].Reminded {
		t.Error("subscriber with credit marked reminded")
	}
}

func TestReset(t *testing.T) {
	env := setupService(t)
	if _, err := env.svc.Login(LoginInput{Identity: "a@x.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.svc.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := len(env.svc.Snapshot().Subscribers); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
}
