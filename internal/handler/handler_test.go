package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dukerupert/trustvault/internal/backup"
	"github.com/dukerupert/trustvault/internal/database"
	"github.com/dukerupert/trustvault/internal/model"
	"github.com/dukerupert/trustvault/internal/notify"
	"github.com/dukerupert/trustvault/internal/portal"
	"github.com/dukerupert/trustvault/internal/store"
	"github.com/dukerupert/trustvault/internal/vault"
)

type testEnv struct {
	mux    *http.ServeMux
	vault  *vault.Service
	portal *portal.Service
	rec    *notify.Recorder
}

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	logger := slog.Default()
	kv := store.NewKVStore(db)
	rec := &notify.Recorder{}

	vaultSvc, err := vault.NewService(store.NewVaultStore(kv), vault.Options{Dispatcher: rec, Location: time.UTC, Now: now})
	if err != nil {
		t.Fatalf("vault service: %v", err)
	}
	portalSvc, err := portal.NewService(store.NewPortalStore(kv), portal.Options{Dispatcher: rec, Now: now})
	if err != nil {
		t.Fatalf("portal service: %v", err)
	}

	vh := NewVaultHandler(vaultSvc, logger)
	ph := NewPortalHandler(portalSvc, logger)
	dh := NewDebugHandler(logger)
	dh.Register("vault", vaultSvc, func() any { return vaultSvc.Snapshot() })
	dh.Register("portal", portalSvc, func() any { return portalSvc.Snapshot() })
	bh := NewBackupHandler(backup.NewManager(kv, store.NewBackupStore(db), logger, vaultSvc, portalSvc), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/vault/dashboard", vh.Dashboard)
	mux.HandleFunc("GET /api/vault/members", vh.Members)
	mux.HandleFunc("GET /api/vault/invoices", vh.Invoices)
	mux.HandleFunc("GET /api/vault/messages", vh.Messages)
	mux.HandleFunc("GET /api/vault/settings", vh.Settings)
	mux.HandleFunc("POST /api/vault/members", vh.CreateMember)
	mux.HandleFunc("PUT /api/vault/members/{id}", vh.UpdateMember)
	mux.HandleFunc("DELETE /api/vault/members/{id}", vh.DeleteMember)
	mux.HandleFunc("POST /api/vault/members/{id}/remind", vh.Remind)
	mux.HandleFunc("POST /api/vault/deposits", vh.Deposit)
	mux.HandleFunc("POST /api/vault/withdrawals", vh.Withdraw)
	mux.HandleFunc("PUT /api/vault/settings/rules", vh.UpdateRules())
	mux.HandleFunc("PUT /api/vault/settings/methods", vh.UpdatePaymentMethods())
	mux.HandleFunc("GET /api/portal", ph.View)
	mux.HandleFunc("POST /api/portal/login", ph.Login)
	mux.HandleFunc("POST /api/portal/vouchers", ph.CreateVoucher)
	mux.HandleFunc("POST /api/portal/redeem", ph.Redeem)
	mux.HandleFunc("POST /api/portal/deposits", ph.Deposit)
	mux.HandleFunc("GET /api/debug/{doc}", dh.Get)
	mux.HandleFunc("POST /api/debug/{doc}/save", dh.Save)
	mux.HandleFunc("POST /api/debug/{doc}/reset", dh.Reset)
	mux.HandleFunc("POST /api/backup/export", bh.Export)
	mux.HandleFunc("POST /api/backup/import", bh.Import)
	mux.HandleFunc("GET /api/backup/history", bh.History)

	return &testEnv{mux: mux, vault: vaultSvc, portal: portalSvc, rec: rec}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (e *testEnv) addMember(t *testing.T, name string) model.Member {
	t.Helper()
	rec := e.do(t, "POST", "/api/vault/members", fmt.Sprintf(`{"name":%q,"email":"asha@example.com"}`, name))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create member status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[model.Member](t, rec)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", vault.ErrInvalid), http.StatusBadRequest},
		{fmt.Errorf("member x: %w", vault.ErrNotFound), http.StatusNotFound},
		{vault.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{vault.ErrMethodDisabled, http.StatusUnprocessableEntity},
		{portal.ErrVoucherUnavailable, http.StatusConflict},
		{portal.ErrDuplicateVoucher, http.StatusConflict},
		{portal.ErrNoSubscriber, http.StatusUnprocessableEntity},
		{backup.ErrBadPassphrase, http.StatusBadRequest},
		{fmt.Errorf("%w: %s: %w", backup.ErrNotArchive, store.PortalKey, store.ErrCorruptDocument), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCreateMemberAndDeposit(t *testing.T) {
	env := setupHandlers(t)
	m := env.addMember(t, "Asha")

	rec := env.do(t, "POST", "/api/vault/deposits", fmt.Sprintf(`{"member_id":%q,"amount":"50","method":"cash"}`, m.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "GET", "/api/vault/invoices", "")
	invoices := decode[[]struct {
		Status string `json:"status"`
	}](t, rec)
	if len(invoices) != 1 || invoices[0].Status != "Overdue" {
		t.Errorf("invoices = %+v, want one Overdue", invoices)
	}

	rec = env.do(t, "GET", "/api/vault/messages", "")
	msgs := decode[struct {
		Items     []model.Message `json:"items"`
		HasDanger bool            `json:"has_danger"`
	}](t, rec)
	if !msgs.HasDanger {
		t.Error("expected a danger message after a deposit below the minimum")
	}
	if msgs.Items[0].Type != "Below minimum" {
		t.Errorf("newest message = %q, want Below minimum", msgs.Items[0].Type)
	}

	rec = env.do(t, "GET", "/api/vault/dashboard", "")
	dash := decode[struct {
		TotalSaved struct {
			Display string `json:"display"`
		} `json:"total_saved"`
	}](t, rec)
	if dash.TotalSaved.Display != "KES 50" {
		t.Errorf("total saved = %q, want KES 50", dash.TotalSaved.Display)
	}
}

func TestCreateMemberValidation(t *testing.T) {
	env := setupHandlers(t)

	rec := env.do(t, "POST", "/api/vault/members", `{"name":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", rec.Code)
	}
	rec = env.do(t, "POST", "/api/vault/members", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
	if len(env.vault.Snapshot().Members) != 0 {
		t.Error("member added despite validation failure")
	}
}

func TestWithdrawOverBalance(t *testing.T) {
	env := setupHandlers(t)
	m := env.addMember(t, "Asha")
	before := len(env.vault.Snapshot().Messages)

	rec := env.do(t, "POST", "/api/vault/withdrawals", fmt.Sprintf(`{"member_id":%q,"amount":10}`, m.ID))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("withdraw status = %d, want 422", rec.Code)
	}
	doc := env.vault.Snapshot()
	if len(doc.Transactions) != 0 || len(doc.Messages) != before {
		t.Error("failed withdrawal changed the document")
	}
}

func TestUnknownMember(t *testing.T) {
	env := setupHandlers(t)

	rec := env.do(t, "POST", "/api/vault/deposits", `{"member_id":"nope","amount":50}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deposit status = %d, want 404", rec.Code)
	}
	rec = env.do(t, "DELETE", "/api/vault/members/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", rec.Code)
	}
}

func TestDeleteMemberCascade(t *testing.T) {
	env := setupHandlers(t)
	m := env.addMember(t, "Asha")
	env.do(t, "POST", "/api/vault/deposits", fmt.Sprintf(`{"member_id":%q,"amount":100}`, m.ID))
	env.do(t, "POST", "/api/vault/deposits", fmt.Sprintf(`{"member_id":%q,"amount":100}`, m.ID))

	rec := env.do(t, "DELETE", "/api/vault/members/"+m.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	got := decode[map[string]int](t, rec)
	if got["transactions_removed"] != 2 {
		t.Errorf("transactions_removed = %d, want 2", got["transactions_removed"])
	}
}

func TestRemindDispatches(t *testing.T) {
	env := setupHandlers(t)
	m := env.addMember(t, "Asha")

	rec := env.do(t, "POST", "/api/vault/members/"+m.ID+"/remind", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remind status = %d", rec.Code)
	}
	notices := env.rec.Notices()
	if len(notices) != 1 || notices[0].To != "asha@example.com" || notices[0].Type != notify.TypeReminder {
		t.Errorf("notices = %+v", notices)
	}
}

func TestSettingsUpdates(t *testing.T) {
	env := setupHandlers(t)

	rec := env.do(t, "PUT", "/api/vault/settings/rules", `{"daily_min":"200","currency":"usd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rules status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Settings model.Settings `json:"settings"`
	}](t, rec)
	if got.Settings.Currency != "USD" || got.Settings.DailyMin.IntPart() != 200 {
		t.Errorf("settings = %+v", got.Settings)
	}

	rec = env.do(t, "PUT", "/api/vault/settings/rules", `{"daily_min":"200","currency":"ZZZ"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad currency status = %d, want 400", rec.Code)
	}

	rec = env.do(t, "PUT", "/api/vault/settings/methods", `{"methods":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("methods status = %d", rec.Code)
	}
	m := env.addMember(t, "Asha")
	rec = env.do(t, "POST", "/api/vault/deposits", fmt.Sprintf(`{"member_id":%q,"amount":100}`, m.ID))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("deposit with no methods status = %d, want 422", rec.Code)
	}
}

func TestPortalRedeemFlow(t *testing.T) {
	env := setupHandlers(t)

	if rec := env.do(t, "POST", "/api/portal/login", `{"identity":" A@x.com "}`); rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/portal/vouchers", `{"code":"abc123","value":60}`); rec.Code != http.StatusCreated {
		t.Fatalf("voucher status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, "POST", "/api/portal/redeem", `{"code":"ABC123","subscriber_id":"a@x.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[portal.Redemption](t, rec)
	if res.Subscriber.Credit.IntPart() != 60 {
		t.Errorf("credit = %s, want 60", res.Subscriber.Credit)
	}

	rec = env.do(t, "POST", "/api/portal/redeem", `{"code":"ABC123","subscriber_id":"a@x.com"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second redeem status = %d, want 409", rec.Code)
	}

	rec = env.do(t, "GET", "/api/portal", "")
	p := decode[struct {
		Subscribers []struct {
			CreditDisplay string `json:"credit_display"`
		} `json:"subscribers"`
		Notifications []model.Notification `json:"notifications"`
	}](t, rec)
	if p.Subscribers[0].CreditDisplay != "KES 60" {
		t.Errorf("credit display = %q", p.Subscribers[0].CreditDisplay)
	}
	if p.Notifications[0].Type != model.NotifFailure {
		t.Errorf("newest notification = %q, want failure", p.Notifications[0].Type)
	}
}

func TestPortalDeposit(t *testing.T) {
	env := setupHandlers(t)
	env.do(t, "POST", "/api/portal/login", `{"identity":"a@x.com"}`)

	rec := env.do(t, "POST", "/api/portal/deposits", `{"subscriber_id":"a@x.com","amount":50}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/portal/deposits", `{"subscriber_id":"a@x.com","amount":0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected deposit status = %d, want 422", rec.Code)
	}
	got := decode[struct {
		Entry model.LedgerEntry `json:"entry"`
	}](t, rec)
	if got.Entry.Success {
		t.Error("rejected entry marked successful")
	}

	rec = env.do(t, "POST", "/api/portal/deposits", `{"subscriber_id":"ghost","amount":50}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown subscriber status = %d, want 400", rec.Code)
	}
	if n := len(env.portal.Snapshot().Ledger); n != 2 {
		t.Errorf("ledger entries = %d, want 2", n)
	}
}

func TestDebugHandle(t *testing.T) {
	env := setupHandlers(t)
	env.addMember(t, "Asha")

	rec := env.do(t, "GET", "/api/debug/vault", "")
	doc := decode[model.Document](t, rec)
	if len(doc.Members) != 1 {
		t.Errorf("debug members = %d, want 1", len(doc.Members))
	}

	if rec := env.do(t, "POST", "/api/debug/vault/save", ""); rec.Code != http.StatusOK {
		t.Errorf("save status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/debug/vault/reset", ""); rec.Code != http.StatusOK {
		t.Errorf("reset status = %d", rec.Code)
	}
	if len(env.vault.Snapshot().Members) != 0 {
		t.Error("reset kept members")
	}
	if rec := env.do(t, "GET", "/api/debug/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown document status = %d, want 404", rec.Code)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	env := setupHandlers(t)
	env.addMember(t, "Asha")

	rec := env.do(t, "POST", "/api/backup/export", `{"passphrase":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}
	archive := rec.Body.Bytes()

	env.do(t, "POST", "/api/debug/vault/reset", "")
	if len(env.vault.Snapshot().Members) != 0 {
		t.Fatal("reset did not clear members")
	}

	req := httptest.NewRequest("POST", "/api/backup/import?passphrase="+url.QueryEscape("wrong passphrase"), bytes.NewReader(archive))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wrong passphrase status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest("POST", "/api/backup/import?passphrase="+url.QueryEscape("correct horse"), bytes.NewReader(archive))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body.String())
	}
	if members := env.vault.Snapshot().Members; len(members) != 1 || members[0].Name != "Asha" {
		t.Errorf("members after import = %+v", members)
	}

	rec = env.do(t, "GET", "/api/backup/history", "")
	history := decode[[]model.Backup](t, rec)
	if len(history) != 2 {
		t.Errorf("history = %d entries, want 2", len(history))
	}
}

func TestBackupExportWeakPassphrase(t *testing.T) {
	env := setupHandlers(t)
	rec := env.do(t, "POST", "/api/backup/export", `{"passphrase":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
