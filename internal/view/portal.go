package view

import (
	"sort"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
)

type SubscriberRow struct {
	model.Subscriber
	CreditDisplay string `json:"credit_display"`
}

type VoucherRow struct {
	model.Voucher
	ValueDisplay string `json:"value_display"`
}

type LedgerRow struct {
	model.LedgerEntry
	AmountDisplay string `json:"amount_display"`
}

// Portal is the full captive portal page: subscribers as stored, the rest
// newest first.
type Portal struct {
	Subscribers   []SubscriberRow      `json:"subscribers"`
	Vouchers      []VoucherRow         `json:"vouchers"`
	Ledger        []LedgerRow          `json:"ledger"`
	Notifications []model.Notification `json:"notifications"`
	Available     int                  `json:"available"`
}

func BuildPortal(doc model.PortalDocument, currency string) Portal {
	p := Portal{
		Subscribers:   make([]SubscriberRow, 0, len(doc.Subscribers)),
		Vouchers:      make([]VoucherRow, len(doc.Vouchers)),
		Ledger:        make([]LedgerRow, len(doc.Ledger)),
		Notifications: make([]model.Notification, len(doc.Notifications)),
	}
	for _, s := range doc.Subscribers {
		p.Subscribers = append(p.Subscribers, SubscriberRow{Subscriber: s, CreditDisplay: ledger.FormatMoney(s.Credit, currency)})
	}
	for i, v := range doc.Vouchers {
		if !v.Redeemed {
			p.Available++
		}
		p.Vouchers[len(doc.Vouchers)-1-i] = VoucherRow{Voucher: v, ValueDisplay: ledger.FormatMoney(v.Value, currency)}
	}
	for i, e := range doc.Ledger {
		p.Ledger[len(doc.Ledger)-1-i] = LedgerRow{LedgerEntry: e, AmountDisplay: ledger.FormatMoney(e.Amount, currency)}
	}
	for i, n := range doc.Notifications {
		p.Notifications[len(doc.Notifications)-1-i] = n
	}

	sort.SliceStable(p.Vouchers, func(i, j int) bool { return p.Vouchers[i].CreatedAt.After(p.Vouchers[j].CreatedAt) })
	sort.SliceStable(p.Ledger, func(i, j int) bool { return p.Ledger[i].Timestamp.After(p.Ledger[j].Timestamp) })
	sort.SliceStable(p.Notifications, func(i, j int) bool {
		return p.Notifications[i].Timestamp.After(p.Notifications[j].Timestamp)
	})
	return p
}
