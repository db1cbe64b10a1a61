package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortalSchemaVersion is the schema version written by this build.
const PortalSchemaVersion = 1

type Subscriber struct {
	ID          string          `json:"id"`
	Credit      decimal.Decimal `json:"credit"`
	Connected   bool            `json:"connected"`
	ConnectedAt *time.Time      `json:"connected_at,omitempty"`
	Reminded    bool            `json:"reminded"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Voucher struct {
	Code       string          `json:"code"`
	Value      decimal.Decimal `json:"value"`
	Redeemed   bool            `json:"redeemed"`
	RedeemedBy string          `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time      `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type LedgerEntry struct {
	ID           string          `json:"id"`
	SubscriberID string          `json:"subscriber_id"`
	Amount       decimal.Decimal `json:"amount"`
	Timestamp    time.Time       `json:"timestamp"`
	Success      bool            `json:"success"`
}

// Notification types recorded by the portal.
const (
	NotifLogin     = "login"
	NotifVoucher   = "voucher"
	NotifRedeem    = "redeem"
	NotifFailure   = "failure"
	NotifDeposit   = "deposit"
	NotifLowCredit = "low_credit"
)

type Notification struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// PortalDocument holds the four parallel arrays of the captive portal.
type PortalDocument struct {
	SchemaVersion int            `json:"schema_version"`
	Subscribers   []Subscriber   `json:"subscribers"`
	Vouchers      []Voucher      `json:"vouchers"`
	Ledger        []LedgerEntry  `json:"ledger"`
	Notifications []Notification `json:"notifications"`
}

func NewPortalDocument() PortalDocument {
	return PortalDocument{
		SchemaVersion: PortalSchemaVersion,
		Subscribers:   []Subscriber{},
		Vouchers:      []Voucher{},
		Ledger:        []LedgerEntry{},
		Notifications: []Notification{},
	}
}

func (d PortalDocument) Clone() PortalDocument {
	c := d
	c.Subscribers = append([]Subscriber{}, d.Subscribers...)
	c.Vouchers = append([]Voucher{}, d.Vouchers...)
	c.Ledger = append([]LedgerEntry{}, d.Ledger...)
	c.Notifications = append([]Notification{}, d.Notifications...)
	return c
}

func (d *PortalDocument) FindSubscriber(id string) int {
	for i := range d.Subscribers {
		if d.Subscribers[i].ID == id {
			return i
		}
	}
	return -1
}
