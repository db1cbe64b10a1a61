package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultSchemaVersion is the schema version written by this build.
const VaultSchemaVersion = 1

type TxKind string

const (
	TxDeposit  TxKind = "deposit"
	TxWithdraw TxKind = "withdraw"
)

type Level string

const (
	LevelInfo   Level = "info"
	LevelDanger Level = "danger"
)

type TodoKind string

const (
	TodoNote    TodoKind = "note"
	TodoEvent   TodoKind = "event"
	TodoMinutes TodoKind = "minutes"
)

// Payment methods known to the settings page.
const (
	MethodBank     = "bank"
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodPayPal   = "paypal"
	MethodEmpesa   = "empesa"
	MethodWithdraw = "withdraw"
)

var PaymentMethods = []string{MethodBank, MethodCash, MethodCard, MethodPayPal, MethodEmpesa}

type Admin struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Settings struct {
	Target     decimal.Decimal `json:"target"`
	EstDays    int             `json:"est_days"`
	DailyMin   decimal.Decimal `json:"daily_min"`
	Currency   string          `json:"currency"`
	Methods    []string        `json:"methods"`
	Appearance string          `json:"appearance"`
}

type Member struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Phone  string    `json:"phone,omitempty"`
	Email  string    `json:"email,omitempty"`
	Avatar string    `json:"avatar,omitempty"`
	Joined time.Time `json:"joined"`
}

type Transaction struct {
	ID       string          `json:"id"`
	MemberID string          `json:"member_id"`
	Kind     TxKind          `json:"kind"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	Method   string          `json:"method"`
	Note     string          `json:"note,omitempty"`
}

// Message is an append-only audit entry shown on the messages page.
type Message struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	MemberID string    `json:"member_id,omitempty"`
	Level    Level     `json:"level"`
}

type Todo struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Kind  TodoKind  `json:"kind"`
	Date  time.Time `json:"date"`
	Body  string    `json:"body"`
}

// Document is the whole savings-group state persisted under one key.
type Document struct {
	SchemaVersion int           `json:"schema_version"`
	Admin         Admin         `json:"admin"`
	Settings      Settings      `json:"settings"`
	Members       []Member      `json:"members"`
	Transactions  []Transaction `json:"transactions"`
	Messages      []Message     `json:"messages"`
	Todos         []Todo        `json:"todos"`
}

// NewDocument returns the first-run document.
func NewDocument() Document {
	return Document{
		SchemaVersion: VaultSchemaVersion,
		Admin:         Admin{Name: "Admin"},
		Settings: Settings{
			Target:     decimal.NewFromInt(50000),
			EstDays:    90,
			DailyMin:   decimal.NewFromInt(100),
			Currency:   "KES",
			Methods:    append([]string(nil), PaymentMethods...),
			Appearance: "system",
		},
		Members:      []Member{},
		Transactions: []Transaction{},
		Messages:     []Message{},
		Todos:        []Todo{},
	}
}

// Clone returns a copy that shares no slices with d.
func (d Document) Clone() Document {
	c := d
	c.Settings.Methods = append([]string{}, d.Settings.Methods...)
	c.Members = append([]Member{}, d.Members...)
	c.Transactions = append([]Transaction{}, d.Transactions...)
	c.Messages = append([]Message{}, d.Messages...)
	c.Todos = append([]Todo{}, d.Todos...)
	return c
}

// FindMember returns the index of the member with id, or -1.
func (d *Document) FindMember(id string) int {
	for i := range d.Members {
		if d.Members[i].ID == id {
			return i
		}
	}
	return -1
}
