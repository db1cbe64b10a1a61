// Package view computes the read models served by the API. Everything is
// derived from a document snapshot on every call; nothing is cached.
package view

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/ledger"
	"github.com/dukerupert/trustvault/internal/model"
)

const (
	recentTransactions = 8
	seriesDays         = 14
)

// Money carries an amount next to its display form.
type Money struct {
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

func money(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Display: ledger.FormatMoney(amount, currency)}
}

type TransactionRow struct {
	model.Transaction
	MemberName string `json:"member_name"`
	Display    string `json:"display"`
}

type Share struct {
	ledger.MemberTotal
	Display string `json:"display"`
}

type Dashboard struct {
	MemberCount  int               `json:"member_count"`
	TotalSaved   Money             `json:"total_saved"`
	NewestMember *model.Member     `json:"newest_member"`
	Target       Money             `json:"target"`
	EstDays      int               `json:"est_days"`
	Recent       []TransactionRow  `json:"recent"`
	Shares       []Share           `json:"shares"`
	Series       []ledger.DayPoint `json:"series"`
	HasDanger    bool              `json:"has_danger"`
}

type MemberRow struct {
	model.Member
	Balance Money `json:"balance"`
}

type Invoice struct {
	MemberID   string        `json:"member_id"`
	MemberName string        `json:"member_name"`
	DailyMin   Money         `json:"daily_min"`
	PaidToday  Money         `json:"paid_today"`
	Status     ledger.Status `json:"status"`
}

type Stat struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Total    Money  `json:"total"`
	Percent  int64  `json:"percent"`
}

type Finances struct {
	Target     Money  `json:"target"`
	Achieved   Money  `json:"achieved"`
	Remaining  Money  `json:"remaining"`
	SavedToday Money  `json:"saved_today"`
	EstDays    int    `json:"est_days"`
	Progress   int64  `json:"progress"`
	Currency   string `json:"currency"`
}

type Messages struct {
	Items     []model.Message `json:"items"`
	HasDanger bool            `json:"has_danger"`
}

func memberNames(doc model.Document) map[string]string {
	names := make(map[string]string, len(doc.Members))
	for _, m := range doc.Members {
		names[m.ID] = m.Name
	}
	return names
}

// newestTransactions returns the transactions sorted newest first. Equal
// dates keep the later-appended entry first.
func newestTransactions(doc model.Document) []TransactionRow {
	names := memberNames(doc)
	rows := make([]TransactionRow, len(doc.Transactions))
	for i, t := range doc.Transactions {
		rows[len(rows)-1-i] = TransactionRow{
			Transaction: t,
			MemberName:  names[t.MemberID],
			Display:     ledger.FormatMoney(t.Amount, doc.Settings.Currency),
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })
	return rows
}

func BuildDashboard(doc model.Document, now time.Time) Dashboard {
	cur := doc.Settings.Currency
	d := Dashboard{
		MemberCount: len(doc.Members),
		TotalSaved:  money(ledger.TotalSaved(doc.Transactions), cur),
		Target:      money(doc.Settings.Target, cur),
		EstDays:     doc.Settings.EstDays,
		Series:      ledger.DailySeries(doc.Transactions, now, seriesDays),
		HasDanger:   ledger.HasDanger(doc.Messages),
	}
	for i := range doc.Members {
		m := doc.Members[i]
		if d.NewestMember == nil || !m.Joined.Before(d.NewestMember.Joined) {
			d.NewestMember = &m
		}
	}

	recent := newestTransactions(doc)
	if len(recent) > recentTransactions {
		recent = recent[:recentTransactions]
	}
	d.Recent = recent

	for _, t := range ledger.MemberTotals(doc.Members, doc.Transactions) {
		d.Shares = append(d.Shares, Share{MemberTotal: t, Display: ledger.FormatMoney(t.Total, cur)})
	}
	if d.Shares == nil {
		d.Shares = []Share{}
	}
	return d
}

func BuildMembers(doc model.Document) []MemberRow {
	rows := make([]MemberRow, 0, len(doc.Members))
	for _, m := range doc.Members {
		rows = append(rows, MemberRow{
			Member:  m,
			Balance: money(ledger.BalanceOf(m.ID, doc.Transactions), doc.Settings.Currency),
		})
	}
	return rows
}

// BuildInvoices reports each member's deposit status for the day of now.
func BuildInvoices(doc model.Document, now time.Time) []Invoice {
	cur := doc.Settings.Currency
	rows := make([]Invoice, 0, len(doc.Members))
	for _, m := range doc.Members {
		paid := ledger.DepositsOn(m.ID, doc.Transactions, now)
		rows = append(rows, Invoice{
			MemberID:   m.ID,
			MemberName: m.Name,
			DailyMin:   money(doc.Settings.DailyMin, cur),
			PaidToday:  money(paid, cur),
			Status:     ledger.ClassifyDay(paid, doc.Settings.DailyMin),
		})
	}
	return rows
}

func BuildStats(doc model.Document) []Stat {
	totals := ledger.MemberTotals(doc.Members, doc.Transactions)
	stats := make([]Stat, 0, len(totals))
	for _, t := range totals {
		stats = append(stats, Stat{
			MemberID: t.MemberID,
			Name:     t.Name,
			Total:    money(t.Total, doc.Settings.Currency),
			Percent:  t.Percent,
		})
	}
	return stats
}

func BuildFinances(doc model.Document, now time.Time) Finances {
	cur := doc.Settings.Currency
	achieved := ledger.TotalSaved(doc.Transactions)
	remaining := decimal.Max(doc.Settings.Target.Sub(achieved), decimal.Zero)

	var progress int64
	if doc.Settings.Target.IsPositive() {
		progress = achieved.Mul(decimal.NewFromInt(100)).Div(doc.Settings.Target).Round(0).IntPart()
		progress = min(max(progress, 0), 100)
	}
	return Finances{
		Target:     money(doc.Settings.Target, cur),
		Achieved:   money(achieved, cur),
		Remaining:  money(remaining, cur),
		SavedToday: money(ledger.SavedOn(doc.Transactions, now), cur),
		EstDays:    doc.Settings.EstDays,
		Progress:   progress,
		Currency:   cur,
	}
}

func BuildMessages(doc model.Document) Messages {
	items := make([]model.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		items[len(items)-1-i] = m
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.After(items[j].Date) })
	return Messages{Items: items, HasDanger: ledger.HasDanger(doc.Messages)}
}

func BuildTransactions(doc model.Document) []TransactionRow {
	return newestTransactions(doc)
}

func BuildTodos(doc model.Document) []model.Todo {
	todos := make([]model.Todo, len(doc.Todos))
	for i, t := range doc.Todos {
		todos[len(todos)-1-i] = t
	}
	sort.SliceStable(todos, func(i, j int) bool { return todos[i].Date.After(todos[j].Date) })
	return todos
}
