// Package ledger derives balances, daily totals and invoice status from the
// raw transaction list. Nothing here is cached; callers recompute on every read.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/trustvault/internal/model"
)

type Status string

const (
	StatusPaid    Status = "Paid"
	StatusOverdue Status = "Overdue"
	StatusPending Status = "Pending"
	// StatusDraft is only reachable with a negative deposit total.
	StatusDraft Status = "Draft"
)

// signed returns the transaction amount as it affects a balance.
func signed(t model.Transaction) decimal.Decimal {
	if t.Kind == model.TxWithdraw {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BalanceOf is the member's deposits minus withdrawals.
func BalanceOf(memberID string, txs []model.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.MemberID == memberID {
			sum = sum.Add(signed(t))
		}
	}
	return sum
}

// DepositsOn sums the member's deposits on the calendar day of day, evaluated
// in day's location.
func DepositsOn(memberID string, txs []model.Transaction, day time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.MemberID == memberID && t.Kind == model.TxDeposit && SameDay(t.Date, day) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

// ClassifyDay buckets a day's deposit total against the daily minimum.
// Meeting the minimum exactly counts as paid only when the minimum is positive.
func ClassifyDay(sum, dailyMin decimal.Decimal) Status {
	switch {
	case sum.IsNegative():
		return StatusDraft
	case sum.GreaterThan(dailyMin):
		return StatusPaid
	case sum.Equal(dailyMin) && dailyMin.IsPositive():
		return StatusPaid
	case sum.IsZero():
		return StatusPending
	case sum.LessThan(dailyMin):
		return StatusOverdue
	}
	return StatusDraft
}

func DailyStatus(memberID string, txs []model.Transaction, dailyMin decimal.Decimal, today time.Time) Status {
	return ClassifyDay(DepositsOn(memberID, txs, today), dailyMin)
}

// BelowMinimum reports whether a day's deposit total falls short of the minimum.
func BelowMinimum(sum, dailyMin decimal.Decimal) bool {
	return sum.LessThan(dailyMin)
}

// TotalSaved is the net of every transaction in the group.
func TotalSaved(txs []model.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(signed(t))
	}
	return sum
}

// SavedOn sums all deposits made on the calendar day of day.
func SavedOn(txs []model.Transaction, day time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		if t.Kind == model.TxDeposit && SameDay(t.Date, day) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

type MemberTotal struct {
	MemberID string          `json:"member_id"`
	Name     string          `json:"name"`
	Total    decimal.Decimal `json:"total"`
	Percent  int64           `json:"percent"`
}

// MemberTotals returns each member's balance clamped at zero and its rounded
// share of the group total.
func MemberTotals(members []model.Member, txs []model.Transaction) []MemberTotal {
	totals := make([]MemberTotal, 0, len(members))
	grand := decimal.Zero
	for _, m := range members {
		total := decimal.Max(BalanceOf(m.ID, txs), decimal.Zero)
		name := m.Name
		if name == "" {
			name = "—"
		}
		totals = append(totals, MemberTotal{MemberID: m.ID, Name: name, Total: total})
		grand = grand.Add(total)
	}
	if grand.IsZero() {
		grand = decimal.NewFromInt(1)
	}
	hundred := decimal.NewFromInt(100)
	for i := range totals {
		totals[i].Percent = totals[i].Total.Mul(hundred).Div(grand).Round(0).IntPart()
	}
	return totals
}

type DayPoint struct {
	Day string          `json:"day"`
	Net decimal.Decimal `json:"net"`
}

// DailySeries returns the net movement for each of the n days ending today,
// oldest first. n <= 0 yields an empty series.
func DailySeries(txs []model.Transaction, today time.Time, n int) []DayPoint {
	if n <= 0 {
		return []DayPoint{}
	}
	points := make([]DayPoint, 0, n)
	start := StartOfDay(today).AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		day := start.AddDate(0, 0, i)
		net := decimal.Zero
		for _, t := range txs {
			if SameDay(t.Date, day) {
				net = net.Add(signed(t))
			}
		}
		points = append(points, DayPoint{Day: DayKey(day), Net: net})
	}
	return points
}

func HasDanger(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.Level == model.LevelDanger {
			return true
		}
	}
	return false
}
