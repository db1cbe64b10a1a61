package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMoney renders an amount as "KES 50,000": ISO code, whole units, grouped.
func FormatMoney(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	whole := amount.Round(0)
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Sprintf("%s %s", code, whole.String())
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s %d", code, whole.IntPart())
}

// ValidCurrency reports whether code is a recognised ISO 4217 code.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	return err == nil
}
