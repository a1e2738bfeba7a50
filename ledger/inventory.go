package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Inventory tracks a running per-commodity total for an account. There is no
// lot or cost-basis tracking: every posting's units are added directly to the
// commodity's running total, matching the processor's "add units to the
// snapshot" contract.
type Inventory struct {
	totals map[string]decimal.Decimal
}

// NewInventory creates a new empty inventory.
func NewInventory() *Inventory {
	return &Inventory{totals: make(map[string]decimal.Decimal)}
}

// Add adds an amount to a commodity's running total.
func (inv *Inventory) Add(commodity string, amount decimal.Decimal) {
	inv.totals[commodity] = inv.totals[commodity].Add(amount)
}

// Get returns the running total for a commodity, or zero if untouched.
func (inv *Inventory) Get(commodity string) decimal.Decimal {
	return inv.totals[commodity]
}

// IsEmpty returns true if the inventory holds no nonzero commodity totals.
func (inv *Inventory) IsEmpty() bool {
	for _, amount := range inv.totals {
		if !amount.IsZero() {
			return false
		}
	}
	return true
}

// Currencies returns all commodities that have ever been touched, sorted for
// deterministic iteration.
func (inv *Inventory) Currencies() []string {
	currencies := make([]string, 0, len(inv.totals))
	for currency := range inv.totals {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies
}

// String returns a human-readable representation of the inventory.
func (inv *Inventory) String() string {
	currencies := inv.Currencies()
	if len(currencies) == 0 {
		return "{}"
	}

	var buf strings.Builder
	buf.WriteByte('{')
	for i, currency := range currencies {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(inv.totals[currency].String())
		buf.WriteByte(' ')
		buf.WriteString(currency)
	}
	buf.WriteByte('}')
	return buf.String()
}
