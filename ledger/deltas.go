package ledger

import (
	"fmt"
	"strings"

	"github.com/ledgerfold/ledgerfold/ast"
	"github.com/shopspring/decimal"
)

// Delta Architecture
//
// This file defines lightweight "delta" structs that represent the mutations
// to be applied to the ledger state. Validators return these deltas instead of
// directly mutating state, keeping validation pure and making mutations explicit.
//
// Benefits:
//   - Pure validation: validators compute changes without side effects
//   - Inspectable: deltas are plain Go structs that can be logged/debugged
//   - Testable: can validate without applying, test deltas independently
//   - Consistent: same pattern across all directive types

// TransactionDelta represents the mutations to be applied from a transaction.
// It contains the amounts/costs inferred for postings that omitted them; the
// postings themselves carry their own (un-priced) amounts into the account
// snapshot once applied.
type TransactionDelta struct {
	Transaction     *ast.Transaction              // Original transaction
	InferredAmounts map[*ast.Posting]*ast.Amount  // Amounts inferred for postings without explicit amounts
	InferredCosts   map[*ast.Posting]*ast.Amount  // Costs inferred from balance residuals
}

// String returns a human-readable representation of the transaction delta
func (td *TransactionDelta) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Transaction on %s:\n", td.Transaction.Date.Format("2006-01-02")))

	if len(td.InferredAmounts) > 0 {
		sb.WriteString("  Inferred amounts:\n")
		for posting, amount := range td.InferredAmounts {
			sb.WriteString(fmt.Sprintf("    %s: %s %s\n", posting.Account, amount.Value, amount.Currency))
		}
	}

	if len(td.InferredCosts) > 0 {
		sb.WriteString("  Inferred costs:\n")
		for posting, cost := range td.InferredCosts {
			sb.WriteString(fmt.Sprintf("    %s: {%s %s}\n", posting.Account, cost.Value, cost.Currency))
		}
	}

	return sb.String()
}

// BalanceDelta represents the mutations to be applied from a balance assertion,
// including any padding transaction synthesized to satisfy it.
type BalanceDelta struct {
	AccountName        string
	Currency           string
	ExpectedAmount     decimal.Decimal
	ActualAmount       decimal.Decimal
	PaddingAdjustments map[string]decimal.Decimal

	PadAccountName       string
	SyntheticTransaction *ast.Transaction
	ShouldRemovePad      bool
}

// String returns a human-readable representation of the balance delta
func (bd *BalanceDelta) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Balance for %s:\n", bd.AccountName))
	sb.WriteString(fmt.Sprintf("  Expected: %s %s\n", bd.ExpectedAmount.String(), bd.Currency))
	sb.WriteString(fmt.Sprintf("  Actual: %s %s\n", bd.ActualAmount.String(), bd.Currency))

	if bd.PadAccountName != "" {
		sb.WriteString(fmt.Sprintf("  Padding from: %s\n", bd.PadAccountName))
	}

	return sb.String()
}

// OpenDelta represents opening an account. The account is not created during
// validation; applyOpen builds it from these fields once validation passes.
type OpenDelta struct {
	AccountName          string
	AccountType          ast.AccountType
	OpenDate             *ast.Date
	ConstraintCurrencies []string
	BookingMethod        string
	Metadata             []*ast.Metadata
}

// String returns a human-readable representation of the open delta
func (od *OpenDelta) String() string {
	return fmt.Sprintf("Open account %s on %s", od.AccountName, od.OpenDate.Format("2006-01-02"))
}

// CloseDelta represents closing an account.
type CloseDelta struct {
	AccountName string
	CloseDate   *ast.Date
}

// String returns a human-readable representation of the close delta
func (cd *CloseDelta) String() string {
	return fmt.Sprintf("Close account %s on %s", cd.AccountName, cd.CloseDate.Format("2006-01-02"))
}

// CommodityDelta represents creating or upgrading a commodity node.
type CommodityDelta struct {
	CommodityID string
	Date        *ast.Date
	Metadata    []*ast.Metadata
}

// String returns a human-readable representation of the commodity delta
func (cd *CommodityDelta) String() string {
	return fmt.Sprintf("Commodity %s declared on %s", cd.CommodityID, cd.Date.Format("2006-01-02"))
}
