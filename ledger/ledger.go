// Package ledger provides accounting ledger validation and processing for Beancount files.
// It validates transactions, maintains account states, tracks a flat per-commodity inventory
// snapshot for each account, and performs balance assertions.
//
// The ledger validates that:
//   - All transactions balance to zero across all currencies
//   - Accounts are opened before use and closed accounts are not used
//   - Balance assertions match actual inventory balances
//   - Pad directives correctly balance accounts
//
// There is no lot or cost-basis tracking: each account's inventory is a single running
// total per commodity. It uses decimal arithmetic for all monetary amounts to avoid
// floating point precision issues.
//
// Example usage:
//
//	// Parse a Beancount file
//	ast, err := parser.ParseBytes(ctx, []byte(source))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create and process ledger
//	ledger := ledger.New()
//	err = ledger.Process(ctx, ast)
//	if err != nil {
//	    // Handle validation errors
//	    if verr, ok := err.(*ledger.ValidationErrors); ok {
//	        for _, e := range verr.Errors {
//	            fmt.Println(e)
//	        }
//	    }
//	}
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerfold/ledgerfold/ast"
	"github.com/ledgerfold/ledgerfold/telemetry"
	"github.com/shopspring/decimal"
)

// Ledger represents the state of the accounting ledger with account balances,
// transaction validation, and error tracking. It processes directives in date order
// and maintains the complete state of all accounts including their inventory positions.
//
// Accounts and their hierarchy live in graph; currency exchange rates live separately
// in prices, queried with forward-fill semantics (most recent price on or before a date).
//
// The ledger validates all transactions for balance, ensures accounts are opened before
// use, verifies balance assertions, and processes pad directives. All validation errors
// are collected and returned together after processing.
type Ledger struct {
	graph                 *Graph      // Account and commodity hierarchy
	prices                *PriceGraph // Temporal currency exchange rates
	config                *Config
	toleranceConfig       *ToleranceConfig
	errors                []error
	padEntries            map[string]*ast.Pad // account -> pad directive
	usedPads              map[string]bool     // account -> whether pad was used
	syntheticTransactions []*ast.Transaction  // Padding transactions to insert into AST
}

// ValidationErrors wraps multiple validation errors
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	// Show all errors plus summary
	var buf strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(err.Error())
	}
	buf.WriteString(fmt.Sprintf("\n\n%d validation error(s) found", len(e.Errors)))
	return buf.String()
}

// Unwrap returns the underlying errors for error unwrapping
func (e *ValidationErrors) Unwrap() []error {
	return e.Errors
}

// New creates a new empty ledger
func New() *Ledger {
	return &Ledger{
		graph:           NewGraph(),
		prices:          NewPriceGraph(),
		toleranceConfig: NewToleranceConfig(),
		errors:          make([]error, 0),
		padEntries:      make(map[string]*ast.Pad),
		usedPads:        make(map[string]bool),
	}
}

// GetAccountTypeFromName converts an account type name to its enum value.
// Returns (0, false) if the name doesn't match any configured account type.
func (l *Ledger) GetAccountTypeFromName(name string) (ast.AccountType, bool) {
	cfg := l.config
	if cfg == nil {
		cfg = NewConfig()
	}
	return cfg.GetAccountTypeFromName(name)
}

// Process processes an AST and builds the ledger state
func (l *Ledger) Process(ctx context.Context, tree *ast.AST) error {
	// Extract telemetry collector from context
	collector := telemetry.FromContext(ctx)

	// Enrich AST with semantic information (currencies, accounts)
	enriched := tree.Enrich()

	// Pre-populate graph with currency nodes (they're not explicitly opened)
	// Account nodes are created by Open directives with full metadata
	for currency := range enriched.Currencies {
		l.graph.AddNode(currency, "currency", nil)
	}

	// Parse configuration from AST options
	cfg, err := configFromAST(tree)
	if err != nil {
		l.errors = append(l.errors, err)
		cfg = NewConfig() // Use defaults if parsing fails
	}
	l.config = cfg
	if cfg.Tolerance != nil {
		l.toleranceConfig = cfg.Tolerance
	}
	// Attach config to context for use throughout processing
	ctx = cfg.WithContext(ctx)

	// Process directives in order (they're already sorted by date)
	processTimer := collector.StartStructured(telemetry.TimerConfig{
		Name:  "ledger.processing",
		Count: len(tree.Directives),
		Unit:  "directives",
	})

	// Count transactions and create validation summary timer
	transactionCount := 0
	for _, directive := range tree.Directives {
		if _, ok := directive.(*ast.Transaction); ok {
			transactionCount++
		}
	}

	var validationTimer telemetry.Timer
	if transactionCount > 0 {
		validationTimer = collector.StartStructured(telemetry.TimerConfig{
			Name:  "validation.transactions",
			Count: transactionCount,
			Unit:  "transactions",
		})
	}

	for _, directive := range tree.Directives {
		// Check for cancellation
		select {
		case <-ctx.Done():
			if validationTimer != nil {
				validationTimer.End()
			}
			processTimer.End()
			return ctx.Err()
		default:
		}

		l.processDirective(ctx, directive)
	}

	if validationTimer != nil {
		validationTimer.End()
	}
	processTimer.End()

	// Insert synthetic padding transactions into AST and process them
	if len(l.syntheticTransactions) > 0 {
		insertTimer := collector.StartStructured(telemetry.TimerConfig{
			Name:  "ledger.synthetic_txn_insertion",
			Count: len(l.syntheticTransactions),
			Unit:  "transactions",
		})

		// Add synthetic transactions to AST
		for _, txn := range l.syntheticTransactions {
			tree.Directives = append(tree.Directives, txn)
		}

		// Re-sort to maintain chronological order
		// Use stable sort to preserve original ordering for same-date directives
		_ = ast.SortDirectives(tree)

		// Process synthetic transactions to update inventory
		// Note: These transactions are pre-validated and always balance
		for _, txn := range l.syntheticTransactions {
			// Validate is run only to build the delta; its errors are ignored because
			// the padding calculation already balanced these transactions
			handler := GetHandler(txn.Kind())
			if handler != nil {
				_, delta := handler.Validate(ctx, l, txn)
				handler.Apply(ctx, l, txn, delta)
			}
		}

		insertTimer.End()
	}

	// Check for unused pad directives (pads that were never referenced by any balance)
	for accountName, pad := range l.padEntries {
		if !l.usedPads[accountName] {
			l.errors = append(l.errors, NewUnusedPadWarning(pad))
		}
	}

	// Return collected errors
	if len(l.errors) > 0 {
		return &ValidationErrors{Errors: l.errors}
	}

	return nil
}

// MustProcess processes an AST, panicking on validation errors.
// Intended for use in tests and examples where error handling is not needed.
//
// Example:
//
//	ledger := ledger.New()
//	ledger.MustProcess(context.Background(), ast)
func (l *Ledger) MustProcess(ctx context.Context, tree *ast.AST) {
	err := l.Process(ctx, tree)
	if err != nil {
		panic(err)
	}
}

// Errors returns all collected errors
func (l *Ledger) Errors() []error {
	return l.errors
}

// GetAccount returns an account by name
func (l *Ledger) GetAccount(name string) (*Account, bool) {
	node := l.graph.GetNode(name)
	if node == nil || node.Kind != "account" {
		return nil, false
	}
	acc, ok := node.Meta.(*Account)
	return acc, ok
}

// Accounts returns all accounts in the ledger
func (l *Ledger) Accounts() map[string]*Account {
	result := make(map[string]*Account)
	l.forEachAccount(func(acc *Account) bool {
		result[string(acc.Name)] = acc
		return true
	})
	return result
}

// GetPrice returns the exchange rate from one currency to another at a given date,
// using forward-fill semantics (most recent price on or before the date).
// Returns (rate, found) where found is false if no price exists.
//
// Same-currency conversions always return 1.0.
func (l *Ledger) GetPrice(date *ast.Date, fromCurrency, toCurrency string) (decimal.Decimal, bool) {
	return l.prices.LookupPrice(date, fromCurrency, toCurrency)
}

// ValueIn converts an inventory's per-commodity totals into a single target
// currency as of the given date, using the ledger's price graph for
// conversion. Returns a NoPriceForConversion error for the first commodity
// that has no applicable price.
func (l *Ledger) ValueIn(inv *Inventory, date *ast.Date, target string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, currency := range inv.Currencies() {
		amount := inv.Get(currency)
		if currency == target {
			total = total.Add(amount)
			continue
		}

		rate, ok := l.prices.LookupPrice(date, currency, target)
		if !ok {
			return decimal.Zero, NewNoPriceForConversionError(date, currency, target)
		}
		total = total.Add(amount.Mul(rate))
	}
	return total, nil
}

// Graph returns the underlying account/commodity graph for advanced queries.
func (l *Ledger) Graph() *Graph {
	return l.graph
}

// Prices returns the underlying price graph for advanced queries.
func (l *Ledger) Prices() *PriceGraph {
	return l.prices
}

// forEachAccount iterates over all accounts in the ledger, calling fn for each.
// The callback can return false to break early (not used currently, but enables future filtering).
func (l *Ledger) forEachAccount(fn func(*Account) bool) {
	for _, node := range l.graph.GetNodesByKind("account") {
		if account, ok := node.Meta.(*Account); ok {
			if !fn(account) {
				break
			}
		}
	}
}

// processDirective processes a single directive
func (l *Ledger) processDirective(ctx context.Context, directive ast.Directive) {
	handler := GetHandler(directive.Kind())
	if handler == nil {
		// Unknown directive kind - ignore
		return
	}

	// Validate directive
	errs, delta := handler.Validate(ctx, l, directive)
	if len(errs) > 0 {
		l.errors = append(l.errors, errs...)
		return
	}

	// Validation passed - apply mutations
	handler.Apply(ctx, l, directive, delta)
}

// applyOpen applies the open delta to the ledger (mutation only)
func (l *Ledger) applyOpen(open *ast.Open, delta *OpenDelta) {
	accountName := delta.AccountName

	account := &Account{
		Name:                 ast.Account(accountName),
		Type:                 delta.AccountType,
		OpenDate:             delta.OpenDate,
		ConstraintCurrencies: delta.ConstraintCurrencies,
		BookingMethod:        delta.BookingMethod,
		Metadata:             delta.Metadata,
		Inventory:            NewInventory(),
	}
	l.graph.AddNode(accountName, "account", account)

	// Create implicit parent nodes and hierarchy edges
	l.ensureAccountHierarchy(accountName)
}

// ensureAccountHierarchy creates parent nodes and hierarchy edges for an account.
// For example, "Assets:US:Checking" creates edges:
//
//	Assets -> Assets:US
//	Assets:US -> Assets:US:Checking
func (l *Ledger) ensureAccountHierarchy(accountName string) {
	parts := strings.Split(accountName, ":")
	for i := 1; i < len(parts); i++ {
		parentPath := strings.Join(parts[:i], ":")
		childPath := strings.Join(parts[:i+1], ":")

		// Ensure parent node exists (implicit if not explicitly opened)
		if l.graph.GetNode(parentPath) == nil {
			l.graph.AddNode(parentPath, "account", nil)
		}

		// Ensure hierarchy edge exists
		existsEdge := false
		for _, edge := range l.graph.GetOutgoingEdges(parentPath) {
			if edge.Kind == "hierarchy" && edge.To == childPath {
				existsEdge = true
				break
			}
		}

		if !existsEdge {
			l.graph.AddEdge(&Edge{
				From: parentPath,
				To:   childPath,
				Kind: "hierarchy",
			})
		}
	}
}

// applyClose applies the close delta to the ledger (mutation only)
func (l *Ledger) applyClose(delta *CloseDelta) {
	node := l.graph.GetNode(delta.AccountName)
	if node == nil {
		return
	}
	if account, ok := node.Meta.(*Account); ok {
		account.CloseDate = delta.CloseDate
	}
}

// applyTransaction mutates ledger state (inventory updates) and records posting history.
// Only called after validation passes. Panics on bugs (invariant violations).
func (l *Ledger) applyTransaction(txn *ast.Transaction, delta *TransactionDelta) {
	for _, posting := range txn.Postings {
		if posting.Amount == nil {
			continue
		}

		accountName := string(posting.Account)
		node := l.graph.GetNode(accountName)
		if node == nil {
			panic(fmt.Sprintf("BUG: account %s not found after validation", accountName))
		}

		account, ok := node.Meta.(*Account)
		if !ok {
			panic(fmt.Sprintf("BUG: account %s metadata is not *Account", accountName))
		}

		amount, err := ParseAmount(posting.Amount)
		if err != nil {
			// This should never happen after validation - panic to catch bugs
			panic(fmt.Sprintf("BUG: amount parsing failed after validation: %v", err))
		}
		currency := posting.Amount.Currency

		// The posting's own units enter the snapshot, never the priced or
		// costed value; cost/price only affect transaction balancing.
		account.Inventory.Add(currency, amount)

		// Record posting in account history (after mutation for correct ordering)
		account.Postings = append(account.Postings, &AccountPosting{
			Transaction: txn,
			Posting:     posting,
		})
	}
}

// applyBalance applies the balance delta to the ledger (mutation only)
func (l *Ledger) applyBalance(delta *BalanceDelta) {
	// Note: Padding adjustments are applied by processing synthetic transactions
	// (not here, to avoid double-application)
	// Pad removal happens at end of processing to support multiple currencies
}

// applyPrice records a price conversion in the ledger's price graph (mutation only)
func (l *Ledger) applyPrice(price *ast.Price) {
	amount, err := ParseAmount(price.Amount)
	if err != nil {
		panic(fmt.Sprintf("BUG: amount parsing failed after validation: %v", err))
	}

	from := string(price.Commodity)
	to := price.Amount.Currency

	if err := l.prices.AddPrice(price.Date, from, to, amount); err != nil {
		panic(fmt.Sprintf("BUG: price graph rejected price after validation: %v", err))
	}
}

// applyCommodity creates an explicit commodity node in the graph with metadata.
// Commodities are treated as explicit graph nodes rather than implicit currency references.
// This allows tracking commodity-specific metadata, properties, and constraints.
//
// If a currency node was previously created implicitly (e.g., via enrichment or a transaction),
// it is upgraded to an explicit commodity node with kind "commodity" and its metadata.
func (l *Ledger) applyCommodity(commodity *ast.Commodity, delta *CommodityDelta) {
	// Create or upgrade the commodity node with metadata
	// This upgrades implicit "currency" nodes to explicit "commodity" nodes
	node := l.graph.AddNode(delta.CommodityID, "commodity", &CommodityNode{
		ID:       delta.CommodityID,
		Date:     delta.Date,
		Metadata: delta.Metadata,
	})

	// Ensure the node kind is set to "commodity" (not "currency")
	// This handles the case where the node was previously created as "currency"
	node.Kind = "commodity"
}

// CommodityNode represents a commodity or currency as an explicit graph node.
// Stores metadata from the Commodity directive for future queries and constraints.
type CommodityNode struct {
	ID       string          // Currency/commodity code (e.g., "USD", "HOOL")
	Date     *ast.Date       // Effective date of the commodity declaration
	Metadata []*ast.Metadata // Commodity-specific metadata (name, precision, etc.)
}
