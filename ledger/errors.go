package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerfold/ledgerfold/ast"
	"github.com/shopspring/decimal"
)

// ErrorKind classifies the structural validation failures the ledger reports.
// Every directive-level failure the processor can detect maps to exactly one
// of these kinds, so callers can branch on Kind instead of parsing messages.
type ErrorKind int

const (
	KindAccountDoesNotExist ErrorKind = iota
	KindAccountClosed
	KindAccountReopened
	KindCommodityDoesNotDefine
	KindTransactionDoesNotBalance
	KindTransactionHasMultipleImplicitPosting
	KindAccountBalanceCheckError
	KindNoPriceForConversion
	KindUnusedPad
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccountDoesNotExist:
		return "AccountDoesNotExist"
	case KindAccountClosed:
		return "AccountClosed"
	case KindAccountReopened:
		return "AccountReopened"
	case KindCommodityDoesNotDefine:
		return "CommodityDoesNotDefine"
	case KindTransactionDoesNotBalance:
		return "TransactionDoesNotBalance"
	case KindTransactionHasMultipleImplicitPosting:
		return "TransactionHasMultipleImplicitPosting"
	case KindAccountBalanceCheckError:
		return "AccountBalanceCheckError"
	case KindNoPriceForConversion:
		return "NoPriceForConversion"
	case KindUnusedPad:
		return "UnusedPad"
	default:
		return "Unknown"
	}
}

// Error is the error type every ledger validation failure is reported as.
// It carries a Kind plus whatever fields are relevant to that kind, so
// formatting and programmatic inspection both work off the same value.
type Error struct {
	Kind    ErrorKind
	Date    *ast.Date
	Account ast.Account
	Message string

	Residuals map[string]string // TransactionDoesNotBalance

	Expected string // AccountBalanceCheckError
	Actual   string
	Distance string
	Currency string
}

func (e *Error) Error() string {
	location := "unknown date"
	if e.Date != nil {
		location = e.Date.Format("2006-01-02")
	}

	switch e.Kind {
	case KindTransactionDoesNotBalance:
		return fmt.Sprintf("%s: transaction does not balance %s", location, formatResiduals(e.Residuals))
	case KindAccountBalanceCheckError:
		return fmt.Sprintf("%s: balance failed for %s: expected %s %s, got %s %s (off by %s %s)",
			location, e.Account, e.Expected, e.Currency, e.Actual, e.Currency, e.Distance, e.Currency)
	default:
		return fmt.Sprintf("%s: %s", location, e.Message)
	}
}

func formatResiduals(residuals map[string]string) string {
	if len(residuals) == 0 {
		return ""
	}
	currencies := make([]string, 0, len(residuals))
	for c := range residuals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	parts := make([]string, 0, len(currencies))
	for _, c := range currencies {
		parts = append(parts, fmt.Sprintf("%s %s", residuals[c], c))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// --- Account lifecycle ---

// NewAccountDoesNotExistError reports a reference to an account with no
// matching Open directive on or before date.
func NewAccountDoesNotExistError(date *ast.Date, account ast.Account) *Error {
	return &Error{
		Kind:    KindAccountDoesNotExist,
		Date:    date,
		Account: account,
		Message: fmt.Sprintf("account %s has not been opened", account),
	}
}

// NewAccountClosedError reports a reference to an account after its close date.
func NewAccountClosedError(date *ast.Date, account ast.Account, closeDate *ast.Date) *Error {
	msg := fmt.Sprintf("account %s is closed", account)
	if closeDate != nil {
		msg = fmt.Sprintf("account %s was closed on %s", account, closeDate.Format("2006-01-02"))
	}
	return &Error{Kind: KindAccountClosed, Date: date, Account: account, Message: msg}
}

func NewAccountNotOpenError(txn *ast.Transaction, account ast.Account) *Error {
	return NewAccountDoesNotExistError(txn.Date, account)
}

func NewAccountNotOpenErrorFromBalance(balance *ast.Balance) *Error {
	return NewAccountDoesNotExistError(balance.Date, balance.Account)
}

func NewAccountNotOpenErrorFromPad(pad *ast.Pad, account ast.Account) *Error {
	return NewAccountDoesNotExistError(pad.Date, account)
}

func NewAccountNotOpenErrorFromNote(note *ast.Note) *Error {
	return NewAccountDoesNotExistError(note.Date, note.Account)
}

func NewAccountNotOpenErrorFromDocument(doc *ast.Document) *Error {
	return NewAccountDoesNotExistError(doc.Date, doc.Account)
}

// NewAccountAlreadyOpenError reports a duplicate Open for an account that
// already exists. Reopening a closed account is not allowed either.
func NewAccountAlreadyOpenError(open *ast.Open, openedDate *ast.Date) *Error {
	msg := fmt.Sprintf("account %s was already opened on %s", open.Account, openedDate.Format("2006-01-02"))
	return &Error{Kind: KindAccountReopened, Date: open.Date, Account: open.Account, Message: msg}
}

// NewAccountNotClosedError reports a Close directive for an account that was
// never opened.
func NewAccountNotClosedError(close *ast.Close) *Error {
	return NewAccountDoesNotExistError(close.Date, close.Account)
}

// NewAccountAlreadyClosedError reports a duplicate Close for an account.
func NewAccountAlreadyClosedError(close *ast.Close, closedDate *ast.Date) *Error {
	msg := fmt.Sprintf("account %s was already closed on %s", close.Account, closedDate.Format("2006-01-02"))
	return &Error{Kind: KindAccountClosed, Date: close.Date, Account: close.Account, Message: msg}
}

// --- Commodities ---

// NewCurrencyConstraintError reports a posting whose currency falls outside
// the commodity whitelist declared on the account's Open directive.
func NewCurrencyConstraintError(txn *ast.Transaction, account ast.Account, currency string, allowed []string) *Error {
	msg := fmt.Sprintf("currency %s is not allowed for account %s (allowed: %s)",
		currency, account, strings.Join(allowed, ", "))
	return &Error{Kind: KindCommodityDoesNotDefine, Date: txn.Date, Account: account, Message: msg}
}

// NewNoPriceForConversionError reports a valuation request for which no price
// table entry exists on or before the requested date.
func NewNoPriceForConversionError(date *ast.Date, from, to string) *Error {
	return &Error{
		Kind:    KindNoPriceForConversion,
		Date:    date,
		Message: fmt.Sprintf("no price available to convert %s to %s", from, to),
	}
}

// --- Transaction balancing ---

// NewTransactionNotBalancedError reports a transaction whose postings leave a
// nonzero residual, per currency, after amount/cost inference.
func NewTransactionNotBalancedError(txn *ast.Transaction, residuals map[string]string) *Error {
	return &Error{
		Kind:      KindTransactionDoesNotBalance,
		Date:      txn.Date,
		Residuals: residuals,
		Message:   "transaction does not balance",
	}
}

// NewMultipleImplicitPostingError reports a transaction with two or more
// postings lacking an explicit amount, which makes inference ambiguous.
func NewMultipleImplicitPostingError(txn *ast.Transaction) *Error {
	return &Error{
		Kind:    KindTransactionHasMultipleImplicitPosting,
		Date:    txn.Date,
		Message: "transaction has more than one posting without an explicit amount",
	}
}

// NewBalanceMismatchError reports a balance assertion that fails after any
// applicable pad is taken into account.
func NewBalanceMismatchError(balance *ast.Balance, expected, actual, currency string) *Error {
	distance := "?"
	if e, err1 := decimal.NewFromString(expected); err1 == nil {
		if a, err2 := decimal.NewFromString(actual); err2 == nil {
			distance = e.Sub(a).Abs().String()
		}
	}
	return &Error{
		Kind:     KindAccountBalanceCheckError,
		Date:     balance.Date,
		Account:  balance.Account,
		Expected: expected,
		Actual:   actual,
		Distance: distance,
		Currency: currency,
	}
}

// NewUnusedPadWarning reports a Pad directive that no later Balance assertion
// ever consumed. It is advisory, not one of the hard validation kinds.
func NewUnusedPadWarning(pad *ast.Pad) *Error {
	return &Error{
		Kind:    KindUnusedPad,
		Date:    pad.Date,
		Account: pad.Account,
		Message: fmt.Sprintf("pad for %s was never used by a following balance assertion", pad.Account),
	}
}

// --- Defensive parse errors ---
//
// These guard shapes the parser should already reject; they are plain errors
// rather than ledger.Error values because they fall outside the directive
// validation taxonomy above.

func NewInvalidAmountError(txn *ast.Transaction, account ast.Account, value string, err error) error {
	return fmt.Errorf("%s: invalid amount %q for account %s: %w",
		txn.Date.Format("2006-01-02"), value, account, err)
}

func NewInvalidAmountErrorFromBalance(balance *ast.Balance, err error) error {
	return fmt.Errorf("%s: invalid amount %q for account %s: %w",
		balance.Date.Format("2006-01-02"), balance.Amount.Value, balance.Account, err)
}

func NewInvalidCostError(txn *ast.Transaction, account ast.Account, index int, costSpec string, err error) error {
	return fmt.Errorf("%s: invalid cost specification (posting #%d: %s): %s: %w",
		txn.Date.Format("2006-01-02"), index+1, account, costSpec, err)
}

func NewInvalidPriceError(txn *ast.Transaction, account ast.Account, index int, priceSpec string, err error) error {
	return fmt.Errorf("%s: invalid price specification (posting #%d: %s): %s: %w",
		txn.Date.Format("2006-01-02"), index+1, account, priceSpec, err)
}

func NewInvalidMetadataError(txn *ast.Transaction, account ast.Account, key string, value *ast.MetadataValue, reason string) error {
	if account == "" {
		return fmt.Errorf("%s: invalid metadata: key=%q: %s", txn.Date.Format("2006-01-02"), key, reason)
	}
	return fmt.Errorf("%s: invalid metadata (account %s): key=%q: %s", txn.Date.Format("2006-01-02"), account, key, reason)
}
