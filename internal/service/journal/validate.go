package journal

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// Epsilon is the largest debit/credit difference still considered balanced.
var Epsilon = decimal.MustNew(1, 2)

// ErrorKind classifies a single validation failure.
type ErrorKind string

const (
	KindTooFewLines     ErrorKind = "too_few_lines"
	KindUnknownAccount  ErrorKind = "unknown_account"
	KindInactiveAccount ErrorKind = "inactive_account"
	KindBothSides       ErrorKind = "both_sides"
	KindNoAmount        ErrorKind = "no_amount"
	KindNegativeAmount  ErrorKind = "negative_amount"
	KindUnbalanced      ErrorKind = "unbalanced"
)

// LineError describes one problem. LineIndex is nil for entry-level problems.
type LineError struct {
	LineIndex *int
	Kind      ErrorKind
	Message   string
}

// Result is the outcome of validating an entry. Balanced is true only when Errors is empty.
type Result struct {
	Balanced    bool
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	// Difference is |TotalDebit - TotalCredit|.
	Difference decimal.Decimal
	Errors     []LineError
}

// Has reports whether the result contains an error of the given kind.
func (r Result) Has(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Accounts is the account lookup used by Validate.
type Accounts map[uuid.UUID]ledger.Account

// UnbalancedError is returned by posting when validation fails; it matches errs.ErrUnbalanced.
type UnbalancedError struct {
	Result Result
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("journal entry rejected: %d validation error(s), difference %s", len(e.Result.Errors), e.Result.Difference)
}

// Is lets errors.Is(err, errs.ErrUnbalanced) match.
func (e *UnbalancedError) Is(target error) bool { return target == errs.ErrUnbalanced }

// Validate checks an entry against the posting rules and reports every failure at once:
// at least two lines, active known accounts, exactly one nonzero side per line,
// no negative amounts, and debits equal to credits within Epsilon.
// It only returns an error when the amounts cannot be summed (decimal overflow).
func Validate(e ledger.JournalEntry, accounts Accounts) (Result, error) {
	res := Result{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero, Difference: decimal.Zero}

	if len(e.Lines) < 2 {
		res.Errors = append(res.Errors, LineError{Kind: KindTooFewLines, Message: "at least 2 lines"})
	}

	for i, ln := range e.Lines {
		acc, ok := accounts[ln.AccountID]
		switch {
		case ln.AccountID == uuid.Nil || !ok:
			res.Errors = append(res.Errors, lineErr(i, KindUnknownAccount, "account not found"))
		case !acc.Active:
			res.Errors = append(res.Errors, lineErr(i, KindInactiveAccount, "account "+acc.Code+" is inactive"))
		}
	}

	for i, ln := range e.Lines {
		switch {
		case !ln.Debit.IsZero() && !ln.Credit.IsZero():
			res.Errors = append(res.Errors, lineErr(i, KindBothSides, "line has both debit and credit"))
		case ln.Debit.IsZero() && ln.Credit.IsZero():
			res.Errors = append(res.Errors, lineErr(i, KindNoAmount, "line has neither debit nor credit"))
		}
	}

	for i, ln := range e.Lines {
		if ln.Debit.IsNeg() || ln.Credit.IsNeg() {
			res.Errors = append(res.Errors, lineErr(i, KindNegativeAmount, "amounts must be non-negative"))
		}
	}

	var err error
	for i, ln := range e.Lines {
		if res.TotalDebit, err = res.TotalDebit.Add(ln.Debit); err != nil {
			return Result{}, fmt.Errorf("%w: line[%d] debit: %v", errs.ErrInvalid, i, err)
		}
		if res.TotalCredit, err = res.TotalCredit.Add(ln.Credit); err != nil {
			return Result{}, fmt.Errorf("%w: line[%d] credit: %v", errs.ErrInvalid, i, err)
		}
	}
	diff, err := res.TotalDebit.Sub(res.TotalCredit)
	if err != nil {
		return Result{}, fmt.Errorf("%w: difference: %v", errs.ErrInvalid, err)
	}
	res.Difference = diff.Abs()
	if res.Difference.Cmp(Epsilon) > 0 {
		res.Errors = append(res.Errors, LineError{
			Kind:    KindUnbalanced,
			Message: fmt.Sprintf("sum(debits) %s must equal sum(credits) %s", res.TotalDebit, res.TotalCredit),
		})
	}

	res.Balanced = len(res.Errors) == 0
	return res, nil
}

func lineErr(i int, kind ErrorKind, msg string) LineError {
	idx := i
	return LineError{LineIndex: &idx, Kind: kind, Message: fmt.Sprintf("line[%d]: %s", i, msg)}
}
