package errs

import (
	"errors"
	"fmt"

	"github.com/govalues/decimal"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	// ErrInvalid marks malformed input (bad ids, unparsable or overflowing amounts).
	ErrInvalid = errors.New("invalid")
	// ErrInvalidState is returned when an entry is not in the state an operation requires.
	ErrInvalidState = errors.New("invalid_state")
	// ErrUnbalanced is returned when an entry fails validation at post time.
	ErrUnbalanced = errors.New("unbalanced")
	// ErrImbalance signals that trial balance totals disagree, i.e. ledger corruption.
	ErrImbalance = errors.New("ledger_imbalance")
	// ErrInvalidOperation indicates an illegal mutation such as retyping an account with history.
	ErrInvalidOperation = errors.New("invalid_operation")
)

// ImbalanceError reports trial balance totals that do not net to zero.
type ImbalanceError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Difference  decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("trial balance out of balance: debit %s credit %s difference %s", e.TotalDebit, e.TotalCredit, e.Difference)
}

// Is lets errors.Is(err, ErrImbalance) match.
func (e *ImbalanceError) Is(target error) bool { return target == ErrImbalance }
