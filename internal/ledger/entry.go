package ledger

import "time"

// Direction marks an entry as a debit or a credit.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == Debit || d == Credit
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Entry moves a positive amount of minor units in one direction on one
// account. Entries are immutable after insert; only their status changes,
// and it always mirrors the parent transaction's status.
type Entry struct {
	ID               string
	OrganizationID   string
	TransactionID    string
	AccountID        string
	Direction        Direction
	Amount           int64
	Currency         string
	CurrencyExponent int32
	Status           TransactionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewEntry validates and constructs an Entry value. Transaction id,
// organization and status are stamped later by NewTransaction.
func NewEntry(id, accountID string, direction Direction, amount int64, currency string, exponent int32) (Entry, error) {
	if accountID == "" {
		return Entry{}, ErrMissingAccount
	}
	if !direction.IsValid() {
		return Entry{}, ErrInvalidDirection
	}
	if amount <= 0 {
		return Entry{}, ErrNonPositiveAmount
	}
	if len(currency) != 3 {
		return Entry{}, ErrInvalidCurrency
	}
	if err := validateExponent(exponent); err != nil {
		return Entry{}, err
	}

	return Entry{
		ID:               id,
		AccountID:        accountID,
		Direction:        direction,
		Amount:           amount,
		Currency:         currency,
		CurrencyExponent: exponent,
	}, nil
}

// IsDebit reports whether the entry debits its account.
func (e Entry) IsDebit() bool {
	return e.Direction == Debit
}
