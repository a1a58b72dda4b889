// Package ledger holds the immutable domain values of the accounting core:
// ledgers, accounts, transactions, entries, settlements, balance monitors
// and statements. Constructors enforce the structural invariants (balanced
// entries, one entry per account, positive integer amounts); every mutating
// operation returns a new value.
package ledger

import (
	"time"
)

// Ledger is the container for accounts and transactions of one currency.
// Currency and exponent are immutable once set.
type Ledger struct {
	ID               string
	OrganizationID   string
	Name             string
	Description      string
	Currency         string
	CurrencyExponent int32
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewLedger validates and constructs a Ledger value.
func NewLedger(id, organizationID, name, description, currency string, exponent int32, metadata map[string]any) (Ledger, error) {
	if organizationID == "" {
		return Ledger{}, ErrMissingOrganization
	}
	if name == "" {
		return Ledger{}, ErrMissingName
	}
	if len(currency) != 3 {
		return Ledger{}, ErrInvalidCurrency
	}
	if err := validateExponent(exponent); err != nil {
		return Ledger{}, err
	}

	return Ledger{
		ID:               id,
		OrganizationID:   organizationID,
		Name:             name,
		Description:      description,
		Currency:         currency,
		CurrencyExponent: exponent,
		Metadata:         metadata,
	}, nil
}

func validateExponent(exponent int32) error {
	if exponent < 0 || exponent > 18 {
		return ErrInvalidCurrencyExponent
	}
	return nil
}
