package ledger

import "time"

// AccountStatement is a periodic snapshot of one account's balances over
// [StartDatetime, EndDatetime).
type AccountStatement struct {
	ID                   string
	OrganizationID       string
	LedgerID             string
	AccountID            string
	StartDatetime        time.Time
	EndDatetime          time.Time
	LedgerAccountVersion int64
	StartingBalances     Balances
	EndingBalances       Balances
	Currency             string
	CurrencyExponent     int32
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewAccountStatement validates the statement window.
func NewAccountStatement(id, organizationID, ledgerID, accountID string, start, end time.Time) (AccountStatement, error) {
	if organizationID == "" {
		return AccountStatement{}, ErrMissingOrganization
	}
	if ledgerID == "" {
		return AccountStatement{}, ErrMissingLedger
	}
	if accountID == "" {
		return AccountStatement{}, ErrMissingAccount
	}
	if !start.Before(end) {
		return AccountStatement{}, ErrInvalidStatementWindow
	}

	return AccountStatement{
		ID:             id,
		OrganizationID: organizationID,
		LedgerID:       ledgerID,
		AccountID:      accountID,
		StartDatetime:  start,
		EndDatetime:    end,
	}, nil
}
