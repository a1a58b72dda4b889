package ledger

import "time"

// Balances is one pending/posted/available triple snapshot, used by
// statements and API responses.
type Balances struct {
	PendingAmount    int64 `json:"pending_amount"`
	PostedAmount     int64 `json:"posted_amount"`
	AvailableAmount  int64 `json:"available_amount"`
	PendingCredits   int64 `json:"pending_credits"`
	PendingDebits    int64 `json:"pending_debits"`
	PostedCredits    int64 `json:"posted_credits"`
	PostedDebits     int64 `json:"posted_debits"`
	AvailableCredits int64 `json:"available_credits"`
	AvailableDebits  int64 `json:"available_debits"`
}

// Account accumulates entries on one side (its normal balance). Accounts
// are immutable values; ApplyEntry, PostEntry and ReverseEntry return new
// Account values carrying the lock version read from storage — the version
// increment happens at write time, not here.
type Account struct {
	ID             string
	OrganizationID string
	LedgerID       string
	Name           string
	Description    string
	NormalBalance  Direction
	Balances       Balances
	LockVersion    int64
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount validates and constructs an Account with zero balances.
func NewAccount(id, organizationID, ledgerID, name, description string, normalBalance Direction, metadata map[string]any) (Account, error) {
	if organizationID == "" {
		return Account{}, ErrMissingOrganization
	}
	if ledgerID == "" {
		return Account{}, ErrMissingLedger
	}
	if name == "" {
		return Account{}, ErrMissingName
	}
	if !normalBalance.IsValid() {
		return Account{}, ErrInvalidNormalBalance
	}

	return Account{
		ID:             id,
		OrganizationID: organizationID,
		LedgerID:       ledgerID,
		Name:           name,
		Description:    description,
		NormalBalance:  normalBalance,
		Metadata:       metadata,
	}, nil
}

// sign is +1 when the entry accumulates on the account's normal side
// (incoming) and -1 when it offsets it (outgoing).
func (a Account) sign(e Entry) int64 {
	if e.Direction == a.NormalBalance {
		return 1
	}
	return -1
}

// ApplyEntry folds a new entry into the account's balances according to the
// entry's status. Posted entries move posted and available fields together;
// pending entries move pending fields, and reduce available only when
// outgoing, so available reflects posted incoming plus pending outgoing.
func (a Account) ApplyEntry(e Entry) (Account, error) {
	switch e.Status {
	case StatusPosted:
		return a.applyPosted(e, 1), nil
	case StatusPending:
		return a.applyPending(e, 1), nil
	default:
		return Account{}, ErrInvalidStatus
	}
}

// PostEntry moves a previously applied pending entry into the posted
// fields. Outgoing amounts were already deducted from available at pending
// time and are not deducted again.
func (a Account) PostEntry(e Entry) (Account, error) {
	if e.Status != StatusPending {
		return Account{}, ErrInvalidStatus
	}

	out := a
	sign := a.sign(e)
	amt := e.Amount

	out.Balances.PendingAmount -= sign * amt
	out.addPendingSide(&out.Balances, e.Direction, -amt)

	out.Balances.PostedAmount += sign * amt
	out.addPostedSide(&out.Balances, e.Direction, amt)

	if sign > 0 {
		out.Balances.AvailableAmount += amt
		out.addAvailableSide(&out.Balances, e.Direction, amt)
	}
	return out, nil
}

// ReverseEntry undoes a previously applied entry, used when a transaction
// is archived. The entry's status selects which fields to unwind.
func (a Account) ReverseEntry(e Entry) (Account, error) {
	switch e.Status {
	case StatusPosted:
		return a.applyPosted(e, -1), nil
	case StatusPending:
		return a.applyPending(e, -1), nil
	default:
		return Account{}, ErrInvalidStatus
	}
}

func (a Account) applyPosted(e Entry, factor int64) Account {
	out := a
	sign := a.sign(e)
	amt := factor * e.Amount

	out.Balances.PostedAmount += sign * amt
	out.addPostedSide(&out.Balances, e.Direction, amt)

	out.Balances.AvailableAmount += sign * amt
	out.addAvailableSide(&out.Balances, e.Direction, amt)
	return out
}

func (a Account) applyPending(e Entry, factor int64) Account {
	out := a
	sign := a.sign(e)
	amt := factor * e.Amount

	out.Balances.PendingAmount += sign * amt
	out.addPendingSide(&out.Balances, e.Direction, amt)

	if sign < 0 {
		out.Balances.AvailableAmount -= amt
		out.addAvailableSide(&out.Balances, e.Direction, amt)
	}
	return out
}

func (Account) addPendingSide(b *Balances, d Direction, amt int64) {
	if d == Debit {
		b.PendingDebits += amt
	} else {
		b.PendingCredits += amt
	}
}

func (Account) addPostedSide(b *Balances, d Direction, amt int64) {
	if d == Debit {
		b.PostedDebits += amt
	} else {
		b.PostedCredits += amt
	}
}

func (Account) addAvailableSide(b *Balances, d Direction, amt int64) {
	if d == Debit {
		b.AvailableDebits += amt
	} else {
		b.AvailableCredits += amt
	}
}
