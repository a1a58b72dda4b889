package ledger

import "time"

// TransactionStatus is the lifecycle state of a transaction and, mirrored,
// of each of its entries.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusArchived TransactionStatus = "archived"
)

// IsValid reports whether s is a known status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPosted, StatusArchived:
		return true
	}
	return false
}

// transactionTransitions is the explicit transition table. Archived is
// terminal.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:  {StatusPosted, StatusArchived},
	StatusPosted:   {StatusArchived},
	StatusArchived: {},
}

// CanTransition reports whether s may legally move to target.
func (s TransactionStatus) CanTransition(target TransactionStatus) bool {
	for _, next := range transactionTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Transaction is an immutable balanced set of entries. Debits equal credits
// and no account appears twice; both are checked at construction and can
// never become false afterwards.
type Transaction struct {
	ID             string
	OrganizationID string
	LedgerID       string
	Entries        []Entry
	IdempotencyKey string
	Description    string
	Status         TransactionStatus
	EffectiveAt    time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTransaction validates and constructs a Transaction, stamping every
// entry with the transaction id, organization and status.
func NewTransaction(
	id, organizationID, ledgerID, description, idempotencyKey string,
	status TransactionStatus,
	effectiveAt time.Time,
	metadata map[string]any,
	entries []Entry,
) (Transaction, error) {
	if organizationID == "" {
		return Transaction{}, ErrMissingOrganization
	}
	if ledgerID == "" {
		return Transaction{}, ErrMissingLedger
	}
	if status != StatusPending && status != StatusPosted {
		return Transaction{}, ErrInvalidStatus
	}
	if len(entries) < 2 {
		return Transaction{}, ErrTooFewEntries
	}

	var debits, credits int64
	seen := make(map[string]struct{}, len(entries))
	currency := entries[0].Currency
	exponent := entries[0].CurrencyExponent

	stamped := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Amount <= 0 {
			return Transaction{}, ErrNonPositiveAmount
		}
		if !e.Direction.IsValid() {
			return Transaction{}, ErrInvalidDirection
		}
		if e.Currency != currency || e.CurrencyExponent != exponent {
			return Transaction{}, ErrMixedCurrencies
		}
		if _, dup := seen[e.AccountID]; dup {
			return Transaction{}, ErrDuplicateAccount
		}
		seen[e.AccountID] = struct{}{}

		if e.IsDebit() {
			debits += e.Amount
		} else {
			credits += e.Amount
		}

		e.TransactionID = id
		e.OrganizationID = organizationID
		e.Status = status
		stamped[i] = e
	}

	if debits != credits {
		return Transaction{}, ErrUnbalanced
	}

	if effectiveAt.IsZero() {
		effectiveAt = time.Now().UTC()
	}

	return Transaction{
		ID:             id,
		OrganizationID: organizationID,
		LedgerID:       ledgerID,
		Entries:        stamped,
		IdempotencyKey: idempotencyKey,
		Description:    description,
		Status:         status,
		EffectiveAt:    effectiveAt,
		Metadata:       metadata,
	}, nil
}

// WithStatus returns a copy of the transaction in the target status, with
// every entry's status mirrored. Illegal transitions are rejected.
func (t Transaction) WithStatus(target TransactionStatus) (Transaction, error) {
	if !t.Status.CanTransition(target) {
		return Transaction{}, ErrIllegalTransition
	}

	out := t
	out.Status = target
	out.Entries = make([]Entry, len(t.Entries))
	for i, e := range t.Entries {
		e.Status = target
		out.Entries[i] = e
	}
	return out, nil
}

// AccountIDs returns the distinct accounts the transaction touches, in
// entry order.
func (t Transaction) AccountIDs() []string {
	ids := make([]string, 0, len(t.Entries))
	for _, e := range t.Entries {
		ids = append(ids, e.AccountID)
	}
	return ids
}
