package ledger

import "time"

// SettlementStatus is the lifecycle state of a settlement.
type SettlementStatus string

const (
	SettlementDrafting   SettlementStatus = "drafting"
	SettlementProcessing SettlementStatus = "processing"
	SettlementPending    SettlementStatus = "pending"
	SettlementPosted     SettlementStatus = "posted"
	SettlementArchiving  SettlementStatus = "archiving"
	SettlementArchived   SettlementStatus = "archived"
)

// IsValid reports whether s is a known settlement status.
func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementDrafting, SettlementProcessing, SettlementPending,
		SettlementPosted, SettlementArchiving, SettlementArchived:
		return true
	}
	return false
}

// settlementTransitions is the explicit transition table. Every non-terminal
// status may move to archiving; archived is terminal.
var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementDrafting:   {SettlementProcessing, SettlementArchiving},
	SettlementProcessing: {SettlementPending, SettlementArchiving},
	SettlementPending:    {SettlementPosted, SettlementArchiving},
	SettlementPosted:     {SettlementArchiving},
	SettlementArchiving:  {SettlementArchived},
	SettlementArchived:   {},
}

// CanTransition reports whether s may legally move to target.
func (s SettlementStatus) CanTransition(target SettlementStatus) bool {
	for _, next := range settlementTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Settlement offsets posted entries on a settled account against a contra
// account, ultimately producing a balancing transaction for the net amount.
// Currency, exponent and normal balance are copied from the ledger and the
// settled account at creation and are immutable afterwards.
type Settlement struct {
	ID                    string
	OrganizationID        string
	LedgerID              string
	TransactionID         string
	SettledAccountID      string
	ContraAccountID       string
	Amount                int64
	NormalBalance         Direction
	Currency              string
	CurrencyExponent      int32
	Status                SettlementStatus
	Description           string
	ExternalReference     string
	EffectiveAtUpperBound *time.Time
	AttachedEntryIDs      []string
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewSettlement validates and constructs a drafting Settlement with no
// attached entries.
func NewSettlement(
	id, organizationID, ledgerID, settledAccountID, contraAccountID, description, externalReference string,
	normalBalance Direction,
	currency string,
	exponent int32,
	effectiveAtUpperBound *time.Time,
	metadata map[string]any,
) (Settlement, error) {
	if organizationID == "" {
		return Settlement{}, ErrMissingOrganization
	}
	if ledgerID == "" {
		return Settlement{}, ErrMissingLedger
	}
	if settledAccountID == "" || contraAccountID == "" {
		return Settlement{}, ErrMissingAccount
	}
	if settledAccountID == contraAccountID {
		return Settlement{}, ErrSameAccount
	}
	if !normalBalance.IsValid() {
		return Settlement{}, ErrInvalidNormalBalance
	}
	if len(currency) != 3 {
		return Settlement{}, ErrInvalidCurrency
	}
	if err := validateExponent(exponent); err != nil {
		return Settlement{}, err
	}

	return Settlement{
		ID:                    id,
		OrganizationID:        organizationID,
		LedgerID:              ledgerID,
		SettledAccountID:      settledAccountID,
		ContraAccountID:       contraAccountID,
		NormalBalance:         normalBalance,
		Currency:              currency,
		CurrencyExponent:      exponent,
		Status:                SettlementDrafting,
		Description:           description,
		ExternalReference:     externalReference,
		EffectiveAtUpperBound: effectiveAtUpperBound,
		Metadata:              metadata,
	}, nil
}

// IsMutable reports whether entries may be attached or detached and fields
// other than metadata updated.
func (s Settlement) IsMutable() bool {
	return s.Status == SettlementDrafting
}
