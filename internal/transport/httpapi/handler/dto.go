package handler

import (
	"time"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// BalancesResponse is one pending/posted/available snapshot.
type BalancesResponse struct {
	PendingAmount    int64 `json:"pendingAmount"`
	PostedAmount     int64 `json:"postedAmount"`
	AvailableAmount  int64 `json:"availableAmount"`
	PendingCredits   int64 `json:"pendingCredits"`
	PendingDebits    int64 `json:"pendingDebits"`
	PostedCredits    int64 `json:"postedCredits"`
	PostedDebits     int64 `json:"postedDebits"`
	AvailableCredits int64 `json:"availableCredits"`
	AvailableDebits  int64 `json:"availableDebits"`
}

func toBalancesResponse(b ledger.Balances) BalancesResponse {
	return BalancesResponse(b)
}

// LedgerResponse represents a ledger
type LedgerResponse struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Currency         string         `json:"currency"`
	CurrencyExponent int32          `json:"currencyExponent"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func toLedgerResponse(l ledger.Ledger) LedgerResponse {
	return LedgerResponse{
		ID:               l.ID,
		Name:             l.Name,
		Description:      l.Description,
		Currency:         l.Currency,
		CurrencyExponent: l.CurrencyExponent,
		Metadata:         l.Metadata,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

// AccountResponse represents an account with its live balances
type AccountResponse struct {
	ID            string           `json:"id"`
	LedgerID      string           `json:"ledgerId"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	NormalBalance string           `json:"normalBalance"`
	Balances      BalancesResponse `json:"balances"`
	LockVersion   int64            `json:"lockVersion"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func toAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		LedgerID:      a.LedgerID,
		Name:          a.Name,
		Description:   a.Description,
		NormalBalance: string(a.NormalBalance),
		Balances:      toBalancesResponse(a.Balances),
		LockVersion:   a.LockVersion,
		Metadata:      a.Metadata,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// EntryResponse represents one transaction leg
type EntryResponse struct {
	ID               string    `json:"id"`
	TransactionID    string    `json:"transactionId"`
	AccountID        string    `json:"accountId"`
	Direction        string    `json:"direction"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	CurrencyExponent int32     `json:"currencyExponent"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toEntryResponse(e ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:               e.ID,
		TransactionID:    e.TransactionID,
		AccountID:        e.AccountID,
		Direction:        string(e.Direction),
		Amount:           e.Amount,
		Currency:         e.Currency,
		CurrencyExponent: e.CurrencyExponent,
		Status:           string(e.Status),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// TransactionResponse represents a transaction with its entries
type TransactionResponse struct {
	ID             string          `json:"id"`
	LedgerID       string          `json:"ledgerId"`
	Description    string          `json:"description,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Status         string          `json:"status"`
	EffectiveAt    time.Time       `json:"effectiveAt"`
	LedgerEntries  []EntryResponse `json:"ledgerEntries"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toTransactionResponse(t ledger.Transaction) TransactionResponse {
	entries := make([]EntryResponse, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = toEntryResponse(e)
	}
	return TransactionResponse{
		ID:             t.ID,
		LedgerID:       t.LedgerID,
		Description:    t.Description,
		IdempotencyKey: t.IdempotencyKey,
		Status:         string(t.Status),
		EffectiveAt:    t.EffectiveAt,
		LedgerEntries:  entries,
		Metadata:       t.Metadata,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toTransactionResponses(txns []ledger.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txns))
	for i, t := range txns {
		out[i] = toTransactionResponse(t)
	}
	return out
}

// SettlementResponse represents a settlement
type SettlementResponse struct {
	ID                    string         `json:"id"`
	LedgerID              string         `json:"ledgerId"`
	TransactionID         string         `json:"transactionId,omitempty"`
	SettledAccountID      string         `json:"settledAccountId"`
	ContraAccountID       string         `json:"contraAccountId"`
	Amount                int64          `json:"amount"`
	NormalBalance         string         `json:"normalBalance"`
	Currency              string         `json:"currency"`
	CurrencyExponent      int32          `json:"currencyExponent"`
	Status                string         `json:"status"`
	Description           string         `json:"description,omitempty"`
	ExternalReference     string         `json:"externalReference,omitempty"`
	EffectiveAtUpperBound *time.Time     `json:"effectiveAtUpperBound,omitempty"`
	EntryIDs              []string       `json:"entryIds"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

func toSettlementResponse(s ledger.Settlement) SettlementResponse {
	entryIDs := s.AttachedEntryIDs
	if entryIDs == nil {
		entryIDs = []string{}
	}
	return SettlementResponse{
		ID:                    s.ID,
		LedgerID:              s.LedgerID,
		TransactionID:         s.TransactionID,
		SettledAccountID:      s.SettledAccountID,
		ContraAccountID:       s.ContraAccountID,
		Amount:                s.Amount,
		NormalBalance:         string(s.NormalBalance),
		Currency:              s.Currency,
		CurrencyExponent:      s.CurrencyExponent,
		Status:                string(s.Status),
		Description:           s.Description,
		ExternalReference:     s.ExternalReference,
		EffectiveAtUpperBound: s.EffectiveAtUpperBound,
		EntryIDs:              entryIDs,
		Metadata:              s.Metadata,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

// MonitorResponse represents a balance monitor
type MonitorResponse struct {
	ID              string                  `json:"id"`
	AccountID       string                  `json:"accountId"`
	Description     string                  `json:"description,omitempty"`
	AlertConditions []ledger.AlertCondition `json:"alertConditions"`
	LockVersion     int64                   `json:"lockVersion"`
	Metadata        map[string]any          `json:"metadata,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func toMonitorResponse(m ledger.BalanceMonitor) MonitorResponse {
	return MonitorResponse{
		ID:              m.ID,
		AccountID:       m.AccountID,
		Description:     m.Description,
		AlertConditions: m.AlertConditions,
		LockVersion:     m.LockVersion,
		Metadata:        m.Metadata,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// StatementResponse represents an account statement
type StatementResponse struct {
	ID                   string           `json:"id"`
	LedgerID             string           `json:"ledgerId"`
	AccountID            string           `json:"accountId"`
	StartDatetime        time.Time        `json:"startDatetime"`
	EndDatetime          time.Time        `json:"endDatetime"`
	LedgerAccountVersion int64            `json:"ledgerAccountVersion"`
	StartingBalances     BalancesResponse `json:"startingBalances"`
	EndingBalances       BalancesResponse `json:"endingBalances"`
	Currency             string           `json:"currency"`
	CurrencyExponent     int32            `json:"currencyExponent"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

func toStatementResponse(s ledger.AccountStatement) StatementResponse {
	return StatementResponse{
		ID:                   s.ID,
		LedgerID:             s.LedgerID,
		AccountID:            s.AccountID,
		StartDatetime:        s.StartDatetime,
		EndDatetime:          s.EndDatetime,
		LedgerAccountVersion: s.LedgerAccountVersion,
		StartingBalances:     toBalancesResponse(s.StartingBalances),
		EndingBalances:       toBalancesResponse(s.EndingBalances),
		Currency:             s.Currency,
		CurrencyExponent:     s.CurrencyExponent,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}
