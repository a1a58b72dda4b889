package service

import (
	"context"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// TransactionStore is the persistence port of the transaction service.
// Create, Post, Archive and Delete run the optimistic write protocol and
// may fail with retryable conflicts.
type TransactionStore interface {
	Create(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error)
	Post(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error)
	Archive(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error)
	Delete(ctx context.Context, organizationID, ledgerID, id string) error
	Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error)
	List(ctx context.Context, organizationID, ledgerID string, status *ledger.TransactionStatus, limit, offset int) ([]ledger.Transaction, error)
}

// TransactionService validates transactions against their ledger and runs
// the engine's mutations under the retry policy. Reads bypass retry.
type TransactionService struct {
	store             TransactionStore
	ledgers           *LedgerService
	allowPostedDelete bool
	logger            *logger.Logger
}

// NewTransactionService creates a transaction service.
func NewTransactionService(store TransactionStore, ledgers *LedgerService, allowPostedDelete bool, log *logger.Logger) *TransactionService {
	return &TransactionService{
		store:             store,
		ledgers:           ledgers,
		allowPostedDelete: allowPostedDelete,
		logger:            log.WithField("service", "transaction"),
	}
}

// EntryInput is one leg of a transaction create request. Currency and
// exponent are optional; when present they must match the ledger.
type EntryInput struct {
	ID               string
	AccountID        string
	Direction        ledger.Direction
	Amount           int64
	Currency         string
	CurrencyExponent *int32
}

// CreateTransactionInput carries the client-settable transaction fields.
type CreateTransactionInput struct {
	ID             string
	Description    string
	IdempotencyKey string
	Status         ledger.TransactionStatus
	EffectiveAt    time.Time
	Metadata       map[string]any
	Entries        []EntryInput
}

// Create validates currency agreement against the ledger, constructs the
// balanced transaction and writes it through the engine under retry.
// Replayed ids return the stored transaction unchanged.
func (s *TransactionService) Create(ctx context.Context, organizationID, ledgerID string, input CreateTransactionInput) (ledger.Transaction, error) {
	l, err := s.ledgers.Get(ctx, organizationID, ledgerID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	entries := make([]ledger.Entry, 0, len(input.Entries))
	for _, in := range input.Entries {
		if in.Currency != "" && in.Currency != l.Currency {
			return ledger.Transaction{}, apperr.Validation("entry currency does not match the ledger").
				WithContext("accountId", in.AccountID)
		}
		if in.CurrencyExponent != nil && *in.CurrencyExponent != l.CurrencyExponent {
			return ledger.Transaction{}, apperr.Validation("entry currency exponent does not match the ledger").
				WithContext("accountId", in.AccountID)
		}

		entryID := in.ID
		if entryID == "" {
			entryID = id.New(id.KindEntry)
		}
		e, err := ledger.NewEntry(entryID, in.AccountID, in.Direction, in.Amount, l.Currency, l.CurrencyExponent)
		if err != nil {
			return ledger.Transaction{}, apperr.ValidationErr("invalid entry", err)
		}
		entries = append(entries, e)
	}

	txnID := input.ID
	if txnID == "" {
		txnID = id.New(id.KindTransaction)
	}

	txn, err := ledger.NewTransaction(
		txnID, organizationID, ledgerID,
		input.Description, input.IdempotencyKey,
		input.Status, input.EffectiveAt, input.Metadata, entries,
	)
	if err != nil {
		return ledger.Transaction{}, apperr.ValidationErr("invalid transaction", err)
	}

	return withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
		return s.store.Create(ctx, txn)
	})
}

// Post moves a pending transaction to posted under retry.
func (s *TransactionService) Post(ctx context.Context, organizationID, ledgerID, transactionID string) (ledger.Transaction, error) {
	return withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
		return s.store.Post(ctx, organizationID, ledgerID, transactionID)
	})
}

// Delete archives the transaction, reversing its balance effects. With the
// test-mode flag set the rows are removed outright instead.
func (s *TransactionService) Delete(ctx context.Context, organizationID, ledgerID, transactionID string) error {
	if s.allowPostedDelete {
		return retryErr(ctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, organizationID, ledgerID, transactionID)
		})
	}
	_, err := withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
		return s.store.Archive(ctx, organizationID, ledgerID, transactionID)
	})
	return err
}

// Get retrieves a transaction with its entries.
func (s *TransactionService) Get(ctx context.Context, organizationID, ledgerID, transactionID string) (ledger.Transaction, error) {
	return s.store.Get(ctx, organizationID, ledgerID, transactionID)
}

// List returns transactions, optionally filtered by status.
func (s *TransactionService) List(ctx context.Context, organizationID, ledgerID string, status *ledger.TransactionStatus, limit, offset int) ([]ledger.Transaction, error) {
	if status != nil && !status.IsValid() {
		return nil, apperr.Validation("unknown transaction status filter")
	}
	return s.store.List(ctx, organizationID, ledgerID, status, normalizeLimit(limit), offset)
}
