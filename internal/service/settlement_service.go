package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// SettlementStore is the persistence port of the settlement service.
type SettlementStore interface {
	Create(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error)
	Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Settlement, error)
	List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Settlement, error)
	AddEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error
	RemoveEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error
	NetAmount(ctx context.Context, id string, normalBalance ledger.Direction) (int64, error)
	UpdateStatus(ctx context.Context, organizationID, ledgerID, id string, from, to ledger.SettlementStatus) error
	MarkProcessing(ctx context.Context, organizationID, ledgerID, id, transactionID string, amount int64) error
	Update(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error)
	Delete(ctx context.Context, organizationID, ledgerID, id string) error
}

// SettlementService drives the settlement lifecycle. Leaving drafting
// builds the balancing transaction through the transaction engine; posting
// and archiving the settlement follow its transaction.
type SettlementService struct {
	store        SettlementStore
	transactions TransactionStore
	accounts     AccountStore
	ledgers      *LedgerService
	logger       *logger.Logger
}

// NewSettlementService creates a settlement service.
func NewSettlementService(store SettlementStore, transactions TransactionStore, accounts AccountStore, ledgers *LedgerService, log *logger.Logger) *SettlementService {
	return &SettlementService{
		store:        store,
		transactions: transactions,
		accounts:     accounts,
		ledgers:      ledgers,
		logger:       log.WithField("service", "settlement"),
	}
}

// CreateSettlementInput carries the client-settable settlement fields.
type CreateSettlementInput struct {
	SettledAccountID      string
	ContraAccountID       string
	Description           string
	ExternalReference     string
	EffectiveAtUpperBound *time.Time
	Metadata              map[string]any
}

// Create persists a drafting settlement. Currency and exponent come from
// the ledger, the normal balance from the settled account; none of them
// change afterwards.
func (s *SettlementService) Create(ctx context.Context, organizationID, ledgerID string, input CreateSettlementInput) (ledger.Settlement, error) {
	l, err := s.ledgers.Get(ctx, organizationID, ledgerID)
	if err != nil {
		return ledger.Settlement{}, err
	}
	settled, err := s.accounts.Get(ctx, organizationID, ledgerID, input.SettledAccountID)
	if err != nil {
		return ledger.Settlement{}, err
	}
	if _, err := s.accounts.Get(ctx, organizationID, ledgerID, input.ContraAccountID); err != nil {
		return ledger.Settlement{}, err
	}

	stl, err := ledger.NewSettlement(
		id.New(id.KindSettlement), organizationID, ledgerID,
		input.SettledAccountID, input.ContraAccountID,
		input.Description, input.ExternalReference,
		settled.NormalBalance, l.Currency, l.CurrencyExponent,
		input.EffectiveAtUpperBound, input.Metadata,
	)
	if err != nil {
		return ledger.Settlement{}, apperr.ValidationErr("invalid settlement", err)
	}

	return s.store.Create(ctx, stl)
}

// Get retrieves a settlement with its attached entries.
func (s *SettlementService) Get(ctx context.Context, organizationID, ledgerID, settlementID string) (ledger.Settlement, error) {
	return s.store.Get(ctx, organizationID, ledgerID, settlementID)
}

// List returns the ledger's settlements.
func (s *SettlementService) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Settlement, error) {
	return s.store.List(ctx, organizationID, ledgerID, normalizeLimit(limit), offset)
}

// AddEntries attaches posted entries of the settled account to a drafting
// settlement.
func (s *SettlementService) AddEntries(ctx context.Context, organizationID, ledgerID, settlementID string, entryIDs []string) (ledger.Settlement, error) {
	if len(entryIDs) == 0 {
		return ledger.Settlement{}, apperr.Validation("no entry ids given")
	}
	if err := s.store.AddEntries(ctx, organizationID, ledgerID, settlementID, entryIDs); err != nil {
		return ledger.Settlement{}, err
	}
	return s.store.Get(ctx, organizationID, ledgerID, settlementID)
}

// RemoveEntries detaches entries from a drafting settlement.
func (s *SettlementService) RemoveEntries(ctx context.Context, organizationID, ledgerID, settlementID string, entryIDs []string) (ledger.Settlement, error) {
	if len(entryIDs) == 0 {
		return ledger.Settlement{}, apperr.Validation("no entry ids given")
	}
	if err := s.store.RemoveEntries(ctx, organizationID, ledgerID, settlementID, entryIDs); err != nil {
		return ledger.Settlement{}, err
	}
	return s.store.Get(ctx, organizationID, ledgerID, settlementID)
}

// UpdateSettlementInput carries the fields mutable while drafting.
type UpdateSettlementInput struct {
	Description           *string
	ExternalReference     *string
	EffectiveAtUpperBound *time.Time
	Metadata              map[string]any
}

// Update patches a drafting settlement.
func (s *SettlementService) Update(ctx context.Context, organizationID, ledgerID, settlementID string, input UpdateSettlementInput) (ledger.Settlement, error) {
	stl, err := s.store.Get(ctx, organizationID, ledgerID, settlementID)
	if err != nil {
		return ledger.Settlement{}, err
	}
	if !stl.IsMutable() {
		return ledger.Settlement{}, apperr.Conflict("settlement is no longer drafting", false)
	}

	if input.Description != nil {
		stl.Description = *input.Description
	}
	if input.ExternalReference != nil {
		stl.ExternalReference = *input.ExternalReference
	}
	if input.EffectiveAtUpperBound != nil {
		stl.EffectiveAtUpperBound = input.EffectiveAtUpperBound
	}
	if input.Metadata != nil {
		stl.Metadata = input.Metadata
	}

	return s.store.Update(ctx, stl)
}

// Delete removes a drafting settlement.
func (s *SettlementService) Delete(ctx context.Context, organizationID, ledgerID, settlementID string) error {
	return s.store.Delete(ctx, organizationID, ledgerID, settlementID)
}

// Transition moves the settlement toward the target status. Leaving
// drafting nets the attached entries, creates the pending balancing
// transaction through the engine and advances to pending; posting posts
// that transaction; archiving archives it before the settlement lands in
// the terminal status.
func (s *SettlementService) Transition(ctx context.Context, organizationID, ledgerID, settlementID string, target ledger.SettlementStatus) (ledger.Settlement, error) {
	stl, err := s.store.Get(ctx, organizationID, ledgerID, settlementID)
	if err != nil {
		return ledger.Settlement{}, err
	}
	if !target.IsValid() {
		return ledger.Settlement{}, apperr.Validation("unknown settlement status")
	}
	if !stl.Status.CanTransition(target) {
		return ledger.Settlement{}, apperr.Conflict(
			fmt.Sprintf("settlement cannot move from %s to %s", stl.Status, target), false)
	}

	switch target {
	case ledger.SettlementProcessing:
		err = s.beginProcessing(ctx, stl)
	case ledger.SettlementPending, ledger.SettlementArchived:
		err = s.store.UpdateStatus(ctx, organizationID, ledgerID, settlementID, stl.Status, target)
	case ledger.SettlementPosted:
		err = s.post(ctx, stl)
	case ledger.SettlementArchiving:
		err = s.archive(ctx, stl)
	default:
		err = apperr.Conflict("settlement cannot enter this status directly", false)
	}
	if err != nil {
		return ledger.Settlement{}, err
	}

	return s.store.Get(ctx, organizationID, ledgerID, settlementID)
}

// beginProcessing nets the attached entries and creates the balancing
// transaction: one entry offsetting the net on the settled account, one
// mirroring it on the contra account. The settlement then advances
// directly to pending, tracking its pending transaction.
func (s *SettlementService) beginProcessing(ctx context.Context, stl ledger.Settlement) error {
	net, err := s.store.NetAmount(ctx, stl.ID, stl.NormalBalance)
	if err != nil {
		return err
	}
	if net == 0 {
		return apperr.Conflict("settlement has no net amount to settle", false)
	}

	// A positive net accumulated on the settled account's normal side is
	// offset by an entry on the opposite side.
	amount := net
	settledDir := stl.NormalBalance.Opposite()
	if net < 0 {
		amount = -net
		settledDir = stl.NormalBalance
	}

	settledEntry, err := ledger.NewEntry(id.New(id.KindEntry), stl.SettledAccountID, settledDir, amount, stl.Currency, stl.CurrencyExponent)
	if err != nil {
		return apperr.ValidationErr("invalid settlement entry", err)
	}
	contraEntry, err := ledger.NewEntry(id.New(id.KindEntry), stl.ContraAccountID, settledDir.Opposite(), amount, stl.Currency, stl.CurrencyExponent)
	if err != nil {
		return apperr.ValidationErr("invalid settlement entry", err)
	}

	txn, err := ledger.NewTransaction(
		id.New(id.KindTransaction), stl.OrganizationID, stl.LedgerID,
		fmt.Sprintf("settlement %s", stl.ID), "",
		ledger.StatusPending, time.Time{},
		map[string]any{"settlementId": stl.ID},
		[]ledger.Entry{settledEntry, contraEntry},
	)
	if err != nil {
		return apperr.ValidationErr("invalid settlement transaction", err)
	}

	created, err := withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
		return s.transactions.Create(ctx, txn)
	})
	if err != nil {
		return err
	}

	if err := s.store.MarkProcessing(ctx, stl.OrganizationID, stl.LedgerID, stl.ID, created.ID, net); err != nil {
		// The settlement left drafting underneath us; unwind the
		// transaction so it does not dangle.
		if _, archiveErr := s.transactions.Archive(ctx, stl.OrganizationID, stl.LedgerID, created.ID); archiveErr != nil {
			s.logger.Error("failed to unwind settlement transaction",
				"settlement_id", stl.ID, "transaction_id", created.ID, "error", archiveErr)
		}
		return err
	}

	return s.store.UpdateStatus(ctx, stl.OrganizationID, stl.LedgerID, stl.ID,
		ledger.SettlementProcessing, ledger.SettlementPending)
}

// post posts the balancing transaction, then the settlement.
func (s *SettlementService) post(ctx context.Context, stl ledger.Settlement) error {
	if stl.TransactionID == "" {
		return apperr.Conflict("settlement has no balancing transaction", false)
	}

	if _, err := withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
		return s.transactions.Post(ctx, stl.OrganizationID, stl.LedgerID, stl.TransactionID)
	}); err != nil {
		return err
	}

	return s.store.UpdateStatus(ctx, stl.OrganizationID, stl.LedgerID, stl.ID,
		ledger.SettlementPending, ledger.SettlementPosted)
}

// archive moves the settlement through archiving into archived, reversing
// the balancing transaction when one exists and is still live.
func (s *SettlementService) archive(ctx context.Context, stl ledger.Settlement) error {
	if err := s.store.UpdateStatus(ctx, stl.OrganizationID, stl.LedgerID, stl.ID,
		stl.Status, ledger.SettlementArchiving); err != nil {
		return err
	}

	if stl.TransactionID != "" {
		txn, err := s.transactions.Get(ctx, stl.OrganizationID, stl.LedgerID, stl.TransactionID)
		if err != nil {
			return err
		}
		if txn.Status.CanTransition(ledger.StatusArchived) {
			if _, err := withRetry(ctx, func(ctx context.Context) (ledger.Transaction, error) {
				return s.transactions.Archive(ctx, stl.OrganizationID, stl.LedgerID, stl.TransactionID)
			}); err != nil {
				return err
			}
		}
	}

	return s.store.UpdateStatus(ctx, stl.OrganizationID, stl.LedgerID, stl.ID,
		ledger.SettlementArchiving, ledger.SettlementArchived)
}
