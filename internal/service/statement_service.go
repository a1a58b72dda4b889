package service

import (
	"context"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// StatementStore is the persistence port of the statement service.
type StatementStore interface {
	Create(ctx context.Context, st ledger.AccountStatement, normalBalance ledger.Direction) (ledger.AccountStatement, error)
	Get(ctx context.Context, organizationID, id string) (ledger.AccountStatement, error)
	List(ctx context.Context, organizationID, accountID string, limit, offset int) ([]ledger.AccountStatement, error)
}

// StatementService produces periodic balance snapshots for accounts.
type StatementService struct {
	store    StatementStore
	accounts *AccountService
	ledgers  *LedgerService
	logger   *logger.Logger
}

// NewStatementService creates a statement service.
func NewStatementService(store StatementStore, accounts *AccountService, ledgers *LedgerService, log *logger.Logger) *StatementService {
	return &StatementService{
		store:    store,
		accounts: accounts,
		ledgers:  ledgers,
		logger:   log.WithField("service", "statement"),
	}
}

// Create snapshots the account's balances at both window boundaries. The
// account's lock version at creation time is recorded alongside.
func (s *StatementService) Create(ctx context.Context, organizationID, ledgerID, accountID string, start, end time.Time) (ledger.AccountStatement, error) {
	a, err := s.accounts.Get(ctx, organizationID, ledgerID, accountID)
	if err != nil {
		return ledger.AccountStatement{}, err
	}
	l, err := s.ledgers.Get(ctx, organizationID, ledgerID)
	if err != nil {
		return ledger.AccountStatement{}, err
	}

	st, err := ledger.NewAccountStatement(
		id.New(id.KindStatement), organizationID, ledgerID, accountID, start, end,
	)
	if err != nil {
		return ledger.AccountStatement{}, apperr.ValidationErr("invalid statement window", err)
	}
	st.LedgerAccountVersion = a.LockVersion
	st.Currency = l.Currency
	st.CurrencyExponent = l.CurrencyExponent

	return s.store.Create(ctx, st, a.NormalBalance)
}

// Get retrieves a statement.
func (s *StatementService) Get(ctx context.Context, organizationID, statementID string) (ledger.AccountStatement, error) {
	return s.store.Get(ctx, organizationID, statementID)
}

// List returns an account's statements.
func (s *StatementService) List(ctx context.Context, organizationID, ledgerID, accountID string, limit, offset int) ([]ledger.AccountStatement, error) {
	if _, err := s.accounts.Get(ctx, organizationID, ledgerID, accountID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, organizationID, accountID, normalizeLimit(limit), offset)
}
