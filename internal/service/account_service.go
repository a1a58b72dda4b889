package service

import (
	"context"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// AccountStore is the persistence port of the account service.
type AccountStore interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Account, error)
	List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Account, error)
	Update(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Delete(ctx context.Context, organizationID, ledgerID, id string) error
}

// AccountService manages accounts. Balances are never written here; only
// the transaction engine moves them.
type AccountService struct {
	store   AccountStore
	ledgers *LedgerService
	logger  *logger.Logger
}

// NewAccountService creates an account service.
func NewAccountService(store AccountStore, ledgers *LedgerService, log *logger.Logger) *AccountService {
	return &AccountService{
		store:   store,
		ledgers: ledgers,
		logger:  log.WithField("service", "account"),
	}
}

// CreateAccountInput carries the client-settable account fields.
type CreateAccountInput struct {
	Name          string
	Description   string
	NormalBalance ledger.Direction
	Metadata      map[string]any
}

// Create validates the owning ledger and persists a new account.
func (s *AccountService) Create(ctx context.Context, organizationID, ledgerID string, input CreateAccountInput) (ledger.Account, error) {
	if _, err := s.ledgers.Get(ctx, organizationID, ledgerID); err != nil {
		return ledger.Account{}, err
	}

	a, err := ledger.NewAccount(
		id.New(id.KindAccount), organizationID, ledgerID,
		input.Name, input.Description, input.NormalBalance, input.Metadata,
	)
	if err != nil {
		return ledger.Account{}, apperr.ValidationErr("invalid account", err)
	}

	return s.store.Create(ctx, a)
}

// Get retrieves an account with its live balances.
func (s *AccountService) Get(ctx context.Context, organizationID, ledgerID, accountID string) (ledger.Account, error) {
	return s.store.Get(ctx, organizationID, ledgerID, accountID)
}

// List returns the ledger's accounts.
func (s *AccountService) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Account, error) {
	return s.store.List(ctx, organizationID, ledgerID, normalizeLimit(limit), offset)
}

// UpdateAccountInput carries the mutable account fields; nil means
// unchanged. Normal balance is immutable.
type UpdateAccountInput struct {
	Name        *string
	Description *string
	Metadata    map[string]any
}

// Update patches the mutable fields.
func (s *AccountService) Update(ctx context.Context, organizationID, ledgerID, accountID string, input UpdateAccountInput) (ledger.Account, error) {
	a, err := s.store.Get(ctx, organizationID, ledgerID, accountID)
	if err != nil {
		return ledger.Account{}, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return ledger.Account{}, apperr.Validation("account name cannot be empty")
		}
		a.Name = *input.Name
	}
	if input.Description != nil {
		a.Description = *input.Description
	}
	if input.Metadata != nil {
		a.Metadata = input.Metadata
	}

	return s.store.Update(ctx, a)
}

// Delete removes an account no entry references.
func (s *AccountService) Delete(ctx context.Context, organizationID, ledgerID, accountID string) error {
	return s.store.Delete(ctx, organizationID, ledgerID, accountID)
}
