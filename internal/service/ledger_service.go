package service

import (
	"context"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// LedgerStore is the persistence port of the ledger service.
type LedgerStore interface {
	Create(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error)
	Get(ctx context.Context, organizationID, id string) (ledger.Ledger, error)
	List(ctx context.Context, organizationID string, limit, offset int) ([]ledger.Ledger, error)
	Update(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error)
	Delete(ctx context.Context, organizationID, id string) error
}

// LedgerCache is the read-through cache port. All methods are best-effort;
// cache failures degrade to database reads.
type LedgerCache interface {
	Get(ctx context.Context, organizationID, ledgerID string) (ledger.Ledger, bool, error)
	Set(ctx context.Context, l ledger.Ledger) error
	Invalidate(ctx context.Context, organizationID, ledgerID string) error
}

// LedgerService manages ledgers. Reads go through the cache because every
// transaction create validates its entries against the owning ledger.
type LedgerService struct {
	store  LedgerStore
	cache  LedgerCache
	logger *logger.Logger
}

// NewLedgerService creates a ledger service. cache may be nil.
func NewLedgerService(store LedgerStore, cache LedgerCache, log *logger.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		cache:  cache,
		logger: log.WithField("service", "ledger"),
	}
}

// CreateLedgerInput carries the client-settable ledger fields.
type CreateLedgerInput struct {
	Name             string
	Description      string
	Currency         string
	CurrencyExponent int32
	Metadata         map[string]any
}

// Create validates and persists a new ledger.
func (s *LedgerService) Create(ctx context.Context, organizationID string, input CreateLedgerInput) (ledger.Ledger, error) {
	l, err := ledger.NewLedger(
		id.New(id.KindLedger), organizationID,
		input.Name, input.Description, input.Currency, input.CurrencyExponent, input.Metadata,
	)
	if err != nil {
		return ledger.Ledger{}, apperr.ValidationErr("invalid ledger", err)
	}

	return s.store.Create(ctx, l)
}

// Get reads a ledger through the cache.
func (s *LedgerService) Get(ctx context.Context, organizationID, ledgerID string) (ledger.Ledger, error) {
	if s.cache != nil {
		if l, ok, err := s.cache.Get(ctx, organizationID, ledgerID); err == nil && ok {
			return l, nil
		} else if err != nil {
			s.logger.Warn("ledger cache read failed", "ledger_id", ledgerID, "error", err)
		}
	}

	l, err := s.store.Get(ctx, organizationID, ledgerID)
	if err != nil {
		return ledger.Ledger{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, l); err != nil {
			s.logger.Warn("ledger cache write failed", "ledger_id", ledgerID, "error", err)
		}
	}
	return l, nil
}

// List returns the organization's ledgers.
func (s *LedgerService) List(ctx context.Context, organizationID string, limit, offset int) ([]ledger.Ledger, error) {
	return s.store.List(ctx, organizationID, normalizeLimit(limit), offset)
}

// UpdateLedgerInput carries the mutable ledger fields; nil means unchanged.
type UpdateLedgerInput struct {
	Name        *string
	Description *string
	Metadata    map[string]any
}

// Update patches the mutable fields and invalidates the cache entry.
// Currency and exponent cannot change.
func (s *LedgerService) Update(ctx context.Context, organizationID, ledgerID string, input UpdateLedgerInput) (ledger.Ledger, error) {
	l, err := s.store.Get(ctx, organizationID, ledgerID)
	if err != nil {
		return ledger.Ledger{}, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return ledger.Ledger{}, apperr.Validation("ledger name cannot be empty")
		}
		l.Name = *input.Name
	}
	if input.Description != nil {
		l.Description = *input.Description
	}
	if input.Metadata != nil {
		l.Metadata = input.Metadata
	}

	updated, err := s.store.Update(ctx, l)
	if err != nil {
		return ledger.Ledger{}, err
	}
	s.invalidate(ctx, organizationID, ledgerID)
	return updated, nil
}

// Delete removes a ledger without dependents.
func (s *LedgerService) Delete(ctx context.Context, organizationID, ledgerID string) error {
	if err := s.store.Delete(ctx, organizationID, ledgerID); err != nil {
		return err
	}
	s.invalidate(ctx, organizationID, ledgerID)
	return nil
}

func (s *LedgerService) invalidate(ctx context.Context, organizationID, ledgerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, organizationID, ledgerID); err != nil {
		s.logger.Warn("ledger cache invalidation failed", "ledger_id", ledgerID, "error", err)
	}
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
