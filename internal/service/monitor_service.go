package service

import (
	"context"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// MonitorStore is the persistence port of the monitor service. Update is
// guarded on the monitor's lock version and may fail with a retryable
// conflict.
type MonitorStore interface {
	Create(ctx context.Context, m ledger.BalanceMonitor) (ledger.BalanceMonitor, error)
	Get(ctx context.Context, organizationID, id string) (ledger.BalanceMonitor, error)
	List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.BalanceMonitor, error)
	Update(ctx context.Context, m ledger.BalanceMonitor) (ledger.BalanceMonitor, error)
	Delete(ctx context.Context, organizationID, id string) error
}

// MonitorService manages balance monitors and evaluates their conditions
// against live account balances.
type MonitorService struct {
	store    MonitorStore
	accounts *AccountService
	logger   *logger.Logger
}

// NewMonitorService creates a monitor service.
func NewMonitorService(store MonitorStore, accounts *AccountService, log *logger.Logger) *MonitorService {
	return &MonitorService{
		store:    store,
		accounts: accounts,
		logger:   log.WithField("service", "monitor"),
	}
}

// CreateMonitorInput carries the client-settable monitor fields.
type CreateMonitorInput struct {
	AccountID       string
	Description     string
	AlertConditions []ledger.AlertCondition
	Metadata        map[string]any
}

// Create validates the watched account and persists a new monitor.
func (s *MonitorService) Create(ctx context.Context, organizationID, ledgerID string, input CreateMonitorInput) (ledger.BalanceMonitor, error) {
	if _, err := s.accounts.Get(ctx, organizationID, ledgerID, input.AccountID); err != nil {
		return ledger.BalanceMonitor{}, err
	}

	m, err := ledger.NewBalanceMonitor(
		id.New(id.KindBalanceMonitor), organizationID, input.AccountID,
		input.Description, input.AlertConditions, input.Metadata,
	)
	if err != nil {
		return ledger.BalanceMonitor{}, apperr.ValidationErr("invalid monitor", err)
	}

	return s.store.Create(ctx, m)
}

// Get retrieves a monitor.
func (s *MonitorService) Get(ctx context.Context, organizationID, monitorID string) (ledger.BalanceMonitor, error) {
	return s.store.Get(ctx, organizationID, monitorID)
}

// List returns the monitors watching the ledger's accounts.
func (s *MonitorService) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.BalanceMonitor, error) {
	return s.store.List(ctx, organizationID, ledgerID, normalizeLimit(limit), offset)
}

// UpdateMonitorInput carries the mutable monitor fields; nil means
// unchanged.
type UpdateMonitorInput struct {
	Description     *string
	AlertConditions []ledger.AlertCondition
	Metadata        map[string]any
}

// Update patches a monitor under the optimistic lock-version scheme,
// retrying the read-modify-write cycle on version conflicts.
func (s *MonitorService) Update(ctx context.Context, organizationID, monitorID string, input UpdateMonitorInput) (ledger.BalanceMonitor, error) {
	if input.AlertConditions != nil {
		if len(input.AlertConditions) == 0 {
			return ledger.BalanceMonitor{}, apperr.Validation("monitor requires at least one alert condition")
		}
		for _, c := range input.AlertConditions {
			if err := c.Validate(); err != nil {
				return ledger.BalanceMonitor{}, apperr.ValidationErr("invalid alert condition", err)
			}
		}
	}

	return withRetry(ctx, func(ctx context.Context) (ledger.BalanceMonitor, error) {
		m, err := s.store.Get(ctx, organizationID, monitorID)
		if err != nil {
			return ledger.BalanceMonitor{}, err
		}

		if input.Description != nil {
			m.Description = *input.Description
		}
		if input.AlertConditions != nil {
			m.AlertConditions = input.AlertConditions
		}
		if input.Metadata != nil {
			m.Metadata = input.Metadata
		}

		return s.store.Update(ctx, m)
	})
}

// Delete removes a monitor.
func (s *MonitorService) Delete(ctx context.Context, organizationID, monitorID string) error {
	return s.store.Delete(ctx, organizationID, monitorID)
}

// ConditionResult pairs one alert condition with its outcome against the
// account's live balances.
type ConditionResult struct {
	Condition ledger.AlertCondition `json:"condition"`
	Met       bool                  `json:"met"`
}

// Evaluate applies the monitor's conditions to the watched account's
// current state.
func (s *MonitorService) Evaluate(ctx context.Context, organizationID, ledgerID, monitorID string) ([]ConditionResult, error) {
	m, err := s.store.Get(ctx, organizationID, monitorID)
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.Get(ctx, organizationID, ledgerID, m.AccountID)
	if err != nil {
		return nil, err
	}

	outcomes := m.Evaluate(a)
	results := make([]ConditionResult, len(outcomes))
	for i, met := range outcomes {
		results[i] = ConditionResult{Condition: m.AlertConditions[i], Met: met}
	}
	return results, nil
}
