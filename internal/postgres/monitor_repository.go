package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// MonitorRepository persists balance monitors. Monitor updates use the same
// lock-version scheme as accounts: read, modify, write guarded on the
// version that was read.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new PostgreSQL monitor repository
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

const monitorColumns = `id, organization_id, account_id, alert_conditions, description, metadata, lock_version, created_at, updated_at`

// Create inserts a monitor with lock version 0.
func (r *MonitorRepository) Create(ctx context.Context, m ledger.BalanceMonitor) (ledger.BalanceMonitor, error) {
	conditionsJSON, err := json.Marshal(m.AlertConditions)
	if err != nil {
		return ledger.BalanceMonitor{}, apperr.Internal("failed to marshal alert conditions", err)
	}
	metadataJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return ledger.BalanceMonitor{}, err
	}

	query := `
		INSERT INTO monitors (id, organization_id, account_id, alert_conditions, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		m.ID, m.OrganizationID, m.AccountID, conditionsJSON, m.Description, metadataJSON,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return ledger.BalanceMonitor{}, translateErr("monitor", err)
	}

	return m, nil
}

// Get retrieves a monitor scoped to its organization.
func (r *MonitorRepository) Get(ctx context.Context, organizationID, id string) (ledger.BalanceMonitor, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM monitors
		WHERE organization_id = $1 AND id = $2
	`, monitorColumns)

	m, err := scanMonitor(r.pool.QueryRow(ctx, query, organizationID, id))
	if err != nil {
		return ledger.BalanceMonitor{}, translateErr("monitor", err)
	}
	return m, nil
}

// List returns the monitors watching accounts of one ledger, newest first.
func (r *MonitorRepository) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.BalanceMonitor, error) {
	query := fmt.Sprintf(`
		SELECT m.%s FROM monitors m
		JOIN accounts a ON a.id = m.account_id
		WHERE m.organization_id = $1 AND a.ledger_id = $2
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4
	`, monitorColumnsQualified)

	rows, err := r.pool.Query(ctx, query, organizationID, ledgerID, limit, offset)
	if err != nil {
		return nil, translateErr("monitor", err)
	}
	defer rows.Close()

	var monitors []ledger.BalanceMonitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, translateErr("monitor", err)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("monitor", err)
	}

	return monitors, nil
}

const monitorColumnsQualified = `id, m.organization_id, m.account_id, m.alert_conditions, m.description, m.metadata, m.lock_version, m.created_at, m.updated_at`

// Update writes conditions, description and metadata guarded on the lock
// version read by the caller. Zero rows is a retryable conflict.
func (r *MonitorRepository) Update(ctx context.Context, m ledger.BalanceMonitor) (ledger.BalanceMonitor, error) {
	conditionsJSON, err := json.Marshal(m.AlertConditions)
	if err != nil {
		return ledger.BalanceMonitor{}, apperr.Internal("failed to marshal alert conditions", err)
	}
	metadataJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return ledger.BalanceMonitor{}, err
	}

	query := `
		UPDATE monitors
		SET alert_conditions = $3, description = $4, metadata = $5,
			lock_version = lock_version + 1, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND lock_version = $6
		RETURNING lock_version, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		m.OrganizationID, m.ID, conditionsJSON, m.Description, metadataJSON, m.LockVersion,
	).Scan(&m.LockVersion, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ledger.BalanceMonitor{}, apperr.Conflict("monitor version changed concurrently", true)
		}
		return ledger.BalanceMonitor{}, translateErr("monitor", err)
	}
	return m, nil
}

// Delete removes a monitor.
func (r *MonitorRepository) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM monitors WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return translateErr("monitor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("monitor")
	}
	return nil
}

func scanMonitor(row pgx.Row) (ledger.BalanceMonitor, error) {
	var m ledger.BalanceMonitor
	var conditionsJSON, metadataJSON []byte

	err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.AccountID,
		&conditionsJSON,
		&m.Description,
		&metadataJSON,
		&m.LockVersion,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return ledger.BalanceMonitor{}, err
	}

	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &m.AlertConditions); err != nil {
			return ledger.BalanceMonitor{}, fmt.Errorf("failed to unmarshal alert conditions: %w", err)
		}
	}
	if err := unmarshalMetadata(metadataJSON, &m.Metadata); err != nil {
		return ledger.BalanceMonitor{}, err
	}
	return m, nil
}
