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

// LedgerRepository persists Ledger values.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const ledgerColumns = `id, organization_id, name, description, currency, currency_exponent, metadata, created_at, updated_at`

// Create inserts a ledger. A duplicate id is a terminal conflict.
func (r *LedgerRepository) Create(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	metadataJSON, err := marshalMetadata(l.Metadata)
	if err != nil {
		return ledger.Ledger{}, err
	}

	query := `
		INSERT INTO ledgers (id, organization_id, name, description, currency, currency_exponent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		l.ID,
		l.OrganizationID,
		l.Name,
		l.Description,
		l.Currency,
		l.CurrencyExponent,
		metadataJSON,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return ledger.Ledger{}, translateErr("ledger", err)
	}

	return l, nil
}

// Get retrieves a ledger scoped to its organization.
func (r *LedgerRepository) Get(ctx context.Context, organizationID, id string) (ledger.Ledger, error) {
	query := fmt.Sprintf(`SELECT %s FROM ledgers WHERE organization_id = $1 AND id = $2`, ledgerColumns)

	l, err := scanLedger(r.pool.QueryRow(ctx, query, organizationID, id))
	if err != nil {
		return ledger.Ledger{}, translateErr("ledger", err)
	}
	return l, nil
}

// List returns the organization's ledgers ordered by creation, newest first.
func (r *LedgerRepository) List(ctx context.Context, organizationID string, limit, offset int) ([]ledger.Ledger, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ledgers
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ledgerColumns)

	rows, err := r.pool.Query(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, translateErr("ledger", err)
	}
	defer rows.Close()

	var ledgers []ledger.Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, translateErr("ledger", err)
		}
		ledgers = append(ledgers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("ledger", err)
	}

	return ledgers, nil
}

// Update replaces the mutable fields (name, description, metadata).
// Currency and exponent are immutable and not touched.
func (r *LedgerRepository) Update(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	metadataJSON, err := marshalMetadata(l.Metadata)
	if err != nil {
		return ledger.Ledger{}, err
	}

	query := `
		UPDATE ledgers
		SET name = $3, description = $4, metadata = $5, updated_at = now()
		WHERE organization_id = $1 AND id = $2
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query, l.OrganizationID, l.ID, l.Name, l.Description, metadataJSON).
		Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return ledger.Ledger{}, translateErr("ledger", err)
	}
	return l, nil
}

// Delete removes a ledger. Dependent accounts or transactions block the
// delete through their foreign keys, surfacing as a terminal conflict.
func (r *LedgerRepository) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ledgers WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return translateErr("ledger", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("ledger")
	}
	return nil
}

func scanLedger(row pgx.Row) (ledger.Ledger, error) {
	var l ledger.Ledger
	var metadataJSON []byte

	err := row.Scan(
		&l.ID,
		&l.OrganizationID,
		&l.Name,
		&l.Description,
		&l.Currency,
		&l.CurrencyExponent,
		&metadataJSON,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return ledger.Ledger{}, err
	}

	if err := unmarshalMetadata(metadataJSON, &l.Metadata); err != nil {
		return ledger.Ledger{}, err
	}
	return l, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, apperr.Internal("failed to marshal metadata", err)
	}
	return out, nil
}

func unmarshalMetadata(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}
