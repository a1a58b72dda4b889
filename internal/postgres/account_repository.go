package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// AccountRepository persists Account values. Balance and lock-version
// columns are written exclusively by the transaction engine.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, organization_id, ledger_id, name, description, normal_balance,
	pending_amount, posted_amount, available_amount,
	pending_credits, pending_debits, posted_credits, posted_debits,
	available_credits, available_debits,
	lock_version, metadata, created_at, updated_at`

// Create inserts an account with zero balances and lock version 0.
func (r *AccountRepository) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	metadataJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return ledger.Account{}, err
	}

	query := `
		INSERT INTO accounts (id, organization_id, ledger_id, name, description, normal_balance, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		a.ID,
		a.OrganizationID,
		a.LedgerID,
		a.Name,
		a.Description,
		string(a.NormalBalance),
		metadataJSON,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, translateErr("account", err)
	}

	return a, nil
}

// Get retrieves an account scoped to its organization and ledger.
func (r *AccountRepository) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3
	`, accountColumns)

	a, err := scanAccount(r.pool.QueryRow(ctx, query, organizationID, ledgerID, id))
	if err != nil {
		return ledger.Account{}, translateErr("account", err)
	}
	return a, nil
}

// List returns the ledger's accounts ordered by creation, newest first.
func (r *AccountRepository) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts
		WHERE organization_id = $1 AND ledger_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, accountColumns)

	rows, err := r.pool.Query(ctx, query, organizationID, ledgerID, limit, offset)
	if err != nil {
		return nil, translateErr("account", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, translateErr("account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("account", err)
	}

	return accounts, nil
}

// Update replaces the mutable fields (name, description, metadata). The
// balance columns and lock version belong to the engine and are not touched.
func (r *AccountRepository) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	metadataJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return ledger.Account{}, err
	}

	query := `
		UPDATE accounts
		SET name = $4, description = $5, metadata = $6, updated_at = now()
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query, a.OrganizationID, a.LedgerID, a.ID, a.Name, a.Description, metadataJSON).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, translateErr("account", err)
	}
	return a, nil
}

// Delete removes an account. The delete is guarded in SQL: it refuses when
// any entry references the account, regardless of entry status.
func (r *AccountRepository) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	query := `
		DELETE FROM accounts a
		WHERE a.organization_id = $1 AND a.ledger_id = $2 AND a.id = $3
		  AND NOT EXISTS (SELECT 1 FROM entries e WHERE e.account_id = a.id)
	`

	tag, err := r.pool.Exec(ctx, query, organizationID, ledgerID, id)
	if err != nil {
		return translateErr("account", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish absent from referenced.
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE organization_id = $1 AND ledger_id = $2 AND id = $3)`,
			organizationID, ledgerID, id,
		).Scan(&exists)
		if err != nil {
			return translateErr("account", err)
		}
		if exists {
			return apperr.Conflict("account has entries and cannot be deleted", false)
		}
		return apperr.NotFound("account")
	}
	return nil
}

// getAccountsForUpdate is the engine's Phase 1 read: a plain non-locking
// batch select of every account a transaction touches.
func getAccountsForUpdate(ctx context.Context, q querier, organizationID, ledgerID string, ids []string) (map[string]ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM accounts
		WHERE organization_id = $1 AND ledger_id = $2 AND id = ANY($3)
	`, accountColumns)

	rows, err := q.Query(ctx, query, organizationID, ledgerID, ids)
	if err != nil {
		return nil, translateErr("account", err)
	}
	defer rows.Close()

	accounts := make(map[string]ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, translateErr("account", err)
		}
		accounts[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("account", err)
	}

	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, apperr.NotFound("account").WithContext("accountId", id)
		}
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var metadataJSON []byte

	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.LedgerID,
		&a.Name,
		&a.Description,
		&a.NormalBalance,
		&a.Balances.PendingAmount,
		&a.Balances.PostedAmount,
		&a.Balances.AvailableAmount,
		&a.Balances.PendingCredits,
		&a.Balances.PendingDebits,
		&a.Balances.PostedCredits,
		&a.Balances.PostedDebits,
		&a.Balances.AvailableCredits,
		&a.Balances.AvailableDebits,
		&a.LockVersion,
		&metadataJSON,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return ledger.Account{}, err
	}

	if err := unmarshalMetadata(metadataJSON, &a.Metadata); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}
