package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// StatementRepository persists account statements. Balance snapshots at the
// window boundaries are reconstructed from the entries that existed before
// each boundary, using their current status.
type StatementRepository struct {
	pool *pgxpool.Pool
}

// NewStatementRepository creates a new PostgreSQL statement repository
func NewStatementRepository(pool *pgxpool.Pool) *StatementRepository {
	return &StatementRepository{pool: pool}
}

const statementColumns = `id, organization_id, ledger_id, account_id, start_datetime, end_datetime,
	ledger_account_version, starting_balances, ending_balances, currency, currency_exponent,
	created_at, updated_at`

// Create computes the boundary snapshots and inserts the statement. The
// caller supplies identity, window, currency and the account version
// captured at creation.
func (r *StatementRepository) Create(ctx context.Context, st ledger.AccountStatement, normalBalance ledger.Direction) (ledger.AccountStatement, error) {
	var err error
	st.StartingBalances, err = r.balancesAt(ctx, st.AccountID, st.StartDatetime, normalBalance)
	if err != nil {
		return ledger.AccountStatement{}, err
	}
	st.EndingBalances, err = r.balancesAt(ctx, st.AccountID, st.EndDatetime, normalBalance)
	if err != nil {
		return ledger.AccountStatement{}, err
	}

	startingJSON, err := json.Marshal(st.StartingBalances)
	if err != nil {
		return ledger.AccountStatement{}, apperr.Internal("failed to marshal balances", err)
	}
	endingJSON, err := json.Marshal(st.EndingBalances)
	if err != nil {
		return ledger.AccountStatement{}, apperr.Internal("failed to marshal balances", err)
	}

	query := `
		INSERT INTO statements (id, organization_id, ledger_id, account_id, start_datetime, end_datetime,
			ledger_account_version, starting_balances, ending_balances, currency, currency_exponent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		st.ID, st.OrganizationID, st.LedgerID, st.AccountID,
		st.StartDatetime, st.EndDatetime, st.LedgerAccountVersion,
		startingJSON, endingJSON, st.Currency, st.CurrencyExponent,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return ledger.AccountStatement{}, translateErr("statement", err)
	}

	return st, nil
}

// Get retrieves a statement scoped to its organization.
func (r *StatementRepository) Get(ctx context.Context, organizationID, id string) (ledger.AccountStatement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM statements
		WHERE organization_id = $1 AND id = $2
	`, statementColumns)

	st, err := scanStatement(r.pool.QueryRow(ctx, query, organizationID, id))
	if err != nil {
		return ledger.AccountStatement{}, translateErr("statement", err)
	}
	return st, nil
}

// List returns an account's statements ordered by window start, newest
// first.
func (r *StatementRepository) List(ctx context.Context, organizationID, accountID string, limit, offset int) ([]ledger.AccountStatement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM statements
		WHERE organization_id = $1 AND account_id = $2
		ORDER BY start_datetime DESC
		LIMIT $3 OFFSET $4
	`, statementColumns)

	rows, err := r.pool.Query(ctx, query, organizationID, accountID, limit, offset)
	if err != nil {
		return nil, translateErr("statement", err)
	}
	defer rows.Close()

	var statements []ledger.AccountStatement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, translateErr("statement", err)
		}
		statements = append(statements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("statement", err)
	}

	return statements, nil
}

// balancesAt reconstructs the account's balance snapshot as of a boundary
// from the per-side sums of its live entries created before it.
func (r *StatementRepository) balancesAt(ctx context.Context, accountID string, at time.Time, normalBalance ledger.Direction) (ledger.Balances, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending' AND direction = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending' AND direction = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'posted' AND direction = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'posted' AND direction = 'credit'), 0)
		FROM entries
		WHERE account_id = $1 AND created_at < $2
	`

	var pendingDebits, pendingCredits, postedDebits, postedCredits int64
	err := r.pool.QueryRow(ctx, query, accountID, at).
		Scan(&pendingDebits, &pendingCredits, &postedDebits, &postedCredits)
	if err != nil {
		return ledger.Balances{}, translateErr("statement", err)
	}

	return buildBalances(normalBalance, pendingDebits, pendingCredits, postedDebits, postedCredits), nil
}

// buildBalances derives the full snapshot from the four side sums. Posted
// entries are fully available; pending entries on the outgoing side hold
// available funds, pending incoming contributes nothing yet.
func buildBalances(normal ledger.Direction, pendingDebits, pendingCredits, postedDebits, postedCredits int64) ledger.Balances {
	b := ledger.Balances{
		PendingDebits:  pendingDebits,
		PendingCredits: pendingCredits,
		PostedDebits:   postedDebits,
		PostedCredits:  postedCredits,
	}

	if normal == ledger.Debit {
		b.PendingAmount = pendingDebits - pendingCredits
		b.PostedAmount = postedDebits - postedCredits
		b.AvailableAmount = b.PostedAmount - pendingCredits
		b.AvailableDebits = postedDebits
		b.AvailableCredits = postedCredits + pendingCredits
	} else {
		b.PendingAmount = pendingCredits - pendingDebits
		b.PostedAmount = postedCredits - postedDebits
		b.AvailableAmount = b.PostedAmount - pendingDebits
		b.AvailableCredits = postedCredits
		b.AvailableDebits = postedDebits + pendingDebits
	}
	return b
}

func scanStatement(row pgx.Row) (ledger.AccountStatement, error) {
	var st ledger.AccountStatement
	var startingJSON, endingJSON []byte

	err := row.Scan(
		&st.ID,
		&st.OrganizationID,
		&st.LedgerID,
		&st.AccountID,
		&st.StartDatetime,
		&st.EndDatetime,
		&st.LedgerAccountVersion,
		&startingJSON,
		&endingJSON,
		&st.Currency,
		&st.CurrencyExponent,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return ledger.AccountStatement{}, err
	}

	if err := json.Unmarshal(startingJSON, &st.StartingBalances); err != nil {
		return ledger.AccountStatement{}, fmt.Errorf("failed to unmarshal starting balances: %w", err)
	}
	if err := json.Unmarshal(endingJSON, &st.EndingBalances); err != nil {
		return ledger.AccountStatement{}, fmt.Errorf("failed to unmarshal ending balances: %w", err)
	}
	return st, nil
}
