package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the read helpers need.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionRepository persists transactions and entries and carries the
// optimistic write protocol for account balances.
//
// Every mutation runs in three phases: a non-locking read of the touched
// accounts, an in-memory fold producing the new balance values, and one
// database transaction writing rows plus per-account updates guarded by
// the lock version read in phase one. A guarded update matching zero rows
// means another writer got there first; the caller retries from phase one.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, organization_id, ledger_id, description, status, idempotency_key, effective_at, metadata, created_at, updated_at`

const entryColumns = `id, organization_id, transaction_id, account_id, direction, amount, currency, currency_exponent, status, created_at, updated_at`

const updateAccountBalancesQuery = `
	UPDATE accounts SET
		pending_amount = $3, posted_amount = $4, available_amount = $5,
		pending_credits = $6, pending_debits = $7,
		posted_credits = $8, posted_debits = $9,
		available_credits = $10, available_debits = $11,
		lock_version = lock_version + 1,
		updated_at = now()
	WHERE id = $1 AND lock_version = $2
`

// Create writes a balanced transaction and moves every touched account's
// balances in one database transaction. The entry writes and account
// updates are pipelined through a single batch so distinct rows never
// serialize behind each other.
//
// A replayed id resolves by returning the stored transaction unchanged
// rather than overwriting mutable fields; overwriting on replay would
// re-fold balances for a write that already landed.
func (r *TransactionRepository) Create(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	ids := txn.AccountIDs()

	// Phase 1: non-locking read of current account state.
	accounts, err := getAccountsForUpdate(ctx, r.pool, txn.OrganizationID, txn.LedgerID, ids)
	if err != nil {
		return ledger.Transaction{}, err
	}

	// Phase 2: fold the entries into new account values in memory.
	updated := make(map[string]ledger.Account, len(accounts))
	for _, e := range txn.Entries {
		a := accounts[e.AccountID]
		if prev, ok := updated[e.AccountID]; ok {
			a = prev
		}
		next, err := a.ApplyEntry(e)
		if err != nil {
			return ledger.Transaction{}, apperr.ValidationErr("entry cannot be applied", err)
		}
		updated[e.AccountID] = next
	}

	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	for i := range txn.Entries {
		txn.Entries[i].CreatedAt = now
		txn.Entries[i].UpdatedAt = now
	}

	// Phase 3: one database transaction, guarded by the versions from
	// phase 1.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	// Idempotent on id: a replayed create with the same id inserts nothing
	// and must not re-apply balances.
	batch.Queue(fmt.Sprintf(`
		INSERT INTO transactions (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, transactionColumns),
		txn.ID, txn.OrganizationID, txn.LedgerID, txn.Description, string(txn.Status),
		nullable(txn.IdempotencyKey), txn.EffectiveAt, mustMetadata(txn.Metadata),
		txn.CreatedAt, txn.UpdatedAt,
	)
	for _, e := range txn.Entries {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO entries (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, entryColumns),
			e.ID, e.OrganizationID, e.TransactionID, e.AccountID, string(e.Direction),
			e.Amount, e.Currency, e.CurrencyExponent, string(e.Status),
			e.CreatedAt, e.UpdatedAt,
		)
	}
	accountUpdates := queueAccountUpdates(batch, accounts, updated, ids)

	br := tx.SendBatch(ctx, batch)
	tag, err := br.Exec()
	if err != nil {
		br.Close()
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	if tag.RowsAffected() == 0 {
		// The id already exists: drop everything queued behind the
		// insert and hand back the stored transaction.
		br.Close()
		if err := tx.Rollback(ctx); err != nil {
			return ledger.Transaction{}, translateErr("transaction", err)
		}
		return r.Get(ctx, txn.OrganizationID, txn.LedgerID, txn.ID)
	}
	for range txn.Entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return ledger.Transaction{}, translateErr("entry", err)
		}
	}
	if err := checkAccountUpdateResults(br, accountUpdates); err != nil {
		br.Close()
		return ledger.Transaction{}, err
	}
	if err := br.Close(); err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	return txn, nil
}

// Post moves a pending transaction and its entries to posted, releasing the
// pending holds into posted balances under the same protocol as Create.
func (r *TransactionRepository) Post(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	return r.transition(ctx, organizationID, ledgerID, id, ledger.StatusPosted)
}

// Archive reverses a pending or posted transaction's balance effects and
// moves it, with its entries, to the terminal archived status.
func (r *TransactionRepository) Archive(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	return r.transition(ctx, organizationID, ledgerID, id, ledger.StatusArchived)
}

func (r *TransactionRepository) transition(ctx context.Context, organizationID, ledgerID, id string, target ledger.TransactionStatus) (ledger.Transaction, error) {
	txn, err := r.Get(ctx, organizationID, ledgerID, id)
	if err != nil {
		return ledger.Transaction{}, err
	}

	moved, err := txn.WithStatus(target)
	if err != nil {
		return ledger.Transaction{}, apperr.Conflict(
			fmt.Sprintf("transaction cannot move from %s to %s", txn.Status, target), false)
	}

	// Phase 1.
	ids := txn.AccountIDs()
	accounts, err := getAccountsForUpdate(ctx, r.pool, organizationID, ledgerID, ids)
	if err != nil {
		return ledger.Transaction{}, err
	}

	// Phase 2: posting moves pending holds into posted balances; archiving
	// unwinds whatever the entries currently contribute.
	updated := make(map[string]ledger.Account, len(accounts))
	for _, e := range txn.Entries {
		a := accounts[e.AccountID]
		if prev, ok := updated[e.AccountID]; ok {
			a = prev
		}
		var next ledger.Account
		if target == ledger.StatusPosted {
			next, err = a.PostEntry(e)
		} else {
			next, err = a.ReverseEntry(e)
		}
		if err != nil {
			return ledger.Transaction{}, apperr.Conflict("entry state does not permit the transition", false)
		}
		updated[e.AccountID] = next
	}

	// Phase 3. The transaction row update is guarded on the status read in
	// phase 1 so a concurrent transition loses cleanly.
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE transactions SET status = $4, updated_at = now()
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = $5
	`, organizationID, ledgerID, id, string(target), string(txn.Status))
	batch.Queue(`
		UPDATE entries SET status = $2, updated_at = now()
		WHERE transaction_id = $1
	`, id, string(target))
	accountUpdates := queueAccountUpdates(batch, accounts, updated, ids)

	br := tx.SendBatch(ctx, batch)
	tag, err := br.Exec()
	if err != nil {
		br.Close()
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	if tag.RowsAffected() == 0 {
		br.Close()
		return ledger.Transaction{}, apperr.Conflict("transaction status changed concurrently", false)
	}
	if _, err := br.Exec(); err != nil {
		br.Close()
		return ledger.Transaction{}, translateErr("entry", err)
	}
	if err := checkAccountUpdateResults(br, accountUpdates); err != nil {
		br.Close()
		return ledger.Transaction{}, err
	}
	if err := br.Close(); err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}
	return moved, nil
}

// Delete hard-removes a transaction and its entries, unwinding any balance
// effects first. The service layer gates this behind the test-mode flag
// for posted transactions.
func (r *TransactionRepository) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	txn, err := r.Get(ctx, organizationID, ledgerID, id)
	if err != nil {
		return err
	}

	ids := txn.AccountIDs()
	accounts, err := getAccountsForUpdate(ctx, r.pool, organizationID, ledgerID, ids)
	if err != nil {
		return err
	}

	// Archived entries were reversed when the transaction was archived and
	// contribute nothing; only live entries need unwinding.
	updated := make(map[string]ledger.Account, len(accounts))
	if txn.Status != ledger.StatusArchived {
		for _, e := range txn.Entries {
			a := accounts[e.AccountID]
			if prev, ok := updated[e.AccountID]; ok {
				a = prev
			}
			next, err := a.ReverseEntry(e)
			if err != nil {
				return apperr.Conflict("entry state does not permit deletion", false)
			}
			updated[e.AccountID] = next
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return translateErr("transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`
		DELETE FROM transactions
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = $4
	`, organizationID, ledgerID, id, string(txn.Status))
	var accountUpdates []accountUpdate
	if txn.Status != ledger.StatusArchived {
		accountUpdates = queueAccountUpdates(batch, accounts, updated, ids)
	}

	br := tx.SendBatch(ctx, batch)
	tag, err := br.Exec()
	if err != nil {
		br.Close()
		return translateErr("transaction", err)
	}
	if tag.RowsAffected() == 0 {
		br.Close()
		return apperr.Conflict("transaction status changed concurrently", false)
	}
	if err := checkAccountUpdateResults(br, accountUpdates); err != nil {
		br.Close()
		return err
	}
	if err := br.Close(); err != nil {
		return translateErr("transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateErr("transaction", err)
	}
	return nil
}

// Get retrieves a transaction with its entries.
func (r *TransactionRepository) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3
	`, transactionColumns)

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, organizationID, ledgerID, id))
	if err != nil {
		return ledger.Transaction{}, translateErr("transaction", err)
	}

	entries, err := r.entriesByTransaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	txn.Entries = entries
	return txn, nil
}

// List returns transactions without their entries, newest first. A nil
// status matches every status.
func (r *TransactionRepository) List(ctx context.Context, organizationID, ledgerID string, status *ledger.TransactionStatus, limit, offset int) ([]ledger.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE organization_id = $1 AND ledger_id = $2
	`, transactionColumns)

	args := []any{organizationID, ledgerID}
	if status != nil {
		args = append(args, string(*status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateErr("transaction", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, translateErr("transaction", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("transaction", err)
	}

	return txns, nil
}

func (r *TransactionRepository) entriesByTransaction(ctx context.Context, transactionID string) ([]ledger.Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM entries
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC
	`, entryColumns)

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, translateErr("entry", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, translateErr("entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("entry", err)
	}

	return entries, nil
}

// accountUpdate remembers which account a queued guarded update belongs to
// so a zero-row result can name it.
type accountUpdate struct {
	accountID string
}

func queueAccountUpdates(batch *pgx.Batch, read, updated map[string]ledger.Account, order []string) []accountUpdate {
	queued := make([]accountUpdate, 0, len(updated))
	seen := make(map[string]struct{}, len(updated))
	for _, id := range order {
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}

		next := updated[id]
		b := next.Balances
		batch.Queue(updateAccountBalancesQuery,
			id, read[id].LockVersion,
			b.PendingAmount, b.PostedAmount, b.AvailableAmount,
			b.PendingCredits, b.PendingDebits,
			b.PostedCredits, b.PostedDebits,
			b.AvailableCredits, b.AvailableDebits,
		)
		queued = append(queued, accountUpdate{accountID: id})
	}
	return queued
}

// checkAccountUpdateResults interprets each guarded update's row count:
// zero rows means the version moved underneath us (retryable conflict),
// one row is success, and more than one row means the guard itself is
// broken and nothing should be committed.
func checkAccountUpdateResults(br pgx.BatchResults, updates []accountUpdate) error {
	for _, u := range updates {
		tag, err := br.Exec()
		if err != nil {
			return translateErr("account", err)
		}
		switch n := tag.RowsAffected(); {
		case n == 0:
			return apperr.Conflict("account version changed concurrently", true).
				WithContext("accountId", u.accountID)
		case n > 1:
			return apperr.Conflict("account update affected multiple rows", false).
				WithContext("accountId", u.accountID)
		}
	}
	return nil
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var txn ledger.Transaction
	var idempotencyKey *string
	var metadataJSON []byte

	err := row.Scan(
		&txn.ID,
		&txn.OrganizationID,
		&txn.LedgerID,
		&txn.Description,
		&txn.Status,
		&idempotencyKey,
		&txn.EffectiveAt,
		&metadataJSON,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if idempotencyKey != nil {
		txn.IdempotencyKey = *idempotencyKey
	}
	if err := unmarshalMetadata(metadataJSON, &txn.Metadata); err != nil {
		return ledger.Transaction{}, err
	}
	return txn, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry

	err := row.Scan(
		&e.ID,
		&e.OrganizationID,
		&e.TransactionID,
		&e.AccountID,
		&e.Direction,
		&e.Amount,
		&e.Currency,
		&e.CurrencyExponent,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// nullable maps the empty string onto SQL NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mustMetadata marshals metadata for inserts queued into a batch, where the
// marshal error path was already exercised by the caller's validation.
func mustMetadata(m map[string]any) []byte {
	out, err := marshalMetadata(m)
	if err != nil {
		return []byte(`{}`)
	}
	return out
}
