package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

// SettlementRepository persists settlements and their entry attachments.
// Attachment eligibility is enforced in SQL so a concurrent status change
// or a second settlement claiming the same entry loses cleanly.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new PostgreSQL settlement repository
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

const settlementColumns = `id, organization_id, ledger_id, transaction_id, settled_account_id, contra_account_id,
	amount, normal_balance, currency, currency_exponent, status, description, external_reference,
	effective_at_upper_bound, metadata, created_at, updated_at`

// Create inserts a settlement in drafting status.
func (r *SettlementRepository) Create(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error) {
	metadataJSON, err := marshalMetadata(s.Metadata)
	if err != nil {
		return ledger.Settlement{}, err
	}

	query := `
		INSERT INTO settlements (id, organization_id, ledger_id, settled_account_id, contra_account_id,
			amount, normal_balance, currency, currency_exponent, status, description, external_reference,
			effective_at_upper_bound, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		s.ID, s.OrganizationID, s.LedgerID, s.SettledAccountID, s.ContraAccountID,
		s.Amount, string(s.NormalBalance), s.Currency, s.CurrencyExponent,
		string(s.Status), s.Description, nullable(s.ExternalReference),
		s.EffectiveAtUpperBound, metadataJSON,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return ledger.Settlement{}, translateErr("settlement", err)
	}

	return s, nil
}

// Get retrieves a settlement with its attached entry ids.
func (r *SettlementRepository) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Settlement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM settlements
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3
	`, settlementColumns)

	s, err := scanSettlement(r.pool.QueryRow(ctx, query, organizationID, ledgerID, id))
	if err != nil {
		return ledger.Settlement{}, translateErr("settlement", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT entry_id FROM settlement_entries WHERE settlement_id = $1 ORDER BY created_at ASC, entry_id ASC`, id)
	if err != nil {
		return ledger.Settlement{}, translateErr("settlement", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID string
		if err := rows.Scan(&entryID); err != nil {
			return ledger.Settlement{}, translateErr("settlement", err)
		}
		s.AttachedEntryIDs = append(s.AttachedEntryIDs, entryID)
	}
	if err := rows.Err(); err != nil {
		return ledger.Settlement{}, translateErr("settlement", err)
	}

	return s, nil
}

// List returns the ledger's settlements, newest first, without attachments.
func (r *SettlementRepository) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Settlement, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM settlements
		WHERE organization_id = $1 AND ledger_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, settlementColumns)

	rows, err := r.pool.Query(ctx, query, organizationID, ledgerID, limit, offset)
	if err != nil {
		return nil, translateErr("settlement", err)
	}
	defer rows.Close()

	var settlements []ledger.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, translateErr("settlement", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("settlement", err)
	}

	return settlements, nil
}

// AddEntries attaches entries to a drafting settlement. Eligibility lives
// in the insert itself: the settlement must still be drafting, each entry
// must be posted on the settled account, fall under the effective-at upper
// bound when one is set, and not be claimed by another live settlement.
// Archived settlements release their entries for re-settlement. An entry
// failing any of those simply does not attach, and the mismatch is
// reported as a terminal conflict.
func (r *SettlementRepository) AddEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO settlement_entries (settlement_id, entry_id)
		SELECT s.id, e.id
		FROM settlements s
		JOIN entries e ON e.id = ANY($4)
		WHERE s.organization_id = $1 AND s.ledger_id = $2 AND s.id = $3
		  AND s.status = 'drafting'
		  AND e.account_id = s.settled_account_id
		  AND e.status = 'posted'
		  AND (s.effective_at_upper_bound IS NULL OR EXISTS (
			SELECT 1 FROM transactions t
			WHERE t.id = e.transaction_id AND t.effective_at <= s.effective_at_upper_bound))
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_entries x
			JOIN settlements sx ON sx.id = x.settlement_id
			WHERE x.entry_id = e.id AND sx.status <> 'archived')
	`

	tag, err := r.pool.Exec(ctx, query, organizationID, ledgerID, id, entryIDs)
	if err != nil {
		return translateErr("settlement", err)
	}
	if int(tag.RowsAffected()) != len(entryIDs) {
		return r.attachFailure(ctx, organizationID, ledgerID, id)
	}
	return nil
}

// RemoveEntries detaches entries from a drafting settlement.
func (r *SettlementRepository) RemoveEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	query := `
		DELETE FROM settlement_entries se
		USING settlements s
		WHERE se.settlement_id = s.id
		  AND s.organization_id = $1 AND s.ledger_id = $2 AND s.id = $3
		  AND s.status = 'drafting'
		  AND se.entry_id = ANY($4)
	`

	tag, err := r.pool.Exec(ctx, query, organizationID, ledgerID, id, entryIDs)
	if err != nil {
		return translateErr("settlement", err)
	}
	if int(tag.RowsAffected()) != len(entryIDs) {
		return r.attachFailure(ctx, organizationID, ledgerID, id)
	}
	return nil
}

// attachFailure classifies a partial attach/detach: absent settlement,
// settlement past drafting, or ineligible entries.
func (r *SettlementRepository) attachFailure(ctx context.Context, organizationID, ledgerID, id string) error {
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM settlements WHERE organization_id = $1 AND ledger_id = $2 AND id = $3`,
		organizationID, ledgerID, id,
	).Scan(&status)
	if err != nil {
		return translateErr("settlement", err)
	}
	if ledger.SettlementStatus(status) != ledger.SettlementDrafting {
		return apperr.Conflict("settlement is no longer drafting", false)
	}
	return apperr.Conflict("one or more entries are not eligible for settlement", false)
}

// NetAmount sums the attached entries on the settlement's normal-balance
// side minus the opposite side.
func (r *SettlementRepository) NetAmount(ctx context.Context, id string, normalBalance ledger.Direction) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN e.direction = $2 THEN e.amount ELSE -e.amount END), 0)
		FROM settlement_entries se
		JOIN entries e ON e.id = se.entry_id
		WHERE se.settlement_id = $1
	`

	var net int64
	if err := r.pool.QueryRow(ctx, query, id, string(normalBalance)).Scan(&net); err != nil {
		return 0, translateErr("settlement", err)
	}
	return net, nil
}

// UpdateStatus moves a settlement between statuses with an optimistic
// current-status guard; zero rows means the status changed underneath.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, organizationID, ledgerID, id string, from, to ledger.SettlementStatus) error {
	query := `
		UPDATE settlements SET status = $4, updated_at = now()
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = $5
	`

	tag, err := r.pool.Exec(ctx, query, organizationID, ledgerID, id, string(to), string(from))
	if err != nil {
		return translateErr("settlement", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("settlement status changed concurrently", false)
	}
	return nil
}

// MarkProcessing atomically leaves drafting, recording the balancing
// transaction and the settled net amount.
func (r *SettlementRepository) MarkProcessing(ctx context.Context, organizationID, ledgerID, id, transactionID string, amount int64) error {
	query := `
		UPDATE settlements
		SET status = $4, transaction_id = $5, amount = $6, updated_at = now()
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = $7
	`

	tag, err := r.pool.Exec(ctx, query, organizationID, ledgerID, id,
		string(ledger.SettlementProcessing), transactionID, amount, string(ledger.SettlementDrafting))
	if err != nil {
		return translateErr("settlement", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("settlement status changed concurrently", false)
	}
	return nil
}

// Update replaces the mutable fields while the settlement drafts.
func (r *SettlementRepository) Update(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error) {
	metadataJSON, err := marshalMetadata(s.Metadata)
	if err != nil {
		return ledger.Settlement{}, err
	}

	query := `
		UPDATE settlements
		SET description = $4, external_reference = $5, effective_at_upper_bound = $6,
			metadata = $7, updated_at = now()
		WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = 'drafting'
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query, s.OrganizationID, s.LedgerID, s.ID,
		s.Description, nullable(s.ExternalReference), s.EffectiveAtUpperBound, metadataJSON).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ledger.Settlement{}, r.attachFailure(ctx, s.OrganizationID, s.LedgerID, s.ID)
		}
		return ledger.Settlement{}, translateErr("settlement", err)
	}
	return s, nil
}

// Delete removes a drafting settlement; attachments cascade.
func (r *SettlementRepository) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM settlements WHERE organization_id = $1 AND ledger_id = $2 AND id = $3 AND status = 'drafting'`,
		organizationID, ledgerID, id)
	if err != nil {
		return translateErr("settlement", err)
	}
	if tag.RowsAffected() == 0 {
		return r.attachFailure(ctx, organizationID, ledgerID, id)
	}
	return nil
}

func scanSettlement(row pgx.Row) (ledger.Settlement, error) {
	var s ledger.Settlement
	var transactionID, externalReference *string
	var metadataJSON []byte

	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.LedgerID,
		&transactionID,
		&s.SettledAccountID,
		&s.ContraAccountID,
		&s.Amount,
		&s.NormalBalance,
		&s.Currency,
		&s.CurrencyExponent,
		&s.Status,
		&s.Description,
		&externalReference,
		&s.EffectiveAtUpperBound,
		&metadataJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return ledger.Settlement{}, err
	}

	if transactionID != nil {
		s.TransactionID = *transactionID
	}
	if externalReference != nil {
		s.ExternalReference = *externalReference
	}
	if err := unmarshalMetadata(metadataJSON, &s.Metadata); err != nil {
		return ledger.Settlement{}, err
	}
	return s, nil
}
