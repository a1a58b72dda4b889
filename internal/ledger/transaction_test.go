package ledger_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
)

func entryPair(t *testing.T, debitAmount, creditAmount int64) []ledger.Entry {
	t.Helper()
	d, err := ledger.NewEntry("lte_a", "lac_a", ledger.Debit, debitAmount, "USD", 2)
	require.NoError(t, err)
	c, err := ledger.NewEntry("lte_b", "lac_b", ledger.Credit, creditAmount, "USD", 2)
	require.NoError(t, err)
	return []ledger.Entry{d, c}
}

func TestNewTransaction_Balanced(t *testing.T) {
	txn, err := ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "payout", "",
		ledger.StatusPosted, time.Time{}, nil,
		entryPair(t, 10000, 10000),
	)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPosted, txn.Status)
	assert.False(t, txn.EffectiveAt.IsZero())
	for _, e := range txn.Entries {
		assert.Equal(t, "ltr_1", e.TransactionID)
		assert.Equal(t, "org_1", e.OrganizationID)
		assert.Equal(t, ledger.StatusPosted, e.Status, "entry status mirrors the transaction")
	}
}

func TestNewTransaction_Unbalanced(t *testing.T) {
	_, err := ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusPosted, time.Time{}, nil,
		entryPair(t, 10000, 9999),
	)
	assert.ErrorIs(t, err, ledger.ErrUnbalanced)
}

func TestNewTransaction_TooFewEntries(t *testing.T) {
	e, err := ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 100, "USD", 2)
	require.NoError(t, err)

	_, err = ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusPosted, time.Time{}, nil,
		[]ledger.Entry{e},
	)
	assert.ErrorIs(t, err, ledger.ErrTooFewEntries)
}

func TestNewTransaction_DuplicateAccount(t *testing.T) {
	d, err := ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 100, "USD", 2)
	require.NoError(t, err)
	c, err := ledger.NewEntry("lte_b", "lac_a", ledger.Credit, 100, "USD", 2)
	require.NoError(t, err)

	_, err = ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusPosted, time.Time{}, nil,
		[]ledger.Entry{d, c},
	)
	assert.ErrorIs(t, err, ledger.ErrDuplicateAccount)
}

func TestNewTransaction_MixedCurrencies(t *testing.T) {
	d, err := ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 100, "USD", 2)
	require.NoError(t, err)
	c, err := ledger.NewEntry("lte_b", "lac_b", ledger.Credit, 100, "EUR", 2)
	require.NoError(t, err)

	_, err = ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusPosted, time.Time{}, nil,
		[]ledger.Entry{d, c},
	)
	assert.ErrorIs(t, err, ledger.ErrMixedCurrencies)
}

func TestNewTransaction_ArchivedRejected(t *testing.T) {
	_, err := ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusArchived, time.Time{}, nil,
		entryPair(t, 100, 100),
	)
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)
}

func TestNewEntry_Boundaries(t *testing.T) {
	_, err := ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 0, "USD", 2)
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)

	_, err = ledger.NewEntry("lte_a", "lac_a", ledger.Debit, -5, "USD", 2)
	assert.ErrorIs(t, err, ledger.ErrNonPositiveAmount)

	_, err = ledger.NewEntry("lte_a", "lac_a", ledger.Debit, math.MaxInt64, "USD", 2)
	assert.NoError(t, err, "max int64 minor units are accepted")

	_, err = ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 100, "USD", 19)
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrencyExponent)

	_, err = ledger.NewEntry("lte_a", "lac_a", ledger.Debit, 100, "USD", -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrencyExponent)

	_, err = ledger.NewEntry("lte_a", "lac_a", "up", 100, "USD", 2)
	assert.ErrorIs(t, err, ledger.ErrInvalidDirection)
}

func TestTransactionStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ledger.TransactionStatus
		allowed  bool
	}{
		{ledger.StatusPending, ledger.StatusPosted, true},
		{ledger.StatusPending, ledger.StatusArchived, true},
		{ledger.StatusPosted, ledger.StatusArchived, true},
		{ledger.StatusPosted, ledger.StatusPending, false},
		{ledger.StatusArchived, ledger.StatusPending, false},
		{ledger.StatusArchived, ledger.StatusPosted, false},
		{ledger.StatusPending, ledger.StatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransaction_WithStatus(t *testing.T) {
	txn, err := ledger.NewTransaction(
		"ltr_1", "org_1", "lgr_1", "", "",
		ledger.StatusPending, time.Time{}, nil,
		entryPair(t, 500, 500),
	)
	require.NoError(t, err)

	posted, err := txn.WithStatus(ledger.StatusPosted)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, posted.Status)
	for _, e := range posted.Entries {
		assert.Equal(t, ledger.StatusPosted, e.Status)
	}

	// The original is untouched.
	assert.Equal(t, ledger.StatusPending, txn.Status)
	for _, e := range txn.Entries {
		assert.Equal(t, ledger.StatusPending, e.Status)
	}

	_, err = posted.WithStatus(ledger.StatusPending)
	assert.ErrorIs(t, err, ledger.ErrIllegalTransition)
}
