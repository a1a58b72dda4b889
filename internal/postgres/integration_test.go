//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/postgres"
	"github.com/ledgerkit/ledgerkit/internal/service"
	"github.com/ledgerkit/ledgerkit/pkg/id"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
	"github.com/ledgerkit/ledgerkit/testutil/testdb"
)

var db *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	db, err = testdb.NewTestDB(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start test database: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	db.Close(ctx)
	os.Exit(code)
}

type fixture struct {
	org      string
	ledger   ledger.Ledger
	ledgers  *postgres.LedgerRepository
	accounts *postgres.AccountRepository
	txns     *postgres.TransactionRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Reset(ctx))

	f := &fixture{
		org:      id.New(id.KindOrganization),
		ledgers:  postgres.NewLedgerRepository(db.Pool),
		accounts: postgres.NewAccountRepository(db.Pool),
		txns:     postgres.NewTransactionRepository(db.Pool),
	}

	l, err := ledger.NewLedger(id.New(id.KindLedger), f.org, "treasury", "", "USD", 2, nil)
	require.NoError(t, err)
	f.ledger, err = f.ledgers.Create(ctx, l)
	require.NoError(t, err)
	return f
}

func (f *fixture) account(t *testing.T, name string, normal ledger.Direction) ledger.Account {
	t.Helper()
	a, err := ledger.NewAccount(id.New(id.KindAccount), f.org, f.ledger.ID, name, "", normal, nil)
	require.NoError(t, err)
	created, err := f.accounts.Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func (f *fixture) transaction(t *testing.T, status ledger.TransactionStatus, debitAcc, creditAcc string, amount int64) ledger.Transaction {
	t.Helper()
	debit, err := ledger.NewEntry(id.New(id.KindEntry), debitAcc, ledger.Debit, amount, "USD", 2)
	require.NoError(t, err)
	credit, err := ledger.NewEntry(id.New(id.KindEntry), creditAcc, ledger.Credit, amount, "USD", 2)
	require.NoError(t, err)

	txn, err := ledger.NewTransaction(
		id.New(id.KindTransaction), f.org, f.ledger.ID, "", "",
		status, time.Time{}, nil, []ledger.Entry{debit, credit},
	)
	require.NoError(t, err)
	return txn
}

func TestTransactionRepository_CreatePosted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	created, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPosted, cash.ID, revenue.ID, 700))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, created.Status)
	require.Len(t, created.Entries, 2)

	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), gotCash.Balances.PostedDebits)
	assert.Equal(t, int64(700), gotCash.Balances.PostedAmount)
	assert.Equal(t, int64(700), gotCash.Balances.AvailableAmount)
	assert.Zero(t, gotCash.Balances.PendingAmount)
	assert.Equal(t, int64(1), gotCash.LockVersion)

	gotRevenue, err := f.accounts.Get(ctx, f.org, f.ledger.ID, revenue.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), gotRevenue.Balances.PostedCredits)
	assert.Equal(t, int64(700), gotRevenue.Balances.PostedAmount)
	assert.Equal(t, int64(1), gotRevenue.LockVersion)
}

func TestTransactionRepository_PendingThenPost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	created, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPending, cash.ID, revenue.ID, 250))
	require.NoError(t, err)

	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), gotCash.Balances.PendingDebits)
	assert.Equal(t, int64(250), gotCash.Balances.PendingAmount)
	assert.Zero(t, gotCash.Balances.PostedAmount)
	assert.Equal(t, int64(1), gotCash.LockVersion)

	posted, err := f.txns.Post(ctx, f.org, f.ledger.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, posted.Status)
	for _, e := range posted.Entries {
		assert.Equal(t, ledger.StatusPosted, e.Status)
	}

	gotCash, err = f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Zero(t, gotCash.Balances.PendingAmount)
	assert.Equal(t, int64(250), gotCash.Balances.PostedAmount)
	assert.Equal(t, int64(250), gotCash.Balances.AvailableAmount)
	assert.Equal(t, int64(2), gotCash.LockVersion)
}

func TestTransactionRepository_ReplaySameID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	txn := f.transaction(t, ledger.StatusPosted, cash.ID, revenue.ID, 300)
	first, err := f.txns.Create(ctx, txn)
	require.NoError(t, err)

	replay, err := f.txns.Create(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, ledger.StatusPosted, replay.Status)
	assert.Len(t, replay.Entries, 2)

	// Balances were applied exactly once.
	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), gotCash.Balances.PostedDebits)
	assert.Equal(t, int64(1), gotCash.LockVersion)
}

func TestTransactionRepository_IdempotencyKeyCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	first := f.transaction(t, ledger.StatusPosted, cash.ID, revenue.ID, 100)
	first.IdempotencyKey = "inv-2026-001"
	_, err := f.txns.Create(ctx, first)
	require.NoError(t, err)

	second := f.transaction(t, ledger.StatusPosted, cash.ID, revenue.ID, 100)
	second.IdempotencyKey = "inv-2026-001"
	_, err = f.txns.Create(ctx, second)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.False(t, apperr.IsRetryable(err))

	// The failed batch left no partial state behind.
	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), gotCash.Balances.PostedDebits)
	assert.Equal(t, int64(1), gotCash.LockVersion)
}

func TestTransactionRepository_ArchiveReversesBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	created, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPosted, cash.ID, revenue.ID, 420))
	require.NoError(t, err)

	archived, err := f.txns.Archive(ctx, f.org, f.ledger.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusArchived, archived.Status)

	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Zero(t, gotCash.Balances.PostedAmount)
	assert.Zero(t, gotCash.Balances.AvailableAmount)
	assert.Equal(t, int64(2), gotCash.LockVersion)
}

// Concurrent creates against the same pair of accounts, driven through the
// service layer so conflicts are retried. Every write must land exactly
// once and the final balances must equal the sum of all amounts.
func TestTransactionService_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cash := f.account(t, "cash", ledger.Debit)
	revenue := f.account(t, "revenue", ledger.Credit)

	log := logger.New("test", io.Discard)
	ledgerSvc := service.NewLedgerService(f.ledgers, nil, log)
	txnSvc := service.NewTransactionService(f.txns, ledgerSvc, false, log)

	const writers = 10
	const amount = int64(50)

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = txnSvc.Create(ctx, f.org, f.ledger.ID, service.CreateTransactionInput{
				Status: ledger.StatusPosted,
				Entries: []service.EntryInput{
					{AccountID: cash.ID, Direction: ledger.Debit, Amount: amount},
					{AccountID: revenue.ID, Direction: ledger.Credit, Amount: amount},
				},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	gotCash, err := f.accounts.Get(ctx, f.org, f.ledger.ID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, amount*writers, gotCash.Balances.PostedDebits)
	assert.Equal(t, amount*writers, gotCash.Balances.PostedAmount)
	assert.Equal(t, int64(writers), gotCash.LockVersion)

	txns, err := f.txns.List(ctx, f.org, f.ledger.ID, nil, writers+1, 0)
	require.NoError(t, err)
	assert.Len(t, txns, writers)
}

func TestSettlementRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	receivable := f.account(t, "receivable", ledger.Debit)
	clearing := f.account(t, "clearing", ledger.Credit)

	settlements := postgres.NewSettlementRepository(db.Pool)

	// Two posted transactions put 500 on the receivable's debit side.
	txn1, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPosted, receivable.ID, clearing.ID, 300))
	require.NoError(t, err)
	txn2, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPosted, receivable.ID, clearing.ID, 200))
	require.NoError(t, err)

	stl, err := ledger.NewSettlement(
		id.New(id.KindSettlement), f.org, f.ledger.ID, receivable.ID, clearing.ID,
		"weekly settlement", "", ledger.Debit, "USD", 2, nil, nil,
	)
	require.NoError(t, err)
	stl, err = settlements.Create(ctx, stl)
	require.NoError(t, err)
	assert.Equal(t, ledger.SettlementDrafting, stl.Status)

	var entryIDs []string
	for _, txn := range []ledger.Transaction{txn1, txn2} {
		for _, e := range txn.Entries {
			if e.AccountID == receivable.ID {
				entryIDs = append(entryIDs, e.ID)
			}
		}
	}
	require.NoError(t, settlements.AddEntries(ctx, f.org, f.ledger.ID, stl.ID, entryIDs))

	net, err := settlements.NetAmount(ctx, stl.ID, ledger.Debit)
	require.NoError(t, err)
	assert.Equal(t, int64(500), net)

	stl, err = settlements.Get(ctx, f.org, f.ledger.ID, stl.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, entryIDs, stl.AttachedEntryIDs)

	// Entries on the wrong account cannot be attached.
	var wrong []string
	for _, e := range txn1.Entries {
		if e.AccountID == clearing.ID {
			wrong = append(wrong, e.ID)
		}
	}
	err = settlements.AddEntries(ctx, f.org, f.ledger.ID, stl.ID, wrong)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

// An entry claimed by a live settlement cannot attach elsewhere, but
// archiving the settlement releases it for re-settlement.
func TestSettlementRepository_ReattachAfterArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	receivable := f.account(t, "receivable", ledger.Debit)
	clearing := f.account(t, "clearing", ledger.Credit)

	settlements := postgres.NewSettlementRepository(db.Pool)

	txn, err := f.txns.Create(ctx, f.transaction(t, ledger.StatusPosted, receivable.ID, clearing.ID, 300))
	require.NoError(t, err)

	var entryIDs []string
	for _, e := range txn.Entries {
		if e.AccountID == receivable.ID {
			entryIDs = append(entryIDs, e.ID)
		}
	}
	require.Len(t, entryIDs, 1)

	newSettlement := func() ledger.Settlement {
		stl, err := ledger.NewSettlement(
			id.New(id.KindSettlement), f.org, f.ledger.ID, receivable.ID, clearing.ID,
			"", "", ledger.Debit, "USD", 2, nil, nil,
		)
		require.NoError(t, err)
		stl, err = settlements.Create(ctx, stl)
		require.NoError(t, err)
		return stl
	}

	first := newSettlement()
	require.NoError(t, settlements.AddEntries(ctx, f.org, f.ledger.ID, first.ID, entryIDs))

	// Claimed by a live settlement: the second attach must refuse.
	second := newSettlement()
	err = settlements.AddEntries(ctx, f.org, f.ledger.ID, second.ID, entryIDs)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, settlements.UpdateStatus(ctx, f.org, f.ledger.ID, first.ID, ledger.SettlementDrafting, ledger.SettlementArchiving))
	require.NoError(t, settlements.UpdateStatus(ctx, f.org, f.ledger.ID, first.ID, ledger.SettlementArchiving, ledger.SettlementArchived))

	require.NoError(t, settlements.AddEntries(ctx, f.org, f.ledger.ID, second.ID, entryIDs))

	net, err := settlements.NetAmount(ctx, second.ID, ledger.Debit)
	require.NoError(t, err)
	assert.Equal(t, int64(300), net)
}
