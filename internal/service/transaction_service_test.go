package service_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// MockLedgerStore is a mock implementation of service.LedgerStore.
type MockLedgerStore struct {
	mock.Mock
}

func (m *MockLedgerStore) Create(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(ledger.Ledger), args.Error(1)
}

func (m *MockLedgerStore) Get(ctx context.Context, organizationID, id string) (ledger.Ledger, error) {
	args := m.Called(ctx, organizationID, id)
	return args.Get(0).(ledger.Ledger), args.Error(1)
}

func (m *MockLedgerStore) List(ctx context.Context, organizationID string, limit, offset int) ([]ledger.Ledger, error) {
	args := m.Called(ctx, organizationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Ledger), args.Error(1)
}

func (m *MockLedgerStore) Update(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(ledger.Ledger), args.Error(1)
}

func (m *MockLedgerStore) Delete(ctx context.Context, organizationID, id string) error {
	args := m.Called(ctx, organizationID, id)
	return args.Error(0)
}

// MockTransactionStore is a mock implementation of service.TransactionStore.
type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) Create(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	args := m.Called(ctx, txn)
	return args.Get(0).(ledger.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Post(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Get(0).(ledger.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Archive(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Get(0).(ledger.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Error(0)
}

func (m *MockTransactionStore) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Get(0).(ledger.Transaction), args.Error(1)
}

func (m *MockTransactionStore) List(ctx context.Context, organizationID, ledgerID string, status *ledger.TransactionStatus, limit, offset int) ([]ledger.Transaction, error) {
	args := m.Called(ctx, organizationID, ledgerID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Transaction), args.Error(1)
}

const (
	testOrgID    = "org_01HZXY0000000000000000TEST"
	testLedgerID = "lgr_01HZXY0000000000000000TEST"
)

func testLedger() ledger.Ledger {
	return ledger.Ledger{
		ID:               testLedgerID,
		OrganizationID:   testOrgID,
		Name:             "treasury",
		Currency:         "USD",
		CurrencyExponent: 2,
	}
}

func newTestLogger() *logger.Logger {
	return logger.New("test", io.Discard)
}

func newLedgerService(store *MockLedgerStore) *service.LedgerService {
	return service.NewLedgerService(store, nil, newTestLogger())
}

func balancedEntries(amount int64) []service.EntryInput {
	return []service.EntryInput{
		{AccountID: "lac_cash", Direction: ledger.Debit, Amount: amount},
		{AccountID: "lac_revenue", Direction: ledger.Credit, Amount: amount},
	}
}

func TestTransactionService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("balanced transaction reaches the store stamped with the ledger currency", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		var captured ledger.Transaction
		store.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(ledger.Transaction)
			}).
			Return(ledger.Transaction{ID: "ltr_created"}, nil)

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		_, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Description: "invoice 17",
			Status:      ledger.StatusPending,
			Entries:     balancedEntries(1500),
		})

		require.NoError(t, err)
		require.Len(t, captured.Entries, 2)
		assert.NotEmpty(t, captured.ID)
		assert.Equal(t, ledger.StatusPending, captured.Status)
		for _, e := range captured.Entries {
			assert.Equal(t, "USD", e.Currency)
			assert.Equal(t, int32(2), e.CurrencyExponent)
			assert.Equal(t, captured.ID, e.TransactionID)
		}
	})

	t.Run("entry currency disagreeing with the ledger is rejected", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		entries := balancedEntries(1000)
		entries[0].Currency = "EUR"

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		_, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Status:  ledger.StatusPending,
			Entries: entries,
		})

		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		store.AssertNotCalled(t, "Create")
	})

	t.Run("entry exponent disagreeing with the ledger is rejected", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		exponent := int32(6)
		entries := balancedEntries(1000)
		entries[1].CurrencyExponent = &exponent

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		_, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Status:  ledger.StatusPending,
			Entries: entries,
		})

		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		store.AssertNotCalled(t, "Create")
	})

	t.Run("unbalanced entries are rejected before the store", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		_, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Status: ledger.StatusPending,
			Entries: []service.EntryInput{
				{AccountID: "lac_cash", Direction: ledger.Debit, Amount: 1000},
				{AccountID: "lac_revenue", Direction: ledger.Credit, Amount: 999},
			},
		})

		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		store.AssertNotCalled(t, "Create")
	})

	t.Run("retryable conflicts are retried until the write lands", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		conflict := apperr.Conflict("account version changed concurrently", true)
		store.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Return(ledger.Transaction{}, conflict).Twice()
		store.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Return(ledger.Transaction{ID: "ltr_created"}, nil).Once()

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		out, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Status:  ledger.StatusPending,
			Entries: balancedEntries(500),
		})

		require.NoError(t, err)
		assert.Equal(t, "ltr_created", out.ID)
		store.AssertNumberOfCalls(t, "Create", 3)
	})

	t.Run("non-retryable conflict surfaces after a single attempt", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

		store.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Return(ledger.Transaction{}, apperr.Conflict("idempotency key already used", false))

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		_, err := svc.Create(ctx, testOrgID, testLedgerID, service.CreateTransactionInput{
			Status:  ledger.StatusPending,
			Entries: balancedEntries(500),
		})

		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.False(t, apperr.IsRetryable(err))
		store.AssertNumberOfCalls(t, "Create", 1)
	})
}

func TestTransactionService_Delete(t *testing.T) {
	ctx := context.Background()
	txnID := "ltr_target"

	t.Run("archives by default", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		store.On("Archive", ctx, testOrgID, testLedgerID, txnID).
			Return(ledger.Transaction{ID: txnID, Status: ledger.StatusArchived}, nil)

		svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
		require.NoError(t, svc.Delete(ctx, testOrgID, testLedgerID, txnID))

		store.AssertCalled(t, "Archive", ctx, testOrgID, testLedgerID, txnID)
		store.AssertNotCalled(t, "Delete")
	})

	t.Run("removes rows outright under the test-mode flag", func(t *testing.T) {
		ledgers := new(MockLedgerStore)
		store := new(MockTransactionStore)
		store.On("Delete", ctx, testOrgID, testLedgerID, txnID).Return(nil)

		svc := service.NewTransactionService(store, newLedgerService(ledgers), true, newTestLogger())
		require.NoError(t, svc.Delete(ctx, testOrgID, testLedgerID, txnID))

		store.AssertCalled(t, "Delete", ctx, testOrgID, testLedgerID, txnID)
		store.AssertNotCalled(t, "Archive")
	})
}

func TestTransactionService_List_RejectsUnknownStatusFilter(t *testing.T) {
	ctx := context.Background()
	ledgers := new(MockLedgerStore)
	store := new(MockTransactionStore)

	bogus := ledger.TransactionStatus("settled")
	svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
	_, err := svc.List(ctx, testOrgID, testLedgerID, &bogus, 10, 0)

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	store.AssertNotCalled(t, "List")
}

func TestTransactionService_Post_RetriesStatusConflict(t *testing.T) {
	ctx := context.Background()
	ledgers := new(MockLedgerStore)
	store := new(MockTransactionStore)

	store.On("Post", ctx, testOrgID, testLedgerID, "ltr_target").
		Return(ledger.Transaction{}, apperr.Conflict("account version changed concurrently", true)).Once()
	store.On("Post", ctx, testOrgID, testLedgerID, "ltr_target").
		Return(ledger.Transaction{ID: "ltr_target", Status: ledger.StatusPosted}, nil).Once()

	svc := service.NewTransactionService(store, newLedgerService(ledgers), false, newTestLogger())
	out, err := svc.Post(ctx, testOrgID, testLedgerID, "ltr_target")

	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, out.Status)
	store.AssertNumberOfCalls(t, "Post", 2)
}

func TestLedgerService_Update_RejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	ledgers := new(MockLedgerStore)
	ledgers.On("Get", ctx, testOrgID, testLedgerID).Return(testLedger(), nil)

	name := ""
	_, err := newLedgerService(ledgers).Update(ctx, testOrgID, testLedgerID, service.UpdateLedgerInput{Name: &name})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	ledgers.AssertNotCalled(t, "Update")
}
