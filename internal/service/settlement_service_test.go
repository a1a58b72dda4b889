package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// MockSettlementStore is a mock implementation of service.SettlementStore.
type MockSettlementStore struct {
	mock.Mock
}

func (m *MockSettlementStore) Create(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(ledger.Settlement), args.Error(1)
}

func (m *MockSettlementStore) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Settlement, error) {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Get(0).(ledger.Settlement), args.Error(1)
}

func (m *MockSettlementStore) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Settlement, error) {
	args := m.Called(ctx, organizationID, ledgerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Settlement), args.Error(1)
}

func (m *MockSettlementStore) AddEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error {
	args := m.Called(ctx, organizationID, ledgerID, id, entryIDs)
	return args.Error(0)
}

func (m *MockSettlementStore) RemoveEntries(ctx context.Context, organizationID, ledgerID, id string, entryIDs []string) error {
	args := m.Called(ctx, organizationID, ledgerID, id, entryIDs)
	return args.Error(0)
}

func (m *MockSettlementStore) NetAmount(ctx context.Context, id string, normalBalance ledger.Direction) (int64, error) {
	args := m.Called(ctx, id, normalBalance)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSettlementStore) UpdateStatus(ctx context.Context, organizationID, ledgerID, id string, from, to ledger.SettlementStatus) error {
	args := m.Called(ctx, organizationID, ledgerID, id, from, to)
	return args.Error(0)
}

func (m *MockSettlementStore) MarkProcessing(ctx context.Context, organizationID, ledgerID, id, transactionID string, amount int64) error {
	args := m.Called(ctx, organizationID, ledgerID, id, transactionID, amount)
	return args.Error(0)
}

func (m *MockSettlementStore) Update(ctx context.Context, s ledger.Settlement) (ledger.Settlement, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(ledger.Settlement), args.Error(1)
}

func (m *MockSettlementStore) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Error(0)
}

// MockAccountStore is a mock implementation of service.AccountStore.
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(ledger.Account), args.Error(1)
}

func (m *MockAccountStore) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Account, error) {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Get(0).(ledger.Account), args.Error(1)
}

func (m *MockAccountStore) List(ctx context.Context, organizationID, ledgerID string, limit, offset int) ([]ledger.Account, error) {
	args := m.Called(ctx, organizationID, ledgerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Account), args.Error(1)
}

func (m *MockAccountStore) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(ledger.Account), args.Error(1)
}

func (m *MockAccountStore) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	args := m.Called(ctx, organizationID, ledgerID, id)
	return args.Error(0)
}

const testSettlementID = "las_01HZXY0000000000000000TEST"

func draftingSettlement() ledger.Settlement {
	return ledger.Settlement{
		ID:               testSettlementID,
		OrganizationID:   testOrgID,
		LedgerID:         testLedgerID,
		SettledAccountID: "lac_receivable",
		ContraAccountID:  "lac_clearing",
		NormalBalance:    ledger.Debit,
		Currency:         "USD",
		CurrencyExponent: 2,
		Status:           ledger.SettlementDrafting,
	}
}

func newSettlementService(store *MockSettlementStore, txns *MockTransactionStore) *service.SettlementService {
	accounts := new(MockAccountStore)
	ledgers := new(MockLedgerStore)
	return service.NewSettlementService(store, txns, accounts, newLedgerService(ledgers), newTestLogger())
}

func TestSettlementService_Transition_Processing(t *testing.T) {
	ctx := context.Background()

	t.Run("positive net offsets the settled account on its opposite side", func(t *testing.T) {
		store := new(MockSettlementStore)
		txns := new(MockTransactionStore)

		stl := draftingSettlement()
		store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(stl, nil).Once()
		store.On("NetAmount", ctx, testSettlementID, ledger.Debit).Return(int64(500), nil)

		var captured ledger.Transaction
		txns.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(ledger.Transaction)
			}).
			Return(ledger.Transaction{ID: "ltr_settle"}, nil)

		store.On("MarkProcessing", ctx, testOrgID, testLedgerID, testSettlementID, "ltr_settle", int64(500)).Return(nil)
		store.On("UpdateStatus", ctx, testOrgID, testLedgerID, testSettlementID,
			ledger.SettlementProcessing, ledger.SettlementPending).Return(nil)

		after := stl
		after.Status = ledger.SettlementPending
		after.TransactionID = "ltr_settle"
		after.Amount = 500
		store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(after, nil).Once()

		svc := newSettlementService(store, txns)
		out, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementProcessing)

		require.NoError(t, err)
		assert.Equal(t, ledger.SettlementPending, out.Status)
		assert.Equal(t, "ltr_settle", out.TransactionID)

		require.Len(t, captured.Entries, 2)
		assert.Equal(t, ledger.StatusPending, captured.Status)
		assert.Equal(t, testSettlementID, captured.Metadata["settlementId"])

		settled, contra := captured.Entries[0], captured.Entries[1]
		assert.Equal(t, "lac_receivable", settled.AccountID)
		assert.Equal(t, ledger.Credit, settled.Direction)
		assert.Equal(t, int64(500), settled.Amount)
		assert.Equal(t, "lac_clearing", contra.AccountID)
		assert.Equal(t, ledger.Debit, contra.Direction)
		assert.Equal(t, int64(500), contra.Amount)
	})

	t.Run("negative net offsets the settled account on its normal side", func(t *testing.T) {
		store := new(MockSettlementStore)
		txns := new(MockTransactionStore)

		stl := draftingSettlement()
		store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(stl, nil)
		store.On("NetAmount", ctx, testSettlementID, ledger.Debit).Return(int64(-300), nil)

		var captured ledger.Transaction
		txns.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(ledger.Transaction)
			}).
			Return(ledger.Transaction{ID: "ltr_settle"}, nil)

		store.On("MarkProcessing", ctx, testOrgID, testLedgerID, testSettlementID, "ltr_settle", int64(-300)).Return(nil)
		store.On("UpdateStatus", ctx, testOrgID, testLedgerID, testSettlementID,
			ledger.SettlementProcessing, ledger.SettlementPending).Return(nil)

		svc := newSettlementService(store, txns)
		_, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementProcessing)

		require.NoError(t, err)
		require.Len(t, captured.Entries, 2)
		assert.Equal(t, ledger.Debit, captured.Entries[0].Direction)
		assert.Equal(t, int64(300), captured.Entries[0].Amount)
		assert.Equal(t, ledger.Credit, captured.Entries[1].Direction)
	})

	t.Run("zero net cannot be settled", func(t *testing.T) {
		store := new(MockSettlementStore)
		txns := new(MockTransactionStore)

		store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(draftingSettlement(), nil)
		store.On("NetAmount", ctx, testSettlementID, ledger.Debit).Return(int64(0), nil)

		svc := newSettlementService(store, txns)
		_, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementProcessing)

		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.False(t, apperr.IsRetryable(err))
		txns.AssertNotCalled(t, "Create")
	})

	t.Run("concurrent loss of drafting unwinds the balancing transaction", func(t *testing.T) {
		store := new(MockSettlementStore)
		txns := new(MockTransactionStore)

		store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(draftingSettlement(), nil)
		store.On("NetAmount", ctx, testSettlementID, ledger.Debit).Return(int64(500), nil)
		txns.On("Create", ctx, mock.AnythingOfType("ledger.Transaction")).
			Return(ledger.Transaction{ID: "ltr_settle"}, nil)
		store.On("MarkProcessing", ctx, testOrgID, testLedgerID, testSettlementID, "ltr_settle", int64(500)).
			Return(apperr.Conflict("settlement is no longer drafting", false))
		txns.On("Archive", ctx, testOrgID, testLedgerID, "ltr_settle").
			Return(ledger.Transaction{ID: "ltr_settle", Status: ledger.StatusArchived}, nil)

		svc := newSettlementService(store, txns)
		_, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementProcessing)

		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		txns.AssertCalled(t, "Archive", ctx, testOrgID, testLedgerID, "ltr_settle")
		store.AssertNotCalled(t, "UpdateStatus",
			ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementProcessing, ledger.SettlementPending)
	})
}

func TestSettlementService_Transition_Posted(t *testing.T) {
	ctx := context.Background()
	store := new(MockSettlementStore)
	txns := new(MockTransactionStore)

	stl := draftingSettlement()
	stl.Status = ledger.SettlementPending
	stl.TransactionID = "ltr_settle"
	stl.Amount = 500
	store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(stl, nil)

	txns.On("Post", ctx, testOrgID, testLedgerID, "ltr_settle").
		Return(ledger.Transaction{ID: "ltr_settle", Status: ledger.StatusPosted}, nil)
	store.On("UpdateStatus", ctx, testOrgID, testLedgerID, testSettlementID,
		ledger.SettlementPending, ledger.SettlementPosted).Return(nil)

	svc := newSettlementService(store, txns)
	_, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementPosted)

	require.NoError(t, err)
	txns.AssertCalled(t, "Post", ctx, testOrgID, testLedgerID, "ltr_settle")
}

func TestSettlementService_Transition_IllegalJump(t *testing.T) {
	ctx := context.Background()
	store := new(MockSettlementStore)
	txns := new(MockTransactionStore)

	store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(draftingSettlement(), nil)

	svc := newSettlementService(store, txns)
	_, err := svc.Transition(ctx, testOrgID, testLedgerID, testSettlementID, ledger.SettlementPosted)

	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.False(t, apperr.IsRetryable(err))
	store.AssertNotCalled(t, "UpdateStatus")
}

func TestSettlementService_Update_RejectsNonDrafting(t *testing.T) {
	ctx := context.Background()
	store := new(MockSettlementStore)
	txns := new(MockTransactionStore)

	stl := draftingSettlement()
	stl.Status = ledger.SettlementPosted
	store.On("Get", ctx, testOrgID, testLedgerID, testSettlementID).Return(stl, nil)

	desc := "late edit"
	svc := newSettlementService(store, txns)
	_, err := svc.Update(ctx, testOrgID, testLedgerID, testSettlementID, service.UpdateSettlementInput{Description: &desc})

	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	store.AssertNotCalled(t, "Update")
}

func TestSettlementService_AddEntries_RequiresIDs(t *testing.T) {
	ctx := context.Background()
	store := new(MockSettlementStore)
	txns := new(MockTransactionStore)

	svc := newSettlementService(store, txns)
	_, err := svc.AddEntries(ctx, testOrgID, testLedgerID, testSettlementID, nil)

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	store.AssertNotCalled(t, "AddEntries")
}
