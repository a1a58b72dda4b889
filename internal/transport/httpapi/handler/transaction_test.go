package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// stubLedgerStore serves one fixed ledger.
type stubLedgerStore struct {
	ledger ledger.Ledger
}

func (s *stubLedgerStore) Create(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	return l, nil
}

func (s *stubLedgerStore) Get(ctx context.Context, organizationID, id string) (ledger.Ledger, error) {
	if id != s.ledger.ID || organizationID != s.ledger.OrganizationID {
		return ledger.Ledger{}, apperr.NotFound("ledger")
	}
	return s.ledger, nil
}

func (s *stubLedgerStore) List(ctx context.Context, organizationID string, limit, offset int) ([]ledger.Ledger, error) {
	return []ledger.Ledger{s.ledger}, nil
}

func (s *stubLedgerStore) Update(ctx context.Context, l ledger.Ledger) (ledger.Ledger, error) {
	return l, nil
}

func (s *stubLedgerStore) Delete(ctx context.Context, organizationID, id string) error {
	return nil
}

// stubTxnStore delegates to function fields so each test controls behavior.
type stubTxnStore struct {
	createFn func(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error)
	postFn   func(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error)
}

func (s *stubTxnStore) Create(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
	return s.createFn(ctx, txn)
}

func (s *stubTxnStore) Post(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	return s.postFn(ctx, organizationID, ledgerID, id)
}

func (s *stubTxnStore) Archive(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	return ledger.Transaction{}, apperr.NotFound("transaction")
}

func (s *stubTxnStore) Delete(ctx context.Context, organizationID, ledgerID, id string) error {
	return apperr.NotFound("transaction")
}

func (s *stubTxnStore) Get(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
	return ledger.Transaction{}, apperr.NotFound("transaction")
}

func (s *stubTxnStore) List(ctx context.Context, organizationID, ledgerID string, status *ledger.TransactionStatus, limit, offset int) ([]ledger.Transaction, error) {
	return nil, nil
}

const (
	testOrg    = "org_01HZXY0000000000000000TEST"
	testLedger = "lgr_01HZXY0000000000000000TEST"
)

func newTxnHandler(store service.TransactionStore) *TransactionHandler {
	log := logger.New("test", io.Discard)
	ledgers := service.NewLedgerService(&stubLedgerStore{ledger: ledger.Ledger{
		ID:               testLedger,
		OrganizationID:   testOrg,
		Name:             "treasury",
		Currency:         "USD",
		CurrencyExponent: 2,
	}}, nil, log)
	return NewTransactionHandler(service.NewTransactionService(store, ledgers, false, log))
}

// newRequest builds an authenticated request carrying chi URL params.
func newRequest(t *testing.T, method, path, body string, params map[string]string) *http.Request {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)

	ctx := context.WithValue(req.Context(), middleware.OrganizationIDKey, testOrg)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func TestTransactionHandler_Create(t *testing.T) {
	body := `{
		"description": "invoice 17",
		"status": "pending",
		"ledgerEntries": [
			{"accountId": "lac_cash", "direction": "debit", "amount": 1500},
			{"accountId": "lac_revenue", "direction": "credit", "amount": 1500}
		]
	}`

	t.Run("valid create returns 200 with the stored transaction", func(t *testing.T) {
		store := &stubTxnStore{
			createFn: func(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
				return txn, nil
			},
		}
		h := newTxnHandler(store)

		rec := httptest.NewRecorder()
		req := newRequest(t, http.MethodPost, "/api/ledgers/"+testLedger+"/transactions", body,
			map[string]string{"ledgerID": testLedger})
		h.Create(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp TransactionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "pending", resp.Status)
		require.Len(t, resp.LedgerEntries, 2)
		assert.Equal(t, "USD", resp.LedgerEntries[0].Currency)
	})

	t.Run("engine conflict maps to 409 with retryable flag", func(t *testing.T) {
		store := &stubTxnStore{
			createFn: func(ctx context.Context, txn ledger.Transaction) (ledger.Transaction, error) {
				return ledger.Transaction{}, apperr.Conflict("idempotency key already used", false)
			},
		}
		h := newTxnHandler(store)

		rec := httptest.NewRecorder()
		req := newRequest(t, http.MethodPost, "/api/ledgers/"+testLedger+"/transactions", body,
			map[string]string{"ledgerID": testLedger})
		h.Create(rec, req)

		require.Equal(t, http.StatusConflict, rec.Code)

		var p Problem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, "CONFLICT", p.Type)
		assert.False(t, p.Retryable)
	})

	t.Run("unknown ledger maps to 404", func(t *testing.T) {
		store := &stubTxnStore{}
		h := newTxnHandler(store)

		rec := httptest.NewRecorder()
		req := newRequest(t, http.MethodPost, "/api/ledgers/lgr_other/transactions", body,
			map[string]string{"ledgerID": "lgr_other"})
		h.Create(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		store := &stubTxnStore{}
		h := newTxnHandler(store)

		rec := httptest.NewRecorder()
		req := newRequest(t, http.MethodPost, "/api/ledgers/"+testLedger+"/transactions", "{not json",
			map[string]string{"ledgerID": testLedger})
		h.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing organization maps to 401", func(t *testing.T) {
		store := &stubTxnStore{}
		h := newTxnHandler(store)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/ledgers/"+testLedger+"/transactions", strings.NewReader(body))
		h.Create(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTransactionHandler_Post(t *testing.T) {
	store := &stubTxnStore{
		postFn: func(ctx context.Context, organizationID, ledgerID, id string) (ledger.Transaction, error) {
			return ledger.Transaction{ID: id, Status: ledger.StatusPosted}, nil
		},
	}
	h := newTxnHandler(store)

	rec := httptest.NewRecorder()
	req := newRequest(t, http.MethodPost, "/api/ledgers/"+testLedger+"/transactions/ltr_x/post", "",
		map[string]string{"ledgerID": testLedger, "transactionID": "ltr_x"})
	h.Post(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "posted", resp.Status)
}
