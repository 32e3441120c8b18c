package flutterwave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/4120958/verify", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"message": "Transaction fetched successfully",
			"data": map[string]any{
				"id":       4120958,
				"tx_ref":   "choriad-bk-001",
				"flw_ref":  "FLW-MOCK-1",
				"amount":   11500,
				"currency": "NGN",
				"status":   "successful",
				"meta":     map[string]any{"booking_id": "b1"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test")
	tx, err := c.VerifyTransaction(context.Background(), 4120958)
	require.NoError(t, err)

	assert.Equal(t, int64(4120958), tx.ID)
	assert.Equal(t, "choriad-bk-001", tx.TxRef)
	assert.Equal(t, float64(11500), tx.Amount)
	assert.True(t, tx.Successful())
	assert.Equal(t, "b1", tx.Meta["booking_id"])
}

func TestVerifyTransactionByReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "choriad-bk-002", r.URL.Query().Get("tx_ref"))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"id": 7, "tx_ref": "choriad-bk-002", "status": "pending"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test")
	tx, err := c.VerifyTransactionByReference(context.Background(), "choriad-bk-002")
	require.NoError(t, err)
	assert.False(t, tx.Successful())
}

func TestVerifyTransaction_NoData(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "error envelope", body: map[string]any{"status": "error", "message": "No transaction was found for this id"}},
		{name: "null data", body: map[string]any{"status": "success", "data": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, "sk-test")
			_, err := c.VerifyTransaction(context.Background(), 1)
			require.ErrorIs(t, err, ErrNoTransactionData)
		})
	}
}

func TestVerifyTransaction_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "Invalid secret key"})
	}))
	defer srv.Close()

	c := New(srv.URL, "bad-key")
	_, err := c.VerifyTransaction(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
}

func TestCreateTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transfers", r.URL.Path)

		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "044", req.AccountBank)
		assert.Equal(t, int64(10000), req.Amount)
		assert.Equal(t, "NGN", req.Currency)

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"id": 345678, "reference": req.Reference, "status": "NEW", "amount": 10000},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test")
	tr, err := c.CreateTransfer(context.Background(), TransferRequest{
		AccountBank:   "044",
		AccountNumber: "0690000040",
		Amount:        10000,
		Currency:      "NGN",
		Reference:     "choriad-bk-003",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(345678), tr.ID)
	assert.Equal(t, "choriad-bk-003", tr.Reference)
}
