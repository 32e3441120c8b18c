// Package flutterwave is a minimal client for the pieces of the Flutterwave
// v3 API the backend consumes: server-to-server transaction verification
// (the sole source of truth for money movement) and payout transfer creation.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNoTransactionData is returned when the API answers without a usable
// data object (unknown transaction id/reference, or a non-success envelope).
var ErrNoTransactionData = errors.New("flutterwave: no transaction data")

// Transaction is the verified provider-side view of a charge.
type Transaction struct {
	ID       int64           `json:"id"`
	TxRef    string          `json:"tx_ref"`
	FlwRef   string          `json:"flw_ref"`
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Meta     map[string]any  `json:"meta"`
	Customer json.RawMessage `json:"customer,omitempty"`
}

// Successful reports whether the provider considers the charge captured.
func (t *Transaction) Successful() bool {
	return strings.EqualFold(t.Status, "successful")
}

// TransferRequest creates an escrow-to-worker payout.
type TransferRequest struct {
	AccountBank   string `json:"account_bank"`
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	Narration     string `json:"narration,omitempty"`
	Beneficiary   string `json:"beneficiary_name,omitempty"`
}

// Transfer is the provider-side record of a payout.
type Transfer struct {
	ID        int64   `json:"id"`
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// New returns a client with a bounded request timeout so a slow provider API
// cannot hang webhook responders.
func New(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(nil),
		},
	}
}

// VerifyTransaction re-fetches a charge by its provider-assigned id.
func (c *Client) VerifyTransaction(ctx context.Context, id int64) (*Transaction, error) {
	return c.getTransaction(ctx, "/transactions/"+strconv.FormatInt(id, 10)+"/verify")
}

// VerifyTransactionByReference re-fetches a charge by the merchant tx_ref.
func (c *Client) VerifyTransactionByReference(ctx context.Context, txRef string) (*Transaction, error) {
	return c.getTransaction(ctx, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(txRef))
}

func (c *Client) getTransaction(ctx context.Context, path string) (*Transaction, error) {
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(env.Status, "success") || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrNoTransactionData, env.Message)
	}
	var tx Transaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, fmt.Errorf("flutterwave: decode transaction: %w", err)
	}
	return &tx, nil
}

// CreateTransfer initiates a payout. The terminal status arrives later via
// the transfer.completed webhook; the returned Transfer is usually NEW.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, http.MethodPost, "/transfers", body)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(env.Status, "success") || len(env.Data) == 0 {
		return nil, fmt.Errorf("flutterwave: transfer rejected: %s", env.Message)
	}
	var tr Transfer
	if err := json.Unmarshal(env.Data, &tr); err != nil {
		return nil, fmt.Errorf("flutterwave: decode transfer: %w", err)
	}
	return &tr, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flutterwave: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("flutterwave: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flutterwave: http %d: %s", resp.StatusCode, env.Message)
	}
	return &env, nil
}
