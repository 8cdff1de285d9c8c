// Package ledger talks to the platform ledger service that holds user and
// club currency balances. Transfers carry caller-supplied idempotency keys;
// the client never retries on its own.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"atrium/internal/observability"
	"atrium/internal/models"
)

// AccountType names the kind of account a balance belongs to.
type AccountType string

const (
	AccountTypeUser AccountType = "user"
	AccountTypeClub AccountType = "club"
)

// Service is the ledger operations the rest of atrium depends on.
type Service interface {
	Balance(ctx context.Context, accountType AccountType, accountID uint) (int64, error)
	// Debit removes amountCents from the account. The key deduplicates
	// replays on the ledger side.
	Debit(ctx context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error
	// Credit adds amountCents to the account.
	Credit(ctx context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error
	// Transfer moves amountCents between two accounts atomically.
	Transfer(ctx context.Context, from, to Account, amountCents int64, key string) error
}

// Account identifies one ledger account.
type Account struct {
	Type AccountType `json:"type"`
	ID   uint        `json:"id"`
}

// NewIdempotencyKey returns a fresh key for a single logical transfer.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance_cents"`
}

type transferRequest struct {
	From           *Account `json:"from,omitempty"`
	To             *Account `json:"to,omitempty"`
	AmountCents    int64    `json:"amount_cents"`
	IdempotencyKey string   `json:"idempotency_key"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client is the HTTP implementation of Service.
type Client struct {
	http *resty.Client
}

// NewClient builds a ledger client for the given base URL. The API key may be
// empty outside production.
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	return &Client{http: c}
}

func (c *Client) Balance(ctx context.Context, accountType AccountType, accountID uint) (int64, error) {
	var body balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/v1/accounts/%s/%d/balance", accountType, accountID))
	if err != nil {
		observability.LedgerRequests.WithLabelValues("balance", "error").Inc()
		return 0, models.NewInternalError(err)
	}
	if resp.IsError() {
		observability.LedgerRequests.WithLabelValues("balance", "error").Inc()
		return 0, responseError(resp)
	}
	observability.LedgerRequests.WithLabelValues("balance", "ok").Inc()
	return body.BalanceCents, nil
}

func (c *Client) Debit(ctx context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error {
	account := Account{Type: accountType, ID: accountID}
	return c.post(ctx, "debit",
		fmt.Sprintf("/v1/accounts/%s/%d/debit", accountType, accountID),
		transferRequest{From: &account, AmountCents: amountCents, IdempotencyKey: key})
}

func (c *Client) Credit(ctx context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error {
	account := Account{Type: accountType, ID: accountID}
	return c.post(ctx, "credit",
		fmt.Sprintf("/v1/accounts/%s/%d/credit", accountType, accountID),
		transferRequest{To: &account, AmountCents: amountCents, IdempotencyKey: key})
}

func (c *Client) Transfer(ctx context.Context, from, to Account, amountCents int64, key string) error {
	return c.post(ctx, "transfer", "/v1/transfers",
		transferRequest{From: &from, To: &to, AmountCents: amountCents, IdempotencyKey: key})
}

func (c *Client) post(ctx context.Context, operation, path string, req transferRequest) error {
	if req.AmountCents <= 0 {
		return models.NewValidationError("transfer amount must be positive")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(path)
	if err != nil {
		observability.LedgerRequests.WithLabelValues(operation, "error").Inc()
		return models.NewInternalError(err)
	}
	if resp.IsError() {
		observability.LedgerRequests.WithLabelValues(operation, "error").Inc()
		return responseError(resp)
	}
	observability.LedgerRequests.WithLabelValues(operation, "ok").Inc()
	return nil
}

func responseError(resp *resty.Response) error {
	var body errorBody
	_ = json.Unmarshal(resp.Body(), &body)
	if resp.StatusCode() == 402 || resp.StatusCode() == 422 {
		if body.Error != "" {
			return models.NewValidationError(body.Error)
		}
		return models.NewValidationError("insufficient funds")
	}
	return models.NewInternalError(fmt.Errorf("ledger responded %d: %s", resp.StatusCode(), body.Error))
}
