package coinbase

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/coinbase-client/pkg/clock"
	"github.com/Sternrassler/coinbase-client/pkg/pagination"
	"github.com/Sternrassler/coinbase-client/pkg/request"
	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// Core is the part of *client.Client this package needs.
type Core interface {
	pagination.Fetcher
	Do(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error)
	StartClockSync(ctx context.Context, source clock.TimeSource) error
}

// Client exposes typed Coinbase endpoints.
type Client struct {
	core   Core
	logger zerolog.Logger
}

// New creates a catalogue client over core.
func New(core Core, logger zerolog.Logger) *Client {
	return &Client{
		core:   core,
		logger: logger.With().Str("component", "coinbase").Logger(),
	}
}

// Accounts lists the user's accounts.
func (c *Client) Accounts(ctx context.Context) iter.Seq2[Account, error] {
	p := pagination.New(c.core, ListAccounts, pagination.StartingAfterCursor[Account](), pagination.Config{}, c.logger)
	return p.All(ctx, request.Params{})
}

// Account fetches one account.
func (c *Client) Account(ctx context.Context, accountID string) (*Account, error) {
	var out struct {
		Data Account `json:"data"`
	}
	params := request.Params{Path: map[string]string{"account": accountID}}
	if err := c.call(ctx, GetAccount, params, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Transactions lists an account's transactions, 100 per page.
func (c *Client) Transactions(ctx context.Context, accountID string) iter.Seq2[Transaction, error] {
	p := pagination.New(c.core, ListTransactions, pagination.StartingAfterCursor[Transaction](),
		pagination.Config{Limit: transactionsPageSize}, c.logger)
	return p.All(ctx, request.Params{Path: map[string]string{"account": accountID}})
}

// Addresses lists an account's addresses.
func (c *Client) Addresses(ctx context.Context, accountID string) iter.Seq2[Address, error] {
	p := pagination.New(c.core, ListAddresses, pagination.StartingAfterCursor[Address](), pagination.Config{}, c.logger)
	return p.All(ctx, request.Params{Path: map[string]string{"account": accountID}})
}

// PaymentMethods lists payment methods. The endpoint is not paged.
func (c *Client) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	p := pagination.New(c.core, ListPaymentMethods, pagination.SinglePage[PaymentMethod]("payment_methods"), pagination.Config{}, c.logger)
	return p.Collect(ctx, request.Params{})
}

// Withdraw moves funds from an account to a payment method.
func (c *Client) Withdraw(ctx context.Context, accountID string, req WithdrawalRequest) (*Transfer, error) {
	if req.PaymentMethod == uuid.Nil {
		return nil, fmt.Errorf("withdraw: payment method is required")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("withdraw: amount must be positive (got %s)", req.Amount)
	}

	params := request.Params{
		Path: map[string]string{"account": accountID},
		Body: req,
	}

	// Responses come either wrapped in "data" or bare.
	var out struct {
		Data *Transfer `json:"data"`
		Transfer
	}
	if err := c.call(ctx, CreateWithdrawal, params, &out); err != nil {
		return nil, err
	}
	if out.Data != nil {
		return out.Data, nil
	}
	return &out.Transfer, nil
}

// Orders lists historical orders matching filter.
func (c *Client) Orders(ctx context.Context, filter OrderFilter) iter.Seq2[Order, error] {
	params := request.Params{Query: map[string][]string{}}
	for _, id := range filter.ProductIDs {
		params.Query.Add("product_ids", id)
	}
	for _, status := range filter.OrderStatus {
		params.Query.Add("order_status", status)
	}
	if !filter.StartDate.IsZero() {
		params.Query.Set("start_date", filter.StartDate.UTC().Format(time.RFC3339))
	}
	if !filter.EndDate.IsZero() {
		params.Query.Set("end_date", filter.EndDate.UTC().Format(time.RFC3339))
	}

	p := pagination.New(c.core, ListOrders, pagination.BodyCursor[Order]("orders"),
		pagination.Config{Limit: filter.Limit}, c.logger)
	return p.All(ctx, params)
}

// Fills lists fills for a product, newest first.
func (c *Client) Fills(ctx context.Context, productID string) iter.Seq2[Fill, error] {
	params := request.Params{Query: map[string][]string{"product_id": {productID}}}
	p := pagination.New(c.core, ListFills, pagination.HeaderCursor[Fill](pagination.After), pagination.Config{}, c.logger)
	return p.All(ctx, params)
}

// Products lists tradable products. Responses are cached when the client
// has a cache configured.
func (c *Client) Products(ctx context.Context, productType string) ([]Product, error) {
	params := request.Params{}
	if productType != "" {
		params.Query = map[string][]string{"product_type": {productType}}
	}
	p := pagination.New(c.core, ListProducts, pagination.SinglePage[Product]("products"), pagination.Config{}, c.logger)
	return p.Collect(ctx, params)
}

// ServerTime returns the exchange clock. It makes *Client a clock.TimeSource.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out serverTime
	if err := c.call(ctx, GetServerTime, request.Params{}, &out); err != nil {
		return time.Time{}, err
	}

	if out.EpochMillis != "" {
		if ms, err := strconv.ParseInt(out.EpochMillis, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, out.ISO)
	if err != nil {
		return time.Time{}, &pagination.DecodeError{Kind: pagination.KindSchemaMismatch, Err: err}
	}
	return t, nil
}

// StartClockSync keeps the signing clock aligned with ServerTime.
func (c *Client) StartClockSync(ctx context.Context) error {
	return c.core.StartClockSync(ctx, c)
}

// call performs a single-shot request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, ep request.Endpoint, params request.Params, out any) error {
	resp, err := c.core.Do(ctx, ep, params)
	if err != nil {
		return err
	}
	if err := checkResponse(ep.Name, resp); err != nil {
		c.logger.Debug().Err(err).Str("endpoint", ep.Name).Msg("API error")
		return err
	}
	return pagination.DecodeJSON(resp.Body, out)
}
