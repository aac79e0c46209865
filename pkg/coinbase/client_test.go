package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/coinbase-client/internal/testutil"
	"github.com/Sternrassler/coinbase-client/pkg/auth"
	"github.com/Sternrassler/coinbase-client/pkg/client"
	"github.com/Sternrassler/coinbase-client/pkg/pagination"
	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

const testSecret = "Y29pbmJhc2UtdGVzdC1zZWNyZXQtMDEyMzQ1Njc4OQ=="

func newTestCatalogue(t *testing.T, mock *testutil.MockExchange, mutate ...func(*client.Config)) (*Client, *client.Client) {
	t.Helper()
	logger := zerolog.Nop()
	cfg := client.DefaultConfig(mock.URL(), auth.NewHMACCredentials("test-key", testSecret, "test-pass"))
	cfg.Logger = &logger
	for _, m := range mutate {
		m(&cfg)
	}

	core, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })
	return New(core, logger), core
}

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) ([]T, error) {
	t.Helper()
	var (
		out     []T
		lastErr error
	)
	for item, err := range seq {
		if err != nil {
			lastErr = err
			continue
		}
		require.NoError(t, lastErr, "record after error")
		out = append(out, item)
	}
	return out, lastErr
}

func TestAccounts_FollowsStartingAfter(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.RequireAuth(true)
	mock.SetHandler(http.MethodGet, "/v2/accounts", testutil.NewV2PagesHandler(
		`[{"id":"a1","name":"BTC Wallet","balance":{"amount":"0.50000000","currency":"BTC"}}]`,
		`[{"id":"a2","name":"ETH Wallet","balance":{"amount":"1.25","currency":"ETH"}}]`,
		`[{"id":"a3","name":"EUR Wallet","balance":{"amount":"100.00","currency":"EUR"}}]`,
	))

	cb, _ := newTestCatalogue(t, mock)
	accounts, err := collect(t, cb.Accounts(context.Background()))
	require.NoError(t, err)

	require.Len(t, accounts, 3)
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{accounts[0].ID, accounts[1].ID, accounts[2].ID})
	assert.True(t, accounts[1].Balance.Amount.Equal(decimal.RequireFromString("1.25")))

	reqs := mock.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "", reqs[0].Query)
	assert.Equal(t, "starting_after=page-0", reqs[1].Query)
	assert.Equal(t, "starting_after=page-1", reqs[2].Query)
}

func TestAccounts_RestartsOnEachRange(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetHandler(http.MethodGet, "/v2/accounts", testutil.NewV2PagesHandler(`[{"id":"a1"}]`, `[{"id":"a2"}]`))

	cb, _ := newTestCatalogue(t, mock)
	seq := cb.Accounts(context.Background())

	first, err := collect(t, seq)
	require.NoError(t, err)
	second, err := collect(t, seq)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 4, mock.RequestCount())
}

func TestTransactions_UsesPageSizeAndEscapesAccount(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	txID := uuid.New()
	mock.SetHandler(http.MethodGet, "/v2/accounts/acc-1/transactions", testutil.NewV2PagesHandler(
		fmt.Sprintf(`[{"id":%q,"type":"send","status":"completed","amount":{"amount":"-0.1","currency":"BTC"}}]`, txID),
	))

	cb, _ := newTestCatalogue(t, mock)
	txs, err := collect(t, cb.Transactions(context.Background(), "acc-1"))
	require.NoError(t, err)

	require.Len(t, txs, 1)
	assert.Equal(t, txID, txs[0].ID)
	assert.True(t, txs[0].Amount.Amount.IsNegative())

	q, err := url.ParseQuery(mock.Requests()[0].Query)
	require.NoError(t, err)
	assert.Equal(t, "100", q.Get("limit"))
}

func TestAddresses_FailureIsLastElement(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetHandler(http.MethodGet, "/v2/accounts/acc-1/addresses", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("starting_after") == "" {
			w.Write([]byte(`{"pagination":{"next_starting_after":"addr-1"},"data":[{"id":"addr-1","address":"bc1q"}]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"unavailable","message":"try later"}`))
	})

	cb, _ := newTestCatalogue(t, mock)
	addrs, err := collect(t, cb.Addresses(context.Background(), "acc-1"))

	require.Len(t, addrs, 1)
	assert.Equal(t, "bc1q", addrs[0].Address)

	var se *pagination.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Page)
	assert.ErrorIs(t, err, transport.ErrHTTP)
}

func TestPaymentMethods(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetResponse(http.MethodGet, "/api/v3/brokerage/payment_methods", testutil.NewJSONResponse(
		`{"payment_methods":[{"id":"pm-1","type":"SEPA","name":"Bank","currency":"EUR","allow_withdraw":true,"created_at":"2023-01-01T00:00:00Z","updated_at":"2023-01-02T00:00:00Z"}]}`))

	cb, _ := newTestCatalogue(t, mock)
	methods, err := cb.PaymentMethods(context.Background())
	require.NoError(t, err)

	require.Len(t, methods, 1)
	assert.Equal(t, "pm-1", methods[0].ID)
	assert.True(t, methods[0].AllowWithdraw)
	assert.Equal(t, 1, mock.RequestCount())
}

func TestWithdraw(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.RequireAuth(true)
	mock.SetResponse(http.MethodPost, "/v2/accounts/acc-1/withdrawals", testutil.NewJSONResponse(
		`{"data":{"id":"tr-1","status":"created","committed":true,"amount":{"value":"10.50","currency":"EUR"}}}`))

	cb, _ := newTestCatalogue(t, mock)
	pm := uuid.MustParse("8b6f0a4e-3f5c-4d7a-9b1e-2c3d4e5f6a7b")

	transfer, err := cb.Withdraw(context.Background(), "acc-1", WithdrawalRequest{
		Amount:        decimal.RequireFromString("10.50"),
		Currency:      "EUR",
		PaymentMethod: pm,
		Commit:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tr-1", transfer.ID)
	assert.True(t, transfer.Committed)

	req := mock.Requests()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, map[string]any{
		"amount":         "10.5",
		"currency":       "EUR",
		"payment_method": pm.String(),
		"commit":         true,
	}, body)
}

func TestWithdraw_Validation(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	cb, _ := newTestCatalogue(t, mock)

	_, err := cb.Withdraw(context.Background(), "acc-1", WithdrawalRequest{Amount: decimal.NewFromInt(1), Currency: "EUR"})
	assert.Error(t, err, "missing payment method")

	_, err = cb.Withdraw(context.Background(), "acc-1", WithdrawalRequest{Amount: decimal.Zero, PaymentMethod: uuid.New()})
	assert.Error(t, err, "zero amount")

	assert.Equal(t, 0, mock.RequestCount())
}

func TestWithdraw_APIError(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetResponse(http.MethodPost, "/v2/accounts/acc-1/withdrawals", testutil.MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"errors":[{"id":"validation_error","message":"Insufficient funds"}]}`,
	})

	cb, _ := newTestCatalogue(t, mock)
	_, err := cb.Withdraw(context.Background(), "acc-1", WithdrawalRequest{
		Amount: decimal.NewFromInt(5), Currency: "EUR", PaymentMethod: uuid.New(), Commit: true,
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.ID)
	assert.Equal(t, "Insufficient funds", apiErr.Message)
	assert.ErrorIs(t, err, transport.ErrHTTP)
}

func TestOrders_FollowsBodyCursor(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetHandler(http.MethodGet, "/api/v3/brokerage/orders/historical/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"orders":[{"order_id":"o1","product_id":"BTC-USD","side":"BUY","filled_size":"0.1","average_filled_price":"42000","total_fees":"1.2","created_time":"2024-01-01T00:00:00Z"}],"cursor":"c-2","has_next":true}`))
			return
		}
		w.Write([]byte(`{"orders":[{"order_id":"o2","product_id":"ETH-USD","side":"SELL","filled_size":"1","average_filled_price":"2200","total_fees":"0.5","created_time":"2024-01-02T00:00:00Z"}],"cursor":"","has_next":false}`))
	})

	cb, _ := newTestCatalogue(t, mock)
	orders, err := collect(t, cb.Orders(context.Background(), OrderFilter{
		ProductIDs:  []string{"BTC-USD", "ETH-USD"},
		OrderStatus: []string{"FILLED"},
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:       50,
	}))
	require.NoError(t, err)

	require.Len(t, orders, 2)
	assert.Equal(t, "o1", orders[0].OrderID)
	assert.Equal(t, "o2", orders[1].OrderID)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	q, err := url.ParseQuery(reqs[0].Query)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, q["product_ids"])
	assert.Equal(t, "FILLED", q.Get("order_status"))
	assert.Equal(t, "2024-01-01T00:00:00Z", q.Get("start_date"))
	assert.Equal(t, "50", q.Get("limit"))

	q, err = url.ParseQuery(reqs[1].Query)
	require.NoError(t, err)
	assert.Equal(t, "c-2", q.Get("cursor"))
}

func TestFills_FollowsAfterHeader(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetHandler(http.MethodGet, "/fills", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			w.Header().Set("CB-AFTER", "1002")
			w.Write([]byte(`[{"trade_id":1004,"product_id":"BTC-USD","price":"42000.5","size":"0.01","fee":"0.1","side":"buy","created_at":"2024-01-01T00:00:00Z"},{"trade_id":1003,"product_id":"BTC-USD","price":"42001","size":"0.02","fee":"0.1","side":"sell","created_at":"2024-01-01T00:00:01Z"}]`))
		case "1002":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	cb, _ := newTestCatalogue(t, mock)
	fills, err := collect(t, cb.Fills(context.Background(), "BTC-USD"))
	require.NoError(t, err)

	require.Len(t, fills, 2)
	assert.Equal(t, int64(1004), fills[0].TradeID)
	assert.True(t, fills[0].Price.Equal(decimal.RequireFromString("42000.5")))
	assert.Equal(t, 2, mock.RequestCount())
}

func TestProducts_PublicAndUnsigned(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetResponse(http.MethodGet, "/api/v3/brokerage/market/products", testutil.NewJSONResponse(
		`{"products":[{"product_id":"BTC-USD","price":"42000","base_increment":"0.00000001","quote_increment":"0.01","status":"online"}],"num_products":1}`))

	cb, _ := newTestCatalogue(t, mock, func(c *client.Config) { c.Credentials = nil })
	products, err := cb.Products(context.Background(), "SPOT")
	require.NoError(t, err)

	require.Len(t, products, 1)
	assert.Equal(t, "BTC-USD", products[0].ProductID)

	req := mock.Requests()[0]
	assert.Equal(t, "product_type=SPOT", req.Query)
	assert.Empty(t, req.Header.Get(auth.HeaderAccessSign))
}

func TestServerTime_AndClockSync(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetClockOffset(5 * time.Minute)

	cb, core := newTestCatalogue(t, mock, func(c *client.Config) { c.ClockSyncInterval = time.Hour })

	serverNow, err := cb.ServerTime(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), serverNow, 2*time.Second)

	require.NoError(t, cb.StartClockSync(context.Background()))
	assert.InDelta(t, (5 * time.Minute).Seconds(), core.Clock().Skew().Seconds(), 2)
}

func TestServerTime_ISOFallback(t *testing.T) {
	mock := testutil.NewMockExchange()
	defer mock.Close()
	mock.SetResponse(http.MethodGet, "/api/v3/brokerage/time", testutil.NewJSONResponse(`{"iso":"2024-05-01T12:00:00.5Z"}`))

	cb, _ := newTestCatalogue(t, mock)
	got, err := cb.ServerTime(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)))
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantID  string
		wantMsg string
	}{
		{"v2 errors array", 404, `{"errors":[{"id":"not_found","message":"Not found"}]}`, "not_found", "Not found"},
		{"v3 error object", 403, `{"error":"PERMISSION_DENIED","message":"Missing scope"}`, "PERMISSION_DENIED", "Missing scope"},
		{"non json", 502, `<html>bad gateway</html>`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkResponse("ep", &transport.RawResponse{Status: tt.status, Header: http.Header{}, Body: []byte(tt.body)})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantID, apiErr.ID)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}

	assert.NoError(t, checkResponse("ep", &transport.RawResponse{Status: 200}))
}
