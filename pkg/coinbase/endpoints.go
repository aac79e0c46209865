package coinbase

import (
	"net/http"

	"github.com/Sternrassler/coinbase-client/pkg/request"
)

// v2 API.
var (
	ListAccounts = request.Endpoint{
		Name:   "list_accounts",
		Method: http.MethodGet,
		Path:   "/v2/accounts",
	}

	GetAccount = request.Endpoint{
		Name:   "get_account",
		Method: http.MethodGet,
		Path:   "/v2/accounts/{account}",
	}

	ListTransactions = request.Endpoint{
		Name:   "list_transactions",
		Method: http.MethodGet,
		Path:   "/v2/accounts/{account}/transactions",
	}

	ListAddresses = request.Endpoint{
		Name:   "list_addresses",
		Method: http.MethodGet,
		Path:   "/v2/accounts/{account}/addresses",
	}

	CreateWithdrawal = request.Endpoint{
		Name:   "create_withdrawal",
		Method: http.MethodPost,
		Path:   "/v2/accounts/{account}/withdrawals",
	}
)

// Advanced Trade API.
var (
	ListPaymentMethods = request.Endpoint{
		Name:   "list_payment_methods",
		Method: http.MethodGet,
		Path:   "/api/v3/brokerage/payment_methods",
	}

	ListOrders = request.Endpoint{
		Name:   "list_orders",
		Method: http.MethodGet,
		Path:   "/api/v3/brokerage/orders/historical/batch",
	}

	ListProducts = request.Endpoint{
		Name:      "list_products",
		Method:    http.MethodGet,
		Path:      "/api/v3/brokerage/market/products",
		Public:    true,
		Cacheable: true,
	}

	GetServerTime = request.Endpoint{
		Name:   "get_server_time",
		Method: http.MethodGet,
		Path:   "/api/v3/brokerage/time",
		Public: true,
	}
)

// Exchange API.
var ListFills = request.Endpoint{
	Name:          "list_fills",
	Method:        http.MethodGet,
	Path:          "/fills",
	RequiredQuery: []string{"product_id"},
}

// transactionsPageSize is the largest page the v2 API serves.
const transactionsPageSize = 100
