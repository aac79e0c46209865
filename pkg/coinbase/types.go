package coinbase

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Balance is an amount in a currency.
type Balance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Currency describes an account's currency.
type Currency struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Exponent int    `json:"exponent"`
	Type     string `json:"type"`
}

// Account is a v2 wallet.
type Account struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
	Resource         string     `json:"resource"`
	ResourcePath     string     `json:"resource_path"`
	Name             string     `json:"name"`
	Primary          bool       `json:"primary"`
	Currency         Currency   `json:"currency"`
	Balance          Balance    `json:"balance"`
	AllowDeposits    bool       `json:"allow_deposits"`
	AllowWithdrawals bool       `json:"allow_withdrawals"`
}

// Transaction is a v2 account transaction.
type Transaction struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	Resource        string     `json:"resource"`
	ResourcePath    string     `json:"resource_path"`
	Status          string     `json:"status"`
	Amount          Balance    `json:"amount"`
	NativeAmount    Balance    `json:"native_amount"`
	InstantExchange bool       `json:"instant_exchange"`
	Network         *struct {
		Status string `json:"status"`
	} `json:"network,omitempty"`
	Details struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	} `json:"details"`
}

// Address is a deposit address of an account.
type Address struct {
	ID           string     `json:"id"`
	Address      string     `json:"address"`
	Name         string     `json:"name"`
	Network      string     `json:"network"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	Resource     string     `json:"resource"`
	ResourcePath string     `json:"resource_path"`
}

// PaymentMethod is a funding source for withdrawals.
type PaymentMethod struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Currency      string    `json:"currency"`
	Verified      bool      `json:"verified"`
	AllowBuy      bool      `json:"allow_buy"`
	AllowSell     bool      `json:"allow_sell"`
	AllowDeposit  bool      `json:"allow_deposit"`
	AllowWithdraw bool      `json:"allow_withdraw"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WithdrawalRequest is the body of a withdrawal.
type WithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod uuid.UUID       `json:"payment_method"`
	Commit        bool            `json:"commit"`
}

// Amount is a value as reported by the transfer API.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// Transfer is the result of a withdrawal.
type Transfer struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	Committed          bool       `json:"committed"`
	Instant            bool       `json:"instant"`
	Idem               string     `json:"idem"`
	UserEnteredAmount  Amount     `json:"user_entered_amount"`
	Amount             Amount     `json:"amount"`
	Subtotal           Amount     `json:"subtotal"`
	Total              Amount     `json:"total"`
	PayoutAt           *time.Time `json:"payout_at"`
	CreatedAt          *time.Time `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
	UserReference      string     `json:"user_reference"`
	CancellationReason string     `json:"cancellation_reason"`
	HoldDays           int        `json:"hold_days"`
}

// Order is an Advanced Trade historical order.
type Order struct {
	OrderID            string          `json:"order_id"`
	ClientOrderID      string          `json:"client_order_id"`
	ProductID          string          `json:"product_id"`
	Side               string          `json:"side"`
	Status             string          `json:"status"`
	OrderType          string          `json:"order_type"`
	CreatedTime        time.Time       `json:"created_time"`
	FilledSize         decimal.Decimal `json:"filled_size"`
	AverageFilledPrice decimal.Decimal `json:"average_filled_price"`
	TotalFees          decimal.Decimal `json:"total_fees"`
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	ProductIDs  []string
	OrderStatus []string
	StartDate   time.Time
	EndDate     time.Time
	Limit       int
}

// Fill is an Exchange API trade fill.
type Fill struct {
	TradeID   int64           `json:"trade_id"`
	ProductID string          `json:"product_id"`
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Fee       decimal.Decimal `json:"fee"`
	Side      string          `json:"side"`
	Liquidity string          `json:"liquidity"`
	Settled   bool            `json:"settled"`
	CreatedAt time.Time       `json:"created_at"`
}

// Product is a tradable pair.
type Product struct {
	ProductID       string          `json:"product_id"`
	Price           decimal.Decimal `json:"price"`
	BaseCurrencyID  string          `json:"base_currency_id"`
	QuoteCurrencyID string          `json:"quote_currency_id"`
	BaseIncrement   decimal.Decimal `json:"base_increment"`
	QuoteIncrement  decimal.Decimal `json:"quote_increment"`
	Status          string          `json:"status"`
	TradingDisabled bool            `json:"trading_disabled"`
}

// serverTime is the body of the time endpoint.
type serverTime struct {
	ISO          string `json:"iso"`
	EpochSeconds string `json:"epochSeconds"`
	EpochMillis  string `json:"epochMillis"`
}
