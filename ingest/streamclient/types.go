package streamclient

// StreamRequest mirrors the chain's StreamRequest message (one optional
// filter per domain; a present filter with a wildcard subscribes to every
// id in that domain), grounded on original_source/grpc/src/stream.rs.
type StreamRequest struct {
	BankBalancesFilter        *BankBalancesFilter      `json:"bank_balances_filter,omitempty"`
	SubaccountDepositsFilter  *SubaccountDepositsFilter `json:"subaccount_deposits_filter,omitempty"`
	SpotOrdersFilter          *OrdersFilter            `json:"spot_orders_filter,omitempty"`
	DerivativeOrdersFilter    *OrdersFilter            `json:"derivative_orders_filter,omitempty"`
	PositionsFilter           *PositionsFilter         `json:"positions_filter,omitempty"`
	OraclePriceFilter         *OraclePriceFilter       `json:"oracle_price_filter,omitempty"`
	DerivativeOrderbooksFilter *OrderbookFilter        `json:"derivative_orderbooks_filter,omitempty"`
	SpotOrderbooksFilter      *OrderbookFilter         `json:"spot_orderbooks_filter,omitempty"`
	SpotTradesFilter          *TradesFilter            `json:"spot_trades_filter,omitempty"`
	DerivativeTradesFilter    *TradesFilter            `json:"derivative_trades_filter,omitempty"`
}

type BankBalancesFilter struct {
	Accounts []string `json:"accounts"`
}
type SubaccountDepositsFilter struct {
	SubaccountIDs []string `json:"subaccount_ids"`
}
type OrdersFilter struct {
	SubaccountIDs []string `json:"subaccount_ids"`
	MarketIDs     []string `json:"market_ids"`
}
type PositionsFilter struct {
	SubaccountIDs []string `json:"subaccount_ids"`
	MarketIDs     []string `json:"market_ids"`
}
type OraclePriceFilter struct {
	Symbol []string `json:"symbol"`
}
type OrderbookFilter struct {
	MarketIDs []string `json:"market_ids"`
}
type TradesFilter struct {
	MarketIDs     []string `json:"market_ids"`
	SubaccountIDs []string `json:"subaccount_ids"`
}

// AllDomains builds a StreamRequest subscribing to every domain this
// pipeline consumes, with a "*" wildcard filter in each — the ingester
// always streams everything and relies on message-type dispatch, not
// server-side narrowing, to route records (spec.md §4.2).
func AllDomains() *StreamRequest {
	wildcard := []string{"*"}
	return &StreamRequest{
		BankBalancesFilter:         &BankBalancesFilter{Accounts: wildcard},
		SubaccountDepositsFilter:   &SubaccountDepositsFilter{SubaccountIDs: wildcard},
		SpotOrdersFilter:           &OrdersFilter{SubaccountIDs: wildcard, MarketIDs: wildcard},
		DerivativeOrdersFilter:     &OrdersFilter{SubaccountIDs: wildcard, MarketIDs: wildcard},
		PositionsFilter:            &PositionsFilter{SubaccountIDs: wildcard, MarketIDs: wildcard},
		OraclePriceFilter:          &OraclePriceFilter{Symbol: wildcard},
		DerivativeOrderbooksFilter: &OrderbookFilter{MarketIDs: wildcard},
		SpotOrderbooksFilter:       &OrderbookFilter{MarketIDs: wildcard},
		SpotTradesFilter:           &TradesFilter{MarketIDs: wildcard, SubaccountIDs: wildcard},
		DerivativeTradesFilter:     &TradesFilter{MarketIDs: wildcard, SubaccountIDs: wildcard},
	}
}

// StreamResponse mirrors the chain's StreamResponse message: any number of
// these slices may be populated per message, the rest left nil/empty. The
// block height and block time ride alongside every response so the
// ingester can stamp envelopes without a side query.
type StreamResponse struct {
	BlockHeight uint64 `json:"block_height"`
	BlockTime   uint64 `json:"block_time"`

	BankBalances       []BankBalanceUpdate      `json:"bank_balances,omitempty"`
	SubaccountDeposits []SubaccountDepositUpdate `json:"subaccount_deposits,omitempty"`
	SpotOrders         []OrderUpdate            `json:"spot_orders,omitempty"`
	DerivativeOrders   []OrderUpdate            `json:"derivative_orders,omitempty"`
	Positions          []PositionUpdate         `json:"positions,omitempty"`
	OraclePrices       []OraclePriceUpdate      `json:"oracle_prices,omitempty"`
	SpotOrderbookUpdates       []OrderbookUpdate `json:"spot_orderbook_updates,omitempty"`
	DerivativeOrderbookUpdates []OrderbookUpdate `json:"derivative_orderbook_updates,omitempty"`
	SpotTrades         []TradeUpdate            `json:"spot_trades,omitempty"`
	DerivativeTrades   []TradeUpdate            `json:"derivative_trades,omitempty"`
}

type BankBalanceUpdate struct {
	Account string `json:"account"`
	Denom   string `json:"denom"`
	Amount  string `json:"amount"`
}
type SubaccountDepositUpdate struct {
	SubaccountID     string `json:"subaccount_id"`
	Denom            string `json:"denom"`
	AvailableBalance string `json:"available_balance"`
	TotalBalance     string `json:"total_balance"`
}
type OrderUpdate struct {
	MarketID     string `json:"market_id"`
	SubaccountID string `json:"subaccount_id"`
	OrderHash    string `json:"order_hash"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	IsBuy        bool   `json:"is_buy"`
	Status       string `json:"status"`
}
type PositionUpdate struct {
	MarketID               string `json:"market_id"`
	SubaccountID           string `json:"subaccount_id"`
	IsLong                 bool   `json:"is_long"`
	Quantity               string `json:"quantity"`
	EntryPrice             string `json:"entry_price"`
	Margin                 string `json:"margin"`
	CumulativeFundingEntry string `json:"cumulative_funding_entry"`
}
type OraclePriceUpdate struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
type OrderbookUpdate struct {
	MarketID string    `json:"market_id"`
	Buys     []L2Level `json:"buys"`
	Sells    []L2Level `json:"sells"`
}
type L2Level struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}
type TradeUpdate struct {
	MarketID      string `json:"market_id"`
	SubaccountID  string `json:"subaccount_id"`
	IsBuy         bool   `json:"is_buy"`
	ExecutionType string `json:"execution_type"`
	Price         string `json:"price,omitempty"`
	PositionDelta string `json:"position_delta,omitempty"`
	Fee           string `json:"fee"`
	TradeID       string `json:"trade_id"`
}
