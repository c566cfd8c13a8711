package queryclient

// TipRequest/TipResponse mirror the side-channel status query spec.md §4.3
// step 1 calls out ("fetch current tip via a side-channel status query").
type TipRequest struct{}
type TipResponse struct {
	Height uint64 `json:"height"`
}

type DerivativeMarketsRequest struct {
	Status             string   `json:"status"`
	MarketIDs          []string `json:"market_ids"`
	WithMidPriceAndTOB bool     `json:"with_mid_price_and_tob"`
}
type DerivativeMarketsResponse struct {
	Markets []DerivativeMarket `json:"markets"`
}

// DerivativeMarket mirrors the chain's FullDerivativeMarket query response
// shape, grounded on original_source/grpc/src/query_client.rs.
type DerivativeMarket struct {
	MarketID                string `json:"market_id"`
	Ticker                  string `json:"ticker"`
	OracleBase              string `json:"oracle_base"`
	OracleQuote             string `json:"oracle_quote"`
	QuoteDenom              string `json:"quote_denom"`
	MakerFeeRate            string `json:"maker_fee_rate"`
	TakerFeeRate            string `json:"taker_fee_rate"`
	InitialMarginRatio      string `json:"initial_margin_ratio"`
	MaintenanceMarginRatio  string `json:"maintenance_margin_ratio"`
	IsPerpetual             bool   `json:"is_perpetual"`
	Status                  string `json:"status"`
	MarkPrice               string `json:"mark_price"`
	MinPriceTick            string `json:"min_price_tick"`
	MinQuantityTick         string `json:"min_quantity_tick"`
	MinNotional             string `json:"min_notional"`
	HourlyFundingRateCap    string `json:"hourly_funding_rate_cap"`
	HourlyInterestRate      string `json:"hourly_interest_rate"`
	FundingInterval         int64  `json:"funding_interval"`
	CumulativeFunding       string `json:"cumulative_funding"`
	CumulativePrice         string `json:"cumulative_price"`
}

type PositionsRequest struct{}
type PositionsResponse struct {
	State []Position `json:"state"`
}
type Position struct {
	MarketID               string `json:"market_id"`
	SubaccountID           string `json:"subaccount_id"`
	IsLong                 bool   `json:"is_long"`
	Quantity               string `json:"quantity"`
	EntryPrice             string `json:"entry_price"`
	Margin                 string `json:"margin"`
	CumulativeFundingEntry string `json:"cumulative_funding_entry"`
}

type ExchangeBalancesRequest struct{}
type ExchangeBalancesResponse struct {
	Balances []Balance `json:"balances"`
}
type Balance struct {
	SubaccountID     string `json:"subaccount_id"`
	Denom            string `json:"denom"`
	AvailableBalance string `json:"available_balance"`
	TotalBalance     string `json:"total_balance"`
}

type FullDerivativeOrderbookRequest struct {
	MarketID string `json:"market_id"`
}
type FullDerivativeOrderbookResponse struct {
	Orderbook L3Orderbook `json:"orderbook"`
}
type L3Orderbook struct {
	MarketID string    `json:"market_id"`
	Buys     []L3Order `json:"buys"`
	Sells    []L3Order `json:"sells"`
}
type L3Order struct {
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	OrderHash    string `json:"order_hash"`
	SubaccountID string `json:"subaccount_id"`
}
