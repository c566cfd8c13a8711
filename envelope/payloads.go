package envelope

// Decimal fields throughout this file are transported as lossless decimal
// strings (I2): interpretation to floating point happens only at the sink,
// with the fixed scale factors in the liquidation package.

// DerivativeMarket is a single derivative market record.
type DerivativeMarket struct {
	MarketID               string `json:"market_id"`
	Ticker                 string `json:"ticker"`
	OracleBase             string `json:"oracle_base"`
	OracleQuote            string `json:"oracle_quote"`
	QuoteDenom             string `json:"quote_denom"`
	MakerFeeRate           string `json:"maker_fee_rate"`
	TakerFeeRate           string `json:"taker_fee_rate"`
	InitialMarginRatio     string `json:"initial_margin_ratio"`
	MaintenanceMarginRatio string `json:"maintenance_margin_ratio"`
	IsPerpetual            bool   `json:"is_perpetual"`
	Status                 string `json:"status"`
	MarkPrice              string `json:"mark_price"`
	MinPriceTick           string `json:"min_price_tick"`
	MinQuantityTick        string `json:"min_quantity_tick"`
	MinNotional            string `json:"min_notional"`
	HFR                    string `json:"hfr"`
	HIR                    string `json:"hir"`
	FundingInterval        int64  `json:"funding_interval"`
	CumulativeFunding      string `json:"cumulative_funding"`
	CumulativePrice        string `json:"cumulative_price"`
}

// MarketStatusActive is the status value the heartbeat poller filters on
// when snapshotting markets (§4.3 step 2).
const MarketStatusActive = "Active"

// Position is a single position record, shared by the ExchangePosition
// (heartbeat) and StreamPosition (stream feed) variants (Design Notes §9:
// "keep both variants in the closed tag set; route both through the same
// position handler").
type Position struct {
	MarketID                string `json:"market_id"`
	SubaccountID            string `json:"subaccount_id"`
	IsLong                  bool   `json:"is_long"`
	Quantity                string `json:"quantity"`
	EntryPrice              string `json:"entry_price"`
	Margin                  string `json:"margin"`
	CumulativeFundingEntry  string `json:"cumulative_funding_entry"`
}

// Balance is a single exchange balance record.
type Balance struct {
	SubaccountID     string `json:"subaccount_id"`
	Denom            string `json:"denom"`
	AvailableBalance string `json:"available_balance"`
	TotalBalance     string `json:"total_balance"`
}

// L3Order is a single resting order inside an L3 orderbook snapshot.
type L3Order struct {
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	OrderHash    string `json:"order_hash"`
	SubaccountID string `json:"subaccount_id"`
}

// L3Orderbook is a full order-by-order snapshot for one market.
type L3Orderbook struct {
	MarketID  string    `json:"market_id"`
	Bids      []L3Order `json:"bids"`
	Asks      []L3Order `json:"asks"`
	Timestamp uint64    `json:"timestamp"`
}

// L2Level is a single aggregated price level.
type L2Level struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// L2OrderbookUpdate is an incremental L2 orderbook update (spot or derivative).
type L2OrderbookUpdate struct {
	MarketID   string    `json:"market_id"`
	BuyLevels  []L2Level `json:"buy_levels"`
	SellLevels []L2Level `json:"sell_levels"`
	Sequence   uint64    `json:"sequence"`
}

// Trade is a single executed trade (spot or derivative).
type Trade struct {
	MarketID       string `json:"market_id"`
	IsBuy          bool   `json:"is_buy"`
	ExecutionType  string `json:"execution_type"`
	SubaccountID   string `json:"subaccount_id"`
	Price          string `json:"price,omitempty"`
	PositionDelta  string `json:"position_delta,omitempty"`
	Fee            string `json:"fee"`
	TradeID        string `json:"trade_id"`
}

// Order is an order-state record (spot or derivative).
type Order struct {
	MarketID     string `json:"market_id"`
	SubaccountID string `json:"subaccount_id"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	Fillable     string `json:"fillable"`
	IsBuy        bool   `json:"is_buy"`
	OrderType    string `json:"order_type"`
	Status       string `json:"status"`
}

// BankBalance is a bank-module balance update from the stream feed.
type BankBalance struct {
	AccountAddress string `json:"account_address"`
	Denom          string `json:"denom"`
	Amount         string `json:"amount"`
}

// SubaccountDeposit is a subaccount deposit/withdrawal update from the stream feed.
type SubaccountDeposit struct {
	SubaccountID     string `json:"subaccount_id"`
	Denom            string `json:"denom"`
	AvailableBalance string `json:"available_balance"`
	TotalBalance     string `json:"total_balance"`
}

// OraclePrice is an oracle price update from the stream feed.
type OraclePrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Type   string `json:"type"`
}

// Each *List type implements Payload by pairing a record slice with the
// message tag and wire variant key it must be wrapped under.

type DerivativeMarketList []DerivativeMarket

func (DerivativeMarketList) messageType() MessageType { return MessageTypeDerivativeMarket }
func (DerivativeMarketList) variantKey() string        { return "DerivativeMarkets" }

type ExchangePositionList []Position

func (ExchangePositionList) messageType() MessageType { return MessageTypeExchangePosition }
func (ExchangePositionList) variantKey() string        { return "ExchangePositions" }

type StreamPositionList []Position

func (StreamPositionList) messageType() MessageType { return MessageTypeStreamPosition }
func (StreamPositionList) variantKey() string        { return "StreamPositions" }

type ExchangeBalanceList []Balance

func (ExchangeBalanceList) messageType() MessageType { return MessageTypeExchangeBalance }
func (ExchangeBalanceList) variantKey() string        { return "ExchangeBalances" }

type DerivativeL3OrderbookList []L3Orderbook

func (DerivativeL3OrderbookList) messageType() MessageType {
	return MessageTypeDerivativeL3Orderbook
}
func (DerivativeL3OrderbookList) variantKey() string { return "DerivativeL3Orderbooks" }

type StreamSpotOrderbookList []L2OrderbookUpdate

func (StreamSpotOrderbookList) messageType() MessageType { return MessageTypeStreamSpotOrderbook }
func (StreamSpotOrderbookList) variantKey() string        { return "StreamSpotOrderbooks" }

type StreamDerivativeOrderbookList []L2OrderbookUpdate

func (StreamDerivativeOrderbookList) messageType() MessageType {
	return MessageTypeStreamDerivativeOrderbook
}
func (StreamDerivativeOrderbookList) variantKey() string { return "StreamDerivativeOrderbooks" }

type SpotTradeList []Trade

func (SpotTradeList) messageType() MessageType { return MessageTypeSpotTrade }
func (SpotTradeList) variantKey() string        { return "SpotTrades" }

type DerivativeTradeList []Trade

func (DerivativeTradeList) messageType() MessageType { return MessageTypeDerivativeTrade }
func (DerivativeTradeList) variantKey() string        { return "DerivativeTrades" }

type SpotOrderList []Order

func (SpotOrderList) messageType() MessageType { return MessageTypeSpotOrder }
func (SpotOrderList) variantKey() string        { return "SpotOrders" }

type DerivativeOrderList []Order

func (DerivativeOrderList) messageType() MessageType { return MessageTypeDerivativeOrder }
func (DerivativeOrderList) variantKey() string        { return "DerivativeOrders" }

type StreamBankBalanceList []BankBalance

func (StreamBankBalanceList) messageType() MessageType { return MessageTypeStreamBankBalance }
func (StreamBankBalanceList) variantKey() string        { return "StreamBankBalances" }

type StreamSubaccountDepositList []SubaccountDeposit

func (StreamSubaccountDepositList) messageType() MessageType {
	return MessageTypeStreamSubaccountDeposit
}
func (StreamSubaccountDepositList) variantKey() string { return "StreamSubaccountDeposits" }

type StreamOraclePriceList []OraclePrice

func (StreamOraclePriceList) messageType() MessageType { return MessageTypeStreamOraclePrice }
func (StreamOraclePriceList) variantKey() string        { return "StreamOraclePrices" }
