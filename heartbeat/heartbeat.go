// Package heartbeat implements the periodic global-state snapshot poller.
// Ticks are serial (the teacher's single-writer locking style from
// consensus/store, adapted here to one mutex held for the tick's
// duration) so that a slow tick never overlaps its successor.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"injdata/broker"
	"injdata/envelope"
	"injdata/ingest/queryclient"
	"injdata/internal/checkpoint"
	"injdata/internal/metrics"
)

// Poller owns the periodic snapshot tick.
type Poller struct {
	client        *queryclient.Client
	producer      *broker.Producer
	checkpoint    *checkpoint.TipCheckpoint
	interval      time.Duration
	fetchBalances bool
	logger        *slog.Logger
	mu            sync.Mutex
}

// New returns a Poller that ticks every interval, querying client and
// forwarding snapshots through producer. tip may be nil, in which case the
// poller never persists the tip it observes (e.g. in tests).
func New(client *queryclient.Client, producer *broker.Producer, tip *checkpoint.TipCheckpoint, interval time.Duration, fetchBalances bool, logger *slog.Logger) *Poller {
	return &Poller{
		client:        client,
		producer:      producer,
		checkpoint:    tip,
		interval:      interval,
		fetchBalances: fetchBalances,
		logger:        logger.With("component", "heartbeat.Poller"),
	}
}

// Run ticks until ctx is cancelled. Each tick holds the poller's mutex for
// its full duration, guaranteeing ticks never overlap even if one runs
// longer than the configured interval.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tip, err := p.client.Tip(ctx)
	if err != nil {
		tip = p.producer.LatestBlock()
		if tip == 0 && p.checkpoint != nil {
			if persisted, loadErr := p.checkpoint.Load(); loadErr == nil {
				tip = persisted
			}
		}
		p.logger.Warn("tip query failed, falling back to last known tip", "error", err, "fallback_tip", tip)
	} else if p.checkpoint != nil {
		if err := p.checkpoint.Save(tip); err != nil {
			p.logger.Warn("failed to persist tip checkpoint", "error", err)
		}
	}
	blockTime := uint64(time.Now().UnixMilli())

	var envs []envelope.Envelope

	markets, err := p.client.DerivativeMarkets(ctx, envelope.MarketStatusActive)
	if err != nil {
		p.logger.Warn("derivative markets query failed", "error", err)
		markets = nil
	}
	if len(markets) > 0 {
		envs = append(envs, envelope.Envelope{
			MessageType: envelope.MessageTypeDerivativeMarket,
			BlockHeight: tip,
			BlockTime:   blockTime,
			Payload:     envelope.DerivativeMarketList(marketsFromQuery(markets)),
		})
	}

	positions, err := p.client.Positions(ctx)
	if err != nil {
		p.logger.Warn("positions query failed", "error", err)
		positions = nil
	}
	if len(positions) > 0 {
		envs = append(envs, envelope.Envelope{
			MessageType: envelope.MessageTypeExchangePosition,
			BlockHeight: tip,
			BlockTime:   blockTime,
			Payload:     envelope.ExchangePositionList(positionsFromQuery(positions)),
		})
	}

	if p.fetchBalances {
		balances, err := p.client.ExchangeBalances(ctx)
		if err != nil {
			p.logger.Warn("exchange balances query failed", "error", err)
			balances = nil
		}
		if len(balances) > 0 {
			envs = append(envs, envelope.Envelope{
				MessageType: envelope.MessageTypeExchangeBalance,
				BlockHeight: tip,
				BlockTime:   blockTime,
				Payload:     envelope.ExchangeBalanceList(balancesFromQuery(balances)),
			})
		}
	}

	orderbooks := p.fetchOrderbooks(ctx, markets)
	if len(orderbooks) > 0 {
		envs = append(envs, envelope.Envelope{
			MessageType: envelope.MessageTypeDerivativeL3Orderbook,
			BlockHeight: tip,
			BlockTime:   blockTime,
			Payload:     envelope.DerivativeL3OrderbookList(orderbooks),
		})
	}

	if len(envs) == 0 {
		return
	}
	for _, outcome := range p.producer.SendBatchCurrentOnly(ctx, envs) {
		if outcome.Err != nil {
			p.logger.Warn("failed to forward heartbeat snapshot", "key", outcome.Key, "error", outcome.Err)
		}
	}
	metrics.Ingester().RecordRecords(len(envs))
}

// fetchOrderbooks gathers the full L3 orderbook for every active market
// into a single batched slice (spec.md §4.3 step 5).
func (p *Poller) fetchOrderbooks(ctx context.Context, markets []queryclient.DerivativeMarket) []envelope.L3Orderbook {
	out := make([]envelope.L3Orderbook, 0, len(markets))
	for _, m := range markets {
		ob, err := p.client.FullDerivativeOrderbook(ctx, m.MarketID)
		if err != nil {
			p.logger.Warn("full orderbook query failed", "market_id", m.MarketID, "error", err)
			continue
		}
		out = append(out, envelope.L3Orderbook{
			MarketID: ob.MarketID,
			Bids:     ordersFromQuery(ob.Buys),
			Asks:     ordersFromQuery(ob.Sells),
		})
	}
	return out
}

func marketsFromQuery(in []queryclient.DerivativeMarket) []envelope.DerivativeMarket {
	out := make([]envelope.DerivativeMarket, 0, len(in))
	for _, m := range in {
		out = append(out, envelope.DerivativeMarket{
			MarketID:               m.MarketID,
			Ticker:                 m.Ticker,
			OracleBase:             m.OracleBase,
			OracleQuote:            m.OracleQuote,
			QuoteDenom:             m.QuoteDenom,
			MakerFeeRate:           m.MakerFeeRate,
			TakerFeeRate:           m.TakerFeeRate,
			InitialMarginRatio:     m.InitialMarginRatio,
			MaintenanceMarginRatio: m.MaintenanceMarginRatio,
			IsPerpetual:            m.IsPerpetual,
			Status:                 m.Status,
			MarkPrice:              m.MarkPrice,
			MinPriceTick:           m.MinPriceTick,
			MinQuantityTick:        m.MinQuantityTick,
			MinNotional:            m.MinNotional,
			HFR:                    m.HourlyFundingRateCap,
			HIR:                    m.HourlyInterestRate,
			FundingInterval:        m.FundingInterval,
			CumulativeFunding:      m.CumulativeFunding,
			CumulativePrice:        m.CumulativePrice,
		})
	}
	return out
}

func positionsFromQuery(in []queryclient.Position) []envelope.Position {
	out := make([]envelope.Position, 0, len(in))
	for _, p := range in {
		out = append(out, envelope.Position{
			MarketID:               p.MarketID,
			SubaccountID:           p.SubaccountID,
			IsLong:                 p.IsLong,
			Quantity:               p.Quantity,
			EntryPrice:             p.EntryPrice,
			Margin:                 p.Margin,
			CumulativeFundingEntry: p.CumulativeFundingEntry,
		})
	}
	return out
}

func balancesFromQuery(in []queryclient.Balance) []envelope.Balance {
	out := make([]envelope.Balance, 0, len(in))
	for _, b := range in {
		out = append(out, envelope.Balance{
			SubaccountID:     b.SubaccountID,
			Denom:            b.Denom,
			AvailableBalance: b.AvailableBalance,
			TotalBalance:     b.TotalBalance,
		})
	}
	return out
}

func ordersFromQuery(in []queryclient.L3Order) []envelope.L3Order {
	out := make([]envelope.L3Order, 0, len(in))
	for _, o := range in {
		out = append(out, envelope.L3Order{
			Price:        o.Price,
			Quantity:     o.Quantity,
			OrderHash:    o.OrderHash,
			SubaccountID: o.SubaccountID,
		})
	}
	return out
}
