// Package cache implements the cache sink: a Redis-backed Processor that
// applies the §4.5 market/position rules, maintains the Markets→Others
// phase machine, and recomputes liquidation state inline so that a freshly
// written market record immediately flips every one of its cached
// positions' liquidatable status.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"injdata/consume/phase"
	"injdata/envelope"
	"injdata/internal/injerr"
	"injdata/internal/metrics"
	"injdata/liquidation"
	"injdata/pubsub"
)

// Sink wraps a Redis connection and implements consume.Processor, applying
// spec.md §4.5's market/position rules under the Markets→Others phase gate.
type Sink struct {
	client *redis.Client
	ttl    time.Duration
	ps     *pubsub.Service
	phase  *phase.Machine
	logger *slog.Logger

	// mu serializes one event's mutations; released before any pub/sub
	// publish to avoid lock inversion with the pub/sub worker queue (§9).
	mu sync.Mutex
}

// NewSink connects to redisURL, persists the initial Markets-phase markers,
// and returns a ready Sink. ttlSeconds of 0 disables expiry on cache keys.
func NewSink(ctx context.Context, redisURL string, ttlSeconds int, ps *pubsub.Service, logger *slog.Logger) (*Sink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, injerr.Configuration("cache.NewSink: parse redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, injerr.Connection("cache.NewSink: ping", err)
	}

	s := &Sink{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		ps:     ps,
		phase:  phase.NewMachine(),
		logger: logger.With("component", "cache.Sink"),
	}

	if err := client.Set(ctx, keyProcessingPhase, string(phase.Markets), 0).Err(); err != nil {
		return nil, injerr.Connection("cache.NewSink: persist initial phase", err)
	}
	if err := client.Set(ctx, keyMarketsReady, "false", 0).Err(); err != nil {
		return nil, injerr.Connection("cache.NewSink: persist initial markets_ready", err)
	}

	return s, nil
}

// Process implements consume.Processor. DerivativeMarket envelopes always
// run immediately (they drive the phase transition); every other envelope
// is deferred while the phase machine is still in Markets.
func (s *Sink) Process(ctx context.Context, env envelope.Envelope) error {
	if env.MessageType == envelope.MessageTypeDerivativeMarket {
		return s.processMarketEnvelope(ctx, env)
	}

	if s.phase.DeferIfMarkets(env) {
		metrics.Consumer("cache").SetDeferredDepth(s.phase.DeferredDepth())
		return nil
	}
	return s.dispatchNonMarket(ctx, env)
}

func (s *Sink) dispatchNonMarket(ctx context.Context, env envelope.Envelope) error {
	switch p := env.Payload.(type) {
	case envelope.ExchangePositionList:
		return s.processPositions(ctx, []envelope.Position(p))
	case envelope.StreamPositionList:
		return s.processPositions(ctx, []envelope.Position(p))
	default:
		s.logger.Info("message type not handled by cache sink", "message_type", env.MessageType)
		return nil
	}
}

func (s *Sink) processMarketEnvelope(ctx context.Context, env envelope.Envelope) error {
	markets, ok := env.Payload.(envelope.DerivativeMarketList)
	if !ok {
		return injerr.Serialization("cache.processMarketEnvelope", fmt.Errorf("unexpected payload type %T", env.Payload))
	}

	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.MarketID)
	}
	s.phase.ObserveMarkets(ids)

	for _, m := range markets {
		if err := s.processOneMarket(ctx, m, env.BlockTime); err != nil {
			s.logger.Warn("market processing failed", "market_id", m.MarketID, "error", err)
		}

		tr := s.phase.MarketProcessed(m.MarketID)
		metrics.Consumer("cache").SetDeferredDepth(s.phase.DeferredDepth())
		if tr.Occurred {
			s.onPhaseTransition(ctx, tr)
		}
	}
	return nil
}

func (s *Sink) onPhaseTransition(ctx context.Context, tr phase.Transition) {
	if err := s.client.Set(ctx, keyProcessingPhase, string(phase.Others), 0).Err(); err != nil {
		s.logger.Warn("failed to persist processing_phase=others", "error", err)
	}
	if err := s.client.Set(ctx, keyMarketsReady, "true", 0).Err(); err != nil {
		s.logger.Warn("failed to persist markets_ready=true", "error", err)
	}
	metrics.Consumer("cache").SetPhaseReady(true)

	for _, deferred := range tr.Drained {
		if err := s.dispatchNonMarket(ctx, deferred); err != nil {
			s.logger.Warn("failed to drain deferred envelope", "error", err, "message_type", deferred.MessageType)
		}
	}

	if s.ps != nil {
		event := pubsub.Event{
			EventType: pubsub.EventSystemEvent,
			Timestamp: uint64(time.Now().UnixMilli()),
			Payload: map[string]int{
				"processed_count": tr.ProcessedCount,
				"market_count":    tr.MarketCount,
			},
		}
		if err := s.ps.PublishEvent(event); err != nil {
			s.logger.Warn("failed to publish markets_ready system event", "error", err)
		}
	}
}

func (s *Sink) processOneMarket(ctx context.Context, m envelope.DerivativeMarket, blockTime uint64) error {
	mmr, ok1 := liquidation.ScaleChain(m.MaintenanceMarginRatio)
	markPrice, ok2 := liquidation.ScalePrice(m.MarkPrice)
	cumFunding, ok3 := liquidation.ScalePrice(m.CumulativeFunding)
	initialMarginRatio, _ := liquidation.ScaleChain(m.InitialMarginRatio)

	s.mu.Lock()
	fields := map[string]interface{}{
		"ticker":                    m.Ticker,
		"oracle_base":               m.OracleBase,
		"oracle_quote":              m.OracleQuote,
		"quote_denom":               m.QuoteDenom,
		"maker_fee_rate":            m.MakerFeeRate,
		"taker_fee_rate":            m.TakerFeeRate,
		"initial_margin_ratio":      strconv.FormatFloat(initialMarginRatio, 'f', -1, 64),
		"maintenance_margin_ratio":  strconv.FormatFloat(mmr, 'f', -1, 64),
		"is_perpetual":              strconv.FormatBool(m.IsPerpetual),
		"status":                    m.Status,
		"mark_price":                strconv.FormatFloat(markPrice, 'f', -1, 64),
		"min_price_tick":            m.MinPriceTick,
		"min_quantity_tick":         m.MinQuantityTick,
		"min_notional":              m.MinNotional,
		"hfr":                       m.HFR,
		"hir":                       m.HIR,
		"funding_interval":          m.FundingInterval,
		"cumulative_funding":        strconv.FormatFloat(cumFunding, 'f', -1, 64),
		"cumulative_price":          m.CumulativePrice,
	}
	err := s.client.HSet(ctx, marketKey(m.MarketID), fields).Err()
	if err == nil {
		err = s.client.SAdd(ctx, keyMarketsSet, m.MarketID).Err()
	}
	s.applyTTL(ctx, marketKey(m.MarketID))
	s.mu.Unlock()

	if err != nil {
		return injerr.Connection("cache.processOneMarket: upsert", err)
	}

	if !ok1 || !ok2 || !ok3 {
		metrics.Liquidation().RecordSkipped()
		s.logger.Warn("market has non-parsable decimal fields, recompute skipped", "market_id", m.MarketID)
	} else {
		s.recomputeMarketPositions(ctx, m.MarketID)
	}

	if s.ps != nil {
		s.publishMarketAndPrice(m, blockTime, markPrice)
	}
	return nil
}

// publishMarketAndPrice fans out both a MarketUpdate and a PriceUpdate for a
// changed market record, matching the market_preloader's dual-publish
// behavior from the original implementation.
func (s *Sink) publishMarketAndPrice(m envelope.DerivativeMarket, blockTime uint64, markPrice float64) {
	marketEvent := pubsub.CreateMarketUpdate(blockTime, map[string]interface{}{
		"market_id":  m.MarketID,
		"ticker":     m.Ticker,
		"status":     m.Status,
		"mark_price": strconv.FormatFloat(markPrice, 'f', -1, 64),
	})
	if err := s.ps.PublishEvent(marketEvent); err != nil {
		s.logger.Warn("failed to publish MarketUpdate", "error", err, "market_id", m.MarketID)
	}

	priceEvent := pubsub.CreatePriceUpdate(blockTime, m.MarketID, m.MarkPrice)
	if err := s.ps.PublishEvent(priceEvent); err != nil {
		s.logger.Warn("failed to publish PriceUpdate", "error", err, "market_id", m.MarketID)
	}
}

func (s *Sink) applyTTL(ctx context.Context, key string) {
	if s.ttl <= 0 {
		return
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to apply ttl", "key", key, "error", err)
	}
}

// Close releases the underlying Redis connection.
func (s *Sink) Close() error {
	return s.client.Close()
}
