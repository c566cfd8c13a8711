package cache

import (
	"context"
	"strconv"
	"time"

	"injdata/envelope"
	"injdata/internal/injerr"
	"injdata/internal/metrics"
	"injdata/liquidation"
	"injdata/pubsub"
)

// processPositions applies the ExchangePosition/StreamPosition rule from
// spec.md §4.5: both payload variants route through this single handler
// (§9: "keep both variants in the closed tag set; route both through the
// same position handler").
func (s *Sink) processPositions(ctx context.Context, positions []envelope.Position) error {
	for _, p := range positions {
		if err := s.processOnePosition(ctx, p); err != nil {
			s.logger.Warn("position processing failed", "market_id", p.MarketID, "subaccount_id", p.SubaccountID, "error", err)
		}
	}
	return nil
}

func (s *Sink) processOnePosition(ctx context.Context, p envelope.Position) error {
	exists, err := s.client.Exists(ctx, marketKey(p.MarketID)).Result()
	if err != nil {
		return injerr.Connection("cache.processOnePosition: check market exists", err)
	}
	if exists == 0 {
		s.logger.Warn("position observed before its market record, skipping", "market_id", p.MarketID, "subaccount_id", p.SubaccountID)
		return injerr.Phase("cache.processOnePosition", nil)
	}

	quantity, ok1 := liquidation.ScaleChain(p.Quantity)
	entryPrice, ok2 := liquidation.ScalePrice(p.EntryPrice)
	margin, ok3 := liquidation.ScalePrice(p.Margin)
	cumFundingEntry, ok4 := liquidation.ScalePrice(p.CumulativeFundingEntry)

	if !ok1 || !ok2 || !ok3 || !ok4 || quantity <= 0 || entryPrice <= 0 || margin <= 0 {
		metrics.Liquidation().RecordSkipped()
		s.logger.Warn("position has incomplete or non-positive inputs, skipping", "market_id", p.MarketID, "subaccount_id", p.SubaccountID)
		return nil
	}

	s.mu.Lock()
	err = s.client.HSet(ctx, positionKey(p.MarketID, p.SubaccountID), map[string]interface{}{
		"is_long":                   strconv.FormatBool(p.IsLong),
		"quantity":                  strconv.FormatFloat(quantity, 'f', -1, 64),
		"entry_price":               strconv.FormatFloat(entryPrice, 'f', -1, 64),
		"margin":                    strconv.FormatFloat(margin, 'f', -1, 64),
		"cumulative_funding_entry":  strconv.FormatFloat(cumFundingEntry, 'f', -1, 64),
	}).Err()
	if err == nil {
		err = s.client.SAdd(ctx, positionsMarketSetKey(p.MarketID), p.SubaccountID).Err()
	}
	if err == nil {
		err = s.client.SAdd(ctx, positionsSubaccountSetKey(p.SubaccountID), p.MarketID).Err()
	}
	s.applyTTL(ctx, positionKey(p.MarketID, p.SubaccountID))
	s.mu.Unlock()

	if err != nil {
		return injerr.Connection("cache.processOnePosition: upsert", err)
	}

	return s.recomputePosition(ctx, p.MarketID, p.SubaccountID)
}

// recomputeMarketPositions recomputes liquidation state for every
// subaccount known to hold a position in marketID, after a DerivativeMarket
// record has updated that market's cached fields.
func (s *Sink) recomputeMarketPositions(ctx context.Context, marketID string) {
	subs, err := s.client.SMembers(ctx, positionsMarketSetKey(marketID)).Result()
	if err != nil {
		s.logger.Warn("failed to list positions for market", "market_id", marketID, "error", err)
		return
	}
	for _, sub := range subs {
		if err := s.recomputePosition(ctx, marketID, sub); err != nil {
			s.logger.Warn("recompute failed", "market_id", marketID, "subaccount_id", sub, "error", err)
		}
	}
}

// recomputePosition reads the cached market and position records for
// (marketID, subaccountID), recomputes the liquidation price and
// liquidatable predicate, writes the result back, and — on a transition
// into liquidatable — publishes a LiquidationAlert.
func (s *Sink) recomputePosition(ctx context.Context, marketID, subaccountID string) error {
	marketVals, err := s.client.HMGet(ctx, marketKey(marketID), "maintenance_margin_ratio", "mark_price", "cumulative_funding").Result()
	if err != nil {
		return injerr.Connection("cache.recomputePosition: read market", err)
	}
	mmr, ok1 := parseFloatField(marketVals[0])
	markPrice, ok2 := parseFloatField(marketVals[1])
	cumFunding, ok3 := parseFloatField(marketVals[2])
	if !ok1 || !ok2 || !ok3 || mmr <= 0 {
		metrics.Liquidation().RecordSkipped()
		return nil
	}

	posVals, err := s.client.HMGet(ctx, positionKey(marketID, subaccountID), "is_long", "quantity", "entry_price", "margin", "cumulative_funding_entry").Result()
	if err != nil {
		return injerr.Connection("cache.recomputePosition: read position", err)
	}
	isLong, _ := parseBoolField(posVals[0])
	quantity, ok4 := parseFloatField(posVals[1])
	entryPrice, ok5 := parseFloatField(posVals[2])
	margin, ok6 := parseFloatField(posVals[3])
	cumFundingEntry, ok7 := parseFloatField(posVals[4])
	if !ok4 || !ok5 || !ok6 || !ok7 || quantity <= 0 || entryPrice <= 0 {
		metrics.Liquidation().RecordSkipped()
		return nil
	}

	liqPrice := liquidation.Calculate(isLong, entryPrice, margin, quantity, mmr, cumFunding, cumFundingEntry)
	isLiquidatable := liquidation.IsLiquidatable(isLong, liqPrice, markPrice)

	member := liquidatableMember(marketID, subaccountID)

	s.mu.Lock()
	err = s.client.HSet(ctx, positionKey(marketID, subaccountID), map[string]interface{}{
		"liquidation_price": strconv.FormatFloat(liqPrice, 'f', -1, 64),
		"is_liquidatable":   strconv.FormatBool(isLiquidatable),
	}).Err()
	var wasLiquidatable bool
	if err == nil {
		wasLiquidatable, err = s.client.SIsMember(ctx, keyLiquidatablePositions, member).Result()
	}
	transitionedIn := false
	if err == nil {
		switch {
		case isLiquidatable && !wasLiquidatable:
			err = s.client.SAdd(ctx, keyLiquidatablePositions, member).Err()
			transitionedIn = true
		case !isLiquidatable && wasLiquidatable:
			err = s.client.SRem(ctx, keyLiquidatablePositions, member).Err()
		}
	}
	s.mu.Unlock()
	if err != nil {
		return injerr.Connection("cache.recomputePosition: write", err)
	}

	if card, err := s.client.SCard(ctx, keyLiquidatablePositions).Result(); err == nil {
		metrics.Liquidation().SetLiquidatableCount(int(card))
	}

	if transitionedIn && s.ps != nil {
		metrics.Liquidation().RecordAlert()
		alert := pubsub.CreateLiquidationAlert(uint64(time.Now().UnixMilli()), map[string]interface{}{
			"market_id":         marketID,
			"subaccount_id":     subaccountID,
			"is_long":           isLong,
			"liquidation_price": strconv.FormatFloat(liqPrice, 'f', -1, 64),
			"mark_price":        strconv.FormatFloat(markPrice, 'f', -1, 64),
			"quantity":          strconv.FormatFloat(quantity, 'f', -1, 64),
			"entry_price":       strconv.FormatFloat(entryPrice, 'f', -1, 64),
			"margin":            strconv.FormatFloat(margin, 'f', -1, 64),
		})
		if err := s.ps.PublishEvent(alert); err != nil {
			s.logger.Warn("failed to publish LiquidationAlert", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
		}
	}
	return nil
}

// parseFloatField decodes one HMGet result slot. go-redis returns nil for a
// missing hash field, and a string otherwise.
func parseFloatField(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseBoolField(v interface{}) (bool, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return b, true
}
