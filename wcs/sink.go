package wcs

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"injdata/envelope"
	"injdata/internal/injerr"
	"injdata/internal/metrics"
	"injdata/liquidation"
)

// Sink wraps a gocql session and implements consume.Processor. Unlike the
// cache sink it does not gate on the Markets→Others phase machine: each
// DerivativeMarket, ExchangePosition/StreamPosition, DerivativeL3Orderbook
// and ExchangeBalance event is appended to its table as it arrives; events
// of any other message type are logged at debug level and not stored. Each DerivativeMarket
// record opportunistically recomputes liquidation state for every position
// already on file for that market (spec.md §4.7).
type Sink struct {
	session  *gocql.Session
	keyspace string
	logger   *slog.Logger
}

// NewSink connects to the given Scylla/Cassandra hosts, creates the
// keyspace and every table this sink writes to if they do not already
// exist, and returns a ready Sink.
func NewSink(hosts []string, keyspace string, logger *slog.Logger) (*Sink, error) {
	bootstrap := gocql.NewCluster(hosts...)
	bootstrap.Consistency = gocql.Quorum
	bootstrap.Timeout = 10 * time.Second
	bootstrapSession, err := bootstrap.CreateSession()
	if err != nil {
		return nil, injerr.Connection("wcs.NewSink: bootstrap session", err)
	}
	if err := initializeSchema(bootstrapSession, keyspace); err != nil {
		bootstrapSession.Close()
		return nil, injerr.Connection("wcs.NewSink: schema", err)
	}
	bootstrapSession.Close()

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, injerr.Connection("wcs.NewSink: session", err)
	}

	return &Sink{
		session:  session,
		keyspace: keyspace,
		logger:   logger.With("component", "wcs.Sink"),
	}, nil
}

// Process implements consume.Processor.
func (s *Sink) Process(ctx context.Context, env envelope.Envelope) error {
	blockHeight := int64(env.BlockHeight)
	blockTime := int64(env.BlockTime)

	switch p := env.Payload.(type) {
	case envelope.DerivativeMarketList:
		for _, m := range p {
			if err := s.processMarket(ctx, m, blockHeight, blockTime); err != nil {
				s.logger.Warn("market processing failed", "market_id", m.MarketID, "error", err)
			}
		}
	case envelope.ExchangePositionList:
		for _, pos := range p {
			if err := s.processPosition(ctx, pos, blockHeight, blockTime); err != nil {
				s.logger.Warn("position processing failed", "market_id", pos.MarketID, "error", err)
			}
		}
	case envelope.StreamPositionList:
		for _, pos := range p {
			if err := s.processPosition(ctx, pos, blockHeight, blockTime); err != nil {
				s.logger.Warn("position processing failed", "market_id", pos.MarketID, "error", err)
			}
		}
	case envelope.DerivativeL3OrderbookList:
		for _, ob := range p {
			if err := s.processOrderbook(ctx, ob, blockTime); err != nil {
				s.logger.Warn("orderbook processing failed", "market_id", ob.MarketID, "error", err)
			}
		}
	case envelope.ExchangeBalanceList:
		for _, b := range p {
			if err := s.processBalance(ctx, b, blockHeight); err != nil {
				s.logger.Warn("balance processing failed", "subaccount_id", b.SubaccountID, "denom", b.Denom, "error", err)
			}
		}
	default:
		s.logger.Debug("message type not handled by wide-column sink", "message_type", env.MessageType)
	}
	return nil
}

// processMarket inserts the market row and recomputes every position
// already on file for it, capped at 1000 subaccounts to bound the fan-out
// from a single market update (spec.md §4.7).
func (s *Sink) processMarket(ctx context.Context, m envelope.DerivativeMarket, blockHeight, blockTime int64) error {
	markPrice, ok1 := liquidation.ScalePrice(m.MarkPrice)
	mmr, ok2 := liquidation.ScaleChain(m.MaintenanceMarginRatio)
	cumFunding, ok3 := liquidation.ScalePrice(m.CumulativeFunding)
	if !ok1 {
		markPrice = 0
	}
	if !ok2 {
		mmr = 0.05
	}
	if !ok3 {
		cumFunding = 0
	}

	if err := s.session.Query(
		`INSERT INTO markets (market_id, block_height, ticker, mark_price, maintenance_margin_ratio, cumulative_funding, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.MarketID, blockHeight, m.Ticker,
		strconv.FormatFloat(markPrice, 'f', -1, 64),
		strconv.FormatFloat(mmr, 'f', -1, 64),
		strconv.FormatFloat(cumFunding, 'f', -1, 64),
		m.Status,
	).WithContext(ctx).Exec(); err != nil {
		return injerr.Connection("wcs.processMarket: insert markets", err)
	}

	if markPrice <= 0 || mmr <= 0 {
		metrics.Liquidation().RecordSkipped()
		s.logger.Warn("market has non-positive mark_price or mmr, recompute skipped", "market_id", m.MarketID)
		return nil
	}

	// market_positions partitions by the plain market_id column and clusters
	// by (subaccount_id ASC, block_height DESC), so rows for one subaccount
	// arrive consecutively with the newest block_height first. Unlike
	// `positions`, whose partition key is the composite (market_id,
	// subaccount_id), this lets a single query scan every subaccount for one
	// market (spec.md §4.7's "fetch all positions for that market_id from
	// market_positions").
	iter := s.session.Query(
		`SELECT subaccount_id, is_long, quantity, entry_price, margin, cumulative_funding_entry FROM market_positions WHERE market_id = ? LIMIT 5000`,
		m.MarketID,
	).WithContext(ctx).Iter()

	var rows []marketPositionRow
	var row marketPositionRow
	for iter.Scan(&row.SubaccountID, &row.IsLong, &row.Quantity, &row.EntryPrice, &row.Margin, &row.CumulativeFundingEntry) {
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return injerr.Connection("wcs.processMarket: scan market_positions", err)
	}

	latest, truncated := latestPerSubaccount(rows, 1000)
	if truncated {
		s.logger.Warn("position recompute fan-out capped at 1000 subaccounts", "market_id", m.MarketID)
	}
	for _, r := range latest {
		s.recomputeAndStore(ctx, m.MarketID, r.SubaccountID, r.IsLong, r.Quantity, r.EntryPrice, r.Margin, r.CumulativeFundingEntry, mmr, cumFunding, markPrice, blockHeight, blockTime)
	}
	return nil
}

// marketPositionRow is one row scanned from market_positions, keyed by the
// subaccount it belongs to.
type marketPositionRow struct {
	SubaccountID           string
	IsLong                 bool
	Quantity               string
	EntryPrice             string
	Margin                 string
	CumulativeFundingEntry string
}

// latestPerSubaccount reduces rows — already ordered by the driver as
// (subaccount_id ASC, block_height DESC) per market_positions' clustering
// order — to the first (i.e. most recent) row seen for each subaccount_id,
// capped at max distinct subaccounts. The second return value reports
// whether the cap truncated the result.
func latestPerSubaccount(rows []marketPositionRow, max int) ([]marketPositionRow, bool) {
	var out []marketPositionRow
	lastSubaccount := ""
	first := true
	for _, r := range rows {
		if !first && r.SubaccountID == lastSubaccount {
			continue // an older snapshot for a subaccount already taken
		}
		first = false
		lastSubaccount = r.SubaccountID

		if len(out) >= max {
			return out, true
		}
		out = append(out, r)
	}
	return out, false
}

func (s *Sink) recomputeAndStore(ctx context.Context, marketID, subaccountID string, isLong bool, quantityStr, entryPriceStr, marginStr, cumEntryStr string, mmr, cumFunding, markPrice float64, blockHeight, blockTime int64) {
	quantity, _ := strconv.ParseFloat(quantityStr, 64)
	entryPrice, _ := strconv.ParseFloat(entryPriceStr, 64)
	margin, _ := strconv.ParseFloat(marginStr, 64)
	cumEntry, _ := strconv.ParseFloat(cumEntryStr, 64)
	if quantity <= 0 || entryPrice <= 0 || margin <= 0 {
		return
	}

	liqPrice := liquidation.Calculate(isLong, entryPrice, margin, quantity, mmr, cumFunding, cumEntry)

	liqPriceStr := strconv.FormatFloat(liqPrice, 'f', -1, 64)
	isLiquidatable := liquidation.IsLiquidatable(isLong, liqPrice, markPrice)

	if err := s.session.Query(
		`UPDATE positions SET liquidation_price = ?, is_liquidatable = ? WHERE market_id = ? AND subaccount_id = ? AND block_height = ?`,
		liqPriceStr, isLiquidatable, marketID, subaccountID, blockHeight,
	).WithContext(ctx).Exec(); err != nil {
		s.logger.Warn("failed to update position liquidation_price", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
	}
	s.upsertMarketScopedPositionRows(ctx, marketID, subaccountID, blockHeight, isLong, quantityStr, entryPriceStr, marginStr, cumEntryStr, liqPriceStr, isLiquidatable)

	s.syncLiquidatable(ctx, marketID, subaccountID, isLong, liqPrice, markPrice, quantityStr, entryPriceStr, marginStr)
}

// upsertMarketScopedPositionRows keeps the market_id-scoped and
// subaccount-scoped read paths (market_positions, positions_by_subaccount)
// in step with the canonical positions table at the same clustering key
// (spec.md §4.7's "update positions and market_positions liquidation
// fields at the matching clustering key"). market_positions also carries the
// raw position fields, not just the derived liquidation fields, so
// processMarket can recompute future snapshots straight from it without
// touching the composite-partition-keyed positions table (see processMarket).
func (s *Sink) upsertMarketScopedPositionRows(ctx context.Context, marketID, subaccountID string, blockHeight int64, isLong bool, quantityStr, entryPriceStr, marginStr, cumEntryStr, liqPriceStr string, isLiquidatable bool) {
	if err := s.session.Query(
		`INSERT INTO market_positions (market_id, subaccount_id, block_height, is_long, quantity, entry_price, margin, cumulative_funding_entry, liquidation_price, is_liquidatable) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		marketID, subaccountID, blockHeight, isLong, quantityStr, entryPriceStr, marginStr, cumEntryStr, liqPriceStr, isLiquidatable,
	).WithContext(ctx).Exec(); err != nil {
		s.logger.Warn("failed to upsert market_positions", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
	}
	if err := s.session.Query(
		`INSERT INTO positions_by_subaccount (subaccount_id, block_height, market_id, liquidation_price, is_liquidatable) VALUES (?, ?, ?, ?, ?)`,
		subaccountID, blockHeight, marketID, liqPriceStr, isLiquidatable,
	).WithContext(ctx).Exec(); err != nil {
		s.logger.Warn("failed to upsert positions_by_subaccount", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
	}
}

func (s *Sink) syncLiquidatable(ctx context.Context, marketID, subaccountID string, isLong bool, liqPrice, markPrice float64, quantityStr, entryPriceStr, marginStr string) {
	if liquidation.IsLiquidatable(isLong, liqPrice, markPrice) {
		if err := s.session.Query(
			`INSERT INTO liquidatable_positions (market_id, subaccount_id, is_long, quantity, entry_price, margin, liquidation_price, mark_price) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			marketID, subaccountID, isLong, quantityStr, entryPriceStr, marginStr,
			strconv.FormatFloat(liqPrice, 'f', -1, 64),
			strconv.FormatFloat(markPrice, 'f', -1, 64),
		).WithContext(ctx).Exec(); err != nil {
			s.logger.Warn("failed to insert liquidatable position", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
			return
		}
		metrics.Liquidation().RecordAlert()
		s.logger.Info("liquidatable position recorded", "market_id", marketID, "subaccount_id", subaccountID, "liquidation_price", liqPrice, "mark_price", markPrice)
		return
	}
	if err := s.session.Query(
		`DELETE FROM liquidatable_positions WHERE market_id = ? AND subaccount_id = ?`,
		marketID, subaccountID,
	).WithContext(ctx).Exec(); err != nil {
		s.logger.Warn("failed to delete non-liquidatable position", "error", err, "market_id", marketID, "subaccount_id", subaccountID)
	}
}

// processOrderbook allocates a fresh snapshot id, inserts the snapshot row,
// one row per bid/ask, and opportunistically rolls the best bid/ask into
// the hourly market_statistics row (a supplement over the distilled spec,
// grounded on the min/max scan in the pub/sub cache's orderbook handling).
func (s *Sink) processOrderbook(ctx context.Context, ob envelope.L3Orderbook, blockTime int64) error {
	snapshotID := uuid.New()
	ts := blockTime
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	if err := s.session.Query(
		`INSERT INTO orderbook_snapshots (market_id, timestamp, orderbook_id) VALUES (?, ?, ?)`,
		ob.MarketID, ts, snapshotID,
	).WithContext(ctx).Exec(); err != nil {
		return injerr.Connection("wcs.processOrderbook: insert snapshot", err)
	}

	var bestBid, bestAsk float64
	haveBid, haveAsk := false, false

	insertOrder := func(isBid bool, o envelope.L3Order) {
		if err := s.session.Query(
			`INSERT INTO orderbook_orders (orderbook_id, is_bid, price, order_hash, quantity, subaccount_id) VALUES (?, ?, ?, ?, ?, ?)`,
			snapshotID, isBid, o.Price, o.OrderHash, o.Quantity, o.SubaccountID,
		).WithContext(ctx).Exec(); err != nil {
			s.logger.Warn("failed to insert orderbook order", "error", err, "market_id", ob.MarketID)
			return
		}
		price, err := strconv.ParseFloat(o.Price, 64)
		if err != nil {
			return
		}
		if isBid && (!haveBid || price > bestBid) {
			bestBid, haveBid = price, true
		}
		if !isBid && (!haveAsk || price < bestAsk) {
			bestAsk, haveAsk = price, true
		}
	}

	for _, bid := range ob.Bids {
		insertOrder(true, bid)
	}
	for _, ask := range ob.Asks {
		insertOrder(false, ask)
	}

	if haveBid || haveAsk {
		s.rollStatistics(ctx, ob.MarketID, ts, bestBid, bestAsk, haveBid, haveAsk)
	}
	return nil
}

func (s *Sink) rollStatistics(ctx context.Context, marketID string, tsMillis int64, bestBid, bestAsk float64, haveBid, haveAsk bool) {
	mid := bestBid
	switch {
	case haveBid && haveAsk:
		mid = (bestBid + bestAsk) / 2
	case haveAsk:
		mid = bestAsk
	}
	t := time.UnixMilli(tsMillis).UTC()
	date := t.Format("2006-01-02")
	hour := t.Hour()
	midStr := strconv.FormatFloat(mid, 'f', -1, 64)

	var open, high, low, close string
	var volume string
	err := s.session.Query(
		`SELECT open, high, low, close, volume FROM market_statistics WHERE market_id = ? AND date = ? AND hour = ?`,
		marketID, date, hour,
	).WithContext(ctx).Scan(&open, &high, &low, &close, &volume)

	if err != nil {
		open, high, low, volume = midStr, midStr, midStr, "0"
	} else {
		highF, _ := strconv.ParseFloat(high, 64)
		lowF, _ := strconv.ParseFloat(low, 64)
		if mid > highF {
			high = midStr
		}
		if mid < lowF || lowF == 0 {
			low = midStr
		}
	}
	close = midStr

	if err := s.session.Query(
		`INSERT INTO market_statistics (market_id, date, hour, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		marketID, date, hour, open, high, low, close, volume,
	).WithContext(ctx).Exec(); err != nil {
		s.logger.Warn("failed to upsert market_statistics", "error", err, "market_id", marketID)
	}
}

// processPosition scales the position's fields, inserts a position row at
// its native block height, fetches the latest known market row to
// recompute liquidation state against, and maintains the
// liquidatable_positions membership.
func (s *Sink) processPosition(ctx context.Context, p envelope.Position, blockHeight, blockTime int64) error {
	quantity, _ := liquidation.ScaleChain(p.Quantity)
	entryPrice, _ := liquidation.ScalePrice(p.EntryPrice)
	margin, _ := liquidation.ScalePrice(p.Margin)
	cumFundingEntry, _ := liquidation.ScalePrice(p.CumulativeFundingEntry)
	quantityStr := strconv.FormatFloat(quantity, 'f', -1, 64)
	entryPriceStr := strconv.FormatFloat(entryPrice, 'f', -1, 64)
	marginStr := strconv.FormatFloat(margin, 'f', -1, 64)
	cumEntryStr := strconv.FormatFloat(cumFundingEntry, 'f', -1, 64)

	if quantity <= 0 || entryPrice <= 0 || margin <= 0 {
		s.logger.Warn("invalid position data, skipping", "market_id", p.MarketID, "subaccount_id", p.SubaccountID)
		return nil
	}

	var markPriceStr, mmrStr, cumFundingStr string
	markPrice, mmr, marketCumFunding := 0.0, 0.05, 0.0
	err := s.session.Query(
		`SELECT mark_price, maintenance_margin_ratio, cumulative_funding FROM markets WHERE market_id = ? LIMIT 1`,
		p.MarketID,
	).WithContext(ctx).Scan(&markPriceStr, &mmrStr, &cumFundingStr)
	if err == nil {
		if v, perr := strconv.ParseFloat(markPriceStr, 64); perr == nil {
			markPrice = v
		}
		if v, perr := strconv.ParseFloat(mmrStr, 64); perr == nil {
			mmr = v
		}
		if v, perr := strconv.ParseFloat(cumFundingStr, 64); perr == nil {
			marketCumFunding = v
		}
	} else if err != gocql.ErrNotFound {
		return injerr.Connection("wcs.processPosition: fetch market", err)
	}

	liqPrice := liquidation.Calculate(p.IsLong, entryPrice, margin, quantity, mmr, marketCumFunding, cumFundingEntry)

	liqPriceStr := strconv.FormatFloat(liqPrice, 'f', -1, 64)
	isLiquidatable := liquidation.IsLiquidatable(p.IsLong, liqPrice, markPrice)

	if err := s.session.Query(
		`INSERT INTO positions (market_id, subaccount_id, block_height, is_long, quantity, entry_price, margin, cumulative_funding_entry, liquidation_price, is_liquidatable) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MarketID, p.SubaccountID, blockHeight, p.IsLong, quantityStr, entryPriceStr, marginStr, cumEntryStr,
		liqPriceStr, isLiquidatable,
	).WithContext(ctx).Exec(); err != nil {
		return injerr.Connection("wcs.processPosition: insert", err)
	}
	s.upsertMarketScopedPositionRows(ctx, p.MarketID, p.SubaccountID, blockHeight, p.IsLong, quantityStr, entryPriceStr, marginStr, cumEntryStr, liqPriceStr, isLiquidatable)

	s.syncLiquidatable(ctx, p.MarketID, p.SubaccountID, p.IsLong, liqPrice, markPrice, quantityStr, entryPriceStr, marginStr)
	return nil
}

// processBalance writes an exchange balance snapshot to both the
// subaccount+denom-scoped table and the subaccount-scoped read path.
func (s *Sink) processBalance(ctx context.Context, b envelope.Balance, blockHeight int64) error {
	if err := s.session.Query(
		`INSERT INTO exchange_balances (subaccount_id, denom, block_height, available_balance, total_balance) VALUES (?, ?, ?, ?, ?)`,
		b.SubaccountID, b.Denom, blockHeight, b.AvailableBalance, b.TotalBalance,
	).WithContext(ctx).Exec(); err != nil {
		return injerr.Connection("wcs.processBalance: insert exchange_balances", err)
	}
	if err := s.session.Query(
		`INSERT INTO exchange_balances_by_subaccount (subaccount_id, block_height, denom, available_balance, total_balance) VALUES (?, ?, ?, ?, ?)`,
		b.SubaccountID, blockHeight, b.Denom, b.AvailableBalance, b.TotalBalance,
	).WithContext(ctx).Exec(); err != nil {
		return injerr.Connection("wcs.processBalance: insert exchange_balances_by_subaccount", err)
	}
	return nil
}

// Close releases the underlying session.
func (s *Sink) Close() error {
	s.session.Close()
	return nil
}
