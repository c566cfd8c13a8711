// Package ingest implements the stream ingester: a long-lived goroutine
// that holds the chain's real-time stream open, converts each response
// into one or more envelopes, and forwards them to the producer. Its
// reconnect loop is grounded on the teacher's p2p connection manager
// (scheduleReconnect/resetBackoff), adapted from peer dialing to a single
// upstream stream.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"injdata/broker"
	"injdata/envelope"
	"injdata/ingest/streamclient"
	"injdata/internal/backoff"
	"injdata/internal/metrics"
)

// State is the ingester's connection state.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateReconnecting
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Ingester owns the stream connection lifecycle.
type Ingester struct {
	target   string
	producer *broker.Producer
	logger   *slog.Logger
	state    atomic.Int32
}

// New returns an Ingester that will stream from target and forward decoded
// envelopes to producer.
func New(target string, producer *broker.Producer, logger *slog.Logger) *Ingester {
	return &Ingester{
		target:   target,
		producer: producer,
		logger:   logger.With("component", "ingest.Ingester"),
	}
}

// State returns the ingester's current connection state.
func (ig *Ingester) State() State {
	return State(ig.state.Load())
}

func (ig *Ingester) setState(s State) {
	ig.state.Store(int32(s))
	metrics.Ingester().SetState(s.String())
}

// Run drives the connect/stream/reconnect loop until ctx is cancelled. It
// never returns a non-nil error for a clean shutdown.
func (ig *Ingester) Run(ctx context.Context) error {
	bo := backoff.NewDoubling(100*time.Millisecond, 5*time.Second)

	for {
		if ctx.Err() != nil {
			ig.setState(StateShutdown)
			return nil
		}

		ig.setState(StateConnecting)
		client, err := streamclient.Dial(ctx, ig.target)
		if err != nil {
			ig.logger.Warn("dial failed, backing off", "error", err)
			if !ig.wait(ctx, bo.Next()) {
				return nil
			}
			continue
		}

		stream, err := client.Stream(ctx, streamclient.AllDomains())
		if err != nil {
			client.Close()
			ig.logger.Warn("open stream failed, backing off", "error", err)
			if !ig.wait(ctx, bo.Next()) {
				return nil
			}
			continue
		}

		ig.setState(StateStreaming)
		bo.Reset()
		streamErr := ig.drain(ctx, stream)
		client.Close()

		if ctx.Err() != nil {
			ig.setState(StateShutdown)
			return nil
		}
		if errors.Is(streamErr, io.EOF) {
			ig.logger.Info("stream closed cleanly by server, reconnecting")
		} else {
			ig.logger.Warn("stream recv error, reconnecting", "error", streamErr)
		}
		ig.setState(StateReconnecting)
		metrics.Ingester().RecordReconnect()
		if !ig.wait(ctx, bo.Next()) {
			return nil
		}
	}
}

// drain reads responses off stream until it errors or ctx is cancelled,
// converting each into envelopes and handing them to the producer.
func (ig *Ingester) drain(ctx context.Context, stream *streamclient.Stream) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		resp, err := stream.Recv()
		if err != nil {
			return err
		}
		envs := envelopesFromResponse(resp)
		if len(envs) == 0 {
			continue
		}
		metrics.Ingester().RecordRecords(len(envs))
		for _, outcome := range ig.producer.SendBatchCurrentOnly(ctx, envs) {
			if outcome.Err != nil {
				ig.logger.Warn("failed to forward ingested record", "key", outcome.Key, "error", outcome.Err)
			}
		}
	}
}

func (ig *Ingester) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// envelopesFromResponse fans one StreamResponse out into zero or more
// envelopes, one per non-empty payload slice it carries.
func envelopesFromResponse(resp *streamclient.StreamResponse) []envelope.Envelope {
	var out []envelope.Envelope
	stamp := func(mt envelope.MessageType, payload envelope.Payload) {
		out = append(out, envelope.Envelope{
			MessageType: mt,
			BlockHeight: resp.BlockHeight,
			BlockTime:   resp.BlockTime,
			Payload:     payload,
		})
	}

	if len(resp.Positions) > 0 {
		stamp(envelope.MessageTypeStreamPosition, envelope.StreamPositionList(positionsFromStream(resp.Positions)))
	}
	if len(resp.BankBalances) > 0 {
		stamp(envelope.MessageTypeStreamBankBalance, envelope.StreamBankBalanceList(bankBalancesFromStream(resp.BankBalances)))
	}
	if len(resp.SubaccountDeposits) > 0 {
		stamp(envelope.MessageTypeStreamSubaccountDeposit, envelope.StreamSubaccountDepositList(depositsFromStream(resp.SubaccountDeposits)))
	}
	if len(resp.OraclePrices) > 0 {
		stamp(envelope.MessageTypeStreamOraclePrice, envelope.StreamOraclePriceList(oraclePricesFromStream(resp.OraclePrices)))
	}
	if len(resp.SpotOrders) > 0 {
		stamp(envelope.MessageTypeSpotOrder, envelope.SpotOrderList(ordersFromStream(resp.SpotOrders)))
	}
	if len(resp.DerivativeOrders) > 0 {
		stamp(envelope.MessageTypeDerivativeOrder, envelope.DerivativeOrderList(ordersFromStream(resp.DerivativeOrders)))
	}
	if len(resp.SpotTrades) > 0 {
		stamp(envelope.MessageTypeSpotTrade, envelope.SpotTradeList(tradesFromStream(resp.SpotTrades)))
	}
	if len(resp.DerivativeTrades) > 0 {
		stamp(envelope.MessageTypeDerivativeTrade, envelope.DerivativeTradeList(tradesFromStream(resp.DerivativeTrades)))
	}
	if len(resp.SpotOrderbookUpdates) > 0 {
		stamp(envelope.MessageTypeStreamSpotOrderbook, envelope.StreamSpotOrderbookList(orderbookUpdatesFromStream(resp.SpotOrderbookUpdates)))
	}
	if len(resp.DerivativeOrderbookUpdates) > 0 {
		stamp(envelope.MessageTypeStreamDerivativeOrderbook, envelope.StreamDerivativeOrderbookList(orderbookUpdatesFromStream(resp.DerivativeOrderbookUpdates)))
	}
	return out
}

func positionsFromStream(in []streamclient.PositionUpdate) []envelope.Position {
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

func bankBalancesFromStream(in []streamclient.BankBalanceUpdate) []envelope.BankBalance {
	out := make([]envelope.BankBalance, 0, len(in))
	for _, b := range in {
		out = append(out, envelope.BankBalance{AccountAddress: b.Account, Denom: b.Denom, Amount: b.Amount})
	}
	return out
}

func depositsFromStream(in []streamclient.SubaccountDepositUpdate) []envelope.SubaccountDeposit {
	out := make([]envelope.SubaccountDeposit, 0, len(in))
	for _, d := range in {
		out = append(out, envelope.SubaccountDeposit{
			SubaccountID:     d.SubaccountID,
			Denom:            d.Denom,
			AvailableBalance: d.AvailableBalance,
			TotalBalance:     d.TotalBalance,
		})
	}
	return out
}

func oraclePricesFromStream(in []streamclient.OraclePriceUpdate) []envelope.OraclePrice {
	out := make([]envelope.OraclePrice, 0, len(in))
	for _, p := range in {
		out = append(out, envelope.OraclePrice{Symbol: p.Symbol, Price: p.Price})
	}
	return out
}

func ordersFromStream(in []streamclient.OrderUpdate) []envelope.Order {
	out := make([]envelope.Order, 0, len(in))
	for _, o := range in {
		out = append(out, envelope.Order{
			MarketID:     o.MarketID,
			SubaccountID: o.SubaccountID,
			Price:        o.Price,
			Quantity:     o.Quantity,
			IsBuy:        o.IsBuy,
			Status:       o.Status,
		})
	}
	return out
}

func tradesFromStream(in []streamclient.TradeUpdate) []envelope.Trade {
	out := make([]envelope.Trade, 0, len(in))
	for _, t := range in {
		out = append(out, envelope.Trade{
			MarketID:      t.MarketID,
			SubaccountID:  t.SubaccountID,
			IsBuy:         t.IsBuy,
			ExecutionType: t.ExecutionType,
			Price:         t.Price,
			PositionDelta: t.PositionDelta,
			Fee:           t.Fee,
			TradeID:       t.TradeID,
		})
	}
	return out
}

func orderbookUpdatesFromStream(in []streamclient.OrderbookUpdate) []envelope.L2OrderbookUpdate {
	out := make([]envelope.L2OrderbookUpdate, 0, len(in))
	for _, ob := range in {
		out = append(out, envelope.L2OrderbookUpdate{
			MarketID:   ob.MarketID,
			BuyLevels:  levelsFromStream(ob.Buys),
			SellLevels: levelsFromStream(ob.Sells),
		})
	}
	return out
}

func levelsFromStream(in []streamclient.L2Level) []envelope.L2Level {
	out := make([]envelope.L2Level, 0, len(in))
	for _, l := range in {
		out = append(out, envelope.L2Level{Price: l.Price, Quantity: l.Quantity})
	}
	return out
}
