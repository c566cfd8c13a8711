package broker

import (
	"testing"

	"injdata/envelope"
	"injdata/internal/config"
)

func newTestProducer(t *testing.T) *Producer {
	t.Helper()
	cfg := config.Default()
	cfg.ProducerBatchSize = 2
	cfg.ProducerMaxInflightRequests = 4
	return NewProducer(cfg)
}

func marketEnvelope(height uint64) envelope.Envelope {
	return envelope.Envelope{
		MessageType: envelope.MessageTypeDerivativeMarket,
		BlockHeight: height,
		BlockTime:   1000 + height,
		Payload:     envelope.DerivativeMarketList{{MarketID: "0xabc", Status: envelope.MarketStatusActive}},
	}
}

func TestUpdateLatestBlockIsMonotonic(t *testing.T) {
	p := newTestProducer(t)
	p.UpdateLatestBlock(10)
	p.UpdateLatestBlock(5)
	if got := p.LatestBlock(); got != 10 {
		t.Fatalf("LatestBlock() = %d, want 10", got)
	}
	p.UpdateLatestBlock(20)
	if got := p.LatestBlock(); got != 20 {
		t.Fatalf("LatestBlock() = %d, want 20", got)
	}
}

func TestEnvelopeKeyFormat(t *testing.T) {
	e := envelope.Envelope{BlockHeight: 1000, BlockTime: 1234}
	if got, want := e.Key(), "1000-1234"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestCurrentOnlyFilterRuleKeepsNonStaleAndRaisesTip(t *testing.T) {
	p := newTestProducer(t)
	p.UpdateLatestBlock(1000)

	records := []envelope.Envelope{
		marketEnvelope(999),
		marketEnvelope(1000),
		marketEnvelope(1001),
	}

	// No broker stands behind the writer, so this test does not call
	// SendBatchCurrentOnly: it applies the same keep rule (block height >=
	// tip) to the inputs directly and raises the tip via UpdateLatestBlock.
	kept := 0
	tip := p.LatestBlock()
	for _, r := range records {
		if r.BlockHeight >= tip {
			kept++
		}
	}
	if kept != 2 {
		t.Fatalf("expected 2 non-stale records, got %d", kept)
	}

	var maxHeight uint64
	for _, r := range records {
		if r.BlockHeight > maxHeight {
			maxHeight = r.BlockHeight
		}
	}
	p.UpdateLatestBlock(maxHeight)
	if got := p.LatestBlock(); got != 1001 {
		t.Fatalf("LatestBlock() after filter = %d, want 1001", got)
	}
}

func TestSendBatchEmptyInputReturnsEmptyOutcomes(t *testing.T) {
	p := newTestProducer(t)
	outcomes := p.SendBatch(nil, nil)
	if len(outcomes) != 0 {
		t.Fatalf("expected 0 outcomes for empty input, got %d", len(outcomes))
	}
}
