package phase

import (
	"testing"

	"injdata/envelope"
)

func positionEnvelope(marketID, subaccountID string) envelope.Envelope {
	return envelope.Envelope{
		MessageType: envelope.MessageTypeExchangePosition,
		BlockHeight: 1,
		BlockTime:   1,
		Payload:     envelope.ExchangePositionList{{MarketID: marketID, SubaccountID: subaccountID}},
	}
}

func TestNonMarketEnvelopeIsDeferredDuringMarketsPhase(t *testing.T) {
	m := NewMachine()
	m.ObserveMarkets([]string{"m1"})

	deferred := m.DeferIfMarkets(positionEnvelope("m1", "s1"))
	if !deferred {
		t.Fatalf("DeferIfMarkets: expected true during Markets phase")
	}
	if got := m.DeferredDepth(); got != 1 {
		t.Fatalf("DeferredDepth() = %d, want 1", got)
	}
	if m.Phase() != Markets {
		t.Fatalf("Phase() = %q, want %q", m.Phase(), Markets)
	}
}

func TestTransitionFiresOncePendingMarketsEmpty(t *testing.T) {
	m := NewMachine()
	m.ObserveMarkets([]string{"m1", "m2"})
	m.DeferIfMarkets(positionEnvelope("m1", "s1"))

	tr := m.MarketProcessed("m1")
	if tr.Occurred {
		t.Fatalf("MarketProcessed(m1): expected no transition while m2 still pending")
	}
	if m.Phase() != Markets {
		t.Fatalf("Phase() after partial processing = %q, want %q", m.Phase(), Markets)
	}

	tr = m.MarketProcessed("m2")
	if !tr.Occurred {
		t.Fatalf("MarketProcessed(m2): expected transition once pending_markets is empty")
	}
	if m.Phase() != Others {
		t.Fatalf("Phase() after transition = %q, want %q", m.Phase(), Others)
	}
	if len(tr.Drained) != 1 {
		t.Fatalf("Drained = %d envelopes, want 1", len(tr.Drained))
	}
	if tr.ProcessedCount != 2 {
		t.Fatalf("ProcessedCount = %d, want 2", tr.ProcessedCount)
	}
	if tr.MarketCount != 2 {
		t.Fatalf("MarketCount = %d, want 2", tr.MarketCount)
	}

	// P3: deferred is permanently empty after transition.
	if got := m.DeferredDepth(); got != 0 {
		t.Fatalf("DeferredDepth() after transition = %d, want 0", got)
	}
}

func TestTransitionOccursExactlyOncePerLifetime(t *testing.T) {
	m := NewMachine()
	m.ObserveMarkets([]string{"m1"})

	first := m.MarketProcessed("m1")
	if !first.Occurred {
		t.Fatalf("first MarketProcessed: expected transition")
	}

	// Further market observations after the transition must never flip
	// the phase back to Markets.
	m.ObserveMarkets([]string{"m2"})
	second := m.MarketProcessed("m2")
	if second.Occurred {
		t.Fatalf("second MarketProcessed: expected no further transition, phase is one-way")
	}
	if m.Phase() != Others {
		t.Fatalf("Phase() = %q, want %q (one-way transition)", m.Phase(), Others)
	}
}

func TestEnvelopesProcessImmediatelyInOthersPhase(t *testing.T) {
	m := NewMachine()
	m.ObserveMarkets([]string{"m1"})
	m.MarketProcessed("m1")

	if deferred := m.DeferIfMarkets(positionEnvelope("m1", "s1")); deferred {
		t.Fatalf("DeferIfMarkets: expected false once in Others phase")
	}
	if got := m.DeferredDepth(); got != 0 {
		t.Fatalf("DeferredDepth() = %d, want 0", got)
	}
}
