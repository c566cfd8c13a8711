package heartbeat

import (
	"testing"

	"injdata/envelope"
	"injdata/ingest/queryclient"
)

func TestMarketsFromQueryPreservesAllFields(t *testing.T) {
	in := []queryclient.DerivativeMarket{{
		MarketID:               "m1",
		Ticker:                 "BTC/USDT PERP",
		MaintenanceMarginRatio: "50000000000000000",
		MarkPrice:              "30000000000000000000000000000",
		HourlyFundingRateCap:   "625000000000000",
		HourlyInterestRate:     "4166660000000",
		Status:                 envelope.MarketStatusActive,
	}}
	out := marketsFromQuery(in)
	if len(out) != 1 {
		t.Fatalf("got %d markets, want 1", len(out))
	}
	if out[0].HFR != in[0].HourlyFundingRateCap || out[0].HIR != in[0].HourlyInterestRate {
		t.Fatalf("HFR/HIR not carried through: %+v", out[0])
	}
	if out[0].MarketID != "m1" || out[0].MaintenanceMarginRatio != "50000000000000000" {
		t.Fatalf("core fields not carried through: %+v", out[0])
	}
}

func TestPositionsFromQueryRoundTrips(t *testing.T) {
	in := []queryclient.Position{{MarketID: "m1", SubaccountID: "s1", IsLong: true, Quantity: "1", EntryPrice: "100", Margin: "10"}}
	out := positionsFromQuery(in)
	if len(out) != 1 || out[0].MarketID != "m1" || out[0].SubaccountID != "s1" || !out[0].IsLong {
		t.Fatalf("unexpected conversion: %+v", out)
	}
}

func TestOrdersFromQueryRoundTrips(t *testing.T) {
	in := []queryclient.L3Order{{Price: "100", Quantity: "1", OrderHash: "0xabc", SubaccountID: "s1"}}
	out := ordersFromQuery(in)
	if len(out) != 1 || out[0].Price != "100" || out[0].OrderHash != "0xabc" {
		t.Fatalf("unexpected conversion: %+v", out)
	}
}
