package ingest

import (
	"testing"

	"injdata/envelope"
	"injdata/ingest/streamclient"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateConnecting:   "connecting",
		StateStreaming:    "streaming",
		StateReconnecting: "reconnecting",
		StateShutdown:     "shutdown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestEnvelopesFromResponseFansOutOnePerNonEmptyDomain(t *testing.T) {
	resp := &streamclient.StreamResponse{
		BlockHeight: 42,
		BlockTime:   1000,
		Positions: []streamclient.PositionUpdate{
			{MarketID: "m1", SubaccountID: "s1", IsLong: true, Quantity: "1", EntryPrice: "100", Margin: "10"},
		},
		OraclePrices: []streamclient.OraclePriceUpdate{
			{Symbol: "INJ", Price: "30.5"},
		},
	}

	envs := envelopesFromResponse(resp)
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	for _, env := range envs {
		if env.BlockHeight != 42 || env.BlockTime != 1000 {
			t.Errorf("envelope %+v did not inherit block height/time", env)
		}
		if err := env.Validate(); err != nil {
			t.Errorf("envelope failed validation: %v", err)
		}
	}

	var sawPosition, sawOracle bool
	for _, env := range envs {
		switch env.MessageType {
		case envelope.MessageTypeStreamPosition:
			sawPosition = true
		case envelope.MessageTypeStreamOraclePrice:
			sawOracle = true
		}
	}
	if !sawPosition || !sawOracle {
		t.Fatalf("expected one StreamPosition and one StreamOraclePrice envelope, got %+v", envs)
	}
}

func TestEnvelopesFromResponseEmptyYieldsNoEnvelopes(t *testing.T) {
	envs := envelopesFromResponse(&streamclient.StreamResponse{BlockHeight: 1, BlockTime: 2})
	if len(envs) != 0 {
		t.Fatalf("got %d envelopes, want 0", len(envs))
	}
}

// TestEnvelopesFromResponseCoversRemainingDomains exercises the branches of
// envelopesFromResponse not covered by
// TestEnvelopesFromResponseFansOutOnePerNonEmptyDomain (which covers
// Positions and OraclePrices): BankBalances, SubaccountDeposits,
// SpotOrders/DerivativeOrders, SpotTrades/DerivativeTrades, and
// Spot/DerivativeOrderbookUpdates — so a field-mapping mistake in any one
// conversion helper fails the suite instead of only surfacing at build time.
func TestEnvelopesFromResponseCoversRemainingDomains(t *testing.T) {
	resp := &streamclient.StreamResponse{
		BlockHeight: 7,
		BlockTime:   9000,
		BankBalances: []streamclient.BankBalanceUpdate{
			{Account: "inj1abc", Denom: "inj", Amount: "100"},
		},
		SubaccountDeposits: []streamclient.SubaccountDepositUpdate{
			{SubaccountID: "s1", Denom: "usdt", AvailableBalance: "50", TotalBalance: "60"},
		},
		SpotOrders: []streamclient.OrderUpdate{
			{MarketID: "spot1", SubaccountID: "s1", OrderHash: "0xhash", Price: "1", Quantity: "2", IsBuy: true, Status: "booked"},
		},
		DerivativeOrders: []streamclient.OrderUpdate{
			{MarketID: "deriv1", SubaccountID: "s1", OrderHash: "0xhash2", Price: "3", Quantity: "4", IsBuy: false, Status: "booked"},
		},
		SpotTrades: []streamclient.TradeUpdate{
			{MarketID: "spot1", SubaccountID: "s1", IsBuy: true, ExecutionType: "market", Price: "1", Fee: "0.1", TradeID: "t1"},
		},
		DerivativeTrades: []streamclient.TradeUpdate{
			{MarketID: "deriv1", SubaccountID: "s1", IsBuy: false, ExecutionType: "limit", PositionDelta: "5", Fee: "0.2", TradeID: "t2"},
		},
		SpotOrderbookUpdates: []streamclient.OrderbookUpdate{
			{MarketID: "spot1", Buys: []streamclient.L2Level{{Price: "1", Quantity: "2"}}, Sells: []streamclient.L2Level{{Price: "3", Quantity: "4"}}},
		},
		DerivativeOrderbookUpdates: []streamclient.OrderbookUpdate{
			{MarketID: "deriv1", Buys: []streamclient.L2Level{{Price: "5", Quantity: "6"}}, Sells: []streamclient.L2Level{{Price: "7", Quantity: "8"}}},
		},
	}

	envs := envelopesFromResponse(resp)
	if len(envs) != 8 {
		t.Fatalf("got %d envelopes, want 8", len(envs))
	}

	seen := make(map[envelope.MessageType]envelope.Envelope, len(envs))
	for _, env := range envs {
		if env.BlockHeight != 7 || env.BlockTime != 9000 {
			t.Errorf("envelope %+v did not inherit block height/time", env)
		}
		if err := env.Validate(); err != nil {
			t.Errorf("envelope failed validation: %v", err)
		}
		seen[env.MessageType] = env
	}

	bankEnv, ok := seen[envelope.MessageTypeStreamBankBalance]
	if !ok {
		t.Fatal("missing StreamBankBalance envelope")
	}
	bankList := bankEnv.Payload.(envelope.StreamBankBalanceList)
	if len(bankList) != 1 || bankList[0].AccountAddress != "inj1abc" || bankList[0].Denom != "inj" || bankList[0].Amount != "100" {
		t.Errorf("bank balance mapping wrong: %+v", bankList)
	}

	depositEnv, ok := seen[envelope.MessageTypeStreamSubaccountDeposit]
	if !ok {
		t.Fatal("missing StreamSubaccountDeposit envelope")
	}
	depositList := depositEnv.Payload.(envelope.StreamSubaccountDepositList)
	if len(depositList) != 1 || depositList[0].SubaccountID != "s1" || depositList[0].AvailableBalance != "50" {
		t.Errorf("deposit mapping wrong: %+v", depositList)
	}

	spotOrderEnv, ok := seen[envelope.MessageTypeSpotOrder]
	if !ok {
		t.Fatal("missing SpotOrder envelope")
	}
	spotOrders := spotOrderEnv.Payload.(envelope.SpotOrderList)
	if len(spotOrders) != 1 || spotOrders[0].MarketID != "spot1" || spotOrders[0].Price != "1" || spotOrders[0].Quantity != "2" || !spotOrders[0].IsBuy {
		t.Errorf("spot order mapping wrong: %+v", spotOrders)
	}

	derivOrderEnv, ok := seen[envelope.MessageTypeDerivativeOrder]
	if !ok {
		t.Fatal("missing DerivativeOrder envelope")
	}
	derivOrders := derivOrderEnv.Payload.(envelope.DerivativeOrderList)
	if len(derivOrders) != 1 || derivOrders[0].MarketID != "deriv1" || derivOrders[0].Status != "booked" {
		t.Errorf("derivative order mapping wrong: %+v", derivOrders)
	}

	spotTradeEnv, ok := seen[envelope.MessageTypeSpotTrade]
	if !ok {
		t.Fatal("missing SpotTrade envelope")
	}
	spotTrades := spotTradeEnv.Payload.(envelope.SpotTradeList)
	if len(spotTrades) != 1 || spotTrades[0].ExecutionType != "market" || spotTrades[0].Price != "1" || spotTrades[0].Fee != "0.1" || spotTrades[0].TradeID != "t1" {
		t.Errorf("spot trade mapping wrong: %+v", spotTrades)
	}

	derivTradeEnv, ok := seen[envelope.MessageTypeDerivativeTrade]
	if !ok {
		t.Fatal("missing DerivativeTrade envelope")
	}
	derivTrades := derivTradeEnv.Payload.(envelope.DerivativeTradeList)
	if len(derivTrades) != 1 || derivTrades[0].PositionDelta != "5" || derivTrades[0].Fee != "0.2" || derivTrades[0].TradeID != "t2" {
		t.Errorf("derivative trade mapping wrong: %+v", derivTrades)
	}

	spotBookEnv, ok := seen[envelope.MessageTypeStreamSpotOrderbook]
	if !ok {
		t.Fatal("missing StreamSpotOrderbook envelope")
	}
	spotBooks := spotBookEnv.Payload.(envelope.StreamSpotOrderbookList)
	if len(spotBooks) != 1 || len(spotBooks[0].BuyLevels) != 1 || spotBooks[0].BuyLevels[0].Price != "1" || len(spotBooks[0].SellLevels) != 1 || spotBooks[0].SellLevels[0].Price != "3" {
		t.Errorf("spot orderbook mapping wrong: %+v", spotBooks)
	}

	derivBookEnv, ok := seen[envelope.MessageTypeStreamDerivativeOrderbook]
	if !ok {
		t.Fatal("missing StreamDerivativeOrderbook envelope")
	}
	derivBooks := derivBookEnv.Payload.(envelope.StreamDerivativeOrderbookList)
	if len(derivBooks) != 1 || len(derivBooks[0].BuyLevels) != 1 || derivBooks[0].BuyLevels[0].Quantity != "6" || len(derivBooks[0].SellLevels) != 1 || derivBooks[0].SellLevels[0].Quantity != "8" {
		t.Errorf("derivative orderbook mapping wrong: %+v", derivBooks)
	}
}
