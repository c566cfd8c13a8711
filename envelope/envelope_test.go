package envelope

import (
	"encoding/json"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	original := Envelope{
		MessageType: MessageTypeDerivativeMarket,
		BlockHeight: 12345,
		BlockTime:   1700000000,
		Payload: DerivativeMarketList{
			{MarketID: "0xabc", Ticker: "BTC/USDT", Status: MarketStatusActive, MarkPrice: "50000000000000000000000000000"},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.MessageType != original.MessageType {
		t.Fatalf("MessageType = %q, want %q", decoded.MessageType, original.MessageType)
	}
	if decoded.BlockHeight != original.BlockHeight || decoded.BlockTime != original.BlockTime {
		t.Fatalf("block height/time mismatch: got %d/%d, want %d/%d", decoded.BlockHeight, decoded.BlockTime, original.BlockHeight, original.BlockTime)
	}

	list, ok := decoded.Payload.(DerivativeMarketList)
	if !ok {
		t.Fatalf("Payload type = %T, want DerivativeMarketList", decoded.Payload)
	}
	if len(list) != 1 || list[0].MarketID != "0xabc" {
		t.Fatalf("decoded payload = %+v", list)
	}
}

func TestMarshalUsesCanonicalVariantKey(t *testing.T) {
	e := Envelope{
		MessageType: MessageTypeExchangePosition,
		BlockHeight: 1,
		BlockTime:   1,
		Payload:     ExchangePositionList{{MarketID: "0xabc", SubaccountID: "0xsub"}},
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal outer: %v", err)
	}
	var payloadObj map[string]json.RawMessage
	if err := json.Unmarshal(raw["payload"], &payloadObj); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if _, ok := payloadObj["ExchangePositions"]; !ok {
		t.Fatalf("expected payload key %q, got keys %v", "ExchangePositions", keysOf(payloadObj))
	}
}

func TestValidateRejectsMismatchedVariant(t *testing.T) {
	e := Envelope{
		MessageType: MessageTypeDerivativeMarket,
		Payload:     ExchangePositionList{{MarketID: "0xabc"}},
	}
	if err := e.Validate(); err == nil {
		t.Fatalf("Validate: expected error for mismatched variant")
	}
}

func TestValidateRejectsNilPayload(t *testing.T) {
	e := Envelope{MessageType: MessageTypeDerivativeMarket}
	if err := e.Validate(); err == nil {
		t.Fatalf("Validate: expected error for nil payload")
	}
}

func TestUnmarshalRejectsUnknownMessageType(t *testing.T) {
	data := []byte(`{"message_type":"NotARealType","block_height":1,"block_time":1,"payload":{"Whatever":[]}}`)
	var e Envelope
	if err := json.Unmarshal(data, &e); err == nil {
		t.Fatalf("Unmarshal: expected error for unknown message_type")
	}
}

func TestUnmarshalRejectsMultiKeyPayload(t *testing.T) {
	data := []byte(`{"message_type":"DerivativeMarket","block_height":1,"block_time":1,"payload":{"DerivativeMarkets":[],"Extra":[]}}`)
	var e Envelope
	if err := json.Unmarshal(data, &e); err == nil {
		t.Fatalf("Unmarshal: expected error for multi-key payload object")
	}
}

func TestKeyFormat(t *testing.T) {
	e := Envelope{BlockHeight: 42, BlockTime: 99}
	if got, want := e.Key(), "42-99"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
