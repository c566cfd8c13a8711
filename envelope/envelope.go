// Package envelope defines the canonical, language-neutral record shape
// shared by the producer and every consumer: a message-type tag, chain
// block height/time, and a payload whose variant must match the tag.
package envelope

import (
	"encoding/json"
	"fmt"
)

// MessageType is the closed tag set identifying an envelope's payload variant.
type MessageType string

const (
	MessageTypeDerivativeMarket          MessageType = "DerivativeMarket"
	MessageTypeExchangePosition          MessageType = "ExchangePosition"
	MessageTypeStreamPosition            MessageType = "StreamPosition"
	MessageTypeExchangeBalance           MessageType = "ExchangeBalance"
	MessageTypeDerivativeL3Orderbook     MessageType = "DerivativeL3Orderbook"
	MessageTypeStreamSpotOrderbook       MessageType = "StreamSpotOrderbook"
	MessageTypeStreamDerivativeOrderbook MessageType = "StreamDerivativeOrderbook"
	MessageTypeSpotTrade                 MessageType = "SpotTrade"
	MessageTypeDerivativeTrade           MessageType = "DerivativeTrade"
	MessageTypeSpotOrder                 MessageType = "SpotOrder"
	MessageTypeDerivativeOrder           MessageType = "DerivativeOrder"
	MessageTypeStreamBankBalance         MessageType = "StreamBankBalance"
	MessageTypeStreamSubaccountDeposit   MessageType = "StreamSubaccountDeposit"
	MessageTypeStreamOraclePrice         MessageType = "StreamOraclePrice"
)

// Envelope is the record placed on (or read from) the durable log.
type Envelope struct {
	MessageType MessageType `json:"message_type"`
	BlockHeight uint64      `json:"block_height"`
	BlockTime   uint64      `json:"block_time"`
	Payload     Payload     `json:"payload"`
}

// Key returns the broker record key per spec: "{block_height}-{block_time}".
// It is a grouping hint only, not a uniqueness guarantee (I3).
func (e Envelope) Key() string {
	return fmt.Sprintf("%d-%d", e.BlockHeight, e.BlockTime)
}

// Validate checks invariant I1: the payload variant must match the tag.
func (e Envelope) Validate() error {
	if e.Payload == nil {
		return fmt.Errorf("envelope: nil payload for message type %q", e.MessageType)
	}
	if e.Payload.messageType() != e.MessageType {
		return fmt.Errorf("envelope: payload variant %q does not match message_type %q", e.Payload.messageType(), e.MessageType)
	}
	return nil
}

// Payload is a tagged union over the list-of-records variants in the table
// in spec.md §3. Each concrete type reports the tag it belongs under.
type Payload interface {
	messageType() MessageType
	variantKey() string
}

// envelopeWire is the on-the-wire shape: {"message_type","block_height","block_time","payload":{variant: [...]}}.
type envelopeWire struct {
	MessageType MessageType     `json:"message_type"`
	BlockHeight uint64          `json:"block_height"`
	BlockTime   uint64          `json:"block_time"`
	Payload     json.RawMessage `json:"payload"`
}

// MarshalJSON renders the canonical single-key payload object described in §6.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	inner, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{e.Payload.variantKey(): inner})
	if err != nil {
		return nil, fmt.Errorf("envelope: wrap payload: %w", err)
	}
	return json.Marshal(envelopeWire{
		MessageType: e.MessageType,
		BlockHeight: e.BlockHeight,
		BlockTime:   e.BlockTime,
		Payload:     wrapped,
	})
}

// UnmarshalJSON parses the canonical envelope shape, dispatching the payload
// decode by message_type and enforcing I1 (variant must match the tag).
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("envelope: decode: %w", err)
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(wire.Payload, &outer); err != nil {
		return fmt.Errorf("envelope: decode payload object: %w", err)
	}
	if len(outer) != 1 {
		return fmt.Errorf("envelope: payload must have exactly one key, got %d", len(outer))
	}

	payload, err := decodePayload(wire.MessageType, outer)
	if err != nil {
		return err
	}

	e.MessageType = wire.MessageType
	e.BlockHeight = wire.BlockHeight
	e.BlockTime = wire.BlockTime
	e.Payload = payload
	return e.Validate()
}

func decodePayload(messageType MessageType, outer map[string]json.RawMessage) (Payload, error) {
	variant, ok := variantKeyFor(messageType)
	if !ok {
		return nil, fmt.Errorf("envelope: unknown message_type %q", messageType)
	}
	raw, ok := outer[variant]
	if !ok {
		return nil, fmt.Errorf("envelope: payload key %q missing for message_type %q", variant, messageType)
	}

	switch messageType {
	case MessageTypeDerivativeMarket:
		var list []DerivativeMarket
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("envelope: decode DerivativeMarket payload: %w", err)
		}
		return DerivativeMarketList(list), nil
	case MessageTypeExchangePosition:
		var list []Position
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("envelope: decode ExchangePosition payload: %w", err)
		}
		return ExchangePositionList(list), nil
	case MessageTypeStreamPosition:
		var list []Position
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("envelope: decode StreamPosition payload: %w", err)
		}
		return StreamPositionList(list), nil
	case MessageTypeExchangeBalance:
		var list []Balance
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("envelope: decode ExchangeBalance payload: %w", err)
		}
		return ExchangeBalanceList(list), nil
	case MessageTypeDerivativeL3Orderbook:
		var list []L3Orderbook
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("envelope: decode DerivativeL3Orderbook payload: %w", err)
		}
		return DerivativeL3OrderbookList(list), nil
	case MessageTypeStreamSpotOrderbook:
		var list []L2OrderbookUpdate
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return StreamSpotOrderbookList(list), nil
	case MessageTypeStreamDerivativeOrderbook:
		var list []L2OrderbookUpdate
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return StreamDerivativeOrderbookList(list), nil
	case MessageTypeSpotTrade:
		var list []Trade
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return SpotTradeList(list), nil
	case MessageTypeDerivativeTrade:
		var list []Trade
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return DerivativeTradeList(list), nil
	case MessageTypeSpotOrder:
		var list []Order
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return SpotOrderList(list), nil
	case MessageTypeDerivativeOrder:
		var list []Order
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return DerivativeOrderList(list), nil
	case MessageTypeStreamBankBalance:
		var list []BankBalance
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return StreamBankBalanceList(list), nil
	case MessageTypeStreamSubaccountDeposit:
		var list []SubaccountDeposit
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return StreamSubaccountDepositList(list), nil
	case MessageTypeStreamOraclePrice:
		var list []OraclePrice
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return StreamOraclePriceList(list), nil
	default:
		return nil, fmt.Errorf("envelope: unknown message_type %q", messageType)
	}
}

func variantKeyFor(messageType MessageType) (string, bool) {
	key, ok := map[MessageType]string{
		MessageTypeDerivativeMarket:          "DerivativeMarkets",
		MessageTypeExchangePosition:          "ExchangePositions",
		MessageTypeStreamPosition:            "StreamPositions",
		MessageTypeExchangeBalance:           "ExchangeBalances",
		MessageTypeDerivativeL3Orderbook:     "DerivativeL3Orderbooks",
		MessageTypeStreamSpotOrderbook:       "StreamSpotOrderbooks",
		MessageTypeStreamDerivativeOrderbook: "StreamDerivativeOrderbooks",
		MessageTypeSpotTrade:                 "SpotTrades",
		MessageTypeDerivativeTrade:           "DerivativeTrades",
		MessageTypeSpotOrder:                 "SpotOrders",
		MessageTypeDerivativeOrder:           "DerivativeOrders",
		MessageTypeStreamBankBalance:         "StreamBankBalances",
		MessageTypeStreamSubaccountDeposit:   "StreamSubaccountDeposits",
		MessageTypeStreamOraclePrice:         "StreamOraclePrices",
	}[messageType]
	return key, ok
}
