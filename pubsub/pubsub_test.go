package pubsub

import "testing"

func TestChannelForShardedMode(t *testing.T) {
	s := &Service{prefix: "inj:exchange", sharded: true}
	if got, want := s.ChannelFor(EventPriceUpdate), "inj:exchange:PriceUpdate"; got != want {
		t.Fatalf("ChannelFor(sharded) = %q, want %q", got, want)
	}
}

func TestChannelForUnshardedMode(t *testing.T) {
	s := &Service{prefix: "inj:exchange", sharded: false}
	if got, want := s.ChannelFor(EventPriceUpdate), "inj:exchange"; got != want {
		t.Fatalf("ChannelFor(unsharded) = %q, want %q", got, want)
	}
}

func TestPublishEventReturnsBackpressureWhenQueueFull(t *testing.T) {
	s := &Service{prefix: "inj:exchange", sharded: true, queue: make(chan outbound, 1)}
	s.queue <- outbound{channel: "x", payload: []byte("y")}

	err := s.PublishEvent(CreatePriceUpdate(1700000000, "m1", "100"))
	if err == nil {
		t.Fatalf("PublishEvent: expected backpressure error when queue is full")
	}
}

func TestPublishEventsBatchGroupsByChannel(t *testing.T) {
	s := &Service{prefix: "inj:exchange", sharded: true, queue: make(chan outbound, 8)}

	events := []Event{
		CreatePriceUpdate(1, "m1", "100"),
		CreatePriceUpdate(1, "m2", "200"),
		CreateMarketUpdate(1, map[string]string{"market_id": "m1"}),
	}
	if err := s.PublishEventsBatch(events); err != nil {
		t.Fatalf("PublishEventsBatch: %v", err)
	}
	if got := len(s.queue); got != 2 {
		t.Fatalf("queue depth after batch = %d, want 2 (one per distinct channel)", got)
	}
}

func TestCreateHelpersSetEventType(t *testing.T) {
	if e := CreateMarketUpdate(1, nil); e.EventType != EventMarketUpdate {
		t.Fatalf("CreateMarketUpdate: EventType = %q", e.EventType)
	}
	if e := CreatePriceUpdate(1, "m1", "100"); e.EventType != EventPriceUpdate {
		t.Fatalf("CreatePriceUpdate: EventType = %q", e.EventType)
	}
	if e := CreateLiquidationAlert(1, nil); e.EventType != EventLiquidationAlert {
		t.Fatalf("CreateLiquidationAlert: EventType = %q", e.EventType)
	}
}
