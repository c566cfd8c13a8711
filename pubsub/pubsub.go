// Package pubsub broadcasts exchange events to subscribers without coupling
// the cache sink to their lifetime. It is ported from the original Redis
// pub/sub service: a mutex-guarded connection pool, a bounded outbound
// queue, and a small fixed worker pool draining it.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"injdata/internal/injerr"
	"injdata/internal/metrics"
)

// EventType is the closed set of broadcastable event kinds.
type EventType string

const (
	EventMarketUpdate     EventType = "MarketUpdate"
	EventPositionUpdate   EventType = "PositionUpdate"
	EventLiquidationAlert EventType = "LiquidationAlert"
	EventPriceUpdate      EventType = "PriceUpdate"
	EventOrderbookUpdate  EventType = "OrderbookUpdate"
	EventTradeUpdate      EventType = "TradeUpdate"
	EventSystemEvent      EventType = "SystemEvent"
)

// Event is the canonical pub/sub payload: {event_type, timestamp, payload}.
type Event struct {
	EventType EventType   `json:"event_type"`
	Timestamp uint64      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Config bundles the tunables for a Service.
type Config struct {
	RedisURL        string
	ChannelPrefix   string
	Sharded         bool
	ConnectionPool  int
	PublisherWorkers int
	QueueSize       int
}

type outbound struct {
	channel string
	payload []byte
}

// Service publishes events to Redis channels through a bounded queue drained
// by a small worker pool, each worker borrowing a connection handle from a
// mutex-guarded pool for the duration of one publish.
type Service struct {
	prefix  string
	sharded bool

	poolMu sync.Mutex
	pool   []*redis.Client

	queue chan outbound

	wg sync.WaitGroup

	avgPublishUs uint64
	avgMu        sync.Mutex
}

// NewService connects ConnectionPool handles to RedisURL and starts
// PublisherWorkers goroutines draining the outbound queue.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, injerr.Configuration("pubsub.NewService: parse redis url", err)
	}

	pool := make([]*redis.Client, 0, cfg.ConnectionPool)
	for i := 0; i < cfg.ConnectionPool; i++ {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, injerr.Connection("pubsub.NewService: ping", err)
		}
		pool = append(pool, client)
	}

	s := &Service{
		prefix:  cfg.ChannelPrefix,
		sharded: cfg.Sharded,
		pool:    pool,
		queue:   make(chan outbound, cfg.QueueSize),
	}

	for i := 0; i < cfg.PublisherWorkers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}

	return s, nil
}

// ChannelFor derives the destination channel name for an event type:
// sharded mode yields "{prefix}:{EventType}", unsharded yields "{prefix}".
func (s *Service) ChannelFor(eventType EventType) string {
	if s.sharded {
		return fmt.Sprintf("%s:%s", s.prefix, eventType)
	}
	return s.prefix
}

// PublishEvent enqueues e for delivery, returning a Backpressure error if
// the outbound queue is full.
func (s *Service) PublishEvent(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return injerr.Serialization("pubsub.PublishEvent: marshal", err)
	}
	metrics.PubSub().SetQueueDepth(len(s.queue))
	select {
	case s.queue <- outbound{channel: s.ChannelFor(e.EventType), payload: payload}:
		return nil
	default:
		metrics.PubSub().RecordError()
		return injerr.Backpressure("pubsub.PublishEvent", fmt.Errorf("outbound queue full"))
	}
}

// PublishEventsBatch groups events by derived channel, serializing each
// group once as a list payload, and enqueues one message per channel.
func (s *Service) PublishEventsBatch(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	grouped := make(map[string][]Event, len(events))
	for _, e := range events {
		ch := s.ChannelFor(e.EventType)
		grouped[ch] = append(grouped[ch], e)
	}

	var firstErr error
	for ch, group := range grouped {
		payload, err := json.Marshal(group)
		if err != nil {
			if firstErr == nil {
				firstErr = injerr.Serialization("pubsub.PublishEventsBatch: marshal", err)
			}
			continue
		}
		select {
		case s.queue <- outbound{channel: ch, payload: payload}:
		default:
			metrics.PubSub().RecordError()
			if firstErr == nil {
				firstErr = injerr.Backpressure("pubsub.PublishEventsBatch", fmt.Errorf("outbound queue full for channel %s", ch))
			}
		}
	}
	return firstErr
}

func (s *Service) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			s.publish(ctx, msg)
		}
	}
}

func (s *Service) publish(ctx context.Context, msg outbound) {
	conn := s.acquire()
	if conn == nil {
		metrics.PubSub().RecordPoolExhausted()
		return
	}
	defer s.release(conn)

	start := time.Now()
	err := conn.Publish(ctx, msg.channel, msg.payload).Err()
	elapsedUs := uint64(time.Since(start).Microseconds())

	if err != nil {
		metrics.PubSub().RecordError()
		return
	}
	metrics.PubSub().RecordPublished()

	s.avgMu.Lock()
	if s.avgPublishUs == 0 {
		s.avgPublishUs = elapsedUs
	} else {
		s.avgPublishUs = (s.avgPublishUs*9 + elapsedUs) / 10
	}
	avg := s.avgPublishUs
	s.avgMu.Unlock()
	metrics.PubSub().SetAvgPublishUs(avg)
	metrics.PubSub().SetMaxPublishUs(elapsedUs)
}

func (s *Service) acquire() *redis.Client {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	n := len(s.pool)
	if n == 0 {
		return nil
	}
	conn := s.pool[n-1]
	s.pool = s.pool[:n-1]
	return conn
}

func (s *Service) release(conn *redis.Client) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	s.pool = append(s.pool, conn)
}

// Close stops accepting new events and waits for workers to drain.
func (s *Service) Close() error {
	close(s.queue)
	s.wg.Wait()
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	var firstErr error
	for _, c := range s.pool {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CreateMarketUpdate builds a MarketUpdate event with the given payload.
func CreateMarketUpdate(timestamp uint64, data interface{}) Event {
	return Event{EventType: EventMarketUpdate, Timestamp: timestamp, Payload: data}
}

// CreatePriceUpdate builds a PriceUpdate event for marketID/price.
func CreatePriceUpdate(timestamp uint64, marketID, price string) Event {
	return Event{
		EventType: EventPriceUpdate,
		Timestamp: timestamp,
		Payload:   map[string]string{"market_id": marketID, "price": price},
	}
}

// CreateLiquidationAlert builds a LiquidationAlert event with the given payload.
func CreateLiquidationAlert(timestamp uint64, data interface{}) Event {
	return Event{EventType: EventLiquidationAlert, Timestamp: timestamp, Payload: data}
}
