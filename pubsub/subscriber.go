package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"injdata/internal/backoff"
)

// SubscriberConfig bundles the tunables for a Subscriber.
type SubscriberConfig struct {
	RedisURL        string
	ChannelPrefix   string
	Sharded         bool
	EventTypes      []EventType // used only when Sharded
	DeliveryBufSize int
	MaxRetries      int
}

// Subscriber opens one connection and delivers decoded events through a
// bounded channel. On disconnect it retries with doubling backoff up to a
// bounded attempt count; when the delivery channel is full, messages are
// dropped with a warning rather than blocking the receive loop.
type Subscriber struct {
	cfg    SubscriberConfig
	client *redis.Client
	logger *slog.Logger
	events chan Event
}

// NewSubscriber connects to cfg.RedisURL and returns a Subscriber ready to Run.
func NewSubscriber(cfg SubscriberConfig, logger *slog.Logger) (*Subscriber, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewSubscriber: parse redis url: %w", err)
	}
	return &Subscriber{
		cfg:    cfg,
		client: redis.NewClient(opts),
		logger: logger.With("component", "pubsub.Subscriber"),
		events: make(chan Event, cfg.DeliveryBufSize),
	}, nil
}

// Events returns the bounded channel events are delivered through.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) channels() []string {
	if !s.cfg.Sharded {
		return []string{s.cfg.ChannelPrefix}
	}
	chans := make([]string, 0, len(s.cfg.EventTypes))
	for _, et := range s.cfg.EventTypes {
		chans = append(chans, fmt.Sprintf("%s:%s", s.cfg.ChannelPrefix, et))
	}
	return chans
}

// Run subscribes and delivers messages until ctx is cancelled, reconnecting
// with doubling backoff (base 100ms, cap 5s) on disconnect, up to
// MaxRetries consecutive failures before giving up.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.events)

	b := backoff.NewDoubling(100*time.Millisecond, 5*time.Second)
	attempts := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.runOnce(ctx, func() { attempts = 0; b.Reset() }); err != nil {
			attempts++
			if s.cfg.MaxRetries > 0 && attempts >= s.cfg.MaxRetries {
				return fmt.Errorf("pubsub.Subscriber: exhausted %d retries: %w", s.cfg.MaxRetries, err)
			}
			delay := b.Next()
			s.logger.Warn("subscribe connection lost, retrying", "error", err, "delay", delay, "attempt", attempts)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		attempts = 0
		b.Reset()
	}
}

func (s *Subscriber) runOnce(ctx context.Context, onSubscribed func()) error {
	ps := s.client.Subscribe(ctx, s.channels()...)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	onSubscribed()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed pub/sub message", "error", err, "channel", msg.Channel)
				continue
			}
			select {
			case s.events <- event:
			default:
				s.logger.Warn("delivery channel full, dropping event", "event_type", event.EventType)
			}
		}
	}
}

// Close releases the subscriber's connection.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
