// Package consume wraps a kafka-go Reader with the per-sink consumer group
// and shutdown-select shape common to every sink, dispatching each decoded
// envelope to a Processor. All message-type handling lives in the
// Processor; the consumer itself stays generic over what it delivers to.
package consume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	kafka "github.com/segmentio/kafka-go"

	"injdata/envelope"
	"injdata/internal/config"
	"injdata/internal/metrics"
)

// Processor handles one decoded envelope. A non-nil error is logged and the
// consumer continues with the next message (§7: "per-event errors in a sink
// log and continue").
type Processor interface {
	Process(ctx context.Context, env envelope.Envelope) error
}

// Consumer reads envelopes from the log and dispatches them to a Processor,
// one partition's worth of messages at a time, in receipt order.
type Consumer struct {
	reader    *kafka.Reader
	processor Processor
	sink      string
	logger    *slog.Logger
}

// New constructs a Consumer for the named sink ("cache" or "wcs"), joining
// consumer group "{kafka_consumer_group}-{sink}" so each sink tracks its own
// offsets independently.
func New(cfg config.Config, sink string, processor Processor, logger *slog.Logger) *Consumer {
	groupID := fmt.Sprintf("%s-%s", cfg.KafkaConsumerGroup, sink)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic,
		GroupID:     groupID,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:    reader,
		processor: processor,
		sink:      sink,
		logger:    logger.With("component", "consume.Consumer", "sink", sink),
	}
}

// Run reads and dispatches messages until ctx is cancelled, then closes the
// reader and returns. Malformed envelopes and processing errors are logged
// and skipped; they never stop the loop.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("fetch message failed", "error", err)
			continue
		}

		var env envelope.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.logger.Warn("dropping malformed envelope", "error", err, "offset", msg.Offset)
			c.commit(ctx, msg)
			continue
		}

		if err := c.processor.Process(ctx, env); err != nil {
			c.logger.Warn("processor error, skipping event", "error", err, "message_type", env.MessageType)
		} else {
			metrics.Consumer(c.sink).RecordProcessed(string(env.MessageType))
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn("commit failed", "error", err, "offset", msg.Offset)
	}
}

// Close releases the underlying reader without waiting for Run to observe
// context cancellation; used by callers that never started Run.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
