// Package broker delivers batches of envelopes to the durable log, keyed by
// "{block_height}-{block_time}", with bounded concurrency, per-record
// outcomes, and optional stale-block filtering. The batching/chunking and
// counted-gate concurrency limit are ported from the original Rust
// producer's semaphore-gated chunk fan-out.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"injdata/envelope"
	"injdata/internal/config"
	"injdata/internal/injerr"
	"injdata/internal/metrics"
)

// RecordOutcome is the per-record result of a SendBatch/SendBatchCurrentOnly
// call. Err is nil on success.
type RecordOutcome struct {
	Key string
	Err error
}

// Producer batches, serializes, and submits envelopes to the log.
type Producer struct {
	writer    *kafka.Writer
	topic     string
	batchSize int
	gate      chan struct{}

	latestBlock atomic.Uint64
}

// NewProducer constructs a Producer whose kafka.Writer is tuned per
// cfg.ProducerMode: high-throughput favors compression and larger linger,
// low-latency favors near-zero linger and per-record acknowledgement.
func NewProducer(cfg config.Config) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	switch cfg.ProducerMode {
	case config.ModeLowLatency:
		w.Async = false
		w.BatchTimeout = time.Microsecond
		w.BatchSize = 1
	default: // config.ModeHighThroughput
		w.Async = true
		w.BatchTimeout = 10 * time.Millisecond
		w.Compression = kafka.Lz4
		w.RequiredAcks = kafka.RequireOne
	}

	return &Producer{
		writer:    w,
		topic:     cfg.KafkaTopic,
		batchSize: cfg.ProducerBatchSize,
		gate:      make(chan struct{}, cfg.ProducerMaxInflightRequests),
	}
}

// UpdateLatestBlock performs a monotonic max update of the tracked tip,
// safe under concurrent callers.
func (p *Producer) UpdateLatestBlock(h uint64) {
	for {
		cur := p.latestBlock.Load()
		if h <= cur {
			return
		}
		if p.latestBlock.CompareAndSwap(cur, h) {
			return
		}
	}
}

// LatestBlock returns the producer's currently tracked chain tip.
func (p *Producer) LatestBlock() uint64 {
	return p.latestBlock.Load()
}

// SendBatch serializes each record, partitions into chunks of batchSize, and
// submits each chunk concurrently under a counted gate bounding in-flight
// submissions to max_inflight_requests. The result preserves input order.
// A serialization failure on one record yields a per-record Serialization
// outcome without aborting the rest of the batch.
func (p *Producer) SendBatch(ctx context.Context, records []envelope.Envelope) []RecordOutcome {
	outcomes := make([]RecordOutcome, len(records))
	if len(records) == 0 {
		return outcomes
	}

	var wg sync.WaitGroup
	for start := 0; start < len(records); start += p.batchSize {
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		chunkStart := start

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.gate <- struct{}{}
			metrics.Producer().SetInflight(len(p.gate))
			defer func() { <-p.gate; metrics.Producer().SetInflight(len(p.gate)) }()
			p.sendChunk(ctx, chunk, outcomes[chunkStart:chunkStart+len(chunk)])
		}()
	}
	wg.Wait()

	metrics.Producer().RecordBatch()
	return outcomes
}

// SendBatchCurrentOnly filters records to those with block_height >=
// latest_block, updates latest_block to the maximum height seen in the
// input, then delegates to SendBatch for the surviving records. Filtered
// entries are reported with a nil error: they were intentionally dropped,
// not failed.
func (p *Producer) SendBatchCurrentOnly(ctx context.Context, records []envelope.Envelope) []RecordOutcome {
	outcomes := make([]RecordOutcome, len(records))
	if len(records) == 0 {
		return outcomes
	}

	var maxHeight uint64
	kept := make([]envelope.Envelope, 0, len(records))
	keptIdx := make([]int, 0, len(records))
	tip := p.LatestBlock()

	for i, rec := range records {
		if rec.BlockHeight > maxHeight {
			maxHeight = rec.BlockHeight
		}
		if rec.BlockHeight < tip {
			outcomes[i] = RecordOutcome{Key: rec.Key()}
			continue
		}
		kept = append(kept, rec)
		keptIdx = append(keptIdx, i)
	}
	p.UpdateLatestBlock(maxHeight)
	metrics.Producer().RecordStaleDropped(len(records) - len(kept))

	keptOutcomes := p.SendBatch(ctx, kept)
	for j, idx := range keptIdx {
		outcomes[idx] = keptOutcomes[j]
	}
	return outcomes
}

func (p *Producer) sendChunk(ctx context.Context, chunk []envelope.Envelope, out []RecordOutcome) {
	msgs := make([]kafka.Message, 0, len(chunk))
	msgIdx := make([]int, 0, len(chunk))

	for i, rec := range chunk {
		payload, err := json.Marshal(rec)
		if err != nil {
			out[i] = RecordOutcome{Key: rec.Key(), Err: injerr.Serialization("broker.sendChunk: marshal envelope", err)}
			metrics.Producer().RecordOutcome("serialization_error")
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.Key()),
			Value: payload,
			Topic: p.topic,
		})
		msgIdx = append(msgIdx, i)
	}

	if len(msgs) == 0 {
		return
	}

	writeErr := p.writer.WriteMessages(ctx, msgs...)
	for _, i := range msgIdx {
		if writeErr != nil {
			out[i] = RecordOutcome{Key: chunk[i].Key(), Err: injerr.Transient("broker.sendChunk: write", writeErr)}
			metrics.Producer().RecordOutcome("broker_error")
			continue
		}
		out[i] = RecordOutcome{Key: chunk[i].Key()}
		metrics.Producer().RecordOutcome("ok")
	}
}

// Flush drains pending submissions, returning a Transient error carrying a
// Timeout cause if the broker has not acknowledged within timeout.
// kafka-go's Writer has no standalone flush primitive; Close is both drain
// and teardown, so Flush is the producer's terminal call on the shutdown path.
func (p *Producer) Flush(ctx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.writer.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return injerr.Connection("broker.Flush: close", err)
		}
		return nil
	case <-time.After(timeout):
		metrics.Producer().RecordFlushTimeout()
		return injerr.Transient("broker.Flush", fmt.Errorf("flush exceeded %s", timeout))
	case <-ctx.Done():
		return injerr.Transient("broker.Flush", ctx.Err())
	}
}
