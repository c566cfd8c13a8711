// Package config loads pipeline configuration from a CONFIG_FILE-referenced
// JSON document or, absent that, from environment variables — following the
// struct-plus-Load shape the teacher service uses for its own TOML config,
// adapted to the env/JSON sourcing this system specifies.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"injdata/internal/injerr"
)

// ProducerMode selects the batching/latency tradeoff for the broker producer.
type ProducerMode string

const (
	ModeHighThroughput ProducerMode = "high-throughput"
	ModeLowLatency     ProducerMode = "low-latency"
)

// Config bundles every tunable the pipeline's services read at startup.
type Config struct {
	GRPCStreamEndpoint string `json:"grpc_stream_endpoint"`
	GRPCQueryEndpoint  string `json:"grpc_query_endpoint"`

	KafkaBrokers       []string `json:"kafka_brokers"`
	KafkaTopic         string   `json:"kafka_topic"`
	KafkaClientID      string   `json:"kafka_client_id"`
	KafkaConsumerGroup string   `json:"kafka_consumer_group"`

	ProducerMode               ProducerMode `json:"producer_mode"`
	ProducerMaxInflightRequests int         `json:"producer_max_inflight_requests"`
	ProducerBatchSize           int         `json:"producer_batch_size"`

	RedisURL         string `json:"redis_url"`
	RedisTTLSeconds  int    `json:"redis_ttl_seconds"`

	ScyllaNodes    []string `json:"scylla_nodes"`
	ScyllaKeyspace string   `json:"scylla_keyspace"`

	MetricsListenAddress string `json:"metrics_listen_address"`

	CheckpointPath string `json:"checkpoint_path"`

	HeartbeatIntervalSeconds int  `json:"heartbeat_interval_seconds"`
	FetchBalances            bool `json:"fetch_balances"`

	PubSubChannelPrefix    string `json:"pubsub_channel_prefix"`
	PubSubSharded          bool   `json:"pubsub_sharded"`
	PubSubConnectionPool   int    `json:"pubsub_connection_pool_size"`
	PubSubPublisherWorkers int    `json:"pubsub_publisher_workers"`
	PubSubQueueSize        int    `json:"pubsub_publisher_queue_size"`
}

// Default returns the configuration defaults tabulated in the external
// interface specification.
func Default() Config {
	return Config{
		GRPCStreamEndpoint:          "http://localhost:1999",
		GRPCQueryEndpoint:           "http://localhost:9900",
		KafkaBrokers:                []string{"localhost:9092"},
		KafkaTopic:                  "injective-data",
		KafkaClientID:               "injective-client",
		KafkaConsumerGroup:          "injdata-consumer",
		ProducerMode:                ModeHighThroughput,
		ProducerMaxInflightRequests: 100,
		ProducerBatchSize:           1000,
		RedisURL:                    "redis://127.0.0.1:6379",
		RedisTTLSeconds:             0,
		ScyllaNodes:                 []string{"127.0.0.1"},
		ScyllaKeyspace:              "injective",
		MetricsListenAddress:        ":9464",
		CheckpointPath:              "./data/injdata-tip",
		HeartbeatIntervalSeconds:    30,
		FetchBalances:               false,
		PubSubChannelPrefix:         "inj:exchange",
		PubSubSharded:               true,
		PubSubConnectionPool:        32,
		PubSubPublisherWorkers:      8,
		PubSubQueueSize:             10000,
	}
}

// Load resolves configuration from CONFIG_FILE if set, otherwise from the
// recognized environment variables, layered over Default.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: read CONFIG_FILE", err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, injerr.Configuration("config.Load: parse CONFIG_FILE", err)
		}
		return cfg, nil
	}

	if v := strings.TrimSpace(os.Getenv("GRPC_STREAM_ENDPOINT")); v != "" {
		cfg.GRPCStreamEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("GRPC_QUERY_ENDPOINT")); v != "" {
		cfg.GRPCQueryEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_TOPIC")); v != "" {
		cfg.KafkaTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP")); v != "" {
		cfg.KafkaConsumerGroup = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_TTL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse REDIS_TTL_SECONDS", err)
		}
		cfg.RedisTTLSeconds = n
	}
	if v := strings.TrimSpace(firstNonEmpty(os.Getenv("SCYLLA_NODES"), os.Getenv("SCYLLADB_NODES"))); v != "" {
		cfg.ScyllaNodes = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("SCYLLA_KEYSPACE")); v != "" {
		cfg.ScyllaKeyspace = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_LISTEN_ADDRESS")); v != "" {
		cfg.MetricsListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("CHECKPOINT_PATH")); v != "" {
		cfg.CheckpointPath = v
	}
	if v := strings.TrimSpace(os.Getenv("PRODUCER_MODE")); v != "" {
		cfg.ProducerMode = ProducerMode(v)
	}
	if v := strings.TrimSpace(os.Getenv("PRODUCER_MAX_INFLIGHT_REQUESTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PRODUCER_MAX_INFLIGHT_REQUESTS", err)
		}
		cfg.ProducerMaxInflightRequests = n
	}
	if v := strings.TrimSpace(os.Getenv("PRODUCER_BATCH_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PRODUCER_BATCH_SIZE", err)
		}
		cfg.ProducerBatchSize = n
	}
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_INTERVAL_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse HEARTBEAT_INTERVAL_SECONDS", err)
		}
		cfg.HeartbeatIntervalSeconds = n
	}
	if v := strings.TrimSpace(os.Getenv("FETCH_BALANCES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse FETCH_BALANCES", err)
		}
		cfg.FetchBalances = b
	}
	if v := strings.TrimSpace(os.Getenv("PUBSUB_CHANNEL_PREFIX")); v != "" {
		cfg.PubSubChannelPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("PUBSUB_SHARDED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PUBSUB_SHARDED", err)
		}
		cfg.PubSubSharded = b
	}
	if v := strings.TrimSpace(os.Getenv("PUBSUB_CONNECTION_POOL_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PUBSUB_CONNECTION_POOL_SIZE", err)
		}
		cfg.PubSubConnectionPool = n
	}
	if v := strings.TrimSpace(os.Getenv("PUBSUB_PUBLISHER_WORKERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PUBSUB_PUBLISHER_WORKERS", err)
		}
		cfg.PubSubPublisherWorkers = n
	}
	if v := strings.TrimSpace(os.Getenv("PUBSUB_PUBLISHER_QUEUE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, injerr.Configuration("config.Load: parse PUBSUB_PUBLISHER_QUEUE_SIZE", err)
		}
		cfg.PubSubQueueSize = n
	}

	return cfg, nil
}

// Validate checks invariants Load cannot enforce on its own (e.g. cross-field
// constraints), returning a Configuration error describing the first violation.
func Validate(cfg Config) error {
	if len(cfg.KafkaBrokers) == 0 {
		return injerr.Configuration("config.Validate", fmt.Errorf("kafka_brokers must not be empty"))
	}
	if cfg.KafkaTopic == "" {
		return injerr.Configuration("config.Validate", fmt.Errorf("kafka_topic must not be empty"))
	}
	if cfg.ProducerMode != ModeHighThroughput && cfg.ProducerMode != ModeLowLatency {
		return injerr.Configuration("config.Validate", fmt.Errorf("producer_mode must be %q or %q", ModeHighThroughput, ModeLowLatency))
	}
	if cfg.ProducerMaxInflightRequests <= 0 {
		return injerr.Configuration("config.Validate", fmt.Errorf("producer_max_inflight_requests must be positive"))
	}
	if cfg.ProducerBatchSize <= 0 {
		return injerr.Configuration("config.Validate", fmt.Errorf("producer_batch_size must be positive"))
	}
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
