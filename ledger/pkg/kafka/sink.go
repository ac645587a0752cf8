// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/malbeclabs/racevault/ledger/pkg/events"
)

const (
	DefaultTopic = "racevault.events"

	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderSequence  = "sequence"
)

type SinkConfig struct {
	Logger  *slog.Logger
	Brokers []string
	Topic   string
	// EnsureTopic creates the topic on startup when it does not exist.
	EnsureTopic       bool
	Partitions        int32
	ReplicationFactor int16
	ProduceTimeout    time.Duration
}

func (cfg *SinkConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 10 * time.Second
	}
	return nil
}

// Sink produces one record per event. Records are keyed by vault address so
// the events of a vault stay ordered within a partition.
type Sink struct {
	log    *slog.Logger
	cfg    SinkConfig
	client *kgo.Client
}

func NewSink(ctx context.Context, cfg SinkConfig) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordDeliveryTimeout(cfg.ProduceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	s := &Sink{log: cfg.Logger, cfg: cfg, client: client}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}
	if cfg.EnsureTopic {
		if err := s.ensureTopic(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}

	s.log.Info("kafka: sink initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return s, nil
}

func (s *Sink) ensureTopic(ctx context.Context) error {
	admin := kadm.NewClient(s.client)
	resp, err := admin.CreateTopic(ctx, s.cfg.Partitions, s.cfg.ReplicationFactor, nil, s.cfg.Topic)
	if err == nil {
		err = resp.Err
	}
	if errors.Is(err, kerr.TopicAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", s.cfg.Topic, err)
	}
	s.log.Info("kafka: created topic", "topic", s.cfg.Topic, "partitions", s.cfg.Partitions)
	return nil
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Publish(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]*kgo.Record, len(batch))
	for i, ev := range batch {
		records[i] = Record(s.cfg.Topic, ev)
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce events: %w", err)
	}
	s.log.Debug("kafka: produced events", "topic", s.cfg.Topic, "count", len(batch))
	return nil
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}

// Record encodes ev as a Kafka record with the envelope fields in headers and
// the typed payload as value.
func Record(topic string, ev events.Event) *kgo.Record {
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(ev.Vault.String()),
		Value:     ev.Payload,
		Timestamp: ev.CreatedAt,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventID, Value: []byte(ev.ID.String())},
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderSequence, Value: fmt.Appendf(nil, "%d", ev.Sequence)},
		},
	}
}
