// Package eventbus publishes build-version commit events so downstream
// consumers (query-side cache invalidation, external indexers) learn when a
// build_version has finished being written and is safe to read.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"graphrag/internal/config"
)

// BuildCommitted is emitted once a build_version has finished writing to the
// graph store and vector index and rollback is no longer expected.
type BuildCommitted struct {
	BuildVersion string    `json:"build_version"`
	DocumentIDs  []string  `json:"document_ids"`
	CommittedAt  time.Time `json:"committed_at"`
}

// Publisher publishes pipeline lifecycle events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher constructs a Publisher from cfg.
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// PublishBuildCommitted emits a BuildCommitted event keyed by build version.
func (p *Publisher) PublishBuildCommitted(ctx context.Context, evt BuildCommitted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.BuildVersion),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer reads pipeline lifecycle events for a single consumer group.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer constructs a Consumer from cfg under the given consumer group.
func NewConsumer(cfg config.KafkaConfig, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: groupID,
	})}
}

// Next blocks until the next BuildCommitted event is available or ctx is
// cancelled.
func (c *Consumer) Next(ctx context.Context) (BuildCommitted, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return BuildCommitted{}, err
	}
	var evt BuildCommitted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return BuildCommitted{}, err
	}
	return evt, nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
