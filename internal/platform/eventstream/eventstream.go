// Package eventstream replays generated app events onto a Kafka topic so
// streaming consumers can be exercised with the same data the warehouse
// seeds carry.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ehr/screenseed/internal/platform/seedio"
)

// DefaultBatchSize is the number of messages written per WriteMessages call.
const DefaultBatchSize = 500

// MessageWriter writes messages to a topic. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer for topic. Messages with the same key land
// on the same partition, so one member's events stay ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// AppEvent is the JSON payload of one message.
type AppEvent struct {
	EventID        string `json:"event_id"`
	MemberID       string `json:"member_id"`
	EventType      string `json:"event_type"`
	EventTimestamp string `json:"event_timestamp"`
	SessionID      string `json:"session_id"`
	DeviceType     string `json:"device_type"`
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// Publisher sends app events to a MessageWriter in file order.
type Publisher struct {
	writer    MessageWriter
	batchSize int
	logger    zerolog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(w MessageWriter, logger zerolog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{writer: w, batchSize: DefaultBatchSize, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Messages converts an app events table into Kafka messages keyed by
// member_id.
func Messages(t *seedio.Table) ([]kafka.Message, error) {
	cols := make([]int, len(seedio.AppEventColumns))
	for i, name := range seedio.AppEventColumns {
		idx, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = idx
	}

	msgs := make([]kafka.Message, 0, len(t.Rows))
	for _, row := range t.Rows {
		ev := AppEvent{
			EventID:        row[cols[0]],
			MemberID:       row[cols[1]],
			EventType:      row[cols[2]],
			EventTimestamp: row[cols[3]],
			SessionID:      row[cols[4]],
			DeviceType:     row[cols[5]],
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encoding event %s: %w", ev.EventID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.MemberID), Value: value})
	}
	return msgs, nil
}

// PublishAppEvents writes every row of t and returns the number of messages
// sent. It stops at the first failed batch.
func (p *Publisher) PublishAppEvents(ctx context.Context, t *seedio.Table) (int, error) {
	msgs, err := Messages(t)
	if err != nil {
		return 0, err
	}

	sent := 0
	for start := 0; start < len(msgs); start += p.batchSize {
		end := min(start+p.batchSize, len(msgs))
		if err := p.writer.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return sent, fmt.Errorf("writing events %d-%d: %w", start, end-1, err)
		}
		sent = end
		p.logger.Debug().Int("sent", sent).Int("total", len(msgs)).Msg("published event batch")
	}
	p.logger.Info().Int("events", sent).Msg("published app events")
	return sent, nil
}
