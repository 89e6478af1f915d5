// Package kafka publishes summaries of the parsed model results to a Kafka
// topic so downstream services can follow forecast runs.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/swmm-fews-adapter/internal/config"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// TableSummary is the message published for each result table.
type TableSummary struct {
	Name      string            `json:"name"`
	Kind      domain.TableKind  `json:"kind"`
	Columns   []string          `json:"columns"`
	Units     map[string]string `json:"units"`
	Rows      int               `json:"rows"`
	FirstTime *time.Time        `json:"first_time,omitempty"`
	LastTime  *time.Time        `json:"last_time,omitempty"`
	RunID     string            `json:"run_id"`
}

// Summarize describes a result table without its values.
func Summarize(runID string, t *domain.ResultTable) TableSummary {
	s := TableSummary{
		Name:    t.Name,
		Kind:    t.Kind(),
		Columns: t.Columns,
		Units:   t.Units,
		Rows:    len(t.Rows),
		RunID:   runID,
	}
	if n := len(t.Rows); n > 0 {
		first, last := t.Rows[0].Time.UTC(), t.Rows[n-1].Time.UTC()
		s.FirstTime, s.LastTime = &first, &last
	}
	return s
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces table summaries to the results topic.
type Publisher struct {
	writer   messageWriter
	attempts int
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured results topic.
func NewPublisher(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaResultsTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, cfg.KafkaPublishAttempts, clock, logger)
}

func newPublisher(w messageWriter, attempts int, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Publisher{writer: w, attempts: attempts, clock: clock, logger: logger}
}

// Publish writes one summary per table of doc in a single batch, retrying
// with exponential backoff. It returns the number of messages written.
func (p *Publisher) Publish(ctx context.Context, runID string, doc *domain.ReportDocument) (int, error) {
	tables := doc.Ordered()
	if len(tables) == 0 {
		return 0, nil
	}
	publishedAt := p.clock.Now()
	msgs := make([]kafkago.Message, len(tables))
	for i, t := range tables {
		msg, err := serializeToMessage(Summarize(runID, t), publishedAt)
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}

	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			p.logger.Info("table summaries published", "tables", len(msgs), "attempt", attempt)
			return len(msgs), nil
		}
		if attempt == p.attempts {
			break
		}
		p.logger.Warn("publish table summaries failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return 0, fmt.Errorf("publish table summaries: %w", ctx.Err())
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	return 0, fmt.Errorf("publish table summaries after %d attempts: %w", p.attempts, err)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a TableSummary into a Kafka message keyed by table name.
func serializeToMessage(s TableSummary, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize table summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.Name),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table_kind", Value: []byte(s.Kind)},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
