package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/libs/kafkax"
	"github.com/eecmx/citas/libs/metrics"
	otelx "github.com/eecmx/citas/libs/otel"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	pool      *db.Pool
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// NewKafkaWriter builds the writer used by the relay. Messages are keyed by
// aggregate id so events of one appointment stay ordered.
func NewKafkaWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(kafkax.SplitBrokers(brokers)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

// PublishBatch relays one batch and marks it published in the same
// transaction. A Kafka failure rolls back, so rows are retried next tick.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	var published int
	err := p.pool.WithTx(ctx, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		records, err := repo.FetchUnpublished(ctx, p.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		if err := p.writer.WriteMessages(ctx, BuildMessages(ctx, records)...); err != nil {
			return err
		}

		ids := make([]int64, 0, len(records))
		counts := map[string]int{}
		for _, r := range records {
			ids = append(ids, r.ID)
			counts[r.EventType]++
		}
		if err := repo.MarkPublished(ctx, ids); err != nil {
			return err
		}
		for eventType, n := range counts {
			metrics.CountPublished(eventType, n)
		}
		published = len(records)
		return nil
	})
	return published, err
}

// BuildMessages turns outbox rows into Kafka messages, restoring the trace
// context each row was written under.
func BuildMessages(ctx context.Context, records []Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		headers := kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}.Headers()
		msgs = append(msgs, kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
			Time:    r.CreatedAt,
		})
	}
	return msgs
}
