package usecase

import (
	"context"
	"encoding/json"

	"BloomPull/internal/analytics"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	pkgkafka "BloomPull/pkg/kafka"
	"BloomPull/pkg/logger"
)

// DirectBus delivers bar events to the analytics engine in-process, on the
// publisher's goroutine. The default for single-node deployments.
type DirectBus struct {
	engine *analytics.Engine
	l      *logger.Logger
}

func NewDirectBus(engine *analytics.Engine, l *logger.Logger) *DirectBus {
	return &DirectBus{engine: engine, l: l}
}

var _ repository.Bus = (*DirectBus)(nil)

func (b *DirectBus) PublishBarEvent(ctx context.Context, ev models.BarEvent) error {
	_, err := b.engine.Recompute(ctx, []models.SeriesKey{ev.Series})
	if err != nil {
		// recompute failure never fails the ingest commit; the next event or
		// read-path miss repairs the metrics
		b.l.Error("recompute after bar event",
			logger.String("series", ev.Series.String()),
			logger.Error(err))
	}
	return nil
}

func (b *DirectBus) Close() error { return nil }

// KafkaBus publishes bar events to a topic, keyed by series so one series'
// events stay ordered on a single partition.
type KafkaBus struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaBus(producer *pkgkafka.Producer, topic string) *KafkaBus {
	return &KafkaBus{producer: producer, topic: topic}
}

var _ repository.Bus = (*KafkaBus)(nil)

func (b *KafkaBus) PublishBarEvent(ctx context.Context, ev models.BarEvent) error {
	return b.producer.Publish(ctx, b.topic, []byte(ev.Series.String()), ev)
}

func (b *KafkaBus) Close() error { return b.producer.Close() }

// BarEventsHandler consumes bar events from Kafka and drives recomputation.
// Registered on the consumer when the bus runs over Kafka.
type BarEventsHandler struct {
	topic  string
	engine *analytics.Engine
}

func NewBarEventsHandler(topic string, engine *analytics.Engine) *BarEventsHandler {
	return &BarEventsHandler{topic: topic, engine: engine}
}

func (h *BarEventsHandler) Topic() string { return h.topic }

func (h *BarEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.BarEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return err
	}
	_, err := h.engine.Recompute(ctx, []models.SeriesKey{ev.Series})
	return err
}

var _ pkgkafka.MessageHandler = (*BarEventsHandler)(nil)
