// Package redpanda publishes monitoring events to a Redpanda/Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/vettly/match-explainer/internal/adapter/monitor"
	"github.com/vettly/match-explainer/internal/adapter/observability"
)

// Producer writes one record per event, keyed by match id so that all events
// of a match land on the same partition in order.
type Producer struct {
	client *kgo.Client
	topic  string
}

var _ monitor.Publisher = (*Producer)(nil)

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("topic", topic))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("op=redpanda.NewProducer: topic name cannot be empty")
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RequestRetries(5),
		kgo.DialTimeout(10*time.Second),
	)
	if err != nil {
		slog.Error("failed to create redpanda client", slog.Any("error", err))
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}

	if err := createTopicIfNotExists(ctx, client, topic, 3, 1); err != nil {
		// Brokers with auto-create or restricted ACLs still accept produces.
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}

	slog.Info("redpanda producer created successfully")
	return &Producer{client: client, topic: topic}, nil
}

// Name implements monitor.Publisher.
func (p *Producer) Name() string { return "kafka" }

// Publish implements monitor.Publisher. The record is buffered and produced
// asynchronously; delivery failures are logged and counted by the promise.
func (p *Producer) Publish(ctx context.Context, ev monitor.Event) error {
	rec, err := toRecord(p.topic, ev)
	if err != nil {
		return err
	}
	// A canceled context fails buffered records, so only values are kept.
	p.client.Produce(context.WithoutCancel(ctx), rec, deliveryReport(ev.ID()))
	return nil
}

func deliveryReport(eventID string) func(*kgo.Record, error) {
	return func(r *kgo.Record, err error) {
		if err != nil {
			observability.ObservePublishFailure("kafka")
			slog.Warn("failed to produce monitoring event",
				slog.String("event_id", eventID),
				slog.String("topic", r.Topic),
				slog.Any("error", err))
			return
		}
		slog.Debug("monitoring event produced",
			slog.String("event_id", eventID),
			slog.Int("partition", int(r.Partition)),
			slog.Int64("offset", r.Offset))
	}
}

func toRecord(topic string, ev monitor.Event) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.Publish: marshal: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.MatchID()),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID())},
		},
	}, nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() error {
	if p.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("op=redpanda.Close: flush: %w", err)
	}
	return nil
}
