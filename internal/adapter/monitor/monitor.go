// Package monitor implements domain.Monitor. Every event is logged and
// counted in-process, then fanned out to optional external publishers
// without blocking the request path.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vettly/match-explainer/internal/adapter/observability"
	"github.com/vettly/match-explainer/internal/domain"
)

// Event types published to external sinks.
const (
	TypeSuccess = "explanation.generated"
	TypeError   = "explanation.failed"
)

// Event is the envelope written to every publisher.
type Event struct {
	Type      string               `json:"type"`
	RequestID string               `json:"requestId,omitempty"`
	Success   *domain.MetricsEvent `json:"success,omitempty"`
	Error     *domain.ErrorEvent   `json:"error,omitempty"`
}

// ID returns the unique event id of the wrapped payload.
func (e Event) ID() string {
	switch {
	case e.Success != nil:
		return e.Success.EventID
	case e.Error != nil:
		return e.Error.EventID
	}
	return ""
}

// MatchID returns the match the event refers to. Publishers use it as the
// partition or ordering key.
func (e Event) MatchID() string {
	switch {
	case e.Success != nil:
		return e.Success.MatchID
	case e.Error != nil:
		return e.Error.MatchID
	}
	return ""
}

// Publisher delivers events to one external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// DefaultPublishTimeout bounds a single delivery attempt.
const DefaultPublishTimeout = 5 * time.Second

// Monitor fans events out to its publishers. Safe for concurrent use.
type Monitor struct {
	publishers []Publisher
	timeout    time.Duration
	wg         sync.WaitGroup
}

// New builds a Monitor. Nil publishers are ignored.
func New(timeout time.Duration, publishers ...Publisher) *Monitor {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	m := &Monitor{timeout: timeout}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// LogSuccess records a generated explanation.
func (m *Monitor) LogSuccess(ctx context.Context, ev domain.MetricsEvent) {
	observability.LoggerFromContext(ctx).Info("match explanation generated",
		slog.String("event_id", ev.EventID),
		slog.String("match_id", ev.MatchID),
		slog.String("model", ev.Model),
		slog.Int("tokens_used", ev.TokensUsed),
		slog.Int64("latency_ms", ev.LatencyMs),
		slog.Int("data_quality_score", ev.DataQualityScore),
		slog.String("parse_outcome", ev.ParseOutcome),
		slog.Bool("persisted", ev.Persisted))
	observability.ObserveExplanation(ev.Persisted, ev.ParseOutcome, ev.TokensUsed, ev.DataQualityScore)
	m.dispatch(ctx, Event{Type: TypeSuccess, RequestID: observability.RequestIDFromContext(ctx), Success: &ev})
}

// LogError records a failed stage.
func (m *Monitor) LogError(ctx context.Context, ev domain.ErrorEvent) {
	observability.LoggerFromContext(ctx).Error("match explanation error",
		slog.String("event_id", ev.EventID),
		slog.String("match_id", ev.MatchID),
		slog.String("stage", ev.Stage),
		slog.String("code", ev.Code),
		slog.String("message", ev.Message),
		slog.String("details", ev.Details))
	observability.ObserveExplanationError(ev.Stage, ev.Code)
	m.dispatch(ctx, Event{Type: TypeError, RequestID: observability.RequestIDFromContext(ctx), Error: &ev})
}

func (m *Monitor) dispatch(ctx context.Context, ev Event) {
	// Delivery outlives the request; keep its values but not its deadline.
	base := context.WithoutCancel(ctx)
	for _, p := range m.publishers {
		m.wg.Add(1)
		go func(p Publisher) {
			defer m.wg.Done()
			pctx, cancel := context.WithTimeout(base, m.timeout)
			defer cancel()
			if err := p.Publish(pctx, ev); err != nil {
				observability.ObservePublishFailure(p.Name())
				slog.Warn("monitoring publish failed",
					slog.String("sink", p.Name()),
					slog.String("event_id", ev.ID()),
					slog.Any("error", err))
			}
		}(p)
	}
}

// Close waits for in-flight deliveries, bounded by ctx, then closes every
// publisher.
func (m *Monitor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
