package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/pkg/jobs"
)

// AlertEventBus transports encoded alert events.
type AlertEventBus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// AlertNotifierConfig configures delivery workers.
type AlertNotifierConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// AlertNotifier delivers alert events through a retrying worker queue so that publishing
// never blocks the detector or an administrator request.
type AlertNotifier struct {
	bus     AlertEventBus
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService
}

// NewAlertNotifier constructs the notifier. Call Start before publishing.
func NewAlertNotifier(bus AlertEventBus, cfg AlertNotifierConfig, logger *zap.Logger, metrics *MetricsService) *AlertNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &AlertNotifier{bus: bus, logger: logger, metrics: metrics}
	n.queue = jobs.NewQueue("alert-notifications", n.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			n.metrics.RecordNotification("failed")
		},
	})
	return n
}

// Start launches the delivery workers.
func (n *AlertNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop waits for the delivery workers to exit.
func (n *AlertNotifier) Stop() {
	n.queue.Stop()
}

// Flush waits for queued events to be delivered or for ctx to end.
func (n *AlertNotifier) Flush(ctx context.Context) error {
	return n.queue.Drain(ctx)
}

// Publish schedules delivery of an event. Events are dropped when the queue is full.
func (n *AlertNotifier) Publish(event dto.AlertEvent) {
	if err := n.queue.Enqueue(jobs.Job{Type: event.Type, Payload: event}); err != nil {
		n.metrics.RecordNotification("dropped")
		n.logger.Warn("alert event dropped", zap.String("type", event.Type), zap.Int64("alert_id", event.Alert.ID), zap.Error(err))
		return
	}
	n.metrics.RecordNotification("queued")
}

func (n *AlertNotifier) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(dto.AlertEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	if err := n.bus.Publish(ctx, payload); err != nil {
		return err
	}
	n.metrics.RecordNotification("delivered")
	return nil
}

// Subscribe decodes events from the bus until ctx is done.
func (n *AlertNotifier) Subscribe(ctx context.Context) (<-chan dto.AlertEvent, error) {
	raw, err := n.bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan dto.AlertEvent, 16)
	go func() {
		defer close(out)
		for payload := range raw {
			var event dto.AlertEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				n.logger.Warn("discarding malformed alert event", zap.Error(err))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
