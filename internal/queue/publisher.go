package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/metrics"
)

// Publisher sends appointment events to a durable RabbitMQ queue. Each
// publish dials its own connection; event volume is one message per
// reservation operation.
type Publisher struct {
	URL     string
	Queue   string
	Timeout time.Duration
}

// NewPublisher returns a publisher for queue on the broker at url.
func NewPublisher(url, queue string) *Publisher {
	return &Publisher{URL: url, Queue: queue, Timeout: 5 * time.Second}
}

// Notify publishes ev in the background. Failures are logged and counted,
// never returned: a lost event must not fail the operation that produced it.
func (p *Publisher) Notify(ctx context.Context, ev AppointmentEvent) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
			logger.FromContext(ctx).Warn().Err(err).
				Str("event", ev.Type).
				Str("appointment_id", ev.AppointmentID).
				Msg("publish appointment event failed")
			return
		}
		metrics.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	}()
}

// Publish sends ev synchronously. Messages are persistent and go through
// the default exchange with the queue name as routing key.
func (p *Publisher) Publish(ctx context.Context, ev AppointmentEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// LogNotifier writes events to the application log. It is used when the
// broker is disabled.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev AppointmentEvent) {
	logger.FromContext(ctx).Info().
		Str("event", ev.Type).
		Str("appointment_id", ev.AppointmentID).
		Str("user_id", ev.UserID).
		Str("slot", ev.Date+" "+ev.Hour).
		Bool("partial", ev.Partial).
		Msg("appointment event")
}

