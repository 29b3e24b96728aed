package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// AuthEventsQueue is the durable queue carrying AuthEvent messages.
const AuthEventsQueue = "auth.events"

// Publisher publishes auth events to RabbitMQ.  It dials per publish, so
// a broker outage never poisons a long-lived connection; callers treat
// errors as non-fatal and carry on with the request.
type Publisher struct {
    URL     string
    Timeout time.Duration
}

func NewPublisher(url string) *Publisher {
    return &Publisher{URL: url, Timeout: 3 * time.Second}
}

// Publish sends ev to the auth.events queue as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev AuthEvent) error {
    if p.Timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, p.Timeout)
        defer cancel()
    }
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.Timeout)})
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(AuthEventsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("rabbitmq queue declare: %w", err)
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    ev.OccurredAt,
        Type:         ev.Type,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", AuthEventsQueue, false, false, pub); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    return nil
}
