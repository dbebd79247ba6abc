package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/reset"
)

// PublishCounter observes publish attempts (metrics).
type PublishCounter interface {
	Published(queue string, err error)
}

// Publisher sends reset notices to RabbitMQ. It dials per publish: resets
// are rare and this keeps the API free of long-lived broker state.
type Publisher struct {
	url      string
	linkBase string
	log      *zap.Logger
	counter  PublishCounter
}

// NewPublisher returns a Publisher for the broker at url. counter may be nil.
func NewPublisher(url, linkBase string, log *zap.Logger, counter PublishCounter) *Publisher {
	return &Publisher{url: url, linkBase: linkBase, log: log, counter: counter}
}

// NotifyPasswordReset implements reset.Notifier.
func (p *Publisher) NotifyPasswordReset(ctx context.Context, n reset.Notice) error {
	ev := NewPasswordResetRequested(n, p.linkBase, time.Now())
	err := p.publish(ctx, ev)
	if p.counter != nil {
		p.counter.Published(PasswordResetQueue, err)
	}
	if err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.String("queue", PasswordResetQueue), zap.Error(err))
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, ev PasswordResetRequested) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareResetQueue(ch); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                 // default exchange
		PasswordResetQueue, // routing key = queue name
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// declareResetQueue makes sure the durable queue exists (idempotent).
func declareResetQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		PasswordResetQueue, // name
		true,               // durable
		false,              // autoDelete
		false,              // exclusive
		false,              // noWait
		nil,                // args
	)
	return err
}

// Direct hands notices straight to a Mailer. It is the notifier used when
// no broker is configured.
type Direct struct {
	Mailer   Mailer
	LinkBase string
}

func (d Direct) NotifyPasswordReset(ctx context.Context, n reset.Notice) error {
	return d.Mailer.SendPasswordReset(ctx, NewPasswordResetRequested(n, d.LinkBase, time.Now()))
}
