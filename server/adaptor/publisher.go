package adaptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ponyo877/livebid/server/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const BiddingFinalizedQueue = "bidding.finalized"

// QueuePublisher publishes finalized rounds to a durable RabbitMQ queue. The
// broker connection is opened on first use and reopened after a failure.
type QueuePublisher struct {
	url   string
	queue string
	log   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueuePublisher(url string, log *slog.Logger) *QueuePublisher {
	return &QueuePublisher{
		url:   url,
		queue: BiddingFinalizedQueue,
		log:   log.With("component", "publisher"),
	}
}

func (p *QueuePublisher) PublishBiddingFinalized(ctx context.Context, event domain.BiddingFinalized) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.BiddingID,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", p.queue, err)
	}
	p.log.Debug("published", "queue", p.queue, "bidding_id", event.BiddingID)
	return nil
}

// channel returns an open channel with the queue declared. Callers hold mu.
func (p *QueuePublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *QueuePublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// LogPublisher stands in when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("component", "publisher")}
}

func (p *LogPublisher) PublishBiddingFinalized(_ context.Context, event domain.BiddingFinalized) error {
	p.log.Info("round finalized", "bidding_id", event.BiddingID, "livestream_id", event.LivestreamID,
		"winner_id", event.WinnerID, "amount", event.Amount, "reason", event.Reason)
	return nil
}
