package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cinelog/catalog-api/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const defaultDialTimeout = 10 * time.Second

// ErrReconnecting is returned while another publish is re-dialling the broker.
var ErrReconnecting = errors.New("rabbitmq reconnect in progress")

// AMQP publishes events as persistent JSON messages to a durable queue via
// the default exchange. The connection is long-lived and re-dialled on the
// next publish after the broker drops it.
type AMQP struct {
	url    string
	queue  string
	logger *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
}

// NewAMQP dials the broker and declares the queue.
func NewAMQP(ctx context.Context, url, queue string, logger *logrus.Logger) (*AMQP, error) {
	p := &AMQP{url: url, queue: queue, logger: logger}

	conn, ch, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch

	logger.WithField("queue", queue).Info("Connected to RabbitMQ")
	return p, nil
}

// dial opens a connection and channel and declares the queue. The TCP dial
// and the AMQP handshake are both bounded by ctx.
func (p *AMQP) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultDialTimeout)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// Cleared by the client once the handshake completes.
			if err := c.SetDeadline(deadline); err != nil {
				_ = c.Close()
				return nil, err
			}
			return c, nil
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
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
		return nil, nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	return conn, ch, nil
}

// channel returns a usable channel, re-dialling outside the lock when the
// current one is closed. Only one publish dials at a time; the others fail
// fast with ErrReconnecting.
func (p *AMQP) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing {
		p.mu.Unlock()
		return nil, ErrReconnecting
	}
	p.dialing = true
	_ = p.closeLocked()
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch
	if p.logger != nil {
		p.logger.Info("Reconnected to RabbitMQ")
	}
	return ch, nil
}

func (p *AMQP) Publish(ctx context.Context, event Event) (err error) {
	defer func() { metrics.RecordEventPublished(event.Type, err) }()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQP) closeLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}
