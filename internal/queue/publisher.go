package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout   = 2 * time.Second
	defaultRedialBackoff = 10 * time.Second
	heartbeat            = 10 * time.Second
)

// ErrBrokerUnavailable is returned without dialing while a failed dial is
// backing off.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

// Publisher sends events over a lazily opened, shared AMQP connection.
// A dropped connection is redialed on the next publish once the redial
// backoff has passed.
type Publisher struct {
	url           string
	queue         string
	dialTimeout   time.Duration
	redialBackoff time.Duration

	mu          sync.Mutex
	conn        *amqp.Connection
	ch          *amqp.Channel
	redialAfter time.Time
	dialErr     error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithRedialBackoff sets how long publishes fail fast after a failed dial.
func WithRedialBackoff(d time.Duration) Option {
	return func(p *Publisher) {
		if d >= 0 {
			p.redialBackoff = d
		}
	}
}

// NewPublisher creates a publisher for the rental outcome queue.
// No connection is made until the first publish.
func NewPublisher(url string, opts ...Option) *Publisher {
	p := &Publisher{
		url:           url,
		queue:         RentalOutcomeQueue,
		dialTimeout:   defaultDialTimeout,
		redialBackoff: defaultRedialBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishRentalOutcome publishes event as a persistent JSON message.
func (p *Publisher) PublishRentalOutcome(ctx context.Context, event RentalOutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.RentalID + ":" + event.Outcome,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", p.queue, err)
	}

	return nil
}

// channel returns an open channel, dialing and declaring the queue as needed.
// Callers must hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if time.Now().Before(p.redialAfter) {
		return nil, fmt.Errorf("%w: %w", ErrBrokerUnavailable, p.dialErr)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      p.dialer(ctx),
	})
	if err != nil {
		p.redialAfter, p.dialErr = time.Now().Add(p.redialBackoff), err
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	p.redialAfter, p.dialErr = time.Time{}, nil

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", p.queue, err)
	}

	log.Printf("rabbitmq: connected, publishing to %s", p.queue)
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dialer connects within dialTimeout or until ctx ends, and leaves a deadline
// on the socket that the AMQP handshake clears once the connection is open.
func (p *Publisher) dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: p.dialTimeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		deadline := time.Now().Add(p.dialTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close closes the connection if one is open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()
	return nil
}
