// Package amqpfabric implements fabric.Fabric on a RabbitMQ topic exchange.
//
// One Conn owns one AMQP connection, a confirm-mode channel for publishing and one
// channel per binding. A supervisor goroutine watches the connection; when it drops it
// reconnects with backoff, re-declares the exchange and re-binds every registered
// consumer. Retries are republished through the default exchange straight to the
// failing queue with an incremented attempt header, so a retry never fans out again.
package amqpfabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

const (
	driverName = "amqp"

	headerAttempt    = "x-attempt"
	headerRoutingKey = "x-routing-key"
	headerKey        = "x-entity-key"
)

// Options configures a Conn.
type Options struct {
	URL string
	// Exchange is the scoped exchange name (see fabric.ExchangeName).
	Exchange string
	// Durable exchanges survive broker restarts.
	Durable bool
	Backoff fabric.Backoff
}

type registration struct {
	b fabric.Binding
	h fabric.Handler
}

// Conn implements fabric.Fabric over AMQP 0-9-1.
type Conn struct {
	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the connection state and the registrations.
	mu    sync.Mutex
	conn  *amqp.Connection
	pub   *amqp.Channel
	regs  []registration
	ready bool

	// pubMu serializes publishes on the confirm channel.
	pubMu sync.Mutex
}

var _ fabric.Fabric = (*Conn)(nil)

// Dial connects to the broker and starts the supervisor. The first connection attempt
// must succeed; later losses are recovered in the background.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Exchange == "" {
		return nil, errors.New("amqpfabric: exchange is required")
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:   opts,
		log:    logger.Named("fabric.amqp").With(logger.Exchange(opts.Exchange)),
		ctx:    cctx,
		cancel: cancel,
	}

	closed, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.wg.Add(1)
	go c.supervise(closed)
	return c, nil
}

// connect dials, declares the exchange and re-binds every registration. It returns the
// channel that reports the loss of the new connection.
func (c *Conn) connect(ctx context.Context) (chan *amqp.Error, error) {
	conn, err := amqp.DialConfig(c.opts.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "postmesh",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("amqpfabric: dial: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpfabric: open publish channel: %w", err)
	}
	if err := pub.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpfabric: enable confirms: %w", err)
	}
	if err := pub.ExchangeDeclare(c.opts.Exchange, amqp.ExchangeTopic, c.opts.Durable, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpfabric: declare exchange: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.regs {
		if err := c.consume(conn, r); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.conn, c.pub, c.ready = conn, pub, true
	metrics.FabricConnected.WithLabelValues(driverName).Set(1)
	return closed, nil
}

func (c *Conn) supervise(closed chan *amqp.Error) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case amqpErr := <-closed:
			c.mu.Lock()
			c.ready, c.conn, c.pub = false, nil, nil
			c.mu.Unlock()
			metrics.FabricConnected.WithLabelValues(driverName).Set(0)
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("connection lost, reconnecting", zap.Any("reason", amqpErr))
		}

		for attempt := 1; ; attempt++ {
			if err := fabric.Sleep(c.ctx, c.opts.Backoff.Delay(attempt)); err != nil {
				return
			}
			next, err := c.connect(c.ctx)
			if err != nil {
				c.log.Warn("reconnect failed", logger.Attempt(attempt), logger.Err(err))
				continue
			}
			closed = next
			metrics.FabricReconnects.WithLabelValues(driverName).Inc()
			c.log.Info("reconnected", logger.Attempt(attempt))
			break
		}
	}
}

// Publish sends msg and waits for the broker confirm. It fails fast with
// fabric.ErrNotConnected while the supervisor is reconnecting.
func (c *Conn) Publish(ctx context.Context, msg fabric.Message) error {
	if c.ctx.Err() != nil {
		return fabric.ErrClosed
	}
	c.mu.Lock()
	pub, ready := c.pub, c.ready
	c.mu.Unlock()
	if !ready {
		metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "not_connected").Inc()
		return fabric.ErrNotConnected
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	p := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts,
		Headers:      amqp.Table{headerAttempt: int32(1)},
		Body:         msg.Body,
	}
	if msg.Key != "" {
		p.Headers[headerKey] = msg.Key
	}

	if err := c.confirmPublish(ctx, pub, c.opts.Exchange, msg.RoutingKey, p); err != nil {
		metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "error").Inc()
		return err
	}
	metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "ok").Inc()
	return nil
}

func (c *Conn) confirmPublish(ctx context.Context, ch *amqp.Channel, exchange, key string, p amqp.Publishing) error {
	c.pubMu.Lock()
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, p)
	c.pubMu.Unlock()
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			return fabric.ErrNotConnected
		}
		return fmt.Errorf("amqpfabric: publish %s: %w", key, err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqpfabric: confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("amqpfabric: broker nacked %s", key)
	}
	return nil
}

// Bind registers h for b. The registration is replayed after every reconnect.
func (c *Conn) Bind(ctx context.Context, b fabric.Binding, h fabric.Handler) error {
	b, err := b.Validate()
	if err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return fabric.ErrClosed
	}
	r := registration{b: b, h: h}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return fabric.ErrNotConnected
	}
	if err := c.consume(c.conn, r); err != nil {
		return err
	}
	c.regs = append(c.regs, r)
	return nil
}

// Close stops the supervisor and closes the connection. Unacked deliveries are
// returned to their queues by the broker.
func (c *Conn) Close() error {
	if c.ctx.Err() != nil {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.ready, c.conn, c.pub = false, nil, nil
	c.mu.Unlock()
	metrics.FabricConnected.WithLabelValues(driverName).Set(0)

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
