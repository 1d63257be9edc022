package memfabric

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/metrics"
)

const driverName = "memory"

// Conn is one client attached to a Broker. It implements fabric.Fabric.
type Conn struct {
	broker   *Broker
	exchange string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ fabric.Fabric = (*Conn)(nil)

// Dial attaches a new connection to broker, publishing to and binding on exchange.
func Dial(broker *Broker, exchange string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{broker: broker, exchange: exchange, ctx: ctx, cancel: cancel}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Publish routes msg to every queue bound to a matching pattern.
func (c *Conn) Publish(ctx context.Context, msg fabric.Message) error {
	if c.isClosed() {
		return fabric.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := c.broker.publish(c.exchange, msg); err != nil {
		metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "not_connected").Inc()
		return err
	}
	metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "ok").Inc()
	return nil
}

// Bind declares the queue, binds its patterns and starts Prefetch workers.
func (c *Conn) Bind(ctx context.Context, b fabric.Binding, h fabric.Handler) error {
	b, err := b.Validate()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fabric.ErrClosed
	}
	q, err := c.broker.declare(c.exchange, b.Queue, b.Patterns, c)
	if err != nil {
		return err
	}
	for i := 0; i < b.Prefetch; i++ {
		c.wg.Add(1)
		go c.consume(q, b, h)
	}
	return nil
}

func (c *Conn) consume(q *queue, b fabric.Binding, h fabric.Handler) {
	defer c.wg.Done()
	for {
		e := c.broker.next(q, c)
		if e == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}
		if c.ctx.Err() != nil {
			// Closed between pop and dispatch: release() requeues it.
			return
		}

		d := fabric.Delivery{
			RoutingKey:  e.msg.RoutingKey,
			Key:         e.msg.Key,
			Body:        e.msg.Body,
			Timestamp:   e.msg.Timestamp,
			Queue:       q.name,
			Attempt:     e.attempt,
			Redelivered: e.redelivered,
		}
		err := h(c.ctx, d)
		o := fabric.Settle(b, d.Attempt, err)
		if c.broker.settle(q, e, c, o) {
			fabric.Report(driverName, d, err, o)
		}
	}
}

// Close stops the consumers and hands unacked deliveries back to the broker. It does
// not wait for running handlers: their late acks are ignored.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.broker.release(c)
	return nil
}

// Wait blocks until every consumer goroutine of a closed Conn returned.
func (c *Conn) Wait() { c.wg.Wait() }
