package amqpfabric

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// consume declares the queue of r on conn, binds its patterns and starts Prefetch
// workers on a dedicated channel. Callers hold c.mu.
func (c *Conn) consume(conn *amqp.Connection, r registration) error {
	b := r.b
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqpfabric: open channel for %s: %w", b.Queue.Name, err)
	}
	if err := ch.Qos(b.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqpfabric: qos %s: %w", b.Queue.Name, err)
	}

	private := b.Queue.Private
	if _, err := ch.QueueDeclare(b.Queue.Name, b.Queue.Durable && !private, private, private, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqpfabric: declare queue %s: %w", b.Queue.Name, err)
	}
	if b.OnFailure == fabric.DeadLetter {
		if _, err := ch.QueueDeclare(fabric.DeadLetterName(b.Queue.Name), true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("amqpfabric: declare dead-letter queue: %w", err)
		}
	}
	for _, p := range b.Patterns {
		if err := ch.QueueBind(b.Queue.Name, p, c.opts.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("amqpfabric: bind %s to %s: %w", b.Queue.Name, p, err)
		}
	}

	deliveries, err := ch.Consume(b.Queue.Name, "", false, private, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqpfabric: consume %s: %w", b.Queue.Name, err)
	}

	for i := 0; i < b.Prefetch; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for d := range deliveries {
				c.handle(r, d)
			}
		}()
	}
	return nil
}

func (c *Conn) handle(r registration, d amqp.Delivery) {
	fd := fabric.Delivery{
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Timestamp:   d.Timestamp,
		Queue:       r.b.Queue.Name,
		Attempt:     attemptOf(d.Headers),
		Redelivered: d.Redelivered,
	}
	if rk, ok := d.Headers[headerRoutingKey].(string); ok && rk != "" {
		fd.RoutingKey = rk
	}
	if k, ok := d.Headers[headerKey].(string); ok {
		fd.Key = k
	}

	err := r.h(c.ctx, fd)
	o := fabric.Settle(r.b, fd.Attempt, err)

	ack := true
	switch o {
	case fabric.Retry:
		ack = c.forward(d, fd, fd.Queue, fd.Attempt+1)
	case fabric.DeadLettered:
		if ack = c.forward(d, fd, fabric.DeadLetterName(fd.Queue), fd.Attempt); !ack {
			o = fabric.Retry
		}
	}
	if ack {
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Warn("ack failed", logger.Queue(fd.Queue), logger.Err(ackErr))
		}
	}
	fabric.Report(driverName, fd, err, o)
}

// forward republishes d to queue through the default exchange with a confirm. It
// reports false when that failed, in which case the original has been nacked back to
// its queue and must not be acked.
func (c *Conn) forward(d amqp.Delivery, fd fabric.Delivery, queue string, attempt int) bool {
	headers := amqp.Table{
		headerAttempt:    int32(attempt),
		headerRoutingKey: fd.RoutingKey,
	}
	if fd.Key != "" {
		headers[headerKey] = fd.Key
	}
	p := amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    d.Timestamp,
		Headers:      headers,
		Body:         d.Body,
	}

	c.mu.Lock()
	pub, ready := c.pub, c.ready
	c.mu.Unlock()

	err := fabric.ErrNotConnected
	if ready {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		err = c.confirmPublish(ctx, pub, "", queue, p)
		cancel()
	}
	if err != nil {
		c.log.Warn("forward failed, requeueing original",
			logger.Queue(queue), logger.RoutingKey(fd.RoutingKey), logger.Err(err))
		_ = d.Nack(false, true)
		return false
	}
	return true
}

func attemptOf(h amqp.Table) int {
	switch v := h[headerAttempt].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 1
}
