// Package kafkafabric implements fabric.Fabric on Kafka. The scoped exchange becomes a
// topic, the routing key travels in a header and every queue is a consumer group that
// filters the topic by its patterns client-side. Messages are keyed by entity id so
// events of one entity land on one partition.
package kafkafabric

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

const (
	driverName = "kafka"

	headerRoutingKey = "routing-key"
	headerAttempt    = "attempt"
)

type Options struct {
	Brokers []string
	// Topic is the scoped exchange name (see fabric.ExchangeName).
	Topic   string
	Backoff fabric.Backoff
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Conn implements fabric.Fabric with one shared writer and one reader per binding.
type Conn struct {
	opts   Options
	log    *zap.Logger
	writer *kafka.Writer
	dlq    messageWriter
	dialer *kafka.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	ready   bool
	probing bool
	readers []*kafka.Reader
}

var _ fabric.Fabric = (*Conn)(nil)

// Dial checks that a broker is reachable and prepares the writers.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if len(opts.Brokers) == 0 || opts.Topic == "" {
		return nil, errors.New("kafkafabric: brokers and topic are required")
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts: opts,
		log:  logger.Named("fabric.kafka").With(logger.Exchange(opts.Topic)),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Topic:                  opts.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            3,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		dlq: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		dialer: &kafka.Dialer{Timeout: 5 * time.Second},
		ctx:    cctx,
		cancel: cancel,
	}
	if err := c.probe(ctx); err != nil {
		cancel()
		return nil, err
	}
	c.setReady(true)
	return c, nil
}

func (c *Conn) probe(ctx context.Context) error {
	var lastErr error
	for _, b := range c.opts.Brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", b)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("kafkafabric: no broker reachable: %w", lastErr)
}

func (c *Conn) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
	v := 0.0
	if ready {
		v = 1
	}
	metrics.FabricConnected.WithLabelValues(driverName).Set(v)
}

// markDown flips the conn to disconnected and starts a single probing supervisor.
func (c *Conn) markDown(cause error) {
	c.mu.Lock()
	c.ready = false
	start := !c.probing && c.ctx.Err() == nil
	c.probing = c.probing || start
	c.mu.Unlock()
	metrics.FabricConnected.WithLabelValues(driverName).Set(0)
	if !start {
		return
	}
	c.log.Warn("broker unreachable, publishing suspended", logger.Err(cause))
	c.wg.Add(1)
	go c.supervise()
}

func (c *Conn) supervise() {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.probing = false
		c.mu.Unlock()
	}()
	for attempt := 1; ; attempt++ {
		if err := fabric.Sleep(c.ctx, c.opts.Backoff.Delay(attempt)); err != nil {
			return
		}
		pctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		err := c.probe(pctx)
		cancel()
		if err != nil {
			c.log.Warn("reconnect failed", logger.Attempt(attempt), logger.Err(err))
			continue
		}
		c.setReady(true)
		metrics.FabricReconnects.WithLabelValues(driverName).Inc()
		c.log.Info("reconnected", logger.Attempt(attempt))
		return
	}
}

// Publish writes msg and returns once the in-sync replicas acknowledged it.
func (c *Conn) Publish(ctx context.Context, msg fabric.Message) error {
	if c.ctx.Err() != nil {
		return fabric.ErrClosed
	}
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	if !ready {
		metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "not_connected").Inc()
		return fabric.ErrNotConnected
	}

	km := toKafka(msg, 1)
	if err := c.writer.WriteMessages(ctx, km); err != nil {
		metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "error").Inc()
		if ctx.Err() == nil {
			c.markDown(err)
		}
		return fmt.Errorf("kafkafabric: publish %s: %w", msg.RoutingKey, err)
	}
	metrics.FabricPublishes.WithLabelValues(driverName, msg.RoutingKey, "ok").Inc()
	return nil
}

func toKafka(msg fabric.Message, attempt int) kafka.Message {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: headerRoutingKey, Value: []byte(msg.RoutingKey)},
			{Key: headerAttempt, Value: []byte(strconv.Itoa(attempt))},
		},
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Bind starts a consumer group named after the queue. Private queues start at the end
// of the topic, like an exclusive queue that only sees messages published after it was
// declared; shared queues resume from their committed offset.
func (c *Conn) Bind(ctx context.Context, b fabric.Binding, h fabric.Handler) error {
	b, err := b.Validate()
	if err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return fabric.ErrClosed
	}

	start := kafka.FirstOffset
	if b.Queue.Private {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.opts.Brokers,
		Topic:       c.opts.Topic,
		GroupID:     b.Queue.Name,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		Dialer:      c.dialer,
		StartOffset: start,
	})

	c.mu.Lock()
	c.readers = append(c.readers, r)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consume(r, b, h)
	return nil
}

func (c *Conn) consume(r *kafka.Reader, b fabric.Binding, h fabric.Handler) {
	defer c.wg.Done()
	failures := 0
	for {
		m, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.log.Warn("fetch failed", logger.Queue(b.Queue.Name), logger.Err(err))
			if fabric.Sleep(c.ctx, c.opts.Backoff.Delay(failures)) != nil {
				return
			}
			continue
		}
		failures = 0

		if fabric.MatchAny(b.Patterns, header(m, headerRoutingKey)) {
			if !c.deliver(m, b, h) {
				return
			}
		}
		if err := r.CommitMessages(c.ctx, m); err != nil && c.ctx.Err() == nil {
			c.log.Warn("commit failed", logger.Queue(b.Queue.Name), logger.Err(err))
		}
	}
}

// deliver runs the handler with in-process retries, then dead-letters or drops. It
// reports false when the conn is closing and the message must stay uncommitted.
func (c *Conn) deliver(m kafka.Message, b fabric.Binding, h fabric.Handler) bool {
	attempt, _ := strconv.Atoi(header(m, headerAttempt))
	if attempt < 1 {
		attempt = 1
	}
	for {
		d := fabric.Delivery{
			RoutingKey:  header(m, headerRoutingKey),
			Key:         string(m.Key),
			Body:        m.Value,
			Timestamp:   m.Time,
			Queue:       b.Queue.Name,
			Attempt:     attempt,
			Redelivered: attempt > 1,
		}
		err := h(c.ctx, d)
		if c.ctx.Err() != nil {
			return false
		}
		o := fabric.Settle(b, attempt, err)
		if o == fabric.Retry {
			fabric.Report(driverName, d, err, o)
			if fabric.Sleep(c.ctx, c.opts.Backoff.Delay(attempt)) != nil {
				return false
			}
			attempt++
			continue
		}
		if o == fabric.DeadLettered && !c.deadLetter(d, b, attempt) {
			return false
		}
		fabric.Report(driverName, d, err, o)
		return true
	}
}

// deadLetter writes d to the dead-letter topic of b, retrying with backoff until the
// write succeeds. It reports false when the conn closed first; the offset then stays
// uncommitted and the message comes back to the group.
func (c *Conn) deadLetter(d fabric.Delivery, b fabric.Binding, attempt int) bool {
	dl := toKafka(fabric.Message{RoutingKey: d.RoutingKey, Key: d.Key, Body: d.Body, Timestamp: d.Timestamp}, attempt)
	dl.Topic = fabric.DeadLetterName(b.Queue.Name)
	for try := 1; ; try++ {
		err := c.dlq.WriteMessages(c.ctx, dl)
		if err == nil {
			return true
		}
		if c.ctx.Err() != nil {
			return false
		}
		c.log.Error("dead-letter write failed, retrying",
			logger.Queue(b.Queue.Name), logger.RoutingKey(d.RoutingKey), logger.Attempt(try), logger.Err(err))
		if fabric.Sleep(c.ctx, c.opts.Backoff.Delay(try)) != nil {
			return false
		}
	}
}

// Close stops the consumers and flushes the writers. Uncommitted messages are
// redelivered to the next member of their group.
func (c *Conn) Close() error {
	if c.ctx.Err() != nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	c.setReady(false)

	c.mu.Lock()
	readers := c.readers
	c.readers = nil
	c.mu.Unlock()

	var errs []error
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	errs = append(errs, c.writer.Close(), c.dlq.Close())
	return errors.Join(errs...)
}
