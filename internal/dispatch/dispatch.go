// Package dispatch runs the consumer side of a downstream service: it binds the
// service's queue to the routing keys it has handlers for, decodes each delivery and
// routes it to the registered handler.
//
// Handlers must be idempotent. A nil return acknowledges the message; an error is
// retried by the fabric up to the queue's MaxAttempts; an error wrapped with
// fabric.Poison is never retried.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// HandlerFunc applies one event to a projection.
type HandlerFunc func(ctx context.Context, ev event.Event) error

type Options struct {
	// Service names the owner; private queues are named "<service>.<uuid>".
	Service     string
	Queue       fabric.QueueSpec
	MaxAttempts int
	OnFailure   fabric.FailurePolicy
	Prefetch    int
}

// Dispatcher binds handlers to a fabric queue.
type Dispatcher struct {
	fab  fabric.Fabric
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queue    string
	started  bool
}

// New returns a Dispatcher consuming from fab.
func New(fab fabric.Fabric, opts Options) *Dispatcher {
	return &Dispatcher{
		fab:      fab,
		opts:     opts,
		log:      logger.Named("dispatch").With(logger.Component(opts.Service)),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for routingKey. It must be called before Start.
func (d *Dispatcher) Handle(routingKey string, h HandlerFunc) {
	if !fabric.ValidRoutingKey(routingKey) {
		panic(fmt.Sprintf("dispatch: invalid routing key %q", routingKey))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		panic("dispatch: Handle after Start")
	}
	d.handlers[routingKey] = h
}

// Start resolves the queue and binds it to every registered routing key. Deliveries
// are processed in the background until the fabric is closed.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("dispatch: already started")
	}
	if len(d.handlers) == 0 {
		d.mu.Unlock()
		return errors.New("dispatch: no handlers registered")
	}
	q, err := d.opts.Queue.Resolve(d.opts.Service)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	keys := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.queue = q.Name
	d.started = true
	d.mu.Unlock()

	b := fabric.Binding{
		Queue:       q,
		Patterns:    keys,
		MaxAttempts: d.opts.MaxAttempts,
		OnFailure:   d.opts.OnFailure,
		Prefetch:    d.opts.Prefetch,
	}
	if err := d.fab.Bind(ctx, b, d.deliver); err != nil {
		return fmt.Errorf("dispatch: bind %s: %w", q.Name, err)
	}
	d.log.Info("consumer started",
		logger.Queue(q.Name),
		zap.Strings("routing_keys", keys),
		logger.Bool("private", q.Private))
	return nil
}

// Queue reports the resolved queue name, empty before Start.
func (d *Dispatcher) Queue() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue
}

func (d *Dispatcher) deliver(ctx context.Context, del fabric.Delivery) error {
	ev, err := event.Decode(del)
	if err != nil {
		return err
	}

	d.mu.RLock()
	h, ok := d.handlers[del.RoutingKey]
	d.mu.RUnlock()
	if !ok {
		// Bound by pattern but not handled here: nothing to do.
		d.log.Debug("no handler, acking", logger.RoutingKey(del.RoutingKey))
		return nil
	}

	log := d.log.With(logger.RoutingKey(del.RoutingKey), logger.Attempt(del.Attempt))
	if err := h(logger.ToContext(ctx, log), ev); err != nil {
		return fmt.Errorf("dispatch: %s: %w", del.RoutingKey, err)
	}
	return nil
}
