// Package publisher emits entity events after a committed write.
//
// Publishing is a best-effort notification: failures are logged and counted, never
// returned to the caller and never retried synchronously. The write has already been
// committed; a lost event leaves downstream projections stale until the next event
// for the entity or a manual re-emit (postmesh publish).
package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// Mode selects how long PublishEntityEvent blocks.
type Mode string

const (
	// Confirm waits for broker acceptance, bounded by Options.Timeout.
	Confirm Mode = "confirm"
	// FireAndForget hands the publish to a background goroutine and returns at once.
	// The goroutine still waits for broker acceptance so failures are observed.
	FireAndForget Mode = "fire_and_forget"
)

// ParseMode maps the configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Confirm, "":
		return Confirm, nil
	case FireAndForget:
		return FireAndForget, nil
	}
	return "", fmt.Errorf("publisher: unknown mode %q", s)
}

type Options struct {
	Mode    Mode
	Timeout time.Duration
	// Now is the clock used for EmittedAt; defaults to time.Now.
	Now func() time.Time
}

// Publisher is safe for concurrent use.
type Publisher struct {
	fab  fabric.Fabric
	opts Options
	log  *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func New(fab fabric.Fabric, opts Options) *Publisher {
	if opts.Mode == "" {
		opts.Mode = Confirm
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{fab: fab, opts: opts, log: logger.Named("publisher")}
}

// PublishEntityEvent emits exactly one event for (kind, entity).
func (p *Publisher) PublishEntityEvent(ctx context.Context, kind event.Kind, e event.Entity) {
	log := logger.From(ctx).With(logger.Component("publisher"), logger.Key(e.EventKey()))

	ev, err := event.New(kind, e, p.opts.Now())
	if err != nil {
		log.Error("event not built", logger.Err(err))
		metrics.PublisherEvents.WithLabelValues("invalid", string(p.opts.Mode), "error").Inc()
		return
	}
	msg, err := event.Encode(ev, e.EventKey())
	if err != nil {
		log.Error("event not encoded", logger.RoutingKey(ev.RoutingKey), logger.Err(err))
		metrics.PublisherEvents.WithLabelValues(ev.RoutingKey, string(p.opts.Mode), "error").Inc()
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warn("publisher closed, event dropped", logger.RoutingKey(ev.RoutingKey))
		metrics.PublisherEvents.WithLabelValues(ev.RoutingKey, string(p.opts.Mode), "dropped").Inc()
		return
	}

	if p.opts.Mode == FireAndForget {
		// Detached from the request: it must outlive the response.
		bg := context.WithoutCancel(ctx)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.send(bg, msg, log)
		}()
		return
	}
	p.send(ctx, msg, log)
}

func (p *Publisher) send(ctx context.Context, msg fabric.Message, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	start := time.Now()
	if err := p.fab.Publish(ctx, msg); err != nil {
		log.Error("event publish failed, downstream projections stay stale until the next event",
			logger.RoutingKey(msg.RoutingKey), logger.Err(err))
		metrics.PublisherEvents.WithLabelValues(msg.RoutingKey, string(p.opts.Mode), "error").Inc()
		return
	}
	metrics.PublisherEvents.WithLabelValues(msg.RoutingKey, string(p.opts.Mode), "ok").Inc()
	log.Debug("event published", logger.RoutingKey(msg.RoutingKey), logger.DurationMs(time.Since(start)))
}

// Close waits for in-flight fire-and-forget publishes. Later calls drop their events.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
