// Package memfabric is an in-process fabric driver. A Broker plays the role of the
// message server: it owns exchanges and queues, so several Conns (service instances)
// attached to the same Broker exchange messages with the same queue, ack and
// redelivery semantics as the network drivers.
package memfabric

import (
	"fmt"
	"sync"

	"github.com/dropDatabas3/postmesh/internal/fabric"
)

type envelope struct {
	msg         fabric.Message
	attempt     int
	redelivered bool
}

type queue struct {
	name    string
	private bool
	owner   *Conn
	pending []*envelope
	// inflight maps a delivered envelope to the conn that has not acked it yet.
	inflight map[*envelope]*Conn
	notify   chan struct{}
}

func newQueue(name string) *queue {
	return &queue{
		name:     name,
		inflight: make(map[*envelope]*Conn),
		notify:   make(chan struct{}, 1),
	}
}

func (q *queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Broker is the shared in-process message server.
type Broker struct {
	mu sync.Mutex
	// exchange -> queue -> patterns
	bindings map[string]map[string][]string
	queues   map[string]*queue
	down     bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{
		bindings: make(map[string]map[string][]string),
		queues:   make(map[string]*queue),
	}
}

// SetDown simulates a broker outage. While down, publishes fail with
// fabric.ErrNotConnected and no message is handed to consumers.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	qs := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		qs = append(qs, q)
	}
	b.mu.Unlock()
	if !down {
		for _, q := range qs {
			q.signal()
		}
	}
}

// Depth returns the number of messages waiting (not in flight) in a queue.
func (b *Broker) Depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		return len(q.pending)
	}
	return 0
}

// Messages returns a copy of the messages waiting in a queue. Useful to inspect
// dead-letter queues.
func (b *Broker) Messages(queue string) []fabric.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return nil
	}
	out := make([]fabric.Message, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.msg)
	}
	return out
}

// HasQueue reports whether the broker currently holds queue.
func (b *Broker) HasQueue(queue string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[queue]
	return ok
}

func (b *Broker) publish(exchange string, msg fabric.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return fabric.ErrNotConnected
	}
	for name, patterns := range b.bindings[exchange] {
		if !fabric.MatchAny(patterns, msg.RoutingKey) {
			continue
		}
		q := b.queues[name]
		if q == nil {
			continue
		}
		q.pending = append(q.pending, &envelope{msg: msg, attempt: 1})
		q.signal()
	}
	return nil
}

func (b *Broker) declare(exchange string, spec fabric.QueueSpec, patterns []string, c *Conn) (*queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, fabric.ErrNotConnected
	}
	q, ok := b.queues[spec.Name]
	if ok && q.private && q.owner != c {
		return nil, fmt.Errorf("memfabric: queue %q is exclusive to another connection", spec.Name)
	}
	if !ok {
		q = newQueue(spec.Name)
		q.private = spec.Private
		if spec.Private {
			q.owner = c
		}
		b.queues[spec.Name] = q
	}
	if b.bindings[exchange] == nil {
		b.bindings[exchange] = make(map[string][]string)
	}
	b.bindings[exchange][spec.Name] = mergePatterns(b.bindings[exchange][spec.Name], patterns)
	return q, nil
}

// next pops the head of q for c. It returns nil when the queue is empty, the broker
// is down or c is closing.
func (b *Broker) next(q *queue, c *Conn) *envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || len(q.pending) == 0 || c.ctx.Err() != nil {
		return nil
	}
	e := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inflight[e] = c
	if len(q.pending) > 0 {
		q.signal()
	}
	return e
}

// settle finishes an in-flight envelope. It reports false when the envelope was
// already returned to the queue because c went away.
func (b *Broker) settle(q *queue, e *envelope, c *Conn, o fabric.Outcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if owner, ok := q.inflight[e]; !ok || owner != c {
		return false
	}
	delete(q.inflight, e)
	switch o {
	case fabric.Retry:
		e.attempt++
		e.redelivered = true
		q.pending = append(q.pending, e)
		q.signal()
	case fabric.DeadLettered:
		dl := fabric.DeadLetterName(q.name)
		dq, ok := b.queues[dl]
		if !ok {
			dq = newQueue(dl)
			b.queues[dl] = dq
		}
		dq.pending = append(dq.pending, &envelope{msg: e.msg, attempt: 1})
	}
	return true
}

// release drops everything c holds: unacked deliveries go back to the head of their
// queue flagged as redelivered, and queues exclusive to c are deleted.
func (b *Broker) release(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, q := range b.queues {
		if q.private && q.owner == c {
			delete(b.queues, name)
			for _, qs := range b.bindings {
				delete(qs, name)
			}
			continue
		}
		var back []*envelope
		for e, owner := range q.inflight {
			if owner == c {
				delete(q.inflight, e)
				e.redelivered = true
				back = append(back, e)
			}
		}
		if len(back) > 0 {
			q.pending = append(back, q.pending...)
			q.signal()
		}
	}
}

func mergePatterns(have, add []string) []string {
	seen := make(map[string]bool, len(have))
	for _, p := range have {
		seen[p] = true
	}
	for _, p := range add {
		if !seen[p] {
			have = append(have, p)
			seen[p] = true
		}
	}
	return have
}
