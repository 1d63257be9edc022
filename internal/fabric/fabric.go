// Package fabric defines the topic-routed, at-least-once message fabric shared by the
// postmesh services, and the contract every driver (amqp, kafka, memory) honours:
//
//   - Publish returns once the broker accepted the message, never earlier. While a
//     driver is disconnected Publish fails fast with ErrNotConnected.
//   - A delivery is acknowledged only after its Handler returned nil.
//   - A Handler error is retried until Binding.MaxAttempts deliveries happened, then the
//     message is dead-lettered or dropped according to Binding.OnFailure.
//   - Errors wrapped with Poison are never retried.
//   - Bindings survive reconnects: drivers re-declare and re-consume every binding.
package fabric

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConnected is returned by Publish while the driver has no live connection.
	ErrNotConnected = errors.New("fabric: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("fabric: closed")
	// ErrPoison marks a message that can never be processed (e.g. undecodable payload).
	ErrPoison = errors.New("fabric: poison message")
)

// Poison wraps err so that errors.Is(err, ErrPoison) holds.
func Poison(err error) error {
	if err == nil {
		return nil
	}
	return &poisonError{err: err}
}

type poisonError struct{ err error }

func (p *poisonError) Error() string        { return "poison message: " + p.err.Error() }
func (p *poisonError) Unwrap() error        { return p.err }
func (p *poisonError) Is(target error) bool { return target == ErrPoison }

// IsPoison reports whether err was marked with Poison.
func IsPoison(err error) bool { return errors.Is(err, ErrPoison) }

// Message is what publishers hand to the fabric.
type Message struct {
	RoutingKey string
	// Key is an optional partitioning hint (entity id). Drivers that order per key use it.
	Key       string
	Body      []byte
	Timestamp time.Time
}

// Delivery is one attempt at handing a message to a consumer.
type Delivery struct {
	RoutingKey string
	Key        string
	Body       []byte
	Timestamp  time.Time
	Queue      string
	// Attempt is 1 on first delivery and grows with every retry.
	Attempt int
	// Redelivered is set when the broker hands out a message that was delivered
	// before without being acknowledged (crash, connection loss). Kafka keeps no such
	// flag: its driver sets it for in-process retries only, and a message replayed from
	// the last committed offset after a crash arrives with Redelivered false.
	Redelivered bool
}

// Handler processes a delivery. Returning nil acknowledges it.
type Handler func(ctx context.Context, d Delivery) error

// FailurePolicy decides what happens to a message once its attempts are exhausted.
type FailurePolicy string

const (
	// Requeue retries up to MaxAttempts and then drops the message with an error log.
	Requeue FailurePolicy = "requeue"
	// DeadLetter retries up to MaxAttempts and then moves the message to "<queue>.dead".
	DeadLetter FailurePolicy = "dead_letter"
)

// ParseFailurePolicy maps the configuration string to a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case Requeue:
		return Requeue, nil
	case DeadLetter, "":
		return DeadLetter, nil
	}
	return "", fmt.Errorf("fabric: unknown failure policy %q", s)
}

// QueueSpec names a consumption queue. Private queues are exclusive to one consumer
// instance and deleted together with its connection.
type QueueSpec struct {
	Name    string
	Private bool
	Durable bool
}

// Resolve returns the concrete queue name. Private queues without a name get
// "<service>.<uuid>"; shared queues must be named.
func (q QueueSpec) Resolve(service string) (QueueSpec, error) {
	if q.Name != "" {
		return q, nil
	}
	if !q.Private {
		return q, errors.New("fabric: shared queue requires a name")
	}
	if service == "" {
		service = "consumer"
	}
	q.Name = service + "." + uuid.NewString()
	return q, nil
}

// DeadLetterName is the queue (or topic) that receives exhausted and poison messages.
func DeadLetterName(queue string) string { return queue + ".dead" }

// Binding ties a queue to routing patterns.
type Binding struct {
	Queue       QueueSpec
	Patterns    []string
	MaxAttempts int
	OnFailure   FailurePolicy
	Prefetch    int
}

func (b Binding) normalized() Binding {
	if b.MaxAttempts < 1 {
		b.MaxAttempts = 1
	}
	if b.OnFailure == "" {
		b.OnFailure = DeadLetter
	}
	if b.Prefetch < 1 {
		b.Prefetch = 1
	}
	return b
}

// Validate checks the binding and returns it with defaults applied.
func (b Binding) Validate() (Binding, error) {
	if b.Queue.Name == "" {
		return b, errors.New("fabric: binding queue is unresolved")
	}
	if len(b.Patterns) == 0 {
		return b, errors.New("fabric: binding needs at least one pattern")
	}
	for _, p := range b.Patterns {
		if !ValidPattern(p) {
			return b, fmt.Errorf("fabric: invalid routing pattern %q", p)
		}
	}
	return b.normalized(), nil
}

// Fabric is implemented by every driver.
type Fabric interface {
	Publish(ctx context.Context, msg Message) error
	Bind(ctx context.Context, b Binding, h Handler) error
	Close() error
}

// ExchangeName is the scoped exchange (or topic) name. Two deployments with different
// scopes never see each other's messages.
func ExchangeName(exchange, scope string) string {
	if scope == "" {
		return exchange
	}
	return exchange + "." + scope
}
