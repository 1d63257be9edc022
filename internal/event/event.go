// Package event defines the state-change events that flow over the fabric and their
// wire encoding.
//
// Routing keys follow "<entity>.<action>". Events carry no dedicated id: the identity of
// an event is the entity id inside its payload, and consumers rely on the natural
// idempotence of create (insert if absent) and delete (delete if present).
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/postmesh/internal/fabric"
)

// Kind is the action part of a routing key.
type Kind string

const (
	Created Kind = "created"
	Deleted Kind = "deleted"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	return k == Created || k == Deleted
}

// Routing keys published by the post service.
const (
	PostCreated = "post.created"
	PostDeleted = "post.deleted"
)

// RoutingKey builds "<entity>.<kind>".
func RoutingKey(entity string, kind Kind) string {
	return entity + "." + string(kind)
}

// Event is immutable once published.
type Event struct {
	RoutingKey string
	Payload    map[string]any
	EmittedAt  time.Time
}

// Entity is implemented by anything the publisher can emit events for.
type Entity interface {
	// EventEntity is the entity part of the routing key ("post").
	EventEntity() string
	// EventKey is the entity id, used as partitioning key.
	EventKey() string
	EventPayload(kind Kind) map[string]any
}

// New builds an event for entity, validating the resulting routing key.
func New(kind Kind, e Entity, now time.Time) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("event: unknown kind %q", kind)
	}
	rk := RoutingKey(e.EventEntity(), kind)
	if !fabric.ValidRoutingKey(rk) {
		return Event{}, fmt.Errorf("event: invalid routing key %q", rk)
	}
	return Event{RoutingKey: rk, Payload: e.EventPayload(kind), EmittedAt: now.UTC()}, nil
}

// Encode serializes ev as a JSON object body. key is the partitioning hint.
func Encode(ev Event, key string) (fabric.Message, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fabric.Message{}, fmt.Errorf("event: encode %s: %w", ev.RoutingKey, err)
	}
	return fabric.Message{
		RoutingKey: ev.RoutingKey,
		Key:        key,
		Body:       b,
		Timestamp:  ev.EmittedAt,
	}, nil
}

// Decode parses a delivery. Anything but a JSON object is a poison message.
func Decode(d fabric.Delivery) (Event, error) {
	var payload map[string]any
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return Event{}, fabric.Poison(fmt.Errorf("event: decode %s: %w", d.RoutingKey, err))
	}
	if payload == nil {
		return Event{}, fabric.Poison(fmt.Errorf("event: decode %s: payload is not an object", d.RoutingKey))
	}
	return Event{RoutingKey: d.RoutingKey, Payload: payload, EmittedAt: d.Timestamp}, nil
}

// Bind decodes the payload of ev into dst (a pointer to a typed payload). Errors are
// poison: a payload that does not fit its schema will not fit it on the next attempt.
func Bind(ev Event, dst interface{ validate() error }) error {
	b, err := json.Marshal(ev.Payload)
	if err != nil {
		return fabric.Poison(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fabric.Poison(fmt.Errorf("event: bind %s: %w", ev.RoutingKey, err))
	}
	if err := dst.validate(); err != nil {
		return fabric.Poison(fmt.Errorf("event: bind %s: %w", ev.RoutingKey, err))
	}
	return nil
}

var errMissingPostID = errors.New("postId is required")
