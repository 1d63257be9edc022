package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/fabric"
)

// Reemit publishes an operator-supplied event and waits for the broker to accept it.
// It is the repair path for events lost after a committed write: consumers are
// idempotent, so re-emitting an event that did arrive is harmless.
func Reemit(ctx context.Context, fab fabric.Fabric, routingKey string, payload []byte, now time.Time) error {
	if !fabric.ValidRoutingKey(routingKey) {
		return fmt.Errorf("reemit: invalid routing key %q", routingKey)
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		return fmt.Errorf("reemit: payload must be a JSON object")
	}
	ev := event.Event{RoutingKey: routingKey, Payload: body, EmittedAt: now.UTC()}

	switch routingKey {
	case event.PostCreated:
		if err := event.Bind(ev, &event.PostCreatedPayload{}); err != nil {
			return fmt.Errorf("reemit: %w", err)
		}
	case event.PostDeleted:
		if err := event.Bind(ev, &event.PostDeletedPayload{}); err != nil {
			return fmt.Errorf("reemit: %w", err)
		}
	}

	key, _ := body["postId"].(string)
	msg, err := event.Encode(ev, key)
	if err != nil {
		return err
	}
	return fab.Publish(ctx, msg)
}
