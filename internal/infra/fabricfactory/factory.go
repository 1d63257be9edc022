// Package fabricfactory dials the messaging fabric selected by configuration.
package fabricfactory

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/amqpfabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/kafkafabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/memfabric"
)

// Open connects to the scoped exchange. broker backs the memory driver; nil gives the
// process a broker of its own.
func Open(ctx context.Context, cfg *config.Config, broker *memfabric.Broker) (fabric.Fabric, error) {
	exchange := fabric.ExchangeName(cfg.Fabric.Exchange, cfg.Fabric.Scope)
	backoff := fabric.Backoff{
		Min: config.Dur(cfg.Fabric.ReconnectMin),
		Max: config.Dur(cfg.Fabric.ReconnectMax),
	}

	switch strings.ToLower(cfg.Fabric.Driver) {
	case "amqp":
		c, err := amqpfabric.Dial(ctx, amqpfabric.Options{
			URL:      cfg.Fabric.URL,
			Exchange: exchange,
			Durable:  true,
			Backoff:  backoff,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "kafka":
		c, err := kafkafabric.Dial(ctx, kafkafabric.Options{
			Brokers: cfg.Fabric.Brokers,
			Topic:   exchange,
			Backoff: backoff,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "memory":
		if broker == nil {
			broker = memfabric.NewBroker()
		}
		return memfabric.Dial(broker, exchange), nil
	}
	return nil, fmt.Errorf("fabricfactory: unknown driver %q", cfg.Fabric.Driver)
}

// Binding maps a configured queue onto a fabric queue spec and failure policy.
func Binding(q config.Queue) (fabric.QueueSpec, fabric.FailurePolicy, error) {
	policy, err := fabric.ParseFailurePolicy(q.OnFailure)
	if err != nil {
		return fabric.QueueSpec{}, "", err
	}
	return fabric.QueueSpec{Name: q.Name, Private: q.Private, Durable: q.Durable}, policy, nil
}
