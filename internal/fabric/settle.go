package fabric

import (
	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// Outcome is what a driver does with a delivery after its handler returned.
type Outcome int

const (
	Ack Outcome = iota
	Retry
	DeadLettered
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "acked"
	case Retry:
		return "retried"
	case DeadLettered:
		return "dead_lettered"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Settle decides the fate of delivery attempt number attempt that ended with err.
// Poison never retries; other errors retry until MaxAttempts deliveries happened.
func Settle(b Binding, attempt int, err error) Outcome {
	if err == nil {
		return Ack
	}
	if !IsPoison(err) && attempt < b.MaxAttempts {
		return Retry
	}
	if b.OnFailure == DeadLetter {
		return DeadLettered
	}
	return Dropped
}

// Report logs and counts a settled delivery. Terminal failures log at error so that
// operators see every message the fabric gave up on.
func Report(driver string, d Delivery, err error, o Outcome) {
	metrics.FabricDeliveries.WithLabelValues(driver, o.String()).Inc()
	if o == Ack {
		return
	}
	log := logger.L().With(
		logger.Component("fabric."+driver),
		logger.Queue(d.Queue),
		logger.RoutingKey(d.RoutingKey),
		logger.Attempt(d.Attempt),
		logger.Bool("poison", IsPoison(err)),
		logger.Err(err),
	)
	switch o {
	case Retry:
		log.Warn("handler failed, message will be redelivered")
	case DeadLettered:
		log.Error("message dead-lettered", zap.String("dead_letter_queue", DeadLetterName(d.Queue)))
	case Dropped:
		log.Error("message dropped after failed handling")
	}
}
