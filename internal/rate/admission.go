package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// FailPolicy decides the answer when the counter store cannot be reached in time.
type FailPolicy string

const (
	// FailOpen admits the request: a counter-store outage must not become an outage of
	// every service.
	FailOpen FailPolicy = "open"
	// FailClosed rejects the request with a service-unavailable signal.
	FailClosed FailPolicy = "closed"
)

func ParseFailPolicy(s string) (FailPolicy, error) {
	switch FailPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailOpen, "":
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("rate: unknown fail policy %q", s)
}

// Tier is a named budget: at most Limit requests per Window per client.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is everything a caller needs to render a throttling response.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// Degraded is set when the counter store failed and the fail policy answered.
	Degraded bool
}

// Controller admits or rejects requests per client and tier against a shared store.
type Controller struct {
	limiter MultiLimiter
	policy  FailPolicy
	timeout time.Duration
	log     *zap.Logger
}

func NewController(limiter MultiLimiter, policy FailPolicy, timeout time.Duration) *Controller {
	if policy == "" {
		policy = FailOpen
	}
	return &Controller{
		limiter: limiter,
		policy:  policy,
		timeout: timeout,
		log:     logger.Named("admission"),
	}
}

// Admit counts one request of clientKey against tier.
func (c *Controller) Admit(ctx context.Context, clientKey string, tier Tier) Decision {
	if tier.Limit <= 0 || tier.Window <= 0 {
		return Decision{Allowed: true, Limit: tier.Limit}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.limiter.AllowWithLimits(ctx, tier.Name+":"+clientKey, tier.Limit, tier.Window)
	if err != nil {
		metrics.AdmissionDecisions.WithLabelValues(tier.Name, "degraded").Inc()
		c.log.Warn("counter store unavailable, applying fail policy",
			logger.Tier(tier.Name),
			logger.ClientKey(clientKey),
			logger.String("policy", string(c.policy)),
			logger.Err(err))
		d := Decision{Limit: tier.Limit, Degraded: true}
		if c.policy == FailOpen {
			d.Allowed = true
			d.Remaining = tier.Limit
		} else {
			d.RetryAfter = time.Second
		}
		return d
	}

	d := Decision{
		Allowed:    res.Allowed,
		Limit:      tier.Limit,
		Remaining:  int(res.Remaining),
		RetryAfter: res.RetryAfter,
		ResetAt:    res.ResetAt,
	}
	if d.Allowed {
		metrics.AdmissionDecisions.WithLabelValues(tier.Name, "allowed").Inc()
	} else {
		metrics.AdmissionDecisions.WithLabelValues(tier.Name, "denied").Inc()
	}
	return d
}
