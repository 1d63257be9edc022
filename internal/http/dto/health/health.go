// Package health holds the response of the health endpoint.
package health

import "time"

// ComponentStatus is the state of one dependency.
type ComponentStatus struct {
	Status  string `json:"status"` // ok | error
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     string                     `json:"status"` // ready | unavailable
	Service    string                     `json:"service"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}
