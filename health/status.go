// Package health tracks the liveness of robotlink subsystems and aggregates
// them into a single answer for the health endpoint.
package health

import (
	"regexp"
	"time"

	"github.com/c360/robotlink/connection"
)

// Messages may be served over HTTP, so endpoint details are scrubbed first.
var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?|tcp)://\S+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)\S*[:=]\S+`)
)

// Status is the health of one subsystem
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // healthy, degraded, unhealthy
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy reports whether the status is healthy
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded reports whether the status is degraded
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy reports whether the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   sanitize(message),
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   sanitize(message),
		Timestamp: time.Now(),
	}
}

// FromConnection maps the connection manager's state onto a health status.
// Retrying counts as degraded rather than unhealthy: the link is down but
// recovery is in progress.
func FromConnection(name string, info connection.Info) Status {
	switch info.State {
	case connection.StateConnected:
		return NewHealthy(name, "connected via "+info.Backend.String())
	case connection.StateConnecting, connection.StateRetrying:
		return NewDegraded(name, "link "+info.State.String())
	default:
		msg := "link " + info.State.String()
		if info.LastError != nil {
			msg += ": " + info.LastError.Error()
		}
		return NewUnhealthy(name, msg)
	}
}

// Aggregate folds sub-statuses into one verdict: any unhealthy makes the
// whole unhealthy, otherwise any degraded makes it degraded.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no subsystems registered")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more subsystems unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more subsystems degraded")
	default:
		status = NewHealthy(component, "all subsystems healthy")
	}
	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}

func sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[ADDR]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
