// Package probe provides cheap reachability checks for candidate backends.
// Probes are stateless, side-effect-free beyond the transient socket or bus
// query, and reduce every failure to a negative result - they never return
// an error to the caller.
package probe

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// pingSubject is the micro-service discovery broadcast subject. Every
// advertised service replies with its info.
const pingSubject = "$SRV.PING"

// DirectSocket reports whether a TCP service answers on address:port within
// the timeout. The connection is opened and immediately closed.
func DirectSocket(address string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// MessageBus reports whether a bus runtime is reachable at url.
func MessageBus(url string, timeout time.Duration) bool {
	nc, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return false
	}
	nc.Close()
	return true
}

// pingResponse is the subset of the service info reply we care about.
type pingResponse struct {
	Name string `json:"name"`
}

// BusServices enumerates services advertised on the bus whose name contains
// fragment (case-insensitive). Replies are gathered for the full timeout
// window since discovery is a scatter-gather broadcast. Any failure yields
// an empty result.
func BusServices(url, fragment string, timeout time.Duration) []string {
	nc, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return nil
	}
	defer nc.Close()

	inbox := nats.NewInbox()
	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		return nil
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := nc.PublishRequest(pingSubject, inbox, nil); err != nil {
		return nil
	}

	var names []string
	deadline := time.Now().Add(timeout)
	fragment = strings.ToLower(fragment)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break
		}
		var info pingResponse
		if err := json.Unmarshal(msg.Data, &info); err != nil || info.Name == "" {
			continue
		}
		if fragment == "" || strings.Contains(strings.ToLower(info.Name), fragment) {
			names = append(names, info.Name)
		}
	}
	return names
}
