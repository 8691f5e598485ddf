package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
	"github.com/c360/robotlink/metric"
)

// DefaultReconnectInterval is how often the background loop tries to restore
// a lost connection
const DefaultReconnectInterval = 5 * time.Second

// AdapterSource is the slice of the connection manager the stream client
// needs: current adapter access plus reconnect and loss reporting.
type AdapterSource interface {
	Adapter() backend.Adapter
	IsConnected() bool
	Connect(ctx context.Context) error
	MarkConnectionLost(cause error)
}

// Config holds stream client settings
type Config struct {
	// ReconnectInterval is the fixed wait between background reconnect
	// attempts while the link is down
	ReconnectInterval time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
}

// Deps holds the dependencies a Client needs
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.Registry
}

// Client sends coordinate samples over the active backend. Send never blocks
// on a dead link and never buffers: a sample that cannot go out immediately
// is dropped and counted.
type Client struct {
	source  AdapterSource
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	sent    atomic.Uint64
	dropped atomic.Uint64

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient builds a stream client over the given adapter source
func NewClient(source AdapterSource, cfg Config, deps Deps) (*Client, error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "stream", "NewClient", "require adapter source")
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = metric.NewRegistry()
	}
	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, errors.Wrap(err, "stream", "NewClient", "register metrics")
	}

	return &Client{
		source:  source,
		cfg:     cfg,
		logger:  logger.With("component", "stream"),
		metrics: metrics,
		stopCh:  make(chan struct{}),
	}, nil
}

// Send pushes one sample at the backend. It reports whether the frame made it
// onto the wire. While disconnected it fails fast without touching the
// transport; a write failure drops the frame and reports the connection lost.
func (c *Client) Send(s Sample) bool {
	if !c.source.IsConnected() {
		c.drop()
		return false
	}

	payload, err := s.Encode()
	if err != nil {
		c.logger.Warn("Dropping unencodable sample", "error", err)
		c.drop()
		return false
	}

	adapter := c.source.Adapter()
	if adapter == nil {
		c.drop()
		return false
	}

	if err := adapter.SendFrame(payload); err != nil {
		c.logger.Warn("Frame write failed, reporting connection lost", "error", err)
		c.drop()
		c.source.MarkConnectionLost(err)
		return false
	}

	c.sent.Add(1)
	c.metrics.framesSent.Inc()
	return true
}

// Start launches the background reconnect loop
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "stream", "Start", "start reconnect loop")
	}
	c.started = true

	c.wg.Add(1)
	go c.reconnectLoop(ctx)
	return nil
}

// Stop terminates the reconnect loop and waits for it to exit
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Sent returns the number of frames successfully written
func (c *Client) Sent() uint64 { return c.sent.Load() }

// Dropped returns the number of frames dropped
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

func (c *Client) drop() {
	c.dropped.Add(1)
	c.metrics.framesDropped.Inc()
}

// reconnectLoop retries at a fixed interval while the link is down. The
// connect call carries its own backoff, so the loop stays a plain ticker.
func (c *Client) reconnectLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.source.IsConnected() {
				continue
			}
			c.metrics.reconnectAttempts.Inc()
			c.logger.Info("Attempting reconnect")
			if err := c.source.Connect(ctx); err != nil {
				c.logger.Warn("Reconnect failed", "error", err)
			}
		}
	}
}
