// Package tracker accepts coordinate frames from vision clients over TCP or
// WebSocket and hands the freshest sample to a delivery handler. Only the
// latest unprocessed sample is kept: a robot chasing a hand cares about where
// the hand is now, not where it was while the handler was busy.
package tracker

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/robotlink/errors"
	"github.com/c360/robotlink/metric"
	"github.com/c360/robotlink/stream"
)

// Handler receives each delivered sample. It runs on the dispatch goroutine,
// so a slow handler causes older samples to be superseded, never queued.
type Handler func(stream.Sample)

// Deps holds the dependencies a Server needs
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.Registry
}

// Server listens for vision client connections and dispatches samples
type Server struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
	metrics *Metrics

	listener net.Listener
	wsServer *http.Server
	upgrader websocket.Upgrader

	// One-slot handoff: a new sample displaces an unconsumed older one.
	latest chan stream.Sample

	lifecycleMu sync.Mutex
	started     atomic.Bool
	shutdown    chan struct{}
	once        sync.Once
	wg          sync.WaitGroup
	cancel      context.CancelFunc
}

// NewServer builds a tracker server delivering samples to handler
func NewServer(cfg Config, handler Handler, deps Deps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "tracker", "NewServer", "require handler")
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
		return nil, errors.Wrap(err, "tracker", "NewServer", "register metrics")
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "tracker"),
		metrics: metrics,
		latest:  make(chan stream.Sample, 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		shutdown: make(chan struct{}),
	}, nil
}

// Start binds the listeners and launches the accept and dispatch loops
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "tracker", "Start", "start listeners")
	}

	listener, err := net.Listen("tcp", s.cfg.TCPAddress)
	if err != nil {
		return errors.WrapFatal(err, "tracker", "Start", "bind tcp listener")
	}
	s.listener = listener

	serverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.acceptLoop(serverCtx)
	go s.dispatchLoop(serverCtx)

	if s.cfg.WSAddress != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(s.cfg.WSPath, s.handleWS)
		s.wsServer = &http.Server{
			Addr:              s.cfg.WSAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("WebSocket listener failed", "error", err)
			}
		}()
		s.logger.Info("WebSocket listener started", "address", s.cfg.WSAddress, "path", s.cfg.WSPath)
	}

	s.started.Store(true)
	s.logger.Info("Tracker listening", "address", listener.Addr())
	return nil
}

// Stop closes the listeners and waits for in-flight connections to unwind
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}

	s.once.Do(func() { close(s.shutdown) })
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.wsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = s.wsServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrCommandTimeout, "tracker", "Stop", "wait for goroutines")
	}

	s.started.Store(false)
	s.logger.Info("Tracker stopped")
	return nil
}

// Addr returns the bound TCP address, useful when the config port was 0
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			s.logger.Warn("Accept failed", "error", err)
			continue
		}

		s.metrics.connectionsTotal.Inc()
		s.metrics.connectionsActive.Inc()
		s.logger.Info("Vision client connected", "remote", conn.RemoteAddr())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.metrics.connectionsActive.Dec()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads newline-framed JSON off one TCP connection. Reads arrive
// in arbitrary chunks, so a partial frame is carried until its terminator
// shows up.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connDone := make(chan struct{})
	defer func() {
		close(connDone)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.shutdown:
			_ = conn.Close()
		case <-connDone:
		}
	}()

	var pending []byte
	buf := make([]byte, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var frames [][]byte
			frames, pending = stream.SplitFrames(pending)
			for _, frame := range frames {
				s.ingest(frame)
			}
		}
		if err != nil {
			s.logger.Info("Vision client disconnected", "remote", conn.RemoteAddr(), "reason", err)
			return
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s.metrics.connectionsTotal.Inc()
	s.metrics.connectionsActive.Inc()
	defer s.metrics.connectionsActive.Dec()
	s.logger.Info("Vision client connected over WebSocket", "remote", conn.RemoteAddr())

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("WebSocket client disconnected", "remote", conn.RemoteAddr(), "reason", err)
			return
		}
		frames, rest := stream.SplitFrames(payload)
		for _, frame := range frames {
			s.ingest(frame)
		}
		// WebSocket messages are already delimited; an unterminated tail is
		// still a complete frame.
		if len(rest) > 0 {
			s.ingest(rest)
		}
	}
}

// ingest parses one frame and offers it to the handoff slot
func (s *Server) ingest(frame []byte) {
	sample, err := stream.Decode(frame)
	if err != nil {
		s.metrics.framesInvalid.Inc()
		s.logger.Debug("Discarding invalid frame", "error", err)
		return
	}
	s.metrics.samplesReceived.Inc()

	for {
		select {
		case s.latest <- sample:
			return
		default:
		}
		// Slot occupied: displace the stale sample and try again.
		select {
		case <-s.latest:
			s.metrics.samplesDropped.Inc()
		default:
		}
	}
}

func (s *Server) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case sample := <-s.latest:
			s.handler(sample)
		}
	}
}
