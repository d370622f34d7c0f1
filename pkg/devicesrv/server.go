package devicesrv

import (
	"fmt"
	"log/slog"
	"sync"

	"skybridge/pkg/devicenet"
)

// Server binds a devicenet.Transport and a Manager together behind a
// start/stop lifecycle, mirroring the source DeviceServer's relation to
// its Transport and DeviceManager.
type Server struct {
	mu     sync.Mutex
	active bool

	transport *devicenet.Transport
	manager   *Manager
	logger    *slog.Logger

	OnStart func()
	OnStop  func()
}

// NewServer constructs a Server with slotCount device slots (0 included).
func NewServer(manager *Manager, slotCount int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "device_server")
	s := &Server{
		transport: devicenet.NewTransport(slotCount, logger),
		manager:   manager,
		logger:    logger,
	}
	s.transport.OnConnected = func(*devicenet.Connection) {
		s.manager.HandleConnect(s.transport.ConnectionCount())
	}
	s.transport.OnDisconnected = func(*devicenet.Connection) {
		s.manager.HandleDisconnect(s.transport.ConnectionCount())
	}
	s.transport.OnData = func(conn *devicenet.Connection, payload []byte) {
		inputID, data, ok := devicenet.DecodeInput(payload)
		if !ok {
			return
		}
		s.manager.HandleInput(inputID, data)
	}
	return s
}

// Start binds the UDP socket and brings the radio model online. A bind
// failure is fatal to server startup and is returned to the caller.
func (s *Server) Start(address string, port int) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.transport.Listen(address, port); err != nil {
		return fmt.Errorf("devicesrv: start: %w", err)
	}
	if !s.manager.Initialize() {
		_ = s.transport.Close()
		return fmt.Errorf("devicesrv: radio initialization failed")
	}

	s.mu.Lock()
	s.active = true
	cb := s.OnStart
	s.mu.Unlock()
	s.logger.Info("server started", "address", address, "port", port)
	if cb != nil {
		cb()
	}
	return nil
}

// Stop kicks every real peer and shuts the socket down.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	cb := s.OnStop
	s.mu.Unlock()
	if cb != nil {
		cb()
	}

	s.transport.KickAll()
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("close transport", "error", err)
	}
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.logger.Info("server stopped")
}

// Poll drains pending traffic. A no-op while stopped.
func (s *Server) Poll() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active {
		s.transport.Poll()
	}
}

// Running reports whether the server is currently accepting traffic.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Kick disconnects a single connected slot.
func (s *Server) Kick(id devicenet.SlotID) bool { return s.transport.Kick(id) }

// KickAll disconnects every real peer.
func (s *Server) KickAll() { s.transport.KickAll() }

// ConnectionCount reports the number of connected slots, the fake peer
// included.
func (s *Server) ConnectionCount() int { return s.transport.ConnectionCount() }

// StatusLines renders one line per connected slot for CLI display.
func (s *Server) StatusLines() []string {
	var lines []string
	s.transport.ForEachConnection(func(c *devicenet.Connection) {
		if c.ID() == 0 {
			lines = append(lines, "slot 0: server (fake peer)")
			return
		}
		lines = append(lines, fmt.Sprintf("slot %d: %s", c.ID(), c.Addr()))
	})
	return lines
}

// RebootAll sends the reboot-into-dev-mode RPC to every connected device.
func (s *Server) RebootAll() { s.manager.RebootAll(s.transport) }
