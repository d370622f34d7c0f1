package devicesrv

import (
	"log/slog"
	"sync"

	"skybridge/pkg/devicenet"
)

// Manager dispatches device input to the radio and derives the
// device_connected signal from the transport's connection count. A
// connect event fires only on the 1->2 transition (the first real peer
// joining alongside the permanent slot-0 fake peer); a disconnect event
// fires only on the 2->1 transition.
type Manager struct {
	mu        sync.Mutex
	connected bool
	radio     *Radio
	logger    *slog.Logger

	OnDeviceConnect    func()
	OnDeviceDisconnect func()
}

// NewManager constructs a Manager around radio. Wire HandleConnect,
// HandleDisconnect, and HandleInput to a devicenet.Transport's
// OnConnected/OnDisconnected/OnData callbacks.
func NewManager(radio *Radio, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{radio: radio, logger: logger.With("component", "device_manager")}
}

// Initialize brings up the radio.
func (m *Manager) Initialize() bool {
	return m.radio.Initialize()
}

// HandleConnect should be wired to the transport's OnConnected callback.
func (m *Manager) HandleConnect(transportConnectionCount int) {
	if transportConnectionCount > 2 {
		return
	}
	m.mu.Lock()
	m.connected = true
	cb := m.OnDeviceConnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// HandleDisconnect should be wired to the transport's OnDisconnected
// callback.
func (m *Manager) HandleDisconnect(transportConnectionCount int) {
	if transportConnectionCount > 1 {
		return
	}
	m.mu.Lock()
	cb := m.OnDeviceDisconnect
	m.connected = false
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// HandleInput should be wired to the transport's OnData callback via
// devicenet.DecodeInput.
func (m *Manager) HandleInput(inputID, data uint32) {
	if inputID == devicenet.InputRadio {
		m.radio.InterpretTick(int32(data))
	}
}

// Connected reports whether at least one real device peer is attached.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// RebootAll broadcasts a reboot-into-dev-mode RPC to every connected
// device.
func (m *Manager) RebootAll(transport *devicenet.Transport) {
	transport.SendToAll(devicenet.EncodeRpc(devicenet.RpcRebootDev))
}
