package bridge

import (
	"log/slog"
	"sync"

	"skybridge/internal/wire"
	"skybridge/pkg/radar"
	"skybridge/pkg/simlink"
)

// RxCmd tags an inbound command queued from the UI/network surfaces for
// the real-time thread to apply.
type RxCmd int

const (
	RxUndefined RxCmd = iota
	RxResync
	RxChangeSimLinkStatus
	RxChangeServerStatus
	RxReconnectToSim
)

type rxEntry struct {
	kind  RxCmd
	value bool
}

// TxMessage is a fully-formed outbound message awaiting delivery. Payload
// carries the same canonical value fan-out uses for both wire flavors: a
// wire.RadarAircraft/wire.UserAircraft/wire.IDPayload/wire.SystemState/
// wire.ResyncPayload, or nil for an empty payload (user-remove).
type TxMessage struct {
	Topic   wire.Topic
	Payload any
}

// SimLink narrows *simlink.Link to what the bridge needs to drive it.
type SimLink interface {
	State() simlink.State
	Initialize(appName string) error
	Shutdown()
	SetAllowReconnect(allow bool)
}

// DeviceServer narrows *devicesrv.Server to what the bridge needs.
type DeviceServer interface {
	Running() bool
	Start(address string, port int) error
	Stop()
}

type resyncPair struct {
	radar     []wire.RadarAircraft
	user      *wire.UserAircraft
	haveRadar bool
	haveUser  bool
}

// Bridge mediates between the real-time tick loop and the outward
// WebSocket/CLI surfaces: it queues outbound updates and inbound
// commands behind their own locks, coalesces the two resync halves
// (radar + user) into a single send-all-data message, and derives
// system-state broadcasts from simulator/server/device connectivity
// transitions.
type Bridge struct {
	txMu    sync.Mutex
	txQueue []TxMessage

	rxMu    sync.Mutex
	rxQueue []rxEntry

	mu              sync.Mutex
	simConnected    bool
	serverRunning   bool
	deviceConnected bool
	simName         string
	resync          *resyncPair

	simLink      SimLink
	deviceServer DeviceServer
	appName      string
	deviceAddr   string
	devicePort   int
	logger       *slog.Logger

	// Send delivers a fully-formed message to connected clients; wire it
	// to the fan-out broadcaster.
	Send func(TxMessage)
}

// NewBridge constructs a Bridge around a simulator link and device
// server. appName is passed to SimLink.Initialize.
func NewBridge(simLink SimLink, deviceServer DeviceServer, appName, deviceAddr string, devicePort int, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		simLink:      simLink,
		deviceServer: deviceServer,
		appName:      appName,
		deviceAddr:   deviceAddr,
		devicePort:   devicePort,
		logger:       logger.With("component", "bridge"),
	}
}

// --- Tx side ---

// PushTx enqueues a fully-formed outbound message.
func (b *Bridge) PushTx(msg TxMessage) {
	b.txMu.Lock()
	b.txQueue = append(b.txQueue, msg)
	b.txMu.Unlock()
}

// CommitTx drains and delivers every queued outbound message. Call once
// per real-time tick.
func (b *Bridge) CommitTx() {
	b.txMu.Lock()
	queue := b.txQueue
	b.txQueue = nil
	b.txMu.Unlock()

	if b.Send == nil {
		return
	}
	for _, msg := range queue {
		b.Send(msg)
	}
}

// --- Rx side ---

// PushRx enqueues an inbound command for the next tick to apply.
func (b *Bridge) PushRx(kind RxCmd, value bool) {
	b.rxMu.Lock()
	b.rxQueue = append(b.rxQueue, rxEntry{kind: kind, value: value})
	b.rxMu.Unlock()
}

// CommitRx drains and applies every queued inbound command. Call once
// per real-time tick, from the real-time thread so handlers never race
// with simulator/device polling. userSpawned reports whether the user
// aircraft currently has a track, so a resync request waits for the real
// user half instead of pre-satisfying it.
func (b *Bridge) CommitRx(resyncRadar, resyncUser func(), userSpawned func() bool) {
	b.rxMu.Lock()
	queue := b.rxQueue
	b.rxQueue = nil
	b.rxMu.Unlock()

	for _, e := range queue {
		b.handleRx(e.kind, e.value, resyncRadar, resyncUser, userSpawned)
	}
}

func (b *Bridge) handleRx(kind RxCmd, value bool, resyncRadar, resyncUser func(), userSpawned func() bool) {
	switch kind {
	case RxResync:
		b.TriggerResync(resyncRadar, resyncUser, userSpawned())

	case RxChangeSimLinkStatus:
		connected := b.simLink.State() == simlink.StateConnected
		if value {
			if connected {
				b.SendSystemState()
			} else if err := b.simLink.Initialize(b.appName); err != nil {
				b.logger.Warn("sim link initialize failed", "error", err)
			}
		} else {
			if connected {
				b.simLink.Shutdown()
			} else {
				b.SendSystemState()
			}
		}

	case RxChangeServerStatus:
		running := b.deviceServer.Running()
		if value {
			if running {
				b.SendSystemState()
			} else if err := b.deviceServer.Start(b.deviceAddr, b.devicePort); err != nil {
				b.logger.Warn("device server start failed", "error", err)
			}
		} else {
			if running {
				b.deviceServer.Stop()
			} else {
				b.SendSystemState()
			}
		}

	case RxReconnectToSim:
		b.simLink.SetAllowReconnect(value)
	}
}

// --- Connectivity transitions (wire these to Link.OnConnect/OnDisconnect,
// Server.OnStart/OnStop, Manager.OnDeviceConnect/OnDeviceDisconnect) ---

// HandleSimConnect records the active simulator's name and broadcasts
// the new system state.
func (b *Bridge) HandleSimConnect(simName string) {
	b.mu.Lock()
	b.simConnected = true
	b.simName = simName
	b.mu.Unlock()
	b.SendSystemState()
}

// HandleSimDisconnect broadcasts the new system state.
func (b *Bridge) HandleSimDisconnect() {
	b.mu.Lock()
	b.simConnected = false
	b.simName = ""
	b.mu.Unlock()
	b.SendSystemState()
}

// HandleServerStart broadcasts the new system state.
func (b *Bridge) HandleServerStart() {
	b.mu.Lock()
	b.serverRunning = true
	b.mu.Unlock()
	b.SendSystemState()
}

// HandleServerStop broadcasts the new system state.
func (b *Bridge) HandleServerStop() {
	b.mu.Lock()
	b.serverRunning = false
	b.mu.Unlock()
	b.SendSystemState()
}

// HandleDeviceConnect broadcasts the new system state.
func (b *Bridge) HandleDeviceConnect() {
	b.mu.Lock()
	b.deviceConnected = true
	b.mu.Unlock()
	b.SendSystemState()
}

// HandleDeviceDisconnect broadcasts the new system state.
func (b *Bridge) HandleDeviceDisconnect() {
	b.mu.Lock()
	b.deviceConnected = false
	b.mu.Unlock()
	b.SendSystemState()
}

// SendSystemState queues an SRV_STATE message reflecting the current
// simulator/server/device connectivity, then flushes the tx queue.
func (b *Bridge) SendSystemState() {
	b.mu.Lock()
	simConnected, serverRunning, deviceConnected, simName := b.simConnected, b.serverRunning, b.deviceConnected, b.simName
	b.mu.Unlock()

	state := wire.SystemState{SimStatus: 1, SrvStatus: 1}
	if simConnected {
		state.SimStatus = 2
		state.SimName = simName
	}
	if serverRunning {
		state.SrvStatus = 2
		if deviceConnected {
			state.SrvStatus = 3
		}
	}

	b.PushTx(TxMessage{Topic: wire.TopicStateChange, Payload: state})
	b.CommitTx()
}

// --- Radar/user feed wiring ---

func radarAircraft(e radar.ResyncEntry) wire.RadarAircraft {
	return wire.RadarAircraft{
		ID: e.ObjectID, Model: e.Identity.Model, Callsign: e.Identity.Callsign,
		Lon: e.Track.Longitude, Lat: e.Track.Latitude, Heading: e.Track.HeadingTrue,
		Alt: e.Track.AltitudeIndicated, GroundAlt: e.Track.AltitudeAGL,
		IAS: e.Track.IAS, GS: e.Track.GroundSpeed, VS: e.Track.VerticalSpeed,
	}
}

// OnPlaneAdd should be wired to Radar.OnPlaneAdd.
func (b *Bridge) OnPlaneAdd(objectID uint32, identity radar.Identity, track radar.Track) {
	p := radarAircraft(radar.ResyncEntry{ObjectID: objectID, Identity: identity, Track: track})
	b.PushTx(TxMessage{Topic: wire.TopicRadarAdd, Payload: p})
}

// OnPlaneUpdate should be wired to Radar.OnPlaneUpdate.
func (b *Bridge) OnPlaneUpdate(objectID uint32, track radar.Track) {
	p := radarAircraft(radar.ResyncEntry{ObjectID: objectID, Track: track})
	b.PushTx(TxMessage{Topic: wire.TopicRadarUpdate, Payload: p})
}

// OnPlaneRemove should be wired to Radar.OnPlaneRemove.
func (b *Bridge) OnPlaneRemove(objectID uint32) {
	b.PushTx(TxMessage{Topic: wire.TopicRadarRemove, Payload: wire.IDPayload{ID: objectID}})
}

func userAircraft(identity radar.Identity, track radar.Track) wire.UserAircraft {
	return wire.UserAircraft{
		Model: identity.Model, Callsign: identity.Callsign,
		Lon: track.Longitude, Lat: track.Latitude, Heading: track.HeadingGyro,
		Alt: track.AltitudeIndicated, GroundAlt: track.AltitudeAGL,
		IAS: track.IAS, GS: track.GroundSpeed, VS: track.VerticalSpeed,
		RealAlt: track.AltitudeTrue, RealHdg: track.HeadingTrue,
	}
}

// OnUserAdd should be wired to UserTracker.OnAdd.
func (b *Bridge) OnUserAdd(_ uint32, identity radar.Identity, track radar.Track) {
	b.PushTx(TxMessage{Topic: wire.TopicUserAdd, Payload: userAircraft(identity, track)})
}

// OnUserUpdate should be wired to UserTracker.OnUpdate.
func (b *Bridge) OnUserUpdate(_ uint32, track radar.Track) {
	b.PushTx(TxMessage{Topic: wire.TopicUserUpdate, Payload: userAircraft(radar.Identity{}, track)})
}

// OnUserRemove should be wired to UserTracker.OnRemove.
func (b *Bridge) OnUserRemove(uint32) {
	b.PushTx(TxMessage{Topic: wire.TopicUserRemove, Payload: nil})
}

// --- Resync pairing ---

// TriggerResync calls the supplied radar/user resync triggers and holds
// back the combined send-all-data message until both halves are in.
// When userSpawned is false the user half is pre-satisfied with a nil
// snapshot, since UserTracker.Resync never fires its callback for an
// unset user aircraft.
func (b *Bridge) TriggerResync(resyncRadar, resyncUser func(), userSpawned bool) {
	b.mu.Lock()
	b.resync = &resyncPair{}
	if !userSpawned {
		b.resync.haveUser = true
	}
	b.mu.Unlock()

	if resyncRadar != nil {
		resyncRadar()
	}
	if resyncUser != nil {
		resyncUser()
	}
}

// OnRadarResync should be wired to Radar.OnResync.
func (b *Bridge) OnRadarResync(entries []radar.ResyncEntry) {
	payload := make([]wire.RadarAircraft, len(entries))
	for i, e := range entries {
		payload[i] = radarAircraft(e)
	}
	b.completeResyncHalf(func(p *resyncPair) {
		p.radar = payload
		p.haveRadar = true
	})
}

// OnUserResync should be wired to UserTracker.OnResync.
func (b *Bridge) OnUserResync(_ uint32, identity radar.Identity, track radar.Track) {
	u := userAircraft(identity, track)
	b.completeResyncHalf(func(p *resyncPair) {
		p.user = &u
		p.haveUser = true
	})
}

func (b *Bridge) completeResyncHalf(set func(*resyncPair)) {
	b.mu.Lock()
	if b.resync == nil {
		b.resync = &resyncPair{}
	}
	set(b.resync)
	ready := b.resync.haveRadar && b.resync.haveUser
	var payload wire.ResyncPayload
	if ready {
		payload = wire.ResyncPayload{Radar: b.resync.radar, User: b.resync.user}
		b.resync = nil
	}
	b.mu.Unlock()

	if ready {
		b.PushTx(TxMessage{Topic: wire.TopicResync, Payload: payload})
	}
}
